package model

import (
	"fmt"

	"divination-ai/internal/domain"
)

// SpreadType identifies a tarot layout.
type SpreadType string

const (
	SpreadSingle      SpreadType = "single"
	SpreadThreeCard   SpreadType = "three_card"
	SpreadCelticCross SpreadType = "celtic_cross"
)

// SpreadPosition is one slot of a layout: Key goes over the wire, Label is for display.
type SpreadPosition struct {
	Key   string
	Label string
}

var spreadLayouts = map[SpreadType][]SpreadPosition{
	SpreadSingle: {
		{Key: "single", Label: "Core"},
	},
	SpreadThreeCard: {
		{Key: "past", Label: "Past"},
		{Key: "present", Label: "Present"},
		{Key: "future", Label: "Future"},
	},
	SpreadCelticCross: {
		{Key: "heart", Label: "The Heart"},
		{Key: "challenge", Label: "The Challenge"},
		{Key: "conscious", Label: "Conscious"},
		{Key: "foundation", Label: "Foundation"},
		{Key: "past", Label: "Recent Past"},
		{Key: "future", Label: "Near Future"},
		{Key: "attitude", Label: "Your Attitude"},
		{Key: "external", Label: "External"},
		{Key: "hopes_fears", Label: "Hopes & Fears"},
		{Key: "outcome", Label: "Outcome"},
	},
}

// SpreadLayout returns the ordered positions of a spread.
func SpreadLayout(t SpreadType) ([]SpreadPosition, error) {
	layout, ok := spreadLayouts[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownSpread, t)
	}
	out := make([]SpreadPosition, len(layout))
	copy(out, layout)
	return out, nil
}

// Size is the number of cards the spread takes.
func (t SpreadType) Size() int { return len(spreadLayouts[t]) }

// Card is one entry of the fixed catalog. Meanings live elsewhere.
type Card struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// OrientedCard is a catalog card after orientation was assigned for a shuffle.
type OrientedCard struct {
	Card
	Reversed bool `json:"reversed"`
}

// DrawnCard is a selected card placed on a spread position.
type DrawnCard struct {
	OrientedCard
	Position string `json:"position"`
	Label    string `json:"label,omitempty"`
}

func (c DrawnCard) Orientation() string {
	if c.Reversed {
		return "reversed"
	}
	return "upright"
}

// TarotSpread is a confirmed tarot draw.
type TarotSpread struct {
	Spread SpreadType  `json:"spread"`
	Cards  []DrawnCard `json:"cards"`
}

func (s TarotSpread) Validate() error {
	layout, err := SpreadLayout(s.Spread)
	if err != nil {
		return err
	}
	if len(s.Cards) != len(layout) {
		return fmt.Errorf("%w: %s needs %d cards, got %d", domain.ErrInvalidDraw, s.Spread, len(layout), len(s.Cards))
	}
	seen := make(map[int]bool, len(s.Cards))
	for i, c := range s.Cards {
		if _, ok := CardByID(c.ID); !ok {
			return fmt.Errorf("%w: card id %d", domain.ErrUnknownCard, c.ID)
		}
		if seen[c.ID] {
			return fmt.Errorf("%w: card %d drawn twice", domain.ErrInvalidDraw, c.ID)
		}
		seen[c.ID] = true
		if c.Position != layout[i].Key {
			return fmt.Errorf("%w: card %d at position %q, want %q", domain.ErrInvalidDraw, i, c.Position, layout[i].Key)
		}
	}
	return nil
}

// PlaceCards assigns spread positions to cards in selection order.
func PlaceCards(t SpreadType, selected []OrientedCard) (TarotSpread, error) {
	layout, err := SpreadLayout(t)
	if err != nil {
		return TarotSpread{}, err
	}
	if len(selected) != len(layout) {
		return TarotSpread{}, fmt.Errorf("%w: %s needs %d cards, got %d", domain.ErrSelectionShort, t, len(layout), len(selected))
	}
	cards := make([]DrawnCard, len(selected))
	for i, c := range selected {
		cards[i] = DrawnCard{OrientedCard: c, Position: layout[i].Key, Label: layout[i].Label}
	}
	return TarotSpread{Spread: t, Cards: cards}, nil
}
