package usecase

import (
	"fmt"
	"slices"

	"divination-ai/internal/domain"
	"divination-ai/internal/domain/model"
)

// MaxReshuffles is how many times a tarot deck may be reshuffled in one draw.
const MaxReshuffles = 3

// CastHexagram produces a hexagram draw. No backend call is involved.
func CastHexagram(rng model.RNG) model.Draw {
	return model.HexagramDraw(model.CastHexagram(rng))
}

// TarotShuffle is the interactive tarot draw: a shuffled deck with fixed
// orientations from which the user picks cards one by one.
type TarotShuffle struct {
	rng        model.RNG
	spread     model.SpreadType
	deck       []model.OrientedCard
	index      map[int]int // card id -> deck position
	selected   []int       // card ids in selection order
	reshuffles int
}

func NewTarotShuffle(rng model.RNG, spread model.SpreadType) (*TarotShuffle, error) {
	if _, err := model.SpreadLayout(spread); err != nil {
		return nil, err
	}
	s := &TarotShuffle{rng: rng, spread: spread}
	s.shuffle()
	return s, nil
}

// shuffle gives every card an independent orientation, then permutes the deck
// with Fisher-Yates.
func (s *TarotShuffle) shuffle() {
	cards := model.TarotCatalog()
	deck := make([]model.OrientedCard, len(cards))
	for i, c := range cards {
		deck[i] = model.OrientedCard{Card: c, Reversed: s.rng.Intn(2) == 1}
	}
	for i := len(deck) - 1; i > 0; i-- {
		j := s.rng.Intn(i + 1)
		deck[i], deck[j] = deck[j], deck[i]
	}
	s.deck = deck
	s.index = make(map[int]int, len(deck))
	for pos, c := range deck {
		s.index[c.ID] = pos
	}
	s.selected = s.selected[:0]
}

func (s *TarotShuffle) Spread() model.SpreadType { return s.spread }

// Deck returns the current shuffle in order.
func (s *TarotShuffle) Deck() []model.OrientedCard { return slices.Clone(s.deck) }

// Toggle selects cardID, or deselects it when already selected. It reports
// whether the card is selected afterwards.
func (s *TarotShuffle) Toggle(cardID int) (bool, error) {
	if _, ok := s.index[cardID]; !ok {
		return false, fmt.Errorf("%w: %d", domain.ErrUnknownCard, cardID)
	}
	if i := slices.Index(s.selected, cardID); i >= 0 {
		s.selected = slices.Delete(s.selected, i, i+1)
		return false, nil
	}
	if len(s.selected) >= s.spread.Size() {
		return false, domain.ErrSelectionFull
	}
	s.selected = append(s.selected, cardID)
	return true, nil
}

// PickNext selects the first deck card that is not selected yet.
func (s *TarotShuffle) PickNext() (model.OrientedCard, error) {
	if len(s.selected) >= s.spread.Size() {
		return model.OrientedCard{}, domain.ErrSelectionFull
	}
	for _, c := range s.deck {
		if !slices.Contains(s.selected, c.ID) {
			s.selected = append(s.selected, c.ID)
			return c, nil
		}
	}
	return model.OrientedCard{}, domain.ErrSelectionFull
}

// Selected returns the picked cards in selection order.
func (s *TarotShuffle) Selected() []model.OrientedCard {
	out := make([]model.OrientedCard, len(s.selected))
	for i, id := range s.selected {
		out[i] = s.deck[s.index[id]]
	}
	return out
}

func (s *TarotShuffle) ReshufflesLeft() int { return MaxReshuffles - s.reshuffles }

// Reshuffle discards the current selection and deals a new deck. Once the
// budget is spent the deck and selection are left untouched.
func (s *TarotShuffle) Reshuffle() error {
	if s.reshuffles >= MaxReshuffles {
		return domain.ErrReshuffleLimit
	}
	s.reshuffles++
	s.shuffle()
	return nil
}

// Confirm places the selected cards on the spread.
func (s *TarotShuffle) Confirm() (model.Draw, error) {
	spread, err := model.PlaceCards(s.spread, s.Selected())
	if err != nil {
		return model.Draw{}, err
	}
	return model.TarotDraw(spread), nil
}
