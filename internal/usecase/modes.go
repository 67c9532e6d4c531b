package usecase

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"divination-ai/internal/domain"
	"divination-ai/internal/domain/model"
	"divination-ai/internal/domain/ports/adapter"
)

// DefaultMaxQuestionLen bounds question text, in characters.
const DefaultMaxQuestionLen = 500

// ModeStrategy is everything that differs between divination modes. The job
// lifecycle itself is shared.
type ModeStrategy interface {
	Mode() model.Mode
	// ParseDraw decodes and validates the wire payload of this mode.
	ParseDraw(raw json.RawMessage) (model.Draw, error)
	ValidateMetadata(meta model.Metadata) error
	// PositionLabels describes each symbol of the draw in display order.
	PositionLabels(d model.Draw) []string
}

var strategies = map[model.Mode]ModeStrategy{
	model.ModeHexagram:  hexagramStrategy{},
	model.ModeTarot:     tarotStrategy{},
	model.ModeAstrology: astrologyStrategy{},
}

func StrategyFor(mode model.Mode) (ModeStrategy, error) {
	s, ok := strategies[mode]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownMode, mode)
	}
	return s, nil
}

// NormalizeQuestion trims q and enforces the length bound.
func NormalizeQuestion(q string, maxLen int) (string, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return "", domain.ErrEmptyQuestion
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxQuestionLen
	}
	if n := utf8.RuneCountInString(q); n > maxLen {
		return "", fmt.Errorf("%w: %d characters, limit %d", domain.ErrQuestionTooLong, n, maxLen)
	}
	return q, nil
}

// BuildSubmit validates a request for the strategy's mode and assembles it.
func BuildSubmit(s ModeStrategy, question string, maxLen int, d model.Draw, meta model.Metadata, provider string) (adapter.SubmitParams, error) {
	q, err := NormalizeQuestion(question, maxLen)
	if err != nil {
		return adapter.SubmitParams{}, err
	}
	if strings.TrimSpace(provider) == "" {
		return adapter.SubmitParams{}, domain.ErrMissingProvider
	}
	if d.Mode != s.Mode() {
		return adapter.SubmitParams{}, fmt.Errorf("%w: %s draw for %s session", domain.ErrInvalidDraw, d.Mode, s.Mode())
	}
	if err := d.Validate(); err != nil {
		return adapter.SubmitParams{}, err
	}
	if err := s.ValidateMetadata(meta); err != nil {
		return adapter.SubmitParams{}, err
	}
	return adapter.SubmitParams{Mode: s.Mode(), Question: q, Draw: d, Metadata: meta, Provider: provider}, nil
}

func decodeDraw(raw json.RawMessage, into any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: empty payload", domain.ErrInvalidDraw)
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidDraw, err)
	}
	return nil
}

type hexagramStrategy struct{}

func (hexagramStrategy) Mode() model.Mode { return model.ModeHexagram }

func (hexagramStrategy) ParseDraw(raw json.RawMessage) (model.Draw, error) {
	var h model.Hexagram
	if err := decodeDraw(raw, &h); err != nil {
		return model.Draw{}, err
	}
	d := model.HexagramDraw(h)
	return d, d.Validate()
}

func (hexagramStrategy) ValidateMetadata(meta model.Metadata) error {
	switch meta.Gender {
	case "", "male", "female":
	default:
		return fmt.Errorf("%w: gender %q", domain.ErrInvalidArgument, meta.Gender)
	}
	switch meta.Target {
	case "", "self", "parent", "friend", "other":
	default:
		return fmt.Errorf("%w: target %q", domain.ErrInvalidArgument, meta.Target)
	}
	return nil
}

func (hexagramStrategy) PositionLabels(d model.Draw) []string {
	if d.Hexagram == nil {
		return nil
	}
	out := make([]string, len(d.Hexagram.Lines))
	for i, v := range d.Hexagram.Lines {
		out[i] = model.LinePositionName(i) + " line: " + v.String()
		if v.IsMoving() {
			out[i] += " (moving)"
		}
	}
	return out
}

type tarotStrategy struct{}

func (tarotStrategy) Mode() model.Mode { return model.ModeTarot }

func (tarotStrategy) ParseDraw(raw json.RawMessage) (model.Draw, error) {
	var s model.TarotSpread
	if err := decodeDraw(raw, &s); err != nil {
		return model.Draw{}, err
	}
	// Names and labels come from the catalog, not from the caller.
	layout, err := model.SpreadLayout(s.Spread)
	if err != nil {
		return model.Draw{}, err
	}
	for i := range s.Cards {
		if c, ok := model.CardByID(s.Cards[i].ID); ok {
			s.Cards[i].Name = c.Name
		}
		if i < len(layout) {
			s.Cards[i].Label = layout[i].Label
		}
	}
	d := model.TarotDraw(s)
	return d, d.Validate()
}

func (tarotStrategy) ValidateMetadata(meta model.Metadata) error {
	if meta.Target != "" {
		return fmt.Errorf("%w: target is not used by tarot", domain.ErrInvalidArgument)
	}
	return nil
}

func (tarotStrategy) PositionLabels(d model.Draw) []string {
	if d.Tarot == nil {
		return nil
	}
	out := make([]string, len(d.Tarot.Cards))
	for i, c := range d.Tarot.Cards {
		label := c.Label
		if label == "" {
			label = c.Position
		}
		out[i] = fmt.Sprintf("%s: %s (%s)", label, c.Name, c.Orientation())
	}
	return out
}

type astrologyStrategy struct{}

func (astrologyStrategy) Mode() model.Mode { return model.ModeAstrology }

func (astrologyStrategy) ParseDraw(raw json.RawMessage) (model.Draw, error) {
	var q model.AstrologyQuery
	if err := decodeDraw(raw, &q); err != nil {
		return model.Draw{}, err
	}
	if q.QueryType == "" {
		q.QueryType = model.QueryNatal
	}
	d := model.AstrologyDraw(q)
	return d, d.Validate()
}

func (astrologyStrategy) ValidateMetadata(meta model.Metadata) error {
	if meta.Target != "" {
		return fmt.Errorf("%w: target is not used by astrology", domain.ErrInvalidArgument)
	}
	return nil
}

func (astrologyStrategy) PositionLabels(d model.Draw) []string {
	q := d.Astrology
	if q == nil {
		return nil
	}
	out := []string{
		"name: " + q.Name,
		"birth: " + q.BirthTime.Format("2006-01-02 15:04 MST"),
		"query: " + string(q.QueryType),
	}
	if q.BirthLocation != "" {
		out = append(out, "place: "+q.BirthLocation)
	}
	if q.QueryDate != nil {
		out = append(out, "for: "+q.QueryDate.Format("2006-01-02"))
	}
	return out
}
