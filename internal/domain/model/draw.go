package model

import (
	"fmt"

	"divination-ai/internal/domain"
)

// Mode is one of the divination flavours sharing the job lifecycle.
type Mode string

const (
	ModeHexagram  Mode = "hexagram"
	ModeTarot     Mode = "tarot"
	ModeAstrology Mode = "astrology"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeHexagram, ModeTarot, ModeAstrology:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrUnknownMode, s)
}

// Draw is the symbolic encoding of one divination. Exactly one payload is set
// and it matches Mode.
type Draw struct {
	Mode      Mode            `json:"mode"`
	Hexagram  *Hexagram       `json:"hexagram,omitempty"`
	Tarot     *TarotSpread    `json:"tarot,omitempty"`
	Astrology *AstrologyQuery `json:"astrology,omitempty"`
}

func HexagramDraw(h Hexagram) Draw { return Draw{Mode: ModeHexagram, Hexagram: &h} }

func TarotDraw(s TarotSpread) Draw { return Draw{Mode: ModeTarot, Tarot: &s} }

func AstrologyDraw(q AstrologyQuery) Draw { return Draw{Mode: ModeAstrology, Astrology: &q} }

// Clone returns a copy that shares no payload, slice or pointer with d.
func (d Draw) Clone() Draw {
	out := Draw{Mode: d.Mode}
	if d.Hexagram != nil {
		h := Hexagram{Lines: append([]LineValue(nil), d.Hexagram.Lines...)}
		out.Hexagram = &h
	}
	if d.Tarot != nil {
		t := TarotSpread{Spread: d.Tarot.Spread, Cards: append([]DrawnCard(nil), d.Tarot.Cards...)}
		out.Tarot = &t
	}
	if d.Astrology != nil {
		q := *d.Astrology
		if q.QueryDate != nil {
			qd := *q.QueryDate
			q.QueryDate = &qd
		}
		q.Chart = append([]byte(nil), q.Chart...)
		out.Astrology = &q
	}
	return out
}

func (d Draw) Validate() error {
	set := 0
	for _, p := range []bool{d.Hexagram != nil, d.Tarot != nil, d.Astrology != nil} {
		if p {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: expected exactly one payload, got %d", domain.ErrInvalidDraw, set)
	}
	switch d.Mode {
	case ModeHexagram:
		if d.Hexagram == nil {
			return fmt.Errorf("%w: hexagram payload missing", domain.ErrInvalidDraw)
		}
		return d.Hexagram.Validate()
	case ModeTarot:
		if d.Tarot == nil {
			return fmt.Errorf("%w: tarot payload missing", domain.ErrInvalidDraw)
		}
		return d.Tarot.Validate()
	case ModeAstrology:
		if d.Astrology == nil {
			return fmt.Errorf("%w: astrology payload missing", domain.ErrInvalidDraw)
		}
		return d.Astrology.Validate()
	}
	return fmt.Errorf("%w: %q", domain.ErrUnknownMode, d.Mode)
}
