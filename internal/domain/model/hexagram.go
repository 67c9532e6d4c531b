package model

import (
	"fmt"

	"divination-ai/internal/domain"
)

// LineValue encodes one toss of three coins.
type LineValue int

const (
	OldYang   LineValue = 0 // yang, moving
	YoungYang LineValue = 1 // yang, static
	YoungYin  LineValue = 2 // yin, static
	OldYin    LineValue = 3 // yin, moving
)

const HexagramLines = 6

var linePositionNames = [HexagramLines]string{"first", "second", "third", "fourth", "fifth", "top"}

func (v LineValue) Valid() bool { return v >= OldYang && v <= OldYin }

func (v LineValue) IsYang() bool { return v == OldYang || v == YoungYang }

func (v LineValue) IsMoving() bool { return v == OldYang || v == OldYin }

// ChangedIsYang is the polarity of the line in the derived hexagram.
func (v LineValue) ChangedIsYang() bool {
	if v.IsMoving() {
		return !v.IsYang()
	}
	return v.IsYang()
}

func (v LineValue) String() string {
	switch v {
	case OldYang:
		return "old yang"
	case YoungYang:
		return "young yang"
	case YoungYin:
		return "young yin"
	case OldYin:
		return "old yin"
	}
	return fmt.Sprintf("line(%d)", int(v))
}

// LinePositionName returns the traditional name of a 0-based line position.
func LinePositionName(i int) string {
	if i < 0 || i >= HexagramLines {
		return fmt.Sprintf("line %d", i+1)
	}
	return linePositionNames[i]
}

// Hexagram is a cast figure. Lines are ordered bottom to top.
type Hexagram struct {
	Lines []LineValue `json:"lines"`
}

// CastHexagram draws six independent line values uniformly from {0,1,2,3}.
func CastHexagram(rng RNG) Hexagram {
	lines := make([]LineValue, HexagramLines)
	for i := range lines {
		lines[i] = LineValue(rng.Intn(4))
	}
	return Hexagram{Lines: lines}
}

func (h Hexagram) Validate() error {
	if len(h.Lines) != HexagramLines {
		return fmt.Errorf("%w: hexagram needs %d lines, got %d", domain.ErrInvalidDraw, HexagramLines, len(h.Lines))
	}
	for i, v := range h.Lines {
		if !v.Valid() {
			return fmt.Errorf("%w: line %d has value %d", domain.ErrInvalidDraw, i, int(v))
		}
	}
	return nil
}

// MovingPositions returns the 0-based positions of moving lines, bottom first.
func (h Hexagram) MovingPositions() []int {
	out := make([]int, 0, len(h.Lines))
	for i, v := range h.Lines {
		if v.IsMoving() {
			out = append(out, i)
		}
	}
	return out
}

// Primary is the as-cast figure, true meaning yang.
func (h Hexagram) Primary() []bool {
	out := make([]bool, len(h.Lines))
	for i, v := range h.Lines {
		out[i] = v.IsYang()
	}
	return out
}

// Derived is the figure after every moving line flipped.
func (h Hexagram) Derived() []bool {
	out := make([]bool, len(h.Lines))
	for i, v := range h.Lines {
		out[i] = v.ChangedIsYang()
	}
	return out
}

// FigureString renders a figure top line first, "———" for yang and "- -" for yin.
func FigureString(lines []bool) string {
	s := ""
	for i := len(lines) - 1; i >= 0; i-- {
		if lines[i] {
			s += "———"
		} else {
			s += "- -"
		}
		if i > 0 {
			s += "\n"
		}
	}
	return s
}
