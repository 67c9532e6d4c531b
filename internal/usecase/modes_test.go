package usecase

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"divination-ai/internal/domain"
	"divination-ai/internal/domain/model"
)

func TestStrategyParseDraw(t *testing.T) {
	t.Run("hexagram", func(t *testing.T) {
		s, _ := StrategyFor(model.ModeHexagram)
		d, err := s.ParseDraw(json.RawMessage(`{"lines":[1,0,2,1,3,2]}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		labels := s.PositionLabels(d)
		if len(labels) != 6 || labels[1] != "second line: old yang (moving)" || labels[5] != "top line: young yin" {
			t.Fatalf("unexpected labels %q", labels)
		}
		if _, err := s.ParseDraw(json.RawMessage(`{"lines":[1,0,2]}`)); !errors.Is(err, domain.ErrInvalidDraw) {
			t.Fatalf("expected ErrInvalidDraw, got %v", err)
		}
	})

	t.Run("tarot fills names and labels from the catalog", func(t *testing.T) {
		s, _ := StrategyFor(model.ModeTarot)
		raw := `{"spread":"three_card","cards":[
			{"id":0,"name":"forged","reversed":true,"position":"past"},
			{"id":1,"position":"present"},
			{"id":2,"position":"future"}]}`
		d, err := s.ParseDraw(json.RawMessage(raw))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		labels := s.PositionLabels(d)
		if labels[0] != "Past: The Fool (reversed)" || labels[2] != "Future: The High Priestess (upright)" {
			t.Fatalf("unexpected labels %q", labels)
		}
	})

	t.Run("astrology defaults to natal", func(t *testing.T) {
		s, _ := StrategyFor(model.ModeAstrology)
		d, err := s.ParseDraw(json.RawMessage(`{"name":"Lin","gender":"female","birth_time":"1992-08-14T06:30:00Z","birth_location":"Taipei"}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d.Astrology.QueryType != model.QueryNatal {
			t.Fatalf("expected natal query, got %q", d.Astrology.QueryType)
		}
		if _, err := s.ParseDraw(nil); !errors.Is(err, domain.ErrInvalidDraw) {
			t.Fatalf("expected ErrInvalidDraw for empty payload, got %v", err)
		}
	})
}

func TestBuildSubmit(t *testing.T) {
	s, _ := StrategyFor(model.ModeHexagram)
	draw := model.HexagramDraw(model.Hexagram{Lines: []model.LineValue{1, 0, 2, 1, 3, 2}})

	p, err := BuildSubmit(s, "  Will it rain?  ", 0, draw, model.Metadata{Gender: "male", Target: "friend"}, "gemini")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Question != "Will it rain?" || p.Mode != model.ModeHexagram || p.Provider != "gemini" {
		t.Fatalf("unexpected params %+v", p)
	}

	cases := []struct {
		name     string
		question string
		meta     model.Metadata
		provider string
		want     error
	}{
		{"empty question", "", model.Metadata{}, "gemini", domain.ErrEmptyQuestion},
		{"long question", strings.Repeat("x", 501), model.Metadata{}, "gemini", domain.ErrQuestionTooLong},
		{"no provider", "q", model.Metadata{}, " ", domain.ErrMissingProvider},
		{"bad gender", "q", model.Metadata{Gender: "robot"}, "gemini", domain.ErrInvalidArgument},
		{"bad target", "q", model.Metadata{Target: "boss"}, "gemini", domain.ErrInvalidArgument},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := BuildSubmit(s, c.question, 0, draw, c.meta, c.provider); !errors.Is(err, c.want) {
				t.Fatalf("expected %v, got %v", c.want, err)
			}
		})
	}

	tarot, _ := StrategyFor(model.ModeTarot)
	if _, err := BuildSubmit(tarot, "q", 0, draw, model.Metadata{}, "gemini"); !errors.Is(err, domain.ErrInvalidDraw) {
		t.Fatalf("expected ErrInvalidDraw for a hexagram draw in tarot mode, got %v", err)
	}
}
