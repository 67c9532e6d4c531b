package worker

import (
	"fmt"
	"strings"

	"divination-ai/internal/domain"
	"divination-ai/internal/domain/model"
	"divination-ai/internal/domain/ports/adapter"
	"divination-ai/internal/usecase"
)

const (
	hexagramSystemPrompt = `You are an experienced I Ching diviner. Read the cast hexagram line by line,
bottom to top. Weigh the moving lines most, then explain how the primary figure turns into the
derived figure. Answer the querent's question directly and close with practical advice.`

	tarotSystemPrompt = `You are a thoughtful tarot reader. Interpret every card in the role of its
spread position, respecting orientation (reversed cards express blocked or inward energy).
Tie the cards together into one narrative that answers the question.`

	astrologySystemPrompt = `You are a Zi Wei Dou Shu astrologer. Use the birth data and the requested
time window to describe the main palaces and the themes of the period. Be concrete and kind.`
)

var spreadNotes = map[model.SpreadType]string{
	model.SpreadSingle:      "Please interpret this single card reading.",
	model.SpreadThreeCard:   "Please interpret this past, present and future reading.",
	model.SpreadCelticCross: "Please interpret this Celtic Cross reading position by position, then give a synthesis.",
}

// BuildPrompt renders the chat messages sent to the model for a job.
func BuildPrompt(job *model.Job) ([]adapter.Message, error) {
	strategy, err := usecase.StrategyFor(job.Mode)
	if err != nil {
		return nil, err
	}
	if job.Draw.Mode != job.Mode {
		return nil, fmt.Errorf("%w: %s draw on a %s job", domain.ErrInvalidDraw, job.Draw.Mode, job.Mode)
	}
	if err := job.Draw.Validate(); err != nil {
		return nil, err
	}

	var system string
	var b strings.Builder
	switch job.Mode {
	case model.ModeHexagram:
		system = hexagramSystemPrompt
		fmt.Fprintf(&b, "Querent gender: %s\n", orDefault(job.Metadata.Gender, "unspecified"))
		fmt.Fprintf(&b, "Reading for: %s\n\n", orDefault(job.Metadata.Target, "self"))
		fmt.Fprintf(&b, "Question: %s\n\n", job.Question)
		b.WriteString("Lines (bottom to top):\n")
		writeList(&b, strategy.PositionLabels(job.Draw))
		h := job.Draw.Hexagram
		fmt.Fprintf(&b, "\nPrimary figure:\n%s\n", model.FigureString(h.Primary()))
		if len(h.MovingPositions()) > 0 {
			fmt.Fprintf(&b, "\nDerived figure:\n%s\n", model.FigureString(h.Derived()))
		} else {
			b.WriteString("\nNo moving lines; the figure is stable.\n")
		}
	case model.ModeTarot:
		system = tarotSystemPrompt
		fmt.Fprintf(&b, "Question: %s\n\n", job.Question)
		fmt.Fprintf(&b, "Spread: %s\n", job.Draw.Tarot.Spread)
		writeList(&b, strategy.PositionLabels(job.Draw))
		if note := spreadNotes[job.Draw.Tarot.Spread]; note != "" {
			fmt.Fprintf(&b, "\n%s\n", note)
		}
	case model.ModeAstrology:
		system = astrologySystemPrompt
		q := job.Draw.Astrology
		fmt.Fprintf(&b, "Question: %s\n\n", job.Question)
		writeList(&b, strategy.PositionLabels(job.Draw))
		fmt.Fprintf(&b, "gender: %s\n", orDefault(q.Gender, "unspecified"))
		if q.IsTwin {
			fmt.Fprintf(&b, "twin: %s\n", orDefault(q.TwinOrder, "unspecified order"))
		}
		if len(q.Chart) > 0 {
			fmt.Fprintf(&b, "\nChart:\n%s\n", q.Chart)
		}
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownMode, job.Mode)
	}

	return []adapter.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: b.String()},
	}, nil
}

func writeList(b *strings.Builder, items []string) {
	for _, it := range items {
		b.WriteString("- ")
		b.WriteString(it)
		b.WriteByte('\n')
	}
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
