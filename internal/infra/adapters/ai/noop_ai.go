package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"divination-ai/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*NoopAIAdapter)(nil)

const noopModel = "noop-ai-model"

// NoopAIAdapter answers every chat with a canned interpretation after a short
// delay. It is the "noop" provider used in dev and tests.
type NoopAIAdapter struct {
	delay time.Duration
	log   *zerolog.Logger
}

func NewNoopAIAdapter(delay time.Duration, logger *zerolog.Logger) *NoopAIAdapter {
	l := logger.With().Str("component", "NoopAI").Logger()
	return &NoopAIAdapter{delay: delay, log: &l}
}

func (a *NoopAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	return []string{noopModel}, nil
}

func (a *NoopAIAdapter) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	if a.delay > 0 {
		t := time.NewTimer(a.delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return "", adapter.Usage{}, ctx.Err()
		}
	}
	a.log.Debug().Int("messages", len(messages)).Msg("noop chat")
	prompt := 0
	for _, m := range messages {
		prompt += len(m.Content)
	}
	reply := fmt.Sprintf("This is a noop interpretation of %d message(s).", len(messages))
	return reply, adapter.Usage{Model: noopModel, PromptTokens: prompt, CompletionTokens: len(reply), TotalTokens: prompt + len(reply)}, nil
}
