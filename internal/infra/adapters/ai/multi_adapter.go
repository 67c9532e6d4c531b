// File: internal/infra/adapters/ai/multi_adapter.go
package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"divination-ai/internal/domain"
	"divination-ai/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*MultiAIAdapter)(nil)

// MultiAIAdapter fans calls out to the provider adapters. The model argument
// is either a provider name ("gemini", "local"), in which case the provider's
// default model is used, or a concrete model name routed by config or prefix.
type MultiAIAdapter struct {
	defaultProvider string
	byProvider      map[string]adapter.AIServiceAdapter
	modelToProvider map[string]string // model -> provider
}

func NewMultiAIAdapter(
	defaultProvider string,
	byProvider map[string]adapter.AIServiceAdapter,
	modelToProvider map[string]string,
) *MultiAIAdapter {
	norm := make(map[string]adapter.AIServiceAdapter, len(byProvider))
	for name, a := range byProvider {
		if a != nil {
			norm[strings.ToLower(name)] = a
		}
	}
	return &MultiAIAdapter{
		defaultProvider: strings.ToLower(defaultProvider),
		byProvider:      norm,
		modelToProvider: modelToProvider,
	}
}

// Providers lists the configured provider names in sorted order.
func (m *MultiAIAdapter) Providers() []string {
	out := make([]string, 0, len(m.byProvider))
	for name := range m.byProvider {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// resolve returns the provider and the model to pass on. An empty model
// means "use the provider default".
func (m *MultiAIAdapter) resolve(model string) (string, string) {
	l := strings.ToLower(strings.TrimSpace(model))
	if _, ok := m.byProvider[l]; ok {
		return l, ""
	}
	if p := m.modelToProvider[model]; p != "" {
		return strings.ToLower(p), model
	}
	switch {
	case l == "":
		return m.defaultProvider, ""
	case strings.HasPrefix(l, "gemini"):
		return "gemini", model
	case strings.HasPrefix(l, "gpt"), strings.HasPrefix(l, "o1"), strings.HasPrefix(l, "o3"):
		return "openai", model
	default:
		return m.defaultProvider, model
	}
}

func (m *MultiAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(m.modelToProvider)+4)
	add := func(name string) {
		if name == "" {
			return
		}
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	for model := range m.modelToProvider {
		add(model)
	}
	for _, name := range m.Providers() {
		list, _ := m.byProvider[name].ListModels(ctx)
		for _, model := range list {
			add(model)
		}
	}
	return out, nil
}

func (m *MultiAIAdapter) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	prov, target := m.resolve(model)
	a := m.byProvider[prov]
	if a == nil {
		return "", adapter.Usage{}, fmt.Errorf("%w: %q", domain.ErrMissingProvider, prov)
	}
	return a.ChatWithUsage(ctx, target, messages)
}
