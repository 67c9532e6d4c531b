package ai_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"divination-ai/internal/domain"
	"divination-ai/internal/domain/ports/adapter"
	ai "divination-ai/internal/infra/adapters/ai"
)

type stubAI struct {
	name      string
	calls     int
	lastModel string
}

func (s *stubAI) ListModels(ctx context.Context) ([]string, error) {
	return []string{s.name + "-model"}, nil
}

func (s *stubAI) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	s.calls++
	s.lastModel = model
	return "ok", adapter.Usage{Model: model, PromptTokens: 1, CompletionTokens: 1}, nil
}

func TestRouting_ProviderNames_Map_Heuristics_And_Fallback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	open := &stubAI{name: "openai"}
	gem := &stubAI{name: "gemini"}
	local := &stubAI{name: "local"}

	m := ai.NewMultiAIAdapter(
		"gemini",
		map[string]adapter.AIServiceAdapter{"openai": open, "Gemini": gem, "local": local},
		map[string]string{"custom-x": "local"},
	)

	reset := func() { open.calls, gem.calls, local.calls = 0, 0, 0 }

	// provider name routes with the provider default model
	_, _, _ = m.ChatWithUsage(ctx, "local", nil)
	if local.calls != 1 || local.lastModel != "" {
		t.Fatalf("provider name should route to local with default model, got calls:%d model:%q", local.calls, local.lastModel)
	}
	reset()

	// explicit map wins over heuristics
	_, _, _ = m.ChatWithUsage(ctx, "custom-x", nil)
	if local.calls != 1 || local.lastModel != "custom-x" {
		t.Fatalf("explicit map should route to local")
	}
	reset()

	_, _, _ = m.ChatWithUsage(ctx, "gpt-4o-mini", nil)
	if open.calls != 1 || gem.calls != 0 {
		t.Fatalf("heuristic gpt-* should go openai")
	}
	reset()

	_, _, _ = m.ChatWithUsage(ctx, "gemini-2.5-flash", nil)
	if gem.calls != 1 || open.calls != 0 {
		t.Fatalf("heuristic gemini-* should go gemini")
	}
	reset()

	_, _, _ = m.ChatWithUsage(ctx, "", nil)
	if gem.calls != 1 || gem.lastModel != "" {
		t.Fatalf("empty model should go to default provider")
	}

	got := m.Providers()
	if len(got) != 3 || got[0] != "gemini" || got[1] != "local" || got[2] != "openai" {
		t.Fatalf("unexpected providers %v", got)
	}
}

func TestRouting_MissingProvider(t *testing.T) {
	t.Parallel()
	m := ai.NewMultiAIAdapter("gemini", map[string]adapter.AIServiceAdapter{}, nil)
	if _, _, err := m.ChatWithUsage(context.Background(), "", nil); !errors.Is(err, domain.ErrMissingProvider) {
		t.Fatalf("expected ErrMissingProvider, got %v", err)
	}
}

func TestListModels_Union(t *testing.T) {
	t.Parallel()
	m := ai.NewMultiAIAdapter(
		"gemini",
		map[string]adapter.AIServiceAdapter{"gemini": &stubAI{name: "gemini"}, "local": &stubAI{name: "local"}},
		map[string]string{"gemini-model": "gemini"},
	)
	list, err := m.ListModels(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("expected de-duplicated union of 2 models, got %v", list)
	}
}

type slowAI struct {
	active, peak atomic.Int32
}

func (s *slowAI) ListModels(ctx context.Context) ([]string, error) { return nil, nil }

func (s *slowAI) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	n := s.active.Add(1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	s.active.Add(-1)
	return "ok", adapter.Usage{}, nil
}

func TestLimitedAI_BoundsConcurrency(t *testing.T) {
	t.Parallel()
	inner := &slowAI{}
	l := ai.NewLimitedAI(inner, 2)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = l.ChatWithUsage(context.Background(), "", nil)
		}()
	}
	wg.Wait()
	if p := inner.peak.Load(); p > 2 {
		t.Fatalf("expected at most 2 concurrent calls, saw %d", p)
	}
}

func TestLimitedAI_GivesUpOnCancelledContext(t *testing.T) {
	t.Parallel()
	block := make(chan struct{})
	inner := &blockingAI{block: block}
	l := ai.NewLimitedAI(inner, 1)

	done := make(chan struct{})
	go func() {
		_, _, _ = l.ChatWithUsage(context.Background(), "", nil)
		close(done)
	}()
	<-inner.started()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := l.ChatWithUsage(ctx, "", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	close(block)
	<-done
}

type blockingAI struct {
	block chan struct{}
	once  sync.Once
	start chan struct{}
	mu    sync.Mutex
}

func (b *blockingAI) started() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.start == nil {
		b.start = make(chan struct{})
	}
	return b.start
}

func (b *blockingAI) ListModels(ctx context.Context) ([]string, error) { return nil, nil }

func (b *blockingAI) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	ch := b.started()
	b.once.Do(func() { close(ch) })
	<-b.block
	return "ok", adapter.Usage{}, nil
}

func TestNoopAI_RespectsContext(t *testing.T) {
	t.Parallel()
	nop := zerolog.Nop()
	a := ai.NewNoopAIAdapter(time.Hour, &nop)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := a.ChatWithUsage(ctx, "", []adapter.Message{{Role: "user", Content: "q"}}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	quick := ai.NewNoopAIAdapter(0, &nop)
	reply, u, err := quick.ChatWithUsage(context.Background(), "", []adapter.Message{{Role: "user", Content: "q"}})
	if err != nil || reply == "" || u.Model == "" || u.TotalTokens == 0 {
		t.Fatalf("unexpected noop reply %q usage %+v err %v", reply, u, err)
	}
}
