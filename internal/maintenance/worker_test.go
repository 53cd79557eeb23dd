package maintenance

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalambet/folio/internal/pipeline"
	"github.com/kalambet/folio/internal/storage"
)

type mockPrompt struct {
	calls  atomic.Int32
	source string
}

func (m *mockPrompt) SystemPrompt(context.Context) (string, pipeline.Meta) {
	m.calls.Add(1)
	return "prompt", pipeline.Meta{Source: m.source, Reason: "content service not configured"}
}

type failingPruner struct{}

func (failingPruner) PruneInteractions(time.Time) (int64, error) {
	return 0, errors.New("database is locked")
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestWorker_PrunesExpiredInteractions(t *testing.T) {
	store := openTestStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, ix := range []storage.Interaction{
		{ID: "old", CreatedAt: now.Add(-48 * time.Hour), Status: 200},
		{ID: "fresh", CreatedAt: now.Add(-time.Hour), Status: 200},
	} {
		if err := store.SaveInteraction(ix); err != nil {
			t.Fatalf("SaveInteraction: %v", err)
		}
	}

	prompt := &mockPrompt{source: pipeline.SourceCache}
	w := NewWorker(store, prompt, 24*time.Hour, 0)
	w.now = func() time.Time { return now }

	res, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if res.Pruned != 1 {
		t.Errorf("Pruned = %d, want 1", res.Pruned)
	}
	if res.PromptSource != pipeline.SourceCache || prompt.calls.Load() != 1 {
		t.Errorf("prompt source = %q, calls = %d", res.PromptSource, prompt.calls.Load())
	}

	if _, err := store.GetInteraction("old"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("old interaction still present: %v", err)
	}
	if _, err := store.GetInteraction("fresh"); err != nil {
		t.Errorf("fresh interaction removed: %v", err)
	}
}

func TestWorker_RetentionDisabled(t *testing.T) {
	w := NewWorker(failingPruner{}, nil, 0, 0)
	res, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce with retention disabled: %v", err)
	}
	if res.Pruned != 0 || res.PromptSource != "" {
		t.Errorf("res = %+v, want zero", res)
	}
}

func TestWorker_PruneError(t *testing.T) {
	prompt := &mockPrompt{source: pipeline.SourceFallback}
	w := NewWorker(failingPruner{}, prompt, time.Hour, 0)

	res, err := w.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected prune error")
	}
	if res.PromptSource != pipeline.SourceFallback {
		t.Errorf("prompt should still be warmed before pruning, got %q", res.PromptSource)
	}
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	prompt := &mockPrompt{source: pipeline.SourceSynthesized}
	w := NewWorker(nil, prompt, 0, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for prompt.calls.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("worker ran %d times, want at least 3", prompt.calls.Load())
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
