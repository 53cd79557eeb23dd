// Package maintenance runs the server's periodic housekeeping: interaction
// log retention and keeping the prompt cache warm.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/folio/internal/pipeline"
)

// Pruner deletes interactions created before a cutoff.
type Pruner interface {
	PruneInteractions(before time.Time) (int64, error)
}

// PromptWarmer rebuilds the system prompt.
type PromptWarmer interface {
	SystemPrompt(ctx context.Context) (string, pipeline.Meta)
}

// Worker runs housekeeping every interval until its context is cancelled.
type Worker struct {
	pruner    Pruner
	prompt    PromptWarmer
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewWorker creates a Worker. A nil pruner or a retention <= 0 disables
// pruning; a nil prompt disables warming. If interval is <= 0, it defaults
// to one minute.
func NewWorker(pruner Pruner, prompt PromptWarmer, retention, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Worker{
		pruner:    pruner,
		prompt:    prompt,
		retention: retention,
		interval:  interval,
		now:       time.Now,
		logger:    slog.Default(),
	}
}

// Run performs housekeeping until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if _, err := w.RunOnce(ctx); err != nil {
			w.logger.Error("maintenance iteration failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.interval):
		}
	}
}

// Result reports what one iteration did.
type Result struct {
	Pruned       int64
	PromptSource string
}

// RunOnce prunes expired interactions and touches the prompt so an expired
// cache entry is rebuilt here rather than on a visitor's request.
func (w *Worker) RunOnce(ctx context.Context) (Result, error) {
	var res Result

	if w.prompt != nil {
		_, meta := w.prompt.SystemPrompt(ctx)
		res.PromptSource = meta.Source
		if meta.Source == pipeline.SourceFallback {
			w.logger.Warn("maintenance: prompt fell back", "reason", meta.Reason)
		}
	}

	if w.pruner != nil && w.retention > 0 {
		n, err := w.pruner.PruneInteractions(w.now().Add(-w.retention))
		if err != nil {
			return res, fmt.Errorf("pruning interactions: %w", err)
		}
		res.Pruned = n
		if n > 0 {
			w.logger.Info("maintenance: pruned interactions", "count", n, "retention", w.retention)
		}
	}

	return res, nil
}
