// Package pipeline joins portfolio content and CV text into the assistant's
// system prompt and caches the result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kalambet/folio/internal/cms"
	"github.com/kalambet/folio/internal/composer"
	"github.com/kalambet/folio/internal/content"
	"github.com/kalambet/folio/internal/cvtext"
)

const (
	DefaultTTL = 5 * time.Minute
	// DefaultBuildTimeout bounds one shared build: the CMS fetches plus
	// the CV download.
	DefaultBuildTimeout = 30 * time.Second
)

// ContentLoader is implemented by *content.Loader.
type ContentLoader interface {
	Load(ctx context.Context, hooks ...content.ProfileHook) content.Bundle
}

// CVExtractor is implemented by *cvtext.Extractor.
type CVExtractor interface {
	Extract(ctx context.Context, pdfURL string) string
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Prompt sources reported in Meta.
const (
	SourceSynthesized = "synthesized"
	SourceCache       = "cache"
	SourceFallback    = "fallback"
)

// Meta describes how a prompt was produced.
type Meta struct {
	Source     string            `json:"source"`
	Degraded   map[string]string `json:"degraded,omitempty"`
	CVIncluded bool              `json:"cvIncluded"`
	Tokens     int               `json:"estimatedTokens"`
	BuiltAt    time.Time         `json:"builtAt"`
	DurationMs int64             `json:"durationMs"`
	Reason     string            `json:"reason,omitempty"`
}

// Builder produces the system prompt. Synthesized prompts are cached for a
// TTL; the fallback prompt never is.
type Builder struct {
	loader ContentLoader
	cv     CVExtractor
	clock  Clock
	ttl    time.Duration
	group  singleflight.Group

	// buildTimeout bounds a shared build, which is detached from the
	// context of the caller that started it.
	buildTimeout time.Duration

	mu       sync.RWMutex
	cached   string
	meta     Meta
	cachedAt time.Time
}

type built struct {
	prompt string
	meta   Meta
}

// NewBuilder creates a Builder. A ttl <= 0 selects DefaultTTL.
func NewBuilder(loader ContentLoader, cv CVExtractor, ttl time.Duration) *Builder {
	return NewBuilderWithClock(loader, cv, realClock{}, ttl)
}

// NewBuilderWithClock creates a Builder with a custom clock (for testing).
func NewBuilderWithClock(loader ContentLoader, cv CVExtractor, clock Clock, ttl time.Duration) *Builder {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Builder{loader: loader, cv: cv, clock: clock, ttl: ttl, buildTimeout: DefaultBuildTimeout}
}

// SystemPrompt returns the current system prompt. It never fails: any error
// yields composer.FallbackPrompt.
func (b *Builder) SystemPrompt(ctx context.Context) (string, Meta) {
	if prompt, meta, ok := b.fromCache(); ok {
		return prompt, meta
	}

	// Concurrent misses share one build, detached from the caller that
	// started it. A caller that gives up gets the fallback alone.
	ch := b.group.DoChan("prompt", func() (any, error) {
		if prompt, meta, ok := b.fromCache(); ok {
			return built{prompt, meta}, nil
		}
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.buildTimeout)
		defer cancel()
		prompt, meta := b.build(bctx)
		if meta.Source == SourceSynthesized {
			b.mu.Lock()
			b.cached, b.meta, b.cachedAt = prompt, meta, b.clock.Now()
			b.mu.Unlock()
		}
		return built{prompt, meta}, nil
	})

	select {
	case res := <-ch:
		r := res.Val.(built)
		return r.prompt, r.meta
	case <-ctx.Done():
		return fallback(b.clock.Now(), ctx.Err())
	}
}

func (b *Builder) fromCache() (string, Meta, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.cached == "" || !b.clock.Now().Before(b.cachedAt.Add(b.ttl)) {
		return "", Meta{}, false
	}
	meta := b.meta
	meta.Source = SourceCache
	return b.cached, meta, true
}

// Invalidate drops the cached prompt.
func (b *Builder) Invalidate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cached = ""
	b.meta = Meta{}
}

func (b *Builder) build(ctx context.Context) (prompt string, meta Meta) {
	start := b.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("pipeline: prompt synthesis panicked, using fallback", "panic", r)
			prompt, meta = fallback(start, fmt.Errorf("synthesis panic: %v", r))
		}
		meta.DurationMs = b.clock.Now().Sub(start).Milliseconds()
	}()

	var cvText string
	bundle := b.loader.Load(ctx, func(ctx context.Context, p content.Profile) {
		if p.CVURL != nil && b.cv != nil {
			cvText = b.cv.Extract(ctx, *p.CVURL)
		}
	})

	if err := bundle.Err(); err != nil {
		slog.Warn("pipeline: content unavailable, using fallback prompt", "error", err)
		return fallback(start, err)
	}
	if errors.Is(bundle.Profile.Degraded, cms.ErrNotConfigured) {
		return fallback(start, cms.ErrNotConfigured)
	}

	prompt = composer.Synthesize(bundle.Profile.Value, bundle.Experiences.Value, bundle.Projects(), cvText)
	meta = Meta{
		Source:     SourceSynthesized,
		Degraded:   bundle.Degraded(),
		CVIncluded: cvText != "" && !cvtext.IsSentinel(cvText),
		Tokens:     composer.EstimateTokens(prompt),
		BuiltAt:    start,
	}
	slog.Debug("pipeline: prompt synthesized", "tokens", meta.Tokens, "cv", meta.CVIncluded, "degraded", len(meta.Degraded))
	return prompt, meta
}

func fallback(at time.Time, reason error) (string, Meta) {
	return composer.FallbackPrompt, Meta{
		Source:  SourceFallback,
		Tokens:  composer.EstimateTokens(composer.FallbackPrompt),
		BuiltAt: at,
		Reason:  reason.Error(),
	}
}
