package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/folio/internal/content"
	"github.com/kalambet/folio/internal/pipeline"
	"github.com/kalambet/folio/internal/proxy"
	"github.com/kalambet/folio/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// PromptSource is implemented by *pipeline.Builder.
type PromptSource interface {
	SystemPrompt(ctx context.Context) (string, pipeline.Meta)
	Invalidate()
}

// LLM is implemented by *proxy.Client.
type LLM interface {
	Chat(ctx context.Context, req proxy.ChatRequest) ([]byte, error)
	Configured() bool
	Model() string
}

// ContentLoader is implemented by *content.Loader.
type ContentLoader interface {
	Load(ctx context.Context, hooks ...content.ProfileHook) content.Bundle
}

// Deps holds everything the HTTP handlers need. Store and AdminToken are
// optional.
type Deps struct {
	Prompt  PromptSource
	LLM     LLM
	Content ContentLoader
	Store   *storage.Store

	// LogInteractions records each relayed exchange to Store.
	LogInteractions bool
	// MaxTokens caps max_tokens forwarded upstream.
	MaxTokens int
	// RateLimit is relay requests per minute per client; 0 disables.
	RateLimit int
	Burst     int

	CV         CVProxyConfig
	AdminToken string
	TrustProxy bool
}

// NewHandler returns the public and owner-only HTTP API.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if deps.TrustProxy {
		r.Use(middleware.RealIP)
	}

	limiter := newClientLimiter(deps.RateLimit, deps.Burst)

	r.Get("/health", handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.With(limiter.middleware).Post("/chat", handleChat(deps))
		r.Get("/cv", handleCV(deps.CV))
		r.Get("/content", handleContent(deps))

		if deps.AdminToken != "" {
			r.Group(func(r chi.Router) {
				r.Use(BearerAuth(deps.AdminToken))
				r.Get("/prompt", handleGetPrompt(deps))
				r.Post("/prompt/refresh", handleRefreshPrompt(deps))
				if deps.Store != nil {
					r.Get("/interactions", handleListInteractions(deps))
					r.Get("/interactions/stats", handleInteractionStats(deps))
					r.Get("/interactions/{id}", handleGetInteraction(deps))
				}
			})
		}
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
