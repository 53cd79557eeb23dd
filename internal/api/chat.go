package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/kalambet/folio/internal/composer"
	"github.com/kalambet/folio/internal/pipeline"
	"github.com/kalambet/folio/internal/proxy"
	"github.com/kalambet/folio/internal/storage"
)

const (
	defaultMaxTokens  = 1000
	maxLoggedQueryLen = 500
)

type chatMessage struct {
	Role    string `json:"role" validate:"required,oneof=user assistant system"`
	Content string `json:"content" validate:"required,max=8000"`
}

type chatRequest struct {
	Messages  []chatMessage `json:"messages" validate:"required,min=1,max=50,dive"`
	MaxTokens *int          `json:"max_tokens" validate:"omitempty,min=1"`
}

// ValidationError describes a malformed relay request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validateChatRequest(req chatRequest) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Reason: err.Error()}
	}
	fe := verrs[0]
	field := strings.TrimPrefix(fe.Namespace(), "chatRequest.")
	switch fe.Tag() {
	case "required":
		if field == "messages" {
			return &ValidationError{Field: field, Reason: "is required and must not be empty"}
		}
		return &ValidationError{Field: field, Reason: "is required"}
	case "min":
		if field == "messages" {
			return &ValidationError{Field: field, Reason: "must not be empty"}
		}
		return &ValidationError{Field: field, Reason: "must be at least " + fe.Param()}
	case "max":
		return &ValidationError{Field: field, Reason: "must be at most " + fe.Param()}
	case "oneof":
		return &ValidationError{Field: field, Reason: "must be one of " + fe.Param()}
	}
	return &ValidationError{Field: field, Reason: "is invalid"}
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		if deps.LLM == nil || !deps.LLM.Configured() {
			slog.Error("chat: LLM credential missing, set FOLIO_LLM_API_KEY")
			httpError(w, http.StatusInternalServerError, "config_error", "chat is not configured on this server")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if err := validateChatRequest(req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		prompt, meta := deps.Prompt.SystemPrompt(r.Context())

		incoming := make([]proxy.Message, len(req.Messages))
		for i, m := range req.Messages {
			incoming[i] = proxy.Message{Role: m.Role, Content: m.Content}
		}
		upstream := proxy.ChatRequest{
			Messages:  composer.Compose(incoming, prompt),
			MaxTokens: clampMaxTokens(req.MaxTokens, deps.MaxTokens),
		}

		body, err := deps.LLM.Chat(r.Context(), upstream)
		status := http.StatusOK
		var errMsg string
		if err != nil {
			status, errMsg = upstreamFailure(err)
			slog.Warn("chat: upstream failed", "status", status, "error", err)
		}

		recordInteraction(deps, storage.Interaction{
			ID:           uuid.NewString(),
			CreatedAt:    start,
			UserQuery:    lastUserQuery(incoming),
			Model:        deps.LLM.Model(),
			Status:       status,
			LatencyMs:    time.Since(start).Milliseconds(),
			Error:        errMsg,
			PromptSource: meta.Source,
			ReplyChars:   replyChars(body),
		})

		if err != nil {
			httpError(w, status, "upstream_error", "%s", errMsg)
			return
		}

		slog.Debug("chat: relayed", "messages", len(upstream.Messages), "prompt_source", meta.Source,
			"duration_ms", time.Since(start).Milliseconds())
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}
}

// upstreamFailure maps an LLM error to the status and message sent to the
// client. Provider errors keep their status; anything else is a 502.
func upstreamFailure(err error) (int, string) {
	var ue *proxy.UpstreamError
	if errors.As(err, &ue) && ue.Status >= 400 && ue.Status <= 599 {
		msg := ue.Message
		if msg == "" {
			msg = http.StatusText(ue.Status)
		}
		return ue.Status, msg
	}
	return http.StatusBadGateway, "the assistant is unreachable right now"
}

func clampMaxTokens(requested *int, ceiling int) int {
	if ceiling <= 0 {
		ceiling = defaultMaxTokens
	}
	if requested == nil || *requested > ceiling {
		return ceiling
	}
	return *requested
}

func lastUserQuery(msgs []proxy.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			q := msgs[i].Content
			if utf8.RuneCountInString(q) > maxLoggedQueryLen {
				q = string([]rune(q)[:maxLoggedQueryLen])
			}
			return q
		}
	}
	return ""
}

func replyChars(body []byte) int {
	if len(body) == 0 {
		return 0
	}
	var resp proxy.ChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0
	}
	return utf8.RuneCountInString(resp.Content())
}

// recordInteraction is best effort: a logging failure never fails the
// request.
func recordInteraction(deps Deps, i storage.Interaction) {
	if deps.Store == nil || !deps.LogInteractions {
		return
	}
	if err := deps.Store.SaveInteraction(i); err != nil {
		slog.Warn("chat: failed to record interaction", "error", err)
	}
}

func handleGetPrompt(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		prompt, meta := deps.Prompt.SystemPrompt(r.Context())
		writeJSON(w, http.StatusOK, struct {
			Prompt string        `json:"prompt"`
			Meta   pipeline.Meta `json:"meta"`
		}{prompt, meta})
	}
}

func handleRefreshPrompt(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Prompt.Invalidate()
		_, meta := deps.Prompt.SystemPrompt(r.Context())
		writeJSON(w, http.StatusOK, meta)
	}
}
