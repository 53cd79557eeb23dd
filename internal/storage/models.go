package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Interaction is one relayed chat exchange. Only the newest user message is
// kept, never the system prompt or the full reply.
type Interaction struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"createdAt"`
	UserQuery    string    `json:"userQuery"`
	Model        string    `json:"model"`
	Status       int       `json:"status"`
	LatencyMs    int64     `json:"latencyMs"`
	Error        string    `json:"error,omitempty"`
	PromptSource string    `json:"promptSource,omitempty"`
	ReplyChars   int       `json:"replyChars"`
}

// Failed reports whether the exchange did not produce a reply.
func (i Interaction) Failed() bool {
	return i.Status < 200 || i.Status > 299
}

// InteractionStats summarizes interactions since a point in time.
type InteractionStats struct {
	Total        int     `json:"total"`
	Failed       int     `json:"failed"`
	AvgLatencyMs float64 `json:"avgLatencyMs"`
}
