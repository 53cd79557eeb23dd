// Package chat is the visitor-side conversation controller: message history,
// send state and the sliding-window rate limit.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/folio/internal/proxy"
)

// State is the session's send state.
type State int

const (
	Idle State = iota
	Composing
	Sending
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Composing:
		return "composing"
	case Sending:
		return "sending"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var (
	ErrBusy  = errors.New("a message is already being sent")
	ErrEmpty = errors.New("message is empty")
)

const (
	// GenericFailureNotice is shown for every failed exchange.
	GenericFailureNotice = "Sorry, I couldn't get a response right now. Please try again in a moment."
	// EmptyReplyText stands in for an accepted reply without content.
	EmptyReplyText = "Sorry, I don't have an answer to that."
)

// SendError is a failed exchange. Details stay in Err; users see Notice.
type SendError struct {
	Status int
	Err    error
}

func (e *SendError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("chat send failed (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("chat send failed: %v", e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

func (e *SendError) Notice() string { return GenericFailureNotice }

// Message is one entry in the visible history. It is never modified after
// creation.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	IsUser    bool      `json:"isUser"`
	Timestamp time.Time `json:"timestamp"`
}

// Session owns one conversation. Methods are safe for concurrent use; at most
// one send is in flight at a time.
type Session struct {
	transport Transport
	clock     Clock
	onChange  func(Message)
	rateSpan  time.Duration
	rateLimit int

	mu      sync.Mutex
	state   State
	draft   string
	history []Message
	window  *RateWindow
}

type Option func(*Session)

// WithClock replaces the clock used for timestamps and rate limiting.
func WithClock(c Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithRateLimit overrides the default 5 sends per 60 seconds.
func WithRateLimit(window time.Duration, limit int) Option {
	return func(s *Session) { s.rateSpan, s.rateLimit = window, limit }
}

// OnChange registers a callback invoked after every history append.
func OnChange(fn func(Message)) Option {
	return func(s *Session) { s.onChange = fn }
}

func NewSession(t Transport, opts ...Option) *Session {
	s := &Session{transport: t, clock: realClock{}}
	for _, opt := range opts {
		opt(s)
	}
	s.window = NewRateWindow(s.clock, s.rateSpan, s.rateLimit)
	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetDraft records what the user is typing.
func (s *Session) SetDraft(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = text
	if s.state == Sending {
		return
	}
	if strings.TrimSpace(text) == "" {
		s.state = Idle
	} else {
		s.state = Composing
	}
}

// History returns a copy of the conversation so far.
func (s *Session) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.history))
	copy(out, s.history)
	return out
}

// RateTimestamps returns the sends currently counted by the rate window.
func (s *Session) RateTimestamps() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window.Timestamps()
}

// Reset clears history, draft and the rate window.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
	s.draft = ""
	s.state = Idle
	s.window.Reset()
}

// Send submits text. The user message is appended before the network call;
// the assistant reply only when the relay answers with a 2xx JSON object
// carrying choices. Failures return *RateLimitError, *SendError, ErrBusy or
// ErrEmpty.
func (s *Session) Send(ctx context.Context, text string) (Message, error) {
	text = strings.TrimSpace(text)

	s.mu.Lock()
	if s.state == Sending {
		s.mu.Unlock()
		return Message{}, ErrBusy
	}
	if text == "" {
		s.mu.Unlock()
		return Message{}, ErrEmpty
	}
	if err := s.window.Allow(); err != nil {
		s.mu.Unlock()
		return Message{}, err
	}

	outgoing := make([]proxy.Message, 0, len(s.history)+1)
	for _, m := range s.history {
		outgoing = append(outgoing, toWire(m))
	}
	userMsg := s.newMessage(text, true)
	outgoing = append(outgoing, toWire(userMsg))
	s.history = append(s.history, userMsg)
	s.state = Sending
	s.draft = ""
	s.mu.Unlock()
	s.notify(userMsg)

	reply, err := s.exchange(ctx, outgoing)

	s.mu.Lock()
	s.state = Idle
	if err != nil {
		s.mu.Unlock()
		return Message{}, err
	}
	assistant := s.newMessage(reply, false)
	s.history = append(s.history, assistant)
	s.mu.Unlock()
	s.notify(assistant)

	return assistant, nil
}

func (s *Session) exchange(ctx context.Context, msgs []proxy.Message) (string, error) {
	status, body, err := s.transport.Send(ctx, msgs)
	if err != nil {
		return "", &SendError{Status: status, Err: err}
	}
	if status < 200 || status > 299 {
		return "", &SendError{Status: status, Err: fmt.Errorf("relay answered %d: %s", status, relayMessage(body))}
	}
	return parseReply(status, body)
}

// parseReply accepts only a JSON object whose choices field is an array.
// Unparsable JSON counts as no body; a null choices counts as missing.
func parseReply(status int, body []byte) (string, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		obj = nil
	}
	raw, ok := obj["choices"]
	if !ok || !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("[")) {
		return "", &SendError{Status: status, Err: errors.New("reply has no choices")}
	}

	var resp proxy.ChatResponse
	if err := json.Unmarshal(raw, &resp.Choices); err != nil {
		return "", &SendError{Status: status, Err: fmt.Errorf("decoding choices: %w", err)}
	}
	if content := resp.Content(); content != "" {
		return content, nil
	}
	return EmptyReplyText, nil
}

func relayMessage(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return "no error message"
}

func (s *Session) newMessage(content string, isUser bool) Message {
	return Message{
		ID:        uuid.NewString(),
		Content:   content,
		IsUser:    isUser,
		Timestamp: s.clock.Now(),
	}
}

func (s *Session) notify(m Message) {
	if s.onChange != nil {
		s.onChange(m)
	}
}

func toWire(m Message) proxy.Message {
	role := "assistant"
	if m.IsUser {
		role = "user"
	}
	return proxy.Message{Role: role, Content: m.Content}
}
