package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/folio/internal/proxy"
)

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeTransport replies with a fixed status and body and records requests.
type fakeTransport struct {
	mu     sync.Mutex
	status int
	body   string
	err    error
	calls  [][]proxy.Message
	block  chan struct{}
}

func okTransport() *fakeTransport {
	return &fakeTransport{status: 200, body: `{"choices":[{"message":{"role":"assistant","content":"Hi there"}}]}`}
}

func (f *fakeTransport) Send(_ context.Context, msgs []proxy.Message) (int, []byte, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, msgs)
	return f.status, []byte(f.body), f.err
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestSend_Success(t *testing.T) {
	tr := okTransport()
	var seen []Message
	s := NewSession(tr, OnChange(func(m Message) { seen = append(seen, m) }))

	reply, err := s.Send(context.Background(), "  hello  ")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if reply.Content != "Hi there" || reply.IsUser {
		t.Errorf("reply = %+v", reply)
	}

	hist := s.History()
	if len(hist) != 2 || !hist[0].IsUser || hist[0].Content != "hello" || hist[1].IsUser {
		t.Fatalf("history = %+v", hist)
	}
	if hist[0].ID == "" || hist[0].ID == hist[1].ID {
		t.Errorf("message ids = %q, %q", hist[0].ID, hist[1].ID)
	}
	if len(seen) != 2 {
		t.Errorf("OnChange saw %d messages, want 2", len(seen))
	}
	if s.State() != Idle {
		t.Errorf("State = %v, want idle", s.State())
	}
}

func TestSend_AssemblesFullHistory(t *testing.T) {
	tr := okTransport()
	s := NewSession(tr)

	s.Send(context.Background(), "first")
	s.Send(context.Background(), "second")

	if tr.callCount() != 2 {
		t.Fatalf("calls = %d, want 2", tr.callCount())
	}
	got := tr.calls[1]
	want := []proxy.Message{
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "Hi there"},
		{Role: "user", Content: "second"},
	}
	if len(got) != len(want) {
		t.Fatalf("sent %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("msg[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
	for _, m := range got {
		if m.Role == "system" {
			t.Error("client attached a system message")
		}
	}
}

func TestSend_RateWindow(t *testing.T) {
	clock := &mockClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	tr := okTransport()
	s := NewSession(tr, WithClock(clock))

	for i := range 5 {
		if _, err := s.Send(context.Background(), "hi"); err != nil {
			t.Fatalf("send %d: %v", i+1, err)
		}
		clock.Advance(2 * time.Second)
	}

	_, err := s.Send(context.Background(), "one too many")
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("6th send error = %v, want *RateLimitError", err)
	}
	if rl.Notice() == "" || rl.RetryAfter <= 0 {
		t.Errorf("RateLimitError = %+v", rl)
	}
	if tr.callCount() != 5 {
		t.Errorf("transport calls = %d, want 5", tr.callCount())
	}
	if n := len(s.History()); n != 10 {
		t.Errorf("history length = %d, want 10 (rejected send not appended)", n)
	}

	clock.Advance(61 * time.Second)
	if _, err := s.Send(context.Background(), "later"); err != nil {
		t.Fatalf("send after window: %v", err)
	}
	stamps := s.RateTimestamps()
	if len(stamps) != 1 || !stamps[0].Equal(clock.Now()) {
		t.Errorf("window = %v, want only the new send", stamps)
	}
}

func TestSend_EmptyObjectIsFailure(t *testing.T) {
	tr := &fakeTransport{status: 200, body: `{}`}
	s := NewSession(tr)

	_, err := s.Send(context.Background(), "hello")
	var se *SendError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *SendError", err)
	}
	if se.Notice() != GenericFailureNotice {
		t.Errorf("Notice = %q", se.Notice())
	}
	hist := s.History()
	if len(hist) != 1 || !hist[0].IsUser {
		t.Errorf("history = %+v, want only the optimistic user message", hist)
	}
}

func TestSend_FailureModes(t *testing.T) {
	tests := []struct {
		name string
		tr   *fakeTransport
	}{
		{"network error", &fakeTransport{err: errors.New("connection refused")}},
		{"server error", &fakeTransport{status: 502, body: `{"error":{"message":"bad gateway"}}`}},
		{"unparsable body", &fakeTransport{status: 200, body: `<html>`}},
		{"array body", &fakeTransport{status: 200, body: `[{"choices":[]}]`}},
		{"choices wrong type", &fakeTransport{status: 200, body: `{"choices":"nope"}`}},
		{"null choices", &fakeTransport{status: 200, body: `{"choices":null}`}},
		{"object choices", &fakeTransport{status: 200, body: `{"choices":{"message":{"content":"hi"}}}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession(tt.tr)
			_, err := s.Send(context.Background(), "hello")
			var se *SendError
			if !errors.As(err, &se) {
				t.Fatalf("error = %v, want *SendError", err)
			}
			if len(s.History()) != 1 {
				t.Errorf("history = %+v, want only user message", s.History())
			}
			if s.State() != Idle {
				t.Errorf("State = %v, want idle after failure", s.State())
			}
		})
	}
}

func TestSend_EmptyChoiceContent(t *testing.T) {
	s := NewSession(&fakeTransport{status: 200, body: `{"choices":[]}`})

	reply, err := s.Send(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if reply.Content != EmptyReplyText {
		t.Errorf("reply = %q, want %q", reply.Content, EmptyReplyText)
	}
}

func TestSend_EmptyAndBusy(t *testing.T) {
	tr := okTransport()
	tr.block = make(chan struct{})
	s := NewSession(tr)

	if _, err := s.Send(context.Background(), "   "); !errors.Is(err, ErrEmpty) {
		t.Errorf("blank send error = %v, want ErrEmpty", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.Send(context.Background(), "first")
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for s.State() != Sending {
		if time.Now().After(deadline) {
			t.Fatal("session never entered sending state")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := s.Send(context.Background(), "second"); !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent send error = %v, want ErrBusy", err)
	}

	close(tr.block)
	if err := <-done; err != nil {
		t.Fatalf("first send: %v", err)
	}
	if tr.callCount() != 1 {
		t.Errorf("transport calls = %d, want 1", tr.callCount())
	}
	if n := len(s.RateTimestamps()); n != 1 {
		t.Errorf("rate window = %d entries, want 1", n)
	}
}

func TestSetDraftAndReset(t *testing.T) {
	s := NewSession(okTransport())

	s.SetDraft("typing")
	if s.State() != Composing {
		t.Errorf("State = %v, want composing", s.State())
	}
	s.SetDraft("")
	if s.State() != Idle {
		t.Errorf("State = %v, want idle", s.State())
	}

	s.Send(context.Background(), "hello")
	s.Reset()
	if len(s.History()) != 0 || len(s.RateTimestamps()) != 0 {
		t.Error("Reset left history or rate window behind")
	}
}

func TestHTTPTransport(t *testing.T) {
	var got relayRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("request = %s %q", r.Method, r.Header.Get("Content-Type"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte(`{"error":{"message":"short and stout"}}`))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL + "/api/chat")
	tr.MaxTokens = 200
	status, body, err := tr.Send(context.Background(), []proxy.Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if status != http.StatusTeapot || relayMessage(body) != "short and stout" {
		t.Errorf("status = %d, body = %s", status, body)
	}
	if got.MaxTokens != 200 || len(got.Messages) != 1 {
		t.Errorf("relay saw %+v", got)
	}
}
