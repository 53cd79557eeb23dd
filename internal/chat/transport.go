package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kalambet/folio/internal/proxy"
)

const maxReplyBytes = 1 << 20

// Transport delivers a message list to the relay and returns the raw reply.
// A non-nil error means no HTTP response was received.
type Transport interface {
	Send(ctx context.Context, msgs []proxy.Message) (status int, body []byte, err error)
}

// HTTPTransport posts to the relay's chat endpoint.
type HTTPTransport struct {
	URL        string
	MaxTokens  int
	HTTPClient *http.Client
}

func NewHTTPTransport(url string) *HTTPTransport {
	return &HTTPTransport{
		URL:        url,
		HTTPClient: &http.Client{Timeout: 90 * time.Second},
	}
}

type relayRequest struct {
	Messages  []proxy.Message `json:"messages"`
	MaxTokens int             `json:"max_tokens,omitempty"`
}

func (t *HTTPTransport) Send(ctx context.Context, msgs []proxy.Message) (int, []byte, error) {
	body, err := json.Marshal(relayRequest{Messages: msgs, MaxTokens: t.MaxTokens})
	if err != nil {
		return 0, nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	hc := t.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("sending message: %w", err)
	}
	defer resp.Body.Close()

	reply, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("reading reply: %w", err)
	}
	return resp.StatusCode, reply, nil
}
