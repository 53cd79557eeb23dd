// Package cms reads portfolio records from the headless content service.
package cms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout  = 10 * time.Second
	maxResponseSize = 8 << 20 // 8MB
	maxErrorBody    = 512
)

// Read-API resource paths.
const (
	ProfilePath        = "/api/profile"
	ExperiencesPath    = "/api/experiences"
	ProjectsPath       = "/api/projects"
	ContactMethodsPath = "/api/contact-methods"
)

// ErrNotConfigured is returned by Fetch when no base URL is set.
var ErrNotConfigured = errors.New("content service not configured")

// TransportError reports a failed or non-2xx exchange with the content
// service. Status is 0 when no response was received.
type TransportError struct {
	Endpoint string
	Status   int
	Body     string
	Cause    error
}

func (e *TransportError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("content service %s: %v", e.Endpoint, e.Cause)
	}
	if e.Body != "" {
		return fmt.Sprintf("content service %s: HTTP %d: %s", e.Endpoint, e.Status, e.Body)
	}
	return fmt.Sprintf("content service %s: HTTP %d", e.Endpoint, e.Status)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// Source is the read side of the content service used by the loaders.
type Source interface {
	Fetch(ctx context.Context, path string, q Query) (json.RawMessage, error)
	MediaURL(src string) string
}

// Client is an HTTP client for the content service read API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a client for baseURL. token is optional; when set it is
// sent as a bearer credential on every request.
func NewClient(baseURL, token string) *Client {
	return NewClientWithHTTP(baseURL, token, &http.Client{Timeout: defaultTimeout})
}

// NewClientWithHTTP creates a client using a caller-supplied http.Client.
func NewClientWithHTTP(baseURL, token string, hc *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: hc,
	}
}

// BaseURL returns the configured base URL without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// Configured reports whether a base URL is set.
func (c *Client) Configured() bool { return c.baseURL != "" }

// Fetch performs a GET against path with the encoded query and returns the
// raw JSON body. There are no retries.
func (c *Client) Fetch(ctx context.Context, path string, q Query) (json.RawMessage, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	endpoint := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if enc := q.Encode(); enc != "" {
		endpoint += "?" + enc
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Endpoint: path, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &TransportError{
			Endpoint: path,
			Status:   resp.StatusCode,
			Body:     strings.TrimSpace(string(snippet)),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, &TransportError{Endpoint: path, Status: resp.StatusCode, Cause: err}
	}
	if len(body) > maxResponseSize {
		return nil, fmt.Errorf("content service %s: response exceeds %d bytes", path, maxResponseSize)
	}
	return json.RawMessage(body), nil
}

// MediaURL qualifies a media path against the base URL. Absolute URLs are
// returned unchanged and protocol-relative ones get https.
func (c *Client) MediaURL(src string) string {
	return QualifyURL(c.baseURL, src)
}

// QualifyURL joins a relative media path onto base.
func QualifyURL(base, src string) string {
	src = strings.TrimSpace(src)
	if src == "" {
		return ""
	}
	if strings.HasPrefix(src, "//") {
		return "https:" + src
	}
	if u, err := url.Parse(src); err == nil && u.Scheme != "" && u.Host != "" {
		return src
	}
	if base == "" {
		return src
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(src, "/")
}
