package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/idna"
)

const (
	defaultCVTimeout  = 15 * time.Second
	defaultCVMaxBytes = 12 << 20 // 12MB
)

var pdfMagic = []byte("%PDF-")

// CVProxyConfig controls which hosts the PDF proxy may re-fetch from.
type CVProxyConfig struct {
	// CMSBaseURL is the content service origin; its host and media
	// subdomain are always allowed.
	CMSBaseURL string
	ExtraHosts []string

	HTTPClient *http.Client
	Timeout    time.Duration
	MaxBytes   int64
}

func (c CVProxyConfig) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return defaultCVTimeout
}

func (c CVProxyConfig) maxBytes() int64 {
	if c.MaxBytes > 0 {
		return c.MaxBytes
	}
	return defaultCVMaxBytes
}

// maxCVRedirects matches the net/http default.
const maxCVRedirects = 10

// redirectError reports a redirect hop to a host outside the allowlist.
type redirectError struct {
	host string
}

func (e *redirectError) Error() string {
	return fmt.Sprintf("redirect to host %s is not allowed", e.host)
}

// client returns a copy of the configured client that applies the host
// allowlist to every redirect hop.
func (c CVProxyConfig) client(allowed map[string]bool) *http.Client {
	base := http.DefaultClient
	if c.HTTPClient != nil {
		base = c.HTTPClient
	}
	hc := *base
	next := base.CheckRedirect
	hc.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxCVRedirects {
			return fmt.Errorf("stopped after %d redirects", maxCVRedirects)
		}
		if _, _, err := checkCVURL(req.URL.String(), allowed); err != nil {
			return &redirectError{host: req.URL.Host}
		}
		if next != nil {
			return next(req, via)
		}
		return nil
	}
	return &hc
}

// allowedHosts returns the normalized host allowlist.
func (c CVProxyConfig) allowedHosts() map[string]bool {
	hosts := make(map[string]bool)
	if u, err := url.Parse(c.CMSBaseURL); err == nil && u.Hostname() != "" {
		if h, err := normalizeHost(u.Hostname()); err == nil {
			hosts[h] = true
			if first, rest, ok := strings.Cut(h, "."); ok {
				hosts[first+".media."+rest] = true
			}
		}
	}
	for _, extra := range c.ExtraHosts {
		if h, err := normalizeHost(extra); err == nil {
			hosts[h] = true
		}
	}
	return hosts
}

func normalizeHost(h string) (string, error) {
	ascii, err := idna.Lookup.ToASCII(strings.TrimSuffix(strings.TrimSpace(h), "."))
	if err != nil {
		return "", err
	}
	return strings.ToLower(ascii), nil
}

func hasTraversal(raw string) bool {
	lower := strings.ToLower(raw)
	for _, seq := range []string{"..", "%2e%2e", "%2e.", ".%2e", `\`, "%5c"} {
		if strings.Contains(lower, seq) {
			return true
		}
	}
	return false
}

// checkCVURL validates a proxy target and returns the parsed URL and the HTTP
// status to use when it is rejected.
func checkCVURL(raw string, allowed map[string]bool) (*url.URL, int, error) {
	if raw == "" {
		return nil, http.StatusBadRequest, errors.New("url parameter is required")
	}
	if hasTraversal(raw) {
		return nil, http.StatusBadRequest, errors.New("url contains a path traversal sequence")
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return nil, http.StatusBadRequest, errors.New("url must be an absolute http(s) URL")
	}
	host, err := normalizeHost(u.Hostname())
	if err != nil {
		return nil, http.StatusBadRequest, fmt.Errorf("invalid host: %w", err)
	}
	if !allowed[host] {
		return nil, http.StatusForbidden, fmt.Errorf("host %s is not allowed", host)
	}
	return u, 0, nil
}

func handleCV(cfg CVProxyConfig) http.HandlerFunc {
	allowed := cfg.allowedHosts()
	client := cfg.client(allowed)

	return func(w http.ResponseWriter, r *http.Request) {
		target, code, err := checkCVURL(r.URL.Query().Get("url"), allowed)
		if err != nil {
			httpError(w, code, "invalid_request_error", "%v", err)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), cfg.timeout())
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid url: %v", err)
			return
		}
		req.Header.Set("Accept", "application/pdf")

		resp, err := client.Do(req)
		if err != nil {
			var redirect *redirectError
			if errors.As(err, &redirect) {
				slog.Warn("cv: redirect rejected", "from", target.Host, "to", redirect.host)
				httpError(w, http.StatusForbidden, "invalid_request_error", "%v", redirect)
				return
			}
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				httpError(w, http.StatusGatewayTimeout, "upstream_error", "document fetch timed out")
				return
			}
			slog.Warn("cv: fetch failed", "host", target.Host, "error", err)
			httpError(w, http.StatusBadGateway, "upstream_error", "document could not be fetched")
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			httpError(w, http.StatusBadGateway, "upstream_error", "document host answered %d", resp.StatusCode)
			return
		}

		limit := cfg.maxBytes()
		if resp.ContentLength > limit {
			httpError(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "document exceeds %d bytes", limit)
			return
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
		if err != nil {
			httpError(w, http.StatusBadGateway, "upstream_error", "reading document: %v", err)
			return
		}
		if int64(len(data)) > limit {
			httpError(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "document exceeds %d bytes", limit)
			return
		}
		if !bytes.HasPrefix(data, pdfMagic) {
			httpError(w, http.StatusBadGateway, "upstream_error", "document is not a PDF")
			return
		}

		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": pdfFilename(target)}))
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Header().Set("Cache-Control", "public, max-age=300")
		w.Write(data)
	}
}

func pdfFilename(u *url.URL) string {
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "cv.pdf"
	}
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		name += ".pdf"
	}
	return name
}
