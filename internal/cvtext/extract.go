// Package cvtext downloads a CV PDF and extracts bounded plain text from it.
// It is only imported by server code.
package cvtext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

const (
	DefaultTimeout  = 15 * time.Second
	DefaultMaxBytes = 12 << 20 // 12MB
	DefaultMaxChars = 25000

	TruncationMarker = "...[truncated]"
)

// Every failure is reported as one of these strings.
const (
	SentinelNoURL    = "[CV not provided]"
	SentinelTimeout  = "[CV text unavailable: request timed out]"
	SentinelFetch    = "[CV text unavailable: could not download CV]"
	SentinelTooLarge = "[CV text unavailable: file exceeds size limit]"
	SentinelEmpty    = "[CV text unavailable: no extractable text]"
	SentinelFailed   = "[Failed to extract CV text]"
)

var sentinels = map[string]bool{
	SentinelNoURL:    true,
	SentinelTimeout:  true,
	SentinelFetch:    true,
	SentinelTooLarge: true,
	SentinelEmpty:    true,
	SentinelFailed:   true,
}

// IsSentinel reports whether s is a failure placeholder rather than CV text.
func IsSentinel(s string) bool {
	return sentinels[s]
}

// Options tunes an Extractor. Zero values select the defaults.
type Options struct {
	Timeout    time.Duration
	MaxBytes   int64
	MaxChars   int
	HTTPClient *http.Client
}

type Extractor struct {
	httpClient *http.Client
	timeout    time.Duration
	maxBytes   int64
	maxChars   int
}

func New(opts Options) *Extractor {
	e := &Extractor{
		httpClient: opts.HTTPClient,
		timeout:    opts.Timeout,
		maxBytes:   opts.MaxBytes,
		maxChars:   opts.MaxChars,
	}
	if e.httpClient == nil {
		e.httpClient = &http.Client{}
	}
	if e.timeout <= 0 {
		e.timeout = DefaultTimeout
	}
	if e.maxBytes <= 0 {
		e.maxBytes = DefaultMaxBytes
	}
	if e.maxChars <= 0 {
		e.maxChars = DefaultMaxChars
	}
	return e
}

// extractionError pairs a cause with the sentinel shown in its place.
type extractionError struct {
	sentinel string
	err      error
}

func (e *extractionError) Error() string { return e.sentinel + ": " + e.err.Error() }
func (e *extractionError) Unwrap() error { return e.err }

// Extract downloads the PDF at pdfURL and returns its cleaned, truncated
// text. It never returns an error: failures yield a sentinel string, and the
// whole call is bounded by the extractor timeout.
func (e *Extractor) Extract(ctx context.Context, pdfURL string) string {
	if strings.TrimSpace(pdfURL) == "" {
		return SentinelNoURL
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	text, err := e.extract(ctx, pdfURL)
	if err != nil {
		var xe *extractionError
		if !errors.As(err, &xe) {
			xe = &extractionError{sentinel: SentinelFailed, err: err}
		}
		slog.Warn("cvtext: extraction failed", "url", pdfURL, "error", err)
		return xe.sentinel
	}
	slog.Debug("cvtext: extracted", "chars", utf8.RuneCountInString(text), "duration_ms", time.Since(start).Milliseconds())
	return text
}

func (e *Extractor) extract(ctx context.Context, pdfURL string) (string, error) {
	data, err := e.download(ctx, pdfURL)
	if err != nil {
		return "", err
	}

	raw, err := parse(data)
	if err != nil {
		return "", &extractionError{sentinel: SentinelFailed, err: err}
	}

	text := Clean(raw)
	if text == "" {
		return "", &extractionError{sentinel: SentinelEmpty, err: errors.New("no text in document")}
	}
	return Truncate(text, e.maxChars), nil
}

func (e *Extractor) download(ctx context.Context, pdfURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pdfURL, nil)
	if err != nil {
		return nil, &extractionError{sentinel: SentinelFetch, err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Accept", "application/pdf")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fetchFailure(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &extractionError{sentinel: SentinelFetch, err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	if resp.ContentLength > e.maxBytes {
		return nil, &extractionError{sentinel: SentinelTooLarge, err: fmt.Errorf("content length %d exceeds %d", resp.ContentLength, e.maxBytes)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBytes+1))
	if err != nil {
		return nil, fetchFailure(ctx, err)
	}
	if int64(len(data)) > e.maxBytes {
		return nil, &extractionError{sentinel: SentinelTooLarge, err: fmt.Errorf("body exceeds %d bytes", e.maxBytes)}
	}
	return data, nil
}

func fetchFailure(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &extractionError{sentinel: SentinelTimeout, err: err}
	}
	return &extractionError{sentinel: SentinelFetch, err: err}
}

// parse extracts per-page text. The PDF library panics on some malformed
// input, so panics are turned into errors.
func parse(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), []byte("%PDF-")) {
		return "", errors.New("not a PDF document")
	}

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("reading page %d: %w", i, err)
		}
		sb.WriteString(pageText)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

var (
	trailingSpace = regexp.MustCompile(`[ \t\f\v\r]+\n`)
	blankRuns     = regexp.MustCompile(`\n{3,}`)
)

// Clean strips whitespace before line breaks, collapses runs of blank lines
// to a single blank line and trims the result.
func Clean(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = trailingSpace.ReplaceAllString(s, "\n")
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// Truncate limits s to max characters and appends TruncationMarker when it
// cuts.
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + TruncationMarker
}
