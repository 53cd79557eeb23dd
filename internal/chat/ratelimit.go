package chat

import (
	"fmt"
	"time"
)

const (
	DefaultWindow   = 60 * time.Second
	DefaultMaxSends = 5
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RateLimitError rejects a send locally. The server is never contacted.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: retry in %s", e.RetryAfter.Round(time.Second))
}

// Notice is the message shown to the user.
func (e *RateLimitError) Notice() string {
	secs := int(e.RetryAfter.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return fmt.Sprintf("You're sending messages too quickly. Please wait %d seconds before trying again.", secs)
}

// RateWindow is a sliding window of send timestamps. It is not safe for
// concurrent use; Session guards it.
type RateWindow struct {
	clock  Clock
	window time.Duration
	limit  int
	stamps []time.Time
}

func NewRateWindow(clock Clock, window time.Duration, limit int) *RateWindow {
	if clock == nil {
		clock = realClock{}
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if limit <= 0 {
		limit = DefaultMaxSends
	}
	return &RateWindow{clock: clock, window: window, limit: limit}
}

// Allow prunes timestamps older than the window, then either records a new
// send or returns a *RateLimitError.
func (w *RateWindow) Allow() error {
	now := w.clock.Now()
	cutoff := now.Add(-w.window)

	kept := w.stamps[:0]
	for _, ts := range w.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.stamps = kept

	if len(w.stamps) >= w.limit {
		return &RateLimitError{RetryAfter: w.stamps[0].Add(w.window).Sub(now)}
	}
	w.stamps = append(w.stamps, now)
	return nil
}

// Timestamps returns a copy of the recorded sends.
func (w *RateWindow) Timestamps() []time.Time {
	out := make([]time.Time, len(w.stamps))
	copy(out, w.stamps)
	return out
}

func (w *RateWindow) Reset() {
	w.stamps = nil
}
