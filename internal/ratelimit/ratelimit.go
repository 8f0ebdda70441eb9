// Package ratelimit provides sliding-window request limits keyed by caller.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter decides whether a caller may make another request.
type Limiter interface {
	Allow(ctx context.Context, id string) (bool, error)
}

// Config is a window size and the number of requests allowed within it.
type Config struct {
	MaxRequests int
	Window      time.Duration
}

// DefaultConfig allows 10 requests per minute.
func DefaultConfig() Config {
	return Config{MaxRequests: 10, Window: time.Minute}
}

// SlidingWindow keeps a per-identifier log of accepted request times in
// memory. It is safe for concurrent use.
type SlidingWindow struct {
	cfg Config
	now func() time.Time

	mu   sync.Mutex
	logs map[string][]time.Time
}

// Option configures a SlidingWindow.
type Option func(*SlidingWindow)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(w *SlidingWindow) { w.now = now }
}

// NewSlidingWindow returns an empty limiter.
func NewSlidingWindow(cfg Config, opts ...Option) *SlidingWindow {
	w := &SlidingWindow{
		cfg:  cfg,
		now:  time.Now,
		logs: make(map[string][]time.Time),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Allow prunes entries older than the window, rejects when the remaining
// count has reached the maximum, and otherwise records the request.
func (w *SlidingWindow) Allow(_ context.Context, id string) (bool, error) {
	now := w.now()

	w.mu.Lock()
	defer w.mu.Unlock()

	log := prune(w.logs[id], now.Add(-w.cfg.Window))
	if len(log) >= w.cfg.MaxRequests {
		w.logs[id] = log
		return false, nil
	}
	w.logs[id] = append(log, now)
	return true, nil
}

// Cleanup prunes every log and forgets identifiers with no recent requests.
func (w *SlidingWindow) Cleanup() {
	cutoff := w.now().Add(-w.cfg.Window)

	w.mu.Lock()
	defer w.mu.Unlock()

	for id, log := range w.logs {
		log = prune(log, cutoff)
		if len(log) == 0 {
			delete(w.logs, id)
			continue
		}
		w.logs[id] = log
	}
}

// Len returns the number of tracked identifiers.
func (w *SlidingWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.logs)
}

// prune drops timestamps at or before cutoff. Logs are appended in time
// order, so the kept entries are a suffix.
func prune(log []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(log) && !log[i].After(cutoff) {
		i++
	}
	return log[i:]
}
