// Package ratelimit implements the fixed-window per-source limiter that sits
// in front of the tool API. State is process-local; workers behind one IP
// share one budget and no client-supplied identifier can partition the key.
package ratelimit

import (
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultWindow = 15 * time.Minute
	DefaultLimit  = 100

	sweepInterval = 5 * time.Minute
)

type window struct {
	start time.Time
	count int
}

// Decision is the outcome of one rate-limit check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration // only set when denied
}

// Limiter counts requests per key in fixed windows. The background sweep is
// tied to Start/Stop rather than package init so tests don't leak
// goroutines.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	window  time.Duration

	stopChan chan struct{}
	running  bool
	now      func() time.Time // injectable clock for tests
}

// New creates a limiter allowing limit requests per windowSize per key.
func New(limit int, windowSize time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if windowSize <= 0 {
		windowSize = DefaultWindow
	}
	return &Limiter{
		windows: make(map[string]*window),
		limit:   limit,
		window:  windowSize,
		now:     time.Now,
	}
}

// Check records a request for key and decides whether it is allowed.
func (l *Limiter) Check(key string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.window {
		l.windows[key] = &window{start: now, count: 1}
		return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit - 1}
	}

	if w.count >= l.limit {
		retry := l.window - now.Sub(w.start)
		slog.Warn("rate limited", "key", key, "retry_after", retry.Round(time.Second))
		return Decision{Allowed: false, Limit: l.limit, Remaining: 0, RetryAfter: retry}
	}

	w.count++
	return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit - w.count}
}

// Start launches the periodic sweep of expired windows.
func (l *Limiter) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return
	}
	l.stopChan = make(chan struct{})
	l.running = true
	go l.sweepLoop(l.stopChan)
}

// Stop halts the sweep. Idempotent.
func (l *Limiter) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		return
	}
	close(l.stopChan)
	l.running = false
}

func (l *Limiter) sweepLoop(stop chan struct{}) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for key, w := range l.windows {
		if now.Sub(w.start) >= l.window {
			delete(l.windows, key)
		}
	}
}
