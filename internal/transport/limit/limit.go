// Package limit caps how many new connections a listener accepts per window.
package limit

import (
	"sync"
	"time"
)

// Limiter is a fixed-window counter. A nil Limiter or one built with a
// non-positive limit allows everything.
type Limiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	counter int
	start   time.Time
	now     func() time.Time
}

// PerMinute allows up to limit events in each one-minute window.
func PerMinute(limit int) *Limiter {
	return New(limit, time.Minute)
}

// New allows up to limit events in each window.
func New(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow records one event and reports whether it fits the current window.
func (l *Limiter) Allow() bool {
	if l == nil || l.limit <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.start) >= l.window {
		l.start = now
		l.counter = 0
	}
	l.counter++
	return l.counter <= l.limit
}
