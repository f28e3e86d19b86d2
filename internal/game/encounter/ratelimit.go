package encounter

import (
	"sync"
	"time"
)

// Limiter is a sliding-window action throttle keyed by actor id. Allow is a
// combined check-and-record: the call that would exceed the window maximum
// is rejected and leaves no trace. Safe for concurrent use.
type Limiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	hits   map[string][]time.Time
}

// NewLimiter creates a limiter admitting max actions per actor within any
// trailing window.
//
// Precondition: window > 0 and max > 0.
func NewLimiter(window time.Duration, max int) *Limiter {
	return &Limiter{
		window: window,
		max:    max,
		hits:   make(map[string][]time.Time),
	}
}

// Allow reports whether actor id may act at now, recording the action when
// admitted.
//
// Postcondition: at most max admissions per id within [now-window, now].
func (l *Limiter) Allow(id string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	kept := l.hits[id][:0]
	for _, t := range l.hits[id] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= l.max {
		l.hits[id] = kept
		return false
	}
	l.hits[id] = append(kept, now)
	return true
}

// Reset clears an actor's history, used after cooldowns expire.
//
// Postcondition: the next Allow(id) succeeds.
func (l *Limiter) Reset(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.hits, id)
}

// Purge drops every actor whose entire window has expired. The watchdog
// calls this on its sweep interval so idle actors do not accumulate.
func (l *Limiter) Purge(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	for id, times := range l.hits {
		live := false
		for _, t := range times {
			if t.After(cutoff) {
				live = true
				break
			}
		}
		if !live {
			delete(l.hits, id)
		}
	}
}

// Tracked returns the number of actors with recorded history.
func (l *Limiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hits)
}
