// Package narrator delivers encounter narration to spectators: a bounded
// feed for external delivery, a zap-backed narrator for log-only setups,
// and an optional Claude-styled narrator layered in front of either.
package narrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/cory-johannsen/skirmish/internal/arena"
)

// Feed routes narration to a Go channel, bridging the encounter engine to
// whatever consumes the play-by-play. Producers never block: when the
// buffer is full the event is dropped and an error reports it.
type Feed struct {
	events  chan arena.Narration
	mu      sync.Mutex
	closed  bool
	dropped int
}

var _ arena.Narrator = (*Feed)(nil)

// NewFeed creates a Feed with the given buffer size.
//
// Postcondition: returns a Feed with an open events channel.
func NewFeed(bufferSize int) *Feed {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Feed{
		events: make(chan arena.Narration, bufferSize),
	}
}

// Narrate enqueues the event without blocking.
//
// Postcondition: the event is on the channel, or an error reports that the
// feed is closed or full. A full feed drops the event.
func (f *Feed) Narrate(_ context.Context, ev arena.Narration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return fmt.Errorf("narration feed for %q is closed", ev.SessionID)
	}
	select {
	case f.events <- ev:
		return nil
	default:
		f.dropped++
		return fmt.Errorf("narration feed buffer full, dropped %s event", ev.Kind)
	}
}

// Events returns the read-only event channel. The consumer goroutine reads
// from it until Close.
func (f *Feed) Events() <-chan arena.Narration {
	return f.events
}

// Dropped returns how many events were lost to a full buffer.
func (f *Feed) Dropped() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}

// Close marks the feed as closed and closes the events channel.
//
// Postcondition: the events channel is closed. Further Narrate calls return
// an error.
func (f *Feed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.closed {
		f.closed = true
		close(f.events)
	}
	return nil
}

// Closed reports whether the feed has been closed.
func (f *Feed) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
