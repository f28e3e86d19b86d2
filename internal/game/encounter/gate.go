package encounter

import (
	"context"
	"sync"
	"sync/atomic"
)

// Blocker is a pending side effect that may delay, but never indefinitely
// block, the next turn advance. Resolve is idempotent and safe to call from
// any goroutine.
type Blocker struct {
	once sync.Once
	done chan struct{}
}

// NewBlocker creates an unresolved blocker.
func NewBlocker() *Blocker {
	return &Blocker{done: make(chan struct{})}
}

// Resolve marks the side effect complete. Subsequent calls are no-ops.
func (b *Blocker) Resolve() {
	b.once.Do(func() { close(b.done) })
}

// Done returns a channel closed once the blocker resolves.
func (b *Blocker) Done() <-chan struct{} {
	return b.done
}

// Resolved reports whether Resolve has been called.
func (b *Blocker) Resolved() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

// Gate serialises turn advancement for one encounter. An action may resolve
// through two independent paths (timeout-driven auto-act or an externally
// reported result); whichever path wins the try-acquire advances, the loser
// backs off silently. Registered blockers are consumed by the winning path
// and awaited against a bounded deadline before the cursor moves.
type Gate struct {
	advancing atomic.Bool

	mu       sync.Mutex
	blockers []*Blocker
}

// NewGate creates an idle gate.
func NewGate() *Gate {
	return &Gate{}
}

// TryAcquire attempts to take the advance slot.
//
// Postcondition: returns true to exactly one caller until Release.
func (g *Gate) TryAcquire() bool {
	return g.advancing.CompareAndSwap(false, true)
}

// Release frees the advance slot. Callers pair it with TryAcquire in a
// defer so no error path strands the gate.
func (g *Gate) Release() {
	g.advancing.Store(false)
}

// Held reports whether an advance is in flight.
func (g *Gate) Held() bool {
	return g.advancing.Load()
}

// Add registers an already-created blocker for the next advance.
func (g *Gate) Add(b *Blocker) {
	if b == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.blockers = append(g.blockers, b)
}

// PreRegister creates, registers, and returns a blocker handle. Callers
// resolve it when their slow side effect completes; the bounded await means
// a handle that is never resolved cannot strand the turn.
func (g *Gate) PreRegister() *Blocker {
	b := NewBlocker()
	g.Add(b)
	return b
}

// take removes and returns every currently registered blocker.
func (g *Gate) take() []*Blocker {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := g.blockers
	g.blockers = nil
	return out
}

// Await consumes all currently registered blockers and waits for each until
// it resolves or ctx expires. It returns ctx.Err() when the deadline cut the
// wait short; the caller proceeds regardless, treating the side effect as
// best-effort.
func (g *Gate) Await(ctx context.Context) error {
	for _, b := range g.take() {
		select {
		case <-b.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// TryBeginAdvance attempts to take this encounter's advance slot.
func (e *Encounter) TryBeginAdvance() bool {
	return e.gate.TryAcquire()
}

// FinishAdvance releases the advance slot.
func (e *Encounter) FinishAdvance() {
	e.gate.Release()
}

// Advancing reports whether a turn advance is in flight.
func (e *Encounter) Advancing() bool {
	return e.gate.Held()
}

// AddBlocker registers a pending side effect that the next turn advance
// waits for, bounded by the media wait budget.
func (e *Encounter) AddBlocker(b *Blocker) {
	e.gate.Add(b)
}

// PreRegisterBlocker creates and registers a blocker before its side effect
// starts, returning the handle to resolve.
func (e *Encounter) PreRegisterBlocker() *Blocker {
	return e.gate.PreRegister()
}

// AwaitBlockers waits for the registered blockers as described on Gate.Await.
func (e *Encounter) AwaitBlockers(ctx context.Context) error {
	return e.gate.Await(ctx)
}
