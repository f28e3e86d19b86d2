package arena

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/game/encounter"
)

// watchdogPass runs one sweep over the manager's state: ended and stale
// encounters are reclaimed, the rate-limit and cooldown tables are pruned,
// and encounters whose pacing went quiet get a recovery nudge through the
// timeout handler.
func (m *Manager) watchdogPass(now time.Time) {
	type nudge struct {
		e   *encounter.Encounter
		seq uint64
	}
	var nudges []nudge

	m.combatMu.Lock()
	removed := m.registry.Sweep(now)
	for _, e := range removed {
		if !e.Ended() {
			m.finalizeLocked(e, encounter.ReasonStale)
		}
	}
	m.limiter.Purge(now)
	for id, until := range m.cooldowns {
		if now.After(until) {
			delete(m.cooldowns, id)
		}
	}
	for _, e := range m.registry.Snapshot() {
		if !e.Active() || e.Advancing() {
			continue
		}
		if m.stalledLocked(e, now) {
			nudges = append(nudges, nudge{e: e, seq: e.TurnSeq()})
		}
	}
	m.combatMu.Unlock()

	for _, n := range nudges {
		m.logger.Warn("encounter stalled, forcing the timeout handler",
			zap.String("session", n.e.SessionID),
			zap.Int("round", n.e.Round()),
		)
		m.onTurnTimeout(n.e, n.seq)
	}

	if len(removed) > 0 {
		m.logger.Debug("watchdog reclaimed encounters", zap.Int("count", len(removed)))
	}
}

// stalledLocked reports whether e's pacing has gone quiet: nothing armed
// and no activity for twice the turn timeout, or the last armed timestamp
// itself is that old.
//
// Precondition: combatMu is held.
func (m *Manager) stalledLocked(e *encounter.Encounter, now time.Time) bool {
	threshold := 2 * m.tun.TurnTimeout
	last := e.StartedAt()
	if t := e.LastActionAt(); t.After(last) {
		last = t
	}
	if t := e.LastTurnStartAt(); t.After(last) {
		last = t
	}
	if !e.Timers().Armed() && now.Sub(last) > threshold {
		return true
	}
	if armedAt := e.Timers().LastArmedAt(); !armedAt.IsZero() && now.Sub(armedAt) > threshold {
		return true
	}
	return false
}

// Watchdog periodically runs the manager's sweep-and-nudge pass. It
// implements server.Service: Start blocks until Stop.
type Watchdog struct {
	mgr      *Manager
	logger   *zap.Logger
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewWatchdog creates a Watchdog ticking at the manager's configured
// interval.
//
// Precondition: mgr and logger must be non-nil.
func NewWatchdog(mgr *Manager, logger *zap.Logger) *Watchdog {
	return &Watchdog{
		mgr:      mgr,
		logger:   logger,
		interval: mgr.tun.WatchdogInterval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the watchdog loop. Blocks until Stop is called.
func (w *Watchdog) Start() error {
	w.logger.Info("watchdog started", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return nil
		case <-ticker.C:
			w.mgr.watchdogPass(time.Now())
		}
	}
}

// Stop terminates the loop and waits for the in-flight pass to finish.
func (w *Watchdog) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.doneCh
}
