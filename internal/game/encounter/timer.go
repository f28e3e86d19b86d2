package encounter

import (
	"sync"
	"time"
)

// TimerKind names the timers an encounter can have armed.
type TimerKind int

const (
	// TimerSchedule delays the start of the next turn (pacing gap).
	TimerSchedule TimerKind = iota
	// TimerTurnTimeout bounds how long a turn may sit unresolved.
	TimerTurnTimeout
	// TimerAutoAct triggers the automatic action for auto-mode combatants.
	TimerAutoAct
)

func (k TimerKind) String() string {
	switch k {
	case TimerSchedule:
		return "schedule"
	case TimerTurnTimeout:
		return "turn_timeout"
	case TimerAutoAct:
		return "auto_act"
	default:
		return "unknown"
	}
}

// Timer fires a callback after a duration unless stopped. Safe for
// concurrent use. The callback runs on the timer goroutine; it must acquire
// whatever locks it needs itself.
type Timer struct {
	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// NewTimer creates and starts a timer that calls onFire after duration.
//
// Precondition: duration >= 0; onFire must not be nil.
func NewTimer(duration time.Duration, onFire func()) *Timer {
	t := &Timer{}
	t.timer = time.AfterFunc(duration, func() {
		t.mu.Lock()
		stopped := t.stopped
		t.mu.Unlock()
		if !stopped {
			onFire()
		}
	})
	return t
}

// Stop prevents the callback from firing. Safe to call multiple times. A
// callback already past its stopped check may still run; callers revalidate
// state inside callbacks rather than relying on Stop alone.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.timer.Stop()
}

// TimerSet owns every pending timer for one encounter, so cancelling them
// all on a turn change or end is a single operation. It also records when a
// timer was last armed; the watchdog reads that to spot stalls.
type TimerSet struct {
	mu          sync.Mutex
	active      map[TimerKind]*Timer
	lastArmedAt time.Time
}

// NewTimerSet creates an empty TimerSet.
func NewTimerSet() *TimerSet {
	return &TimerSet{active: make(map[TimerKind]*Timer)}
}

// Arm starts (or restarts) the timer of the given kind. Any previous timer
// of that kind is stopped first. The kind's slot clears itself right before
// onFire runs, so Armed() reflects only pending timers.
func (ts *TimerSet) Arm(kind TimerKind, d time.Duration, onFire func()) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if prev, ok := ts.active[kind]; ok {
		prev.Stop()
	}
	// The Timer is allocated before its callback can run, so the closure
	// always sees a fully built value.
	t := &Timer{}
	t.timer = time.AfterFunc(d, func() {
		t.mu.Lock()
		stopped := t.stopped
		t.mu.Unlock()
		if stopped {
			return
		}
		ts.clear(kind, t)
		onFire()
	})
	ts.active[kind] = t
	ts.lastArmedAt = time.Now()
}

// clear drops the slot for kind if it still holds t.
func (ts *TimerSet) clear(kind TimerKind, t *Timer) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if cur, ok := ts.active[kind]; ok && cur == t {
		delete(ts.active, kind)
	}
}

// Cancel stops the timer of the given kind, if armed.
func (ts *TimerSet) Cancel(kind TimerKind) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if t, ok := ts.active[kind]; ok {
		t.Stop()
		delete(ts.active, kind)
	}
}

// CancelAll stops every pending timer.
//
// Postcondition: Armed() == false.
func (ts *TimerSet) CancelAll() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for kind, t := range ts.active {
		t.Stop()
		delete(ts.active, kind)
	}
}

// Armed reports whether any timer is pending.
func (ts *TimerSet) Armed() bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.active) > 0
}

// LastArmedAt returns when a timer was last armed; zero if never.
func (ts *TimerSet) LastArmedAt() time.Time {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.lastArmedAt
}
