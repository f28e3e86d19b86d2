package arena

import "time"

// Tunables are the numeric knobs of the encounter engine. The zero value of
// any field is replaced with its default at construction, so callers only
// set what they mean to change.
type Tunables struct {
	// TurnTimeout bounds how long a turn may sit unresolved before the
	// timeout handler forces a resolution.
	TurnTimeout time.Duration
	// AutoActDelay is how long an auto-mode combatant waits into their turn
	// before acting.
	AutoActDelay time.Duration
	// MinTurnGap is the minimum pause between one action resolving and the
	// next turn starting.
	MinTurnGap time.Duration
	// RoundCooldown is the extra pause inserted when a new round begins.
	RoundCooldown time.Duration
	// MaxRounds ends any encounter whose round counter exceeds it.
	MaxRounds int
	// IdleAfter ends an encounter with no hostile action for this long.
	IdleAfter time.Duration
	// GroupCapacity bounds live encounters per group; the oldest is
	// reclaimed to make room.
	GroupCapacity int
	// StaleAfter is the age past which the sweep reclaims an encounter.
	StaleAfter time.Duration
	// RateLimitWindow and RateLimitMax shape the per-actor action throttle.
	RateLimitWindow time.Duration
	RateLimitMax    int
	// MediaWaitTimeout bounds how long a turn advance waits for pending
	// side-effect blockers.
	MediaWaitTimeout time.Duration
	// StatsTimeout bounds the parallel stats fetch during initiative.
	StatsTimeout time.Duration
	// KnockoutCooldown keeps a knocked-out actor from re-entering combat.
	KnockoutCooldown time.Duration
	// WatchdogInterval is the period of the sweep-and-nudge loop.
	WatchdogInterval time.Duration
	// FleeDestination is handed to the Mover when an escape succeeds.
	FleeDestination string
}

// DefaultTunables returns the stock pacing used when nothing is configured.
func DefaultTunables() Tunables {
	return Tunables{
		TurnTimeout:      30 * time.Second,
		AutoActDelay:     2 * time.Second,
		MinTurnGap:       1500 * time.Millisecond,
		RoundCooldown:    5 * time.Second,
		MaxRounds:        30,
		IdleAfter:        2 * time.Minute,
		GroupCapacity:    4,
		StaleAfter:       30 * time.Minute,
		RateLimitWindow:  10 * time.Second,
		RateLimitMax:     5,
		MediaWaitTimeout: 8 * time.Second,
		StatsTimeout:     5 * time.Second,
		KnockoutCooldown: 5 * time.Minute,
		WatchdogInterval: 15 * time.Second,
		FleeDestination:  "outskirts",
	}
}

// withDefaults fills any zero field from DefaultTunables.
func (t Tunables) withDefaults() Tunables {
	d := DefaultTunables()
	if t.TurnTimeout <= 0 {
		t.TurnTimeout = d.TurnTimeout
	}
	if t.AutoActDelay <= 0 {
		t.AutoActDelay = d.AutoActDelay
	}
	if t.MinTurnGap <= 0 {
		t.MinTurnGap = d.MinTurnGap
	}
	if t.RoundCooldown <= 0 {
		t.RoundCooldown = d.RoundCooldown
	}
	if t.MaxRounds <= 0 {
		t.MaxRounds = d.MaxRounds
	}
	if t.IdleAfter <= 0 {
		t.IdleAfter = d.IdleAfter
	}
	if t.GroupCapacity <= 0 {
		t.GroupCapacity = d.GroupCapacity
	}
	if t.StaleAfter <= 0 {
		t.StaleAfter = d.StaleAfter
	}
	if t.RateLimitWindow <= 0 {
		t.RateLimitWindow = d.RateLimitWindow
	}
	if t.RateLimitMax <= 0 {
		t.RateLimitMax = d.RateLimitMax
	}
	if t.MediaWaitTimeout <= 0 {
		t.MediaWaitTimeout = d.MediaWaitTimeout
	}
	if t.StatsTimeout <= 0 {
		t.StatsTimeout = d.StatsTimeout
	}
	if t.KnockoutCooldown <= 0 {
		t.KnockoutCooldown = d.KnockoutCooldown
	}
	if t.WatchdogInterval <= 0 {
		t.WatchdogInterval = d.WatchdogInterval
	}
	if t.FleeDestination == "" {
		t.FleeDestination = d.FleeDestination
	}
	return t
}
