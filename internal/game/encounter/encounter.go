// Package encounter implements the turn-based combat encounter core: the
// data model, session registry, initiative order, turn cursor, pacing math,
// rate limiting, and the advance gate that serialises turn progression
// against slow side effects. The package holds no collaborator callbacks
// and no timer policy; orchestration lives in internal/arena.
package encounter

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cory-johannsen/skirmish/internal/game/condition"
)

// State is the encounter lifecycle phase. Transitions only move forward:
// pending -> active -> ended.
type State int

const (
	StatePending State = iota
	StateActive
	StateEnded
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// EndReason records why an encounter terminated.
type EndReason string

const (
	ReasonNone            EndReason = ""
	ReasonMaxRounds       EndReason = "max_rounds"
	ReasonSingleCombatant EndReason = "single_combatant"
	ReasonAllDefending    EndReason = "all_defending"
	ReasonIdle            EndReason = "idle"
	ReasonFlee            EndReason = "flee"
	ReasonCapacityReclaim EndReason = "capacity_reclaim"
	ReasonStale           EndReason = "stale"
	ReasonDestroyed       EndReason = "destroyed"
)

// Encounter is one combat session scoped to a session key. All mutable state
// is guarded by mu; exported methods lock, unexported *Locked helpers assume
// the lock is held.
type Encounter struct {
	ID        string
	SessionID string
	GroupID   string
	CreatedAt time.Time

	mu            sync.Mutex
	state         State
	endReason     EndReason
	combatants    []*Combatant
	order         []string
	turnIndex     int
	round         int
	turnSeq       uint64
	startedAt     time.Time
	endedAt       time.Time
	lastActionAt  time.Time
	lastTurnStart time.Time
	manualActions int

	spokenThisRound map[string]struct{}
	lastSpeakerID   string

	conds  *condition.Registry
	gate   *Gate
	timers *TimerSet
}

// NewEncounter creates a pending encounter for the session key. conds
// supplies the definitions applied on knockouts; nil falls back to the
// built-in registry.
func NewEncounter(sessionID, groupID string, conds *condition.Registry) *Encounter {
	if conds == nil {
		conds = condition.DefaultRegistry()
	}
	return &Encounter{
		ID:              uuid.NewString(),
		SessionID:       sessionID,
		GroupID:         groupID,
		CreatedAt:       time.Now(),
		state:           StatePending,
		spokenThisRound: make(map[string]struct{}),
		conds:           conds,
		gate:            NewGate(),
		timers:          NewTimerSet(),
	}
}

// State returns the current lifecycle phase.
func (e *Encounter) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Active reports whether the encounter is accepting combat actions.
func (e *Encounter) Active() bool {
	return e.State() == StateActive
}

// Ended reports whether the encounter has terminated.
func (e *Encounter) Ended() bool {
	return e.State() == StateEnded
}

// EndReason returns the termination reason, or ReasonNone while live.
func (e *Encounter) EndReason() EndReason {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.endReason
}

// Round returns the current round number; 0 until initiative is rolled.
func (e *Encounter) Round() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.round
}

// TurnIndex returns the current cursor into the initiative order.
func (e *Encounter) TurnIndex() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.turnIndex
}

// TurnSeq returns the turn sequence counter. It increments on every cursor
// move and on end, letting timer callbacks detect they are stale.
func (e *Encounter) TurnSeq() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.turnSeq
}

// Order returns a copy of the initiative order.
func (e *Encounter) Order() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.order))
	copy(out, e.order)
	return out
}

// CurrentCombatantID returns the id holding the turn, or "" when not active.
func (e *Encounter) CurrentCombatantID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentIDLocked()
}

func (e *Encounter) currentIDLocked() string {
	if e.state != StateActive || len(e.order) == 0 {
		return ""
	}
	return e.order[e.turnIndex]
}

// IsTurn reports whether actorID currently holds the turn.
func (e *Encounter) IsTurn(actorID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentIDLocked() == actorID
}

// Combatant returns the combatant with the given id.
func (e *Encounter) Combatant(id string) (*Combatant, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.combatantLocked(id)
	return c, c != nil
}

func (e *Encounter) combatantLocked(id string) *Combatant {
	for _, c := range e.combatants {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// Combatants returns a snapshot of the combatant list. The pointed-to
// combatants are shared; callers must not mutate them.
func (e *Encounter) Combatants() []*Combatant {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Combatant, len(e.combatants))
	copy(out, e.combatants)
	return out
}

// Has reports whether actorID participates in the encounter.
func (e *Encounter) Has(actorID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.combatantLocked(actorID) != nil
}

// StartedAt returns when initiative was rolled; zero while pending.
func (e *Encounter) StartedAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.startedAt
}

// EndedAt returns when the encounter terminated; zero while live.
func (e *Encounter) EndedAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.endedAt
}

// LastActionAt returns when the last combat action resolved.
func (e *Encounter) LastActionAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastActionAt
}

// LastTurnStartAt returns when the current turn began.
func (e *Encounter) LastTurnStartAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastTurnStart
}

// Timers returns the encounter's cancellable timer set.
func (e *Encounter) Timers() *TimerSet {
	return e.timers
}

// BeginManual increments the manual-action counter. While it is positive the
// pacer reschedules turn starts instead of starting them, so auto actors
// never race a command-driven action.
func (e *Encounter) BeginManual() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.manualActions++
}

// EndManual decrements the manual-action counter, flooring at 0.
func (e *Encounter) EndManual() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.manualActions > 0 {
		e.manualActions--
	}
}

// ManualDepth returns the current manual-action counter.
func (e *Encounter) ManualDepth() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.manualActions
}

// NextSpeaker picks a banter speaker for the current round: a combatant that
// is still standing, has not spoken this round, and did not speak last. pick
// receives the candidate count and returns an index into it.
func (e *Encounter) NextSpeaker(pick func(n int) int) (*Combatant, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateActive {
		return nil, false
	}
	var candidates []*Combatant
	for _, c := range e.combatants {
		if c.Incapacitated() || c.ID == e.lastSpeakerID {
			continue
		}
		if _, spoken := e.spokenThisRound[c.ID]; spoken {
			continue
		}
		candidates = append(candidates, c)
	}
	if len(candidates) == 0 {
		return nil, false
	}
	c := candidates[pick(len(candidates))]
	e.spokenThisRound[c.ID] = struct{}{}
	e.lastSpeakerID = c.ID
	return c, true
}

// MarkAction records that a combat action resolved at now.
func (e *Encounter) MarkAction(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastActionAt = now
}

// ApplyAttack applies a resolved attack to the encounter: damage, knockout
// conditions, and action bookkeeping, all under one lock so the report is a
// consistent snapshot.
//
// Precondition: the encounter must be active and both actor and target must
// participate. Off-turn actions still apply; only turn advancement is gated
// on turn ownership.
func (e *Encounter) ApplyAttack(actorID string, res ActionResult, now time.Time) (AttackReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateActive {
		return AttackReport{}, fmt.Errorf("apply attack in %s: %w", e.state, ErrNotActive)
	}
	actor := e.combatantLocked(actorID)
	if actor == nil {
		return AttackReport{}, fmt.Errorf("apply attack from %q: %w", actorID, ErrUnknownCombatant)
	}
	target := e.combatantLocked(res.TargetID)
	if target == nil {
		return AttackReport{}, fmt.Errorf("apply attack on %q: %w", res.TargetID, ErrUnknownCombatant)
	}

	report := AttackReport{
		ActorID:    actor.ID,
		ActorName:  actor.Name,
		TargetID:   target.ID,
		TargetName: target.Name,
		Outcome:    res.Outcome,
		Round:      e.round,
		ActorsTurn: e.currentIDLocked() == actorID,
	}

	dmg := res.EffectiveDamage()
	if dmg > 0 {
		if target.ApplyDamage(dmg) {
			report.KnockedOut = true
			target.Defending = false
			e.applyKnockoutLocked(target, res.Outcome == OutcomeDead)
		}
		report.Damage = dmg
	}
	report.TargetHP = target.CurrentHP

	e.lastActionAt = now
	return report, nil
}

// applyKnockoutLocked attaches the unconscious condition, plus dead when the
// hit was lethal. Idempotent on re-application.
func (e *Encounter) applyKnockoutLocked(target *Combatant, lethal bool) {
	if def, ok := e.conds.Get(condition.Unconscious); ok {
		_ = target.Conditions.Apply(def, 1, -1)
	}
	if lethal {
		if def, ok := e.conds.Get(condition.Dead); ok {
			_ = target.Conditions.Apply(def, 1, -1)
		}
	}
}

// DefendCurrent marks the combatant holding the turn as defending and
// records the action. Used when a manual turn times out.
func (e *Encounter) DefendCurrent(now time.Time) (*Combatant, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateActive {
		return nil, ErrNotActive
	}
	id := e.currentIDLocked()
	c := e.combatantLocked(id)
	if c == nil {
		return nil, ErrUnknownCombatant
	}
	c.Defending = true
	e.lastActionAt = now
	return c, nil
}

// End terminates the encounter with the given reason. The first call wins;
// later calls are no-ops returning false. All pending timers are cancelled
// and the turn sequence bumps so in-flight callbacks abort.
//
// Postcondition: State() == StateEnded.
func (e *Encounter) End(reason EndReason, now time.Time) bool {
	e.mu.Lock()
	if e.state == StateEnded {
		e.mu.Unlock()
		return false
	}
	e.state = StateEnded
	e.endReason = reason
	e.endedAt = now
	e.turnSeq++
	e.mu.Unlock()

	// Outside the state lock: Timer.Stop never blocks on a running
	// callback, and callbacks revalidate state before touching us.
	e.timers.CancelAll()
	return true
}
