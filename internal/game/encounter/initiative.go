package encounter

import (
	"fmt"
	"time"

	"github.com/cory-johannsen/skirmish/internal/game/dice"
)

// RollInitiative sets each combatant's initiative to d20 + DEX modifier.
//
// Precondition: combatants and src must be non-nil.
func RollInitiative(combatants []*Combatant, src dice.Source) {
	for _, c := range combatants {
		c.Initiative = dice.D20(src) + c.DexMod
	}
}

// sortByInitiativeDesc sorts combatants in place, highest initiative first.
// Insertion sort with a strict comparison keeps ties in arrival order.
func sortByInitiativeDesc(combatants []*Combatant) {
	n := len(combatants)
	for i := 1; i < n; i++ {
		for j := i; j > 0 && combatants[j].Initiative > combatants[j-1].Initiative; j-- {
			combatants[j], combatants[j-1] = combatants[j-1], combatants[j]
		}
	}
}

// Activate promotes a pending encounter to active: assign runs for every
// combatant under the lock (stats and initiative resolution), the initiative
// order is built descending with ties in arrival order, the round counter
// starts at 1, and the cursor points at the order head.
//
// Precondition: state is pending and at least one combatant is present.
// Postcondition: State() == StateActive, Round() == 1, TurnIndex() == 0.
func (e *Encounter) Activate(now time.Time, assign func(c *Combatant)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateActive:
		return ErrAlreadyActive
	case StateEnded:
		return ErrEnded
	}
	if len(e.combatants) == 0 {
		return ErrNoCombatants
	}

	if assign != nil {
		for _, c := range e.combatants {
			assign(c)
		}
	}
	for _, c := range e.combatants {
		if c.MaxHP < 1 {
			c.SetStats(DefaultStats())
		}
	}

	sorted := make([]*Combatant, len(e.combatants))
	copy(sorted, e.combatants)
	sortByInitiativeDesc(sorted)
	e.order = e.order[:0]
	for _, c := range sorted {
		e.order = append(e.order, c.ID)
	}

	e.state = StateActive
	e.round = 1
	e.turnIndex = 0
	e.turnSeq++
	e.startedAt = now
	return nil
}

// TurnInfo snapshots the state a turn start needs outside the lock.
type TurnInfo struct {
	Seq         uint64
	CombatantID string
	Name        string
	Mode        Mode
	Round       int
}

// StartTurn begins the current combatant's turn: clears their defending
// stance and stamps the turn start time. The returned sequence number lets
// the timers armed for this turn detect staleness.
func (e *Encounter) StartTurn(now time.Time) (TurnInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateActive {
		return TurnInfo{}, ErrNotActive
	}
	c := e.combatantLocked(e.currentIDLocked())
	if c == nil {
		return TurnInfo{}, ErrUnknownCombatant
	}
	c.Defending = false
	e.lastTurnStart = now
	return TurnInfo{
		Seq:         e.turnSeq,
		CombatantID: c.ID,
		Name:        c.Name,
		Mode:        c.Mode,
		Round:       e.round,
	}, nil
}

// Advance reports what a turn advance did.
type Advance struct {
	NextID     string // combatant now holding the turn
	Round      int
	Wrapped    bool // cursor wrapped to the order head, incrementing Round
	MaxedOut   bool // the wrap pushed Round past the configured maximum
	AllSkipped bool // every combatant was skipped as incapacitated
}

// AdvanceTurn moves the cursor to the next combatant able to act. The cursor
// advances modulo the order length; a wrap increments the round, ticks
// round-scoped conditions, and resets the banter tracking. Combatants that
// are incapacitated or rejected by skip are passed over, bounded by one full
// lap so a fully incapacitated roster terminates with AllSkipped.
//
// When the wrap pushes the round past maxRounds the advance stops with
// MaxedOut set and no turn is handed out; the caller ends the encounter
// before anything else happens.
//
// Postcondition on success: 0 <= TurnIndex() < len(Order()).
func (e *Encounter) AdvanceTurn(now time.Time, maxRounds int, skip func(id string) bool) (Advance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateActive {
		return Advance{}, ErrNotActive
	}
	if len(e.order) == 0 {
		return Advance{}, ErrNoCombatants
	}

	// The cursor is moving: stale timers must not fire into the new turn.
	e.turnSeq++
	e.timers.CancelAll()

	adv := Advance{Round: e.round}
	for hops := 0; hops < len(e.order); hops++ {
		e.turnIndex = (e.turnIndex + 1) % len(e.order)
		if e.turnIndex == 0 {
			e.round++
			adv.Round = e.round
			adv.Wrapped = true
			e.wrapRoundLocked()
			if maxRounds > 0 && e.round > maxRounds {
				adv.MaxedOut = true
				return adv, nil
			}
		}
		id := e.order[e.turnIndex]
		c := e.combatantLocked(id)
		if c == nil || c.Incapacitated() {
			continue
		}
		if skip != nil && skip(id) {
			continue
		}
		adv.NextID = id
		return adv, nil
	}

	adv.AllSkipped = true
	return adv, nil
}

// wrapRoundLocked runs the bookkeeping a completed round owes: round-scoped
// condition durations tick down and the banter tracking resets.
func (e *Encounter) wrapRoundLocked() {
	for _, c := range e.combatants {
		c.Conditions.Tick()
	}
	e.spokenThisRound = make(map[string]struct{})
}

// Insert adds a combatant. Pending encounters simply append; active
// encounters require the combatant's initiative to be rolled already and
// rebuild the order with the new arrival slotted in, preserving the
// currently acting combatant's position.
//
// Precondition: the encounter has not ended and the actor is not already
// present.
func (e *Encounter) Insert(c *Combatant) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateEnded {
		return fmt.Errorf("insert %q: %w", c.ID, ErrEnded)
	}
	if e.combatantLocked(c.ID) != nil {
		return fmt.Errorf("insert %q: %w", c.ID, ErrAlreadyPresent)
	}

	e.combatants = append(e.combatants, c)
	if e.state != StateActive {
		return nil
	}

	currentID := e.currentIDLocked()
	sorted := make([]*Combatant, len(e.combatants))
	copy(sorted, e.combatants)
	sortByInitiativeDesc(sorted)
	e.order = e.order[:0]
	for _, cc := range sorted {
		e.order = append(e.order, cc.ID)
	}
	for i, id := range e.order {
		if id == currentID {
			e.turnIndex = i
			break
		}
	}
	return nil
}
