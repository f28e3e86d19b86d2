package encounter

import (
	"fmt"
	"time"
)

// CheckEnd evaluates the termination rules without ending anything:
// max rounds exceeded, at most one combatant still standing, every standing
// combatant defending, or no action within idleAfter. The caller ends the
// encounter with the returned reason.
//
// idleAfter is time-based on purpose: idleness is measured from the last
// action (or the start), not from a round index.
func (e *Encounter) CheckEnd(now time.Time, maxRounds int, idleAfter time.Duration) (EndReason, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateActive {
		return ReasonNone, false
	}
	if maxRounds > 0 && e.round > maxRounds {
		return ReasonMaxRounds, true
	}

	standing := 0
	defending := 0
	for _, c := range e.combatants {
		if c.Incapacitated() {
			continue
		}
		standing++
		if c.Defending {
			defending++
		}
	}
	if standing <= 1 {
		return ReasonSingleCombatant, true
	}
	if defending == standing {
		return ReasonAllDefending, true
	}

	if idleAfter > 0 {
		ref := e.startedAt
		if e.lastActionAt.After(ref) {
			ref = e.lastActionAt
		}
		if !ref.IsZero() && now.Sub(ref) > idleAfter {
			return ReasonIdle, true
		}
	}
	return ReasonNone, false
}

// FleeResult reports a flee attempt: the escape check against the highest
// defense among living opponents, and what removal did to the roster.
type FleeResult struct {
	ActorID   string
	ActorName string
	Roll      int
	Mod       int
	Total     int
	DC        int
	Success   bool
	Standing  int // living combatants left after a successful removal
}

// ResolveFlee resolves an escape attempt for actorID with the given d20
// roll. Success (total >= DC) removes the actor from the combatant list and
// turn order; the cursor is adjusted so the caller's subsequent advance
// lands on the fleeing actor's successor. Failure records the action and
// leaves the roster intact; either way the attempt consumes the turn.
//
// Precondition: the encounter is active and it is actorID's turn.
func (e *Encounter) ResolveFlee(actorID string, roll int, now time.Time) (FleeResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateActive {
		return FleeResult{}, fmt.Errorf("flee by %q: %w", actorID, ErrNotActive)
	}
	actor := e.combatantLocked(actorID)
	if actor == nil {
		return FleeResult{}, fmt.Errorf("flee by %q: %w", actorID, ErrUnknownCombatant)
	}
	if e.currentIDLocked() != actorID {
		return FleeResult{}, fmt.Errorf("flee by %q: %w", actorID, ErrNotTheirTurn)
	}

	res := FleeResult{
		ActorID:   actorID,
		ActorName: actor.Name,
		Roll:      roll,
		Mod:       actor.DexMod,
		Total:     roll + actor.DexMod,
		DC:        e.fleeDCLocked(actorID),
	}
	res.Success = res.Total >= res.DC
	e.lastActionAt = now

	if !res.Success {
		return res, nil
	}

	e.removeLocked(actorID)
	// The cursor moved, so any timers armed for the old turn are void.
	e.timers.CancelAll()
	for _, c := range e.combatants {
		if !c.Incapacitated() {
			res.Standing++
		}
	}
	return res, nil
}

// fleeDCLocked is the escape difficulty: the highest passive defense
// (10 + DEX modifier) among living opponents. With no living opposition the
// base 10 applies and escape is nearly free.
func (e *Encounter) fleeDCLocked(actorID string) int {
	dc := 10
	for _, c := range e.combatants {
		if c.ID == actorID || c.Incapacitated() {
			continue
		}
		if v := 10 + c.DexMod; v > dc {
			dc = v
		}
	}
	return dc
}

// removeLocked drops id from the combatant list and turn order, keeping the
// cursor consistent: removing the current holder parks the cursor on the
// predecessor so the next advance lands on the natural successor.
func (e *Encounter) removeLocked(id string) {
	for i, c := range e.combatants {
		if c.ID == id {
			e.combatants = append(e.combatants[:i], e.combatants[i+1:]...)
			break
		}
	}
	for i, oid := range e.order {
		if oid != id {
			continue
		}
		e.order = append(e.order[:i], e.order[i+1:]...)
		if len(e.order) == 0 {
			e.turnIndex = 0
			break
		}
		switch {
		case i < e.turnIndex:
			e.turnIndex--
		case i == e.turnIndex:
			e.turnIndex = (e.turnIndex - 1 + len(e.order)) % len(e.order)
		}
		break
	}
	e.turnSeq++
}
