package encounter

import "errors"

// Sentinel errors for encounter state violations. Callers match these with
// errors.Is; the engine wraps them with session context at its boundaries.
var (
	// ErrNotFound is returned when no encounter exists for a session key.
	ErrNotFound = errors.New("encounter: not found")

	// ErrNotActive is returned when a mutation requires an active encounter.
	ErrNotActive = errors.New("encounter: not active")

	// ErrEnded is returned when an operation targets an ended encounter.
	ErrEnded = errors.New("encounter: already ended")

	// ErrAlreadyActive is returned when initiative is rolled twice.
	ErrAlreadyActive = errors.New("encounter: already active")

	// ErrNotTheirTurn is returned when an actor acts out of turn on an
	// operation that requires turn ownership (flee).
	ErrNotTheirTurn = errors.New("encounter: not their turn")

	// ErrAlreadyPresent is returned when adding a combatant twice.
	ErrAlreadyPresent = errors.New("encounter: combatant already present")

	// ErrUnknownCombatant is returned when an actor id is not part of the
	// encounter.
	ErrUnknownCombatant = errors.New("encounter: unknown combatant")

	// ErrNoCombatants is returned when activating an encounter with an
	// empty roster.
	ErrNoCombatants = errors.New("encounter: no combatants")

	// ErrOnCooldown is returned when an actor inside a knockout cooldown
	// window tries to enter combat.
	ErrOnCooldown = errors.New("encounter: actor on knockout cooldown")

	// ErrRateLimited is returned when the sliding-window limiter rejects
	// an action.
	ErrRateLimited = errors.New("encounter: rate limited")
)
