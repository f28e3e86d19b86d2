// Package dice provides the randomness abstraction and roll-result types for
// the Skirmish encounter engine. Every roll the engine makes flows through a
// Source so tests can substitute deterministic sequences.
package dice

import "fmt"

// RollResult holds the full audit trail for a single dice roll evaluation.
//
// Postcondition: Total() == sum(Dice) + Modifier.
type RollResult struct {
	Expression string // original expression string, e.g. "2d6+3"
	Dice       []int  // individual die results before modifier
	Modifier   int    // flat modifier (may be negative)
}

// Total returns the sum of all die results plus the modifier.
//
// Postcondition: return value == sum(r.Dice) + r.Modifier.
func (r RollResult) Total() int {
	total := r.Modifier
	for _, d := range r.Dice {
		total += d
	}
	return total
}

// String returns a human-readable audit string in the format:
//
//	"2d6+3 → [4 5] +3 = 12"
//
// Precondition: r.Expression is non-empty.
func (r RollResult) String() string {
	if r.Expression == "" {
		panic("dice: RollResult.String() precondition violated: Expression must be non-empty")
	}
	return fmt.Sprintf("%s → %v %+d = %d", r.Expression, r.Dice, r.Modifier, r.Total())
}

// Source is the randomness provider for dice rolls.
//
// Implementations MUST be safe for concurrent use.
type Source interface {
	// Intn returns a non-negative random int in [0, n).
	//
	// Precondition: n > 0.
	Intn(n int) int
}

// RollDie rolls a single die with the given number of sides.
//
// Precondition: sides >= 2, src non-nil.
// Postcondition: return value is in [1, sides].
func RollDie(src Source, sides int) int {
	if sides < 2 {
		panic("dice: RollDie called with sides < 2")
	}
	return src.Intn(sides) + 1
}

// D20 rolls a single twenty-sided die. Initiative, attacks, and flee contests
// all resolve on a d20.
//
// Postcondition: return value is in [1, 20].
func D20(src Source) int {
	return RollDie(src, 20)
}
