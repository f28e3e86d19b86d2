package encounter

import "fmt"

// Outcome classifies a resolved attack.
type Outcome int

const (
	OutcomeMiss Outcome = iota
	OutcomeHit
	OutcomeKnockout // target dropped to 0 HP
	OutcomeDead     // target dropped to 0 HP and is out for good
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMiss:
		return "miss"
	case OutcomeHit:
		return "hit"
	case OutcomeKnockout:
		return "knockout"
	case OutcomeDead:
		return "dead"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// ActionResult is a resolved attack reported back into the engine, either
// from the auto-act executor or from an external caller resolving a manual
// action.
type ActionResult struct {
	TargetID   string
	Outcome    Outcome
	Damage     int
	Critical   bool
	AttackRoll int // attack total compared against the armor class
	ArmorClass int // armor class the attack was resolved against
}

// EffectiveDamage returns the damage to apply for the result: critical hits
// deal double damage, misses deal none.
func (r ActionResult) EffectiveDamage() int {
	if r.Outcome == OutcomeMiss {
		return 0
	}
	if r.Critical {
		return r.Damage * 2
	}
	return r.Damage
}

// AttackReport is what applying an ActionResult changed, snapshotted under
// the encounter lock so callers can narrate without re-locking.
type AttackReport struct {
	ActorID     string
	ActorName   string
	TargetID    string
	TargetName  string
	Outcome     Outcome
	Damage      int
	TargetHP    int
	KnockedOut  bool // this action dropped the target to 0 HP
	ActorsTurn  bool // the acting combatant held the turn when it resolved
	Round       int
}
