package arena

import (
	"fmt"

	"github.com/cory-johannsen/skirmish/internal/game/dice"
	"github.com/cory-johannsen/skirmish/internal/game/encounter"
)

// attackLine renders a resolved attack as a single narration sentence.
//
// Postcondition: Returns a non-empty string for every outcome.
func attackLine(r encounter.AttackReport) string {
	switch r.Outcome {
	case encounter.OutcomeMiss:
		return fmt.Sprintf("%s swings at %s and misses.", r.ActorName, r.TargetName)
	case encounter.OutcomeHit:
		return fmt.Sprintf("%s lands a hit on %s for %d damage (%d HP left).", r.ActorName, r.TargetName, r.Damage, r.TargetHP)
	case encounter.OutcomeKnockout:
		return fmt.Sprintf("%s drops %s with a brutal blow for %d damage.", r.ActorName, r.TargetName, r.Damage)
	default: // OutcomeDead
		return fmt.Sprintf("%s finishes %s off with %d damage.", r.ActorName, r.TargetName, r.Damage)
	}
}

// knockoutLine renders the follow-up line for a combatant going down.
func knockoutLine(r encounter.AttackReport) string {
	if r.Outcome == encounter.OutcomeDead {
		return fmt.Sprintf("%s collapses and does not stir again.", r.TargetName)
	}
	return fmt.Sprintf("%s crumples to the ground, out cold.", r.TargetName)
}

// endLine renders the closing narration for an ended encounter.
//
// Postcondition: Returns a non-empty string for every end reason.
func endLine(reason encounter.EndReason, survivors []string) string {
	switch reason {
	case encounter.ReasonMaxRounds:
		return "The fight drags on too long and breaks apart from sheer exhaustion."
	case encounter.ReasonSingleCombatant:
		if len(survivors) == 1 {
			return fmt.Sprintf("The dust settles. %s stands alone.", survivors[0])
		}
		return "The dust settles over an empty field."
	case encounter.ReasonAllDefending:
		return "Everyone left standing circles warily; nobody presses the attack."
	case encounter.ReasonIdle:
		return "The combatants lose interest and the fight fizzles out."
	case encounter.ReasonFlee:
		return "With the field abandoned, the fight is over."
	case encounter.ReasonCapacityReclaim:
		return "The fight is broken up to make room for a fresh quarrel."
	case encounter.ReasonStale:
		return "The long-forgotten fight is swept away."
	default:
		return "The fight is over."
	}
}

// stockBanter returns a fallback taunt for combatants with no voice of
// their own.
func stockBanter(src dice.Source, name string) string {
	lines := []string{
		"%s cracks their knuckles.",
		"%s spits in the dust.",
		"\"Is that all you've got?\" sneers %s.",
		"%s sizes up the opposition.",
		"\"You'll regret this,\" mutters %s.",
		"%s lets out a short, humorless laugh.",
	}
	return fmt.Sprintf(lines[src.Intn(len(lines))], name)
}
