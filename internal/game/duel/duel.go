// Package duel is the default action executor: straight d20 attack
// resolution between two combatants. The arena treats it as one
// implementation of a boundary interface, so chat-driven or scripted
// executors can replace it without touching the engine.
package duel

import (
	"github.com/cory-johannsen/skirmish/internal/game/condition"
	"github.com/cory-johannsen/skirmish/internal/game/dice"
	"github.com/cory-johannsen/skirmish/internal/game/encounter"
)

// DefendBonus is the armor class bonus a defending combatant enjoys until
// their next turn starts.
const DefendBonus = 2

// Executor resolves attacks with dice rolls. Damage follows a fixed
// expression (1d6 unarmed baseline) plus the attacker's dexterity modifier,
// floored at zero before the roll is added.
type Executor struct {
	roller *dice.Roller
	damage dice.Expression
}

// NewExecutor creates an executor rolling damage with the given expression.
// A zero-valued expression falls back to 1d6.
func NewExecutor(roller *dice.Roller, damage dice.Expression) *Executor {
	if damage.Sides < 2 {
		damage = dice.MustParse("1d6")
	}
	return &Executor{roller: roller, damage: damage}
}

// Attack rolls attacker vs defender and returns the outcome. The attack
// roll is d20 + the attacker's dexterity modifier, minus any condition
// penalty; the target number is the defender's armor class, +2 while
// defending. A natural 20 is a critical hit; the engine doubles critical
// damage when it applies the result.
//
// Precondition: attacker and defender are non-nil and distinct.
func (x *Executor) Attack(attacker, defender *encounter.Combatant) encounter.ActionResult {
	d20 := x.roller.Die(20)
	atkMod := attacker.DexMod - condition.AttackPenalty(attacker.Conditions)
	atkTotal := d20 + atkMod

	ac := defender.ArmorClass
	if defender.Defending {
		ac += DefendBonus
	}

	res := encounter.ActionResult{
		TargetID:   defender.ID,
		AttackRoll: atkTotal,
		ArmorClass: ac,
		Critical:   d20 == 20,
	}
	if atkTotal < ac && !res.Critical {
		res.Outcome = encounter.OutcomeMiss
		return res
	}

	dmgMod := attacker.DexMod
	if dmgMod < 0 {
		dmgMod = 0
	}
	roll, err := x.roller.Roll(x.damage)
	if err != nil {
		// The damage expression is validated at construction; a failed roll
		// still lands for the minimum.
		res.Damage = 1 + dmgMod
	} else {
		res.Damage = roll.Total() + dmgMod
	}

	dmg := res.Damage
	if res.Critical {
		dmg *= 2
	}
	res.Outcome = outcomeFor(defender, dmg)
	return res
}

// outcomeFor escalates a landed hit: a blow that would drop the defender is
// a knockout, and a knockout on a combatant already at zero HP is lethal.
func outcomeFor(defender *encounter.Combatant, dmg int) encounter.Outcome {
	switch {
	case defender.CurrentHP == 0:
		return encounter.OutcomeDead
	case dmg >= defender.CurrentHP:
		return encounter.OutcomeKnockout
	default:
		return encounter.OutcomeHit
	}
}

// Defend returns the defensive stance result for actor. The stance itself
// is recorded by the engine; the executor only reports the bonus.
func (x *Executor) Defend(actor *encounter.Combatant) int {
	return DefendBonus
}

// ChooseTarget picks the opponent an auto-mode combatant attacks: the
// living opponent with the lowest current HP, ties broken by roster order.
// Returns nil when no opponent stands.
func ChooseTarget(actor *encounter.Combatant, combatants []*encounter.Combatant) *encounter.Combatant {
	var target *encounter.Combatant
	for _, c := range combatants {
		if c.ID == actor.ID || c.Incapacitated() {
			continue
		}
		if target == nil || c.CurrentHP < target.CurrentHP {
			target = c
		}
	}
	return target
}
