package condition

// Incapacitated reports whether any active condition takes the holder out of
// the turn rotation. Unconscious and dead combatants are skipped by the
// scheduler until the encounter ends.
func Incapacitated(s *ActiveSet) bool {
	for _, ac := range s.conditions {
		if ac.Def.Incapacitating {
			return true
		}
	}
	return false
}

// AttackPenalty returns the total attack roll penalty from all active
// conditions. Stackable conditions multiply their penalty by the current
// stack count (dazed 2 = -2 to attack).
//
// Postcondition: Returns >= 0; callers subtract it from attack rolls.
func AttackPenalty(s *ActiveSet) int {
	total := 0
	for _, ac := range s.conditions {
		if ac.Def.AttackPenalty > 0 {
			total += ac.Def.AttackPenalty * ac.Stacks
		}
	}
	return total
}
