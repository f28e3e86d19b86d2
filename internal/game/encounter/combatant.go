package encounter

import (
	"fmt"

	"github.com/cory-johannsen/skirmish/internal/game/condition"
)

// Actor is the minimal capability an external participant handle must
// satisfy. Collaborators pass validated handles; the engine never reaches
// into them beyond identity.
type Actor interface {
	ID() string
	Name() string
}

// Kind distinguishes player-driven fighters from engine-spawned hostiles.
type Kind int

const (
	KindFighter Kind = iota
	KindHostile
)

func (k Kind) String() string {
	switch k {
	case KindFighter:
		return "fighter"
	case KindHostile:
		return "hostile"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Mode selects how a combatant's turns resolve. Auto combatants act on the
// auto-act timer; manual combatants get the full turn timeout and default to
// a defend when it expires.
type Mode int

const (
	ModeAuto Mode = iota
	ModeManual
)

func (m Mode) String() string {
	switch m {
	case ModeAuto:
		return "auto"
	case ModeManual:
		return "manual"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Stats is the combat-relevant stat block resolved for a combatant before
// initiative. A zero ArmorClass derives 10 + dexterity modifier.
type Stats struct {
	MaxHP      int
	Dexterity  int // ability score, not modifier
	ArmorClass int
}

// DefaultStats is the fallback block used when a stats lookup fails: the
// combatant fights on raw rolls with no modifier.
func DefaultStats() Stats {
	return Stats{MaxHP: 10, Dexterity: 10, ArmorClass: 10}
}

// AbilityMod converts an ability score to its modifier: floor((score-10)/2).
func AbilityMod(score int) int {
	diff := score - 10
	if diff >= 0 {
		return diff / 2
	}
	// Go integer division truncates toward zero; floor needs the odd
	// negative case nudged down.
	return -((-diff + 1) / 2)
}

// Combatant is one participant in an encounter. Mutable fields are guarded
// by the owning Encounter's lock; nothing outside the encounter package
// mutates them directly.
type Combatant struct {
	ID         string
	Name       string
	Ref        Actor
	Kind       Kind
	Mode       Mode
	MaxHP      int
	CurrentHP  int
	ArmorClass int
	DexMod     int
	Initiative int
	Defending  bool
	Conditions *condition.ActiveSet
}

// NewCombatant builds a combatant from an external actor handle. Stats stay
// zero until initiative resolves them; the encounter rejects activation of
// stat-less combatants by applying DefaultStats.
//
// Precondition: ref is non-nil with a non-empty ID.
func NewCombatant(ref Actor, kind Kind, mode Mode) (*Combatant, error) {
	if ref == nil || ref.ID() == "" {
		return nil, fmt.Errorf("encounter: combatant requires an actor ref with an id")
	}
	return &Combatant{
		ID:         ref.ID(),
		Name:       ref.Name(),
		Ref:        ref,
		Kind:       kind,
		Mode:       mode,
		Conditions: condition.NewActiveSet(),
	}, nil
}

// SetStats applies a resolved stat block. MaxHP floors at 1; CurrentHP
// resets to MaxHP; a zero ArmorClass derives from the dexterity modifier.
func (c *Combatant) SetStats(s Stats) {
	if s.MaxHP < 1 {
		s.MaxHP = 1
	}
	c.MaxHP = s.MaxHP
	c.CurrentHP = s.MaxHP
	c.DexMod = AbilityMod(s.Dexterity)
	c.ArmorClass = s.ArmorClass
	if c.ArmorClass == 0 {
		c.ArmorClass = 10 + c.DexMod
	}
}

// ApplyDamage reduces CurrentHP by dmg, flooring at 0.
//
// Postcondition: CurrentHP >= 0; returns true when this damage dropped the
// combatant to 0.
func (c *Combatant) ApplyDamage(dmg int) bool {
	if dmg <= 0 || c.CurrentHP == 0 {
		return false
	}
	c.CurrentHP -= dmg
	if c.CurrentHP <= 0 {
		c.CurrentHP = 0
		return true
	}
	return false
}

// Incapacitated reports whether the combatant is out of the turn rotation:
// at 0 HP or carrying an incapacitating condition.
func (c *Combatant) Incapacitated() bool {
	return c.CurrentHP == 0 || condition.Incapacitated(c.Conditions)
}
