package roster

import (
	"context"
	"fmt"
	"sync"

	"github.com/cory-johannsen/skirmish/internal/game/dice"
	"github.com/cory-johannsen/skirmish/internal/game/encounter"
)

// Roster hands out combat stats for actors entering an encounter. Each actor
// is assigned an archetype on first sight (round-robin over the loaded set)
// and keeps the same rolled stats for as long as the roster lives, so a
// rematch fields the same fighter. Safe for concurrent use; initiative rolls
// fetch stats for every combatant in parallel.
type Roster struct {
	mu         sync.Mutex
	roller     *dice.Roller
	archetypes []*Archetype
	stats      map[string]encounter.Stats
	assigned   map[string]*Archetype
	next       int
}

// NewRoster creates a roster over the given archetypes.
//
// Precondition: every archetype has passed Validate; roller is non-nil.
func NewRoster(archetypes []*Archetype, roller *dice.Roller) *Roster {
	return &Roster{
		roller:     roller,
		archetypes: archetypes,
		stats:      make(map[string]encounter.Stats),
		assigned:   make(map[string]*Archetype),
	}
}

// GetOrCreateStats returns the stats for ref, creating them on first sight
// by assigning the next archetype and rolling its hit point dice. Repeated
// calls for the same actor return the identical stats.
func (r *Roster) GetOrCreateStats(ctx context.Context, ref encounter.Actor) (encounter.Stats, error) {
	if err := ctx.Err(); err != nil {
		return encounter.Stats{}, err
	}
	if ref == nil || ref.ID() == "" {
		return encounter.Stats{}, fmt.Errorf("roster: actor ref must carry an id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.stats[ref.ID()]; ok {
		return s, nil
	}
	if len(r.archetypes) == 0 {
		return encounter.Stats{}, fmt.Errorf("roster: no archetypes loaded")
	}

	arch, ok := r.assigned[ref.ID()]
	if !ok {
		arch = r.archetypes[r.next%len(r.archetypes)]
		r.next++
		r.assigned[ref.ID()] = arch
	}

	hp, err := r.roller.Roll(arch.HPExpression())
	if err != nil {
		return encounter.Stats{}, fmt.Errorf("roster: rolling hp for %q: %w", ref.ID(), err)
	}
	maxHP := hp.Total()
	if maxHP < 1 {
		maxHP = 1
	}

	s := encounter.Stats{
		MaxHP:      maxHP,
		Dexterity:  arch.Dexterity,
		ArmorClass: arch.ArmorClass,
	}
	r.stats[ref.ID()] = s
	return s, nil
}

// Assign pins an actor to a specific archetype ahead of their first stats
// fetch. Unknown archetype ids are rejected; an actor with stats already
// rolled keeps them.
func (r *Roster) Assign(actorID, archetypeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.archetypes {
		if a.ID == archetypeID {
			r.assigned[actorID] = a
			return nil
		}
	}
	return fmt.Errorf("roster: unknown archetype %q", archetypeID)
}

// Archetype returns the archetype assigned to actorID, if any.
func (r *Roster) Archetype(actorID string) (*Archetype, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assigned[actorID]
	return a, ok
}

// Taunt returns a taunt line for actorID from their assigned archetype,
// picked with the roster's dice source. Returns false when the actor has no
// archetype or the archetype carries no taunts.
func (r *Roster) Taunt(actorID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.assigned[actorID]
	if !ok || len(a.Taunts) == 0 {
		return "", false
	}
	return a.Taunts[r.roller.Source().Intn(len(a.Taunts))], true
}

// Forget drops an actor's stats and assignment so their next encounter rolls
// fresh.
func (r *Roster) Forget(actorID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.stats, actorID)
	delete(r.assigned, actorID)
}
