package encounter

import (
	"sort"
	"sync"
	"time"

	"github.com/cory-johannsen/skirmish/internal/game/condition"
)

// Registry owns every live encounter, keyed by session id for O(1) lookup
// and indexed by creation time so the stale sweep walks oldest-first and
// exits early. Safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	conds      *condition.Registry
	groupCap   int
	staleAfter time.Duration
	bySession  map[string]*Encounter
	byAge      []*Encounter // ascending CreatedAt
}

// NewRegistry creates a registry. groupCap bounds live encounters per group
// (0 disables the cap); staleAfter is the age past which the sweep reclaims
// an encounter regardless of state.
func NewRegistry(conds *condition.Registry, groupCap int, staleAfter time.Duration) *Registry {
	if conds == nil {
		conds = condition.DefaultRegistry()
	}
	return &Registry{
		conds:      conds,
		groupCap:   groupCap,
		staleAfter: staleAfter,
		bySession:  make(map[string]*Encounter),
	}
}

// Create returns the encounter for sessionID, creating a pending one when
// the session has none (or only an ended leftover). Idempotent per session
// key: a live encounter is returned as-is with created == false.
//
// When the group's live count has reached the cap, the oldest live
// encounter in that group is removed from the registry and returned as
// evicted; the caller owes it a proper end with a capacity reason.
func (r *Registry) Create(sessionID, groupID string) (enc *Encounter, evicted *Encounter, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.bySession[sessionID]; ok {
		if !existing.Ended() {
			return existing, nil, false
		}
		r.removeLocked(existing)
	}

	if r.groupCap > 0 && r.liveInGroupLocked(groupID) >= r.groupCap {
		for _, e := range r.byAge {
			if e.GroupID == groupID && !e.Ended() {
				evicted = e
				r.removeLocked(e)
				break
			}
		}
	}

	enc = NewEncounter(sessionID, groupID, r.conds)
	r.bySession[sessionID] = enc
	r.insertByAgeLocked(enc)
	return enc, evicted, true
}

// Get returns the encounter for sessionID.
func (r *Registry) Get(sessionID string) (*Encounter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.bySession[sessionID]
	return e, ok
}

// Remove drops the encounter for sessionID from the registry. A missing
// entry is treated as already cleaned.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.bySession[sessionID]; ok {
		r.removeLocked(e)
	}
}

// Sweep walks the age index from the oldest entry, removing ended
// encounters and any older than the stale threshold, and stops at the first
// live entry young enough to keep. It returns what it removed; entries that
// are not yet ended are the caller's to finish.
//
// Sweep never fails; a missing entry counts as already cleaned.
func (r *Registry) Sweep(now time.Time) []*Encounter {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []*Encounter
	for len(r.byAge) > 0 {
		oldest := r.byAge[0]
		stale := r.staleAfter > 0 && now.Sub(oldest.CreatedAt) > r.staleAfter
		if !oldest.Ended() && !stale {
			break
		}
		r.removeLocked(oldest)
		removed = append(removed, oldest)
	}
	return removed
}

// Snapshot returns a copy of every registered encounter, oldest first.
func (r *Registry) Snapshot() []*Encounter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Encounter, len(r.byAge))
	copy(out, r.byAge)
	return out
}

// Len returns the number of registered encounters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySession)
}

// LiveInGroup returns the number of live encounters in a group.
func (r *Registry) LiveInGroup(groupID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.liveInGroupLocked(groupID)
}

func (r *Registry) liveInGroupLocked(groupID string) int {
	n := 0
	for _, e := range r.byAge {
		if e.GroupID == groupID && !e.Ended() {
			n++
		}
	}
	return n
}

// insertByAgeLocked slots e into the age index, keeping ascending CreatedAt
// with ties after their elders.
func (r *Registry) insertByAgeLocked(e *Encounter) {
	i := sort.Search(len(r.byAge), func(i int) bool {
		return r.byAge[i].CreatedAt.After(e.CreatedAt)
	})
	r.byAge = append(r.byAge, nil)
	copy(r.byAge[i+1:], r.byAge[i:])
	r.byAge[i] = e
}

func (r *Registry) removeLocked(e *Encounter) {
	delete(r.bySession, e.SessionID)
	for i, cur := range r.byAge {
		if cur == e {
			r.byAge = append(r.byAge[:i], r.byAge[i+1:]...)
			return
		}
	}
}
