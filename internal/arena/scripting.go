package arena

import (
	"fmt"

	"github.com/cory-johannsen/skirmish/internal/game/encounter"
	"github.com/cory-johannsen/skirmish/internal/scripting"
)

// WireScripting installs the engine callbacks onto the script manager so
// Lua hooks can read combatant and encounter state, apply conditions, and
// broadcast to a group. broadcast may be nil (group broadcasts become
// no-ops).
//
// The hooks fire while the manager holds its combat lock, so the callbacks
// never take it themselves.
func (m *Manager) WireScripting(broadcast func(groupID, msg string)) {
	if m.scripts == nil {
		return
	}
	m.scripts.GetCombatant = m.scriptCombatant
	m.scripts.ApplyCondition = m.scriptApplyCondition
	m.scripts.QueryEncounter = m.scriptEncounter
	m.scripts.Broadcast = broadcast
}

// scriptCombatant finds id in any registered encounter and snapshots it for
// Lua.
func (m *Manager) scriptCombatant(id string) *scripting.CombatantInfo {
	c, _ := m.findCombatant(id)
	if c == nil {
		return nil
	}
	info := &scripting.CombatantInfo{
		ID:        c.ID,
		Name:      c.Name,
		Kind:      c.Kind.String(),
		HP:        c.CurrentHP,
		MaxHP:     c.MaxHP,
		AC:        c.ArmorClass,
		Defending: c.Defending,
	}
	for _, ac := range c.Conditions.All() {
		info.Conditions = append(info.Conditions, ac.Def.ID)
	}
	return info
}

// scriptApplyCondition lets Lua put a registered condition on a combatant.
func (m *Manager) scriptApplyCondition(id, condID string, stacks, duration int) error {
	def, ok := m.conds.Get(condID)
	if !ok {
		return fmt.Errorf("arena: unknown condition %q", condID)
	}
	c, _ := m.findCombatant(id)
	if c == nil {
		return fmt.Errorf("arena: unknown combatant %q", id)
	}
	return c.Conditions.Apply(def, stacks, duration)
}

// scriptEncounter snapshots the session's encounter for Lua.
func (m *Manager) scriptEncounter(sessionID string) *scripting.EncounterInfo {
	e, ok := m.registry.Get(sessionID)
	if !ok {
		return nil
	}
	info := &scripting.EncounterInfo{
		SessionID: e.SessionID,
		GroupID:   e.GroupID,
		State:     e.State().String(),
		Round:     e.Round(),
	}
	for _, c := range e.Combatants() {
		info.Combatants = append(info.Combatants, c.ID)
	}
	return info
}

// findCombatant locates id across registered encounters, oldest first.
func (m *Manager) findCombatant(id string) (*encounter.Combatant, *encounter.Encounter) {
	for _, e := range m.registry.Snapshot() {
		if c, ok := e.Combatant(id); ok {
			return c, e
		}
	}
	return nil, nil
}
