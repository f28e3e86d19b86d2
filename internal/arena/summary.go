package arena

import (
	"time"

	"github.com/google/uuid"

	"github.com/cory-johannsen/skirmish/internal/game/encounter"
)

// Summary is the audit record of a finished encounter, handed to the
// SummarySink and the MediaGenerator.
type Summary struct {
	ID         string
	SessionID  string
	GroupID    string
	Reason     encounter.EndReason
	Rounds     int
	Combatants int
	Survivors  []string
	StartedAt  time.Time
	EndedAt    time.Time
}

// buildSummary snapshots a just-ended encounter. Survivors are the
// combatants still on their feet, in roster order.
func buildSummary(e *encounter.Encounter) Summary {
	var survivors []string
	combatants := e.Combatants()
	for _, c := range combatants {
		if !c.Incapacitated() {
			survivors = append(survivors, c.Name)
		}
	}
	return Summary{
		ID:         uuid.NewString(),
		SessionID:  e.SessionID,
		GroupID:    e.GroupID,
		Reason:     e.EndReason(),
		Rounds:     e.Round(),
		Combatants: len(combatants),
		Survivors:  survivors,
		StartedAt:  e.StartedAt(),
		EndedAt:    e.EndedAt(),
	}
}
