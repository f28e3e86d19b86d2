// Package arena orchestrates combat encounters: it owns the registry, the
// turn pacing and timeout timers, the watchdog, and the seams to every
// external collaborator. The encounter package holds the rules; this package
// decides when they run.
package arena

import (
	"context"

	"github.com/cory-johannsen/skirmish/internal/game/encounter"
)

// Participant describes an actor entering an encounter.
type Participant struct {
	Ref  encounter.Actor
	Kind encounter.Kind
	Mode encounter.Mode
}

// StatsProvider resolves combat stats for an actor. Implementations may be
// slow or fail; initiative rolls fetch stats for all combatants in parallel
// and fall back to a raw die roll when a fetch fails.
type StatsProvider interface {
	GetOrCreateStats(ctx context.Context, ref encounter.Actor) (encounter.Stats, error)
}

// ActionExecutor resolves attacks and defensive stances between combatants.
// Called with the manager's combat lock held; implementations must not call
// back into the manager.
type ActionExecutor interface {
	Attack(attacker, defender *encounter.Combatant) encounter.ActionResult
	Defend(actor *encounter.Combatant) int
}

// NarrationKind classifies a narration event.
type NarrationKind string

const (
	NarrationBegin    NarrationKind = "begin"
	NarrationTurn     NarrationKind = "turn"
	NarrationAttack   NarrationKind = "attack"
	NarrationKnockout NarrationKind = "knockout"
	NarrationBanter   NarrationKind = "banter"
	NarrationFlee     NarrationKind = "flee"
	NarrationEnd      NarrationKind = "end"
)

// Narration is one event handed to the Narrator.
type Narration struct {
	SessionID string
	GroupID   string
	Kind      NarrationKind
	Actor     string
	Target    string
	Line      string
	Round     int
}

// Narrator delivers narration to wherever spectators are. Strictly
// best-effort: failures are logged and never affect the encounter.
type Narrator interface {
	Narrate(ctx context.Context, ev Narration) error
}

// TauntSource supplies banter lines for combatants. Optional; without one
// the manager falls back to its stock lines.
type TauntSource interface {
	Taunt(actorID string) (string, bool)
}

// MediaGenerator produces summary media for dramatic moments. Generation is
// slow, so the manager wraps each call in a pre-registered turn-advance
// blocker racing the media wait budget.
type MediaGenerator interface {
	GenerateSummaryMedia(ctx context.Context, sum Summary) error
}

// SummarySink persists encounter summaries as an audit trail. Best-effort:
// a failed write is logged and the in-memory lifecycle proceeds.
type SummarySink interface {
	Save(ctx context.Context, sum Summary) error
}

// Mover relocates an actor who escaped an encounter.
type Mover interface {
	Relocate(ctx context.Context, ref encounter.Actor, destination string) error
}
