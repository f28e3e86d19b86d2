package narrator

import (
	"context"

	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/arena"
)

// LogNarrator writes narration to the structured log. The default sink when
// no external delivery is configured.
type LogNarrator struct {
	logger *zap.Logger
}

var _ arena.Narrator = (*LogNarrator)(nil)

// NewLogNarrator creates a LogNarrator.
//
// Precondition: logger must be non-nil.
func NewLogNarrator(logger *zap.Logger) *LogNarrator {
	if logger == nil {
		panic("narrator: NewLogNarrator precondition violated: logger must be non-nil")
	}
	return &LogNarrator{logger: logger}
}

// Narrate logs the event at Info with its structured fields.
func (n *LogNarrator) Narrate(_ context.Context, ev arena.Narration) error {
	n.logger.Info("narration",
		zap.String("session", ev.SessionID),
		zap.String("group", ev.GroupID),
		zap.String("kind", string(ev.Kind)),
		zap.String("actor", ev.Actor),
		zap.Int("round", ev.Round),
		zap.String("line", ev.Line),
	)
	return nil
}
