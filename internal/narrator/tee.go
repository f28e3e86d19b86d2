package narrator

import (
	"context"
	"errors"

	"github.com/cory-johannsen/skirmish/internal/arena"
)

// NewTee fans narration out to every non-nil narrator in order. With a
// single narrator left after dropping nils it is returned as-is; with none
// every Narrate is a no-op.
func NewTee(narrators ...arena.Narrator) arena.Narrator {
	kept := make(tee, 0, len(narrators))
	for _, n := range narrators {
		if n != nil {
			kept = append(kept, n)
		}
	}
	if len(kept) == 1 {
		return kept[0]
	}
	return kept
}

type tee []arena.Narrator

// Narrate forwards ev to every branch. A failing branch does not stop the
// others; branch errors are joined.
func (t tee) Narrate(ctx context.Context, ev arena.Narration) error {
	var errs []error
	for _, n := range t {
		if err := n.Narrate(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
