package narrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/skirmish/internal/arena"
)

type recordNarrator struct {
	events []arena.Narration
}

func (r *recordNarrator) Narrate(_ context.Context, ev arena.Narration) error {
	r.events = append(r.events, ev)
	return nil
}

type failingNarrator struct {
	err error
}

func (f *failingNarrator) Narrate(context.Context, arena.Narration) error {
	return f.err
}

func TestTee_FansOut(t *testing.T) {
	first := &recordNarrator{}
	second := &recordNarrator{}
	tee := NewTee(first, second)

	require.NoError(t, tee.Narrate(context.Background(), attackEvent("a solid hit")))

	require.Len(t, first.events, 1)
	require.Len(t, second.events, 1)
	assert.Equal(t, "a solid hit", first.events[0].Line)
}

func TestTee_BranchFailureDoesNotStopOthers(t *testing.T) {
	boom := errors.New("boom")
	rec := &recordNarrator{}
	tee := NewTee(&failingNarrator{err: boom}, rec)

	err := tee.Narrate(context.Background(), attackEvent("still delivered"))

	assert.ErrorIs(t, err, boom)
	require.Len(t, rec.events, 1)
	assert.Equal(t, "still delivered", rec.events[0].Line)
}

func TestTee_DropsNilAndUnwrapsSingle(t *testing.T) {
	rec := &recordNarrator{}
	assert.Same(t, rec, NewTee(nil, rec, nil))
}

func TestTee_EmptyIsNoOp(t *testing.T) {
	assert.NoError(t, NewTee().Narrate(context.Background(), attackEvent("nobody listening")))
}
