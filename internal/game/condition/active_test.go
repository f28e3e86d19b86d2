package condition_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/skirmish/internal/game/condition"
)

func unconscious() *condition.ConditionDef {
	return &condition.ConditionDef{ID: condition.Unconscious, Name: "Unconscious", DurationType: "permanent", Incapacitating: true}
}

func dazed() *condition.ConditionDef {
	return &condition.ConditionDef{ID: condition.Dazed, Name: "Dazed", DurationType: "rounds", MaxStacks: 3, AttackPenalty: 1}
}

func TestActiveSet_Apply_Permanent(t *testing.T) {
	s := condition.NewActiveSet()
	err := s.Apply(unconscious(), 1, -1)
	require.NoError(t, err)
	assert.True(t, s.Has(condition.Unconscious))
	assert.Equal(t, 1, s.Stacks(condition.Unconscious))
}

func TestActiveSet_Apply_Rounds(t *testing.T) {
	s := condition.NewActiveSet()
	err := s.Apply(dazed(), 2, 3)
	require.NoError(t, err)
	assert.True(t, s.Has(condition.Dazed))
	assert.Equal(t, 2, s.Stacks(condition.Dazed))
}

func TestActiveSet_Apply_StacksCapped(t *testing.T) {
	s := condition.NewActiveSet()
	err := s.Apply(dazed(), 5, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Stacks(condition.Dazed), "stacks cap at MaxStacks")
}

func TestActiveSet_Apply_ZeroMaxStacks_AlwaysOne(t *testing.T) {
	// MaxStacks=0 means unstackable; stacks is always 1
	s := condition.NewActiveSet()
	err := s.Apply(unconscious(), 3, -1)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Stacks(condition.Unconscious))
}

func TestActiveSet_Apply_NilDef(t *testing.T) {
	s := condition.NewActiveSet()
	require.Error(t, s.Apply(nil, 1, -1))
}

func TestActiveSet_Reapply_ExtendsDuration(t *testing.T) {
	s := condition.NewActiveSet()
	require.NoError(t, s.Apply(dazed(), 1, 1))
	require.NoError(t, s.Apply(dazed(), 1, 4))
	// one tick must not expire it now
	expired := s.Tick()
	assert.Empty(t, expired)
	assert.True(t, s.Has(condition.Dazed))
}

func TestActiveSet_Remove(t *testing.T) {
	s := condition.NewActiveSet()
	require.NoError(t, s.Apply(unconscious(), 1, -1))
	s.Remove(condition.Unconscious)
	assert.False(t, s.Has(condition.Unconscious))
	assert.Equal(t, 0, s.Stacks(condition.Unconscious))
}

func TestActiveSet_Remove_NotPresent_NoOp(t *testing.T) {
	s := condition.NewActiveSet()
	s.Remove("nonexistent") // must not panic
	assert.False(t, s.Has("nonexistent"))
}

func TestActiveSet_Tick_DecrementsRounds(t *testing.T) {
	s := condition.NewActiveSet()
	require.NoError(t, s.Apply(dazed(), 2, 3))
	expired := s.Tick()
	assert.Empty(t, expired)
	assert.True(t, s.Has(condition.Dazed)) // still present
}

func TestActiveSet_Tick_ExpiresAtZero(t *testing.T) {
	s := condition.NewActiveSet()
	require.NoError(t, s.Apply(dazed(), 1, 1))
	expired := s.Tick()
	assert.Equal(t, []string{condition.Dazed}, expired)
	assert.False(t, s.Has(condition.Dazed))
}

func TestActiveSet_Tick_PermanentNotExpired(t *testing.T) {
	s := condition.NewActiveSet()
	require.NoError(t, s.Apply(unconscious(), 1, -1))
	expired := s.Tick()
	assert.Empty(t, expired)
	assert.True(t, s.Has(condition.Unconscious))
}

func TestActiveSet_All_ReturnsCopy(t *testing.T) {
	s := condition.NewActiveSet()
	require.NoError(t, s.Apply(unconscious(), 1, -1))
	require.NoError(t, s.Apply(dazed(), 2, 2))
	all := s.All()
	assert.Len(t, all, 2)
}

func TestActiveSet_IncrementStacks(t *testing.T) {
	s := condition.NewActiveSet()
	d := dazed()
	require.NoError(t, s.Apply(d, 1, 2))
	require.NoError(t, s.Apply(d, 1, 2)) // apply again to increment
	assert.Equal(t, 2, s.Stacks(condition.Dazed))
}

func TestPropertyActiveSet_TickNeverBelowMinusOne(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		duration := rapid.IntRange(1, 10).Draw(t, "duration")
		ticks := rapid.IntRange(1, 20).Draw(t, "ticks")
		s := condition.NewActiveSet()
		require.NoError(t, s.Apply(dazed(), 1, duration))
		for i := 0; i < ticks; i++ {
			s.Tick()
		}
		for _, ac := range s.All() {
			assert.GreaterOrEqual(t, ac.DurationRemaining, -1,
				"DurationRemaining must never go below -1")
		}
	})
}

func TestPropertyActiveSet_StacksNeverExceedMaxStacks(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		maxStacks := rapid.IntRange(1, 4).Draw(t, "max_stacks")
		applies := rapid.IntRange(1, 8).Draw(t, "applies")
		def := &condition.ConditionDef{
			ID: "test", Name: "Test", DurationType: "rounds", MaxStacks: maxStacks,
		}
		s := condition.NewActiveSet()
		for i := 0; i < applies; i++ {
			require.NoError(t, s.Apply(def, 1, 5))
		}
		actual := s.Stacks("test")
		assert.LessOrEqual(t, actual, maxStacks,
			"stacks must never exceed MaxStacks")
	})
}
