package roster_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/game/dice"
	"github.com/cory-johannsen/skirmish/internal/game/roster"
)

type actorRef struct {
	id   string
	name string
}

func (a actorRef) ID() string   { return a.id }
func (a actorRef) Name() string { return a.name }

// cycleSource cycles through fixed values so hit point rolls are repeatable.
type cycleSource struct {
	mu     sync.Mutex
	values []int
	idx    int
}

func (s *cycleSource) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.values[s.idx%len(s.values)]
	s.idx++
	return v % n
}

func testArchetypes(t *testing.T) []*roster.Archetype {
	t.Helper()
	brawler, err := roster.LoadArchetypeFromBytes([]byte(`
id: brawler
name: Brawler
hp_dice: "2d8+4"
dexterity: 12
armor_class: 13
taunts: ["Is that it?"]
`))
	require.NoError(t, err)
	dodger, err := roster.LoadArchetypeFromBytes([]byte(`
id: dodger
name: Dodger
hp_dice: "1d8+2"
dexterity: 16
`))
	require.NoError(t, err)
	return []*roster.Archetype{brawler, dodger}
}

func newRoster(t *testing.T) *roster.Roster {
	t.Helper()
	roller := dice.NewLoggedRoller(&cycleSource{values: []int{3}}, zap.NewNop())
	return roster.NewRoster(testArchetypes(t), roller)
}

func TestRoster_GetOrCreateStats_RollsFromArchetype(t *testing.T) {
	r := newRoster(t)
	ctx := context.Background()

	// First actor gets the brawler: 2d8+4 with every die landing 4.
	stats, err := r.GetOrCreateStats(ctx, actorRef{id: "a1", name: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, 12, stats.MaxHP)
	assert.Equal(t, 12, stats.Dexterity)
	assert.Equal(t, 13, stats.ArmorClass)
}

func TestRoster_GetOrCreateStats_Reuses(t *testing.T) {
	r := newRoster(t)
	ctx := context.Background()

	first, err := r.GetOrCreateStats(ctx, actorRef{id: "a1"})
	require.NoError(t, err)
	second, err := r.GetOrCreateStats(ctx, actorRef{id: "a1"})
	require.NoError(t, err)
	assert.Equal(t, first, second, "same actor must keep the same rolled stats")
}

func TestRoster_GetOrCreateStats_RoundRobin(t *testing.T) {
	r := newRoster(t)
	ctx := context.Background()

	_, err := r.GetOrCreateStats(ctx, actorRef{id: "a1"})
	require.NoError(t, err)
	_, err = r.GetOrCreateStats(ctx, actorRef{id: "a2"})
	require.NoError(t, err)

	first, ok := r.Archetype("a1")
	require.True(t, ok)
	second, ok := r.Archetype("a2")
	require.True(t, ok)
	assert.Equal(t, "brawler", first.ID)
	assert.Equal(t, "dodger", second.ID)
}

func TestRoster_GetOrCreateStats_Validation(t *testing.T) {
	r := newRoster(t)

	_, err := r.GetOrCreateStats(context.Background(), actorRef{})
	assert.Error(t, err, "empty actor id must be rejected")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.GetOrCreateStats(ctx, actorRef{id: "a1"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRoster_GetOrCreateStats_NoArchetypes(t *testing.T) {
	roller := dice.NewLoggedRoller(&cycleSource{values: []int{3}}, zap.NewNop())
	r := roster.NewRoster(nil, roller)

	_, err := r.GetOrCreateStats(context.Background(), actorRef{id: "a1"})
	assert.Error(t, err)
}

func TestRoster_GetOrCreateStats_Concurrent(t *testing.T) {
	r := newRoster(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := r.GetOrCreateStats(ctx, actorRef{id: id})
			assert.NoError(t, err)
		}(string(rune('a' + i)))
	}
	wg.Wait()
}

func TestRoster_Assign(t *testing.T) {
	r := newRoster(t)

	require.NoError(t, r.Assign("a1", "dodger"))
	stats, err := r.GetOrCreateStats(context.Background(), actorRef{id: "a1"})
	require.NoError(t, err)
	assert.Equal(t, 16, stats.Dexterity, "pinned actor must get the dodger")

	assert.Error(t, r.Assign("a2", "unknown"))
}

func TestRoster_Taunt(t *testing.T) {
	r := newRoster(t)
	ctx := context.Background()

	_, err := r.GetOrCreateStats(ctx, actorRef{id: "a1"}) // brawler, has taunts
	require.NoError(t, err)
	_, err = r.GetOrCreateStats(ctx, actorRef{id: "a2"}) // dodger, no taunts
	require.NoError(t, err)

	line, ok := r.Taunt("a1")
	assert.True(t, ok)
	assert.Equal(t, "Is that it?", line)

	_, ok = r.Taunt("a2")
	assert.False(t, ok, "archetype without taunts stays quiet")
	_, ok = r.Taunt("stranger")
	assert.False(t, ok, "unassigned actor stays quiet")
}

func TestRoster_Forget(t *testing.T) {
	r := newRoster(t)
	ctx := context.Background()

	_, err := r.GetOrCreateStats(ctx, actorRef{id: "a1"})
	require.NoError(t, err)
	r.Forget("a1")
	_, ok := r.Archetype("a1")
	assert.False(t, ok, "forgotten actor loses the assignment")
}
