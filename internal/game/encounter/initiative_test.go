package encounter_test

import (
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/cory-johannsen/skirmish/internal/game/encounter"
)

// fixedSource feeds predetermined values to dice rolls.
type fixedSource struct {
	values []int
	idx    int
}

func (f *fixedSource) Intn(n int) int {
	v := f.values[f.idx%len(f.values)]
	f.idx++
	return v % n
}

func TestRollInitiative_AddsDexModifier(t *testing.T) {
	quick := newFighter(t, "quick", "Quick")
	quick.SetStats(encounter.Stats{MaxHP: 10, Dexterity: 14}) // +2
	slow := newFighter(t, "slow", "Slow")
	slow.SetStats(encounter.Stats{MaxHP: 10, Dexterity: 8}) // -1

	// Intn(20) yields 9 then 14, so the raw d20 rolls are 10 and 15.
	src := &fixedSource{values: []int{9, 14}}
	encounter.RollInitiative([]*encounter.Combatant{quick, slow}, src)

	if quick.Initiative != 12 {
		t.Errorf("quick initiative = %d, want 10+2", quick.Initiative)
	}
	if slow.Initiative != 14 {
		t.Errorf("slow initiative = %d, want 15-1", slow.Initiative)
	}
}

// TestAdvanceTurn_WrapIncrementsRound walks a two-combatant encounter through
// a full rotation: high acts, low acts, and advancing past the tail wraps to
// high again with the round counter at 2.
func TestAdvanceTurn_WrapIncrementsRound(t *testing.T) {
	e := makeDuel(t)
	now := time.Now()

	adv, err := e.AdvanceTurn(now, 0, nil)
	if err != nil {
		t.Fatalf("AdvanceTurn: %v", err)
	}
	if adv.NextID != "low" || adv.Wrapped {
		t.Fatalf("first advance = %+v, want NextID low without wrap", adv)
	}
	if e.Round() != 1 {
		t.Errorf("Round = %d, want still 1", e.Round())
	}

	adv, err = e.AdvanceTurn(now, 0, nil)
	if err != nil {
		t.Fatalf("AdvanceTurn: %v", err)
	}
	if adv.NextID != "high" || !adv.Wrapped {
		t.Fatalf("second advance = %+v, want NextID high with wrap", adv)
	}
	if adv.Round != 2 || e.Round() != 2 {
		t.Errorf("Round = %d, want 2 after wrap", e.Round())
	}
	if !e.IsTurn("high") {
		t.Error("turn must return to the order head after the wrap")
	}
}

// TestAdvanceTurn_MaxRounds caps the encounter at three rounds: the wrap that
// would begin round four reports MaxedOut and hands out no turn.
func TestAdvanceTurn_MaxRounds(t *testing.T) {
	e := makeDuel(t)
	now := time.Now()

	var adv encounter.Advance
	var err error
	for i := 0; i < 6; i++ { // three full rounds of two turns each
		adv, err = e.AdvanceTurn(now, 3, nil)
		if err != nil {
			t.Fatalf("AdvanceTurn %d: %v", i, err)
		}
		if adv.MaxedOut && i < 5 {
			t.Fatalf("MaxedOut after %d advances, want 6", i+1)
		}
	}
	if !adv.MaxedOut {
		t.Fatal("the wrap past round 3 must report MaxedOut")
	}
	if adv.NextID != "" {
		t.Errorf("NextID = %q, want none once maxed out", adv.NextID)
	}
	if adv.Round != 4 {
		t.Errorf("Round = %d, want 4 (the round that exceeded the cap)", adv.Round)
	}
}

func TestAdvanceTurn_SkipsIncapacitated(t *testing.T) {
	e := encounter.NewEncounter("sess1", "group1", nil)
	for _, id := range []string{"a", "b", "c"} {
		if err := e.Insert(newFighter(t, id, id)); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	init := map[string]int{"a": 20, "b": 15, "c": 10}
	err := e.Activate(time.Now(), func(c *encounter.Combatant) {
		c.SetStats(encounter.Stats{MaxHP: 10, Dexterity: 10})
		c.Initiative = init[c.ID]
	})
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}

	if _, err := e.ApplyAttack("a", encounter.ActionResult{
		TargetID: "b",
		Outcome:  encounter.OutcomeKnockout,
		Damage:   10,
	}, time.Now()); err != nil {
		t.Fatalf("ApplyAttack: %v", err)
	}

	adv, err := e.AdvanceTurn(time.Now(), 0, nil)
	if err != nil {
		t.Fatalf("AdvanceTurn: %v", err)
	}
	if adv.NextID != "c" {
		t.Errorf("NextID = %q, want c (b is knocked out)", adv.NextID)
	}
}

func TestAdvanceTurn_SkipPredicate(t *testing.T) {
	e := makeDuel(t)
	adv, err := e.AdvanceTurn(time.Now(), 0, func(id string) bool { return id == "low" })
	if err != nil {
		t.Fatalf("AdvanceTurn: %v", err)
	}
	if adv.NextID != "high" {
		t.Errorf("NextID = %q, want high (low is vetoed by the predicate)", adv.NextID)
	}
	if !adv.Wrapped {
		t.Error("skipping the tail must wrap back to the head")
	}
}

// TestAdvanceTurn_AllSkipped verifies the advance loop is bounded: with every
// combatant incapacitated it walks one lap and gives up instead of spinning.
func TestAdvanceTurn_AllSkipped(t *testing.T) {
	e := makeDuel(t)
	for _, id := range []string{"high", "low"} {
		c, _ := e.Combatant(id)
		c.CurrentHP = 0
	}
	adv, err := e.AdvanceTurn(time.Now(), 0, nil)
	if err != nil {
		t.Fatalf("AdvanceTurn: %v", err)
	}
	if !adv.AllSkipped {
		t.Fatal("a fully incapacitated roster must report AllSkipped")
	}
	if adv.NextID != "" {
		t.Errorf("NextID = %q, want none", adv.NextID)
	}
}

func TestAdvanceTurn_BumpsTurnSeq(t *testing.T) {
	e := makeDuel(t)
	before := e.TurnSeq()
	if _, err := e.AdvanceTurn(time.Now(), 0, nil); err != nil {
		t.Fatalf("AdvanceTurn: %v", err)
	}
	if e.TurnSeq() <= before {
		t.Errorf("TurnSeq = %d, want > %d after an advance", e.TurnSeq(), before)
	}
}

func TestAdvanceTurn_NotActive(t *testing.T) {
	e := encounter.NewEncounter("sess1", "group1", nil)
	if _, err := e.AdvanceTurn(time.Now(), 0, nil); err != encounter.ErrNotActive {
		t.Fatalf("AdvanceTurn on pending = %v, want ErrNotActive", err)
	}
}

// TestInsert_ActivePreservesCurrentTurn adds a third combatant mid-encounter
// with an initiative that sorts ahead of the acting combatant; the cursor
// must keep pointing at whoever holds the turn.
func TestInsert_ActivePreservesCurrentTurn(t *testing.T) {
	e := makeDuel(t)
	if _, err := e.AdvanceTurn(time.Now(), 0, nil); err != nil {
		t.Fatalf("AdvanceTurn: %v", err)
	}
	if !e.IsTurn("low") {
		t.Fatal("setup: low must hold the turn")
	}

	joiner := newFighter(t, "joiner", "Joiner")
	joiner.SetStats(encounter.Stats{MaxHP: 10, Dexterity: 10})
	joiner.Initiative = 20
	if err := e.Insert(joiner); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	order := e.Order()
	want := []string{"joiner", "high", "low"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("Order = %v, want %v", order, want)
		}
	}
	if !e.IsTurn("low") {
		t.Error("insert must not move the turn off the acting combatant")
	}
}

func TestInsert_Duplicate(t *testing.T) {
	e := makeDuel(t)
	dup := newFighter(t, "high", "High Again")
	if err := e.Insert(dup); err == nil {
		t.Fatal("duplicate id must be rejected")
	}
}

func TestInsert_Ended(t *testing.T) {
	e := makeDuel(t)
	e.End(encounter.ReasonDestroyed, time.Now())
	if err := e.Insert(newFighter(t, "late", "Late")); err == nil {
		t.Fatal("ended encounter must reject inserts")
	}
}

// TestAdvanceTurn_CursorStaysBounded drives a random mix of advances, inserts,
// and knockouts and checks the cursor invariant after every step.
func TestAdvanceTurn_CursorStaysBounded(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		e := encounter.NewEncounter("sess", "grp", nil)
		n := rapid.IntRange(1, 6).Draw(t, "combatants")
		ids := make([]string, 0, n)
		for i := 0; i < n; i++ {
			id := string(rune('a' + i))
			ids = append(ids, id)
			c, err := encounter.NewCombatant(actorRef{id: id, name: id}, encounter.KindFighter, encounter.ModeAuto)
			if err != nil {
				t.Fatalf("NewCombatant: %v", err)
			}
			if err := e.Insert(c); err != nil {
				t.Fatalf("Insert: %v", err)
			}
		}
		err := e.Activate(time.Now(), func(c *encounter.Combatant) {
			c.SetStats(encounter.Stats{MaxHP: 10, Dexterity: 10})
			c.Initiative = rapid.IntRange(1, 25).Draw(t, "init-"+c.ID)
		})
		if err != nil {
			t.Fatalf("Activate: %v", err)
		}

		lastRound := e.Round()
		steps := rapid.IntRange(1, 30).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 2).Draw(t, "op") {
			case 0, 1:
				if _, err := e.AdvanceTurn(time.Now(), 0, nil); err != nil {
					t.Fatalf("AdvanceTurn: %v", err)
				}
			case 2:
				id := rapid.SampledFrom(ids).Draw(t, "victim")
				c, ok := e.Combatant(id)
				if ok && c.CurrentHP > 0 {
					c.CurrentHP = 0
				}
			}
			if idx := e.TurnIndex(); idx < 0 || idx >= len(e.Order()) {
				t.Fatalf("TurnIndex %d out of range for order %v", idx, e.Order())
			}
			if r := e.Round(); r < lastRound {
				t.Fatalf("round went backwards: %d -> %d", lastRound, r)
			} else {
				lastRound = r
			}
		}
	})
}
