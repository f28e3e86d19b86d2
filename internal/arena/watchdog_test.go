package arena

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/game/encounter"
)

// TestWatchdogPass_SweepsEndedEncounters verifies an ended encounter is
// reclaimed on the next pass without a second finalize.
func TestWatchdogPass_SweepsEndedEncounters(t *testing.T) {
	r := newRig(t, testTunables(), false)
	r.start(t, "sess1", "group1", manualP("a", "Alice"), manualP("b", "Bruiser"))

	if err := r.mgr.EndEncounter("sess1", encounter.ReasonDestroyed); err != nil {
		t.Fatalf("EndEncounter: %v", err)
	}
	waitUntil(t, time.Second, "the end summary", func() bool { return r.sink.len() == 1 })

	r.mgr.watchdogPass(time.Now())

	if _, ok := r.mgr.Get("sess1"); ok {
		t.Fatal("expected the ended encounter swept out")
	}
	time.Sleep(20 * time.Millisecond)
	if got := r.sink.len(); got != 1 {
		t.Fatalf("a sweep must not finalize twice, got %d summaries", got)
	}
}

// TestWatchdogPass_ReclaimsStalePending verifies a pending encounter that
// never activated is ended with a stale reason once it ages out.
func TestWatchdogPass_ReclaimsStalePending(t *testing.T) {
	tun := testTunables()
	tun.StaleAfter = 30 * time.Millisecond
	r := newRig(t, tun, false)

	if _, _, err := r.mgr.CreateEncounter("sess1", "group1", []Participant{manualP("a", "Alice")}); err != nil {
		t.Fatalf("CreateEncounter: %v", err)
	}

	r.mgr.watchdogPass(time.Now())
	if _, ok := r.mgr.Get("sess1"); !ok {
		t.Fatal("a fresh pending encounter must survive the pass")
	}

	time.Sleep(40 * time.Millisecond)
	r.mgr.watchdogPass(time.Now())

	if _, ok := r.mgr.Get("sess1"); ok {
		t.Fatal("expected the aged pending encounter reclaimed")
	}
	waitUntil(t, time.Second, "stale summary", func() bool {
		sum, ok := r.sink.last()
		return ok && sum.Reason == encounter.ReasonStale
	})
}

// TestWatchdogPass_NudgesStalledEncounter cancels an encounter's timers to
// simulate lost pacing and checks the pass forces the timeout handler.
func TestWatchdogPass_NudgesStalledEncounter(t *testing.T) {
	tun := testTunables()
	tun.TurnTimeout = 30 * time.Millisecond
	r := newRig(t, tun, false)
	enc := r.start(t, "sess1", "group1", manualP("a", "Alice"), manualP("b", "Bruiser"))

	enc.Timers().CancelAll()
	time.Sleep(70 * time.Millisecond) // past twice the turn timeout

	r.mgr.watchdogPass(time.Now())

	// The nudge defends the stuck holder and pacing resumes; with nobody
	// acting, the remaining turns time out into an all-defending end.
	waitUntil(t, 2*time.Second, "the revived encounter to wind down", enc.Ended)
	if got := r.narrator.linesContaining("guard"); got == 0 {
		t.Error("expected the nudged holder narrated into a guard stance")
	}
}

// TestWatchdogPass_LeavesHealthyEncountersAlone runs a pass against a live
// encounter with fresh timers.
func TestWatchdogPass_LeavesHealthyEncountersAlone(t *testing.T) {
	tun := testTunables()
	tun.TurnTimeout = 10 * time.Second
	r := newRig(t, tun, false)
	enc := r.start(t, "sess1", "group1", manualP("a", "Alice"), manualP("b", "Bruiser"))

	r.mgr.watchdogPass(time.Now())

	if !enc.Active() {
		t.Fatal("a healthy encounter must survive the pass")
	}
	if _, ok := r.mgr.Get("sess1"); !ok {
		t.Fatal("a healthy encounter stays registered")
	}
	if got := r.sink.len(); got != 0 {
		t.Fatalf("no summaries expected, got %d", got)
	}
}

// TestWatchdogPass_PrunesExpiredCooldowns verifies the cooldown table does
// not grow without bound.
func TestWatchdogPass_PrunesExpiredCooldowns(t *testing.T) {
	tun := testTunables()
	tun.KnockoutCooldown = 30 * time.Millisecond
	r := newRig(t, tun, false)
	r.start(t, "sess1", "group1", manualP("a", "Alice"), manualP("b", "Bruiser"))

	if _, err := r.mgr.HandleAttackResult("sess1", "a", encounter.ActionResult{
		TargetID: "b", Outcome: encounter.OutcomeKnockout, Damage: 25, AttackRoll: 19, ArmorClass: 10,
	}); err != nil {
		t.Fatalf("HandleAttackResult: %v", err)
	}
	if r.mgr.CanEnterCombat("b") {
		t.Fatal("expected b inside the knockout cooldown")
	}

	time.Sleep(40 * time.Millisecond)
	if !r.mgr.CanEnterCombat("b") {
		t.Fatal("expected the cooldown elapsed")
	}

	r.mgr.watchdogPass(time.Now())
	r.mgr.combatMu.Lock()
	remaining := len(r.mgr.cooldowns)
	r.mgr.combatMu.Unlock()
	if remaining != 0 {
		t.Fatalf("expected the expired entry pruned, %d left", remaining)
	}
}

// TestCleanupStaleEncounters_CountsReclaimed reports how many encounters a
// manual sweep removed.
func TestCleanupStaleEncounters_CountsReclaimed(t *testing.T) {
	tun := testTunables()
	tun.StaleAfter = 20 * time.Millisecond
	r := newRig(t, tun, false)

	for _, sess := range []string{"old1", "old2"} {
		if _, _, err := r.mgr.CreateEncounter(sess, "group1", nil); err != nil {
			t.Fatalf("create %s: %v", sess, err)
		}
	}
	time.Sleep(30 * time.Millisecond)
	if _, _, err := r.mgr.CreateEncounter("fresh", "group2", nil); err != nil {
		t.Fatalf("create fresh: %v", err)
	}

	if got := r.mgr.CleanupStaleEncounters(); got != 2 {
		t.Fatalf("expected 2 reclaimed, got %d", got)
	}
	if _, ok := r.mgr.Get("fresh"); !ok {
		t.Fatal("the fresh encounter must survive")
	}
}

// TestWatchdog_ServiceLifecycle runs the ticker loop for real: a stale
// pending encounter is reclaimed by a tick, then Stop shuts the loop down.
func TestWatchdog_ServiceLifecycle(t *testing.T) {
	tun := testTunables()
	tun.StaleAfter = 5 * time.Millisecond
	tun.WatchdogInterval = 10 * time.Millisecond
	r := newRig(t, tun, false)

	if _, _, err := r.mgr.CreateEncounter("sess1", "group1", nil); err != nil {
		t.Fatalf("CreateEncounter: %v", err)
	}
	time.Sleep(10 * time.Millisecond) // let the encounter age past stale

	w := NewWatchdog(r.mgr, zap.NewNop())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Start() }()

	waitUntil(t, time.Second, "a tick to reclaim the stale encounter", func() bool {
		_, ok := r.mgr.Get("sess1")
		return !ok
	})

	w.Stop()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Start returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Stop")
	}
}

// TestShutdown_DestroysEverything tears the manager down with live
// encounters still registered.
func TestShutdown_DestroysEverything(t *testing.T) {
	r := newRig(t, testTunables(), false)
	first := r.start(t, "sess1", "group1", manualP("a", "Alice"), manualP("b", "Bruiser"))
	second := r.start(t, "sess2", "group2", manualP("c", "Carol"), manualP("d", "Dog"))

	r.mgr.Shutdown()

	if !first.Ended() || !second.Ended() {
		t.Fatal("shutdown ends every encounter")
	}
	if got := first.EndReason(); got != encounter.ReasonDestroyed {
		t.Fatalf("expected reason destroyed, got %q", got)
	}
	if got := r.mgr.registry.Len(); got != 0 {
		t.Fatalf("expected an empty registry, got %d", got)
	}
}
