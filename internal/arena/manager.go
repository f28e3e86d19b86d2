package arena

import (
	"context"
	"fmt"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/game/condition"
	"github.com/cory-johannsen/skirmish/internal/game/dice"
	"github.com/cory-johannsen/skirmish/internal/game/encounter"
	"github.com/cory-johannsen/skirmish/internal/scripting"
)

// narrateTimeout bounds the best-effort narration dispatch.
const narrateTimeout = 5 * time.Second

// relocateTimeout bounds the Mover call after a successful flee.
const relocateTimeout = 10 * time.Second

// Manager owns every live encounter and drives them: creation and capacity
// reclamation, initiative, turn pacing and timeouts, rate limiting, knockout
// cooldowns, and the end-of-encounter side effects.
//
// combatMu serialises every mutation path (caller-facing operations, timer
// callbacks, watchdog nudges) so combatant state reads inside the
// ActionExecutor cannot race an applying attack.
type Manager struct {
	logger   *zap.Logger
	tun      Tunables
	roller   *dice.Roller
	conds    *condition.Registry
	registry *encounter.Registry
	limiter  *encounter.Limiter

	stats    StatsProvider
	executor ActionExecutor
	narrator Narrator
	taunts   TauntSource
	media    MediaGenerator
	sink     SummarySink
	mover    Mover
	scripts  *scripting.Manager

	combatMu  sync.Mutex
	cooldowns map[string]time.Time // actor id -> knockout cooldown expiry
}

// NewManager creates a Manager.
//
// Precondition: logger, roller, stats, and executor must be non-nil.
// narrator, media, sink, mover, and scripts may be nil; the corresponding
// side effects are skipped when nil. conds may be nil (built-in conditions
// apply). Zero Tunables fields take their defaults.
// Postcondition: Returns a non-nil Manager with no live encounters.
func NewManager(
	logger *zap.Logger,
	tun Tunables,
	roller *dice.Roller,
	conds *condition.Registry,
	stats StatsProvider,
	executor ActionExecutor,
	narrator Narrator,
	media MediaGenerator,
	sink SummarySink,
	mover Mover,
	scripts *scripting.Manager,
) *Manager {
	tun = tun.withDefaults()
	if conds == nil {
		conds = condition.DefaultRegistry()
	}
	m := &Manager{
		logger:    logger,
		tun:       tun,
		roller:    roller,
		conds:     conds,
		registry:  encounter.NewRegistry(conds, tun.GroupCapacity, tun.StaleAfter),
		limiter:   encounter.NewLimiter(tun.RateLimitWindow, tun.RateLimitMax),
		stats:     stats,
		executor:  executor,
		narrator:  narrator,
		media:     media,
		sink:      sink,
		mover:     mover,
		scripts:   scripts,
		cooldowns: make(map[string]time.Time),
	}
	if ts, ok := stats.(TauntSource); ok {
		m.taunts = ts
	}
	return m
}

// Tunables returns the effective configuration after defaulting.
func (m *Manager) Tunables() Tunables { return m.tun }

// Get returns the encounter for sessionID.
func (m *Manager) Get(sessionID string) (*encounter.Encounter, bool) {
	return m.registry.Get(sessionID)
}

// Encounters returns every registered encounter, oldest first.
func (m *Manager) Encounters() []*encounter.Encounter {
	return m.registry.Snapshot()
}

// CreateEncounter returns the encounter for sessionID, creating a pending
// one seeded with participants when the session has none. When the group is
// at capacity the oldest live encounter is reclaimed first. Idempotent: a
// live encounter is returned as-is and participants are ignored.
//
// Precondition: sessionID and groupID must be non-empty; every participant
// ref must be non-nil with an id, and none may be inside a knockout
// cooldown.
func (m *Manager) CreateEncounter(sessionID, groupID string, participants []Participant) (*encounter.Encounter, bool, error) {
	if sessionID == "" || groupID == "" {
		return nil, false, fmt.Errorf("create encounter: session and group ids must be non-empty")
	}

	m.combatMu.Lock()
	defer m.combatMu.Unlock()

	now := time.Now()
	for _, p := range participants {
		if p.Ref == nil || p.Ref.ID() == "" {
			return nil, false, fmt.Errorf("create encounter: participant ref must carry an id")
		}
		if m.inCooldownLocked(p.Ref.ID(), now) {
			return nil, false, fmt.Errorf("create encounter: actor %q: %w", p.Ref.ID(), encounter.ErrOnCooldown)
		}
	}

	enc, evicted, created := m.registry.Create(sessionID, groupID)
	if evicted != nil {
		m.logger.Warn("group at capacity, reclaiming oldest encounter",
			zap.String("group", groupID),
			zap.String("reclaimed_session", evicted.SessionID),
		)
		m.finalizeLocked(evicted, encounter.ReasonCapacityReclaim)
	}
	if !created {
		return enc, false, nil
	}

	for _, p := range participants {
		c, err := encounter.NewCombatant(p.Ref, p.Kind, p.Mode)
		if err != nil {
			m.registry.Remove(sessionID)
			return nil, false, fmt.Errorf("create encounter: %w", err)
		}
		if err := enc.Insert(c); err != nil {
			m.registry.Remove(sessionID)
			return nil, false, fmt.Errorf("create encounter: %w", err)
		}
	}

	m.logger.Info("encounter created",
		zap.String("session", sessionID),
		zap.String("group", groupID),
		zap.String("encounter", enc.ID),
		zap.Int("combatants", len(participants)),
	)
	return enc, true, nil
}

// EnsureEncounterForAttack is the lazy entry point for an incoming attack:
// it creates or reuses the session's encounter, enrolls both actors, and
// rolls initiative when the encounter is still pending. An already active
// encounter just gains whichever of the two actors it was missing.
func (m *Manager) EnsureEncounterForAttack(ctx context.Context, sessionID, groupID string, attacker, target Participant) (*encounter.Encounter, error) {
	enc, _, err := m.CreateEncounter(sessionID, groupID, []Participant{attacker, target})
	if err != nil {
		return nil, err
	}

	if enc.State() == encounter.StatePending {
		if err := m.RollInitiative(ctx, sessionID); err != nil {
			return nil, err
		}
		return enc, nil
	}

	for _, p := range []Participant{attacker, target} {
		if enc.Has(p.Ref.ID()) {
			continue
		}
		if err := m.AddCombatant(ctx, sessionID, p); err != nil {
			return nil, err
		}
	}
	return enc, nil
}

// RollInitiative promotes a pending encounter to active: stats for every
// combatant are fetched in parallel against the stats budget, initiative is
// d20 + dexterity modifier (or the raw roll when the fetch failed), and the
// first turn is armed through the pacer.
func (m *Manager) RollInitiative(ctx context.Context, sessionID string) error {
	e, ok := m.registry.Get(sessionID)
	if !ok {
		return fmt.Errorf("roll initiative for %q: %w", sessionID, encounter.ErrNotFound)
	}

	combatants := e.Combatants()
	statsCtx, cancel := context.WithTimeout(ctx, m.tun.StatsTimeout)
	defer cancel()

	fetched := make([]encounter.Stats, len(combatants))
	failures := make([]error, len(combatants))
	var wg sync.WaitGroup
	for i, c := range combatants {
		wg.Add(1)
		go func(i int, ref encounter.Actor) {
			defer wg.Done()
			fetched[i], failures[i] = m.stats.GetOrCreateStats(statsCtx, ref)
		}(i, c.Ref)
	}
	wg.Wait()

	statsOf := make(map[string]encounter.Stats, len(combatants))
	initiative := make(map[string]int, len(combatants))
	for i, c := range combatants {
		roll := m.roller.Die(20)
		if failures[i] != nil {
			m.logger.Warn("stats fetch failed, initiative falls back to the raw roll",
				zap.String("combatant", c.ID),
				zap.Error(failures[i]),
			)
			initiative[c.ID] = roll
			continue
		}
		statsOf[c.ID] = fetched[i]
		initiative[c.ID] = roll + encounter.AbilityMod(fetched[i].Dexterity)
	}

	m.combatMu.Lock()
	err := e.Activate(time.Now(), func(c *encounter.Combatant) {
		if s, ok := statsOf[c.ID]; ok {
			c.SetStats(s)
		}
		if iv, ok := initiative[c.ID]; ok {
			c.Initiative = iv
		}
	})
	if err == nil && m.scripts != nil {
		m.scripts.CallHook(e.GroupID, "encounter_started", //nolint:errcheck
			lua.LString(e.SessionID),
			lua.LNumber(len(combatants)),
		)
	}
	m.combatMu.Unlock()
	if err != nil {
		return fmt.Errorf("roll initiative for %q: %w", sessionID, err)
	}

	m.logger.Info("initiative rolled",
		zap.String("session", sessionID),
		zap.Strings("order", e.Order()),
	)
	m.narrate(Narration{
		SessionID: e.SessionID,
		GroupID:   e.GroupID,
		Kind:      NarrationBegin,
		Line:      "Combat breaks out.",
		Round:     e.Round(),
	})
	m.scheduleTurn(e, false)
	return nil
}

// AddCombatant enrolls a new arrival mid-encounter. The actor gets stats
// and a one-off initiative roll, and the turn order is rebuilt around the
// currently acting combatant.
//
// Precondition: the session has an encounter that has not ended; the actor
// is not already enrolled and not inside a knockout cooldown.
func (m *Manager) AddCombatant(ctx context.Context, sessionID string, p Participant) error {
	e, ok := m.registry.Get(sessionID)
	if !ok {
		return fmt.Errorf("add combatant to %q: %w", sessionID, encounter.ErrNotFound)
	}
	if p.Ref == nil || p.Ref.ID() == "" {
		return fmt.Errorf("add combatant to %q: ref must carry an id", sessionID)
	}
	if !m.CanEnterCombat(p.Ref.ID()) {
		return fmt.Errorf("add combatant %q: %w", p.Ref.ID(), encounter.ErrOnCooldown)
	}

	c, err := encounter.NewCombatant(p.Ref, p.Kind, p.Mode)
	if err != nil {
		return fmt.Errorf("add combatant to %q: %w", sessionID, err)
	}

	statsCtx, cancel := context.WithTimeout(ctx, m.tun.StatsTimeout)
	defer cancel()
	roll := m.roller.Die(20)
	if s, err := m.stats.GetOrCreateStats(statsCtx, p.Ref); err != nil {
		m.logger.Warn("stats fetch failed, initiative falls back to the raw roll",
			zap.String("combatant", c.ID),
			zap.Error(err),
		)
		c.Initiative = roll
	} else {
		c.SetStats(s)
		c.Initiative = roll + c.DexMod
	}

	m.combatMu.Lock()
	defer m.combatMu.Unlock()
	if err := e.Insert(c); err != nil {
		return fmt.Errorf("add combatant to %q: %w", sessionID, err)
	}
	m.logger.Info("combatant joined",
		zap.String("session", sessionID),
		zap.String("combatant", c.ID),
		zap.Int("initiative", c.Initiative),
	)
	return nil
}

// IsTurn reports whether it is actorID's turn in the session's encounter.
func (m *Manager) IsTurn(sessionID, actorID string) bool {
	e, ok := m.registry.Get(sessionID)
	return ok && e.IsTurn(actorID)
}

// IsInActiveCombat reports whether the session has an active encounter, and
// when actorID is non-empty, whether that actor is enrolled in it.
func (m *Manager) IsInActiveCombat(sessionID, actorID string) bool {
	e, ok := m.registry.Get(sessionID)
	if !ok || !e.Active() {
		return false
	}
	return actorID == "" || e.Has(actorID)
}

// CanEnterCombat reports whether the actor is outside any knockout
// cooldown window.
func (m *Manager) CanEnterCombat(actorID string) bool {
	m.combatMu.Lock()
	defer m.combatMu.Unlock()
	return !m.inCooldownLocked(actorID, time.Now())
}

// CheckCombatActionAllowed applies the per-actor rate limit, recording the
// action when admitted.
func (m *Manager) CheckCombatActionAllowed(actorID string) bool {
	return m.limiter.Allow(actorID, time.Now())
}

// BeginManualAction pauses automatic turn starts for the session while an
// externally driven action is mid-flight. Calls nest.
func (m *Manager) BeginManualAction(sessionID string) error {
	e, ok := m.registry.Get(sessionID)
	if !ok {
		return fmt.Errorf("begin manual action for %q: %w", sessionID, encounter.ErrNotFound)
	}
	e.BeginManual()
	return nil
}

// EndManualAction releases one nested manual pause.
func (m *Manager) EndManualAction(sessionID string) error {
	e, ok := m.registry.Get(sessionID)
	if !ok {
		return fmt.Errorf("end manual action for %q: %w", sessionID, encounter.ErrNotFound)
	}
	e.EndManual()
	return nil
}

// AddTurnAdvanceBlocker registers a pending side effect that the next turn
// advance waits for, bounded by the media wait budget.
func (m *Manager) AddTurnAdvanceBlocker(sessionID string, b *encounter.Blocker) error {
	e, ok := m.registry.Get(sessionID)
	if !ok {
		return fmt.Errorf("add blocker for %q: %w", sessionID, encounter.ErrNotFound)
	}
	e.AddBlocker(b)
	return nil
}

// PreRegisterBlocker creates and registers a blocker before its side effect
// starts, returning the handle to resolve.
func (m *Manager) PreRegisterBlocker(sessionID string) (*encounter.Blocker, error) {
	e, ok := m.registry.Get(sessionID)
	if !ok {
		return nil, fmt.Errorf("pre-register blocker for %q: %w", sessionID, encounter.ErrNotFound)
	}
	return e.PreRegisterBlocker(), nil
}

// EvaluateEnd checks the session's encounter against the termination rules
// and ends it when one fires, reporting the reason.
func (m *Manager) EvaluateEnd(sessionID string) (encounter.EndReason, bool) {
	e, ok := m.registry.Get(sessionID)
	if !ok {
		return encounter.ReasonNone, false
	}

	m.combatMu.Lock()
	defer m.combatMu.Unlock()
	reason, over := e.CheckEnd(time.Now(), m.tun.MaxRounds, m.tun.IdleAfter)
	if over {
		m.finalizeLocked(e, reason)
	}
	return reason, over
}

// EndEncounter ends the session's encounter with the given reason. Ending
// an already ended encounter is a no-op.
func (m *Manager) EndEncounter(sessionID string, reason encounter.EndReason) error {
	e, ok := m.registry.Get(sessionID)
	if !ok {
		return fmt.Errorf("end encounter %q: %w", sessionID, encounter.ErrNotFound)
	}
	m.combatMu.Lock()
	defer m.combatMu.Unlock()
	m.finalizeLocked(e, reason)
	return nil
}

// CleanupStaleEncounters sweeps the registry, finishing anything the sweep
// handed back, and returns how many encounters were reclaimed.
func (m *Manager) CleanupStaleEncounters() int {
	m.combatMu.Lock()
	defer m.combatMu.Unlock()

	removed := m.registry.Sweep(time.Now())
	for _, e := range removed {
		if !e.Ended() {
			m.finalizeLocked(e, encounter.ReasonStale)
		}
	}
	return len(removed)
}

// Destroy tears down the session's encounter immediately: it is ended with
// reason destroyed and dropped from the registry. Missing sessions are a
// no-op.
func (m *Manager) Destroy(sessionID string) {
	e, ok := m.registry.Get(sessionID)
	if !ok {
		return
	}
	m.combatMu.Lock()
	defer m.combatMu.Unlock()
	m.finalizeLocked(e, encounter.ReasonDestroyed)
	m.registry.Remove(sessionID)
}

// Shutdown destroys every encounter. Called on process teardown.
func (m *Manager) Shutdown() {
	m.combatMu.Lock()
	defer m.combatMu.Unlock()
	for _, e := range m.registry.Snapshot() {
		m.finalizeLocked(e, encounter.ReasonDestroyed)
		m.registry.Remove(e.SessionID)
	}
}

// finalizeLocked ends e with reason and runs the end-of-encounter side
// effects exactly once: the ended hook, the end narration, summary media,
// and the audit write. The encounter stays registered; the watchdog sweep
// reclaims it.
//
// Precondition: combatMu is held.
func (m *Manager) finalizeLocked(e *encounter.Encounter, reason encounter.EndReason) {
	if !e.End(reason, time.Now()) {
		return
	}
	sum := buildSummary(e)
	m.logger.Info("encounter ended",
		zap.String("session", e.SessionID),
		zap.String("group", e.GroupID),
		zap.String("reason", string(reason)),
		zap.Int("rounds", sum.Rounds),
		zap.Strings("survivors", sum.Survivors),
	)

	if m.scripts != nil {
		m.scripts.CallHook(e.GroupID, "encounter_ended", //nolint:errcheck
			lua.LString(e.SessionID),
			lua.LString(string(reason)),
			lua.LNumber(sum.Rounds),
		)
	}
	m.narrate(Narration{
		SessionID: e.SessionID,
		GroupID:   e.GroupID,
		Kind:      NarrationEnd,
		Line:      endLine(reason, sum.Survivors),
		Round:     sum.Rounds,
	})
	if m.media != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), m.tun.MediaWaitTimeout)
			defer cancel()
			if err := m.media.GenerateSummaryMedia(ctx, sum); err != nil {
				m.logger.Debug("summary media skipped", zap.String("session", sum.SessionID), zap.Error(err))
			}
		}()
	}
	if m.sink != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), narrateTimeout)
			defer cancel()
			if err := m.sink.Save(ctx, sum); err != nil {
				m.logger.Warn("summary write failed",
					zap.String("session", sum.SessionID),
					zap.Error(err),
				)
			}
		}()
	}
}

// narrate dispatches ev to the narrator on its own goroutine. Failures are
// logged at debug and otherwise ignored.
func (m *Manager) narrate(ev Narration) {
	if m.narrator == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), narrateTimeout)
		defer cancel()
		if err := m.narrator.Narrate(ctx, ev); err != nil {
			m.logger.Debug("narration dropped",
				zap.String("kind", string(ev.Kind)),
				zap.Error(err),
			)
		}
	}()
}

// inCooldownLocked reports whether actorID is inside a knockout cooldown.
//
// Precondition: combatMu is held.
func (m *Manager) inCooldownLocked(actorID string, now time.Time) bool {
	until, ok := m.cooldowns[actorID]
	return ok && now.Before(until)
}
