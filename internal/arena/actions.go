package arena

import (
	"context"
	"fmt"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/game/duel"
	"github.com/cory-johannsen/skirmish/internal/game/encounter"
)

// HandleAttackResult applies an externally resolved attack to the session's
// encounter. Damage lands regardless of whose turn it is; the turn only
// advances when the actor held it. A knockout starts the target's re-entry
// cooldown and, when a media generator is wired, pre-registers a blocker so
// the advance waits for the highlight.
func (m *Manager) HandleAttackResult(sessionID, actorID string, res encounter.ActionResult) (encounter.AttackReport, error) {
	e, ok := m.registry.Get(sessionID)
	if !ok {
		return encounter.AttackReport{}, fmt.Errorf("attack in %q: %w", sessionID, encounter.ErrNotFound)
	}

	m.combatMu.Lock()
	report, err := e.ApplyAttack(actorID, res, time.Now())
	if err != nil {
		m.combatMu.Unlock()
		return encounter.AttackReport{}, fmt.Errorf("attack in %q: %w", sessionID, err)
	}
	advanceNow := m.afterActionLocked(e, report)
	m.combatMu.Unlock()

	if advanceNow {
		// Off the caller's goroutine: the advance may wait on blockers.
		go m.advance(e)
	}
	return report, nil
}

// HandleFlee resolves a flee attempt for actorID: d20 + dexterity modifier
// against the highest escape DC among living opponents. Success removes the
// actor, starts their re-entry cooldown, and relocates them; an encounter
// left with at most one living combatant ends with reason flee. Win or
// lose, the attempt consumes the actor's turn.
func (m *Manager) HandleFlee(sessionID, actorID string) (encounter.FleeResult, error) {
	e, ok := m.registry.Get(sessionID)
	if !ok {
		return encounter.FleeResult{}, fmt.Errorf("flee from %q: %w", sessionID, encounter.ErrNotFound)
	}

	roll := m.roller.Die(20)

	m.combatMu.Lock()
	var ref encounter.Actor
	if c, ok := e.Combatant(actorID); ok {
		ref = c.Ref
	}
	fr, err := e.ResolveFlee(actorID, roll, time.Now())
	if err != nil {
		m.combatMu.Unlock()
		return encounter.FleeResult{}, fmt.Errorf("flee from %q: %w", sessionID, err)
	}

	line := fmt.Sprintf("%s tries to break away but is cut off (%d vs DC %d).", fr.ActorName, fr.Total, fr.DC)
	advanceNow := false
	if fr.Success {
		line = fmt.Sprintf("%s slips away from the fight (%d vs DC %d).", fr.ActorName, fr.Total, fr.DC)
		m.cooldowns[actorID] = time.Now().Add(m.tun.KnockoutCooldown)
		m.logger.Info("combatant fled",
			zap.String("session", sessionID),
			zap.String("combatant", actorID),
			zap.Int("total", fr.Total),
			zap.Int("dc", fr.DC),
		)
	}
	if fr.Success && fr.Standing <= 1 {
		m.finalizeLocked(e, encounter.ReasonFlee)
	} else {
		// ResolveFlee only resolves on the actor's turn, so the attempt
		// consumes it whether or not the escape landed.
		advanceNow = e.TryBeginAdvance()
	}
	round := e.Round()
	m.combatMu.Unlock()

	m.narrate(Narration{
		SessionID: e.SessionID,
		GroupID:   e.GroupID,
		Kind:      NarrationFlee,
		Actor:     fr.ActorName,
		Line:      line,
		Round:     round,
	})
	if fr.Success && m.mover != nil && ref != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), relocateTimeout)
			defer cancel()
			if err := m.mover.Relocate(ctx, ref, m.tun.FleeDestination); err != nil {
				m.logger.Warn("flee relocation failed",
					zap.String("combatant", actorID),
					zap.String("destination", m.tun.FleeDestination),
					zap.Error(err),
				)
			}
		}()
	}
	if advanceNow {
		go m.advance(e)
	}
	return fr, nil
}

// afterActionLocked runs the shared post-attack tail: narration, knockout
// bookkeeping, end evaluation, and the advance gate. It reports whether the
// caller should advance the turn after releasing combatMu.
//
// Precondition: combatMu is held.
func (m *Manager) afterActionLocked(e *encounter.Encounter, report encounter.AttackReport) bool {
	now := time.Now()
	m.narrate(Narration{
		SessionID: e.SessionID,
		GroupID:   e.GroupID,
		Kind:      NarrationAttack,
		Actor:     report.ActorName,
		Target:    report.TargetName,
		Line:      attackLine(report),
		Round:     report.Round,
	})

	if report.KnockedOut {
		m.cooldowns[report.TargetID] = now.Add(m.tun.KnockoutCooldown)
		m.logger.Info("combatant down",
			zap.String("session", e.SessionID),
			zap.String("combatant", report.TargetID),
			zap.Bool("lethal", report.Outcome == encounter.OutcomeDead),
		)
		if m.scripts != nil {
			m.scripts.CallHook(e.GroupID, "combatant_down", //nolint:errcheck
				lua.LString(e.SessionID),
				lua.LString(report.TargetID),
				lua.LBool(report.Outcome == encounter.OutcomeDead),
			)
		}
		m.narrate(Narration{
			SessionID: e.SessionID,
			GroupID:   e.GroupID,
			Kind:      NarrationKnockout,
			Actor:     report.ActorName,
			Target:    report.TargetName,
			Line:      knockoutLine(report),
			Round:     report.Round,
		})
		if m.media != nil {
			b := e.PreRegisterBlocker()
			sum := buildSummary(e)
			go func() {
				defer b.Resolve()
				ctx, cancel := context.WithTimeout(context.Background(), m.tun.MediaWaitTimeout)
				defer cancel()
				if err := m.media.GenerateSummaryMedia(ctx, sum); err != nil {
					m.logger.Debug("knockout media skipped",
						zap.String("session", e.SessionID),
						zap.Error(err),
					)
				}
			}()
		}
	}

	if reason, over := e.CheckEnd(now, m.tun.MaxRounds, m.tun.IdleAfter); over {
		m.finalizeLocked(e, reason)
		return false
	}
	if !report.ActorsTurn {
		return false
	}
	return e.TryBeginAdvance()
}

// autoAct runs the automatic action for the combatant holding the turn:
// attack the weakest living opponent, or defend when nobody is left to hit.
// Armed by the pacer for mode-auto combatants; the sequence number discards
// callbacks for turns that already moved on.
func (m *Manager) autoAct(e *encounter.Encounter, seq uint64) {
	m.combatMu.Lock()
	if !e.Active() || e.TurnSeq() != seq {
		m.combatMu.Unlock()
		return
	}
	actorID := e.CurrentCombatantID()
	actor, ok := e.Combatant(actorID)
	if !ok || actor.Incapacitated() {
		m.combatMu.Unlock()
		return
	}

	target := duel.ChooseTarget(actor, e.Combatants())
	if target == nil {
		if reason, over := e.CheckEnd(time.Now(), m.tun.MaxRounds, m.tun.IdleAfter); over {
			m.finalizeLocked(e, reason)
		}
		m.combatMu.Unlock()
		return
	}

	res := m.executor.Attack(actor, target)
	report, err := e.ApplyAttack(actorID, res, time.Now())
	if err != nil {
		m.combatMu.Unlock()
		m.logger.Warn("auto action failed",
			zap.String("session", e.SessionID),
			zap.String("combatant", actorID),
			zap.Error(err),
		)
		return
	}
	advanceNow := m.afterActionLocked(e, report)
	m.combatMu.Unlock()

	if advanceNow {
		m.advance(e)
	}
}

// advance waits out the registered blockers against the media budget, then
// moves the cursor and schedules the next turn. The gate is released on
// every path.
//
// Precondition: the caller holds the advance gate via TryBeginAdvance;
// combatMu is not held.
func (m *Manager) advance(e *encounter.Encounter) {
	defer e.FinishAdvance()

	ctx, cancel := context.WithTimeout(context.Background(), m.tun.MediaWaitTimeout)
	err := e.AwaitBlockers(ctx)
	cancel()
	if err != nil {
		m.logger.Debug("advancing past unresolved blockers",
			zap.String("session", e.SessionID),
			zap.Error(err),
		)
	}

	m.combatMu.Lock()
	defer m.combatMu.Unlock()
	m.advanceLocked(e)
}

// advanceLocked moves the cursor and either finalizes the encounter or
// schedules the next turn.
//
// Precondition: combatMu is held.
func (m *Manager) advanceLocked(e *encounter.Encounter) {
	if !e.Active() {
		return
	}
	now := time.Now()
	adv, err := e.AdvanceTurn(now, m.tun.MaxRounds, m.skipLocked(now))
	if err != nil {
		return
	}
	if adv.MaxedOut {
		m.finalizeLocked(e, encounter.ReasonMaxRounds)
		return
	}
	if adv.AllSkipped {
		if reason, over := e.CheckEnd(now, m.tun.MaxRounds, m.tun.IdleAfter); over {
			m.finalizeLocked(e, reason)
		}
		return
	}
	m.scheduleTurn(e, adv.Wrapped)
}

// skipLocked returns the advance skip predicate: combatants inside a
// knockout cooldown do not take turns.
//
// Precondition: combatMu is held for the lifetime of the returned func.
func (m *Manager) skipLocked(now time.Time) func(id string) bool {
	return func(id string) bool {
		return m.inCooldownLocked(id, now)
	}
}
