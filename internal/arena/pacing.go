package arena

import (
	"fmt"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/game/encounter"
)

// scheduleTurn arms the schedule timer for the current turn. The delay
// keeps a minimum gap from the last action and adds the round cooldown
// after a wrap. Callbacks carry the turn sequence so a cursor move between
// arming and firing voids them.
func (m *Manager) scheduleTurn(e *encounter.Encounter, wrapped bool) {
	now := time.Now()
	delay := encounter.TurnDelay(now, e.LastActionAt(), wrapped, m.tun.MinTurnGap, m.tun.RoundCooldown)
	seq := e.TurnSeq()
	e.Timers().Arm(encounter.TimerSchedule, delay, func() {
		m.beginTurn(e, seq)
	})
}

// beginTurn starts the scheduled turn: clears the holder's defending
// stance, fires banter and the turn hook, and arms the turn-timeout timer,
// plus the auto-act timer for combatants that act on their own. A manual
// pause defers the start and retries on the same sequence.
func (m *Manager) beginTurn(e *encounter.Encounter, seq uint64) {
	m.combatMu.Lock()
	if !e.Active() || e.TurnSeq() != seq {
		m.combatMu.Unlock()
		return
	}
	if e.ManualDepth() > 0 {
		e.Timers().Arm(encounter.TimerSchedule, m.tun.MinTurnGap, func() {
			m.beginTurn(e, seq)
		})
		m.combatMu.Unlock()
		return
	}

	info, err := e.StartTurn(time.Now())
	if err != nil {
		m.combatMu.Unlock()
		return
	}

	banterLine, banterName, banter := m.banterLocked(e)
	if m.scripts != nil {
		m.scripts.CallHook(e.GroupID, "turn_started", //nolint:errcheck
			lua.LString(e.SessionID),
			lua.LString(info.CombatantID),
			lua.LNumber(info.Round),
		)
	}

	e.Timers().Arm(encounter.TimerTurnTimeout, m.tun.TurnTimeout, func() {
		m.onTurnTimeout(e, seq)
	})
	if info.Mode == encounter.ModeAuto {
		e.Timers().Arm(encounter.TimerAutoAct, m.tun.AutoActDelay, func() {
			m.autoAct(e, seq)
		})
	}
	m.combatMu.Unlock()

	m.logger.Debug("turn started",
		zap.String("session", e.SessionID),
		zap.String("combatant", info.CombatantID),
		zap.Int("round", info.Round),
		zap.String("mode", info.Mode.String()),
	)
	if banter {
		m.narrate(Narration{
			SessionID: e.SessionID,
			GroupID:   e.GroupID,
			Kind:      NarrationBanter,
			Actor:     banterName,
			Line:      banterLine,
			Round:     info.Round,
		})
	}
	m.narrate(Narration{
		SessionID: e.SessionID,
		GroupID:   e.GroupID,
		Kind:      NarrationTurn,
		Actor:     info.Name,
		Line:      fmt.Sprintf("%s steps up.", info.Name),
		Round:     info.Round,
	})
}

// onTurnTimeout fires when the turn holder ran out of time. Auto
// combatants take their swing immediately; manual ones fall back to a
// defensive stance and the turn moves on. Also invoked by the watchdog as
// a stall recovery, so it tolerates being called for turns that already
// resolved.
func (m *Manager) onTurnTimeout(e *encounter.Encounter, seq uint64) {
	m.combatMu.Lock()
	if !e.Active() || e.TurnSeq() != seq {
		m.combatMu.Unlock()
		return
	}
	id := e.CurrentCombatantID()
	c, ok := e.Combatant(id)
	if !ok {
		m.combatMu.Unlock()
		return
	}
	if c.Incapacitated() {
		// Holder went down to an off-turn hit; just move the cursor along.
		advanceNow := e.TryBeginAdvance()
		m.combatMu.Unlock()
		if advanceNow {
			m.advance(e)
		}
		return
	}
	if c.Mode == encounter.ModeAuto {
		m.combatMu.Unlock()
		m.autoAct(e, seq)
		return
	}

	now := time.Now()
	defender, err := e.DefendCurrent(now)
	if err != nil {
		m.combatMu.Unlock()
		return
	}
	bonus := m.executor.Defend(defender)
	advanceNow := false
	if reason, over := e.CheckEnd(now, m.tun.MaxRounds, m.tun.IdleAfter); over {
		m.finalizeLocked(e, reason)
	} else {
		advanceNow = e.TryBeginAdvance()
	}
	round := e.Round()
	m.combatMu.Unlock()

	m.logger.Debug("turn timed out, defaulting to defend",
		zap.String("session", e.SessionID),
		zap.String("combatant", id),
	)
	m.narrate(Narration{
		SessionID: e.SessionID,
		GroupID:   e.GroupID,
		Kind:      NarrationTurn,
		Actor:     defender.Name,
		Line:      fmt.Sprintf("%s hesitates and falls back on guard (+%d defense).", defender.Name, bonus),
		Round:     round,
	})
	if advanceNow {
		m.advance(e)
	}
}

// banterLocked picks a speaker for the starting turn, at most one line per
// combatant per round and never the same voice twice running. Roughly one
// turn in four gets a line.
//
// Precondition: combatMu is held.
func (m *Manager) banterLocked(e *encounter.Encounter) (line, name string, ok bool) {
	if m.narrator == nil || m.roller.Die(4) != 1 {
		return "", "", false
	}
	speaker, found := e.NextSpeaker(func(n int) int { return m.roller.Source().Intn(n) })
	if !found {
		return "", "", false
	}
	if m.taunts != nil {
		if t, has := m.taunts.Taunt(speaker.ID); has && t != "" {
			return t, speaker.Name, true
		}
	}
	return stockBanter(m.roller.Source(), speaker.Name), speaker.Name, true
}
