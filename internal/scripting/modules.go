package scripting

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// RegisterModules registers all engine.* Lua tables into L.
//
// Precondition: L must be from NewSandboxedState.
// Postcondition: engine global is defined in L with the log, dice,
// combatant, combat, and encounter modules.
func (m *Manager) RegisterModules(L *lua.LState) {
	engine := L.NewTable()
	L.SetField(engine, "log", m.logModule(L))
	L.SetField(engine, "dice", m.diceModule(L))
	L.SetField(engine, "combatant", m.combatantModule(L))
	L.SetField(engine, "combat", m.combatModule(L))
	L.SetField(engine, "encounter", m.encounterModule(L))
	L.SetGlobal("engine", engine)
}

// logModule exposes engine.log.{debug,info,warn,error}(msg).
func (m *Manager) logModule(L *lua.LState) *lua.LTable {
	t := L.NewTable()
	bind := func(name string, log func(string, ...zap.Field)) {
		L.SetField(t, name, L.NewFunction(func(L *lua.LState) int {
			log(L.CheckString(1), zap.String("source", "lua"))
			return 0
		}))
	}
	bind("debug", m.logger.Debug)
	bind("info", m.logger.Info)
	bind("warn", m.logger.Warn)
	bind("error", m.logger.Error)
	return t
}

// diceModule exposes engine.dice.roll(expr) returning a table with total,
// dice, and modifier, or (nil, err) on a malformed expression.
func (m *Manager) diceModule(L *lua.LState) *lua.LTable {
	t := L.NewTable()
	L.SetField(t, "roll", L.NewFunction(func(L *lua.LState) int {
		expr := L.CheckString(1)
		res, err := m.roller.RollExpr(expr)
		if err != nil {
			L.Push(lua.LNil)
			L.Push(lua.LString(err.Error()))
			return 2
		}
		out := L.NewTable()
		L.SetField(out, "total", lua.LNumber(res.Total()))
		L.SetField(out, "modifier", lua.LNumber(res.Modifier))
		L.SetField(out, "expression", lua.LString(res.Expression))
		dice := L.NewTable()
		for _, d := range res.Dice {
			dice.Append(lua.LNumber(d))
		}
		L.SetField(out, "dice", dice)
		L.Push(out)
		return 1
	}))
	return t
}

// combatantModule exposes read accessors over the GetCombatant callback:
// engine.combatant.{get_hp,get_name,get_ac,get_conditions,query}(id).
// Every accessor returns nil when the callback is unset or the id unknown.
func (m *Manager) combatantModule(L *lua.LState) *lua.LTable {
	t := L.NewTable()
	lookup := func(L *lua.LState) *CombatantInfo {
		if m.GetCombatant == nil {
			return nil
		}
		return m.GetCombatant(L.CheckString(1))
	}
	L.SetField(t, "get_hp", L.NewFunction(func(L *lua.LState) int {
		c := lookup(L)
		if c == nil {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LNumber(c.HP))
		return 1
	}))
	L.SetField(t, "get_name", L.NewFunction(func(L *lua.LState) int {
		c := lookup(L)
		if c == nil {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LString(c.Name))
		return 1
	}))
	L.SetField(t, "get_ac", L.NewFunction(func(L *lua.LState) int {
		c := lookup(L)
		if c == nil {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LNumber(c.AC))
		return 1
	}))
	L.SetField(t, "get_conditions", L.NewFunction(func(L *lua.LState) int {
		c := lookup(L)
		if c == nil {
			L.Push(lua.LNil)
			return 1
		}
		out := L.NewTable()
		for _, id := range c.Conditions {
			out.Append(lua.LString(id))
		}
		L.Push(out)
		return 1
	}))
	L.SetField(t, "query", L.NewFunction(func(L *lua.LState) int {
		c := lookup(L)
		if c == nil {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(combatantToTable(L, c))
		return 1
	}))
	return t
}

// combatModule exposes engine.combat.apply_condition(id, cond, stacks,
// duration) over the ApplyCondition callback. Returns true on success or
// (false, err) on failure; a no-op true when the callback is unset.
func (m *Manager) combatModule(L *lua.LState) *lua.LTable {
	t := L.NewTable()
	L.SetField(t, "apply_condition", L.NewFunction(func(L *lua.LState) int {
		id := L.CheckString(1)
		condID := L.CheckString(2)
		stacks := L.CheckInt(3)
		duration := L.CheckInt(4)
		if m.ApplyCondition == nil {
			L.Push(lua.LTrue)
			return 1
		}
		if err := m.ApplyCondition(id, condID, stacks, duration); err != nil {
			L.Push(lua.LFalse)
			L.Push(lua.LString(err.Error()))
			return 2
		}
		L.Push(lua.LTrue)
		return 1
	}))
	return t
}

// encounterModule exposes engine.encounter.query(session_id) and
// engine.encounter.broadcast(group_id, msg) over the QueryEncounter and
// Broadcast callbacks.
func (m *Manager) encounterModule(L *lua.LState) *lua.LTable {
	t := L.NewTable()
	L.SetField(t, "query", L.NewFunction(func(L *lua.LState) int {
		sessionID := L.CheckString(1)
		if m.QueryEncounter == nil {
			L.Push(lua.LNil)
			return 1
		}
		info := m.QueryEncounter(sessionID)
		if info == nil {
			L.Push(lua.LNil)
			return 1
		}
		out := L.NewTable()
		L.SetField(out, "session_id", lua.LString(info.SessionID))
		L.SetField(out, "group_id", lua.LString(info.GroupID))
		L.SetField(out, "state", lua.LString(info.State))
		L.SetField(out, "round", lua.LNumber(info.Round))
		combatants := L.NewTable()
		for _, id := range info.Combatants {
			combatants.Append(lua.LString(id))
		}
		L.SetField(out, "combatants", combatants)
		L.Push(out)
		return 1
	}))
	L.SetField(t, "broadcast", L.NewFunction(func(L *lua.LState) int {
		groupID := L.CheckString(1)
		msg := L.CheckString(2)
		if m.Broadcast != nil {
			m.Broadcast(groupID, msg)
		}
		return 0
	}))
	return t
}

// combatantToTable converts a CombatantInfo snapshot into a Lua table.
func combatantToTable(L *lua.LState, c *CombatantInfo) *lua.LTable {
	t := L.NewTable()
	L.SetField(t, "id", lua.LString(c.ID))
	L.SetField(t, "name", lua.LString(c.Name))
	L.SetField(t, "kind", lua.LString(c.Kind))
	L.SetField(t, "hp", lua.LNumber(c.HP))
	L.SetField(t, "max_hp", lua.LNumber(c.MaxHP))
	L.SetField(t, "ac", lua.LNumber(c.AC))
	L.SetField(t, "defending", lua.LBool(c.Defending))
	conds := L.NewTable()
	for _, id := range c.Conditions {
		conds.Append(lua.LString(id))
	}
	L.SetField(t, "conditions", conds)
	return t
}
