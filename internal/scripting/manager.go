package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/game/dice"
)

// globalGroupID is the reserved key for shared scripts loaded via LoadGlobal.
// CallHook falls back to this VM when no group VM is found.
const globalGroupID = "__global__"

// CombatantInfo is a snapshot of a combatant's state passed to Lua callbacks.
type CombatantInfo struct {
	ID         string
	Name       string
	Kind       string
	HP         int
	MaxHP      int
	AC         int
	Defending  bool
	Conditions []string
}

// EncounterInfo is a snapshot of an encounter passed to Lua callbacks.
type EncounterInfo struct {
	SessionID  string
	GroupID    string
	State      string
	Round      int
	Combatants []string
}

// Manager owns one sandboxed LState per group and exposes hook dispatch.
//
// An LState is single-threaded, and CallHook does not serialize calls into
// the same group; the caller must. The arena manager dispatches every hook
// under its combat lock, which satisfies that. Different groups may run
// concurrently.
type Manager struct {
	mu      sync.RWMutex
	states  map[string]*lua.LState
	cancels map[string]func()
	roller  *dice.Roller
	logger  *zap.Logger

	// Injected after construction. nil = no-op in engine.* modules.
	GetCombatant   func(id string) *CombatantInfo
	ApplyCondition func(id, condID string, stacks, duration int) error
	Broadcast      func(groupID, msg string)
	QueryEncounter func(sessionID string) *EncounterInfo
}

// NewManager creates a Manager.
//
// Precondition: roller and logger must be non-nil.
// Postcondition: Returns a non-nil Manager with an empty group map.
func NewManager(roller *dice.Roller, logger *zap.Logger) *Manager {
	if roller == nil {
		panic("scripting: NewManager precondition violated: roller must be non-nil")
	}
	if logger == nil {
		panic("scripting: NewManager precondition violated: logger must be non-nil")
	}
	return &Manager{
		states:  make(map[string]*lua.LState),
		cancels: make(map[string]func()),
		roller:  roller,
		logger:  logger,
	}
}

// LoadGroup creates a sandboxed VM for groupID, registers all engine.*
// modules, then executes every *.lua file in scriptDir in lexicographic
// order.
//
// Precondition: groupID must be non-empty; scriptDir must be a readable directory.
// Postcondition: Group VM is registered; returns error on Lua load failure.
func (m *Manager) LoadGroup(groupID, scriptDir string, instLimit int) error {
	return m.loadInto(groupID, scriptDir, instLimit)
}

// LoadGlobal creates the "__global__" VM for shared scripts accessible as a
// CallHook fallback from any group.
//
// Precondition: scriptDir must be a readable directory.
// Postcondition: Global VM is registered; returns error on Lua load failure.
func (m *Manager) LoadGlobal(scriptDir string, instLimit int) error {
	return m.loadInto(globalGroupID, scriptDir, instLimit)
}

func (m *Manager) loadInto(key, scriptDir string, instLimit int) error {
	L, cancel := NewSandboxedState(instLimit)
	m.RegisterModules(L)

	entries, err := os.ReadDir(scriptDir)
	if err != nil {
		cancel()
		L.Close()
		return fmt.Errorf("scripting: reading script dir %q for %q: %w", scriptDir, key, err)
	}

	var luaFiles []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".lua" {
			luaFiles = append(luaFiles, filepath.Join(scriptDir, e.Name()))
		}
	}
	sort.Strings(luaFiles)

	for _, path := range luaFiles {
		if err := L.DoFile(path); err != nil {
			cancel()
			L.Close()
			return fmt.Errorf("scripting: loading %q for %q: %w", path, key, err)
		}
	}

	m.mu.Lock()
	if old, ok := m.states[key]; ok {
		if oldCancel := m.cancels[key]; oldCancel != nil {
			oldCancel()
		}
		old.Close()
	}
	m.states[key] = L
	m.cancels[key] = cancel
	m.mu.Unlock()
	return nil
}

// Close tears down every VM. The Manager must not be used afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, L := range m.states {
		if cancel := m.cancels[key]; cancel != nil {
			cancel()
		}
		L.Close()
		delete(m.states, key)
		delete(m.cancels, key)
	}
}

// CallHook calls the named Lua global function in groupID's VM. If the group
// has no VM, the __global__ VM is tried as a fallback. Returns (LNil, nil) if
// the hook is not defined or no VM exists. Lua runtime errors are logged at
// Warn level and never propagated.
//
// Precondition: args must be valid lua.LValue instances.
// Postcondition: Returns the first return value of the hook, or LNil.
func (m *Manager) CallHook(groupID, hook string, args ...lua.LValue) (lua.LValue, error) {
	m.mu.RLock()
	L, ok := m.states[groupID]
	if !ok {
		L = m.states[globalGroupID]
	}
	m.mu.RUnlock()

	if L == nil {
		m.logger.Debug("scripting: no VM for group",
			zap.String("group", groupID),
			zap.String("hook", hook),
		)
		return lua.LNil, nil
	}

	fn := L.GetGlobal(hook)
	if fn == lua.LNil {
		return lua.LNil, nil
	}

	if err := L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, args...); err != nil {
		m.logger.Warn("scripting: Lua runtime error",
			zap.String("group", groupID),
			zap.String("hook", hook),
			zap.Error(err),
		)
		return lua.LNil, nil
	}

	ret := L.Get(-1)
	L.Pop(1)
	return ret, nil
}
