package scripting_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/skirmish/internal/scripting"
)

// repoRoot walks up from the test's working directory to find the module root.
func repoRoot(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	root := wd
	for {
		if _, err := os.Stat(filepath.Join(root, "go.mod")); err == nil {
			return root
		}
		parent := filepath.Dir(root)
		if parent == root {
			t.Fatalf("could not find repo root from %s", wd)
		}
		root = parent
	}
}

// loadScriptDir loads all Lua files in the given directory into the __global__ VM.
func loadScriptDir(t *testing.T, mgr *scripting.Manager, relDir string) {
	t.Helper()
	dir := filepath.Join(repoRoot(t), relDir)
	require.NoError(t, mgr.LoadGlobal(dir, 0))
}

// wireRoster configures GetCombatant on mgr from a fixed combatant list.
func wireRoster(mgr *scripting.Manager, combatants []*scripting.CombatantInfo) {
	mgr.GetCombatant = func(id string) *scripting.CombatantInfo {
		for _, c := range combatants {
			if c.ID == id {
				return c
			}
		}
		return nil
	}
}

// --- is_desperate ---

func TestIsDesperate_BelowThird_ReturnsTrue(t *testing.T) {
	mgr, _ := newTestManager(t)
	loadScriptDir(t, mgr, "content/scripts/encounter")
	wireRoster(mgr, []*scripting.CombatantInfo{
		{ID: "c1", Name: "Bruiser", HP: 9, MaxHP: 30},
	})

	ret, err := mgr.CallHook("__global__", "is_desperate", lua.LString("c1"))
	require.NoError(t, err)
	assert.Equal(t, lua.LTrue, ret)
}

func TestIsDesperate_ExactlyThird_ReturnsFalse(t *testing.T) {
	mgr, _ := newTestManager(t)
	loadScriptDir(t, mgr, "content/scripts/encounter")
	// 10 of 30 is exactly a third, not strictly below.
	wireRoster(mgr, []*scripting.CombatantInfo{
		{ID: "c1", Name: "Bruiser", HP: 10, MaxHP: 30},
	})

	ret, err := mgr.CallHook("__global__", "is_desperate", lua.LString("c1"))
	require.NoError(t, err)
	assert.Equal(t, lua.LFalse, ret)
}

func TestIsDesperate_Healthy_ReturnsFalse(t *testing.T) {
	mgr, _ := newTestManager(t)
	loadScriptDir(t, mgr, "content/scripts/encounter")
	wireRoster(mgr, []*scripting.CombatantInfo{
		{ID: "c1", Name: "Bruiser", HP: 28, MaxHP: 30},
	})

	ret, err := mgr.CallHook("__global__", "is_desperate", lua.LString("c1"))
	require.NoError(t, err)
	assert.Equal(t, lua.LFalse, ret)
}

func TestIsDesperate_UnknownCombatant_ReturnsFalse(t *testing.T) {
	mgr, _ := newTestManager(t)
	loadScriptDir(t, mgr, "content/scripts/encounter")
	wireRoster(mgr, nil)

	ret, err := mgr.CallHook("__global__", "is_desperate", lua.LString("ghost"))
	require.NoError(t, err)
	assert.Equal(t, lua.LFalse, ret)
}

// --- down_line ---

func TestDownLine_Lethal(t *testing.T) {
	mgr, _ := newTestManager(t)
	loadScriptDir(t, mgr, "content/scripts/encounter")
	wireRoster(mgr, []*scripting.CombatantInfo{
		{ID: "c1", Name: "Bruiser", HP: 0, MaxHP: 30},
	})

	ret, err := mgr.CallHook("__global__", "down_line", lua.LString("c1"), lua.LTrue)
	require.NoError(t, err)
	assert.Equal(t, lua.LString("Bruiser will not be getting up."), ret)
}

func TestDownLine_Nonlethal(t *testing.T) {
	mgr, _ := newTestManager(t)
	loadScriptDir(t, mgr, "content/scripts/encounter")
	wireRoster(mgr, []*scripting.CombatantInfo{
		{ID: "c1", Name: "Bruiser", HP: 0, MaxHP: 30},
	})

	ret, err := mgr.CallHook("__global__", "down_line", lua.LString("c1"), lua.LFalse)
	require.NoError(t, err)
	assert.Equal(t, lua.LString("Bruiser is down!"), ret)
}

func TestDownLine_UnknownCombatant_FallsBackToID(t *testing.T) {
	mgr, _ := newTestManager(t)
	loadScriptDir(t, mgr, "content/scripts/encounter")
	wireRoster(mgr, nil)

	ret, err := mgr.CallHook("__global__", "down_line", lua.LString("ghost"), lua.LFalse)
	require.NoError(t, err)
	assert.Equal(t, lua.LString("ghost is down!"), ret)
}

// --- combatant_down hook ---

func TestCombatantDown_BroadcastsToGroup(t *testing.T) {
	mgr, _ := newTestManager(t)
	loadScriptDir(t, mgr, "content/scripts/encounter")
	wireRoster(mgr, []*scripting.CombatantInfo{
		{ID: "c1", Name: "Bruiser", HP: 0, MaxHP: 30},
	})
	mgr.QueryEncounter = func(sessionID string) *scripting.EncounterInfo {
		return &scripting.EncounterInfo{SessionID: sessionID, GroupID: "group1", State: "active", Round: 2}
	}
	var gotGroup, gotMsg string
	mgr.Broadcast = func(groupID, msg string) {
		gotGroup = groupID
		gotMsg = msg
	}

	_, err := mgr.CallHook("__global__", "combatant_down", lua.LString("sess1"), lua.LString("c1"), lua.LFalse)
	require.NoError(t, err)
	assert.Equal(t, "group1", gotGroup)
	assert.Equal(t, "Bruiser is down!", gotMsg)
}

func TestCombatantDown_NoEncounter_NoBroadcast(t *testing.T) {
	mgr, _ := newTestManager(t)
	loadScriptDir(t, mgr, "content/scripts/encounter")
	wireRoster(mgr, nil)
	called := false
	mgr.Broadcast = func(groupID, msg string) { called = true }

	_, err := mgr.CallHook("__global__", "combatant_down", lua.LString("sess1"), lua.LString("c1"), lua.LFalse)
	require.NoError(t, err)
	assert.False(t, called)
}

// --- lifecycle hooks never error ---

func TestLifecycleHooks_RunClean(t *testing.T) {
	mgr, logs := newTestManager(t)
	loadScriptDir(t, mgr, "content/scripts/encounter")
	wireRoster(mgr, []*scripting.CombatantInfo{
		{ID: "c1", Name: "Bruiser", HP: 5, MaxHP: 30},
	})

	_, err := mgr.CallHook("__global__", "encounter_started", lua.LString("sess1"), lua.LNumber(2))
	require.NoError(t, err)
	_, err = mgr.CallHook("__global__", "turn_started", lua.LString("sess1"), lua.LString("c1"), lua.LNumber(1))
	require.NoError(t, err)
	_, err = mgr.CallHook("__global__", "encounter_ended", lua.LString("sess1"), lua.LString("flee"), lua.LNumber(3))
	require.NoError(t, err)

	for _, e := range logs.All() {
		assert.NotEqual(t, "warn", e.Level.String(), "unexpected warn: %s", e.Message)
	}
}

// --- Property tests ---

func TestProperty_IsDesperate_ThirdBoundary(t *testing.T) {
	mgr, _ := newTestManager(t)
	loadScriptDir(t, mgr, "content/scripts/encounter")
	rapid.Check(t, func(rt *rapid.T) {
		maxHP := rapid.IntRange(1, 200).Draw(rt, "max_hp")
		hp := rapid.IntRange(0, maxHP).Draw(rt, "hp")
		wireRoster(mgr, []*scripting.CombatantInfo{
			{ID: "c1", Name: "X", HP: hp, MaxHP: maxHP},
		})

		ret, err := mgr.CallHook("__global__", "is_desperate", lua.LString("c1"))
		require.NoError(rt, err)

		if hp*3 < maxHP {
			assert.Equal(rt, lua.LTrue, ret, "hp=%d max=%d: expected true", hp, maxHP)
		} else {
			assert.Equal(rt, lua.LFalse, ret, "hp=%d max=%d: expected false", hp, maxHP)
		}
	})
}
