// Package scripting provides a sandboxed GopherLua execution environment
// for group-level encounter scripts. It has no dependency on game domain
// packages; all game interactions are injected via Manager callback fields.
package scripting

import (
	"context"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
)

// DefaultInstructionLimit is the maximum number of Lua opcodes allowed per
// script execution when no group-specific override is configured.
const DefaultInstructionLimit = 100_000

// safeLibs are the only stdlib openers a sandboxed VM gets. Anything that
// can touch the filesystem, the process, or the interpreter stays out.
var safeLibs = []func(*lua.LState) int{
	lua.OpenBase,
	lua.OpenTable,
	lua.OpenString,
	lua.OpenMath,
}

// unsafeGlobals are removed after OpenBase runs. dofile/loadfile reach the
// filesystem, load compiles arbitrary chunks, collectgarbage and require
// poke the interpreter.
var unsafeGlobals = []string{"dofile", "loadfile", "load", "collectgarbage", "require"}

// budgetContext cancels itself once Done() has been observed limit times.
// GopherLua's mainLoopWithContext calls Done() once per opcode, so the
// budget is an exact, deterministic opcode count.
type budgetContext struct {
	context.Context
	cancel context.CancelFunc
	left   atomic.Int64
}

func newBudgetContext(limit int) (*budgetContext, context.CancelFunc) {
	base, cancel := context.WithCancel(context.Background())
	b := &budgetContext{Context: base, cancel: cancel}
	b.left.Store(int64(limit))
	return b, cancel
}

// Done decrements the budget and fires the cancel when it hits zero. The
// VM notices on the next opcode boundary and aborts the script.
func (b *budgetContext) Done() <-chan struct{} {
	if b.left.Add(-1) <= 0 {
		b.cancel()
	}
	return b.Context.Done()
}

// NewSandboxedState builds a GopherLua LState that exposes only base,
// table, string, and math, with the unsafe base globals stripped and
// execution capped at instLimit opcodes.
//
// Precondition: instLimit >= 0; 0 uses DefaultInstructionLimit.
// Postcondition: Returns a non-nil LState ready for RegisterModules and
// DoFile, plus the cancel releasing the budget context. The caller owns
// the LState and must call L.Close() when done.
func NewSandboxedState(instLimit int) (*lua.LState, context.CancelFunc) {
	limit := instLimit
	if limit <= 0 {
		limit = DefaultInstructionLimit
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, open := range safeLibs {
		open(L)
	}
	for _, name := range unsafeGlobals {
		L.SetGlobal(name, lua.LNil)
	}

	ctx, cancel := newBudgetContext(limit)
	L.SetContext(ctx)

	return L, cancel
}
