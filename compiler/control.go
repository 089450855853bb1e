package compiler

import (
	"fmt"

	"github.com/chazu/quadra/errs"
	"github.com/chazu/quadra/memory"
	"github.com/chazu/quadra/quad"
)

// ---------------------------------------------------------------------------
// Scopes and jumps
// ---------------------------------------------------------------------------

// OnPushScope opens a block scope.
func (g *Generator) OnPushScope() error {
	g.tree.Push()
	return nil
}

// OnPopScope closes a block scope.
func (g *Generator) OnPopScope() error {
	g.tree.Pop()
	return nil
}

// OnPushJumpDelimiter opens a control construct on the backpatch stack.
func (g *Generator) OnPushJumpDelimiter() error {
	g.jumps.PushDelimiter()
	return nil
}

// OnPatchPendingJumps points every jump pending in the innermost construct
// at the next instruction and closes the construct.
func (g *Generator) OnPatchPendingJumps() error {
	return g.jumps.PatchAllPendingToCurrent(g.store)
}

// OnConditionalJump emits a GOTO_F on the condition value with its target
// left pending.
func (g *Generator) OnConditionalJump() error {
	cond, err := g.popValue()
	if err != nil {
		return err
	}
	switch cond.Type {
	case memory.Bool, memory.Int, memory.Float:
	default:
		return errs.Newf(errs.KindType, "condition of type %s", cond.Type)
	}
	g.jumps.PushPending(g.emit(quad.Quad{Op: quad.OpGotoF, Left: quad.A(cond)}))
	return nil
}

// OnJump emits a GOTO with its target left pending.
func (g *Generator) OnJump() error {
	g.jumps.PushPending(g.emit(quad.Quad{Op: quad.OpGoto}))
	return nil
}

// OnPatchJump points the pending jump n entries below the top of the
// backpatch stack at the next instruction.
func (g *Generator) OnPatchJump(n int) error {
	return g.jumps.PatchN(g.store, n)
}

// OnLoopStart records the next instruction as the head of a loop.
func (g *Generator) OnLoopStart() error {
	g.jumps.PushPending(g.store.Len())
	return nil
}

// OnLoopJump emits the backward jump to the loop head recorded n entries
// below the top of the backpatch stack.
func (g *Generator) OnLoopJump(n int) error {
	head, err := g.jumps.PopTarget(n)
	if err != nil {
		return err
	}
	g.emit(quad.Quad{Op: quad.OpGoto, Result: quad.T(head)})
	return nil
}

// ---------------------------------------------------------------------------
// Program boundaries
// ---------------------------------------------------------------------------

// OnProgramInit marks the program entry: the jump at instruction 0 is
// patched here and INIT is emitted.
func (g *Generator) OnProgramInit() error {
	if g.started {
		return errs.Newf(errs.KindStructuralJump, "program entry declared twice")
	}
	if g.tree.CurrentFunction() != nil || g.tree.CurrentClass() != nil {
		return fmt.Errorf("program entry inside a declaration")
	}
	g.started = true
	if err := g.store.SetTarget(0, g.store.Len()); err != nil {
		return err
	}
	g.emit(quad.Quad{Op: quad.OpInit})
	return nil
}

// OnProgramExit terminates the program. Every construct must be closed.
func (g *Generator) OnProgramExit() error {
	if !g.started {
		return errs.Newf(errs.KindStructuralJump, "program exit without an entry")
	}
	if n := g.jumps.Len(); n != 0 {
		return errs.Newf(errs.KindStructuralJump, "%d backpatch entries left open at exit", n)
	}
	g.emit(quad.Quad{Op: quad.OpExit})
	return nil
}
