package vm

import (
	"github.com/chazu/quadra/errs"
	"github.com/chazu/quadra/memory"
	"github.com/chazu/quadra/quad"
)

// handler executes one decoded instruction. Handlers set vm.next to
// redirect control.
type handler func(vm *VM, q quad.Quad) error

var handlers [256]handler

func init() {
	handlers[quad.OpNop] = execNop
	handlers[quad.OpInit] = execNop
	handlers[quad.OpExit] = execExit
	handlers[quad.OpGoto] = execGoto
	handlers[quad.OpGotoT] = execBranch(true)
	handlers[quad.OpGotoF] = execBranch(false)

	handlers[quad.OpLoad] = execLoad
	handlers[quad.OpStore] = execStore
	handlers[quad.OpALoad] = execALoad
	handlers[quad.OpAStore] = execAStore
	handlers[quad.OpMalloc] = execMalloc

	handlers[quad.OpAir] = execAir
	handlers[quad.OpParam] = execParam
	handlers[quad.OpCall] = execCall
	handlers[quad.OpReturn] = execReturn
	handlers[quad.OpNParam] = execNParam
	handlers[quad.OpNCall] = execNCall

	for op := 0; op < len(handlers); op++ {
		if quad.Pure(quad.Op(op)) {
			handlers[op] = execOperator
		}
	}
}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

func execNop(vm *VM, q quad.Quad) error { return nil }

func execExit(vm *VM, q quad.Quad) error {
	if depth := vm.mem.FrameDepth(); depth > 0 || len(vm.returns) > 0 {
		return errs.Newf(errs.KindActivationImbalance,
			"exit with %d open activation records", depth)
	}
	vm.halted = true
	vm.next = vm.ip
	return nil
}

func execGoto(vm *VM, q quad.Quad) error { return vm.jump(q) }

func execBranch(when bool) handler {
	return func(vm *VM, q quad.Quad) error {
		cond, err := vm.read(q.Left)
		if err != nil {
			return err
		}
		if cond.Truthy() == when {
			return vm.jump(q)
		}
		return nil
	}
}

// ---------------------------------------------------------------------------
// Data movement
// ---------------------------------------------------------------------------

func execLoad(vm *VM, q quad.Quad) error {
	if !q.Left.IsLit() {
		return errs.Newf(errs.KindRuntime, "LOAD of non-literal %s", q.Left)
	}
	return vm.write(q.Result, q.Left.Lit)
}

func execStore(vm *VM, q quad.Quad) error {
	v, err := vm.read(q.Left)
	if err != nil {
		return err
	}
	return vm.write(q.Result, v)
}

func execALoad(vm *VM, q quad.Quad) error {
	if !q.Result.IsAddr() {
		return errs.Newf(errs.KindRuntime, "ALOAD into %s", q.Result)
	}
	cell, err := vm.element(q.Left, q.Right, q.Result.Addr.Type)
	if err != nil {
		return err
	}
	v, err := vm.mem.Load(cell)
	if err != nil {
		return err
	}
	return vm.write(q.Result, v)
}

func execAStore(vm *VM, q quad.Quad) error {
	v, err := vm.read(q.Result)
	if err != nil {
		return err
	}
	cell, err := vm.element(q.Left, q.Right, q.Result.Type())
	if err != nil {
		return err
	}
	return vm.store(cell, v)
}

func execMalloc(vm *VM, q quad.Quad) error {
	size, err := vm.read(q.Left)
	if err != nil {
		return err
	}
	n := int(size.AsInt())
	if n < 1 {
		// Classes without fields still get a distinct address.
		n = 1
	}
	ptr, err := vm.mem.Allocate(memory.Stack, memory.Object, n, false)
	if err != nil {
		return err
	}
	return vm.write(q.Result, memory.PointerValue(ptr))
}

func execOperator(vm *VM, q quad.Quad) error {
	var l, r memory.Value
	var err error
	if q.Left.Kind != quad.KindNone {
		if l, err = vm.read(q.Left); err != nil {
			return err
		}
	}
	if q.Right.Kind != quad.KindNone {
		if r, err = vm.read(q.Right); err != nil {
			return err
		}
	}
	v, err := quad.Eval(q.Op, l, r)
	if err != nil {
		return err
	}
	return vm.write(q.Result, v)
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

func execAir(vm *VM, q quad.Quad) error {
	vm.mem.SnapshotFrame()
	vm.open++
	return nil
}

func execParam(vm *VM, q quad.Quad) error {
	v, err := vm.read(q.Left)
	if err != nil {
		return err
	}
	if !q.Result.IsAddr() {
		return errs.Newf(errs.KindRuntime, "PARAM into %s", q.Result)
	}
	vm.params = append(vm.params, binding{value: v, dst: q.Result.Addr})
	return nil
}

func execCall(vm *VM, q quad.Quad) error {
	if vm.open == 0 {
		return errs.Newf(errs.KindActivationImbalance, "call of %s without an activation record", q.Left)
	}
	for _, b := range vm.params {
		if err := vm.store(b.dst, b.value); err != nil {
			return err
		}
	}
	vm.params = vm.params[:0]
	vm.open--
	vm.returns = append(vm.returns, vm.ip+1)
	if err := vm.jump(q); err != nil {
		return err
	}
	if vm.profiler != nil {
		vm.profiler.RecordCall(vm.next)
	}
	return nil
}

func execReturn(vm *VM, q quad.Quad) error {
	if len(vm.returns) == 0 {
		return errs.Newf(errs.KindActivationImbalance, "return from %s with no caller", q.Left)
	}
	if err := vm.mem.RestoreFrame(); err != nil {
		return err
	}
	vm.next = vm.returns[len(vm.returns)-1]
	vm.returns = vm.returns[:len(vm.returns)-1]
	return nil
}

func execNParam(vm *VM, q quad.Quad) error {
	v, err := vm.read(q.Left)
	if err != nil {
		return err
	}
	vm.nparams = append(vm.nparams, v)
	return nil
}

func execNCall(vm *VM, q quad.Quad) error {
	name := q.Left.Name
	native, ok := vm.natives.Lookup(name)
	if !ok {
		return errs.Newf(errs.KindRuntime, "unknown native function %q", name)
	}
	args := vm.nparams
	vm.nparams = nil
	v, err := native.Execute(args)
	if err != nil {
		return err
	}
	if q.Result.IsAddr() {
		return vm.write(q.Result, v)
	}
	return nil
}
