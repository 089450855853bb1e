// Package vm executes quadruple programs: a fetch/decode/execute loop over
// the instruction list, activation records for calls and a registry of
// native functions.
package vm

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/tliron/commonlog"

	"github.com/chazu/quadra/errs"
	"github.com/chazu/quadra/memory"
	"github.com/chazu/quadra/quad"
)

var log = commonlog.GetLogger("quadra.vm")

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

// Options configures a VM.
type Options struct {
	Memory memory.Options

	// Natives resolves NCALL names. Nil means the standard set bound to
	// Stdout and Stdin.
	Natives *Registry
	Stdout  io.Writer
	Stdin   io.Reader

	// MaxSteps aborts the run after this many instructions. Zero means no
	// limit.
	MaxSteps uint64

	// Profile enables the opcode and call profiler.
	Profile bool
}

// ---------------------------------------------------------------------------
// VM
// ---------------------------------------------------------------------------

// VM is one execution of a program. It is single-threaded; a VM must not
// be shared between goroutines.
type VM struct {
	program []quad.Quad
	mem     *memory.Memory
	natives *Registry

	ip     int
	next   int
	halted bool
	steps  uint64
	limit  uint64

	// open counts activation records saved by AIR and not yet entered by
	// CALL.
	open    int
	returns []int
	params  []binding
	nparams []memory.Value

	profiler *Profiler
}

// binding is a buffered PARAM: the value is read in the caller's frame and
// written into the callee's formal at CALL.
type binding struct {
	value memory.Value
	dst   memory.Address
}

// New creates a VM positioned at the first instruction of program.
func New(program []quad.Quad, opts Options) *VM {
	natives := opts.Natives
	if natives == nil {
		out, in := opts.Stdout, opts.Stdin
		if out == nil {
			out = os.Stdout
		}
		if in == nil {
			in = os.Stdin
		}
		natives = StandardRegistry(out, in)
	}
	vm := &VM{
		program: program,
		mem:     memory.New(opts.Memory),
		natives: natives,
		limit:   opts.MaxSteps,
	}
	if opts.Profile {
		vm.profiler = NewProfiler()
	}
	return vm
}

// IP returns the index of the next instruction.
func (vm *VM) IP() int { return vm.ip }

// Halted reports whether the program has finished.
func (vm *VM) Halted() bool { return vm.halted }

// Steps returns the number of instructions executed so far.
func (vm *VM) Steps() uint64 { return vm.steps }

// Memory exposes the run-time memory.
func (vm *VM) Memory() *memory.Memory { return vm.mem }

// Profile returns the profiler, or nil when profiling is off.
func (vm *VM) Profile() *Profiler { return vm.profiler }

// Run executes until EXIT, the end of the program or an error. ctx is
// checked between instructions.
func (vm *VM) Run(ctx context.Context) error {
	log.Debugf("run: %d instructions", len(vm.program))
	for !vm.halted {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("ip %d: %w", vm.ip, err)
		}
		if err := vm.Step(); err != nil {
			return err
		}
	}
	log.Debugf("halted after %d steps", vm.steps)
	return nil
}

// Step executes one instruction.
func (vm *VM) Step() error {
	if vm.halted {
		return nil
	}
	if vm.ip < 0 || vm.ip >= len(vm.program) {
		vm.halted = true
		return nil
	}
	if vm.limit > 0 && vm.steps >= vm.limit {
		return errs.Newf(errs.KindRuntime, "step limit %d exceeded at ip %d", vm.limit, vm.ip)
	}

	q := vm.program[vm.ip]
	h := handlers[q.Op]
	if h == nil {
		return errs.Newf(errs.KindRuntime, "ip %d: unknown opcode %s", vm.ip, q.Op)
	}
	if log.AllowLevel(commonlog.Debug) {
		log.Debugf("%04d %s", vm.ip, quad.Format(q))
	}

	vm.next = vm.ip + 1
	if err := h(vm, q); err != nil {
		return fmt.Errorf("ip %d (%s): %w", vm.ip, q.Op, err)
	}
	vm.steps++
	if vm.profiler != nil {
		vm.profiler.RecordOp(q.Op)
	}
	vm.ip = vm.next
	return nil
}

// ---------------------------------------------------------------------------
// Operand access
// ---------------------------------------------------------------------------

// read returns the value of an address or literal operand.
func (vm *VM) read(o quad.Operand) (memory.Value, error) {
	switch o.Kind {
	case quad.KindLit:
		return o.Lit, nil
	case quad.KindAddr:
		return vm.mem.Load(o.Addr.Plain())
	}
	return memory.Value{}, errs.Newf(errs.KindRuntime, "operand %s has no value", o)
}

// write stores v at the address operand o, coerced to the address type.
func (vm *VM) write(o quad.Operand, v memory.Value) error {
	if !o.IsAddr() {
		return errs.Newf(errs.KindRuntime, "operand %s is not writable", o)
	}
	return vm.store(o.Addr, v)
}

func (vm *VM) store(addr memory.Address, v memory.Value) error {
	return vm.mem.Store(addr.Plain(), v.Coerce(addr.Type))
}

// element resolves base[index] to the cell holding a value of type typ.
// An OBJECT base is dereferenced to the heap block it points to.
func (vm *VM) element(base, index quad.Operand, typ memory.DataType) (memory.Address, error) {
	if !base.IsAddr() {
		return memory.Address{}, errs.Newf(errs.KindRuntime, "array base %s is not an address", base)
	}
	iv, err := vm.read(index)
	if err != nil {
		return memory.Address{}, err
	}
	idx := iv.AsInt()
	if idx < 0 {
		return memory.Address{}, errs.Newf(errs.KindRuntime, "negative index %d", idx)
	}

	origin := base.Addr.Plain()
	if origin.Type == memory.Object {
		pv, err := vm.mem.Load(origin)
		if err != nil {
			return memory.Address{}, err
		}
		if pv.Type != memory.Object || pv.Ptr.Scope != memory.Stack {
			return memory.Address{}, errs.Newf(errs.KindRuntime, "dereference of nil object %s", origin)
		}
		origin = pv.Ptr
	}

	offset := int64(origin.Offset) + idx
	if offset > memory.MaxOffset {
		return memory.Address{}, errs.Newf(errs.KindRuntime, "index %d out of the address space", idx)
	}
	return memory.Address{Scope: origin.Scope, Type: typ, Offset: uint32(offset)}, nil
}

// jump sets the next instruction.
func (vm *VM) jump(q quad.Quad) error {
	target, ok := q.Target()
	if !ok {
		return errs.Newf(errs.KindRuntime, "%s without a target", q.Op)
	}
	if target < 0 || target > len(vm.program) {
		return errs.Newf(errs.KindRuntime, "target %d outside the program", target)
	}
	vm.next = target
	return nil
}
