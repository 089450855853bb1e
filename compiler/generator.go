// Package compiler turns the semantic events raised by a front end into a
// quadruple program. A Generator owns every piece of compilation state, so
// one Generator is one compilation unit; nothing is shared between them.
package compiler

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/quadra/errs"
	"github.com/chazu/quadra/memory"
	"github.com/chazu/quadra/quad"
	"github.com/chazu/quadra/scope"
)

var log = commonlog.GetLogger("quadra.compiler")

// Options configures a Generator.
type Options struct {
	Memory memory.Options
}

// operand is an entry of the operand stack. Plain operands name a value
// cell. Element operands name a cell indirectly: base is an array base or
// an object pointer cell and index the flattened element offset.
type operand struct {
	addr  memory.Address
	typ   memory.DataType
	class string

	elem  bool
	base  memory.Address
	index quad.Operand
}

// contextEntry is either a name awaiting resolution or, when name is
// empty, the resolved receiver of a member access chain.
type contextEntry struct {
	name  string
	base  *memory.Address
	class *scope.Class
}

// Generator is the IR generator for one compilation unit.
type Generator struct {
	mem   *memory.Memory
	tree  *scope.Tree
	store *quad.Store
	jumps quad.Backpatcher

	operands []operand
	contexts []contextEntry

	started bool
}

// NewGenerator creates a generator whose first instruction is the jump to
// the program entry, patched by OnProgramInit.
func NewGenerator(opts Options) *Generator {
	mem := memory.New(opts.Memory)
	g := &Generator{
		mem:   mem,
		tree:  scope.NewTree(mem),
		store: quad.NewStore(),
	}
	g.emit(quad.Quad{Op: quad.OpGoto})
	return g
}

// Program returns the instructions emitted so far.
func (g *Generator) Program() []quad.Quad { return g.store.Quads() }

// Scope exposes the scope tree.
func (g *Generator) Scope() *scope.Tree { return g.tree }

// Memory exposes the compile-time memory model.
func (g *Generator) Memory() *memory.Memory { return g.mem }

// Depth returns the operand stack height.
func (g *Generator) Depth() int { return len(g.operands) }

func (g *Generator) emit(q quad.Quad) int {
	i := g.store.Emit(q)
	log.Debugf("%04d %s", i, quad.Format(q))
	return i
}

func (g *Generator) temp(t memory.DataType) (memory.Address, error) {
	return g.mem.Allocate(memory.Temp, t, 1, false)
}

// ---------------------------------------------------------------------------
// Operand stack
// ---------------------------------------------------------------------------

func (g *Generator) push(o operand) { g.operands = append(g.operands, o) }

func (g *Generator) pop() (operand, error) {
	if len(g.operands) == 0 {
		return operand{}, fmt.Errorf("operand stack underflow")
	}
	o := g.operands[len(g.operands)-1]
	g.operands = g.operands[:len(g.operands)-1]
	return o, nil
}

// popValue pops an operand and returns the address of its value, loading
// element operands through ALOAD first.
func (g *Generator) popValue() (memory.Address, error) {
	o, err := g.pop()
	if err != nil {
		return memory.Address{}, err
	}
	return g.deref(o)
}

func (g *Generator) deref(o operand) (memory.Address, error) {
	if !o.elem {
		return o.addr, nil
	}
	dst, err := g.temp(o.typ)
	if err != nil {
		return memory.Address{}, err
	}
	g.emit(quad.Quad{Op: quad.OpALoad, Left: quad.A(o.base), Right: o.index, Result: quad.A(dst)})
	return dst, nil
}

// popValues pops n values and returns them in push order.
func (g *Generator) popValues(n int) ([]memory.Address, error) {
	out, _, err := g.popClassed(n)
	return out, err
}

// popClassed is popValues that also returns the class of each OBJECT
// value, "" where it is not known.
func (g *Generator) popClassed(n int) ([]memory.Address, []string, error) {
	if len(g.operands) < n {
		return nil, nil, fmt.Errorf("operand stack underflow: need %d values, have %d", n, len(g.operands))
	}
	out := make([]memory.Address, n)
	classes := make([]string, n)
	for k := n - 1; k >= 0; k-- {
		o, err := g.pop()
		if err != nil {
			return nil, nil, err
		}
		if out[k], err = g.deref(o); err != nil {
			return nil, nil, err
		}
		classes[k] = o.class
	}
	return out, classes, nil
}

// checkClass rejects storing an instance of class have into a cell
// declared for class want. An unknown class on either side passes.
func checkClass(want, have string) error {
	if want != "" && have != "" && want != have {
		return errs.Newf(errs.KindType, "cannot store a %s object into a %s", have, want)
	}
	return nil
}

// convert returns src coerced for storage into a cell of type target,
// emitting F2I or I2F when the numeric kinds differ.
func (g *Generator) convert(target memory.DataType, src memory.Address) (memory.Address, error) {
	var op quad.Op
	switch {
	case target == memory.Int && src.Type == memory.Float:
		op = quad.OpF2I
	case target == memory.Float && src.Type == memory.Int:
		op = quad.OpI2F
	default:
		return src, nil
	}
	dst, err := g.temp(target)
	if err != nil {
		return memory.Address{}, err
	}
	g.emit(quad.Quad{Op: op, Right: quad.A(src), Result: quad.A(dst)})
	return dst, nil
}

// ---------------------------------------------------------------------------
// Context stack
// ---------------------------------------------------------------------------

func (g *Generator) topBase() (contextEntry, bool) {
	if n := len(g.contexts); n > 0 && g.contexts[n-1].name == "" {
		return g.contexts[n-1], true
	}
	return contextEntry{}, false
}

func (g *Generator) popName() (contextEntry, error) {
	n := len(g.contexts)
	if n == 0 || g.contexts[n-1].name == "" {
		return contextEntry{}, fmt.Errorf("no identifier pending resolution")
	}
	e := g.contexts[n-1]
	g.contexts = g.contexts[:n-1]
	return e, nil
}

// takeBase pops the receiver left by a member context step, if any.
func (g *Generator) takeBase() (*memory.Address, *scope.Class) {
	e, ok := g.topBase()
	if !ok {
		return nil, nil
	}
	g.contexts = g.contexts[:len(g.contexts)-1]
	return e.base, e.class
}

// ---------------------------------------------------------------------------
// Expression events
// ---------------------------------------------------------------------------

// OnConstant loads a literal into a fresh temporary.
func (g *Generator) OnConstant(v memory.Value) error {
	if !v.Type.HasArena() || v.Type == memory.Object {
		return errs.Newf(errs.KindType, "no literal of type %s", v.Type)
	}
	dst, err := g.temp(v.Type)
	if err != nil {
		return err
	}
	g.emit(quad.Quad{Op: quad.OpLoad, Left: quad.L(v), Result: quad.A(dst)})
	g.push(operand{addr: dst, typ: v.Type})
	return nil
}

// OnIdentifier records a name for a later variable, call or object
// creation event. A receiver left by OnMemberContext is captured with it
// and the member context is cleared, so argument expressions that follow
// resolve normally.
func (g *Generator) OnIdentifier(name string) error {
	base, class := g.takeBase()
	g.tree.ClearContext()
	g.contexts = append(g.contexts, contextEntry{name: name, base: base, class: class})
	return nil
}

// OnMemberContext resolves an object variable (or object field of the
// current receiver) and makes its class the resolution context of the
// next member step.
func (g *Generator) OnMemberContext(name string) error {
	base, class := g.takeBase()
	o, err := g.variable(name, 0, base, class)
	if err != nil {
		return err
	}
	if o.typ != memory.Object {
		return errs.Newf(errs.KindType, "%q is %s, not an object", name, o.typ)
	}
	c, err := g.tree.Class(o.class)
	if err != nil {
		return err
	}
	ptr, err := g.deref(o)
	if err != nil {
		return err
	}
	g.contexts = append(g.contexts, contextEntry{base: &ptr, class: c})
	g.tree.SetContext(c)
	return nil
}

// OnContextClear drops any receiver left on the context stack and
// restores plain resolution.
func (g *Generator) OnContextClear() error {
	for {
		if _, ok := g.topBase(); !ok {
			break
		}
		g.contexts = g.contexts[:len(g.contexts)-1]
	}
	g.tree.ClearContext()
	return nil
}

// OnVariableOperand resolves the pending identifier as a variable used
// with dims indices, which must be on top of the operand stack.
func (g *Generator) OnVariableOperand(dims int) error {
	e, err := g.popName()
	if err != nil {
		return err
	}
	o, err := g.variable(e.name, dims, e.base, e.class)
	if err != nil {
		return err
	}
	g.push(o)
	return nil
}

// variable resolves name and builds its operand. Fields resolve inside
// class and read through base, or through the implicit receiver when base
// is nil.
func (g *Generator) variable(name string, dims int, base *memory.Address, class *scope.Class) (operand, error) {
	if class != nil {
		g.tree.SetContext(class)
	}
	v, err := g.tree.ResolveVariable(name, dims)
	g.tree.ClearContext()
	if err != nil {
		return operand{}, err
	}

	if !v.IsField() {
		if dims == 0 {
			return operand{addr: v.Address, typ: v.Type, class: v.Class}, nil
		}
		off, err := g.flatten(v)
		if err != nil {
			return operand{}, err
		}
		return operand{typ: v.Type, elem: true, base: v.Address.Plain(), index: quad.A(off.WithRef(true))}, nil
	}

	if base == nil {
		recv, err := g.receiver(v.Owner, name)
		if err != nil {
			return operand{}, err
		}
		base = &recv
	}
	index := quad.L(memory.IntValue(int64(v.Slot)))
	if dims > 0 {
		off, err := g.flatten(v)
		if err != nil {
			return operand{}, err
		}
		if v.Slot > 0 {
			sum, err := g.temp(memory.Int)
			if err != nil {
				return operand{}, err
			}
			g.emit(quad.Quad{Op: quad.OpAdd, Left: quad.A(off), Right: index, Result: quad.A(sum)})
			off = sum
		}
		index = quad.A(off.WithRef(true))
	}
	return operand{typ: v.Type, class: v.Class, elem: true, base: *base, index: index}, nil
}

// receiver returns the implicit this of the enclosing method, which must
// belong to owner.
func (g *Generator) receiver(owner, member string) (memory.Address, error) {
	this, err := g.tree.ResolveVariable(scope.ThisName, 0)
	if err != nil || this.Class != owner {
		return memory.Address{}, errs.Newf(errs.KindUnresolvedAlias,
			"member %q of class %q used without a receiver", member, owner)
	}
	return this.Address, nil
}

// flatten pops one index per dimension of v and folds them row-major into
// a single element offset.
func (g *Generator) flatten(v *scope.Variable) (memory.Address, error) {
	idx, err := g.popValues(len(v.Dims))
	if err != nil {
		return memory.Address{}, err
	}
	for _, a := range idx {
		if a.Type != memory.Int {
			return memory.Address{}, errs.Newf(errs.KindType, "index of %q is %s, want INT", v.Name, a.Type)
		}
	}
	off := idx[0]
	for k := 1; k < len(idx); k++ {
		scaled, err := g.temp(memory.Int)
		if err != nil {
			return memory.Address{}, err
		}
		g.emit(quad.Quad{Op: quad.OpMul, Left: quad.A(off), Right: quad.L(memory.IntValue(int64(v.Dims[k]))), Result: quad.A(scaled)})
		sum, err := g.temp(memory.Int)
		if err != nil {
			return memory.Address{}, err
		}
		g.emit(quad.Quad{Op: quad.OpAdd, Left: quad.A(scaled), Right: quad.A(idx[k]), Result: quad.A(sum)})
		off = sum
	}
	return off, nil
}

// OnOperator applies a unary or binary operator to the values on top of
// the operand stack.
func (g *Generator) OnOperator(op quad.Op) error {
	switch op.Arity() {
	case 1:
		v, err := g.popValue()
		if err != nil {
			return err
		}
		typ, err := quad.ResultType(v.Type, v.Type, op)
		if err != nil {
			return err
		}
		return g.apply(op, quad.Empty, v, typ)
	case 2:
		if op == quad.OpAssign {
			return errs.Newf(errs.KindType, "assignment used as an expression operator")
		}
		r, err := g.popValue()
		if err != nil {
			return err
		}
		l, err := g.popValue()
		if err != nil {
			return err
		}
		typ, err := quad.ResultType(l.Type, r.Type, op)
		if err != nil {
			return err
		}
		return g.apply(op, quad.A(l), r, typ)
	}
	return fmt.Errorf("%s is not an operator", op)
}

func (g *Generator) apply(op quad.Op, left quad.Operand, right memory.Address, typ memory.DataType) error {
	if op == quad.OpDiv {
		op = quad.OpFDiv
		if typ == memory.Int {
			op = quad.OpIDiv
		}
	}
	dst, err := g.temp(typ)
	if err != nil {
		return err
	}
	g.emit(quad.Quad{Op: op, Left: left, Right: quad.A(right), Result: quad.A(dst)})
	g.push(operand{addr: dst, typ: typ})
	return nil
}

// OnAssignment stores the top value into the operand below it. Any binary
// operator other than = makes it a compound assignment.
func (g *Generator) OnAssignment(op quad.Op) error {
	rs, classes, err := g.popClassed(1)
	if err != nil {
		return err
	}
	r := rs[0]
	l, err := g.pop()
	if err != nil {
		return err
	}

	if op != quad.OpAssign {
		if op.Arity() != 2 {
			return fmt.Errorf("%s cannot form a compound assignment", op)
		}
		cur, err := g.deref(l)
		if err != nil {
			return err
		}
		typ, err := quad.ResultType(cur.Type, r.Type, op)
		if err != nil {
			return err
		}
		if err := g.apply(op, quad.A(cur), r, typ); err != nil {
			return err
		}
		if r, err = g.popValue(); err != nil {
			return err
		}
	}

	if _, err := quad.ResultType(l.typ, r.Type, quad.OpAssign); err != nil {
		return err
	}
	if err := checkClass(l.class, classes[0]); err != nil {
		return err
	}
	src, err := g.convert(l.typ, r)
	if err != nil {
		return err
	}
	if l.elem {
		g.emit(quad.Quad{Op: quad.OpAStore, Left: quad.A(l.base), Right: l.index, Result: quad.A(src)})
		return nil
	}
	g.emit(quad.Quad{Op: quad.OpStore, Left: quad.A(src), Result: quad.A(l.addr)})
	return nil
}

// OnExpressionStatement discards the value of an expression evaluated for
// its side effects.
func (g *Generator) OnExpressionStatement() error {
	if len(g.operands) > 0 {
		_, err := g.pop()
		return err
	}
	return nil
}
