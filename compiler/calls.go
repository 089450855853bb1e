package compiler

import (
	"fmt"

	"github.com/chazu/quadra/errs"
	"github.com/chazu/quadra/memory"
	"github.com/chazu/quadra/quad"
	"github.com/chazu/quadra/scope"
)

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

// OnDeclareVariable declares a scalar or array variable, or a field when
// inside a class body.
func (g *Generator) OnDeclareVariable(name string, typ memory.DataType, dims []int) error {
	_, err := g.tree.DeclareVariable(name, typ, dims)
	return err
}

// OnDeclareObject declares a variable holding an instance of class.
func (g *Generator) OnDeclareObject(name, class string) error {
	_, err := g.tree.DeclareObject(name, class)
	return err
}

// OnDeclareArgument declares the next formal argument of the current
// function. Arguments are bound by value, so arrays are rejected.
func (g *Generator) OnDeclareArgument(name string, typ memory.DataType, dims []int) error {
	if len(dims) > 0 {
		return errs.Newf(errs.KindDimensionMismatch, "argument %q: array arguments are not supported", name)
	}
	_, err := g.tree.DeclareArgument(name, typ, nil)
	return err
}

// OnDeclareObjectArgument declares an object-typed formal argument.
func (g *Generator) OnDeclareObjectArgument(name, class string) error {
	_, err := g.tree.DeclareObjectArgument(name, class)
	return err
}

// OnDeclareFunction declares a function whose body starts at the next
// instruction.
func (g *Generator) OnDeclareFunction(name string, ret memory.DataType) error {
	_, err := g.tree.DeclareFunction(name, ret, g.store.Len())
	return err
}

// OnDeclareNativeFunction declares a function implemented by the host.
// Its arguments follow as OnDeclareArgument events; it has no body.
func (g *Generator) OnDeclareNativeFunction(name string, ret memory.DataType) error {
	if g.tree.CurrentClass() != nil {
		return fmt.Errorf("native %q declared inside class %q", name, g.tree.CurrentClass().Name)
	}
	fn, err := g.tree.DeclareFunction(name, ret, -1)
	if err != nil {
		return err
	}
	fn.Native = true
	return nil
}

// OnCloseFunction ends the current function body. A body that can reach
// its end gets an implicit RETURN. LOCAL and TEMP storage is recycled for
// the next body, so no operand may outlive it.
func (g *Generator) OnCloseFunction() error {
	fn := g.tree.CurrentFunction()
	if fn == nil {
		return fmt.Errorf("close function outside of a function")
	}
	if n := len(g.operands); n != 0 {
		return errs.Newf(errs.KindStructuralJump,
			"%d operands left on the stack at the end of %q", n, fn.Name)
	}
	if !fn.Native && g.fallsOffEnd(fn) {
		g.emit(quad.Quad{Op: quad.OpReturn, Left: quad.N(fn.Name)})
	}
	if _, err := g.tree.CloseFunction(); err != nil {
		return err
	}
	g.mem.ResetLocals()
	return nil
}

// fallsOffEnd reports whether control can reach the end of fn's body:
// either the last instruction is not a RETURN or some jump in the body
// targets the end.
func (g *Generator) fallsOffEnd(fn *scope.Function) bool {
	last, ok := g.store.Last()
	if !ok || last.Op != quad.OpReturn || g.store.Len()-1 < fn.Start {
		return true
	}
	end := g.store.Len()
	for i := fn.Start; i < end; i++ {
		if t, ok := g.store.At(i).Target(); ok && t == end && g.store.At(i).Op.IsJump() {
			return true
		}
	}
	return false
}

// OnDeclareClass opens a class body.
func (g *Generator) OnDeclareClass(name string) error {
	_, err := g.tree.DeclareClass(name)
	return err
}

// OnCloseClass closes the current class body.
func (g *Generator) OnCloseClass() error {
	return g.tree.CloseClass()
}

// ---------------------------------------------------------------------------
// Calls and object creation
// ---------------------------------------------------------------------------

// OnFunctionCall calls the pending identifier with the arguments on top of
// the operand stack. Non-void calls leave their value on the stack.
func (g *Generator) OnFunctionCall() error {
	e, err := g.popName()
	if err != nil {
		return err
	}
	if e.class != nil {
		g.tree.SetContext(e.class)
	}
	fn, err := g.tree.ResolveFunction(e.name)
	g.tree.ClearContext()
	if err != nil {
		return err
	}

	var recv *memory.Address
	if fn.IsMethod() {
		if e.base != nil {
			recv = e.base
		} else {
			this, err := g.receiver(fn.Owner, fn.Name)
			if err != nil {
				return err
			}
			recv = &this
		}
	}
	return g.call(fn, recv)
}

// call emits the calling sequence for fn. User functions get AIR, one
// PARAM per formal in declaration order (this first for methods) and
// CALL; natives buffer their arguments with NPARAM and run through NCALL.
func (g *Generator) call(fn *scope.Function, recv *memory.Address) error {
	formals := fn.Args
	if fn.IsMethod() {
		if recv == nil {
			return errs.Newf(errs.KindUnresolvedAlias, "method %q called without a receiver", fn.Name)
		}
		formals = formals[1:]
	}
	if len(g.operands) < len(formals) {
		return errs.Newf(errs.KindType, "%q takes %d arguments, %d available", fn.Name, len(formals), len(g.operands))
	}
	args, classes, err := g.popClassed(len(formals))
	if err != nil {
		return err
	}

	if fn.Native {
		for _, a := range args {
			g.emit(quad.Quad{Op: quad.OpNParam, Left: quad.A(a)})
		}
		q := quad.Quad{Op: quad.OpNCall, Left: quad.N(fn.Name)}
		if fn.IsVoid() {
			g.emit(q)
			return nil
		}
		dst, err := g.temp(fn.Return)
		if err != nil {
			return err
		}
		q.Result = quad.A(dst)
		g.emit(q)
		g.push(operand{addr: dst, typ: fn.Return})
		return nil
	}

	for k, f := range formals {
		if _, err := quad.ResultType(f.Type, args[k].Type, quad.OpAssign); err != nil {
			return fmt.Errorf("argument %q of %q: %w", f.Name, fn.Name, err)
		}
		if err := checkClass(f.Class, classes[k]); err != nil {
			return fmt.Errorf("argument %q of %q: %w", f.Name, fn.Name, err)
		}
		if args[k], err = g.convert(f.Type, args[k]); err != nil {
			return err
		}
	}

	g.emit(quad.Quad{Op: quad.OpAir, Left: quad.N(fn.Name)})
	if recv != nil {
		g.emit(quad.Quad{Op: quad.OpParam, Left: quad.A(*recv), Result: quad.A(fn.Args[0].Address)})
	}
	for k, f := range formals {
		g.emit(quad.Quad{Op: quad.OpParam, Left: quad.A(args[k]), Result: quad.A(f.Address)})
	}
	g.emit(quad.Quad{Op: quad.OpCall, Left: quad.N(fn.Name), Result: quad.T(fn.Start)})

	if fn.IsVoid() {
		return nil
	}
	dst, err := g.temp(fn.Return)
	if err != nil {
		return err
	}
	g.emit(quad.Quad{Op: quad.OpStore, Left: quad.A(*fn.Result), Result: quad.A(dst)})
	g.push(operand{addr: dst, typ: fn.Return})
	return nil
}

// OnObjectCreation instantiates the class named by the pending identifier:
// MALLOC sized to the class, then the constructor call with the new
// object as receiver. The object pointer is left on the operand stack.
func (g *Generator) OnObjectCreation() error {
	e, err := g.popName()
	if err != nil {
		return err
	}
	c, err := g.tree.Class(e.name)
	if err != nil {
		return err
	}
	ptr, err := g.mem.Allocate(memory.Temp, memory.Object, 1, true)
	if err != nil {
		return err
	}
	g.emit(quad.Quad{Op: quad.OpMalloc, Left: quad.L(memory.IntValue(int64(c.Size()))), Result: quad.A(ptr)})

	if c.Constructor != nil {
		if err := g.call(c.Constructor, &ptr); err != nil {
			return err
		}
		if !c.Constructor.IsVoid() {
			if _, err := g.pop(); err != nil {
				return err
			}
		}
	}
	g.push(operand{addr: ptr, typ: memory.Object, class: c.Name})
	return nil
}

// OnReturn returns from the current function, storing the value on the
// operand stack, if any, into the function's result cell.
func (g *Generator) OnReturn() error {
	fn := g.tree.CurrentFunction()
	if fn == nil {
		return fmt.Errorf("return outside of a function")
	}
	if len(g.operands) == 0 {
		if !fn.IsVoid() {
			return errs.Newf(errs.KindType, "%q must return a %s value", fn.Name, fn.Return)
		}
		g.emit(quad.Quad{Op: quad.OpReturn, Left: quad.N(fn.Name)})
		return nil
	}

	v, err := g.popValue()
	if err != nil {
		return err
	}
	if fn.IsVoid() {
		return errs.Newf(errs.KindType, "void function %q returns a %s value", fn.Name, v.Type)
	}
	if v.Type != fn.Return {
		return errs.Newf(errs.KindType, "%q returns %s, declared %s", fn.Name, v.Type, fn.Return)
	}
	g.emit(quad.Quad{Op: quad.OpStore, Left: quad.A(v), Result: quad.A(*fn.Result)})
	g.emit(quad.Quad{Op: quad.OpReturn, Left: quad.N(fn.Name)})
	return nil
}
