package scope

import (
	"fmt"
	"strings"

	"github.com/chazu/quadra/errs"
	"github.com/chazu/quadra/memory"
)

// ID indexes a scope in the tree.
type ID int

// NoScope is the parent of the root scope.
const NoScope ID = -1

type node struct {
	parent  ID
	aliases map[string]Alias
	class   *Class
}

// Tree is the scope forest of one compilation unit together with the
// cursors that track the innermost enclosing function and class.
type Tree struct {
	mem     *memory.Memory
	nodes   []node
	current ID
	classes map[string]*Class

	function *Function
	fnScope  ID
	class    *Class
	context  *Class
}

// NewTree creates a tree with a single root scope. Storage for declared
// variables is taken from mem.
func NewTree(mem *memory.Memory) *Tree {
	return &Tree{
		mem:     mem,
		nodes:   []node{{parent: NoScope, aliases: make(map[string]Alias)}},
		classes: make(map[string]*Class),
		fnScope: NoScope,
	}
}

// Push creates a child of the current scope and makes it current.
func (t *Tree) Push() ID {
	t.nodes = append(t.nodes, node{parent: t.current, aliases: make(map[string]Alias)})
	t.current = ID(len(t.nodes) - 1)
	return t.current
}

// Pop makes the parent of the current scope current. Popping the root is
// a no-op.
func (t *Tree) Pop() {
	if p := t.nodes[t.current].parent; p != NoScope {
		t.current = p
	}
}

// Current returns the current scope.
func (t *Tree) Current() ID { return t.current }

// Parent returns the parent of id, or NoScope for the root.
func (t *Tree) Parent(id ID) ID { return t.nodes[id].parent }

// Len returns the number of scopes ever created.
func (t *Tree) Len() int { return len(t.nodes) }

// CurrentFunction returns the function whose body is being declared.
func (t *Tree) CurrentFunction() *Function { return t.function }

// CurrentClass returns the class whose body is being declared.
func (t *Tree) CurrentClass() *Class { return t.class }

func (t *Tree) storage() memory.Scope {
	if t.function != nil {
		return memory.Local
	}
	return memory.Global
}

// inClassBody reports whether declarations land directly in a class scope.
func (t *Tree) inClassBody() bool {
	return t.class != nil && t.function == nil && t.current == t.class.Scope
}

func (t *Tree) declare(a Alias) error {
	scope := t.nodes[t.current].aliases
	if _, ok := scope[a.AliasName()]; ok {
		return errs.Newf(errs.KindRedeclaration, "alias %q already declared in this scope", a.AliasName())
	}
	scope[a.AliasName()] = a
	return nil
}

func (t *Tree) checkRedeclare(name string) error {
	if _, ok := t.nodes[t.current].aliases[name]; ok {
		return errs.Newf(errs.KindRedeclaration, "alias %q already declared in this scope", name)
	}
	return nil
}

// DeclareVariable declares a scalar or array variable. Inside a class body
// it declares a field instead.
func (t *Tree) DeclareVariable(name string, typ memory.DataType, dims []int) (*Variable, error) {
	if !typ.HasArena() || typ == memory.Object {
		return nil, errs.Newf(errs.KindType, "cannot declare variable %q of type %s", name, typ)
	}
	for _, d := range dims {
		if d < 1 {
			return nil, errs.Newf(errs.KindDimensionMismatch, "variable %q has non-positive extent %d", name, d)
		}
	}
	if err := t.checkRedeclare(name); err != nil {
		return nil, err
	}
	v := &Variable{Name: name, Type: typ, Dims: append([]int(nil), dims...)}
	if err := t.place(v, false); err != nil {
		return nil, err
	}
	return v, t.declare(v)
}

// DeclareObject declares a variable referencing an instance of className.
func (t *Tree) DeclareObject(name, className string) (*Variable, error) {
	if _, ok := t.classes[className]; !ok {
		return nil, errs.Newf(errs.KindUnresolvedAlias, "class %q does not exist", className)
	}
	if err := t.checkRedeclare(name); err != nil {
		return nil, err
	}
	v := &Variable{Name: name, Type: memory.Object, Class: className}
	if err := t.place(v, true); err != nil {
		return nil, err
	}
	return v, t.declare(v)
}

// place assigns storage: a slot inside the object for fields, an arena
// block otherwise.
func (t *Tree) place(v *Variable, ref bool) error {
	if t.inClassBody() {
		v.Owner = t.class.Name
		v.Slot = t.class.size
		v.Address = memory.Address{Scope: memory.Stack, Type: v.Type, Offset: uint32(v.Slot)}
		t.class.size += v.Size()
		t.class.Fields = append(t.class.Fields, v)
		return nil
	}
	addr, err := t.mem.Allocate(t.storage(), v.Type, v.Size(), ref)
	if err != nil {
		return fmt.Errorf("declare %q: %w", v.Name, err)
	}
	v.Address = addr
	return nil
}

// DeclareArgument declares a formal argument of the current function.
func (t *Tree) DeclareArgument(name string, typ memory.DataType, dims []int) (*Variable, error) {
	if t.function == nil {
		return nil, errs.Newf(errs.KindUnresolvedAlias, "argument %q declared outside a function", name)
	}
	v, err := t.DeclareVariable(name, typ, dims)
	if err != nil {
		return nil, err
	}
	t.function.Args = append(t.function.Args, v)
	return v, nil
}

// DeclareObjectArgument declares an object-typed formal argument.
func (t *Tree) DeclareObjectArgument(name, className string) (*Variable, error) {
	if t.function == nil {
		return nil, errs.Newf(errs.KindUnresolvedAlias, "argument %q declared outside a function", name)
	}
	v, err := t.DeclareObject(name, className)
	if err != nil {
		return nil, err
	}
	t.function.Args = append(t.function.Args, v)
	return v, nil
}

// DeclareFunction declares a function starting at quadruple index start,
// makes it the current function and pushes its body scope. Inside a class
// body the function becomes a method with the implicit this argument. A
// negative start declares a host function, which gets no result cell.
func (t *Tree) DeclareFunction(name string, ret memory.DataType, start int) (*Function, error) {
	if t.function != nil {
		return nil, fmt.Errorf("function %q declared inside function %q", name, t.function.Name)
	}
	if ret != memory.Void && (!ret.HasArena() || ret == memory.Object) {
		return nil, errs.Newf(errs.KindType, "function %q cannot return %s", name, ret)
	}
	if err := t.checkRedeclare(name); err != nil {
		return nil, err
	}
	fn := &Function{Name: name, Return: ret, Start: start}
	if ret != memory.Void && start >= 0 {
		addr, err := t.mem.Allocate(t.storage(), ret, 1, false)
		if err != nil {
			return nil, fmt.Errorf("declare %q: %w", name, err)
		}
		fn.Result = &addr
	}
	method := t.inClassBody()
	if method {
		fn.Owner = t.class.Name
		t.class.Methods = append(t.class.Methods, fn)
		if name == ConstructorName {
			t.class.Constructor = fn
		}
	}
	if err := t.declare(fn); err != nil {
		return nil, err
	}

	t.function = fn
	t.fnScope = t.Push()
	if method {
		if _, err := t.DeclareObjectArgument(ThisName, fn.Owner); err != nil {
			return nil, err
		}
	}
	return fn, nil
}

// CloseFunction leaves the current function body.
func (t *Tree) CloseFunction() (*Function, error) {
	fn := t.function
	if fn == nil {
		return nil, fmt.Errorf("close function outside of a function")
	}
	t.current = t.nodes[t.fnScope].parent
	t.function = nil
	t.fnScope = NoScope
	return fn, nil
}

// DeclareClass declares a class and enters its body scope.
func (t *Tree) DeclareClass(name string) (*Class, error) {
	if t.class != nil || t.function != nil {
		return nil, fmt.Errorf("class %q must be declared at top level", name)
	}
	if _, ok := t.classes[name]; ok {
		return nil, errs.Newf(errs.KindRedeclaration, "class %q already declared", name)
	}
	if err := t.checkRedeclare(name); err != nil {
		return nil, err
	}
	c := &Class{Name: name}
	if err := t.declare(c); err != nil {
		return nil, err
	}
	c.Scope = t.Push()
	t.nodes[c.Scope].class = c
	t.classes[name] = c
	t.class = c
	return c, nil
}

// CloseClass leaves the current class body.
func (t *Tree) CloseClass() error {
	if t.class == nil {
		return fmt.Errorf("close class outside of a class")
	}
	if t.function != nil {
		return fmt.Errorf("class %q closed inside method %q", t.class.Name, t.function.Name)
	}
	t.current = t.nodes[t.class.Scope].parent
	t.class = nil
	return nil
}

// Class looks up a class by name.
func (t *Tree) Class(name string) (*Class, error) {
	c, ok := t.classes[name]
	if !ok {
		return nil, errs.Newf(errs.KindUnresolvedAlias, "class %q does not exist", name)
	}
	return c, nil
}

// SetContext makes the next resolution start inside c's scope. Only the
// class's own members are visible while a context is set.
func (t *Tree) SetContext(c *Class) { t.context = c }

// ClearContext restores plain resolution.
func (t *Tree) ClearContext() { t.context = nil }

// Context returns the class of the active member context, if any.
func (t *Tree) Context() *Class { return t.context }

// Resolve looks name up from the current scope (or the context class)
// through the ancestor chain.
func (t *Tree) Resolve(name string) (Alias, error) {
	if t.context != nil {
		if a, ok := t.nodes[t.context.Scope].aliases[name]; ok {
			return a, nil
		}
		return nil, errs.Newf(errs.KindUnresolvedAlias, "class %q has no member %q", t.context.Name, name)
	}
	for id := t.current; id != NoScope; id = t.nodes[id].parent {
		if a, ok := t.nodes[id].aliases[name]; ok {
			return a, nil
		}
	}
	return nil, errs.Newf(errs.KindUnresolvedAlias, "alias %q does not exist", name)
}

// ResolveVariable resolves name and checks it is a variable with the given
// number of dimensions.
func (t *Tree) ResolveVariable(name string, dims int) (*Variable, error) {
	a, err := t.Resolve(name)
	if err != nil {
		return nil, err
	}
	switch a := a.(type) {
	case *Variable:
		if len(a.Dims) != dims {
			return nil, errs.Newf(errs.KindDimensionMismatch,
				"variable %s used with %d indices, declared %s", name, dims, shape(a.Dims))
		}
		return a, nil
	case *Function:
		return nil, errs.Newf(errs.KindType, "function %q used as a variable", name)
	case *Class:
		return nil, errs.Newf(errs.KindType, "class %q used as a variable", name)
	}
	return nil, fmt.Errorf("unknown alias kind for %q", name)
}

// ResolveFunction resolves name and checks it is callable.
func (t *Tree) ResolveFunction(name string) (*Function, error) {
	a, err := t.Resolve(name)
	if err != nil {
		return nil, err
	}
	switch a := a.(type) {
	case *Function:
		return a, nil
	case *Variable:
		return nil, errs.Newf(errs.KindType, "variable %q is not callable", name)
	case *Class:
		return nil, errs.Newf(errs.KindType, "class %q called without new", name)
	}
	return nil, fmt.Errorf("unknown alias kind for %q", name)
}

func shape(dims []int) string {
	if len(dims) == 0 {
		return "as scalar"
	}
	parts := make([]string, len(dims))
	for i, d := range dims {
		parts[i] = fmt.Sprintf("[%d]", d)
	}
	return "as " + strings.Join(parts, "")
}
