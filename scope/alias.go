// Package scope resolves names to aliases over a forest of scopes. Scopes
// live in a growable vector and refer to their parent by index; class
// bodies are scopes too, which is what makes member resolution a plain
// scope walk.
package scope

import (
	"github.com/chazu/quadra/memory"
)

// Alias is a named binding inside a scope. It is implemented by exactly
// three types: *Variable, *Function and *Class. Code that inspects an
// alias switches over those three.
type Alias interface {
	AliasName() string
	isAlias()
}

// Variable is a scalar, array or object binding.
type Variable struct {
	Name    string
	Type    memory.DataType
	Address memory.Address
	Dims    []int

	// Class is the class of the referenced object when Type is OBJECT.
	Class string
	// Owner is set for class fields; Slot is then the field's offset
	// inside an object instead of Address.
	Owner string
	Slot  int
}

func (v *Variable) AliasName() string { return v.Name }
func (*Variable) isAlias()            {}

// Size returns the number of cells the variable occupies.
func (v *Variable) Size() int {
	size := 1
	for _, d := range v.Dims {
		size *= d
	}
	return size
}

// IsField reports whether the variable lives inside an object.
func (v *Variable) IsField() bool { return v.Owner != "" }

// Function is a user or native callable.
type Function struct {
	Name   string
	Return memory.DataType
	// Result is where the callee leaves its return value; nil for VOID and
	// host functions.
	Result *memory.Address
	// Start is the quadruple index of the first instruction of the body.
	Start  int
	Args   []*Variable
	Native bool
	// Owner is the class name for methods.
	Owner string
}

func (f *Function) AliasName() string { return f.Name }
func (*Function) isAlias()            {}

func (f *Function) IsVoid() bool   { return f.Return == memory.Void }
func (f *Function) IsMethod() bool { return f.Owner != "" }

// Class is a class declaration. Fields are laid out in declaration order.
type Class struct {
	Name        string
	Scope       ID
	Fields      []*Variable
	Constructor *Function
	Methods     []*Function

	size int
}

func (c *Class) AliasName() string { return c.Name }
func (*Class) isAlias()            {}

// Size returns the number of cells an instance occupies.
func (c *Class) Size() int {
	if c.size == 0 {
		return 1
	}
	return c.size
}

// ConstructorName is the method name that marks a class constructor.
const ConstructorName = "construct"

// ThisName is the implicit receiver argument of every method.
const ThisName = "this"
