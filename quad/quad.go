package quad

import (
	"fmt"
	"strconv"

	"github.com/chazu/quadra/memory"
)

// OperandKind says which field of an Operand is meaningful.
type OperandKind uint8

const (
	KindNone OperandKind = iota
	KindAddr
	KindLit
	KindTarget
	KindName
)

// Operand is one field of a quadruple: a packed address, a literal, an
// instruction index or a native function name.
type Operand struct {
	Kind  OperandKind    `cbor:"1,keyasint"`
	Addr  memory.Address `cbor:"2,keyasint"`
	Lit   memory.Value   `cbor:"3,keyasint"`
	Index int            `cbor:"4,keyasint,omitempty"`
	Name  string         `cbor:"5,keyasint,omitempty"`
}

// Empty is the absent operand.
var Empty = Operand{}

// A wraps an address.
func A(addr memory.Address) Operand { return Operand{Kind: KindAddr, Addr: addr} }

// L wraps a literal.
func L(v memory.Value) Operand { return Operand{Kind: KindLit, Lit: v} }

// T wraps an instruction index.
func T(index int) Operand { return Operand{Kind: KindTarget, Index: index} }

// N wraps a native function name.
func N(name string) Operand { return Operand{Kind: KindName, Name: name} }

func (o Operand) IsAddr() bool { return o.Kind == KindAddr }
func (o Operand) IsLit() bool  { return o.Kind == KindLit }

// Type returns the data type carried by an address or literal operand.
func (o Operand) Type() memory.DataType {
	switch o.Kind {
	case KindAddr:
		return o.Addr.Type
	case KindLit:
		return o.Lit.Type
	}
	return memory.Void
}

func (o Operand) String() string {
	switch o.Kind {
	case KindAddr:
		return o.Addr.String()
	case KindLit:
		return o.Lit.GoString()
	case KindTarget:
		return strconv.Itoa(o.Index)
	case KindName:
		return o.Name
	}
	return "_"
}

// Quad is a single three-address instruction.
type Quad struct {
	Op     Op      `cbor:"1,keyasint"`
	Left   Operand `cbor:"2,keyasint"`
	Right  Operand `cbor:"3,keyasint"`
	Result Operand `cbor:"4,keyasint"`
}

// Target returns the jump or call target of q.
func (q Quad) Target() (int, bool) {
	if q.Op.HasTarget() && q.Result.Kind == KindTarget {
		return q.Result.Index, true
	}
	return 0, false
}

func (q Quad) String() string {
	return fmt.Sprintf("%-7s %-18s %-18s %s", q.Op, q.Left, q.Right, q.Result)
}

// Field names a quadruple position for backpatching.
type Field uint8

const (
	FieldLeft Field = iota + 1
	FieldRight
	FieldResult
)
