package memory

import (
	"fmt"
	"math"
	"strconv"
)

// Value is a typed cell: a literal operand in a quadruple or the contents
// of a runtime memory cell. Only the field selected by Type is meaningful.
type Value struct {
	Type  DataType `cbor:"1,keyasint"`
	Int   int64    `cbor:"2,keyasint,omitempty"`
	Float float64  `cbor:"3,keyasint,omitempty"`
	Str   string   `cbor:"4,keyasint,omitempty"`
	Bool  bool     `cbor:"5,keyasint,omitempty"`
	Ptr   Address  `cbor:"6,keyasint"`
}

func IntValue(i int64) Value     { return Value{Type: Int, Int: i} }
func FloatValue(f float64) Value { return Value{Type: Float, Float: f} }
func StringValue(s string) Value { return Value{Type: String, Str: s} }
func BoolValue(b bool) Value     { return Value{Type: Bool, Bool: b} }

// PointerValue wraps the base address of a heap block.
func PointerValue(a Address) Value { return Value{Type: Object, Ptr: a} }

// Zero returns the zero value for a data type.
func Zero(t DataType) Value { return Value{Type: t} }

// IsNumeric reports whether the value is INT or FLOAT.
func (v Value) IsNumeric() bool {
	return v.Type == Int || v.Type == Float
}

// AsFloat widens a numeric or boolean value.
func (v Value) AsFloat() float64 {
	switch v.Type {
	case Int:
		return float64(v.Int)
	case Float:
		return v.Float
	case Bool:
		if v.Bool {
			return 1
		}
	}
	return 0
}

// AsInt truncates a numeric or boolean value toward zero.
func (v Value) AsInt() int64 {
	switch v.Type {
	case Int:
		return v.Int
	case Float:
		if math.IsNaN(v.Float) {
			return 0
		}
		return int64(v.Float)
	case Bool:
		if v.Bool {
			return 1
		}
	}
	return 0
}

// Truthy follows C-like rules: zero, empty string and false are falsy.
func (v Value) Truthy() bool {
	switch v.Type {
	case Int:
		return v.Int != 0
	case Float:
		return v.Float != 0
	case String:
		return v.Str != ""
	case Bool:
		return v.Bool
	case Object:
		return true
	}
	return false
}

// Coerce converts v to type t. Only numeric/boolean conversions are
// performed; other mismatches return v unchanged.
func (v Value) Coerce(t DataType) Value {
	if v.Type == t {
		return v
	}
	switch t {
	case Int:
		if v.IsNumeric() || v.Type == Bool {
			return IntValue(v.AsInt())
		}
	case Float:
		if v.IsNumeric() || v.Type == Bool {
			return FloatValue(v.AsFloat())
		}
	case Bool:
		if v.IsNumeric() {
			return BoolValue(v.Truthy())
		}
	}
	return v
}

// String renders the value the way the write native prints it.
func (v Value) String() string {
	switch v.Type {
	case Int:
		return strconv.FormatInt(v.Int, 10)
	case Float:
		return strconv.FormatFloat(v.Float, 'f', -1, 64)
	case String:
		return v.Str
	case Bool:
		return strconv.FormatBool(v.Bool)
	case Object:
		return fmt.Sprintf("<object %s>", v.Ptr)
	}
	return "<void>"
}

// GoString renders literals unambiguously for quadruple dumps.
func (v Value) GoString() string {
	if v.Type == String {
		return strconv.Quote(v.Str)
	}
	return v.String()
}
