// Package memory implements quadra's virtual address space: bit-packed
// addresses, typed per-scope arenas and activation-record snapshots.
//
// An address packs four fields into 32 bits:
//
//	31..30  scope      GLOBAL, LOCAL, TEMP, STACK
//	29..27  data type  INT, FLOAT, STRING, OBJECT, BOOL
//	26      reference  the cell holds an offset to dereference
//	25..0   offset     arena-relative cursor
//
// Business logic only ever handles the Address struct; Encode and Decode are
// the only places that shift bits.
package memory

import (
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/quadra/errs"
)

// Scope is the storage class of an address.
type Scope uint8

const (
	Global Scope = iota
	Local
	Temp
	Stack
)

// NumScopes is the number of storage classes.
const NumScopes = 4

var scopeNames = [NumScopes]string{"GLOBAL", "LOCAL", "TEMP", "STACK"}

func (s Scope) String() string {
	if int(s) < NumScopes {
		return scopeNames[s]
	}
	return fmt.Sprintf("Scope(%d)", uint8(s))
}

// DataType is the value type stored at an address. Void is only valid as a
// function return type and has no arena.
type DataType uint8

const (
	Int DataType = iota
	Float
	String
	Object
	Bool
	Void DataType = 7
)

// NumTypes is the number of data types that own an arena.
const NumTypes = 5

var typeNames = map[DataType]string{
	Int:    "INT",
	Float:  "FLOAT",
	String: "STRING",
	Object: "OBJECT",
	Bool:   "BOOL",
	Void:   "VOID",
}

func (t DataType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("DataType(%d)", uint8(t))
}

// HasArena reports whether values of this type can be allocated.
func (t DataType) HasArena() bool {
	return int(t) < NumTypes
}

// ParseType maps a source-level type name ("int", "FLOAT", "void", ...) to
// a DataType.
func ParseType(name string) (DataType, error) {
	upper := strings.ToUpper(name)
	for t, n := range typeNames {
		if n == upper {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown type %q", name)
}

const (
	scopeShift = 30
	typeShift  = 27
	refBit     = 1 << 26
	typeMask   = 0x7

	// MaxOffset is the largest offset an address can carry.
	MaxOffset = 1<<26 - 1
)

// Address is the decoded form of a packed virtual address. On the wire it
// travels as the packed uint32.
type Address struct {
	Scope  Scope
	Type   DataType
	Ref    bool
	Offset uint32
}

// Encode packs an address into its 32-bit wire form. Addresses whose fields
// do not fit their bit ranges are rejected rather than truncated.
func Encode(a Address) (uint32, error) {
	if !a.Valid() {
		return 0, errs.Newf(errs.KindAllocationExhausted, "address %s does not fit in 32 bits", a)
	}
	v := uint32(a.Scope)<<scopeShift | uint32(a.Type)<<typeShift | a.Offset
	if a.Ref {
		v |= refBit
	}
	return v, nil
}

// Decode unpacks a 32-bit address.
func Decode(v uint32) Address {
	return Address{
		Scope:  Scope(v >> scopeShift),
		Type:   DataType(v >> typeShift & typeMask),
		Ref:    v&refBit != 0,
		Offset: v & MaxOffset,
	}
}

// IsReference reports whether a packed address carries the reference flag.
func IsReference(v uint32) bool {
	return v&refBit != 0
}

// MarshalCBOR writes the packed form.
func (a Address) MarshalCBOR() ([]byte, error) {
	v, err := Encode(a)
	if err != nil {
		return nil, err
	}
	return cbor.Marshal(v)
}

// UnmarshalCBOR reads the packed form.
func (a *Address) UnmarshalCBOR(data []byte) error {
	var v uint32
	if err := cbor.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("address: %w", err)
	}
	d := Decode(v)
	if !d.Valid() {
		return fmt.Errorf("address: %#x has no arena type", v)
	}
	*a = d
	return nil
}

// WithRef returns a copy of a with the reference flag set to ref.
func (a Address) WithRef(ref bool) Address {
	a.Ref = ref
	return a
}

// Plain returns the address without its reference flag.
func (a Address) Plain() Address {
	a.Ref = false
	return a
}

// Valid reports whether every field fits its bit range.
func (a Address) Valid() bool {
	return int(a.Scope) < NumScopes && a.Type.HasArena() && a.Offset <= MaxOffset
}

// String renders the address as scope.type.offset, prefixed with & when
// the reference flag is set.
func (a Address) String() string {
	prefix := ""
	if a.Ref {
		prefix = "&"
	}
	return fmt.Sprintf("%s%s.%s.%d", prefix, a.Scope, a.Type, a.Offset)
}
