// Package errs defines the single error type shared by the compiler,
// optimizer and virtual machine. Every failure carries a Kind so callers can
// decide per kind whether to abort; nothing in quadra recovers locally.
package errs

import (
	"errors"
	"fmt"
)

// Kind discriminates the error taxonomy.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindRedeclaration
	KindUnresolvedAlias
	KindDimensionMismatch
	KindType
	KindAllocationExhausted
	KindStructuralJump
	KindActivationImbalance
	KindRuntime
)

var kindNames = map[Kind]string{
	KindUnknown:             "error",
	KindRedeclaration:       "redeclaration",
	KindUnresolvedAlias:     "unresolved alias",
	KindDimensionMismatch:   "dimension mismatch",
	KindType:                "type error",
	KindAllocationExhausted: "allocation exhausted",
	KindStructuralJump:      "structural jump error",
	KindActivationImbalance: "activation imbalance",
	KindRuntime:             "runtime error",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Error is a kind-tagged failure with a message naming the offending
// alias, type or operator.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Msg
}

// Is reports whether target is an *Error of the same kind, so that
// errors.Is(err, errs.Type) works for any type error.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	Redeclaration       = &Error{Kind: KindRedeclaration}
	UnresolvedAlias     = &Error{Kind: KindUnresolvedAlias}
	DimensionMismatch   = &Error{Kind: KindDimensionMismatch}
	Type                = &Error{Kind: KindType}
	AllocationExhausted = &Error{Kind: KindAllocationExhausted}
	StructuralJump      = &Error{Kind: KindStructuralJump}
	ActivationImbalance = &Error{Kind: KindActivationImbalance}
	Runtime             = &Error{Kind: KindRuntime}
)

// Newf builds an *Error of the given kind.
func Newf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
