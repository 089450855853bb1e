package quad

import (
	"fmt"

	"github.com/chazu/quadra/errs"
)

// Store is the append-only instruction buffer. Entries stay mutable by
// index so pending jumps can be backpatched.
type Store struct {
	quads []Quad
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{quads: make([]Quad, 0, 256)}
}

// Emit appends q and returns its index.
func (s *Store) Emit(q Quad) int {
	s.quads = append(s.quads, q)
	return len(s.quads) - 1
}

// Len returns the number of instructions, which is also the index of the
// next instruction to be emitted.
func (s *Store) Len() int { return len(s.quads) }

// At returns the instruction at index i.
func (s *Store) At(i int) Quad { return s.quads[i] }

// Last returns the most recently emitted instruction.
func (s *Store) Last() (Quad, bool) {
	if len(s.quads) == 0 {
		return Quad{}, false
	}
	return s.quads[len(s.quads)-1], true
}

// Set overwrites one field of the instruction at index i.
func (s *Store) Set(i int, field Field, o Operand) error {
	if i < 0 || i >= len(s.quads) {
		return errs.Newf(errs.KindStructuralJump, "patch of instruction %d outside 0..%d", i, len(s.quads)-1)
	}
	switch field {
	case FieldLeft:
		s.quads[i].Left = o
	case FieldRight:
		s.quads[i].Right = o
	case FieldResult:
		s.quads[i].Result = o
	default:
		return fmt.Errorf("unknown quadruple field %d", field)
	}
	return nil
}

// SetTarget points the jump or call at index i to target.
func (s *Store) SetTarget(i, target int) error {
	return s.Set(i, FieldResult, T(target))
}

// Quads returns a copy of the instruction list.
func (s *Store) Quads() []Quad {
	out := make([]Quad, len(s.quads))
	copy(out, s.quads)
	return out
}
