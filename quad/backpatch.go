package quad

import (
	"github.com/chazu/quadra/errs"
)

// delimiter marks the boundary of a nested control construct on the
// backpatch stack.
const delimiter = -1

// Backpatcher is the LIFO of instruction indices waiting for a jump
// target, interleaved with delimiters.
type Backpatcher struct {
	stack []int
}

// PushPending records an instruction whose target is not yet known, or a
// loop head that a later backward jump will target.
func (b *Backpatcher) PushPending(index int) {
	b.stack = append(b.stack, index)
}

// PushDelimiter opens a nested construct.
func (b *Backpatcher) PushDelimiter() {
	b.stack = append(b.stack, delimiter)
}

// Len returns the number of entries, delimiters included.
func (b *Backpatcher) Len() int { return len(b.stack) }

// PatchAllPendingToCurrent pops entries up to and including the nearest
// delimiter, pointing each popped jump at the current instruction count.
func (b *Backpatcher) PatchAllPendingToCurrent(s *Store) error {
	for len(b.stack) > 0 {
		top := b.stack[len(b.stack)-1]
		b.stack = b.stack[:len(b.stack)-1]
		if top == delimiter {
			return nil
		}
		if err := s.SetTarget(top, s.Len()); err != nil {
			return err
		}
	}
	return errs.Newf(errs.KindStructuralJump, "patch of pending jumps found no delimiter")
}

// take removes the entry n positions below the top, keeping the entries
// above it in order.
func (b *Backpatcher) take(n int) (int, error) {
	i := len(b.stack) - 1 - n
	if n < 0 || i < 0 {
		return 0, errs.Newf(errs.KindStructuralJump, "backpatch stack underflow: need %d entries, have %d", n+1, len(b.stack))
	}
	entry := b.stack[i]
	if entry == delimiter {
		return 0, errs.Newf(errs.KindStructuralJump, "backpatch entry %d below top is a delimiter", n)
	}
	b.stack = append(b.stack[:i], b.stack[i+1:]...)
	return entry, nil
}

// PatchN patches the pending jump n entries below the top to the current
// instruction count, leaving the rest of the stack intact.
func (b *Backpatcher) PatchN(s *Store, n int) error {
	index, err := b.take(n)
	if err != nil {
		return err
	}
	return s.SetTarget(index, s.Len())
}

// PopTarget removes the entry n positions below the top and returns it.
// Loops use it to fetch the recorded head for their backward jump.
func (b *Backpatcher) PopTarget(n int) (int, error) {
	return b.take(n)
}
