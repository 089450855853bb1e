package memory

import (
	"github.com/chazu/quadra/errs"
)

// DefaultCapacity is the number of cells an arena holds unless configured
// otherwise: the full offset range.
const DefaultCapacity = MaxOffset + 1

// Arena is a bounded, cursor-based region for one (scope, type) pair.
// Allocation only moves the cursor forward; Reset rewinds it. The arena
// also holds the cells written at run time.
type Arena struct {
	scope    Scope
	typ      DataType
	cursor   uint32
	capacity uint32
	cells    []Value
}

func newArena(scope Scope, typ DataType, capacity uint32) *Arena {
	if capacity == 0 || capacity > DefaultCapacity {
		capacity = DefaultCapacity
	}
	return &Arena{scope: scope, typ: typ, capacity: capacity}
}

// Allocate reserves size contiguous cells and returns the base address,
// carrying the reference flag when ref is set.
func (a *Arena) Allocate(size int, ref bool) (Address, error) {
	if size < 1 {
		size = 1
	}
	if uint64(a.cursor)+uint64(size) > uint64(a.capacity) {
		return Address{}, errs.Newf(errs.KindAllocationExhausted,
			"%s %s arena full: %d of %d cells used, requested %d",
			a.scope, a.typ, a.cursor, a.capacity, size)
	}
	addr := Address{Scope: a.scope, Type: a.typ, Ref: ref, Offset: a.cursor}
	a.cursor += uint32(size)
	return addr, nil
}

// Reset rewinds the cursor to the arena base. Cells are left in place.
func (a *Arena) Reset() {
	a.cursor = 0
}

// Cursor returns the next free offset.
func (a *Arena) Cursor() uint32 { return a.cursor }

// Capacity returns the arena size in cells.
func (a *Arena) Capacity() uint32 { return a.capacity }

// Load reads a cell. Cells never written read as the zero value of the
// arena type.
func (a *Arena) Load(offset uint32) (Value, error) {
	if offset >= a.capacity {
		return Value{}, errs.Newf(errs.KindAllocationExhausted,
			"read of %s.%s.%d outside arena capacity %d", a.scope, a.typ, offset, a.capacity)
	}
	if int(offset) >= len(a.cells) {
		return Zero(a.typ), nil
	}
	return a.cells[offset], nil
}

// Store writes a cell.
func (a *Arena) Store(offset uint32, v Value) error {
	if offset >= a.capacity {
		return errs.Newf(errs.KindAllocationExhausted,
			"write of %s.%s.%d outside arena capacity %d", a.scope, a.typ, offset, a.capacity)
	}
	if int(offset) >= len(a.cells) {
		grown := make([]Value, int(offset)+1, int(offset)*2+1)
		copy(grown, a.cells)
		for i := len(a.cells); i < len(grown); i++ {
			grown[i] = Zero(a.typ)
		}
		a.cells = grown
	}
	a.cells[offset] = v
	return nil
}

// arenaState is the saved part of an arena inside an activation record.
type arenaState struct {
	cursor uint32
	cells  []Value
}

func (a *Arena) save() arenaState {
	cells := make([]Value, len(a.cells))
	copy(cells, a.cells)
	return arenaState{cursor: a.cursor, cells: cells}
}

func (a *Arena) restore(s arenaState) {
	a.cursor = s.cursor
	a.cells = s.cells
}
