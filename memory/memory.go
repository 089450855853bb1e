package memory

import (
	"fmt"

	"github.com/chazu/quadra/errs"
)

// Options configures arena capacities per scope. A zero capacity means
// DefaultCapacity.
type Options struct {
	Capacity [NumScopes]uint32
}

// Memory is the grid of arenas for every (scope, type) pair plus the stack
// of activation records. One instance serves a compilation unit; the VM
// owns a separate one for run-time state.
type Memory struct {
	arenas [NumScopes][NumTypes]*Arena
	frames [][]arenaState
}

// New creates a memory model with the given capacities.
func New(opts Options) *Memory {
	m := &Memory{}
	for s := 0; s < NumScopes; s++ {
		for t := 0; t < NumTypes; t++ {
			m.arenas[s][t] = newArena(Scope(s), DataType(t), opts.Capacity[s])
		}
	}
	return m
}

// Arena returns the arena for a (scope, type) pair.
func (m *Memory) Arena(scope Scope, typ DataType) (*Arena, error) {
	if int(scope) >= NumScopes || !typ.HasArena() {
		return nil, fmt.Errorf("no arena for %s %s", scope, typ)
	}
	return m.arenas[scope][typ], nil
}

// Allocate reserves size cells of typ in scope.
func (m *Memory) Allocate(scope Scope, typ DataType, size int, ref bool) (Address, error) {
	a, err := m.Arena(scope, typ)
	if err != nil {
		return Address{}, err
	}
	return a.Allocate(size, ref)
}

// ResetLocals rewinds the LOCAL and TEMP arenas. Used when a function body
// closes during compilation.
func (m *Memory) ResetLocals() {
	for _, scope := range []Scope{Local, Temp} {
		for _, a := range m.arenas[scope] {
			a.Reset()
		}
	}
}

// SnapshotFrame pushes an activation record holding the LOCAL and TEMP
// arena state.
func (m *Memory) SnapshotFrame() {
	frame := make([]arenaState, 0, 2*NumTypes)
	for _, scope := range []Scope{Local, Temp} {
		for _, a := range m.arenas[scope] {
			frame = append(frame, a.save())
		}
	}
	m.frames = append(m.frames, frame)
}

// RestoreFrame pops the most recent activation record back into the LOCAL
// and TEMP arenas.
func (m *Memory) RestoreFrame() error {
	if len(m.frames) == 0 {
		return errs.Newf(errs.KindActivationImbalance, "restore without a saved activation record")
	}
	frame := m.frames[len(m.frames)-1]
	m.frames = m.frames[:len(m.frames)-1]
	i := 0
	for _, scope := range []Scope{Local, Temp} {
		for _, a := range m.arenas[scope] {
			a.restore(frame[i])
			i++
		}
	}
	return nil
}

// FrameDepth returns the number of saved activation records.
func (m *Memory) FrameDepth() int {
	return len(m.frames)
}

// Load reads the cell at addr. The reference flag is ignored.
func (m *Memory) Load(addr Address) (Value, error) {
	a, err := m.Arena(addr.Scope, addr.Type)
	if err != nil {
		return Value{}, err
	}
	return a.Load(addr.Offset)
}

// Store writes v into the cell at addr.
func (m *Memory) Store(addr Address, v Value) error {
	a, err := m.Arena(addr.Scope, addr.Type)
	if err != nil {
		return err
	}
	return a.Store(addr.Offset, v)
}
