package vm

import (
	"sort"

	"github.com/chazu/quadra/quad"
)

// Profiler counts executed opcodes and function entries. A function becomes
// hot once its entry has been called HotThreshold times.

// FunctionProfile holds the counters for one function entry point.
type FunctionProfile struct {
	Entry       int    // instruction index of the function body
	Invocations uint64 // CALLs that reached Entry
	IsHot       bool
}

// Profiler manages profiling for one VM run.
type Profiler struct {
	ops       map[quad.Op]uint64
	functions map[int]*FunctionProfile

	// HotThreshold is the invocation count after which a function is hot.
	HotThreshold uint64

	// OnHot is called once per function when it becomes hot.
	OnHot func(profile *FunctionProfile)

	hotCount int
}

// DefaultHotThreshold is the threshold used by NewProfiler.
const DefaultHotThreshold = 100

// NewProfiler creates a new profiler with the default threshold.
func NewProfiler() *Profiler {
	return &Profiler{
		ops:          make(map[quad.Op]uint64),
		functions:    make(map[int]*FunctionProfile),
		HotThreshold: DefaultHotThreshold,
	}
}

// RecordOp counts one executed instruction.
func (p *Profiler) RecordOp(op quad.Op) {
	p.ops[op]++
}

// RecordCall counts one invocation of the function at entry. Returns true
// if this invocation made the function hot.
func (p *Profiler) RecordCall(entry int) bool {
	profile, ok := p.functions[entry]
	if !ok {
		profile = &FunctionProfile{Entry: entry}
		p.functions[entry] = profile
	}
	profile.Invocations++

	if !profile.IsHot && profile.Invocations >= p.HotThreshold {
		profile.IsHot = true
		p.hotCount++
		if p.OnHot != nil {
			p.OnHot(profile)
		}
		return true
	}
	return false
}

// Function returns the profile for the function at entry, or nil if it was
// never called.
func (p *Profiler) Function(entry int) *FunctionProfile {
	return p.functions[entry]
}

// OpCount is one row of an opcode histogram.
type OpCount struct {
	Op    quad.Op
	Count uint64
}

// Ops returns the opcode histogram, most frequent first. Ties are ordered
// by opcode.
func (p *Profiler) Ops() []OpCount {
	out := make([]OpCount, 0, len(p.ops))
	for op, n := range p.ops {
		out = append(out, OpCount{Op: op, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Op < out[j].Op
	})
	return out
}

// ProfilerStats holds aggregate profiling statistics.
type ProfilerStats struct {
	Instructions uint64 // Total executed instructions
	Functions    int    // Distinct functions called
	HotFunctions int
	Calls        uint64 // Total function invocations
}

// Stats returns aggregate profiling statistics.
func (p *Profiler) Stats() ProfilerStats {
	var stats ProfilerStats
	for _, n := range p.ops {
		stats.Instructions += n
	}
	for _, profile := range p.functions {
		stats.Functions++
		stats.Calls += profile.Invocations
	}
	stats.HotFunctions = p.hotCount
	return stats
}

// HotFunctions returns the entry points of all hot functions in ascending
// order.
func (p *Profiler) HotFunctions() []int {
	var hot []int
	for entry, profile := range p.functions {
		if profile.IsHot {
			hot = append(hot, entry)
		}
	}
	sort.Ints(hot)
	return hot
}
