// Package optimizer rewrites a finished quadruple program through its
// control flow graph: jump threading, constant folding and a final
// re-linearization that drops unreachable code.
package optimizer

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/quadra/quad"
)

var log = commonlog.GetLogger("quadra.optimizer")

// Options selects the passes to run.
type Options struct {
	JumpThreading   bool
	ConstantFolding bool
	// MaxRounds bounds the fixed point iteration; 0 means DefaultMaxRounds.
	MaxRounds int
}

// DefaultMaxRounds is the round limit used when Options.MaxRounds is 0.
const DefaultMaxRounds = 32

// DefaultOptions enables every pass.
func DefaultOptions() Options {
	return Options{JumpThreading: true, ConstantFolding: true, MaxRounds: DefaultMaxRounds}
}

// Stats reports what an optimization run did.
type Stats struct {
	Before      int
	After       int
	Unreachable int
	Threaded    int
	Folded      int
	Rounds      int
}

func (s Stats) String() string {
	return fmt.Sprintf("%d -> %d instructions (%d unreachable, %d jumps threaded, %d folded, %d rounds)",
		s.Before, s.After, s.Unreachable, s.Threaded, s.Folded, s.Rounds)
}

// Optimize runs the enabled passes until the node count stops changing and
// returns the re-linearized program. The input slice is not modified.
func Optimize(quads []quad.Quad, opts Options) ([]quad.Quad, Stats, error) {
	stats := Stats{Before: len(quads)}
	g, err := build(quads)
	if err != nil {
		return nil, stats, err
	}
	stats.Unreachable = len(quads) - g.live

	rounds := opts.MaxRounds
	if rounds <= 0 {
		rounds = DefaultMaxRounds
	}
	for stats.Rounds < rounds {
		stats.Rounds++
		before := g.live
		if opts.JumpThreading {
			stats.Threaded += threadJumps(g)
		}
		if opts.ConstantFolding {
			stats.Folded += foldConstants(g)
		}
		log.Debugf("round %d: %d -> %d nodes", stats.Rounds, before, g.live)
		if g.live == before {
			break
		}
	}

	out := linearize(g)
	stats.After = len(out)
	log.Infof("optimized: %s", stats)
	return out, stats, nil
}
