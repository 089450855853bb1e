package optimizer

import (
	"github.com/chazu/quadra/memory"
	"github.com/chazu/quadra/quad"
)

// ---------------------------------------------------------------------------
// Jump threading
// ---------------------------------------------------------------------------

// threadJumps splices out every GOTO that is only ever entered by a jump.
// Its predecessors jump straight to its target instead.
func threadJumps(g *graph) int {
	threaded := 0
	for _, id := range g.dfs() {
		n := &g.nodes[id]
		if !n.live || n.q.Op != quad.OpGoto || n.target == id {
			continue
		}
		if !onlyJumpedTo(g, id) {
			continue
		}
		g.splice(id)
		threaded++
	}
	return threaded
}

func onlyJumpedTo(g *graph, id int) bool {
	for _, p := range g.in[id] {
		pn := &g.nodes[p]
		if pn.next == id || pn.target != id || pn.q.Op == quad.OpCall {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Constant folding
// ---------------------------------------------------------------------------

type slot struct {
	region int
	addr   memory.Address
}

// foldConstants evaluates LOADs and pure operators whose operands are all
// literals, substitutes the results into every reader and removes the
// folded instructions. Only TEMP cells with a single writer inside their
// body are folded; TEMP storage is recycled between function bodies, so
// facts are keyed by body.
func foldConstants(g *graph) int {
	region := g.regions()
	writers := make(map[slot]int)
	for id := range g.nodes {
		if n := &g.nodes[id]; n.live {
			if a, ok := written(n.q); ok {
				writers[slot{region[id], a}]++
			}
		}
	}

	known := make(map[slot]memory.Value)
	var folded []int
	for _, id := range g.dfs() {
		n := &g.nodes[id]
		substitute(&n.q, region[id], known)
		a, ok := written(n.q)
		if !ok || a.Scope != memory.Temp {
			continue
		}
		key := slot{region[id], a}
		v, ok := evaluate(n.q)
		if !ok || writers[key] != 1 || v.Type != a.Type || g.outDegree(id) != 1 {
			delete(known, key)
			continue
		}
		known[key] = v
		folded = append(folded, id)
	}
	if len(folded) == 0 {
		return 0
	}

	for id := range g.nodes {
		if g.nodes[id].live {
			substitute(&g.nodes[id].q, region[id], known)
		}
	}
	for _, id := range folded {
		g.splice(id)
	}
	return len(folded)
}

// written returns the cell an instruction writes, if any.
func written(q quad.Quad) (memory.Address, bool) {
	if q.Op == quad.OpAStore || q.Op.HasTarget() || !q.Result.IsAddr() {
		return memory.Address{}, false
	}
	return q.Result.Addr.Plain(), true
}

// evaluate computes the value of a foldable instruction.
func evaluate(q quad.Quad) (memory.Value, bool) {
	if q.Op == quad.OpLoad {
		return q.Left.Lit, q.Left.IsLit()
	}
	if !quad.Pure(q.Op) || !q.Right.IsLit() {
		return memory.Value{}, false
	}
	if q.Op.Arity() == 2 && !q.Left.IsLit() {
		return memory.Value{}, false
	}
	v, err := quad.Eval(q.Op, q.Left.Lit, q.Right.Lit)
	if err != nil {
		// Left for the VM to report at run time.
		return memory.Value{}, false
	}
	return v, true
}

// substitute replaces every TEMP read of q that has a known value.
func substitute(q *quad.Quad, region int, known map[slot]memory.Value) {
	sub := func(o *quad.Operand) {
		if !o.IsAddr() || o.Addr.Scope != memory.Temp {
			return
		}
		if v, ok := known[slot{region, o.Addr.Plain()}]; ok {
			*o = quad.L(v)
		}
	}
	switch {
	case quad.Pure(q.Op):
		sub(&q.Left)
		sub(&q.Right)
	case q.Op == quad.OpStore, q.Op == quad.OpParam, q.Op == quad.OpNParam,
		q.Op == quad.OpGotoT, q.Op == quad.OpGotoF:
		sub(&q.Left)
	case q.Op == quad.OpALoad:
		sub(&q.Right)
	case q.Op == quad.OpAStore:
		sub(&q.Right)
		sub(&q.Result)
	}
}
