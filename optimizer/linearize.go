package optimizer

import (
	"sort"

	"github.com/chazu/quadra/quad"
)

// item is one output slot: a graph node, or an instruction synthesized to
// keep the program order valid.
type item struct {
	id     int
	op     quad.Op
	target int
}

// linearize lays the live nodes out again. The main body comes first in
// source order, then the function bodies. A fallthrough that no longer
// lands on the next slot gets an explicit GOTO; falling off the end of the
// program becomes EXIT. Every jump and call target is remapped.
func linearize(g *graph) []quad.Quad {
	region := g.regions()
	var order []int
	for id := range g.nodes {
		if g.nodes[id].live {
			order = append(order, id)
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if (a == g.root) != (b == g.root) {
			return a == g.root
		}
		if ma, mb := region[a] == g.root, region[b] == g.root; ma != mb {
			return ma
		}
		return a < b
	})

	var items []item
	exitSlot := none
	for k, id := range order {
		items = append(items, item{id: id})
		next := g.nodes[id].next
		if next == none {
			continue
		}
		switch {
		case next == g.end():
			if exitSlot == none {
				exitSlot = len(items)
			}
			items = append(items, item{id: none, op: quad.OpExit})
		case k+1 >= len(order) || order[k+1] != next:
			items = append(items, item{id: none, op: quad.OpGoto, target: next})
		}
	}

	pos := make(map[int]int, len(items))
	for i, it := range items {
		if it.id != none {
			pos[it.id] = i
		}
	}
	resolve := func(target int) int {
		if target != g.end() {
			return pos[target]
		}
		if exitSlot == none {
			exitSlot = len(items)
			items = append(items, item{id: none, op: quad.OpExit})
		}
		return exitSlot
	}

	out := make([]quad.Quad, 0, len(items)+1)
	for i := 0; i < len(items); i++ {
		it := items[i]
		switch {
		case it.id != none:
			n := g.nodes[it.id]
			q := n.q
			if q.Op.HasTarget() {
				q.Result = quad.T(resolve(n.target))
			}
			out = append(out, q)
		case it.op == quad.OpGoto:
			out = append(out, quad.Quad{Op: quad.OpGoto, Result: quad.T(resolve(it.target))})
		default:
			out = append(out, quad.Quad{Op: it.op})
		}
	}
	return out
}
