package optimizer

import (
	"sort"

	"github.com/chazu/quadra/errs"
	"github.com/chazu/quadra/quad"
)

const none = -1

// node is one instruction of the flow graph. Edges are stored as the
// fallthrough successor and the jump or call target; either may be none.
type node struct {
	q      quad.Quad
	next   int
	target int
	live   bool
}

// graph is the control flow graph of a quadruple program. Node ids are the
// original instruction indices; id len(nodes) is the end of program.
type graph struct {
	nodes []node
	in    [][]int
	root  int
	live  int
}

func (g *graph) end() int { return len(g.nodes) }

func build(quads []quad.Quad) (*graph, error) {
	g := &graph{nodes: make([]node, len(quads)), root: none}
	for i, q := range quads {
		n := node{q: q, next: none, target: none}
		if q.Op.HasTarget() {
			t, ok := q.Target()
			if !ok {
				return nil, errs.Newf(errs.KindStructuralJump, "%s at %d has no target", q.Op, i)
			}
			if t < 0 || t > len(quads) {
				return nil, errs.Newf(errs.KindStructuralJump, "%s at %d targets %d outside the program", q.Op, i, t)
			}
			n.target = t
		}
		switch q.Op {
		case quad.OpGoto, quad.OpReturn, quad.OpExit:
		default:
			n.next = i + 1
		}
		if q.Op == quad.OpInit && g.root == none {
			g.root = i
		}
		g.nodes[i] = n
	}
	if g.root == none {
		return nil, errs.Newf(errs.KindStructuralJump, "program has no INIT instruction")
	}

	for _, id := range g.dfs() {
		g.nodes[id].live = true
		g.live++
	}
	g.in = make([][]int, len(g.nodes)+1)
	for id := range g.nodes {
		if !g.nodes[id].live {
			continue
		}
		for _, s := range g.succ(id) {
			g.in[s] = append(g.in[s], id)
		}
	}
	return g, nil
}

// succ lists the successors of id. Conditional jumps list the taken edge
// first for GOTO_F and last for GOTO_T.
func (g *graph) succ(id int) []int {
	n := &g.nodes[id]
	var out []int
	switch n.q.Op {
	case quad.OpGoto:
		out = []int{n.target}
	case quad.OpGotoF, quad.OpCall:
		out = []int{n.target, n.next}
	case quad.OpGotoT:
		out = []int{n.next, n.target}
	default:
		if n.next != none {
			out = []int{n.next}
		}
	}
	return out
}

// dfs returns the nodes reachable from the root in visit order. The end of
// program is never included.
func (g *graph) dfs() []int {
	visited := make([]bool, len(g.nodes)+1)
	visited[g.root] = true
	stack := []int{g.root}
	var order []int
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == g.end() {
			continue
		}
		order = append(order, id)
		for _, s := range g.succ(id) {
			if !visited[s] {
				visited[s] = true
				stack = append(stack, s)
			}
		}
	}
	return order
}

// regions maps every live node to the entry of the body it belongs to: the
// root for the main program, the callee start for functions. Call targets
// do not cross region boundaries; the fallthrough of a CALL does.
func (g *graph) regions() []int {
	region := make([]int, len(g.nodes)+1)
	for i := range region {
		region[i] = none
	}
	entries := []int{g.root}
	for id := range g.nodes {
		if g.nodes[id].live && g.nodes[id].q.Op == quad.OpCall && g.nodes[id].target != g.end() {
			entries = append(entries, g.nodes[id].target)
		}
	}
	sort.Ints(entries[1:])
	for _, e := range entries {
		if region[e] != none {
			continue
		}
		stack := []int{e}
		region[e] = e
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if id == g.end() {
				continue
			}
			n := &g.nodes[id]
			next := []int{n.next}
			if n.q.Op.IsJump() {
				next = append(next, n.target)
			}
			for _, s := range next {
				if s != none && region[s] == none {
					region[s] = e
					stack = append(stack, s)
				}
			}
		}
	}
	return region
}

// outDegree counts the distinct successors of id.
func (g *graph) outDegree(id int) int {
	s := g.succ(id)
	if len(s) == 2 && s[0] == s[1] {
		return 1
	}
	return len(s)
}

// splice removes id, redirecting every predecessor edge to its single
// successor.
func (g *graph) splice(id int) {
	n := &g.nodes[id]
	dest := n.next
	if n.q.Op == quad.OpGoto {
		dest = n.target
	}

	seen := make(map[int]bool, len(g.in[id]))
	for _, p := range g.in[id] {
		if seen[p] {
			continue
		}
		seen[p] = true
		pn := &g.nodes[p]
		if pn.next == id {
			pn.next = dest
		}
		if pn.target == id {
			pn.target = dest
		}
	}

	if dest != none {
		kept := g.in[dest][:0]
		for _, p := range g.in[dest] {
			if p != id {
				kept = append(kept, p)
			}
		}
		g.in[dest] = append(kept, g.in[id]...)
	}
	g.in[id] = nil
	n.live = false
	g.live--
}
