// Package cycle finds rank-flow cycles in the per-channel flow graphs.
package cycle

import "Go2TraceSpectra/internal/model"

const unvisited = -1

// frame replaces one level of the recursive strongconnect call.
type frame struct {
	v    int
	next int // next index into adj[v]
}

// StronglyConnected returns every SCC of g, including trivial ones, using
// Tarjan's algorithm with an explicit call stack. Each component lists ranks
// in the order they were popped from the SCC stack.
//
// Time complexity: O(V + E)
func (g *Graph) StronglyConnected() [][]int {
	n := len(g.ranks)
	disc := make([]int, n)
	low := make([]int, n)
	onStack := make([]bool, n)
	for i := range disc {
		disc[i] = unvisited
	}

	var (
		counter int
		stack   []int
		sccs    [][]int
		calls   []frame
	)

	visit := func(v int) {
		disc[v] = counter
		low[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true
		calls = append(calls, frame{v: v})
	}

	for root := 0; root < n; root++ {
		if disc[root] != unvisited {
			continue
		}
		visit(root)

		for len(calls) > 0 {
			f := &calls[len(calls)-1]
			v := f.v

			if f.next < len(g.adj[v]) {
				w := g.adj[v][f.next]
				f.next++
				if disc[w] == unvisited {
					visit(w)
				} else if onStack[w] && disc[w] < low[v] {
					low[v] = disc[w]
				}
				continue
			}

			// All edges of v are done: v is an SCC root iff low == disc.
			if low[v] == disc[v] {
				var scc []int
				for {
					w := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[w] = false
					scc = append(scc, g.ranks[w])
					if w == v {
						break
					}
				}
				sccs = append(sccs, scc)
			}

			calls = calls[:len(calls)-1]
			if len(calls) > 0 {
				parent := calls[len(calls)-1].v
				if low[v] < low[parent] {
					low[parent] = low[v]
				}
			}
		}
	}
	return sccs
}

// Cycles returns the SCCs that are cycles: more than one rank, or one rank
// with a self-loop.
func (g *Graph) Cycles() [][]int {
	var cycles [][]int
	for _, scc := range g.StronglyConnected() {
		if len(scc) > 1 || g.HasSelfLoop(scc[0]) {
			cycles = append(cycles, scc)
		}
	}
	return cycles
}

// Detect runs cycle detection on every (group, func, func_times, channel)
// bucket of the tree, in tree order.
func Detect(tree *model.Tree) []model.Cycle {
	var out []model.Cycle
	tree.WalkBuckets(func(b model.BucketKey, c *model.ChannelNode) {
		for _, ranks := range BuildGraph(c).Cycles() {
			out = append(out, model.Cycle{Bucket: b, Ranks: ranks})
		}
	})
	return out
}
