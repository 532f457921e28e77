package cycle

import (
	"Go2TraceSpectra/internal/model"
	"strconv"
)

// Graph is a directed graph over ranks. Vertices and adjacency lists keep
// first-appearance order so traversal is reproducible.
type Graph struct {
	ranks    []int
	vertex   map[int]int // rank -> vertex id
	adj      [][]int
	edges    map[[2]int]struct{}
	selfLoop []bool
}

func NewGraph() *Graph {
	return &Graph{
		vertex: make(map[int]int),
		edges:  make(map[[2]int]struct{}),
	}
}

// BuildGraph creates the flow graph of one channel from its rank-flow keys.
// Ranks are compared numerically here, so "01" and "1" are the same vertex.
func BuildGraph(c *model.ChannelNode) *Graph {
	g := NewGraph()
	for _, fl := range c.Flows() {
		src, err := strconv.Atoi(fl.Flow.Src)
		if err != nil {
			continue
		}
		dst, err := strconv.Atoi(fl.Flow.Dst)
		if err != nil {
			continue
		}
		g.AddEdge(src, dst)
	}
	return g
}

func (g *Graph) addVertex(rank int) int {
	if id, ok := g.vertex[rank]; ok {
		return id
	}
	id := len(g.ranks)
	g.vertex[rank] = id
	g.ranks = append(g.ranks, rank)
	g.adj = append(g.adj, nil)
	g.selfLoop = append(g.selfLoop, false)
	return id
}

// AddEdge adds src->dst once; repeated edges are ignored.
func (g *Graph) AddEdge(src, dst int) {
	s := g.addVertex(src)
	d := g.addVertex(dst)
	if _, dup := g.edges[[2]int{s, d}]; dup {
		return
	}
	g.edges[[2]int{s, d}] = struct{}{}
	g.adj[s] = append(g.adj[s], d)
	if s == d {
		g.selfLoop[s] = true
	}
}

// Ranks returns the vertices in first-appearance order.
func (g *Graph) Ranks() []int { return g.ranks }

// NumEdges returns the number of distinct edges.
func (g *Graph) NumEdges() int { return len(g.edges) }

// HasSelfLoop reports whether rank has an edge to itself.
func (g *Graph) HasSelfLoop(rank int) bool {
	id, ok := g.vertex[rank]
	return ok && g.selfLoop[id]
}
