package engine

import (
	"github.com/tonybaloney/agentic-popup-shop-sub001/pkg/domain"
)

// Graph is an immutable, validated set of executors and edges with a single
// start executor. Graphs are safe for concurrent read access; all mutation
// happens in the Builder before Build.
type Graph struct {
	start     string
	executors map[string]*domain.Executor
	edges     []domain.Edge
	outbound  map[string][]int
}

// Start returns the id of the start executor.
func (g *Graph) Start() string { return g.start }

// Executor returns the executor with the given id.
func (g *Graph) Executor(id string) (*domain.Executor, bool) {
	e, ok := g.executors[id]
	return e, ok
}

// ExecutorIDs returns the ids of all executors in the graph.
func (g *Graph) ExecutorIDs() []string {
	ids := make([]string, 0, len(g.executors))
	for id := range g.executors {
		ids = append(ids, id)
	}
	return ids
}

// Edges returns the graph's edges. The returned slice must not be modified.
func (g *Graph) Edges() []domain.Edge { return g.edges }

// outboundOf returns the indexes into Edges of every edge the given executor
// feeds: edges it is the source of, and fan-in edges it is a declared
// predecessor of.
func (g *Graph) outboundOf(id string) []int { return g.outbound[id] }
