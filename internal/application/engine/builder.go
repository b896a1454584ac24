package engine

import (
	"fmt"

	"github.com/tonybaloney/agentic-popup-shop-sub001/pkg/domain"
)

// ConditionalCase is one predicate-guarded route declared on the Builder.
type ConditionalCase struct {
	When domain.Predicate
	To   *domain.Executor
}

// Builder accumulates executors and edges and produces an immutable Graph.
// Declarations are not validated incrementally; Build collects every
// violation into a single domain.ValidationError so a misconfigured graph
// reports all of its problems at once.
type Builder struct {
	start     *domain.Executor
	executors map[string]*domain.Executor
	order     []string
	edges     []domain.Edge
	issues    []domain.Issue
}

// NewBuilder creates an empty graph builder.
func NewBuilder() *Builder {
	return &Builder{executors: make(map[string]*domain.Executor)}
}

// SetStart declares the start executor.
func (b *Builder) SetStart(e *domain.Executor) *Builder {
	if b.register(e) {
		b.start = e
	}
	return b
}

// AddEdge declares a simple 1:1 edge.
func (b *Builder) AddEdge(src, dst *domain.Executor) *Builder {
	if !b.register(src) || !b.register(dst) {
		return b
	}
	b.edges = append(b.edges, domain.Edge{
		Kind:    domain.EdgeSimple,
		Source:  src.ID(),
		Targets: []string{dst.ID()},
	})
	return b
}

// AddFanOutEdges declares a broadcast edge from src to every target.
func (b *Builder) AddFanOutEdges(src *domain.Executor, targets ...*domain.Executor) *Builder {
	if !b.register(src) {
		return b
	}
	ids := make([]string, 0, len(targets))
	for _, t := range targets {
		if b.register(t) {
			ids = append(ids, t.ID())
		}
	}
	b.edges = append(b.edges, domain.Edge{
		Kind:    domain.EdgeFanOut,
		Source:  src.ID(),
		Targets: ids,
	})
	return b
}

// AddFanInEdges declares a barrier edge: dst is invoked once per run with the
// outputs of every source, ordered as declared here.
func (b *Builder) AddFanInEdges(sources []*domain.Executor, dst *domain.Executor) *Builder {
	if !b.register(dst) {
		return b
	}
	seen := make(map[string]bool, len(sources))
	ids := make([]string, 0, len(sources))
	for _, s := range sources {
		if !b.register(s) {
			continue
		}
		if seen[s.ID()] {
			continue
		}
		seen[s.ID()] = true
		ids = append(ids, s.ID())
	}
	b.edges = append(b.edges, domain.Edge{
		Kind:    domain.EdgeFanIn,
		Sources: ids,
		Targets: []string{dst.ID()},
	})
	return b
}

// AddConditionalEdges declares a predicate-routed edge. Cases are evaluated
// in the order given here; def receives every message no case matches and is
// mandatory.
func (b *Builder) AddConditionalEdges(src *domain.Executor, cases []ConditionalCase, def *domain.Executor) *Builder {
	if !b.register(src) {
		return b
	}
	edge := domain.Edge{
		Kind:   domain.EdgeConditional,
		Source: src.ID(),
	}
	for i, c := range cases {
		if c.To == nil {
			b.issues = append(b.issues, domain.Issue{
				Kind:       domain.IssueUnknownExecutor,
				ExecutorID: src.ID(),
				Detail:     fmt.Sprintf("conditional case %d has a nil target", i),
			})
			continue
		}
		if !b.register(c.To) {
			continue
		}
		edge.Cases = append(edge.Cases, domain.Case{When: c.When, Target: c.To.ID()})
	}
	if def != nil && b.register(def) {
		edge.Default = def.ID()
	}
	b.edges = append(b.edges, edge)
	return b
}

// register records an executor, detecting nil references and id collisions
// between distinct executor instances. It reports whether the executor is
// usable in an edge.
func (b *Builder) register(e *domain.Executor) bool {
	if e == nil {
		b.issues = append(b.issues, domain.Issue{
			Kind:   domain.IssueUnknownExecutor,
			Detail: "nil executor in edge declaration",
		})
		return false
	}
	existing, ok := b.executors[e.ID()]
	if !ok {
		b.executors[e.ID()] = e
		b.order = append(b.order, e.ID())
		return true
	}
	if existing != e {
		b.issues = append(b.issues, domain.Issue{
			Kind:       domain.IssueDuplicateExecutorID,
			ExecutorID: e.ID(),
			Detail:     "two distinct executors share this id",
		})
		return false
	}
	return true
}

// Build validates every invariant and returns the immutable graph. On any
// violation it returns a *domain.ValidationError listing every issue found;
// the graph is never partially usable.
func (b *Builder) Build() (*Graph, error) {
	issues := append([]domain.Issue(nil), b.issues...)

	if b.start == nil {
		issues = append(issues, domain.Issue{
			Kind:   domain.IssueNoStartExecutor,
			Detail: "no start executor declared",
		})
	}

	for _, e := range b.edges {
		switch e.Kind {
		case domain.EdgeFanIn:
			if len(e.Sources) == 0 {
				issues = append(issues, domain.Issue{
					Kind:       domain.IssueEmptyFanInSet,
					ExecutorID: e.Target(),
					Detail:     "fan-in edge declares no predecessors",
				})
			}
		case domain.EdgeConditional:
			if e.Default == "" {
				issues = append(issues, domain.Issue{
					Kind:       domain.IssueMissingDefaultCase,
					ExecutorID: e.Source,
					Detail:     "conditional edge declares no default target",
				})
			}
		}
	}

	if b.start != nil {
		for _, id := range b.unreachableFrom(b.start.ID()) {
			issues = append(issues, domain.Issue{
				Kind:       domain.IssueUnreachableExecutor,
				ExecutorID: id,
				Detail:     "no path from the start executor",
			})
		}
	}

	issues = append(issues, b.contractIssues()...)

	if len(issues) > 0 {
		return nil, &domain.ValidationError{Issues: issues}
	}

	g := &Graph{
		start:     b.start.ID(),
		executors: make(map[string]*domain.Executor, len(b.executors)),
		edges:     append([]domain.Edge(nil), b.edges...),
		outbound:  make(map[string][]int),
	}
	for id, e := range b.executors {
		g.executors[id] = e
	}
	for i, e := range g.edges {
		if e.Kind == domain.EdgeFanIn {
			for _, src := range e.Sources {
				g.outbound[src] = append(g.outbound[src], i)
			}
			continue
		}
		g.outbound[e.Source] = append(g.outbound[e.Source], i)
	}
	return g, nil
}

// unreachableFrom returns the executors with no path from start, in
// registration order. Fan-in edges count as a path from each predecessor to
// the target; conditional defaults count as reachable routes.
func (b *Builder) unreachableFrom(start string) []string {
	next := make(map[string][]string)
	add := func(from, to string) {
		if from != "" && to != "" {
			next[from] = append(next[from], to)
		}
	}
	for _, e := range b.edges {
		switch e.Kind {
		case domain.EdgeFanIn:
			for _, src := range e.Sources {
				add(src, e.Target())
			}
		case domain.EdgeConditional:
			for _, c := range e.Cases {
				add(e.Source, c.Target)
			}
			add(e.Source, e.Default)
		default:
			for _, t := range e.Targets {
				add(e.Source, t)
			}
		}
	}

	reached := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, t := range next[id] {
			if !reached[t] {
				reached[t] = true
				queue = append(queue, t)
			}
		}
	}

	var unreachable []string
	for _, id := range b.order {
		if !reached[id] {
			unreachable = append(unreachable, id)
		}
	}
	return unreachable
}

// contractIssues checks the declared handler contracts along every edge. The
// checks only fire when both sides declared their kinds; undeclared
// executors opt out of build-time contract checking.
func (b *Builder) contractIssues() []domain.Issue {
	var issues []domain.Issue

	compatible := func(src, dst *domain.Executor) bool {
		emitted := src.EmittedKinds()
		if len(emitted) == 0 || len(dst.AcceptedKinds()) == 0 {
			return true
		}
		for _, k := range emitted {
			if dst.Accepts(k) {
				return true
			}
		}
		return false
	}
	check := func(srcID, dstID string) {
		src, okSrc := b.executors[srcID]
		dst, okDst := b.executors[dstID]
		if !okSrc || !okDst {
			return
		}
		if !compatible(src, dst) {
			issues = append(issues, domain.Issue{
				Kind:       domain.IssueHandlerContract,
				ExecutorID: dstID,
				Detail:     fmt.Sprintf("accepts none of the kinds %s emits", srcID),
			})
		}
	}

	for _, e := range b.edges {
		switch e.Kind {
		case domain.EdgeFanIn:
			if dst, ok := b.executors[e.Target()]; ok && !dst.Accepts(domain.KindAggregate) {
				issues = append(issues, domain.Issue{
					Kind:       domain.IssueHandlerContract,
					ExecutorID: e.Target(),
					Detail:     fmt.Sprintf("fan-in target has no handler for kind %q", domain.KindAggregate),
				})
			}
		case domain.EdgeConditional:
			for _, c := range e.Cases {
				check(e.Source, c.Target)
			}
			if e.Default != "" {
				check(e.Source, e.Default)
			}
		default:
			for _, t := range e.Targets {
				check(e.Source, t)
			}
		}
	}
	return issues
}
