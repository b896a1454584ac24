package engine

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"gopkg.in/yaml.v3"

	"github.com/tonybaloney/agentic-popup-shop-sub001/pkg/domain"
)

// Definition is a declarative graph description, loadable from YAML. Executor
// ids reference an executor registry supplied at compile time, so a single
// definition can be reused with different handler implementations.
type Definition struct {
	Name  string           `yaml:"name" json:"name"`
	Start string           `yaml:"start" json:"start"`
	Edges []EdgeDefinition `yaml:"edges" json:"edges"`
}

// EdgeDefinition describes one edge. Exactly one shape must be populated:
// from+to (simple), from+targets (fan-out), sources+to (fan-in), or
// from+cases+default (conditional).
type EdgeDefinition struct {
	From    string           `yaml:"from,omitempty" json:"from,omitempty"`
	To      string           `yaml:"to,omitempty" json:"to,omitempty"`
	Targets []string         `yaml:"targets,omitempty" json:"targets,omitempty"`
	Sources []string         `yaml:"sources,omitempty" json:"sources,omitempty"`
	Cases   []CaseDefinition `yaml:"cases,omitempty" json:"cases,omitempty"`
	Default string           `yaml:"default,omitempty" json:"default,omitempty"`
}

// CaseDefinition is one conditional branch: an expr predicate over the
// message and the target it routes to when the predicate holds.
type CaseDefinition struct {
	When string `yaml:"when" json:"when"`
	To   string `yaml:"to" json:"to"`
}

// ParseDefinition decodes a YAML definition.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parsing workflow definition: %w", err)
	}
	if def.Start == "" {
		return nil, fmt.Errorf("workflow definition %q: missing start executor", def.Name)
	}
	return &def, nil
}

// Compile resolves executor ids against the registry, compiles predicate
// expressions and assembles the graph through the builder, so declarative
// definitions get the same validation as programmatic ones.
func (d *Definition) Compile(registry map[string]*domain.Executor) (*Graph, error) {
	lookup := func(id string) *domain.Executor {
		return registry[id] // nil falls through to the builder's unknown-executor issue
	}

	b := NewBuilder()
	b.SetStart(lookup(d.Start))
	for i, e := range d.Edges {
		switch {
		case len(e.Sources) > 0:
			srcs := make([]*domain.Executor, len(e.Sources))
			for j, id := range e.Sources {
				srcs[j] = lookup(id)
			}
			b.AddFanInEdges(srcs, lookup(e.To))
		case len(e.Targets) > 0:
			targets := make([]*domain.Executor, len(e.Targets))
			for j, id := range e.Targets {
				targets[j] = lookup(id)
			}
			b.AddFanOutEdges(lookup(e.From), targets...)
		case len(e.Cases) > 0:
			cases := make([]ConditionalCase, len(e.Cases))
			for j, c := range e.Cases {
				pred, err := ExprPredicate(c.When)
				if err != nil {
					return nil, fmt.Errorf("edge %d case %d: %w", i, j, err)
				}
				cases[j] = ConditionalCase{When: pred, To: lookup(c.To)}
			}
			b.AddConditionalEdges(lookup(e.From), cases, lookup(e.Default))
		case e.To != "":
			b.AddEdge(lookup(e.From), lookup(e.To))
		default:
			return nil, fmt.Errorf("edge %d: no target (need to, targets, sources or cases)", i)
		}
	}
	return b.Build()
}

// ExprPredicate compiles an expr expression into a message predicate. The
// expression sees kind, source and payload; any runtime error evaluates to
// false so a malformed payload routes to the default branch instead of
// aborting the run.
func ExprPredicate(code string) (domain.Predicate, error) {
	program, err := expr.Compile(code, expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compiling predicate %q: %w", code, err)
	}
	return compiledPredicate(program), nil
}

func compiledPredicate(program *vm.Program) domain.Predicate {
	return func(msg domain.Message) bool {
		env := map[string]any{
			"kind":    string(msg.Kind),
			"source":  msg.Source,
			"payload": msg.Payload,
		}
		out, err := expr.Run(program, env)
		if err != nil {
			return false
		}
		ok, _ := out.(bool)
		return ok
	}
}
