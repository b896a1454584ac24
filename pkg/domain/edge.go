package domain

// EdgeKind identifies how messages flow across an edge.
type EdgeKind string

const (
	// EdgeSimple delivers each message to a single target.
	EdgeSimple EdgeKind = "simple"
	// EdgeFanOut broadcasts each message to every target; branches proceed
	// independently and concurrently.
	EdgeFanOut EdgeKind = "fan_out"
	// EdgeFanIn buffers one message per declared predecessor and delivers the
	// collected batch to the target once the barrier is full.
	EdgeFanIn EdgeKind = "fan_in"
	// EdgeConditional routes each message to the first case whose predicate
	// matches, or to the default target.
	EdgeConditional EdgeKind = "conditional"
)

// Predicate guards a conditional case. Predicates must be total and
// side-effect free: fan-out branches may evaluate them concurrently against
// the same message.
type Predicate func(Message) bool

// Case is one predicate-guarded route of a conditional edge.
type Case struct {
	When   Predicate
	Target string
}

// Edge is a directed connection between executors. Exactly one of the
// kind-specific field sets is populated:
//
//   - simple: Source, Targets[0]
//   - fan_out: Source, Targets
//   - fan_in: Sources (declaration order), Targets[0]
//   - conditional: Source, Cases (declared order), Default
type Edge struct {
	Kind    EdgeKind
	Source  string
	Sources []string
	Targets []string
	Cases   []Case
	Default string
}

// Target returns the single target of a simple or fan-in edge.
func (e Edge) Target() string {
	if len(e.Targets) == 0 {
		return ""
	}
	return e.Targets[0]
}

// Route evaluates a conditional edge against a message. Cases are evaluated
// in declared order and the first match wins; the engine does not verify that
// predicates are mutually exclusive.
func (e Edge) Route(msg Message) string {
	for _, c := range e.Cases {
		if c.When != nil && c.When(msg) {
			return c.Target
		}
	}
	return e.Default
}
