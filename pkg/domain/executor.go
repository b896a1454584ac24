package domain

import (
	"context"
	"fmt"
)

// HandlerFunc processes one message. Outputs and the terminal result are
// declared through the Turn; returning an error aborts the run unless the
// handler converts the failure into a KindError message instead.
type HandlerFunc func(ctx context.Context, turn *Turn, msg Message) error

// Executor is a named graph node wrapping one handler per accepted message
// kind. Executors are constructed once at graph-build time and may hold
// long-lived state (such as a bound agent client); they must be safe for use
// across concurrent runs of the same graph.
type Executor struct {
	id       string
	handlers map[Kind]HandlerFunc
	emits    map[Kind]struct{}
	yields   bool
}

// NewExecutor creates an executor with the given unique id.
func NewExecutor(id string) *Executor {
	return &Executor{
		id:       id,
		handlers: make(map[Kind]HandlerFunc),
		emits:    make(map[Kind]struct{}),
	}
}

// OnMessage registers the handler for one message kind. Registering the same
// kind twice keeps the last handler; each executor accepts a closed set of
// kinds resolved at dispatch time.
func (e *Executor) OnMessage(kind Kind, fn HandlerFunc) *Executor {
	e.handlers[kind] = fn
	return e
}

// Emits declares the message kinds this executor's handlers may send. The
// declaration is part of the graph contract: sending an undeclared kind at
// runtime is a handler error, and build-time validation uses it to check edge
// compatibility.
func (e *Executor) Emits(kinds ...Kind) *Executor {
	for _, k := range kinds {
		e.emits[k] = struct{}{}
	}
	return e
}

// Yields declares that this executor may produce the workflow's terminal
// result through Turn.Yield.
func (e *Executor) Yields() *Executor {
	e.yields = true
	return e
}

// ID returns the executor's unique id.
func (e *Executor) ID() string { return e.id }

// Accepts reports whether the executor has a handler for the given kind.
func (e *Executor) Accepts(kind Kind) bool {
	_, ok := e.handlers[kind]
	return ok
}

// AcceptedKinds returns the kinds this executor handles.
func (e *Executor) AcceptedKinds() []Kind {
	kinds := make([]Kind, 0, len(e.handlers))
	for k := range e.handlers {
		kinds = append(kinds, k)
	}
	return kinds
}

// MayEmit reports whether the executor declared the given output kind. An
// executor with no declarations may emit anything.
func (e *Executor) MayEmit(kind Kind) bool {
	if len(e.emits) == 0 {
		return true
	}
	_, ok := e.emits[kind]
	return ok
}

// EmittedKinds returns the declared output kinds.
func (e *Executor) EmittedKinds() []Kind {
	kinds := make([]Kind, 0, len(e.emits))
	for k := range e.emits {
		kinds = append(kinds, k)
	}
	return kinds
}

// CanYield reports whether the executor declared a terminal yield.
func (e *Executor) CanYield() bool { return e.yields }

// Invoke dispatches the message to the handler registered for its kind.
func (e *Executor) Invoke(ctx context.Context, turn *Turn, msg Message) error {
	fn, ok := e.handlers[msg.Kind]
	if !ok {
		return &HandlerError{
			ExecutorID: e.id,
			Err:        fmt.Errorf("no handler for message kind %q", msg.Kind),
		}
	}
	return fn(ctx, turn, msg)
}

// Turn collects the outputs of a single executor invocation. It is created by
// the runner per invocation and is not safe for use after the handler
// returns.
type Turn struct {
	executorID string
	outputs    []Message
	yielded    bool
	result     any
}

// NewTurn creates the output collector for one invocation of an executor.
func NewTurn(executorID string) *Turn {
	return &Turn{executorID: executorID}
}

// Send queues an output message for routing along the executor's outbound
// edges once the handler returns.
func (t *Turn) Send(kind Kind, payload any) {
	t.outputs = append(t.outputs, NewMessage(kind, payload).WithSource(t.executorID))
}

// Yield marks the run's terminal result. The first yield in a run wins;
// later yields are ignored by the runner.
func (t *Turn) Yield(value any) {
	t.yielded = true
	t.result = value
}

// ExecutorID returns the id of the executor owning this turn.
func (t *Turn) ExecutorID() string { return t.executorID }

// Outputs returns the messages queued during the invocation, in send order.
func (t *Turn) Outputs() []Message { return t.outputs }

// Yielded reports whether the handler yielded a terminal result.
func (t *Turn) Yielded() bool { return t.yielded }

// Result returns the yielded value.
func (t *Turn) Result() any { return t.result }
