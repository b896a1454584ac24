package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/tonybaloney/agentic-popup-shop-sub001/pkg/domain"
	"github.com/tonybaloney/agentic-popup-shop-sub001/pkg/ports"
)

const (
	defaultEventBuffer    = 256
	defaultHandlerTimeout = 5 * time.Minute

	// terminalSendGrace bounds how long a run waits for an abandoned consumer
	// before dropping its terminal event.
	terminalSendGrace = time.Second
)

// Runner executes graphs. A single Runner is shared across runs; per-run
// state lives in the run struct created by Run.
type Runner struct {
	logger         *zap.Logger
	metrics        ports.MetricsCollector
	sink           ports.EventSink
	handlerTimeout time.Duration
	maxConcurrent  int64
	eventBuffer    int
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m ports.MetricsCollector) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithSink mirrors every run event to the given sink in addition to the
// run's own event channel.
func WithSink(s ports.EventSink) Option {
	return func(r *Runner) { r.sink = s }
}

// WithHandlerTimeout bounds each executor invocation. Zero disables the
// per-invocation deadline.
func WithHandlerTimeout(d time.Duration) Option {
	return func(r *Runner) { r.handlerTimeout = d }
}

// WithMaxConcurrentHandlers caps how many handler invocations run at once
// across all branches of a run. Zero means unlimited.
func WithMaxConcurrentHandlers(n int64) Option {
	return func(r *Runner) { r.maxConcurrent = n }
}

// WithEventBufferSize sets the run event channel buffer.
func WithEventBufferSize(n int) Option {
	return func(r *Runner) { r.eventBuffer = n }
}

// NewRunner creates a runner with the given options.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		logger:         zap.NewNop(),
		metrics:        ports.NopMetrics{},
		handlerTimeout: defaultHandlerTimeout,
		eventBuffer:    defaultEventBuffer,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the graph against the initial input message. The returned
// stream yields lifecycle events in emission order and closes after exactly
// one terminal event (final result or failure). Cancelling ctx aborts all
// in-flight branches and terminates the stream with a failure.
func (r *Runner) Run(ctx context.Context, g *Graph, input domain.Message) (<-chan domain.Event, error) {
	return r.RunWithID(ctx, uuid.New().String(), g, input)
}

// RunWithID is Run with a caller-assigned run id, for callers that track the
// run externally before the first event arrives.
func (r *Runner) RunWithID(ctx context.Context, runID string, g *Graph, input domain.Message) (<-chan domain.Event, error) {
	if g == nil {
		return nil, errors.New("nil graph")
	}
	start, ok := g.Executor(g.Start())
	if !ok {
		return nil, fmt.Errorf("start executor %q not in graph", g.Start())
	}
	if !start.Accepts(input.Kind) {
		return nil, fmt.Errorf("start executor %q has no handler for input kind %q", g.Start(), input.Kind)
	}

	runCtx, cancel := context.WithCancel(ctx)
	st := &run{
		id:       runID,
		runner:   r,
		graph:    g,
		ctx:      runCtx,
		cancel:   cancel,
		events:   make(chan domain.Event, r.eventBuffer),
		barriers: make(map[int]*barrier),
	}
	if r.maxConcurrent > 0 {
		st.sem = semaphore.NewWeighted(r.maxConcurrent)
	}
	for i, e := range g.Edges() {
		if e.Kind == domain.EdgeFanIn {
			st.barriers[i] = newBarrier(e.Sources)
		}
	}

	r.logger.Info("workflow run started",
		zap.String("run_id", st.id),
		zap.String("start_executor", g.Start()),
		zap.Int("executors", len(g.ExecutorIDs())))

	st.wg.Add(1)
	go func() {
		st.dispatch(input, g.Start(), "")
		st.wg.Done()
	}()
	go st.finalize()

	return st.events, nil
}

// run holds the state of one graph execution.
type run struct {
	id     string
	runner *Runner
	graph  *Graph
	ctx    context.Context
	cancel context.CancelFunc
	events chan domain.Event
	sem    *semaphore.Weighted

	wg  sync.WaitGroup
	seq atomic.Uint64

	// barriers is keyed by edge index; each entry serializes its own fills.
	barriers map[int]*barrier

	yieldOnce  sync.Once
	yielded    atomic.Bool
	result     any
	resultFrom string

	failOnce sync.Once
	failed   atomic.Bool
	failExec string
	failErr  error
}

// halted reports whether no new work may be scheduled: the run has yielded,
// failed, or been cancelled. Messages already handed to an executor drain
// normally.
func (st *run) halted() bool {
	return st.yielded.Load() || st.failed.Load() || st.ctx.Err() != nil
}

func (st *run) setResult(executorID string, value any) {
	st.yieldOnce.Do(func() {
		st.result = value
		st.resultFrom = executorID
		st.yielded.Store(true)
	})
}

func (st *run) fail(executorID string, err error) {
	// A handler unwinding because the run itself was cancelled is not an
	// executor failure; finalize reports the cancellation.
	if st.ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return
	}
	st.failOnce.Do(func() {
		st.failExec = executorID
		st.failErr = err
		st.failed.Store(true)
		st.runner.logger.Error("workflow run failed",
			zap.String("run_id", st.id),
			zap.String("executor_id", executorID),
			zap.Error(err))
		st.cancel()
	})
}

// dispatch emits the routing event and delivers the message to the target,
// invoking its handler and routing the outputs.
func (st *run) dispatch(msg domain.Message, target string, via domain.EdgeKind) {
	if st.halted() {
		return
	}
	exec, ok := st.graph.Executor(target)
	if !ok {
		st.fail(target, fmt.Errorf("message routed to unknown executor %q", target))
		return
	}

	ev := domain.NewEvent(st.id, domain.EventDispatched)
	ev.ExecutorID = target
	ev.EdgeKind = via
	st.emit(ev)

	started := domain.NewEvent(st.id, domain.EventExecutorStarted)
	started.ExecutorID = target
	st.emit(started)

	if st.sem != nil {
		if err := st.sem.Acquire(st.ctx, 1); err != nil {
			return
		}
	}
	hctx := st.ctx
	var cancel context.CancelFunc
	if st.runner.handlerTimeout > 0 {
		hctx, cancel = context.WithTimeout(st.ctx, st.runner.handlerTimeout)
	}
	turn := domain.NewTurn(target)
	begin := time.Now()
	err := exec.Invoke(hctx, turn, msg)
	if cancel != nil {
		cancel()
	}
	if st.sem != nil {
		st.sem.Release(1)
	}
	duration := time.Since(begin)

	if err != nil {
		st.runner.metrics.RecordExecutorInvoked(target, "error", duration)
		var herr *domain.HandlerError
		if !errors.As(err, &herr) {
			err = &domain.HandlerError{ExecutorID: target, Err: err}
		}
		st.fail(target, err)
		return
	}
	st.runner.metrics.RecordExecutorInvoked(target, "ok", duration)

	finished := domain.NewEvent(st.id, domain.EventExecutorFinished)
	finished.ExecutorID = target
	st.emit(finished)

	if turn.Yielded() {
		if !exec.CanYield() {
			st.fail(target, &domain.HandlerError{
				ExecutorID: target,
				Err:        errors.New("yielded a result without declaring Yields"),
			})
			return
		}
		st.setResult(target, turn.Result())
	}

	for _, out := range turn.Outputs() {
		if !exec.MayEmit(out.Kind) {
			st.fail(target, &domain.HandlerError{
				ExecutorID: target,
				Err:        fmt.Errorf("sent undeclared message kind %q", out.Kind),
			})
			return
		}
		st.route(out, target)
	}
}

// route sends one output message along every outbound edge of its source.
// Simple and conditional targets are delivered in the caller's goroutine to
// keep per-branch production order; fan-out targets get a goroutine each.
func (st *run) route(msg domain.Message, source string) {
	if st.halted() {
		return
	}
	for _, idx := range st.graph.outboundOf(source) {
		edge := st.graph.Edges()[idx]
		switch edge.Kind {
		case domain.EdgeSimple:
			st.childDispatch(msg, edge.Target(), edge.Kind, false)
		case domain.EdgeFanOut:
			for _, target := range edge.Targets {
				st.childDispatch(msg, target, edge.Kind, true)
			}
		case domain.EdgeConditional:
			st.childDispatch(msg, edge.Route(msg), edge.Kind, false)
		case domain.EdgeFanIn:
			batch, fired := st.barriers[idx].offer(source, msg)
			if !fired {
				continue
			}
			st.runner.metrics.RecordBarrierFill(edge.Target())
			st.childDispatch(domain.NewMessage(domain.KindAggregate, batch), edge.Target(), edge.Kind, false)
		}
	}
}

func (st *run) childDispatch(msg domain.Message, target string, via domain.EdgeKind, async bool) {
	if st.halted() {
		return
	}
	st.wg.Add(1)
	if async {
		go func() {
			st.dispatch(msg, target, via)
			st.wg.Done()
		}()
		return
	}
	st.dispatch(msg, target, via)
	st.wg.Done()
}

// finalize waits for every branch to drain, then emits the run's single
// terminal event and closes the stream.
func (st *run) finalize() {
	st.wg.Wait()

	var ev domain.Event
	switch {
	case st.failed.Load():
		ev = domain.NewEvent(st.id, domain.EventFailure)
		ev.ExecutorID = st.failExec
		ev.Error = st.failErr.Error()
	case st.yielded.Load():
		ev = domain.NewEvent(st.id, domain.EventFinalResult)
		ev.ExecutorID = st.resultFrom
		ev.Value = st.result
	case st.ctx.Err() != nil:
		ev = domain.NewEvent(st.id, domain.EventFailure)
		ev.Error = fmt.Sprintf("run cancelled: %v", context.Cause(st.ctx))
	default:
		ev = domain.NewEvent(st.id, domain.EventFailure)
		if stalled := st.stalledBarrier(); stalled != nil {
			ev.ExecutorID = stalled.Target
			ev.Error = stalled.Error()
		} else {
			ev.Error = domain.ErrNoTerminalResult.Error()
		}
	}
	st.emitTerminal(ev)
	close(st.events)
	st.cancel()

	st.runner.logger.Info("workflow run finished",
		zap.String("run_id", st.id),
		zap.String("terminal_event", string(ev.Type)),
		zap.Uint64("events", st.seq.Load()))
}

// stalledBarrier reports the first fan-in barrier that collected some but not
// all of its contributions before the run drained.
func (st *run) stalledBarrier() *domain.BarrierTimeoutError {
	for idx, b := range st.barriers {
		if missing := b.missing(); missing != nil {
			return &domain.BarrierTimeoutError{
				Target:  st.graph.Edges()[idx].Target(),
				Missing: missing,
			}
		}
	}
	return nil
}

func (st *run) emit(ev domain.Event) {
	ev.Seq = st.seq.Add(1)
	st.mirror(ev)
	select {
	case st.events <- ev:
	case <-st.ctx.Done():
		// Consumer gone or run aborted; non-terminal events are droppable.
	}
}

func (st *run) emitTerminal(ev domain.Event) {
	ev.Seq = st.seq.Add(1)
	st.mirror(ev)
	select {
	case st.events <- ev:
	case <-time.After(terminalSendGrace):
		st.runner.logger.Warn("terminal event dropped, consumer not reading",
			zap.String("run_id", st.id),
			zap.String("event_type", string(ev.Type)))
	}
}

func (st *run) mirror(ev domain.Event) {
	if st.runner.sink == nil {
		return
	}
	if err := st.runner.sink.Emit(context.WithoutCancel(st.ctx), ev); err != nil {
		st.runner.logger.Warn("event sink emit failed",
			zap.String("run_id", st.id),
			zap.String("event_id", ev.ID),
			zap.Error(err))
	}
}

// barrier collects one message per declared predecessor of a fan-in edge.
// The first contribution per predecessor wins; the barrier fires at most
// once and delivers the batch ordered by declaration order.
type barrier struct {
	mu    sync.Mutex
	order []string
	got   map[string]domain.Message
	fired bool
}

func newBarrier(sources []string) *barrier {
	return &barrier{
		order: sources,
		got:   make(map[string]domain.Message, len(sources)),
	}
}

func (b *barrier) offer(source string, msg domain.Message) ([]domain.Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fired {
		return nil, false
	}
	if _, dup := b.got[source]; dup {
		return nil, false
	}
	b.got[source] = msg
	if len(b.got) < len(b.order) {
		return nil, false
	}
	b.fired = true
	batch := make([]domain.Message, len(b.order))
	for i, src := range b.order {
		batch[i] = b.got[src]
	}
	return batch, true
}

// missing returns the predecessors that never contributed, or nil if the
// barrier fired or never started filling.
func (b *barrier) missing() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fired || len(b.got) == 0 {
		return nil
	}
	var missing []string
	for _, src := range b.order {
		if _, ok := b.got[src]; !ok {
			missing = append(missing, src)
		}
	}
	return missing
}
