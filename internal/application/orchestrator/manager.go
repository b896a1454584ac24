package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tonybaloney/agentic-popup-shop-sub001/pkg/domain"
	"github.com/tonybaloney/agentic-popup-shop-sub001/pkg/ports"
)

// Config bounds the manager loop. All three maxima are required and compared
// with >= against the running counters; a maximum of 0 means the event is
// never allowed (MaxStalls=0 terminates at the first stall).
type Config struct {
	MaxRounds int
	MaxStalls int
	MaxResets int

	// RoundTimeout bounds each planning+dispatch+assessment round. Zero
	// disables the deadline.
	RoundTimeout time.Duration
}

// Manager coordinates a flat set of participant executors through a planner
// across bounded rounds. Each round the planner either declares completion or
// assigns sub-tasks; responses accumulate in a shared transcript. Stalled
// rounds increment a counter that can force a transcript reset before the
// loop finally terminates with a best-effort result.
type Manager struct {
	planner      ports.Planner
	participants map[string]*domain.Executor
	order        []string
	cfg          Config
	sink         ports.EventSink
	metrics      ports.MetricsCollector
	logger       *zap.Logger
	eventBuffer  int
}

// NewManager validates the participant set against the task-handling contract
// and returns a manager ready to run deliberations.
func NewManager(
	planner ports.Planner,
	participants map[string]*domain.Executor,
	cfg Config,
	sink ports.EventSink,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
) (*Manager, error) {
	if err := validate(planner, participants, cfg); err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	order := make([]string, 0, len(participants))
	for name := range participants {
		order = append(order, name)
	}
	sort.Strings(order)
	return &Manager{
		planner:      planner,
		participants: participants,
		order:        order,
		cfg:          cfg,
		sink:         sink,
		metrics:      metrics,
		logger:       logger,
		eventBuffer:  64,
	}, nil
}

// Run starts a deliberation over the given task. The returned stream closes
// after exactly one terminal event: the planner's declared result, a
// best-effort partial result on an exhausted budget, or a failure.
func (m *Manager) Run(ctx context.Context, task string) (<-chan domain.Event, error) {
	return m.RunWithID(ctx, uuid.New().String(), task)
}

// RunWithID is Run with a caller-assigned run id.
func (m *Manager) RunWithID(ctx context.Context, runID, task string) (<-chan domain.Event, error) {
	if task == "" {
		return nil, fmt.Errorf("empty task")
	}
	d := &deliberation{
		id:      runID,
		manager: m,
		events:  make(chan domain.Event, m.eventBuffer),
	}
	m.logger.Info("deliberation started",
		zap.String("run_id", d.id),
		zap.Int("participants", len(m.participants)),
		zap.Int("max_rounds", m.cfg.MaxRounds))
	go d.loop(ctx, task)
	return d.events, nil
}

// deliberation is the state of one manager run.
type deliberation struct {
	id      string
	manager *Manager
	events  chan domain.Event
	seq     atomic.Uint64

	rounds int
	stalls int
	resets int
}

func (d *deliberation) loop(ctx context.Context, task string) {
	defer close(d.events)

	m := d.manager
	transcript := domain.NewTranscript(task)

	for {
		if err := ctx.Err(); err != nil {
			d.terminate(transcript, fmt.Errorf("deliberation cancelled: %w", context.Cause(ctx)))
			return
		}
		if d.rounds >= m.cfg.MaxRounds {
			d.terminate(transcript, &domain.RoundExceededError{Rounds: d.rounds})
			return
		}

		rctx := ctx
		var cancel context.CancelFunc
		if m.cfg.RoundTimeout > 0 {
			rctx, cancel = context.WithTimeout(ctx, m.cfg.RoundTimeout)
		}
		done, err := d.round(rctx, transcript)
		if cancel != nil {
			cancel()
		}
		if err != nil {
			d.emitTerminal(domain.EventFailure, "", nil, err)
			return
		}
		if done {
			return
		}

		if d.stalls >= m.cfg.MaxStalls {
			if d.resets >= m.cfg.MaxResets {
				d.terminate(transcript, &domain.StallExceededError{Stalls: d.stalls, Resets: d.resets})
				return
			}
			d.resets++
			d.stalls = 0
			transcript.Reset()
			m.metrics.RecordManagerReset()
			m.logger.Warn("deliberation stalled, resetting transcript",
				zap.String("run_id", d.id),
				zap.Int("reset_count", d.resets))
		}
	}
}

// round runs one plan/dispatch/assess cycle. It returns done=true when the
// planner declared completion and the terminal event has been emitted.
func (d *deliberation) round(ctx context.Context, transcript *domain.Transcript) (bool, error) {
	m := d.manager

	directive, err := m.planner.Plan(ctx, transcript)
	if err != nil {
		return false, fmt.Errorf("planner failed on round %d: %w", d.rounds+1, err)
	}
	if directive.Complete {
		m.logger.Info("deliberation complete",
			zap.String("run_id", d.id),
			zap.Int("rounds", d.rounds))
		d.emitTerminal(domain.EventFinalResult, "", directive.Final, nil)
		return true, nil
	}
	if len(directive.Assignments) == 0 {
		return false, fmt.Errorf("planner returned neither completion nor assignments on round %d", d.rounds+1)
	}

	entries := make([]domain.TranscriptEntry, len(directive.Assignments))
	g, gctx := errgroup.WithContext(ctx)
	for i, a := range directive.Assignments {
		exec, ok := m.participants[a.Participant]
		if !ok {
			return false, fmt.Errorf("planner assigned unknown participant %q", a.Participant)
		}
		i, a := i, a
		g.Go(func() error {
			entries[i] = d.invoke(gctx, exec, a)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}
	for _, e := range entries {
		transcript.Append(e)
	}

	d.rounds++
	m.metrics.RecordManagerRound()

	progress, err := m.planner.AssessProgress(ctx, transcript)
	if err != nil {
		return false, fmt.Errorf("progress assessment failed on round %d: %w", d.rounds, err)
	}
	if progress {
		d.stalls = 0
	} else {
		d.stalls++
		m.metrics.RecordManagerStall()
	}

	boundary := d.event(domain.EventRoundBoundary)
	boundary.Round = d.rounds
	boundary.StallCount = d.stalls
	boundary.ResetCount = d.resets
	d.emit(ctx, boundary)
	return false, nil
}

// invoke runs one participant against its assignment. Participant failures
// become failed transcript entries rather than aborting the round, so the
// planner can route around a broken expert.
func (d *deliberation) invoke(ctx context.Context, exec *domain.Executor, a domain.Assignment) domain.TranscriptEntry {
	m := d.manager

	dispatched := d.event(domain.EventDispatched)
	dispatched.ExecutorID = exec.ID()
	dispatched.EdgeKind = domain.EdgeFanOut
	d.emit(ctx, dispatched)

	started := d.event(domain.EventExecutorStarted)
	started.ExecutorID = exec.ID()
	d.emit(ctx, started)

	turn := domain.NewTurn(exec.ID())
	msg := domain.NewMessage(domain.KindTask, a)
	begin := time.Now()
	err := exec.Invoke(ctx, turn, msg)
	duration := time.Since(begin)

	entry := domain.TranscriptEntry{Participant: a.Participant, Round: d.rounds + 1}
	if err != nil {
		m.metrics.RecordExecutorInvoked(exec.ID(), "error", duration)
		m.logger.Warn("participant failed",
			zap.String("run_id", d.id),
			zap.String("executor_id", exec.ID()),
			zap.Error(err))
		entry.Failed = true
		entry.Content = err.Error()
	} else {
		m.metrics.RecordExecutorInvoked(exec.ID(), "ok", duration)
		entry.Content = responseText(turn)
	}

	finished := d.event(domain.EventExecutorFinished)
	finished.ExecutorID = exec.ID()
	d.emit(ctx, finished)
	return entry
}

// terminate ends the loop on an exhausted budget or cancellation: a partial
// result summarizing collected progress when any exists, a failure otherwise.
func (d *deliberation) terminate(transcript *domain.Transcript, cause error) {
	if len(transcript.Entries) == 0 && len(transcript.Facts) == 0 {
		d.emitTerminal(domain.EventFailure, "", nil, cause)
		return
	}
	result := &domain.ManagerResult{
		Summary: summarize(transcript),
		Partial: true,
		Reason:  cause.Error(),
		Entries: transcript.Entries,
	}
	d.manager.logger.Info("deliberation ended with partial result",
		zap.String("run_id", d.id),
		zap.String("reason", result.Reason),
		zap.Int("entries", len(result.Entries)))
	d.emitTerminal(domain.EventFinalResult, "", result, nil)
}

func (d *deliberation) event(typ domain.EventType) domain.Event {
	return domain.NewEvent(d.id, typ)
}

func (d *deliberation) emit(ctx context.Context, ev domain.Event) {
	ev.Seq = d.seq.Add(1)
	d.mirror(ev)
	select {
	case d.events <- ev:
	case <-ctx.Done():
	}
}

func (d *deliberation) emitTerminal(typ domain.EventType, executorID string, value any, cause error) {
	ev := d.event(typ)
	ev.Seq = d.seq.Add(1)
	ev.ExecutorID = executorID
	ev.Value = value
	if cause != nil {
		ev.Error = cause.Error()
	}
	d.mirror(ev)
	select {
	case d.events <- ev:
	case <-time.After(time.Second):
		d.manager.logger.Warn("terminal event dropped, consumer not reading",
			zap.String("run_id", d.id),
			zap.String("event_type", string(typ)))
	}
}

func (d *deliberation) mirror(ev domain.Event) {
	if d.manager.sink == nil {
		return
	}
	if err := d.manager.sink.Emit(context.Background(), ev); err != nil {
		d.manager.logger.Warn("event sink emit failed",
			zap.String("run_id", d.id),
			zap.String("event_id", ev.ID),
			zap.Error(err))
	}
}

// responseText renders a participant turn for the transcript. Participants
// reply by sending messages; the payloads are concatenated in send order.
func responseText(turn *domain.Turn) string {
	outputs := turn.Outputs()
	if len(outputs) == 0 {
		if turn.Yielded() {
			return fmt.Sprint(turn.Result())
		}
		return ""
	}
	text := ""
	for i, out := range outputs {
		if i > 0 {
			text += "\n"
		}
		text += fmt.Sprint(out.Payload)
	}
	return text
}

func summarize(transcript *domain.Transcript) string {
	return fmt.Sprintf("collected %d responses and %d retained facts for task: %s",
		len(transcript.Entries), len(transcript.Facts), transcript.Task)
}
