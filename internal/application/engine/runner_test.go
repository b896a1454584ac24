package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonybaloney/agentic-popup-shop-sub001/pkg/domain"
)

// drain collects every event from a run stream, failing the test if the
// stream does not close within the deadline.
func drain(t *testing.T, events <-chan domain.Event) []domain.Event {
	t.Helper()
	var out []domain.Event
	deadline := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			t.Fatal("event stream did not close")
		}
	}
}

func terminalOf(t *testing.T, events []domain.Event) domain.Event {
	t.Helper()
	require.NotEmpty(t, events)
	var terminals []domain.Event
	for _, ev := range events {
		if ev.Terminal() {
			terminals = append(terminals, ev)
		}
	}
	require.Len(t, terminals, 1, "a run must end with exactly one terminal event")
	assert.Equal(t, terminals[0].ID, events[len(events)-1].ID, "the terminal event must close the stream")
	return terminals[0]
}

func TestRunSimpleChain(t *testing.T) {
	start := domain.NewExecutor("start").
		OnMessage(domain.KindTask, func(_ context.Context, turn *domain.Turn, msg domain.Message) error {
			turn.Send("step", msg.Payload)
			return nil
		})
	final := domain.NewExecutor("final").
		Yields().
		OnMessage("step", func(_ context.Context, turn *domain.Turn, msg domain.Message) error {
			turn.Yield(msg.Payload)
			return nil
		})

	b := NewBuilder()
	b.SetStart(start)
	b.AddEdge(start, final)
	g, err := b.Build()
	require.NoError(t, err)

	events, err := NewRunner().Run(context.Background(), g, domain.NewMessage(domain.KindTask, "hello"))
	require.NoError(t, err)

	all := drain(t, events)
	term := terminalOf(t, all)
	assert.Equal(t, domain.EventFinalResult, term.Type)
	assert.Equal(t, "final", term.ExecutorID)
	assert.Equal(t, "hello", term.Value)

	var prev uint64
	for _, ev := range all {
		assert.Greater(t, ev.Seq, prev, "sequence numbers must increase")
		prev = ev.Seq
	}
}

func TestRunRejectsUnhandledInputKind(t *testing.T) {
	start := noopExecutor("start", domain.KindTask)
	sink := noopExecutor("sink", domain.KindTask)

	b := NewBuilder()
	b.SetStart(start)
	b.AddEdge(start, sink)
	g, err := b.Build()
	require.NoError(t, err)

	_, err = NewRunner().Run(context.Background(), g, domain.NewMessage("unexpected", nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no handler")
}

func TestRunNilGraph(t *testing.T) {
	_, err := NewRunner().Run(context.Background(), nil, domain.NewMessage(domain.KindTask, nil))
	require.Error(t, err)
}

func TestRunFanInDeliversDeclarationOrder(t *testing.T) {
	start := domain.NewExecutor("start").
		OnMessage(domain.KindTask, func(_ context.Context, turn *domain.Turn, _ domain.Message) error {
			turn.Send("work", nil)
			return nil
		})

	expert := func(id string, delay time.Duration) *domain.Executor {
		return domain.NewExecutor(id).
			OnMessage("work", func(_ context.Context, turn *domain.Turn, _ domain.Message) error {
				time.Sleep(delay)
				turn.Send("opinion", id)
				return nil
			})
	}
	// Completion order is deliberately the reverse of declaration order.
	alpha := expert("alpha", 60*time.Millisecond)
	beta := expert("beta", 30*time.Millisecond)
	gamma := expert("gamma", 0)

	collector := domain.NewExecutor("collector").
		Yields().
		OnMessage(domain.KindAggregate, func(_ context.Context, turn *domain.Turn, msg domain.Message) error {
			batch, err := domain.Collected(msg)
			if err != nil {
				return err
			}
			order := make([]string, len(batch))
			for i, m := range batch {
				order[i] = m.Source
			}
			turn.Yield(order)
			return nil
		})

	b := NewBuilder()
	b.SetStart(start)
	b.AddFanOutEdges(start, alpha, beta, gamma)
	b.AddFanInEdges([]*domain.Executor{alpha, beta, gamma}, collector)
	g, err := b.Build()
	require.NoError(t, err)

	events, err := NewRunner().Run(context.Background(), g, domain.NewMessage(domain.KindTask, nil))
	require.NoError(t, err)

	term := terminalOf(t, drain(t, events))
	require.Equal(t, domain.EventFinalResult, term.Type)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, term.Value)
}

func TestRunStalledBarrier(t *testing.T) {
	start := domain.NewExecutor("start").
		OnMessage(domain.KindTask, func(_ context.Context, turn *domain.Turn, _ domain.Message) error {
			turn.Send("work", "left only")
			return nil
		})
	left := domain.NewExecutor("left").
		OnMessage("work", func(_ context.Context, turn *domain.Turn, _ domain.Message) error {
			turn.Send("opinion", nil)
			return nil
		})
	// Declared as a barrier predecessor but never dispatched to.
	right := domain.NewExecutor("right").
		OnMessage("work", func(_ context.Context, turn *domain.Turn, _ domain.Message) error {
			turn.Send("opinion", nil)
			return nil
		})
	collector := domain.NewExecutor("collector").
		Yields().
		OnMessage(domain.KindAggregate, func(_ context.Context, turn *domain.Turn, _ domain.Message) error {
			turn.Yield("done")
			return nil
		})

	b := NewBuilder()
	b.SetStart(start)
	b.AddConditionalEdges(start, []ConditionalCase{
		{When: func(m domain.Message) bool { return m.Payload == "left only" }, To: left},
	}, right)
	b.AddFanInEdges([]*domain.Executor{left, right}, collector)
	g, err := b.Build()
	require.NoError(t, err)

	events, err := NewRunner().Run(context.Background(), g, domain.NewMessage(domain.KindTask, nil))
	require.NoError(t, err)

	term := terminalOf(t, drain(t, events))
	require.Equal(t, domain.EventFailure, term.Type)
	assert.Equal(t, "collector", term.ExecutorID)
	assert.Contains(t, term.Error, "right")
}

func TestRunConditionalFirstMatchWins(t *testing.T) {
	start := domain.NewExecutor("start").
		OnMessage(domain.KindTask, func(_ context.Context, turn *domain.Turn, _ domain.Message) error {
			turn.Send("verdict", map[string]any{"is_competitive": true})
			return nil
		})
	yielder := func(id string) *domain.Executor {
		return domain.NewExecutor(id).
			Yields().
			OnMessage("verdict", func(_ context.Context, turn *domain.Turn, _ domain.Message) error {
				turn.Yield(id)
				return nil
			})
	}
	first := yielder("first")
	second := yielder("second")
	fallback := yielder("fallback")

	matchCompetitive := func(m domain.Message) bool {
		p, ok := m.Payload.(map[string]any)
		return ok && p["is_competitive"] == true
	}
	always := func(domain.Message) bool { return true }

	b := NewBuilder()
	b.SetStart(start)
	b.AddConditionalEdges(start, []ConditionalCase{
		{When: matchCompetitive, To: first},
		{When: always, To: second},
	}, fallback)
	g, err := b.Build()
	require.NoError(t, err)

	events, err := NewRunner().Run(context.Background(), g, domain.NewMessage(domain.KindTask, nil))
	require.NoError(t, err)

	term := terminalOf(t, drain(t, events))
	require.Equal(t, domain.EventFinalResult, term.Type)
	assert.Equal(t, "first", term.Value)
}

func TestRunConditionalDefaultRoute(t *testing.T) {
	start := domain.NewExecutor("start").
		OnMessage(domain.KindTask, func(_ context.Context, turn *domain.Turn, _ domain.Message) error {
			turn.Send("verdict", nil)
			return nil
		})
	cased := domain.NewExecutor("cased").
		Yields().
		OnMessage("verdict", func(_ context.Context, turn *domain.Turn, _ domain.Message) error {
			turn.Yield("cased")
			return nil
		})
	fallback := domain.NewExecutor("fallback").
		Yields().
		OnMessage("verdict", func(_ context.Context, turn *domain.Turn, _ domain.Message) error {
			turn.Yield("fallback")
			return nil
		})

	b := NewBuilder()
	b.SetStart(start)
	b.AddConditionalEdges(start, []ConditionalCase{
		{When: func(domain.Message) bool { return false }, To: cased},
	}, fallback)
	g, err := b.Build()
	require.NoError(t, err)

	events, err := NewRunner().Run(context.Background(), g, domain.NewMessage(domain.KindTask, nil))
	require.NoError(t, err)

	term := terminalOf(t, drain(t, events))
	assert.Equal(t, "fallback", term.Value)
}

func TestRunPerBranchOrderPreserved(t *testing.T) {
	start := domain.NewExecutor("start").
		OnMessage(domain.KindTask, func(_ context.Context, turn *domain.Turn, _ domain.Message) error {
			turn.Send("item", 1)
			turn.Send("item", 2)
			turn.Send("item", 3)
			return nil
		})

	var mu sync.Mutex
	var seen []int
	recorder := domain.NewExecutor("recorder").
		Yields().
		OnMessage("item", func(_ context.Context, turn *domain.Turn, msg domain.Message) error {
			mu.Lock()
			seen = append(seen, msg.Payload.(int))
			done := len(seen) == 3
			mu.Unlock()
			if done {
				turn.Yield("done")
			}
			return nil
		})

	b := NewBuilder()
	b.SetStart(start)
	b.AddEdge(start, recorder)
	g, err := b.Build()
	require.NoError(t, err)

	events, err := NewRunner().Run(context.Background(), g, domain.NewMessage(domain.KindTask, nil))
	require.NoError(t, err)

	term := terminalOf(t, drain(t, events))
	require.Equal(t, domain.EventFinalResult, term.Type)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestRunFirstYieldWins(t *testing.T) {
	start := domain.NewExecutor("start").
		OnMessage(domain.KindTask, func(_ context.Context, turn *domain.Turn, _ domain.Message) error {
			turn.Send("work", nil)
			return nil
		})
	yielder := func(id string) *domain.Executor {
		return domain.NewExecutor(id).
			Yields().
			OnMessage("work", func(_ context.Context, turn *domain.Turn, _ domain.Message) error {
				turn.Yield(id)
				return nil
			})
	}
	racerA := yielder("racer_a")
	racerB := yielder("racer_b")

	b := NewBuilder()
	b.SetStart(start)
	b.AddFanOutEdges(start, racerA, racerB)
	g, err := b.Build()
	require.NoError(t, err)

	events, err := NewRunner().Run(context.Background(), g, domain.NewMessage(domain.KindTask, nil))
	require.NoError(t, err)

	term := terminalOf(t, drain(t, events))
	require.Equal(t, domain.EventFinalResult, term.Type)
	assert.Contains(t, []any{"racer_a", "racer_b"}, term.Value)
}

func TestRunHandlerFailure(t *testing.T) {
	boom := errors.New("downstream unavailable")
	start := domain.NewExecutor("start").
		OnMessage(domain.KindTask, func(context.Context, *domain.Turn, domain.Message) error {
			return boom
		})

	b := NewBuilder()
	b.SetStart(start)
	g, err := b.Build()
	require.NoError(t, err)

	events, err := NewRunner().Run(context.Background(), g, domain.NewMessage(domain.KindTask, nil))
	require.NoError(t, err)

	term := terminalOf(t, drain(t, events))
	require.Equal(t, domain.EventFailure, term.Type)
	assert.Equal(t, "start", term.ExecutorID)
	assert.Contains(t, term.Error, "downstream unavailable")
}

func TestRunFailureSkipsDownstream(t *testing.T) {
	start := domain.NewExecutor("start").
		OnMessage(domain.KindTask, func(_ context.Context, turn *domain.Turn, _ domain.Message) error {
			turn.Send("work", nil)
			return errors.New("failed after queueing output")
		})
	var invoked sync.Map
	next := domain.NewExecutor("next").
		Yields().
		OnMessage("work", func(_ context.Context, turn *domain.Turn, _ domain.Message) error {
			invoked.Store("next", true)
			turn.Yield("should not happen")
			return nil
		})

	b := NewBuilder()
	b.SetStart(start)
	b.AddEdge(start, next)
	g, err := b.Build()
	require.NoError(t, err)

	events, err := NewRunner().Run(context.Background(), g, domain.NewMessage(domain.KindTask, nil))
	require.NoError(t, err)

	term := terminalOf(t, drain(t, events))
	require.Equal(t, domain.EventFailure, term.Type)
	_, ran := invoked.Load("next")
	assert.False(t, ran, "outputs of a failed invocation must not be routed")
}

func TestRunNoTerminalResult(t *testing.T) {
	start := domain.NewExecutor("start").
		OnMessage(domain.KindTask, func(context.Context, *domain.Turn, domain.Message) error {
			return nil
		})

	b := NewBuilder()
	b.SetStart(start)
	g, err := b.Build()
	require.NoError(t, err)

	events, err := NewRunner().Run(context.Background(), g, domain.NewMessage(domain.KindTask, nil))
	require.NoError(t, err)

	term := terminalOf(t, drain(t, events))
	require.Equal(t, domain.EventFailure, term.Type)
	assert.Equal(t, domain.ErrNoTerminalResult.Error(), term.Error)
}

func TestRunUndeclaredYield(t *testing.T) {
	start := domain.NewExecutor("start").
		OnMessage(domain.KindTask, func(_ context.Context, turn *domain.Turn, _ domain.Message) error {
			turn.Yield("sneaky")
			return nil
		})

	b := NewBuilder()
	b.SetStart(start)
	g, err := b.Build()
	require.NoError(t, err)

	events, err := NewRunner().Run(context.Background(), g, domain.NewMessage(domain.KindTask, nil))
	require.NoError(t, err)

	term := terminalOf(t, drain(t, events))
	require.Equal(t, domain.EventFailure, term.Type)
	assert.Contains(t, term.Error, "Yields")
}

func TestRunUndeclaredMessageKind(t *testing.T) {
	start := domain.NewExecutor("start").
		Emits("declared").
		OnMessage(domain.KindTask, func(_ context.Context, turn *domain.Turn, _ domain.Message) error {
			turn.Send("undeclared", nil)
			return nil
		})
	sink := noopExecutor("sink", "declared")

	b := NewBuilder()
	b.SetStart(start)
	b.AddEdge(start, sink)
	g, err := b.Build()
	require.NoError(t, err)

	events, err := NewRunner().Run(context.Background(), g, domain.NewMessage(domain.KindTask, nil))
	require.NoError(t, err)

	term := terminalOf(t, drain(t, events))
	require.Equal(t, domain.EventFailure, term.Type)
	assert.Equal(t, "start", term.ExecutorID)
	assert.Contains(t, term.Error, "undeclared")
}

func TestRunCancellation(t *testing.T) {
	ready := make(chan struct{}, 2)
	start := domain.NewExecutor("start").
		OnMessage(domain.KindTask, func(_ context.Context, turn *domain.Turn, _ domain.Message) error {
			turn.Send("work", nil)
			return nil
		})
	blocker := func(id string) *domain.Executor {
		return domain.NewExecutor(id).
			OnMessage("work", func(ctx context.Context, turn *domain.Turn, _ domain.Message) error {
				ready <- struct{}{}
				<-ctx.Done()
				return ctx.Err()
			})
	}
	blockA := blocker("block_a")
	blockB := blocker("block_b")
	collector := domain.NewExecutor("collector").
		Yields().
		OnMessage(domain.KindAggregate, func(_ context.Context, turn *domain.Turn, _ domain.Message) error {
			turn.Yield("done")
			return nil
		})

	b := NewBuilder()
	b.SetStart(start)
	b.AddFanOutEdges(start, blockA, blockB)
	b.AddFanInEdges([]*domain.Executor{blockA, blockB}, collector)
	g, err := b.Build()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	events, err := NewRunner().Run(ctx, g, domain.NewMessage(domain.KindTask, nil))
	require.NoError(t, err)

	<-ready
	<-ready
	cancel()

	term := terminalOf(t, drain(t, events))
	require.Equal(t, domain.EventFailure, term.Type)
	assert.Contains(t, term.Error, "cancelled")
}

func TestRunHandlerTimeout(t *testing.T) {
	start := domain.NewExecutor("start").
		OnMessage(domain.KindTask, func(ctx context.Context, _ *domain.Turn, _ domain.Message) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
				return nil
			}
		})

	b := NewBuilder()
	b.SetStart(start)
	g, err := b.Build()
	require.NoError(t, err)

	r := NewRunner(WithHandlerTimeout(20 * time.Millisecond))
	events, err := r.Run(context.Background(), g, domain.NewMessage(domain.KindTask, nil))
	require.NoError(t, err)

	term := terminalOf(t, drain(t, events))
	require.Equal(t, domain.EventFailure, term.Type)
	assert.Equal(t, "start", term.ExecutorID)
	assert.Contains(t, term.Error, "deadline")
}

func TestRunConcurrencyCap(t *testing.T) {
	var active, peak int64
	var mu sync.Mutex

	start := domain.NewExecutor("start").
		OnMessage(domain.KindTask, func(_ context.Context, turn *domain.Turn, _ domain.Message) error {
			turn.Send("work", nil)
			return nil
		})
	worker := func(id string) *domain.Executor {
		return domain.NewExecutor(id).
			OnMessage("work", func(_ context.Context, turn *domain.Turn, _ domain.Message) error {
				mu.Lock()
				active++
				if active > peak {
					peak = active
				}
				mu.Unlock()
				time.Sleep(20 * time.Millisecond)
				mu.Lock()
				active--
				mu.Unlock()
				turn.Send("opinion", id)
				return nil
			})
	}
	workers := []*domain.Executor{worker("w1"), worker("w2"), worker("w3"), worker("w4")}
	collector := domain.NewExecutor("collector").
		Yields().
		OnMessage(domain.KindAggregate, func(_ context.Context, turn *domain.Turn, _ domain.Message) error {
			turn.Yield("done")
			return nil
		})

	b := NewBuilder()
	b.SetStart(start)
	b.AddFanOutEdges(start, workers...)
	b.AddFanInEdges(workers, collector)
	g, err := b.Build()
	require.NoError(t, err)

	r := NewRunner(WithMaxConcurrentHandlers(1))
	events, err := r.Run(context.Background(), g, domain.NewMessage(domain.KindTask, nil))
	require.NoError(t, err)

	term := terminalOf(t, drain(t, events))
	require.Equal(t, domain.EventFinalResult, term.Type)

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, int64(1))
}

func TestRunWithIDStampsEvents(t *testing.T) {
	start := domain.NewExecutor("start").
		Yields().
		OnMessage(domain.KindTask, func(_ context.Context, turn *domain.Turn, _ domain.Message) error {
			turn.Yield("ok")
			return nil
		})

	b := NewBuilder()
	b.SetStart(start)
	g, err := b.Build()
	require.NoError(t, err)

	events, err := NewRunner().RunWithID(context.Background(), "run-42", g, domain.NewMessage(domain.KindTask, nil))
	require.NoError(t, err)

	for _, ev := range drain(t, events) {
		assert.Equal(t, "run-42", ev.RunID)
	}
}

func TestBarrierFirstContributionWins(t *testing.T) {
	bar := newBarrier([]string{"a", "b"})

	_, fired := bar.offer("a", domain.NewMessage("opinion", 1))
	assert.False(t, fired)

	_, fired = bar.offer("a", domain.NewMessage("opinion", 2))
	assert.False(t, fired, "a duplicate contribution must be ignored")

	batch, fired := bar.offer("b", domain.NewMessage("opinion", 3))
	require.True(t, fired)
	require.Len(t, batch, 2)
	assert.Equal(t, 1, batch[0].Payload, "the first contribution per source wins")
	assert.Equal(t, 3, batch[1].Payload)

	_, fired = bar.offer("a", domain.NewMessage("opinion", 4))
	assert.False(t, fired, "a barrier fires at most once")
	assert.Nil(t, bar.missing())
}

func TestBarrierMissing(t *testing.T) {
	bar := newBarrier([]string{"a", "b", "c"})
	assert.Nil(t, bar.missing(), "an untouched barrier is not stalled")

	bar.offer("b", domain.NewMessage("opinion", nil))
	assert.Equal(t, []string{"a", "c"}, bar.missing())
}
