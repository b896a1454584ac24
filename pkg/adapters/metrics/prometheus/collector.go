// Package prometheus implements the metrics collector on the Prometheus
// client library. Collectors register on a caller-supplied registry so tests
// can run isolated registries side by side.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "orchestrator"

// Collector implements ports.MetricsCollector.
type Collector struct {
	runsSubmitted     *prometheus.CounterVec
	runsCompleted     *prometheus.CounterVec
	runDuration       *prometheus.HistogramVec
	executorInvoked   *prometheus.CounterVec
	executorDuration  *prometheus.HistogramVec
	barrierFills      *prometheus.CounterVec
	managerRounds     prometheus.Counter
	managerStalls     prometheus.Counter
	managerResets     prometheus.Counter
	agentCalls        *prometheus.CounterVec
	agentCallDuration *prometheus.HistogramVec
	agentTokens       *prometheus.CounterVec
	activeRuns        prometheus.Gauge
}

// NewCollector registers the orchestrator metric set on the given registry.
// A nil registry uses the default one.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Collector{
		runsSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_submitted_total",
				Help:      "Total number of workflow runs submitted",
			},
			[]string{"workflow"},
		),
		runsCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of workflow runs reaching a terminal state",
			},
			[]string{"workflow", "status"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Workflow run duration from submission to terminal event",
				Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"workflow"},
		),
		executorInvoked: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executor_invocations_total",
				Help:      "Total number of executor handler invocations",
			},
			[]string{"executor", "status"},
		),
		executorDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "executor_duration_seconds",
				Help:      "Executor handler invocation duration",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"executor"},
		),
		barrierFills: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "barrier_fills_total",
				Help:      "Total number of completed fan-in barrier fills",
			},
			[]string{"target"},
		),
		managerRounds: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "manager_rounds_total",
				Help:      "Total number of deliberation rounds dispatched",
			},
		),
		managerStalls: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "manager_stalls_total",
				Help:      "Total number of deliberation rounds judged stalled",
			},
		),
		managerResets: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "manager_resets_total",
				Help:      "Total number of transcript resets forced by stalls",
			},
		),
		agentCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "agent_calls_total",
				Help:      "Total number of model backend calls",
			},
			[]string{"model", "status"},
		),
		agentCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "agent_call_duration_seconds",
				Help:      "Model backend call latency",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 60},
			},
			[]string{"model"},
		),
		agentTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "agent_tokens_total",
				Help:      "Total model tokens consumed",
			},
			[]string{"model", "type"},
		),
		activeRuns: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_runs",
				Help:      "Number of currently active workflow runs",
			},
		),
	}
}

func (c *Collector) RecordRunSubmitted(workflow string) {
	c.runsSubmitted.WithLabelValues(workflow).Inc()
}

func (c *Collector) RecordRunCompleted(workflow, status string, duration time.Duration) {
	c.runsCompleted.WithLabelValues(workflow, status).Inc()
	c.runDuration.WithLabelValues(workflow).Observe(duration.Seconds())
}

func (c *Collector) RecordExecutorInvoked(executorID, status string, duration time.Duration) {
	c.executorInvoked.WithLabelValues(executorID, status).Inc()
	c.executorDuration.WithLabelValues(executorID).Observe(duration.Seconds())
}

func (c *Collector) RecordBarrierFill(target string) {
	c.barrierFills.WithLabelValues(target).Inc()
}

func (c *Collector) RecordManagerRound() {
	c.managerRounds.Inc()
}

func (c *Collector) RecordManagerStall() {
	c.managerStalls.Inc()
}

func (c *Collector) RecordManagerReset() {
	c.managerResets.Inc()
}

func (c *Collector) RecordAgentCall(model, status string, duration time.Duration) {
	c.agentCalls.WithLabelValues(model, status).Inc()
	c.agentCallDuration.WithLabelValues(model).Observe(duration.Seconds())
}

func (c *Collector) RecordAgentTokens(model, tokenType string, count int) {
	c.agentTokens.WithLabelValues(model, tokenType).Add(float64(count))
}

func (c *Collector) SetActiveRuns(count int) {
	c.activeRuns.Set(float64(count))
}
