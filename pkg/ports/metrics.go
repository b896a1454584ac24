package ports

import "time"

// MetricsCollector records orchestration metrics. The prometheus adapter is
// the production implementation; NopMetrics serves tests and library use.
type MetricsCollector interface {
	RecordRunSubmitted(workflow string)
	RecordRunCompleted(workflow, status string, duration time.Duration)
	RecordExecutorInvoked(executorID, status string, duration time.Duration)
	RecordBarrierFill(target string)
	RecordManagerRound()
	RecordManagerStall()
	RecordManagerReset()
	RecordAgentCall(model, status string, duration time.Duration)
	RecordAgentTokens(model, tokenType string, count int)
	SetActiveRuns(count int)
}

// NopMetrics discards all measurements.
type NopMetrics struct{}

func (NopMetrics) RecordRunSubmitted(string)                          {}
func (NopMetrics) RecordRunCompleted(string, string, time.Duration)   {}
func (NopMetrics) RecordExecutorInvoked(string, string, time.Duration) {}
func (NopMetrics) RecordBarrierFill(string)                           {}
func (NopMetrics) RecordManagerRound()                                {}
func (NopMetrics) RecordManagerStall()                                {}
func (NopMetrics) RecordManagerReset()                                {}
func (NopMetrics) RecordAgentCall(string, string, time.Duration)      {}
func (NopMetrics) RecordAgentTokens(string, string, int)              {}
func (NopMetrics) SetActiveRuns(int)                                  {}
