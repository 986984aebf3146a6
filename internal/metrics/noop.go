package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncTurnCompleted is a no-op.
func (n *NoopRecorder) IncTurnCompleted() {}

// IncTurnRejected is a no-op.
func (n *NoopRecorder) IncTurnRejected(reason string) {}

// ObserveTurnDuration is a no-op.
func (n *NoopRecorder) ObserveTurnDuration(duration time.Duration) {}

// IncSearchFailure is a no-op.
func (n *NoopRecorder) IncSearchFailure() {}

// IncGenerationFailure is a no-op.
func (n *NoopRecorder) IncGenerationFailure() {}

// IncUserRegistered is a no-op.
func (n *NoopRecorder) IncUserRegistered() {}

// IncUsageEventPublished is a no-op.
func (n *NoopRecorder) IncUsageEventPublished(status string) {}

// IncUsageEventProcessed is a no-op.
func (n *NoopRecorder) IncUsageEventProcessed(status string) {}

// ObserveUsageBatchSize is a no-op.
func (n *NoopRecorder) ObserveUsageBatchSize(size int) {}
