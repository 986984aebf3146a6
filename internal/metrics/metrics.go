// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Chat turn metrics
	IncTurnCompleted()
	IncTurnRejected(reason string) // reason: "quota_exhausted"
	ObserveTurnDuration(duration time.Duration)

	// Collaborator metrics
	IncSearchFailure()
	IncGenerationFailure()

	// Account metrics
	IncUserRegistered()

	// Usage pipeline metrics
	IncUsageEventPublished(status string) // status: "success" or "dropped"
	IncUsageEventProcessed(status string) // status: "success" or "failed"
	ObserveUsageBatchSize(size int)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
