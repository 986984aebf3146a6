package metrics

import (
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	TurnsCompleted        uint64 `json:"turns_completed"`
	TurnsRejectedQuota    uint64 `json:"turns_rejected_quota"`
	TurnDurationCount     uint64 `json:"turn_duration_count"`
	TurnDurationTotalNs   int64  `json:"turn_duration_total_ns"`
	SearchFailures        uint64 `json:"search_failures"`
	GenerationFailures    uint64 `json:"generation_failures"`
	UsersRegistered       uint64 `json:"users_registered"`
	UsageEventsPublished  uint64 `json:"usage_events_published"`
	UsageEventsDropped    uint64 `json:"usage_events_dropped"`
	UsageEventsProcessed  uint64 `json:"usage_events_processed"`
	UsageEventsFailed     uint64 `json:"usage_events_failed"`
}

// InMemoryRecorder stores metrics in memory.
// Backs the /metrics endpoint and test assertions.
type InMemoryRecorder struct {
	turnsCompleted       uint64
	turnsRejectedQuota   uint64
	turnDurationCount    uint64
	turnDurationTotalNs  int64
	searchFailures       uint64
	generationFailures   uint64
	usersRegistered      uint64
	usageEventsPublished uint64
	usageEventsDropped   uint64
	usageEventsProcessed uint64
	usageEventsFailed    uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	return Snapshot{
		TurnsCompleted:       atomic.LoadUint64(&m.turnsCompleted),
		TurnsRejectedQuota:   atomic.LoadUint64(&m.turnsRejectedQuota),
		TurnDurationCount:    atomic.LoadUint64(&m.turnDurationCount),
		TurnDurationTotalNs:  atomic.LoadInt64(&m.turnDurationTotalNs),
		SearchFailures:       atomic.LoadUint64(&m.searchFailures),
		GenerationFailures:   atomic.LoadUint64(&m.generationFailures),
		UsersRegistered:      atomic.LoadUint64(&m.usersRegistered),
		UsageEventsPublished: atomic.LoadUint64(&m.usageEventsPublished),
		UsageEventsDropped:   atomic.LoadUint64(&m.usageEventsDropped),
		UsageEventsProcessed: atomic.LoadUint64(&m.usageEventsProcessed),
		UsageEventsFailed:    atomic.LoadUint64(&m.usageEventsFailed),
	}
}

// IncTurnCompleted increments the completed-turn counter.
func (m *InMemoryRecorder) IncTurnCompleted() {
	atomic.AddUint64(&m.turnsCompleted, 1)
}

// IncTurnRejected increments the rejected-turn counter for the reason.
func (m *InMemoryRecorder) IncTurnRejected(reason string) {
	if reason == "quota_exhausted" {
		atomic.AddUint64(&m.turnsRejectedQuota, 1)
	}
}

// ObserveTurnDuration records chat turn duration.
func (m *InMemoryRecorder) ObserveTurnDuration(duration time.Duration) {
	atomic.AddUint64(&m.turnDurationCount, 1)
	atomic.AddInt64(&m.turnDurationTotalNs, duration.Nanoseconds())
}

// IncSearchFailure increments the search failure counter.
func (m *InMemoryRecorder) IncSearchFailure() {
	atomic.AddUint64(&m.searchFailures, 1)
}

// IncGenerationFailure increments the generation failure counter.
func (m *InMemoryRecorder) IncGenerationFailure() {
	atomic.AddUint64(&m.generationFailures, 1)
}

// IncUserRegistered increments the registration counter.
func (m *InMemoryRecorder) IncUserRegistered() {
	atomic.AddUint64(&m.usersRegistered, 1)
}

// IncUsageEventPublished increments the publish counter for the status.
func (m *InMemoryRecorder) IncUsageEventPublished(status string) {
	if status == "success" {
		atomic.AddUint64(&m.usageEventsPublished, 1)
	} else {
		atomic.AddUint64(&m.usageEventsDropped, 1)
	}
}

// IncUsageEventProcessed increments the processed counter for the status.
func (m *InMemoryRecorder) IncUsageEventProcessed(status string) {
	if status == "success" {
		atomic.AddUint64(&m.usageEventsProcessed, 1)
	} else {
		atomic.AddUint64(&m.usageEventsFailed, 1)
	}
}

// ObserveUsageBatchSize is recorded only through processed counts here.
func (m *InMemoryRecorder) ObserveUsageBatchSize(size int) {}
