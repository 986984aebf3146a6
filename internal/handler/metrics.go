package handler

import (
	"fmt"
	"net/http"

	"github.com/geniechat/genie/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeMetric(w, "genie_chat_turns_completed_total %d\n", snap.TurnsCompleted)
	writeMetric(w, "genie_chat_turns_rejected_total{reason=\"quota_exhausted\"} %d\n", snap.TurnsRejectedQuota)
	writeMetric(w, "genie_chat_turn_duration_seconds_count %d\n", snap.TurnDurationCount)
	writeMetric(w, "genie_chat_turn_duration_seconds_sum %.6f\n", float64(snap.TurnDurationTotalNs)/1e9)

	writeMetric(w, "genie_search_failures_total %d\n", snap.SearchFailures)
	writeMetric(w, "genie_generation_failures_total %d\n", snap.GenerationFailures)

	writeMetric(w, "genie_users_registered_total %d\n", snap.UsersRegistered)

	writeMetric(w, "genie_usage_events_published_total{status=\"success\"} %d\n", snap.UsageEventsPublished)
	writeMetric(w, "genie_usage_events_published_total{status=\"dropped\"} %d\n", snap.UsageEventsDropped)
	writeMetric(w, "genie_usage_events_processed_total{status=\"success\"} %d\n", snap.UsageEventsProcessed)
	writeMetric(w, "genie_usage_events_processed_total{status=\"failed\"} %d\n", snap.UsageEventsFailed)
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
