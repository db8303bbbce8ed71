// Package metrics provides Prometheus metrics for monitoring diascribe components.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline execution metrics
var (
	// pipelineRunsTotal records the total number of pipeline runs.
	// Labels:
	//   - status: Run outcome (e.g., "success", "failed", "no_valid_segments", "cached")
	pipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diascribe_pipeline_runs_total",
			Help: "Total number of pipeline runs",
		},
		[]string{"status"},
	)

	// stageDuration records the duration of pipeline stages.
	// Labels:
	//   - stage: Pipeline stage (e.g., "ingest", "diarize", "transcribe", "aggregate")
	// Buckets: 0.1s, 0.5s, 1s, 5s, 10s, 30s, 60s, 300s (5 minutes)
	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "diascribe_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"stage"},
	)

	// turnsProcessedTotal records per-turn outcomes inside the aggregation loop.
	// Labels:
	//   - outcome: Turn outcome (e.g., "retained", "dropped_short", "empty_text", "error")
	turnsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diascribe_turns_processed_total",
			Help: "Total number of diarization turns processed, by outcome",
		},
		[]string{"outcome"},
	)

	// adapterRequestsTotal records calls to the external model adapters.
	// Labels:
	//   - adapter: Adapter kind ("diarizer", "transcriber")
	//   - impl: Implementation name (e.g., "http", "cli", "script", "mock")
	//   - status: Call status ("success", "failed")
	adapterRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diascribe_adapter_requests_total",
			Help: "Total number of external model adapter calls",
		},
		[]string{"adapter", "impl", "status"},
	)

	// degradationEventsTotal records transcriber degradation transitions.
	// Labels:
	//   - from_impl: Source implementation (e.g., "whisper-http")
	//   - to_impl: Target implementation (e.g., "mock-degraded")
	degradationEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diascribe_degradation_events_total",
			Help: "Total number of transcriber degradation events (e.g., http -> mock)",
		},
		[]string{"from_impl", "to_impl"},
	)

	// activeSessions tracks the number of live sessions in the registry.
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "diascribe_active_sessions",
			Help: "Number of live sessions in the registry",
		},
	)
)

func init() {
	// Register all pipeline-related metrics with Prometheus
	prometheus.MustRegister(pipelineRunsTotal)
	prometheus.MustRegister(stageDuration)
	prometheus.MustRegister(turnsProcessedTotal)
	prometheus.MustRegister(adapterRequestsTotal)
	prometheus.MustRegister(degradationEventsTotal)
	prometheus.MustRegister(activeSessions)
}

// RecordPipelineRun records a completed pipeline run.
// Parameters:
//   - status: Run outcome (e.g., "success", "failed", "no_valid_segments", "cached")
func RecordPipelineRun(status string) {
	pipelineRunsTotal.WithLabelValues(status).Inc()
}

// RecordStageDuration records the duration of a pipeline stage.
// Parameters:
//   - stage: Pipeline stage (e.g., "ingest", "diarize", "transcribe", "aggregate")
//   - durationSeconds: Stage duration in seconds
func RecordStageDuration(stage string, durationSeconds float64) {
	stageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordTurn records the outcome of one diarization turn.
// Parameters:
//   - outcome: Turn outcome (e.g., "retained", "dropped_short", "empty_text", "error")
func RecordTurn(outcome string) {
	turnsProcessedTotal.WithLabelValues(outcome).Inc()
}

// RecordAdapterRequest records a call to an external model adapter.
// Parameters:
//   - adapter: Adapter kind ("diarizer", "transcriber")
//   - impl: Implementation name (e.g., "http", "cli", "script", "mock")
//   - status: Call status ("success", "failed")
func RecordAdapterRequest(adapter, impl, status string) {
	adapterRequestsTotal.WithLabelValues(adapter, impl, status).Inc()
}

// RecordDegradationEvent records a transcriber degradation transition.
// Parameters:
//   - fromImpl: Source implementation name
//   - toImpl: Target implementation name
func RecordDegradationEvent(fromImpl, toImpl string) {
	degradationEventsTotal.WithLabelValues(fromImpl, toImpl).Inc()
}

// IncActiveSessions increments the live session gauge.
func IncActiveSessions() {
	activeSessions.Inc()
}

// DecActiveSessions decrements the live session gauge.
func DecActiveSessions() {
	activeSessions.Dec()
}
