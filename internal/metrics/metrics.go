package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Research session metrics
	SessionsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diogenes_sessions_started_total",
			Help: "Total number of research sessions started",
		},
		[]string{"mode"},
	)

	SessionsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diogenes_sessions_completed_total",
			Help: "Total number of research sessions completed",
		},
		[]string{"mode", "status"},
	)

	SessionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "diogenes_session_duration_seconds",
			Help:    "Research session duration in seconds",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"mode"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "diogenes_active_sessions",
			Help: "Number of research sessions currently running",
		},
	)

	// Task metrics
	TasksDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diogenes_tasks_dispatched_total",
			Help: "Total number of tasks dispatched to agents",
		},
		[]string{"task_type", "agent_type"},
	)

	TasksCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diogenes_tasks_completed_total",
			Help: "Total number of tasks completed",
		},
		[]string{"task_type", "status"},
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "diogenes_task_duration_ms",
			Help:    "Task execution duration in milliseconds",
			Buckets: []float64{100, 500, 1000, 2000, 5000, 10000, 30000, 60000},
		},
		[]string{"task_type"},
	)

	// Agent metrics
	AgentExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diogenes_agent_executions_total",
			Help: "Total number of agent executions",
		},
		[]string{"agent_type", "status"},
	)

	AgentBusy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "diogenes_agents_busy",
			Help: "Number of busy agents per type",
		},
		[]string{"agent_type"},
	)

	// Phase metrics
	PhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "diogenes_phase_duration_seconds",
			Help:    "Research phase duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"phase"},
	)

	ReviewIterations = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "diogenes_review_iterations",
			Help:    "Review loop iterations per session",
			Buckets: []float64{0, 1, 2, 3, 5, 8},
		},
	)

	// Retrieval metrics
	SearchQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diogenes_search_queries_total",
			Help: "Total number of search queries issued",
		},
		[]string{"engine", "status"},
	)

	PagesCrawled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diogenes_pages_crawled_total",
			Help: "Total number of pages crawled",
		},
		[]string{"status"},
	)

	CrawlDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "diogenes_crawl_duration_seconds",
			Help:    "Page crawl duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	SourcesRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "diogenes_sources_registered_total",
			Help: "Total number of citation sources registered",
		},
	)

	ChunksProduced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "diogenes_chunks_produced_total",
			Help: "Total number of content chunks produced",
		},
	)

	// Model metrics
	ModelCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diogenes_model_calls_total",
			Help: "Total number of model calls",
		},
		[]string{"model", "status"},
	)

	ModelCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "diogenes_model_call_duration_seconds",
			Help:    "Model call duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"model"},
	)

	ModelTokensUsed = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "diogenes_model_tokens_used",
			Help:    "Tokens used per model call",
			Buckets: []float64{100, 500, 1000, 2000, 4000, 8000, 16000},
		},
	)

	// Streaming metrics
	StreamSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "diogenes_stream_subscribers",
			Help: "Number of active event stream subscribers",
		},
	)

	StreamEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "diogenes_stream_events_dropped_total",
			Help: "Events dropped due to slow subscribers",
		},
	)
)

// RecordSessionMetrics records completion metrics for one session.
func RecordSessionMetrics(mode, status string, durationSeconds float64, iterations int) {
	SessionsCompleted.WithLabelValues(mode, status).Inc()
	SessionDuration.WithLabelValues(mode).Observe(durationSeconds)
	ReviewIterations.Observe(float64(iterations))
}

// RecordTaskMetrics records metrics for one completed task.
func RecordTaskMetrics(taskType, status string, durationMs float64) {
	TasksCompleted.WithLabelValues(taskType, status).Inc()
	TaskDuration.WithLabelValues(taskType).Observe(durationMs)
}

// RecordModelCall records one model invocation.
func RecordModelCall(model, status string, durationSeconds float64, tokens int) {
	ModelCalls.WithLabelValues(model, status).Inc()
	ModelCallDuration.WithLabelValues(model).Observe(durationSeconds)
	if tokens > 0 {
		ModelTokensUsed.Observe(float64(tokens))
	}
}
