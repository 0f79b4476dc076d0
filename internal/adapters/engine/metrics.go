package engine

import (
	"sync"
	"time"

	"github.com/officeflow/officeflow/internal/domain"
	"github.com/officeflow/officeflow/internal/ports"
	"github.com/prometheus/client_golang/prometheus"
)

// metricsTracker keeps in-process aggregates for the snapshot surface
// and mirrors them onto prometheus collectors when registered.
type metricsTracker struct {
	mu              sync.Mutex
	activeRuns      int
	completedRuns   int
	failedRuns      int
	cancelledRuns   int
	totalDuration   time.Duration
	finishedRuns    int
	nodePerformance map[domain.NodeType]*nodeStats

	runsStarted   prometheus.Counter
	runsFinished  *prometheus.CounterVec
	stepsExecuted *prometheus.CounterVec
	stepRetries   *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	activeGauge   prometheus.Gauge
}

type nodeStats struct {
	Executions    int
	Failures      int
	TotalDuration time.Duration
}

func newMetricsTracker() *metricsTracker {
	return &metricsTracker{
		nodePerformance: make(map[domain.NodeType]*nodeStats),
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "officeflow_runs_started_total",
			Help: "Workflow runs started.",
		}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "officeflow_runs_finished_total",
			Help: "Workflow runs finished, by terminal status.",
		}, []string{"status"}),
		stepsExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "officeflow_steps_executed_total",
			Help: "Step attempts executed, by node type and result.",
		}, []string{"node_type", "result"}),
		stepRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "officeflow_step_retries_total",
			Help: "Step retries scheduled, by node type.",
		}, []string{"node_type"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "officeflow_step_duration_seconds",
			Help:    "Step attempt duration, by node type.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"node_type"}),
		activeGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "officeflow_runs_active",
			Help: "Runs currently in a non-terminal status.",
		}),
	}
}

// RegisterMetrics attaches the engine's collectors to a prometheus
// registry. Safe to skip when no scrape endpoint exists.
func (e *Engine) RegisterMetrics(reg prometheus.Registerer) error {
	m := e.metrics
	for _, c := range []prometheus.Collector{
		m.runsStarted, m.runsFinished, m.stepsExecuted, m.stepRetries, m.stepDuration, m.activeGauge,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *metricsTracker) observeRunStarted() {
	m.mu.Lock()
	m.activeRuns++
	m.mu.Unlock()

	m.runsStarted.Inc()
	m.activeGauge.Inc()
}

func (m *metricsTracker) observeRunFinished(status domain.RunStatus, duration time.Duration) {
	m.mu.Lock()
	if m.activeRuns > 0 {
		m.activeRuns--
	}
	switch status {
	case domain.RunStatusCompleted:
		m.completedRuns++
	case domain.RunStatusFailed:
		m.failedRuns++
	case domain.RunStatusCancelled:
		m.cancelledRuns++
	}
	m.finishedRuns++
	m.totalDuration += duration
	m.mu.Unlock()

	m.runsFinished.WithLabelValues(string(status)).Inc()
	m.activeGauge.Dec()
}

func (m *metricsTracker) observeStep(nodeType domain.NodeType, result ports.ResultStatus, duration time.Duration) {
	m.mu.Lock()
	stats, ok := m.nodePerformance[nodeType]
	if !ok {
		stats = &nodeStats{}
		m.nodePerformance[nodeType] = stats
	}
	stats.Executions++
	stats.TotalDuration += duration
	if result != ports.StatusSuccess {
		stats.Failures++
	}
	m.mu.Unlock()

	m.stepsExecuted.WithLabelValues(string(nodeType), string(result)).Inc()
	m.stepDuration.WithLabelValues(string(nodeType)).Observe(duration.Seconds())
}

func (m *metricsTracker) observeRetry(nodeType domain.NodeType) {
	m.stepRetries.WithLabelValues(string(nodeType)).Inc()
}

// MetricsSnapshot is the read-model view of engine health.
type MetricsSnapshot struct {
	ActiveRuns         int                                `json:"active_runs"`
	CompletedRuns      int                                `json:"completed_runs"`
	FailedRuns         int                                `json:"failed_runs"`
	CancelledRuns      int                                `json:"cancelled_runs"`
	SuccessRate        float64                            `json:"success_rate"`
	AverageRunDuration time.Duration                      `json:"average_run_duration"`
	NodePerformance    map[domain.NodeType]NodePerfReport `json:"node_performance"`
}

type NodePerfReport struct {
	Executions      int           `json:"executions"`
	Failures        int           `json:"failures"`
	AverageDuration time.Duration `json:"average_duration"`
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	m := e.metrics
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := MetricsSnapshot{
		ActiveRuns:      m.activeRuns,
		CompletedRuns:   m.completedRuns,
		FailedRuns:      m.failedRuns,
		CancelledRuns:   m.cancelledRuns,
		NodePerformance: make(map[domain.NodeType]NodePerfReport, len(m.nodePerformance)),
	}
	if m.finishedRuns > 0 {
		snapshot.SuccessRate = float64(m.completedRuns) / float64(m.finishedRuns)
		snapshot.AverageRunDuration = m.totalDuration / time.Duration(m.finishedRuns)
	}
	for nodeType, stats := range m.nodePerformance {
		report := NodePerfReport{
			Executions: stats.Executions,
			Failures:   stats.Failures,
		}
		if stats.Executions > 0 {
			report.AverageDuration = stats.TotalDuration / time.Duration(stats.Executions)
		}
		snapshot.NodePerformance[nodeType] = report
	}
	return snapshot
}
