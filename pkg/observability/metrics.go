package observability

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors fed by lifecycle hooks.
type Metrics struct {
	NodeVisits   *prometheus.CounterVec
	NodeDuration *prometheus.HistogramVec
	NodeFailures *prometheus.CounterVec
	ToolCalls    *prometheus.CounterVec
	ToolDuration *prometheus.HistogramVec
	Runs         *prometheus.CounterVec
	RunDuration  *prometheus.HistogramVec

	inflight sync.Map // tool call id -> start time
	now      func() time.Time
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		NodeVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbor_node_visits_total",
			Help: "Total number of node invocations.",
		}, []string{"node_id", "kind"}),
		NodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "arbor_node_duration_seconds",
			Help:    "Duration of node invocations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"node_id"}),
		NodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbor_node_failures_total",
			Help: "Node invocations that returned an error.",
		}, []string{"node_id"}),
		ToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbor_tool_calls_total",
			Help: "Tool calls executed by tool nodes.",
		}, []string{"tool_name", "outcome"}),
		ToolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "arbor_tool_duration_seconds",
			Help:    "Duration of tool executions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool_name"}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbor_runs_total",
			Help: "Runs stopped, by final status.",
		}, []string{"graph_id", "status"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "arbor_run_duration_seconds",
			Help:    "Wall-clock duration of run segments (start or resume until stop).",
			Buckets: prometheus.DefBuckets,
		}, []string{"graph_id"}),
		now: time.Now,
	}
	if reg != nil {
		reg.MustRegister(m.collectors()...)
	}
	return m
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.NodeVisits, m.NodeDuration, m.NodeFailures,
		m.ToolCalls, m.ToolDuration,
		m.Runs, m.RunDuration,
	}
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) {
			m.NodeVisits.WithLabelValues(e.NodeID, e.NodeKind).Inc()
		},
		OnNodeLeave: func(_ context.Context, e *domain.NodeEvent) {
			m.NodeDuration.WithLabelValues(e.NodeID).Observe(e.Duration.Seconds())
			if e.Err != nil {
				m.NodeFailures.WithLabelValues(e.NodeID).Inc()
			}
		},
		OnToolCall: func(_ context.Context, e *domain.ToolEvent) {
			m.inflight.Store(e.CallID, m.now())
		},
		OnToolReturn: func(_ context.Context, e *domain.ToolEvent) {
			outcome := "ok"
			if e.IsError {
				outcome = "error"
			}
			m.ToolCalls.WithLabelValues(e.ToolName, outcome).Inc()
			if started, ok := m.inflight.LoadAndDelete(e.CallID); ok {
				m.ToolDuration.WithLabelValues(e.ToolName).Observe(m.now().Sub(started.(time.Time)).Seconds())
			}
		},
		OnRunEnd: func(_ context.Context, e *domain.RunEvent) {
			m.Runs.WithLabelValues(e.GraphID, string(e.Status)).Inc()
			m.RunDuration.WithLabelValues(e.GraphID).Observe(e.Duration.Seconds())
		},
	}
}
