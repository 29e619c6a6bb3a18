package metrics

import "github.com/prometheus/client_golang/prometheus"

// ToolMetrics exposes counters/histograms for appointment tool calls.
type ToolMetrics struct {
	toolCallsTotal *prometheus.CounterVec
	toolLatency    *prometheus.HistogramVec
	syncSubmits    *prometheus.CounterVec
	rollbacksTotal *prometheus.CounterVec
}

func NewToolMetrics(reg prometheus.Registerer) *ToolMetrics {
	m := &ToolMetrics{
		toolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vetdesk",
			Subsystem: "tools",
			Name:      "calls_total",
			Help:      "Total appointment tool invocations",
		}, []string{"tool", "status"}),
		toolLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vetdesk",
			Subsystem: "tools",
			Name:      "latency_seconds",
			Help:      "Latency of appointment tool handling",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		syncSubmits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vetdesk",
			Subsystem: "pmssync",
			Name:      "submissions_total",
			Help:      "Total PMS sync job submissions",
		}, []string{"kind", "status"}),
		rollbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vetdesk",
			Subsystem: "reschedule",
			Name:      "rollbacks_total",
			Help:      "Total reschedule compensations",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.toolCallsTotal, m.toolLatency, m.syncSubmits, m.rollbacksTotal)
	return m
}

func (m *ToolMetrics) ObserveToolCall(tool, status string) {
	if m == nil {
		return
	}
	m.toolCallsTotal.WithLabelValues(tool, status).Inc()
}

func (m *ToolMetrics) ObserveToolLatency(tool string, seconds float64) {
	if m == nil {
		return
	}
	m.toolLatency.WithLabelValues(tool).Observe(seconds)
}

func (m *ToolMetrics) ObserveSyncSubmit(kind, status string) {
	if m == nil {
		return
	}
	m.syncSubmits.WithLabelValues(kind, status).Inc()
}

func (m *ToolMetrics) ObserveRollback(status string) {
	if m == nil {
		return
	}
	m.rollbacksTotal.WithLabelValues(status).Inc()
}
