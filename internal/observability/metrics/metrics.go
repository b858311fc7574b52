package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SessionMetrics exposes counters, gauges and histograms for consultation
// sessions. It satisfies the recorder interfaces of the extraction and tools
// packages.
type SessionMetrics struct {
	sessionsActive     prometheus.Gauge
	sessionsTotal      *prometheus.CounterVec
	toolCalls          *prometheus.CounterVec
	extractionHits     *prometheus.CounterVec
	extractionFailures *prometheus.CounterVec
	notifications      *prometheus.CounterVec
	lookupLatency      *prometheus.HistogramVec
}

func NewSessionMetrics(reg prometheus.Registerer) *SessionMetrics {
	m := &SessionMetrics{
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "physio",
			Subsystem: "session",
			Name:      "active",
			Help:      "Consultation sessions currently registered",
		}),
		sessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "physio",
			Subsystem: "session",
			Name:      "started_total",
			Help:      "Consultation sessions started",
		}, []string{"medium"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "physio",
			Subsystem: "tools",
			Name:      "calls_total",
			Help:      "Client tool invocations by outcome",
		}, []string{"tool", "outcome"}),
		extractionHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "physio",
			Subsystem: "extraction",
			Name:      "hits_total",
			Help:      "Extraction strategies that produced fields",
		}, []string{"source", "strategy"}),
		extractionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "physio",
			Subsystem: "extraction",
			Name:      "failures_total",
			Help:      "Payloads the extraction pipeline could not use",
		}, []string{"source", "reason"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "physio",
			Subsystem: "notify",
			Name:      "published_total",
			Help:      "UI notifications published",
		}, []string{"kind", "status"}),
		lookupLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "physio",
			Subsystem: "upstream",
			Name:      "request_seconds",
			Help:      "Latency of calls to the appointments and voice APIs",
			Buckets:   prometheus.DefBuckets,
		}, []string{"upstream", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.sessionsActive, m.sessionsTotal, m.toolCalls, m.extractionHits,
		m.extractionFailures, m.notifications, m.lookupLatency)
	return m
}

func (m *SessionMetrics) SessionStarted(medium string) {
	if m == nil {
		return
	}
	m.sessionsActive.Inc()
	m.sessionsTotal.WithLabelValues(medium).Inc()
}

func (m *SessionMetrics) SessionEnded() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}

func (m *SessionMetrics) ObserveToolCall(tool, outcome string) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
}

func (m *SessionMetrics) ObserveExtraction(source, strategy string) {
	if m == nil {
		return
	}
	m.extractionHits.WithLabelValues(source, strategy).Inc()
}

func (m *SessionMetrics) ObserveExtractionFailure(source, reason string) {
	if m == nil {
		return
	}
	m.extractionFailures.WithLabelValues(source, reason).Inc()
}

func (m *SessionMetrics) ObserveNotification(kind string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.notifications.WithLabelValues(kind, status).Inc()
}

// ObserveUpstream records one call to an external API.
func (m *SessionMetrics) ObserveUpstream(upstream string, started time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.lookupLatency.WithLabelValues(upstream, status).Observe(time.Since(started).Seconds())
}
