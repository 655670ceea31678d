package metrics

import "github.com/prometheus/client_golang/prometheus"

// RelayMetrics exposes counters/histograms for the outbound dispatch and
// inbound routing flows. All methods are safe on a nil receiver.
type RelayMetrics struct {
	inboundTotal     *prometheus.CounterVec
	outboundTotal    *prometheus.CounterVec
	sendLatency      *prometheus.HistogramVec
	webhookLatency   prometheus.Histogram
	directivesTotal  *prometheus.CounterVec
	retriesScheduled prometheus.Counter
}

func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "webhook",
			Name:      "inbound_total",
			Help:      "Inbound chat webhooks by outcome",
		}, []string{"outcome"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "dispatch",
			Name:      "outbound_total",
			Help:      "Outbound dispatch results by status and reason",
		}, []string{"status", "reason"}),
		sendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "relay",
			Subsystem: "dispatch",
			Name:      "chat_api_latency_seconds",
			Help:      "Latency of chat API calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
		webhookLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "relay",
			Subsystem: "webhook",
			Name:      "latency_seconds",
			Help:      "Latency of inbound webhook handling",
			Buckets:   prometheus.DefBuckets,
		}),
		directivesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "conversation",
			Name:      "directives_total",
			Help:      "Router decisions by pipeline stage and action",
		}, []string{"stage", "action"}),
		retriesScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "dispatch",
			Name:      "retries_scheduled_total",
			Help:      "Outbound sends rescheduled after a transient failure",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.outboundTotal, m.sendLatency, m.webhookLatency, m.directivesTotal, m.retriesScheduled)
	return m
}

func (m *RelayMetrics) ObserveInbound(outcome string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(outcome).Inc()
}

func (m *RelayMetrics) ObserveOutbound(status, reason string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(status, reason).Inc()
}

func (m *RelayMetrics) ObserveSendLatency(result string, seconds float64) {
	if m == nil {
		return
	}
	m.sendLatency.WithLabelValues(result).Observe(seconds)
}

func (m *RelayMetrics) ObserveWebhookLatency(seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.Observe(seconds)
}

func (m *RelayMetrics) ObserveDirective(stage, action string) {
	if m == nil {
		return
	}
	m.directivesTotal.WithLabelValues(stage, action).Inc()
}

func (m *RelayMetrics) ObserveRetryScheduled() {
	if m == nil {
		return
	}
	m.retriesScheduled.Inc()
}
