package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements the Collector interface using Prometheus metrics.
type PrometheusCollector struct {
	// Connection metrics
	connectionsTotal  prometheus.Counter
	connectionsActive prometheus.Gauge

	// Authentication metrics
	authAttemptsTotal *prometheus.CounterVec

	// Frame metrics
	framesReceivedTotal *prometheus.CounterVec

	// Broadcast metrics
	chatBroadcastsTotal prometheus.Counter
	broadcastRecipients prometheus.Histogram

	// Moderation metrics
	policyDenialsTotal *prometheus.CounterVec
	adminCommandsTotal *prometheus.CounterVec

	// Persistence and lifecycle metrics
	messagesFlushedTotal prometheus.Counter
	sessionPanicsTotal   prometheus.Counter
}

// NewPrometheusCollector creates a new PrometheusCollector with all metrics registered.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	c := &PrometheusCollector{
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatd_connections_total",
			Help: "Total number of client connections opened.",
		}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatd_connections_active",
			Help: "Number of currently active client connections.",
		}),

		authAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatd_auth_attempts_total",
			Help: "Total number of authentication attempts by result flag.",
		}, []string{"result"}),

		framesReceivedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatd_frames_received_total",
			Help: "Total number of inbound frames by flag.",
		}, []string{"flag"}),

		chatBroadcastsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatd_chat_broadcasts_total",
			Help: "Total number of chat messages fanned out.",
		}),
		broadcastRecipients: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chatd_broadcast_recipients",
			Help:    "Number of recipients per chat broadcast.",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),

		policyDenialsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatd_policy_denials_total",
			Help: "Total number of messages denied by moderation policy.",
		}, []string{"kind"}),
		adminCommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatd_admin_commands_total",
			Help: "Total number of admin commands dispatched.",
		}, []string{"command"}),

		messagesFlushedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatd_messages_flushed_total",
			Help: "Total number of chat messages written to the message log file.",
		}),
		sessionPanicsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatd_session_panics_total",
			Help: "Total number of sessions terminated by a panic.",
		}),
	}

	// Register all metrics
	reg.MustRegister(
		c.connectionsTotal,
		c.connectionsActive,
		c.authAttemptsTotal,
		c.framesReceivedTotal,
		c.chatBroadcastsTotal,
		c.broadcastRecipients,
		c.policyDenialsTotal,
		c.adminCommandsTotal,
		c.messagesFlushedTotal,
		c.sessionPanicsTotal,
	)

	return c
}

// ConnectionOpened increments the connection counter and active gauge.
func (c *PrometheusCollector) ConnectionOpened() {
	c.connectionsTotal.Inc()
	c.connectionsActive.Inc()
}

// ConnectionClosed decrements the active connections gauge.
func (c *PrometheusCollector) ConnectionClosed() {
	c.connectionsActive.Dec()
}

// AuthAttempt increments the authentication attempts counter.
func (c *PrometheusCollector) AuthAttempt(result string) {
	c.authAttemptsTotal.WithLabelValues(result).Inc()
}

// FrameReceived increments the inbound frame counter. Plain chat frames
// carry an empty flag on the wire and are labeled "CHAT".
func (c *PrometheusCollector) FrameReceived(flag string) {
	if flag == "" {
		flag = "CHAT"
	}
	c.framesReceivedTotal.WithLabelValues(flag).Inc()
}

// ChatBroadcast increments the broadcast counter and observes the fan-out width.
func (c *PrometheusCollector) ChatBroadcast(recipients int) {
	c.chatBroadcastsTotal.Inc()
	c.broadcastRecipients.Observe(float64(recipients))
}

// PolicyDenied increments the moderation denial counter.
func (c *PrometheusCollector) PolicyDenied(kind string) {
	c.policyDenialsTotal.WithLabelValues(kind).Inc()
}

// AdminCommand increments the admin command counter.
func (c *PrometheusCollector) AdminCommand(command string) {
	c.adminCommandsTotal.WithLabelValues(command).Inc()
}

// MessagesFlushed adds the number of messages written at shutdown.
func (c *PrometheusCollector) MessagesFlushed(count int) {
	c.messagesFlushedTotal.Add(float64(count))
}

// SessionPanic increments the session panic counter.
func (c *PrometheusCollector) SessionPanic() {
	c.sessionPanicsTotal.Inc()
}
