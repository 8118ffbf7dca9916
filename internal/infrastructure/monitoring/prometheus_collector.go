package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	// Realtime gateway
	connectionsActive   prometheus.Gauge
	connectionsTotal    prometheus.Counter
	connectionsDropped  prometheus.Counter
	connectionDuration  prometheus.Histogram
	handshakeRejections *prometheus.CounterVec
	roomJoins           prometheus.Counter
	eventsRelayed       *prometheus.CounterVec
	framesQueued        prometheus.Counter

	// Event queue
	eventsPublished *prometheus.CounterVec

	healthCheckUp *prometheus.GaugeVec

	// REST gateway
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewPrometheusCollector registers the collectors on reg, or on the default
// registry when reg is nil.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusCollector{
		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "workhub_realtime_connections_active",
			Help: "Number of joined realtime connections",
		}),

		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "workhub_realtime_connections_total",
			Help: "Total number of realtime connections that reached the joined state",
		}),

		connectionsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "workhub_realtime_connections_dropped_total",
			Help: "Connections dropped because their send queue was full",
		}),

		connectionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "workhub_realtime_connection_duration_seconds",
			Help:    "Lifetime of realtime connections",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}),

		handshakeRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "workhub_realtime_handshake_rejections_total",
			Help: "Rejected realtime handshakes by reason",
		}, []string{"reason"}),

		roomJoins: factory.NewCounter(prometheus.CounterOpts{
			Name: "workhub_realtime_room_joins_total",
			Help: "Total number of room joins",
		}),

		eventsRelayed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "workhub_realtime_events_relayed_total",
			Help: "Events relayed to realtime rooms by kind",
		}, []string{"kind"}),

		framesQueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "workhub_realtime_frames_queued_total",
			Help: "Frames queued on connection send queues",
		}),

		eventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "workhub_events_published_total",
			Help: "Events handed to the event queue by kind and result",
		}, []string{"kind", "result"}),

		healthCheckUp: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "workhub_health_check_up",
			Help: "1 when the last run of a health check passed",
		}, []string{"check"}),

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "workhub_http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),

		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "workhub_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route"}),
	}
}

func (p *PrometheusCollector) RecordConnectionOpened(rooms int) {
	p.connectionsActive.Inc()
	p.connectionsTotal.Inc()
	p.roomJoins.Add(float64(rooms))
}

func (p *PrometheusCollector) RecordConnectionClosed(lifetime time.Duration) {
	p.connectionsActive.Dec()
	p.connectionDuration.Observe(lifetime.Seconds())
}

func (p *PrometheusCollector) RecordConnectionDropped() {
	p.connectionsDropped.Inc()
}

func (p *PrometheusCollector) RecordHandshakeRejected(reason string) {
	p.handshakeRejections.WithLabelValues(reason).Inc()
}

func (p *PrometheusCollector) RecordRoomJoins(n int) {
	p.roomJoins.Add(float64(n))
}

func (p *PrometheusCollector) RecordEventRelayed(kind string, recipients int) {
	p.eventsRelayed.WithLabelValues(kind).Inc()
	p.framesQueued.Add(float64(recipients))
}

func (p *PrometheusCollector) RecordEventPublished(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.eventsPublished.WithLabelValues(kind, result).Inc()
}

func (p *PrometheusCollector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	p.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	p.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (p *PrometheusCollector) RecordHealthCheck(name string, ok bool) {
	v := 0.0
	if ok {
		v = 1
	}
	p.healthCheckUp.WithLabelValues(name).Set(v)
}
