package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthChecker_CheckAll(t *testing.T) {
	h := NewHealthChecker()
	h.AddPingCheck("store", pingFunc(func(context.Context) error { return nil }), 0, time.Second)
	assert.True(t, h.Ready(context.Background()))

	h.AddPingCheck("events", pingFunc(func(context.Context) error { return errors.New("connection refused") }), 0, time.Second)

	report := h.CheckAll(context.Background())
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Equal(t, StatusHealthy, report.Checks["store"].Status)
	assert.Empty(t, report.Checks["store"].Error)
	assert.Equal(t, StatusUnhealthy, report.Checks["events"].Status)
	assert.Equal(t, "connection refused", report.Checks["events"].Error)
	assert.False(t, h.Ready(context.Background()))
}

func TestHealthChecker_TimeoutApplied(t *testing.T) {
	h := NewHealthChecker()
	h.Add("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, 0, 10*time.Millisecond)

	report := h.CheckAll(context.Background())
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Contains(t, report.Checks["slow"].Error, "deadline exceeded")
}

func TestHealthChecker_Metrics(t *testing.T) {
	p := NewPrometheusCollector(prometheus.NewRegistry())
	h := NewHealthChecker(WithHealthMetrics(p))
	h.Add("store", func(context.Context) error { return nil }, 0, 0)
	h.Add("events", func(context.Context) error { return errors.New("down") }, 0, 0)

	h.CheckAll(context.Background())
	assert.Equal(t, float64(1), testutil.ToFloat64(p.healthCheckUp.WithLabelValues("store")))
	assert.Equal(t, float64(0), testutil.ToFloat64(p.healthCheckUp.WithLabelValues("events")))
}

func TestHealthChecker_BackgroundReportsFailures(t *testing.T) {
	h := NewHealthChecker()
	h.Add("down", func(context.Context) error { return errors.New("no route to host") }, 5*time.Millisecond, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	failed := make(chan string, 1)
	h.StartBackgroundChecks(ctx, func(name string, err error) {
		select {
		case failed <- name + ": " + err.Error():
		default:
		}
	})

	select {
	case got := <-failed:
		assert.Equal(t, "down: no route to host", got)
	case <-time.After(time.Second):
		t.Fatal("background check did not report")
	}
}

func TestPrometheusCollector_Realtime(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheusCollector(reg)

	p.RecordConnectionOpened(3)
	p.RecordConnectionOpened(1)
	p.RecordConnectionClosed(2 * time.Second)
	p.RecordRoomJoins(1)
	p.RecordEventRelayed("notification_created", 2)
	p.RecordHandshakeRejected("invalid_token")
	p.RecordConnectionDropped()

	assert.Equal(t, float64(1), testutil.ToFloat64(p.connectionsActive))
	assert.Equal(t, float64(2), testutil.ToFloat64(p.connectionsTotal))
	assert.Equal(t, float64(5), testutil.ToFloat64(p.roomJoins))
	assert.Equal(t, float64(2), testutil.ToFloat64(p.framesQueued))
	assert.Equal(t, float64(1), testutil.ToFloat64(p.eventsRelayed.WithLabelValues("notification_created")))
	assert.Equal(t, float64(1), testutil.ToFloat64(p.handshakeRejections.WithLabelValues("invalid_token")))
	assert.Equal(t, float64(1), testutil.ToFloat64(p.connectionsDropped))
}

func TestPrometheusCollector_HTTPAndEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheusCollector(reg)

	p.RecordHTTPRequest("GET", "/api/workspaces", 200, 10*time.Millisecond)
	p.RecordHTTPRequest("GET", "", 404, time.Millisecond)
	p.RecordEventPublished("workspace_member_added", nil)
	p.RecordEventPublished("workspace_member_added", errors.New("redis down"))

	assert.Equal(t, float64(1), testutil.ToFloat64(p.httpRequests.WithLabelValues("GET", "/api/workspaces", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(p.httpRequests.WithLabelValues("GET", "unmatched", "404")))
	assert.Equal(t, float64(1), testutil.ToFloat64(p.eventsPublished.WithLabelValues("workspace_member_added", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(p.eventsPublished.WithLabelValues("workspace_member_added", "error")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
