package monitoring

import (
	"context"
	"sync"
	"time"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// Pinger is anything that can report reachability, such as the credential
// store or the event queue.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Probe returns nil when the dependency is usable.
type Probe func(ctx context.Context) error

type check struct {
	name     string
	probe    Probe
	interval time.Duration
	timeout  time.Duration
}

type CheckResult struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// Report is served by the readiness endpoints.
type Report struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

// HealthChecker runs the probes registered for a process. Results are
// mirrored to the workhub_health_check_up gauge when metrics are set.
type HealthChecker struct {
	mu      sync.RWMutex
	checks  []check
	metrics *PrometheusCollector
}

type HealthOption func(*HealthChecker)

func WithHealthMetrics(m *PrometheusCollector) HealthOption {
	return func(h *HealthChecker) { h.metrics = m }
}

func NewHealthChecker(opts ...HealthOption) *HealthChecker {
	h := &HealthChecker{}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Add registers a probe. A zero interval excludes it from background runs;
// a zero timeout uses the caller's context as is.
func (h *HealthChecker) Add(name string, probe Probe, interval, timeout time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check{name: name, probe: probe, interval: interval, timeout: timeout})
}

func (h *HealthChecker) AddPingCheck(name string, p Pinger, interval, timeout time.Duration) {
	h.Add(name, p.Ping, interval, timeout)
}

func (h *HealthChecker) snapshot() []check {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]check(nil), h.checks...)
}

// CheckAll runs every probe concurrently.
func (h *HealthChecker) CheckAll(ctx context.Context) Report {
	checks := h.snapshot()
	results := make([]CheckResult, len(checks))

	var wg sync.WaitGroup
	for i, c := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = h.run(ctx, c)
		}()
	}
	wg.Wait()

	report := Report{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Checks:    make(map[string]CheckResult, len(checks)),
	}
	for i, c := range checks {
		if results[i].Status != StatusHealthy {
			report.Status = StatusUnhealthy
		}
		report.Checks[c.name] = results[i]
	}
	return report
}

func (h *HealthChecker) Ready(ctx context.Context) bool {
	return h.CheckAll(ctx).Status == StatusHealthy
}

func (h *HealthChecker) run(ctx context.Context, c check) CheckResult {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	err := c.probe(ctx)
	res := CheckResult{Status: StatusHealthy, LatencyMS: time.Since(start).Milliseconds()}
	if err != nil {
		res.Status = StatusUnhealthy
		res.Error = err.Error()
	}
	if h.metrics != nil {
		h.metrics.RecordHealthCheck(c.name, err == nil)
	}
	return res
}

// StartBackgroundChecks runs every check with an interval until ctx is done.
// Failures are passed to onFailure, which may be nil.
func (h *HealthChecker) StartBackgroundChecks(ctx context.Context, onFailure func(name string, err error)) {
	for _, c := range h.snapshot() {
		if c.interval <= 0 {
			continue
		}
		go h.loop(ctx, c, onFailure)
	}
}

func (h *HealthChecker) loop(ctx context.Context, c check, onFailure func(string, error)) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res := h.run(ctx, c)
			if res.Status != StatusHealthy && onFailure != nil && ctx.Err() == nil {
				onFailure(c.name, errorString(res.Error))
			}
		}
	}
}

type errorString string

func (e errorString) Error() string { return string(e) }
