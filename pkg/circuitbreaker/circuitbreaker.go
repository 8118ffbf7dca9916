// Package circuitbreaker stops calling a dependency after consecutive
// failures and lets a limited number of probes through once a cooldown has
// passed.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type Config struct {
	// FailureThreshold consecutive failures open the breaker.
	FailureThreshold int
	// SuccessThreshold successful probes close it again.
	SuccessThreshold int
	// Cooldown is spent open before probing.
	Cooldown time.Duration
	// HalfOpenProbes caps concurrent calls while half-open.
	HalfOpenProbes int
	// IsFailure decides which errors count. Context errors never do.
	IsFailure func(error) bool
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Cooldown:         30 * time.Second,
		HalfOpenProbes:   1,
	}
}

type CircuitBreaker struct {
	cfg Config
	now func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	probes    int
	openedAt  time.Time
	notify    func(from, to State)
}

func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 1
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = 1
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// OnStateChange registers fn, called with the lock held on every transition.
func (cb *CircuitBreaker) OnStateChange(fn func(from, to State)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.notify = fn
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.current()
}

// Execute runs fn unless the breaker is open.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	state, err := cb.before()
	if err != nil {
		return err
	}
	err = fn()
	cb.after(state, err)
	return err
}

// current promotes an expired open state to half-open. mu must be held.
func (cb *CircuitBreaker) current() State {
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.Cooldown {
		cb.setState(StateHalfOpen)
	}
	return cb.state
}

func (cb *CircuitBreaker) before() (State, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch state := cb.current(); state {
	case StateOpen:
		return state, ErrOpen
	case StateHalfOpen:
		if cb.probes >= cb.cfg.HalfOpenProbes {
			return state, fmt.Errorf("%w: waiting for probe", ErrOpen)
		}
		cb.probes++
		return state, nil
	default:
		return state, nil
	}
}

func (cb *CircuitBreaker) after(before State, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	// The state moved on while fn ran; its result no longer applies.
	if cb.state != before {
		return
	}
	if before == StateHalfOpen {
		cb.probes--
	}

	switch {
	case err != nil && !cb.countsAsFailure(err):
	case err == nil:
		cb.failures = 0
		if before == StateHalfOpen {
			cb.successes++
			if cb.successes >= cb.cfg.SuccessThreshold {
				cb.setState(StateClosed)
			}
		}
	case before == StateHalfOpen:
		cb.setState(StateOpen)
	default:
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.setState(StateOpen)
		}
	}
}

func (cb *CircuitBreaker) countsAsFailure(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if cb.cfg.IsFailure != nil {
		return cb.cfg.IsFailure(err)
	}
	return true
}

// setState must be called with mu held.
func (cb *CircuitBreaker) setState(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.failures, cb.successes, cb.probes = 0, 0, 0
	if to == StateOpen {
		cb.openedAt = cb.now()
	}
	if cb.notify != nil {
		cb.notify(from, to)
	}
}
