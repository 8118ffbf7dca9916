// Package retry runs an operation again with exponential backoff until it
// succeeds, fails permanently or the context ends.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

type Config struct {
	Enabled bool
	// MaxAttempts counts retries after the first call.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Jitter spreads each delay by +/-25%.
	Jitter bool
	// StopOn lists errors, matched with errors.Is, that end the loop.
	StopOn []error
	// Notify is called before each wait.
	Notify func(attempt int, err error, wait time.Duration)
}

func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err so that Do returns it without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do calls fn until it returns nil or a permanent error.
func Do(ctx context.Context, cfg Config, fn func(context.Context) error) error {
	_, err := Value(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, cfg Config, fn func(context.Context) (T, error)) (T, error) {
	if !cfg.Enabled {
		return fn(ctx)
	}

	var zero T
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("retry cancelled: %w", err)
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if cfg.stops(err) {
			return zero, err
		}
		if attempt >= cfg.MaxAttempts {
			return zero, fmt.Errorf("gave up after %d attempts: %w", attempt+1, err)
		}

		wait := cfg.Backoff(attempt)
		if cfg.Notify != nil {
			cfg.Notify(attempt+1, err, wait)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

// Backoff returns the wait after the given zero-based attempt.
func (c Config) Backoff(attempt int) time.Duration {
	delay := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt))
	if c.MaxDelay > 0 {
		delay = math.Min(delay, float64(c.MaxDelay))
	}

	d := time.Duration(delay)
	if c.Jitter && d >= 4 {
		d = d - d/4 + time.Duration(rand.Int64N(int64(d/2)))
	}
	return d
}

func (c Config) stops(err error) bool {
	if IsPermanent(err) {
		return true
	}
	for _, target := range c.StopOn {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
