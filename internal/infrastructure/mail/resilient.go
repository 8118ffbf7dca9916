package mail

import (
	"context"
	"time"

	"workhub/internal/core/ports"
	"workhub/pkg/circuitbreaker"
	"workhub/pkg/retry"
	"workhub/pkg/tracing"

	"go.uber.org/zap"
)

// ResilientMailer retries transient failures and stops calling a relay that
// keeps failing. Permanent errors and an open breaker are not retried, and
// permanent errors do not count against the breaker.
type ResilientMailer struct {
	next    ports.Mailer
	breaker *circuitbreaker.CircuitBreaker
	retry   retry.Config
	logger  *zap.SugaredLogger
}

func NewResilientMailer(next ports.Mailer, cbCfg circuitbreaker.Config, retryCfg retry.Config, logger *zap.SugaredLogger) *ResilientMailer {
	retryCfg.StopOn = append(retryCfg.StopOn, circuitbreaker.ErrOpen)
	retryCfg.Notify = func(attempt int, err error, wait time.Duration) {
		logger.Debugw("retrying mail delivery", "attempt", attempt, "wait", wait, "error", err)
	}

	if cbCfg.IsFailure == nil {
		cbCfg.IsFailure = func(err error) bool { return !retry.IsPermanent(err) }
	}
	cb := circuitbreaker.New(cbCfg)
	cb.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Warnw("mail circuit breaker state changed", "from", from.String(), "to", to.String())
	})

	return &ResilientMailer{
		next:    next,
		breaker: cb,
		retry:   retryCfg,
		logger:  logger,
	}
}

func (m *ResilientMailer) Send(ctx context.Context, msg ports.Mail) error {
	ctx, span := tracing.TraceMail(ctx, string(msg.Kind))
	defer span.End()

	err := retry.Do(ctx, m.retry, func(ctx context.Context) error {
		return m.breaker.Execute(ctx, func() error {
			return m.next.Send(ctx, msg)
		})
	})
	if err != nil {
		tracing.RecordError(ctx, err)
		m.logger.Errorw("mail delivery failed", "kind", msg.Kind, "to", msg.To, "error", err)
	}
	return err
}

func (m *ResilientMailer) BreakerState() circuitbreaker.State {
	return m.breaker.State()
}
