package mail

import (
	"fmt"

	"workhub/internal/core/ports"
	"workhub/pkg/circuitbreaker"
	"workhub/pkg/config"
	"workhub/pkg/retry"

	"go.uber.org/zap"
)

// New builds the mailer selected by mail.driver. SMTP delivery is wrapped in
// retry and a circuit breaker.
func New(cfg *config.Config, logger *zap.SugaredLogger) (ports.Mailer, error) {
	switch cfg.Mail.Driver {
	case "", "log":
		logger.Infow("mail is logged, not sent", "frontend_base_url", cfg.Mail.FrontendBaseURL)
		return NewLogMailer(cfg.Mail.FrontendBaseURL, logger), nil

	case "smtp":
		smtp := NewSMTPMailer(SMTPConfig{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
			BaseURL:  cfg.Mail.FrontendBaseURL,
		})
		logger.Infow("sending mail through smtp", "host", cfg.Mail.Host, "port", cfg.Mail.Port)
		breaker := circuitbreaker.DefaultConfig()
		breaker.FailureThreshold = cfg.Mail.BreakerThreshold
		breaker.Cooldown = cfg.Mail.BreakerCooldown
		backoff := retry.DefaultConfig()
		backoff.MaxAttempts = cfg.Mail.MaxRetries
		return NewResilientMailer(smtp, breaker, backoff, logger), nil

	default:
		return nil, fmt.Errorf("unknown mail driver %q", cfg.Mail.Driver)
	}
}
