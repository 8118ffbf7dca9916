package mail

import (
	"context"

	"workhub/internal/core/ports"

	"go.uber.org/zap"
)

// LogMailer renders messages and logs the link instead of delivering it.
type LogMailer struct {
	baseURL string
	logger  *zap.SugaredLogger
}

func NewLogMailer(baseURL string, logger *zap.SugaredLogger) *LogMailer {
	return &LogMailer{baseURL: baseURL, logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, msg ports.Mail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r, err := Render(m.baseURL, msg)
	if err != nil {
		return err
	}
	m.logger.Infow("mail (not delivered)",
		"kind", msg.Kind,
		"to", msg.To,
		"subject", r.Subject,
		"link", r.Link,
	)
	return nil
}
