package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"workhub/internal/core/ports"
	"workhub/pkg/retry"

	mailmsg "github.com/emersion/go-message/mail"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	BaseURL  string
	Timeout  time.Duration
}

// SMTPMailer delivers one message per connection using STARTTLS when offered.
type SMTPMailer struct {
	cfg  SMTPConfig
	now  func() time.Time
	dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	d := &net.Dialer{Timeout: cfg.Timeout}
	return &SMTPMailer{cfg: cfg, now: time.Now, dial: d.DialContext}
}

func (m *SMTPMailer) Send(ctx context.Context, msg ports.Mail) error {
	r, err := Render(m.cfg.BaseURL, msg)
	if err != nil {
		return retry.Permanent(err)
	}
	body, err := BuildMessage(m.cfg.From, msg.To, r, m.now())
	if err != nil {
		return retry.Permanent(err)
	}
	return m.deliver(ctx, msg.To, body)
}

func (m *SMTPMailer) deliver(ctx context.Context, to string, body []byte) error {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	conn, err := m.dial(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp %s: %w", addr, err)
	}

	deadline := time.Now().Add(m.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return classify(fmt.Errorf("smtp greeting: %w", err))
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return classify(fmt.Errorf("starttls: %w", err))
		}
	}
	if m.cfg.Username != "" {
		auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
		if err := c.Auth(auth); err != nil {
			return retry.Permanent(fmt.Errorf("smtp auth: %w", err))
		}
	}

	from, err := envelopeAddress(m.cfg.From)
	if err != nil {
		return retry.Permanent(err)
	}
	if err := c.Mail(from); err != nil {
		return classify(fmt.Errorf("MAIL FROM: %w", err))
	}
	if err := c.Rcpt(to); err != nil {
		return classify(fmt.Errorf("RCPT TO: %w", err))
	}

	w, err := c.Data()
	if err != nil {
		return classify(fmt.Errorf("DATA: %w", err))
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return classify(fmt.Errorf("end DATA: %w", err))
	}
	return c.Quit()
}

func envelopeAddress(from string) (string, error) {
	addr, err := mailmsg.ParseAddress(from)
	if err != nil {
		return "", fmt.Errorf("parse from address: %w", err)
	}
	return addr.Address, nil
}

// classify marks 5xx replies permanent; 4xx and transport errors stay retryable.
func classify(err error) error {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) && tpErr.Code >= 500 {
		return retry.Permanent(err)
	}
	return err
}
