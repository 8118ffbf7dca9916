package mail

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"workhub/internal/core/ports"
	"workhub/pkg/circuitbreaker"
	"workhub/pkg/config"
	"workhub/pkg/retry"

	mailmsg "github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, msg ports.Mail) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func TestRender_Links(t *testing.T) {
	cases := map[ports.MailKind]string{
		ports.MailVerifyEmail:     "http://localhost:5173/verify-email?token=abc",
		ports.MailResetPassword:   "http://localhost:5173/reset-password?token=abc",
		ports.MailWorkspaceInvite: "http://localhost:5173/accept-invite?token=abc",
		ports.MailEmailChange:     "http://localhost:5173/confirm-email-change?token=abc",
	}
	for kind, want := range cases {
		r, err := Render("http://localhost:5173/", ports.Mail{Kind: kind, To: "ana@x.com", Token: "abc"})
		require.NoError(t, err)
		assert.Equal(t, want, r.Link)
		assert.Contains(t, r.Text, want)
		assert.NotEmpty(t, r.Subject)
	}
}

func TestRender_Errors(t *testing.T) {
	_, err := Render("http://x", ports.Mail{Kind: "newsletter", Token: "abc"})
	assert.Error(t, err)
	_, err = Render("http://x", ports.Mail{Kind: ports.MailVerifyEmail})
	assert.Error(t, err)
}

func TestBuildMessage_Multipart(t *testing.T) {
	r, err := Render("http://app", ports.Mail{Kind: ports.MailResetPassword, Token: "tok"})
	require.NoError(t, err)

	raw, err := BuildMessage("Workhub <no-reply@workhub.dev>", "ana@x.com", r, time.Now())
	require.NoError(t, err)

	mr, err := mailmsg.CreateReader(bytes.NewReader(raw))
	require.NoError(t, err)
	subject, err := mr.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "Reset your password", subject)

	to, err := mr.Header.AddressList("To")
	require.NoError(t, err)
	require.Len(t, to, 1)
	assert.Equal(t, "ana@x.com", to[0].Address)

	var types []string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		h, ok := p.Header.(*mailmsg.InlineHeader)
		require.True(t, ok)
		ct, _, err := h.ContentType()
		require.NoError(t, err)
		types = append(types, ct)

		body, err := io.ReadAll(p.Body)
		require.NoError(t, err)
		assert.True(t, strings.Contains(string(body), "http://app/reset-password?token=tok"))
	}
	assert.Equal(t, []string{"text/plain", "text/html"}, types)
}

func TestBuildMessage_BadAddress(t *testing.T) {
	_, err := BuildMessage("not an address", "ana@x.com", Rendered{}, time.Now())
	assert.Error(t, err)
}

func TestLogMailer_LogsLink(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := NewLogMailer("http://app", zap.New(core).Sugar())

	require.NoError(t, m.Send(context.Background(), ports.Mail{Kind: ports.MailVerifyEmail, To: "ana@x.com", Token: "t1"}))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "http://app/verify-email?token=t1", entries[0].ContextMap()["link"])
}

func fastRetry() retry.Config {
	return retry.Config{Enabled: true, MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
}

func TestResilientMailer_RetriesTransient(t *testing.T) {
	next := new(MockMailer)
	msg := ports.Mail{Kind: ports.MailVerifyEmail, To: "ana@x.com", Token: "t"}
	next.On("Send", mock.Anything, msg).Return(errors.New("connection reset")).Once()
	next.On("Send", mock.Anything, msg).Return(nil).Once()

	m := NewResilientMailer(next, circuitbreaker.DefaultConfig(), fastRetry(), zap.NewNop().Sugar())
	require.NoError(t, m.Send(context.Background(), msg))
	next.AssertNumberOfCalls(t, "Send", 2)
}

func TestResilientMailer_PermanentNotRetried(t *testing.T) {
	next := new(MockMailer)
	msg := ports.Mail{Kind: ports.MailVerifyEmail, To: "ana@x.com", Token: "t"}
	next.On("Send", mock.Anything, msg).Return(retry.Permanent(errors.New("550 mailbox unavailable")))

	cb := circuitbreaker.Config{FailureThreshold: 1, Cooldown: time.Hour}
	m := NewResilientMailer(next, cb, fastRetry(), zap.NewNop().Sugar())
	assert.Error(t, m.Send(context.Background(), msg))
	next.AssertNumberOfCalls(t, "Send", 1)
	assert.Equal(t, circuitbreaker.StateClosed, m.BreakerState(), "rejected recipients do not open the breaker")
}

func TestResilientMailer_OpenBreakerStopsCalls(t *testing.T) {
	next := new(MockMailer)
	msg := ports.Mail{Kind: ports.MailResetPassword, To: "ana@x.com", Token: "t"}
	next.On("Send", mock.Anything, msg).Return(errors.New("dial tcp: refused"))

	cb := circuitbreaker.Config{FailureThreshold: 2, SuccessThreshold: 1, Cooldown: time.Hour, HalfOpenProbes: 1}
	m := NewResilientMailer(next, cb, fastRetry(), zap.NewNop().Sugar())

	err := m.Send(context.Background(), msg)
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	next.AssertNumberOfCalls(t, "Send", 2)
	assert.Equal(t, circuitbreaker.StateOpen, m.BreakerState())
}

func TestNew_Drivers(t *testing.T) {
	logger := zap.NewNop().Sugar()

	cfg := config.DefaultConfig()
	cfg.Mail.Driver = "log"
	m, err := New(cfg, logger)
	require.NoError(t, err)
	assert.IsType(t, &LogMailer{}, m)

	cfg.Mail.Driver = "smtp"
	m, err = New(cfg, logger)
	require.NoError(t, err)
	assert.IsType(t, &ResilientMailer{}, m)

	cfg.Mail.Driver = "carrier-pigeon"
	_, err = New(cfg, logger)
	assert.Error(t, err)
}
