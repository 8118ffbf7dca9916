package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestContextLogger_WithContext(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	cl := NewContextLogger(zap.New(core).Sugar())

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithUserID(ctx, "user-42")
	ctx = WithTraceID(ctx, "4bf92f3577b34da6a3ce929d0e0e4736")

	cl.WithContext(ctx).Infow("http_request", "path", "/api/workspaces")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "req-1", fields["request_id"])
		assert.Equal(t, "user-42", fields["user_id"])
		assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", fields["trace_id"])
		assert.Equal(t, "/api/workspaces", fields["path"])
	}
}

func TestContextLogger_NoFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	cl := NewContextLogger(zap.New(core).Sugar())

	cl.WithContext(context.Background()).Info("plain")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Empty(t, entries[0].ContextMap())
	}
}

func TestContextAccessors(t *testing.T) {
	ctx := WithUserID(WithRequestID(context.Background(), "r"), "u")
	assert.Equal(t, "r", RequestID(ctx))
	assert.Equal(t, "u", UserID(ctx))
	assert.Equal(t, "", UserID(context.Background()))
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	l := New("verbose", "json")
	assert.True(t, l.Core().Enabled(zap.InfoLevel))
	assert.False(t, l.Core().Enabled(zap.DebugLevel))
}
