package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFCtxAddsRegisteredFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewObserved(core)

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = context.WithValue(ctx, UsernameKey, "alice")
	log.InfoFCtx(ctx, "fetched %d posts", 3)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "fetched 3 posts", entry.Message)
	fields := entry.ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "alice", fields["username"])
}

func TestWithKeepsFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewObserved(core).With("component", "session")

	log.WarnF("cleared")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "session", logs.All()[0].ContextMap()["component"])
}

func TestRequestIDFromEmptyContext(t *testing.T) {
	assert.Empty(t, RequestIDFrom(context.Background()))
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	log, err := NewLogger(LoggerOptions{Level: "nonsense", OutputPaths: []string{"stdout"}})
	require.NoError(t, err)
	assert.NoError(t, log.SetLogLevel("debug"))
	assert.Error(t, log.SetLogLevel("loud"))
}

func TestNopDiscards(t *testing.T) {
	log := NewNop()
	log.ErrorF("ignored %s", "message")
	log.With("k", "v").Info("still ignored")
}
