package logger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"gitlab.com/timkado/api/social-feed-client/internal/adapters/config"
	"gitlab.com/timkado/api/social-feed-client/pkg/contextkeys"
)

func TestContextFieldsAreLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := FromZap(zap.New(core))

	ctx := context.WithValue(context.Background(), contextkeys.RequestIDKey, "req-1")
	ctx = context.WithValue(ctx, contextkeys.UserIDKey, "user-1")
	log.Info(ctx, "fetched", "cache_hit", true, "error", errors.New("boom"))

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "req-1", fields["request_id"])
	require.Equal(t, "user-1", fields["user_id"])
	require.Equal(t, true, fields["cache_hit"])
	require.Equal(t, "boom", fields["error"])
}

func TestWithAddsStaticFieldsAndToleratesOddArgs(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := FromZap(zap.New(core)).With("component", "dispatcher", "dangling")

	log.Warn(context.Background(), "refresh failed")

	fields := logs.All()[0].ContextMap()
	require.Equal(t, "dispatcher", fields["component"])
	require.Equal(t, "dangling", fields["orphan_field_2"])
}

func TestLevelFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "error"
	log, err := NewZapAdapter(config.NewStaticProvider(cfg), "test")
	require.NoError(t, err)

	za := log.(*ZapAdapter)
	require.False(t, za.logger.Core().Enabled(zapcore.InfoLevel))
	require.True(t, za.logger.Core().Enabled(zapcore.ErrorLevel))
}

func TestUnknownFormatIsRejected(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Format = "xml"
	_, err := NewZapAdapter(config.NewStaticProvider(cfg), "test")
	require.Error(t, err)
}

func TestDisabledLevelIsDropped(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	log := FromZap(zap.New(core))

	log.Debug(context.Background(), "noisy", "n", 1)
	log.Info(context.Background(), "noisy")
	log.Warn(context.Background(), "kept")

	require.Equal(t, 1, logs.Len())
	require.Equal(t, "kept", logs.All()[0].Message)
}
