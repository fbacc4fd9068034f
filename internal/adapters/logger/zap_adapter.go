package logger

import (
	"context"
	"fmt"
	"os"

	"gitlab.com/timkado/api/social-feed-client/internal/adapters/config"
	"gitlab.com/timkado/api/social-feed-client/internal/domain"
	"gitlab.com/timkado/api/social-feed-client/pkg/contextkeys"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapAdapter implements domain.Logger on top of zap. Context values listed in
// contextkeys.LoggedKeys are attached to every entry.
type ZapAdapter struct {
	logger *zap.Logger
}

// NewZapAdapter builds the process logger from the log section of the config.
// Entries below error go to stdout, error and above to stderr.
func NewZapAdapter(cfgProvider config.Provider, serviceName string) (domain.Logger, error) {
	cfg := cfgProvider.Get()

	level, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	encoder, err := newEncoder(cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	below := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= level && l < zapcore.ErrorLevel })
	above := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= level && l >= zapcore.ErrorLevel })
	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), below),
		zapcore.NewCore(encoder.Clone(), zapcore.Lock(os.Stderr), above),
	)

	z := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2), zap.AddStacktrace(zapcore.ErrorLevel)).With(
		zap.String("service", serviceName),
		zap.String("version", cfg.App.Version),
		zap.String("api_base_url", cfg.API.BaseURL),
	)
	return &ZapAdapter{logger: z}, nil
}

func newEncoder(format string) (zapcore.Encoder, error) {
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	switch format {
	case "", "json":
		return zapcore.NewJSONEncoder(encCfg), nil
	case "console":
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(encCfg), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// FromZap wraps an existing zap logger.
func FromZap(l *zap.Logger) domain.Logger {
	return &ZapAdapter{logger: l}
}

func (za *ZapAdapter) Debug(ctx context.Context, msg string, args ...any) {
	za.log(ctx, zapcore.DebugLevel, msg, args)
}

func (za *ZapAdapter) Info(ctx context.Context, msg string, args ...any) {
	za.log(ctx, zapcore.InfoLevel, msg, args)
}

func (za *ZapAdapter) Warn(ctx context.Context, msg string, args ...any) {
	za.log(ctx, zapcore.WarnLevel, msg, args)
}

func (za *ZapAdapter) Error(ctx context.Context, msg string, args ...any) {
	za.log(ctx, zapcore.ErrorLevel, msg, args)
}

// Fatal logs and exits the process.
func (za *ZapAdapter) Fatal(ctx context.Context, msg string, args ...any) {
	za.log(ctx, zapcore.FatalLevel, msg, args)
}

func (za *ZapAdapter) With(args ...any) domain.Logger {
	return &ZapAdapter{logger: za.logger.With(pairsToFields(args)...)}
}

// log skips field construction entirely when the level is disabled.
func (za *ZapAdapter) log(ctx context.Context, lvl zapcore.Level, msg string, args []any) {
	ce := za.logger.Check(lvl, msg)
	if ce == nil {
		return
	}
	ce.Write(contextFields(ctx, args)...)
}

func contextFields(ctx context.Context, args []any) []zap.Field {
	fields := make([]zap.Field, 0, len(args)/2+len(contextkeys.LoggedKeys))
	if ctx != nil {
		for _, key := range contextkeys.LoggedKeys {
			if v, ok := ctx.Value(key).(string); ok && v != "" {
				fields = append(fields, zap.String(key.String(), v))
			}
		}
	}
	return append(fields, pairsToFields(args)...)
}

// pairsToFields converts alternating key/value arguments into zap fields.
func pairsToFields(args []any) []zap.Field {
	fields := make([]zap.Field, 0, len(args)/2+1)
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			fields = append(fields, zap.Any(fmt.Sprintf("orphan_field_%d", i), args[i]))
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprintf("invalid_key_%d", i)
		}
		if err, isErr := args[i+1].(error); isErr && key == "error" {
			fields = append(fields, zap.Error(err))
			continue
		}
		fields = append(fields, zap.Any(key, args[i+1]))
	}
	return fields
}
