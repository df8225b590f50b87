// Package logging builds the zap logger used for run lifecycle and failure logs.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/torosent/vuload/internal/runner"
)

// New returns a logger writing to w. format is "console" or "json".
func New(level, format string, w io.Writer) (*zap.Logger, error) {
	var lvl zapcore.Level
	if strings.TrimSpace(level) == "" {
		lvl = zapcore.InfoLevel
	} else if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "console":
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	case "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	default:
		return nil, fmt.Errorf("log format: unsupported %q", format)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(w)), lvl)
	return zap.New(core), nil
}

// FailureLogger reports failed requests through zap at warn level.
type FailureLogger struct {
	log *zap.Logger
}

func NewFailureLogger(log *zap.Logger) *FailureLogger {
	return &FailureLogger{log: log}
}

func (f *FailureLogger) LogFailure(ctx context.Context, err error) {
	fields := []zap.Field{zap.Error(err)}
	if info, ok := runner.VUFromContext(ctx); ok {
		fields = append(fields, zap.Int("vu", info.ID), zap.Int64("iteration", info.Iteration))
	}
	var httpErr *runner.HTTPError
	if errors.As(err, &httpErr) {
		fields = append(fields, zap.Int("status", httpErr.StatusCode))
	}
	f.log.Warn("request failed", fields...)
}
