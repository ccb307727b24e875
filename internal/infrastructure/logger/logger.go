package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// L is the process-wide logger. It is a no-op until Init is called so that
// packages and tests can log unconditionally.
var L = zap.NewNop()

// Init replaces L with a logger at the given level. Format "json" selects the
// production encoder; anything else uses the human-readable console encoder.
func Init(level, format string) error {
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	if strings.EqualFold(format, "json") {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	L = l
	return nil
}

// Job returns a logger tagged with a job id.
func Job(jobID string) *zap.Logger {
	return L.With(zap.String("job_id", jobID))
}

// Named returns a logger for a component.
func Named(component string) *zap.Logger {
	return L.Named(component)
}

func Sync() {
	_ = L.Sync()
}
