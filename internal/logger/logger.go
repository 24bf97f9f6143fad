package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger. Level accepts zap's textual levels
// (debug, info, warn, error); blank means info.
func New(level string) (*zap.Logger, error) {
	parsed := zapcore.InfoLevel
	if lv := strings.TrimSpace(level); lv != "" {
		var err error
		parsed, err = zapcore.ParseLevel(lv)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", lv, err)
		}
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parsed)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	log, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	zap.ReplaceGlobals(log)
	return log, nil
}
