package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger. JSON output in production; set
// GOATBOT_DEBUG=1 for development encoding and debug level.
func New() (*zap.Logger, error) {
	if os.Getenv("GOATBOT_DEBUG") != "" {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		return cfg.Build()
	}
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	return cfg.Build()
}

// Nop returns a no-op logger for tests.
func Nop() *zap.Logger { return zap.NewNop() }
