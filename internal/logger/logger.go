// Package logger exposes a process-wide zap SugaredLogger.  The instance is
// created once; later Init calls are no-ops.
package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	instance *zap.SugaredLogger
	once     sync.Once
)

// Init builds the logger.  level is a zap level name ("debug", "info", ...);
// unknown values fall back to info.  In production mode the encoder emits
// JSON with ISO8601 timestamps, otherwise a colored console encoder is used.
func Init(level string, isProduction bool) error {
	var err error
	once.Do(func() {
		var cfg zap.Config
		if isProduction {
			cfg = zap.NewProductionConfig()
			cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		} else {
			cfg = zap.NewDevelopmentConfig()
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}

		var lvl zapcore.Level
		if e := lvl.UnmarshalText([]byte(level)); e != nil {
			lvl = zapcore.InfoLevel
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
		cfg.OutputPaths = []string{"stdout"}
		cfg.ErrorOutputPaths = []string{"stderr"}

		var l *zap.Logger
		l, err = cfg.Build()
		if err != nil {
			return
		}
		instance = l.Sugar()
	})
	return err
}

// L returns the shared logger.  A nop logger is returned when Init has not
// run, so library code and tests can log unconditionally.
func L() *zap.SugaredLogger {
	if instance == nil {
		return zap.NewNop().Sugar()
	}
	return instance
}
