// Package log holds the process-wide zap logger used by the fluxprep binaries.
// Library packages take a *zap.SugaredLogger explicitly; only main reaches
// for the package-level helpers.
package log

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log *zap.SugaredLogger

// New builds a logger. Production output is JSON at info level with ISO8601
// timestamps; debug output is the console encoder at debug level.
func New(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = !debug

	zl, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("can't initialize zap logger: %w", err)
	}
	return zl, nil
}

// Init initializes the package-level logger
func Init(debug bool) error {
	zl, err := New(debug)
	if err != nil {
		return err
	}
	log = zl.Sugar()
	return nil
}

// GetSugaredLogger returns the package-level logger, falling back to a
// production logger when Init was never called
func GetSugaredLogger() *zap.SugaredLogger {
	if log == nil {
		zl, err := New(false)
		if err != nil {
			zl = zap.NewNop()
		}
		log = zl.Sugar()
	}
	return log
}

// Sync flushes any buffered log entries
func Sync() {
	if log != nil {
		_ = log.Sync()
	}
}

func Infof(template string, args ...interface{}) {
	GetSugaredLogger().WithOptions(zap.AddCallerSkip(1)).Infof(template, args...)
}

func Errorf(template string, args ...interface{}) {
	GetSugaredLogger().WithOptions(zap.AddCallerSkip(1)).Errorf(template, args...)
}
