package utils

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	t.Run("debug mode returns development logger", func(t *testing.T) {
		logger, err := NewLogger(true)
		if err != nil {
			t.Fatalf("NewLogger(true) error: %v", err)
		}
		if !logger.Core().Enabled(zapcore.DebugLevel) {
			t.Error("debug logger should enable debug level")
		}
		_ = logger.Sync()
	})

	t.Run("production mode returns production logger", func(t *testing.T) {
		logger, err := NewLogger(false)
		if err != nil {
			t.Fatalf("NewLogger(false) error: %v", err)
		}
		if logger.Core().Enabled(zapcore.DebugLevel) {
			t.Error("production logger should not enable debug level")
		}
		_ = logger.Sync()
	})
}

func TestNewConsoleLogger(t *testing.T) {
	logger, err := NewConsoleLogger(false)
	if err != nil {
		t.Fatalf("NewConsoleLogger(false) error: %v", err)
	}
	if logger.Core().Enabled(zapcore.InfoLevel) {
		t.Error("quiet console logger should drop info")
	}
	if !logger.Core().Enabled(zapcore.WarnLevel) {
		t.Error("quiet console logger should keep warnings")
	}

	logger, err = NewConsoleLogger(true)
	if err != nil {
		t.Fatalf("NewConsoleLogger(true) error: %v", err)
	}
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Error("debug console logger should enable debug")
	}
}
