package app

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, logLevel(nil))
	assert.Equal(t, slog.LevelDebug, logLevel(&Config{LogLevel: "debug"}))
	assert.Equal(t, slog.LevelWarn, logLevel(&Config{LogLevel: "WARN"}))
	assert.Equal(t, slog.LevelError, logLevel(&Config{LogLevel: "error"}))
	assert.Equal(t, slog.LevelInfo, logLevel(&Config{LogLevel: "verbose"}))
}

func TestNewLoggerHonorsFormat(t *testing.T) {
	assert.NotNil(t, NewLogger(&Config{LogFormat: "json"}))
	assert.NotNil(t, NewLogger(&Config{LogFormat: "pretty"}))
	assert.NotNil(t, NewLogger(nil))
}
