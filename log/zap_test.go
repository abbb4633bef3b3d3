package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZapLogger(t *testing.T) {
	t.Run("writes enabled levels", func(t *testing.T) {
		buffer := new(bytes.Buffer)
		logger := NewZap(InfoLevel, buffer)

		logger.Debug("hidden")
		logger.Infof("engine started with %d workers", 8)
		require.NoError(t, logger.Sync())

		out := buffer.String()
		assert.NotContains(t, out, "hidden")
		assert.Contains(t, out, "engine started with 8 workers")
		assert.Contains(t, out, "INFO")
	})

	t.Run("level can be changed at runtime", func(t *testing.T) {
		buffer := new(bytes.Buffer)
		logger := NewZap(ErrorLevel, buffer)
		child := logger.With("component", "timer")
		require.Equal(t, ErrorLevel, logger.LogLevel())

		child.Warn("first")
		logger.SetLevel(DebugLevel)
		child.Warn("second")
		require.NoError(t, logger.Sync())

		out := buffer.String()
		assert.NotContains(t, out, "first")
		assert.Contains(t, out, "second")
		assert.Contains(t, out, "component")
		assert.Equal(t, DebugLevel, child.LogLevel())
	})

	t.Run("invalid level is ignored", func(t *testing.T) {
		logger := NewZap(WarningLevel, new(bytes.Buffer))
		logger.SetLevel(InvalidLevel)
		assert.Equal(t, WarningLevel, logger.LogLevel())
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name string
		want Level
	}{
		{"trace", DebugLevel},
		{"debug", DebugLevel},
		{"INFO", InfoLevel},
		{"", InfoLevel},
		{"warn", WarningLevel},
		{"error", ErrorLevel},
		{"fatal", FatalLevel},
		{"bogus", InvalidLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.name))
		})
	}
}
