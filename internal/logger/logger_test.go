package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	t.Run("Invalid level falls back to info", func(t *testing.T) {
		log, err := New(Config{Level: "verbose", OutputPath: filepath.Join(t.TempDir(), "app.log")})
		require.NoError(t, err)
		assert.False(t, log.Core().Enabled(zapcore.DebugLevel), "debug не должен быть включён")
		assert.True(t, log.Core().Enabled(zapcore.InfoLevel), "info должен быть включён")
	})

	t.Run("Debug level", func(t *testing.T) {
		log, err := New(Config{Level: "DEBUG", Encoding: "console", OutputPath: filepath.Join(t.TempDir(), "app.log")})
		require.NoError(t, err)
		assert.True(t, log.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("Encoding normalization", func(t *testing.T) {
		assert.Equal(t, "json", normalizeEncoding("xml"))
		assert.Equal(t, "json", normalizeEncoding(""))
		assert.Equal(t, "console", normalizeEncoding(" Console "))
	})
}
