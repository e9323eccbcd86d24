package obslog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/park285/chess-sync/internal/config"
)

func TestNew_WritesRotatedFileAndErrorTee(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "chess.log")
	logger, err := New(config.LogConfig{Level: "info", Format: "json", File: path, MaxSizeMB: 1})
	require.NoError(t, err)

	logger.Debug("match_debug_hidden")
	logger.Info("match_created", zap.String("game_id", "g1"))
	logger.Error("match_archive_error", zap.String("game_id", "g1"))
	require.NoError(t, logger.Sync())

	main, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(main), `"msg":"match_created"`)
	assert.Contains(t, string(main), `"game_id":"g1"`)
	assert.NotContains(t, string(main), "match_debug_hidden")

	errs, err := os.ReadFile(filepath.Join(dir, "logs", "chess.error.log"))
	require.NoError(t, err)
	assert.Contains(t, string(errs), "match_archive_error")
	assert.NotContains(t, string(errs), "match_created")
}

func TestNew_NoSinksIsNop(t *testing.T) {
	logger, err := New(config.LogConfig{})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.ErrorLevel))
}

func TestInit_ReplacesGlobal(t *testing.T) {
	prev := L()
	t.Cleanup(func() {
		mu.Lock()
		globalLogger = prev
		mu.Unlock()
	})
	logger, err := Init(config.LogConfig{Level: "warn", Console: true, Format: "console"})
	require.NoError(t, err)
	assert.Same(t, logger, L())
	assert.False(t, L().Core().Enabled(zapcore.InfoLevel))
	assert.True(t, L().Core().Enabled(zapcore.WarnLevel))
}

func TestParseLevelAndErrorPath(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel(" DEBUG "))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("verbose"))
	assert.Equal(t, "logs/chess.error.log", errorLogPath("logs/chess.log"))
	assert.True(t, strings.HasSuffix(errorLogPath("server"), "server.error"))
}
