package obslog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/park285/cheese-wager/internal/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("nonsense"))
}

func TestInitWritesRotatedFile(t *testing.T) {
	t.Cleanup(func() { Replace(nil) })
	path := filepath.Join(t.TempDir(), "wager.log")

	err := Init(config.LogConfig{Level: "info", Format: "json", ToFile: true, File: path})
	require.NoError(t, err)

	L().Info("session_create", zap.String("session_id", "game_1"))
	require.NoError(t, L().Sync())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"session_id":"game_1"`)
}
