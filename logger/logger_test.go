package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitLogger_WritesJSONToFile(t *testing.T) {
	prev := Logger
	t.Cleanup(func() { Logger = prev })

	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, InitLogger(Options{File: path, Level: "info", MaxSizeMB: 1}))

	Logger.Debug("hidden")
	Logger.Info("visible", zap.String("job_id", "J1"))
	require.NoError(t, Logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"visible"`)
	assert.Contains(t, string(data), `"job_id":"J1"`)
	assert.Contains(t, string(data), `"time":`)
	assert.NotContains(t, string(data), "hidden")
}

func TestInitLogger_BadLevel(t *testing.T) {
	assert.Error(t, InitLogger(Options{Level: "loud"}))
}
