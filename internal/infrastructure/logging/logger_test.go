package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "chatty"})
	assert.Error(t, err)
}

func TestSetLevel(t *testing.T) {
	logger, err := New(Config{Level: "info", OutputPaths: []string{"stderr"}})
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, logger.Level())

	require.NoError(t, logger.SetLevel("debug"))
	assert.Equal(t, zapcore.DebugLevel, logger.Level())
	assert.True(t, logger.Named("child").Core().Enabled(zapcore.DebugLevel))

	assert.Error(t, logger.SetLevel("loud"))
	assert.Equal(t, zapcore.DebugLevel, logger.Level())
}

func TestJSONOutputUsesSharedKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	logger, err := New(Config{Level: "info", OutputPaths: []string{path}})
	require.NoError(t, err)

	logger.Named("target").Info("Target created", TargetID("target-page-1"), BrowserContextID("ctx-1"))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := string(data)
	assert.Contains(t, line, `"message":"Target created"`)
	assert.Contains(t, line, `"logger":"target"`)
	assert.Contains(t, line, `"target_id":"target-page-1"`)
	assert.Contains(t, line, `"browser_context_id":"ctx-1"`)
	assert.Contains(t, line, `"timestamp":`)
}

func TestSampling(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	logger, err := New(Config{Level: "info", OutputPaths: []string{path}, SampleInitial: 2, SampleThereafter: 1000})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		logger.Info("Network event", zap.Int("i", i))
	}
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, countLines(data))
}

func TestNopLogger(t *testing.T) {
	logger := NewNop()
	logger.Info("dropped")
	assert.NoError(t, logger.SetLevel("warn"))
}

func countLines(data []byte) int {
	n := 0
	for _, b := range data {
		if b == '\n' {
			n++
		}
	}
	return n
}
