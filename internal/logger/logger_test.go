package logger_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/bitwire/internal/logger"
)

func TestSetOutputFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer

	logger.SetOutput(&buf, logger.LevelWarn)
	t.Cleanup(logger.Close)

	logger.Debugf("debug %d", 1)
	logger.Infof("info %d", 2)
	logger.Warnf("warn %d", 3)
	logger.Errorf("error %d", 4)

	out := buf.String()
	assert.NotContains(t, out, "debug 1")
	assert.NotContains(t, out, "info 2")
	assert.Contains(t, out, "[WARNING] warn 3")
	assert.Contains(t, out, "[ERROR] error 4")
	assert.False(t, logger.DebugEnabled)
}

func TestInitLoggingWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "bitwire.log")

	require.NoError(t, logger.InitLogging(true, path))
	assert.True(t, logger.DebugEnabled)

	logger.Debugf("handshake with %s", "peer")
	logger.Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[DEBUG] handshake with peer")
}

func TestInitLoggingDisabled(t *testing.T) {
	var buf bytes.Buffer

	logger.SetOutput(&buf, logger.LevelDebug)
	require.NoError(t, logger.InitLogging(false, ""))

	logger.Errorf("dropped")
	assert.Empty(t, buf.String())
	assert.False(t, logger.DebugEnabled)
}
