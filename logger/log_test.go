package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLoggerIsSafe(t *testing.T) {
	require.NotNil(t, Logger)
	assert.NotPanics(t, func() {
		Logger.Info("discarded", "key", "value")
	})
}

func TestSetupLogger(t *testing.T) {
	t.Cleanup(func() { SetupLogger(os.Stdout, false) })

	var buf bytes.Buffer
	SetupLogger(&buf, false)
	Logger.Debug("hidden at info level")
	Logger.Info("visible at info level")
	assert.NotContains(t, buf.String(), "hidden at info level")
	assert.Contains(t, buf.String(), "visible at info level")

	buf.Reset()
	SetupLogger(&buf, true)
	Logger.Debug("visible when verbose")
	assert.Contains(t, buf.String(), "visible when verbose")
}

func TestSetupLogWriter(t *testing.T) {
	t.Run("stdout when no path given", func(t *testing.T) {
		w, file, err := SetupLogWriter("")
		require.NoError(t, err)
		assert.Nil(t, file)
		assert.Equal(t, os.Stdout, w)
	})

	t.Run("creates log directory and tees to file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "run.log")
		w, file, err := SetupLogWriter(path)
		require.NoError(t, err)
		require.NotNil(t, file)
		defer file.Close()
		assert.NotNil(t, w)

		_, statErr := os.Stat(path)
		assert.NoError(t, statErr)
	})
}
