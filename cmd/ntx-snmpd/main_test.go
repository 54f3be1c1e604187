package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/mancow2001/ntx-custom-monitor/internal/config"
	"github.com/mancow2001/ntx-custom-monitor/internal/oid"
)

func TestDispatch(t *testing.T) {
	assert.Equal(t, 0, dispatch([]string{"version"}))
	assert.Equal(t, 0, dispatch([]string{"help"}))
	assert.Equal(t, 2, dispatch([]string{"frobnicate"}))
}

func TestConfigCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "config.yaml")

	require.Equal(t, 0, dispatch([]string{"init-config", "-output", path}))
	assert.Equal(t, 1, dispatch([]string{"init-config", "-output", path}), "existing file is kept")
	assert.Equal(t, 0, dispatch([]string{"check-config", "-config", path}))
	assert.Equal(t, 1, dispatch([]string{"check-config", "-config", filepath.Join(t.TempDir(), "missing.yaml")}))
}

func TestWalk_TestMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, config.WriteDefault(path))

	assert.Equal(t, 0, dispatch([]string{"walk", "-config", path, "-test-mode"}))
}

func TestLoadConfig_TestModeOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, config.WriteDefault(path))

	cfg, err := loadConfig(path, true)
	require.NoError(t, err)
	assert.True(t, cfg.Debug.TestMode)
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		logger, err := newLogger(config.Daemon{LogLevel: "debug", LogFormat: format})
		require.NoError(t, err, format)
		assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
	}

	_, err := newLogger(config.Daemon{LogLevel: "verbose", LogFormat: "json"})
	assert.Error(t, err)
}

func TestWriteWalk(t *testing.T) {
	var buf bytes.Buffer
	writeWalk(&buf, []oid.Entry{
		{OID: oid.MustParse("1.3.6.1.4.1.99999.1.1.1.1.1"), Value: oid.Value{Type: oid.Integer32, Num: 4530}},
		{OID: oid.MustParse("1.3.6.1.4.1.99999.1.99.1.1"), Value: oid.Value{Type: oid.OctetString, Str: "dev"}},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], ".1.3.6.1.4.1.99999.1.1.1.1.1"))
	assert.True(t, strings.HasSuffix(lines[0], "4530"))
	assert.True(t, strings.HasSuffix(lines[1], `"dev"`))
}
