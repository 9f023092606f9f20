package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/agentdesk/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestInitLogger(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		t.Run(format, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "agentdesk.log")
			logger, level := initLogger(config.LogConfig{
				Level:       "warn",
				Format:      format,
				OutputPaths: []string{path},
			})

			logger.Info("hidden")
			logger.Warn("shown")
			level.SetLevel(zapcore.DebugLevel)
			logger.Debug("now visible")
			require.NoError(t, logger.Sync())

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.NotContains(t, string(data), "hidden")
			assert.Contains(t, string(data), "shown")
			assert.Contains(t, string(data), "now visible")
		})
	}
}

func TestLoadConfig(t *testing.T) {
	loader, cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Empty(t, loader.ConfigPath())
	assert.Equal(t, 8080, cfg.Server.HTTPPort)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  http_port: -1\n"), 0o600))
	_, _, err = loadConfig(path)
	assert.Error(t, err)
}
