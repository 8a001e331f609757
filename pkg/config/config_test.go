package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile_Defaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 4, cfg.APIWorkers)
	assert.Equal(t, 10*time.Second, cfg.APITimeout)
	assert.Equal(t, 30*time.Second, cfg.TaskTimeout)
	assert.Equal(t, 15*time.Second, cfg.BrowserWaitTimeout)
	assert.Equal(t, "chromedp", cfg.BrowserDriver)
	assert.Equal(t, "none", cfg.HistoryDriver)
	assert.Equal(t, 10, cfg.DefaultLimit)
}

func TestLoadFile_EnvOverrides(t *testing.T) {
	t.Setenv("API_WORKERS", "8")
	t.Setenv("API_TIMEOUT", "3s")
	t.Setenv("BROWSER_DRIVER", "ROD")

	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.APIWorkers)
	assert.Equal(t, 3*time.Second, cfg.APITimeout)
	assert.Equal(t, "rod", cfg.BrowserDriver)
}

func TestLoadFile_ReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.env")
	require.NoError(t, os.WriteFile(path, []byte("SERVER_PORT=9090\nLOG_LEVEL=debug\n"), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadFile_RejectsPostgresWithoutURL(t *testing.T) {
	t.Setenv("HISTORY_DRIVER", "postgres")

	_, err := LoadFile("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRES_URL")
}

func TestValidate_RejectsUnknownDriver(t *testing.T) {
	cfg := &Config{
		APIWorkers: 1, APITimeout: time.Second, TaskTimeout: time.Second,
		BrowserNavTimeout: time.Second, BrowserWaitTimeout: time.Second, BrowserTaskTimeout: time.Second,
		BrowserDriver: "selenium", HistoryDriver: "none", DefaultLimit: 10,
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "selenium")
}
