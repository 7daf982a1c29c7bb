package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ExclusiveAccount/iot-dashboard/pkg/models"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, SourceMock, cfg.ScanSource)
	assert.Equal(t, 200*time.Millisecond, cfg.StepInterval)
	assert.Equal(t, 2*time.Second, cfg.AttackDelay)
}

func TestLoadConfigFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("network_name: Office\nscan_source: remote\nremote_url: http://10.0.0.5:8000\npoll_interval: 500ms\n")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := LoadConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Office", cfg.NetworkName)
	assert.Equal(t, SourceRemote, cfg.ScanSource)
	assert.Equal(t, "http://10.0.0.5:8000", cfg.RemoteURL)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	// untouched fields keep their defaults
	assert.Equal(t, 200*time.Millisecond, cfg.StepInterval)
}

func TestLoadConfigFromJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := []byte(`{"dashboard_port": "9090", "history_limit": 5}`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := LoadConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.DashboardPort)
	assert.Equal(t, 5, cfg.HistoryLimit)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("scan_source: capture\n"), 0o600))

	_, err := LoadConfigFromFile(path)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown source", func(c *Config) { c.ScanSource = "nmap" }},
		{"zero step", func(c *Config) { c.StepInterval = 0 }},
		{"negative attack delay", func(c *Config) { c.AttackDelay = -time.Second }},
		{"zero history", func(c *Config) { c.HistoryLimit = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.True(t, errors.Is(cfg.Validate(), ErrInvalidConfig))
		})
	}
}

func TestWriteResultsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")
	devices := []models.Device{{ID: "1", Name: "Router", Risk: models.RiskHigh}}

	require.NoError(t, WriteResultsToFile(devices, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"name": "Router"`)
	assert.Contains(t, string(data), `"risk": "high"`)
}
