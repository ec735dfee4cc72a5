package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradeguard/download"
)

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.95, cfg.Risk.PositionLimit)
	assert.Equal(t, 100, cfg.Risk.OrderLimit)

	d, err := cfg.Download.ParseTimeout()
	require.NoError(t, err)
	assert.Equal(t, download.DefaultTimeout, d)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"ratio above one", func(c *Config) { c.Risk.PositionLimit = 1.5 }, "risk.position_limit: failed lte=1"},
		{"negative ratio", func(c *Config) { c.Risk.DailyLossLimit = -0.1 }, "risk.daily_loss_limit: failed gte=0"},
		{"zero order limit", func(c *Config) { c.Risk.OrderLimit = 0 }, "risk.order_limit: failed gte=1"},
		{"zero capital", func(c *Config) { c.Risk.InitCapital = 0 }, "risk.init_capital: failed gt=0"},
		{"bad timeout", func(c *Config) { c.Download.Timeout = "soon" }, "download.timeout: failed duration"},
		{"negative timeout", func(c *Config) { c.Download.Timeout = "-5s" }, "download.timeout: failed duration"},
		{"no hosts", func(c *Config) { c.Download.AllowedHosts = nil }, "download.allowed_hosts: failed min=1"},
		{"bad host", func(c *Config) { c.Download.AllowedHosts = []string{"bad host!"} }, "download.allowed_hosts[0]: failed hostname_rfc1123"},
		{"journal type", func(c *Config) { c.Journal.Type = "csv" }, "journal.type: failed oneof=none sqlite"},
		{"sqlite without path", func(c *Config) { c.Journal.Type = "sqlite" }, "journal.db_path: failed required_if=Type sqlite"},
		{"log level", func(c *Config) { c.Log.Level = "trace" }, "log.level: failed oneof"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateReportsEveryField(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Risk.LossLimit = 2
	cfg.Log.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "risk.loss_limit")
	assert.Contains(t, err.Error(), "log.format")
}

func TestSaveAndLoad(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"tradeguard.yaml", "tradeguard.yml", "tradeguard.json"} {
		name := name
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), name)
			cfg := Default()
			cfg.Risk.OrderLimit = 25
			cfg.Security.BaseDir = "/srv/strategies"
			cfg.Journal = JournalConfig{Type: "sqlite", DBPath: "/var/lib/tradeguard.db"}
			require.NoError(t, cfg.SaveToFile(path))

			got, err := LoadFromFile(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, got)
		})
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(path, []byte("risk:\n  order_limit: 10\ndownload:\n  timeout: 5s\n"), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Risk.OrderLimit)
	assert.Equal(t, 0.95, cfg.Risk.PositionLimit)
	assert.Equal(t, 1_000_000.0, cfg.Risk.InitCapital)
	assert.Equal(t, download.DefaultAllowedHosts, cfg.Download.AllowedHosts)

	d, err := cfg.Download.ParseTimeout()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, d)
}

func TestLoadFromFileErrors(t *testing.T) {
	t.Parallel()

	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config file")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("risk: [unclosed"), 0o644))
	_, err = LoadFromFile(bad)
	assert.ErrorContains(t, err, "parse config")

	invalid := filepath.Join(t.TempDir(), "invalid.json")
	require.NoError(t, os.WriteFile(invalid, []byte(`{"journal": {"type": "csv"}}`), 0o644))
	_, err = LoadFromFile(invalid)
	assert.ErrorContains(t, err, "invalid config")
}
