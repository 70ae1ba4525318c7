package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every override so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"COLLECTOR_PORT", "CONTENT_PORT", "JS_TRACKER_URL", "EXTENSION_DIR",
		"HARNESS_WAIT_TIMEOUT", "HARNESS_BROWSER_BIN", "HARNESS_LOG_LEVEL",
		"HARNESS_CONTROL_URL",
	} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 9090, cfg.Collector.Port)
	assert.Equal(t, 9091, cfg.Content.Port)
	assert.Equal(t, DefaultSDKURL, cfg.Tracker.SDKURL)
	assert.Equal(t, "dist", cfg.Extension.Dir)
	assert.Equal(t, "Snowplow", cfg.Extension.TabLabel)
	assert.Equal(t, 3*time.Second, cfg.GetWaitTimeout())
	assert.Equal(t, 60*time.Second, cfg.GetLaunchTimeout())
	assert.Equal(t, 30*time.Second, cfg.GetFetchTimeout())
	assert.Equal(t, "info", cfg.Logging.Level)
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestConfig_SaveLoad(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "harness.yaml")

	cfg := DefaultConfig()
	cfg.Collector.Port = 19090
	cfg.Browser.Flags = []string{"--no-first-run"}
	cfg.Extension.TabLabel = "Inspector"
	cfg.Browser.Headless = true
	cfg.Browser.ControlURL = "ws://127.0.0.1:9222/devtools/browser/abc"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "harness.yaml")
	require.NoError(t, os.WriteFile(path, []byte("content:\n  port: 8000\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Content.Port)
	assert.Equal(t, 9090, cfg.Collector.Port)
	assert.Equal(t, "3s", cfg.Browser.WaitTimeout)
}

func TestLoad_BadYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "harness.yaml")
	require.NoError(t, os.WriteFile(path, []byte("collector: [unclosed"), 0644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestEnvOverrides(t *testing.T) {
	t.Run("ports and urls", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("COLLECTOR_PORT", "7000")
		t.Setenv("CONTENT_PORT", "7001")
		t.Setenv("JS_TRACKER_URL", "http://localhost:1234/sp.js")
		t.Setenv("EXTENSION_DIR", "/tmp/ext")
		t.Setenv("HARNESS_WAIT_TIMEOUT", "10s")
		t.Setenv("HARNESS_BROWSER_BIN", "/usr/bin/chromium")
		t.Setenv("HARNESS_LOG_LEVEL", "debug")
		t.Setenv("HARNESS_CONTROL_URL", "ws://127.0.0.1:9222/devtools/browser/abc")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, 7000, cfg.Collector.Port)
		assert.Equal(t, 7001, cfg.Content.Port)
		assert.Equal(t, "http://localhost:1234/sp.js", cfg.Tracker.SDKURL)
		assert.Equal(t, "/tmp/ext", cfg.Extension.Dir)
		assert.Equal(t, 10*time.Second, cfg.GetWaitTimeout())
		assert.Equal(t, "/usr/bin/chromium", cfg.Browser.Bin)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "ws://127.0.0.1:9222/devtools/browser/abc", cfg.Browser.ControlURL)
	})

	t.Run("env wins over file", func(t *testing.T) {
		clearEnv(t)
		path := filepath.Join(t.TempDir(), "harness.yaml")
		require.NoError(t, os.WriteFile(path, []byte("collector:\n  port: 8000\n"), 0644))
		t.Setenv("COLLECTOR_PORT", "8100")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 8100, cfg.Collector.Port)
	})

	t.Run("invalid port", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CONTENT_PORT", "ninety")
		_, err := Load("")
		assert.ErrorContains(t, err, "CONTENT_PORT")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"ephemeral ports", func(c *Config) { c.Collector.Port, c.Content.Port = 0, 0 }, ""},
		{"port out of range", func(c *Config) { c.Collector.Port = 70000 }, "invalid collector port"},
		{"shared port", func(c *Config) { c.Content.Port = c.Collector.Port }, "cannot share port"},
		{"bad sdk url", func(c *Config) { c.Tracker.SDKURL = "ftp://cdn/sp.js" }, "sdk_url"},
		{"no extension dir", func(c *Config) { c.Extension.Dir = "" }, "extension dir"},
		{"no tab label", func(c *Config) { c.Extension.TabLabel = "" }, "tab_label"},
		{"bad wait timeout", func(c *Config) { c.Browser.WaitTimeout = "soon" }, "wait_timeout"},
		{"bad launch timeout", func(c *Config) { c.Browser.LaunchTimeout = "a minute" }, "launch_timeout"},
		{"negative launch timeout", func(c *Config) { c.Browser.LaunchTimeout = "-1s" }, "launch_timeout"},
		{"bad fetch timeout", func(c *Config) { c.Tracker.FetchTimeout = "" }, "fetch_timeout"},
		{"zero fetch timeout", func(c *Config) { c.Tracker.FetchTimeout = "0s" }, "fetch_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestDurationGettersFallBack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Browser.WaitTimeout = "nonsense"
	cfg.Browser.LaunchTimeout = "-1s"
	cfg.Tracker.FetchTimeout = ""
	assert.Equal(t, 3*time.Second, cfg.GetWaitTimeout())
	assert.Equal(t, 60*time.Second, cfg.GetLaunchTimeout())
	assert.Equal(t, 30*time.Second, cfg.GetFetchTimeout())
}
