package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

// DefaultSDKURL is the CDN location of the Snowplow JavaScript tracker.
const DefaultSDKURL = "https://cdn.jsdelivr.net/npm/@snowplow/javascript-tracker@4/dist/sp.js"

// Config holds all harness configuration.
type Config struct {
	// Test doubles
	Collector CollectorConfig `yaml:"collector"`
	Content   ContentConfig   `yaml:"content"`

	// Tracker SDK
	Tracker TrackerConfig `yaml:"tracker"`

	// Extension under test
	Extension ExtensionConfig `yaml:"extension"`

	// Browser automation
	Browser BrowserConfig `yaml:"browser"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// CollectorConfig configures the collector double. It lives for the whole
// test session.
type CollectorConfig struct {
	Port int `yaml:"port" default:"9090"`
}

// ContentConfig configures the content double. It is restarted for every test.
type ContentConfig struct {
	Port int `yaml:"port" default:"9091"`
}

// TrackerConfig configures where the tracker SDK is fetched from.
type TrackerConfig struct {
	SDKURL       string `yaml:"sdk_url" default:"https://cdn.jsdelivr.net/npm/@snowplow/javascript-tracker@4/dist/sp.js"`
	FetchTimeout string `yaml:"fetch_timeout" default:"30s"`
}

// ExtensionConfig locates the built extension and its DevTools panel.
type ExtensionConfig struct {
	// Dir is the unpacked extension build containing manifest.json.
	Dir string `yaml:"dir" default:"dist"`
	// TabLabel is the aria-label of the extension's DevTools tab.
	TabLabel string `yaml:"tab_label" default:"Snowplow"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		// Tags are static; a failure here is a programming error.
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file over the defaults, then applies
// environment overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("COLLECTOR_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid COLLECTOR_PORT %q: %w", v, err)
		}
		c.Collector.Port = port
	}
	if v := os.Getenv("CONTENT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid CONTENT_PORT %q: %w", v, err)
		}
		c.Content.Port = port
	}
	if v := os.Getenv("JS_TRACKER_URL"); v != "" {
		c.Tracker.SDKURL = v
	}
	if v := os.Getenv("EXTENSION_DIR"); v != "" {
		c.Extension.Dir = v
	}
	if v := os.Getenv("HARNESS_WAIT_TIMEOUT"); v != "" {
		c.Browser.WaitTimeout = v
	}
	if v := os.Getenv("HARNESS_BROWSER_BIN"); v != "" {
		c.Browser.Bin = v
	}
	if v := os.Getenv("HARNESS_CONTROL_URL"); v != "" {
		c.Browser.ControlURL = v
	}
	if v := os.Getenv("HARNESS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return nil
}

// GetFetchTimeout returns the SDK fetch timeout as a duration.
func (c *Config) GetFetchTimeout() time.Duration {
	d, err := time.ParseDuration(c.Tracker.FetchTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validPort("collector", c.Collector.Port); err != nil {
		return err
	}
	if err := validPort("content", c.Content.Port); err != nil {
		return err
	}
	if c.Collector.Port != 0 && c.Collector.Port == c.Content.Port {
		return fmt.Errorf("collector and content doubles cannot share port %d", c.Collector.Port)
	}

	u, err := url.Parse(c.Tracker.SDKURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid tracker sdk_url: %q", c.Tracker.SDKURL)
	}

	if c.Extension.Dir == "" {
		return fmt.Errorf("extension dir not configured (set EXTENSION_DIR)")
	}
	if c.Extension.TabLabel == "" {
		return fmt.Errorf("extension tab_label must not be empty")
	}

	for _, d := range []struct{ name, value string }{
		{"browser wait_timeout", c.Browser.WaitTimeout},
		{"browser launch_timeout", c.Browser.LaunchTimeout},
		{"tracker fetch_timeout", c.Tracker.FetchTimeout},
	} {
		if err := validDuration(d.name, d.value); err != nil {
			return err
		}
	}
	return nil
}

func validDuration(name, value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	if d <= 0 {
		return fmt.Errorf("invalid %s %q: must be positive", name, value)
	}
	return nil
}

// validPort accepts 0, which asks the OS for an ephemeral port.
func validPort(name string, port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("invalid %s port: %d", name, port)
	}
	return nil
}
