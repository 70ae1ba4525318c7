package config

import "time"

// BrowserConfig configures the Chromium instance driven by the harness.
type BrowserConfig struct {
	// Bin overrides the Chromium binary. Empty lets the launcher find or download one.
	Bin string `yaml:"bin"`
	// Flags are extra command-line switches, with or without leading dashes.
	Flags []string `yaml:"flags"`
	// ControlURL attaches to an already running Chromium (its DevTools
	// websocket URL) instead of launching one.
	ControlURL string `yaml:"control_url"`
	// Headless runs Chromium without a window. DevTools windows only open
	// with the new headless mode, so keep it off unless the build supports it.
	Headless bool `yaml:"headless"`
	// NoSandbox is needed when running as root inside containers.
	NoSandbox bool `yaml:"no_sandbox"`
	// WaitTimeout bounds every wait on browser-rendered state.
	WaitTimeout string `yaml:"wait_timeout" default:"3s"`
	// LaunchTimeout bounds starting Chromium and opening the first tab.
	LaunchTimeout string `yaml:"launch_timeout" default:"60s"`
}

// GetWaitTimeout returns the wait timeout as a duration.
func (c *Config) GetWaitTimeout() time.Duration {
	d, err := time.ParseDuration(c.Browser.WaitTimeout)
	if err != nil || d <= 0 {
		return 3 * time.Second
	}
	return d
}

// GetLaunchTimeout returns the browser launch timeout as a duration.
func (c *Config) GetLaunchTimeout() time.Duration {
	d, err := time.ParseDuration(c.Browser.LaunchTimeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}
