package config

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level" default:"info"`     // debug, info, warn, error
	Format string `yaml:"format" default:"console"` // json, console
}
