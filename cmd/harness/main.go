// Command harness runs the pieces of the Snowplow Inspector end-to-end
// harness by hand: the test doubles, a browser with the extension and its
// panel opened, and the extension build checks.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"inspectorharness/internal/config"
	"inspectorharness/internal/logging"
)

var (
	// Global flags
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "harness",
	Short: "End-to-end harness for the Snowplow Inspector DevTools extension",
	Long: `harness drives Chromium with the Snowplow Inspector extension loaded,
points Snowplow trackers at a local collector double and opens the
extension's DevTools panel.

Configuration is read from --config (YAML) and overridden by COLLECTOR_PORT,
CONTENT_PORT, JS_TRACKER_URL, EXTENSION_DIR, HARNESS_WAIT_TIMEOUT,
HARNESS_BROWSER_BIN, HARNESS_CONTROL_URL and HARNESS_LOG_LEVEL.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		logger, err = logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
		if err != nil {
			return err
		}
		logBoot(logger, configPath, cfg)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "harness.yaml", "Config file (missing file means defaults)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	openCmd.Flags().StringArrayVar(&trackerFlags, "tracker", nil, `Tracker options as YAML/JSON, once per tracker (e.g. '{"appId": "a"}')`)
	openCmd.Flags().StringArrayVar(&trackCommands, "track", []string{"trackPageView"}, "Tracker command to run after setup, may repeat")

	rootCmd.AddCommand(doublesCmd)
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(waitBuildCmd)
}

// logBoot records the effective configuration under the boot category.
func logBoot(log *zap.Logger, path string, cfg *config.Config) {
	logging.For(log, logging.CategoryBoot).Debug("configuration loaded",
		zap.String("path", path),
		zap.Int("collector_port", cfg.Collector.Port),
		zap.Int("content_port", cfg.Content.Port),
		zap.String("sdk_url", cfg.Tracker.SDKURL),
		zap.String("extension_dir", cfg.Extension.Dir),
		zap.String("wait_timeout", cfg.Browser.WaitTimeout),
		zap.Bool("headless", cfg.Browser.Headless),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			logger.Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
