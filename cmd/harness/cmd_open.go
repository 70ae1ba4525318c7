package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"inspectorharness/internal/harness"
	"inspectorharness/internal/tracker"
)

var (
	trackerFlags  []string
	trackCommands []string
)

// openCmd reproduces a scenario interactively.
var openCmd = &cobra.Command{
	Use:   "open",
	Short: "Launch Chromium with the extension, fire events and open the Inspector panel",
	Long: `Starts the doubles, launches Chromium with the built extension, installs
one tracker per --tracker flag (a single default tracker if none), runs
each --track command and leaves the Inspector panel open until interrupted.

Example:
  harness open --tracker '{"appId": "tracker1"}' --tracker '{"appId": "tracker2"}'`,
	RunE: runOpen,
}

func parseTrackerFlags(raw []string) (tracker.Params, error) {
	params := make(tracker.Params, 0, len(raw))
	for _, r := range raw {
		var c tracker.Config
		if err := yaml.Unmarshal([]byte(r), &c); err != nil {
			return nil, fmt.Errorf("invalid --tracker %q: %w", r, err)
		}
		if c == nil {
			c = tracker.Config{}
		}
		params = append(params, c)
	}
	if len(params) == 0 {
		return tracker.DefaultParams(), nil
	}
	return params, nil
}

func runOpen(cmd *cobra.Command, args []string) error {
	params, err := parseTrackerFlags(trackerFlags)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	session, err := harness.Start(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		if err := session.Close(closeCtx); err != nil {
			logger.Warn("failed to close collector", zap.Error(err))
		}
	}()

	root, err := os.MkdirTemp("", "inspector-content-")
	if err != nil {
		return fmt.Errorf("create content root: %w", err)
	}
	defer os.RemoveAll(root)

	f, err := session.NewFixture(ctx, root)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		if err := f.Close(closeCtx); err != nil {
			logger.Warn("failed to close fixture", zap.Error(err))
		}
	}()

	driver, err := f.Tracker(ctx, params)
	if err != nil {
		return err
	}
	for _, command := range trackCommands {
		if err := driver.Track(ctx, command); err != nil {
			return fmt.Errorf("%s: %w", command, err)
		}
	}
	logger.Info("trackers ready", zap.Strings("namespaces", driver.Namespaces()), zap.Strings("commands", trackCommands))

	if err := f.Inspector.Open(ctx); err != nil {
		return err
	}
	fmt.Printf("Inspector panel open (%s). Press Ctrl+C to shutdown\n", f.Inspector.State())

	<-ctx.Done()
	return nil
}
