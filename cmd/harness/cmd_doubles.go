package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"inspectorharness/internal/doubles"
	"inspectorharness/internal/logging"
	"inspectorharness/internal/sdk"
)

// doublesCmd serves the collector and a generated test page without a browser.
var doublesCmd = &cobra.Command{
	Use:   "doubles",
	Short: "Run the collector and content doubles until interrupted",
	Long: `Starts the collector double and a content double serving a freshly
generated test page plus the tracker SDK, so the page can be opened in any
browser with the extension installed by hand.`,
	RunE: runDoubles,
}

func runDoubles(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	fetchCtx, fetchCancel := context.WithTimeout(ctx, cfg.GetFetchTimeout())
	source, err := sdk.NewCache(cfg.Tracker.SDKURL, nil, logging.For(logger, logging.CategorySDK)).Get(fetchCtx)
	fetchCancel()
	if err != nil {
		return err
	}

	root, err := os.MkdirTemp("", "inspector-content-")
	if err != nil {
		return fmt.Errorf("create content root: %w", err)
	}
	defer os.RemoveAll(root)

	page, err := sdk.WritePage(root, source)
	if err != nil {
		return err
	}

	collector, err := doubles.StartCollector(ctx, addr(cfg.Collector.Port), logging.For(logger, logging.CategoryCollector))
	if err != nil {
		return err
	}
	defer closeServer(collector)

	content, err := doubles.StartContent(ctx, addr(cfg.Content.Port), root, logging.For(logger, logging.CategoryContent))
	if err != nil {
		return err
	}
	defer closeServer(content)

	fmt.Printf("Collector: %s\n", collector.URL())
	fmt.Printf("Test page: %s/ (%s)\n", content.URL(), page.Title)
	fmt.Println("Press Ctrl+C to shutdown")

	<-ctx.Done()
	return nil
}

func addr(port int) string {
	return net.JoinHostPort("", strconv.Itoa(port))
}

func closeServer(s *doubles.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		logger.Warn("failed to close test double", zap.String("url", s.URL()), zap.Error(err))
	}
}
