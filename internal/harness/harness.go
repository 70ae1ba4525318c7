// Package harness wires the test doubles, the browser session and the
// inspector panel into fixtures for end-to-end scenarios.
//
// A Session holds what lives for a whole test run: the collector double and
// the cached tracker SDK. Each Fixture gets its own content root, content
// double and browser, and releases them on Close.
package harness

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"inspectorharness/internal/browser"
	"inspectorharness/internal/config"
	"inspectorharness/internal/doubles"
	"inspectorharness/internal/extension"
	"inspectorharness/internal/logging"
	"inspectorharness/internal/sdk"
	"inspectorharness/internal/wait"
)

// Launcher opens a browser session. browser.Launch is the production launcher.
type Launcher func(ctx context.Context, opts browser.LaunchOptions, log *zap.Logger) (browser.Backend, error)

// RodLauncher launches Chromium through go-rod.
func RodLauncher(ctx context.Context, opts browser.LaunchOptions, log *zap.Logger) (browser.Backend, error) {
	s, err := browser.Launch(ctx, opts, log)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Option configures a Session.
type Option func(*Session)

// WithLauncher replaces the browser launcher.
func WithLauncher(l Launcher) Option {
	return func(s *Session) {
		if l != nil {
			s.launch = l
		}
	}
}

// WithHTTPClient sets the client used to fetch the tracker SDK.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Session) {
		s.client = c
	}
}

// Session owns the resources shared by every fixture in a test run.
type Session struct {
	cfg          *config.Config
	log          *zap.Logger
	launch       Launcher
	client       *http.Client
	extensionDir string

	Collector *doubles.Server
	SDK       *sdk.Cache
	Wait      wait.Waiter
}

// Start checks the extension build and starts the collector double. A
// missing manifest fails before any server or browser is started.
func Start(ctx context.Context, cfg *config.Config, log *zap.Logger, opts ...Option) (*Session, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Session{
		cfg:    cfg,
		log:    log,
		launch: RodLauncher,
		Wait:   wait.New(cfg.GetWaitTimeout()),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: cfg.GetFetchTimeout()}
	}

	dir, err := extension.Check(cfg.Extension.Dir)
	if err != nil {
		logging.For(log, logging.CategoryExtension).Error("extension precondition failed", zap.Error(err))
		return nil, err
	}
	s.extensionDir = dir

	collector, err := doubles.StartCollector(ctx, listenAddr(cfg.Collector.Port), logging.For(log, logging.CategoryCollector))
	if err != nil {
		return nil, err
	}
	s.Collector = collector
	s.SDK = sdk.NewCache(cfg.Tracker.SDKURL, s.client, logging.For(log, logging.CategorySDK))

	log.Info("harness session started",
		zap.String("collector", collector.URL()),
		zap.String("extension", dir),
		zap.Duration("wait_timeout", s.Wait.Timeout),
	)
	return s, nil
}

// Endpoint is the collector URL trackers send to.
func (s *Session) Endpoint() string {
	return s.Collector.URL()
}

// ExtensionDir is the absolute path of the checked extension build.
func (s *Session) ExtensionDir() string {
	return s.extensionDir
}

// Close stops the collector double.
func (s *Session) Close(ctx context.Context) error {
	if s.Collector == nil {
		return nil
	}
	return s.Collector.Close(ctx)
}

func (s *Session) launchOptions() browser.LaunchOptions {
	return browser.LaunchOptions{
		ExtensionDir: s.extensionDir,
		ControlURL:   s.cfg.Browser.ControlURL,
		Bin:          s.cfg.Browser.Bin,
		Headless:     s.cfg.Browser.Headless,
		NoSandbox:    s.cfg.Browser.NoSandbox,
		Flags:        s.cfg.Browser.Flags,
	}
}

// ResolveTopology waits until the browser shows both a content window and
// a DevTools window, then makes the content window active. The last
// classification failure is kept in the returned error's chain.
func ResolveTopology(ctx context.Context, b browser.Backend, w wait.Waiter) (browser.Topology, error) {
	topo, err := wait.Until(ctx, w, "unable to access the DevTools pane", func(ctx context.Context) (browser.Topology, error) {
		topo, err := browser.Resolve(ctx, b)
		var te *browser.TopologyError
		if err != nil && !errors.As(err, &te) {
			return browser.Topology{}, wait.Stop(err)
		}
		return topo, err
	})
	if err != nil {
		return browser.Topology{}, err
	}
	if err := b.SwitchToWindow(ctx, topo.Content); err != nil {
		return browser.Topology{}, fmt.Errorf("switch to content window: %w", err)
	}
	return topo, nil
}

func listenAddr(port int) string {
	return net.JoinHostPort("", strconv.Itoa(port))
}
