package harness

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"inspectorharness/internal/browser"
	"inspectorharness/internal/doubles"
	"inspectorharness/internal/inspector"
	"inspectorharness/internal/logging"
	"inspectorharness/internal/sdk"
	"inspectorharness/internal/tracker"
)

// closeTimeout bounds releasing a fixture's servers.
const closeTimeout = 5 * time.Second

// Fixture is the per-test state: a content root served by its own content
// double and a browser with the extension loaded.
type Fixture struct {
	session *Session
	log     *zap.Logger

	Page      *sdk.Page
	Content   *doubles.Server
	Browser   browser.Backend
	Topology  browser.Topology
	Inspector *inspector.Activator
}

// NewFixture writes the test page and SDK into dir, serves dir, launches the
// browser and resolves its windows. On error everything already started is
// released.
func (s *Session) NewFixture(ctx context.Context, dir string) (f *Fixture, err error) {
	source, err := s.SDK.Get(ctx)
	if err != nil {
		return nil, err
	}
	page, err := sdk.WritePage(dir, source)
	if err != nil {
		return nil, err
	}

	f = &Fixture{
		session: s,
		log:     s.log.With(zap.String("run_id", page.RunID)),
		Page:    page,
	}
	defer func() {
		if err != nil {
			closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
			defer cancel()
			err = errors.Join(err, f.Close(closeCtx))
			f = nil
		}
	}()

	f.Content, err = doubles.StartContent(ctx, listenAddr(s.cfg.Content.Port), dir, logging.For(f.log, logging.CategoryContent))
	if err != nil {
		return f, err
	}

	launchCtx, cancel := context.WithTimeout(ctx, s.cfg.GetLaunchTimeout())
	defer cancel()
	f.Browser, err = s.launch(launchCtx, s.launchOptions(), logging.For(f.log, logging.CategoryBrowser))
	if err != nil {
		return f, fmt.Errorf("launch browser: %w", err)
	}

	f.Topology, err = ResolveTopology(ctx, f.Browser, s.Wait)
	if err != nil {
		return f, err
	}
	f.Inspector = inspector.New(f.Browser, f.Topology, s.Wait,
		inspector.WithTabLabel(s.cfg.Extension.TabLabel),
		inspector.WithLogger(logging.For(f.log, logging.CategoryInspector)),
	)

	f.log.Info("fixture ready",
		zap.String("page", f.PageURL()),
		zap.String("content_window", string(f.Topology.Content)),
		zap.String("devtools_window", string(f.Topology.DevTools)),
	)
	return f, nil
}

// PageURL is the generated test page as the browser reaches it.
func (f *Fixture) PageURL() string {
	return f.Content.URL() + "/"
}

// Tracker loads the test page, installs the SDK and creates one tracker per
// params entry pointed at the collector double.
func (f *Fixture) Tracker(ctx context.Context, params tracker.Params) (*tracker.Driver, error) {
	if err := tracker.InstallSDK(ctx, f.Browser, f.PageURL()); err != nil {
		return nil, err
	}
	return tracker.New(ctx, f.Browser, f.session.Endpoint(), params, logging.For(f.log, logging.CategoryTracker))
}

// Close quits the browser and stops the content double. It is safe to call
// on a partially built fixture.
func (f *Fixture) Close(ctx context.Context) error {
	var errs []error
	if f.Browser != nil {
		if err := f.Browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
	}
	if f.Content != nil {
		if err := f.Content.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Setup builds a fixture in t's temporary directory and closes it when t
// ends. It fails t immediately if the fixture cannot be built.
func (s *Session) Setup(t testing.TB) *Fixture {
	t.Helper()
	f, err := s.NewFixture(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("harness fixture: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := f.Close(ctx); err != nil {
			t.Errorf("close fixture: %v", err)
		}
	})
	return f
}
