package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// LaunchOptions configures the Chromium instance.
type LaunchOptions struct {
	// ExtensionDir is the absolute path of the unpacked extension.
	ExtensionDir string
	// ControlURL attaches to an already running browser instead of launching.
	ControlURL string
	Bin        string
	Headless   bool
	NoSandbox  bool
	// Flags are extra switches such as "--lang=en" or "window-size=1920,1080".
	Flags []string
	// StartURL is loaded in the first tab. Defaults to about:blank.
	StartURL string
}

// Session is a live rod connection to one Chromium instance. It implements
// Backend by tracking the active window and, inside it, the active frame.
type Session struct {
	log      *zap.Logger
	launcher *launcher.Launcher
	browser  *rod.Browser

	mu     sync.Mutex
	pages  map[Handle]*rod.Page
	window Handle
	scope  *rod.Page // the window's page, or the frame entered within it

	closeOnce sync.Once
	closeErr  error
}

var _ Backend = (*Session)(nil)

// Launch starts Chromium with the extension loaded and DevTools opening for
// every tab, then opens the first tab. ctx bounds the connection handshake
// and first tab only; the browser outlives it until Close.
func Launch(ctx context.Context, opts LaunchOptions, log *zap.Logger) (*Session, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Session{log: log, pages: make(map[Handle]*rod.Page)}

	controlURL := opts.ControlURL
	if controlURL == "" {
		l := newLauncher(opts)
		url, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		s.launcher = l
		controlURL = url
	}

	// No default device: emulating a viewport on the DevTools window would
	// shrink it back to a side-docked layout.
	b := rod.New().ControlURL(controlURL).NoDefaultDevice()
	if err := b.Connect(); err != nil {
		s.cleanupLauncher()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	s.browser = b

	startURL := opts.StartURL
	if startURL == "" {
		startURL = "about:blank"
	}
	page, err := b.Context(ctx).Page(proto.TargetCreateTarget{URL: startURL})
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("create page: %w", err)
	}
	page = page.Context(context.Background())

	h := Handle(page.TargetID)
	s.pages[h] = page
	s.window, s.scope = h, page

	log.Info("browser session started",
		zap.String("control_url", controlURL),
		zap.String("extension", opts.ExtensionDir),
		zap.String("first_window", string(h)),
	)
	return s, nil
}

func newLauncher(opts LaunchOptions) *launcher.Launcher {
	l := launcher.New().
		Headless(opts.Headless).
		Set("auto-open-devtools-for-tabs").
		Set("start-maximized")
	if opts.ExtensionDir != "" {
		// Recent Chrome ignores --load-extension unless this feature is off.
		l = l.Set("load-extension", opts.ExtensionDir).
			Append("disable-features", "DisableLoadExtensionCommandLineSwitch")
	}
	if opts.Bin != "" {
		l = l.Bin(opts.Bin)
	}
	if opts.NoSandbox {
		l = l.NoSandbox(true)
	}
	for _, rawFlag := range opts.Flags {
		flagStr := strings.TrimLeft(rawFlag, "-")
		name, val, hasVal := strings.Cut(flagStr, "=")
		if hasVal {
			l = l.Set(flags.Flag(name), val)
		} else {
			l = l.Set(flags.Flag(name))
		}
	}
	return l
}

// Handles lists page targets first, then "other" targets, which is where
// Chromium puts DevTools windows.
func (s *Session) Handles(ctx context.Context) ([]Handle, error) {
	res, err := proto.TargetGetTargets{}.Call(s.browser.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("get targets: %w", err)
	}
	var pages, others []Handle
	for _, info := range res.TargetInfos {
		switch string(info.Type) {
		case "page":
			pages = append(pages, Handle(info.TargetID))
		case "other":
			others = append(others, Handle(info.TargetID))
		}
	}
	return append(pages, others...), nil
}

func (s *Session) page(h Handle) (*rod.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pages[h]; ok {
		return p, nil
	}
	p, err := s.browser.PageFromTarget(proto.TargetTargetID(h))
	if err != nil {
		return nil, fmt.Errorf("attach to target %s: %w", h, err)
	}
	s.pages[h] = p
	return p, nil
}

// SwitchToWindow implements Backend.
func (s *Session) SwitchToWindow(ctx context.Context, h Handle) error {
	p, err := s.page(h)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.window, s.scope = h, p
	s.mu.Unlock()
	s.log.Debug("switched window", zap.String("handle", string(h)))
	return nil
}

// Current implements Backend.
func (s *Session) Current() Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window
}

func (s *Session) active() (*rod.Page, *rod.Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pages[s.window], s.scope
}

// Title implements Backend.
func (s *Session) Title(ctx context.Context) (string, error) {
	win, _ := s.active()
	if win == nil {
		return "", errors.New("no active window")
	}
	info, err := win.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("target info: %w", err)
	}
	return info.Title, nil
}

// Navigate implements Backend.
func (s *Session) Navigate(ctx context.Context, url string) error {
	win, _ := s.active()
	if win == nil {
		return errors.New("no active window")
	}
	p := win.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait for %s to load: %w", url, err)
	}
	s.mu.Lock()
	s.scope = win
	s.mu.Unlock()
	return nil
}

// Find implements Backend.
func (s *Session) Find(ctx context.Context, selector string) (Element, error) {
	_, scope := s.active()
	return first(scope, selector, func() (rod.Elements, error) {
		return scope.Context(ctx).Elements(selector)
	})
}

// FindAll implements Backend.
func (s *Session) FindAll(ctx context.Context, selector string) ([]Element, error) {
	_, scope := s.active()
	els, err := scope.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", selector, err)
	}
	return wrap(scope, els), nil
}

// SwitchToFrame implements Backend. Extension panels are cross-origin
// iframes that Chromium may run out of process; those are attached through
// their own iframe target, matched by URL, before falling back to rod's
// in-process frame lookup.
func (s *Session) SwitchToFrame(ctx context.Context, frame Element) error {
	el, ok := frame.(*element)
	if !ok {
		return fmt.Errorf("switch to frame: element %T does not belong to this session", frame)
	}

	fr, err := s.oopifFrame(ctx, el)
	if err != nil {
		return err
	}
	if fr == nil {
		fr, err = el.el.Context(ctx).Frame()
		if err != nil {
			return fmt.Errorf("enter frame: %w", err)
		}
	}

	s.mu.Lock()
	s.scope = fr.Context(context.Background())
	s.mu.Unlock()
	return nil
}

func (s *Session) oopifFrame(ctx context.Context, el *element) (*rod.Page, error) {
	src, ok, err := el.Attribute(ctx, "src")
	if err != nil || !ok || src == "" {
		return nil, err
	}
	res, err := proto.TargetGetTargets{}.Call(s.browser.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("get targets: %w", err)
	}
	for _, info := range res.TargetInfos {
		if string(info.Type) == "iframe" && info.URL == src {
			p, err := s.browser.PageFromTarget(info.TargetID)
			if err != nil {
				return nil, fmt.Errorf("attach to frame target %s: %w", info.TargetID, err)
			}
			return p, nil
		}
	}
	return nil, nil
}

// Execute implements Backend. js must be a function expression; rod passes
// args as its parameters.
func (s *Session) Execute(ctx context.Context, js string, args ...any) (any, error) {
	_, scope := s.active()
	res, err := scope.Context(ctx).Eval(js, args...)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	return res.Value.Val(), nil
}

// Close closes the browser and, if this session launched it, waits for the
// process to exit and removes its profile directory.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.browser != nil {
			s.closeErr = s.browser.Close()
		}
		s.cleanupLauncher()
		s.log.Info("browser session closed", zap.Error(s.closeErr))
	})
	return s.closeErr
}

func (s *Session) cleanupLauncher() {
	if s.launcher != nil {
		s.launcher.Cleanup()
		s.launcher = nil
	}
}

// element adapts *rod.Element to Element.
type element struct {
	el   *rod.Element
	page *rod.Page
}

func first(page *rod.Page, selector string, query func() (rod.Elements, error)) (Element, error) {
	els, err := query()
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", selector, err)
	}
	if len(els) == 0 {
		return nil, noSuchElement(selector)
	}
	return &element{el: els[0], page: page}, nil
}

func wrap(page *rod.Page, els rod.Elements) []Element {
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &element{el: el, page: page})
	}
	return out
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", false, fmt.Errorf("read attribute %s: %w", name, err)
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (e *element) Find(ctx context.Context, selector string) (Element, error) {
	return first(e.page, selector, func() (rod.Elements, error) {
		return e.el.Context(ctx).Elements(selector)
	})
}

func (e *element) FindAll(ctx context.Context, selector string) ([]Element, error) {
	els, err := e.el.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", selector, err)
	}
	return wrap(e.page, els), nil
}

func (e *element) ShadowRoot(ctx context.Context) (Element, error) {
	root, err := e.el.Context(ctx).ShadowRoot()
	if err != nil {
		return nil, fmt.Errorf("shadow root: %w", err)
	}
	return &element{el: root, page: e.page}, nil
}

func (e *element) Click(ctx context.Context) error {
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

func (e *element) SendChord(ctx context.Context, chord Chord) error {
	key, err := keyFor(chord.Key)
	if err != nil {
		return err
	}
	if err := e.el.Context(ctx).Focus(); err != nil {
		return fmt.Errorf("focus: %w", err)
	}

	var mods []input.Key
	if chord.Modifiers&ModCtrl != 0 {
		mods = append(mods, input.ControlLeft)
	}
	if chord.Modifiers&ModShift != 0 {
		mods = append(mods, input.ShiftLeft)
	}
	if chord.Modifiers&ModAlt != 0 {
		mods = append(mods, input.AltLeft)
	}
	if chord.Modifiers&ModMeta != 0 {
		mods = append(mods, input.MetaLeft)
	}
	if err := e.page.Context(ctx).KeyActions().Press(mods...).Type(key).Do(); err != nil {
		return fmt.Errorf("send %s: %w", chord, err)
	}
	return nil
}

var letterKeys = [...]input.Key{
	input.KeyA, input.KeyB, input.KeyC, input.KeyD, input.KeyE, input.KeyF, input.KeyG,
	input.KeyH, input.KeyI, input.KeyJ, input.KeyK, input.KeyL, input.KeyM, input.KeyN,
	input.KeyO, input.KeyP, input.KeyQ, input.KeyR, input.KeyS, input.KeyT, input.KeyU,
	input.KeyV, input.KeyW, input.KeyX, input.KeyY, input.KeyZ,
}

// keyFor maps a chord letter to its physical key.
func keyFor(r rune) (input.Key, error) {
	switch {
	case r >= 'a' && r <= 'z':
		return letterKeys[r-'a'], nil
	case r >= 'A' && r <= 'Z':
		return letterKeys[r-'A'], nil
	}
	return 0, fmt.Errorf("unsupported chord key %q", r)
}
