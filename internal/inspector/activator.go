// Package inspector opens the Snowplow Inspector panel inside a DevTools
// window and makes its frame the active browsing context.
package inspector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"inspectorharness/internal/browser"
	"inspectorharness/internal/wait"
)

// Diagnostics reported when a step never completes.
const (
	MsgNoBody      = "couldn't find body in DevTools"
	MsgNoMainPanel = "couldn't access main panel of DevTools"
	MsgNoTab       = "Unable to find Inspector tab"
	MsgNoContent   = "couldn't find Inspector content"
)

const (
	// DefaultTabLabel is the aria-label of the extension's DevTools tab.
	DefaultTabLabel = "Snowplow"
	// MainPanelSelector matches DevTools' tabbed panel container.
	MainPanelSelector = ".main-tabbed-pane"
)

// State is a step of the activation sequence. States only move forward.
type State int

const (
	StateIdle State = iota
	StateSwitchedToDevTools
	StateBodyFound
	StateDockForced
	StateMainPanelFound
	StateTabActivated
	StateFrameEntered
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSwitchedToDevTools:
		return "switched-to-devtools"
	case StateBodyFound:
		return "body-found"
	case StateDockForced:
		return "dock-forced"
	case StateMainPanelFound:
		return "main-panel-found"
	case StateTabActivated:
		return "tab-activated"
	case StateFrameEntered:
		return "frame-entered"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DockPolicy decides whether DevTools is docked so that the extension's tab
// is rendered directly, and which chord to send when it is not. In a
// side-docked layout the tab may sit in an overflow menu that is not in the
// document yet.
type DockPolicy struct {
	// IsDocked inspects the DevTools body's class attribute.
	IsDocked func(class string) bool
	// Chord toggles the dock position.
	Chord browser.Chord
}

// BottomDock is the default policy: Chromium marks a bottom-docked DevTools
// body with a class containing "bottom" and toggles docking on Ctrl+Shift+D.
func BottomDock() DockPolicy {
	return DockPolicy{
		IsDocked: func(class string) bool { return strings.Contains(class, "bottom") },
		Chord:    browser.Chord{Modifiers: browser.ModCtrl | browser.ModShift, Key: 'd'},
	}
}

// Option configures an Activator.
type Option func(*Activator)

// WithTabLabel overrides the aria-label of the tab to activate.
func WithTabLabel(label string) Option {
	return func(a *Activator) {
		if label != "" {
			a.tabLabel = label
		}
	}
}

// WithDockPolicy replaces the docking heuristic.
func WithDockPolicy(p DockPolicy) Option {
	return func(a *Activator) {
		if p.IsDocked != nil {
			a.dock = p
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(a *Activator) {
		if log != nil {
			a.log = log
		}
	}
}

// Activator drives a resolved DevTools window to the extension's panel.
type Activator struct {
	b        browser.Backend
	topo     browser.Topology
	w        wait.Waiter
	tabLabel string
	dock     DockPolicy
	log      *zap.Logger
	state    State
}

// New returns an Activator for the given window pair.
func New(b browser.Backend, topo browser.Topology, w wait.Waiter, opts ...Option) *Activator {
	a := &Activator{
		b:        b,
		topo:     topo,
		w:        w,
		tabLabel: DefaultTabLabel,
		dock:     BottomDock(),
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// State returns the last state reached by Open.
func (a *Activator) State() State {
	return a.state
}

func (a *Activator) advance(s State) {
	a.state = s
	a.log.Debug("inspector state", zap.Stringer("state", s))
}

// Open switches to DevTools and enters the extension panel's frame. On
// success every later query runs inside the extension's document until the
// caller switches away.
func (a *Activator) Open(ctx context.Context) error {
	a.state = StateIdle
	if !a.topo.Complete() {
		return fmt.Errorf("open inspector: incomplete topology %+v", a.topo)
	}

	if err := a.b.SwitchToWindow(ctx, a.topo.DevTools); err != nil {
		return fmt.Errorf("switch to devtools: %w", err)
	}
	a.advance(StateSwitchedToDevTools)

	body, err := wait.Until(ctx, a.w, MsgNoBody, func(ctx context.Context) (browser.Element, error) {
		return a.b.Find(ctx, "body")
	})
	if err != nil {
		return err
	}
	a.advance(StateBodyFound)

	class, _, err := body.Attribute(ctx, "class")
	if err != nil {
		return fmt.Errorf("read devtools body class: %w", err)
	}
	if !a.dock.IsDocked(class) {
		a.log.Info("forcing devtools dock", zap.String("class", class), zap.Stringer("chord", a.dock.Chord))
		if err := body.SendChord(ctx, a.dock.Chord); err != nil {
			return fmt.Errorf("send dock chord %s: %w", a.dock.Chord, err)
		}
		a.advance(StateDockForced)
	}

	main, err := wait.Until(ctx, a.w, MsgNoMainPanel, func(ctx context.Context) (browser.Element, error) {
		return body.Find(ctx, MainPanelSelector)
	})
	if err != nil {
		return err
	}
	a.advance(StateMainPanelFound)

	tabSelector := "[aria-label=" + cssString(a.tabLabel) + "]"
	tab, err := wait.Until(ctx, a.w, MsgNoTab, func(ctx context.Context) (browser.Element, error) {
		root, err := main.ShadowRoot(ctx)
		if err != nil {
			return nil, err
		}
		return root.Find(ctx, tabSelector)
	})
	if err != nil {
		return err
	}
	if err := tab.Click(ctx); err != nil {
		return fmt.Errorf("click inspector tab: %w", err)
	}
	a.advance(StateTabActivated)

	// The last frame is assumed to be the live panel; earlier ones may be
	// placeholders from the panel's startup.
	frame, err := wait.Until(ctx, a.w, MsgNoContent, func(ctx context.Context) (browser.Element, error) {
		frames, err := main.FindAll(ctx, "iframe")
		if err != nil || len(frames) == 0 {
			return nil, err
		}
		return frames[len(frames)-1], nil
	})
	if err != nil {
		return err
	}
	if err := a.b.SwitchToFrame(ctx, frame); err != nil {
		return fmt.Errorf("enter inspector frame: %w", err)
	}
	a.advance(StateFrameEntered)
	return nil
}

// With opens the panel, runs fn inside it and switches back to the content
// window on every exit path, including a panic in fn. An error from Open or
// fn is returned ahead of a failure to switch back; both are joined.
func (a *Activator) With(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		restoreCtx := context.WithoutCancel(ctx)
		if rerr := a.b.SwitchToWindow(restoreCtx, a.topo.Content); rerr != nil {
			err = errors.Join(err, fmt.Errorf("switch back to content window: %w", rerr))
		}
	}()

	if err := a.Open(ctx); err != nil {
		a.log.Warn("inspector did not open", zap.Stringer("state", a.state), zap.Error(err))
		return err
	}
	return fn(ctx)
}

// cssString quotes s as a CSS string token, following the CSSOM
// "serialize a string" rules.
func cssString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch {
		case r == 0:
			b.WriteRune('\uFFFD')
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&b, "\\%x ", r)
		case r == '"' || r == '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
