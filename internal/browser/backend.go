// Package browser drives the two-window topology the harness depends on: the
// content tab and the DevTools window the browser opens beside it.
//
// Backend is the capability set the harness needs from an automation driver.
// Session implements it on top of go-rod; browsertest provides an in-memory
// implementation for unit tests.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Handle identifies one top-level browser window or tab.
type Handle string

// ErrNoSuchElement is returned (wrapped) when a query matches nothing.
var ErrNoSuchElement = errors.New("no such element")

// Backend is an automation connection with a single active browsing context,
// in the WebDriver sense: element queries and scripts run against the window
// or frame most recently switched to.
type Backend interface {
	// Handles lists every open window.
	Handles(ctx context.Context) ([]Handle, error)
	// SwitchToWindow makes h the active window and leaves any entered frame.
	SwitchToWindow(ctx context.Context, h Handle) error
	// Current returns the active window.
	Current() Handle
	// Title returns the active window's document title.
	Title(ctx context.Context) (string, error)
	// Navigate loads url in the active window and waits for it to load.
	Navigate(ctx context.Context, url string) error
	// Find returns the first element matching selector in the active context.
	// It never waits; a miss is ErrNoSuchElement.
	Find(ctx context.Context, selector string) (Element, error)
	// FindAll returns every match in the active context, possibly none.
	FindAll(ctx context.Context, selector string) ([]Element, error)
	// SwitchToFrame enters the document of an iframe element.
	SwitchToFrame(ctx context.Context, frame Element) error
	// Execute evaluates a JavaScript function expression with args in the
	// active context and returns its JSON-decoded result.
	Execute(ctx context.Context, js string, args ...any) (any, error)
	// Close ends the session.
	Close() error
}

// Element is a handle to one DOM node (or shadow root) in the active context.
type Element interface {
	// Attribute returns the attribute value and whether it is present.
	Attribute(ctx context.Context, name string) (string, bool, error)
	Find(ctx context.Context, selector string) (Element, error)
	FindAll(ctx context.Context, selector string) ([]Element, error)
	// ShadowRoot returns the element's open shadow root.
	ShadowRoot(ctx context.Context) (Element, error)
	Click(ctx context.Context) error
	// SendChord focuses the element and presses the chord.
	SendChord(ctx context.Context, chord Chord) error
}

// Modifier is a bit set of keyboard modifiers.
type Modifier uint8

const (
	ModCtrl Modifier = 1 << iota
	ModShift
	ModAlt
	ModMeta
)

// Chord is a key pressed while holding modifiers, e.g. Ctrl+Shift+D.
type Chord struct {
	Modifiers Modifier
	Key       rune
}

func (c Chord) String() string {
	var parts []string
	for _, m := range []struct {
		mod  Modifier
		name string
	}{{ModCtrl, "Ctrl"}, {ModShift, "Shift"}, {ModAlt, "Alt"}, {ModMeta, "Meta"}} {
		if c.Modifiers&m.mod != 0 {
			parts = append(parts, m.name)
		}
	}
	parts = append(parts, strings.ToUpper(string(c.Key)))
	return strings.Join(parts, "+")
}

func noSuchElement(selector string) error {
	return fmt.Errorf("%w: %s", ErrNoSuchElement, selector)
}
