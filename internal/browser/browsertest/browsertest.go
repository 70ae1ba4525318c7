// Package browsertest provides an in-memory browser.Backend for unit tests.
//
// Windows and frames are plain HTML documents. A <template shadowrootmode>
// child stands in for an element's shadow root: ordinary queries do not see
// into it, ShadowRoot does. An <iframe data-frame="name"> resolves to the
// frame document registered under name. Hooks let tests mutate documents in
// response to clicks and key chords the way a real page would re-render.
//
// A Backend is not safe for concurrent use.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"inspectorharness/internal/browser"
)

// Window is one fake top-level window.
type Window struct {
	Handle browser.Handle
	Title  string
	Doc    *goquery.Document
}

// Script records one Execute call.
type Script struct {
	Window browser.Handle
	Frame  string
	JS     string
	Args   []any
}

// ChordEvent records one SendChord call.
type ChordEvent struct {
	Window browser.Handle
	Chord  browser.Chord
}

// Backend is a fake browser.Backend.
type Backend struct {
	windows []*Window
	frames  map[string]*goquery.Document

	current *Window
	scope   *goquery.Selection
	frame   string

	switches []browser.Handle
	chords   []ChordEvent
	clicks   []string
	scripts  []Script
	visits   []string
	closed   bool

	// OnClick runs after an element is clicked.
	OnClick func(b *Backend, el *Element)
	// OnChord runs after a chord is sent to an element.
	OnChord func(b *Backend, el *Element, chord browser.Chord)
	// OnExecute answers Execute calls. Nil returns (nil, nil).
	OnExecute func(b *Backend, s Script) (any, error)
	// HandlesErr, when set, is returned by Handles.
	HandlesErr error
}

var _ browser.Backend = (*Backend)(nil)

// New returns an empty backend.
func New() *Backend {
	return &Backend{frames: make(map[string]*goquery.Document)}
}

func parse(src string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		panic(fmt.Sprintf("browsertest: parse html: %v", err))
	}
	return doc
}

// AddWindow opens a window. The first window added becomes active.
func (b *Backend) AddWindow(h browser.Handle, title, src string) *Window {
	w := &Window{Handle: h, Title: title, Doc: parse(src)}
	b.windows = append(b.windows, w)
	if b.current == nil {
		b.current, b.scope = w, w.Doc.Selection
	}
	return w
}

// AddFrame registers the document behind <iframe data-frame="name">.
func (b *Backend) AddFrame(name, src string) *goquery.Document {
	doc := parse(src)
	b.frames[name] = doc
	return doc
}

// Window returns the window with handle h, or nil.
func (b *Backend) Window(h browser.Handle) *Window {
	for _, w := range b.windows {
		if w.Handle == h {
			return w
		}
	}
	return nil
}

// ActiveFrame names the entered frame, or "" at window level.
func (b *Backend) ActiveFrame() string { return b.frame }

// Switches returns every window switched to, in order.
func (b *Backend) Switches() []browser.Handle { return b.switches }

// Chords returns every chord sent.
func (b *Backend) Chords() []ChordEvent { return b.chords }

// Clicks returns a label for every click: aria-label if set, else tag name.
func (b *Backend) Clicks() []string { return b.clicks }

// Scripts returns every Execute call.
func (b *Backend) Scripts() []Script { return b.scripts }

// Visits returns every navigated URL.
func (b *Backend) Visits() []string { return b.visits }

// Closed reports whether Close was called.
func (b *Backend) Closed() bool { return b.closed }

func (b *Backend) Handles(ctx context.Context) ([]browser.Handle, error) {
	if b.HandlesErr != nil {
		return nil, b.HandlesErr
	}
	out := make([]browser.Handle, 0, len(b.windows))
	for _, w := range b.windows {
		out = append(out, w.Handle)
	}
	return out, nil
}

func (b *Backend) SwitchToWindow(ctx context.Context, h browser.Handle) error {
	w := b.Window(h)
	if w == nil {
		return fmt.Errorf("no such window: %s", h)
	}
	b.switches = append(b.switches, h)
	b.current, b.scope, b.frame = w, w.Doc.Selection, ""
	return nil
}

func (b *Backend) Current() browser.Handle {
	if b.current == nil {
		return ""
	}
	return b.current.Handle
}

func (b *Backend) Title(ctx context.Context) (string, error) {
	if b.current == nil {
		return "", errors.New("no active window")
	}
	return b.current.Title, nil
}

func (b *Backend) Navigate(ctx context.Context, url string) error {
	if b.current == nil {
		return errors.New("no active window")
	}
	b.visits = append(b.visits, url)
	b.scope, b.frame = b.current.Doc.Selection, ""
	return nil
}

func (b *Backend) Find(ctx context.Context, selector string) (browser.Element, error) {
	if b.scope == nil {
		return nil, errors.New("no active window")
	}
	return b.first(b.scope, selector)
}

func (b *Backend) FindAll(ctx context.Context, selector string) ([]browser.Element, error) {
	if b.scope == nil {
		return nil, errors.New("no active window")
	}
	return b.all(b.scope, selector), nil
}

func (b *Backend) SwitchToFrame(ctx context.Context, frame browser.Element) error {
	el, ok := frame.(*Element)
	if !ok {
		return fmt.Errorf("switch to frame: foreign element %T", frame)
	}
	name, _ := el.sel.Attr("data-frame")
	doc, ok := b.frames[name]
	if !ok {
		return fmt.Errorf("switch to frame: no frame document %q", name)
	}
	b.scope, b.frame = doc.Selection, name
	return nil
}

func (b *Backend) Execute(ctx context.Context, js string, args ...any) (any, error) {
	s := Script{JS: js, Args: args, Frame: b.frame}
	if b.current != nil {
		s.Window = b.current.Handle
	}
	b.scripts = append(b.scripts, s)
	if b.OnExecute == nil {
		return nil, nil
	}
	return b.OnExecute(b, s)
}

func (b *Backend) Close() error {
	b.closed = true
	return nil
}

// Element is a fake DOM node or shadow root.
type Element struct {
	b   *Backend
	sel *goquery.Selection
}

// Selection exposes the underlying node for assertions and mutation.
func (e *Element) Selection() *goquery.Selection { return e.sel }

// SetAttr sets an attribute, e.g. to simulate a class change.
func (e *Element) SetAttr(name, value string) { e.sel.SetAttr(name, value) }

// AppendHTML appends markup as the element's last children.
func (e *Element) AppendHTML(src string) { e.sel.AppendHtml(src) }

func (e *Element) Attribute(ctx context.Context, name string) (string, bool, error) {
	v, ok := e.sel.Attr(name)
	return v, ok, nil
}

func (e *Element) Find(ctx context.Context, selector string) (browser.Element, error) {
	return e.b.first(e.sel, selector)
}

func (e *Element) FindAll(ctx context.Context, selector string) ([]browser.Element, error) {
	return e.b.all(e.sel, selector), nil
}

func (e *Element) ShadowRoot(ctx context.Context) (browser.Element, error) {
	root := e.sel.ChildrenFiltered("template[shadowrootmode]").First()
	if root.Length() == 0 {
		return nil, errors.New("element has no shadow root")
	}
	return &Element{b: e.b, sel: root}, nil
}

func (e *Element) Click(ctx context.Context) error {
	label, ok := e.sel.Attr("aria-label")
	if !ok {
		label = goquery.NodeName(e.sel)
	}
	e.b.clicks = append(e.b.clicks, label)
	if e.b.OnClick != nil {
		e.b.OnClick(e.b, e)
	}
	return nil
}

func (e *Element) SendChord(ctx context.Context, chord browser.Chord) error {
	e.b.chords = append(e.b.chords, ChordEvent{Window: e.b.Current(), Chord: chord})
	if e.b.OnChord != nil {
		e.b.OnChord(e.b, e, chord)
	}
	return nil
}

func (b *Backend) first(root *goquery.Selection, selector string) (browser.Element, error) {
	matches := b.all(root, selector)
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %s", browser.ErrNoSuchElement, selector)
	}
	return matches[0], nil
}

// all runs selector under root, skipping anything inside a nested shadow root.
func (b *Backend) all(root *goquery.Selection, selector string) []browser.Element {
	var rootNode *html.Node
	if root.Length() > 0 {
		rootNode = root.Get(0)
	}
	var out []browser.Element
	root.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if !inShadow(s.Get(0), rootNode) {
			out = append(out, &Element{b: b, sel: s})
		}
	})
	return out
}

func inShadow(n, root *html.Node) bool {
	for p := n.Parent; p != nil && p != root; p = p.Parent {
		if p.Type == html.ElementNode && p.Data == "template" {
			return true
		}
	}
	return false
}
