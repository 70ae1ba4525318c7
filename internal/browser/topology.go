package browser

import (
	"context"
	"fmt"
)

// DevToolsTitle is the document title of a DevTools window.
const DevToolsTitle = "DevTools"

// Role classifies a window handle.
type Role int

const (
	RoleUnknown Role = iota
	RoleContent
	RoleDevTools
)

func (r Role) String() string {
	switch r {
	case RoleContent:
		return "content"
	case RoleDevTools:
		return "devtools"
	default:
		return "unknown"
	}
}

// Classify maps a window title to its role. Only an exact "DevTools" title
// marks the DevTools window; anything else is taken to be content.
func Classify(title string) Role {
	if title == DevToolsTitle {
		return RoleDevTools
	}
	return RoleContent
}

// Topology is the resolved pair of windows.
type Topology struct {
	Content  Handle
	DevTools Handle
}

// Complete reports whether both roles are resolved.
func (t Topology) Complete() bool {
	return t.Content != "" && t.DevTools != ""
}

// TopologyError reports that no Content/DevTools pair could be found.
type TopologyError struct {
	// Titles holds the title seen for each inspected window, in order.
	Titles []string
}

func (e *TopologyError) Error() string {
	return fmt.Sprintf("unable to access the DevTools pane (inspected %d windows: %q)", len(e.Titles), e.Titles)
}

// Resolve switches through every window, classifies it by title and returns
// the first content window together with the DevTools window. It stops as
// soon as both are known and does not retry; wrap it in a wait to tolerate a
// DevTools window that is still opening. The active window afterwards is
// whichever was inspected last, so callers must switch explicitly.
func Resolve(ctx context.Context, b Backend) (Topology, error) {
	handles, err := b.Handles(ctx)
	if err != nil {
		return Topology{}, fmt.Errorf("list windows: %w", err)
	}

	var (
		topo   Topology
		titles = make([]string, 0, len(handles))
	)
	for _, h := range handles {
		if err := b.SwitchToWindow(ctx, h); err != nil {
			return Topology{}, fmt.Errorf("switch to window %s: %w", h, err)
		}
		title, err := b.Title(ctx)
		if err != nil {
			return Topology{}, fmt.Errorf("read title of window %s: %w", h, err)
		}
		titles = append(titles, title)

		switch Classify(title) {
		case RoleDevTools:
			topo.DevTools = h
		default:
			if topo.Content == "" {
				topo.Content = h
			}
		}
		if topo.Complete() {
			return topo, nil
		}
	}
	return Topology{}, &TopologyError{Titles: titles}
}
