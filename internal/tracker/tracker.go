// Package tracker installs the Snowplow JavaScript tracker on the active page
// and forwards commands to it.
package tracker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"inspectorharness/internal/browser"
)

// GlobalName is the window property the loader registers the tracker under.
const GlobalName = "snowplow"

// Config holds tracker options passed verbatim to newTracker.
type Config map[string]any

// Params is the set of trackers a test creates, one per entry.
type Params []Config

// DefaultParams creates a single tracker with default options.
func DefaultParams() Params {
	return Params{{}}
}

// Namespace returns cfg's "namespace" option whenever the key is present,
// even when empty, otherwise "sp" followed by the 1-based index i. Non-string
// values are formatted with %v.
func Namespace(i int, cfg Config) string {
	if v, ok := cfg["namespace"]; ok {
		if ns, isString := v.(string); isString {
			return ns
		}
		return fmt.Sprint(v)
	}
	return fmt.Sprintf("sp%d", i)
}

// loader is the tracker's asynchronous queue snippet. It defines the global
// command queue and loads sp.js relative to the current page.
const loader = `;(function(p,l,o,w,i,n,g){
    if(!p[i]){
        p.GlobalSnowplowNamespace=p.GlobalSnowplowNamespace||[];
        p.GlobalSnowplowNamespace.push(i);
        p[i]=function(){(p[i].q=p[i].q||[]).push(arguments)};
        p[i].q=p[i].q||[];
        n=l.createElement(o);
        g=l.getElementsByTagName(o)[0];
        n.async=1;
        n.src=w;
        g.parentNode.insertBefore(n,g)
    }
}(window,document,"script","sp.js","snowplow"));`

const (
	injectJS = `(snippet) => {
	document.body.appendChild(Object.assign(document.createElement("script"), {
		innerText: snippet,
		type: "text/javascript",
	}));
}`
	newTrackerJS = `(ns, endpoint, cfg) => { snowplow("newTracker", ns, endpoint, cfg); }`
	trackJS      = `(command, ...args) => { snowplow.apply(null, [command, ...args]); }`
)

// InstallSDK loads pageURL in the active window and injects the loader.
// sp.js must be served next to the page.
func InstallSDK(ctx context.Context, b browser.Backend, pageURL string) error {
	if err := b.Navigate(ctx, pageURL); err != nil {
		return err
	}
	if _, err := b.Execute(ctx, injectJS, loader); err != nil {
		return fmt.Errorf("inject tracker loader: %w", err)
	}
	return nil
}

// Driver forwards commands to the trackers created on one page.
type Driver struct {
	b          browser.Backend
	namespaces []string
	log        *zap.Logger
}

// New creates one tracker per params entry, all sending to endpoint. An
// empty params creates a single default tracker. Script errors are returned
// as the backend reported them.
func New(ctx context.Context, b browser.Backend, endpoint string, params Params, log *zap.Logger) (*Driver, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if len(params) == 0 {
		params = DefaultParams()
	}
	d := &Driver{b: b, log: log}
	for i, cfg := range params {
		ns := Namespace(i+1, cfg)
		if cfg == nil {
			cfg = Config{}
		}
		if _, err := b.Execute(ctx, newTrackerJS, ns, endpoint, map[string]any(cfg)); err != nil {
			return nil, err
		}
		d.namespaces = append(d.namespaces, ns)
		log.Debug("tracker created", zap.String("namespace", ns), zap.String("endpoint", endpoint), zap.Any("config", cfg))
	}
	return d, nil
}

// Track calls the page's tracker dispatch with command and args, e.g.
// Track(ctx, "trackPageView").
func (d *Driver) Track(ctx context.Context, command string, args ...any) error {
	callArgs := append([]any{command}, args...)
	_, err := d.b.Execute(ctx, trackJS, callArgs...)
	return err
}

// Namespaces returns the created tracker namespaces in creation order.
func (d *Driver) Namespaces() []string {
	return append([]string(nil), d.namespaces...)
}
