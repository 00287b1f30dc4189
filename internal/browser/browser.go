// Package browser defines the small set of browser-automation primitives the
// session workflow relies on, and a chromedp implementation of them.
//
// Lookups never block: FindAll returns an empty slice when nothing matches.
// Waiting is done by callers with bounded polling.
package browser

import "context"

// Driver controls one browser tab.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	// Ready reports whether the current document finished loading.
	Ready(ctx context.Context) (bool, error)
	FindAll(ctx context.Context, selector string) ([]Element, error)
	// Screenshot captures the visible viewport as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
	// Close releases the browser. Calling it more than once is an error.
	Close() error
}

// Element is a node in the current document.
type Element interface {
	Click(ctx context.Context) error
	SendKeys(ctx context.Context, text string) error
	Text(ctx context.Context) (string, error)
	// Interactable reports whether the element is rendered and enabled.
	Interactable(ctx context.Context) (bool, error)
	FindAll(ctx context.Context, selector string) ([]Element, error)
}

// Launcher starts a fresh browser session.
type Launcher interface {
	Launch(ctx context.Context) (Driver, error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context) (Driver, error)

func (f LauncherFunc) Launch(ctx context.Context) (Driver, error) {
	return f(ctx)
}
