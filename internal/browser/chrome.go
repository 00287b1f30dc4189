package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
)

// ErrClosed is returned when a driver is used or closed after Close.
var ErrClosed = errors.New("browser session already closed")

// ChromeOptions configures the headless Chrome process.
type ChromeOptions struct {
	Headless      bool
	WindowWidth   int
	WindowHeight  int
	ExecPath      string
	ActionTimeout time.Duration
}

// ChromeLauncher starts Chrome through chromedp.
type ChromeLauncher struct {
	Options ChromeOptions
}

// NewChromeLauncher returns a launcher with defaults filled in.
func NewChromeLauncher(opts ChromeOptions) *ChromeLauncher {
	if opts.WindowWidth <= 0 {
		opts.WindowWidth = 1920
	}
	if opts.WindowHeight <= 0 {
		opts.WindowHeight = 1200
	}
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = 90 * time.Second
	}
	return &ChromeLauncher{Options: opts}
}

// Launch starts a browser and opens a blank tab.
func (l *ChromeLauncher) Launch(ctx context.Context) (Driver, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.Options.Headless),
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Flag("disable-extensions", true),
		chromedp.WindowSize(l.Options.WindowWidth, l.Options.WindowHeight),
	)
	if l.Options.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(l.Options.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			slog.Debug("chromedp", "msg", fmt.Sprintf(format, args...))
		}),
	)

	slog.Info("Starting browser", "headless", l.Options.Headless,
		"width", l.Options.WindowWidth, "height", l.Options.WindowHeight)
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}

	return &chromeDriver{
		ctx:     tabCtx,
		timeout: l.Options.ActionTimeout,
		cancel: func() {
			cancelTab()
			cancelAlloc()
		},
	}, nil
}

type chromeDriver struct {
	ctx     context.Context
	timeout time.Duration
	cancel  func()

	mu     sync.Mutex
	closed bool
}

// run executes actions on the tab, bounded by the action timeout and by the
// caller's context.
func (d *chromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	runCtx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (d *chromeDriver) Navigate(ctx context.Context, url string) error {
	if err := d.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (d *chromeDriver) Ready(ctx context.Context) (bool, error) {
	var state string
	if err := d.run(ctx, chromedp.Evaluate(`document.readyState`, &state)); err != nil {
		return false, fmt.Errorf("failed to read document state: %w", err)
	}
	return state == "complete", nil
}

func (d *chromeDriver) FindAll(ctx context.Context, selector string) ([]Element, error) {
	return d.query(ctx, selector)
}

func (d *chromeDriver) query(ctx context.Context, selector string, opts ...chromedp.QueryOption) ([]Element, error) {
	var nodes []*cdp.Node
	opts = append([]chromedp.QueryOption{chromedp.ByQueryAll, chromedp.AtLeast(0)}, opts...)
	if err := d.run(ctx, chromedp.Nodes(selector, &nodes, opts...)); err != nil {
		return nil, fmt.Errorf("failed to query %q: %w", selector, err)
	}

	elements := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		elements = append(elements, &chromeElement{driver: d, node: n})
	}
	return elements, nil
}

func (d *chromeDriver) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := d.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

func (d *chromeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.closed = true

	err := chromedp.Cancel(d.ctx)
	d.cancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	slog.Debug("Browser closed")
	return nil
}

type chromeElement struct {
	driver *chromeDriver
	node   *cdp.Node
}

func (e *chromeElement) ids() []cdp.NodeID {
	return []cdp.NodeID{e.node.NodeID}
}

func (e *chromeElement) Click(ctx context.Context) error {
	if err := e.driver.run(ctx, chromedp.MouseClickNode(e.node)); err != nil {
		return fmt.Errorf("failed to click %s: %w", e.node.LocalName, err)
	}
	return nil
}

func (e *chromeElement) SendKeys(ctx context.Context, text string) error {
	if err := e.driver.run(ctx, chromedp.SendKeys(e.ids(), text, chromedp.ByNodeID)); err != nil {
		return fmt.Errorf("failed to type into %s: %w", e.node.LocalName, err)
	}
	return nil
}

func (e *chromeElement) Text(ctx context.Context) (string, error) {
	var text string
	if err := e.driver.run(ctx, chromedp.Text(e.ids(), &text, chromedp.ByNodeID)); err != nil {
		return "", fmt.Errorf("failed to read text of %s: %w", e.node.LocalName, err)
	}
	return text, nil
}

func (e *chromeElement) Interactable(ctx context.Context) (bool, error) {
	if _, disabled := e.node.Attribute("disabled"); disabled {
		return false, nil
	}

	rendered := false
	err := e.driver.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		model, err := dom.GetBoxModel().WithNodeID(e.node.NodeID).Do(ctx)
		if err != nil {
			// Nodes that are not rendered have no box model.
			return nil
		}
		rendered = model.Width > 0 && model.Height > 0
		return nil
	}))
	if err != nil {
		return false, err
	}
	return rendered, nil
}

func (e *chromeElement) FindAll(ctx context.Context, selector string) ([]Element, error) {
	return e.driver.query(ctx, selector, chromedp.FromNode(e.node))
}
