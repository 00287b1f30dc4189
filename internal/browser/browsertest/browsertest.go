// Package browsertest provides a scriptable in-memory browser for tests.
//
// Pages are built by route functions that register elements by selector.
// Elements record clicks and typed text, and may run a callback on click to
// mutate the page, which is how multi-step flows are scripted.
package browsertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/arcticwatch/arcticwatch/internal/browser"
)

// Element is a fake DOM node.
type Element struct {
	Selector string
	Label    string
	Hidden   bool
	Disabled bool
	Children map[string][]*Element
	OnClick  func(d *Driver)
	OnType   func(d *Driver, text string)

	driver *Driver
	Typed  []string
	Clicks int
}

// Driver is a fake browser.Driver.
type Driver struct {
	mu     sync.Mutex
	url    string
	page   map[string][]*Element
	routes map[string]func(d *Driver)

	NotReady       bool
	NavigateErr    error
	ScreenshotFunc func() ([]byte, error)
	CloseErr       error
	Closes         int
	Screenshots    int
	actions        []string
}

var _ browser.Driver = (*Driver)(nil)

// New returns an empty driver.
func New() *Driver {
	return &Driver{
		page:   make(map[string][]*Element),
		routes: make(map[string]func(d *Driver)),
	}
}

// Route registers the page built when url is navigated to.
func (d *Driver) Route(url string, build func(d *Driver)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.routes[url] = build
}

// Add places elements under selector on the current page.
func (d *Driver) Add(selector string, els ...*Element) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, el := range els {
		el.Selector = selector
		el.driver = d
		for childSel, children := range el.Children {
			for _, child := range children {
				child.Selector = childSel
				child.driver = d
			}
		}
	}
	d.page[selector] = append(d.page[selector], els...)
}

// Remove deletes all elements under selector.
func (d *Driver) Remove(selector string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.page, selector)
}

// Get returns the first element under selector, or nil.
func (d *Driver) Get(selector string) *Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	if els := d.page[selector]; len(els) > 0 {
		return els[0]
	}
	return nil
}

// URL returns the last navigated URL.
func (d *Driver) URL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url
}

// Actions returns the recorded interactions in order.
func (d *Driver) Actions() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.actions...)
}

func (d *Driver) record(action string) {
	d.mu.Lock()
	d.actions = append(d.actions, action)
	d.mu.Unlock()
}

func (d *Driver) Navigate(_ context.Context, url string) error {
	d.record("navigate:" + url)
	if d.NavigateErr != nil {
		return d.NavigateErr
	}

	d.mu.Lock()
	build, ok := d.routes[url]
	d.url = url
	d.page = make(map[string][]*Element)
	d.mu.Unlock()

	if !ok {
		return fmt.Errorf("failed to navigate to %s: not reachable", url)
	}
	build(d)
	return nil
}

func (d *Driver) Ready(context.Context) (bool, error) {
	return !d.NotReady, nil
}

func (d *Driver) FindAll(_ context.Context, selector string) ([]browser.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return wrap(d.page[selector]), nil
}

func (d *Driver) Screenshot(context.Context) ([]byte, error) {
	d.mu.Lock()
	d.Screenshots++
	fn := d.ScreenshotFunc
	d.mu.Unlock()
	d.record("screenshot")
	if fn == nil {
		return nil, fmt.Errorf("no screenshot configured")
	}
	return fn()
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Closes++
	if d.Closes > 1 {
		return browser.ErrClosed
	}
	return d.CloseErr
}

func wrap(els []*Element) []browser.Element {
	out := make([]browser.Element, 0, len(els))
	for _, el := range els {
		out = append(out, el)
	}
	return out
}

func (e *Element) Click(context.Context) error {
	e.Clicks++
	e.driver.record("click:" + e.Selector)
	if e.OnClick != nil {
		e.OnClick(e.driver)
	}
	return nil
}

func (e *Element) SendKeys(_ context.Context, text string) error {
	e.Typed = append(e.Typed, text)
	e.driver.record("type:" + e.Selector + ":" + text)
	if e.OnType != nil {
		e.OnType(e.driver, text)
	}
	return nil
}

func (e *Element) Text(context.Context) (string, error) {
	e.driver.record("text:" + e.Selector)
	return e.Label, nil
}

func (e *Element) Interactable(context.Context) (bool, error) {
	return !e.Hidden && !e.Disabled, nil
}

func (e *Element) FindAll(_ context.Context, selector string) ([]browser.Element, error) {
	return wrap(e.Children[selector]), nil
}

// Value returns everything typed into the element, concatenated.
func (e *Element) Value() string {
	var s string
	for _, t := range e.Typed {
		s += t
	}
	return s
}
