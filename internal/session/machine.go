// Package session drives the portal from login to a screenshot of the
// selected map area.
//
// The workflow is a linear state machine:
//
//	Start → LoggingIn → ChallengeCheck → Authenticated → NavigatingMap →
//	EnteringCoordinates → ZoomingIn → SelectingArea → CaptureReady → Captured
//
// with three terminal failures: ChallengeUnanswerable, ChallengeAnswerRejected
// and NavigationFailed. Every wait is a bounded poll; nothing is retried.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/arcticwatch/arcticwatch/internal/browser"
	"github.com/arcticwatch/arcticwatch/internal/images"
	"github.com/arcticwatch/arcticwatch/internal/poll"
)

// Machine runs the workflow once against a single browser session.
type Machine struct {
	driver browser.Driver
	opts   Options
	state  State
	step   string
}

// New returns a machine in the Start state.
func New(driver browser.Driver, opts Options) *Machine {
	return &Machine{
		driver: driver,
		opts:   opts,
		state:  Start,
		step:   "Start",
	}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Step returns a human-readable description of the last step attempted.
func (m *Machine) Step() string {
	return m.step
}

// Run executes the workflow and returns the captured viewport. Errors are a
// *ChallengeError or a *NavigationError.
func (m *Machine) Run(ctx context.Context) (*images.Capture, error) {
	if err := m.login(ctx); err != nil {
		return nil, err
	}
	if err := m.checkChallenge(ctx); err != nil {
		return nil, err
	}
	if err := m.enterCoordinates(ctx); err != nil {
		return nil, err
	}
	if err := m.zoomIn(ctx); err != nil {
		return nil, err
	}
	if err := m.selectArea(ctx); err != nil {
		return nil, err
	}
	return m.capture(ctx)
}

func (m *Machine) to(s State, step string) {
	m.state = s
	m.step = step
	slog.Info(step, "state", s.String())
}

func (m *Machine) at(step string) {
	m.step = step
	slog.Info(step, "state", m.state.String())
}

func (m *Machine) fail(err error) error {
	m.state = NavigationFailed
	var navErr *NavigationError
	if errors.As(err, &navErr) {
		return err
	}
	return &NavigationError{Step: m.step, Err: err}
}

func (m *Machine) login(ctx context.Context) error {
	site := m.opts.Site

	m.to(LoggingIn, "Open login page")
	if err := m.driver.Navigate(ctx, site.LoginURL()); err != nil {
		return m.fail(err)
	}

	m.at("Enter credentials")
	if err := m.typeInto(ctx, site.UsernameField, m.opts.Credentials.Username); err != nil {
		return m.fail(err)
	}
	if err := m.typeInto(ctx, site.PasswordField, m.opts.Credentials.Password); err != nil {
		return m.fail(err)
	}

	m.at("Submit login")
	if err := m.waitClick(ctx, site.LoginButton); err != nil {
		return m.fail(err)
	}
	return nil
}

// checkChallenge handles the security question the portal sometimes shows
// after login. When neither the question nor the signed-in marker shows up,
// the user is assumed to be signed in and the marker is awaited normally.
// A marker that is present still has to become interactable.
func (m *Machine) checkChallenge(ctx context.Context) error {
	site := m.opts.Site
	t := m.opts.Timing

	m.to(ChallengeCheck, "Check for security challenge")
	if err := poll.Until(ctx, t.PageLoadTimeout, t.PollInterval, m.driver.Ready); err != nil {
		return m.fail(fmt.Errorf("document did not finish loading: %w", err))
	}

	var question browser.Element
	signedIn := false
	err := poll.Until(ctx, t.PageLoadTimeout, t.PollInterval, func(ctx context.Context) (bool, error) {
		markers, err := m.driver.FindAll(ctx, site.AuthMarker)
		if err != nil {
			return false, err
		}
		if len(markers) > 0 {
			signedIn = true
			return true, nil
		}
		questions, err := m.driver.FindAll(ctx, site.Question)
		if err != nil {
			return false, err
		}
		if len(questions) > 0 {
			question = questions[0]
			return true, nil
		}
		return false, nil
	})

	switch {
	case err == nil && signedIn:
		return m.confirmSignedIn(ctx)
	case err == nil:
		return m.answerChallenge(ctx, question)
	case errors.Is(err, poll.ErrTimeout):
		slog.Info("No security challenge shown, assuming signed in")
		return m.confirmSignedIn(ctx)
	default:
		return m.fail(err)
	}
}

func (m *Machine) answerChallenge(ctx context.Context, question browser.Element) error {
	site := m.opts.Site
	t := m.opts.Timing

	m.at("Read security question")
	raw, err := question.Text(ctx)
	if err != nil {
		return m.fail(err)
	}
	text := strings.TrimSpace(raw)

	answer, ok := m.opts.Challenges.Lookup(text)
	if !ok {
		slog.Warn("Security question is not in the challenge table", "question", text)
		diagnostic := m.diagnostic(ctx)
		m.state = ChallengeUnanswerable
		return &ChallengeError{Reason: Unanswerable, Question: text, Diagnostic: diagnostic}
	}

	m.at("Answer security question")
	if err := m.typeInto(ctx, site.AnswerField, answer); err != nil {
		return m.fail(err)
	}
	submitted := m.diagnostic(ctx)

	m.at("Submit security answer")
	if err := m.waitClick(ctx, site.ChallengeSubmit); err != nil {
		return m.fail(err)
	}

	if _, err := m.waitFor(ctx, site.AuthMarker, t.WaitTimeout); err != nil {
		if ctx.Err() != nil {
			return m.fail(err)
		}
		slog.Warn("Security answer was not accepted", "question", text, "err", err)
		diagnostic := m.diagnostic(ctx)
		if diagnostic == nil {
			diagnostic = submitted
		}
		m.state = ChallengeAnswerRejected
		return &ChallengeError{Reason: Rejected, Question: text, Diagnostic: diagnostic}
	}

	m.to(Authenticated, "Signed in after security challenge")
	return nil
}

func (m *Machine) confirmSignedIn(ctx context.Context) error {
	m.to(Authenticated, "Wait for signed-in page")
	if _, err := m.waitFor(ctx, m.opts.Site.AuthMarker, m.opts.Timing.WaitTimeout); err != nil {
		return m.fail(err)
	}
	return nil
}

func (m *Machine) enterCoordinates(ctx context.Context) error {
	site := m.opts.Site
	t := m.opts.Timing

	m.to(NavigatingMap, "Open arctic map")
	if err := m.driver.Navigate(ctx, site.MapURL()); err != nil {
		return m.fail(err)
	}

	m.to(EnteringCoordinates, "Open coordinate finder")
	if err := m.waitClick(ctx, site.CoordinateControl); err != nil {
		return m.fail(err)
	}
	if _, err := m.waitFor(ctx, site.CoordinateField, t.WaitTimeout); err != nil {
		return m.fail(err)
	}
	fields, err := m.driver.FindAll(ctx, site.CoordinateField)
	if err != nil {
		return m.fail(err)
	}
	if len(fields) < 2 {
		return m.fail(fmt.Errorf("expected 2 coordinate fields, found %d", len(fields)))
	}

	// Latitude goes into the first field, longitude into the second.
	values := []struct{ name, value string }{
		{"latitude", m.opts.Coordinates.Latitude},
		{"longitude", m.opts.Coordinates.Longitude},
	}
	for i, v := range values {
		m.at("Enter " + v.name)
		if err := fields[i].Click(ctx); err != nil {
			return m.fail(err)
		}
		inputs, err := fields[i].FindAll(ctx, site.CoordinateInput)
		if err != nil {
			return m.fail(err)
		}
		if len(inputs) == 0 {
			return m.fail(fmt.Errorf("%s field has no input", v.name))
		}
		if err := inputs[0].SendKeys(ctx, v.value); err != nil {
			return m.fail(err)
		}
	}
	if err := m.pause(ctx, t.InputDelay); err != nil {
		return m.fail(err)
	}

	m.at("Confirm coordinates")
	if err := m.waitClick(ctx, site.CoordinateConfirm); err != nil {
		return m.fail(err)
	}
	if err := m.pause(ctx, t.ConfirmDelay); err != nil {
		return m.fail(err)
	}

	m.at("Close info overlay")
	overlay, err := m.waitFor(ctx, site.OverlayClose, t.PopupTimeout)
	switch {
	case err == nil:
		if err := overlay.Click(ctx); err != nil {
			return m.fail(err)
		}
	case errors.Is(err, poll.ErrTimeout):
		slog.Debug("No info overlay to close")
	default:
		return m.fail(err)
	}
	if err := m.pause(ctx, t.OverlayDelay); err != nil {
		return m.fail(err)
	}
	return nil
}

// zoomIn clicks the zoom button a fixed number of times. The map does not
// expose its zoom level, so the count is the only handle on it.
func (m *Machine) zoomIn(ctx context.Context) error {
	t := m.opts.Timing

	m.to(ZoomingIn, fmt.Sprintf("Zoom in %d times", t.ZoomSteps))
	zoom, err := m.waitFor(ctx, m.opts.Site.ZoomIn, t.WaitTimeout)
	if err != nil {
		return m.fail(err)
	}
	for i := 0; i < t.ZoomSteps; i++ {
		if err := m.pause(ctx, t.ZoomDelay); err != nil {
			return m.fail(err)
		}
		if err := zoom.Click(ctx); err != nil {
			return m.fail(err)
		}
	}
	return nil
}

// selectArea opens the feature popup and picks the configured area. A
// missing popup or area is not an error; the capture shows whatever is
// rendered.
func (m *Machine) selectArea(ctx context.Context) error {
	site := m.opts.Site
	t := m.opts.Timing

	m.to(SelectingArea, "Wait for map tiles")
	if err := m.pause(ctx, t.TileSettle); err != nil {
		return m.fail(err)
	}

	m.at("Click on map")
	surface, err := m.waitFor(ctx, site.MapSurface, t.WaitTimeout)
	if err != nil {
		return m.fail(err)
	}
	if err := surface.Click(ctx); err != nil {
		return m.fail(err)
	}

	area := strings.TrimSpace(m.opts.Area)
	if area == "" {
		return nil
	}

	m.at("Select area " + area)
	var entries []browser.Element
	err = poll.Until(ctx, t.PopupTimeout, t.PollInterval, func(ctx context.Context) (bool, error) {
		found, err := m.driver.FindAll(ctx, site.PopupEntry)
		entries = found
		return len(found) > 0, err
	})
	if err != nil && !errors.Is(err, poll.ErrTimeout) {
		return m.fail(err)
	}

	for _, entry := range entries {
		label, err := entry.Text(ctx)
		if err != nil {
			slog.Debug("Unreadable popup entry", "err", err)
			continue
		}
		label = strings.TrimSpace(label)
		if !strings.HasSuffix(label, area) {
			continue
		}
		if err := entry.Click(ctx); err != nil {
			return m.fail(err)
		}
		slog.Info("Selected area", "label", label)
		return nil
	}

	slog.Info("Area not listed in map popup, capturing as rendered", "area", area, "entries", len(entries))
	return nil
}

func (m *Machine) capture(ctx context.Context) (*images.Capture, error) {
	m.to(CaptureReady, "Wait before screenshot")
	if err := m.pause(ctx, m.opts.Timing.CaptureSettle); err != nil {
		return nil, m.fail(err)
	}

	m.at("Take screenshot")
	data, err := m.driver.Screenshot(ctx)
	if err != nil {
		return nil, m.fail(err)
	}
	shot, err := images.FromBytes(data, "viewport")
	if err != nil {
		return nil, m.fail(err)
	}

	m.to(Captured, "Screenshot taken")
	return shot, nil
}

// waitFor polls until an interactable element matches selector.
func (m *Machine) waitFor(ctx context.Context, selector string, timeout time.Duration) (browser.Element, error) {
	var found browser.Element
	err := poll.Until(ctx, timeout, m.opts.Timing.PollInterval, func(ctx context.Context) (bool, error) {
		els, err := m.driver.FindAll(ctx, selector)
		if err != nil {
			return false, err
		}
		for _, el := range els {
			ok, err := el.Interactable(ctx)
			if err != nil {
				return false, err
			}
			if ok {
				found = el
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		return nil, fmt.Errorf("element %s: %w", selector, err)
	}
	return found, nil
}

func (m *Machine) waitClick(ctx context.Context, selector string) error {
	el, err := m.waitFor(ctx, selector, m.opts.Timing.WaitTimeout)
	if err != nil {
		return err
	}
	return el.Click(ctx)
}

func (m *Machine) typeInto(ctx context.Context, selector, text string) error {
	el, err := m.waitFor(ctx, selector, m.opts.Timing.WaitTimeout)
	if err != nil {
		return err
	}
	if err := el.Click(ctx); err != nil {
		return err
	}
	return el.SendKeys(ctx, text)
}

func (m *Machine) pause(ctx context.Context, d time.Duration) error {
	if d > 0 {
		slog.Debug("Settling", "delay", d)
	}
	return poll.Sleep(ctx, d)
}

// diagnostic takes a best-effort screenshot of the current page.
func (m *Machine) diagnostic(ctx context.Context) *images.Capture {
	data, err := m.driver.Screenshot(ctx)
	if err != nil {
		slog.Warn("Failed to capture diagnostic screenshot", "err", err)
		return nil
	}
	shot, err := images.FromBytes(data, "diagnostic")
	if err != nil {
		slog.Warn("Failed to decode diagnostic screenshot", "err", err)
		return nil
	}
	return shot
}
