package session

import (
	"context"
	"errors"
	"image"
	"image/color"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcticwatch/arcticwatch/internal/browser/browsertest"
	"github.com/arcticwatch/arcticwatch/internal/images"
	"github.com/arcticwatch/arcticwatch/internal/poll"
)

// portal scripts a fake portal on top of browsertest.Driver.
type portal struct {
	driver *browsertest.Driver
	site   Site

	// question is shown after login when non-empty; answer is what the
	// portal accepts for it.
	question string
	answer   string
	// silentLogin shows neither the marker nor a question right away.
	silentLogin bool
	// markerDelay makes the marker appear late after a silent login.
	markerDelay time.Duration
	// markerDisabled renders the marker but never lets it be used.
	markerDisabled bool

	popupLabels []string
	noZoom      bool
	noOverlay   bool

	answerField  *browsertest.Element
	latInput     *browsertest.Element
	lonInput     *browsertest.Element
	zoomButton   *browsertest.Element
	popupEntries []*browsertest.Element
}

func newPortal(t *testing.T) *portal {
	t.Helper()
	p := &portal{
		driver:      browsertest.New(),
		site:        DefaultSite(),
		popupLabels: []string{"Участок 83:01:000001:100", "Участок 83:01:000001:512"},
	}
	p.site.BaseURL = "https://portal.test"

	shot := pngOf(t, color.RGBA{30, 90, 160, 255})
	p.driver.ScreenshotFunc = func() ([]byte, error) { return shot, nil }

	p.driver.Route(p.site.LoginURL(), p.buildLogin)
	p.driver.Route(p.site.MapURL(), p.buildMap)
	return p
}

func pngOf(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, c)
		}
	}
	data, err := images.EncodePNG(img)
	require.NoError(t, err)
	return data
}

func (p *portal) buildLogin(d *browsertest.Driver) {
	d.Add(p.site.UsernameField, &browsertest.Element{})
	d.Add(p.site.PasswordField, &browsertest.Element{})
	d.Add(p.site.LoginButton, &browsertest.Element{OnClick: p.afterLogin})
}

func (p *portal) afterLogin(d *browsertest.Driver) {
	switch {
	case p.silentLogin:
		if p.markerDelay > 0 {
			go func() {
				time.Sleep(p.markerDelay)
				d.Add(p.site.AuthMarker, &browsertest.Element{})
			}()
		}
	case p.question == "":
		d.Add(p.site.AuthMarker, &browsertest.Element{Disabled: p.markerDisabled})
	default:
		answer := &browsertest.Element{}
		p.answerField = answer
		d.Add(p.site.Question, &browsertest.Element{Label: "  " + p.question + "\n"})
		d.Add(p.site.AnswerField, answer)
		d.Add(p.site.ChallengeSubmit, &browsertest.Element{OnClick: func(d *browsertest.Driver) {
			if answer.Value() == p.answer {
				d.Add(p.site.AuthMarker, &browsertest.Element{})
			}
		}})
	}
}

func (p *portal) buildMap(d *browsertest.Driver) {
	p.latInput = &browsertest.Element{}
	p.lonInput = &browsertest.Element{}
	p.zoomButton = &browsertest.Element{}

	d.Add(p.site.CoordinateControl, &browsertest.Element{OnClick: func(d *browsertest.Driver) {
		d.Add(p.site.CoordinateField,
			&browsertest.Element{Children: map[string][]*browsertest.Element{p.site.CoordinateInput: {p.latInput}}},
			&browsertest.Element{Children: map[string][]*browsertest.Element{p.site.CoordinateInput: {p.lonInput}}},
		)
	}})
	d.Add(p.site.CoordinateConfirm, &browsertest.Element{OnClick: func(d *browsertest.Driver) {
		if !p.noOverlay {
			d.Add(p.site.OverlayClose, &browsertest.Element{})
		}
	}})
	if !p.noZoom {
		d.Add(p.site.ZoomIn, p.zoomButton)
	}
	d.Add(p.site.MapSurface, &browsertest.Element{OnClick: func(d *browsertest.Driver) {
		for _, label := range p.popupLabels {
			entry := &browsertest.Element{Label: label}
			p.popupEntries = append(p.popupEntries, entry)
			d.Add(p.site.PopupEntry, entry)
		}
	}})
}

func fastTiming() Timing {
	return Timing{
		WaitTimeout:     100 * time.Millisecond,
		PollInterval:    time.Millisecond,
		PageLoadTimeout: 30 * time.Millisecond,
		ZoomSteps:       15,
		PopupTimeout:    30 * time.Millisecond,
	}
}

func (p *portal) options(table ChallengeTable) Options {
	return Options{
		Site:        p.site,
		Credentials: Credentials{Username: "user@example.org", Password: "secret"},
		Challenges:  table,
		Coordinates: Coordinates{Latitude: "67.5", Longitude: "33.4"},
		Area:        "512",
		Timing:      fastTiming(),
	}
}

func indexOf(actions []string, prefix string) int {
	for i, a := range actions {
		if strings.HasPrefix(a, prefix) {
			return i
		}
	}
	return -1
}

func countPrefix(actions []string, prefix string) int {
	n := 0
	for _, a := range actions {
		if strings.HasPrefix(a, prefix) {
			n++
		}
	}
	return n
}

func TestRunWithoutChallenge(t *testing.T) {
	p := newPortal(t)
	m := New(p.driver, p.options(nil))

	shot, err := m.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, shot)

	assert.Equal(t, Captured, m.State())
	assert.Equal(t, "viewport", shot.Source)
	assert.Equal(t, 15, p.zoomButton.Clicks)
	assert.Equal(t, []string{"67.5"}, p.latInput.Typed)
	assert.Equal(t, []string{"33.4"}, p.lonInput.Typed)

	actions := p.driver.Actions()
	assert.Less(t, indexOf(actions, "type:"+p.site.UsernameField), indexOf(actions, "type:"+p.site.PasswordField))
	assert.Less(t, indexOf(actions, "type:input:67.5"), indexOf(actions, "type:input:33.4"))
	assert.Equal(t, 0, countPrefix(actions, "text:"+p.site.Question))

	require.Len(t, p.popupEntries, 2)
	assert.Equal(t, 0, p.popupEntries[0].Clicks)
	assert.Equal(t, 1, p.popupEntries[1].Clicks)
}

func TestRunAnswersKnownChallenge(t *testing.T) {
	p := newPortal(t)
	p.question, p.answer = "Q1", "A1"
	m := New(p.driver, p.options(ChallengeTable{{Question: "Q1", Answer: "A1"}}))

	shot, err := m.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, shot)

	assert.Equal(t, Captured, m.State())
	assert.Equal(t, []string{"A1"}, p.answerField.Typed)
	assert.Equal(t, 1, countPrefix(p.driver.Actions(), "text:"+p.site.Question))
}

func TestRunFirstListedAnswerWins(t *testing.T) {
	p := newPortal(t)
	p.question, p.answer = "Q1", "first"
	table := ChallengeTable{
		{Question: "Q0", Answer: "zero"},
		{Question: "Q1", Answer: "first"},
		{Question: "Q1", Answer: "second"},
	}
	m := New(p.driver, p.options(table))

	_, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, p.answerField.Typed)
}

func TestRunUnanswerableChallenge(t *testing.T) {
	p := newPortal(t)
	p.question, p.answer = "Q2", "A2"
	m := New(p.driver, p.options(ChallengeTable{{Question: "Q1", Answer: "A1"}}))

	shot, err := m.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, shot)

	var challengeErr *ChallengeError
	require.True(t, errors.As(err, &challengeErr))
	assert.Equal(t, Unanswerable, challengeErr.Reason)
	assert.Equal(t, "Q2", challengeErr.Question)
	assert.NotNil(t, challengeErr.Diagnostic)

	assert.Equal(t, ChallengeUnanswerable, m.State())
	assert.Empty(t, p.answerField.Typed)
	assert.Equal(t, 0, countPrefix(p.driver.Actions(), "click:"+p.site.ChallengeSubmit))
	assert.Equal(t, -1, indexOf(p.driver.Actions(), "navigate:"+p.site.MapURL()))
}

func TestRunRejectedAnswer(t *testing.T) {
	p := newPortal(t)
	p.question, p.answer = "Q1", "the real answer"
	m := New(p.driver, p.options(ChallengeTable{{Question: "Q1", Answer: "stale answer"}}))

	_, err := m.Run(context.Background())

	var challengeErr *ChallengeError
	require.True(t, errors.As(err, &challengeErr))
	assert.Equal(t, Rejected, challengeErr.Reason)
	assert.NotNil(t, challengeErr.Diagnostic)
	assert.Equal(t, ChallengeAnswerRejected, m.State())
	assert.Equal(t, []string{"stale answer"}, p.answerField.Typed)
}

func TestRunRejectedAnswerFallsBackToPreSubmitShot(t *testing.T) {
	p := newPortal(t)
	p.question, p.answer = "Q1", "expected"
	shot := pngOf(t, color.White)
	calls := 0
	p.driver.ScreenshotFunc = func() ([]byte, error) {
		calls++
		if calls == 1 {
			return shot, nil
		}
		return nil, errors.New("tab crashed")
	}
	m := New(p.driver, p.options(ChallengeTable{{Question: "Q1", Answer: "wrong"}}))

	_, err := m.Run(context.Background())

	var challengeErr *ChallengeError
	require.True(t, errors.As(err, &challengeErr))
	require.NotNil(t, challengeErr.Diagnostic)
	assert.Equal(t, shot, challengeErr.Diagnostic.PNG)
}

func TestRunSilentLoginShortCircuits(t *testing.T) {
	p := newPortal(t)
	p.silentLogin = true
	p.markerDelay = 50 * time.Millisecond
	opts := p.options(nil)
	opts.Timing.WaitTimeout = time.Second
	m := New(p.driver, opts)

	_, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Captured, m.State())
}

func TestRunSilentLoginWithoutMarkerFails(t *testing.T) {
	p := newPortal(t)
	p.silentLogin = true
	m := New(p.driver, p.options(nil))

	_, err := m.Run(context.Background())

	var navErr *NavigationError
	require.True(t, errors.As(err, &navErr))
	assert.ErrorIs(t, err, poll.ErrTimeout)
	assert.Equal(t, NavigationFailed, m.State())
	assert.Equal(t, "Wait for signed-in page", navErr.Step)
}

func TestRunMarkerMustBeInteractable(t *testing.T) {
	p := newPortal(t)
	p.markerDisabled = true
	m := New(p.driver, p.options(nil))

	_, err := m.Run(context.Background())

	var navErr *NavigationError
	require.True(t, errors.As(err, &navErr))
	assert.ErrorIs(t, err, poll.ErrTimeout)
	assert.Equal(t, NavigationFailed, m.State())
	assert.Equal(t, "Wait for signed-in page", navErr.Step)
	assert.Equal(t, -1, indexOf(p.driver.Actions(), "navigate:"+p.site.MapURL()))
}

func TestRunUnreachableLogin(t *testing.T) {
	p := newPortal(t)
	p.driver.NavigateErr = errors.New("connection refused")
	m := New(p.driver, p.options(nil))

	_, err := m.Run(context.Background())

	var navErr *NavigationError
	require.True(t, errors.As(err, &navErr))
	assert.Equal(t, "Open login page", navErr.Step)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, NavigationFailed, m.State())
	assert.Equal(t, "Open login page", m.Step())
}

func TestRunDocumentNeverReady(t *testing.T) {
	p := newPortal(t)
	p.driver.NotReady = true
	m := New(p.driver, p.options(nil))

	_, err := m.Run(context.Background())

	var navErr *NavigationError
	require.True(t, errors.As(err, &navErr))
	assert.Equal(t, NavigationFailed, m.State())
}

func TestRunMissingZoomControl(t *testing.T) {
	p := newPortal(t)
	p.noZoom = true
	m := New(p.driver, p.options(nil))

	_, err := m.Run(context.Background())

	var navErr *NavigationError
	require.True(t, errors.As(err, &navErr))
	assert.ErrorIs(t, err, poll.ErrTimeout)
	assert.Equal(t, "Zoom in 15 times", navErr.Step)
}

func TestRunWithoutOverlay(t *testing.T) {
	p := newPortal(t)
	p.noOverlay = true
	m := New(p.driver, p.options(nil))

	_, err := m.Run(context.Background())
	require.NoError(t, err)
}

func TestRunSkipsUnknownArea(t *testing.T) {
	p := newPortal(t)
	opts := p.options(nil)
	opts.Area = "999"
	m := New(p.driver, opts)

	shot, err := m.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, shot)
	for _, e := range p.popupEntries {
		assert.Equal(t, 0, e.Clicks)
	}
}

func TestRunWithoutPopup(t *testing.T) {
	p := newPortal(t)
	p.popupLabels = nil
	m := New(p.driver, p.options(nil))

	_, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Captured, m.State())
}

func TestRunUndecodableScreenshot(t *testing.T) {
	p := newPortal(t)
	p.driver.ScreenshotFunc = func() ([]byte, error) { return []byte("nope"), nil }
	m := New(p.driver, p.options(nil))

	_, err := m.Run(context.Background())

	var navErr *NavigationError
	require.True(t, errors.As(err, &navErr))
	assert.Equal(t, "Take screenshot", navErr.Step)
}

func TestRunCancelled(t *testing.T) {
	p := newPortal(t)
	opts := p.options(nil)
	opts.Timing.TileSettle = time.Hour
	m := New(p.driver, opts)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := m.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, NavigationFailed, m.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "challenge_check", ChallengeCheck.String())
	assert.Equal(t, "navigation_error", NavigationFailed.String())
	assert.Equal(t, "unknown", State(99).String())
	assert.True(t, Captured.Terminal())
	assert.True(t, ChallengeUnanswerable.Terminal())
	assert.False(t, ZoomingIn.Terminal())
}

func TestChallengeTableLookup(t *testing.T) {
	table := ChallengeTable{
		{Question: "Девичья фамилия матери?", Answer: "Иванова"},
		{Question: "Q1", Answer: "A1"},
		{Question: "Q1", Answer: "B1"},
	}

	answer, ok := table.Lookup("Q1")
	assert.True(t, ok)
	assert.Equal(t, "A1", answer)

	answer, ok = table.Lookup("Девичья фамилия матери?")
	assert.True(t, ok)
	assert.Equal(t, "Иванова", answer)

	_, ok = table.Lookup("q1")
	assert.False(t, ok)

	_, ok = ChallengeTable(nil).Lookup("Q1")
	assert.False(t, ok)
}
