// Package monitor runs the portal workflow once and turns the screenshot into
// an outcome: unchanged, new state, blocked or failed.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arcticwatch/arcticwatch/internal/browser"
	"github.com/arcticwatch/arcticwatch/internal/compare"
	"github.com/arcticwatch/arcticwatch/internal/corpus"
	"github.com/arcticwatch/arcticwatch/internal/images"
	"github.com/arcticwatch/arcticwatch/internal/models"
	"github.com/arcticwatch/arcticwatch/internal/notify"
	"github.com/arcticwatch/arcticwatch/internal/session"
)

const (
	// diagnosticTimeout bounds the best-effort screenshot taken after a failure.
	diagnosticTimeout = 30 * time.Second
	// notifyTimeout bounds delivery of one run's notifications.
	notifyTimeout = 2 * time.Minute
)

// Capturer is one workflow execution over a browser session.
type Capturer interface {
	Run(ctx context.Context) (*images.Capture, error)
	State() session.State
	Step() string
}

// Captioner describes a new map state for the alert.
type Captioner interface {
	Caption(ctx context.Context, img *images.Capture) (string, error)
}

// Recorder stores finished runs.
type Recorder interface {
	Record(run models.RunSummary) error
}

// Monitor wires the browser, the session workflow, the corpus and the
// notification channel together.
type Monitor struct {
	Launcher   browser.Launcher
	NewSession func(browser.Driver) Capturer
	Corpus     *corpus.Corpus
	Comparator compare.Comparator
	Notifier   notify.Notifier

	// Optional.
	Captioner     Captioner
	Recorders     []Recorder
	DebugEveryRun bool
}

// SessionFactory adapts session options to Monitor.NewSession.
func SessionFactory(opts session.Options) func(browser.Driver) Capturer {
	return func(d browser.Driver) Capturer {
		return session.New(d, opts)
	}
}

// Run performs one monitoring run. It never returns an error: every failure
// is folded into the outcome.
func (m *Monitor) Run(ctx context.Context) Outcome {
	out := m.observe(ctx)

	// Report the run even when ctx was cancelled mid-run.
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	m.notify(notifyCtx, &out)
	cancel()
	out.FinishedAt = time.Now()

	summary := out.Summary()
	for _, r := range m.Recorders {
		if err := r.Record(summary); err != nil {
			slog.Error("Failed to record run", "run_id", out.RunID, "err", err)
		}
	}

	logArgs := []any{
		"run_id", out.RunID,
		"outcome", out.Kind.String(),
		"state", out.State.String(),
		"corpus_size", out.CorpusSize,
		"duration", out.FinishedAt.Sub(out.StartedAt).Round(time.Millisecond),
	}
	if out.Err != nil {
		logArgs = append(logArgs, "step", out.Step, "err", out.Err)
		slog.Error("Run finished", logArgs...)
	} else {
		slog.Info("Run finished", logArgs...)
	}
	return out
}

// observe acquires a browser session, runs the workflow and classifies the
// capture. The session is released exactly once on every path.
func (m *Monitor) observe(ctx context.Context) (out Outcome) {
	out = Outcome{
		RunID:     uuid.NewString(),
		State:     session.Start,
		StartedAt: time.Now(),
	}
	slog.Info("Starting run", "run_id", out.RunID)

	driver, err := m.Launcher.Launch(ctx)
	if err != nil {
		out.Kind = Failed
		out.Step = "Launch browser"
		out.Err = fmt.Errorf("failed to launch browser: %w", err)
		return out
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			if err := driver.Close(); err != nil {
				slog.Warn("Failed to release browser session", "run_id", out.RunID, "err", err)
			}
		})
	}
	defer release()

	var sess Capturer
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Run panicked", "run_id", out.RunID, "panic", r, "stack", string(debug.Stack()))
			out.Kind = Failed
			out.Err = fmt.Errorf("unclassified fault: %v", r)
			if sess != nil {
				out.State, out.Step = sess.State(), sess.Step()
			}
			if out.Image != nil {
				// The browser is already released; the capture is the best picture left.
				out.Diagnostic = out.Image
			} else {
				out.Diagnostic = screenshot(ctx, driver)
			}
			out.CorpusSize = m.corpusSize()
		}
	}()

	sess = m.NewSession(driver)
	img, err := sess.Run(ctx)
	out.State, out.Step = sess.State(), sess.Step()
	if err != nil {
		out.Err = err
		var challengeErr *session.ChallengeError
		if errors.As(err, &challengeErr) {
			out.Kind = AuthenticationBlocked
			out.Diagnostic = challengeErr.Diagnostic
		} else {
			out.Kind = Failed
			out.Diagnostic = screenshot(ctx, driver)
		}
		out.CorpusSize = m.corpusSize()
		return out
	}
	out.Image = img

	// The browser is no longer needed once the capture is in memory.
	release()

	m.classify(&out)
	return out
}

func (m *Monitor) classify(out *Outcome) {
	matched, err := m.Corpus.AnyMatches(out.Image)
	if err != nil {
		out.Kind = Failed
		out.Step = "Compare with corpus"
		out.Err = fmt.Errorf("failed to compare with corpus: %w", err)
		return
	}
	if matched {
		out.Kind = Unchanged
		out.CorpusSize = m.corpusSize()
		return
	}

	m.renderDiff(out)

	entry, err := m.Corpus.Add(out.Image)
	if err != nil {
		out.Kind = Failed
		out.Step = "Store new corpus entry"
		out.Err = fmt.Errorf("failed to add corpus entry: %w", err)
		return
	}
	out.Kind = NewState
	out.Entry = entry.Name
	out.CorpusSize = m.corpusSize()
}

// renderDiff prepares a diagnostic image against the closest known state.
func (m *Monitor) renderDiff(out *Outcome) {
	entry, ref, _, ok, err := m.Corpus.Closest(out.Image)
	if err != nil {
		slog.Warn("Failed to find closest corpus entry", "err", err)
		return
	}
	if !ok {
		return
	}

	rendered, stats := m.Comparator.RenderDiff(ref, out.Image.Image)
	diff, err := images.FromImage(rendered, "diff")
	if err != nil {
		slog.Warn("Failed to encode diff image", "err", err)
		return
	}
	out.Diff = diff
	out.DiffCaption = fmt.Sprintf("Difference from %s: %.2f%% of pixels in %d regions",
		entry.Name, stats.Percent(), len(stats.Cells))
}

func (m *Monitor) corpusSize() int {
	n, err := m.Corpus.Count()
	if err != nil {
		slog.Warn("Failed to count corpus entries", "err", err)
		return 0
	}
	return n
}

func (m *Monitor) notify(ctx context.Context, out *Outcome) {
	if m.Notifier == nil {
		return
	}

	switch out.Kind {
	case NewState:
		out.Caption = m.caption(ctx, out)
		if err := m.Notifier.SendAlert(ctx, out.Image, out.Caption); err != nil {
			slog.Error("Failed to send alert", "run_id", out.RunID, "err", err)
		}
		if out.Diff != nil {
			m.sendImage(ctx, out, out.Diff, out.DiffCaption)
		} else if m.DebugEveryRun {
			m.sendImage(ctx, out, out.Image, out.Message())
		}
	case Unchanged:
		if m.DebugEveryRun {
			m.sendImage(ctx, out, out.Image, out.Message())
		}
	default:
		if err := m.Notifier.SendDiagnosticText(ctx, out.Message()); err != nil {
			slog.Error("Failed to send diagnostic text", "run_id", out.RunID, "err", err)
		}
		if out.Diagnostic != nil {
			m.sendImage(ctx, out, out.Diagnostic, out.Kind.String()+": "+out.Step)
		}
	}
}

func (m *Monitor) sendImage(ctx context.Context, out *Outcome, img *images.Capture, caption string) {
	if err := m.Notifier.SendDiagnosticImage(ctx, img, caption); err != nil {
		slog.Error("Failed to send diagnostic image", "run_id", out.RunID, "err", err)
	}
}

func (m *Monitor) caption(ctx context.Context, out *Outcome) string {
	fallback := fmt.Sprintf("New map state detected (%d known states)", out.CorpusSize)
	if m.Captioner == nil {
		return fallback
	}
	text, err := m.Captioner.Caption(ctx, out.Image)
	if err != nil {
		slog.Warn("Failed to caption new state, using default caption", "run_id", out.RunID, "err", err)
		return fallback
	}
	return text
}

// screenshot takes a best-effort diagnostic of whatever the browser shows.
func screenshot(ctx context.Context, driver browser.Driver) *images.Capture {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), diagnosticTimeout)
	defer cancel()

	data, err := driver.Screenshot(ctx)
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
