// Package notify delivers run results to people: diagnostics to the
// operator, alerts to the subscribers.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/arcticwatch/arcticwatch/internal/images"
)

// Notifier is the outbound channel of a run.
type Notifier interface {
	SendDiagnosticText(ctx context.Context, text string) error
	SendDiagnosticImage(ctx context.Context, img *images.Capture, caption string) error
	SendAlert(ctx context.Context, img *images.Capture, caption string) error
}

// Log is a Notifier that only logs, optionally keeping the images in Dir.
type Log struct {
	Dir string
}

func (l *Log) SendDiagnosticText(_ context.Context, text string) error {
	slog.Info("Diagnostic", "text", text)
	return nil
}

func (l *Log) SendDiagnosticImage(_ context.Context, img *images.Capture, caption string) error {
	path, err := l.keep("diagnostic", img)
	slog.Info("Diagnostic image", "caption", caption, "path", path)
	return err
}

func (l *Log) SendAlert(_ context.Context, img *images.Capture, caption string) error {
	path, err := l.keep("alert", img)
	slog.Warn("Alert: new map state", "caption", caption, "path", path)
	return err
}

func (l *Log) keep(kind string, img *images.Capture) (string, error) {
	if l.Dir == "" || img == nil {
		return "", nil
	}
	if err := os.MkdirAll(l.Dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create notification directory: %w", err)
	}
	path := filepath.Join(l.Dir, fmt.Sprintf("%s-%s.png", kind, time.Now().Format("2006-01-02_15-04-05.000")))
	if err := img.Save(path); err != nil {
		return "", err
	}
	return path, nil
}

// Multi fans out to several notifiers and returns the first error.
type Multi []Notifier

func (m Multi) SendDiagnosticText(ctx context.Context, text string) error {
	var first error
	for _, n := range m {
		if err := n.SendDiagnosticText(ctx, text); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) SendDiagnosticImage(ctx context.Context, img *images.Capture, caption string) error {
	var first error
	for _, n := range m {
		if err := n.SendDiagnosticImage(ctx, img, caption); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) SendAlert(ctx context.Context, img *images.Capture, caption string) error {
	var first error
	for _, n := range m {
		if err := n.SendAlert(ctx, img, caption); err != nil && first == nil {
			first = err
		}
	}
	return first
}
