package cmd

import (
	"fmt"

	"github.com/arcticwatch/arcticwatch/internal/browser"
	"github.com/arcticwatch/arcticwatch/internal/caption"
	"github.com/arcticwatch/arcticwatch/internal/config"
	"github.com/arcticwatch/arcticwatch/internal/corpus"
	"github.com/arcticwatch/arcticwatch/internal/history"
	"github.com/arcticwatch/arcticwatch/internal/monitor"
	"github.com/arcticwatch/arcticwatch/internal/notify"
)

func openCorpus(cfg *config.Config) (*corpus.Corpus, error) {
	c, err := corpus.Open(cfg.Corpus.Dir, cfg.Comparator())
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus: %w", err)
	}
	return c, nil
}

func newNotifier(cfg *config.Config) notify.Notifier {
	logNotifier := &notify.Log{Dir: cfg.Notify.LogDir}
	if !cfg.Telegram.Enabled() {
		return logNotifier
	}

	tg := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.DebugChatID, cfg.Telegram.NotificationChatID)
	if cfg.Telegram.APIURL != "" {
		tg.APIURL = cfg.Telegram.APIURL
	}
	return notify.Multi{logNotifier, tg}
}

// newMonitor builds a monitor for cfg. extra recorders are appended after
// the history ledger.
func newMonitor(cfg *config.Config, extra ...monitor.Recorder) (*monitor.Monitor, error) {
	c, err := openCorpus(cfg)
	if err != nil {
		return nil, err
	}

	m := &monitor.Monitor{
		Launcher:      browser.NewChromeLauncher(cfg.ChromeOptions()),
		NewSession:    monitor.SessionFactory(cfg.SessionOptions()),
		Corpus:        c,
		Comparator:    cfg.Comparator(),
		Notifier:      newNotifier(cfg),
		DebugEveryRun: cfg.Telegram.DebugEveryRun,
	}

	if cfg.Caption.Enabled() {
		captioner, err := caption.New(cfg.Caption.Provider, cfg.Caption.Model, cfg.Caption.Prompt)
		if err != nil {
			return nil, fmt.Errorf("failed to configure captions: %w", err)
		}
		m.Captioner = captioner
	}

	if cfg.History.Path != "" {
		ledger, err := history.NewLedger(cfg.History.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		m.Recorders = append(m.Recorders, ledger)
	}
	m.Recorders = append(m.Recorders, extra...)

	return m, nil
}
