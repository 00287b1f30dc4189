package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/arcticwatch/arcticwatch/internal/config"
	"github.com/arcticwatch/arcticwatch/internal/monitor"
	"github.com/arcticwatch/arcticwatch/internal/storage"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var (
		addr     string
		interval time.Duration
		keep     int
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Check the map repeatedly",
		Long: `Runs the portal workflow in a loop, one run at a time, sleeping the
configured interval between runs (also after a failed run).

With --addr the status API is served while watching:

  GET /api/runs           recent runs, newest first
  GET /api/runs/{id}      one run ("latest" for the most recent)
  GET /api/corpus         known map states
  GET /corpus/{name}      a stored screenshot (?max=N for a thumbnail)
  GET /healthcheck`,
		Example: `  # Check every hour (default)
  arcticwatch watch

  # Check every 30 minutes and serve the status API
  arcticwatch watch --interval 30m --addr :8888`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if interval > 0 {
				cfg.Watch.Interval = interval
			}

			runStore := storage.New(keep)
			m, err := newMonitor(cfg, runStore)
			if err != nil {
				return err
			}

			var serveErr <-chan error
			if addr != "" {
				server, err := startStatusServer(addr, runStore, m.Corpus)
				if err != nil {
					return err
				}
				defer func() { _ = server.Shutdown() }()
				serveErr = server.Err()
			}

			return watch(cmd.Context(), m, cfg.Watch.Interval, serveErr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Serve the status API on this address (e.g. :8888)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Time between runs (overrides watch.interval)")
	cmd.Flags().IntVar(&keep, "keep", 500, "Number of runs kept in memory for the status API")

	return cmd
}

// runner is the part of monitor.Monitor the loop needs.
type runner interface {
	Run(ctx context.Context) monitor.Outcome
}

// watch runs r until ctx is done or serveErr delivers an error.
func watch(ctx context.Context, r runner, interval time.Duration, serveErr <-chan error) error {
	slog.Info("Watching map", "interval", interval)

	for {
		out := r.Run(ctx)
		if ctx.Err() != nil {
			slog.Info("Watch stopped")
			return nil
		}

		next := time.Now().Add(interval)
		slog.Info("Next run scheduled", "outcome", out.Kind.String(), "at", next.Format(time.RFC3339))

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("Watch stopped")
			return nil
		case err := <-serveErr:
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}
