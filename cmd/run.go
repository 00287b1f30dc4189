package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arcticwatch/arcticwatch/internal/config"
	"github.com/arcticwatch/arcticwatch/internal/monitor"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Check the map once",
		Long: `Runs the portal workflow once: sign in, open the map at the configured
coordinates, select the area and compare the screenshot with the corpus.

The command exits non-zero when the run failed or was blocked at the
security challenge, so a scheduler can retry it.`,
		Example: `  # One check with the default config.yaml
  arcticwatch run

  # Use another config and verbose logs
  arcticwatch run --config /etc/arcticwatch.yaml --log-level debug`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}

			m, err := newMonitor(cfg)
			if err != nil {
				return err
			}

			out := m.Run(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), out.Message())

			switch out.Kind {
			case monitor.Failed, monitor.AuthenticationBlocked:
				return fmt.Errorf("run %s: %s: %w", out.RunID, out.Kind, out.Err)
			}
			return nil
		},
	}
}
