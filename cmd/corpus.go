package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/arcticwatch/arcticwatch/internal/config"
	"github.com/arcticwatch/arcticwatch/internal/corpus"
	"github.com/arcticwatch/arcticwatch/internal/images"
)

// corpusConfig reads the config without validating credentials. A missing
// file falls back to the defaults so the corpus can be inspected anywhere.
func corpusConfig(opts *rootOptions, dir string) (*config.Config, error) {
	cfg, err := config.Read(opts.configPath)
	if errors.Is(err, config.ErrNotFound) {
		cfg = config.Default()
	} else if err != nil {
		return nil, err
	}
	if dir != "" {
		cfg.Corpus.Dir = dir
	}
	return cfg, nil
}

func newCorpusCmd(opts *rootOptions) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "corpus",
		Short: "Inspect and seed the reference corpus",
		Long: `The corpus is the directory of distinct map states seen so far. Every
entry differs from all entries stored before it.`,
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "", "Corpus directory (overrides corpus.dir)")

	open := func() (*corpus.Corpus, error) {
		cfg, err := corpusConfig(opts, dir)
		if err != nil {
			return nil, err
		}
		return openCorpus(cfg)
	}

	var asJSON bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List corpus entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := open()
			if err != nil {
				return err
			}
			entries, err := c.Entries()
			if err != nil {
				return err
			}
			return printEntries(cmd.OutOrStdout(), entries, asJSON)
		},
	}
	list.Flags().BoolVar(&asJSON, "json", false, "Print entries as JSON")

	check := &cobra.Command{
		Use:   "check <image>",
		Short: "Report whether an image matches a known state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := open()
			if err != nil {
				return err
			}
			shot, err := images.Load(args[0])
			if err != nil {
				return err
			}

			entry, ok, err := c.FindMatch(shot)
			if err != nil {
				return err
			}
			if ok {
				fmt.Fprintf(cmd.OutOrStdout(), "MATCH %s\n", entry.Name)
				return nil
			}

			fmt.Fprintln(cmd.OutOrStdout(), "MISMATCH")
			if closest, _, stats, found, err := c.Closest(shot); err == nil && found {
				fmt.Fprintf(cmd.OutOrStdout(), "  closest: %s (%.2f%% of pixels differ)\n", closest.Name, stats.Percent())
			}
			return nil
		},
	}

	add := &cobra.Command{
		Use:   "add <image>...",
		Short: "Store images that match no known state",
		Long: `Adds each image to the corpus unless it matches an existing entry.
Images are checked in order, so a later image is also compared with the
earlier ones that were just added.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := open()
			if err != nil {
				return err
			}
			for _, path := range args {
				shot, err := images.Load(path)
				if err != nil {
					return err
				}
				existing, ok, err := c.FindMatch(shot)
				if err != nil {
					return err
				}
				if ok {
					fmt.Fprintf(cmd.OutOrStdout(), "skip %s: matches %s\n", path, existing.Name)
					continue
				}
				entry, err := c.Add(shot)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %s as %s\n", path, entry.Name)
			}
			return nil
		},
	}

	cmd.AddCommand(list, check, add)
	return cmd
}

func printEntries(w io.Writer, entries []corpus.Entry, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(w, "corpus is empty")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%-50s %10d  %s\n", e.Name, e.Size, e.AddedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(w, "%d entries\n", len(entries))
	return nil
}
