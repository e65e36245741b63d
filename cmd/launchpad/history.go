package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	apperrors "launchpad/internal/errors"
	"launchpad/internal/history"
	"launchpad/internal/output"
)

const defaultHistoryLimit = 10

// historyReport wraps the entries so every format gets a top-level table.
type historyReport struct {
	Entries []history.Entry `json:"entries" yaml:"entries" toml:"entries"`
}

func newHistoryCmd(g *globalOptions) *cobra.Command {
	var (
		limit  int
		format string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent update cycles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := output.ParseFormat(format)
			if err != nil {
				return err
			}

			s, err := openSession(cmd, g, true)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			if s.cfg.History.Path == "" {
				return apperrors.New(apperrors.CodeConfigurationError, "update history is disabled (history.path is empty)", nil)
			}
			store, err := history.Open(cmd.Context(), s.cfg.History.Path)
			if err != nil {
				return err
			}
			s.history = store

			entries, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if entries == nil {
				entries = []history.Entry{}
			}

			if f == output.FormatText {
				printHistory(cmd.OutOrStdout(), entries)
				return nil
			}
			return output.NewWriter(cmd.OutOrStdout(), f).Write(historyReport{Entries: entries})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", defaultHistoryLimit, "number of cycles to show (0 for all)")
	cmd.Flags().StringVarP(&format, "output", "o", "text", "output format (text, json, yaml, toml)")
	return cmd
}

func printHistory(w io.Writer, entries []history.Entry) {
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(w, dimStyle.Render("No update cycles recorded yet."))
		return
	}

	for _, e := range entries {
		outcome := successStyle.Render(fmt.Sprintf("%-6s", e.Outcome))
		if e.Outcome != "ready" {
			outcome = errorStyle.Render(fmt.Sprintf("%-6s", e.Outcome))
		}

		versions := e.Installed
		if e.Updated {
			versions += " → " + e.Latest
		}

		line := fmt.Sprintf("%s  %s  %s", dimStyle.Render(e.StartedAt.Local().Format("2006-01-02 15:04:05")), outcome, valueStyle.Render(versions))
		if e.BytesDownloaded > 0 {
			line += dimStyle.Render("  " + humanize.IBytes(uint64(e.BytesDownloaded)))
		}
		line += dimStyle.Render(fmt.Sprintf("  %s", e.Duration().Round(10*time.Millisecond)))
		_, _ = fmt.Fprintln(w, line)

		if e.Reason != "" {
			_, _ = fmt.Fprintln(w, "    "+dimStyle.Render(e.Reason))
		}
	}
}
