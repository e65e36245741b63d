package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"launchpad/internal/update"
)

const headlessBarWidth = 30

func newUpdateCmd(g *globalOptions) *cobra.Command {
	var launchAfter bool
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Run one update cycle without the interactive screen",
		Long: `Run one update cycle and print its progress as plain lines.

The command exits non-zero when the cycle fails. With --launch the
application is started once the cycle is ready.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHeadless(cmd, g, launchAfter)
		},
	}
	cmd.Flags().BoolVar(&launchAfter, "launch", false, "start the application when the cycle succeeds")
	return cmd
}

func runHeadless(cmd *cobra.Command, g *globalOptions, launchAfter bool) error {
	ctx := cmd.Context()

	s, err := openSession(cmd, g, true)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	orch, err := s.orchestrator(ctx)
	if err != nil {
		return err
	}

	printer := newProgressPrinter(cmd.OutOrStdout())
	var last update.Event
	for ev := range orch.Start(ctx) {
		printer.print(ev)
		last = ev
	}

	if last.State != update.Ready {
		return errors.New(last.Reason)
	}
	if !launchAfter {
		return nil
	}

	proc, err := s.launcher(cmd).Launch(last.State == update.Ready)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render(fmt.Sprintf("Started application (pid %d)", proc.Pid)))
	return nil
}

// progressPrinter renders orchestrator events as lines. Download progress
// rewrites the current line with a static progress bar.
type progressPrinter struct {
	w       io.Writer
	bar     progress.Model
	state   update.State
	lastPct int
	inline  bool
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{
		w: w,
		bar: progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(headlessBarWidth),
			progress.WithoutPercentage(),
		),
		state:   update.Idle,
		lastPct: -1,
	}
}

func (p *progressPrinter) print(ev update.Event) {
	if ev.State != p.state {
		p.endLine()
		p.state = ev.State
		p.header(ev)
	}
	if ev.State == update.Downloading {
		p.download(ev.Progress)
	}
}

func (p *progressPrinter) header(ev update.Event) {
	switch ev.State {
	case update.CheckingVersion:
		p.line(dimStyle.Render("Checking for updates..."))
	case update.Downloading:
		p.line(fmt.Sprintf("Downloading %s (installed %s)", ev.Latest, ev.Installed))
	case update.Extracting:
		p.line("Installing update...")
	case update.Ready:
		switch {
		case ev.Updated:
			p.line(successStyle.Render("✓ Updated to " + ev.Latest.String()))
		case !ev.Installed.IsAbsent():
			p.line(successStyle.Render("✓ Up to date (" + ev.Installed.String() + ")"))
		default:
			p.line(successStyle.Render("✓ Ready"))
		}
	case update.Failed:
		p.line(errorStyle.Render("✗ " + ev.Reason))
	}
}

func (p *progressPrinter) download(prog update.Progress) {
	read := humanize.IBytes(uint64(max(prog.BytesRead, 0)))
	if pct, ok := prog.Percent(); ok {
		if pct == p.lastPct {
			return
		}
		p.lastPct = pct
		total := humanize.IBytes(uint64(prog.TotalBytes))
		_, _ = fmt.Fprintf(p.w, "\r%s %3d%% %s / %s", p.bar.ViewAs(prog.Ratio()), pct, read, total)
	} else {
		_, _ = fmt.Fprintf(p.w, "\r%s downloaded", read)
	}
	p.inline = true
}

func (p *progressPrinter) line(s string) {
	_, _ = fmt.Fprintln(p.w, s)
}

func (p *progressPrinter) endLine() {
	if p.inline {
		_, _ = fmt.Fprintln(p.w)
		p.inline = false
	}
}
