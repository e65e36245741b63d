package main

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"launchpad/internal/ui"
	"launchpad/internal/update"
)

type runOptions struct {
	noLaunch   bool
	autoLaunch bool
}

func addRunFlags(cmd *cobra.Command, opts *runOptions) {
	cmd.Flags().BoolVar(&opts.noLaunch, "no-launch", false, "update only; never offer to start the application")
	cmd.Flags().BoolVar(&opts.autoLaunch, "auto-launch", false, "start the application as soon as it is ready")
	cmd.MarkFlagsMutuallyExclusive("no-launch", "auto-launch")
}

func newRunCmd(g *globalOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Update the application on the interactive screen, then start it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInteractive(cmd, g, opts)
		},
	}
	addRunFlags(cmd, opts)
	return cmd
}

// runInteractive runs one update cycle behind the bubbletea screen. Enter
// starts the application once the cycle is Ready.
func runInteractive(cmd *cobra.Command, g *globalOptions, opts *runOptions) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	s, err := openSession(cmd, g, false)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	orch, err := s.orchestrator(ctx)
	if err != nil {
		return err
	}
	events := orch.Start(ctx)

	var model *ui.Model
	uiOpts := []ui.Option{ui.WithAutoLaunch(opts.autoLaunch)}
	if !opts.noLaunch {
		launcher := s.launcher(cmd)
		uiOpts = append(uiOpts, ui.WithLaunch(func() error {
			_, err := launcher.Launch(model.State() == update.Ready)
			return err
		}))
	}
	model = ui.New(events, uiOpts...)

	runErr := model.Run(ctx, tea.WithInput(cmd.InOrStdin()), tea.WithOutput(cmd.OutOrStdout()))

	// Quitting mid-cycle cancels the worker; wait for it so the cycle is
	// recorded before the history store closes.
	cancel()
	for range events {
	}

	if runErr != nil {
		return runErr
	}
	s.log.Info("interactive session finished", "state", model.State(), "launched", model.Launched())
	return nil
}
