package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"launchpad/internal/update"
)

func newLaunchCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "launch",
		Short: "Start the installed application without checking for updates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd, g, true)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			installed, err := update.ReadInstalled(s.cfg.Install.Artifact, s.cfg.Install.Marker)
			if err != nil {
				s.log.Warn("installed version unreadable", "err", err)
			}
			s.log.Info("launching without update", "installed", installed)

			proc, err := s.launcher(cmd).Launch(true)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render(fmt.Sprintf("Started %s (pid %d)", s.cfg.Install.Artifact, proc.Pid)))
			return nil
		},
	}
}
