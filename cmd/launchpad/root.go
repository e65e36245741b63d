package main

import (
	"github.com/spf13/cobra"

	"launchpad/internal/config"
)

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	debug      bool
	verbose    bool
	installDir string
	artifact   string
	endpoint   string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	run := &runOptions{}

	root := &cobra.Command{
		Use:   "launchpad",
		Short: "Keep an application up to date and start it",
		Long: titleStyle.Render("launchpad") + dimStyle.Render(" - a self-updating application launcher") + `

launchpad checks the release service for a newer version of the application,
downloads and installs it when needed, then starts it.

Running launchpad without a command opens the interactive update screen.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInteractive(cmd, opts, run)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default is .launchpad/config.yaml found from the working directory)")
	flags.BoolVar(&opts.debug, "debug", false, "log at debug level")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "mirror the log to stderr (headless commands)")
	flags.StringVar(&opts.installDir, "install-dir", "", "directory the release is extracted into")
	flags.StringVar(&opts.artifact, "artifact", "", "path of the installed application artifact")
	flags.StringVar(&opts.endpoint, "endpoint", "", "release metadata URL")

	addRunFlags(root, run)

	root.AddCommand(
		newRunCmd(opts),
		newUpdateCmd(opts),
		newCheckCmd(opts),
		newHistoryCmd(opts),
		newLaunchCmd(opts),
		newVersionCmd(),
	)
	return root
}

// loadConfig resolves configuration with the flags as the highest
// precedence source.
func (o *globalOptions) loadConfig() (config.Config, error) {
	var loadOpts []config.Option
	if o.configPath != "" {
		loadOpts = append(loadOpts, config.WithProjectConfig(o.configPath))
	}
	if overrides := o.overrides(); len(overrides) > 0 {
		loadOpts = append(loadOpts, config.WithOverrides(overrides))
	}
	return config.Load(loadOpts...)
}

func (o *globalOptions) overrides() map[string]any {
	overrides := map[string]any{}
	if o.installDir != "" {
		overrides[config.KeyInstallDir] = o.installDir
	}
	if o.artifact != "" {
		overrides[config.KeyInstallArtifact] = o.artifact
	}
	if o.endpoint != "" {
		overrides[config.KeyReleaseEndpoint] = o.endpoint
	}
	if o.debug {
		overrides[config.KeyLogLevel] = "debug"
	}
	return overrides
}
