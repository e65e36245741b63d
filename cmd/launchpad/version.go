package main

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Version information - injected at build time via ldflags
var (
	Version   = "dev"
	Build     = "unknown"
	BuildTime = ""
)

// versionString is the one-line form handed to fang for --version.
func versionString() string {
	s := Version
	if Build != "unknown" && Build != "" {
		s += fmt.Sprintf(" (build: %s)", Build)
	}
	return s
}

// userAgent identifies launchpad to the release service.
func userAgent() string {
	return "launchpad/" + Version
}

// printVersion prints the version information
func printVersion(w io.Writer) {
	_, _ = fmt.Fprintf(w, "launchpad version %s", Version)

	if Build != "unknown" && Build != "" {
		_, _ = fmt.Fprintf(w, " (build: %s)", Build)
	}

	if BuildTime != "" {
		_, _ = fmt.Fprintf(w, " [%s]", BuildTime)
	}

	_, _ = fmt.Fprintln(w)

	_, _ = fmt.Fprintf(w, "Go version: %s\n", runtime.Version())
	_, _ = fmt.Fprintf(w, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)

	// Development builds carry the commit in their build info.
	if Version == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, setting := range info.Settings {
				if setting.Key == "vcs.revision" && len(setting.Value) > 7 {
					_, _ = fmt.Fprintf(w, "Commit: %s\n", setting.Value[:7])
					break
				}
			}
		}
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}
