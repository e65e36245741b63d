package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/wordwrap"
	"github.com/spf13/cobra"

	"launchpad/internal/output"
	"launchpad/internal/update"
)

const notesWidth = 80

// checkReport is the result of comparing the install with the latest release.
type checkReport struct {
	Endpoint        string   `json:"endpoint" yaml:"endpoint" toml:"endpoint"`
	Artifact        string   `json:"artifact" yaml:"artifact" toml:"artifact"`
	Installed       string   `json:"installed" yaml:"installed" toml:"installed"`
	Latest          string   `json:"latest" yaml:"latest" toml:"latest"`
	UpdateAvailable bool     `json:"update_available" yaml:"update_available" toml:"update_available"`
	Asset           string   `json:"asset,omitempty" yaml:"asset,omitempty" toml:"asset,omitempty"`
	AssetSize       int64    `json:"asset_size,omitempty" yaml:"asset_size,omitempty" toml:"asset_size,omitempty"`
	DownloadURL     string   `json:"download_url" yaml:"download_url" toml:"download_url"`
	PageURL         string   `json:"page_url,omitempty" yaml:"page_url,omitempty" toml:"page_url,omitempty"`
	PublishedAt     string   `json:"published_at,omitempty" yaml:"published_at,omitempty" toml:"published_at,omitempty"`
	Notes           string   `json:"notes,omitempty" yaml:"notes,omitempty" toml:"notes,omitempty"`
	Warnings        []string `json:"warnings,omitempty" yaml:"warnings,omitempty" toml:"warnings,omitempty"`
}

func newCheckCmd(g *globalOptions) *cobra.Command {
	var (
		format     string
		notesStyle string
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Compare the installed version with the latest release",
		Long: `Resolve the latest release and compare it with the installed version
without downloading anything.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := output.ParseFormat(format)
			if err != nil {
				return err
			}
			report, err := runCheck(cmd, g)
			if err != nil {
				return err
			}
			if f == output.FormatText {
				printCheckReport(cmd.OutOrStdout(), report, buildMarkdownRenderer(notesStyle, notesWidth))
				return nil
			}
			return output.NewWriter(cmd.OutOrStdout(), f).Write(report)
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "text", "output format (text, json, yaml, toml)")
	cmd.Flags().StringVar(&notesStyle, "notes-style", "dark", "release notes style (dark, light, notty, plain)")
	return cmd
}

func runCheck(cmd *cobra.Command, g *globalOptions) (checkReport, error) {
	ctx := cmd.Context()

	s, err := openSession(cmd, g, true)
	if err != nil {
		return checkReport{}, err
	}
	defer func() { _ = s.Close() }()

	resolver, err := s.resolver()
	if err != nil {
		return checkReport{}, err
	}

	report := checkReport{Endpoint: resolver.Endpoint(), Artifact: s.cfg.Install.Artifact}

	installed, err := update.ReadInstalled(s.cfg.Install.Artifact, s.cfg.Install.Marker)
	if err != nil {
		s.log.Warn("installed version unreadable", "err", err)
		report.Warnings = append(report.Warnings, err.Error())
		installed = update.Absent
	}

	release, err := resolver.FetchLatest(ctx)
	if err != nil {
		s.log.Error("release lookup failed", "err", err)
		return checkReport{}, err
	}

	needsUpdate, err := update.NeedsUpdate(installed, release.Version)
	if err != nil {
		s.log.Warn("version comparison failed", "installed", installed, "latest", release.Version, "err", err)
		report.Warnings = append(report.Warnings, err.Error())
		needsUpdate = true
	}

	report.Installed = installed.String()
	report.Latest = release.Version.String()
	report.UpdateAvailable = needsUpdate
	report.Asset = release.AssetName
	report.AssetSize = release.AssetSize
	report.DownloadURL = resolver.DownloadURLFor(release)
	report.PageURL = release.PageURL
	report.Notes = strings.TrimSpace(release.Notes)
	if !release.PublishedAt.IsZero() {
		report.PublishedAt = release.PublishedAt.UTC().Format(time.RFC3339)
	}

	s.log.Info("check finished", "installed", installed, "latest", release.Version, "update_available", needsUpdate)
	return report, nil
}

func printCheckReport(w io.Writer, r checkReport, renderNotes func(string) string) {
	row := func(label, value string) {
		_, _ = fmt.Fprintln(w, labelStyle.Render(label)+valueStyle.Render(value))
	}

	row("Installed", r.Installed)
	row("Latest", r.Latest)
	if r.Asset != "" {
		asset := r.Asset
		if r.AssetSize > 0 {
			asset += " (" + humanize.IBytes(uint64(r.AssetSize)) + ")"
		}
		row("Asset", asset)
	}
	if r.PublishedAt != "" {
		row("Published", r.PublishedAt)
	}
	if r.PageURL != "" {
		row("Release", r.PageURL)
	}
	_, _ = fmt.Fprintln(w)

	if r.UpdateAvailable {
		_, _ = fmt.Fprintln(w, warnStyle.Render("Update available: "+r.Installed+" → "+r.Latest))
	} else {
		_, _ = fmt.Fprintln(w, successStyle.Render("✓ Up to date"))
	}
	for _, warning := range r.Warnings {
		_, _ = fmt.Fprintln(w, warnStyle.Render("! "+warning))
	}

	if r.Notes != "" {
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintln(w, titleStyle.Render("Release notes"))
		_, _ = fmt.Fprintln(w, renderNotes(r.Notes))
	}
}

// buildMarkdownRenderer returns a glamour renderer for the given style,
// falling back to plain word wrapping.
func buildMarkdownRenderer(format string, width int) func(string) string {
	fallback := func(input string) string {
		return wordwrap.String(input, width)
	}

	style := strings.ToLower(strings.TrimSpace(format))
	if style == "" || style == "rich" {
		style = "dark"
	}
	if style == "plain" {
		return fallback
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return fallback
	}
	return func(input string) string {
		out, err := renderer.Render(input)
		if err != nil {
			return fallback(input)
		}
		return strings.TrimSpace(out)
	}
}
