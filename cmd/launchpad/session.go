package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"launchpad/internal/config"
	"launchpad/internal/history"
	"launchpad/internal/launch"
	"launchpad/internal/logging"
	"launchpad/internal/update"
)

// session is the wiring shared by the commands: resolved config, the log
// file and the optional history store.
type session struct {
	cfg     config.Config
	log     *logging.File
	history *history.Store
}

// openSession loads configuration and opens the log. Headless commands pass
// mirror so --verbose copies the log to stderr.
func openSession(cmd *cobra.Command, opts *globalOptions, mirror bool) (*session, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("determine user home: %w", err)
	}

	var extra []io.Writer
	if mirror && opts.verbose {
		extra = append(extra, cmd.ErrOrStderr())
	}
	logFile, err := logging.Open(logging.DefaultPath(home), cfg.Log.Level, extra...)
	if err != nil {
		return nil, err
	}
	for _, src := range cfg.Sources {
		logFile.Debug("config loaded", "file", src)
	}

	return &session{cfg: cfg, log: logFile}, nil
}

// openHistory opens the history store. A store that cannot be opened is
// logged and skipped; the update cycle does not depend on it.
func (s *session) openHistory(ctx context.Context) *history.Store {
	if s.history != nil || s.cfg.History.Path == "" {
		return s.history
	}
	store, err := history.Open(ctx, s.cfg.History.Path)
	if err != nil {
		s.log.Warn("update history unavailable", "path", s.cfg.History.Path, "err", err)
		return nil
	}
	s.history = store
	return store
}

func (s *session) Close() error {
	var errs []error
	if s.history != nil {
		errs = append(errs, s.history.Close())
	}
	errs = append(errs, s.log.Close())
	return errors.Join(errs...)
}

func (s *session) resolver() (*update.Resolver, error) {
	endpoint, err := s.cfg.Release.LatestURL()
	if err != nil {
		return nil, err
	}
	return update.NewResolver(endpoint,
		update.WithTimeout(s.cfg.Release.Timeout),
		update.WithAssetPattern(s.cfg.Release.AssetPattern),
		update.WithToken(s.cfg.Release.Token),
		update.WithUserAgent(userAgent()),
	), nil
}

func (s *session) layout() update.Layout {
	return update.Layout{
		ArtifactPath: s.cfg.Install.Artifact,
		MarkerPath:   s.cfg.Install.Marker,
		InstallDir:   s.cfg.Install.Dir,
		DownloadDir:  s.cfg.Download.Dir,
	}
}

func (s *session) orchestrator(ctx context.Context) (*update.Orchestrator, error) {
	resolver, err := s.resolver()
	if err != nil {
		return nil, err
	}

	downloader := update.NewDownloader(
		update.WithChunkSize(s.cfg.Download.ChunkSize),
		update.WithDownloadTimeout(s.cfg.Download.Timeout),
		update.WithDownloadUserAgent(userAgent()),
	)

	opts := []update.OrchestratorOption{
		update.WithFetcher(downloader),
		update.WithLogger(s.log.Logger),
	}
	if store := s.openHistory(ctx); store != nil {
		opts = append(opts, update.WithRecorder(store))
	}

	s.log.Info("update cycle configured",
		"endpoint", resolver.Endpoint(),
		"artifact", s.cfg.Install.Artifact,
		"install_dir", s.cfg.Install.Dir)
	return update.NewOrchestrator(s.layout(), resolver, opts...), nil
}

func (s *session) launcher(cmd *cobra.Command) *launch.Launcher {
	return launch.New(launch.Spec{
		Command:    s.cfg.Launch.Command,
		Args:       s.cfg.Launch.Args,
		Runtime:    s.cfg.Launch.Runtime,
		Artifact:   s.cfg.Install.Artifact,
		InstallDir: s.cfg.Install.Dir,
	},
		launch.WithStdio(cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr()),
		launch.WithLogger(s.log.Logger),
	)
}
