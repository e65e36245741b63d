package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"

	apperrors "launchpad/internal/errors"
	"launchpad/internal/update"
)

const (
	KeyReleaseOwner    = "release.owner"
	KeyReleaseRepo     = "release.repo"
	KeyReleaseEndpoint = "release.endpoint"
	KeyReleaseAsset    = "release.asset"
	KeyReleaseToken    = "release.token"
	KeyReleaseTimeout  = "release.timeout"

	KeyInstallArtifact = "install.artifact"
	KeyInstallDir      = "install.dir"
	KeyInstallMarker   = "install.marker"

	KeyDownloadDir       = "download.dir"
	KeyDownloadChunkSize = "download.chunk-size"
	KeyDownloadTimeout   = "download.timeout"

	KeyLaunchCommand = "launch.command"
	KeyLaunchArgs    = "launch.args"
	KeyLaunchRuntime = "launch.runtime"

	KeyHistoryPath = "history.path"
	KeyLogLevel    = "log.level"
)

const (
	// DefaultLaunchArgs starts a JavaFX application jar.
	DefaultLaunchArgs = "--module-path {runtime} --add-modules javafx.controls,javafx.fxml -jar {artifact}"

	envPrefix      = "LP"
	dirName        = ".launchpad"
	configFileName = "config.yaml"
)

// Config is the resolved, validated configuration. It is a plain value;
// nothing mutates it after Load returns.
type Config struct {
	Release  Release
	Install  Install
	Download Download
	Launch   Launch
	History  History
	Log      Log

	// Sources lists the config files that were merged, lowest precedence first.
	Sources []string
}

// Release locates the release service.
type Release struct {
	Owner        string
	Repo         string
	Endpoint     string
	AssetPattern string
	Token        string
	Timeout      time.Duration
}

// Install locates the installed application.
type Install struct {
	Artifact string
	Dir      string
	Marker   string
}

// Download tunes archive transfers.
type Download struct {
	Dir       string
	ChunkSize int
	Timeout   time.Duration
}

// Launch describes the process started once the install is ready.
type Launch struct {
	Command string
	Args    []string
	Runtime string
}

// History locates the update history database. An empty Path disables it.
type History struct {
	Path string
}

// Log configures the file logger.
type Log struct {
	Level string
}

// LatestURL returns the metadata endpoint, derived from owner/repo when no
// endpoint is configured.
func (r Release) LatestURL() (string, error) {
	if r.Endpoint != "" {
		return r.Endpoint, nil
	}
	if r.Owner == "" || r.Repo == "" {
		return "", apperrors.New(apperrors.CodeConfigurationError,
			"no release source configured: set release.endpoint or release.owner and release.repo", nil)
	}
	return update.GitHubLatestURL("", r.Owner, r.Repo), nil
}

type loadSettings struct {
	workingDir        string
	homeDir           string
	projectConfigPath string
	userConfigPath    string
	overrides         map[string]any
}

// Option configures Load. Useful for tests to override paths.
type Option func(*loadSettings)

// WithWorkingDir overrides the directory used for project config discovery
// and for resolving relative install paths.
func WithWorkingDir(dir string) Option {
	return func(cfg *loadSettings) {
		cfg.workingDir = dir
	}
}

// WithHomeDir overrides the user home directory.
func WithHomeDir(dir string) Option {
	return func(cfg *loadSettings) {
		cfg.homeDir = dir
	}
}

// WithProjectConfig explicitly sets the project config path instead of discovery.
func WithProjectConfig(path string) Option {
	return func(cfg *loadSettings) {
		cfg.projectConfigPath = path
	}
}

// WithUserConfig overrides the default user config path.
func WithUserConfig(path string) Option {
	return func(cfg *loadSettings) {
		cfg.userConfigPath = path
	}
}

// WithOverrides injects values typically coming from CLI flags. They win
// over every other source.
func WithOverrides(overrides map[string]any) Option {
	return func(cfg *loadSettings) {
		if cfg.overrides == nil {
			cfg.overrides = make(map[string]any, len(overrides))
		}
		for k, v := range overrides {
			cfg.overrides[k] = v
		}
	}
}

// Load resolves configuration using the precedence:
// defaults < user config < project config < environment variables < overrides.
func Load(opts ...Option) (Config, error) {
	settings := loadSettings{}
	for _, opt := range opts {
		opt(&settings)
	}

	cfg, err := load(&settings)
	if err != nil {
		var structured apperrors.Error
		if errors.As(err, &structured) {
			return Config{}, err
		}
		return Config{}, apperrors.New(apperrors.CodeConfigurationError, "load configuration", err)
	}
	return cfg, nil
}

func load(settings *loadSettings) (Config, error) {
	workingDir := strings.TrimSpace(settings.workingDir)
	if workingDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("determine working directory: %w", err)
		}
		workingDir = wd
	}

	homeDir := strings.TrimSpace(settings.homeDir)
	if homeDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("determine user home: %w", err)
		}
		homeDir = home
	}

	userConfigPath := strings.TrimSpace(settings.userConfigPath)
	if userConfigPath == "" {
		userConfigPath = filepath.Join(homeDir, dirName, configFileName)
	}

	projectConfigPath := strings.TrimSpace(settings.projectConfigPath)
	if projectConfigPath == "" {
		path, err := findProjectConfig(workingDir)
		if err != nil {
			return Config{}, err
		}
		projectConfigPath = path
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, homeDir)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var sources []string
	for _, p := range []string{userConfigPath, projectConfigPath} {
		merged, err := mergeConfigFile(v, p)
		if err != nil {
			return Config{}, fmt.Errorf("load config: %w", err)
		}
		if merged {
			sources = append(sources, p)
		}
	}
	for k, val := range settings.overrides {
		v.Set(k, val)
	}

	cfg := Config{
		Release: Release{
			Owner:        strings.TrimSpace(v.GetString(KeyReleaseOwner)),
			Repo:         strings.TrimSpace(v.GetString(KeyReleaseRepo)),
			Endpoint:     strings.TrimSpace(v.GetString(KeyReleaseEndpoint)),
			AssetPattern: strings.TrimSpace(v.GetString(KeyReleaseAsset)),
			Token:        strings.TrimSpace(v.GetString(KeyReleaseToken)),
			Timeout:      v.GetDuration(KeyReleaseTimeout),
		},
		Install: Install{
			Artifact: resolvePath(workingDir, homeDir, v.GetString(KeyInstallArtifact)),
			Dir:      resolvePath(workingDir, homeDir, v.GetString(KeyInstallDir)),
			Marker:   strings.TrimSpace(v.GetString(KeyInstallMarker)),
		},
		Download: Download{
			Dir:       resolvePath(workingDir, homeDir, v.GetString(KeyDownloadDir)),
			ChunkSize: v.GetInt(KeyDownloadChunkSize),
			Timeout:   v.GetDuration(KeyDownloadTimeout),
		},
		Launch: Launch{
			Command: strings.TrimSpace(v.GetString(KeyLaunchCommand)),
			Args:    v.GetStringSlice(KeyLaunchArgs),
			Runtime: resolvePath(workingDir, homeDir, v.GetString(KeyLaunchRuntime)),
		},
		History: History{
			Path: resolvePath(workingDir, homeDir, v.GetString(KeyHistoryPath)),
		},
		Log: Log{
			Level: strings.ToLower(strings.TrimSpace(v.GetString(KeyLogLevel))),
		},
		Sources: sources,
	}
	if cfg.Release.Token == "" {
		cfg.Release.Token = strings.TrimSpace(os.Getenv("GITHUB_TOKEN"))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting as a configuration_error.
func (c Config) Validate() error {
	invalid := func(key, format string, args ...any) error {
		return apperrors.New(apperrors.CodeConfigurationError,
			fmt.Sprintf("invalid %s: %s", key, fmt.Sprintf(format, args...)), nil)
	}

	if c.Release.AssetPattern == "" {
		return invalid(KeyReleaseAsset, "must not be empty")
	}
	if _, err := path.Match(c.Release.AssetPattern, ""); err != nil {
		return invalid(KeyReleaseAsset, "bad pattern %q", c.Release.AssetPattern)
	}
	if c.Release.Timeout < 0 {
		return invalid(KeyReleaseTimeout, "must not be negative")
	}
	if c.Install.Artifact == "" {
		return invalid(KeyInstallArtifact, "must not be empty")
	}
	if c.Install.Dir == "" {
		return invalid(KeyInstallDir, "must not be empty")
	}
	if c.Install.Marker == "" {
		return invalid(KeyInstallMarker, "must not be empty")
	}
	if c.Download.ChunkSize <= 0 {
		return invalid(KeyDownloadChunkSize, "must be positive, got %d", c.Download.ChunkSize)
	}
	if c.Download.Timeout < 0 {
		return invalid(KeyDownloadTimeout, "must not be negative")
	}
	if c.Launch.Command == "" {
		return invalid(KeyLaunchCommand, "must not be empty")
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return invalid(KeyLogLevel, "unknown level %q", c.Log.Level)
	}
	return nil
}

// mergeConfigFile merges the YAML file at path, reporting whether anything
// was read. Missing and empty files are skipped.
func mergeConfigFile(v *viper.Viper, path string) (bool, error) {
	if strings.TrimSpace(path) == "" {
		return false, nil
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return false, fmt.Errorf("config path %s is a directory", path)
	}
	//nolint:gosec // G304: Config loader intentionally reads user and project config files
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return false, nil
	}
	if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
		return false, fmt.Errorf("parse %s: %w", path, err)
	}
	return true, nil
}

func findProjectConfig(startDir string) (string, error) {
	if strings.TrimSpace(startDir) == "" {
		return "", nil
	}
	dir := startDir
	for {
		candidate := filepath.Join(dir, dirName, configFileName)
		info, err := os.Stat(candidate)
		if err == nil {
			if info.IsDir() {
				return "", fmt.Errorf("config path %s is a directory", candidate)
			}
			return candidate, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("stat %s: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func setDefaults(v *viper.Viper, homeDir string) {
	v.SetDefault(KeyReleaseOwner, "")
	v.SetDefault(KeyReleaseRepo, "")
	v.SetDefault(KeyReleaseEndpoint, "")
	v.SetDefault(KeyReleaseAsset, update.DefaultAssetPattern)
	v.SetDefault(KeyReleaseToken, "")
	v.SetDefault(KeyReleaseTimeout, update.DefaultTimeout)

	v.SetDefault(KeyInstallArtifact, filepath.Join("app", "app.jar"))
	v.SetDefault(KeyInstallDir, "app")
	v.SetDefault(KeyInstallMarker, update.DefaultMarkerPath)

	v.SetDefault(KeyDownloadDir, "")
	v.SetDefault(KeyDownloadChunkSize, update.DefaultChunkSize)
	v.SetDefault(KeyDownloadTimeout, time.Duration(0))

	v.SetDefault(KeyLaunchCommand, "java")
	v.SetDefault(KeyLaunchArgs, DefaultLaunchArgs)
	v.SetDefault(KeyLaunchRuntime, "")

	v.SetDefault(KeyHistoryPath, filepath.Join(homeDir, dirName, "history.db"))
	v.SetDefault(KeyLogLevel, "info")
}

// StateDir returns the per-user directory holding logs and history.
func StateDir(homeDir string) string {
	return filepath.Join(homeDir, dirName)
}

// resolvePath expands a leading ~ and anchors relative paths at workingDir.
// Empty stays empty.
func resolvePath(workingDir, homeDir, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if p == "~" {
		return homeDir
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(homeDir, p[2:])
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(workingDir, p)
}
