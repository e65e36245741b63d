// Package launch starts the installed application once an update cycle has
// left it ready.
package launch

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	apperrors "launchpad/internal/errors"
)

// Placeholders expanded in launch arguments.
const (
	PlaceholderRuntime  = "{runtime}"
	PlaceholderArtifact = "{artifact}"
	PlaceholderDir      = "{dir}"
)

// ErrNotPermitted is returned when launching before a cycle reached Ready.
var ErrNotPermitted = apperrors.New(apperrors.CodeLaunchFailed, "launch not permitted until the update cycle is ready", nil)

// Spec describes the process to start.
type Spec struct {
	Command    string
	Args       []string
	Runtime    string
	Artifact   string
	InstallDir string
}

// LookPathFunc resolves a binary reference to an executable path.
type LookPathFunc func(bin string) (string, error)

// Launcher starts the application described by a Spec.
type Launcher struct {
	spec     Spec
	lookPath LookPathFunc
	stdin    io.Reader
	stdout   io.Writer
	stderr   io.Writer
	logger   *log.Logger
}

// Option configures a Launcher.
type Option func(*Launcher)

// WithLookPath overrides exec.LookPath.
func WithLookPath(fn LookPathFunc) Option {
	return func(l *Launcher) {
		if fn != nil {
			l.lookPath = fn
		}
	}
}

// WithStdio replaces the inherited standard streams.
func WithStdio(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(l *Launcher) {
		l.stdin = stdin
		l.stdout = stdout
		l.stderr = stderr
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(l *Launcher) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates a launcher for spec.
func New(spec Spec, opts ...Option) *Launcher {
	l := &Launcher{
		spec:     spec,
		lookPath: exec.LookPath,
		stdin:    os.Stdin,
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		logger:   log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Command builds the command without starting it.
func (l *Launcher) Command() (*exec.Cmd, error) {
	if strings.TrimSpace(l.spec.Command) == "" {
		return nil, failed("no launch command configured", nil)
	}

	info, err := os.Stat(l.spec.Artifact)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, failed(fmt.Sprintf("application not installed at %s", l.spec.Artifact), nil)
	}
	if err != nil {
		return nil, failed("stat artifact", err)
	}
	if info.IsDir() {
		return nil, failed(fmt.Sprintf("artifact %s is a directory", l.spec.Artifact), nil)
	}

	args, err := ExpandArgs(l.spec.Args, l.spec)
	if err != nil {
		return nil, err
	}

	bin, err := l.lookPath(l.spec.Command)
	if err != nil {
		return nil, failed(fmt.Sprintf("launch command %q not found", l.spec.Command), err)
	}

	//nolint:gosec // G204: launching the configured application is the point
	cmd := exec.Command(bin, args...)
	cmd.Stdin = l.stdin
	cmd.Stdout = l.stdout
	cmd.Stderr = l.stderr
	return cmd, nil
}

// Launch starts the application without waiting for it to exit. permitted
// is the update cycle's launch gate; nothing starts when it is false.
func (l *Launcher) Launch(permitted bool) (*os.Process, error) {
	if !permitted {
		return nil, ErrNotPermitted
	}

	cmd, err := l.Command()
	if err != nil {
		l.logger.Error("launch refused", "err", err)
		return nil, err
	}

	l.logger.Info("launching application", "cmd", cmd.Path, "args", strings.Join(cmd.Args[1:], " "))
	if err := cmd.Start(); err != nil {
		return nil, failed("start application", err)
	}
	l.logger.Info("application started", "pid", cmd.Process.Pid)
	return cmd.Process, nil
}

// ExpandArgs substitutes placeholders in args. Referencing {runtime} with no
// runtime configured is an error.
func ExpandArgs(args []string, spec Spec) ([]string, error) {
	dir := spec.InstallDir
	if dir == "" {
		dir = filepath.Dir(spec.Artifact)
	}
	replacer := strings.NewReplacer(
		PlaceholderRuntime, spec.Runtime,
		PlaceholderArtifact, spec.Artifact,
		PlaceholderDir, dir,
	)

	out := make([]string, 0, len(args))
	for _, arg := range args {
		if strings.Contains(arg, PlaceholderRuntime) && strings.TrimSpace(spec.Runtime) == "" {
			return nil, failed("launch arguments reference {runtime} but launch.runtime is not set", nil)
		}
		out = append(out, replacer.Replace(arg))
	}
	return out, nil
}

func failed(msg string, err error) error {
	return apperrors.New(apperrors.CodeLaunchFailed, msg, err)
}
