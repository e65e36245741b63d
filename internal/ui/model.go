package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/wordwrap"

	"launchpad/internal/update"
)

const (
	defaultProgressWidth = 40
	maxProgressWidth     = 60
	defaultReasonWidth   = 72
)

// LaunchFunc starts the installed application. It must not block until the
// application exits.
type LaunchFunc func() error

// Option configures a Model.
type Option func(*Model)

// WithLaunch sets the action bound to Enter. Without one the start action is
// never offered.
func WithLaunch(fn LaunchFunc) Option {
	return func(m *Model) {
		m.launch = fn
	}
}

// WithAutoLaunch launches as soon as the cycle reaches Ready.
func WithAutoLaunch(enabled bool) Option {
	return func(m *Model) {
		m.autoLaunch = enabled
	}
}

// WithClipboard replaces the system clipboard writer.
func WithClipboard(write func(string) error) Option {
	return func(m *Model) {
		if write != nil {
			m.copy = write
		}
	}
}

// Model renders the events of one update cycle and gates the start action
// on the Ready state.
type Model struct {
	events     <-chan update.Event
	launch     LaunchFunc
	autoLaunch bool
	copy       func(string) error

	spinner  spinner.Model
	progress progress.Model

	state     update.State
	installed update.Version
	latest    update.Version
	updated   bool
	bytes     update.Progress
	reason    string

	launching bool
	launched  bool
	launchErr error

	showCopyToast  bool
	copyToastStart time.Time

	width int
}

// New creates a model that reads from events until the terminal event.
func New(events <-chan update.Event, opts ...Option) *Model {
	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = spinnerStyle

	p := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(defaultProgressWidth),
		progress.WithoutPercentage(),
	)

	m := &Model{
		events:   events,
		copy:     clipboard.WriteAll,
		spinner:  s,
		progress: p,
		state:    update.Idle,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run drives the model on a bubbletea program until the user quits or ctx
// is cancelled.
func (m *Model) Run(ctx context.Context, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)
	if _, err := tea.NewProgram(m, opts...).Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// State returns the last state received from the worker.
func (m *Model) State() update.State { return m.state }

// Launched reports whether the launch action ran successfully.
func (m *Model) Launched() bool { return m.launched }

// LaunchErr returns the error from the last launch attempt.
func (m *Model) LaunchErr() error { return m.launchErr }

// Reason returns the failure reason, if the cycle failed.
func (m *Model) Reason() string { return m.reason }

func (m *Model) canLaunch() bool {
	return m.state == update.Ready && m.launch != nil && !m.launching && !m.launched
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		waitForEvent(m.events),
	)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = clampProgressWidth(msg.Width)
		return m, nil

	case eventMsg:
		return m.applyEvent(update.Event(msg))

	case eventsClosedMsg:
		if !m.state.Terminal() {
			m.state = update.Failed
			m.reason = "The update stopped before it finished"
		}
		return m, nil

	case launchDoneMsg:
		m.launching = false
		if msg.err != nil {
			m.launchErr = msg.err
			return m, nil
		}
		m.launched = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		return m, cmd

	case copyToastTickMsg:
		if !m.showCopyToast {
			return m, nil
		}
		if time.Since(m.copyToastStart) >= copyToastDuration {
			m.showCopyToast = false
			return m, nil
		}
		return m, scheduleCopyToastTick()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m *Model) applyEvent(ev update.Event) (tea.Model, tea.Cmd) {
	m.state = ev.State
	if ev.State != update.CheckingVersion {
		m.installed = ev.Installed
	}
	if !ev.Latest.IsAbsent() {
		m.latest = ev.Latest
	}

	switch ev.State {
	case update.Downloading:
		m.bytes = ev.Progress
		if ev.Progress.Known() {
			return m, tea.Batch(m.progress.SetPercent(ev.Progress.Ratio()), waitForEvent(m.events))
		}
	case update.Ready:
		m.updated = ev.Updated
		if m.autoLaunch && m.canLaunch() {
			return m, m.startLaunch()
		}
		return m, nil
	case update.Failed:
		m.reason = ev.Reason
		return m, nil
	}
	return m, waitForEvent(m.events)
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q", "esc":
		return m, tea.Quit
	case "enter":
		if m.canLaunch() {
			return m, m.startLaunch()
		}
	case "c":
		if m.reason == "" {
			return m, nil
		}
		if err := m.copy(m.reason); err == nil {
			m.showCopyToast = true
			m.copyToastStart = time.Now()
			return m, scheduleCopyToastTick()
		}
	}
	return m, nil
}

func (m *Model) startLaunch() tea.Cmd {
	m.launching = true
	m.launchErr = nil
	launch := m.launch
	return func() tea.Msg {
		return launchDoneMsg{err: launch()}
	}
}

func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(logo))
	b.WriteString("\n")
	b.WriteString(subtitleStyle.Render(m.truncate(m.versionLine())))
	b.WriteString("\n\n")

	switch m.state {
	case update.Idle, update.CheckingVersion:
		m.writeSpinner(&b, "Checking for updates")
	case update.Downloading:
		m.writeDownload(&b)
	case update.Extracting:
		m.writeSpinner(&b, "Installing update")
	case update.Ready:
		b.WriteString(successStyle.Render(m.truncate(m.readyLine())))
	case update.Failed:
		b.WriteString(errorStyle.Render("✗ Update failed"))
		b.WriteString("\n")
		b.WriteString(reasonStyle.Render(wordwrap.String(m.reason, m.reasonWidth())))
	}

	if m.launchErr != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(m.truncate("✗ Could not start: " + m.launchErr.Error())))
	}

	if hints := m.hints(); hints != "" {
		b.WriteString("\n\n")
		b.WriteString(hints)
	}

	if m.showCopyToast {
		b.WriteString("\n\n")
		b.WriteString(toastStyle.Render("Copied failure reason to clipboard."))
	}

	return containerStyle.Render(b.String())
}

func (m *Model) writeSpinner(b *strings.Builder, status string) {
	b.WriteString(m.spinner.View())
	b.WriteString(" ")
	b.WriteString(statusStyle.Render(m.truncate(status)))
}

func (m *Model) writeDownload(b *strings.Builder) {
	read := humanize.IBytes(uint64(max(m.bytes.BytesRead, 0)))
	if !m.bytes.Known() {
		m.writeSpinner(b, fmt.Sprintf("Downloading %s", read))
		return
	}
	b.WriteString(m.progress.View())
	b.WriteString("\n")
	pct, _ := m.bytes.Percent()
	total := humanize.IBytes(uint64(m.bytes.TotalBytes))
	b.WriteString(countStyle.Render(m.truncate(fmt.Sprintf("Downloading %s / %s (%d%%)", read, total, pct))))
}

func (m *Model) versionLine() string {
	installed := "installed " + m.installed.String()
	if m.latest.IsAbsent() {
		return installed
	}
	return installed + " · latest " + m.latest.String()
}

func (m *Model) readyLine() string {
	if m.updated {
		return "✓ Updated to " + m.latest.String()
	}
	if !m.installed.IsAbsent() {
		return "✓ Up to date (" + m.installed.String() + ")"
	}
	return "✓ Ready"
}

func (m *Model) hints() string {
	var parts []string
	switch {
	case m.launching:
		parts = append(parts, hintStyle.Render("starting..."))
	case m.canLaunch():
		parts = append(parts, keyStyle.Render("enter")+hintStyle.Render(" start"))
	case m.launch != nil:
		parts = append(parts, disabledKeyStyle.Render("enter start"))
	}
	if m.reason != "" {
		parts = append(parts, keyStyle.Render("c")+hintStyle.Render(" copy reason"))
	}
	parts = append(parts, keyStyle.Render("q")+hintStyle.Render(" quit"))
	return strings.Join(parts, hintStyle.Render(" · "))
}

// truncate clips a status line to the window, leaving room for padding.
func (m *Model) truncate(s string) string {
	if m.width <= 0 {
		return s
	}
	limit := m.width - 4
	if limit < 1 {
		limit = 1
	}
	return ansi.Truncate(s, limit, "…")
}

func (m *Model) reasonWidth() int {
	if m.width <= 0 {
		return defaultReasonWidth
	}
	w := m.width - 8
	if w < 20 {
		return 20
	}
	return w
}

func clampProgressWidth(windowWidth int) int {
	w := windowWidth - 8
	if w < 10 {
		return 10
	}
	if w > maxProgressWidth {
		return maxProgressWidth
	}
	return w
}
