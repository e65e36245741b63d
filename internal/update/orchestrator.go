package update

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	apperrors "launchpad/internal/errors"
)

// State is a step of the update cycle. States only move forward; Ready and
// Failed are terminal.
type State int

const (
	Idle State = iota
	CheckingVersion
	Downloading
	Extracting
	Ready
	Failed
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case CheckingVersion:
		return "checking"
	case Downloading:
		return "downloading"
	case Extracting:
		return "extracting"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further events follow this state.
func (s State) Terminal() bool {
	return s == Ready || s == Failed
}

// Event is one notification from the update worker.
type Event struct {
	State     State
	Progress  Progress
	Installed Version
	Latest    Version
	Updated   bool

	// Reason and Err are set only when State is Failed.
	Reason string
	Err    error
}

// Result summarises a finished cycle.
type Result struct {
	State           State
	Installed       Version
	Latest          Version
	Updated         bool
	LaunchPermitted bool
	BytesDownloaded int64
	Reason          string
	Err             error
	StartedAt       time.Time
	FinishedAt      time.Time
}

// Layout locates the files a cycle reads and writes.
type Layout struct {
	ArtifactPath string
	MarkerPath   string
	InstallDir   string
	DownloadDir  string
}

// ReleaseSource resolves the latest published release.
type ReleaseSource interface {
	FetchLatest(ctx context.Context) (Release, error)
	DownloadURLFor(release Release) string
}

// ArchiveFetcher downloads a release archive to a temp file.
type ArchiveFetcher interface {
	Download(ctx context.Context, url, dir string, onProgress func(Progress)) (string, error)
}

// ArchiveExtractor unpacks an archive into the install directory.
type ArchiveExtractor interface {
	Extract(archivePath, destDir string) error
}

// Recorder stores the outcome of every finished cycle.
type Recorder interface {
	Record(ctx context.Context, result Result) error
}

// ErrAlreadyStarted is returned when an orchestrator is run a second time.
var ErrAlreadyStarted = apperrors.New(apperrors.CodeAlreadyStarted, "update cycle already started", nil)

// eventBuffer bounds how far the worker runs ahead of its reader.
const eventBuffer = 16

// Orchestrator drives one check, download, extract cycle.
type Orchestrator struct {
	layout    Layout
	source    ReleaseSource
	fetcher   ArchiveFetcher
	extractor ArchiveExtractor
	recorder  Recorder
	logger    *log.Logger
	now       func() time.Time
	started   atomic.Bool
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithFetcher replaces the default Downloader.
func WithFetcher(f ArchiveFetcher) OrchestratorOption {
	return func(o *Orchestrator) {
		o.fetcher = f
	}
}

// WithExtractor replaces the default Extractor.
func WithExtractor(e ArchiveExtractor) OrchestratorOption {
	return func(o *Orchestrator) {
		o.extractor = e
	}
}

// WithRecorder appends every terminal result to r.
func WithRecorder(r Recorder) OrchestratorOption {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// WithLogger sets the logger. The default discards output.
func WithLogger(l *log.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides time.Now for result timestamps.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// NewOrchestrator creates a single-use orchestrator.
func NewOrchestrator(layout Layout, source ReleaseSource, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		layout:    layout,
		source:    source,
		fetcher:   NewDownloader(),
		extractor: NewExtractor(),
		logger:    log.New(io.Discard),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes the cycle on the calling goroutine and returns its result.
func (o *Orchestrator) Run(ctx context.Context) Result {
	if !o.started.CompareAndSwap(false, true) {
		return o.alreadyStarted()
	}
	return o.cycle(ctx, func(Event) {})
}

// Start runs the cycle on a new goroutine. The channel carries every event
// and is closed after the terminal one.
func (o *Orchestrator) Start(ctx context.Context) <-chan Event {
	events := make(chan Event, eventBuffer)

	if !o.started.CompareAndSwap(false, true) {
		res := o.alreadyStarted()
		events <- Event{State: Failed, Reason: res.Reason, Err: res.Err}
		close(events)
		return events
	}

	go func() {
		defer close(events)
		o.cycle(ctx, func(ev Event) {
			if ev.State.Terminal() {
				// Never dropped.
				events <- ev
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		})
	}()

	return events
}

func (o *Orchestrator) alreadyStarted() Result {
	now := o.now()
	return Result{
		State:      Failed,
		Reason:     FailureReason(ErrAlreadyStarted),
		Err:        ErrAlreadyStarted,
		StartedAt:  now,
		FinishedAt: now,
	}
}

func (o *Orchestrator) cycle(ctx context.Context, emit func(Event)) Result {
	res := Result{State: Idle, StartedAt: o.now()}

	emit(Event{State: CheckingVersion})

	installed, err := ReadInstalled(o.layout.ArtifactPath, o.layout.MarkerPath)
	forceUpdate := false
	if err != nil {
		o.logger.Warn("installed version unreadable, forcing update", "artifact", o.layout.ArtifactPath, "err", err)
		installed = Absent
		forceUpdate = true
	}
	res.Installed = installed
	o.logger.Debug("installed version", "version", installed)

	release, err := o.source.FetchLatest(ctx)
	if err != nil {
		return o.fail(ctx, res, emit, err)
	}
	res.Latest = release.Version
	o.logger.Info("latest release", "version", release.Version, "installed", installed)

	needsUpdate, err := NeedsUpdate(installed, release.Version)
	if err != nil {
		o.logger.Warn("version comparison failed, forcing update",
			"installed", installed, "latest", release.Version, "err", err)
	}

	if !needsUpdate && !forceUpdate {
		o.logger.Info("installation is current", "version", installed)
		return o.ready(ctx, res, emit)
	}

	total := int64(-1)
	if release.AssetSize > 0 {
		total = release.AssetSize
	}
	emit(Event{State: Downloading, Progress: Progress{BytesRead: 0, TotalBytes: total},
		Installed: installed, Latest: release.Version})

	url := o.source.DownloadURLFor(release)
	o.logger.Info("downloading release", "url", url, "version", release.Version)
	archive, err := o.fetcher.Download(ctx, url, o.layout.DownloadDir, func(p Progress) {
		res.BytesDownloaded = p.BytesRead
		emit(Event{State: Downloading, Progress: p, Installed: installed, Latest: release.Version})
	})
	if err != nil {
		var dlErr *apperrors.DownloadError
		if errors.As(err, &dlErr) {
			res.BytesDownloaded = dlErr.PartialBytes
		}
		return o.fail(ctx, res, emit, err)
	}

	emit(Event{State: Extracting, Installed: installed, Latest: release.Version})
	o.logger.Info("extracting release", "archive", archive, "dest", o.layout.InstallDir)
	if err := o.extractor.Extract(archive, o.layout.InstallDir); err != nil {
		return o.fail(ctx, res, emit, err)
	}

	res.Updated = true
	return o.ready(ctx, res, emit)
}

func (o *Orchestrator) ready(ctx context.Context, res Result, emit func(Event)) Result {
	res.State = Ready
	res.LaunchPermitted = true
	res.FinishedAt = o.now()
	o.record(ctx, res)
	emit(Event{State: Ready, Installed: res.Installed, Latest: res.Latest, Updated: res.Updated})
	return res
}

func (o *Orchestrator) fail(ctx context.Context, res Result, emit func(Event), err error) Result {
	res.State = Failed
	res.LaunchPermitted = false
	res.Err = err
	res.Reason = FailureReason(err)
	res.FinishedAt = o.now()
	o.logger.Error("update failed", "code", apperrors.CodeOf(err), "err", err)
	o.record(ctx, res)
	emit(Event{State: Failed, Installed: res.Installed, Latest: res.Latest, Reason: res.Reason, Err: err})
	return res
}

func (o *Orchestrator) record(ctx context.Context, res Result) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.Record(context.WithoutCancel(ctx), res); err != nil {
		o.logger.Warn("could not record update history", "err", err)
	}
}

// FailureReason turns a cycle error into a sentence for the user.
func FailureReason(err error) string {
	if err == nil {
		return ""
	}
	var summary string
	switch apperrors.CodeOf(err) {
	case apperrors.CodeNetworkUnavailable:
		summary = "Could not reach the update server"
	case apperrors.CodeMalformedRelease:
		summary = "The update server returned an unusable release"
	case apperrors.CodeDownloadFailed:
		summary = "The update download did not complete"
	case apperrors.CodeUnsafeArchiveEntry:
		summary = "The update archive contains unsafe paths and was rejected"
	case apperrors.CodeExtractionFailed:
		summary = "The update archive is damaged"
	case apperrors.CodeFilesystem:
		summary = "Could not write the update to disk"
	case apperrors.CodeAlreadyStarted:
		return "An update is already in progress"
	default:
		summary = "The update failed"
	}
	return summary + ": " + err.Error()
}
