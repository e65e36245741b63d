package update

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "launchpad/internal/errors"
)

// releaseFixture serves a release document at /latest and its archive at
// /release.zip, counting archive downloads.
type releaseFixture struct {
	server    *httptest.Server
	downloads atomic.Int32
}

func newReleaseFixture(t *testing.T, tag string, archive []byte) *releaseFixture {
	t.Helper()
	f := &releaseFixture{}
	mux := http.NewServeMux()
	mux.HandleFunc("/latest", func(w http.ResponseWriter, r *http.Request) {
		doc := releaseDocument{
			TagName: tag,
			Assets: []releaseAsset{{
				Name:               "release.zip",
				BrowserDownloadURL: f.server.URL + "/release.zip",
				Size:               int64(len(archive)),
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	})
	mux.HandleFunc("/release.zip", func(w http.ResponseWriter, r *http.Request) {
		f.downloads.Add(1)
		w.Header().Set("Content-Length", strconv.Itoa(len(archive)))
		_, _ = w.Write(archive)
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *releaseFixture) resolver() *Resolver {
	return NewResolver(f.server.URL + "/latest")
}

// testLayout installs into dir/app with the artifact at dir/app/app.jar.
func testLayout(dir string) Layout {
	return Layout{
		ArtifactPath: filepath.Join(dir, "app", "app.jar"),
		InstallDir:   filepath.Join(dir, "app"),
		DownloadDir:  dir,
	}
}

// releaseArchive returns a release zip that installs app.jar at version.
func releaseArchive(t *testing.T, version string) []byte {
	t.Helper()
	jar := buildZip(t, jarWithVersion(version))
	return buildZip(t, []zipEntry{
		{name: "app.jar", body: string(jar)},
		{name: "lib/"},
		{name: "lib/runtime.txt", body: "runtime"},
	})
}

func installVersion(t *testing.T, layout Layout, version string) {
	t.Helper()
	writeZip(t, layout.InstallDir, "app.jar", jarWithVersion(version))
}

type fakeRecorder struct {
	mu      sync.Mutex
	results []Result
	err     error
}

func (r *fakeRecorder) Record(_ context.Context, result Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
	return r.err
}

func TestRunUpToDateSkipsDownload(t *testing.T) {
	dir := t.TempDir()
	layout := testLayout(dir)
	installVersion(t, layout, "2.0.0")
	fixture := newReleaseFixture(t, "2.0.0", releaseArchive(t, "2.0.0"))

	res := NewOrchestrator(layout, fixture.resolver()).Run(context.Background())

	if res.State != Ready || !res.LaunchPermitted {
		t.Fatalf("Run() = %s (launch %v), want ready: %v", res.State, res.LaunchPermitted, res.Err)
	}
	if res.Updated {
		t.Error("Updated = true for an up-to-date install")
	}
	if n := fixture.downloads.Load(); n != 0 {
		t.Errorf("archive downloaded %d times, want 0", n)
	}
	if res.Installed.String() != "2.0.0" || res.Latest.String() != "2.0.0" {
		t.Errorf("versions = %s / %s", res.Installed, res.Latest)
	}
}

func TestRunFreshInstall(t *testing.T) {
	dir := t.TempDir()
	layout := testLayout(dir)
	archive := releaseArchive(t, "2.0.0")
	fixture := newReleaseFixture(t, "v2.0.0", archive)

	res := NewOrchestrator(layout, fixture.resolver()).Run(context.Background())

	if res.State != Ready || !res.LaunchPermitted {
		t.Fatalf("Run() = %s, want ready: %v", res.State, res.Err)
	}
	if !res.Updated {
		t.Error("Updated = false after installing")
	}
	if !res.Installed.IsAbsent() {
		t.Errorf("Installed = %s, want none", res.Installed)
	}
	if res.BytesDownloaded != int64(len(archive)) {
		t.Errorf("BytesDownloaded = %d, want %d", res.BytesDownloaded, len(archive))
	}

	got, err := ReadInstalled(layout.ArtifactPath, "")
	if err != nil {
		t.Fatalf("ReadInstalled() after update: %v", err)
	}
	if got.String() != "2.0.0" {
		t.Errorf("installed version = %s, want 2.0.0", got)
	}
	if _, err := os.Stat(filepath.Join(layout.InstallDir, "lib", "runtime.txt")); err != nil {
		t.Errorf("lib/runtime.txt not extracted: %v", err)
	}

	leftovers, _ := filepath.Glob(filepath.Join(dir, "launchpad-download-*"))
	if len(leftovers) != 0 {
		t.Errorf("downloaded archive not cleaned up: %v", leftovers)
	}
}

func TestRunOlderInstallUpdates(t *testing.T) {
	dir := t.TempDir()
	layout := testLayout(dir)
	installVersion(t, layout, "1.0.0")
	fixture := newReleaseFixture(t, "1.0.1", releaseArchive(t, "1.0.1"))

	res := NewOrchestrator(layout, fixture.resolver()).Run(context.Background())
	if res.State != Ready || !res.Updated {
		t.Fatalf("Run() = %s updated=%v: %v", res.State, res.Updated, res.Err)
	}
	if got, _ := ReadInstalled(layout.ArtifactPath, ""); got.String() != "1.0.1" {
		t.Errorf("installed version = %s, want 1.0.1", got)
	}
}

func TestRunNewerInstallKept(t *testing.T) {
	dir := t.TempDir()
	layout := testLayout(dir)
	installVersion(t, layout, "3.0")
	fixture := newReleaseFixture(t, "2.0.0", releaseArchive(t, "2.0.0"))

	res := NewOrchestrator(layout, fixture.resolver()).Run(context.Background())
	if res.State != Ready || res.Updated {
		t.Fatalf("Run() = %s updated=%v, want ready without update", res.State, res.Updated)
	}
	if fixture.downloads.Load() != 0 {
		t.Error("newer install should not be replaced")
	}
}

func TestRunUnsafeArchive(t *testing.T) {
	dir := t.TempDir()
	layout := testLayout(dir)
	archive := buildZip(t, []zipEntry{
		{name: "app.jar", body: "ok"},
		{name: "../evil.txt", body: "escape"},
	})
	fixture := newReleaseFixture(t, "2.0.0", archive)

	res := NewOrchestrator(layout, fixture.resolver()).Run(context.Background())

	if res.State != Failed || res.LaunchPermitted {
		t.Fatalf("Run() = %s launch=%v, want failed without launch", res.State, res.LaunchPermitted)
	}
	if !apperrors.IsCode(res.Err, apperrors.CodeUnsafeArchiveEntry) {
		t.Errorf("error code = %q, want %q", apperrors.CodeOf(res.Err), apperrors.CodeUnsafeArchiveEntry)
	}
	if res.Reason == "" {
		t.Error("Reason is empty")
	}
	if files := listFiles(t, dir); len(files) != 0 {
		t.Errorf("files written for an unsafe archive: %v", files)
	}
}

func TestRunNetworkUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	dir := t.TempDir()
	layout := testLayout(dir)
	installVersion(t, layout, "1.0.0")

	res := NewOrchestrator(layout, NewResolver(server.URL)).Run(context.Background())
	if res.State != Failed || res.LaunchPermitted {
		t.Fatalf("Run() = %s, want failed", res.State)
	}
	if !apperrors.IsCode(res.Err, apperrors.CodeNetworkUnavailable) {
		t.Errorf("error code = %q, want %q", apperrors.CodeOf(res.Err), apperrors.CodeNetworkUnavailable)
	}
	if res.Installed.String() != "1.0.0" {
		t.Errorf("Installed = %s, want 1.0.0", res.Installed)
	}
}

func TestRunUnreadableInstallForcesUpdate(t *testing.T) {
	tests := []struct {
		name    string
		install func(t *testing.T, layout Layout)
	}{
		{
			name: "marker missing",
			install: func(t *testing.T, layout Layout) {
				writeZip(t, layout.InstallDir, "app.jar", []zipEntry{{name: "META-INF/MANIFEST.MF", body: "x"}})
			},
		},
		{
			name: "malformed installed version",
			install: func(t *testing.T, layout Layout) {
				installVersion(t, layout, "1.x.0")
			},
		},
		{
			name: "prerelease installed version",
			install: func(t *testing.T, layout Layout) {
				installVersion(t, layout, "2.0.0-beta")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			layout := testLayout(dir)
			tt.install(t, layout)
			fixture := newReleaseFixture(t, "2.0.0", releaseArchive(t, "2.0.0"))

			res := NewOrchestrator(layout, fixture.resolver()).Run(context.Background())
			if res.State != Ready || !res.Updated {
				t.Fatalf("Run() = %s updated=%v, want forced update: %v", res.State, res.Updated, res.Err)
			}
			if fixture.downloads.Load() != 1 {
				t.Errorf("downloads = %d, want 1", fixture.downloads.Load())
			}
		})
	}
}

func TestRunSingleUse(t *testing.T) {
	dir := t.TempDir()
	layout := testLayout(dir)
	installVersion(t, layout, "2.0.0")
	fixture := newReleaseFixture(t, "2.0.0", releaseArchive(t, "2.0.0"))
	recorder := &fakeRecorder{}

	o := NewOrchestrator(layout, fixture.resolver(), WithRecorder(recorder))
	if first := o.Run(context.Background()); first.State != Ready {
		t.Fatalf("first Run() = %s: %v", first.State, first.Err)
	}

	second := o.Run(context.Background())
	if second.State != Failed || second.LaunchPermitted {
		t.Errorf("second Run() = %s, want failed", second.State)
	}
	if !errors.Is(second.Err, ErrAlreadyStarted) {
		t.Errorf("second Run() error = %v, want ErrAlreadyStarted", second.Err)
	}

	var events []Event
	for ev := range o.Start(context.Background()) {
		events = append(events, ev)
	}
	if len(events) != 1 || events[0].State != Failed || !apperrors.IsCode(events[0].Err, apperrors.CodeAlreadyStarted) {
		t.Errorf("Start() after Run() events = %+v", events)
	}

	if len(recorder.results) != 1 {
		t.Errorf("recorded %d results, want 1", len(recorder.results))
	}
}

func TestStartEventSequence(t *testing.T) {
	dir := t.TempDir()
	layout := testLayout(dir)
	fixture := newReleaseFixture(t, "2.0.0", releaseArchive(t, "2.0.0"))

	o := NewOrchestrator(layout, fixture.resolver(), WithFetcher(NewDownloader(WithChunkSize(64))))

	var events []Event
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range o.Start(context.Background()) {
			events = append(events, ev)
		}
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("event channel never closed")
	}

	if len(events) < 4 {
		t.Fatalf("got %d events, want at least 4", len(events))
	}
	if events[0].State != CheckingVersion {
		t.Errorf("first event = %s, want checking", events[0].State)
	}
	last := events[len(events)-1]
	if last.State != Ready || !last.Updated {
		t.Errorf("last event = %s updated=%v, want ready", last.State, last.Updated)
	}

	prev := Idle
	lastPct := -1
	sawProgress := false
	for i, ev := range events {
		if ev.State < prev {
			t.Fatalf("event %d: state went back from %s to %s", i, prev, ev.State)
		}
		prev = ev.State
		if ev.State == Downloading && ev.Progress.BytesRead > 0 {
			sawProgress = true
			pct, known := ev.Progress.Percent()
			if !known {
				t.Fatalf("event %d: unknown total despite Content-Length", i)
			}
			if pct < lastPct {
				t.Fatalf("event %d: percent went from %d to %d", i, lastPct, pct)
			}
			lastPct = pct
		}
	}
	if !sawProgress {
		t.Error("no download progress relayed")
	}
	if lastPct != 100 {
		t.Errorf("final percent = %d, want 100", lastPct)
	}
}

func TestStartFailureEvent(t *testing.T) {
	dir := t.TempDir()
	layout := testLayout(dir)
	archive := buildZip(t, []zipEntry{{name: "/etc/evil", body: "x"}})
	fixture := newReleaseFixture(t, "2.0.0", archive)

	var last Event
	for ev := range NewOrchestrator(layout, fixture.resolver()).Start(context.Background()) {
		last = ev
	}
	if last.State != Failed {
		t.Fatalf("last event = %s, want failed", last.State)
	}
	if last.Reason == "" || last.Err == nil {
		t.Errorf("failed event missing reason or error: %+v", last)
	}
}

type failingFetcher struct {
	partial int64
}

func (f failingFetcher) Download(_ context.Context, url, _ string, onProgress func(Progress)) (string, error) {
	onProgress(Progress{BytesRead: f.partial, TotalBytes: f.partial * 2})
	return "", &apperrors.DownloadError{URL: url, PartialBytes: f.partial, Err: errors.New("connection reset")}
}

func TestRunDownloadFailureRecorded(t *testing.T) {
	dir := t.TempDir()
	layout := testLayout(dir)
	fixture := newReleaseFixture(t, "2.0.0", releaseArchive(t, "2.0.0"))
	recorder := &fakeRecorder{err: errors.New("disk full")}
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	res := NewOrchestrator(layout, fixture.resolver(),
		WithFetcher(failingFetcher{partial: 512}),
		WithRecorder(recorder),
		WithClock(func() time.Time { return fixed }),
	).Run(context.Background())

	if res.State != Failed || !apperrors.IsCode(res.Err, apperrors.CodeDownloadFailed) {
		t.Fatalf("Run() = %s %v, want download failure", res.State, res.Err)
	}
	if res.BytesDownloaded != 512 {
		t.Errorf("BytesDownloaded = %d, want 512", res.BytesDownloaded)
	}
	if len(recorder.results) != 1 {
		t.Fatalf("recorded %d results, want 1 even when the recorder errors", len(recorder.results))
	}
	if got := recorder.results[0]; !got.StartedAt.Equal(fixed) || !got.FinishedAt.Equal(fixed) {
		t.Errorf("recorded timestamps = %v / %v, want %v", got.StartedAt, got.FinishedAt, fixed)
	}
}

func TestFailureReason(t *testing.T) {
	if FailureReason(nil) != "" {
		t.Error("FailureReason(nil) should be empty")
	}
	err := apperrors.New(apperrors.CodeNetworkUnavailable, "release service unreachable", nil)
	want := "Could not reach the update server: release service unreachable"
	if got := FailureReason(err); got != want {
		t.Errorf("FailureReason() = %q, want %q", got, want)
	}
	if got := FailureReason(ErrAlreadyStarted); got != "An update is already in progress" {
		t.Errorf("FailureReason(ErrAlreadyStarted) = %q", got)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Idle, "idle"},
		{CheckingVersion, "checking"},
		{Downloading, "downloading"},
		{Extracting, "extracting"},
		{Ready, "ready"},
		{Failed, "failed"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
	if !Ready.Terminal() || !Failed.Terminal() || Downloading.Terminal() {
		t.Error("Terminal() mismatch")
	}
}
