package update

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	apperrors "launchpad/internal/errors"
)

// DefaultChunkSize is the read size used while streaming an archive.
const DefaultChunkSize = 4096

// Progress reports how far a download has come. TotalBytes is negative when
// the server did not announce a length.
type Progress struct {
	BytesRead  int64
	TotalBytes int64
}

// Known reports whether the total size is known.
func (p Progress) Known() bool {
	return p.TotalBytes >= 0
}

// Percent returns the completed percentage in [0, 100] and true, or 0 and
// false when the total is unknown.
func (p Progress) Percent() (int, bool) {
	if !p.Known() {
		return 0, false
	}
	if p.TotalBytes == 0 {
		return 100, true
	}
	pct := p.BytesRead * 100 / p.TotalBytes
	return int(min(max(pct, 0), 100)), true
}

// Ratio returns Percent as a fraction for progress bars.
func (p Progress) Ratio() float64 {
	pct, _ := p.Percent()
	return float64(pct) / 100
}

// Downloader streams a remote archive into a temporary file.
type Downloader struct {
	httpClient *http.Client
	chunkSize  int
	userAgent  string
}

// DownloaderOption configures a Downloader.
type DownloaderOption func(*Downloader)

// WithDownloadClient sets a custom HTTP client for downloads.
func WithDownloadClient(client *http.Client) DownloaderOption {
	return func(d *Downloader) {
		d.httpClient = client
	}
}

// WithChunkSize sets the streaming buffer size. Non-positive sizes are ignored.
func WithChunkSize(size int) DownloaderOption {
	return func(d *Downloader) {
		if size > 0 {
			d.chunkSize = size
		}
	}
}

// WithDownloadTimeout bounds the whole transfer. Zero means no limit.
func WithDownloadTimeout(timeout time.Duration) DownloaderOption {
	return func(d *Downloader) {
		d.httpClient.Timeout = timeout
	}
}

// WithDownloadUserAgent sets the User-Agent header.
func WithDownloadUserAgent(ua string) DownloaderOption {
	return func(d *Downloader) {
		if ua != "" {
			d.userAgent = ua
		}
	}
}

// NewDownloader creates a downloader with no transfer timeout.
func NewDownloader(opts ...DownloaderOption) *Downloader {
	d := &Downloader{
		httpClient: &http.Client{
			Timeout: 0, // No timeout for downloads
		},
		chunkSize: DefaultChunkSize,
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Download fetches url into a new temp file in dir (os.TempDir when empty)
// and returns its path. The caller owns the file on success.
//
// onProgress, when non-nil, is called after every chunk. On failure the
// partial file is removed and a *errors.DownloadError is returned.
func (d *Downloader) Download(ctx context.Context, url, dir string, onProgress func(Progress)) (string, error) {
	fail := func(read int64, err error) error {
		return &apperrors.DownloadError{URL: url, PartialBytes: read, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fail(0, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/octet-stream")
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fail(0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fail(0, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	tmp, err := os.CreateTemp(dir, "launchpad-download-*.zip")
	if err != nil {
		return "", fail(0, fmt.Errorf("create temp file: %w", err))
	}
	tmpPath := tmp.Name()

	read, err := d.stream(tmp, resp.Body, resp.ContentLength, onProgress)
	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close temp file: %w", closeErr)
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return "", fail(read, err)
	}

	return tmpPath, nil
}

// stream copies body into w one chunk at a time, reporting progress after
// each write. It returns the number of bytes written.
func (d *Downloader) stream(w io.Writer, body io.Reader, total int64, onProgress func(Progress)) (int64, error) {
	if total < 0 {
		total = -1
	}
	buf := make([]byte, d.chunkSize)
	var read int64

	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return read, fmt.Errorf("write temp file: %w", werr)
			}
			read += int64(n)
			if onProgress != nil {
				onProgress(Progress{BytesRead: read, TotalBytes: total})
			}
		}
		if errors.Is(rerr, io.EOF) {
			return read, nil
		}
		if rerr != nil {
			return read, fmt.Errorf("read body: %w", rerr)
		}
	}
}
