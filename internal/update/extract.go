package update

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	apperrors "launchpad/internal/errors"
)

// Extractor unpacks downloaded release archives into the install directory.
type Extractor struct {
	dirMode  os.FileMode
	fileMode os.FileMode
}

// NewExtractor creates a new extractor.
func NewExtractor() *Extractor {
	return &Extractor{
		dirMode:  0o755,
		fileMode: 0o644,
	}
}

// Extract writes every entry of the zip at archivePath under destDir and
// then deletes the archive, whatever the outcome.
//
// All entries are checked before anything is written; one unsafe entry
// aborts the whole archive. Past that point extraction is not transactional:
// a write failure can leave destDir partially updated.
func (e *Extractor) Extract(archivePath, destDir string) (err error) {
	defer func() {
		if rmErr := os.Remove(archivePath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
			err = apperrors.New(apperrors.CodeFilesystem, "remove archive", rmErr)
		}
	}()

	//nolint:gosec // G304: archive path is the downloader's temp file
	zr, err := zip.OpenReader(archivePath)
	if errors.Is(err, zip.ErrInsecurePath) {
		if zr != nil {
			_ = zr.Close()
		}
		return apperrors.New(apperrors.CodeUnsafeArchiveEntry, "archive contains an insecure path", err)
	}
	if err != nil {
		return apperrors.New(apperrors.CodeExtractionFailed, "open archive", err)
	}
	defer func() { _ = zr.Close() }()

	for _, f := range zr.File {
		if err := checkEntry(destDir, f); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(destDir, e.dirMode); err != nil {
		return apperrors.New(apperrors.CodeFilesystem, "create install directory", err)
	}

	for _, f := range zr.File {
		target := filepath.Join(destDir, filepath.FromSlash(normalizeEntryName(f.Name)))
		if isDirEntry(f) {
			if err := os.MkdirAll(target, e.dirMode); err != nil {
				return apperrors.New(apperrors.CodeFilesystem, fmt.Sprintf("create directory %s", f.Name), err)
			}
			continue
		}
		if err := e.writeFile(f, target); err != nil {
			return err
		}
	}

	return nil
}

// writeFile writes one entry to target, creating parents and overwriting
// whatever is there.
func (e *Extractor) writeFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), e.dirMode); err != nil {
		return apperrors.New(apperrors.CodeFilesystem, fmt.Sprintf("create parent directory for %s", f.Name), err)
	}

	rc, err := f.Open()
	if err != nil {
		return apperrors.New(apperrors.CodeExtractionFailed, fmt.Sprintf("open entry %s", f.Name), err)
	}
	defer func() { _ = rc.Close() }()

	//nolint:gosec // G304: target validated by checkEntry
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, e.fileMode)
	if err != nil {
		return apperrors.New(apperrors.CodeFilesystem, fmt.Sprintf("create file %s", f.Name), err)
	}

	src := &entryReader{r: rc}
	//nolint:gosec // G110: archive size bounded by the release asset
	_, copyErr := io.Copy(out, src)
	closeErr := out.Close()

	switch {
	case src.err != nil:
		return apperrors.New(apperrors.CodeExtractionFailed, fmt.Sprintf("read entry %s", f.Name), src.err)
	case copyErr != nil:
		return apperrors.New(apperrors.CodeFilesystem, fmt.Sprintf("write file %s", f.Name), copyErr)
	case closeErr != nil:
		return apperrors.New(apperrors.CodeFilesystem, fmt.Sprintf("close file %s", f.Name), closeErr)
	}
	return nil
}

// entryReader remembers the first non-EOF read error so corrupt archive data
// can be told apart from a failing destination.
type entryReader struct {
	r   io.Reader
	err error
}

func (r *entryReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) && r.err == nil {
		r.err = err
	}
	return n, err
}

// checkEntry rejects entries that could write outside destDir.
func checkEntry(destDir string, f *zip.File) error {
	name := f.Name
	unsafe := func(reason string) error {
		return apperrors.New(apperrors.CodeUnsafeArchiveEntry,
			fmt.Sprintf("unsafe archive entry %q", name), errors.New(reason))
	}

	if strings.TrimSpace(name) == "" {
		return unsafe("empty name")
	}
	if strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) || hasVolumeName(name) {
		return unsafe("absolute path")
	}
	for _, segment := range strings.FieldsFunc(name, isSeparator) {
		if segment == ".." {
			return unsafe("parent directory reference")
		}
	}
	if f.Mode()&os.ModeSymlink != 0 {
		return unsafe("symbolic link")
	}

	root := filepath.Clean(destDir)
	target := filepath.Join(root, filepath.FromSlash(normalizeEntryName(name)))
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return unsafe("resolves outside the install directory")
	}
	if rel == "." && !isDirEntry(f) {
		return unsafe("file entry names the install directory itself")
	}
	return nil
}

func isSeparator(r rune) bool {
	return r == '/' || r == '\\'
}

// hasVolumeName catches drive letters on every platform, not only Windows.
func hasVolumeName(name string) bool {
	if filepath.VolumeName(name) != "" {
		return true
	}
	return len(name) >= 2 && name[1] == ':' &&
		(name[0] >= 'a' && name[0] <= 'z' || name[0] >= 'A' && name[0] <= 'Z')
}

// normalizeEntryName maps backslash separators to slashes.
func normalizeEntryName(name string) string {
	return strings.ReplaceAll(name, `\`, "/")
}

func isDirEntry(f *zip.File) bool {
	return f.FileInfo().IsDir() || strings.HasSuffix(normalizeEntryName(f.Name), "/")
}
