package update

import (
	"archive/zip"
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	apperrors "launchpad/internal/errors"
)

// DefaultMarkerPath is where packaged artifacts record their own version.
const DefaultMarkerPath = "Recursos/version.txt"

// Installation describes the artifact currently on disk.
type Installation struct {
	Path    string
	Version Version
}

// ReadInstalled returns the version recorded inside the artifact at
// artifactPath. It returns Absent without error when no artifact exists.
//
// The artifact is opened as a zip archive (jars are zips) and the first line
// of markerPath is the version token. A missing marker or an unreadable
// artifact yields a version_unavailable error.
func ReadInstalled(artifactPath, markerPath string) (Version, error) {
	if markerPath == "" {
		markerPath = DefaultMarkerPath
	}

	info, err := os.Stat(artifactPath)
	if errors.Is(err, fs.ErrNotExist) {
		return Absent, nil
	}
	if err != nil {
		return Absent, unavailable(artifactPath, "stat artifact", err)
	}
	if info.IsDir() {
		return Absent, unavailable(artifactPath, "artifact is a directory", nil)
	}

	//nolint:gosec // G304: artifact path comes from launcher configuration
	zr, err := zip.OpenReader(artifactPath)
	if err != nil {
		return Absent, unavailable(artifactPath, "open artifact", err)
	}
	defer func() { _ = zr.Close() }()

	entry := findEntry(zr.File, markerPath)
	if entry == nil {
		return Absent, unavailable(artifactPath, fmt.Sprintf("version marker %s not found", markerPath), nil)
	}

	rc, err := entry.Open()
	if err != nil {
		return Absent, unavailable(artifactPath, "open version marker", err)
	}
	defer func() { _ = rc.Close() }()

	reader := bufio.NewReader(rc)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return Absent, unavailable(artifactPath, "read version marker", err)
	}
	token := strings.TrimSpace(strings.TrimRight(line, "\r\n"))
	if token == "" {
		return Absent, unavailable(artifactPath, "version marker is empty", nil)
	}

	return NewVersion(token), nil
}

// findEntry matches the marker by cleaned slash path so "./Recursos/version.txt"
// style entries still resolve.
func findEntry(files []*zip.File, markerPath string) *zip.File {
	want := path.Clean(strings.TrimPrefix(markerPath, "/"))
	for _, f := range files {
		if path.Clean(strings.TrimPrefix(f.Name, "/")) == want && !f.FileInfo().IsDir() {
			return f
		}
	}
	return nil
}

func unavailable(artifactPath, msg string, err error) error {
	return apperrors.New(apperrors.CodeVersionUnavailable, fmt.Sprintf("%s: %s", artifactPath, msg), err)
}
