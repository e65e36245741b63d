package update

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// zipEntry describes one entry of a test archive. Names ending in "/" are
// written as directories; mode overrides the default file mode.
type zipEntry struct {
	name string
	body string
	mode os.FileMode
}

// buildZip returns the bytes of an archive holding entries in order.
func buildZip(t *testing.T, entries []zipEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		header := &zip.FileHeader{Name: e.name, Method: zip.Deflate}
		switch {
		case e.mode != 0:
			header.SetMode(e.mode)
		case len(e.name) > 0 && e.name[len(e.name)-1] == '/':
			header.SetMode(os.ModeDir | 0o755)
		default:
			header.SetMode(0o644)
		}
		w, err := zw.CreateHeader(header)
		if err != nil {
			t.Fatalf("create zip entry %s: %v", e.name, err)
		}
		if e.body != "" {
			if _, err := w.Write([]byte(e.body)); err != nil {
				t.Fatalf("write zip entry %s: %v", e.name, err)
			}
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip writer: %v", err)
	}
	return buf.Bytes()
}

// writeZip writes an archive holding entries to dir/name and returns its path.
func writeZip(t *testing.T, dir, name string, entries []zipEntry) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create archive dir: %v", err)
	}
	if err := os.WriteFile(path, buildZip(t, entries), 0o644); err != nil {
		t.Fatalf("write archive: %v", err)
	}
	return path
}

// listFiles returns every regular file under root, relative and slash separated.
func listFiles(t *testing.T, root string) []string {
	t.Helper()

	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk %s: %v", root, err)
	}
	return files
}

// jarWithVersion returns the entries of a minimal installed artifact.
func jarWithVersion(version string) []zipEntry {
	return []zipEntry{
		{name: "META-INF/"},
		{name: "META-INF/MANIFEST.MF", body: "Manifest-Version: 1.0\n"},
		{name: "Recursos/"},
		{name: "Recursos/version.txt", body: version},
	}
}
