package runstore

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteJSONReadJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "doc.json")
	in := map[string]any{"name": "run-1", "count": float64(3)}
	if err := WriteJSON(path, in); err != nil {
		t.Fatalf("write: %v", err)
	}

	var out map[string]any
	if err := ReadJSON(path, &out); err != nil {
		t.Fatalf("read: %v", err)
	}
	if out["name"] != "run-1" || out["count"] != float64(3) {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestWriteBytesLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin")
	if err := WriteBytes(path, []byte("payload")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := WriteBytes(path, []byte("payload-2")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "payload-2" {
		t.Fatalf("content = %q", data)
	}
}

func TestListRunDirsSortedAndLatest(t *testing.T) {
	runs := t.TempDir()
	for _, name := range []string{"2026-01-02", "2026-01-01", "2026-01-03"} {
		if err := Mkdir(filepath.Join(runs, name)); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	// Files are ignored.
	if err := os.WriteFile(filepath.Join(runs, "stray.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write stray: %v", err)
	}

	dirs, err := ListRunDirs(runs)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(dirs) != 3 {
		t.Fatalf("len = %d", len(dirs))
	}
	latest, err := LatestRunDir(runs)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if filepath.Base(latest) != "2026-01-03" {
		t.Fatalf("latest = %s", latest)
	}
}

func TestListRunDirsMissingDir(t *testing.T) {
	dirs, err := ListRunDirs(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(dirs) != 0 {
		t.Fatalf("expected empty list, got %v", dirs)
	}
}
