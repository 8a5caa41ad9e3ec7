package store

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "bookflow.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestUpsertAssetIdempotent(t *testing.T) {
	s := openTestStore(t)
	a := Asset{AssetID: "sha-1", Title: "First Title", EpubPath: "/tmp/book.epub"}
	if err := s.UpsertAsset(a); err != nil {
		t.Fatalf("insert: %v", err)
	}
	a.Title = "Corrected Title"
	if err := s.UpsertAsset(a); err != nil {
		t.Fatalf("update: %v", err)
	}

	var title string
	if err := s.db.QueryRow(`SELECT title FROM assets WHERE asset_id = ?`, "sha-1").Scan(&title); err != nil {
		t.Fatalf("query: %v", err)
	}
	if title != "Corrected Title" {
		t.Fatalf("title = %q", title)
	}
}

func TestObjectNotebookLookup(t *testing.T) {
	s := openTestStore(t)
	if err := s.UpsertAsset(Asset{AssetID: "sha-1"}); err != nil {
		t.Fatalf("asset: %v", err)
	}

	id, err := s.GetObjectNotebookID("sha-1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if id != "" {
		t.Fatalf("expected empty id before insert, got %q", id)
	}

	if err := s.UpsertObjectNotebook("sha-1", "nb-stable"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	id, err = s.GetObjectNotebookID("sha-1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if id != "nb-stable" {
		t.Fatalf("id = %q", id)
	}
}

func TestCachedSourceMapMostRecentWins(t *testing.T) {
	s := openTestStore(t)
	if err := s.UpsertAsset(Asset{AssetID: "sha-1"}); err != nil {
		t.Fatalf("asset: %v", err)
	}

	if err := s.UpsertRun(Run{RunID: "run-old", AssetID: "sha-1", Status: "completed"}); err != nil {
		t.Fatalf("run-old: %v", err)
	}
	if err := s.UpsertRunNotebook("run-old", "nb-1", "object"); err != nil {
		t.Fatalf("run-old notebook: %v", err)
	}
	if err := s.ReplaceRunSources("run-old", []RunSource{
		{ChapterID: "ch01", SourceID: "src-old-1", Title: "ch01"},
		{ChapterID: "ch02", SourceID: "src-old-2", Title: "ch02"},
	}); err != nil {
		t.Fatalf("run-old sources: %v", err)
	}

	if err := s.UpsertRun(Run{RunID: "run-new", AssetID: "sha-1", Status: "completed"}); err != nil {
		t.Fatalf("run-new: %v", err)
	}
	if err := s.UpsertRunNotebook("run-new", "nb-1", "object"); err != nil {
		t.Fatalf("run-new notebook: %v", err)
	}
	if err := s.ReplaceRunSources("run-new", []RunSource{
		{ChapterID: "ch01", SourceID: "src-new-1", Title: "ch01"},
	}); err != nil {
		t.Fatalf("run-new sources: %v", err)
	}

	got, err := s.GetCachedSourceMap("sha-1", "nb-1")
	if err != nil {
		t.Fatalf("cached map: %v", err)
	}
	if got["ch01"] != "src-new-1" {
		t.Fatalf("ch01 = %q, most recent run must win", got["ch01"])
	}
	if got["ch02"] != "src-old-2" {
		t.Fatalf("ch02 = %q, older mapping must survive", got["ch02"])
	}
}

func TestCachedSourceMapScopedToNotebook(t *testing.T) {
	s := openTestStore(t)
	if err := s.UpsertAsset(Asset{AssetID: "sha-1"}); err != nil {
		t.Fatalf("asset: %v", err)
	}
	if err := s.UpsertRun(Run{RunID: "run-1", AssetID: "sha-1"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := s.UpsertRunNotebook("run-1", "nb-other", "run"); err != nil {
		t.Fatalf("notebook: %v", err)
	}
	if err := s.ReplaceRunSources("run-1", []RunSource{{ChapterID: "ch01", SourceID: "src-1"}}); err != nil {
		t.Fatalf("sources: %v", err)
	}

	got, err := s.GetCachedSourceMap("sha-1", "nb-active")
	if err != nil {
		t.Fatalf("cached map: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("mappings from another notebook leaked: %+v", got)
	}
}

func TestReplaceArtifactsAndCounts(t *testing.T) {
	s := openTestStore(t)
	if err := s.UpsertRun(Run{RunID: "run-1", AssetID: "sha-1"}); err != nil {
		t.Fatalf("run: %v", err)
	}

	first := []ArtifactRow{
		{ArtifactType: "briefing", Status: "ok", ArtifactID: "a1"},
		{ArtifactType: "quiz", Status: "failed", Error: "timeout"},
	}
	if err := s.ReplaceArtifacts("run-1", first); err != nil {
		t.Fatalf("replace: %v", err)
	}

	second := []ArtifactRow{
		{ArtifactType: "briefing", Status: "ok", ArtifactID: "a1"},
		{ArtifactType: "quiz", Status: "ok", ArtifactID: "a2"},
		{ArtifactType: "infographic", Status: "ok", ArtifactID: "a3"},
	}
	if err := s.ReplaceArtifacts("run-1", second); err != nil {
		t.Fatalf("replace again: %v", err)
	}

	counts, err := s.CountArtifacts("run-1")
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts["ok"] != 3 || counts["failed"] != 0 {
		t.Fatalf("counts = %+v", counts)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	for _, id := range []string{"run-a", "run-b", "run-c"} {
		if err := s.UpsertRun(Run{RunID: id, Status: "completed"}); err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
	}

	runs, err := s.ListRuns(2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len = %d", len(runs))
	}
	if runs[0].RunID != "run-c" || runs[1].RunID != "run-b" {
		t.Fatalf("order = %s, %s", runs[0].RunID, runs[1].RunID)
	}
}
