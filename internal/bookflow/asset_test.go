package bookflow

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAssetIDPrefersEpubBytes(t *testing.T) {
	dir := t.TempDir()
	epub := filepath.Join(dir, "book.epub")
	ranked := filepath.Join(dir, "ranked.json")
	if err := os.WriteFile(epub, []byte("epub-bytes"), 0o644); err != nil {
		t.Fatalf("write epub: %v", err)
	}
	if err := os.WriteFile(ranked, []byte("ranked-bytes"), 0o644); err != nil {
		t.Fatalf("write ranked: %v", err)
	}

	fromEpub, err := AssetID(epub, ranked, "Some Title")
	if err != nil {
		t.Fatalf("asset id: %v", err)
	}
	fromRanked, err := AssetID("", ranked, "Some Title")
	if err != nil {
		t.Fatalf("asset id: %v", err)
	}
	if fromEpub == fromRanked {
		t.Fatalf("epub bytes must take precedence over ranked json")
	}
}

func TestAssetIDTitleFallbackNormalizes(t *testing.T) {
	a, err := AssetID("", "", "  The   Book ")
	if err != nil {
		t.Fatalf("asset id: %v", err)
	}
	b, err := AssetID("", "", "the book")
	if err != nil {
		t.Fatalf("asset id: %v", err)
	}
	if a != b {
		t.Fatalf("normalized titles must hash identically: %s vs %s", a, b)
	}
}

func TestAssetIDNoInputs(t *testing.T) {
	if _, err := AssetID("", "", "   "); err == nil {
		t.Fatalf("expected error with no identity inputs")
	}
}

func TestAssetIDMissingFileFallsThrough(t *testing.T) {
	id, err := AssetID("/nonexistent/book.epub", "", "fallback title")
	if err != nil {
		t.Fatalf("asset id: %v", err)
	}
	want, _ := AssetID("", "", "fallback title")
	if id != want {
		t.Fatalf("missing epub must fall through to title hash")
	}
}
