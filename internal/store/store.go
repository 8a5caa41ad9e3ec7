// Package store persists cross-run metadata (assets, notebooks, cached
// source mappings, artifact outcomes) in a local sqlite database. The
// filesystem run manifest stays authoritative; the database is a queryable
// index over it.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS assets (
    asset_id         TEXT PRIMARY KEY,
    title            TEXT NOT NULL DEFAULT '',
    epub_path        TEXT NOT NULL DEFAULT '',
    ranked_json_path TEXT NOT NULL DEFAULT '',
    created_at       TEXT NOT NULL,
    updated_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS object_notebooks (
    asset_id    TEXT PRIMARY KEY REFERENCES assets(asset_id),
    notebook_id TEXT NOT NULL,
    updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
    run_id         TEXT PRIMARY KEY,
    asset_id       TEXT NOT NULL DEFAULT '',
    status         TEXT NOT NULL DEFAULT '',
    workspace_root TEXT NOT NULL DEFAULT '',
    created_at     TEXT NOT NULL,
    updated_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS run_notebooks (
    run_id      TEXT PRIMARY KEY REFERENCES runs(run_id),
    notebook_id TEXT NOT NULL,
    strategy    TEXT NOT NULL DEFAULT '',
    updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS run_sources (
    run_id     TEXT NOT NULL REFERENCES runs(run_id),
    chapter_id TEXT NOT NULL,
    source_id  TEXT NOT NULL,
    title      TEXT NOT NULL DEFAULT '',
    position   INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (run_id, chapter_id)
);

CREATE TABLE IF NOT EXISTS artifacts (
    run_id        TEXT NOT NULL REFERENCES runs(run_id),
    position      INTEGER NOT NULL DEFAULT 0,
    artifact_type TEXT NOT NULL,
    status        TEXT NOT NULL,
    artifact_id   TEXT NOT NULL DEFAULT '',
    chapter_id    TEXT NOT NULL DEFAULT '',
    source_id     TEXT NOT NULL DEFAULT '',
    path          TEXT NOT NULL DEFAULT '',
    error         TEXT NOT NULL DEFAULT '',
    created_at    TEXT NOT NULL,
    PRIMARY KEY (run_id, position)
);

CREATE INDEX IF NOT EXISTS idx_runs_asset ON runs(asset_id, updated_at);
`

// Store is safe for use from a single process; sqlite's busy timeout
// covers incidental overlap.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(8000)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)",
		path,
	)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Nanosecond precision keeps recency ordering stable for runs created in
// the same second.
func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

type Asset struct {
	AssetID        string
	Title          string
	EpubPath       string
	RankedJSONPath string
}

func (s *Store) UpsertAsset(a Asset) error {
	now := nowISO()
	_, err := s.db.Exec(`
INSERT INTO assets (asset_id, title, epub_path, ranked_json_path, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(asset_id) DO UPDATE SET
    title = excluded.title,
    epub_path = excluded.epub_path,
    ranked_json_path = excluded.ranked_json_path,
    updated_at = excluded.updated_at`,
		a.AssetID, a.Title, a.EpubPath, a.RankedJSONPath, now, now)
	if err != nil {
		return fmt.Errorf("upsert asset %s: %w", a.AssetID, err)
	}
	return nil
}

func (s *Store) UpsertObjectNotebook(assetID, notebookID string) error {
	_, err := s.db.Exec(`
INSERT INTO object_notebooks (asset_id, notebook_id, updated_at)
VALUES (?, ?, ?)
ON CONFLICT(asset_id) DO UPDATE SET
    notebook_id = excluded.notebook_id,
    updated_at = excluded.updated_at`,
		assetID, notebookID, nowISO())
	if err != nil {
		return fmt.Errorf("upsert object notebook for %s: %w", assetID, err)
	}
	return nil
}

// GetObjectNotebookID returns the stable notebook for the asset, or ""
// when none is recorded.
func (s *Store) GetObjectNotebookID(assetID string) (string, error) {
	var id string
	err := s.db.QueryRow(
		`SELECT notebook_id FROM object_notebooks WHERE asset_id = ?`, assetID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup object notebook for %s: %w", assetID, err)
	}
	return id, nil
}

type Run struct {
	RunID         string
	AssetID       string
	Status        string
	WorkspaceRoot string
	UpdatedAt     string
}

func (s *Store) UpsertRun(r Run) error {
	now := nowISO()
	_, err := s.db.Exec(`
INSERT INTO runs (run_id, asset_id, status, workspace_root, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id) DO UPDATE SET
    asset_id = excluded.asset_id,
    status = excluded.status,
    workspace_root = excluded.workspace_root,
    updated_at = excluded.updated_at`,
		r.RunID, r.AssetID, r.Status, r.WorkspaceRoot, now, now)
	if err != nil {
		return fmt.Errorf("upsert run %s: %w", r.RunID, err)
	}
	return nil
}

func (s *Store) UpsertRunNotebook(runID, notebookID, strategy string) error {
	_, err := s.db.Exec(`
INSERT INTO run_notebooks (run_id, notebook_id, strategy, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(run_id) DO UPDATE SET
    notebook_id = excluded.notebook_id,
    strategy = excluded.strategy,
    updated_at = excluded.updated_at`,
		runID, notebookID, strategy, nowISO())
	if err != nil {
		return fmt.Errorf("upsert run notebook for %s: %w", runID, err)
	}
	return nil
}

type RunSource struct {
	ChapterID string
	SourceID  string
	Title     string
}

// ReplaceRunSources swaps the run's chapter-to-source rows in one
// transaction.
func (s *Store) ReplaceRunSources(runID string, sources []RunSource) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin replace sources for %s: %w", runID, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.Exec(`DELETE FROM run_sources WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("clear sources for %s: %w", runID, err)
	}
	for i, src := range sources {
		if _, err := tx.Exec(`
INSERT INTO run_sources (run_id, chapter_id, source_id, title, position)
VALUES (?, ?, ?, ?, ?)`,
			runID, src.ChapterID, src.SourceID, src.Title, i); err != nil {
			return fmt.Errorf("insert source %s for %s: %w", src.ChapterID, runID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sources for %s: %w", runID, err)
	}
	return nil
}

// GetCachedSourceMap returns chapter_id -> source_id mappings recorded by
// earlier runs of the asset against the given notebook, most recent run
// winning per chapter.
func (s *Store) GetCachedSourceMap(assetID, notebookID string) (map[string]string, error) {
	rows, err := s.db.Query(`
SELECT rs.chapter_id, rs.source_id
FROM run_sources rs
JOIN runs r ON r.run_id = rs.run_id
JOIN run_notebooks rn ON rn.run_id = rs.run_id
WHERE r.asset_id = ? AND rn.notebook_id = ?
ORDER BY r.updated_at DESC, rs.position ASC`,
		assetID, notebookID)
	if err != nil {
		return nil, fmt.Errorf("query cached sources for %s: %w", assetID, err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var chapterID, sourceID string
		if err := rows.Scan(&chapterID, &sourceID); err != nil {
			return nil, fmt.Errorf("scan cached source: %w", err)
		}
		if _, seen := out[chapterID]; !seen {
			out[chapterID] = sourceID
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cached sources: %w", err)
	}
	return out, nil
}

type ArtifactRow struct {
	ArtifactType string
	Status       string
	ArtifactID   string
	ChapterID    string
	SourceID     string
	Path         string
	Error        string
}

// ReplaceArtifacts rewrites the run's artifact rows from the manifest.
// Delete-then-insert keeps the table an exact mirror of the manifest's
// append-only record list.
func (s *Store) ReplaceArtifacts(runID string, rows []ArtifactRow) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin replace artifacts for %s: %w", runID, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.Exec(`DELETE FROM artifacts WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("clear artifacts for %s: %w", runID, err)
	}
	now := nowISO()
	for i, row := range rows {
		if _, err := tx.Exec(`
INSERT INTO artifacts (run_id, position, artifact_type, status, artifact_id, chapter_id, source_id, path, error, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, i, row.ArtifactType, row.Status, row.ArtifactID,
			row.ChapterID, row.SourceID, row.Path, row.Error, now); err != nil {
			return fmt.Errorf("insert artifact %d for %s: %w", i, runID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit artifacts for %s: %w", runID, err)
	}
	return nil
}

// ListRuns returns recent runs, newest first. A zero limit means all.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	query := `SELECT run_id, asset_id, status, workspace_root, updated_at FROM runs ORDER BY updated_at DESC, run_id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	out := []Run{}
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.RunID, &r.AssetID, &r.Status, &r.WorkspaceRoot, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

// CountArtifacts reports per-status counts for a run.
func (s *Store) CountArtifacts(runID string) (map[string]int, error) {
	rows, err := s.db.Query(
		`SELECT status, COUNT(*) FROM artifacts WHERE run_id = ? GROUP BY status`, runID)
	if err != nil {
		return nil, fmt.Errorf("count artifacts for %s: %w", runID, err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan artifact count: %w", err)
		}
		out[strings.TrimSpace(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifact counts: %w", err)
	}
	return out, nil
}
