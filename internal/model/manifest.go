package model

import (
	"fmt"
	"strings"
	"time"
)

const ManifestSchemaVersion = 2

func NowISO() string {
	return time.Now().Format(time.RFC3339)
}

// ChapterMenuItem is one ranked chapter offered for selection.
type ChapterMenuItem struct {
	ChapterID string   `json:"chapter_id"`
	Title     string   `json:"title"`
	Score     *float64 `json:"score"`
	CharCount *int     `json:"char_count"`
}

// ArtifactRecord is one artifact creation attempt outcome. Records are
// append-only on the manifest; corrections are new records.
type ArtifactRecord struct {
	ArtifactType string         `json:"artifact_type"`
	Status       string         `json:"status"`
	ArtifactID   string         `json:"artifact_id"`
	ChapterID    string         `json:"chapter_id"`
	SourceID     string         `json:"source_id"`
	Path         string         `json:"path"`
	Error        string         `json:"error"`
	Detail       map[string]any `json:"detail"`
}

// ArtifactRecordFromMap builds a record from a loose stage payload row,
// tolerating the alternate key spellings the external tooling emits.
// Unclaimed keys land in Detail.
func ArtifactRecordFromMap(data map[string]any) ArtifactRecord {
	claimed := map[string]bool{
		"artifact_type": true, "type": true,
		"status": true, "outcome": true,
		"artifact_id": true, "id": true,
		"chapter_id": true, "source_id": true,
		"path": true, "output_path": true,
		"error": true, "reason": true,
	}

	rec := ArtifactRecord{
		ArtifactType: firstString(data, "artifact_type", "type"),
		Status:       firstString(data, "status", "outcome"),
		ArtifactID:   firstString(data, "artifact_id", "id"),
		ChapterID:    firstString(data, "chapter_id"),
		SourceID:     firstString(data, "source_id"),
		Path:         firstString(data, "path", "output_path"),
		Error:        firstString(data, "error", "reason"),
		Detail:       map[string]any{},
	}
	if rec.ArtifactType == "" {
		rec.ArtifactType = "unknown"
	}
	if rec.Status == "" {
		rec.Status = "unknown"
	}
	for k, v := range data {
		if !claimed[k] {
			rec.Detail[k] = v
		}
	}
	return rec
}

func firstString(data map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := data[k]; ok {
			switch t := v.(type) {
			case string:
				if s := strings.TrimSpace(t); s != "" {
					return s
				}
			case fmt.Stringer:
				if s := strings.TrimSpace(t.String()); s != "" {
					return s
				}
			}
		}
	}
	return ""
}

// RunManifest is the canonical per-run state document, rewritten in full
// after every stage.
type RunManifest struct {
	SchemaVersion      int               `json:"schema_version"`
	RunID              string            `json:"run_id"`
	Status             string            `json:"status"`
	CreatedAt          string            `json:"created_at"`
	UpdatedAt          string            `json:"updated_at"`
	WorkspaceRoot      string            `json:"workspace_root"`
	BookTitle          string            `json:"book_title"`
	NotebookID         string            `json:"notebook_id"`
	NotebookStrategy   string            `json:"notebook_strategy"`
	ObjectNotebookID   string            `json:"object_notebook_id"`
	RunNotebookID      string            `json:"run_notebook_id"`
	Plan               []string          `json:"plan"`
	RankedJSON         string            `json:"ranked_json"`
	SelectedChapterIDs []string          `json:"selected_chapter_ids"`
	SelectedSourceIDs  []string          `json:"selected_source_ids"`
	SourceMap          map[string]string `json:"source_map"`
	Menu               []ChapterMenuItem `json:"menu"`
	Artifacts          []ArtifactRecord  `json:"artifacts"`
	Stages             map[string]any    `json:"stages"`
	NextAction         string            `json:"next_action"`
	Errors             []string          `json:"errors"`
}

func NewRunManifest(runID, workspaceRoot string, plan []string) *RunManifest {
	now := NowISO()
	return &RunManifest{
		SchemaVersion:      ManifestSchemaVersion,
		RunID:              runID,
		Status:             StateStarted,
		CreatedAt:          now,
		UpdatedAt:          now,
		WorkspaceRoot:      workspaceRoot,
		NotebookStrategy:   StrategyRun,
		Plan:               plan,
		SelectedChapterIDs: []string{},
		SelectedSourceIDs:  []string{},
		SourceMap:          map[string]string{},
		Menu:               []ChapterMenuItem{},
		Artifacts:          []ArtifactRecord{},
		Stages:             map[string]any{},
		Errors:             []string{},
	}
}

func (m *RunManifest) Touch() {
	m.UpdatedAt = NowISO()
}

// RecordStage overwrites the stage's latest payload; stage recording is
// idempotent-by-overwrite while the event log keeps the history.
func (m *RunManifest) RecordStage(stage string, payload any) {
	if m.Stages == nil {
		m.Stages = map[string]any{}
	}
	m.Stages[stage] = payload
	m.Touch()
}

func (m *RunManifest) RecordError(message string) {
	m.Errors = append(m.Errors, message)
	m.Touch()
}

func (m *RunManifest) AppendArtifacts(records []ArtifactRecord) {
	m.Artifacts = append(m.Artifacts, records...)
	m.Touch()
}
