package model

import "testing"

func TestArtifactRecordFromMapAlternateKeys(t *testing.T) {
	rec := ArtifactRecordFromMap(map[string]any{
		"type":        "briefing",
		"outcome":     "ok",
		"id":          "abc-123",
		"output_path": "/tmp/out.md",
		"reason":      "",
		"extra":       float64(7),
	})
	if rec.ArtifactType != "briefing" {
		t.Fatalf("artifact_type = %q", rec.ArtifactType)
	}
	if rec.Status != "ok" {
		t.Fatalf("status = %q", rec.Status)
	}
	if rec.ArtifactID != "abc-123" {
		t.Fatalf("artifact_id = %q", rec.ArtifactID)
	}
	if rec.Path != "/tmp/out.md" {
		t.Fatalf("path = %q", rec.Path)
	}
	if rec.Detail["extra"] != float64(7) {
		t.Fatalf("detail missing unclaimed key: %+v", rec.Detail)
	}
}

func TestArtifactRecordFromMapDefaults(t *testing.T) {
	rec := ArtifactRecordFromMap(map[string]any{})
	if rec.ArtifactType != "unknown" || rec.Status != "unknown" {
		t.Fatalf("defaults not applied: %+v", rec)
	}
}

func TestRecordStageOverwrites(t *testing.T) {
	m := NewRunManifest("run-1", "/tmp/ws", []string{"briefing", "quiz"})
	m.RecordStage("fetch", map[string]any{"attempt": 1})
	m.RecordStage("fetch", map[string]any{"attempt": 2})

	payload, ok := m.Stages["fetch"].(map[string]any)
	if !ok {
		t.Fatalf("stage payload type: %T", m.Stages["fetch"])
	}
	if payload["attempt"] != 2 {
		t.Fatalf("stage not overwritten: %+v", payload)
	}
}

func TestNewRunManifestShape(t *testing.T) {
	m := NewRunManifest("run-1", "/tmp/ws", []string{"briefing"})
	if m.SchemaVersion != ManifestSchemaVersion {
		t.Fatalf("schema_version = %d", m.SchemaVersion)
	}
	if m.Status != StateStarted {
		t.Fatalf("status = %q", m.Status)
	}
	if m.NotebookStrategy != StrategyRun {
		t.Fatalf("strategy = %q", m.NotebookStrategy)
	}
	if m.CreatedAt == "" || m.UpdatedAt == "" {
		t.Fatalf("timestamps not set")
	}
	if m.Artifacts == nil || m.Stages == nil || m.Errors == nil {
		t.Fatalf("collections must be non-nil for JSON output")
	}
}
