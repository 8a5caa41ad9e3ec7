package nlm

import (
	"errors"
	"testing"
)

func TestParsePayloadWholeOutput(t *testing.T) {
	v, err := ParsePayload(`{"status": "completed"}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	obj, ok := v.(map[string]any)
	if !ok || obj["status"] != "completed" {
		t.Fatalf("unexpected value: %#v", v)
	}
}

func TestParsePayloadEmbeddedInNoise(t *testing.T) {
	output := "INFO starting up\nprogress 40%\n{\"artifacts\": [{\"id\": \"a\"}]} trailing chatter"
	v, err := ParsePayload(output)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("unexpected type: %T", v)
	}
	if _, ok := obj["artifacts"]; !ok {
		t.Fatalf("missing artifacts key: %#v", obj)
	}
}

func TestParsePayloadLastLineFallback(t *testing.T) {
	output := "garbage {not json\n[1, 2, 3]"
	v, err := ParsePayload(output)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	arr, ok := v.([]any)
	if !ok || len(arr) != 3 {
		t.Fatalf("unexpected value: %#v", v)
	}
}

func TestParsePayloadMalformed(t *testing.T) {
	for _, output := range []string{"", "   ", "no json here at all"} {
		if _, err := ParsePayload(output); !errors.Is(err, ErrMalformedOutput) {
			t.Fatalf("ParsePayload(%q) error = %v, want ErrMalformedOutput", output, err)
		}
	}
}

func TestParseObjectRejectsArray(t *testing.T) {
	if _, err := ParseObject(`[1, 2]`); !errors.Is(err, ErrMalformedOutput) {
		t.Fatalf("expected ErrMalformedOutput, got %v", err)
	}
}

func TestSourceItemsShapes(t *testing.T) {
	bare := []any{map[string]any{"id": "s1"}}
	if items := SourceItems(bare); len(items) != 1 || items[0]["id"] != "s1" {
		t.Fatalf("bare array: %#v", items)
	}

	wrapped := map[string]any{"sources": []any{map[string]any{"id": "s2"}}}
	if items := SourceItems(wrapped); len(items) != 1 || items[0]["id"] != "s2" {
		t.Fatalf("wrapped: %#v", items)
	}

	if items := SourceItems(map[string]any{"other": 1}); items != nil {
		t.Fatalf("expected nil for unrecognized shape, got %#v", items)
	}
}

func TestArtifactItemsKeyOrder(t *testing.T) {
	payload := map[string]any{
		"artifacts": []any{map[string]any{"id": "a1"}},
		"items":     []any{map[string]any{"id": "wrong"}},
	}
	items := ArtifactItems(payload)
	if len(items) != 1 || items[0]["id"] != "a1" {
		t.Fatalf("artifacts key must win: %#v", items)
	}
}

func TestExtractArtifactID(t *testing.T) {
	const id = "0b7e9c2a-1f34-4d56-9a78-0123456789ab"
	cases := []struct {
		name   string
		output string
	}{
		{"top-level field", `{"artifact_id": "` + id + `"}`},
		{"id field", `{"id": "` + id + `"}`},
		{"nested artifact", `{"artifact": {"id": "` + id + `"}}`},
		{"nested result", `{"result": {"artifact_id": "` + id + `"}}`},
		{"labeled line", "Created.\nArtifact ID: " + id},
		{"bare uuid", "done " + id + " ok"},
	}
	for _, tc := range cases {
		if got := ExtractArtifactID(tc.output); got != id {
			t.Fatalf("%s: ExtractArtifactID = %q, want %q", tc.name, got, id)
		}
	}
	if got := ExtractArtifactID("nothing useful"); got != "" {
		t.Fatalf("expected empty id, got %q", got)
	}
}

func TestExtractNotebookID(t *testing.T) {
	const id = "4f1a2b3c-5d6e-4f70-8a9b-cdef01234567"
	cases := []string{
		`{"notebook_id": "` + id + `"}`,
		`{"notebook": {"id": "` + id + `"}}`,
		"Notebook created.\nID: " + id,
		"raw " + id,
	}
	for _, output := range cases {
		if got := ExtractNotebookID(output); got != id {
			t.Fatalf("ExtractNotebookID(%q) = %q, want %q", output, got, id)
		}
	}
}

func TestNormalizeStatus(t *testing.T) {
	cases := []struct {
		raw  any
		want string
	}{
		{float64(1), "in_progress"},
		{float64(3), "completed"},
		{float64(4), "failed"},
		{float64(9), "9"},
		{"Complete", "completed"},
		{"SUCCESS", "completed"},
		{"succeeded", "completed"},
		{"In Progress", "in_progress"},
		{"running", "in_progress"},
		{"  Done  ", "done"},
		{"failed", "failed"},
		{nil, ""},
	}
	for _, tc := range cases {
		if got := NormalizeStatus(tc.raw); got != tc.want {
			t.Fatalf("NormalizeStatus(%v) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestStatusSets(t *testing.T) {
	for _, s := range []string{"completed", "done", "ready", "succeeded"} {
		if !IsSuccessStatus(s) {
			t.Fatalf("%q should be a success status", s)
		}
	}
	for _, s := range []string{"failed", "error"} {
		if !IsFailStatus(s) {
			t.Fatalf("%q should be a fail status", s)
		}
	}
	if IsSuccessStatus("in_progress") || IsFailStatus("in_progress") {
		t.Fatalf("in_progress must be neither success nor failure")
	}
}

func TestErrorClassification(t *testing.T) {
	if !IsAuthError("Error: no authentication found for profile") {
		t.Fatalf("auth hint not detected")
	}
	if !IsTransientError("read tcp: connection reset by peer") {
		t.Fatalf("transient hint not detected")
	}
	if IsAuthError("unknown artifact type") || IsTransientError("unknown artifact type") {
		t.Fatalf("semantic error misclassified")
	}
}
