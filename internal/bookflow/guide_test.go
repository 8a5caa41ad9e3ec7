package bookflow

import (
	"reflect"
	"testing"

	"bookflow/internal/model"
)

func menuItem(id, title string, score float64, chars int) model.ChapterMenuItem {
	return model.ChapterMenuItem{ChapterID: id, Title: title, Score: &score, CharCount: &chars}
}

func TestEstimatedReadMinutesFloor(t *testing.T) {
	if got := EstimatedReadMinutes(100); got != 3 {
		t.Fatalf("short chapter minutes = %d, want 3", got)
	}
	if got := EstimatedReadMinutes(4500); got != 10 {
		t.Fatalf("minutes = %d, want 10", got)
	}
}

func TestIsMetaChapter(t *testing.T) {
	meta := []string{"Table of Contents", "Copyright Notice", "Preface", "Appendix B", "About the Author"}
	for _, title := range meta {
		if !IsMetaChapter(title) {
			t.Fatalf("%q should be meta", title)
		}
	}
	if IsMetaChapter("ch04 The Long March") {
		t.Fatalf("regular chapter flagged as meta")
	}
}

func TestBuildSelectionGuidePresetsSkipMeta(t *testing.T) {
	menu := []model.ChapterMenuItem{
		menuItem("ch00", "Preface", 9, 900),
		menuItem("ch01", "ch01 One", 8, 9000),
		menuItem("ch02", "ch02 Two", 7, 9000),
		menuItem("ch03", "ch03 Three", 6, 9000),
	}
	guide := BuildSelectionGuide("run-1", menu)

	top2, ok := guide.Presets["top_2"].([]string)
	if !ok {
		t.Fatalf("top_2 type: %T", guide.Presets["top_2"])
	}
	if !reflect.DeepEqual(top2, []string{"ch01", "ch02"}) {
		t.Fatalf("top_2 = %v", top2)
	}

	top5, ok := guide.Presets["top_5"].([]string)
	if !ok {
		t.Fatalf("top_5 type: %T", guide.Presets["top_5"])
	}
	if len(top5) != 3 {
		t.Fatalf("top_5 must clamp to readable chapters, got %v", top5)
	}

	if guide.NextAction == "" {
		t.Fatalf("next_action must be a non-empty instruction")
	}
	if !guide.TopChapters[0].Meta {
		t.Fatalf("preface entry should be flagged meta")
	}
}
