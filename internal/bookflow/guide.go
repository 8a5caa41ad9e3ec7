package bookflow

import (
	"fmt"
	"regexp"
	"strings"

	"bookflow/internal/model"
)

// Preset selection sizes offered in the guide.
var guidePresets = []int{2, 3, 5}

var metaTitleRe = regexp.MustCompile(`(?i)\b(contents|copyright|preface|foreword|introduction|acknowledg|appendix|index|glossary|about the author)\b`)

// IsMetaChapter reports whether a title looks like front or back matter
// rather than a readable chapter.
func IsMetaChapter(title string) bool {
	return metaTitleRe.MatchString(title)
}

// EstimatedReadMinutes approximates reading time from character count,
// floored at 3 minutes.
func EstimatedReadMinutes(charCount int) int {
	minutes := charCount / 450
	if minutes < 3 {
		return 3
	}
	return minutes
}

// SelectionGuide is the payload recorded under the chapter_selection_guide
// stage when a run pauses for chapter input.
type SelectionGuide struct {
	TopChapters []GuideEntry   `json:"top_chapters"`
	Presets     map[string]any `json:"presets"`
	NextAction  string         `json:"next_action"`
}

type GuideEntry struct {
	ChapterID   string  `json:"chapter_id"`
	Title       string  `json:"title"`
	Score       float64 `json:"score"`
	ReadMinutes int     `json:"read_minutes"`
	Meta        bool    `json:"meta"`
}

// BuildSelectionGuide ranks the menu and proposes preset selections that
// skip front/back matter.
func BuildSelectionGuide(runID string, menu []model.ChapterMenuItem) SelectionGuide {
	entries := make([]GuideEntry, 0, len(menu))
	readable := []string{}
	for _, item := range menu {
		chars := 0
		if item.CharCount != nil {
			chars = *item.CharCount
		}
		entry := GuideEntry{
			ChapterID:   item.ChapterID,
			Title:       item.Title,
			Score:       scoreOf(item),
			ReadMinutes: EstimatedReadMinutes(chars),
			Meta:        IsMetaChapter(item.Title),
		}
		entries = append(entries, entry)
		if !entry.Meta {
			readable = append(readable, entry.ChapterID)
		}
	}

	presets := map[string]any{}
	for _, n := range guidePresets {
		key := fmt.Sprintf("top_%d", n)
		if len(readable) < n {
			presets[key] = readable
			continue
		}
		presets[key] = readable[:n]
	}

	next := fmt.Sprintf(
		"chapter selection required: rerun with --chapter-ids (e.g. --chapter-ids %s) or use the interactive picker for run %s",
		strings.Join(firstN(readable, 3), ","), runID,
	)
	return SelectionGuide{
		TopChapters: entries,
		Presets:     presets,
		NextAction:  next,
	}
}

func firstN(in []string, n int) []string {
	if len(in) <= n {
		return in
	}
	return in[:n]
}
