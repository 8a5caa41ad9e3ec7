package bookflow

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"bookflow/internal/nlm"
	"bookflow/internal/store"
)

var chapterTitleRe = regexp.MustCompile(`(?i)ch\s*0*(\d+)`)

// ChapterIDFromTitle maps a source title like "Ch 3" or "ch03 - Title"
// onto the canonical chapter id, or "" when no chapter marker is found.
func ChapterIDFromTitle(title string) string {
	m := chapterTitleRe.FindStringSubmatch(title)
	if m == nil {
		return ""
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return ""
	}
	return fmt.Sprintf("ch%02d", n)
}

// liveSourceMap lists the notebook's sources and keys them by the chapter
// id recovered from each title. Later rows win on duplicate titles.
func liveSourceMap(ctx context.Context, client *nlm.Client, notebookID string) (map[string]string, error) {
	res, err := client.SourceList(ctx, notebookID)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("source list for %s failed: %s", notebookID, res.Stderr)
	}
	payload, err := nlm.ParsePayload(res.CombinedOutput())
	if err != nil {
		return nil, fmt.Errorf("source list for %s: %w", notebookID, err)
	}

	out := map[string]string{}
	for _, row := range nlm.SourceItems(payload) {
		id, _ := row["id"].(string)
		if id == "" {
			id, _ = row["source_id"].(string)
		}
		title, _ := row["title"].(string)
		if id == "" {
			continue
		}
		if chapterID := ChapterIDFromTitle(title); chapterID != "" {
			out[chapterID] = id
		}
	}
	return out, nil
}

// ResolveSources builds the chapter-to-source map for the selected
// chapters: cached mappings first, a live lookup only when at least one
// selected chapter is missing, fresh entries winning on collision. The
// effective map is persisted back to the store keyed by run.
func ResolveSources(ctx context.Context, client *nlm.Client, st *store.Store, assetID, notebookID, runID string, chapterIDs []string) (map[string]string, error) {
	cached := map[string]string{}
	if st != nil {
		var err error
		cached, err = st.GetCachedSourceMap(assetID, notebookID)
		if err != nil {
			return nil, err
		}
	}

	missing := false
	for _, chapterID := range chapterIDs {
		if cached[chapterID] == "" {
			missing = true
			break
		}
	}

	effective := map[string]string{}
	for k, v := range cached {
		effective[k] = v
	}
	if missing {
		fresh, err := liveSourceMap(ctx, client, notebookID)
		if err != nil {
			return nil, err
		}
		for k, v := range fresh {
			effective[k] = v
		}
	}

	if st != nil {
		rows := make([]store.RunSource, 0, len(chapterIDs))
		for _, chapterID := range chapterIDs {
			if sourceID := effective[chapterID]; sourceID != "" {
				rows = append(rows, store.RunSource{ChapterID: chapterID, SourceID: sourceID})
			}
		}
		if err := st.ReplaceRunSources(runID, rows); err != nil {
			return nil, err
		}
	}
	return effective, nil
}

// SelectedSourceIDs projects the source map over the chapter selection,
// deduplicated and order-preserving.
func SelectedSourceIDs(sourceMap map[string]string, chapterIDs []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, chapterID := range chapterIDs {
		id := sourceMap[chapterID]
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
