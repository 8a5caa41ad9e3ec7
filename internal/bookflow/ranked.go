package bookflow

import (
	"fmt"
	"sort"

	"bookflow/internal/model"
	"bookflow/internal/runstore"
)

// RankedChapter is one scored chapter from the prepare stage's output.
type RankedChapter struct {
	ChapterID string   `json:"chapter_id"`
	Title     string   `json:"title"`
	Score     *float64 `json:"score"`
	CharCount *int     `json:"char_count"`
	TextPath  string   `json:"text_path"`
}

// RankedBook is the prepare adapter's ranked-JSON document.
type RankedBook struct {
	Title    string          `json:"title"`
	Chapters []RankedChapter `json:"chapters"`
}

func LoadRankedBook(path string) (*RankedBook, error) {
	var book RankedBook
	if err := runstore.ReadJSON(path, &book); err != nil {
		return nil, err
	}
	if len(book.Chapters) == 0 {
		return nil, fmt.Errorf("ranked json %s has no chapters", path)
	}
	return &book, nil
}

// Menu converts the ranked chapters into manifest menu items ordered by
// score, highest first, ties broken by chapter id for stability.
func (b *RankedBook) Menu() []model.ChapterMenuItem {
	items := make([]model.ChapterMenuItem, 0, len(b.Chapters))
	for _, ch := range b.Chapters {
		items = append(items, model.ChapterMenuItem{
			ChapterID: ch.ChapterID,
			Title:     ch.Title,
			Score:     ch.Score,
			CharCount: ch.CharCount,
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		si, sj := scoreOf(items[i]), scoreOf(items[j])
		if si != sj {
			return si > sj
		}
		return items[i].ChapterID < items[j].ChapterID
	})
	return items
}

func scoreOf(item model.ChapterMenuItem) float64 {
	if item.Score == nil {
		return 0
	}
	return *item.Score
}

// Chapter returns the ranked entry for a chapter id.
func (b *RankedBook) Chapter(chapterID string) (RankedChapter, bool) {
	for _, ch := range b.Chapters {
		if ch.ChapterID == chapterID {
			return ch, true
		}
	}
	return RankedChapter{}, false
}
