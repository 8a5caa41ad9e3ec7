package cli

import (
	"reflect"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"bookflow/internal/model"
)

func pausedManifest() *model.RunManifest {
	m := model.NewRunManifest("run-1", "/tmp/run-1", []string{"slides"})
	m.BookTitle = "The Test Book"
	m.Status = model.StateAwaitingChapterSelection
	m.Menu = []model.ChapterMenuItem{
		{ChapterID: "ch01", Title: "ch01 One"},
		{ChapterID: "ch02", Title: "ch02 Two"},
		{ChapterID: "ch03", Title: "ch03 Three"},
	}
	return m
}

func pressKey(m selectModel, key string) selectModel {
	var msg tea.KeyMsg
	switch key {
	case " ":
		msg = tea.KeyMsg{Type: tea.KeySpace}
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "down":
		msg = tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		msg = tea.KeyMsg{Type: tea.KeyUp}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	next, _ := m.Update(msg)
	return next.(selectModel)
}

func TestSelectModelToggleAndConfirm(t *testing.T) {
	m := newSelectModel(pausedManifest())

	m = pressKey(m, " ")
	m = pressKey(m, "down")
	m = pressKey(m, "down")
	m = pressKey(m, " ")

	got := m.chosenIDs()
	want := []string{"ch01", "ch03"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("chosen = %v, want %v", got, want)
	}
	if m.aborted {
		t.Fatalf("model should not be aborted")
	}
}

func TestSelectModelToggleOff(t *testing.T) {
	m := newSelectModel(pausedManifest())
	m = pressKey(m, " ")
	m = pressKey(m, " ")
	if len(m.chosenIDs()) != 0 {
		t.Fatalf("double toggle should deselect: %v", m.chosenIDs())
	}
}

func TestSelectModelCursorBounds(t *testing.T) {
	m := newSelectModel(pausedManifest())
	m = pressKey(m, "up")
	if m.cursor != 0 {
		t.Fatalf("cursor moved above top: %d", m.cursor)
	}
	for i := 0; i < 10; i++ {
		m = pressKey(m, "down")
	}
	if m.cursor != 2 {
		t.Fatalf("cursor = %d, want clamp at 2", m.cursor)
	}
}

func TestSelectModelQuitAborts(t *testing.T) {
	m := newSelectModel(pausedManifest())
	m = pressKey(m, "q")
	if !m.aborted {
		t.Fatalf("q should abort")
	}
}

func TestSelectModelFilter(t *testing.T) {
	m := newSelectModel(pausedManifest())
	m = pressKey(m, "/")
	if !m.filtering {
		t.Fatalf("/ should enter filter mode")
	}
	m = pressKey(m, "t")
	m = pressKey(m, "w")
	m = pressKey(m, "o")
	m = pressKey(m, "enter")
	if m.filtering {
		t.Fatalf("enter should leave filter mode")
	}

	visible := m.visible()
	if len(visible) != 1 || visible[0].ChapterID != "ch02" {
		t.Fatalf("visible = %+v", visible)
	}

	m = pressKey(m, " ")
	if got := m.chosenIDs(); !reflect.DeepEqual(got, []string{"ch02"}) {
		t.Fatalf("chosen = %v", got)
	}
}
