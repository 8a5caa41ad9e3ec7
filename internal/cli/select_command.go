package cli

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"bookflow/internal/bookflow"
	"bookflow/internal/model"
	"bookflow/internal/runstore"
)

var (
	selectTitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	selectCursorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	selectMetaStyle   = lipgloss.NewStyle().Faint(true)
	selectHelpStyle   = lipgloss.NewStyle().Faint(true)
)

func runSelectCommand(args []string) int {
	fs := flag.NewFlagSet("select", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	runID := fs.String("run", "", "run id (default: latest paused run)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if !stdinIsTTY() {
		fmt.Fprintln(os.Stderr, "select: interactive terminal required; rerun 'bookflow run' with --chapter-ids instead")
		return 2
	}

	manifest, err := loadPausedManifest(*runID)
	if err != nil {
		printError(err)
		return 1
	}

	m := newSelectModel(manifest)
	final, err := tea.NewProgram(m).Run()
	if err != nil {
		printError(err)
		return 1
	}
	result, ok := final.(selectModel)
	if !ok || result.aborted {
		fmt.Fprintln(os.Stderr, "selection cancelled")
		return 1
	}

	chosen := result.chosenIDs()
	if len(chosen) == 0 {
		fmt.Fprintln(os.Stderr, "no chapters selected")
		return 1
	}
	printJSON(map[string]any{
		"run_id":               manifest.RunID,
		"selected_chapter_ids": chosen,
		"resume_command": fmt.Sprintf(
			"bookflow run --ranked-json %s --chapter-ids %s",
			manifest.RankedJSON, strings.Join(chosen, ","),
		),
	})
	return 0
}

// loadPausedManifest loads the named run, or the newest run paused at
// chapter selection when no id is given.
func loadPausedManifest(runID string) (*model.RunManifest, error) {
	if runID != "" {
		var m model.RunManifest
		path := runstore.ManifestPath(filepath.Join(runsDir(), runID))
		if err := runstore.ReadJSON(path, &m); err != nil {
			return nil, err
		}
		return &m, nil
	}

	dirs, err := runstore.ListRunDirs(runsDir())
	if err != nil {
		return nil, err
	}
	for i := len(dirs) - 1; i >= 0; i-- {
		var m model.RunManifest
		if err := runstore.ReadJSON(runstore.ManifestPath(dirs[i]), &m); err != nil {
			continue
		}
		if m.Status == model.StateAwaitingChapterSelection {
			return &m, nil
		}
	}
	return nil, fmt.Errorf("no run is awaiting chapter selection")
}

type selectModel struct {
	manifest  *model.RunManifest
	filter    textinput.Model
	filtering bool
	cursor    int
	chosen    map[string]bool
	aborted   bool
}

func newSelectModel(manifest *model.RunManifest) selectModel {
	filter := textinput.New()
	filter.Placeholder = "filter by title"
	filter.CharLimit = 64
	return selectModel{
		manifest: manifest,
		filter:   filter,
		chosen:   map[string]bool{},
	}
}

func (m selectModel) Init() tea.Cmd {
	return nil
}

func (m selectModel) visible() []model.ChapterMenuItem {
	query := strings.ToLower(strings.TrimSpace(m.filter.Value()))
	if query == "" {
		return m.manifest.Menu
	}
	out := []model.ChapterMenuItem{}
	for _, item := range m.manifest.Menu {
		if strings.Contains(strings.ToLower(item.Title), query) ||
			strings.Contains(strings.ToLower(item.ChapterID), query) {
			out = append(out, item)
		}
	}
	return out
}

func (m selectModel) chosenIDs() []string {
	out := []string{}
	for _, item := range m.manifest.Menu {
		if m.chosen[item.ChapterID] {
			out = append(out, item.ChapterID)
		}
	}
	return out
}

func (m selectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	if m.filtering {
		switch key.String() {
		case "enter", "esc":
			m.filtering = false
			m.filter.Blur()
			m.cursor = 0
			return m, nil
		case "ctrl+c":
			m.aborted = true
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(msg)
		return m, cmd
	}

	switch key.String() {
	case "ctrl+c", "q", "esc":
		m.aborted = true
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.visible())-1 {
			m.cursor++
		}
	case " ":
		items := m.visible()
		if m.cursor < len(items) {
			id := items[m.cursor].ChapterID
			m.chosen[id] = !m.chosen[id]
		}
	case "/":
		m.filtering = true
		m.filter.Focus()
	case "enter":
		return m, tea.Quit
	}
	return m, nil
}

func (m selectModel) View() string {
	var b strings.Builder
	b.WriteString(selectTitleStyle.Render(fmt.Sprintf("Select chapters for %s", m.manifest.BookTitle)))
	b.WriteString("\n")
	if m.filtering || m.filter.Value() != "" {
		b.WriteString(m.filter.View())
		b.WriteString("\n")
	}
	b.WriteString("\n")

	for i, item := range m.visible() {
		cursor := "  "
		if i == m.cursor {
			cursor = selectCursorStyle.Render("> ")
		}
		check := "[ ]"
		if m.chosen[item.ChapterID] {
			check = "[x]"
		}
		meta := ""
		if item.CharCount != nil {
			meta = selectMetaStyle.Render(fmt.Sprintf("  ~%d min", bookflow.EstimatedReadMinutes(*item.CharCount)))
		}
		b.WriteString(fmt.Sprintf("%s%s %s %s%s\n", cursor, check, item.ChapterID, item.Title, meta))
	}

	b.WriteString("\n")
	b.WriteString(selectHelpStyle.Render("space: toggle  /: filter  enter: confirm  q: quit"))
	b.WriteString("\n")
	return b.String()
}
