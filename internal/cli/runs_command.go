package cli

import (
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"

	"bookflow/internal/store"
)

var (
	runsHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	runsRowStyle    = lipgloss.NewStyle().PaddingRight(2)
	statusStyles    = map[string]lipgloss.Style{
		"completed":                  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		"partial":                    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		"failed":                     lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		"awaiting_chapter_selection": lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
	}
)

func runRunsCommand(args []string) int {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	limit := fs.Int("limit", 20, "maximum runs to list (0 = all)")
	status := fs.String("status", "", "only show runs with this status")
	asJSON := fs.Bool("json", false, "print JSON instead of a table")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	st, err := store.Open(dbPath())
	if err != nil {
		printError(err)
		return 1
	}
	defer st.Close()

	runs, err := st.ListRuns(*limit)
	if err != nil {
		printError(err)
		return 1
	}
	if *status != "" {
		filtered := runs[:0]
		for _, r := range runs {
			if r.Status == *status {
				filtered = append(filtered, r)
			}
		}
		runs = filtered
	}

	if *asJSON {
		printJSON(runs)
		return 0
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return 0
	}

	fmt.Println(runsHeaderStyle.Render(fmt.Sprintf("%-24s %-28s %-12s", "RUN", "STATUS", "UPDATED")))
	for _, r := range runs {
		status := r.Status
		if style, ok := statusStyles[status]; ok {
			status = style.Render(status)
		}
		line := fmt.Sprintf("%-24s %-28s %-12s", truncate(r.RunID, 24), status, truncate(r.UpdatedAt, 19))
		fmt.Println(runsRowStyle.Render(line))
	}
	return 0
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
