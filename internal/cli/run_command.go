package cli

import (
	"context"
	"flag"
	"os"
	"strings"
	"time"

	"bookflow/internal/bookflow"
	"bookflow/internal/generate"
	"bookflow/internal/guard"
	"bookflow/internal/store"
)

func runRunCommand(args []string) int {
	def := loadDefaults()
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	runID := fs.String("run-id", "", "run identifier (default: random)")
	epub := fs.String("epub", "", "path to a local EPUB (skips the fetch stage)")
	rankedJSON := fs.String("ranked-json", "", "path to prepared ranked JSON (skips fetch and prepare)")
	title := fs.String("title", "", "book title override")
	chapterIDs := fs.String("chapter-ids", "", "comma-separated chapter ids; empty pauses for selection")
	strategy := fs.String("strategy", defString(def.Strategy, "run"), "notebook strategy: run, object, or hybrid")
	plan := fs.String("plan", def.Plan, "comma-separated artifact plan")
	maxSuccess := fs.Int("max-success", defInt(def.MaxSuccess, 1), "stop fallback plan after this many successes")
	dryRun := fs.Bool("dry-run", false, "preflight only, create nothing")
	pollSeconds := fs.Int("poll-seconds", defInt(def.PollSeconds, 15), "seconds between status polls")
	maxPolls := fs.Int("max-polls", defInt(def.MaxPolls, 20), "maximum status polls per artifact")
	dailyBudget := fs.Int("daily-budget", def.DailyBudget, "daily total attempt budget (0 = unlimited)")
	perTypeBudget := fs.String("budget-per-type", def.BudgetPerType, "per-type budgets, e.g. infographic=3")
	fetchCmd := fs.String("fetch-cmd", "", "external fetch command (space-separated argv)")
	prepareCmd := fs.String("prepare-cmd", "", "external prepare command (space-separated argv)")
	timeoutMinutes := fs.Int("timeout-minutes", defInt(def.TimeoutMinutes, 10), "wall-clock timeout per CLI invocation")
	profile := fs.String("profile", "", "notebook CLI auth profile")
	cdpURL := fs.String("cdp-url", "", "browser-control endpoint for auth refresh")
	provider := fs.String("provider", "", "auth provider for re-login")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	perType, err := parsePerTypeBudgets(*perTypeBudget)
	if err != nil {
		printError(err)
		return 2
	}

	g, err := guard.Load(guardStatePath())
	if err != nil {
		printError(err)
		return 1
	}
	applyGuardDefaults(g, def)
	st, err := store.Open(dbPath())
	if err != nil {
		printError(err)
		return 1
	}
	defer st.Close()

	client := newClient(*profile, *cdpURL, *provider)
	client.Timeout = time.Duration(*timeoutMinutes) * time.Minute

	orchestrator := &bookflow.Orchestrator{
		Engine: &generate.Engine{
			Client:     client,
			Guard:      g,
			EventsPath: guardEventsPath(),
		},
		Store:   st,
		RunsDir: runsDir(),
	}
	if argv := splitArgv(*fetchCmd); len(argv) > 0 {
		orchestrator.Fetcher = bookflow.CommandFetcher{Argv: argv, Timeout: 30 * time.Minute}
	}
	if argv := splitArgv(*prepareCmd); len(argv) > 0 {
		orchestrator.Preparer = bookflow.CommandPreparer{Argv: argv, Timeout: 30 * time.Minute}
	}

	manifest, err := orchestrator.Execute(context.Background(), bookflow.RunOptions{
		RunID:          *runID,
		EpubPath:       *epub,
		RankedJSONPath: *rankedJSON,
		Title:          *title,
		ChapterIDs:     splitCSV(*chapterIDs),
		Strategy:       *strategy,
		Plan:           generate.ParsePlan(*plan),
		MaxSuccess:     *maxSuccess,
		DryRun:         *dryRun,
		Poll:           generate.PollConfig{PollSeconds: *pollSeconds, MaxPolls: *maxPolls},
		Limits: guard.Limits{
			DailyTotal:   *dailyBudget,
			DailyPerType: perType,
		},
	})
	if err != nil {
		printError(err)
		return 1
	}

	printJSON(manifest)
	return 0
}

func splitArgv(raw string) []string {
	return strings.Fields(raw)
}
