package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"bookflow/internal/generate"
	"bookflow/internal/guard"
)

func runGenerateCommand(args []string) int {
	def := loadDefaults()
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	notebook := fs.String("notebook", "", "notebook id to generate against (required)")
	sourceIDs := fs.String("source-ids", "", "comma-separated source ids (default: all notebook sources)")
	plan := fs.String("plan", def.Plan, "comma-separated artifact plan (default infographic,slides,report,audio)")
	maxSuccess := fs.Int("max-success", defInt(def.MaxSuccess, 1), "stop after this many successful artifacts")
	dryRun := fs.Bool("dry-run", false, "run preflight only, create nothing")
	pollSeconds := fs.Int("poll-seconds", defInt(def.PollSeconds, 15), "seconds between status polls")
	maxPolls := fs.Int("max-polls", defInt(def.MaxPolls, 20), "maximum status polls per artifact")
	dailyBudget := fs.Int("daily-budget", def.DailyBudget, "daily total attempt budget (0 = unlimited)")
	perTypeBudget := fs.String("budget-per-type", def.BudgetPerType, "per-type budgets, e.g. infographic=3,slides=2")
	breakerThreshold := fs.Int("breaker-threshold", defInt(def.BreakerThreshold, guard.DefaultBreakerThreshold), "consecutive failures before a breaker opens")
	breakerOpenMinutes := fs.Int("breaker-open-minutes", defInt(def.BreakerOpenMinutes, int(guard.DefaultBreakerOpenFor/time.Minute)), "minutes a breaker stays open")
	timeoutMinutes := fs.Int("timeout-minutes", defInt(def.TimeoutMinutes, 10), "wall-clock timeout per CLI invocation")
	stateFile := fs.String("state-file", "", "guard state file (default <home>/guarded_state.json)")
	eventsFile := fs.String("events-file", "", "guard event log (default <home>/guarded_events.jsonl)")
	profile := fs.String("profile", "", "notebook CLI auth profile")
	cdpURL := fs.String("cdp-url", "", "browser-control endpoint for auth refresh")
	provider := fs.String("provider", "", "auth provider for re-login")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *notebook == "" {
		fmt.Fprintln(os.Stderr, "generate: --notebook is required")
		fs.Usage()
		return 2
	}

	perType, err := parsePerTypeBudgets(*perTypeBudget)
	if err != nil {
		printError(err)
		return 2
	}

	g, err := guard.Load(defString(*stateFile, guardStatePath()))
	if err != nil {
		printError(err)
		return 1
	}
	g.BreakerThreshold = *breakerThreshold
	g.BreakerOpenFor = time.Duration(*breakerOpenMinutes) * time.Minute

	client := newClient(*profile, *cdpURL, *provider)
	client.Timeout = time.Duration(*timeoutMinutes) * time.Minute

	engine := &generate.Engine{
		Client:     client,
		Guard:      g,
		EventsPath: defString(*eventsFile, guardEventsPath()),
	}

	summary, err := engine.Run(context.Background(), generate.Options{
		NotebookID: *notebook,
		SourceIDs:  splitCSV(*sourceIDs),
		Plan:       generate.ParsePlan(*plan),
		MaxSuccess: *maxSuccess,
		DryRun:     *dryRun,
		Poll:       generate.PollConfig{PollSeconds: *pollSeconds, MaxPolls: *maxPolls},
		Limits: guard.Limits{
			DailyTotal:   *dailyBudget,
			DailyPerType: perType,
		},
	})
	if err != nil {
		printError(err)
		return 1
	}

	// Logical failure is conveyed in the JSON, not the exit code.
	printJSON(summary)
	return 0
}

func parsePerTypeBudgets(raw string) (map[string]int, error) {
	out := map[string]int{}
	for _, pair := range splitCSV(raw) {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("bad per-type budget %q, want type=count", pair)
		}
		n, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("bad per-type budget count in %q", pair)
		}
		out[generate.NormalizeType(parts[0])] = n
	}
	return out, nil
}

func splitCSV(raw string) []string {
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
