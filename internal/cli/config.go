package cli

import (
	"os"
	"path/filepath"
	"time"

	"bookflow/internal/guard"
	"bookflow/internal/nlm"
	"bookflow/internal/runstore"
)

func baseDir() string {
	if v := os.Getenv("BOOKFLOW_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".bookflow"
	}
	return filepath.Join(home, ".bookflow")
}

func guardStatePath() string {
	return filepath.Join(baseDir(), runstore.GuardStateFilename)
}

func guardEventsPath() string {
	return filepath.Join(baseDir(), runstore.GuardEventsFilename)
}

func dbPath() string {
	return filepath.Join(baseDir(), "bookflow.db")
}

func runsDir() string {
	return filepath.Join(baseDir(), "runs")
}

func defaultProfile() string {
	return os.Getenv("BOOKFLOW_PROFILE")
}

// defaults is the optional settings file at <base>/defaults.json.
// Precedence everywhere is flag, then environment, then this file.
type defaults struct {
	Profile            string `json:"profile,omitempty"`
	Plan               string `json:"plan,omitempty"`
	Strategy           string `json:"strategy,omitempty"`
	MaxSuccess         int    `json:"max_success,omitempty"`
	PollSeconds        int    `json:"poll_seconds,omitempty"`
	MaxPolls           int    `json:"max_polls,omitempty"`
	DailyBudget        int    `json:"daily_budget,omitempty"`
	BudgetPerType      string `json:"budget_per_type,omitempty"`
	BreakerThreshold   int    `json:"breaker_threshold,omitempty"`
	BreakerOpenMinutes int    `json:"breaker_open_minutes,omitempty"`
	TimeoutMinutes     int    `json:"timeout_minutes,omitempty"`
}

func loadDefaults() defaults {
	var d defaults
	_ = runstore.ReadJSON(filepath.Join(baseDir(), "defaults.json"), &d)
	return d
}

// applyGuardDefaults tunes the breaker from the defaults file, falling
// back to the guard package's built-ins.
func applyGuardDefaults(g *guard.Guard, def defaults) {
	g.BreakerThreshold = defInt(def.BreakerThreshold, guard.DefaultBreakerThreshold)
	g.BreakerOpenFor = time.Duration(defInt(def.BreakerOpenMinutes, int(guard.DefaultBreakerOpenFor/time.Minute))) * time.Minute
}

func defString(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func defInt(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// newClient builds the notebook CLI client from flags, environment, and
// the defaults file.
func newClient(profile, cdpURL, provider string) *nlm.Client {
	if profile == "" {
		profile = defaultProfile()
	}
	if profile == "" {
		profile = loadDefaults().Profile
	}
	client := nlm.NewClient(profile)
	if bin := os.Getenv("BOOKFLOW_NLM_BIN"); bin != "" {
		client.Binary = bin
	}
	client.CDPURL = cdpURL
	client.AuthProvider = provider
	return client
}
