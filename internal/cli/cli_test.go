package cli

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"bookflow/internal/guard"
	"bookflow/internal/runstore"
)

func installFakeNLM(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake binary harness requires a POSIX shell")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "nlm")
	full := "#!/usr/bin/env bash\nset -u\nSTATE_DIR=" + dir + "\n" + script + "\n"
	if err := os.WriteFile(path, []byte(full), 0o755); err != nil {
		t.Fatalf("write fake nlm: %v", err)
	}
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
	return dir
}

func setTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("BOOKFLOW_HOME", home)
	t.Setenv("BOOKFLOW_PROFILE", "test-profile")
	return home
}

func TestRunUnknownCommand(t *testing.T) {
	if code := Run([]string{"frobnicate"}); code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
}

func TestRunNoArgs(t *testing.T) {
	if code := Run(nil); code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
}

func TestRunHelp(t *testing.T) {
	if code := Run([]string{"help"}); code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
}

func TestGenerateRequiresNotebook(t *testing.T) {
	setTestHome(t)
	if code := Run([]string{"generate"}); code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
}

func TestGenerateLogicalFailureStillExitsZero(t *testing.T) {
	home := setTestHome(t)
	installFakeNLM(t, `
if [ "$1" = "login" ]; then
  echo "no authentication found" >&2
  exit 1
fi
echo '{}'
`)

	code := Run([]string{"generate", "--notebook", "nb-1"})
	if code != 0 {
		t.Fatalf("exit code = %d, logical failure must still exit 0", code)
	}

	g, err := guard.Load(filepath.Join(home, runstore.GuardStateFilename))
	if err != nil {
		t.Fatalf("load guard: %v", err)
	}
	if g.State.LastRun["status"] != "failed_preflight" {
		t.Fatalf("last_run = %+v", g.State.LastRun)
	}
}

func TestGenerateDryRunWritesEvents(t *testing.T) {
	home := setTestHome(t)
	installFakeNLM(t, `
if [ "$1" = "login" ]; then exit 0; fi
if [ "$1" = "source" ]; then
  echo '{"sources": [{"id": "s1"}]}'
  exit 0
fi
echo '{}'
`)

	code := Run([]string{"generate", "--notebook", "nb-1", "--dry-run"})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}

	events, err := runstore.ReadEvents(filepath.Join(home, runstore.GuardEventsFilename))
	if err != nil {
		t.Fatalf("read events: %v", err)
	}
	sawDryRun := false
	for _, ev := range events {
		if ev.Event == "dry_run" {
			sawDryRun = true
		}
	}
	if !sawDryRun {
		t.Fatalf("dry_run event missing: %+v", events)
	}
}

func TestLoadDefaultsMissingFile(t *testing.T) {
	setTestHome(t)
	d := loadDefaults()
	if d.Profile != "" || d.PollSeconds != 0 {
		t.Fatalf("missing file should yield zero defaults: %+v", d)
	}
}

func TestDefaultsFileFeedsClientProfile(t *testing.T) {
	home := setTestHome(t)
	t.Setenv("BOOKFLOW_PROFILE", "")
	if err := runstore.WriteJSON(filepath.Join(home, "defaults.json"), defaults{Profile: "file-profile"}); err != nil {
		t.Fatalf("write defaults: %v", err)
	}

	c := newClient("", "", "")
	if c.Profile != "file-profile" {
		t.Fatalf("profile = %q, want file-profile", c.Profile)
	}

	// Environment outranks the file.
	t.Setenv("BOOKFLOW_PROFILE", "env-profile")
	if c := newClient("", "", ""); c.Profile != "env-profile" {
		t.Fatalf("profile = %q, want env-profile", c.Profile)
	}
	// A flag outranks both.
	if c := newClient("flag-profile", "", ""); c.Profile != "flag-profile" {
		t.Fatalf("profile = %q, want flag-profile", c.Profile)
	}
}

func TestApplyGuardDefaults(t *testing.T) {
	home := setTestHome(t)
	g, err := guard.Load(filepath.Join(home, runstore.GuardStateFilename))
	if err != nil {
		t.Fatalf("load guard: %v", err)
	}

	applyGuardDefaults(g, defaults{BreakerThreshold: 5, BreakerOpenMinutes: 10})
	if g.BreakerThreshold != 5 || g.BreakerOpenFor != 10*time.Minute {
		t.Fatalf("breaker tuning = %d/%s", g.BreakerThreshold, g.BreakerOpenFor)
	}

	// An empty defaults file keeps the built-ins.
	applyGuardDefaults(g, defaults{})
	if g.BreakerThreshold != guard.DefaultBreakerThreshold || g.BreakerOpenFor != guard.DefaultBreakerOpenFor {
		t.Fatalf("built-ins not restored: %d/%s", g.BreakerThreshold, g.BreakerOpenFor)
	}
}

func TestParsePerTypeBudgets(t *testing.T) {
	got, err := parsePerTypeBudgets("infographic=3, slide_deck=2")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got["infographic"] != 3 || got["slides"] != 2 {
		t.Fatalf("budgets = %+v", got)
	}

	if _, err := parsePerTypeBudgets("infographic"); err == nil {
		t.Fatalf("expected error on missing count")
	}
	if _, err := parsePerTypeBudgets("infographic=x"); err == nil {
		t.Fatalf("expected error on non-numeric count")
	}
}

func TestDoctorWithFakeBinary(t *testing.T) {
	setTestHome(t)
	installFakeNLM(t, `exit 0`)

	if code := Run([]string{"doctor"}); code != 0 {
		t.Fatalf("doctor exit code = %d", code)
	}
}

func TestDoctorMissingBinary(t *testing.T) {
	setTestHome(t)
	t.Setenv("BOOKFLOW_NLM_BIN", "definitely-not-on-path-xyz")

	if code := Run([]string{"doctor", "--skip-auth"}); code != 1 {
		t.Fatalf("doctor exit code = %d, want 1", code)
	}
}
