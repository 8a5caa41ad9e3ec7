package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"bookflow/internal/guard"
	"bookflow/internal/runstore"
	"bookflow/internal/store"
)

type doctorCheck struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

func runDoctorCommand(args []string) int {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	profile := fs.String("profile", "", "notebook CLI auth profile")
	skipAuth := fs.Bool("skip-auth", false, "do not probe the auth session")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	client := newClient(*profile, "", "")
	client.Timeout = 2 * time.Minute
	checks := []doctorCheck{}

	if err := client.Available(); err != nil {
		checks = append(checks, doctorCheck{Name: "nlm_binary", Detail: err.Error()})
	} else {
		detail := ""
		if res, verr := client.Version(context.Background()); verr == nil && res.ExitCode == 0 {
			detail = strings.TrimSpace(res.Stdout)
		}
		checks = append(checks, doctorCheck{Name: "nlm_binary", OK: true, Detail: detail})
	}

	if !*skipAuth {
		res, err := client.LoginCheck(context.Background())
		switch {
		case err != nil:
			checks = append(checks, doctorCheck{Name: "auth_session", Detail: err.Error()})
		case res.ExitCode != 0:
			checks = append(checks, doctorCheck{Name: "auth_session", Detail: "login check failed"})
		default:
			checks = append(checks, doctorCheck{Name: "auth_session", OK: true})
		}
	}

	g, err := guard.Load(guardStatePath())
	if err != nil {
		checks = append(checks, doctorCheck{Name: "guard_state", Detail: err.Error()})
	} else {
		detail := fmt.Sprintf("daily_total_used=%d breakers=%d", g.State.Daily.TotalUsed, len(g.State.Breakers))
		for artifactType := range g.State.Breakers {
			if open, reason := g.BreakerOpen(artifactType); open {
				detail += fmt.Sprintf(" %s=%s", artifactType, reason)
			}
		}
		checks = append(checks, doctorCheck{Name: "guard_state", OK: true, Detail: detail})
	}

	if st, err := store.Open(dbPath()); err != nil {
		checks = append(checks, doctorCheck{Name: "metadata_store", Detail: err.Error()})
	} else {
		runs, lerr := st.ListRuns(1)
		_ = st.Close()
		if lerr != nil {
			checks = append(checks, doctorCheck{Name: "metadata_store", Detail: lerr.Error()})
		} else {
			checks = append(checks, doctorCheck{Name: "metadata_store", OK: true, Detail: fmt.Sprintf("reachable, %d+ runs", len(runs))})
		}
	}

	if dirs, err := runstore.ListRunDirs(runsDir()); err != nil {
		checks = append(checks, doctorCheck{Name: "runs_dir", Detail: err.Error()})
	} else {
		checks = append(checks, doctorCheck{Name: "runs_dir", OK: true, Detail: fmt.Sprintf("%d run directories", len(dirs))})
	}

	allOK := true
	for _, c := range checks {
		if !c.OK {
			allOK = false
		}
	}
	printJSON(map[string]any{"ok": allOK, "checks": checks})
	if allOK {
		return 0
	}
	return 1
}
