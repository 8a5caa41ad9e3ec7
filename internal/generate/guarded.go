// Package generate drives the external notebook CLI through guarded
// artifact creation: budget gates, circuit breakers, create/poll
// lifecycles, and a durable event log.
package generate

import (
	"context"
	"time"

	"bookflow/internal/guard"
	"bookflow/internal/nlm"
	"bookflow/internal/runstore"
)

// Options configures one guarded generation invocation.
type Options struct {
	NotebookID string
	SourceIDs  []string
	Plan       []string
	MaxSuccess int
	DryRun     bool
	Poll       PollConfig
	Limits     guard.Limits
}

func (o Options) maxSuccess() int {
	if o.MaxSuccess > 0 {
		return o.MaxSuccess
	}
	return 1
}

func (o Options) plan() []string {
	if len(o.Plan) == 0 {
		return append([]string{}, DefaultPlan...)
	}
	return NormalizePlan(o.Plan)
}

// Skip records an artifact type excluded from the attempt cycle. Skips
// are deliberate outcomes, not errors.
type Skip struct {
	ArtifactType string `json:"artifact_type"`
	Reason       string `json:"reason"`
}

// Summary is the single JSON document reported to the caller.
type Summary struct {
	Status     string          `json:"status"`
	Reason     string          `json:"reason,omitempty"`
	Detail     string          `json:"detail,omitempty"`
	NotebookID string          `json:"notebook_id,omitempty"`
	Plan       []string        `json:"plan"`
	MaxSuccess int             `json:"max_success"`
	SourceIDs  []string        `json:"source_ids,omitempty"`
	Successes  []AttemptResult `json:"successes"`
	Attempts   []AttemptResult `json:"attempts"`
	Skipped    []Skip          `json:"skipped"`
	StartedAt  string          `json:"started_at"`
	FinishedAt string          `json:"finished_at"`
}

// Final summary statuses.
const (
	StatusOK              = "ok"
	StatusDegraded        = "degraded"
	StatusFailed          = "failed"
	StatusFailedPreflight = "failed_preflight"
	StatusDryRunOK        = "dry_run_ok"
)

// Engine wires the CLI client, the guard, and the event log together.
type Engine struct {
	Client     *nlm.Client
	Guard      *guard.Guard
	EventsPath string

	// Sleep is swapped out in tests.
	Sleep func(time.Duration)
}

func (e *Engine) sleep(d time.Duration) {
	if e.Sleep != nil {
		e.Sleep(d)
		return
	}
	time.Sleep(d)
}

func (e *Engine) event(name string, payload any) {
	if e.EventsPath == "" {
		return
	}
	_ = runstore.AppendEvent(e.EventsPath, name, payload)
}

// preflightResult carries the gate decision plus the resolved source ids.
type preflightResult struct {
	OK        bool
	Reason    string
	Detail    string
	SourceIDs []string
}

// preflight verifies the CLI binary, the auth session (with one
// refresh-and-recheck), and that at least one source id is available.
func (e *Engine) preflight(ctx context.Context, opts Options) preflightResult {
	if err := e.Client.Available(); err != nil {
		return preflightResult{Reason: "cli_unavailable", Detail: err.Error()}
	}

	res, err := e.Client.LoginCheck(ctx)
	if err != nil || res.ExitCode != 0 {
		refreshed := false
		if e.Client.CDPURL != "" {
			if _, loginErr := e.Client.Login(ctx); loginErr == nil {
				if res2, err2 := e.Client.LoginCheck(ctx); err2 == nil && res2.ExitCode == 0 {
					refreshed = true
				}
			}
		}
		if !refreshed {
			detail := ""
			if err != nil {
				detail = err.Error()
			} else {
				detail = tail(res.CombinedOutput(), 400)
			}
			return preflightResult{Reason: "auth_failed", Detail: detail}
		}
	}

	sourceIDs := dedupStrings(opts.SourceIDs)
	if len(sourceIDs) == 0 {
		listRes, listErr := e.Client.SourceList(ctx, opts.NotebookID)
		if listErr != nil || listRes.ExitCode != 0 {
			detail := ""
			if listErr != nil {
				detail = listErr.Error()
			} else {
				detail = tail(listRes.CombinedOutput(), 400)
			}
			return preflightResult{Reason: "source_list_failed", Detail: detail}
		}
		payload, parseErr := nlm.ParsePayload(listRes.CombinedOutput())
		if parseErr == nil {
			for _, row := range nlm.SourceItems(payload) {
				if id := rowID(row); id != "" {
					sourceIDs = append(sourceIDs, id)
				}
			}
		}
		sourceIDs = dedupStrings(sourceIDs)
	}
	if len(sourceIDs) == 0 {
		return preflightResult{Reason: "no_sources", Detail: "notebook has no resolvable sources"}
	}

	return preflightResult{OK: true, SourceIDs: sourceIDs}
}

// Run executes the fallback plan under budget and breaker gates. The
// returned error covers only infrastructure problems (event log, state
// persistence); logical failure is conveyed in the summary status.
func (e *Engine) Run(ctx context.Context, opts Options) (Summary, error) {
	plan := opts.plan()
	summary := Summary{
		Status:     StatusFailed,
		NotebookID: opts.NotebookID,
		Plan:       plan,
		MaxSuccess: opts.maxSuccess(),
		Successes:  []AttemptResult{},
		Attempts:   []AttemptResult{},
		Skipped:    []Skip{},
		StartedAt:  time.Now().Format(time.RFC3339),
	}

	pf := e.preflight(ctx, opts)
	if !pf.OK {
		summary.Status = StatusFailedPreflight
		summary.Reason = pf.Reason
		summary.Detail = pf.Detail
		summary.FinishedAt = time.Now().Format(time.RFC3339)
		e.event("preflight", map[string]any{"ok": false, "reason": pf.Reason, "detail": pf.Detail})
		e.finishGuard(summary)
		return summary, nil
	}
	summary.SourceIDs = pf.SourceIDs
	e.event("preflight", map[string]any{"ok": true, "source_count": len(pf.SourceIDs)})

	if opts.DryRun {
		summary.Status = StatusDryRunOK
		summary.FinishedAt = time.Now().Format(time.RFC3339)
		e.event("dry_run", map[string]any{"plan": plan, "source_count": len(pf.SourceIDs)})
		e.finishGuard(summary)
		return summary, nil
	}

	for _, artifactType := range plan {
		if len(summary.Successes) >= opts.maxSuccess() {
			break
		}

		if open, reason := e.Guard.BreakerOpen(artifactType); open {
			summary.Skipped = append(summary.Skipped, Skip{ArtifactType: artifactType, Reason: reason})
			e.event("skip", map[string]any{"artifact_type": artifactType, "reason": reason})
			continue
		}
		if ok, reason := e.Guard.BudgetAllowed(artifactType, opts.Limits); !ok {
			summary.Skipped = append(summary.Skipped, Skip{ArtifactType: artifactType, Reason: reason})
			e.event("skip", map[string]any{"artifact_type": artifactType, "reason": reason})
			continue
		}
		e.Guard.ConsumeBudget(artifactType)

		attempt := RunAttempt(ctx, e.Client, artifactType, opts.NotebookID, pf.SourceIDs, opts.Poll, e.sleep)
		summary.Attempts = append(summary.Attempts, attempt)
		e.event("attempt", attempt)

		if attempt.Success() {
			summary.Successes = append(summary.Successes, attempt)
			e.Guard.RecordSuccess(artifactType)
		} else {
			e.Guard.RecordFailure(artifactType)
		}
	}

	switch {
	case len(summary.Successes) >= opts.maxSuccess():
		summary.Status = StatusOK
	case len(summary.Successes) > 0:
		summary.Status = StatusDegraded
	default:
		summary.Status = StatusFailed
	}
	summary.FinishedAt = time.Now().Format(time.RFC3339)
	e.event("summary", summary)
	e.finishGuard(summary)
	return summary, nil
}

// finishGuard records the invocation snapshot and persists guard state
// regardless of outcome.
func (e *Engine) finishGuard(summary Summary) {
	e.Guard.SetLastRun(map[string]any{
		"status":      summary.Status,
		"reason":      summary.Reason,
		"notebook_id": summary.NotebookID,
		"plan":        summary.Plan,
		"successes":   len(summary.Successes),
		"attempts":    len(summary.Attempts),
		"skipped":     len(summary.Skipped),
		"finished_at": summary.FinishedAt,
	})
	_ = e.Guard.Save()
}

func dedupStrings(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
