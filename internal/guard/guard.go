// Package guard enforces daily generation budgets and per-artifact-type
// circuit breakers over a small persisted state file.
package guard

import (
	"fmt"
	"time"

	"bookflow/internal/runstore"
)

const (
	StateSchemaVersion = 1

	DefaultBreakerThreshold = 3
	DefaultBreakerOpenFor   = 90 * time.Minute
)

type Daily struct {
	Date      string         `json:"date"`
	TotalUsed int            `json:"total_used"`
	PerType   map[string]int `json:"per_type"`
}

type Breaker struct {
	ConsecutiveFailures int    `json:"consecutive_failures"`
	OpenUntil           string `json:"open_until,omitempty"`
	LastFailureAt       string `json:"last_failure_at,omitempty"`
	LastSuccessAt       string `json:"last_success_at,omitempty"`
}

type State struct {
	SchemaVersion int                 `json:"schema_version"`
	Daily         Daily               `json:"daily"`
	Breakers      map[string]*Breaker `json:"breakers"`
	LastRun       map[string]any      `json:"last_run,omitempty"`
}

// Limits configures budget ceilings. A DailyTotal of zero or less means
// unlimited. A per-type entry is a hard ceiling once the key is present:
// zero blocks every attempt for that type; an absent key is unlimited.
type Limits struct {
	DailyTotal   int
	DailyPerType map[string]int
}

// Guard wraps the persisted state with a clock so tests can pin time.
// Budget is consumed at attempt time, not on success.
type Guard struct {
	Path             string
	State            *State
	Now              func() time.Time
	BreakerThreshold int
	BreakerOpenFor   time.Duration
}

func Load(path string) (*Guard, error) {
	g := &Guard{
		Path:             path,
		State:            freshState(),
		Now:              time.Now,
		BreakerThreshold: DefaultBreakerThreshold,
		BreakerOpenFor:   DefaultBreakerOpenFor,
	}
	var st State
	if err := runstore.ReadJSON(path, &st); err != nil {
		// Missing or corrupt state starts fresh; it must not block
		// generation.
		return g, nil
	}
	normalize(&st)
	g.State = &st
	return g, nil
}

func freshState() *State {
	return &State{
		SchemaVersion: StateSchemaVersion,
		Daily:         Daily{PerType: map[string]int{}},
		Breakers:      map[string]*Breaker{},
	}
}

func normalize(st *State) {
	if st.SchemaVersion == 0 {
		st.SchemaVersion = StateSchemaVersion
	}
	if st.Daily.PerType == nil {
		st.Daily.PerType = map[string]int{}
	}
	if st.Breakers == nil {
		st.Breakers = map[string]*Breaker{}
	}
}

func (g *Guard) Save() error {
	return runstore.WriteJSON(g.Path, g.State)
}

func (g *Guard) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

func (g *Guard) today() string {
	return g.now().Format("2006-01-02")
}

// ResetDailyIfNeeded zeroes the counters when the stored date is not
// today. Calling it twice on the same day is a no-op.
func (g *Guard) ResetDailyIfNeeded() {
	today := g.today()
	if g.State.Daily.Date == today {
		return
	}
	g.State.Daily = Daily{
		Date:    today,
		PerType: map[string]int{},
	}
}

// BudgetAllowed checks the ceilings without consuming anything. The
// second return value is a machine-readable denial reason.
func (g *Guard) BudgetAllowed(artifactType string, limits Limits) (bool, string) {
	g.ResetDailyIfNeeded()
	if limits.DailyTotal > 0 && g.State.Daily.TotalUsed >= limits.DailyTotal {
		return false, "daily_total_budget_exhausted"
	}
	if limit, ok := limits.DailyPerType[artifactType]; ok && limit >= 0 {
		if g.State.Daily.PerType[artifactType] >= limit {
			return false, "daily_" + artifactType + "_budget_exhausted"
		}
	}
	return true, ""
}

// ConsumeBudget charges one attempt against the daily counters.
func (g *Guard) ConsumeBudget(artifactType string) {
	g.ResetDailyIfNeeded()
	g.State.Daily.TotalUsed++
	g.State.Daily.PerType[artifactType]++
}

// BreakerOpen reports whether the type's breaker is still open and, if
// so, a reason embedding the remaining seconds.
func (g *Guard) BreakerOpen(artifactType string) (bool, string) {
	br, ok := g.State.Breakers[artifactType]
	if !ok || br.OpenUntil == "" {
		return false, ""
	}
	openUntil, err := time.Parse(time.RFC3339, br.OpenUntil)
	if err != nil {
		br.OpenUntil = ""
		return false, ""
	}
	now := g.now()
	if !now.Before(openUntil) {
		return false, ""
	}
	remaining := int(openUntil.Sub(now).Round(time.Second).Seconds())
	return true, fmt.Sprintf("breaker_open_%ds", remaining)
}

func (g *Guard) breaker(artifactType string) *Breaker {
	br, ok := g.State.Breakers[artifactType]
	if !ok {
		br = &Breaker{}
		g.State.Breakers[artifactType] = br
	}
	return br
}

// RecordSuccess closes the breaker and clears the failure streak.
func (g *Guard) RecordSuccess(artifactType string) {
	br := g.breaker(artifactType)
	br.ConsecutiveFailures = 0
	br.OpenUntil = ""
	br.LastSuccessAt = g.now().Format(time.RFC3339)
}

// RecordFailure bumps the streak and opens the breaker once it reaches
// the threshold.
func (g *Guard) RecordFailure(artifactType string) {
	br := g.breaker(artifactType)
	br.ConsecutiveFailures++
	br.LastFailureAt = g.now().Format(time.RFC3339)
	if br.ConsecutiveFailures >= g.BreakerThreshold {
		br.OpenUntil = g.now().Add(g.BreakerOpenFor).Format(time.RFC3339)
	}
}

// SetLastRun records a summary of the most recent guarded invocation.
func (g *Guard) SetLastRun(summary map[string]any) {
	g.State.LastRun = summary
}
