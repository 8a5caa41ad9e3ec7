package generate

import (
	"context"
	"strings"
	"time"

	"bookflow/internal/nlm"
)

// Attempt outcomes for one artifact-creation lifecycle.
const (
	OutcomeCompleted              = "completed"
	OutcomeFailed                 = "failed"
	OutcomeTimeout                = "timeout"
	OutcomeCreateFailed           = "create_failed"
	OutcomeCreateFailedNoArtifact = "create_failed_no_artifact"
)

// AttemptResult records one pass through create, id resolution, and the
// poll loop.
type AttemptResult struct {
	ArtifactType string         `json:"artifact_type"`
	Outcome      string         `json:"outcome"`
	ArtifactID   string         `json:"artifact_id,omitempty"`
	Error        string         `json:"error,omitempty"`
	Detail       map[string]any `json:"detail,omitempty"`
}

func (r AttemptResult) Success() bool {
	return r.Outcome == OutcomeCompleted
}

// PollConfig bounds the status poll loop.
type PollConfig struct {
	MaxPolls    int
	PollSeconds int
}

func (p PollConfig) maxPolls() int {
	if p.MaxPolls > 0 {
		return p.MaxPolls
	}
	return 20
}

func (p PollConfig) interval() time.Duration {
	if p.PollSeconds > 0 {
		return time.Duration(p.PollSeconds) * time.Second
	}
	return 15 * time.Second
}

// RunAttempt drives one artifact type through the full lifecycle. All
// failures come back as outcome tokens, never as errors; the caller feeds
// them into breaker bookkeeping uniformly.
func RunAttempt(ctx context.Context, client *nlm.Client, artifactType, notebookID string, sourceIDs []string, poll PollConfig, sleep func(time.Duration)) AttemptResult {
	if sleep == nil {
		sleep = time.Sleep
	}
	result := AttemptResult{ArtifactType: artifactType}

	res, err := client.CreateArtifact(ctx, artifactType, notebookID, sourceIDs)
	if err != nil {
		result.Outcome = OutcomeCreateFailed
		result.Error = err.Error()
		return result
	}
	if res.ExitCode != 0 {
		result.Outcome = OutcomeCreateFailed
		result.Error = tail(res.CombinedOutput(), 400)
		return result
	}

	artifactID := nlm.ExtractArtifactID(res.CombinedOutput())
	if artifactID == "" {
		// Fail fast: never poll without a concrete ID.
		result.Outcome = OutcomeCreateFailedNoArtifact
		result.Error = "no artifact id in create output"
		result.Detail = map[string]any{"create_output": tail(res.CombinedOutput(), 400)}
		return result
	}
	result.ArtifactID = artifactID

	lastStatus := "unknown"
	for i := 0; i < poll.maxPolls(); i++ {
		if i > 0 {
			sleep(poll.interval())
		}
		status, ok := pollOnce(ctx, client, notebookID, artifactID)
		if ok {
			lastStatus = status
		}
		switch {
		case nlm.IsSuccessStatus(lastStatus):
			result.Outcome = OutcomeCompleted
			return result
		case nlm.IsFailStatus(lastStatus):
			result.Outcome = OutcomeFailed
			result.Error = "artifact reported " + lastStatus
			return result
		}
	}

	result.Outcome = OutcomeTimeout
	result.Error = "poll_timeout_last=" + lastStatus
	return result
}

// pollOnce queries studio status and extracts the normalized status of the
// matching artifact row. ok is false when the row could not be located.
func pollOnce(ctx context.Context, client *nlm.Client, notebookID, artifactID string) (string, bool) {
	res, err := client.StudioStatus(ctx, notebookID)
	if err != nil || res.ExitCode != 0 {
		return "", false
	}
	payload, err := nlm.ParsePayload(res.CombinedOutput())
	if err != nil {
		return "", false
	}
	for _, row := range nlm.ArtifactItems(payload) {
		if rowID(row) != artifactID {
			continue
		}
		raw, ok := row["status"]
		if !ok {
			raw = row["state"]
		}
		status := nlm.NormalizeStatus(raw)
		if status == "" {
			status = "unknown"
		}
		return status, true
	}
	return "", false
}

func rowID(row map[string]any) string {
	for _, key := range []string{"artifact_id", "id"} {
		if s, ok := row[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func tail(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max:]
}
