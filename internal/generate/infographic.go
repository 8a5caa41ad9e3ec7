package generate

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"bookflow/internal/nlm"
)

// Per-chapter infographic outcomes.
const (
	ChapterOK               = "ok"
	ChapterAuthRequired     = "auth_required"
	ChapterSourceMissing    = "source_missing"
	ChapterSourceAddFailed  = "source_add_failed"
	ChapterSourceListFailed = "source_list_failed"
	ChapterSourceIDNotFound = "source_id_not_found"
	ChapterCreateFailed     = "create_failed"
	ChapterArtifactNotFound = "artifact_not_found"
	ChapterArtifactFailed   = "artifact_failed"
	ChapterDownloadFailed   = "download_failed"
)

// ChapterJob is one chapter queued for infographic generation. TextPath
// is optional; without it a missing source cannot be registered.
type ChapterJob struct {
	ChapterID string
	Title     string
	TextPath  string
}

// ChapterResult is the outcome for one chapter.
type ChapterResult struct {
	ChapterID  string `json:"chapter_id"`
	Status     string `json:"status"`
	SourceID   string `json:"source_id,omitempty"`
	ArtifactID string `json:"artifact_id,omitempty"`
	Path       string `json:"path,omitempty"`
	Error      string `json:"error,omitempty"`
}

// InfographicOptions configures the per-chapter loop.
type InfographicOptions struct {
	NotebookID string
	Chapters   []ChapterJob
	SourceMap  map[string]string
	OutputDir  string
	Poll       PollConfig
}

// GenerateInfographics runs the create/poll/download lifecycle once per
// chapter, sharing the guard's budget and breaker with the fallback-plan
// orchestrator. Newly registered sources are written back into
// opts.SourceMap so the caller can persist them.
func (e *Engine) GenerateInfographics(ctx context.Context, opts InfographicOptions, gateOpts Options) ([]ChapterResult, string) {
	results := make([]ChapterResult, 0, len(opts.Chapters))
	okCount := 0

	if len(opts.Chapters) > 0 {
		if res, err := e.Client.LoginCheck(ctx); err != nil || res.ExitCode != 0 {
			for _, ch := range opts.Chapters {
				results = append(results, ChapterResult{
					ChapterID: ch.ChapterID,
					Status:    ChapterAuthRequired,
					Error:     "auth session invalid",
				})
			}
			return results, StatusFailed
		}
	}

	for _, ch := range opts.Chapters {
		result := e.generateChapter(ctx, opts, gateOpts, ch)
		results = append(results, result)
		e.event("infographic_chapter", result)
		if result.Status == ChapterOK {
			okCount++
		}
	}

	outcome := StatusFailed
	switch {
	case len(results) == 0:
		outcome = StatusOK
	case okCount == len(results):
		outcome = StatusOK
	case okCount > 0:
		outcome = "partial"
	}
	return results, outcome
}

func (e *Engine) generateChapter(ctx context.Context, opts InfographicOptions, gateOpts Options, ch ChapterJob) ChapterResult {
	result := ChapterResult{ChapterID: ch.ChapterID}

	sourceID, status, errMsg := e.resolveChapterSource(ctx, opts, ch)
	if status != "" {
		result.Status = status
		result.Error = errMsg
		return result
	}
	result.SourceID = sourceID

	const artifactType = "infographic"
	if open, reason := e.Guard.BreakerOpen(artifactType); open {
		result.Status = reason
		return result
	}
	if ok, reason := e.Guard.BudgetAllowed(artifactType, gateOpts.Limits); !ok {
		result.Status = reason
		return result
	}
	e.Guard.ConsumeBudget(artifactType)

	// Snapshot existing studio rows so an id missing from the create
	// output can still be recovered by diffing.
	before := e.studioIDs(ctx, opts.NotebookID)

	createRes, err := e.Client.CreateArtifact(ctx, artifactType, opts.NotebookID, []string{sourceID})
	if err != nil || createRes.ExitCode != 0 {
		result.Status = ChapterCreateFailed
		if err != nil {
			result.Error = err.Error()
		} else {
			result.Error = tail(createRes.CombinedOutput(), 400)
		}
		e.Guard.RecordFailure(artifactType)
		return result
	}
	artifactID := nlm.ExtractArtifactID(createRes.CombinedOutput())
	if artifactID == "" {
		for id := range e.studioIDs(ctx, opts.NotebookID) {
			if !before[id] {
				artifactID = id
				break
			}
		}
	}
	if artifactID == "" {
		result.Status = ChapterCreateFailed
		result.Error = "no artifact id in create output"
		e.Guard.RecordFailure(artifactType)
		return result
	}
	result.ArtifactID = artifactID

	status, found := e.pollArtifact(ctx, opts.NotebookID, artifactID, opts.Poll)
	switch {
	case !found:
		result.Status = ChapterArtifactNotFound
		result.Error = "artifact never appeared in studio status"
		e.Guard.RecordFailure(artifactType)
		return result
	case nlm.IsFailStatus(status):
		result.Status = ChapterArtifactFailed
		result.Error = "artifact reported " + status
		e.Guard.RecordFailure(artifactType)
		return result
	case !nlm.IsSuccessStatus(status):
		result.Status = ChapterArtifactFailed
		result.Error = "poll_timeout_last=" + status
		e.Guard.RecordFailure(artifactType)
		return result
	}

	outPath := filepath.Join(opts.OutputDir, fmt.Sprintf("%s_%s.png", sanitizeFilename(ch.ChapterID), sanitizeFilename(ch.Title)))
	dlRes, err := e.Client.Download(ctx, artifactType, opts.NotebookID, artifactID, outPath)
	if err != nil || dlRes.ExitCode != 0 {
		result.Status = ChapterDownloadFailed
		if err != nil {
			result.Error = err.Error()
		} else {
			result.Error = tail(dlRes.CombinedOutput(), 400)
		}
		e.Guard.RecordFailure(artifactType)
		return result
	}

	result.Status = ChapterOK
	result.Path = outPath
	e.Guard.RecordSuccess(artifactType)
	return result
}

// resolveChapterSource returns the chapter's source id, registering the
// chapter text as a new source when the map has no entry. A non-empty
// status means resolution failed.
func (e *Engine) resolveChapterSource(ctx context.Context, opts InfographicOptions, ch ChapterJob) (string, string, string) {
	if id := opts.SourceMap[ch.ChapterID]; id != "" {
		return id, "", ""
	}
	if ch.TextPath == "" {
		return "", ChapterSourceMissing, "no cached source and no chapter text to add"
	}

	knownIDs := map[string]bool{}
	if listRes, err := e.Client.SourceList(ctx, opts.NotebookID); err == nil && listRes.ExitCode == 0 {
		if payload, perr := nlm.ParsePayload(listRes.CombinedOutput()); perr == nil {
			for _, row := range nlm.SourceItems(payload) {
				if id := rowID(row); id != "" {
					knownIDs[id] = true
				}
			}
		}
	}

	addRes, err := e.Client.AddSource(ctx, opts.NotebookID, ch.TextPath, ch.Title)
	if err != nil || addRes.ExitCode != 0 {
		detail := ""
		if err != nil {
			detail = err.Error()
		} else {
			detail = tail(addRes.CombinedOutput(), 400)
		}
		return "", ChapterSourceAddFailed, detail
	}

	// The add output may carry the id directly; otherwise diff the source
	// list before and after.
	if id := nlm.ExtractSourceID(addRes.CombinedOutput()); id != "" && !knownIDs[id] {
		opts.SourceMap[ch.ChapterID] = id
		return id, "", ""
	}

	listRes, err := e.Client.SourceList(ctx, opts.NotebookID)
	if err != nil || listRes.ExitCode != 0 {
		return "", ChapterSourceListFailed, "source list after add failed"
	}
	payload, perr := nlm.ParsePayload(listRes.CombinedOutput())
	if perr != nil {
		return "", ChapterSourceListFailed, perr.Error()
	}
	for _, row := range nlm.SourceItems(payload) {
		id := rowID(row)
		if id == "" || knownIDs[id] {
			continue
		}
		opts.SourceMap[ch.ChapterID] = id
		return id, "", ""
	}
	return "", ChapterSourceIDNotFound, "no new source id after add"
}

// studioIDs lists the artifact ids currently visible in studio status.
// Best effort; lookup failures yield an empty set.
func (e *Engine) studioIDs(ctx context.Context, notebookID string) map[string]bool {
	ids := map[string]bool{}
	res, err := e.Client.StudioStatus(ctx, notebookID)
	if err != nil || res.ExitCode != 0 {
		return ids
	}
	payload, err := nlm.ParsePayload(res.CombinedOutput())
	if err != nil {
		return ids
	}
	for _, row := range nlm.ArtifactItems(payload) {
		if id := rowID(row); id != "" {
			ids[id] = true
		}
	}
	return ids
}

// pollArtifact waits for a terminal status. found is false when the row
// never showed up in any poll.
func (e *Engine) pollArtifact(ctx context.Context, notebookID, artifactID string, poll PollConfig) (string, bool) {
	found := false
	lastStatus := "unknown"
	for i := 0; i < poll.maxPolls(); i++ {
		if i > 0 {
			e.sleep(poll.interval())
		}
		status, ok := pollOnce(ctx, e.Client, notebookID, artifactID)
		if ok {
			found = true
			lastStatus = status
		}
		if nlm.IsSuccessStatus(lastStatus) || nlm.IsFailStatus(lastStatus) {
			return lastStatus, true
		}
	}
	return lastStatus, found
}

func sanitizeFilename(s string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", " ", "_", ":", "_")
	out := replacer.Replace(strings.TrimSpace(s))
	if out == "" {
		return "chapter"
	}
	return out
}
