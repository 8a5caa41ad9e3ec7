package bookflow

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"bookflow/internal/generate"
	"bookflow/internal/guard"
	"bookflow/internal/model"
	"bookflow/internal/runstore"
	"bookflow/internal/store"
)

// Orchestrator wires the fetch and prepare adapters, the guarded
// generation engine, and the metadata store into one run lifecycle.
type Orchestrator struct {
	Engine   *generate.Engine
	Store    *store.Store
	RunsDir  string
	Fetcher  Fetcher
	Preparer Preparer
}

// RunOptions configures one orchestration run. EpubPath or
// RankedJSONPath skip the corresponding adapter stages.
type RunOptions struct {
	RunID          string
	EpubPath       string
	RankedJSONPath string
	Title          string
	ChapterIDs     []string
	Strategy       string
	Plan           []string
	MaxSuccess     int
	DryRun         bool
	Poll           generate.PollConfig
	Limits         guard.Limits
}

// Execute drives a run to a terminal state. Logical failures land in the
// returned manifest (status failed, errors recorded); the error return is
// reserved for problems before a manifest exists.
func (o *Orchestrator) Execute(ctx context.Context, opts RunOptions) (*model.RunManifest, error) {
	runID := strings.TrimSpace(opts.RunID)
	if runID == "" {
		runID = "bookflow-" + uuid.NewString()
	}
	runDir := filepath.Join(o.RunsDir, runID)

	lock, err := runstore.AcquireRunLock(runDir)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = lock.Release()
	}()

	plan := generate.NormalizePlan(opts.Plan)
	if len(plan) == 0 {
		plan = append([]string{}, generate.DefaultPlan...)
	}
	strategy := strings.TrimSpace(opts.Strategy)
	if strategy == "" {
		strategy = model.StrategyRun
	}
	if strategy != model.StrategyRun && strategy != model.StrategyObject && strategy != model.StrategyHybrid {
		return nil, fmt.Errorf("unknown notebook strategy %q", strategy)
	}

	manifest := model.NewRunManifest(runID, runDir, plan)
	manifest.NotebookStrategy = strategy

	assetID := ""
	persist := func() {
		_ = runstore.WriteJSON(runstore.ManifestPath(runDir), manifest)
	}
	event := func(name string, payload any) {
		_ = runstore.AppendEvent(runstore.EventsPath(runDir), name, payload)
	}
	fail := func(stage string, cause error) (*model.RunManifest, error) {
		manifest.RecordError(fmt.Sprintf("%s: %v", stage, cause))
		if terr := model.Transition(manifest, model.StateFailed); terr != nil {
			model.ForceFailed(manifest)
		}
		event("run_failed", map[string]any{"stage": stage, "error": cause.Error()})
		persist()
		o.syncStore(manifest, assetID)
		return manifest, nil
	}

	event("run_started", map[string]any{"plan": plan, "strategy": strategy})
	persist()

	// Fetch.
	epubPath := opts.EpubPath
	title := opts.Title
	if epubPath == "" && opts.RankedJSONPath == "" {
		if o.Fetcher == nil {
			return fail("fetch", fmt.Errorf("no epub or ranked json provided and no fetch adapter configured"))
		}
		fetched, ferr := o.Fetcher.Fetch(ctx)
		if ferr != nil {
			return fail("fetch", ferr)
		}
		epubPath = fetched.EpubPath
		if title == "" {
			title = fetched.Title
		}
		manifest.RecordStage("fetch", map[string]any{"epub_path": epubPath, "title": title})
		event("stage", map[string]any{"stage": "fetch", "epub_path": epubPath})
		if terr := model.Transition(manifest, model.StateFetched); terr != nil {
			return fail("fetch", terr)
		}
		persist()
	}

	// Prepare.
	rankedPath := opts.RankedJSONPath
	if rankedPath == "" {
		if o.Preparer == nil {
			return fail("prepare", fmt.Errorf("no ranked json provided and no prepare adapter configured"))
		}
		prepared, perr := o.Preparer.Prepare(ctx, epubPath)
		if perr != nil {
			return fail("prepare", perr)
		}
		rankedPath = prepared
	}
	book, err := LoadRankedBook(rankedPath)
	if err != nil {
		return fail("prepare", err)
	}
	if title == "" {
		title = book.Title
	}
	manifest.BookTitle = title
	manifest.RankedJSON = rankedPath
	manifest.Menu = book.Menu()

	assetID, err = AssetID(epubPath, rankedPath, title)
	if err != nil {
		return fail("prepare", err)
	}
	if o.Store != nil {
		if serr := o.Store.UpsertAsset(store.Asset{
			AssetID:        assetID,
			Title:          title,
			EpubPath:       epubPath,
			RankedJSONPath: rankedPath,
		}); serr != nil {
			return fail("prepare", serr)
		}
	}
	manifest.RecordStage("prepare", map[string]any{
		"ranked_json": rankedPath,
		"asset_id":    assetID,
		"chapters":    len(book.Chapters),
	})
	event("stage", map[string]any{"stage": "prepare", "asset_id": assetID})
	if terr := model.Transition(manifest, model.StatePrepared); terr != nil {
		return fail("prepare", terr)
	}
	persist()
	o.syncStore(manifest, assetID)

	// Chapter selection. An empty selection pauses the run.
	chapterIDs := dedupChapters(opts.ChapterIDs)
	if len(chapterIDs) == 0 {
		guide := BuildSelectionGuide(runID, manifest.Menu)
		manifest.RecordStage("chapter_selection_guide", guide)
		manifest.NextAction = guide.NextAction
		if terr := model.Transition(manifest, model.StateAwaitingChapterSelection); terr != nil {
			return fail("chapter_selection", terr)
		}
		event("stage", map[string]any{"stage": "chapter_selection_guide", "next_action": guide.NextAction})
		persist()
		o.syncStore(manifest, assetID)
		return manifest, nil
	}
	for _, chapterID := range chapterIDs {
		if _, ok := book.Chapter(chapterID); !ok {
			return fail("chapter_selection", fmt.Errorf("unknown chapter id %q", chapterID))
		}
	}
	manifest.SelectedChapterIDs = chapterIDs

	// Notebook resolution.
	resolution, err := ResolveNotebook(ctx, o.Engine.Client, o.Store, strategy, assetID, title)
	if err != nil {
		return fail("notebook_resolution", err)
	}
	manifest.NotebookID = resolution.ActiveID
	manifest.ObjectNotebookID = resolution.ObjectID
	manifest.RunNotebookID = resolution.RunID
	manifest.RecordStage("notebook_resolution", map[string]any{
		"strategy":    resolution.Strategy,
		"active_id":   resolution.ActiveID,
		"object_id":   resolution.ObjectID,
		"run_id":      resolution.RunID,
		"created_new": resolution.CreatedNew,
	})
	event("stage", map[string]any{"stage": "notebook_resolution", "notebook_id": resolution.ActiveID})
	if terr := model.Transition(manifest, model.StateGenerating); terr != nil {
		return fail("notebook_resolution", terr)
	}
	persist()
	if o.Store != nil && resolution.RunID != "" {
		_ = o.Store.UpsertRunNotebook(runID, resolution.RunID, strategy)
	}

	// Source resolution, cache first.
	sourceMap, err := ResolveSources(ctx, o.Engine.Client, o.Store, assetID, resolution.ActiveID, runID, chapterIDs)
	if err != nil {
		return fail("source_resolution", err)
	}
	manifest.SourceMap = sourceMap
	manifest.SelectedSourceIDs = SelectedSourceIDs(sourceMap, chapterIDs)
	manifest.RecordStage("source_resolution", map[string]any{
		"source_map":          sourceMap,
		"selected_source_ids": manifest.SelectedSourceIDs,
	})
	event("stage", map[string]any{"stage": "source_resolution", "resolved": len(manifest.SelectedSourceIDs)})
	persist()

	// Infographic loop.
	if containsString(plan, "infographic") {
		if opts.DryRun {
			manifest.RecordStage("infographic", map[string]any{"outcome": generate.StatusDryRunOK})
		} else {
			jobs := make([]generate.ChapterJob, 0, len(chapterIDs))
			for _, chapterID := range chapterIDs {
				ch, _ := book.Chapter(chapterID)
				jobs = append(jobs, generate.ChapterJob{
					ChapterID: ch.ChapterID,
					Title:     ch.Title,
					TextPath:  ch.TextPath,
				})
			}
			results, outcome := o.Engine.GenerateInfographics(ctx, generate.InfographicOptions{
				NotebookID: resolution.ActiveID,
				Chapters:   jobs,
				SourceMap:  manifest.SourceMap,
				OutputDir:  filepath.Join(runDir, "artifacts"),
				Poll:       opts.Poll,
			}, generate.Options{Limits: opts.Limits})
			manifest.RecordStage("infographic", map[string]any{"outcome": outcome, "results": results})
			manifest.AppendArtifacts(infographicRecords(results))
			// Sources registered during the loop feed the cache.
			manifest.SelectedSourceIDs = SelectedSourceIDs(manifest.SourceMap, chapterIDs)
			if o.Store != nil {
				_ = persistSourceRows(o.Store, runID, manifest.SourceMap, chapterIDs)
			}
		}
		event("stage", map[string]any{"stage": "infographic"})
		persist()
	}

	// Remaining plan types through the guarded orchestrator.
	rest := withoutString(plan, "infographic")
	if len(rest) > 0 {
		summary, serr := o.Engine.Run(ctx, generate.Options{
			NotebookID: resolution.ActiveID,
			SourceIDs:  manifest.SelectedSourceIDs,
			Plan:       rest,
			MaxSuccess: opts.MaxSuccess,
			DryRun:     opts.DryRun,
			Poll:       opts.Poll,
			Limits:     opts.Limits,
		})
		if serr != nil {
			return fail("non_infographic", serr)
		}
		manifest.RecordStage("non_infographic", map[string]any{"outcome": summary.Status, "summary": summary})
		manifest.AppendArtifacts(attemptRecords(summary))
		event("stage", map[string]any{"stage": "non_infographic", "outcome": summary.Status})
		persist()
	}

	final := FinalGenerationState(manifest.Stages)
	if terr := model.Transition(manifest, final); terr != nil {
		manifest.RecordError(terr.Error())
		model.ForceFailed(manifest)
	}
	event("run_finished", map[string]any{"status": manifest.Status})
	persist()
	o.syncStore(manifest, assetID)
	return manifest, nil
}

func (o *Orchestrator) syncStore(m *model.RunManifest, assetID string) {
	if o.Store == nil {
		return
	}
	_ = o.Store.UpsertRun(store.Run{
		RunID:         m.RunID,
		AssetID:       assetID,
		Status:        m.Status,
		WorkspaceRoot: m.WorkspaceRoot,
	})
	rows := make([]store.ArtifactRow, 0, len(m.Artifacts))
	for _, rec := range m.Artifacts {
		rows = append(rows, store.ArtifactRow{
			ArtifactType: rec.ArtifactType,
			Status:       rec.Status,
			ArtifactID:   rec.ArtifactID,
			ChapterID:    rec.ChapterID,
			SourceID:     rec.SourceID,
			Path:         rec.Path,
			Error:        rec.Error,
		})
	}
	_ = o.Store.ReplaceArtifacts(m.RunID, rows)
}

func infographicRecords(results []generate.ChapterResult) []model.ArtifactRecord {
	records := make([]model.ArtifactRecord, 0, len(results))
	for _, r := range results {
		records = append(records, model.ArtifactRecord{
			ArtifactType: "infographic",
			Status:       r.Status,
			ArtifactID:   r.ArtifactID,
			ChapterID:    r.ChapterID,
			SourceID:     r.SourceID,
			Path:         r.Path,
			Error:        r.Error,
			Detail:       map[string]any{},
		})
	}
	return records
}

func attemptRecords(summary generate.Summary) []model.ArtifactRecord {
	records := make([]model.ArtifactRecord, 0, len(summary.Attempts))
	for _, a := range summary.Attempts {
		records = append(records, model.ArtifactRecord{
			ArtifactType: a.ArtifactType,
			Status:       a.Outcome,
			ArtifactID:   a.ArtifactID,
			Error:        a.Error,
			Detail:       map[string]any{},
		})
	}
	return records
}

func persistSourceRows(st *store.Store, runID string, sourceMap map[string]string, chapterIDs []string) error {
	rows := make([]store.RunSource, 0, len(chapterIDs))
	for _, chapterID := range chapterIDs {
		if sourceID := sourceMap[chapterID]; sourceID != "" {
			rows = append(rows, store.RunSource{ChapterID: chapterID, SourceID: sourceID})
		}
	}
	return st.ReplaceRunSources(runID, rows)
}

func dedupChapters(in []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, raw := range in {
		id := strings.TrimSpace(raw)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func containsString(list []string, target string) bool {
	for _, s := range list {
		if s == target {
			return true
		}
	}
	return false
}

func withoutString(list []string, target string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}
