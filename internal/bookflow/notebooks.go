package bookflow

import (
	"context"
	"fmt"

	"bookflow/internal/model"
	"bookflow/internal/nlm"
	"bookflow/internal/store"
)

// NotebookResolution carries the ids picked for a run. ActiveID is the
// notebook generation runs against.
type NotebookResolution struct {
	Strategy   string `json:"strategy"`
	ActiveID   string `json:"active_id"`
	ObjectID   string `json:"object_id,omitempty"`
	RunID      string `json:"run_notebook_id,omitempty"`
	CreatedNew bool   `json:"created_new"`
}

// ResolveNotebook applies the notebook strategy. "object" reuses one
// notebook per asset, "run" creates a fresh one per run, "hybrid" creates
// the run notebook as active while keeping the object notebook cached.
func ResolveNotebook(ctx context.Context, client *nlm.Client, st *store.Store, strategy, assetID, title string) (NotebookResolution, error) {
	res := NotebookResolution{Strategy: strategy}

	needObject := strategy == model.StrategyObject || strategy == model.StrategyHybrid
	needRun := strategy == model.StrategyRun || strategy == model.StrategyHybrid
	if !needObject && !needRun {
		return res, fmt.Errorf("unknown notebook strategy %q", strategy)
	}

	if needObject {
		objectID := ""
		if st != nil {
			var err error
			objectID, err = st.GetObjectNotebookID(assetID)
			if err != nil {
				return res, err
			}
		}
		if objectID == "" {
			created, err := createNotebook(ctx, client, title)
			if err != nil {
				return res, fmt.Errorf("create object notebook: %w", err)
			}
			objectID = created
			res.CreatedNew = true
			// Without a store the object notebook cannot be reused, but
			// the run still gets one.
			if st != nil {
				if err := st.UpsertObjectNotebook(assetID, objectID); err != nil {
					return res, err
				}
			}
		}
		res.ObjectID = objectID
		res.ActiveID = objectID
	}

	if needRun {
		runNotebookID, err := createNotebook(ctx, client, title)
		if err != nil {
			return res, fmt.Errorf("create run notebook: %w", err)
		}
		res.CreatedNew = true
		res.RunID = runNotebookID
		res.ActiveID = runNotebookID
	}

	return res, nil
}

// createNotebook tolerates the CLI's two response shapes: structured JSON
// with an id field, or free text with an "ID: <uuid>" line or bare UUID.
func createNotebook(ctx context.Context, client *nlm.Client, title string) (string, error) {
	res, err := client.CreateNotebook(ctx, title)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("notebook create failed: %s", res.Stderr)
	}
	id := nlm.ExtractNotebookID(res.CombinedOutput())
	if id == "" {
		return "", fmt.Errorf("notebook create returned no id")
	}
	return id, nil
}
