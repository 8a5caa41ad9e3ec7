package bookflow

import (
	"context"
	"fmt"
	"time"

	"bookflow/internal/nlm"
)

// FetchResult is what the fetch adapter hands back: a local EPUB plus
// whatever title metadata it learned.
type FetchResult struct {
	EpubPath string `json:"epub_path"`
	Title    string `json:"title"`
}

// Fetcher obtains the book file. The concrete adapter (Telegram download,
// local file, test stub) is a collaborator, not core logic.
type Fetcher interface {
	Fetch(ctx context.Context) (FetchResult, error)
}

// Preparer extracts and ranks chapters, producing a ranked-JSON path.
type Preparer interface {
	Prepare(ctx context.Context, epubPath string) (string, error)
}

// CommandFetcher shells out to an external fetch command that prints a
// JSON object with an epub_path field.
type CommandFetcher struct {
	Argv    []string
	Timeout time.Duration
}

func (f CommandFetcher) Fetch(ctx context.Context) (FetchResult, error) {
	if len(f.Argv) == 0 {
		return FetchResult{}, fmt.Errorf("fetch command not configured")
	}
	res, err := nlm.Run(ctx, f.Argv[0], f.Argv[1:], f.Timeout)
	if err != nil {
		return FetchResult{}, fmt.Errorf("fetch: %w", err)
	}
	if res.ExitCode != 0 {
		return FetchResult{}, fmt.Errorf("fetch exited %d: %s", res.ExitCode, res.Stderr)
	}
	obj, err := nlm.ParseObject(res.CombinedOutput())
	if err != nil {
		return FetchResult{}, fmt.Errorf("fetch output: %w", err)
	}
	out := FetchResult{}
	out.EpubPath, _ = obj["epub_path"].(string)
	out.Title, _ = obj["title"].(string)
	if out.EpubPath == "" {
		return FetchResult{}, fmt.Errorf("fetch output missing epub_path")
	}
	return out, nil
}

// CommandPreparer shells out to an external prepare command that takes the
// EPUB path as its final argument and prints a JSON object with a
// ranked_json field.
type CommandPreparer struct {
	Argv    []string
	Timeout time.Duration
}

func (p CommandPreparer) Prepare(ctx context.Context, epubPath string) (string, error) {
	if len(p.Argv) == 0 {
		return "", fmt.Errorf("prepare command not configured")
	}
	args := append(append([]string{}, p.Argv[1:]...), epubPath)
	res, err := nlm.Run(ctx, p.Argv[0], args, p.Timeout)
	if err != nil {
		return "", fmt.Errorf("prepare: %w", err)
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("prepare exited %d: %s", res.ExitCode, res.Stderr)
	}
	obj, err := nlm.ParseObject(res.CombinedOutput())
	if err != nil {
		return "", fmt.Errorf("prepare output: %w", err)
	}
	rankedPath, _ := obj["ranked_json"].(string)
	if rankedPath == "" {
		return "", fmt.Errorf("prepare output missing ranked_json")
	}
	return rankedPath, nil
}
