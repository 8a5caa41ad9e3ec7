// Package bookflow orchestrates a book-to-artifact run: fetch, prepare,
// chapter selection, notebook and source resolution, then guarded
// artifact generation, with a persisted manifest and event log per run.
package bookflow

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// AssetID derives a stable content identity for a book. Preference
// order: EPUB file bytes, ranked-JSON file bytes, normalized title text.
func AssetID(epubPath, rankedJSONPath, title string) (string, error) {
	if epubPath != "" {
		if sum, err := hashFile(epubPath); err == nil {
			return sum, nil
		}
	}
	if rankedJSONPath != "" {
		if sum, err := hashFile(rankedJSONPath); err == nil {
			return sum, nil
		}
	}
	normalized := NormalizeTitle(title)
	if normalized == "" {
		return "", fmt.Errorf("no epub, ranked json, or title to derive asset identity")
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:]), nil
}

func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// NormalizeTitle lowercases and collapses runs of whitespace so cosmetic
// differences do not change the asset identity.
func NormalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}
