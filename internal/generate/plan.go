package generate

import "strings"

// DefaultPlan is the fallback chain attempted when no plan is configured.
var DefaultPlan = []string{"infographic", "slides", "report", "audio"}

var typeAliases = map[string]string{
	"podcast":    "audio",
	"slide_deck": "slides",
	"slidedeck":  "slides",
	"mind_map":   "mindmap",
	"data_table": "data-table",
}

// NormalizeType maps user-facing aliases onto the CLI's artifact nouns.
func NormalizeType(raw string) string {
	t := strings.ToLower(strings.TrimSpace(raw))
	if canonical, ok := typeAliases[t]; ok {
		return canonical
	}
	return t
}

// NormalizePlan lowercases, alias-normalizes, and deduplicates while
// preserving order. Empty tokens are dropped.
func NormalizePlan(raw []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(raw))
	for _, token := range raw {
		t := NormalizeType(token)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// ParsePlan splits a comma-separated plan flag.
func ParsePlan(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return append([]string{}, DefaultPlan...)
	}
	return NormalizePlan(strings.Split(raw, ","))
}
