package bookflow

import "bookflow/internal/model"

var generationSuccessStates = map[string]bool{
	"ok":         true,
	"completed":  true,
	"prepared":   true,
	"dry_run_ok": true,
}

var generationPartialStates = map[string]bool{
	"partial":  true,
	"degraded": true,
}

var generationFailedStates = map[string]bool{
	"failed": true,
}

// FinalGenerationState derives the run's terminal status from the
// recorded infographic and non_infographic stage outcomes.
func FinalGenerationState(stages map[string]any) string {
	outcomes := []string{}
	for _, stage := range []string{"infographic", "non_infographic"} {
		payload, ok := stages[stage].(map[string]any)
		if !ok {
			continue
		}
		if outcome, ok := payload["outcome"].(string); ok && outcome != "" {
			outcomes = append(outcomes, outcome)
		}
	}
	if len(outcomes) == 0 {
		return model.StateFailed
	}

	success, partial, failed := 0, 0, 0
	for _, outcome := range outcomes {
		switch {
		case generationSuccessStates[outcome]:
			success++
		case generationPartialStates[outcome]:
			partial++
		case generationFailedStates[outcome]:
			failed++
		}
	}
	switch {
	case success == len(outcomes):
		return model.StateCompleted
	case partial > 0:
		return model.StatePartial
	case success > 0 && failed > 0:
		return model.StatePartial
	default:
		// A success next to an outcome outside the recognized sets
		// (failed_preflight and friends) does not soften the verdict.
		return model.StateFailed
	}
}
