package model

import "fmt"

const (
	StateStarted                  = "started"
	StateFetched                  = "fetched"
	StatePrepared                 = "prepared"
	StateAwaitingChapterSelection = "awaiting_chapter_selection"
	StateGenerating               = "generating"
	StateCompleted                = "completed"
	StatePartial                  = "partial"
	StateFailed                   = "failed"
)

// Notebook strategies controlling notebook identity reuse across runs.
const (
	StrategyRun    = "run"
	StrategyObject = "object"
	StrategyHybrid = "hybrid"
)

// awaiting_chapter_selection is a terminal pause, not an end: resuming is a
// new invocation with --chapter-ids supplied.
var terminalStates = map[string]bool{
	StateCompleted:                true,
	StatePartial:                  true,
	StateFailed:                   true,
	StateAwaitingChapterSelection: true,
}

var allowedTransitions = map[string]map[string]bool{
	StateStarted: {
		StateFetched:  true,
		StatePrepared: true,
		StateFailed:   true,
	},
	StateFetched: {
		StatePrepared: true,
		StateFailed:   true,
	},
	StatePrepared: {
		StateAwaitingChapterSelection: true,
		StateGenerating:               true,
		StateCompleted:                true,
		StateFailed:                   true,
	},
	StateAwaitingChapterSelection: {
		StateGenerating: true,
		StateFailed:     true,
	},
	StateGenerating: {
		StateCompleted: true,
		StatePartial:   true,
		StateFailed:    true,
	},
	StatePartial: {
		StateGenerating: true,
		StateCompleted:  true,
		StateFailed:     true,
	},
	StateCompleted: {},
	StateFailed:    {},
}

func IsKnownState(state string) bool {
	_, ok := allowedTransitions[state]
	return ok
}

func IsTerminalState(state string) bool {
	return terminalStates[state]
}

func CanTransition(from, to string) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// IllegalTransitionError reports a transition not in the allowed table.
// The manifest status is left unchanged; callers must either surface it or
// force the manifest to failed explicitly.
type IllegalTransitionError struct {
	From string
	To   string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal run state transition: %q -> %q", e.From, e.To)
}

// Transition moves the manifest to target. A same-state transition only
// refreshes updated_at.
func Transition(m *RunManifest, target string) error {
	current := m.Status
	if current == target {
		m.Touch()
		return nil
	}
	if !CanTransition(current, target) {
		return &IllegalTransitionError{From: current, To: target}
	}
	m.Status = target
	m.Touch()
	return nil
}

// ForceFailed marks the manifest failed even when the transition table
// would reject it. Used by callers catching IllegalTransitionError rather
// than leaving the manifest inconsistent.
func ForceFailed(m *RunManifest) {
	if err := Transition(m, StateFailed); err != nil {
		m.Status = StateFailed
		m.Touch()
	}
}
