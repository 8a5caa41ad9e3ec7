package runstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Event is one row of the append-only JSONL event log. Rows are never
// rewritten; the manifest reflects current state, the log reflects history.
type Event struct {
	TS      string `json:"ts"`
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

func AppendEvent(path string, event string, payload any) error {
	row := Event{
		TS:      time.Now().Format(time.RFC3339),
		Event:   event,
		Payload: payload,
	}
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("marshal event %q for %s: %w", event, path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create parent for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open event log %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append event to %s: %w", path, err)
	}
	return nil
}

// ReadEvents loads all rows from a JSONL event log. Unparseable lines are
// skipped rather than failing the whole read.
func ReadEvents(path string) ([]Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Event{}, nil
		}
		return nil, fmt.Errorf("read event log %s: %w", path, err)
	}
	out := make([]Event, 0, 16)
	start := 0
	for i := 0; i <= len(data); i++ {
		if i == len(data) || data[i] == '\n' {
			line := data[start:i]
			start = i + 1
			if len(line) == 0 {
				continue
			}
			var ev Event
			if err := json.Unmarshal(line, &ev); err != nil {
				continue
			}
			out = append(out, ev)
		}
	}
	return out, nil
}
