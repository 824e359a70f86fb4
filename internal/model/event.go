package model

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Priority levels used by ntfy. 1 is the lowest, 5 the highest.
const (
	PriorityMin     = 1
	PriorityDefault = 3
	PriorityMax     = 5

	// PriorityDispatch is the lowest priority that triggers a call.
	PriorityDispatch = 4
)

// Event is a single alert received from the ntfy stream. Events are
// transient: one is built per received frame and discarded once the
// dispatch decision has been made.
type Event struct {
	Priority int    `json:"priority"`
	Title    string `json:"title"`
	Message  string `json:"message"`
}

// UnmarshalJSON decodes an ntfy message frame. A missing or non-numeric
// priority falls back to PriorityDefault rather than failing the event.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw struct {
		Priority json.RawMessage `json:"priority"`
		Title    string          `json:"title"`
		Message  string          `json:"message"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	e.Title = raw.Title
	e.Message = raw.Message
	e.Priority = parsePriority(raw.Priority)
	return nil
}

// parsePriority accepts both JSON numbers and numeric strings, which the
// ntfy API has emitted at different times. Anything else means the default.
func parsePriority(raw json.RawMessage) int {
	if len(raw) == 0 {
		return PriorityDefault
	}

	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return n
		}
	}

	return PriorityDefault
}
