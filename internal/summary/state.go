package summary

import "encoding/json"

// State is the per-session summarization state machine:
//
//	None → Pending → Summarizing → {Done | Failed}
//
// with Done/Failed returning to Pending on new activity. At most one
// Summarizing transition is in flight per session.
type State int

const (
	StateNone State = iota
	StatePending
	StateSummarizing
	StateDone
	StateFailed
)

var stateNames = map[State]string{
	StateNone:        "none",
	StatePending:     "pending",
	StateSummarizing: "summarizing",
	StateDone:        "done",
	StateFailed:      "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}
