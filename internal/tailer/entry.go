package tailer

import "encoding/json"

// Kind classifies a transcript entry. Anything that is not a user or
// assistant message is filtered out before it reaches a consumer.
type Kind int

const (
	KindOther Kind = iota
	KindUser
	KindAssistant
)

var kindNames = map[Kind]string{
	KindOther:     "other",
	KindUser:      "user",
	KindAssistant: "assistant",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// Entry is one parsed transcript line. Entries are transient: they are
// produced by a read call and handed to consumers, never retained here.
type Entry struct {
	Kind      Kind
	Source    string // format name that produced this entry
	Timestamp string // ISO-8601, may be empty
	RequestID string // Claude Code API request ID, may be empty

	// Message is the format-specific message payload: for Claude Code the
	// message object ({id, model, role, content, usage}), for Codex the
	// event payload ({type, message}).
	Message json.RawMessage

	// Raw is the complete original line, for consumers that need fields
	// the tailer doesn't model.
	Raw json.RawMessage
}
