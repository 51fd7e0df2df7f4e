package tailer

import "encoding/json"

// Format decodes one backend's transcript line format. Each supported agent
// tool stores sessions with a different line shape; a Format knows how to
// filter and classify lines and how a session's waiting-for-input state
// evolves as entries arrive.
type Format interface {
	Name() string

	// Decode parses one complete line. include=false means the line is
	// valid but not a transcript message (metadata, summaries, progress
	// records); err means the line is malformed and should be skipped.
	Decode(line []byte) (entry Entry, include bool, err error)

	// WaitingAfter reports the waiting-for-input state after an included
	// entry, given the state before it.
	WaitingAfter(e Entry, prev bool) bool
}

// ClaudeFormat decodes Claude Code session files. Lines look like:
//
//	{"type":"user"|"assistant","timestamp":"...","requestId":"...","message":{...}}
//
// Only user and assistant entries are included.
type ClaudeFormat struct{}

func (ClaudeFormat) Name() string { return "claude" }

type claudeLine struct {
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	RequestID string          `json:"requestId"`
	Message   json.RawMessage `json:"message"`
}

func (f ClaudeFormat) Decode(line []byte) (Entry, bool, error) {
	var raw claudeLine
	if err := json.Unmarshal(line, &raw); err != nil {
		return Entry{}, false, err
	}

	var kind Kind
	switch raw.Type {
	case "user":
		kind = KindUser
	case "assistant":
		kind = KindAssistant
	default:
		return Entry{}, false, nil
	}

	return Entry{
		Kind:      kind,
		Source:    f.Name(),
		Timestamp: raw.Timestamp,
		RequestID: raw.RequestID,
		Message:   raw.Message,
		Raw:       json.RawMessage(append([]byte(nil), line...)),
	}, true, nil
}

type contentBlock struct {
	Type string `json:"type"`
}

// WaitingAfter implements the last-content-block heuristic: an assistant
// entry ending in a plain text block means the agent has stopped and is
// waiting for the user; a trailing tool_use means work is still in flight.
// A trailing thinking block keeps the previous state — deliberate behavior,
// not an oversight.
func (ClaudeFormat) WaitingAfter(e Entry, prev bool) bool {
	if e.Kind == KindUser {
		return false
	}
	if e.Kind != KindAssistant {
		return prev
	}

	var msg struct {
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(e.Message, &msg); err != nil {
		return false
	}

	var blocks []contentBlock
	if err := json.Unmarshal(msg.Content, &blocks); err != nil || len(blocks) == 0 {
		// String content or no blocks: the agent said something
		// unstructured, treat as not waiting.
		return false
	}

	switch blocks[len(blocks)-1].Type {
	case "text":
		return true
	case "tool_use":
		return false
	default:
		return prev
	}
}

// CodexFormat decodes Codex CLI rollout files. Lines are envelopes:
//
//	{"type":"event_msg","payload":{"type":"user_message"|"agent_message","payload":{...}}}
//
// plus session_meta, response_item, and token accounting records. Only user
// and agent messages are included.
type CodexFormat struct{}

func (CodexFormat) Name() string { return "codex" }

type codexEnvelope struct {
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

func (f CodexFormat) Decode(line []byte) (Entry, bool, error) {
	var env codexEnvelope
	if err := json.Unmarshal(line, &env); err != nil {
		return Entry{}, false, err
	}

	if env.Type != "event_msg" || env.Payload == nil {
		return Entry{}, false, nil
	}

	var event struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(env.Payload, &event); err != nil {
		return Entry{}, false, err
	}

	var kind Kind
	switch event.Type {
	case "user_message":
		kind = KindUser
	case "agent_message":
		kind = KindAssistant
	default:
		return Entry{}, false, nil
	}

	return Entry{
		Kind:      kind,
		Source:    f.Name(),
		Timestamp: env.Timestamp,
		Message:   env.Payload,
		Raw:       json.RawMessage(append([]byte(nil), line...)),
	}, true, nil
}

// WaitingAfter for Codex is simpler than Claude: agent messages are only
// written when a turn completes, so an agent message means the CLI is
// waiting for input and any user message means it is not.
func (CodexFormat) WaitingAfter(e Entry, prev bool) bool {
	switch e.Kind {
	case KindAssistant:
		return true
	case KindUser:
		return false
	}
	return prev
}
