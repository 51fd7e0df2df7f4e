package broadcast

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tailview/backend/internal/tailer"
)

// RenderEntry converts a transcript entry into a message payload for
// subscribers. Returns false for entries with nothing displayable (pure
// tool-result plumbing, empty content), which are suppressed rather than
// broadcast as blank messages.
func RenderEntry(e tailer.Entry) (MessagePayload, bool) {
	var content string
	switch e.Source {
	case "codex":
		content = renderCodex(e)
	default:
		content = renderClaude(e)
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return MessagePayload{}, false
	}
	return MessagePayload{
		Role:      e.Kind.String(),
		Timestamp: e.Timestamp,
		Content:   content,
	}, true
}

func renderCodex(e tailer.Entry) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(e.Message, &payload); err != nil {
		return ""
	}
	return payload.Message
}

// renderClaude flattens a Claude message's content to text. String content
// passes through; block lists keep text blocks verbatim and reduce tool_use
// blocks to a one-line marker. Command echoes and tool results are dropped.
func renderClaude(e tailer.Entry) string {
	var msg struct {
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(e.Message, &msg); err != nil || msg.Content == nil {
		return ""
	}

	var plain string
	if err := json.Unmarshal(msg.Content, &plain); err == nil {
		if strings.HasPrefix(plain, "<command-") {
			return ""
		}
		return plain
	}

	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(msg.Content, &blocks); err != nil {
		return ""
	}

	var parts []string
	for _, b := range blocks {
		switch b.Type {
		case "text":
			if strings.HasPrefix(b.Text, "<command-") {
				continue
			}
			parts = append(parts, b.Text)
		case "tool_use":
			parts = append(parts, fmt.Sprintf("[tool: %s]", b.Name))
		}
	}
	return strings.Join(parts, "\n")
}
