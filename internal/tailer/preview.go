package tailer

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"
)

// FirstUserMessage returns the first real user message in a session file,
// truncated to maxLen. Command metadata lines (content starting with
// "<command-") are skipped. Returns "" when the file has no user text.
func FirstUserMessage(path string, maxLen int) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var entry struct {
			Type    string `json:"type"`
			Message struct {
				Content json.RawMessage `json:"content"`
			} `json:"message"`
		}
		if json.Unmarshal([]byte(line), &entry) != nil || entry.Type != "user" {
			continue
		}

		if text := userText(entry.Message.Content); text != "" {
			return truncate(text, maxLen)
		}
	}
	return ""
}

// userText extracts display text from a user message content field, which is
// either a plain string or a list of content blocks.
func userText(content json.RawMessage) string {
	var s string
	if json.Unmarshal(content, &s) == nil {
		s = strings.TrimSpace(s)
		if strings.HasPrefix(s, "<command-") {
			return ""
		}
		return s
	}

	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if json.Unmarshal(content, &blocks) != nil {
		return ""
	}
	for _, b := range blocks {
		if b.Type == "text" {
			if text := strings.TrimSpace(b.Text); text != "" {
				return text
			}
		}
	}
	return ""
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max]
}

// HasMessages reports whether the file contains at least one user or
// assistant entry. Discovery uses this to skip warmup and summary-only files.
func HasMessages(path string, format Format) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if _, include, err := format.Decode([]byte(line)); err == nil && include {
			return true
		}
	}
	return false
}
