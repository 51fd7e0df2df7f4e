package summary

import (
	"fmt"
	"os"
	"strings"
)

// DefaultPromptTemplate instructs the agent CLI to emit a strict-JSON
// summary. Placeholders: {session_id}, {project_path}, {generated_at},
// {session_started_at}.
const DefaultPromptTemplate = `Summarize this coding session.

Session started: {session_started_at}

For the title (~5 words): be clear about what the user is trying to do and
the status. Format: "Category: Task - Status".

For the short summary (2-3 lines): include the task status and what was last
discussed.

For the executive summary: a comprehensive overview of what the user was
trying to do, steps taken, and current status.

Output ONLY valid JSON in this exact format, no other text:
{"title": "short title here",
"short_summary": "2-3 line summary here",
"executive_summary": "comprehensive overview here",
"summary_generated_at": "{generated_at}",
"session_started_at": "{session_started_at}",
"session_id": "{session_id}",
"path": "{project_path}"}
`

// LoadPromptTemplate returns the template from the given file, or the
// default when no file is configured.
func LoadPromptTemplate(path string) (string, error) {
	if path == "" {
		return DefaultPromptTemplate, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading prompt template: %w", err)
	}
	return string(data), nil
}

// FormatPrompt fills a template's placeholders with session metadata.
func FormatPrompt(template, sessionID, projectPath, generatedAt, startedAt string) string {
	if projectPath == "" {
		projectPath = "Unknown"
	}
	if startedAt == "" {
		startedAt = "Unknown"
	}
	r := strings.NewReplacer(
		"{session_id}", sessionID,
		"{project_path}", projectPath,
		"{generated_at}", generatedAt,
		"{session_started_at}", startedAt,
	)
	return r.Replace(template)
}
