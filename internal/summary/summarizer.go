package summary

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tailview/backend/internal/registry"
)

// Summary is the JSON document the agent CLI is asked to produce.
type Summary struct {
	Title                string `json:"title"`
	ShortSummary         string `json:"short_summary"`
	ExecutiveSummary     string `json:"executive_summary,omitempty"`
	SummaryGeneratedAt   string `json:"summary_generated_at"`
	SessionStartedAt     string `json:"session_started_at,omitempty"`
	SessionLastUpdatedAt string `json:"session_last_updated_at,omitempty"`
	SessionID            string `json:"session_id"`
	Path                 string `json:"path,omitempty"`
	SummaryFile          string `json:"summary_file,omitempty"`
}

// Runner produces session summaries by invoking the agent CLI in print mode
// and parsing the JSON it emits. It satisfies SummarizeFunc via Summarize.
type Runner struct {
	Command        string // CLI binary, e.g. "claude"
	PromptTemplate string
	OutputDir      string // per-session summary JSON files; empty disables
	Writer         *LogWriter
	Log            *logrus.Logger
}

func NewRunner(command, promptTemplate, outputDir string, writer *LogWriter, log *logrus.Logger) *Runner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if command == "" {
		command = "claude"
	}
	if promptTemplate == "" {
		promptTemplate = DefaultPromptTemplate
	}
	return &Runner{
		Command:        command,
		PromptTemplate: promptTemplate,
		OutputDir:      outputDir,
		Writer:         writer,
		Log:            log,
	}
}

// Summarize runs the CLI for one session. Returns false on any failure; the
// tracker turns that into a Failed state.
func (r *Runner) Summarize(ctx context.Context, sess *registry.Session) bool {
	now := time.Now().UTC().Format(time.RFC3339)
	prompt := FormatPrompt(r.PromptTemplate, sess.ID, sess.ProjectPath, now, firstTimestamp(sess))

	cmd := exec.CommandContext(ctx, r.Command, "-p", prompt)
	if sess.ProjectPath != "" {
		if info, err := os.Stat(sess.ProjectPath); err == nil && info.IsDir() {
			cmd.Dir = sess.ProjectPath
		}
	}

	out, err := cmd.Output()
	if err != nil {
		r.Log.Errorf("summarize %s: %s failed: %v", sess.ID, r.Command, err)
		return false
	}

	sum, err := parseSummaryOutput(out)
	if err != nil {
		r.Log.Errorf("summarize %s: bad CLI output: %v", sess.ID, err)
		return false
	}
	sum.SessionID = sess.ID
	sum.SessionLastUpdatedAt = now
	if sum.Path == "" {
		sum.Path = sess.ProjectPath
	}

	if r.OutputDir != "" {
		if file, err := r.writeSummaryFile(sum); err != nil {
			r.Log.Warnf("summarize %s: writing summary file: %v", sess.ID, err)
		} else {
			sum.SummaryFile = file
		}
	}

	if r.Writer != nil {
		if err := r.Writer.Append(sum); err != nil {
			r.Log.Warnf("summarize %s: appending log entry: %v", sess.ID, err)
			return false
		}
	}

	r.Log.Infof("summarized session %s: %s", sess.ID, sum.Title)
	return true
}

func (r *Runner) writeSummaryFile(sum Summary) (string, error) {
	if err := os.MkdirAll(r.OutputDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(r.OutputDir, sum.SessionID+".json")
	data, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

var errNoJSON = errors.New("no JSON object in CLI output")

// parseSummaryOutput extracts the JSON document from CLI output, tolerating
// leading or trailing chatter around the braces.
func parseSummaryOutput(out []byte) (Summary, error) {
	s := string(out)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return Summary{}, errNoJSON
	}

	var sum Summary
	if err := json.Unmarshal([]byte(s[start:end+1]), &sum); err != nil {
		return Summary{}, err
	}
	return sum, nil
}

// firstTimestamp returns the session's first entry timestamp, best-effort.
func firstTimestamp(sess *registry.Session) string {
	entries := sess.Tailer.ReadAll()
	for _, e := range entries {
		if e.Timestamp != "" {
			return e.Timestamp
		}
	}
	return ""
}
