package watch

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tailview/backend/internal/tailer"
)

// ShouldWatchFile reports whether a path is a session transcript we track.
// Agent-generated side files (subagent transcripts) are skipped.
func ShouldWatchFile(path string) bool {
	name := filepath.Base(path)
	if !strings.HasSuffix(name, ".jsonl") {
		return false
	}
	return !strings.HasPrefix(name, "agent-")
}

// DecodeProjectDir converts a dash-encoded project directory name back to a
// filesystem path. The encoding replaces "/" with "-", which is ambiguous
// for directories whose names contain hyphens, so candidates are checked for
// existence, treating progressively fewer dashes as separators.
func DecodeProjectDir(encoded string) string {
	if !strings.HasPrefix(encoded, "-") {
		return encoded
	}

	parts := strings.Split(encoded[1:], "-")
	for seps := len(parts); seps > 0; seps-- {
		candidate := "/" + strings.Join(parts[:seps], "/")
		if seps < len(parts) {
			candidate += "-" + strings.Join(parts[seps:], "-")
		}
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
	}

	// Nothing on disk matched; best effort with every dash a separator.
	return "/" + strings.Join(parts, "/")
}

// Candidate is a discovered session file with its modification time.
type Candidate struct {
	Path    string
	ModTime time.Time
}

// FindRecentSessions scans a Claude projects directory
// (~/.claude/projects/<encoded-path>/<uuid>.jsonl) and returns up to limit
// transcript files, newest first. Empty files and files with no
// user/assistant messages are skipped so placeholder sessions don't occupy
// registry slots.
func FindRecentSessions(projectsDir string, limit int) []Candidate {
	var found []Candidate

	entries, err := os.ReadDir(projectsDir)
	if err != nil {
		return nil
	}
	for _, dir := range entries {
		if !dir.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(projectsDir, dir.Name()))
		if err != nil {
			continue
		}
		for _, f := range files {
			path := filepath.Join(projectsDir, dir.Name(), f.Name())
			if f.IsDir() || !ShouldWatchFile(path) {
				continue
			}
			info, err := f.Info()
			if err != nil || info.Size() == 0 {
				continue
			}
			found = append(found, Candidate{Path: path, ModTime: info.ModTime()})
		}
	}

	sort.Slice(found, func(i, j int) bool {
		return found[i].ModTime.After(found[j].ModTime)
	})

	// Filter after sorting so the content check only runs on files that can
	// actually make the cut.
	result := make([]Candidate, 0, limit)
	format := tailer.ClaudeFormat{}
	for _, c := range found {
		if len(result) >= limit {
			break
		}
		if tailer.HasMessages(c.Path, format) {
			result = append(result, c)
		}
	}
	return result
}

// FindRecentRollouts scans a Codex sessions directory
// (~/.codex/sessions/YYYY/MM/DD/rollout-*.jsonl) and returns up to limit
// rollout files, newest first.
func FindRecentRollouts(sessionsDir string, limit int) []Candidate {
	var found []Candidate

	filepath.WalkDir(sessionsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		name := d.Name()
		if !strings.HasPrefix(name, "rollout-") || !strings.HasSuffix(name, ".jsonl") {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() == 0 {
			return nil
		}
		found = append(found, Candidate{Path: path, ModTime: info.ModTime()})
		return nil
	})

	sort.Slice(found, func(i, j int) bool {
		return found[i].ModTime.After(found[j].ModTime)
	})
	if len(found) > limit {
		found = found[:limit]
	}
	return found
}
