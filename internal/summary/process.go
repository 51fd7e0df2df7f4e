package summary

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/sirupsen/logrus"

	"github.com/tailview/backend/internal/registry"
)

// agentBinaries are process names that count as an interactive agent CLI.
var agentBinaries = map[string]bool{
	"claude":      true,
	"claude-code": true,
	"codex":       true,
}

// CLIScanner watches for long-running agent CLI processes. A CLI that has
// been alive past MinRuntime inside a tracked session's project directory
// means the user is in a long interactive session; we summarize it eagerly
// instead of waiting for the file to go idle, then mark it externally
// summarized so the idle path skips it.
type CLIScanner struct {
	Tracker    *Tracker
	Registry   *registry.Registry
	Summarize  SummarizeFunc
	MinRuntime time.Duration
	Interval   time.Duration
	Log        *logrus.Logger
}

func NewCLIScanner(tr *Tracker, reg *registry.Registry, summarize SummarizeFunc,
	minRuntime, interval time.Duration, log *logrus.Logger) *CLIScanner {

	if log == nil {
		log = logrus.StandardLogger()
	}
	if minRuntime <= 0 {
		minRuntime = 30 * time.Minute
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &CLIScanner{
		Tracker:    tr,
		Registry:   reg,
		Summarize:  summarize,
		MinRuntime: minRuntime,
		Interval:   interval,
		Log:        log,
	}
}

// Run scans on a fixed interval until the context is cancelled.
func (s *CLIScanner) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scanOnce(ctx)
		}
	}
}

func (s *CLIScanner) scanOnce(ctx context.Context) {
	dirs := s.longRunningCLIDirs()
	if len(dirs) == 0 {
		return
	}

	for _, sess := range s.Registry.List() {
		if sess.ProjectPath == "" || !dirs[sess.ProjectPath] {
			continue
		}
		switch s.Tracker.State(sess.ID) {
		case StateSummarizing, StateDone:
			continue
		}

		s.Log.Infof("long-running CLI in %s, summarizing session %s", sess.ProjectPath, sess.ID)
		if s.Summarize(ctx, sess) {
			s.Tracker.MarkExternallySummarized(sess.ID)
		}
	}
}

// longRunningCLIDirs returns the working directories of agent CLI processes
// older than MinRuntime.
func (s *CLIScanner) longRunningCLIDirs() map[string]bool {
	procs, err := process.Processes()
	if err != nil {
		s.Log.Warnf("listing processes: %v", err)
		return nil
	}

	cutoff := time.Now().Add(-s.MinRuntime).UnixMilli()
	dirs := make(map[string]bool)

	for _, p := range procs {
		name, err := p.Name()
		if err != nil || !isAgentCLI(p, name) {
			continue
		}
		created, err := p.CreateTime()
		if err != nil || created > cutoff {
			continue
		}
		cwd, err := p.Cwd()
		if err != nil || cwd == "" {
			continue
		}
		dirs[filepath.Clean(cwd)] = true
	}
	return dirs
}

// isAgentCLI matches known binaries directly, plus node processes whose
// command line invokes one (npm-installed CLIs run under node).
func isAgentCLI(p *process.Process, name string) bool {
	if agentBinaries[name] {
		return true
	}
	if name != "node" {
		return false
	}
	args, err := p.CmdlineSlice()
	if err != nil || len(args) < 2 {
		return false
	}
	for _, a := range args[1:] {
		base := filepath.Base(a)
		if agentBinaries[base] || strings.HasPrefix(base, "claude") {
			return true
		}
	}
	return false
}
