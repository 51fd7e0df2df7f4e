package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Watch     WatchConfig     `yaml:"watch"`
	Registry  RegistryConfig  `yaml:"registry"`
	Summary   SummaryConfig   `yaml:"summary"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Pricing   PricingConfig   `yaml:"pricing"`
}

type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

type WatchConfig struct {
	// ProjectsDir is the Claude Code projects root. Empty means
	// ~/.claude/projects.
	ProjectsDir string `yaml:"projects_dir"`

	// CodexSessionsDir is the Codex CLI rollout root. Empty means
	// ~/.codex/sessions.
	CodexSessionsDir string `yaml:"codex_sessions_dir"`
}

type RegistryConfig struct {
	MaxSessions    int           `yaml:"max_sessions"`
	CatchUpTimeout time.Duration `yaml:"catchup_timeout"`
}

type SummaryConfig struct {
	Enabled            bool          `yaml:"enabled"`
	IdleThreshold      time.Duration `yaml:"idle_threshold"`
	StuckCheckInterval time.Duration `yaml:"stuck_check_interval"`
	StuckTimeout       time.Duration `yaml:"stuck_timeout"`
	Command            string        `yaml:"command"`
	PromptFile         string        `yaml:"prompt_file"`
	OutputDir          string        `yaml:"output_dir"`
	LogPath            string        `yaml:"log_path"`

	// MinCLIRuntime is how long an agent CLI process must have been running
	// in a session's working directory before the session is summarized
	// out-of-band. Zero disables the process scan.
	MinCLIRuntime time.Duration `yaml:"min_cli_runtime"`
	ScanInterval  time.Duration `yaml:"scan_interval"`
}

type BroadcastConfig struct {
	QueueSize    int           `yaml:"queue_size"`
	PingInterval time.Duration `yaml:"ping_interval"`
}

type PricingConfig struct {
	Path string `yaml:"path"`
}

func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Server: ServerConfig{
			Port: 8585,
			Host: "127.0.0.1",
		},
		Watch: WatchConfig{
			ProjectsDir:      filepath.Join(home, ".claude", "projects"),
			CodexSessionsDir: filepath.Join(home, ".codex", "sessions"),
		},
		Registry: RegistryConfig{
			MaxSessions:    10,
			CatchUpTimeout: 30 * time.Second,
		},
		Summary: SummaryConfig{
			Enabled:            true,
			IdleThreshold:      5 * time.Minute,
			StuckCheckInterval: 60 * time.Second,
			StuckTimeout:       300 * time.Second,
			Command:            "claude",
			OutputDir:          filepath.Join(home, ".tailview", "summaries"),
			LogPath:            filepath.Join(home, ".tailview", "summaries.jsonl"),
			ScanInterval:       time.Minute,
		},
		Broadcast: BroadcastConfig{
			QueueSize:    100,
			PingInterval: 30 * time.Second,
		},
	}
}

// Load reads a YAML config file over the defaults. A missing file is not an
// error: the defaults are returned as-is so the server can run unconfigured.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
