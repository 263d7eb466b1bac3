// Package config loads the courier configuration file. Values support
// ${ENV_VAR} expansion so secrets can stay out of the file itself.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/courier-ai/courier/internal/storage"
)

// Config is the root configuration structure.
type Config struct {
	Workspace string         `yaml:"workspace"`
	Provider  ProviderConfig `yaml:"provider"`
	Agent     AgentConfig    `yaml:"agent"`
	Tools     ToolsConfig    `yaml:"tools"`
	Cron      CronConfig     `yaml:"cron"`
	Storage   storage.Config `yaml:"storage"`
	SSE       SSEConfig      `yaml:"sse"`
	Channels  ChannelsConfig `yaml:"channels"`
	Logging   LoggingConfig  `yaml:"logging"`
}

type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

type AgentConfig struct {
	MaxIterations int           `yaml:"max_iterations"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	MaxSubagents  int           `yaml:"max_subagents"`
}

type ToolsConfig struct {
	// AllowedDir restricts file tools to a directory tree. Empty falls
	// back to the workspace.
	AllowedDir  string        `yaml:"allowed_dir"`
	ExecTimeout time.Duration `yaml:"exec_timeout"`
	BraveAPIKey string        `yaml:"brave_api_key"`
}

type CronConfig struct {
	// StorePath is the jobs file. Empty means <workspace>/cron/jobs.json.
	StorePath string `yaml:"store_path"`
}

type SSEConfig struct {
	Addr string `yaml:"addr"`
}

type ChannelsConfig struct {
	WebSocket WebSocketConfig `yaml:"websocket"`
}

type WebSocketConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultPath returns ~/.courier/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".courier", "config.yaml")
}

// Load reads and parses the config file at path, expanding ${ENV_VAR}
// references before parsing. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyFallbacks()
	return cfg, nil
}

func defaults() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Workspace: filepath.Join(home, ".courier", "workspace"),
		Provider: ProviderConfig{
			APIKey: os.Getenv("OPENAI_API_KEY"),
		},
		Agent: AgentConfig{
			MaxIterations: 20,
			PollInterval:  time.Second,
			MaxSubagents:  8,
		},
		Tools: ToolsConfig{
			ExecTimeout: 60 * time.Second,
		},
		SSE: SSEConfig{
			Addr: ":8080",
		},
		Channels: ChannelsConfig{
			WebSocket: WebSocketConfig{Addr: ":8765"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func (c *Config) applyFallbacks() {
	c.Workspace = expandHome(c.Workspace)
	if c.Agent.MaxIterations <= 0 {
		c.Agent.MaxIterations = 20
	}
	if c.Agent.PollInterval <= 0 {
		c.Agent.PollInterval = time.Second
	}
	if c.Agent.MaxSubagents <= 0 {
		c.Agent.MaxSubagents = 8
	}
	if c.Tools.AllowedDir == "" {
		c.Tools.AllowedDir = c.Workspace
	}
	if c.Tools.ExecTimeout <= 0 {
		c.Tools.ExecTimeout = 60 * time.Second
	}
	if c.Cron.StorePath == "" {
		c.Cron.StorePath = filepath.Join(c.Workspace, "cron", "jobs.json")
	}
	if c.SSE.Addr == "" {
		c.SSE.Addr = ":8080"
	}
}

func expandHome(path string) string {
	if path == "~" || (len(path) > 1 && path[0] == '~' && path[1] == '/') {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// SessionDir returns the directory session files live in.
func (c *Config) SessionDir() string {
	return filepath.Join(c.Workspace, "sessions")
}
