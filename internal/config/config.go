// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the orchestration engine configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Storage   StorageConfig   `toml:"storage"`
	LLM       LLMConfig       `toml:"llm"`     // Reasoning backend settings
	Tools     ToolsConfig     `toml:"tools"`   // Tool server processes
	Limits    LimitsConfig    `toml:"limits"`  // Cycle/history/timeout budgets
	Bridge    BridgeConfig    `toml:"bridge"`  // Optional NATS event mirror
	Telemetry TelemetryConfig `toml:"telemetry"`
	Prompts   PromptsConfig   `toml:"prompts"` // Role directive overrides
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Addr           string `toml:"addr"`
	MaxConnections int    `toml:"max_connections"` // Listener cap, 0 = unlimited
}

// StorageConfig contains persistent storage settings.
type StorageConfig struct {
	WorkspacesRoot string `toml:"workspaces_root"` // Base directory for per-task workspaces
}

// LLMConfig contains reasoning backend settings.
type LLMConfig struct {
	Model     string `toml:"model"`
	BaseURL   string `toml:"base_url"` // Custom OpenAI-compatible endpoint
	APIKeyEnv string `toml:"api_key_env"`
	MaxTokens int    `toml:"max_tokens"`
}

// ToolsConfig contains tool server configuration.
type ToolsConfig struct {
	Servers map[string]ToolServerConfig `toml:"servers"`
}

// ToolServerConfig configures one external tool server process.
type ToolServerConfig struct {
	Command     string            `toml:"command"`
	Args        []string          `toml:"args,omitempty"`
	Env         map[string]string `toml:"env,omitempty"`
	DeniedTools []string          `toml:"denied_tools,omitempty"` // Tools to exclude from registration
}

// LimitsConfig contains the orchestration budgets.
type LimitsConfig struct {
	MaxCycles     int `toml:"max_cycles"`     // Planner/executor cycles per task (default 30)
	HistoryWindow int `toml:"history_window"` // Conversation entries kept (default 50)
	ToolTimeout   int `toml:"tool_timeout"`   // Tool call timeout in seconds (default 300)
	Heartbeat     int `toml:"heartbeat"`      // Stream idle heartbeat in seconds (default 30)
	PausePoll     int `toml:"pause_poll"`     // Pause flag poll cadence in seconds (default 1)
}

// BridgeConfig contains the optional NATS journal mirror settings.
type BridgeConfig struct {
	NATSURL       string `toml:"nats_url"`       // Empty disables the mirror
	SubjectPrefix string `toml:"subject_prefix"` // Default "tasks"
}

// TelemetryConfig contains tracing settings.
type TelemetryConfig struct {
	Enabled     bool   `toml:"enabled"`
	ServiceName string `toml:"service_name"`
}

// PromptsConfig points at an optional YAML file overriding role directives.
type PromptsConfig struct {
	File string `toml:"file"`
}

// RolePrompts holds planner/executor directive overrides loaded from YAML.
type RolePrompts struct {
	Planner  string `yaml:"planner"`
	Executor string `yaml:"executor"`
}

// New creates a new config with defaults.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8000",
		},
		Storage: StorageConfig{
			WorkspacesRoot: "workspaces",
		},
		LLM: LLMConfig{
			Model:     "gpt-4o",
			MaxTokens: 4096,
		},
		Limits: LimitsConfig{
			MaxCycles:     30,
			HistoryWindow: 50,
			ToolTimeout:   300, // 5 minutes per tool call
			Heartbeat:     30,
			PausePoll:     1,
		},
		Bridge: BridgeConfig{
			SubjectPrefix: "tasks",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "researstudio",
		},
	}
}

// Default returns a default configuration.
func Default() *Config {
	return New()
}

// LoadFile loads configuration from a TOML file.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// LoadDefault loads configuration from researstudio.toml in the current directory.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}

	return LoadFile(filepath.Join(cwd, "researstudio.toml"))
}

// GetAPIKey returns the API key from the configured environment variable.
func (c *Config) GetAPIKey() string {
	envVar := c.LLM.APIKeyEnv
	if envVar == "" {
		envVar = "OPENAI_API_KEY"
	}
	return os.Getenv(envVar)
}

// LoadPrompts loads role directive overrides from the configured YAML file.
// Returns zero-value prompts if no file is configured.
func (c *Config) LoadPrompts() (RolePrompts, error) {
	var p RolePrompts
	if c.Prompts.File == "" {
		return p, nil
	}
	data, err := os.ReadFile(c.Prompts.File)
	if err != nil {
		return p, fmt.Errorf("failed to read prompts file: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to parse prompts file: %w", err)
	}
	return p, nil
}
