package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main nanobot configuration
type Config struct {
	// Workspace path (the agent's working directory)
	Workspace string `json:"workspace" mapstructure:"workspace"`

	// Data directory for runtime state (job store, task registry, logs)
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// Default delivery target for scheduled and spawned work
	DefaultChannel   string `json:"default_channel" mapstructure:"default_channel"`
	DefaultRecipient string `json:"default_recipient" mapstructure:"default_recipient"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Cron scheduler
	Cron CronConfig `json:"cron" mapstructure:"cron"`

	// Heartbeat runner
	Heartbeat HeartbeatConfig `json:"heartbeat" mapstructure:"heartbeat"`

	// Sub-agent spawner
	Subagents SubagentsConfig `json:"subagents" mapstructure:"subagents"`

	// Tool execution
	Tools ToolsConfig `json:"tools" mapstructure:"tools"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"` // debug, info, warn, error
	File    string `json:"file" mapstructure:"file"`
	Console bool   `json:"console" mapstructure:"console"`
	Pretty  bool   `json:"pretty" mapstructure:"pretty"`
}

// CronConfig holds cron scheduler configuration
type CronConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	StorePath   string `json:"store_path" mapstructure:"store_path"`
	TickSeconds int    `json:"tick_seconds" mapstructure:"tick_seconds"`
}

// HeartbeatConfig holds heartbeat runner configuration
type HeartbeatConfig struct {
	Enabled         bool `json:"enabled" mapstructure:"enabled"`
	IntervalSeconds int  `json:"interval_seconds" mapstructure:"interval_seconds"`
}

// SubagentsConfig holds sub-agent spawner configuration
type SubagentsConfig struct {
	MaxConcurrent  int    `json:"max_concurrent" mapstructure:"max_concurrent"`
	OverflowPolicy string `json:"overflow_policy" mapstructure:"overflow_policy"` // queue, reject
	RegistryPath   string `json:"registry_path" mapstructure:"registry_path"`
	RetentionHours int    `json:"retention_hours" mapstructure:"retention_hours"`
}

// ToolsConfig holds tool execution configuration
type ToolsConfig struct {
	TimeoutSeconds     int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
	ExecTimeoutSeconds int    `json:"exec_timeout_seconds" mapstructure:"exec_timeout_seconds"`
	WebSearchEndpoint  string `json:"web_search_endpoint" mapstructure:"web_search_endpoint"`
	MaxOutputBytes     int    `json:"max_output_bytes" mapstructure:"max_output_bytes"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Workspace:        "",
		DataDir:          "",
		DefaultChannel:   "direct",
		DefaultRecipient: "operator",
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Pretty:  true,
		},
		Cron: CronConfig{
			Enabled:     true,
			TickSeconds: 5,
		},
		Heartbeat: HeartbeatConfig{
			Enabled:         true,
			IntervalSeconds: 1800,
		},
		Subagents: SubagentsConfig{
			MaxConcurrent:  4,
			OverflowPolicy: "queue",
			RetentionHours: 24,
		},
		Tools: ToolsConfig{
			TimeoutSeconds:     30,
			ExecTimeoutSeconds: 60,
			MaxOutputBytes:     64 * 1024,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Workspace == "" {
		return fmt.Errorf("workspace path is required")
	}
	if c.DefaultChannel == "" {
		return fmt.Errorf("default channel is required")
	}

	switch c.Logging.Level {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Cron.Enabled && c.Cron.TickSeconds <= 0 {
		return fmt.Errorf("cron tick_seconds must be positive")
	}
	if c.Heartbeat.Enabled && c.Heartbeat.IntervalSeconds <= 0 {
		return fmt.Errorf("heartbeat interval_seconds must be positive")
	}

	if c.Subagents.MaxConcurrent <= 0 {
		return fmt.Errorf("subagents max_concurrent must be positive")
	}
	if policy := c.Subagents.OverflowPolicy; policy != "queue" && policy != "reject" {
		return fmt.Errorf("invalid subagents overflow_policy %q (must be: queue, reject)", policy)
	}

	if c.Tools.TimeoutSeconds <= 0 {
		return fmt.Errorf("tools timeout_seconds must be positive")
	}
	if c.Tools.ExecTimeoutSeconds <= 0 {
		return fmt.Errorf("tools exec_timeout_seconds must be positive")
	}

	return nil
}
