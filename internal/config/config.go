package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main Kirana configuration
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Database configuration
	Database DatabaseConfig `json:"database" mapstructure:"database"`

	// Knowledge base configuration
	Knowledge KnowledgeConfig `json:"knowledge" mapstructure:"knowledge"`

	// AI provider configuration
	AI AIConfig `json:"ai" mapstructure:"ai"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// Root directory for the file tool
	ContentRoot string `json:"content_root" mapstructure:"content_root"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string `json:"host" mapstructure:"host"`
	Port            int    `json:"port" mapstructure:"port"`
	ShutdownTimeout int    `json:"shutdown_timeout" mapstructure:"shutdown_timeout"` // seconds
}

// DatabaseConfig holds SQLite configuration
type DatabaseConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// KnowledgeConfig holds knowledge base indexing configuration
type KnowledgeConfig struct {
	WatchDirs    []WatchDir      `json:"watch_dirs" mapstructure:"watch_dirs"`
	SyncSchedule string          `json:"sync_schedule" mapstructure:"sync_schedule"` // cron expression
	Embedding    EmbeddingConfig `json:"embedding" mapstructure:"embedding"`
}

// WatchDir maps a filesystem directory to a knowledge base
type WatchDir struct {
	KBID string `json:"kb_id" mapstructure:"kb_id"`
	Path string `json:"path" mapstructure:"path"`
}

// EmbeddingConfig holds embedding provider configuration
type EmbeddingConfig struct {
	Provider   string `json:"provider" mapstructure:"provider"` // hash, openai
	Model      string `json:"model" mapstructure:"model"`
	Dimensions int    `json:"dimensions" mapstructure:"dimensions"`
	APIKey     string `json:"api_key" mapstructure:"api_key"`
}

// AIConfig holds AI provider configuration
type AIConfig struct {
	Profiles []AIProfile `json:"profiles" mapstructure:"profiles"`
}

// AIProfile represents an AI provider profile
type AIProfile struct {
	ID       string `json:"id" mapstructure:"id"`
	Provider string `json:"provider" mapstructure:"provider"` // anthropic, openai
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	Model    string `json:"model" mapstructure:"model"`
	Priority int    `json:"priority" mapstructure:"priority"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `json:"level" mapstructure:"level"`
	File  string `json:"file" mapstructure:"file"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: 15,
		},
		Database: DatabaseConfig{
			Path: "",
		},
		Knowledge: KnowledgeConfig{
			WatchDirs:    []WatchDir{},
			SyncSchedule: "@every 10m",
			Embedding: EmbeddingConfig{
				Provider:   "hash",
				Dimensions: 256,
			},
		},
		AI: AIConfig{
			Profiles: []AIProfile{},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		DataDir:     "",
		ContentRoot: "",
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Logging.Level {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}

	switch c.Knowledge.Embedding.Provider {
	case "", "hash":
	case "openai":
		if c.Knowledge.Embedding.APIKey == "" {
			return fmt.Errorf("embedding provider openai requires an api_key")
		}
	default:
		return fmt.Errorf("invalid embedding provider: %s (must be: hash, openai)", c.Knowledge.Embedding.Provider)
	}

	for i, dir := range c.Knowledge.WatchDirs {
		if dir.KBID == "" {
			return fmt.Errorf("watch dir %d: kb_id is required", i)
		}
		if dir.Path == "" {
			return fmt.Errorf("watch dir %s: path is required", dir.KBID)
		}
	}

	for i, profile := range c.AI.Profiles {
		if profile.ID == "" {
			return fmt.Errorf("AI profile %d: ID is required", i)
		}
		if profile.Provider != "anthropic" && profile.Provider != "openai" {
			return fmt.Errorf("AI profile %s: invalid provider %s (must be: anthropic, openai)", profile.ID, profile.Provider)
		}
		if profile.APIKey == "" {
			return fmt.Errorf("AI profile %s: api_key is required", profile.ID)
		}
	}

	return nil
}

// PrimaryProfile returns the highest-priority AI profile, or nil when none
// are configured.
func (c *Config) PrimaryProfile() *AIProfile {
	var best *AIProfile
	for i := range c.AI.Profiles {
		p := &c.AI.Profiles[i]
		if best == nil || p.Priority < best.Priority {
			best = p
		}
	}
	return best
}
