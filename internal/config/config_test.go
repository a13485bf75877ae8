package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "@every 10m", cfg.Knowledge.SyncSchedule)
	assert.Equal(t, "hash", cfg.Knowledge.Embedding.Provider)
	assert.Equal(t, 256, cfg.Knowledge.Embedding.Dimensions)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.AI.Profiles)

	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid default",
			mutate: func(c *Config) {},
		},
		{
			name: "valid with profiles",
			mutate: func(c *Config) {
				c.AI.Profiles = []AIProfile{
					{ID: "main", Provider: "anthropic", APIKey: "sk-ant-x"},
					{ID: "backup", Provider: "openai", APIKey: "sk-x"},
				}
			},
		},
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "invalid server port",
		},
		{
			name:    "invalid logging level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "invalid logging level",
		},
		{
			name:    "invalid embedding provider",
			mutate:  func(c *Config) { c.Knowledge.Embedding.Provider = "cohere" },
			wantErr: "invalid embedding provider",
		},
		{
			name:    "openai embedding without key",
			mutate:  func(c *Config) { c.Knowledge.Embedding.Provider = "openai" },
			wantErr: "requires an api_key",
		},
		{
			name: "watch dir missing kb_id",
			mutate: func(c *Config) {
				c.Knowledge.WatchDirs = []WatchDir{{Path: "/srv/docs"}}
			},
			wantErr: "kb_id is required",
		},
		{
			name: "watch dir missing path",
			mutate: func(c *Config) {
				c.Knowledge.WatchDirs = []WatchDir{{KBID: "docs"}}
			},
			wantErr: "path is required",
		},
		{
			name: "profile missing id",
			mutate: func(c *Config) {
				c.AI.Profiles = []AIProfile{{Provider: "openai", APIKey: "sk-x"}}
			},
			wantErr: "ID is required",
		},
		{
			name: "profile invalid provider",
			mutate: func(c *Config) {
				c.AI.Profiles = []AIProfile{{ID: "main", Provider: "gemini", APIKey: "x"}}
			},
			wantErr: "invalid provider",
		},
		{
			name: "profile missing api key",
			mutate: func(c *Config) {
				c.AI.Profiles = []AIProfile{{ID: "main", Provider: "openai"}}
			},
			wantErr: "api_key is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPrimaryProfile(t *testing.T) {
	cfg := DefaultConfig()
	assert.Nil(t, cfg.PrimaryProfile())

	cfg.AI.Profiles = []AIProfile{
		{ID: "backup", Provider: "openai", APIKey: "sk-x", Priority: 2},
		{ID: "main", Provider: "anthropic", APIKey: "sk-ant-x", Priority: 1},
	}
	primary := cfg.PrimaryProfile()
	require.NotNil(t, primary)
	assert.Equal(t, "main", primary.ID)
}

func TestConfigString(t *testing.T) {
	cfg := DefaultConfig()
	s := cfg.String()
	assert.Contains(t, s, `"server"`)
	assert.Contains(t, s, `"knowledge"`)
}
