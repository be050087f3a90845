package server

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cheatd.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.hcl"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "localhost:8080", cfg.ListenAddress())
	assert.Equal(t, 3, cfg.Server.MultiplayerQuorum)
	assert.NotEmpty(t, cfg.Bots)
	assert.Nil(t, cfg.LLM)
}

func TestLoadConfigParsesAndFillsDefaults(t *testing.T) {
	path := writeConfig(t, `
server {
  port               = 9000
  multiplayer_quorum = 2
  history_dir        = "/tmp/cheat-history"
}

bot "Ada" {
  strategy = "smart"
}

bot "Bert" {
  strategy = "random"
  p_lie    = 0.5
}

llm {
  model       = "some-model"
  api_key_env = "SOME_API_KEY"
}
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "localhost:9000", cfg.ListenAddress())
	assert.Equal(t, 2, cfg.Server.MultiplayerQuorum)
	assert.Equal(t, "/tmp/cheat-history", cfg.Server.HistoryDir)
	assert.Equal(t, 64, cfg.Server.MaxSessions)

	require.Len(t, cfg.Bots, 2)
	assert.Equal(t, "Ada", cfg.Bots[0].Name)
	assert.Equal(t, "smart", cfg.Bots[0].Strategy)
	assert.InDelta(t, 0.3, cfg.Bots[0].Verbosity, 1e-9)
	assert.InDelta(t, 0.3, cfg.Bots[1].PCall, 1e-9)
	assert.InDelta(t, 0.5, cfg.Bots[1].PLie, 1e-9)

	require.NotNil(t, cfg.LLM)
	assert.Equal(t, "SOME_API_KEY", cfg.LLM.APIKeyEnv)
}

func TestLoadConfigRejectsMalformedHCL(t *testing.T) {
	path := writeConfig(t, `server { port = `)
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"zero max sessions", func(c *Config) { c.Server.MaxSessions = 0 }},
		{"zero quorum", func(c *Config) { c.Server.MultiplayerQuorum = 0 }},
		{"no bots", func(c *Config) { c.Bots = nil }},
		{"unknown strategy", func(c *Config) { c.Bots[0].Strategy = "psychic" }},
		{"probability out of range", func(c *Config) { c.Bots[0].PLie = 1.5 }},
		{"llm without key env", func(c *Config) { c.LLM = &LLMConfig{Model: "m"} }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
