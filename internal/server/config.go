package server

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// Config is the complete server configuration.
type Config struct {
	Server ServerSettings `hcl:"server,block"`
	Bots   []BotConfig    `hcl:"bot,block"`
	LLM    *LLMConfig     `hcl:"llm,block"`
}

// ServerSettings contains server-level configuration.
type ServerSettings struct {
	Address           string `hcl:"address,optional"`
	Port              int    `hcl:"port,optional"`
	LogLevel          string `hcl:"log_level,optional"`
	LogFile           string `hcl:"log_file,optional"`
	MaxSessions       int    `hcl:"max_sessions,optional"`
	MultiplayerQuorum int    `hcl:"multiplayer_quorum,optional"`
	HistoryDir        string `hcl:"history_dir,optional"`
	SweepIntervalMS   int    `hcl:"sweep_interval_ms,optional"`
	BotPauseMS        int    `hcl:"bot_pause_ms,optional"`
	RoundWaitSeconds  int    `hcl:"round_wait_seconds,optional"`
}

// BotConfig defines one entry of the bot roster that fills empty seats.
type BotConfig struct {
	Name      string  `hcl:"name,label"`
	Strategy  string  `hcl:"strategy"`
	Avatar    string  `hcl:"avatar,optional"`
	PCall     float64 `hcl:"p_call,optional"`
	PLie      float64 `hcl:"p_lie,optional"`
	Verbosity float64 `hcl:"verbosity,optional"`
}

// LLMConfig enables a language-model seat in solo games. The key is read
// from the named environment variable, never from the config file itself.
type LLMConfig struct {
	Model     string `hcl:"model,optional"`
	APIKeyEnv string `hcl:"api_key_env"`
	Endpoint  string `hcl:"endpoint,optional"`
	Name      string `hcl:"name,optional"`
	Avatar    string `hcl:"avatar,optional"`
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerSettings{
			Address:           "localhost",
			Port:              8080,
			LogLevel:          "info",
			MaxSessions:       64,
			MultiplayerQuorum: 3,
			SweepIntervalMS:   1000,
			BotPauseMS:        1000,
			RoundWaitSeconds:  30,
		},
		Bots: []BotConfig{
			{Name: "Maximilian", Strategy: "random", Avatar: "bot1", PCall: 0.3, PLie: 0.3, Verbosity: 0.3},
			{Name: "Beatrix", Strategy: "random", Avatar: "bot2", PCall: 0.4, PLie: 0.2, Verbosity: 0.4},
			{Name: "Konstantin", Strategy: "smart", Avatar: "bot3", Verbosity: 0.3},
		},
	}
}

// LoadConfig loads configuration from an HCL file, falling back to defaults
// when the file does not exist.
func LoadConfig(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var config Config
	diags = gohcl.DecodeBody(file.Body, nil, &config)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	def := DefaultConfig()
	if config.Server.Address == "" {
		config.Server.Address = def.Server.Address
	}
	if config.Server.Port == 0 {
		config.Server.Port = def.Server.Port
	}
	if config.Server.LogLevel == "" {
		config.Server.LogLevel = def.Server.LogLevel
	}
	if config.Server.MaxSessions == 0 {
		config.Server.MaxSessions = def.Server.MaxSessions
	}
	if config.Server.MultiplayerQuorum == 0 {
		config.Server.MultiplayerQuorum = def.Server.MultiplayerQuorum
	}
	if config.Server.SweepIntervalMS == 0 {
		config.Server.SweepIntervalMS = def.Server.SweepIntervalMS
	}
	if config.Server.BotPauseMS == 0 {
		config.Server.BotPauseMS = def.Server.BotPauseMS
	}
	if config.Server.RoundWaitSeconds == 0 {
		config.Server.RoundWaitSeconds = def.Server.RoundWaitSeconds
	}
	if len(config.Bots) == 0 {
		config.Bots = def.Bots
	}
	for i := range config.Bots {
		if config.Bots[i].Strategy == "random" {
			if config.Bots[i].PCall == 0 {
				config.Bots[i].PCall = 0.3
			}
			if config.Bots[i].PLie == 0 {
				config.Bots[i].PLie = 0.3
			}
		}
		if config.Bots[i].Verbosity == 0 {
			config.Bots[i].Verbosity = 0.3
		}
	}

	return &config, nil
}

// Validate validates the server configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Server.MaxSessions < 1 {
		return fmt.Errorf("max_sessions must be positive, got %d", c.Server.MaxSessions)
	}
	if c.Server.MultiplayerQuorum < 1 {
		return fmt.Errorf("multiplayer_quorum must be positive, got %d", c.Server.MultiplayerQuorum)
	}
	if len(c.Bots) == 0 {
		return fmt.Errorf("at least one bot must be configured")
	}

	for _, bot := range c.Bots {
		switch bot.Strategy {
		case "random", "smart":
		default:
			return fmt.Errorf("bot %s: invalid strategy %q", bot.Name, bot.Strategy)
		}
		for name, p := range map[string]float64{"p_call": bot.PCall, "p_lie": bot.PLie, "verbosity": bot.Verbosity} {
			if p < 0 || p > 1 {
				return fmt.Errorf("bot %s: %s must be within [0, 1], got %g", bot.Name, name, p)
			}
		}
	}

	if c.LLM != nil && c.LLM.APIKeyEnv == "" {
		return fmt.Errorf("llm block requires api_key_env")
	}
	return nil
}

// ListenAddress returns the host:port the server binds to.
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}
