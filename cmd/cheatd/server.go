package main

import (
	"os"

	"github.com/cheatlab/cheatd/cmd/cheatd/shared"
	"github.com/cheatlab/cheatd/internal/llm"
	"github.com/cheatlab/cheatd/internal/server"
)

// ServerCmd runs the websocket server.
type ServerCmd struct {
	Config string `kong:"default='cheatd.hcl',help='Path to the HCL config file'"`
	Debug  bool   `kong:"help='Enable debug logging'"`
	Seed   *int64 `kong:"help='Deterministic RNG seed (optional)'"`
}

func (c *ServerCmd) Run() error {
	cfg, err := server.LoadConfig(c.Config)
	if err != nil {
		return err
	}
	if c.Debug {
		cfg.Server.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closer, err := shared.SetupLogger(cfg.Server.LogLevel, cfg.Server.LogFile)
	if err != nil {
		return err
	}
	if closer != nil {
		defer func() { _ = closer.Close() }()
	}

	opts := []server.OrchestratorOption{}
	if c.Seed != nil {
		logger.Info("Using deterministic seed", "seed", *c.Seed)
		opts = append(opts, server.WithSeed(*c.Seed))
	}
	if cfg.LLM != nil {
		l := cfg.LLM
		opts = append(opts, server.WithAskerFactory(func() llm.Asker {
			return llm.NewHTTPAsker(l.Endpoint, l.Model, os.Getenv(l.APIKeyEnv)).Ask
		}))
	}

	orch := server.NewOrchestrator(cfg, logger, opts...)
	srv := server.NewServer(cfg, orch, logger)

	logger.Info("Starting Cheat server",
		"address", cfg.ListenAddress(),
		"max_sessions", cfg.Server.MaxSessions,
		"multiplayer_quorum", cfg.Server.MultiplayerQuorum,
		"bots", len(cfg.Bots),
		"llm", cfg.LLM != nil,
	)

	ctx := shared.SetupSignalHandler(logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down server...")
		return srv.Stop()
	case err := <-serverErr:
		return err
	}
}
