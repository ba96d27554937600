package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vinayprograms/agentkit/logging"

	"github.com/ResearAI/ResearStudio/internal/backend"
	"github.com/ResearAI/ResearStudio/internal/bridge"
	"github.com/ResearAI/ResearStudio/internal/config"
	"github.com/ResearAI/ResearStudio/internal/journal"
	"github.com/ResearAI/ResearStudio/internal/orchestrator"
	"github.com/ResearAI/ResearStudio/internal/registry"
	"github.com/ResearAI/ResearStudio/internal/server"
	"github.com/ResearAI/ResearStudio/internal/toolpool"
)

// Run starts the engine and serves until interrupted.
func (s *ServeCmd) Run() error {
	cfg, err := loadConfig(s.Config)
	if err != nil {
		return err
	}
	if s.Addr != "" {
		cfg.Server.Addr = s.Addr
	}

	logger := logging.New()
	if s.Debug {
		logger.SetLevel(logging.LevelDebug)
	}

	apiKey := cfg.GetAPIKey()
	if apiKey == "" {
		return fmt.Errorf("no API key: set %s or configure llm.api_key_env", envName(cfg))
	}
	llm := backend.NewOpenAI(apiKey, cfg.LLM.Model, cfg.LLM.BaseURL, cfg.LLM.MaxTokens)

	pool := toolpool.New(cfg.Tools.Servers, time.Duration(cfg.Limits.ToolTimeout)*time.Second, logger)
	defer pool.Close()
	if err := pool.Init(context.Background()); err != nil {
		// The server still comes up so clients get a clear error from the
		// status endpoint; task creation stays disabled.
		logger.Error("tool pool initialization failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	var mirror journal.Mirror
	if cfg.Bridge.NATSURL != "" {
		b, err := bridge.Connect(cfg.Bridge.NATSURL, cfg.Bridge.SubjectPrefix, logger)
		if err != nil {
			logger.Warn("event bus unavailable, continuing without mirror", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			defer b.Close()
			mirror = b
		}
	}

	prompts, err := cfg.LoadPrompts()
	if err != nil {
		return err
	}
	opts := orchestrator.Options{
		MaxCycles:     cfg.Limits.MaxCycles,
		HistoryWindow: cfg.Limits.HistoryWindow,
		PausePoll:     time.Duration(cfg.Limits.PausePoll) * time.Second,
		Prompts:       prompts,
	}

	if err := os.MkdirAll(cfg.Storage.WorkspacesRoot, 0o755); err != nil {
		return fmt.Errorf("failed to create workspaces root: %w", err)
	}
	reg := registry.New(cfg.Storage.WorkspacesRoot, llm, pool, opts, mirror, logger)
	defer reg.Close()
	if err := reg.Rehydrate(); err != nil {
		return err
	}

	srv := server.New(cfg, reg, pool, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", map[string]interface{}{"signal": sig.String()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// loadConfig loads the named file, or researstudio.toml, or defaults when
// neither exists.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	cfg, err := config.LoadDefault()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return config.Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

func envName(cfg *config.Config) string {
	if cfg.LLM.APIKeyEnv != "" {
		return cfg.LLM.APIKeyEnv
	}
	return "OPENAI_API_KEY"
}
