package main

import (
	"context"
	"fmt"
	"time"

	"github.com/vinayprograms/agentkit/logging"

	"github.com/ResearAI/ResearStudio/internal/toolpool"
)

// Run connects to the configured tool servers and prints every registered
// tool, then disconnects. Useful for checking a config before serving.
func (t *ToolsCmd) Run() error {
	cfg, err := loadConfig(t.Config)
	if err != nil {
		return err
	}
	if len(cfg.Tools.Servers) == 0 {
		return fmt.Errorf("no tool servers configured")
	}

	pool := toolpool.New(cfg.Tools.Servers, time.Duration(cfg.Limits.ToolTimeout)*time.Second, logging.New())
	defer pool.Close()
	if err := pool.Init(context.Background()); err != nil {
		return err
	}

	for _, def := range pool.Schemas() {
		fmt.Printf("%-30s %s\n", def.Name, def.Description)
	}
	if unavailable := pool.Unavailable(); len(unavailable) > 0 {
		fmt.Println()
		for _, name := range unavailable {
			fmt.Printf("unavailable: %s\n", name)
		}
	}
	return nil
}
