// Package main is the entry point for the task orchestration engine.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func init() {
	// Load .env for API keys and endpoint overrides.
	_ = godotenv.Load()
}

// CLI defines the command-line interface.
type CLI struct {
	Serve   ServeCmd   `cmd:"" help:"Run the orchestration server"`
	Replay  ReplayCmd  `cmd:"" help:"Replay a task journal for forensic analysis"`
	Tasks   TasksCmd   `cmd:"" help:"List tasks in a workspaces directory"`
	Tools   ToolsCmd   `cmd:"" help:"Connect to tool servers and list their tools"`
	Version VersionCmd `cmd:"" help:"Show version information"`
}

// ServeCmd runs the HTTP server and task engine.
type ServeCmd struct {
	Config string `short:"c" help:"Config file path (default: researstudio.toml)"`
	Addr   string `help:"Listen address override"`
	Debug  bool   `help:"Enable debug logging"`
}

// ReplayCmd replays a task journal.
type ReplayCmd struct {
	Task    string `arg:"" help:"Task id to replay"`
	Root    string `default:"workspaces" help:"Workspaces root directory"`
	Verbose int    `short:"v" type:"counter" help:"Verbosity level (-v, -vv)"`
	NoPager bool   `help:"Disable pager for output"`
	Live    bool   `help:"Follow the journal as the task runs"`
	Raw     bool   `help:"Dump raw JSONL events (for jq)"`
}

// TasksCmd lists task workspaces.
type TasksCmd struct {
	Root string `default:"workspaces" help:"Workspaces root directory"`
}

// ToolsCmd connects to the configured tool servers and lists tools.
type ToolsCmd struct {
	Config string `short:"c" help:"Config file path (default: researstudio.toml)"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

// Run prints the version.
func (v *VersionCmd) Run() error {
	fmt.Printf("researstudio %s (commit: %s, built: %s)\n", version, commit, buildTime)
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("researstudio"),
		kong.Description("Autonomous task orchestration engine"),
		kong.UsageOnError(),
	)
	if err := ctx.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
