package replay

import (
	"fmt"
	"io"
	"sort"

	"github.com/charmbracelet/lipgloss"

	"github.com/ResearAI/ResearStudio/internal/journal"
)

// Stats holds aggregate statistics for one task.
type Stats struct {
	TotalDurationMs int64

	PlanningSteps  int
	ExecutionSteps int

	ToolCalls  map[string]int
	ToolErrors int

	FilesWritten int
	FilesDeleted int

	TerminalCommands int
}

// ComputeStats aggregates over the event log.
func ComputeStats(tr *Transcript) *Stats {
	stats := &Stats{ToolCalls: make(map[string]int)}

	var first, last float64
	for i := range tr.Events {
		evt := &tr.Events[i]
		if first == 0 || evt.Timestamp < first {
			first = evt.Timestamp
		}
		if evt.Timestamp > last {
			last = evt.Timestamp
		}

		switch evt.Type {
		case journal.TypeActivity:
			kind, _ := evt.Data["type"].(string)
			switch kind {
			case "planning":
				stats.PlanningSteps++
			case "execution":
				stats.ExecutionSteps++
			case "command":
				if command, ok := evt.Data["command"].(string); ok {
					stats.ToolCalls[toolNameFromCommand(command)]++
				}
			}

		case journal.TypeError:
			if kind, _ := evt.Data["type"].(string); kind == "tool_call_error" {
				stats.ToolErrors++
			}

		case journal.TypeFileUpdate:
			stats.FilesWritten++

		case journal.TypeFileDelete:
			stats.FilesDeleted++

		case journal.TypeTerminal:
			stats.TerminalCommands++
		}
	}

	if first > 0 && last > first {
		stats.TotalDurationMs = int64((last - first) * 1000)
	}
	return stats
}

// toolNameFromCommand extracts the tool name from "name({...})".
func toolNameFromCommand(command string) string {
	for i := 0; i < len(command); i++ {
		if command[i] == '(' {
			return command[:i]
		}
	}
	return command
}

// PrintStats outputs the statistics block below the timeline.
func PrintStats(w io.Writer, stats *Stats) {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))

	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render("TASK STATISTICS"))
	fmt.Fprintf(w, "%s %s\n",
		labelStyle.Render("Duration:"),
		valueStyle.Render(formatDuration(stats.TotalDurationMs)))
	fmt.Fprintf(w, "%s %s\n",
		labelStyle.Render("Cycles:  "),
		valueStyle.Render(fmt.Sprintf("%d planning, %d execution", stats.PlanningSteps, stats.ExecutionSteps)))

	if len(stats.ToolCalls) > 0 {
		total := 0
		names := make([]string, 0, len(stats.ToolCalls))
		for name, n := range stats.ToolCalls {
			names = append(names, name)
			total += n
		}
		sort.Strings(names)
		fmt.Fprintf(w, "%s %s\n",
			labelStyle.Render("Tools:   "),
			valueStyle.Render(fmt.Sprintf("%d calls, %d failed", total, stats.ToolErrors)))
		for _, name := range names {
			fmt.Fprintf(w, "  %s %s\n",
				labelStyle.Render(name+":"),
				valueStyle.Render(fmt.Sprintf("%d", stats.ToolCalls[name])))
		}
	}

	if stats.FilesWritten > 0 || stats.FilesDeleted > 0 {
		fmt.Fprintf(w, "%s %s\n",
			labelStyle.Render("Files:   "),
			valueStyle.Render(fmt.Sprintf("%d written, %d deleted", stats.FilesWritten, stats.FilesDeleted)))
	}
	if stats.TerminalCommands > 0 {
		fmt.Fprintf(w, "%s %s\n",
			labelStyle.Render("Terminal:"),
			valueStyle.Render(fmt.Sprintf("%d commands", stats.TerminalCommands)))
	}
	fmt.Fprintln(w)
}

// formatDuration formats milliseconds as a human-readable duration.
func formatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.2fs", float64(ms)/1000)
	}
	mins := ms / 60000
	secs := (ms % 60000) / 1000
	return fmt.Sprintf("%dm%ds", mins, secs)
}
