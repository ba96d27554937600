package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ResearAI/ResearStudio/internal/journal"
)

// postProcess applies tool-specific side effects after a successful call.
// Tools write directly to disk outside the orchestrator's control, so
// several kinds trigger a workspace rescan to pick up what they produced.
func (t *Task) postProcess(tool string, args map[string]interface{}, result string) {
	switch tool {
	case "search":
		// Search results become a structured artifact file the client renders.
		filename := fmt.Sprintf("search_result_%d.jsonsearch", time.Now().Unix())
		formatted := result
		if data, err := json.MarshalIndent([]string{result}, "", "  "); err == nil {
			formatted = string(data)
		}
		if err := t.sync.EmitFile(filename, formatted); err != nil {
			t.logger.Warn("failed to persist search artifact", map[string]interface{}{
				"error": err.Error(),
			})
		}

	case "crawl_page":
		url := "unknown"
		if u, ok := args["url"].(string); ok && u != "" {
			url = u
		}
		t.emit(journal.TypeFileUpdate, map[string]interface{}{
			"filename":     "Web.html",
			"content":      url,
			"is_url":       true,
			"is_editable":  false,
			"file_type":    "html",
			"content_mode": "url",
		})

	case "execute_terminal_command":
		command, _ := args["command"].(string)
		t.emit(journal.TypeTerminal, map[string]interface{}{
			"command": command,
			"output":  trimTerminalOutput(result),
			"status":  "completed",
		})
		t.rescan()

	case "write_workspace_file":
		filename, _ := args["filename"].(string)
		content, _ := args["content"].(string)
		if filename != "" && content != "" {
			if err := t.sync.EmitFile(filename, content); err != nil {
				t.logger.Warn("failed to mirror written file", map[string]interface{}{
					"file":  filename,
					"error": err.Error(),
				})
			}
		}

	case "image_tool", "code_tool", "video_tool", "documents_tool", "excel_tool":
		// File-producing tools: rescan to find whatever they created.
		t.rescan()

	default:
		t.emitActivity("Tool "+tool+" execution finished", "activity", map[string]interface{}{
			"result": result,
		})
	}
}

func (t *Task) rescan() {
	if err := t.sync.Scan(); err != nil {
		t.logger.Warn("workspace rescan failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// trimTerminalOutput keeps only the part after the first "Output:" marker,
// matching what the terminal tool prefixes its replies with.
func trimTerminalOutput(s string) string {
	const marker = "Output:"
	if i := strings.Index(s, marker); i >= 0 {
		return s[i+len(marker):]
	}
	return s
}
