// Package workspace manages the on-disk area owned by one task: its
// directory layout, the persisted pause/resume control flag, and the
// synchronizer that turns tool-driven file changes into journal events.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
)

// Layout computes every per-task path. All task state lives under
// <root>/<task-id>/; the workspace/ subdirectory is the only part tools
// write into and the only part the synchronizer walks.
type Layout struct {
	Root   string
	TaskID string
}

// NewLayout returns the layout for a task under the workspaces root.
func NewLayout(root, taskID string) Layout {
	return Layout{Root: root, TaskID: taskID}
}

// Dir is the task's top-level directory.
func (l Layout) Dir() string { return filepath.Join(l.Root, l.TaskID) }

// WorkDir is the directory tools write into and the synchronizer scans.
func (l Layout) WorkDir() string { return filepath.Join(l.Dir(), "workspace") }

// JournalFile is the append-only event log.
func (l Layout) JournalFile() string { return filepath.Join(l.Dir(), "messages.jsonl") }

// QueryFile holds the original request text.
func (l Layout) QueryFile() string { return filepath.Join(l.Dir(), "query.txt") }

// AnswerFile holds the final answer, present only once the task completes.
func (l Layout) AnswerFile() string { return filepath.Join(l.Dir(), "final_answer.txt") }

// ControlFile is the persisted running/paused flag: '1' running, '0' paused.
func (l Layout) ControlFile() string { return filepath.Join(l.Dir(), "_run") }

// MetaFile holds rehydration metadata. Never contains secrets.
func (l Layout) MetaFile() string { return filepath.Join(l.Dir(), "task.json") }

// ErrorFile holds the reason for a fatal task failure.
func (l Layout) ErrorFile() string { return filepath.Join(l.Dir(), "error.txt") }

// ResultFile holds the executor's most recent step result.
func (l Layout) ResultFile() string { return filepath.Join(l.Dir(), "task_result.txt") }

// PlanFile holds the planner output for one cycle.
func (l Layout) PlanFile(cycle int) string {
	return filepath.Join(l.Dir(), fmt.Sprintf("plan_cycle_%d.md", cycle))
}

// ToolCallFile holds the recorded arguments/result of one tool call.
func (l Layout) ToolCallFile(tool string, cycle int) string {
	return filepath.Join(l.Dir(), fmt.Sprintf("tool_call_%s_%d.json", tool, cycle))
}

// Create builds the directory skeleton.
func (l Layout) Create() error {
	if err := os.MkdirAll(l.WorkDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}
	return nil
}

// Exists reports whether the task directory is present on disk.
func (l Layout) Exists() bool {
	info, err := os.Stat(l.Dir())
	return err == nil && info.IsDir()
}
