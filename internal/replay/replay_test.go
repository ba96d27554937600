package replay

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vinayprograms/agentkit/logging"

	"github.com/ResearAI/ResearStudio/internal/journal"
	"github.com/ResearAI/ResearStudio/internal/workspace"
)

func seedTask(t *testing.T, root, id string) {
	t.Helper()
	layout := workspace.NewLayout(root, id)
	if err := layout.Create(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(layout.QueryFile(), []byte("find the answer"), 0o644); err != nil {
		t.Fatal(err)
	}

	jrnl, err := journal.Open(id, layout.JournalFile(), logging.New())
	if err != nil {
		t.Fatal(err)
	}
	defer jrnl.Close()

	events := []struct {
		typ  journal.Type
		data map[string]interface{}
	}{
		{journal.TypeTaskUpdate, map[string]interface{}{"status": "started"}},
		{journal.TypeActivity, map[string]interface{}{"id": 1, "text": "Planner analyzing task (cycle 1)...", "type": "planning", "status": "in-progress"}},
		{journal.TypeActivity, map[string]interface{}{"id": 2, "text": "Calling tool: search", "type": "command", "command": `search({"query":"answer"})`}},
		{journal.TypeError, map[string]interface{}{"message": "Tool search call failed: timeout", "type": "tool_call_error", "tool_name": "search"}},
		{journal.TypeActivity, map[string]interface{}{"id": 3, "text": "Calling tool: search", "type": "command", "command": `search({"query":"answer"})`}},
		{journal.TypeTerminal, map[string]interface{}{"command": "ls", "output": "a.txt"}},
		{journal.TypeFileUpdate, map[string]interface{}{"filename": "todo.md", "content": "- step", "file_type": "markdown", "is_url": false}},
		{journal.TypeFileDelete, map[string]interface{}{"filename": "scratch.txt"}},
		{journal.TypeFinalAnswer, map[string]interface{}{"content": "42"}},
		{journal.TypeTaskUpdate, map[string]interface{}{"status": "completed"}},
	}
	for _, e := range events {
		if _, err := jrnl.Append(e.typ, e.data); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(layout.AnswerFile(), []byte("FINAL ANSWER: 42"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := workspace.SaveMeta(layout.MetaFile(), workspace.Meta{
		TaskID:    id,
		Query:     "find the answer",
		CreatedAt: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}
}

func TestLoadTask(t *testing.T) {
	root := t.TempDir()
	seedTask(t, root, "task-1")

	tr, err := LoadTask(root, "task-1")
	if err != nil {
		t.Fatalf("LoadTask: %v", err)
	}
	if tr.Status != "completed" {
		t.Errorf("expected completed, got %s", tr.Status)
	}
	if tr.Query != "find the answer" {
		t.Errorf("unexpected query %q", tr.Query)
	}
	if len(tr.Events) != 10 {
		t.Fatalf("expected 10 events, got %d", len(tr.Events))
	}
	for i, evt := range tr.Events {
		if evt.Seq != uint64(i) {
			t.Errorf("event %d has sequence %d", i, evt.Seq)
		}
	}
}

func TestLoadTask_Missing(t *testing.T) {
	if _, err := LoadTask(t.TempDir(), "nope"); err == nil {
		t.Fatal("expected error for missing task")
	}
}

func TestLoadEvents_ToleratesTornLine(t *testing.T) {
	root := t.TempDir()
	seedTask(t, root, "task-1")
	path := journalPath(root, "task-1")

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(`{"type":"activity","da`); err != nil {
		t.Fatal(err)
	}
	f.Close()

	events, err := loadEvents(path)
	if err != nil {
		t.Fatalf("loadEvents: %v", err)
	}
	if len(events) != 10 {
		t.Errorf("torn line should be skipped, got %d events", len(events))
	}
}

func TestReplayTimeline(t *testing.T) {
	root := t.TempDir()
	seedTask(t, root, "task-1")

	var buf strings.Builder
	r := New(&buf, 1)
	if err := r.ReplayDir(root, "task-1"); err != nil {
		t.Fatalf("ReplayDir: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"task-1",
		"PLAN:",
		"TOOL CALL:",
		"ERROR:",
		"TERMINAL:",
		"FILE:",
		"FILE DELETED:",
		"FINAL ANSWER",
		"COMPLETED",
		"TASK STATISTICS",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("timeline missing %q", want)
		}
	}
}

func TestComputeStats(t *testing.T) {
	root := t.TempDir()
	seedTask(t, root, "task-1")
	tr, err := LoadTask(root, "task-1")
	if err != nil {
		t.Fatal(err)
	}

	stats := ComputeStats(tr)
	if stats.PlanningSteps != 1 {
		t.Errorf("planning steps = %d", stats.PlanningSteps)
	}
	if stats.ToolCalls["search"] != 2 {
		t.Errorf("search calls = %d", stats.ToolCalls["search"])
	}
	if stats.ToolErrors != 1 {
		t.Errorf("tool errors = %d", stats.ToolErrors)
	}
	if stats.FilesWritten != 1 || stats.FilesDeleted != 1 {
		t.Errorf("files = %d written %d deleted", stats.FilesWritten, stats.FilesDeleted)
	}
	if stats.TerminalCommands != 1 {
		t.Errorf("terminal commands = %d", stats.TerminalCommands)
	}
}

func TestListTasks(t *testing.T) {
	root := t.TempDir()
	seedTask(t, root, "task-a")
	seedTask(t, root, "task-b")
	if err := os.MkdirAll(filepath.Join(root, "not-a-task"), 0o755); err != nil {
		t.Fatal(err)
	}

	ids, err := ListTasks(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 tasks, got %v", ids)
	}
}

func TestRaw(t *testing.T) {
	root := t.TempDir()
	seedTask(t, root, "task-1")

	var buf strings.Builder
	if err := Raw(&buf, root, "task-1"); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 10 {
		t.Errorf("expected 10 raw lines, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[0], "{") {
		t.Errorf("raw output is not JSONL: %q", lines[0])
	}
}
