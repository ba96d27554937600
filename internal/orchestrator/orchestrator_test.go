package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vinayprograms/agentkit/logging"

	"github.com/ResearAI/ResearStudio/internal/backend"
	"github.com/ResearAI/ResearStudio/internal/journal"
	"github.com/ResearAI/ResearStudio/internal/workspace"
)

// stubBackend replays a scripted sequence of responses and records every
// request it saw.
type stubBackend struct {
	mu       sync.Mutex
	script   []backend.ChatResponse
	requests []backend.ChatRequest
	onChat   func(req backend.ChatRequest)
}

func (s *stubBackend) Chat(ctx context.Context, req backend.ChatRequest) (*backend.ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.onChat != nil {
		s.onChat(req)
	}
	if len(s.script) == 0 {
		return &backend.ChatResponse{Content: "plan:\n- [ ] keep working"}, nil
	}
	resp := s.script[0]
	s.script = s.script[1:]
	return &resp, nil
}

func (s *stubBackend) recorded() []backend.ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]backend.ChatRequest(nil), s.requests...)
}

// stubPool implements ToolCaller.
type stubPool struct {
	callFn  func(name string, args map[string]interface{}) (string, error)
	schemas []backend.ToolDef
}

func (p *stubPool) Call(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	if p.callFn != nil {
		return p.callFn(name, args)
	}
	return "ok", nil
}

func (p *stubPool) Schemas() []backend.ToolDef { return p.schemas }

func newTestTask(t *testing.T, query string, llm backend.Backend, pool ToolCaller, opts Options) *Task {
	t.Helper()
	root := t.TempDir()
	layout := workspace.NewLayout(root, "task-1")
	if err := layout.Create(); err != nil {
		t.Fatalf("layout create: %v", err)
	}
	jrnl, err := journal.Open("task-1", layout.JournalFile(), logging.New())
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { jrnl.Close() })

	if opts.PausePoll == 0 {
		opts.PausePoll = 10 * time.Millisecond
	}
	task, err := New("task-1", query, layout, jrnl, llm, pool, opts, logging.New())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return task
}

func journalEvents(t *testing.T, task *Task) []journal.Event {
	t.Helper()
	var events []journal.Event
	if err := task.Journal().Replay(func(evt journal.Event) error {
		events = append(events, evt)
		return nil
	}); err != nil {
		t.Fatalf("replay: %v", err)
	}
	return events
}

// A first-cycle final answer completes the task in one cycle with exactly
// one completed task_update and the literal answer on disk.
func TestTask_FinalAnswerFirstCycle(t *testing.T) {
	llm := &stubBackend{script: []backend.ChatResponse{
		{Content: "FINAL ANSWER: 4"},
	}}
	task := newTestTask(t, "compute 2+2 and finish", llm, &stubPool{}, Options{})

	task.Run(context.Background())

	if got := task.State(); got != StateCompleted {
		t.Fatalf("expected Completed, got %s", got)
	}
	if task.Summary().FinalAnswer != "4" {
		t.Errorf("expected final answer 4, got %q", task.Summary().FinalAnswer)
	}

	answer, err := os.ReadFile(task.Layout().AnswerFile())
	if err != nil {
		t.Fatalf("read answer file: %v", err)
	}
	if !strings.Contains(string(answer), "FINAL ANSWER: 4") {
		t.Errorf("answer file missing literal text: %q", answer)
	}

	completed := 0
	for _, evt := range journalEvents(t, task) {
		if evt.Type == journal.TypeTaskUpdate && evt.Data["status"] == string(StateCompleted) {
			completed++
		}
	}
	if completed != 1 {
		t.Errorf("expected exactly one completed task_update, got %d", completed)
	}
}

// A backend that never produces the final answer exhausts the cycle budget:
// exactly MaxCycles planning calls, then Failed with the designed reason.
func TestTask_MaxCyclesReached(t *testing.T) {
	llm := &stubBackend{}
	// Planner requests carry no tools; executor requests do. The default
	// scripted reply is plan text, so executor steps need explicit content
	// to terminate each inner loop.
	llm.onChat = func(req backend.ChatRequest) {
		if len(req.Tools) > 0 {
			llm.script = append(llm.script, backend.ChatResponse{Content: "step done"})
		}
	}
	pool := &stubPool{schemas: []backend.ToolDef{{Name: "noop"}}}
	task := newTestTask(t, "never finish", llm, pool, Options{MaxCycles: 3})

	task.Run(context.Background())

	if got := task.State(); got != StateFailed {
		t.Fatalf("expected Failed, got %s", got)
	}
	if reason := task.Summary().FailReason; reason != "Max cycles reached" {
		t.Errorf("expected designed failure reason, got %q", reason)
	}

	plannerCalls := 0
	for _, req := range llm.recorded() {
		if len(req.Tools) == 0 {
			plannerCalls++
		}
	}
	if plannerCalls != 3 {
		t.Errorf("expected exactly 3 planning calls, got %d", plannerCalls)
	}

	var failed *journal.Event
	for _, evt := range journalEvents(t, task) {
		if evt.Type == journal.TypeTaskUpdate && evt.Data["status"] == string(StateFailed) {
			e := evt
			failed = &e
		}
	}
	if failed == nil {
		t.Fatal("expected a failed task_update event")
	}
	if failed.Data["error"] != "Max cycles reached" {
		t.Errorf("unexpected failure payload: %v", failed.Data)
	}
}

// A tool failure is recoverable: the task keeps running, an error event with
// type tool_call_error is emitted, and the executor conversation carries the
// injected error text.
func TestTask_ToolErrorIsRecoverable(t *testing.T) {
	var stateAtRetry State
	llm := &stubBackend{script: []backend.ChatResponse{
		{Content: "plan:\n- [ ] use the tool"},
		{ToolCalls: []backend.ToolCall{{ID: "c1", Name: "unregistered_tool", Arguments: "{}"}}},
		{Content: "could not use that tool, moving on"},
		{Content: "FINAL ANSWER: done without the tool"},
	}}
	pool := &stubPool{
		schemas: []backend.ToolDef{{Name: "search"}},
		callFn: func(name string, args map[string]interface{}) (string, error) {
			return "", fmt.Errorf("tool not found: %s", name)
		},
	}
	task := newTestTask(t, "try a missing tool", llm, pool, Options{})
	llm.onChat = func(req backend.ChatRequest) {
		for _, m := range req.Messages {
			if m.Role == backend.RoleTool && strings.HasPrefix(m.Content, "Error:") {
				stateAtRetry = task.State()
			}
		}
	}

	task.Run(context.Background())

	if got := task.State(); got != StateCompleted {
		t.Fatalf("expected task to recover and complete, got %s", got)
	}
	if stateAtRetry != StateRunning {
		t.Errorf("expected task still Running when the error was fed back, got %s", stateAtRetry)
	}

	foundError := false
	for _, evt := range journalEvents(t, task) {
		if evt.Type == journal.TypeError && evt.Data["type"] == "tool_call_error" {
			foundError = true
			if evt.Data["tool_name"] != "unregistered_tool" {
				t.Errorf("error event missing tool name: %v", evt.Data)
			}
		}
	}
	if !foundError {
		t.Error("expected a tool_call_error event")
	}

	// The executor saw the injected error text on its follow-up turn.
	sawErrorMessage := false
	for _, req := range llm.recorded() {
		for _, m := range req.Messages {
			if m.Role == backend.RoleTool && strings.HasPrefix(m.Content, "Error:") {
				sawErrorMessage = true
			}
		}
	}
	if !sawErrorMessage {
		t.Error("executor conversation never carried the tool error")
	}
}

// A backend failure during planning is fatal to the task.
func TestTask_BackendErrorFailsTask(t *testing.T) {
	llm := &failingBackend{err: errors.New("upstream unavailable")}
	task := newTestTask(t, "anything", llm, &stubPool{}, Options{})

	task.Run(context.Background())

	if got := task.State(); got != StateFailed {
		t.Fatalf("expected Failed, got %s", got)
	}
	if _, err := os.Stat(task.Layout().ErrorFile()); err != nil {
		t.Errorf("expected persisted failure reason: %v", err)
	}
}

type failingBackend struct{ err error }

func (f *failingBackend) Chat(ctx context.Context, req backend.ChatRequest) (*backend.ChatResponse, error) {
	return nil, f.err
}

// Pausing before a cycle and resuming later yields the same trace as a run
// that was never paused, given the same deterministic backend script.
func TestTask_PauseResumeIdempotent(t *testing.T) {
	script := func() []backend.ChatResponse {
		return []backend.ChatResponse{
			{Content: "plan:\n- [ ] step one"},
			{Content: "step one done"},
			{Content: "FINAL ANSWER: all steps done"},
		}
	}

	run := func(pause bool) []journal.Event {
		llm := &stubBackend{script: script()}
		task := newTestTask(t, "deterministic job", llm, &stubPool{schemas: []backend.ToolDef{{Name: "noop"}}}, Options{})

		if pause {
			if err := task.Control().SetPaused(); err != nil {
				t.Fatalf("SetPaused: %v", err)
			}
			go func() {
				time.Sleep(80 * time.Millisecond)
				task.Control().SetRunning()
			}()
		}
		task.Run(context.Background())

		if got := task.State(); got != StateCompleted {
			t.Fatalf("run(pause=%v): expected Completed, got %s", pause, got)
		}
		return journalEvents(t, task)
	}

	plain := run(false)
	paused := run(true)

	// Pause transitions themselves are reported, so filter task_update
	// paused/running noise before comparing the traces.
	filter := func(events []journal.Event) []string {
		var out []string
		for _, evt := range events {
			if evt.Type == journal.TypeTaskUpdate {
				status, _ := evt.Data["status"].(string)
				if status == string(StatePaused) || status == string(StateRunning) {
					continue
				}
			}
			out = append(out, string(evt.Type))
		}
		return out
	}

	a, b := filter(plain), filter(paused)
	if len(a) != len(b) {
		t.Fatalf("trace lengths differ: %d vs %d\nplain: %v\npaused: %v", len(a), len(b), a, b)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("trace diverges at %d: %s vs %s", i, a[i], b[i])
		}
	}
}

// Workspace-scoping arguments are injected into every tool call the model
// did not already scope.
func TestTask_InjectsWorkspaceArgs(t *testing.T) {
	var gotArgs map[string]interface{}
	llm := &stubBackend{script: []backend.ChatResponse{
		{Content: "plan:\n- [ ] write a file"},
		{ToolCalls: []backend.ToolCall{{ID: "c1", Name: "write_workspace_file", Arguments: `{"filename":"a.txt","content":"hi"}`}}},
		{Content: "written"},
		{Content: "FINAL ANSWER: file written"},
	}}
	pool := &stubPool{
		schemas: []backend.ToolDef{{Name: "write_workspace_file"}},
		callFn: func(name string, args map[string]interface{}) (string, error) {
			gotArgs = args
			return "File CREATED: a.txt", nil
		},
	}
	task := newTestTask(t, "write a file", llm, pool, Options{})

	task.Run(context.Background())

	if gotArgs == nil {
		t.Fatal("tool was never called")
	}
	if gotArgs["task_cache_dir"] != task.Layout().Dir() {
		t.Errorf("task_cache_dir not injected: %v", gotArgs)
	}
	if gotArgs["workspace"] != task.Layout().Dir() {
		t.Errorf("workspace not injected: %v", gotArgs)
	}
	if gotArgs["filename"] != "a.txt" {
		t.Errorf("original arguments lost: %v", gotArgs)
	}

	// The tool call record landed next to the plan files.
	if _, err := os.Stat(filepath.Join(task.Layout().Dir(), "tool_call_write_workspace_file_0.json")); err != nil {
		t.Errorf("expected tool call record: %v", err)
	}
}
