// Package orchestrator drives one task from submission to a terminal state:
// a planning role and an execution role alternate, bounded by a cycle
// budget, with every observable step appended to the task's event journal.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/vinayprograms/agentkit/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ResearAI/ResearStudio/internal/backend"
	"github.com/ResearAI/ResearStudio/internal/config"
	"github.com/ResearAI/ResearStudio/internal/journal"
	"github.com/ResearAI/ResearStudio/internal/workspace"
)

// State is a task's lifecycle state.
type State string

const (
	StateCreated   State = "created"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Terminal reports whether a state is final.
func (s State) Terminal() bool { return s == StateCompleted || s == StateFailed }

// ToolCaller is what the orchestrator needs from the shared tool pool.
type ToolCaller interface {
	Call(ctx context.Context, name string, args map[string]interface{}) (string, error)
	Schemas() []backend.ToolDef
}

// Options bound one task's run.
type Options struct {
	MaxCycles     int
	HistoryWindow int
	PausePoll     time.Duration
	Prompts       config.RolePrompts
}

func (o Options) withDefaults() Options {
	if o.MaxCycles <= 0 {
		o.MaxCycles = 30
	}
	if o.HistoryWindow <= 0 {
		o.HistoryWindow = 50
	}
	if o.PausePoll <= 0 {
		o.PausePoll = time.Second
	}
	return o
}

// Summary is the registry/HTTP view of a task.
type Summary struct {
	ID          string    `json:"task_id"`
	Query       string    `json:"query"`
	Status      State     `json:"status"`
	Cycle       int       `json:"cycle"`
	CreatedAt   time.Time `json:"created_at"`
	FinalAnswer string    `json:"final_answer,omitempty"`
	FailReason  string    `json:"fail_reason,omitempty"`
}

// Task owns one planner/executor run. All mutation happens on the task's own
// goroutine; the only externally written state is the pause control flag.
type Task struct {
	ID    string
	Query string

	layout  workspace.Layout
	jrnl    *journal.Journal
	pool    ToolCaller
	llm     backend.Backend
	control *workspace.Control
	gate    *workspace.Gate
	sync    *workspace.Synchronizer
	history *History
	opts    Options
	logger  *logging.Logger
	tracer  trace.Tracer

	mu          sync.Mutex
	state       State
	cycle       int
	createdAt   time.Time
	finalAnswer string
	failReason  string
}

// New builds a task around an existing workspace layout and journal. The
// directory skeleton is created if missing.
func New(id, query string, layout workspace.Layout, jrnl *journal.Journal, llm backend.Backend, pool ToolCaller, opts Options, logger *logging.Logger) (*Task, error) {
	if err := layout.Create(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	taskLogger := logger.WithComponent("orchestrator").WithTraceID(id)
	control := workspace.NewControl(layout.ControlFile())
	sync, err := workspace.NewSynchronizer(id, layout.WorkDir(), jrnl, logger)
	if err != nil {
		return nil, err
	}

	t := &Task{
		ID:        id,
		Query:     query,
		layout:    layout,
		jrnl:      jrnl,
		pool:      pool,
		llm:       llm,
		control:   control,
		gate:      workspace.NewGate(control, opts.PausePoll, logger),
		sync:      sync,
		history:   NewHistory(opts.HistoryWindow),
		opts:      opts,
		logger:    taskLogger,
		tracer:    otel.Tracer("researstudio/orchestrator"),
		state:     StateCreated,
		createdAt: time.Now(),
	}

	// Pause transitions are surfaced as task_update events so a connected
	// client sees them in real time.
	t.gate.OnPause = func() {
		t.setState(StatePaused)
		t.emitTaskUpdate(string(StatePaused), nil)
	}
	t.gate.OnResume = func() {
		t.setState(StateRunning)
		t.emitTaskUpdate(string(StateRunning), nil)
	}
	return t, nil
}

// Control returns the pause/resume handle for this task.
func (t *Task) Control() *workspace.Control { return t.control }

// Layout returns the task's workspace layout.
func (t *Task) Layout() workspace.Layout { return t.layout }

// Journal returns the task's event journal.
func (t *Task) Journal() *journal.Journal { return t.jrnl }

// State returns the current lifecycle state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Summary returns the registry view of the task.
func (t *Task) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Summary{
		ID:          t.ID,
		Query:       t.Query,
		Status:      t.state,
		Cycle:       t.cycle,
		CreatedAt:   t.createdAt,
		FinalAnswer: t.finalAnswer,
		FailReason:  t.failReason,
	}
}

// Restore sets the lifecycle state of a task reconstructed from disk at
// startup. Only used by the registry during rehydration, never on a task
// whose loop is running.
func (t *Task) Restore(state State, finalAnswer string, createdAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = state
	t.finalAnswer = finalAnswer
	if !createdAt.IsZero() {
		t.createdAt = createdAt
	}
}

// Run drives the task to a terminal state. Any error not already translated
// into a designed failure marks the task Failed with the error persisted and
// emitted.
func (t *Task) Run(ctx context.Context) {
	if err := t.run(ctx); err != nil {
		t.fail(err.Error(), "task_execution_error")
	}
}

func (t *Task) run(ctx context.Context) error {
	t.setState(StateRunning)
	if err := t.control.SetRunning(); err != nil {
		return err
	}
	if err := os.WriteFile(t.layout.QueryFile(), []byte(t.Query), 0o644); err != nil {
		return fmt.Errorf("failed to persist query: %w", err)
	}
	if err := workspace.SaveMeta(t.layout.MetaFile(), workspace.Meta{
		TaskID:    t.ID,
		Query:     t.Query,
		CreatedAt: t.createdAt,
	}); err != nil {
		return err
	}

	t.emitTaskUpdate("started", map[string]interface{}{"query": t.Query})
	t.history.Add(backend.RoleUser, t.Query)

	tools := t.pool.Schemas()
	plannerSystem := t.plannerSystemPrompt(tools)

	for cycle := 0; cycle < t.opts.MaxCycles; cycle++ {
		t.setCycle(cycle)
		if err := t.gate.Wait(ctx); err != nil {
			return err
		}

		cycleCtx, span := t.tracer.Start(ctx, "task.cycle", trace.WithAttributes(
			attribute.String("task.id", t.ID),
			attribute.Int("task.cycle", cycle),
		))

		planContent, err := t.plan(cycleCtx, plannerSystem, cycle)
		if err != nil {
			span.RecordError(err)
			span.End()
			return err
		}

		if strings.Contains(planContent, finalAnswerMarker) {
			span.End()
			return t.complete(planContent)
		}

		if err := t.persistPlan(cycle, planContent); err != nil {
			t.logger.Warn("failed to persist plan", map[string]interface{}{
				"cycle": cycle,
				"error": err.Error(),
			})
		}

		if err := t.executeStep(cycleCtx, planContent, cycle, tools); err != nil {
			span.RecordError(err)
			span.End()
			return err
		}
		span.End()

		// Refresh the planner's view of the workspace for the next cycle.
		plannerSystem = t.plannerSystemPrompt(tools)
	}

	t.logger.Warn("cycle budget exhausted", map[string]interface{}{
		"max_cycles": t.opts.MaxCycles,
	})
	t.fail("Max cycles reached", "max_cycles")
	return nil
}

// plan runs one planning step and folds the reply into history.
func (t *Task) plan(ctx context.Context, system string, cycle int) (string, error) {
	activityID := t.emitActivity(fmt.Sprintf("Planner analyzing task (cycle %d)...", cycle+1), "planning", nil)

	messages := append([]backend.Message{{Role: backend.RoleSystem, Content: system}}, t.history.Messages()...)
	reply, err := t.llm.Chat(ctx, backend.ChatRequest{Messages: messages})
	if err != nil {
		t.emitActivityUpdate(activityID, "failed", map[string]interface{}{"error": err.Error()})
		t.emitError(fmt.Sprintf("Planner call failed (cycle %d): %v", cycle+1, err), "planner_error", map[string]interface{}{"cycle": cycle})
		return "", fmt.Errorf("planner failed on cycle %d: %w", cycle, err)
	}
	t.emitActivityUpdate(activityID, "completed", nil)

	t.history.Add(backend.RoleAssistant, reply.Content)
	return reply.Content, nil
}

// executeStep runs the executor's inner tool-calling loop for one cycle.
// The step's working conversation is local; only the final result text is
// folded back into the shared history.
func (t *Task) executeStep(ctx context.Context, plan string, cycle int, tools []backend.ToolDef) error {
	execMsgs := append([]backend.Message{{Role: backend.RoleSystem, Content: t.executorSystemPrompt()}}, t.history.Messages()...)
	execMsgs = append(execMsgs, backend.Message{Role: backend.RoleUser, Content: plan})

	for {
		if err := t.gate.Wait(ctx); err != nil {
			return err
		}

		activityID := t.emitActivity(fmt.Sprintf("Executor working (cycle %d)...", cycle+1), "execution", nil)
		reply, err := t.llm.Chat(ctx, backend.ChatRequest{Messages: execMsgs, Tools: tools})
		if err != nil {
			t.emitActivityUpdate(activityID, "failed", map[string]interface{}{"error": err.Error()})
			t.emitError(fmt.Sprintf("Executor call failed (cycle %d): %v", cycle+1, err), "executor_error", map[string]interface{}{"cycle": cycle})
			return fmt.Errorf("executor failed on cycle %d: %w", cycle, err)
		}
		t.emitActivityUpdate(activityID, "completed", nil)

		// Free text ends the step; control returns to planning.
		if reply.Content != "" {
			t.history.Add(backend.RoleUser, "EXEC AGENT: Task result: "+reply.Content)
			if err := os.WriteFile(t.layout.ResultFile(), []byte(reply.Content), 0o644); err != nil {
				t.logger.Warn("failed to persist step result", map[string]interface{}{"error": err.Error()})
			}
			return nil
		}
		if len(reply.ToolCalls) == 0 {
			t.logger.Warn("executor returned neither content nor tool calls", map[string]interface{}{"cycle": cycle})
			return nil
		}

		for _, call := range reply.ToolCalls {
			execMsgs = t.runToolCall(ctx, execMsgs, call, cycle)
		}
	}
}

// runToolCall dispatches one tool invocation and appends the outcome to the
// working conversation. Tool failures are recoverable: the error text is fed
// back to the executor so it can try a different approach.
func (t *Task) runToolCall(ctx context.Context, execMsgs []backend.Message, call backend.ToolCall, cycle int) []backend.Message {
	args := RepairArguments(call.Arguments)
	InjectWorkspaceArgs(args, t.layout.Dir())

	argsJSON, _ := json.Marshal(args)
	activityID := t.emitActivity("Calling tool: "+call.Name, "command", map[string]interface{}{
		"command": fmt.Sprintf("%s(%s)", call.Name, argsJSON),
	})

	callCtx, span := t.tracer.Start(ctx, "task.tool", trace.WithAttributes(
		attribute.String("tool.name", call.Name),
		attribute.Int("task.cycle", cycle),
	))
	start := time.Now()
	result, err := t.pool.Call(callCtx, call.Name, args)
	span.SetAttributes(attribute.String("tool.duration", time.Since(start).String()))

	execMsgs = append(execMsgs, backend.Message{
		Role:      backend.RoleAssistant,
		ToolCalls: []backend.ToolCall{call},
	})

	if err != nil {
		span.RecordError(err)
		span.End()
		t.emitError(fmt.Sprintf("Tool %s call failed: %v", call.Name, err), "tool_call_error", map[string]interface{}{
			"tool_name": call.Name,
			"tool_args": args,
			"cycle":     cycle,
		})
		t.emitActivityUpdate(activityID, "failed", map[string]interface{}{"error": err.Error()})
		return append(execMsgs, backend.Message{
			Role:       backend.RoleTool,
			ToolCallID: call.ID,
			Name:       call.Name,
			Content:    fmt.Sprintf("Error: %v", err),
		})
	}
	span.End()

	t.postProcess(call.Name, args, result)
	t.emitActivityUpdate(activityID, "completed", nil)
	t.recordToolCall(call.Name, cycle, args, result)

	return append(execMsgs, backend.Message{
		Role:       backend.RoleTool,
		ToolCallID: call.ID,
		Name:       call.Name,
		Content:    result,
	})
}

// complete handles the only success exit.
func (t *Task) complete(planContent string) error {
	parts := strings.SplitN(planContent, finalAnswerMarker, 2)
	answer := strings.TrimSpace(parts[1])

	if err := os.WriteFile(t.layout.AnswerFile(), []byte(planContent), 0o644); err != nil {
		return fmt.Errorf("failed to persist final answer: %w", err)
	}

	t.emitActivity(answer, "activity", nil)
	t.emit(journal.TypeFinalAnswer, map[string]interface{}{"content": answer})
	t.emitTaskUpdate(string(StateCompleted), map[string]interface{}{"final_answer": answer})

	t.mu.Lock()
	t.state = StateCompleted
	t.finalAnswer = answer
	t.mu.Unlock()

	t.logger.Info("task completed", map[string]interface{}{"task": t.ID})
	return nil
}

// fail moves the task to Failed with the reason persisted and emitted. Cycle
// exhaustion and backend errors both land here; tool errors never do.
func (t *Task) fail(reason, kind string) {
	t.mu.Lock()
	if t.state.Terminal() {
		t.mu.Unlock()
		return
	}
	t.state = StateFailed
	t.failReason = reason
	t.mu.Unlock()

	if err := os.WriteFile(t.layout.ErrorFile(), []byte(reason), 0o644); err != nil {
		t.logger.Error("failed to persist failure reason", map[string]interface{}{"error": err.Error()})
	}
	if kind != "max_cycles" {
		t.emitError(reason, kind, map[string]interface{}{"task_id": t.ID})
	}
	t.emitTaskUpdate(string(StateFailed), map[string]interface{}{"error": reason})
	t.logger.Error("task failed", map[string]interface{}{"task": t.ID, "reason": reason})
}

func (t *Task) persistPlan(cycle int, content string) error {
	if err := os.WriteFile(t.layout.PlanFile(cycle), []byte(content), 0o644); err != nil {
		return err
	}
	// The live plan document doubles as a workspace file so clients render it.
	return t.sync.EmitFile("todo.md", content)
}

func (t *Task) recordToolCall(tool string, cycle int, args map[string]interface{}, result string) {
	record := map[string]interface{}{
		"tool_name": tool,
		"arguments": args,
		"result":    result,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(t.layout.ToolCallFile(tool, cycle), data, 0o644); err != nil {
		t.logger.Warn("failed to record tool call", map[string]interface{}{
			"tool":  tool,
			"error": err.Error(),
		})
	}
}

func (t *Task) plannerSystemPrompt(tools []backend.ToolDef) string {
	directive := t.opts.Prompts.Planner
	if directive == "" {
		directive = plannerDirective
	}

	var sb strings.Builder
	if listing := t.sync.Listing(); len(listing) > 0 {
		sb.WriteString("Here is the current workspace structure:\n")
		for _, path := range listing {
			sb.WriteString("- " + path + "\n")
		}
		sb.WriteString("\nConsider the user's request and the files above when planning.\n\n")
	}
	sb.WriteString(directive)

	if len(tools) > 0 {
		names := make([]string, 0, len(tools))
		for _, def := range tools {
			names = append(names, def.Name)
		}
		sb.WriteString("\n\nThe EXECUTOR has exactly these tools available: ")
		sb.WriteString(strings.Join(names, ", "))
		sb.WriteString(". Do not instruct it to use any other tool.")
	}
	return sb.String()
}

func (t *Task) executorSystemPrompt() string {
	if t.opts.Prompts.Executor != "" {
		return t.opts.Prompts.Executor
	}
	return executorDirective
}

func (t *Task) setState(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.state.Terminal() {
		t.state = s
	}
}

func (t *Task) setCycle(c int) {
	t.mu.Lock()
	t.cycle = c
	t.mu.Unlock()
}

func (t *Task) emit(typ journal.Type, data map[string]interface{}) {
	if _, err := t.jrnl.Append(typ, data); err != nil {
		t.logger.Error("failed to append event", map[string]interface{}{
			"type":  string(typ),
			"error": err.Error(),
		})
	}
}

func (t *Task) emitActivity(text, kind string, extra map[string]interface{}) int64 {
	id := time.Now().UnixMicro()
	data := map[string]interface{}{
		"id":     id,
		"text":   text,
		"type":   kind,
		"status": "in-progress",
	}
	for k, v := range extra {
		data[k] = v
	}
	t.emit(journal.TypeActivity, data)
	return id
}

func (t *Task) emitActivityUpdate(id int64, status string, extra map[string]interface{}) {
	data := map[string]interface{}{
		"id":     id,
		"status": status,
	}
	for k, v := range extra {
		data[k] = v
	}
	t.emit(journal.TypeActivityUpdate, data)
}

func (t *Task) emitTaskUpdate(status string, extra map[string]interface{}) {
	data := map[string]interface{}{"status": status}
	for k, v := range extra {
		data[k] = v
	}
	t.emit(journal.TypeTaskUpdate, data)
}

func (t *Task) emitError(message, kind string, extra map[string]interface{}) {
	data := map[string]interface{}{
		"message": message,
		"type":    kind,
	}
	for k, v := range extra {
		data[k] = v
	}
	t.emit(journal.TypeError, data)
}
