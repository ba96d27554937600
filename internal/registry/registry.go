// Package registry holds the process-wide table of tasks: the live ones
// created this run and the ones rehydrated from on-disk workspaces at
// startup.
package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vinayprograms/agentkit/logging"

	"github.com/ResearAI/ResearStudio/internal/backend"
	"github.com/ResearAI/ResearStudio/internal/journal"
	"github.com/ResearAI/ResearStudio/internal/orchestrator"
	"github.com/ResearAI/ResearStudio/internal/workspace"
)

// ErrToolsUnavailable means the tool pool never initialized; no task can be
// created against it.
var ErrToolsUnavailable = errors.New("tool pool not initialized")

// ErrNotFound means no task with the given id is registered.
var ErrNotFound = errors.New("task not found")

// ToolPool is what the registry needs from the shared pool.
type ToolPool interface {
	orchestrator.ToolCaller
	Initialized() bool
}

// Registry is the mutex-guarded task table. Mutation happens only at task
// creation and rehydration, never in the per-cycle hot path.
type Registry struct {
	root   string
	llm    backend.Backend
	pool   ToolPool
	opts   orchestrator.Options
	mirror journal.Mirror
	logger *logging.Logger

	mu    sync.Mutex
	tasks map[string]*orchestrator.Task
}

// New creates an empty registry rooted at the workspaces directory.
func New(root string, llm backend.Backend, pool ToolPool, opts orchestrator.Options, mirror journal.Mirror, logger *logging.Logger) *Registry {
	return &Registry{
		root:   root,
		llm:    llm,
		pool:   pool,
		opts:   opts,
		mirror: mirror,
		logger: logger.WithComponent("registry"),
		tasks:  make(map[string]*orchestrator.Task),
	}
}

// Create registers a new task and starts its orchestrator loop on a
// dedicated goroutine. prepare, when non-nil, runs after the workspace
// skeleton exists and before the loop starts; it is where uploaded
// attachments land. Creation fails fast when the pool has no tools.
func (r *Registry) Create(query string, prepare func(workspace.Layout) error) (*orchestrator.Task, error) {
	if !r.pool.Initialized() {
		return nil, ErrToolsUnavailable
	}

	id := uuid.NewString()
	layout := workspace.NewLayout(r.root, id)
	if err := layout.Create(); err != nil {
		return nil, err
	}
	if prepare != nil {
		if err := prepare(layout); err != nil {
			return nil, fmt.Errorf("failed to prepare workspace: %w", err)
		}
	}

	jrnl, err := journal.Open(id, layout.JournalFile(), r.logger)
	if err != nil {
		return nil, err
	}
	if r.mirror != nil {
		jrnl.SetMirror(r.mirror)
	}

	task, err := orchestrator.New(id, query, layout, jrnl, r.llm, r.pool, r.opts, r.logger)
	if err != nil {
		jrnl.Close()
		return nil, err
	}

	r.mu.Lock()
	r.tasks[id] = task
	r.mu.Unlock()

	go task.Run(context.Background())

	r.logger.Info("task created", map[string]interface{}{"task": id})
	return task, nil
}

// Get returns a registered task.
func (r *Registry) Get(id string) (*orchestrator.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return task, nil
}

// List returns summaries of every known task, newest first.
func (r *Registry) List() []orchestrator.Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]orchestrator.Summary, 0, len(r.tasks))
	for _, task := range r.tasks {
		out = append(out, task.Summary())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Pause persists the paused flag for a task. The loop suspends at its next
// cycle or step boundary; the suspension itself is reported through the
// journal when it happens.
func (r *Registry) Pause(id string) error {
	task, err := r.Get(id)
	if err != nil {
		return err
	}
	return task.Control().SetPaused()
}

// Resume persists the running flag for a task.
func (r *Registry) Resume(id string) error {
	task, err := r.Get(id)
	if err != nil {
		return err
	}
	return task.Control().SetRunning()
}

// Rehydrate reconstructs task records from the workspaces directory. A
// directory without a query file is skipped. Tasks with a persisted final
// answer come back completed; anything else comes back paused with its
// journal intact, so a client can still replay the full history.
func (r *Registry) Rehydrate() error {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read workspaces root: %w", err)
	}

	restored := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id := entry.Name()
		layout := workspace.NewLayout(r.root, id)

		queryData, err := os.ReadFile(layout.QueryFile())
		if err != nil {
			continue
		}
		query := strings.TrimSpace(string(queryData))

		jrnl, err := journal.Open(id, layout.JournalFile(), r.logger)
		if err != nil {
			r.logger.Warn("failed to reopen journal, skipping task", map[string]interface{}{
				"task":  id,
				"error": err.Error(),
			})
			continue
		}
		if r.mirror != nil {
			jrnl.SetMirror(r.mirror)
		}

		task, err := orchestrator.New(id, query, layout, jrnl, r.llm, r.pool, r.opts, r.logger)
		if err != nil {
			jrnl.Close()
			r.logger.Warn("failed to rebuild task, skipping", map[string]interface{}{
				"task":  id,
				"error": err.Error(),
			})
			continue
		}

		meta, metaErr := workspace.LoadMeta(layout.MetaFile())
		state := orchestrator.StatePaused
		finalAnswer := ""
		if answerData, err := os.ReadFile(layout.AnswerFile()); err == nil {
			state = orchestrator.StateCompleted
			finalAnswer = extractFinalAnswer(string(answerData))
		} else if _, err := os.Stat(layout.ErrorFile()); err == nil {
			state = orchestrator.StateFailed
		}
		createdAt := time.Time{}
		if metaErr == nil {
			createdAt = meta.CreatedAt
		}
		task.Restore(state, finalAnswer, createdAt)

		// An interrupted task must not auto-resume on restart.
		if state == orchestrator.StatePaused {
			if err := task.Control().SetPaused(); err != nil {
				r.logger.Warn("failed to persist paused flag", map[string]interface{}{
					"task":  id,
					"error": err.Error(),
				})
			}
		}

		r.mu.Lock()
		r.tasks[id] = task
		r.mu.Unlock()
		restored++
	}

	r.logger.Info("rehydrated tasks from disk", map[string]interface{}{
		"count": restored,
	})
	return nil
}

// Close closes every task's journal.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, task := range r.tasks {
		task.Journal().Close()
	}
}

func extractFinalAnswer(text string) string {
	if i := strings.Index(text, "FINAL ANSWER:"); i >= 0 {
		return strings.TrimSpace(text[i+len("FINAL ANSWER:"):])
	}
	return strings.TrimSpace(text)
}
