// Package toolpool provides the shared tool-invocation pool: it connects the
// configured tool server processes, registers every advertised tool under a
// globally unique name, and exposes one thread-safe call operation usable
// concurrently from any number of task goroutines.
//
// All tool I/O is funneled through a single request channel consumed by a
// bounded set of worker goroutines owned by the pool, so the pool's shared
// state has one logical owner no matter how many tasks are calling.
package toolpool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vinayprograms/agentkit/logging"

	"github.com/ResearAI/ResearStudio/internal/backend"
	"github.com/ResearAI/ResearStudio/internal/config"
)

// Sentinel errors callers branch on. All of them are recoverable from the
// task's point of view.
var (
	ErrNotFound = errors.New("tool not found")
	ErrTimeout  = errors.New("tool call timed out")
	ErrNoTools  = errors.New("no tools registered")
	ErrClosed   = errors.New("tool pool closed")
)

const (
	defaultWorkers     = 10
	defaultCallTimeout = 300 * time.Second
	connectTimeout     = 30 * time.Second
)

// registration binds a unique tool name to the server that serves it.
type registration struct {
	server string
	def    backend.ToolDef
}

type request struct {
	server string
	tool   string
	args   map[string]interface{}
	resp   chan response
}

type response struct {
	content string
	err     error
}

// Pool is the shared tool registry and dispatcher.
type Pool struct {
	transport transport
	servers   map[string]config.ToolServerConfig
	timeout   time.Duration
	logger    *logging.Logger

	mu          sync.Mutex
	tools       map[string]registration
	unavailable []string
	initialized bool

	reqCh     chan request
	closeOnce sync.Once
	done      chan struct{}
}

// New creates a pool for the configured tool servers. Call Init before use.
func New(servers map[string]config.ToolServerConfig, timeout time.Duration, logger *logging.Logger) *Pool {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &Pool{
		transport: newMCPTransport(),
		servers:   servers,
		timeout:   timeout,
		logger:    logger.WithComponent("toolpool"),
		tools:     make(map[string]registration),
		reqCh:     make(chan request, defaultWorkers),
		done:      make(chan struct{}),
	}
}

// Init connects every configured server and registers its tools. A server
// that fails to connect is recorded and skipped; a tool name that is already
// registered is skipped with a warning. Zero registered tools is a hard
// failure: no task can run without at least one.
func (p *Pool) Init(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	names := make([]string, 0, len(p.servers))
	for name := range p.servers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		err := p.transport.connect(connectCtx, name, p.servers[name])
		cancel()
		if err != nil {
			p.unavailable = append(p.unavailable, name)
			p.logger.Warn("tool server unavailable", map[string]interface{}{
				"server": name,
				"error":  err.Error(),
			})
			continue
		}
		p.logger.Info("connected tool server", map[string]interface{}{
			"server": name,
		})
	}

	for _, info := range p.transport.listTools() {
		if existing, dup := p.tools[info.Name]; dup {
			p.logger.Warn("duplicate tool name, skipping", map[string]interface{}{
				"tool":      info.Name,
				"server":    info.Server,
				"kept_from": existing.server,
			})
			continue
		}
		p.tools[info.Name] = registration{
			server: info.Server,
			def: backend.ToolDef{
				Name:        info.Name,
				Description: info.Description,
				Parameters:  info.Schema,
			},
		}
	}

	if len(p.tools) == 0 {
		return fmt.Errorf("tool pool init failed: %w", ErrNoTools)
	}
	p.initialized = true

	for i := 0; i < defaultWorkers; i++ {
		go p.worker()
	}

	p.logger.Info("tool pool ready", map[string]interface{}{
		"tools":       len(p.tools),
		"unavailable": len(p.unavailable),
	})
	return nil
}

// Call invokes a registered tool and blocks until its result, the pool
// timeout, or context cancellation. Safe for concurrent use.
func (p *Pool) Call(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	p.mu.Lock()
	reg, ok := p.tools[name]
	p.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	select {
	case <-p.done:
		return "", ErrClosed
	default:
	}

	req := request{
		server: reg.server,
		tool:   name,
		args:   args,
		resp:   make(chan response, 1),
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case p.reqCh <- req:
	case <-p.done:
		return "", ErrClosed
	case <-timer.C:
		return "", fmt.Errorf("%w: %s (queue full after %s)", ErrTimeout, name, p.timeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}

	select {
	case res := <-req.resp:
		return res.content, res.err
	case <-timer.C:
		return "", fmt.Errorf("%w: %s after %s", ErrTimeout, name, p.timeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Schemas returns every registered tool definition, sorted by name, for
// advertising to the executor role.
func (p *Pool) Schemas() []backend.ToolDef {
	p.mu.Lock()
	defer p.mu.Unlock()

	defs := make([]backend.ToolDef, 0, len(p.tools))
	for _, reg := range p.tools {
		defs = append(defs, reg.def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Has reports whether a tool name is registered.
func (p *Pool) Has(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.tools[name]
	return ok
}

// Initialized reports whether Init completed with at least one tool.
func (p *Pool) Initialized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initialized
}

// Unavailable returns the names of configured servers that failed to connect.
func (p *Pool) Unavailable() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.unavailable...)
}

// Close stops the workers and closes all server connections. Idempotent.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
		p.transport.close()
		p.logger.Info("tool pool closed", nil)
	})
}

// worker executes queued tool calls. Each call gets its own deadline so an
// abandoned caller never wedges a worker forever.
func (p *Pool) worker() {
	for {
		select {
		case <-p.done:
			return
		case req := <-p.reqCh:
			callCtx, cancel := context.WithTimeout(context.Background(), p.timeout)
			start := time.Now()
			content, err := p.transport.call(callCtx, req.server, req.tool, req.args)
			cancel()

			if err != nil {
				p.logger.Warn("tool call failed", map[string]interface{}{
					"tool":     req.tool,
					"server":   req.server,
					"duration": time.Since(start).String(),
					"error":    err.Error(),
				})
			} else {
				p.logger.Debug("tool call finished", map[string]interface{}{
					"tool":     req.tool,
					"duration": time.Since(start).String(),
				})
			}
			req.resp <- response{content: content, err: err}
		}
	}
}
