package toolpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vinayprograms/agentkit/logging"

	"github.com/ResearAI/ResearStudio/internal/config"
)

// fakeTransport stands in for the MCP connection layer.
type fakeTransport struct {
	mu        sync.Mutex
	tools     []toolInfo
	connErr   map[string]error
	callFn    func(server, tool string, args map[string]interface{}) (string, error)
	connected []string
	closed    bool
}

func (f *fakeTransport) connect(ctx context.Context, name string, cfg config.ToolServerConfig) error {
	if err := f.connErr[name]; err != nil {
		return err
	}
	f.mu.Lock()
	f.connected = append(f.connected, name)
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) listTools() []toolInfo { return f.tools }

func (f *fakeTransport) call(ctx context.Context, server, tool string, args map[string]interface{}) (string, error) {
	if f.callFn != nil {
		return f.callFn(server, tool, args)
	}
	return "ok", nil
}

func (f *fakeTransport) close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func newTestPool(t *testing.T, tr transport, timeout time.Duration) *Pool {
	t.Helper()
	p := &Pool{
		transport: tr,
		servers:   map[string]config.ToolServerConfig{"search": {Command: "search"}},
		timeout:   timeout,
		logger:    logging.New().WithComponent("toolpool"),
		tools:     make(map[string]registration),
		reqCh:     make(chan request, defaultWorkers),
		done:      make(chan struct{}),
	}
	t.Cleanup(p.Close)
	return p
}

func TestPool_InitRegistersTools(t *testing.T) {
	tr := &fakeTransport{tools: []toolInfo{
		{Server: "search", Name: "search_web", Description: "web search"},
		{Server: "search", Name: "crawl_page"},
	}}
	p := newTestPool(t, tr, time.Second)

	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if !p.Initialized() {
		t.Error("expected initialized pool")
	}
	if !p.Has("search_web") || !p.Has("crawl_page") {
		t.Error("expected both tools registered")
	}
	defs := p.Schemas()
	if len(defs) != 2 {
		t.Fatalf("expected 2 schemas, got %d", len(defs))
	}
	// Sorted by name.
	if defs[0].Name != "crawl_page" || defs[1].Name != "search_web" {
		t.Errorf("schemas not sorted: %v, %v", defs[0].Name, defs[1].Name)
	}
}

// A duplicate tool name across servers keeps exactly the first registration;
// calls route to the surviving server, never the duplicate.
func TestPool_DuplicateToolNameSkipped(t *testing.T) {
	tr := &fakeTransport{tools: []toolInfo{
		{Server: "alpha", Name: "extract"},
		{Server: "beta", Name: "extract"},
	}}
	var calledServer string
	tr.callFn = func(server, tool string, args map[string]interface{}) (string, error) {
		calledServer = server
		return "done", nil
	}
	p := newTestPool(t, tr, time.Second)

	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if len(p.Schemas()) != 1 {
		t.Fatalf("expected exactly one surviving registration, got %d", len(p.Schemas()))
	}

	if _, err := p.Call(context.Background(), "extract", nil); err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if calledServer != "alpha" {
		t.Errorf("call routed to %q, expected the first-registered server", calledServer)
	}
}

func TestPool_InitFailsWithZeroTools(t *testing.T) {
	p := newTestPool(t, &fakeTransport{}, time.Second)

	err := p.Init(context.Background())
	if !errors.Is(err, ErrNoTools) {
		t.Fatalf("expected ErrNoTools, got %v", err)
	}
	if p.Initialized() {
		t.Error("pool must not report initialized after failure")
	}
}

// A server that fails to connect is recorded and skipped; startup continues
// with the remaining tools.
func TestPool_UnavailableServerIsNotFatal(t *testing.T) {
	tr := &fakeTransport{
		connErr: map[string]error{"broken": errors.New("no such file")},
		tools:   []toolInfo{{Server: "search", Name: "search_web"}},
	}
	p := newTestPool(t, tr, time.Second)
	p.servers = map[string]config.ToolServerConfig{
		"search": {Command: "search"},
		"broken": {Command: "missing-binary"},
	}

	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	unavailable := p.Unavailable()
	if len(unavailable) != 1 || unavailable[0] != "broken" {
		t.Errorf("expected [broken] unavailable, got %v", unavailable)
	}
}

func TestPool_CallUnknownTool(t *testing.T) {
	tr := &fakeTransport{tools: []toolInfo{{Server: "search", Name: "search_web"}}}
	p := newTestPool(t, tr, time.Second)
	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	_, err := p.Call(context.Background(), "unregistered_tool", nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// A call that outlives the pool timeout surfaces ErrTimeout to the caller.
func TestPool_CallTimeout(t *testing.T) {
	tr := &fakeTransport{tools: []toolInfo{{Server: "slow", Name: "slow_tool"}}}
	tr.callFn = func(server, tool string, args map[string]interface{}) (string, error) {
		time.Sleep(500 * time.Millisecond)
		return "late", nil
	}
	p := newTestPool(t, tr, 50*time.Millisecond)
	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	_, err := p.Call(context.Background(), "slow_tool", nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestPool_ConcurrentCalls(t *testing.T) {
	tr := &fakeTransport{tools: []toolInfo{{Server: "search", Name: "echo"}}}
	tr.callFn = func(server, tool string, args map[string]interface{}) (string, error) {
		return fmt.Sprintf("%v", args["n"]), nil
	}
	p := newTestPool(t, tr, time.Second)
	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			got, err := p.Call(context.Background(), "echo", map[string]interface{}{"n": n})
			if err != nil {
				t.Errorf("call %d failed: %v", n, err)
				return
			}
			if got != fmt.Sprintf("%d", n) {
				t.Errorf("call %d: got %q", n, got)
			}
		}(i)
	}
	wg.Wait()
}

func TestPool_CloseIdempotent(t *testing.T) {
	tr := &fakeTransport{tools: []toolInfo{{Server: "search", Name: "search_web"}}}
	p := newTestPool(t, tr, time.Second)
	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	p.Close()
	p.Close()
	if !tr.closed {
		t.Error("transport not closed")
	}

	if _, err := p.Call(context.Background(), "search_web", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after Close, got %v", err)
	}
}
