package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/vinayprograms/agentkit/logging"
)

// Control is the persisted pause/resume flag for one task. The on-disk byte
// is the durable source of truth: '1' running, '0' paused. A missing file
// counts as running so a half-created task is never stuck.
type Control struct {
	path string
}

// NewControl returns the control handle for the given flag file.
func NewControl(path string) *Control {
	return &Control{path: path}
}

// SetRunning persists the running flag.
func (c *Control) SetRunning() error { return c.write("1") }

// SetPaused persists the paused flag.
func (c *Control) SetPaused() error { return c.write("0") }

// Paused reads the current flag from disk.
func (c *Control) Paused() bool {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(data)) == "0"
}

func (c *Control) write(v string) error {
	if err := os.WriteFile(c.path, []byte(v), 0o644); err != nil {
		return fmt.Errorf("failed to write control flag: %w", err)
	}
	return nil
}

// Gate blocks a task thread while its control flag says paused. Resumption
// is detected by a filesystem watch on the flag file with a polling fallback,
// so an external write to the flag takes effect within one poll interval even
// if the watch misses it.
type Gate struct {
	control *Control
	poll    time.Duration
	logger  *logging.Logger

	// OnPause and OnResume fire on state transitions observed by Wait.
	OnPause  func()
	OnResume func()
}

// NewGate wraps a control flag in a blocking gate.
func NewGate(control *Control, poll time.Duration, logger *logging.Logger) *Gate {
	if poll <= 0 {
		poll = time.Second
	}
	return &Gate{
		control: control,
		poll:    poll,
		logger:  logger.WithComponent("pause-gate"),
	}
}

// Wait returns immediately when the task is running, otherwise blocks until
// the flag flips back to running or the context is cancelled. Pause is only
// ever observed here, at cycle and step boundaries, never mid-call.
func (g *Gate) Wait(ctx context.Context) error {
	if !g.control.Paused() {
		return nil
	}

	g.logger.Info("task paused, waiting", map[string]interface{}{
		"flag": g.control.path,
	})
	if g.OnPause != nil {
		g.OnPause()
	}

	var watchEvents chan fsnotify.Event
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		// Watch the directory: editors and the HTTP layer may replace the
		// file rather than write in place.
		if addErr := watcher.Add(filepath.Dir(g.control.path)); addErr == nil {
			watchEvents = make(chan fsnotify.Event, 1)
			go func() {
				for ev := range watcher.Events {
					if ev.Name == g.control.path {
						select {
						case watchEvents <- ev:
						default:
						}
					}
				}
			}()
		}
		defer watcher.Close()
	}

	ticker := time.NewTicker(g.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-watchEvents:
		}
		if !g.control.Paused() {
			g.logger.Info("task resumed", map[string]interface{}{
				"flag": g.control.path,
			})
			if g.OnResume != nil {
				g.OnResume()
			}
			return nil
		}
	}
}
