package workspace

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/vinayprograms/agentkit/logging"
)

func TestControl_FlagRoundTrip(t *testing.T) {
	c := NewControl(filepath.Join(t.TempDir(), "_run"))

	// No file yet: the task counts as running.
	if c.Paused() {
		t.Error("missing flag file should mean running")
	}

	if err := c.SetPaused(); err != nil {
		t.Fatalf("SetPaused: %v", err)
	}
	if !c.Paused() {
		t.Error("expected paused after SetPaused")
	}

	if err := c.SetRunning(); err != nil {
		t.Fatalf("SetRunning: %v", err)
	}
	if c.Paused() {
		t.Error("expected running after SetRunning")
	}
}

func TestGate_PassesWhenRunning(t *testing.T) {
	c := NewControl(filepath.Join(t.TempDir(), "_run"))
	c.SetRunning()

	g := NewGate(c, 10*time.Millisecond, logging.New())
	done := make(chan error, 1)
	go func() { done <- g.Wait(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait blocked on a running task")
	}
}

func TestGate_BlocksUntilResumed(t *testing.T) {
	c := NewControl(filepath.Join(t.TempDir(), "_run"))
	c.SetPaused()

	g := NewGate(c, 10*time.Millisecond, logging.New())
	paused := make(chan struct{}, 1)
	resumed := make(chan struct{}, 1)
	g.OnPause = func() { paused <- struct{}{} }
	g.OnResume = func() { resumed <- struct{}{} }

	done := make(chan error, 1)
	go func() { done <- g.Wait(context.Background()) }()

	select {
	case <-paused:
	case <-time.After(time.Second):
		t.Fatal("OnPause never fired")
	}

	select {
	case <-done:
		t.Fatal("Wait returned while still paused")
	case <-time.After(50 * time.Millisecond):
	}

	c.SetRunning()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not observe resume")
	}

	select {
	case <-resumed:
	case <-time.After(time.Second):
		t.Fatal("OnResume never fired")
	}
}

func TestGate_CancelledContext(t *testing.T) {
	c := NewControl(filepath.Join(t.TempDir(), "_run"))
	c.SetPaused()

	g := NewGate(c, 10*time.Millisecond, logging.New())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- g.Wait(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait ignored cancellation")
	}
}
