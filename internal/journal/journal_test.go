package journal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vinayprograms/agentkit/logging"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	path := filepath.Join(t.TempDir(), "messages.jsonl")
	j, err := Open("task-1", path, logging.New())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

// Sequence numbers start at zero and increase strictly with no gaps.
func TestJournal_SequenceNumbers(t *testing.T) {
	j := openTestJournal(t)

	for i := 0; i < 5; i++ {
		evt, err := j.Append(TypeActivity, map[string]interface{}{"text": "step"})
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		if evt.Seq != uint64(i) {
			t.Errorf("event %d: expected seq %d, got %d", i, i, evt.Seq)
		}
	}
}

// Replay reproduces the exact append order.
func TestJournal_ReplayOrderMatchesAppend(t *testing.T) {
	j := openTestJournal(t)

	types := []Type{TypeTaskUpdate, TypeActivity, TypeFileUpdate, TypeError, TypeFinalAnswer}
	for _, typ := range types {
		if _, err := j.Append(typ, map[string]interface{}{}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	var replayed []Event
	err := j.Replay(func(evt Event) error {
		replayed = append(replayed, evt)
		return nil
	})
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}

	if len(replayed) != len(types) {
		t.Fatalf("expected %d events, got %d", len(types), len(replayed))
	}
	for i, evt := range replayed {
		if evt.Type != types[i] {
			t.Errorf("position %d: expected type %s, got %s", i, types[i], evt.Type)
		}
		if evt.Seq != uint64(i) {
			t.Errorf("position %d: expected seq %d, got %d (gap or reorder)", i, i, evt.Seq)
		}
	}
}

// Reopening a journal continues the sequence where the last run stopped.
func TestJournal_ReopenRestoresSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.jsonl")
	logger := logging.New()

	j, err := Open("task-1", path, logger)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := j.Append(TypeActivity, nil); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	j.Close()

	j2, err := Open("task-1", path, logger)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer j2.Close()

	evt, err := j2.Append(TypeActivity, nil)
	if err != nil {
		t.Fatalf("Append after reopen failed: %v", err)
	}
	if evt.Seq != 3 {
		t.Errorf("expected seq 3 after reopen, got %d", evt.Seq)
	}
}

// A live subscriber receives appended events in order.
func TestJournal_SubscribeReceivesLiveEvents(t *testing.T) {
	j := openTestJournal(t)
	ch := j.Subscribe()
	defer j.Unsubscribe(ch)

	if _, err := j.Append(TypeTerminal, map[string]interface{}{"output": "ok"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	select {
	case evt := <-ch:
		if evt.Type != TypeTerminal {
			t.Errorf("expected terminal event, got %s", evt.Type)
		}
	default:
		t.Fatal("expected a buffered live event")
	}
}

// A subscriber that never drains its channel must not block Append.
func TestJournal_SlowSubscriberDoesNotBlock(t *testing.T) {
	j := openTestJournal(t)
	ch := j.Subscribe()
	defer j.Unsubscribe(ch)

	for i := 0; i < subscriberBuffer+10; i++ {
		if _, err := j.Append(TypeActivity, nil); err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}
	// All events persisted even though the channel overflowed.
	count := 0
	if err := j.Replay(func(Event) error { count++; return nil }); err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if count != subscriberBuffer+10 {
		t.Errorf("expected %d persisted events, got %d", subscriberBuffer+10, count)
	}
}

// Events are on disk before Append returns.
func TestJournal_PersistsBeforeReturn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.jsonl")
	j, err := Open("task-1", path, logging.New())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer j.Close()

	if _, err := j.Append(TypeFinalAnswer, map[string]interface{}{"content": "42"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read journal file: %v", err)
	}
	if !strings.Contains(string(data), `"final_answer"`) {
		t.Error("expected final_answer event in journal file")
	}
}

// A torn trailing line from a crashed process is skipped, not fatal.
func TestJournal_SkipsTornLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.jsonl")
	logger := logging.New()

	j, err := Open("task-1", path, logger)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	j.Append(TypeActivity, nil)
	j.Append(TypeActivity, nil)
	j.Close()

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	f.WriteString(`{"type":"activity","seq`)
	f.Close()

	j2, err := Open("task-1", path, logger)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer j2.Close()

	if got := j2.Seq(); got != 2 {
		t.Errorf("expected restored seq 2, got %d", got)
	}
	count := 0
	if err := j2.Replay(func(Event) error { count++; return nil }); err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 valid events, got %d", count)
	}
}

func TestJournal_CloseIdempotent(t *testing.T) {
	j := openTestJournal(t)
	if err := j.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got: %v", err)
	}
}
