// Package journal provides the durable per-task event log.
//
// Every observable thing that happens to a task is appended here as one JSON
// line with a strictly increasing per-task sequence number. A journal supports
// full in-order replay and a live subscription channel so a streaming client
// can pick up exactly where the persisted log ends.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/vinayprograms/agentkit/logging"
)

// Type tags an event with its payload schema.
type Type string

// Persisted event types.
const (
	TypeActivity       Type = "activity"
	TypeActivityUpdate Type = "activity_update"
	TypeFileUpdate     Type = "file_update"
	TypeFileDelete     Type = "file_delete"
	TypeTerminal       Type = "terminal"
	TypeTaskUpdate     Type = "task_update"
	TypeError          Type = "error"
	TypeFinalAnswer    Type = "final_answer"
)

// Transport-level event types. These are generated by the streaming layer and
// never written to the log, so they carry no sequence number.
const (
	TypeHeartbeat       Type = "heartbeat"
	TypeConnectionClose Type = "connection_close"
)

// Event is one immutable journal record. Data is type-specific; tool results
// whose shape is not controlled by this system pass through as arbitrary JSON.
type Event struct {
	Type      Type                   `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Seq       uint64                 `json:"sequence"`
	Timestamp float64                `json:"timestamp"`
}

// Mirror receives a copy of every persisted event. Implementations must not
// block; failures are the mirror's problem, never the task's.
type Mirror interface {
	Publish(taskID string, raw []byte)
}

// subscriberBuffer bounds the live channel so a slow consumer cannot block
// task execution.
const subscriberBuffer = 256

// Journal is the append-only event log for one task.
type Journal struct {
	taskID string
	path   string

	mu     sync.Mutex
	file   *os.File
	seq    uint64 // next sequence number to assign
	subs   []chan Event
	mirror Mirror
	closed bool

	logger *logging.Logger
}

// Open creates or append-opens the journal file at path and restores the
// sequence counter from the last persisted event.
func Open(taskID, path string, logger *logging.Logger) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	j := &Journal{
		taskID: taskID,
		path:   path,
		file:   f,
		logger: logger.WithComponent("journal"),
	}

	// Restore the counter: next sequence is one past the last valid line.
	last, count, err := j.scanLast()
	if err != nil {
		f.Close()
		return nil, err
	}
	if count > 0 {
		j.seq = last + 1
	}

	return j, nil
}

// SetMirror attaches an optional event mirror. Must be called before the
// task starts appending.
func (j *Journal) SetMirror(m Mirror) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.mirror = m
}

// Seq returns the next sequence number that will be assigned.
func (j *Journal) Seq() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.seq
}

// Append assigns the next sequence number, durably writes the event, then
// offers it to live subscribers. Persistence must succeed before Append
// returns; fan-out is best-effort and never blocks.
func (j *Journal) Append(t Type, data map[string]interface{}) (Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return Event{}, fmt.Errorf("journal closed for task %s", j.taskID)
	}

	evt := Event{
		Type:      t,
		Data:      data,
		Seq:       j.seq,
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
	}

	raw, err := json.Marshal(evt)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := j.file.Write(append(raw, '\n')); err != nil {
		return Event{}, fmt.Errorf("failed to persist event: %w", err)
	}
	j.seq++

	for _, ch := range j.subs {
		select {
		case ch <- evt:
		default:
			j.logger.Warn("subscriber buffer full, dropping event", map[string]interface{}{
				"task": j.taskID,
				"type": string(t),
				"seq":  evt.Seq,
			})
		}
	}

	if j.mirror != nil {
		j.mirror.Publish(j.taskID, raw)
	}

	return evt, nil
}

// Replay streams every persisted event in append order. The callback may
// return an error to stop early.
func (j *Journal) Replay(fn func(Event) error) error {
	f, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open journal for replay: %w", err)
	}
	defer f.Close()

	return readLines(f, func(line []byte) error {
		var evt Event
		if err := json.Unmarshal(line, &evt); err != nil {
			// Tolerate a torn trailing line from a crashed process.
			j.logger.Warn("skipping unparseable journal line", map[string]interface{}{
				"task": j.taskID,
			})
			return nil
		}
		return fn(evt)
	})
}

// Subscribe registers a live consumer and returns its channel. Events
// appended after this call are delivered in order, up to the buffer bound.
func (j *Journal) Subscribe() chan Event {
	ch := make(chan Event, subscriberBuffer)
	j.mu.Lock()
	j.subs = append(j.subs, ch)
	j.mu.Unlock()
	return ch
}

// Unsubscribe removes a live consumer and closes its channel.
func (j *Journal) Unsubscribe(ch chan Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i, sub := range j.subs {
		if sub == ch {
			j.subs = append(j.subs[:i], j.subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// Close flushes and closes the journal file. Idempotent.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return j.file.Close()
}

// Heartbeat returns a transport-level keepalive event.
func Heartbeat() Event {
	return Event{
		Type:      TypeHeartbeat,
		Data:      map[string]interface{}{},
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
	}
}

// ConnectionClose returns the transport-level stream terminator.
func ConnectionClose(reason string) Event {
	return Event{
		Type:      TypeConnectionClose,
		Data:      map[string]interface{}{"reason": reason},
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
	}
}

// scanLast reads the journal and returns the sequence of the last valid
// event plus the number of valid events.
func (j *Journal) scanLast() (last uint64, count int, err error) {
	f, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("failed to open journal: %w", err)
	}
	defer f.Close()

	err = readLines(f, func(line []byte) error {
		var evt Event
		if jsonErr := json.Unmarshal(line, &evt); jsonErr != nil {
			return nil
		}
		last = evt.Seq
		count++
		return nil
	})
	return last, count, err
}

// readLines iterates newline-delimited records without a line length limit.
// Tool results can embed very large payloads, so a fixed scanner buffer is
// not enough.
func readLines(f *os.File, fn func([]byte) error) error {
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			trimmed := trimNewline(line)
			if len(trimmed) > 0 {
				if cbErr := fn(trimmed); cbErr != nil {
					return cbErr
				}
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read journal: %w", err)
		}
	}
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
