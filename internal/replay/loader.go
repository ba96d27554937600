package replay

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ResearAI/ResearStudio/internal/journal"
	"github.com/ResearAI/ResearStudio/internal/workspace"
)

// Transcript is everything needed to render one task: its identity, the
// original request, the outcome, and the full event log.
type Transcript struct {
	TaskID      string
	Query       string
	Status      string
	CreatedAt   time.Time
	FinalAnswer string
	Error       string
	Events      []journal.Event
}

// LoadTask reads a task workspace directory into a transcript. The journal
// is the source of truth for events; query, metadata, and outcome come from
// the sidecar files.
func LoadTask(root, taskID string) (*Transcript, error) {
	layout := workspace.NewLayout(root, taskID)
	if !layout.Exists() {
		return nil, fmt.Errorf("no such task: %s", taskID)
	}

	tr := &Transcript{TaskID: taskID, Status: "running"}

	if data, err := os.ReadFile(layout.QueryFile()); err == nil {
		tr.Query = strings.TrimSpace(string(data))
	}
	if meta, err := workspace.LoadMeta(layout.MetaFile()); err == nil {
		tr.CreatedAt = meta.CreatedAt
	}
	if data, err := os.ReadFile(layout.AnswerFile()); err == nil {
		tr.Status = "completed"
		tr.FinalAnswer = strings.TrimSpace(string(data))
	} else if data, err := os.ReadFile(layout.ErrorFile()); err == nil {
		tr.Status = "failed"
		tr.Error = strings.TrimSpace(string(data))
	}

	events, err := loadEvents(layout.JournalFile())
	if err != nil {
		return nil, err
	}
	tr.Events = events
	return tr, nil
}

// loadEvents reads the JSONL journal. A torn trailing line from a crashed
// process is skipped, not fatal.
func loadEvents(path string) ([]journal.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	defer f.Close()

	var events []journal.Event
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			var evt journal.Event
			if jsonErr := json.Unmarshal(trimmed, &evt); jsonErr == nil {
				events = append(events, evt)
			}
		}
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read journal: %w", err)
		}
	}
}

func journalPath(root, taskID string) string {
	return workspace.NewLayout(root, taskID).JournalFile()
}

// Raw streams the journal file verbatim, one JSON line per event. Used by
// the --raw flag for piping into jq.
func Raw(w io.Writer, root, taskID string) error {
	layout := workspace.NewLayout(root, taskID)
	f, err := os.Open(layout.JournalFile())
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// ListTasks returns the task ids under a workspaces root, oldest first by
// directory modification time falling back to name order.
func ListTasks(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read workspaces root: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		layout := workspace.NewLayout(root, entry.Name())
		if _, err := os.Stat(layout.QueryFile()); err == nil {
			ids = append(ids, entry.Name())
		}
	}
	return ids, nil
}
