package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vinayprograms/agentkit/logging"

	"github.com/ResearAI/ResearStudio/internal/journal"
)

// inlineLimit caps how much file content is embedded in a file_update event.
// Larger files fall back to URL mode.
const inlineLimit = 512 * 1024

// urlExtensions lists file types referenced by a retrieval URL instead of
// inlined content.
var urlExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true,
	".webp": true, ".svg": true, ".ico": true,
	".mp4": true, ".avi": true, ".mov": true, ".wmv": true, ".flv": true,
	".webm": true, ".mkv": true,
	".pdf": true, ".mp3": true, ".wav": true, ".aac": true, ".ogg": true,
	".m4a": true,
	".zip": true, ".rar": true, ".7z": true, ".tar": true, ".gz": true,
	".exe": true, ".msi": true, ".dmg": true, ".deb": true, ".rpm": true,
}

// editableExtensions lists file types the client may edit in place.
var editableExtensions = map[string]bool{
	".md": true, ".txt": true, ".py": true, ".js": true, ".ts": true,
	".tsx": true, ".jsx": true, ".css": true, ".scss": true, ".less": true,
	".json": true, ".xml": true, ".yaml": true, ".yml": true, ".toml": true,
	".ini": true, ".cfg": true, ".conf": true,
	".sh": true, ".bat": true, ".ps1": true, ".sql": true, ".csv": true,
	".log": true,
}

// URLMode reports whether a file is transmitted by retrieval URL.
func URLMode(filename string) bool {
	return urlExtensions[strings.ToLower(filepath.Ext(filename))]
}

// Editable reports whether the client may edit the file inline.
func Editable(filename string) bool {
	return editableExtensions[strings.ToLower(filepath.Ext(filename))]
}

// DetectFileType classifies a file for the client by extension.
func DetectFileType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".webp", ".svg", ".ico":
		return "image"
	case ".mp4", ".avi", ".mov", ".wmv", ".flv", ".webm", ".mkv":
		return "video"
	case ".pdf":
		return "pdf"
	case ".html":
		return "html"
	case ".md":
		return "markdown"
	case ".mp3", ".wav", ".aac", ".ogg", ".m4a":
		return "audio"
	default:
		return "text"
	}
}

// Synchronizer detects files created, modified, or deleted by tool
// executions and turns them into journal events. It keeps a path -> mtime
// map and diffs it against a fresh walk on every Scan; syncs happen at known
// trigger points, so polling beats an OS-level watch here.
type Synchronizer struct {
	taskID string
	dir    string
	jrnl   *journal.Journal
	state  map[string]time.Time
	logger *logging.Logger
}

// NewSynchronizer creates a synchronizer for a task's workspace directory.
// The initial state is established by a full walk, so files that already
// exist at task start do not produce events.
func NewSynchronizer(taskID, dir string, jrnl *journal.Journal, logger *logging.Logger) (*Synchronizer, error) {
	s := &Synchronizer{
		taskID: taskID,
		dir:    dir,
		jrnl:   jrnl,
		logger: logger.WithComponent("workspace-sync"),
	}
	state, err := s.walk()
	if err != nil {
		return nil, err
	}
	s.state = state
	return s, nil
}

// Scan walks the workspace, emits file_update events for new or modified
// paths and file_delete events for vanished ones, then replaces the stored
// state with the fresh map.
func (s *Synchronizer) Scan() error {
	current, err := s.walk()
	if err != nil {
		return err
	}

	for path, mtime := range current {
		old, seen := s.state[path]
		if !seen || mtime.After(old) {
			s.emitUpdate(path)
		}
	}
	for path := range s.state {
		if _, still := current[path]; !still {
			if _, err := s.jrnl.Append(journal.TypeFileDelete, map[string]interface{}{
				"filename": path,
			}); err != nil {
				s.logger.Error("failed to emit file_delete", map[string]interface{}{
					"file":  path,
					"error": err.Error(),
				})
			}
		}
	}

	s.state = current
	return nil
}

// EmitFile persists content under the workspace directory and emits the
// corresponding file_update event. Used for files the orchestrator itself
// produces, like the plan document and search artifacts.
func (s *Synchronizer) EmitFile(filename, content string) error {
	path := filepath.Join(s.dir, filename)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create parent dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}
	if info, err := os.Stat(path); err == nil {
		s.state[filename] = info.ModTime()
	}
	_, err := s.jrnl.Append(journal.TypeFileUpdate, s.fileUpdateData(filename, content, false))
	return err
}

// Snapshot returns a copy of the current path -> mtime map.
func (s *Synchronizer) Snapshot() map[string]time.Time {
	out := make(map[string]time.Time, len(s.state))
	for k, v := range s.state {
		out[k] = v
	}
	return out
}

// Listing returns the sorted relative paths currently tracked, used to seed
// the planner with the initial workspace contents.
func (s *Synchronizer) Listing() []string {
	paths := make([]string, 0, len(s.state))
	for p := range s.state {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (s *Synchronizer) emitUpdate(path string) {
	full := filepath.Join(s.dir, path)
	urlMode := URLMode(path)

	var content string
	if urlMode {
		content = fmt.Sprintf("/api/file_load/%s/%s", s.taskID, path)
	} else {
		data, err := os.ReadFile(full)
		if err != nil {
			s.logger.Warn("failed to read changed file", map[string]interface{}{
				"file":  path,
				"error": err.Error(),
			})
			return
		}
		if len(data) > inlineLimit {
			urlMode = true
			content = fmt.Sprintf("/api/file_load/%s/%s", s.taskID, path)
		} else {
			content = string(data)
		}
	}

	if _, err := s.jrnl.Append(journal.TypeFileUpdate, s.fileUpdateData(path, content, urlMode)); err != nil {
		s.logger.Error("failed to emit file_update", map[string]interface{}{
			"file":  path,
			"error": err.Error(),
		})
	}
}

func (s *Synchronizer) fileUpdateData(filename, content string, urlMode bool) map[string]interface{} {
	mode := "text"
	if urlMode {
		mode = "url"
	}
	return map[string]interface{}{
		"filename":     filename,
		"content":      content,
		"is_url":       urlMode,
		"is_editable":  Editable(filename),
		"file_type":    DetectFileType(filename),
		"content_mode": mode,
	}
}

// walk builds the relative path -> mtime map for the workspace directory.
// A missing directory yields an empty map rather than an error.
func (s *Synchronizer) walk() (map[string]time.Time, error) {
	state := make(map[string]time.Time)
	err := filepath.Walk(s.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(s.dir, path)
		if relErr != nil {
			return relErr
		}
		state[filepath.ToSlash(rel)] = info.ModTime()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk workspace: %w", err)
	}
	return state, nil
}
