package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Meta is the rehydration record persisted as task.json. It never holds
// secrets; API keys are re-read from the environment on restart.
type Meta struct {
	TaskID    string    `json:"task_id"`
	Query     string    `json:"query"`
	CreatedAt time.Time `json:"created_at"`
	Model     string    `json:"model,omitempty"`
}

// SaveMeta writes the rehydration record.
func SaveMeta(path string, m Meta) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal task meta: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write task meta: %w", err)
	}
	return nil
}

// LoadMeta reads the rehydration record.
func LoadMeta(path string) (Meta, error) {
	var m Meta
	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("failed to read task meta: %w", err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("failed to parse task meta: %w", err)
	}
	return m, nil
}
