package replay

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Replayer reads and formats task journals for forensic analysis.
type Replayer struct {
	output         io.Writer
	verbosity      int // 0=normal, 1=verbose (-v), 2=very verbose (-vv)
	maxContentSize int // Maximum size for content blocks (0 = unlimited)
}

// Option configures a Replayer.
type Option func(*Replayer)

// WithMaxContentSize limits content block size to avoid OOM on tasks with
// very large tool results.
func WithMaxContentSize(size int) Option {
	return func(r *Replayer) {
		r.maxContentSize = size
	}
}

// New creates a new Replayer.
func New(output io.Writer, verbosity int, opts ...Option) *Replayer {
	r := &Replayer{
		output:         output,
		verbosity:      verbosity,
		maxContentSize: 50 * 1024,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReplayDir loads a task workspace and renders its timeline.
func (r *Replayer) ReplayDir(root, taskID string) error {
	tr, err := LoadTask(root, taskID)
	if err != nil {
		return err
	}
	return r.Replay(tr)
}

// ReplayDirInteractive renders the timeline in the interactive pager.
func (r *Replayer) ReplayDirInteractive(root, taskID string) error {
	tr, err := LoadTask(root, taskID)
	if err != nil {
		return err
	}

	var buf strings.Builder
	oldOutput := r.output
	r.output = &buf
	err = r.Replay(tr)
	r.output = oldOutput
	if err != nil {
		return err
	}

	p := NewPager(fmt.Sprintf("Task: %s", tr.TaskID))
	return p.Run(buf.String())
}

// ReplayDirLive renders the timeline in the pager and re-renders whenever
// the journal file grows, for watching a task as it runs.
func (r *Replayer) ReplayDirLive(root, taskID string) error {
	render := func() (string, error) {
		tr, err := LoadTask(root, taskID)
		if err != nil {
			return "", err
		}
		var buf strings.Builder
		oldOutput := r.output
		r.output = &buf
		err = r.Replay(tr)
		r.output = oldOutput
		if err != nil {
			return "", err
		}
		return buf.String(), nil
	}

	tr, err := LoadTask(root, taskID)
	if err != nil {
		return err
	}

	p := NewPager(fmt.Sprintf("Task: %s (LIVE)", tr.TaskID))
	layout := journalPath(root, taskID)
	return p.RunLive(layout, render)
}

// Replay outputs the formatted timeline of a task.
func (r *Replayer) Replay(tr *Transcript) error {
	r.printHeader(tr)
	r.printTimeline(tr)
	r.printSummary(tr)
	return nil
}

func (r *Replayer) printHeader(tr *Transcript) {
	fmt.Fprintln(r.output)
	fmt.Fprintf(r.output, "%s %s\n", titleStyle.Render("TASK"), valueStyle.Render(tr.TaskID))
	fmt.Fprintln(r.output, divider)
	fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("Query:  "), valueStyle.Render(truncateLine(tr.Query, 100)))
	fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("Status: "), r.statusStyle(tr.Status).Render(tr.Status))
	if !tr.CreatedAt.IsZero() {
		fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("Created:"), valueStyle.Render(tr.CreatedAt.Format(time.RFC3339)))
	}
	fmt.Fprintln(r.output)
}

func (r *Replayer) printTimeline(tr *Transcript) {
	fmt.Fprintf(r.output, "%s %s\n", titleStyle.Render("TIMELINE"), dimStyle.Render(fmt.Sprintf("(%d events)", len(tr.Events))))
	fmt.Fprintln(r.output, divider)

	for i := range tr.Events {
		r.formatEvent(&tr.Events[i])
	}
}

func (r *Replayer) printSummary(tr *Transcript) {
	fmt.Fprintln(r.output)
	fmt.Fprintln(r.output, divider)

	switch tr.Status {
	case "completed":
		fmt.Fprintln(r.output, successStyle.Render("COMPLETED"))
	case "failed":
		fmt.Fprintf(r.output, "%s %s\n", errorStyle.Render("FAILED:"), valueStyle.Render(tr.Error))
	default:
		fmt.Fprintln(r.output, warnStyle.Render("RUNNING"))
	}

	stats := ComputeStats(tr)
	PrintStats(r.output, stats)
}

func (r *Replayer) statusStyle(status string) lipgloss.Style {
	switch status {
	case "completed":
		return successStyle
	case "failed":
		return errorStyle
	default:
		return warnStyle
	}
}
