package replay

import (
	"fmt"
	"strings"
	"time"

	"github.com/ResearAI/ResearStudio/internal/journal"
)

// formatEvent renders one journal event as a timeline row.
func (r *Replayer) formatEvent(evt *journal.Event) {
	ts := timeStyle.Render(eventTime(evt).Format("15:04:05"))
	seq := seqStyle.Render(fmt.Sprintf("%d", evt.Seq))

	switch evt.Type {
	case journal.TypeActivity:
		r.fmtActivity(seq, ts, evt)
	case journal.TypeActivityUpdate:
		r.fmtActivityUpdate(seq, ts, evt)
	case journal.TypeFileUpdate:
		r.fmtFileUpdate(seq, ts, evt)
	case journal.TypeFileDelete:
		r.fmtFileDelete(seq, ts, evt)
	case journal.TypeTerminal:
		r.fmtTerminal(seq, ts, evt)
	case journal.TypeTaskUpdate:
		r.fmtTaskUpdate(seq, ts, evt)
	case journal.TypeError:
		r.fmtError(seq, ts, evt)
	case journal.TypeFinalAnswer:
		r.fmtFinalAnswer(seq, ts, evt)
	default:
		fmt.Fprintf(r.output, "%s │ %s │ %s\n", seq, ts, dimStyle.Render(string(evt.Type)))
	}
}

func (r *Replayer) fmtActivity(seq, ts string, evt *journal.Event) {
	kind, _ := evt.Data["type"].(string)
	text, _ := evt.Data["text"].(string)

	switch kind {
	case "planning":
		fmt.Fprintf(r.output, "%s │ %s │ %s %s\n", seq, ts,
			flowStyle.Render("PLAN:"), valueStyle.Render(truncateLine(text, 80)))
	case "execution":
		fmt.Fprintf(r.output, "%s │ %s │ %s %s\n", seq, ts,
			flowStyle.Render("EXEC:"), dimStyle.Render(truncateLine(text, 80)))
	case "command":
		command, _ := evt.Data["command"].(string)
		fmt.Fprintf(r.output, "%s │ %s │ %s %s\n", seq, ts,
			toolStyle.Render("TOOL CALL:"), valueStyle.Render(truncateLine(command, 90)))
		if r.verbosity >= 1 && text != "" {
			r.printContent(text)
		}
	default:
		fmt.Fprintf(r.output, "%s │ %s │ %s %s\n", seq, ts,
			flowStyle.Render("NOTE:"), valueStyle.Render(truncateLine(text, 90)))
		if r.verbosity >= 1 {
			if result, ok := evt.Data["result"].(string); ok && result != "" {
				r.printContent(r.truncate(result))
			}
		}
	}
}

func (r *Replayer) fmtActivityUpdate(seq, ts string, evt *journal.Event) {
	status, _ := evt.Data["status"].(string)
	styled := dimStyle.Render(status)
	switch status {
	case "completed":
		styled = successStyle.Render(status)
	case "failed":
		styled = errorStyle.Render(status)
	}
	fmt.Fprintf(r.output, "%s │ %s │ %s %s\n", seq, ts, dimStyle.Render("UPDATE:"), styled)
	if errText, ok := evt.Data["error"].(string); ok && errText != "" {
		r.printContent(errorStyle.Render(errText))
	}
}

func (r *Replayer) fmtFileUpdate(seq, ts string, evt *journal.Event) {
	filename, _ := evt.Data["filename"].(string)
	fileType, _ := evt.Data["file_type"].(string)
	mode := ""
	if isURL, _ := evt.Data["is_url"].(bool); isURL {
		mode = dimStyle.Render(" [url]")
	}
	fmt.Fprintf(r.output, "%s │ %s │ %s %s %s%s\n", seq, ts,
		fileStyle.Render("FILE:"),
		valueStyle.Render(filename),
		dimStyle.Render(fmt.Sprintf("(%s)", fileType)),
		mode)
	if r.verbosity >= 2 {
		if content, ok := evt.Data["content"].(string); ok && content != "" {
			r.printContent(r.truncate(content))
		}
	}
}

func (r *Replayer) fmtFileDelete(seq, ts string, evt *journal.Event) {
	filename, _ := evt.Data["filename"].(string)
	fmt.Fprintf(r.output, "%s │ %s │ %s %s\n", seq, ts,
		fileStyle.Render("FILE DELETED:"), valueStyle.Render(filename))
}

func (r *Replayer) fmtTerminal(seq, ts string, evt *journal.Event) {
	command, _ := evt.Data["command"].(string)
	fmt.Fprintf(r.output, "%s │ %s │ %s %s\n", seq, ts,
		terminalStyle.Render("TERMINAL:"), valueStyle.Render(truncateLine(command, 80)))
	if r.verbosity >= 1 {
		if output, ok := evt.Data["output"].(string); ok && output != "" {
			r.printContent(r.truncate(output))
		}
	}
}

func (r *Replayer) fmtTaskUpdate(seq, ts string, evt *journal.Event) {
	status, _ := evt.Data["status"].(string)
	styled := warnStyle.Render(status)
	switch status {
	case "completed", "started":
		styled = successStyle.Render(status)
	case "failed":
		styled = errorStyle.Render(status)
	case "paused":
		styled = warnStyle.Render(status)
	}
	fmt.Fprintf(r.output, "%s │ %s │ %s %s\n", seq, ts, flowStyle.Render("TASK:"), styled)
}

func (r *Replayer) fmtError(seq, ts string, evt *journal.Event) {
	kind, _ := evt.Data["type"].(string)
	message, _ := evt.Data["message"].(string)
	fmt.Fprintf(r.output, "%s │ %s │ %s %s\n", seq, ts,
		errorStyle.Render("ERROR:"), dimStyle.Render(fmt.Sprintf("[%s]", kind)))
	r.printContent(errorStyle.Render(message))
	if tool, ok := evt.Data["tool_name"].(string); ok && tool != "" {
		fmt.Fprintf(r.output, "      │          │   %s %s\n",
			labelStyle.Render("tool:"), valueStyle.Render(tool))
	}
}

func (r *Replayer) fmtFinalAnswer(seq, ts string, evt *journal.Event) {
	content, _ := evt.Data["content"].(string)
	fmt.Fprintf(r.output, "%s │ %s │ %s\n", seq, ts, successStyle.Render("FINAL ANSWER"))
	r.printContent(r.truncate(content))
}

// printContent prints verbose content with timeline indentation.
func (r *Replayer) printContent(content string) {
	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(r.output, "      │          │   %s\n", line)
	}
}

// truncate caps a content block at the replayer's content budget.
func (r *Replayer) truncate(s string) string {
	if r.maxContentSize > 0 && len(s) > r.maxContentSize {
		return s[:r.maxContentSize] + fmt.Sprintf("\n... [truncated, %d bytes total]", len(s))
	}
	return s
}

// truncateLine flattens and caps a string for single-line display.
func truncateLine(s string, maxLen int) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// eventTime converts the journal's fractional unix timestamp.
func eventTime(evt *journal.Event) time.Time {
	sec := int64(evt.Timestamp)
	nsec := int64((evt.Timestamp - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
