package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ResearAI/ResearStudio/internal/journal"
	"github.com/ResearAI/ResearStudio/internal/orchestrator"
)

// handleStream serves the task's event stream over SSE: the full persisted
// journal first, then live events, with idle heartbeats. The stream ends
// with a connection_close event once the task reaches a terminal state.
func (s *Server) handleStream(c *gin.Context) {
	task, err := s.reg.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	jrnl := task.Journal()

	// Subscribe before replaying so nothing appended during the replay is
	// lost; the sequence boundary dedupes the overlap.
	sub := jrnl.Subscribe()
	defer jrnl.Unsubscribe(sub)
	boundary := jrnl.Seq()

	replayErr := jrnl.Replay(func(evt journal.Event) error {
		if evt.Seq >= boundary {
			return nil
		}
		return writeSSE(c.Writer, evt)
	})
	if replayErr != nil {
		s.logger.Warn("journal replay aborted", map[string]interface{}{
			"task":  task.ID,
			"error": replayErr.Error(),
		})
		return
	}
	flusher.Flush()

	if task.State().Terminal() {
		writeSSE(c.Writer, journal.ConnectionClose("task "+string(task.State())))
		flusher.Flush()
		return
	}

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return

		case evt, open := <-sub:
			if !open {
				writeSSE(c.Writer, journal.ConnectionClose("journal closed"))
				flusher.Flush()
				return
			}
			if evt.Seq < boundary {
				continue
			}
			if err := writeSSE(c.Writer, evt); err != nil {
				return
			}
			flusher.Flush()

			if evt.Type == journal.TypeTaskUpdate && terminalStatus(evt) {
				writeSSE(c.Writer, journal.ConnectionClose("task "+string(task.State())))
				flusher.Flush()
				return
			}

		case <-heartbeat.C:
			if err := writeSSE(c.Writer, journal.Heartbeat()); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func terminalStatus(evt journal.Event) bool {
	status, _ := evt.Data["status"].(string)
	return orchestrator.State(status).Terminal()
}

func writeSSE(w http.ResponseWriter, evt journal.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
