package server

import (
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ResearAI/ResearStudio/internal/registry"
	"github.com/ResearAI/ResearStudio/internal/workspace"
)

type attachment struct {
	Filename string `json:"filename"`
	Content  string `json:"content"` // base64
}

type createTaskRequest struct {
	Query       string       `json:"query"`
	Attachments []attachment `json:"attachments,omitempty"`
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}

	decoded := make(map[string][]byte, len(req.Attachments))
	for _, att := range req.Attachments {
		if att.Filename == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "attachment filename is required"})
			return
		}
		data, err := base64.StdEncoding.DecodeString(att.Content)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "attachment content must be base64: " + att.Filename})
			return
		}
		decoded[att.Filename] = data
	}

	task, err := s.reg.Create(req.Query, func(layout workspace.Layout) error {
		return placeAttachments(layout.WorkDir(), decoded)
	})
	if err != nil {
		if errors.Is(err, registry.ErrToolsUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "tool servers unavailable, task creation disabled",
				"type":  "initialization_error",
			})
			return
		}
		s.logger.Error("task creation failed", map[string]interface{}{"error": err.Error()})
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"task_id": task.ID,
		"status":  string(task.State()),
	})
}

func (s *Server) handleListTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": s.reg.List()})
}

func (s *Server) handleGetTask(c *gin.Context) {
	task, err := s.reg.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, task.Summary())
}

func (s *Server) handlePause(c *gin.Context) {
	id := c.Param("id")
	if err := s.reg.Pause(id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, registry.ErrNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"task_id": id, "status": "pausing"})
}

func (s *Server) handleResume(c *gin.Context) {
	id := c.Param("id")
	if err := s.reg.Resume(id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, registry.ErrNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"task_id": id, "status": "resuming"})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	})
}

func (s *Server) handleToolsStatus(c *gin.Context) {
	defs := s.tools.Schemas()
	names := make([]string, 0, len(defs))
	for _, def := range defs {
		names = append(names, def.Name)
	}
	c.JSON(http.StatusOK, gin.H{
		"initialized":         s.tools.Initialized(),
		"tool_count":          len(names),
		"tools":               names,
		"unavailable_servers": s.tools.Unavailable(),
	})
}
