package server

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// placeAttachments writes uploaded files into the task workspace. Zip
// archives are expanded in place so a task can be seeded with a directory
// tree. Every destination path is confined to the workspace.
func placeAttachments(workDir string, files map[string][]byte) error {
	for name, data := range files {
		if strings.EqualFold(filepath.Ext(name), ".zip") {
			if err := extractZip(workDir, data); err != nil {
				return fmt.Errorf("failed to extract %s: %w", name, err)
			}
			continue
		}
		dest, err := confine(workDir, name)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func extractZip(workDir string, data []byte) error {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return err
	}
	for _, entry := range reader.File {
		dest, err := confine(workDir, entry.Name)
		if err != nil {
			return err
		}
		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		src, err := entry.Open()
		if err != nil {
			return err
		}
		out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			src.Close()
			return err
		}
		_, copyErr := io.Copy(out, src)
		src.Close()
		out.Close()
		if copyErr != nil {
			return copyErr
		}
	}
	return nil
}

// confine resolves name under root and rejects any path that escapes it.
func confine(root, name string) (string, error) {
	dest := filepath.Join(root, filepath.FromSlash(name))
	rel, err := filepath.Rel(root, dest)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("illegal path: %s", name)
	}
	return dest, nil
}

// handleFileLoad serves one workspace file by its task-relative path.
func (s *Server) handleFileLoad(c *gin.Context) {
	task, err := s.reg.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	rel := strings.TrimPrefix(c.Param("path"), "/")
	dest, err := confine(task.Layout().WorkDir(), rel)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "illegal file path"})
		return
	}
	info, err := os.Stat(dest)
	if err != nil || info.IsDir() {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	c.File(dest)
}

// handleExport streams the whole task directory as a zip archive: journal,
// plans, tool call records, and workspace files.
func (s *Server) handleExport(c *gin.Context) {
	task, err := s.reg.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	root := task.Layout().Dir()
	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.zip", task.ID))

	zw := zip.NewWriter(c.Writer)
	defer zw.Close()

	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})
	if err != nil {
		s.logger.Error("export failed", map[string]interface{}{
			"task":  task.ID,
			"error": err.Error(),
		})
	}
}
