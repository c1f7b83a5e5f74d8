// Package server exposes a read-only view of the status file and the
// downloaded artifacts over HTTP.
package server

import (
	"html/template"
	"log/slog"
	"net/http"
	"path/filepath"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/wachiwi/suno-sounds/pkg/status"
)

// TaskView is one tracked label as shown by the dashboard.
type TaskView struct {
	Label       string   `json:"label"`
	TaskID      string   `json:"task_id"`
	Status      string   `json:"status"`
	SubmittedAt string   `json:"submitted_at"`
	Completed   bool     `json:"completed"`
	Files       []string `json:"files"`
}

// Summary is the dashboard payload.
type Summary struct {
	Tasks     []TaskView `json:"tasks"`
	Active    int        `json:"active"`
	Failed    int        `json:"failed"`
	Completed int        `json:"completed"`
}

type Server struct {
	Store     *status.Store
	OutputDir string
	// Accounts enables basic auth when non-empty.
	Accounts gin.Accounts
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><title>Generated sounds</title></head>
<body>
<h1>Generated sounds</h1>
<p>{{.Active}} active, {{.Failed}} failed, {{.Completed}} completed</p>
<table>
<tr><th>Label</th><th>Status</th><th>Submitted</th><th>Files</th></tr>
{{range .Tasks}}<tr>
<td>{{.Label}}</td><td>{{.Status}}</td><td>{{.SubmittedAt}}</td>
<td>{{range .Files}}<audio controls src="/sounds/{{.}}"></audio> {{.}}<br>{{end}}</td>
</tr>
{{end}}</table>
</body>
</html>
`))

// Handler builds the gin router.
func (s *Server) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery())
	router.SetTrustedProxies([]string{"127.0.0.1"})

	routes := router.Group("/")
	if len(s.Accounts) > 0 {
		routes = router.Group("/", gin.BasicAuth(s.Accounts))
	}

	routes.GET("/", s.index)
	routes.GET("/api/tasks", s.listTasks)
	routes.GET("/api/tasks/:label", s.getTask)
	routes.Static("/sounds", s.OutputDir)

	return router
}

func (s *Server) summary() (*Summary, error) {
	file, err := s.Store.Load()
	if err != nil {
		return nil, err
	}

	sum := &Summary{Tasks: []TaskView{}, Completed: len(file.Completed)}
	for _, label := range file.Labels() {
		rec := file.Tasks[label]
		view := s.view(label, rec, file.IsCompleted(label))
		switch {
		case rec.Status == status.Failed:
			sum.Failed++
		case !rec.Status.IsTerminal():
			sum.Active++
		}
		sum.Tasks = append(sum.Tasks, view)
	}
	return sum, nil
}

func (s *Server) view(label string, rec *status.Record, completed bool) TaskView {
	return TaskView{
		Label:       label,
		TaskID:      rec.TaskID,
		Status:      rec.Status.String(),
		SubmittedAt: rec.SubmittedAt,
		Completed:   completed,
		Files:       s.artifacts(label),
	}
}

// artifacts lists the downloaded files of label relative to OutputDir.
func (s *Server) artifacts(label string) []string {
	files := []string{}
	for _, pattern := range []string{label + ".mp3", label + "_v*.mp3"} {
		matches, err := filepath.Glob(filepath.Join(s.OutputDir, pattern))
		if err != nil {
			continue
		}
		for _, m := range matches {
			files = append(files, filepath.Base(m))
		}
	}
	sort.Strings(files)
	return files
}

func (s *Server) index(c *gin.Context) {
	sum, err := s.summary()
	if err != nil {
		slog.Error("Failed to load status", "error", err)
		c.String(http.StatusInternalServerError, "Failed to load status")
		return
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(c.Writer, sum); err != nil {
		slog.Error("Template execution error", "error", err)
	}
}

func (s *Server) listTasks(c *gin.Context) {
	sum, err := s.summary()
	if err != nil {
		slog.Error("Failed to load status", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load status"})
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (s *Server) getTask(c *gin.Context) {
	file, err := s.Store.Load()
	if err != nil {
		slog.Error("Failed to load status", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load status"})
		return
	}
	label := c.Param("label")
	rec, ok := file.Tasks[label]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown label"})
		return
	}
	c.JSON(http.StatusOK, s.view(label, rec, file.IsCompleted(label)))
}
