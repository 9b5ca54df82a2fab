package backend

import (
	"html/template"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
)

var indexPage = template.Must(template.New("index").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>{{if .}}{{.Title}} - {{end}}cellxgene</title></head>
<body>
{{if .}}<h1>{{.Title}}</h1>
<p>embedding: {{.Dataset.Embedding}}</p>
<p>file: {{.Dataset.Path}}</p>
{{else}}<p>No dataset loaded.</p>{{end}}
</body>
</html>
`))

func (s *Server) index(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := indexPage.Execute(c.Writer, s.Current()); err != nil {
		_ = c.Error(err)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"dataset": s.Current() != nil,
	})
}

func (s *Server) currentDataset(c *gin.Context) {
	a := s.Current()
	if a == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no dataset loaded"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":          a.ID.String(),
		"title":       a.Title,
		"path":        a.Dataset.Path,
		"embedding":   a.Dataset.Embedding,
		"mode":        string(a.Dataset.Mode),
		"size":        a.Dataset.Size,
		"attached_at": a.AttachedAt.Format(time.RFC3339),
	})
}

func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		s.metrics.ObserveRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))

		s.logger.Debug("Backend", "request", map[string]interface{}{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
	}
}

// isLocalOrigin allows only pages served from this machine.
func isLocalOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
