// Package backend is the local HTTP server the embedded browser talks to. The
// dataset it serves is published by the UI thread and read by request
// handlers on the server's own goroutines.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"cellxgene-desktop/internal/dataset"
	"cellxgene-desktop/internal/logger"
	"cellxgene-desktop/internal/metrics"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

var ErrAlreadyRunning = errors.New("backend already running")

// Attachment is one published dataset. It is immutable once published.
type Attachment struct {
	ID         uuid.UUID
	Title      string
	Dataset    *dataset.Dataset
	AttachedAt time.Time
}

type Server struct {
	logger  logger.Logger
	metrics *metrics.Metrics
	router  *gin.Engine

	data atomic.Pointer[Attachment]

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
	ready    chan struct{}
	host     string
	port     int
}

func NewServer(host string, port int, m *metrics.Metrics, log logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		logger:  log,
		metrics: m,
		ready:   make(chan struct{}),
		host:    host,
		port:    port,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.observe())
	router.Use(cors.New(cors.Config{
		AllowOriginFunc: isLocalOrigin,
		AllowMethods:    []string{http.MethodGet, http.MethodOptions},
		AllowHeaders:    []string{"Origin", "Content-Type"},
		MaxAge:          time.Hour,
	}))

	router.GET("/", s.index)
	router.GET("/health", s.health)
	router.GET("/api/v0/dataset", s.currentDataset)
	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	return router
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Attach publishes a loaded dataset. The swap is atomic: a handler sees either
// the previous attachment or the new one in full.
func (s *Server) Attach(ds *dataset.Dataset, title string) Attachment {
	a := &Attachment{
		ID:         uuid.New(),
		Title:      title,
		Dataset:    ds,
		AttachedAt: time.Now(),
	}
	prev := s.data.Swap(a)
	s.metrics.SetDatasetAttached(true)

	fields := map[string]interface{}{
		"id":    a.ID.String(),
		"title": title,
	}
	if prev != nil {
		fields["replaced"] = prev.ID.String()
	}
	s.logger.Info("Backend", "dataset attached", fields)
	return *a
}

// Current returns the published attachment, or nil.
func (s *Server) Current() *Attachment {
	return s.data.Load()
}

// Run serves on host:port until Stop. Under normal operation it does not
// return.
func (s *Server) Run(host string, port int) error {
	s.mu.Lock()
	if s.srv != nil {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.listener = ln
	s.host = host
	s.port = ln.Addr().(*net.TCPAddr).Port
	srv := s.srv
	close(s.ready)
	s.mu.Unlock()

	s.logger.Info("Backend", "serving", map[string]interface{}{
		"addr": ln.Addr().String(),
	})

	err = srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Ready is closed once Run is accepting connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// URL is the address the browser navigates to.
func (s *Server) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("http://%s/", net.JoinHostPort(s.host, strconv.Itoa(s.port)))
}

// Stop gracefully shuts the listener down; Run then returns nil.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("backend shutdown: %w", err)
	}
	s.logger.Info("Backend", "stopped", nil)
	return nil
}
