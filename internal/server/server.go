// Package server is the HTTP and WebSocket front end of dsstar.
//
// REST endpoints manage uploaded data files. The /ws/query endpoint runs one
// session at a time per connection and streams its progress; a cancel
// action or a disconnect cancels the running session.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/Iron-Ham/dsstar/internal/config"
	"github.com/Iron-Ham/dsstar/internal/logging"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "DS-STAR API"

// shutdownTimeout bounds graceful shutdown of in-flight requests.
const shutdownTimeout = 10 * time.Second

// FileInfo describes an uploaded file
type FileInfo struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
}

// Server serves the dsstar API
type Server struct {
	cfg        config.ServerConfig
	factory    SessionFactory
	logger     *logging.Logger
	gatherer   prometheus.Gatherer
	version    string
	uploadDir  string
	ownsUpload bool
	upgrader   websocket.Upgrader
	engine     *gin.Engine
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithGatherer sets the registry exposed on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		if g != nil {
			s.gatherer = g
		}
	}
}

// WithVersion sets the version reported by the health endpoint.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// New creates a Server and its upload directory. When cfg leaves the upload
// directory unset, a fresh temporary directory is created and removed again
// by Close.
func New(cfg config.ServerConfig, factory SessionFactory, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:      cfg,
		factory:  factory,
		logger:   logging.NopLogger(),
		gatherer: prometheus.DefaultGatherer,
		version:  "dev",
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.UploadDir == "" {
		dir, err := os.MkdirTemp("", "dsstar_uploads_")
		if err != nil {
			return nil, fmt.Errorf("failed to create upload directory: %w", err)
		}
		s.uploadDir = dir
		s.ownsUpload = true
	} else {
		s.uploadDir = cfg.ResolveUploadDir()
		if err := os.MkdirAll(s.uploadDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create upload directory: %w", err)
		}
	}

	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return s.cfg.OriginAllowed(r.Header.Get("Origin"))
		},
	}
	s.engine = s.routes()
	return s, nil
}

// UploadDir returns the directory uploads are stored in.
func (s *Server) UploadDir() string {
	return s.uploadDir
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Close removes the upload directory if the server created it.
func (s *Server) Close() error {
	if !s.ownsUpload {
		return nil
	}
	return os.RemoveAll(s.uploadDir)
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("server listening", "addr", addr, "upload_dir", s.uploadDir)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger(), s.cors())

	r.GET("/", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	api.POST("/upload", s.upload)
	api.GET("/uploads", s.listUploads)
	api.DELETE("/uploads/:filename", s.deleteUpload)

	r.GET("/ws/query", s.query)
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request handled",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

func (s *Server) cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && s.cfg.OriginAllowed(origin) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "*")
			h.Add("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": ServiceName,
		"version": s.version,
	})
}

func (s *Server) upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "file is required"})
		return
	}

	name := filepath.Base(file.Filename)
	stored := uuid.NewString()[:8] + "_" + name
	path := filepath.Join(s.uploadDir, stored)
	if err := c.SaveUploadedFile(file, path); err != nil {
		s.logger.Error("upload failed", "filename", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": fmt.Sprintf("File upload failed: %v", err)})
		return
	}

	s.logger.Info("file uploaded", "filename", name, "path", path, "size", file.Size)
	c.JSON(http.StatusOK, FileInfo{Filename: name, Path: path, Size: file.Size})
}

func (s *Server) listUploads(c *gin.Context) {
	entries, err := os.ReadDir(s.uploadDir)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}

	files := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Filename: e.Name(),
			Path:     filepath.Join(s.uploadDir, e.Name()),
			Size:     info.Size(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Filename < files[j].Filename })
	c.JSON(http.StatusOK, gin.H{"files": files})
}

func (s *Server) deleteUpload(c *gin.Context) {
	name := c.Param("filename")
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid filename"})
		return
	}

	path := filepath.Join(s.uploadDir, name)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "File not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	s.logger.Info("upload deleted", "filename", name)
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "filename": name})
}
