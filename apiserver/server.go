// Package apiserver exposes the renderer over HTTP for a host shell: a
// status endpoint, an image generation endpoint and a websocket that streams
// preview layouts.
package apiserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/arran4/lyricscanvas"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Status is what the host shell polls.
type Status struct {
	Running bool   `json:"running"`
	URL     string `json:"url"`
	Version string `json:"version"`
}

// Bridge controls an out-of-process API server.
type Bridge interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Status() Status
}

// ErrUnavailable is returned by Disabled.
var ErrUnavailable = errors.New("api server is not available in this environment")

// Disabled is the bridge used when there is no host shell.
type Disabled struct{}

func (Disabled) Start(context.Context) error { return ErrUnavailable }
func (Disabled) Stop(context.Context) error  { return nil }
func (Disabled) Status() Status              { return Status{Version: "0.0.0"} }

type Config struct {
	Addr    string
	Version string
}

// Server is the gin-backed Bridge.
type Server struct {
	cfg      Config
	exporter *lyricscanvas.Exporter
	editor   *lyricscanvas.Editor
	logger   *zap.Logger
	router   *gin.Engine

	mu      sync.Mutex
	httpSrv *http.Server
	url     string
	done    chan struct{}
}

// New builds the router. editor may be nil, in which case /ws is refused.
func New(cfg Config, exporter *lyricscanvas.Exporter, editor *lyricscanvas.Editor, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8787"
	}
	if cfg.Version == "" {
		cfg.Version = "0.0.0"
	}
	s := &Server{cfg: cfg, exporter: exporter, editor: editor, logger: logger}

	router := gin.New()
	router.Use(gin.Recovery())
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})
	s.RegisterRoutes(router.Group("/api"))
	router.GET("/ws", s.ws)
	s.router = router
	return s
}

func (s *Server) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/status", s.status)      // GET /api/status
	rg.POST("/generate", s.generate) // POST /api/generate
}

// Handler is the router, for embedding or httptest.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on cfg.Addr and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpSrv != nil {
		return nil
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	srv := &http.Server{Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server stopped", zap.Error(err))
		}
	}()
	s.httpSrv = srv
	s.url = "http://" + ln.Addr().String()
	s.done = done
	s.logger.Info("api server listening", zap.String("url", s.url))
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.httpSrv, s.done
	s.httpSrv, s.url, s.done = nil, "", nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	err := srv.Shutdown(ctx)
	<-done
	s.logger.Info("api server stopped")
	return err
}

func (s *Server) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{Running: s.httpSrv != nil, URL: s.url, Version: s.cfg.Version}
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, s.Status())
}

type generateRequest struct {
	Lyrics struct {
		Title  string `json:"title"`
		Body   string `json:"body"`
		Author string `json:"author"`
	} `json:"lyrics"`
	Settings json.RawMessage `json:"settings"`
	Mode     string          `json:"mode"`
	Format   string          `json:"format"`
}

func (s *Server) generate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	mode, err := lyricscanvas.ParseLayoutMode(req.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if mode == "" {
		mode = lyricscanvas.Portrait
	}
	format, err := lyricscanvas.ParseFormat(req.Format)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	settings := lyricscanvas.DefaultSettings()
	if len(req.Settings) > 0 && strings.TrimSpace(string(req.Settings)) != "null" {
		if settings, err = lyricscanvas.MigrateSettings(req.Settings); err == nil {
			err = settings.Validate()
		}
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	job := &lyricscanvas.Job{
		Lyrics:   lyricscanvas.NewLyrics(req.Lyrics.Title, req.Lyrics.Body, req.Lyrics.Author, time.Now()),
		Settings: settings,
		Mode:     mode,
	}
	enc, err := s.exporter.Render(c.Request.Context(), job, format)
	if err != nil {
		s.logger.Warn("generate failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"imageUrl": enc.DataURL(),
		"format":   enc.Format,
		"strategy": enc.Strategy,
		"width":    enc.Dimensions.Width,
		"height":   enc.Dimensions.Height,
	})
}
