package livehttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"quorum/internal/logger"

	"github.com/gin-gonic/gin"
)

const (
	defaultAddr     = ":9991"
	shutdownTimeout = 5 * time.Second
)

// Server serves the /api/live surface, the health probe and the event stream.
type Server struct {
	router *gin.Engine
	hub    *Hub
	eng    LiveEngine

	mu   sync.Mutex
	addr string
}

type ServerConfig struct {
	Addr    string
	Engine  LiveEngine
	History History
	Hub     *Hub

	// AllowedOrigins are extra browser origins admitted besides same-origin requests.
	AllowedOrigins []string
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("live http server requires an engine")
	}
	s := &Server{addr: cfg.Addr, hub: cfg.Hub, eng: cfg.Engine}
	if s.addr == "" {
		s.addr = defaultAddr
	}
	if s.hub == nil {
		s.hub = NewHub(0)
	}

	gin.SetMode(gin.ReleaseMode)
	s.router = gin.New()
	s.router.Use(gin.Recovery(), accessLog(logger.With("http")))
	s.router.GET("/healthz", s.handleHealth)
	NewRouter(cfg.Engine, cfg.History, s.hub).AllowOrigins(cfg.AllowedOrigins...).Register(s.router.Group("/api/live"))
	return s, nil
}

// handleHealth reports ok plus enough engine state to spot a stuck tick loop.
func (s *Server) handleHealth(c *gin.Context) {
	st := s.eng.Status()
	body := gin.H{"status": "ok", "ticking": st.Ticking, "open": st.Open}
	if st.LastTick != nil {
		body["last_tick"] = st.LastTick.At
	}
	c.JSON(http.StatusOK, body)
}

func accessLog(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"query", c.Request.URL.RawQuery,
			"status", c.Writer.Status(),
			"ip", c.ClientIP(),
			"dur", time.Since(start),
		)
	}
}

// Addr is the configured address, or the bound one once Start is listening.
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Hub returns the websocket hub, which doubles as an engine sink.
func (s *Server) Hub() *Hub { return s.hub }

// Start serves until ctx is cancelled or the listener fails. Cancellation closes the hub
// first so websocket handlers return before the graceful shutdown waits on them.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.Addr(), err)
	}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	srv := &http.Server{Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()
	logger.Infof("live http listening on %s", ln.Addr())

	select {
	case <-ctx.Done():
		s.hub.Close()
		shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			logger.Warnf("live http shutdown: %v", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
