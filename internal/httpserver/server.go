// Package httpserver exposes the scrape endpoint.
package httpserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tinytelemetry/hasura-metrics-adapter/internal/telemetry"
)

// Server serves the metric snapshot over HTTP. The /metrics endpoint is
// unauthenticated by design; it is expected to sit behind network-level
// access control.
type Server struct {
	addr      string
	registry  *telemetry.Registry
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates the scrape server bound to addr.
func NewServer(addr string, registry *telemetry.Registry) *Server {
	if addr == "" {
		addr = "0.0.0.0:9090"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:     addr,
		registry: registry,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins serving scrape requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/metrics", gin.WrapH(s.registry.Handler()))
	r.GET("/healthz", s.handleHealth)

	s.server = &http.Server{
		Handler:           r,
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.startTime = time.Now()

	go s.server.Serve(listener)
	return nil
}

// Stop gracefully shuts down the server, letting in-flight scrapes drain.
func (s *Server) Stop() error {
	s.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	})
}
