// Package server exposes the artifact queries over HTTP.
package server

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zeebo/blake3"

	"github.com/jonwraymond/tokenart/health"
	"github.com/jonwraymond/tokenart/observe"
	"github.com/jonwraymond/tokenart/render"
	"github.com/jonwraymond/tokenart/store"
)

// Service is the artifact cache orchestrator. artifact.Service implements it.
type Service interface {
	StaticImagePath(ctx context.Context, req render.Request) (string, error)
	ThumbnailPath(ctx context.Context, req render.Request) (string, error)
	Metadata(ctx context.Context, req render.Request) (json.RawMessage, error)
}

// Server routes render queries and health probes.
type Server struct {
	engine    *gin.Engine
	handler   http.Handler
	svc       Service
	artifacts *store.ArtifactStore
	logger    observe.Logger
}

// Option configures a Server.
type Option func(*gin.Engine)

// WithPrometheus serves the default Prometheus registry at /metrics.
func WithPrometheus() Option {
	return func(e *gin.Engine) {
		e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
}

// New builds the router. agg may be nil, in which case only /healthz is served.
func New(svc Service, artifacts *store.ArtifactStore, agg *health.Aggregator, logger observe.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = observe.NopLogger()
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger))

	s := &Server{
		engine:    engine,
		svc:       svc,
		artifacts: artifacts,
		logger:    logger,
	}

	v1 := engine.Group("/v1/render")
	v1.POST("/image", s.image)
	v1.POST("/thumbnail", s.thumbnail)
	v1.POST("/metadata", s.metadata)

	if agg != nil {
		health.Register(engine, agg)
	} else {
		engine.GET("/healthz", health.Liveness)
	}
	for _, opt := range opts {
		opt(engine)
	}

	// PNGs are already compressed; only JSON bodies are worth gzipping.
	gz, err := gzhttp.NewWrapper(gzhttp.ContentTypes([]string{"application/json"}))
	if err != nil {
		panic(fmt.Sprintf("server: gzip wrapper: %v", err))
	}
	s.handler = gz(engine)
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// DefaultShutdownGrace bounds how long Run drains in-flight requests.
const DefaultShutdownGrace = 30 * time.Second

// Run serves on addr until ctx is cancelled, then drains in-flight
// requests for up to shutdownGrace. Renders already submitted keep running
// after their request is abandoned.
func (s *Server) Run(ctx context.Context, addr string, shutdownGrace time.Duration) error {
	if shutdownGrace <= 0 {
		shutdownGrace = DefaultShutdownGrace
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "http server listening", observe.F("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

func (s *Server) image(c *gin.Context) {
	s.file(c, s.svc.StaticImagePath)
}

func (s *Server) thumbnail(c *gin.Context) {
	s.file(c, s.svc.ThumbnailPath)
}

func (s *Server) file(c *gin.Context, lookup func(context.Context, render.Request) (string, error)) {
	req, ok := bind(c)
	if !ok {
		return
	}

	path, err := lookup(c.Request.Context(), req)
	if err != nil {
		s.fail(c, req, err)
		return
	}
	data, err := s.artifacts.Read(c.Request.Context(), path)
	if err != nil {
		s.fail(c, req, err)
		return
	}

	tag := etag(data)
	c.Header("ETag", tag)
	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	if c.GetHeader("If-None-Match") == tag {
		c.Status(http.StatusNotModified)
		return
	}
	c.Data(http.StatusOK, "image/png", data)
}

// etag is a strong validator over the artifact bytes.
func etag(data []byte) string {
	sum := blake3.Sum256(data)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

func (s *Server) metadata(c *gin.Context) {
	req, ok := bind(c)
	if !ok {
		return
	}

	meta, err := s.svc.Metadata(c.Request.Context(), req)
	if err != nil {
		s.fail(c, req, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", meta)
}

func bind(c *gin.Context) (render.Request, bool) {
	var req render.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request: %v", err)})
		return render.Request{}, false
	}
	return req, true
}

func (s *Server) fail(c *gin.Context, req render.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.WithToken(req.Meta()).Error(c.Request.Context(), "request failed", observe.F("error", err))
	}
	c.AbortWithStatusJSON(code, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, render.ErrInvalidRequest), errors.Is(err, render.ErrUnknownTemplate):
		return http.StatusBadRequest
	case errors.Is(err, render.ErrMalformedCompletion):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// requestLogger logs one line per request at debug level, or warn for
// server errors.
func requestLogger(logger observe.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []observe.Field{
			observe.F("method", c.Request.Method),
			observe.F("path", c.FullPath()),
			observe.F("status", c.Writer.Status()),
			observe.F("duration_ms", float64(time.Since(start).Milliseconds())),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Warn(c.Request.Context(), "http request", fields...)
			return
		}
		logger.Debug(c.Request.Context(), "http request", fields...)
	}
}
