// Package api exposes the engine over HTTP: submit and inspect
// investigations, stream their progress as server-sent events, and serve
// health plus Prometheus metrics.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/transparencia-br/fiscal/pkg/config"
	"github.com/transparencia-br/fiscal/pkg/metrics"
	"github.com/transparencia-br/fiscal/pkg/orchestrator"
	"github.com/transparencia-br/fiscal/pkg/progress"
	"github.com/transparencia-br/fiscal/pkg/queue"
	"github.com/transparencia-br/fiscal/pkg/storage"
)

// Server wires the HTTP surface to the engine.
type Server struct {
	orch     *orchestrator.Orchestrator
	pool     *queue.Pool
	store    *storage.Client
	hub      *Hub
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	cfg      config.ServerConfig
	progress config.ProgressConfig
	logger   *slog.Logger

	httpSrv *http.Server
}

// NewServer builds the server. store may be nil when persistence is
// disabled; gatherer may be nil to disable /metrics.
func NewServer(
	orch *orchestrator.Orchestrator,
	pool *queue.Pool,
	store *storage.Client,
	m *metrics.Metrics,
	gatherer prometheus.Gatherer,
	cfg config.ServerConfig,
	progressCfg config.ProgressConfig,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		orch:     orch,
		pool:     pool,
		store:    store,
		hub:      NewHub(),
		metrics:  m,
		gatherer: gatherer,
		cfg:      cfg,
		progress: progressCfg,
		logger:   logger.With("component", "api"),
	}
}

// Hub exposes the event hub (tests attach through it).
func (s *Server) Hub() *Hub { return s.hub }

// Router builds the gin engine with all routes attached.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	r.GET("/health", s.handleHealth)
	if s.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/api/v1")
	{
		v1.POST("/investigations", s.handleSubmit)
		v1.GET("/investigations", s.handleList)
		v1.GET("/investigations/:id", s.handleGet)
		v1.GET("/investigations/:id/events", s.handleEvents)
		v1.POST("/investigations/:id/cancel", s.handleCancel)
		v1.POST("/classify", s.handleClassify)
		v1.POST("/plan", s.handlePlan)
	}
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.cfg.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	grace := time.Duration(s.cfg.ShutdownGraceSec) * time.Second
	if grace <= 0 {
		grace = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := uuid.NewString()
		c.Writer.Header().Set("X-Request-ID", requestID)
		c.Next()
		s.logger.Info("request",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	resp := gin.H{
		"status": "healthy",
		"queue": gin.H{
			"active": s.pool.ActiveCount(),
			"queued": s.pool.QueuedCount(),
		},
	}
	status := http.StatusOK
	if s.store != nil {
		dbHealth, err := s.store.Health(ctx)
		resp["database"] = dbHealth
		if err != nil {
			resp["status"] = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}
	c.JSON(status, resp)
}

// newSink builds the per-investigation progress sink from server config.
func (s *Server) newSink(investigationID string) *progress.Sink {
	return progress.NewSink(investigationID, progress.Config{
		BufferSize: s.progress.BufferSize,
		SendWait:   s.progress.SendWait.Std(),
	}, s.metrics)
}
