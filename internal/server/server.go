package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/amoylab/inboxhub/internal/auth"
	"github.com/amoylab/inboxhub/internal/common/config"
	"github.com/amoylab/inboxhub/internal/common/errorx"
	"github.com/amoylab/inboxhub/internal/realtime"
	"github.com/amoylab/inboxhub/pkg/metrics"
	"github.com/amoylab/inboxhub/pkg/version"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

const healthPath = "/health_check"

// Server exposes the hub over HTTP
type Server struct {
	logger    *zap.Logger
	cfg       *config.HubServerConfig
	router    *gin.Engine
	httpSrv   *http.Server
	hub       *realtime.Hub
	publisher realtime.Publisher
	authn     auth.Authenticator
	errs      *errorx.ErrorHandler
	metrics   *metrics.Metrics
	upgrader  websocket.Upgrader
}

// NewServer creates the HTTP server. publisher is where the publish API
// sends events; pass the bus so other processes see them too. m may be nil.
func NewServer(logger *zap.Logger, cfg *config.HubServerConfig, hub *realtime.Hub, publisher realtime.Publisher, authn auth.Authenticator, m *metrics.Metrics) *Server {
	s := &Server{
		logger:    logger.Named("server"),
		cfg:       cfg,
		router:    gin.New(),
		hub:       hub,
		publisher: publisher,
		authn:     authn,
		errs:      errorx.NewErrorHandler(logger.Named("server.errors")),
		metrics:   m,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      originChecker(cfg.CORS),
		},
	}

	s.router.Use(s.loggerMiddleware())
	s.router.Use(s.errs.RecoveryMiddleware())
	if cfg.Tracing.Enabled {
		s.router.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	}
	if cfg.Metrics.Enabled && m != nil {
		s.router.Use(m.Middleware())
	}
	if cfg.CORS != nil {
		s.router.Use(corsMiddleware(cfg.CORS))
	}
	s.registerRoutes()

	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET(healthPath, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"version":  version.Get(),
			"sessions": s.hub.Sessions(),
		})
	})
	if s.cfg.Metrics.Enabled && s.metrics != nil {
		s.router.GET(s.cfg.Metrics.Path, gin.WrapH(s.metrics.Handler()))
	}

	api := s.router.Group("/api", auth.Middleware(s.authn, s.errs))
	api.GET("/stream", s.handleStream)
	api.GET("/ws", s.handleWebSocket)
	api.POST("/events", s.errs.ErrorMiddleware(), s.handlePublish)
	api.GET("/realtime/stats", auth.RequireAdmin(s.cfg.Auth.AdminRole, s.errs), s.handleStats)

	s.router.NoRoute(s.errs.NotFoundHandler())
}

// Handler returns the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("starting server", zap.Int("port", s.cfg.Port))
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown closes every stream session with reason shutdown, then stops
// the HTTP listener. Streams must end first or the listener waits on them.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	if err := s.hub.Shutdown(ctx); err != nil {
		s.logger.Warn("stream sessions did not close in time", zap.Error(err))
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleStats(c *gin.Context) {
	reg := s.hub.Registry()
	c.JSON(http.StatusOK, gin.H{
		"sessions": s.hub.Sessions(),
		"channels": reg.Len(),
		"keys":     reg.Stats(),
	})
}

// originChecker allows same-origin upgrades and the configured CORS origins
func originChecker(cors *config.CORSConfig) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host {
			return true
		}
		if cors == nil {
			return false
		}
		for _, allowed := range cors.AllowOrigins {
			if allowed == "*" || allowed == origin {
				return true
			}
		}
		return false
	}
}
