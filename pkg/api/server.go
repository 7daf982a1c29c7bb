package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ExclusiveAccount/iot-dashboard/pkg/auth"
	"github.com/ExclusiveAccount/iot-dashboard/pkg/history"
	"github.com/ExclusiveAccount/iot-dashboard/pkg/models"
	"github.com/ExclusiveAccount/iot-dashboard/pkg/report"
	"github.com/ExclusiveAccount/iot-dashboard/pkg/scan"
	"github.com/ExclusiveAccount/iot-dashboard/pkg/settings"
)

// Config contains configuration for the dashboard server
type Config struct {
	Host           string
	Port           string
	EnableCORS     bool
	EnableRealTime bool
}

// Services are the components the server exposes
type Services struct {
	Store    *scan.Store
	History  *history.Store
	Reports  *report.Service
	Settings *settings.Manager
	Auth     *auth.Service
}

// Server is the web dashboard and its JSON API
type Server struct {
	router    *gin.Engine
	logger    *logrus.Logger
	config    Config
	store     *scan.Store
	history   *history.Store
	reports   *report.Service
	settings  *settings.Manager
	auth      *auth.Service
	assistant *Assistant
	upgrader  websocket.Upgrader

	// scans started over the API outlive their request
	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates the dashboard server. Completed scans are recorded in
// the history.
func NewServer(config Config, svc Services, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}

	// Set default values if not specified
	if config.Port == "" {
		config.Port = "3000"
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		router:   router,
		logger:   logger,
		config:   config,
		store:    svc.Store,
		history:  svc.History,
		reports:  svc.Reports,
		settings: svc.Settings,
		auth:     svc.Auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		ctx:    ctx,
		cancel: cancel,
	}
	if config.EnableCORS {
		s.upgrader.CheckOrigin = func(*http.Request) bool { return true }
	}
	s.assistant = NewAssistant(s.store.Snapshot, logger)

	s.store.OnComplete(func(sum scan.Summary) {
		s.history.AddScan(sum.FinishedAt, sum.Stats.TotalDevices, sum.Stats.TotalVulnerabilities,
			models.OverallRisk(sum.Stats, sum.Devices))
	})

	// whitelist changes apply to the devices already shown
	s.settings.OnChange(s.store.Refilter)

	s.setupRoutes()
	return s
}

// requestLogger logs every request through logrus
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}).Debug("HTTP request")
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// setupRoutes configures the HTML and API routes
func (s *Server) setupRoutes() {
	if s.config.EnableCORS {
		s.router.Use(cors())
	}

	s.setupPages()

	api := s.router.Group("/api")
	{
		// Fixed demo endpoints
		api.POST("/scan", s.handleDemoScan)
		api.POST("/attack", s.handleDemoAttack)

		// Scan control
		api.POST("/scan/start", s.handleStartScan)
		api.POST("/scan/cancel", s.handleCancelScan)
		api.GET("/scan/status", s.handleScanStatus)

		api.GET("/devices", s.handleGetDevices)
		api.GET("/devices/:id", s.handleGetDevice)
		api.POST("/devices/:id/select", s.handleSelectDevice)
		api.POST("/devices/:id/attack", s.handleAttackDevice)
		api.DELETE("/selection", s.handleClearSelection)
		api.GET("/stats", s.handleGetStats)

		api.GET("/history", s.handleGetHistory)
		api.GET("/reports/:id", s.handleGetReport)
		api.GET("/reports/:id/export", s.handleExportReport)

		api.GET("/settings", s.handleGetSettings)
		api.PUT("/settings", s.handleSaveSettings)
		api.POST("/settings/whitelist", s.handleAddWhitelist)
		api.DELETE("/settings/whitelist/:entry", s.handleRemoveWhitelist)

		api.POST("/auth/login", s.handleLogin)
		api.POST("/auth/register", s.handleRegister)

		s.assistant.RegisterRoutes(api)
	}

	// WebSocket for real-time updates
	if s.config.EnableRealTime {
		s.router.GET("/ws", s.handleWebSocket)
	}
}

// Handler returns the HTTP handler of the server
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Host, s.config.Port)
}

// Start serves the dashboard until ctx is done
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Infof("Starting dashboard server on %s", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		s.cancel()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down dashboard server")
	s.cancel()
	s.store.CancelScan()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Close stops scans started through the API
func (s *Server) Close() {
	s.cancel()
}
