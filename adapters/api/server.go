// Package api exposes the audit engine over HTTP with gin.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/gustavo-detarso/atestmed-defender-sub000/adapters/report"
	"github.com/gustavo-detarso/atestmed-defender-sub000/app"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal"
	"github.com/gustavo-detarso/atestmed-defender-sub000/ports"
)

// Server routes audit requests to the AuditService
type Server struct {
	router   *gin.Engine
	service  *app.AuditService
	source   ports.ObservationSource
	store    ports.AuditRunStore
	renderer *report.Renderer
	validate *validator.Validate
	logger   *internal.Logger
}

// NewServer creates the HTTP server. source and store are optional; the
// period and run lookup routes are only registered when they are set.
func NewServer(service *app.AuditService, source ports.ObservationSource, store ports.AuditRunStore, logger *internal.Logger) *Server {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:   router,
		service:  service,
		source:   source,
		store:    store,
		renderer: report.NewRenderer(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.WithComponent("API"),
	}
	s.router.Use(s.requestLogger())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	v1.POST("/audits", s.handleRunAudit)
	if s.source != nil {
		v1.POST("/periods/:period/audits", s.handleRunPeriod)
	}
	if s.store != nil {
		v1.GET("/audits/:id", s.handleGetRun)
	}
}

// requestLogger logs one line per request at debug level
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.logger.Debug("%s %s -> %d", c.Request.Method, c.Request.URL.Path, c.Writer.Status())
	}
}

// Handler returns the router for use in an http.Server
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on addr until the listener fails
func (s *Server) Start(addr string) error {
	s.logger.Info("Listening on %s", addr)
	return s.router.Run(addr)
}
