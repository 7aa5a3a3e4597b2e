package mgmt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/compliance-agent/internal/metrics"
	"github.com/p-blackswan/compliance-agent/internal/requestid"
)

// ServerConfig holds configuration for the management API server.
type ServerConfig struct {
	ListenAddr  string
	AuthConfig  AuthConfig
	RateLimit   RateLimitConfig
	CORSOrigins string
	TLSCert     string
	TLSKey      string
}

// Server is the management API Fiber application.
type Server struct {
	app      *fiber.App
	handlers *Handlers
	limiter  *rateLimiter
	logger   zerolog.Logger
	config   ServerConfig
}

// NewServer creates and configures a new management API server.
func NewServer(
	cfg ServerConfig,
	handlers *Handlers,
	metricsCollector *metrics.Metrics,
	logger zerolog.Logger,
) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler(logger),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ReadBufferSize:        8192,
		WriteBufferSize:       8192,
	})

	s := &Server{
		app:      app,
		handlers: handlers,
		logger:   logger.With().Str("component", "mgmt_server").Logger(),
		config:   cfg,
	}

	s.setupMiddleware(cfg, logger, metricsCollector)
	s.setupRoutes(handlers, metricsCollector)

	return s
}

func (s *Server) setupMiddleware(cfg ServerConfig, logger zerolog.Logger, metricsCollector *metrics.Metrics) {
	// Recovery middleware
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// Request ID middleware
	s.app.Use(func(c *fiber.Ctx) error {
		_, reqID := requestid.New(c.Context())
		c.Set(requestid.Header, reqID)
		c.Locals("request_id", reqID)
		return c.Next()
	})

	// CORS middleware
	if cfg.CORSOrigins != "" {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CORSOrigins,
			AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
			AllowMethods: "GET, POST, PATCH, DELETE, OPTIONS",
		}))
	}

	// Rate limiter
	if cfg.RateLimit.RPS > 0 {
		s.limiter = newRateLimiter(cfg.RateLimit)
		s.app.Use(s.limiter.middleware())
	}

	// Request duration (labeled by registered route, not raw path)
	if metricsCollector != nil {
		s.app.Use(func(c *fiber.Ctx) error {
			path := c.Path()
			if path == "/healthz" || path == "/readyz" || path == "/metrics" {
				return c.Next()
			}
			start := time.Now()
			err := c.Next()
			metricsCollector.ObserveDuration(c.Route().Path, time.Since(start).Seconds())
			return err
		})
	}

	// Auth middleware
	s.app.Use(NewAuthMiddleware(cfg.AuthConfig, logger))

	// Request logging
	s.app.Use(func(c *fiber.Ctx) error {
		path := c.Path()
		// Skip noisy probe logging
		if path == "/healthz" || path == "/readyz" || path == "/metrics" {
			return c.Next()
		}

		logger.Info().
			Str("method", c.Method()).
			Str("path", path).
			Str("ip", c.IP()).
			Str("request_id", fmt.Sprintf("%v", c.Locals("request_id"))).
			Msg("mgmt api request")

		return c.Next()
	})
}

func (s *Server) setupRoutes(h *Handlers, metricsCollector *metrics.Metrics) {
	// Probe endpoints (no auth required — handled in auth middleware)
	s.app.Get("/healthz", h.Liveness)
	s.app.Get("/readyz", h.Readiness)

	// Prometheus metrics
	if metricsCollector != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(metricsCollector.Handler()))
	} else {
		s.app.Get("/metrics", func(c *fiber.Ctx) error {
			return c.SendString("# No metrics collector configured\n")
		})
	}

	// API v1 routes
	v1 := s.app.Group("/api/v1")

	// Project endpoints
	v1.Post("/projects", requireRole(RoleOperator), h.CreateProject)
	v1.Get("/projects", h.ListProjects)
	v1.Get("/projects/:key", h.GetProject)

	// Proposal endpoints
	v1.Post("/projects/:key/proposals", requireRole(RoleOperator), h.Propose)
	v1.Get("/projects/:key/proposals", h.ListProposals)
	v1.Get("/projects/:key/proposals/:id", h.GetProposal)
	v1.Post("/projects/:key/proposals/:id/apply", requireRole(RoleOperator), h.ApplyProposal)
	v1.Post("/projects/:key/proposals/:id/reject", requireRole(RoleOperator), h.RejectProposal)

	// RAID register endpoints
	v1.Post("/projects/:key/raid", requireRole(RoleOperator), h.AddRaidEntry)
	v1.Get("/projects/:key/raid", h.ListRaidEntries)
	v1.Get("/projects/:key/raid/export", h.ExportRaid)
	v1.Post("/projects/:key/raid/:id/status", requireRole(RoleOperator), h.UpdateRaidStatus)

	// Workflow endpoints
	v1.Get("/projects/:key/workflow", h.GetWorkflow)
	v1.Post("/projects/:key/workflow/transition", requireRole(RoleOperator), h.TransitionPhase)
	v1.Post("/projects/:key/workflow/status", requireRole(RoleAdmin), h.SetProjectStatus)

	// Document & audit endpoints
	v1.Get("/projects/:key/documents", h.ListDocuments)
	v1.Get("/projects/:key/documents/*", h.GetDocument)
	v1.Get("/projects/:key/history", h.GetHistory)
	v1.Get("/projects/:key/audit", h.GetAuditLog)
}

// Start starts the server. Blocks until stopped.
func (s *Server) Start() error {
	addr := s.config.ListenAddr
	if addr == "" {
		addr = ":8090"
	}

	s.logger.Info().Str("addr", addr).Msg("management API server starting")

	if s.config.TLSCert != "" && s.config.TLSKey != "" {
		return s.app.ListenTLS(addr, s.config.TLSCert, s.config.TLSKey)
	}
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("management API server shutting down")
	if s.limiter != nil {
		s.limiter.Close()
	}
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

func customErrorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		logger.Error().
			Err(err).
			Int("status", code).
			Str("path", c.Path()).
			Str("method", c.Method()).
			Msg("unhandled error")

		detail := err.Error()
		// Don't leak internal details
		if code == fiber.StatusInternalServerError {
			detail = "An internal error occurred"
		}

		return c.Status(code).JSON(ProblemDetail{
			Type:     "internal_error",
			Title:    "Internal Server Error",
			Status:   code,
			Detail:   detail,
			Instance: c.Path(),
		})
	}
}
