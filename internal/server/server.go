// Package server contains HTTP handlers for the fulfillment engine's API.
package server

import (
	"context"
	"fmt"
	"log"
	"time"

	"opsdesk/internal/cache"
	"opsdesk/internal/config"
	"opsdesk/internal/database"
	"opsdesk/internal/featureflags"
	"opsdesk/internal/middleware"
	"opsdesk/internal/models"
	"opsdesk/internal/notifications"
	"opsdesk/internal/repository"
	"opsdesk/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Staff roles recognized by the protected route groups. The engine does not
// manage identities; roles arrive inside the actor's credential.
const (
	RoleReviewer       = "reviewer"
	RoleRuleAdmin      = "rule_admin"
	RoleInventoryClerk = "inventory_clerk"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	requestRepo   repository.RequestRepository
	ruleRepo      repository.RuleRepository
	inventoryRepo repository.InventoryRepository

	notifier     *notifications.Notifier
	featureFlags *featureflags.Manager

	requestService   *service.RequestService
	ruleService      *service.RuleService
	inventoryService *service.InventoryService
	escalation       *service.EscalationService
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	return NewServerWithDeps(cfg, db, cache.GetClient())
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	middleware.InitMiddleware(cfg)

	requestRepo := repository.NewRequestRepository(db)
	ruleRepo := repository.NewRuleRepository(db)
	inventoryRepo := repository.NewInventoryRepository(db)

	prom := middleware.InitMetrics("opsdesk-api")

	server := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: prom,
		requestRepo:    requestRepo,
		ruleRepo:       ruleRepo,
		inventoryRepo:  inventoryRepo,
		featureFlags:   featureflags.NewManager(cfg.FeatureFlags),
	}

	if redisClient != nil {
		server.notifier = notifications.NewNotifier(redisClient)
	}

	server.inventoryService = service.NewInventoryService(db, inventoryRepo, server.notifier)
	router := service.NewRouterService(ruleRepo)
	server.requestService = service.NewRequestService(db, requestRepo, router, server.inventoryService, server.notifier)
	server.ruleService = service.NewRuleService(ruleRepo)
	server.escalation = service.NewEscalationService(requestRepo, server.notifier,
		time.Duration(cfg.EscalationSweepSeconds)*time.Second)

	return server, nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// Context middleware to propagate request ID and actor ID
	app.Use(middleware.ContextMiddleware())

	// Prometheus metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers
	app.Use(helmet.New())

	// Structured logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	if s.config.TracingEnabled {
		app.Use(middleware.TracingMiddleware())
	}

	// CORS middleware runs before middlewares that can short-circuit (e.g.
	// limiter) so browser clients still receive CORS headers on errors.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		// Never rate-limit preflight requests; they are handled by CORS.
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "OpsDesk Metrics Dashboard",
	}))

	// Everything below requires an authenticated actor.
	protected := api.Group("", middleware.AuthRequired)

	// Request lifecycle routes
	requests := protected.Group("/requests")
	requests.Post("/", middleware.RateLimit(
		s.redis, 30, time.Minute, "create_request"), s.CreateRequest)
	requests.Get("/", s.ListRequests)
	// Specific /:id/:resource routes BEFORE generic /:id route
	requests.Post("/:id/transitions", s.ApplyTransition)
	requests.Post("/:id/archive", s.ArchiveRequest)
	requests.Get("/:id/history", s.GetRequestHistory)
	requests.Get("/:id", s.GetRequest)

	// Routing rule administration
	rules := protected.Group("/rules", middleware.RoleRequired(RoleRuleAdmin))
	rules.Post("/", s.CreateRule)
	rules.Get("/", s.ListRules)
	rules.Post("/:id/activate", s.ActivateRule)
	rules.Post("/:id/deactivate", s.DeactivateRule)
	rules.Put("/:id", s.UpdateRule)
	rules.Delete("/:id", s.DeleteRule)
	rules.Get("/:id", s.GetRule)

	// Inventory routes
	inventory := protected.Group("/inventory")
	inventory.Get("/items", s.ListItems)
	inventory.Get("/low-stock", s.LowStockReport)
	inventory.Post("/items", middleware.RoleRequired(RoleInventoryClerk), s.CreateItem)
	inventory.Post("/items/:id/adjustments", middleware.RoleRequired(RoleInventoryClerk), s.AdjustItem)
	inventory.Get("/items/:id/ledger", s.GetItemLedger)
	inventory.Get("/items/:id", s.GetItem)

	// Admin routes
	admin := protected.Group("/admin", middleware.RoleRequired(RoleRuleAdmin))
	admin.Get("/feature-flags", s.GetFeatureFlags)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		// The engine stays functional without Redis; notifications and the
		// quantity cache just switch off.
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// GetFeatureFlags returns the evaluated feature flags for the calling actor.
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	actor := middleware.ActorFromLocals(c)
	return c.JSON(fiber.Map{
		"raw":      s.featureFlags.Raw(),
		"snapshot": s.featureFlags.Snapshot(actor.ID),
	})
}

// StartEscalationSweeper launches the background sweeper when the feature
// flag allows it.
func (s *Server) StartEscalationSweeper(ctx context.Context) {
	if !s.featureFlags.Enabled("escalation_sweeper", models.SystemActorID) {
		middleware.Logger.Info("escalation sweeper disabled by feature flag")
		return
	}
	go s.escalation.Run(ctx)
}

// Start starts the server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	app := fiber.New(fiber.Config{
		AppName: "Request Fulfillment API",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.app = app

	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	s.StartEscalationSweeper(ctx)

	log.Printf("Server starting on port %s...", s.config.Port)
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Stop the sweeper and any subscribers
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			log.Printf("error shutting down HTTP server: %v", err)
		}
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Printf("error closing sql DB: %v", cerr)
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			log.Printf("error closing redis: %v", rerr)
		}
	}

	log.Println("Server shutdown complete")
	return nil
}
