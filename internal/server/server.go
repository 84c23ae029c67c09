// Package server contains the HTTP handlers for the feed API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"

	"murmur/internal/config"
	"murmur/internal/featureflags"
	"murmur/internal/kv"
	"murmur/internal/middleware"
	"murmur/internal/models"
	"murmur/internal/notifications"
	"murmur/internal/repository"
	"murmur/internal/service"
)

const (
	createPostLimit    = 5
	createCommentLimit = 10
	rateLimitWindow    = time.Minute
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	store          kv.Store
	redis          *redis.Client
	app            *fiber.App
	auth           *middleware.Auth
	promMiddleware *fiberprometheus.FiberPrometheus
	validate       *validator.Validate
	notifier       *notifications.Notifier
	hub            *notifications.Hub
	featureFlags   *featureflags.Manager
	postService    *service.PostService
	commentService *service.CommentService
	feedService    *service.FeedService
}

// NewServer creates a server over an opened store. redisClient may be nil,
// which disables rate limiting and change events.
func NewServer(cfg *config.Config, store kv.Store, redisClient *redis.Client) *Server {
	postRepo := repository.NewPostRepository(store)
	commentRepo := repository.NewCommentRepository(store)
	flags := featureflags.NewManager(cfg.FeatureFlags)

	s := &Server{
		config:         cfg,
		store:          store,
		redis:          redisClient,
		auth:           middleware.NewAuth(cfg.JWTSecret),
		promMiddleware: middleware.InitMetrics("murmur-api"),
		validate:       validator.New(),
		notifier:       notifications.NewNotifier(redisClient),
		hub:            notifications.NewHub(),
		featureFlags:   flags,
		postService:    service.NewPostService(postRepo, commentRepo, flags, service.PostConfig{AnonymousTTL: cfg.AnonymousPostTTL}),
		commentService: service.NewCommentService(commentRepo, postRepo),
		feedService:    service.NewFeedService(postRepo, commentRepo),
	}
	return s
}

// App builds the Fiber application with middleware and routes installed.
func (s *Server) App() *fiber.App {
	if s.app != nil {
		return s.app
	}
	app := fiber.New(fiber.Config{
		AppName:      "murmur",
		ErrorHandler: errorHandler,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	s.app = app
	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return models.RespondWithError(c, fe.Code, err)
	}
	middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
	return models.RespondWithError(c, fiber.StatusInternalServerError, errors.New("internal server error"))
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())

	// CORS runs before anything that can short-circuit so browser clients
	// still receive CORS headers on error responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		MaxAge:       86400,
	}))

	app.Use(helmet.New())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}
	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.StructuredLogger())
	app.Use(s.auth.Identity())
	app.Use(middleware.ContextMiddleware())
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api")
	api.Get("/flags", s.GetFeatureFlags)
	api.Get("/feed", s.GetFeed)

	posts := api.Group("/posts")
	posts.Get("/", s.GetPosts)
	posts.Post("/", middleware.RateLimit(
		s.redis, createPostLimit, rateLimitWindow, "create_post"), s.CreatePost)
	// Define specific /:id/:resource routes BEFORE generic /:id route
	posts.Get("/:id/comments", s.GetComments)
	posts.Post("/:id/comments", middleware.RequireIdentity(), middleware.RateLimit(
		s.redis, createCommentLimit, rateLimitWindow, "create_comment"), s.CreateComment)
	posts.Get("/:id", s.GetPost)
	posts.Put("/:id", middleware.RequireIdentity(), s.UpdatePost)
	posts.Delete("/:id", middleware.RequireIdentity(), s.DeletePost)

	api.Delete("/comments/:id", middleware.RequireIdentity(), s.DeleteComment)

	ws := app.Group("/ws", requireUpgrade)
	ws.Get("/events", s.EventsWebSocket())
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck reports whether the store, and Redis when configured,
// answer a ping.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	storeStatus := "healthy"
	if err := s.store.Ping(ctx); err != nil {
		storeStatus = "unhealthy"
	}

	redisStatus := "unavailable"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if storeStatus != "healthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"store": storeStatus,
			"redis": redisStatus,
		},
		"time": time.Now(),
	})
}

// StartEvents begins relaying published change events to websocket
// streams. Without Redis, streams stay open but receive nothing.
func (s *Server) StartEvents(ctx context.Context) error {
	return s.hub.StartWiring(ctx, s.notifier)
}

// Start serves on the configured port until Shutdown is called.
func (s *Server) Start() error {
	app := s.App()
	if err := s.StartEvents(context.Background()); err != nil {
		middleware.Logger.Warn("change event relay unavailable", slog.String("error", err.Error()))
	}
	middleware.Logger.Info("Server starting", slog.String("port", s.config.Port))
	return app.Listen(":" + s.config.Port)
}

// Shutdown closes event streams and gracefully stops the HTTP server.
// Store and Redis connections are closed by their owner.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Shutdown()
	if s.app == nil {
		return nil
	}
	return s.app.ShutdownWithContext(ctx)
}
