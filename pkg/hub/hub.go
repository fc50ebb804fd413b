// Package hub assembles and runs the AI hub server: config, database,
// providers, services, HTTP surface, and the background scheduler.
package hub

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/pprof"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/mfcastro/aihub/internal/api"
	"github.com/mfcastro/aihub/internal/config"
	"github.com/mfcastro/aihub/internal/models"
	"github.com/mfcastro/aihub/internal/providers"
	"github.com/mfcastro/aihub/internal/registry"
	"github.com/mfcastro/aihub/internal/services/auth"
	"github.com/mfcastro/aihub/internal/services/circuitbreaker"
	"github.com/mfcastro/aihub/internal/services/database"
	"github.com/mfcastro/aihub/internal/services/guard"
	"github.com/mfcastro/aihub/internal/services/imagegen"
	"github.com/mfcastro/aihub/internal/services/ledger"
	"github.com/mfcastro/aihub/internal/services/relay"
	"github.com/mfcastro/aihub/internal/services/request"
	"github.com/mfcastro/aihub/internal/services/response"
	"github.com/mfcastro/aihub/internal/services/scheduler"
	"github.com/mfcastro/aihub/internal/services/sessions"
	"github.com/mfcastro/aihub/internal/services/transcribe"
	"github.com/mfcastro/aihub/internal/services/usagelog"
	"github.com/mfcastro/aihub/internal/services/users"
)

// Hub is one server instance.
type Hub struct {
	config *config.Config
	app    *fiber.App
	db     *database.DB
	redis  *redis.Client
}

func New(cfg *config.Config) *Hub {
	if cfg == nil {
		panic("config cannot be nil - use config.LoadFromFile to create one")
	}
	return &Hub{config: cfg}
}

// Run starts the server and blocks until shutdown.
func (h *Hub) Run() error {
	if err := h.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	setupLogLevel(h.config)

	port := h.config.Server.Port
	if port == "" {
		port = "8080"
	}
	listenAddr := ":" + port

	dbCfg := models.DatabaseConfig{}
	if h.config.Database != nil {
		dbCfg = *h.config.Database
	}
	db, err := database.New(dbCfg)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	h.db = db
	defer func() {
		if err := h.db.Close(); err != nil {
			fiberlog.Errorf("Failed to close database connection: %v", err)
		}
	}()
	if err := h.db.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	redisClient, err := createRedisClient(h.config)
	if err != nil {
		return err
	}
	h.redis = redisClient
	if h.redis != nil {
		defer func() {
			if err := h.redis.Close(); err != nil {
				fiberlog.Errorf("Failed to close Redis client: %v", err)
			}
		}()
	}

	adapters, err := buildAdapters(h.config, h.redis)
	if err != nil {
		return fmt.Errorf("failed to build provider adapters: %w", err)
	}

	reg := registry.New(h.config.Catalog)
	ledgerSvc := ledger.NewService(h.db.DB)
	usageSvc := usagelog.NewService(h.db.DB)
	sessionSvc := sessions.NewService(h.db.DB)
	userSvc := users.NewService(h.db.DB)
	authSvc := auth.NewService(h.db.DB, h.config.Server.JWTSecret)
	relaySvc := relay.NewService(adapters, reg, ledgerSvc, usageSvc, sessionSvc)

	var transcribeSvc *transcribe.Service
	if h.config.Backends.Whisper.BaseURL != "" {
		transcribeSvc = transcribe.NewService(h.config.Backends.Whisper, guard.FromConfig(h.config.Backends.Whisper))
	}
	var imageSvc *imagegen.Service
	if h.config.Backends.ImageGen.BaseURL != "" {
		imageSvc = imagegen.NewService(h.config.Backends.ImageGen, guard.FromConfig(h.config.Backends.ImageGen))
	}

	h.app = createFiberApp(h.config)
	setupMiddleware(h.app, h.config)
	h.registerRoutes(authSvc, relaySvc, sessionSvc, userSvc, usageSvc, ledgerSvc, reg, transcribeSvc, imageSvc, adapters)

	resetScheduler := scheduler.NewUsageResetScheduler(ledgerSvc, 0)
	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	defer stopScheduler()
	go resetScheduler.Start(schedulerCtx)
	defer resetScheduler.Stop()

	fiberlog.Infof("AI hub starting on %s (environment: %s)", listenAddr, h.config.Server.Environment)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		if err := h.app.Listen(listenAddr); err != nil {
			serverErrChan <- err
		}
	}()

	select {
	case sig := <-sigChan:
		fiberlog.Infof("Received signal: %v. Starting graceful shutdown...", sig)
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	}

	if err := h.app.ShutdownWithTimeout(30 * time.Second); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	fiberlog.Info("Server shutdown completed")
	return nil
}

func (h *Hub) registerRoutes(
	authSvc *auth.Service,
	relaySvc *relay.Service,
	sessionSvc *sessions.Service,
	userSvc *users.Service,
	usageSvc *usagelog.Service,
	ledgerSvc *ledger.Service,
	reg *registry.Registry,
	transcribeSvc *transcribe.Service,
	imageSvc *imagegen.Service,
	adapters map[string]providers.Adapter,
) {
	reqSvc := request.NewBaseService()
	respSvc := response.NewBaseService()

	providerNames := make([]string, 0, len(adapters))
	for name := range adapters {
		providerNames = append(providerNames, name)
	}
	ollamaURL := ""
	if ollamaCfg, ok := h.config.Providers["ollama"]; ok {
		ollamaURL = ollamaCfg.BaseURL
	}
	api.NewHealthHandler(h.db, h.redis, ollamaURL, providerNames).RegisterRoutes(h.app)

	userHandler := api.NewUserHandler(reqSvc, respSvc, authSvc, userSvc, usageSvc, reg)

	public := h.app.Group("/api")
	userHandler.RegisterPublicRoutes(public)

	protected := h.app.Group("/api", authSvc.Middleware())
	userHandler.RegisterRoutes(protected)
	api.NewChatHandler(reqSvc, respSvc, relaySvc).RegisterRoutes(protected)
	api.NewSessionHandler(reqSvc, respSvc, sessionSvc).RegisterRoutes(protected)
	api.NewMediaHandler(reqSvc, respSvc, transcribeSvc, imageSvc).RegisterRoutes(protected)
	api.NewAdminHandler(reqSvc, respSvc, userSvc, ledgerSvc, usageSvc).RegisterRoutes(protected)
}

// buildAdapters constructs one adapter per configured provider, each
// wrapped in a Redis circuit breaker when Redis is available.
func buildAdapters(cfg *config.Config, redisClient *redis.Client) (map[string]providers.Adapter, error) {
	adapters, err := providers.Build(cfg.Providers)
	if err != nil {
		return nil, err
	}
	if redisClient == nil {
		return adapters, nil
	}

	guarded := make(map[string]providers.Adapter, len(adapters))
	for name, adapter := range adapters {
		breaker := circuitbreaker.NewForProvider(redisClient, name, circuitbreaker.DefaultConfig())
		guarded[name] = providers.WithBreaker(adapter, breaker)
	}
	return guarded, nil
}

func createFiberApp(cfg *config.Config) *fiber.App {
	isProd := cfg.IsProduction()

	return fiber.New(fiber.Config{
		AppName:           "aihub v1.0",
		EnablePrintRoutes: !isProd,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       5 * time.Minute,
		ReadBufferSize:    8192,
		WriteBufferSize:   8192,
		CaseSensitive:     true,
		ServerHeader:      "aihub",
	})
}

func setupMiddleware(app *fiber.App, cfg *config.Config) {
	isProd := cfg.IsProduction()

	app.Use(recover.New(recover.Config{
		EnableStackTrace: !isProd,
	}))

	app.Use(limiter.New(limiter.Config{
		Max:               300,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
	}))

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	if isProd {
		app.Use(logger.New(logger.Config{
			Format: "${time} ${status} ${method} ${path} ${latency} ${bytesSent}b\n",
			Output: os.Stdout,
		}))
	} else {
		app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path} ${error}\n",
			Output: os.Stdout,
		}))
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowHeaders:     strings.Join([]string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"}, ", "),
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: true,
		MaxAge:           86400,
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
	}))

	if !isProd {
		app.Use(pprof.New())
	}
}

func setupLogLevel(cfg *config.Config) {
	switch cfg.GetNormalizedLogLevel() {
	case "trace":
		fiberlog.SetLevel(fiberlog.LevelTrace)
	case "debug":
		fiberlog.SetLevel(fiberlog.LevelDebug)
	case "info":
		fiberlog.SetLevel(fiberlog.LevelInfo)
	case "warn", "warning":
		fiberlog.SetLevel(fiberlog.LevelWarn)
	case "error":
		fiberlog.SetLevel(fiberlog.LevelError)
	default:
		fiberlog.SetLevel(fiberlog.LevelInfo)
	}
}

func createRedisClient(cfg *config.Config) (*redis.Client, error) {
	if cfg.Redis == nil || cfg.Redis.URL == "" {
		fiberlog.Info("Redis not configured - provider circuit breakers disabled")
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opt.PoolSize = 50
	opt.MinIdleConns = 10
	opt.DialTimeout = 10 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	opt.MaxRetries = 3

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		fiberlog.Warnf("Redis unreachable at startup, circuit breakers will fail open: %v", err)
	}
	return client, nil
}
