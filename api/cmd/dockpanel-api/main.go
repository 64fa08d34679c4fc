package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"github.com/iiitkota/dockpanel/api/internal/adapters"
	"github.com/iiitkota/dockpanel/api/internal/api/handlers"
	"github.com/iiitkota/dockpanel/api/internal/api/middleware"
	"github.com/iiitkota/dockpanel/api/internal/api/router"
	"github.com/iiitkota/dockpanel/api/internal/config"
	"github.com/iiitkota/dockpanel/api/internal/core/services"
	"github.com/iiitkota/dockpanel/api/internal/db/postgres"
	"github.com/iiitkota/dockpanel/api/internal/logging"
	"github.com/iiitkota/dockpanel/api/internal/nginx"
	"github.com/iiitkota/dockpanel/api/internal/telemetry"
	"github.com/iiitkota/dockpanel/api/internal/workers"
)

func main() {
	// --- 1. Core Telemetry & Configuration ---
	cfg := config.Load()

	log, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile}, os.Stdout)
	if err != nil {
		slog.Error("FATAL: logger setup failed", "error", err)
		os.Exit(1)
	}
	defer log.Close()
	logger := log.Logger
	slog.SetDefault(logger)
	logger.Info("🚀 Booting DockPanel API...", "env", cfg.Environment)

	// --- 2. Outbound Infrastructure ---
	bootCtx, cancelBoot := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelBoot()

	dbPool, err := postgres.NewPool(bootCtx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("FATAL: DB failed", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := postgres.Migrate(bootCtx, dbPool); err != nil {
		logger.Error("FATAL: schema migration failed", "error", err)
		os.Exit(1)
	}

	sqlDB, err := postgres.NewSQLX(bootCtx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("FATAL: DB failed", "error", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	// 🛡️ The Execution Boundary: only the two configured commands ever run
	nginxCtl, err := adapters.NewNginxAdapter(
		adapters.NewExecRunner(),
		cfg.NginxTestCmd,
		cfg.NginxReloadCmd,
		cfg.NginxCommandTimeout,
		logger,
	)
	if err != nil {
		logger.Error("FATAL: invalid nginx commands", "error", err)
		os.Exit(1)
	}

	// --- 3. Hardened Dependency Injection ---
	// Repositories
	userRepo := postgres.NewUserRepo(dbPool)
	auditRepo := postgres.NewAuditRepository(dbPool)
	serviceRepo := postgres.NewServiceRepository(sqlDB)

	// 🛡️ Global Telemetry Hub (Memory Bus)
	telemetryHub := telemetry.NewHub()

	// Proxy engine
	pipeline := nginx.NewPipeline(
		afero.NewOsFs(),
		cfg.NginxConfigPath,
		cfg.NginxBackupDir,
		nginxCtl,
		nginx.WithEvents(telemetryHub),
		nginx.WithLogger(logger),
	)
	reconciler := nginx.NewReconciler(
		nginx.NewRenderer(cfg.BaseDomain, cfg.NginxTLSSnippet),
		cfg.DefaultClientMaxBodySize,
	)

	// Services
	tokenService := services.NewTokenService(cfg.JWTSecret)
	authService := services.NewAuthService(userRepo, tokenService)
	proxyService := services.NewProxyService(serviceRepo, reconciler, pipeline, auditRepo, logger)

	// Handlers
	authHandler := handlers.NewAuthHandler(authService, cfg.IsProduction())
	proxyHandler := handlers.NewProxyHandler(proxyService)
	domainHandler := handlers.NewServiceDomainHandler(proxyService)
	serviceHandler := handlers.NewServiceHandler(serviceRepo)
	wsHandler := handlers.NewWebSocketHandler(telemetryHub, logger)
	sseHandler := handlers.NewSSEHandler(telemetryHub, logger)
	auditHandler := handlers.NewAuditHandler(auditRepo)
	siteFileReadable := func(context.Context) error {
		_, err := pipeline.Current()
		return err
	}
	healthHandler := handlers.NewHealthHandler(map[string]handlers.HealthCheck{
		"database":     dbPool.Ping,
		"nginx_config": siteFileReadable,
	})

	// --- 4. Background Workers ---
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	authMiddleware := middleware.NewAuthMiddleware(workerCtx, authService, userRepo, logger)
	rbac := middleware.NewRBACMiddleware(userRepo, logger)

	// Upstream Availability Monitor
	upstreamMonitor := workers.NewUpstreamMonitor(pipeline, telemetryHub, logger, cfg.UpstreamMonitorInterval)
	go upstreamMonitor.Start(workerCtx)

	// --- 5. HTTP Gateway ---
	mux := router.NewRouter(router.RouterConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		AuthHandler:    authHandler,
		ProxyHandler:   proxyHandler,
		DomainHandler:  domainHandler,
		ServiceHandler: serviceHandler,
		WSHandler:      wsHandler,
		SSEHandler:     sseHandler,
		AuditHandler:   auditHandler,
		HealthHandler:  healthHandler,
		AuthMiddleware: authMiddleware,
		RBAC:           rbac,
		Logger:         logger,
	})

	// No WriteTimeout: a proxy apply may legitimately take two command timeouts,
	// and the events websocket is long-lived.
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// --- 6. Graceful Exit ---
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("🌐 DockPanel API active", "port", cfg.Port, "nginx_config", cfg.NginxConfigPath)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("CRITICAL: Server crashed", "error", err)
			os.Exit(1)
		}
	}()

	<-stop
	logger.Info("🛑 Shutting down...")
	cancelWorkers() // Stop probes and the limiter janitor first

	// In-flight applies finish on their own; Shutdown waits for their handlers.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*cfg.NginxCommandTimeout+10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("ERROR: Forced shutdown", "error", err)
	}
	logger.Info("✅ DockPanel API shutdown complete.")
}
