// Package main is the unified entry point for AgentRun. A single binary runs
// the scenario engine, the task scheduler and the HTTP/WebSocket surface with
// shared infrastructure.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agentrun/agentrun/internal/common/config"
	"github.com/agentrun/agentrun/internal/common/httpmw"
	"github.com/agentrun/agentrun/internal/common/logger"
	"github.com/agentrun/agentrun/internal/common/tracing"
	"github.com/agentrun/agentrun/internal/events"
	gateways "github.com/agentrun/agentrun/internal/gateway/websocket"
	historycontroller "github.com/agentrun/agentrun/internal/history/controller"
	historyhandlers "github.com/agentrun/agentrun/internal/history/handlers"
	scenariocontroller "github.com/agentrun/agentrun/internal/scenario/controller"
	scenariohandlers "github.com/agentrun/agentrun/internal/scenario/handlers"
	schedulercontroller "github.com/agentrun/agentrun/internal/scheduler/controller"
	schedulerhandlers "github.com/agentrun/agentrun/internal/scheduler/handlers"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	logger.SetDefault(log)

	log.Info("Starting AgentRun...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Event bus (in-memory, or NATS when configured)
	providedBus, busCleanup, err := events.Provide(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize event bus", zap.Error(err))
	}
	defer func() { _ = busCleanup() }()
	eventBus := providedBus.Bus

	// 4. Storage: MongoDB documents + SQL execution history
	stores, err := openStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer stores.Close(context.Background(), log)

	// 5. Services: scheduler, capabilities, executor, scenario, history
	app := buildServices(cfg, stores, eventBus, log)

	// 6. Seed scenario documents from disk
	if cfg.Scenarios.SeedDir != "" {
		if err := stores.Scenarios.SeedFromDir(ctx, cfg.Scenarios.SeedDir, log); err != nil {
			log.Fatal("Failed to seed scenario documents",
				zap.String("dir", cfg.Scenarios.SeedDir), zap.Error(err))
		}
	}

	// 7. Expire abandoned paused executions in the background
	go func() {
		if err := app.Pauses.RunSweeper(ctx, cfg.Executor.SweepIntervalDuration(), cfg.Executor.PausedTTLDuration()); err != nil {
			log.Error("Pause sweeper stopped", zap.Error(err))
		}
	}()

	// 8. Scheduler tick loop
	if cfg.Scheduler.Enabled && cfg.Scheduler.StartAutomatically {
		if err := app.Scheduler.Start(ctx); err != nil {
			log.Fatal("Failed to start scheduler", zap.Error(err))
		}
	}

	// 9. WebSocket gateway
	gateway := gateways.NewGateway(log)
	go gateway.Hub.Run(ctx)
	gateways.RegisterExecutionNotifications(ctx, eventBus, gateway.Hub, log)

	// 10. HTTP router
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(httpmw.RequestLogger(log, "agentrun"))
	router.Use(httpmw.OtelTracing("agentrun"))

	gateway.SetupRoutes(router)

	scenarioCtrl := scenariocontroller.NewController(app.Scenario)
	var answerer scenariohandlers.CallbackAnswerer
	if app.Telegram != nil {
		answerer = app.Telegram
	}
	webhook := scenariohandlers.NewWebhookHandler(app.Scenario, answerer, log)
	scenariohandlers.RegisterRoutes(router, scenarioCtrl, webhook, log)

	schedulerhandlers.RegisterRoutes(router, schedulercontroller.NewController(app.Scheduler), log)
	historyhandlers.RegisterRoutes(router, historycontroller.NewController(app.History), log)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"service":   "agentrun",
			"scheduler": app.Scheduler.IsRunning(),
		})
	})

	// 11. HTTP server
	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	go func() {
		log.Info("HTTP server listening", zap.Int("port", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("API configured",
		zap.String("websocket", "/ws"),
		zap.String("health", "/health"),
		zap.String("http", "/api/v1"),
	)

	// 12. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down AgentRun...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	if app.Scheduler.IsRunning() {
		if err := app.Scheduler.Stop(); err != nil {
			log.Error("Scheduler stop error", zap.Error(err))
		}
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		log.Error("Tracing shutdown error", zap.Error(err))
	}

	log.Info("AgentRun stopped")
}
