// Package main provides the entry point for the freightdesk rate sheet service
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/amirphl/freightdesk/app/bootstrap"
	"github.com/amirphl/freightdesk/app/handlers"
	"github.com/amirphl/freightdesk/app/logging"
	"github.com/amirphl/freightdesk/app/router"
	"github.com/amirphl/freightdesk/config"
	"go.uber.org/zap"
)

// Application represents the main application structure
type Application struct {
	router    *router.FiberRouter
	engine    *bootstrap.Engine
	logger    *zap.Logger
	stopFuncs []func()
}

func main() {
	log.Println("Starting freightdesk...")

	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer app.engine.Close()
	defer func() { _ = app.logger.Sync() }()

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Server starting on %s", address)

		if err := app.router.Start(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-sigChan
	log.Println("Shutting down gracefully...")

	for _, fn := range app.stopFuncs {
		fn()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.router.GetApp().ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// initializeApplication wires storage, the rate engine and the HTTP router
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	engine, err := bootstrap.NewEngine(cfg, logger)
	if err != nil {
		return nil, err
	}

	app := &Application{
		engine: engine,
		logger: logger,
		router: router.NewFiberRouter(cfg,
			handlers.NewRateSheetAdminHandler(engine.Importer, logger.Named("http")),
			handlers.NewRateHandler(engine.Resolver, logger.Named("http")),
			logger.Named("http"),
		),
	}

	app.stopFuncs = append(app.stopFuncs, engine.Cache.StartSweeper(cfg.RateEngine.CacheSweepInterval))
	if engine.Redis != nil {
		app.stopFuncs = append(app.stopFuncs, bootstrap.StartCacheHealthMonitor(engine.Redis, 0, logger.Named("redis")))
	}

	logger.Info("application initialized",
		zap.String("environment", cfg.Deployment.Environment),
		zap.String("version", cfg.Deployment.Version),
		zap.String("cache_store", cfg.RateEngine.CacheStore),
		zap.String("lock_provider", cfg.RateEngine.LockProvider),
		zap.Bool("use_new_engine", cfg.RateEngine.UseNewEngine),
	)
	return app, nil
}
