package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/TheGojiOG/athena/internal/api"
	"github.com/TheGojiOG/athena/internal/config"
	"github.com/TheGojiOG/athena/internal/database"
	"github.com/TheGojiOG/athena/internal/logging"
	"github.com/TheGojiOG/athena/internal/scheduler"
	"github.com/TheGojiOG/athena/internal/server"
	"github.com/TheGojiOG/athena/internal/store"
	"github.com/TheGojiOG/athena/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := setupLogging(cfg); err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logging.Close()

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		runMigrations(cfg)
		return
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	log.Println("Running database migrations...")
	if err := db.Migrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Migrations completed successfully")

	activityLogger, err := logging.NewActivityLogger(db.DB, filepath.Join(cfg.Storage.DataDir, "logs", "activity"))
	if err != nil {
		log.Fatalf("Failed to initialize activity logger: %v", err)
	}
	defer activityLogger.Close()

	serverStore := store.NewServerStore(db.DB)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Println("Initializing WebSocket hub...")
	hub := websocket.NewHub()
	go hub.Run(ctx)

	lifecycleManager := server.NewLifecycleManager(
		server.NewPathResolver(server.RootsFromConfig(cfg.Storage)),
		server.NewRunner(),
		cfg.Steam,
		cfg.Game,
	)
	lifecycleManager.SetObserver(hub)
	lifecycleManager.SetRecorder(activityLogger)

	updateRunner, err := scheduler.NewUpdateRunner(cfg.Steam, serverStore, lifecycleManager)
	if err != nil {
		log.Fatalf("Failed to initialize update schedule: %v", err)
	}
	if updateRunner != nil {
		updateRunner.Start(ctx)
	}

	log.Println("All components initialized successfully")

	router, shutdownOps := api.SetupRouter(cfg, serverStore, lifecycleManager, activityLogger, hub)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// stops the hub and the update schedule before waiting on operations
	cancel()
	shutdownOps()

	log.Println("Server exited")
}

func setupLogging(cfg *config.Config) error {
	if strings.TrimSpace(cfg.Logging.File) == "" {
		dataDir := cfg.Storage.DataDir
		if dataDir == "" {
			dataDir = "./data"
		}
		cfg.Logging.File = filepath.Join(dataDir, "logs", "athenad.log")
	}
	_, err := logging.Init(cfg.Logging)
	return err
}

func runMigrations(cfg *config.Config) {
	log.Println("Running database migrations...")

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Println("Migrations completed successfully")
}
