package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"peerprep-matching/internal/api"
	"peerprep-matching/internal/api/handlers"
	"peerprep-matching/internal/config"
	"peerprep-matching/internal/confirm"
	"peerprep-matching/internal/matching"
	"peerprep-matching/internal/sessions"
	"peerprep-matching/internal/storage"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
)

func main() {
	godotenv.Load()
	cfg := config.Load()
	ctx := context.Background()

	// Initialize storage
	store, err := storage.NewStorage(ctx, cfg.Database.URL, cfg.Redis.URL)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	// Run database migrations
	if err := store.DB.RunMigrations(ctx); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// The matching engine is pure process memory: a restart drops all
	// in-flight sessions and clients re-issue start.
	engine := matching.NewEngine()

	redisOpt, err := confirm.RedisOptFromURL(cfg.Redis.URL)
	if err != nil {
		log.Fatalf("Invalid Redis URL: %v", err)
	}

	taskClient := asynq.NewClient(redisOpt)
	defer taskClient.Close()

	confirmService := confirm.NewService(engine, store.DB, store.Redis, taskClient, cfg.Matching.ReadyWindow)

	processor := confirm.NewProcessor(confirmService, redisOpt, cfg.Matching.TaskConcurrency)
	if err := processor.Start(); err != nil {
		log.Fatalf("Failed to start confirmation processor: %v", err)
	}
	defer processor.Stop()

	// Initialize WebSocket manager
	wsManager := sessions.NewWSManager(store)

	// Initialize handlers and router
	matchingHandler := handlers.NewMatchingHandler(engine, confirmService, store.DB)
	deps := &api.Dependencies{
		Storage:         store,
		MatchingHandler: matchingHandler,
		WSManager:       wsManager,
	}
	r := api.NewRouter(deps)

	// Server setup
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
