package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Tomlord1122/kanban-backend/internal/auth"
	"github.com/Tomlord1122/kanban-backend/internal/cache"
	"github.com/Tomlord1122/kanban-backend/internal/config"
	"github.com/Tomlord1122/kanban-backend/internal/database"
	"github.com/Tomlord1122/kanban-backend/internal/repository"
	"github.com/Tomlord1122/kanban-backend/internal/server"
	"github.com/Tomlord1122/kanban-backend/internal/service"

	_ "github.com/joho/godotenv/autoload"
)

func gracefulShutdown(apiServer *http.Server, dbService database.Service, rdb *redis.Client, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	log.Println("Shutting down gracefully, press Ctrl+C again to force")
	stop() // Allow Ctrl+C to force shutdown

	// In-flight moves get 5 seconds to finish, including any rollback.
	ctxTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctxTimeout); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	if rdb != nil {
		if err := rdb.Close(); err != nil {
			log.Printf("Error closing Redis client: %v", err)
		}
	}

	log.Println("Closing database connection pool...")
	if err := dbService.Close(); err != nil {
		log.Printf("Error closing database connection pool: %v", err)
	} else {
		log.Println("Database connection pool closed.")
	}

	log.Println("Server exiting")

	done <- true
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 1. Database
	dbService, err := database.New(cfg.DB)
	if err != nil {
		log.Fatalf("Failed to open %s database: %v", cfg.DB.Driver, err)
	}

	log.Println("Running database auto-migration...")
	if err := dbService.Migrate(); err != nil {
		log.Fatalf("Failed to auto-migrate database: %v", err)
	}
	log.Println("Database auto-migration complete.")

	// 2. Optional board cache
	opts := service.Options{
		MaxRetries:      uint64(cfg.Move.MaxRetries),
		InitialInterval: cfg.Move.InitialInterval.Duration(),
		MaxInterval:     cfg.Move.MaxInterval.Duration(),
	}
	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		rdb, err = cache.NewClient(cfg.Redis)
		if err != nil {
			log.Fatalf("Failed to connect to Redis at %s: %v", cfg.Redis.Addr, err)
		}
		opts.Cache = cache.NewBoardCache(rdb, cfg.Redis.BoardTTL.Duration())
		log.Printf("Board cache enabled (redis %s, ttl %s)", cfg.Redis.Addr, cfg.Redis.BoardTTL.Duration())
	}

	// 3. Repository and service
	repo := repository.NewGormRepository(dbService.GetDB(), repository.DefaultRetryPolicy())
	boardService := service.NewBoardService(repo, opts)

	// 4. Server
	resolver := auth.NewResolver(cfg.Auth.JWTSecret)
	apiServer := server.NewServer(cfg.HTTP, boardService, dbService, resolver)

	done := make(chan bool, 1)
	go gracefulShutdown(apiServer, dbService, rdb, done)

	log.Printf("Starting server on %s (env %s)", apiServer.Addr, cfg.App.Env)
	err = apiServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("HTTP server ListenAndServe error: %v", err)
	}

	<-done
	log.Println("Graceful shutdown complete.")
}
