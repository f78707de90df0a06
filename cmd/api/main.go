package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/relaymesh/server/internal/account"
	"github.com/relaymesh/server/internal/auth"
	"github.com/relaymesh/server/internal/cache"
	"github.com/relaymesh/server/internal/config"
	"github.com/relaymesh/server/internal/db"
	"github.com/relaymesh/server/internal/external"
	httphandler "github.com/relaymesh/server/internal/http"
	"github.com/relaymesh/server/internal/http/handlers"
	"github.com/relaymesh/server/internal/lock"
	"github.com/relaymesh/server/internal/pending"
	"github.com/relaymesh/server/internal/presence"
	"github.com/relaymesh/server/internal/repo"
)

func main() {
	// Load .env from CWD if present (env vars override)
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	if err := db.RunMigrations(database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	rdb, err := db.OpenRedis(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to open redis: %v", err)
	}
	defer rdb.Close()

	// Stores
	accountRepo := repo.NewAccountRepo(database)
	deletedRepo := repo.NewDeletedAccountRepo(database)
	keyRepo := repo.NewKeyRepo(database)
	messageRepo := repo.NewMessageRepo(database)
	profileRepo := repo.NewProfileRepo(database)
	usernameRepo := repo.NewUsernameRepo(database)

	// Redis-backed services
	accountCache := cache.NewAccountCache(rdb)
	lockManager := lock.NewManager(rdb)
	pendingStore := pending.NewStore(rdb)
	presenceTracker := presence.NewTracker(rdb)

	// Account core
	reclaimManager := account.NewReclaimManager(account.NewRedisLockManager(lockManager), deletedRepo)
	accountManager := account.NewManager(account.Deps{
		Accounts:      accountRepo,
		Cache:         accountCache,
		Reclaim:       reclaimManager,
		Keys:          keyRepo,
		Messages:      messageRepo,
		Profiles:      profileRepo,
		Usernames:     usernameRepo,
		Pending:       pendingStore,
		Presence:      presenceTracker,
		SecureStorage: external.NewSecureStorageClient(cfg.SecureStorageURL),
		SecureBackup:  external.NewSecureBackupClient(cfg.SecureBackupURL),
	})

	// HTTP layer
	jwtService := auth.NewJWTService(cfg.JWTSecret)
	accountHandler := handlers.NewAccountHandler(accountManager, pendingStore, jwtService)
	router := httphandler.NewRouter(accountHandler, jwtService, accountManager)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Printf("Server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
