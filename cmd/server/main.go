package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prudhvinik1/syncboard/internal/config"
	"github.com/prudhvinik1/syncboard/internal/database"
	"github.com/prudhvinik1/syncboard/internal/discovery"
	"github.com/prudhvinik1/syncboard/internal/handlers"
	"github.com/prudhvinik1/syncboard/internal/pubsub"
	"github.com/prudhvinik1/syncboard/internal/repositories"
	"github.com/prudhvinik1/syncboard/internal/services"
)

const reapInterval = 5 * time.Minute

func main() {
	ctx := context.Background()

	godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database connections
	postgresPool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create postgres pool: %v", err)
	}
	defer postgresPool.Close()

	if err := database.EnsureSchema(ctx, postgresPool); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to create redis client: %v", err)
	}
	defer redisClient.Close()

	// Wire the relay
	relay := services.NewRelayService(
		repositories.NewRedisSessionRepository(redisClient),
		repositories.NewRedisPresenceRepository(redisClient, cfg.PresenceTTL),
		repositories.NewPostgresJournalRepository(postgresPool),
		repositories.NewPostgresCheckpointRepository(postgresPool),
		pubsub.NewRedisBroadcaster(redisClient),
		cfg.SessionTTL,
	)

	// Initialize HTTP Server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: handlers.NewRouter(relay),
	}

	// Advertise on the local network
	if cfg.MDNSEnabled {
		port, _ := strconv.Atoi(cfg.ServerPort)
		mdnsServer, err := discovery.Advertise(cfg.MDNSName, port)
		if err != nil {
			log.Printf("mDNS advertisement disabled: %v", err)
		} else {
			defer mdnsServer.Shutdown()
			log.Printf("Advertising %s on port %d", discovery.ServiceType, port)
		}
	}

	// Drop storage of sessions whose TTL ran out
	reapCtx, stopReaper := context.WithCancel(ctx)
	defer stopReaper()
	go reapExpired(reapCtx, relay)

	// graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("Starting server on port %s", cfg.ServerPort)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server stopped gracefully")
}

func reapExpired(ctx context.Context, relay *services.RelayService) {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := relay.ReapExpired(ctx)
			if err != nil {
				log.Printf("Failed to reap expired sessions: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("Reaped %d expired sessions", n)
			}
		}
	}
}
