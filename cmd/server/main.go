package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatrelay/internal/config"
	"chatrelay/internal/conversation"
	"chatrelay/internal/handlers"
	"chatrelay/internal/middleware"
	"chatrelay/internal/quota"
	"chatrelay/internal/router"
	"chatrelay/internal/services"
)

func main() {
	log.Println("Starting chatrelay...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize Quota Store ────
	quotaStore, cleanup, err := newQuotaStore(cfg)
	if err != nil {
		log.Fatalf("✗ Quota store initialization failed: %v", err)
	}
	defer cleanup()
	log.Printf("✓ Quota store ready (%s backend, ceiling %d)", cfg.QuotaBackend, cfg.QuotaLimit)

	// ──── Step 3: Initialize Conversation Store ────
	conversations := conversation.NewStore(time.Duration(cfg.SessionTTLMinutes) * time.Minute)
	log.Printf("✓ Conversation store ready (window %d turns, TTL %dm)", cfg.ContextMaxTurns, cfg.SessionTTLMinutes)

	// ──── Step 4: Initialize Inference Client ────
	inference := services.NewInferenceService(
		cfg.HFAPIKey,
		cfg.HFModel,
		services.GenerationParams{
			MaxNewTokens: cfg.HFMaxNewTokens,
			Temperature:  cfg.HFTemperature,
			TopP:         cfg.HFTopP,
		},
		time.Duration(cfg.HFTimeoutSeconds)*time.Second,
		cfg.HFConcurrentReqs,
	)
	log.Printf("✓ Inference client ready (model %s)", cfg.HFModel)

	// ──── Step 5: Start HTTP Server ────
	rateLimiter := middleware.NewRateLimiter(quotaStore, cfg.QuotaLimit)
	chatHandler := handlers.NewChatHandler(conversations, inference, cfg.ContextMaxTurns)

	r := router.New(rateLimiter, chatHandler, cfg.FrontendURL)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ chatrelay ready on http://localhost:%s", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}

func newQuotaStore(cfg *config.Config) (quota.Store, func(), error) {
	switch cfg.QuotaBackend {
	case "redis":
		store, err := quota.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	case "file":
		store := quota.NewFileStore(cfg.QuotaStorePath)
		if err := store.InitializeIfAbsent(); err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown quota backend %q", cfg.QuotaBackend)
	}
}
