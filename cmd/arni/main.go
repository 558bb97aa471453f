package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DamienDrash/arni-sub002/internal/app"
	"github.com/DamienDrash/arni-sub002/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx := context.Background()
	result, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer func() {
		if err := result.Cleanup(); err != nil {
			log.Printf("cleanup: %v", err)
		}
	}()

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	result.Engine.Start(runCtx)
	result.Conversations.StartJanitor(runCtx, 30*time.Second)
	go result.Tiers.RunGraphSync(runCtx, cfg.GraphSyncInterval)

	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: result.API.Router(),
	}

	go func() {
		log.Printf("server listening on %s (tenant %s)", cfg.BindAddr, cfg.TenantID)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
