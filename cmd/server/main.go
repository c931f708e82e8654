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

	"tasset-backend/internal/app"
	"tasset-backend/internal/config"
	"tasset-backend/internal/db"
	"tasset-backend/internal/handlers"
	"tasset-backend/internal/router"
)

func main() {
	if err := config.LoadConfig(""); err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	db.InitDB()

	container, err := app.InitializeContainer()
	if err != nil {
		log.Fatalf("❌ Failed to initialize services: %v", err)
	}
	defer container.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := container.SettlementService.Start(ctx); err != nil {
		log.Fatalf("❌ Failed to start settlement service: %v", err)
	}

	r := router.SetupRouter(&router.Handlers{
		Auth:      handlers.NewAuthHandler(),
		AdminAuth: handlers.NewAdminAuthHandler(),
		Mint:      handlers.NewMintHandler(container.MintService),
		Redeem:    handlers.NewRedeemHandler(container.RedeemService),
		Admin:     handlers.NewAdminHandler(container.MintService, container.RedeemService),
		WebSocket: handlers.NewWebSocketHandler(container.PushService),
	}, container.Logger)

	addr := fmt.Sprintf("%s:%d", config.AppConfig.Server.Host, config.AppConfig.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Printf("🚀 t-asset backend listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🔧 Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ Forced shutdown: %v", err)
	}
	log.Println("✅ Server stopped")
}
