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

	"github.com/joho/godotenv"

	"github.com/rawblock/qsweep-engine/internal/api"
	"github.com/rawblock/qsweep-engine/internal/audit"
	"github.com/rawblock/qsweep-engine/internal/bitcoin"
	"github.com/rawblock/qsweep-engine/internal/db"
	"github.com/rawblock/qsweep-engine/internal/detect"
	"github.com/rawblock/qsweep-engine/internal/mempool"
	"github.com/rawblock/qsweep-engine/pkg/models"
)

func main() {
	log.Println("Starting RawBlock Quantum Sweep Detection Engine (Microservice: btc-qsweep-analytics)...")

	// .env is a local development convenience, production deployments
	// inject real environment variables.
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded configuration from .env")
	}

	cfg, err := detect.ConfigFromEnv()
	if err != nil {
		log.Fatalf("FATAL: Invalid detection configuration: %v", err)
	}

	dbUrl := requireEnv("DATABASE_URL")

	dbConn, err := db.Connect(dbUrl)
	if err != nil {
		log.Printf("Warning: Failed to connect to PostgreSQL, continuing without persisting detection data. Error: %v", err)
		dbConn = nil
	} else {
		defer dbConn.Close()
		if err := dbConn.InitSchema(); err != nil {
			log.Printf("Warning: DB schema init failed: %v", err)
		}
	}

	// Interface wiring stays untyped-nil when the database is down so
	// the engine's nil checks keep working.
	var store detect.Store
	var recorder audit.Recorder
	if dbConn != nil {
		store = dbConn
		recorder = dbConn
	}
	auditLog := audit.New(recorder)

	// Setup WebSocket Hub
	wsHub := api.NewHub()
	go wsHub.Run()

	dispatcher := detect.NewAlertDispatcher(api.BroadcastThreatAlert(wsHub))
	if webhookURL := os.Getenv("ALERT_WEBHOOK_URL"); webhookURL != "" {
		dispatcher.RegisterWebhook("ops", webhookURL, models.ThreatHigh, nil)
		log.Printf("Registered ops webhook for HIGH+ threat alerts")
	}

	monitor := detect.NewMonitor(cfg, store, auditLog, dispatcher)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	go monitor.Run(ctx)

	// The Bitcoin node connection is optional: without it the engine
	// still serves the HTTP analysis API, it just has no live feed.
	if host := os.Getenv("BTC_RPC_HOST"); host != "" {
		btcCfg := bitcoin.Config{
			Host: host,
			User: requireEnv("BTC_RPC_USER"),
			Pass: requireEnv("BTC_RPC_PASS"),
		}
		btcClient, err := bitcoin.NewClient(btcCfg)
		if err != nil {
			log.Printf("Warning: Failed to connect to Bitcoin RPC: %v", err)
		} else {
			defer btcClient.Shutdown()
			poller := mempool.NewPoller(btcClient, monitor, wsHub)
			go poller.Run(ctx)
		}
	} else {
		log.Println("BTC_RPC_HOST not set, running without live mempool feed")
	}

	// Setup the Gin Router
	r := api.SetupRouter(monitor, dispatcher, dbConn, wsHub)

	port := getEnvOrDefault("PORT", "5341")
	srv := &http.Server{Addr: ":" + port, Handler: r}

	go func() {
		log.Printf("Engine running on :%s (API Node: btc-qsweep-analytics)\n", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutdown signal received, draining...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Warning: HTTP server shutdown: %v", err)
	}
	log.Println("Engine stopped")
}

// requireEnv reads a required environment variable and exits if it is not set.
// This prevents the binary from starting with missing critical configuration.
func requireEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatalf("FATAL: Required environment variable %s is not set. "+
			"Copy .env.example to .env and fill in your values: cp .env.example .env", key)
	}
	return val
}

// getEnvOrDefault returns the env var value or a safe default for non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
