package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lucasnetworkmkt/Mentor-codv/internal/config"
	"github.com/lucasnetworkmkt/Mentor-codv/internal/gateway"
	"github.com/lucasnetworkmkt/Mentor-codv/internal/generate"
	"github.com/lucasnetworkmkt/Mentor-codv/internal/history"
	httpserver "github.com/lucasnetworkmkt/Mentor-codv/internal/httpserver"
	"github.com/lucasnetworkmkt/Mentor-codv/internal/telemetry"
)

// logPoints satisfies the award-call contract without any scoring backend;
// the client keeps its own gamification state.
type logPoints struct{}

func (logPoints) AwardPoints(amount int, reason string) error {
	log.Printf("points: +%d (%s)", amount, reason)
	return nil
}

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()

	logCloser, err := telemetry.InitLogging(cfg.LogDir)
	if err != nil {
		log.Fatalf("init logging: %v", err)
	}
	defer logCloser.Close()

	metrics, shutdownMetrics, err := telemetry.Init(context.Background(), cfg.LogDir)
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer shutdownMetrics()

	store, err := history.Open(cfg.HistoryDBPath)
	if err != nil {
		log.Fatalf("open history store: %v", err)
	}
	defer store.Close()

	gw := gateway.New(cfg.Credentials, gateway.WithRecorder(metrics))
	svc := generate.NewService(gw, cfg.ChatModel, cfg.MapModel)

	srv := httpserver.New(httpserver.Deps{
		Generator: svc,
		Keys:      cfg.Credentials,
		History:   store,
		Points:    logPoints{},
		Metrics:   metrics,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           srv.Router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
}
