package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/user/price-aggregator/internal/app"
	"github.com/user/price-aggregator/internal/delivery/http/handler"
	"github.com/user/price-aggregator/internal/delivery/http/router"
	"github.com/user/price-aggregator/pkg/config"
	"github.com/user/price-aggregator/pkg/logger"
	"github.com/user/price-aggregator/pkg/metrics"
)

func main() {
	// --- Configuration ---
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("could not load config", zap.Error(err))
	}

	// --- Logger ---
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		zap.NewExample().Fatal("could not build logger", zap.Error(err))
	}
	defer log.Sync()

	// --- Metrics ---
	m := metrics.New(prometheus.DefaultRegisterer)

	// --- Service ---
	ctx := context.Background()
	a, err := app.New(ctx, cfg, m, log)
	if err != nil {
		log.Fatal("could not build search service", zap.Error(err))
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("failed to release resources", zap.Error(err))
		}
	}()

	// --- HTTP Server ---
	opts := []handler.Option{
		handler.WithFailures(a.Failures),
		handler.WithDefaultLimit(cfg.DefaultLimit),
	}
	if a.History != nil {
		opts = append(opts, handler.WithHistory(a.History))
	}
	for name, ping := range a.Pings {
		opts = append(opts, handler.WithDependency(name, ping))
	}
	apiHandler := handler.NewHandler(a.Search, log, opts...)
	httpRouter := router.New(apiHandler, router.Config{
		CORSOrigins:    splitOrigins(cfg.CORSOrigins),
		Metrics:        m,
		Gatherer:       prometheus.DefaultGatherer,
		Logger:         log,
		RequestTimeout: a.RequestTimeout,
	})

	server := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     httpRouter,
		ReadTimeout: 5 * time.Second,
		// Outlives the /api timeout so its 504 reaches the client.
		WriteTimeout: a.RequestTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("could not listen on port", zap.String("port", cfg.ServerPort), zap.Error(err))
		}
	}()
	log.Info("server started", zap.String("port", cfg.ServerPort))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	log.Info("server exiting")
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
