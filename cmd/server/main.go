package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"playback-controller/internal/engine"
	"playback-controller/internal/platform/config"
	"playback-controller/internal/platform/logger"
	"playback-controller/internal/platform/metrics"
	"playback-controller/internal/player"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")

	opts := player.SessionOptions{
		ReconcileInterval: config.GetEnvDuration("RECONCILE_INTERVAL", player.DefaultReconcileInterval),
		ReconcileMaxPolls: config.GetEnvInt("RECONCILE_MAX_POLLS", player.DefaultReconcileMaxPolls),
		RestoreTimeout:    config.GetEnvDuration("RESTORE_TIMEOUT", player.DefaultRestoreTimeout),
	}
	metadataDelay := config.GetEnvDuration("ENGINE_METADATA_DELAY", engine.DefaultMetadataDelay)
	discoveryDelay := config.GetEnvDuration("ENGINE_DISCOVERY_DELAY", engine.DefaultDiscoveryDelay)

	log := logger.New(logLevel, logFormat)

	engines := func(id player.SessionID) player.Engine {
		return engine.NewClock(engine.Options{
			MetadataDelay:  metadataDelay,
			DiscoveryDelay: discoveryDelay,
		})
	}

	repo := player.NewInMemoryRepository()
	met := metrics.New()
	svc := player.NewService(repo, engines, opts, log, met)
	h := player.NewHandler(svc, log)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetActiveSessions(repo.ActiveSessionCount()) }).ServeHTTP(w, r)
	})
	r.Route("/sessions/{session_id}", func(r chi.Router) {
		r.Post("/manifest", h.LoadManifest)
		r.Get("/state", h.GetState)
		r.Get("/qualities", h.GetQualities)
		r.Post("/quality", h.ChangeQuality)
		r.Post("/rate", h.ChangeRate)
		r.Post("/end", h.EndSession)
	})

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"reconcile_interval", opts.ReconcileInterval.String(),
		"reconcile_max_polls", opts.ReconcileMaxPolls,
		"restore_timeout", opts.RestoreTimeout.String(),
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
