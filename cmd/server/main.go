package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"collabhub/internal/api"
	"collabhub/internal/auth"
	"collabhub/internal/bus"
	"collabhub/internal/config"
	"collabhub/internal/logging"
	"collabhub/internal/room"
	"collabhub/internal/session"
	"collabhub/internal/snapshot"
	"collabhub/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Named("main").Fatal().Err(err).Msg("failed to load config")
	}
	logging.Configure(cfg.LogFormatJSON)
	log := logging.Named("main")

	jaegerShutdown, err := telemetry.InitJaeger("collabhub", cfg.JaegerEndpoint)
	if err != nil {
		log.Warn().Err(err).Msg("failed to initialize jaeger, continuing without tracing")
		jaegerShutdown = func(ctx context.Context) error { return nil }
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := jaegerShutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to shut down jaeger")
		}
	}()

	store := newSnapshotStore(cfg)
	msgBus := bus.New(cfg.BusURL)
	defer msgBus.Close()

	roomCfg := room.Config{
		Debounce:         cfg.RoomDebounce,
		EvictTimeout:     cfg.RoomEvictTimeout,
		AwarenessTimeout: cfg.AwarenessTimeout,
	}
	rooms := room.NewManager(store, msgBus, roomCfg)
	defer rooms.StopAll()

	heartbeat := session.NewHeartbeatScheduler(cfg.HeartbeatInterval)
	hbCtx, hbCancel := context.WithCancel(context.Background())
	defer hbCancel()
	go heartbeat.Run(hbCtx)

	janitor := cron.New()
	if _, err := janitor.AddFunc("@every 1m", rooms.SweepAwareness); err != nil {
		log.Warn().Err(err).Msg("failed to schedule awareness janitor")
	}
	janitor.Start()
	defer janitor.Stop()

	verifier := auth.NewJWTVerifier(cfg.TokenSecret)
	handler := api.NewHandler(verifier, cfg.TokenSecret, rooms)
	router := api.SetupRoutes(handler, heartbeat, cfg.CORSOrigin)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("collaboration hub listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("server forced to shut down")
	}

	log.Info().Msg("shutdown complete")
}

// newSnapshotStore picks the persistence backend from configuration:
// Postgres (optionally Redis-cached) when a DSN is set, otherwise an
// in-memory no-op so the hub still runs for local development.
func newSnapshotStore(cfg *config.Config) snapshot.Store {
	log := logging.Named("main")

	if cfg.SnapshotDSN == "" {
		log.Warn().Msg("SNAPSHOT_DSN not set, running with no persistence")
		return snapshot.NewNullStore()
	}

	store, err := snapshot.NewGormStore(cfg.SnapshotDSN)
	if err != nil {
		log.Error().Err(err).Msg("failed to connect snapshot store, running with no persistence")
		return snapshot.NewNullStore()
	}

	if cfg.SnapshotCacheAddr != "" {
		return snapshot.NewCachedStore(store, cfg.SnapshotCacheAddr)
	}
	return store
}
