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

	"tokoserba/backend/internal/cache"
	"tokoserba/backend/internal/config"
	"tokoserba/backend/internal/httpapi"
	"tokoserba/backend/internal/service"
	"tokoserba/backend/internal/store"
	"tokoserba/backend/internal/store/memory"
	"tokoserba/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	if err := cfg.ValidateSecurity(); err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers []func() error

	var repo store.Repository
	if cfg.DatabaseURL != "" {
		pg, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		closers = append(closers, pg.Close)
		repo = pg
		log.Printf("store: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Printf("store: in-memory (set DATABASE_URL for postgres)")
	}

	var statsCache cache.DashboardCache = cache.NoopDashboardCache{}
	if cfg.RedisAddr != "" {
		rc := cache.NewRedisDashboardCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rc.Ping(pingCtx)
		cancel()
		if err != nil {
			log.Printf("WARN redis unreachable at %s, dashboard cache disabled: %v", cfg.RedisAddr, err)
			_ = rc.Close()
		} else {
			closers = append(closers, rc.Close)
			statsCache = rc
			log.Printf("cache: redis at %s", cfg.RedisAddr)
		}
	}

	svc := service.New(repo, statsCache, time.Duration(cfg.StatsCacheTTLSeconds)*time.Second)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Printf("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	for _, close := range closers {
		if err := close(); err != nil {
			log.Printf("close: %v", err)
		}
	}
	log.Printf("bye")
}
