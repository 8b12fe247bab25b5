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

	"apotekku/backend/internal/archive"
	archivemem "apotekku/backend/internal/archive/memory"
	archivepg "apotekku/backend/internal/archive/postgres"
	"apotekku/backend/internal/cache"
	"apotekku/backend/internal/config"
	"apotekku/backend/internal/httpapi"
	"apotekku/backend/internal/session"
	"apotekku/backend/internal/upstream"
	upstreammem "apotekku/backend/internal/upstream/memory"
	"apotekku/backend/internal/upstream/remote"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 2)

	var archiveStore archive.Store
	if cfg.DatabaseURL != "" {
		pg, err := archivepg.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		archiveStore = pg
		closers = append(closers, pg.Close)
		log.Println("archive: postgres")
	} else {
		archiveStore = archivemem.NewSeeded()
		log.Println("archive: in-memory")
	}

	var catalog upstream.Catalog
	var ledger upstream.SaleLedger
	var writer upstream.LedgerWriter
	if cfg.UpstreamBaseURL != "" {
		client := remote.New(cfg.UpstreamBaseURL)
		catalog, ledger, writer = client, client, client
		log.Printf("upstream: %s", cfg.UpstreamBaseURL)
	} else {
		seeded := upstreammem.NewSeeded()
		catalog, ledger, writer = seeded, seeded, seeded
		log.Println("upstream: in-memory (dev mode)")
	}

	lookupCache := cache.LookupCache(cache.NoopLookupCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisLookupCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop cache", err)
		} else {
			lookupCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("cache: redis")
		}
	} else {
		log.Println("cache: noop")
	}

	sessions := session.NewManager(catalog, ledger, writer, time.Duration(cfg.SessionTTLMinutes)*time.Minute)
	defer sessions.Close()

	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, archiveStore)
	api := httpapi.New(sessions, catalog, archiveStore, lookupCache, time.Duration(cfg.LookupCacheTTLSeconds)*time.Second, auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("returns backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}
