package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"flowline/api/internal/apikey"
	"flowline/api/internal/app"
	"flowline/api/internal/archive"
	"flowline/api/internal/cache"
	"flowline/api/internal/config"
	"flowline/api/internal/export"
	"flowline/api/internal/gitrepo"
	"flowline/api/internal/search"
	"flowline/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		log.Fatalf("failed to create repos dir: %v", err)
	}

	pgStore := store.NewPostgresStore(db)
	gitService := gitrepo.New(cfg.ReposDir)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts)

	service := app.NewService(cfg, db, pgStore).
		WithKeys(apikey.NewService(pgStore)).
		WithAuditTrail(gitService).
		WithSearch(searchService).
		WithExporter(export.NewService())

	if strings.TrimSpace(cfg.RedisURL) != "" {
		comparisonCache, err := cache.NewCache(cfg.RedisURL, cfg.CompareCacheTTL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer comparisonCache.Close()
		service.WithCache(comparisonCache)
		log.Printf("Using Redis comparison cache")
	}

	if strings.TrimSpace(cfg.ArchiveEndpoint) != "" {
		uploader, err := archive.New(cfg.ArchiveEndpoint, cfg.ArchiveAccessKey, cfg.ArchiveSecretKey, cfg.ArchiveBucket, cfg.ArchiveUseSSL)
		if err != nil {
			log.Fatalf("object store connection failed: %v", err)
		}
		if err := uploader.EnsureBucket(ctx); err != nil {
			log.Printf("WARNING: snapshot bucket unavailable: %v", err)
		} else {
			service.WithArchive(uploader)
			log.Printf("Snapshot archive enabled (bucket %s)", cfg.ArchiveBucket)
		}
	}

	if err := service.Bootstrap(ctx); err != nil {
		log.Printf("WARNING: bootstrap error (will retry on next restart): %v", err)
	}
	searchService.ReindexAllFromPG(ctx)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Flowline API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
