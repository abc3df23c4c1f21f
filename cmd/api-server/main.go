package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"komgadl/internal/api/handler"
	"komgadl/internal/backup"
	"komgadl/internal/checker"
	"komgadl/internal/config"
	"komgadl/internal/executor"
	"komgadl/internal/extractor"
	"komgadl/internal/followlist"
	"komgadl/internal/mangadex"
	"komgadl/internal/progress"
	"komgadl/internal/ratelimit"
	"komgadl/internal/scheduler"
	"komgadl/internal/series"
	"komgadl/internal/store"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	setupLogging(cfg.LogLevel)

	if err := os.MkdirAll(cfg.ConfigDir, 0755); err != nil {
		log.Fatalf("failed to create config dir: %v", err)
	}

	// Queue store (SQLite + WAL)
	st, err := store.Open(cfg.DatabaseFile)
	if err != nil {
		log.Fatalf("failed to open queue store: %v", err)
	}
	defer st.Close()

	downloads := store.NewDownloadRepository(st.DB())
	chapterURLs := store.NewChapterURLRepository(st.DB())
	configs := store.NewConfigRepository(st.DB())
	pluginLogs := store.NewPluginLogRepository(st.DB())

	// Libraries
	libraries, err := followlist.LoadRegistry(cfg.ConfigDir, cfg.DownloadsDir)
	if err != nil {
		log.Fatalf("failed to load libraries: %v", err)
	}

	// Catalog client behind the shared rate limiter
	limiter := ratelimit.NewLimiter()
	catalog := mangadex.NewClient(cfg.MangaDexAPIURL, cfg.MangaDexAPIKey, cfg.PreferredLanguage, limiter)
	if cfg.RedisURL != "" {
		cache, err := mangadex.NewMetadataCache(cfg.RedisURL, cfg.RedisPassword,
			time.Duration(cfg.CacheTTL)*time.Second)
		if err != nil {
			slog.Warn("metadata cache unavailable, continuing without", "error", err)
		} else {
			defer cache.Close()
			catalog.WithCache(cache)
			slog.Info("metadata cache enabled", "addr", cfg.RedisURL)
		}
	}

	// Extractor
	command, err := extractor.Resolve(cfg.ExtractorCommand)
	if err != nil {
		slog.Warn("extractor not found; downloads will stay pending until it is installed")
	}
	driver := extractor.NewDriver(command, cfg.ChapterTimeout, cfg.SeriesTimeout, cfg.MetadataTimeout)

	// Pipeline
	hub := progress.NewHub()
	materializer := series.NewMaterializer(catalog)
	exec := executor.NewExecutor(downloads, chapterURLs, configs, pluginLogs, catalog, driver, materializer, hub, libraries,
		executor.Options{
			DefaultDownloadsDir: cfg.DownloadsDir,
			ConfigDir:           cfg.ConfigDir,
			PreferredLanguage:   cfg.PreferredLanguage,
		})
	chk := checker.NewChecker(catalog, downloads, chapterURLs, configs, libraries, cfg.PreferredLanguage)
	sched := scheduler.NewScheduler(downloads, configs, exec, driver, chk, libraries)

	backups := backup.NewManager(st, backup.DatabasePath(cfg.DatabaseFile), cfg.BackupsDir())

	// HTTP surface
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	api := router.Group("/api/v1")
	handler.NewDownloadHandler(downloads, configs, exec, sched, libraries, catalog, hub).
		RegisterRoutes(api.Group("/downloads"))
	handler.NewChapterURLHandler(chapterURLs, chk).
		RegisterRoutes(api)
	handler.NewBackupHandler(backups).
		RegisterRoutes(api.Group("/backup"))

	router.GET("/check-conn", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "message": "download pipeline running"})
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched.Start(ctx)
	defer sched.Stop()

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server ListenAndServe error: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}
}

func setupLogging(level string) {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel})))
}
