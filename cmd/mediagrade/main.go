package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	mediagrade "github.com/gwlsn/mediagrade"
	"github.com/gwlsn/mediagrade/internal/analysis"
	"github.com/gwlsn/mediagrade/internal/api"
	"github.com/gwlsn/mediagrade/internal/browse"
	"github.com/gwlsn/mediagrade/internal/cache"
	"github.com/gwlsn/mediagrade/internal/config"
	"github.com/gwlsn/mediagrade/internal/ffmpeg"
	"github.com/gwlsn/mediagrade/internal/jobs"
	"github.com/gwlsn/mediagrade/internal/logger"
	"github.com/gwlsn/mediagrade/internal/media"
	"github.com/gwlsn/mediagrade/internal/store"
)

// retentionInterval is how often history older than the retention window is purged.
const retentionInterval = 24 * time.Hour

func main() {
	os.Exit(run())
}

// run returns the process exit code so deferred cleanup runs before exit.
func run() int {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to config file (default: ./config/mediagrade.yaml)")
	port := flag.Int("port", 8080, "Port to listen on")
	mediaPath := flag.String("media", "", "Override media path from config")
	score := flag.Bool("score", false, "Score the files given as arguments, print a table and exit")
	importHistory := flag.String("import-history", "", "Import a history export file into the database and exit")
	flag.Parse()

	// Determine config path
	cfgPath := *configPath
	if cfgPath == "" {
		if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
			cfgPath = envPath
		} else {
			cfgPath = "config/mediagrade.yaml"
		}
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Init("info")
		logger.Warn("Could not load config", "path", cfgPath, "error", err)
		cfg = config.DefaultConfig()
	}

	// Override with environment variables
	if envMedia := os.Getenv("MEDIA_PATH"); envMedia != "" {
		cfg.MediaPath = envMedia
	}
	if *mediaPath != "" {
		cfg.MediaPath = *mediaPath
	}
	if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
		cfg.LogLevel = envLevel
	}

	logger.InitWithWriter(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "path", cfgPath, "error", err)
		return 1
	}

	configDir := filepath.Dir(cfgPath)
	if configDir == "." {
		configDir = "config"
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		logger.Warn("Could not create config directory", "error", err)
	}

	scoreCache := openCache(cfg, cfgPath)
	defer scoreCache.Close()

	prober := ffmpeg.NewProber(cfg.FFprobePath)
	service := analysis.NewService(media.NewImageDecoder(cfg.MaxImagePixels), prober, scoreCache, analysis.Options{
		Stride:        cfg.SampleStride,
		MaxDimension:  cfg.MaxAnalysisDimension,
		FallbackScore: cfg.FallbackScore,
		CacheTTL:      cfg.CacheTTL,
	})

	if *score {
		return runScore(service, flag.Args(), cfg.Workers)
	}

	st, err := store.InitStore(configDir)
	if err != nil {
		logger.Error("Failed to initialize store", "error", err)
		return 1
	}
	defer st.Close()

	if *importHistory != "" {
		return runImport(st, *importHistory)
	}

	if _, err := os.Stat(cfg.MediaPath); os.IsNotExist(err) {
		logger.Error("Media path does not exist", "path", cfg.MediaPath)
		return 1
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║                        MEDIAGRADE                         ║")
	fmt.Println("║           Image and video quality scoring server          ║")
	versionLine := fmt.Sprintf("v%s", mediagrade.Version)
	padding := 59 - len(versionLine)
	fmt.Printf("║%*s%s%*s║\n", padding/2, "", versionLine, (padding+1)/2, "")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Media path:   %s\n", cfg.MediaPath)
	fmt.Printf("  Config:       %s\n", cfgPath)
	fmt.Printf("  Database:     %s\n", st.Path())
	fmt.Printf("  Workers:      %d\n", cfg.Workers)
	fmt.Printf("  FFprobe:      %s\n", cfg.FFprobePath)
	if cfg.CacheEnabled {
		fmt.Printf("  Score cache:  %s\n", cfg.GetCacheDir(cfgPath))
	} else {
		fmt.Printf("  Score cache:  (memory)\n")
	}
	fmt.Println()

	// Initialize components
	browser := browse.NewBrowser(prober, cfg.MediaPath)

	queue, err := jobs.NewQueueWithStore(st)
	if err != nil {
		logger.Error("Failed to initialize job queue", "error", err)
		return 1
	}

	recorder := store.NewHistoryRecorder(st, cfg.Username)
	workerPool := jobs.NewWorkerPool(queue, service, recorder, cfg.Workers)

	handler := api.NewHandler(api.Deps{
		Browser:  browser,
		Queue:    queue,
		Pool:     workerPool,
		Analyzer: service,
		Recorder: recorder,
		History:  st,
		Config:   cfg,
		CfgPath:  cfgPath,
	})
	router := api.NewRouter(handler)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go runRetention(ctx, st, handler.RetentionDays)

	workerPool.Start()

	fmt.Printf("  Starting server on port %d\n", *port)
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()
	fmt.Println("─────────────────────────────────────────────────────────────")
	fmt.Printf("  Logging started (level: %s)\n", cfg.LogLevel)
	fmt.Println("─────────────────────────────────────────────────────────────")
	logger.Info("Mediagrade started", "version", mediagrade.Version, "workers", cfg.Workers, "port", *port)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// Request contexts end on shutdown so open SSE streams return
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		fmt.Println("\n  Shutting down...")
		logger.Info("Shutdown signal received")
		workerPool.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			server.Close()
		}
	}()

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err)
		workerPool.Stop()
		return 1
	}

	logger.Info("Server stopped")
	fmt.Println("  Goodbye!")
	return 0
}

// openCache returns the persistent badger cache when enabled, falling back
// to an in-memory cache if it cannot be opened.
func openCache(cfg *config.Config, cfgPath string) cache.Cache {
	if !cfg.CacheEnabled {
		return cache.NewMemoryCache()
	}
	dir := cfg.GetCacheDir(cfgPath)
	c, err := cache.OpenBadgerCache(dir)
	if err != nil {
		logger.Warn("Score cache unavailable, using memory cache", "dir", dir, "error", err)
		return cache.NewMemoryCache()
	}
	return c
}

func runScore(analyzer jobs.Analyzer, paths []string, workers int) int {
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "usage: mediagrade -score FILE...")
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lines, err := scorePaths(ctx, analyzer, paths, workers)
	if err != nil {
		logger.Error("Scoring interrupted", "error", err)
		return 1
	}
	if failed := printScores(os.Stdout, lines); failed > 0 {
		return 1
	}
	return 0
}

func runImport(st *store.SQLiteStore, path string) int {
	f, err := os.Open(path)
	if err != nil {
		logger.Error("Could not open history export", "path", path, "error", err)
		return 1
	}
	defer f.Close()

	n, err := st.ImportHistory(f)
	if err != nil {
		logger.Error("History import failed", "path", path, "error", err)
		return 1
	}
	logger.Info("History imported", "path", path, "records", n)
	return 0
}

// runRetention purges history older than days() at startup and then once per
// retentionInterval. A value of 0 keeps everything.
func runRetention(ctx context.Context, hs store.HistoryStore, days func() int) {
	purge := func() {
		d := days()
		if d <= 0 {
			return
		}
		n, err := hs.DeleteRecordsOlderThan(time.Now().AddDate(0, 0, -d))
		if err != nil {
			logger.Warn("History retention purge failed", "error", err)
			return
		}
		if n > 0 {
			logger.Info("Purged old history", "records", n, "older_than_days", d)
		}
	}

	purge()
	ticker := time.NewTicker(retentionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purge()
		}
	}
}
