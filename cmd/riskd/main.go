package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/jmerrifield20/riskengine/internal/assets/handler"
	"github.com/jmerrifield20/riskengine/internal/assets/repository"
	"github.com/jmerrifield20/riskengine/internal/assets/service"
	"github.com/jmerrifield20/riskengine/internal/directory"
	"github.com/jmerrifield20/riskengine/internal/logging"
	"github.com/jmerrifield20/riskengine/internal/scan"
	"github.com/jmerrifield20/riskengine/internal/staleness"
)

func main() {
	if err := loadConfig(); err != nil {
		fmt.Fprintln(os.Stderr, "riskd:", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{
		Level:      viper.GetString("log.level"),
		Format:     viper.GetString("log.format"),
		Name:       "riskd",
		File:       viper.GetString("log.file"),
		MaxSizeMB:  viper.GetInt("log.max_size_mb"),
		MaxBackups: viper.GetInt("log.max_backups"),
		MaxAgeDays: viper.GetInt("log.max_age_days"),
		Compress:   viper.GetBool("log.compress"),
	})
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("riskd exited with error", zap.Error(err))
	}
}

func loadConfig() error {
	viper.SetConfigName("riskd")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	viper.SetDefault("server.rate_limit_rps", 20)
	viper.SetDefault("database.url", "")
	viper.SetDefault("scan.probe_timeout", "500ms")
	viper.SetDefault("scan.min_host_delay", "400ms")
	viper.SetDefault("scan.max_host_delay", "1s")
	viper.SetDefault("scan.dns_pass_delay", "600ms")
	viper.SetDefault("scan.retention", "10m")
	viper.SetDefault("staleness.interval", "1h")
	viper.SetDefault("staleness.stale_after", "168h")
	viper.SetDefault("directory.enabled", true)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("log.file", "")
	viper.SetDefault("log.max_size_mb", 100)
	viper.SetDefault("log.max_backups", 5)
	viper.SetDefault("log.max_age_days", 28)
	viper.SetDefault("log.compress", true)

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

func run(logger *zap.Logger) error {
	if viper.ConfigFileUsed() == "" {
		logger.Warn("no config file found, using defaults and env vars")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Storage ──────────────────────────────────────────────────────────────
	var (
		assets repository.AssetStore
		scans  repository.ScanStore
	)
	if dsn := viper.GetString("database.url"); dsn != "" {
		db, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer db.Close()

		if err := db.Ping(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		logger.Info("connected to postgres")
		assets = repository.NewAssetRepository(db)
		scans = repository.NewScanRepository(db)
	} else {
		logger.Warn("database.url not set, using in-memory stores; data is lost on restart")
		assets = repository.NewMemoryAssetStore()
		scans = repository.NewMemoryScanStore()
	}

	// ── Wire up layers ────────────────────────────────────────────────────────
	var fixture *directory.Fixture
	svc := service.NewHeartbeatService(assets, logger)
	if viper.GetBool("directory.enabled") {
		fixture = directory.NewFixture()
		svc.SetEnricher(directory.NewEnricher(fixture, logger))
		logger.Info("directory enrichment enabled", zap.String("domain", fixture.Domain()))
	}

	orch := scan.New(assets, scans, scan.Options{
		ProbeTimeout: viper.GetDuration("scan.probe_timeout"),
		MinHostDelay: viper.GetDuration("scan.min_host_delay"),
		MaxHostDelay: viper.GetDuration("scan.max_host_delay"),
		DNSPassDelay: viper.GetDuration("scan.dns_pass_delay"),
		Retention:    viper.GetDuration("scan.retention"),
		OnFinish:     handler.RecordScanFinished,
	}, logger)

	sweeper := staleness.New(assets, assets, staleness.Config{
		Interval:   viper.GetDuration("staleness.interval"),
		StaleAfter: viper.GetDuration("staleness.stale_after"),
	}, logger)
	sweeper.SetMetricsRecord(handler.RecordAssetsMarkedInactive)
	go sweeper.Start(ctx)

	// ── HTTP Router ───────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	corsOrigins := viper.GetStringSlice("server.cors_origins")
	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-User-ID"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !containsWildcard(corsOrigins),
		MaxAge:           12 * time.Hour,
	}))

	router.Use(func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20)
		c.Next()
	})

	if rps := viper.GetInt("server.rate_limit_rps"); rps > 0 {
		router.Use(handler.RateLimiter(ctx, rps, rps*2))
	}
	router.Use(handler.PrometheusMiddleware())
	router.Use(handler.RequestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", handler.MetricsHandler())

	v1 := router.Group("/api/v1")
	handler.NewAssetHandler(svc, logger).Register(v1)
	handler.NewScanHandler(orch, logger).Register(v1)
	if fixture != nil {
		handler.NewDirectoryHandler(fixture, logger).Register(v1)
	}

	port := viper.GetInt("server.port")
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("riskd HTTP listening", zap.Int("port", port))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// ── Graceful shutdown ──────────────────────────────────────────────────────
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("HTTP listen: %w", err)
		}
	}
	logger.Info("shutting down riskd...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Scans are cancelled first so open event streams reach their terminal event.
	if err := orch.Shutdown(shutdownCtx); err != nil {
		logger.Error("scan shutdown error", zap.Error(err))
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	logger.Info("riskd stopped")
	return nil
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}
