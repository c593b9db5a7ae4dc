package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/trade-engine/market-data-server/internal/api"
	"github.com/trade-engine/market-data-server/internal/config"
	"github.com/trade-engine/market-data-server/internal/metrics"
	"github.com/trade-engine/market-data-server/internal/services"
	"github.com/trade-engine/market-data-server/internal/source"
	arrowsrc "github.com/trade-engine/market-data-server/internal/source/arrow"
	parquetsrc "github.com/trade-engine/market-data-server/internal/source/parquet"
)

const defaultConfigPath = "config.yml"

type Application struct {
	cfg    *config.Config
	logger *zap.Logger

	// Components
	metrics  *metrics.Metrics
	executor *services.QueryExecutor
	server   *http.Server
}

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	dumpConfig := flag.String("dump-config", "", "Write the effective configuration to this path and exit")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *dumpConfig != "" {
		if err := cfg.Save(*dumpConfig); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
			os.Exit(1)
		}
		return
	}

	app, err := NewApplication(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		os.Exit(1)
	}
	defer app.logger.Sync()

	if err := app.Run(); err != nil {
		app.logger.Fatal("Application failed", zap.Error(err))
	}
}

// loadConfig tolerates a missing file only for the default path.
func loadConfig(path string) (*config.Config, error) {
	explicit := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			explicit = true
		}
	})
	if !explicit {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	return config.LoadConfig(path, nil)
}

func NewApplication(cfg *config.Config) (*Application, error) {
	logger, err := createLogger(cfg.Application.LogLevel)
	if err != nil {
		return nil, err
	}

	app := &Application{
		cfg:    cfg,
		logger: logger,
	}

	if err := app.initializeComponents(); err != nil {
		return nil, err
	}

	return app, nil
}

func (a *Application) initializeComponents() error {
	a.logger.Info("Initializing components")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.NewMetrics(reg)

	registry := source.Registry{
		parquetsrc.Extension: parquetsrc.NewDecoder(a.logger, nil),
		arrowsrc.Extension:   arrowsrc.NewDecoder(a.logger, nil),
	}
	decoder, err := registry.Lookup(a.cfg.Storage.FileExtension)
	if err != nil {
		return err
	}

	var lister services.DirectoryLister = services.OSLister{}
	if a.cfg.Cache.Enabled {
		lister = services.NewCachedLister(lister, a.cfg.Cache.TTL, a.logger, a.metrics)
		a.logger.Info("Directory listing cache enabled", zap.Duration("ttl", a.cfg.Cache.TTL))
	}

	a.executor = services.NewQueryExecutor(
		a.logger,
		services.NewFileFinder(a.logger, lister),
		decoder,
		services.ExecutorConfig{
			BasePath:      a.cfg.Storage.MarketDataDir,
			FileExtension: a.cfg.Storage.FileExtension,
			BatchSize:     a.cfg.Storage.BatchSize,
		},
		a.metrics,
	)

	routerCfg := api.RouterConfig{AllowedOrigins: a.cfg.CORS.AllowedOrigins}
	if a.cfg.RateLimit.Enabled {
		routerCfg.RateLimiter = api.NewClientRateLimiter(a.cfg.RateLimit.RequestsPerSecond, a.cfg.RateLimit.Burst)
	}
	if a.cfg.Monitoring.Prometheus.Enabled {
		routerCfg.MetricsPath = a.cfg.Monitoring.Prometheus.Path
		routerCfg.MetricsHandler = a.metrics.Handler()
	}

	if a.cfg.Application.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := api.NewMarketDataHandler(a.executor, a.logger, a.cfg.CORS.AllowedOrigins)
	router := api.NewRouter(a.logger, handler, routerCfg)

	a.server = &http.Server{
		Addr:         a.cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  a.cfg.Server.IdleTimeout,
	}

	a.logger.Info("Components initialized successfully")
	return nil
}

func (a *Application) Run() error {
	a.logger.Info("Starting market data server",
		zap.String("address", a.cfg.Server.Address),
		zap.String("market_data_dir", a.cfg.Storage.MarketDataDir),
		zap.String("file_extension", a.cfg.Storage.FileExtension),
		zap.Int("batch_size", a.cfg.Storage.BatchSize))

	if info, err := os.Stat(a.cfg.Storage.MarketDataDir); err != nil || !info.IsDir() {
		a.logger.Warn("Market data directory is not accessible", zap.String("dir", a.cfg.Storage.MarketDataDir), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		a.logger.Info("Shutting down gracefully...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	a.logger.Info("Application stopped")
	return nil
}

func createLogger(level string) (*zap.Logger, error) {
	var config zap.Config

	switch level {
	case "debug":
		config = zap.NewDevelopmentConfig()
	case "warn":
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		config = zap.NewProductionConfig()
	}

	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}

	return config.Build()
}
