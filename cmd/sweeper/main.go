package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/lumenart/curator/internal/adapter"
	"github.com/lumenart/curator/internal/config"
	"github.com/lumenart/curator/internal/domain"
	"github.com/lumenart/curator/internal/identity"
	"github.com/lumenart/curator/internal/importer"
	"github.com/lumenart/curator/internal/logger"
	"github.com/lumenart/curator/internal/media"
	mediaprovider "github.com/lumenart/curator/internal/media/provider"
	"github.com/lumenart/curator/internal/normalizer"
	"github.com/lumenart/curator/internal/ratelimit"
	"github.com/lumenart/curator/internal/sources"
	"github.com/lumenart/curator/internal/store"
	"github.com/lumenart/curator/internal/sweeper"
	"github.com/lumenart/curator/internal/tracker"
	"github.com/lumenart/curator/internal/uri"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadSweeperConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "retry-sweeper",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting retry sweeper")

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err))
	}

	// Configure connection pool
	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Connected to database")

	dataStore := store.NewPGStore(db)
	importTracker := tracker.New(dataStore)

	imp, err := buildImporter(ctx, cfg, dataStore, importTracker)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to build import pipeline", zap.Error(err))
	}

	sweep := sweeper.NewRetrySweeper(
		&sweeper.RetrySweeperConfig{
			Interval:    cfg.Sweep.Interval,
			MaxAttempts: cfg.Sweep.MaxAttempts,
			BatchSize:   cfg.Sweep.BatchSize,
		},
		importTracker,
		imp,
		adapter.NewClock(),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := sweep.Start(ctx); err != nil {
			errCh <- err
		}
	}()

	// Wait for interrupt signal to gracefully stop the sweeper
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.ErrorCtx(ctx, err, zap.String("component", sweep.Name()))
	}

	// Create shutdown context with timeout (don't use canceled ctx)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := sweep.Stop(shutdownCtx); err != nil {
		logger.FatalCtx(shutdownCtx, "Sweeper forced to stop", zap.Error(err))
	}
	cancel()

	logger.Info("Retry sweeper stopped")
}

// buildImporter wires the same import pipeline the API server uses so swept
// retries run through identical fetch, normalize and persist semantics.
func buildImporter(ctx context.Context, cfg *config.SweeperConfig, dataStore store.Store, importTracker tracker.Tracker) (importer.Importer, error) {
	httpClient := adapter.NewHTTPClient(30 * time.Second)
	rewriter := uri.NewRewriter(cfg.Media.IPFSGateway)

	limiter := ratelimit.NewLimiter(map[string]ratelimit.ProviderConfig{
		string(domain.SourceOpenSea):  {RequestsPerSecond: 4, Burst: 4},
		string(domain.SourceObjkt):    {RequestsPerSecond: 10, Burst: 10},
		string(domain.SourceTzKT):     {RequestsPerSecond: 10, Burst: 10},
		string(domain.SourceMetadata): {RequestsPerSecond: 20, Burst: 20},
	}, ratelimit.ProviderConfig{RequestsPerSecond: 5, Burst: 5})

	registry := sources.NewRegistry(
		sources.NewOpenSeaAdapter(httpClient, limiter, cfg.Sources.OpenSeaURL, cfg.Sources.OpenSeaAPIKey),
		sources.NewObjktAdapter(httpClient, limiter, cfg.Sources.ObjktURL),
		sources.NewTzKTAdapter(httpClient, limiter, cfg.Sources.TzKTURL),
		sources.NewMetadataAdapter(httpClient, limiter, rewriter),
	)

	var uploader mediaprovider.Provider
	if cfg.Cloudflare.Enabled() {
		cfClient, err := adapter.NewCloudflareClient(cfg.Cloudflare.APIToken)
		if err != nil {
			return nil, fmt.Errorf("failed to create cloudflare client: %w", err)
		}
		uploader = mediaprovider.NewCloudflare(cfClient, &mediaprovider.CloudflareConfig{
			AccountID: cfg.Cloudflare.AccountID,
			APIToken:  cfg.Cloudflare.APIToken,
		})
	} else {
		logger.WarnCtx(ctx, "Cloudflare not configured, media will not be re-hosted")
	}

	return importer.New(
		importer.Config{WorkerPoolSize: cfg.Worker.WorkerPoolSize},
		registry,
		normalizer.New(httpClient, limiter, rewriter),
		media.NewResolver(httpClient, rewriter, uploader, cfg.Media.MaxMediaBytes),
		identity.NewResolver(dataStore),
		dataStore,
		importTracker,
	), nil
}
