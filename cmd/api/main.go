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
	"github.com/lumenart/curator/internal/api/middleware"
	"github.com/lumenart/curator/internal/api/server"
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
	cfg, err := config.LoadAPIConfig(*configFile, *envPath)
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
			"service": "api-server",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting Curator API")

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err))
	}

	// Configure connection pool
	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}
	if err := store.AutoMigrate(db); err != nil {
		logger.FatalCtx(ctx, "Failed to migrate database schema", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Connected to database",
		zap.Int("max_open_conns", cfg.Database.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.Database.MaxIdleConns),
	)

	dataStore := store.NewPGStore(db)

	imp, err := buildImporter(ctx, cfg, dataStore)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to build import pipeline", zap.Error(err))
	}

	// Create server config
	serverConfig := server.Config{
		Debug:        cfg.Debug,
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
		Auth: middleware.AuthConfig{
			JWTPublicKey: cfg.Auth.JWTPublicKey,
			APIKeys:      cfg.Auth.APIKeys,
		},
	}

	// Create and start server
	srv := server.New(serverConfig, dataStore, imp, tracker.New(dataStore))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	case err := <-errCh:
		logger.ErrorCtx(ctx, err, zap.String("component", "server"))
		cancel()
	}

	// Create shutdown context with timeout (don't use canceled ctx)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	logger.InfoCtx(shutdownCtx, "Shutting down server...")

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.FatalCtx(shutdownCtx, "Server forced to shutdown", zap.Error(err))
	}

	logger.Info("API server stopped")
}

// buildImporter wires the source adapters, normalizer, media and identity
// resolvers into an importer backed by the given store.
func buildImporter(ctx context.Context, cfg *config.APIConfig, dataStore store.Store) (importer.Importer, error) {
	httpClient := adapter.NewHTTPClient(30 * time.Second)
	rewriter := uri.NewRewriter(cfg.Media.IPFSGateway)

	// Marketplace APIs throttle aggressively; keep sustained rates well
	// under their published quotas.
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

	// Without Cloudflare credentials media keeps pointing at the upstream
	// URLs instead of being re-hosted.
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
		logger.InfoCtx(ctx, "Media re-hosting enabled", zap.String("provider", uploader.Name()))
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
		tracker.New(dataStore),
	), nil
}
