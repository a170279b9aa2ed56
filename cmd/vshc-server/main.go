package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/entomo-labs/gdhcn-validator-go/app/internal/blob"
	"github.com/entomo-labs/gdhcn-validator-go/app/internal/config"
	"github.com/entomo-labs/gdhcn-validator-go/app/internal/gdhcn"
	"github.com/entomo-labs/gdhcn-validator-go/app/internal/hcert"
	"github.com/entomo-labs/gdhcn-validator-go/app/internal/logger"
	"github.com/entomo-labs/gdhcn-validator-go/app/internal/server"
	"github.com/entomo-labs/gdhcn-validator-go/app/internal/store"
	"github.com/entomo-labs/gdhcn-validator-go/app/internal/trust"
	"github.com/entomo-labs/gdhcn-validator-go/app/internal/version"
)

// vshc-server issues and validates vaccination status health certificates
// against the GDHCN trust network.
func main() {
	cmd := &cobra.Command{
		Use:   "vshc-server",
		Short: "Vaccination status health certificate service",
		Long:  `vshc-server issues signed health certificates wrapping SMART Health Links and validates presented certificates against the GDHCN trust network`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}

	v := version.Get()
	cmd.Version = fmt.Sprintf("%s (built %s, commit %s)", v.Version, v.BuildDate, v.GitCommit)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.NewServerConfig()
	if err != nil {
		log.Printf("failed to load configuration: %v", err.Error())
		os.Exit(1)
	}

	appLogger := logger.InitLogger(logger.ParseLogLevel(cfg.LogLevel), cfg.Environment)

	appLogger.Info("Configuration loaded",
		slog.String("ENVIRONMENT", cfg.Environment),
		slog.String("HOST", cfg.Host),
		slog.Int("PORT", cfg.Port),
		slog.String("LOG_LEVEL", cfg.LogLevel),
		slog.String("BASE_URL", cfg.BaseURL),
		slog.String("COUNTRY_CODE", cfg.CountryCode),
		slog.String("TNG_BASE_URL", cfg.TNGBaseURL),
		slog.String("BLOB_BACKEND", cfg.BlobBackend),
		slog.Int("MANIFEST_TTL_MINUTES", cfg.ManifestTTLMinutes),
	)

	dbCtx, dbCancel := context.WithTimeout(context.Background(), cfg.DatabasePingTimeout)
	defer dbCancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		appLogger.Error("Failed to parse database URL", slog.String("error", err.Error()))
		os.Exit(1)
	}

	poolConfig.MaxConns = cfg.DBMaxConnections
	poolConfig.MinConns = cfg.DBMinConnections
	poolConfig.MaxConnLifetime = cfg.DBMaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.DBMaxConnIdleTime
	poolConfig.ConnConfig.ConnectTimeout = cfg.DBConnectTimeout

	pool, err := pgxpool.NewWithConfig(dbCtx, poolConfig)
	if err != nil {
		appLogger.Error("Unable to create connection pool", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err = pool.Ping(dbCtx); err != nil {
		appLogger.Error("Error pinging database via pool", slog.String("error", err.Error()))
		os.Exit(1)
	}

	appLogger.Info("connected to PostgreSQL")

	if err := store.Migrate(dbCtx, pool); err != nil {
		appLogger.Error("Failed to run database migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}

	signingKey, err := hcert.LoadSigningKey(cfg.DSCKeyPath)
	if err != nil {
		appLogger.Error("Failed to load signing key",
			slog.String("path", cfg.DSCKeyPath),
			slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		appLogger.Error("Failed to initialize blob store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	resolver := trust.NewResolver(trust.NewTNGClient(cfg.TNGBaseURL, cfg.TNGFetchTimeout), appLogger)

	pgStore := store.NewPostgresStore(pool)
	service := gdhcn.NewService(
		gdhcn.Config{
			BaseURL:     cfg.BaseURL,
			CountryCode: cfg.CountryCode,
			KeyID:       cfg.DSCKeyID,
			ManifestTTL: gdhcn.ManifestTTLFromMinutes(cfg.ManifestTTLMinutes),
		},
		signingKey,
		pgStore,
		pgStore.IpsFiles(),
		pgStore.RecipientKeys(),
		blobs,
		resolver,
		appLogger,
	)

	appLogger.Info("Starting server", slog.String("version", version.Get().Version))

	srv, err := server.NewServer(pool, cfg, appLogger, service, &signingKey.PublicKey)
	if err != nil {
		appLogger.Error("Failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	defer srv.DatabaseShutdown()

	if err := srv.Start(ctx); err != nil {
		appLogger.Error("Server error", slog.String("error", err.Error()))
		return err
	}

	appLogger.Info("server shutdown complete")
	return nil
}

// newBlobStore selects the document store backend from configuration.
func newBlobStore(ctx context.Context, cfg *config.ServerEnvironment) (blob.Store, error) {
	switch cfg.BlobBackend {
	case "s3":
		return blob.NewS3Store(ctx, blob.S3Config{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
			AccessKeyID:  cfg.S3AccessKeyID,
			SecretKey:    cfg.S3SecretKey,
			UsePathStyle: cfg.S3UsePathStyle,
		})
	case "memory":
		return blob.NewMemoryStore(), nil
	default:
		return blob.NewFSStore(cfg.BlobRoot)
	}
}
