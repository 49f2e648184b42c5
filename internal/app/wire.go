package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/cwyatt/polywatch/internal/blob/s3"
	"github.com/cwyatt/polywatch/internal/cache/redis"
	"github.com/cwyatt/polywatch/internal/config"
	"github.com/cwyatt/polywatch/internal/domain"
	"github.com/cwyatt/polywatch/internal/platform/polymarket"
	"github.com/cwyatt/polywatch/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency the watcher loops need.
// It is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	MarketStore domain.MarketStore
	BookStore   domain.BookStore
	TradeStore  domain.TradeStore
	WalletStore domain.WalletStore
	SignalStore domain.SignalStore
	AlertStore  domain.AlertStore
	JobStore    domain.JobStore

	// LockManager is nil when Redis is disabled; jobs then run without
	// cross-process exclusion.
	LockManager domain.LockManager

	// Archiver is nil when S3 is disabled.
	Archiver *s3blob.Archiver

	// DataClient fetches taker trades from the Polymarket data API.
	DataClient *polymarket.DataClient
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.MarketStore = postgres.NewMarketStore(pool)
	deps.BookStore = postgres.NewBookStore(pool)
	deps.TradeStore = postgres.NewTradeStore(pool)
	deps.WalletStore = postgres.NewWalletStore(pool)
	deps.SignalStore = postgres.NewSignalStore(pool)
	deps.AlertStore = postgres.NewAlertStore(pool)
	deps.JobStore = postgres.NewJobStore(pool)

	// --- Redis (optional, job locks only) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.LockManager = redis.NewLockManager(redisClient)
	}

	// --- S3 archive storage (optional) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		writer := s3blob.NewWriter(s3Client)
		deps.Archiver = s3blob.NewArchiver(writer, deps.SignalStore, deps.AlertStore, logger)
	}

	// --- Polymarket data API ---
	deps.DataClient = polymarket.NewDataClient(cfg.Polymarket.DataHost)

	return deps, cleanup, nil
}
