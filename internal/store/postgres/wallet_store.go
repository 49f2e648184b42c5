package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cwyatt/polywatch/internal/domain"
)

// WalletStore implements domain.WalletStore using PostgreSQL.
type WalletStore struct {
	pool *pgxpool.Pool
}

// NewWalletStore creates a WalletStore backed by the given connection pool.
func NewWalletStore(pool *pgxpool.Pool) *WalletStore {
	return &WalletStore{pool: pool}
}

// Get returns the wallet row, or domain.ErrNotFound.
func (s *WalletStore) Get(ctx context.Context, address string) (domain.Wallet, error) {
	const query = `
		SELECT wallet, first_seen_at, last_seen_at,
		       first_trade_ts, tracked_until, lifetime_notional_usd
		FROM wallets
		WHERE wallet = $1`

	var w domain.Wallet
	err := s.pool.QueryRow(ctx, query, address).Scan(
		&w.Address, &w.FirstSeenAt, &w.LastSeenAt,
		&w.FirstTradeTS, &w.TrackedUntil, &w.LifetimeNotionalUSD,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Wallet{}, fmt.Errorf("postgres: wallet %s: %w", address, domain.ErrNotFound)
		}
		return domain.Wallet{}, fmt.Errorf("postgres: get wallet %s: %w", address, err)
	}
	w.FirstSeenAt = w.FirstSeenAt.UTC()
	w.LastSeenAt = w.LastSeenAt.UTC()
	return w, nil
}

// Upsert writes the wallet row, replacing all mutable fields.
func (s *WalletStore) Upsert(ctx context.Context, w domain.Wallet) error {
	const query = `
		INSERT INTO wallets (
			wallet, first_seen_at, last_seen_at,
			first_trade_ts, tracked_until, lifetime_notional_usd
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (wallet) DO UPDATE SET
			last_seen_at          = EXCLUDED.last_seen_at,
			first_trade_ts        = COALESCE(wallets.first_trade_ts, EXCLUDED.first_trade_ts),
			tracked_until         = EXCLUDED.tracked_until,
			lifetime_notional_usd = EXCLUDED.lifetime_notional_usd`

	_, err := s.pool.Exec(ctx, query,
		w.Address, w.FirstSeenAt.UTC(), w.LastSeenAt.UTC(),
		w.FirstTradeTS, w.TrackedUntil, w.LifetimeNotionalUSD,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert wallet %s: %w", w.Address, err)
	}
	return nil
}

// CountFirstSeenSince counts wallets first observed at or after since.
func (s *WalletStore) CountFirstSeenSince(ctx context.Context, since time.Time) (int64, error) {
	const query = `SELECT COUNT(*) FROM wallets WHERE first_seen_at >= $1`

	var n int64
	if err := s.pool.QueryRow(ctx, query, since.UTC()).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count wallets: %w", err)
	}
	return n, nil
}
