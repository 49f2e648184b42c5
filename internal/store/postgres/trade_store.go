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

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// InsertIgnore inserts the trade unless its primary key already exists and
// reports whether a new row was written.
func (s *TradeStore) InsertIgnore(ctx context.Context, t domain.Trade) (bool, error) {
	const query = `
		INSERT INTO trades (
			trade_pk, transaction_hash, wallet, condition_id, token_id,
			side, price, size, notional_usd, trade_ts,
			market_slug, market_title, event_slug, outcome
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (trade_pk) DO NOTHING`

	tag, err := s.pool.Exec(ctx, query,
		t.TradePK, nullString(t.TxHash), nullString(t.Wallet), t.ConditionID, t.TokenID,
		string(t.Side), t.Price, t.Size, t.NotionalUSD, t.TradeTS.UTC(),
		nullString(t.MarketSlug), nullString(t.MarketTitle), nullString(t.EventSlug), nullString(t.Outcome),
	)
	if err != nil {
		return false, fmt.Errorf("postgres: insert trade %s: %w", t.TradePK, err)
	}
	return tag.RowsAffected() > 0, nil
}

// LatestTradeTS returns the newest stored trade timestamp, or
// domain.ErrNotFound on an empty table.
func (s *TradeStore) LatestTradeTS(ctx context.Context) (time.Time, error) {
	const query = `SELECT trade_ts FROM trades ORDER BY trade_ts DESC LIMIT 1`

	var ts time.Time
	err := s.pool.QueryRow(ctx, query).Scan(&ts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, domain.ErrNotFound
		}
		return time.Time{}, fmt.Errorf("postgres: latest trade ts: %w", err)
	}
	return ts.UTC(), nil
}

// nullString maps the empty string to SQL NULL.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
