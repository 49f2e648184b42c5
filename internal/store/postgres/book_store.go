package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cwyatt/polywatch/internal/domain"
)

// BookStore implements domain.BookStore using PostgreSQL.
type BookStore struct {
	pool *pgxpool.Pool
}

// NewBookStore creates a BookStore backed by the given connection pool.
func NewBookStore(pool *pgxpool.Pool) *BookStore {
	return &BookStore{pool: pool}
}

// Upsert replaces the stored levels for (token_id, side).
func (s *BookStore) Upsert(ctx context.Context, b domain.OrderBook) error {
	levels, err := json.Marshal(b.Levels)
	if err != nil {
		return fmt.Errorf("postgres: marshal levels: %w", err)
	}

	const query = `
		INSERT INTO orderbook_levels (
			token_id, side, condition_id, levels,
			tick_size, min_order_size, neg_risk, as_of, hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (token_id, side) DO UPDATE SET
			condition_id   = EXCLUDED.condition_id,
			levels         = EXCLUDED.levels,
			tick_size      = EXCLUDED.tick_size,
			min_order_size = EXCLUDED.min_order_size,
			neg_risk       = EXCLUDED.neg_risk,
			as_of          = EXCLUDED.as_of,
			hash           = EXCLUDED.hash`

	_, err = s.pool.Exec(ctx, query,
		b.TokenID, string(b.Side), b.ConditionID, levels,
		b.TickSize, b.MinOrderSize, b.NegRisk, nullTime(b.AsOf), b.Hash,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert book %s/%s: %w", b.TokenID, b.Side, err)
	}
	return nil
}

// Get returns the stored book side, or domain.ErrNotFound.
func (s *BookStore) Get(ctx context.Context, tokenID string, side domain.BookSide) (domain.OrderBook, error) {
	const query = `
		SELECT token_id, side, condition_id, levels,
		       tick_size, min_order_size, neg_risk, as_of, hash
		FROM orderbook_levels
		WHERE token_id = $1 AND side = $2`

	var (
		b         domain.OrderBook
		sideStr   string
		levels    []byte
		tickSize  *float64
		minOrder  *float64
		negRisk   *bool
		asOf      *time.Time
		hash      *string
	)
	err := s.pool.QueryRow(ctx, query, tokenID, string(side)).Scan(
		&b.TokenID, &sideStr, &b.ConditionID, &levels,
		&tickSize, &minOrder, &negRisk, &asOf, &hash,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.OrderBook{}, fmt.Errorf("postgres: book %s/%s: %w", tokenID, side, domain.ErrNotFound)
		}
		return domain.OrderBook{}, fmt.Errorf("postgres: get book %s/%s: %w", tokenID, side, err)
	}

	b.Side = domain.BookSide(sideStr)
	if err := json.Unmarshal(levels, &b.Levels); err != nil {
		return domain.OrderBook{}, fmt.Errorf("postgres: decode levels %s/%s: %w", tokenID, side, err)
	}
	if tickSize != nil {
		b.TickSize = *tickSize
	}
	if minOrder != nil {
		b.MinOrderSize = *minOrder
	}
	if negRisk != nil {
		b.NegRisk = *negRisk
	}
	if asOf != nil {
		b.AsOf = asOf.UTC()
	}
	if hash != nil {
		b.Hash = *hash
	}
	return b, nil
}

// nullTime maps the zero time to SQL NULL.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
