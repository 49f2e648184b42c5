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

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

// Upsert inserts or updates a market row keyed by condition id.
func (s *MarketStore) Upsert(ctx context.Context, m domain.Market) error {
	outcomes, err := json.Marshal(m.Outcomes)
	if err != nil {
		return fmt.Errorf("postgres: marshal outcomes: %w", err)
	}
	tokenIDs, err := json.Marshal(m.TokenIDs)
	if err != nil {
		return fmt.Errorf("postgres: marshal token ids: %w", err)
	}

	const query = `
		INSERT INTO markets (
			condition_id, market_id, slug, question,
			outcomes, token_ids, neg_risk, start_time, end_time, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (condition_id) DO UPDATE SET
			market_id  = EXCLUDED.market_id,
			slug       = EXCLUDED.slug,
			question   = EXCLUDED.question,
			outcomes   = EXCLUDED.outcomes,
			token_ids  = EXCLUDED.token_ids,
			neg_risk   = EXCLUDED.neg_risk,
			start_time = EXCLUDED.start_time,
			end_time   = EXCLUDED.end_time,
			updated_at = NOW()`

	_, err = s.pool.Exec(ctx, query,
		m.ConditionID, m.MarketID, m.Slug, m.Question,
		outcomes, tokenIDs, m.NegRisk, m.StartTime, m.EndTime,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert market %s: %w", m.ConditionID, err)
	}
	return nil
}

// GetByCondition returns one market, or domain.ErrNotFound.
func (s *MarketStore) GetByCondition(ctx context.Context, conditionID string) (domain.Market, error) {
	const query = `
		SELECT condition_id, market_id, slug, question,
		       outcomes, token_ids, neg_risk, start_time, end_time, updated_at
		FROM markets
		WHERE condition_id = $1`

	m, err := scanMarket(s.pool.QueryRow(ctx, query, conditionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, fmt.Errorf("postgres: market %s: %w", conditionID, domain.ErrNotFound)
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", conditionID, err)
	}
	return m, nil
}

// ListTracked returns up to limit markets, most recently updated first.
func (s *MarketStore) ListTracked(ctx context.Context, limit int) ([]domain.Market, error) {
	if limit <= 0 {
		limit = 1000
	}
	const query = `
		SELECT condition_id, market_id, slug, question,
		       outcomes, token_ids, neg_risk, start_time, end_time, updated_at
		FROM markets
		ORDER BY updated_at DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	return markets, nil
}

func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m         domain.Market
		marketID  *string
		slug      *string
		question  *string
		outcomes  []byte
		tokenIDs  []byte
		negRisk   *bool
		updatedAt *time.Time
	)
	err := row.Scan(
		&m.ConditionID, &marketID, &slug, &question,
		&outcomes, &tokenIDs, &negRisk, &m.StartTime, &m.EndTime, &updatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}

	if marketID != nil {
		m.MarketID = *marketID
	}
	if slug != nil {
		m.Slug = *slug
	}
	if question != nil {
		m.Question = *question
	}
	if negRisk != nil {
		m.NegRisk = *negRisk
	}
	if updatedAt != nil {
		m.UpdatedAt = updatedAt.UTC()
	}
	if len(outcomes) > 0 {
		if err := json.Unmarshal(outcomes, &m.Outcomes); err != nil {
			return domain.Market{}, fmt.Errorf("decode outcomes: %w", err)
		}
	}
	if len(tokenIDs) > 0 {
		if err := json.Unmarshal(tokenIDs, &m.TokenIDs); err != nil {
			return domain.Market{}, fmt.Errorf("decode token ids: %w", err)
		}
	}
	return m, nil
}
