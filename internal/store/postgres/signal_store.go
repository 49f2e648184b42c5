package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cwyatt/polywatch/internal/domain"
)

// SignalStore implements domain.SignalStore using PostgreSQL.
type SignalStore struct {
	pool *pgxpool.Pool
}

// NewSignalStore creates a SignalStore backed by the given connection pool.
func NewSignalStore(pool *pgxpool.Pool) *SignalStore {
	return &SignalStore{pool: pool}
}

// Insert writes the event unless its dedupe key already exists and reports
// whether a new row was written.
func (s *SignalStore) Insert(ctx context.Context, ev domain.SignalEvent) (bool, error) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return false, fmt.Errorf("postgres: marshal signal payload: %w", err)
	}

	const query = `
		INSERT INTO signal_events (
			signal_type, dedupe_key, created_at, severity, wallet, condition_id, payload
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (dedupe_key) DO NOTHING`

	tag, err := s.pool.Exec(ctx, query,
		string(ev.Type), ev.DedupeKey, ev.CreatedAt.UTC(), ev.Severity,
		nullString(ev.Wallet), nullString(ev.ConditionID), payload,
	)
	if err != nil {
		return false, fmt.Errorf("postgres: insert signal %s: %w", ev.DedupeKey, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListUndispatched returns events with no alert_log row yet, oldest first.
func (s *SignalStore) ListUndispatched(ctx context.Context, limit int) ([]domain.SignalEvent, error) {
	if limit <= 0 {
		limit = 500
	}
	const query = `
		SELECT se.id, se.signal_type, se.dedupe_key, se.created_at,
		       se.severity, se.wallet, se.condition_id, se.payload
		FROM signal_events se
		WHERE NOT EXISTS (
			SELECT 1 FROM alert_log al WHERE al.signal_event_id = se.id
		)
		ORDER BY se.created_at ASC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list undispatched signals: %w", err)
	}
	defer rows.Close()
	return scanSignals(rows)
}

// ExistsRecent reports whether any event of the given type exists for the
// condition at or after since.
func (s *SignalStore) ExistsRecent(ctx context.Context, typ domain.SignalType, conditionID string, since time.Time) (bool, error) {
	const query = `
		SELECT EXISTS(
			SELECT 1 FROM signal_events
			WHERE signal_type = $1 AND condition_id = $2 AND created_at >= $3
		)`

	var exists bool
	err := s.pool.QueryRow(ctx, query, string(typ), conditionID, since.UTC()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: check recent signal: %w", err)
	}
	return exists, nil
}

// ListBefore returns events created strictly before the cutoff, oldest first.
func (s *SignalStore) ListBefore(ctx context.Context, before time.Time) ([]domain.SignalEvent, error) {
	const query = `
		SELECT id, signal_type, dedupe_key, created_at,
		       severity, wallet, condition_id, payload
		FROM signal_events
		WHERE created_at < $1
		ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, before.UTC())
	if err != nil {
		return nil, fmt.Errorf("postgres: list signals before %s: %w", before, err)
	}
	defer rows.Close()
	return scanSignals(rows)
}

func scanSignals(rows pgx.Rows) ([]domain.SignalEvent, error) {
	var events []domain.SignalEvent
	for rows.Next() {
		var (
			ev        domain.SignalEvent
			typ       string
			wallet    *string
			condition *string
			payload   []byte
		)
		err := rows.Scan(
			&ev.ID, &typ, &ev.DedupeKey, &ev.CreatedAt,
			&ev.Severity, &wallet, &condition, &payload,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan signal: %w", err)
		}
		ev.Type = domain.SignalType(typ)
		ev.CreatedAt = ev.CreatedAt.UTC()
		if wallet != nil {
			ev.Wallet = *wallet
		}
		if condition != nil {
			ev.ConditionID = *condition
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &ev.Payload); err != nil {
				return nil, fmt.Errorf("postgres: decode signal payload: %w", err)
			}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: scan signals: %w", err)
	}
	return events, nil
}
