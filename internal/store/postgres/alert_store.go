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

// AlertStore implements domain.AlertStore using PostgreSQL.
type AlertStore struct {
	pool *pgxpool.Pool
}

// NewAlertStore creates an AlertStore backed by the given connection pool.
func NewAlertStore(pool *pgxpool.Pool) *AlertStore {
	return &AlertStore{pool: pool}
}

// ListEnabledRules returns enabled rules ascending by priority. Rules whose
// stored document fails validation are skipped rather than failing the
// listing; a bad rule must not stop dispatch.
func (s *AlertStore) ListEnabledRules(ctx context.Context) ([]domain.AlertRule, error) {
	const query = `
		SELECT id, name, priority, enabled, rule, updated_at
		FROM alert_rules
		WHERE enabled
		ORDER BY priority ASC, id ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list alert rules: %w", err)
	}
	defer rows.Close()

	var rules []domain.AlertRule
	for rows.Next() {
		var (
			rule domain.AlertRule
			doc  []byte
		)
		if err := rows.Scan(&rule.ID, &rule.Name, &rule.Priority, &rule.Enabled, &doc, &rule.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan alert rule: %w", err)
		}
		if err := rule.DecodeRuleDoc(doc); err != nil {
			continue
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list alert rules: %w", err)
	}
	return rules, nil
}

// UpsertRule writes a rule keyed by name after validating it.
func (s *AlertStore) UpsertRule(ctx context.Context, rule domain.AlertRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	doc, err := rule.EncodeRuleDoc()
	if err != nil {
		return fmt.Errorf("postgres: encode rule %q: %w", rule.Name, err)
	}

	const query = `
		INSERT INTO alert_rules (name, priority, enabled, rule, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (name) DO UPDATE SET
			priority   = EXCLUDED.priority,
			enabled    = EXCLUDED.enabled,
			rule       = EXCLUDED.rule,
			updated_at = NOW()`

	if _, err := s.pool.Exec(ctx, query, rule.Name, rule.Priority, rule.Enabled, doc); err != nil {
		return fmt.Errorf("postgres: upsert rule %q: %w", rule.Name, err)
	}
	return nil
}

// UpsertAck writes or extends an ack for a notification key.
func (s *AlertStore) UpsertAck(ctx context.Context, ack domain.AlertAck) error {
	const query = `
		INSERT INTO alert_acks (notification_key, acked_until, note)
		VALUES ($1, $2, $3)
		ON CONFLICT (notification_key) DO UPDATE SET
			acked_until = EXCLUDED.acked_until,
			note        = EXCLUDED.note`

	_, err := s.pool.Exec(ctx, query, ack.NotificationKey, ack.AckedUntil.UTC(), nullString(ack.Note))
	if err != nil {
		return fmt.Errorf("postgres: upsert ack %s: %w", ack.NotificationKey, err)
	}
	return nil
}

// IsAcked reports whether an unexpired ack exists for the key.
func (s *AlertStore) IsAcked(ctx context.Context, notificationKey string, now time.Time) (bool, error) {
	const query = `
		SELECT EXISTS(
			SELECT 1 FROM alert_acks
			WHERE notification_key = $1 AND acked_until >= $2
		)`

	var acked bool
	if err := s.pool.QueryRow(ctx, query, notificationKey, now.UTC()).Scan(&acked); err != nil {
		return false, fmt.Errorf("postgres: check ack %s: %w", notificationKey, err)
	}
	return acked, nil
}

// LatestLog returns the most recent audit row for the key, or
// domain.ErrNotFound.
func (s *AlertStore) LatestLog(ctx context.Context, notificationKey string) (domain.AlertLog, error) {
	const query = `
		SELECT id, signal_event_id, channel, notification_key,
		       sent_at, status, severity, error
		FROM alert_log
		WHERE notification_key = $1
		ORDER BY sent_at DESC, id DESC
		LIMIT 1`

	log, err := scanAlertLog(s.pool.QueryRow(ctx, query, notificationKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AlertLog{}, fmt.Errorf("postgres: alert log %s: %w", notificationKey, domain.ErrNotFound)
		}
		return domain.AlertLog{}, fmt.Errorf("postgres: latest alert log %s: %w", notificationKey, err)
	}
	return log, nil
}

// AppendLog writes one audit row.
func (s *AlertStore) AppendLog(ctx context.Context, log domain.AlertLog) error {
	const query = `
		INSERT INTO alert_log (
			signal_event_id, channel, notification_key, sent_at, status, severity, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, query,
		log.SignalEventID, log.Channel, log.NotificationKey,
		log.SentAt.UTC(), string(log.Status), log.Severity, nullString(log.Error),
	)
	if err != nil {
		return fmt.Errorf("postgres: append alert log: %w", err)
	}
	return nil
}

// ListLogsBefore returns audit rows written strictly before the cutoff,
// oldest first.
func (s *AlertStore) ListLogsBefore(ctx context.Context, before time.Time) ([]domain.AlertLog, error) {
	const query = `
		SELECT id, signal_event_id, channel, notification_key,
		       sent_at, status, severity, error
		FROM alert_log
		WHERE sent_at < $1
		ORDER BY sent_at ASC, id ASC`

	rows, err := s.pool.Query(ctx, query, before.UTC())
	if err != nil {
		return nil, fmt.Errorf("postgres: list alert logs: %w", err)
	}
	defer rows.Close()

	var logs []domain.AlertLog
	for rows.Next() {
		log, err := scanAlertLog(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan alert log: %w", err)
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list alert logs: %w", err)
	}
	return logs, nil
}

func scanAlertLog(row pgx.Row) (domain.AlertLog, error) {
	var (
		log      domain.AlertLog
		status   string
		severity *int
		errText  *string
	)
	err := row.Scan(
		&log.ID, &log.SignalEventID, &log.Channel, &log.NotificationKey,
		&log.SentAt, &status, &severity, &errText,
	)
	if err != nil {
		return domain.AlertLog{}, err
	}
	log.SentAt = log.SentAt.UTC()
	log.Status = domain.AlertStatus(status)
	if severity != nil {
		log.Severity = *severity
	}
	if errText != nil {
		log.Error = *errText
	}
	return log, nil
}
