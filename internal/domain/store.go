package domain

import (
	"context"
	"time"
)

// BookStore persists orderbook sides keyed by (token id, side).
type BookStore interface {
	Upsert(ctx context.Context, book OrderBook) error
	Get(ctx context.Context, tokenID string, side BookSide) (OrderBook, error)
}

// MarketStore reads market metadata. Rows are populated by the external
// metadata sync; this process only consumes them.
type MarketStore interface {
	Upsert(ctx context.Context, market Market) error
	GetByCondition(ctx context.Context, conditionID string) (Market, error)
	ListTracked(ctx context.Context, limit int) ([]Market, error)
}

// TradeStore persists raw large-trade records.
type TradeStore interface {
	// InsertIgnore inserts the trade unless its primary key already exists.
	// It reports whether a new row was written.
	InsertIgnore(ctx context.Context, trade Trade) (bool, error)
	LatestTradeTS(ctx context.Context) (time.Time, error)
}

// WalletStore persists per-address trading history.
type WalletStore interface {
	Get(ctx context.Context, address string) (Wallet, error)
	Upsert(ctx context.Context, wallet Wallet) error
	CountFirstSeenSince(ctx context.Context, since time.Time) (int64, error)
}

// SignalStore persists signal events with idempotent insertion.
type SignalStore interface {
	// Insert writes the event unless its dedupe key already exists. It
	// reports whether a new row was written; a conflict is not an error.
	Insert(ctx context.Context, event SignalEvent) (bool, error)
	// ListUndispatched returns events with no alert_log row yet, oldest first.
	ListUndispatched(ctx context.Context, limit int) ([]SignalEvent, error)
	// ExistsRecent reports whether any event of the given type exists for the
	// condition at or after since.
	ExistsRecent(ctx context.Context, typ SignalType, conditionID string, since time.Time) (bool, error)
	// ListBefore returns events created strictly before the cutoff.
	ListBefore(ctx context.Context, before time.Time) ([]SignalEvent, error)
}

// AlertStore persists rules, acks, and the dispatch audit log.
type AlertStore interface {
	ListEnabledRules(ctx context.Context) ([]AlertRule, error)
	UpsertRule(ctx context.Context, rule AlertRule) error
	UpsertAck(ctx context.Context, ack AlertAck) error
	// IsAcked reports whether an unexpired ack exists for the key.
	IsAcked(ctx context.Context, notificationKey string, now time.Time) (bool, error)
	// LatestLog returns the most recent log row for the key, or ErrNotFound.
	LatestLog(ctx context.Context, notificationKey string) (AlertLog, error)
	AppendLog(ctx context.Context, log AlertLog) error
	// ListLogsBefore returns log rows written strictly before the cutoff.
	ListLogsBefore(ctx context.Context, before time.Time) ([]AlertLog, error)
}

// JobStore records per-job run bookkeeping.
type JobStore interface {
	RecordStart(ctx context.Context, jobName string, startedAt time.Time) error
	RecordSuccess(ctx context.Context, jobName string, finishedAt time.Time, duration time.Duration) error
	RecordFailure(ctx context.Context, jobName string, failedAt time.Time, duration time.Duration, runErr error) error
}

// LockManager provides cross-process mutual exclusion for batch jobs.
type LockManager interface {
	// Acquire obtains the named lock or returns ErrLockHeld. On success the
	// returned release function must be called; it is safe to call twice.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// BlobWriter uploads archive objects to cold storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
}
