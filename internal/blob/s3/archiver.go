package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwyatt/polywatch/internal/domain"
)

// Narrow store interfaces required by the archiver. The archiver only needs
// the time-ranged query methods it actually calls, not the full domain store
// interfaces; the Postgres stores satisfy these implicitly.

// SignalArchiveStore provides read access to aged signal events.
type SignalArchiveStore interface {
	// ListBefore returns events created strictly before the cutoff.
	ListBefore(ctx context.Context, before time.Time) ([]domain.SignalEvent, error)
}

// AlertLogArchiveStore provides read access to aged alert audit rows.
type AlertLogArchiveStore interface {
	// ListLogsBefore returns log rows written strictly before the cutoff.
	ListLogsBefore(ctx context.Context, before time.Time) ([]domain.AlertLog, error)
}

// Archiver serialises aged signal events and alert audit rows to JSONL and
// uploads them to cold storage.
//
// Deletion of the archived rows from the primary store is intentionally NOT
// performed here; that is a separate, explicit step to be executed after the
// archive has been verified.
type Archiver struct {
	writer  domain.BlobWriter
	signals SignalArchiveStore
	logs    AlertLogArchiveStore
	logger  *slog.Logger
}

// NewArchiver creates a new Archiver.
func NewArchiver(writer domain.BlobWriter, signals SignalArchiveStore, logs AlertLogArchiveStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:  writer,
		signals: signals,
		logs:    logs,
		logger:  logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveSignals queries all signal events created before the cutoff,
// serialises them to JSONL, and uploads the file at
// archive/signal_events/YYYY-MM.jsonl. The count of archived records is
// returned.
func (a *Archiver) ArchiveSignals(ctx context.Context, before time.Time) (int64, error) {
	events, err := a.signals.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive signals query: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(events)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive signals marshal: %w", err)
	}

	path := archivePath("signal_events", before)
	if err := a.writer.Put(ctx, path, buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive signals upload: %w", err)
	}

	count := int64(len(events))
	a.logger.Info("archived signal events",
		slog.String("path", path),
		slog.Int64("count", count),
		slog.String("before", before.Format(time.RFC3339)))

	return count, nil
}

// ArchiveAlertLog queries all alert audit rows written before the cutoff,
// serialises them to JSONL, and uploads the file at
// archive/alert_log/YYYY-MM.jsonl. The count of archived records is
// returned.
func (a *Archiver) ArchiveAlertLog(ctx context.Context, before time.Time) (int64, error) {
	rows, err := a.logs.ListLogsBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive alert log query: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(rows)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive alert log marshal: %w", err)
	}

	path := archivePath("alert_log", before)
	if err := a.writer.Put(ctx, path, buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive alert log upload: %w", err)
	}

	count := int64(len(rows))
	a.logger.Info("archived alert log rows",
		slog.String("path", path),
		slog.Int64("count", count),
		slog.String("before", before.Format(time.RFC3339)))

	return count, nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/signal_events/2025-01.jsonl
//	archive/alert_log/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
