package s3blob

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/cwyatt/polywatch/internal/domain"
)

type fakeSignalArchiveStore struct {
	events []domain.SignalEvent
}

func (s *fakeSignalArchiveStore) ListBefore(ctx context.Context, before time.Time) ([]domain.SignalEvent, error) {
	var out []domain.SignalEvent
	for _, ev := range s.events {
		if ev.CreatedAt.Before(before) {
			out = append(out, ev)
		}
	}
	return out, nil
}

type fakeAlertLogArchiveStore struct {
	rows []domain.AlertLog
}

func (s *fakeAlertLogArchiveStore) ListLogsBefore(ctx context.Context, before time.Time) ([]domain.AlertLog, error) {
	var out []domain.AlertLog
	for _, row := range s.rows {
		if row.SentAt.Before(before) {
			out = append(out, row)
		}
	}
	return out, nil
}

type fakeBlobWriter struct {
	paths        []string
	contentTypes []string
	payloads     [][]byte
}

func (w *fakeBlobWriter) Put(ctx context.Context, path string, data []byte, contentType string) error {
	w.paths = append(w.paths, path)
	w.contentTypes = append(w.contentTypes, contentType)
	w.payloads = append(w.payloads, data)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestArchiveSignalsWritesJSONL(t *testing.T) {
	cutoff := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	signals := &fakeSignalArchiveStore{events: []domain.SignalEvent{
		{ID: 1, Type: domain.SignalArbBuyBoth, DedupeKey: "a", CreatedAt: cutoff.Add(-48 * time.Hour), Severity: 3},
		{ID: 2, Type: domain.SignalLargeTakerTrade, DedupeKey: "b", CreatedAt: cutoff.Add(-time.Hour), Severity: 2},
		{ID: 3, Type: domain.SignalLargeTakerTrade, DedupeKey: "c", CreatedAt: cutoff.Add(time.Hour), Severity: 2},
	}}
	writer := &fakeBlobWriter{}

	arch := NewArchiver(writer, signals, &fakeAlertLogArchiveStore{}, testLogger())

	count, err := arch.ArchiveSignals(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ArchiveSignals: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
	if len(writer.paths) != 1 {
		t.Fatalf("uploads = %d, want 1", len(writer.paths))
	}
	if got, want := writer.paths[0], "archive/signal_events/2025-03.jsonl"; got != want {
		t.Errorf("path = %q, want %q", got, want)
	}
	if got, want := writer.contentTypes[0], "application/x-ndjson"; got != want {
		t.Errorf("content type = %q, want %q", got, want)
	}
	lines := strings.Split(strings.TrimRight(string(writer.payloads[0]), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("jsonl lines = %d, want 2", len(lines))
	}
}

func TestArchiveSignalsEmptySkipsUpload(t *testing.T) {
	writer := &fakeBlobWriter{}
	arch := NewArchiver(writer, &fakeSignalArchiveStore{}, &fakeAlertLogArchiveStore{}, testLogger())

	count, err := arch.ArchiveSignals(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ArchiveSignals: %v", err)
	}
	if count != 0 {
		t.Fatalf("count = %d, want 0", count)
	}
	if len(writer.paths) != 0 {
		t.Fatalf("expected no uploads, got %d", len(writer.paths))
	}
}

func TestArchiveAlertLogPath(t *testing.T) {
	cutoff := time.Date(2024, 12, 15, 0, 0, 0, 0, time.UTC)
	logs := &fakeAlertLogArchiveStore{rows: []domain.AlertLog{
		{ID: 7, SignalEventID: 1, Channel: "slack", NotificationKey: "LARGE_TAKER_TRADE:0xabc", SentAt: cutoff.Add(-time.Minute), Status: domain.AlertSent, Severity: 3},
	}}
	writer := &fakeBlobWriter{}
	arch := NewArchiver(writer, &fakeSignalArchiveStore{}, logs, testLogger())

	count, err := arch.ArchiveAlertLog(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ArchiveAlertLog: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
	if got, want := writer.paths[0], "archive/alert_log/2024-12.jsonl"; got != want {
		t.Errorf("path = %q, want %q", got, want)
	}
}
