package book

import (
	"testing"
	"time"

	"github.com/cwyatt/polywatch/internal/domain"
)

func snap() Book {
	return Book{
		TokenID:     "tok-1",
		ConditionID: "cond-1",
		Bids: []domain.PriceLevel{
			{Price: 0.44, Size: 50},
			{Price: 0.45, Size: 100},
		},
		Asks: []domain.PriceLevel{
			{Price: 0.56, Size: 20},
			{Price: 0.55, Size: 200},
		},
		AsOf: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestApplySnapshotSortsSides(t *testing.T) {
	s := NewStore()
	b := s.ApplySnapshot(snap())

	if b.Bids[0].Price != 0.45 {
		t.Fatalf("bids not descending: %+v", b.Bids)
	}
	if b.Asks[0].Price != 0.55 {
		t.Fatalf("asks not ascending: %+v", b.Asks)
	}
}

func TestApplySnapshotReplacesWholesale(t *testing.T) {
	s := NewStore()
	s.ApplySnapshot(snap())

	second := snap()
	second.Bids = []domain.PriceLevel{{Price: 0.40, Size: 10}}
	b := s.ApplySnapshot(second)

	if len(b.Bids) != 1 || b.Bids[0].Price != 0.40 {
		t.Fatalf("snapshot did not replace bids: %+v", b.Bids)
	}
}

func TestApplyChanges(t *testing.T) {
	s := NewStore()
	s.ApplySnapshot(snap())
	ts := time.Date(2024, 5, 1, 12, 1, 0, 0, time.UTC)

	b, ok := s.ApplyChanges("tok-1", []Change{
		{Side: "BUY", Price: 0.45, Size: 80},  // replace
		{Side: "BUY", Price: 0.44, Size: 0},   // remove
		{Side: "SELL", Price: 0.57, Size: 30}, // insert
	}, ts)
	if !ok {
		t.Fatalf("expected tracked token")
	}

	if len(b.Bids) != 1 || b.Bids[0].Size != 80 {
		t.Fatalf("bids after changes: %+v", b.Bids)
	}
	if len(b.Asks) != 3 || b.Asks[2].Price != 0.57 {
		t.Fatalf("asks after changes: %+v", b.Asks)
	}
	if !b.AsOf.Equal(ts) {
		t.Fatalf("as_of not restamped: %v", b.AsOf)
	}
}

func TestApplyChangesUnknownToken(t *testing.T) {
	s := NewStore()
	if _, ok := s.ApplyChanges("missing", []Change{{Side: "BUY", Price: 0.5, Size: 1}}, time.Now()); ok {
		t.Fatalf("changes for unknown token must be dropped")
	}
}

func TestZeroSizeRemovalOfAbsentPriceIsNoop(t *testing.T) {
	s := NewStore()
	s.ApplySnapshot(snap())

	b, ok := s.ApplyChanges("tok-1", []Change{{Side: "BUY", Price: 0.99, Size: 0}}, time.Now())
	if !ok || len(b.Bids) != 2 {
		t.Fatalf("removal of absent level mutated book: %+v", b.Bids)
	}
}

func TestNegativeSizeRemovesExistingLevel(t *testing.T) {
	s := NewStore()
	s.ApplySnapshot(snap())

	b, ok := s.ApplyChanges("tok-1", []Change{{Side: "SELL", Price: 0.55, Size: -3}}, time.Now())
	if !ok {
		t.Fatalf("expected tracked token")
	}
	if len(b.Asks) != 1 || b.Asks[0].Price != 0.56 {
		t.Fatalf("asks after negative-size delta: %+v", b.Asks)
	}
	for _, lvl := range b.Asks {
		if lvl.Size <= 0 {
			t.Fatalf("non-positive level survived: %+v", b.Asks)
		}
	}
}

func TestEvict(t *testing.T) {
	s := NewStore()
	s.ApplySnapshot(snap())
	s.Evict([]string{"tok-1"})
	if s.Len() != 0 {
		t.Fatalf("evicted token still cached")
	}
}

func TestRows(t *testing.T) {
	s := NewStore()
	b := s.ApplySnapshot(snap())
	rows := b.Rows()
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Side != domain.BookSideBid || rows[1].Side != domain.BookSideAsk {
		t.Fatalf("row sides = %v/%v", rows[0].Side, rows[1].Side)
	}
	if rows[0].ConditionID != "cond-1" {
		t.Fatalf("condition id not carried: %+v", rows[0])
	}
}
