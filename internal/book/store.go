// Package book implements the in-memory level store for live orderbooks. The
// store is owned by the stream client and mutated only from its receive loop;
// every other component reads book state from the durable store instead.
package book

import (
	"sort"
	"time"

	"github.com/cwyatt/polywatch/internal/domain"
)

// Book is the live two-sided state for one token.
type Book struct {
	TokenID      string
	ConditionID  string
	Bids         []domain.PriceLevel
	Asks         []domain.PriceLevel
	TickSize     float64
	MinOrderSize float64
	NegRisk      bool
	AsOf         time.Time
	Hash         string
}

// Change is one incremental price-level update. Side is the feed's "BUY" or
// "SELL"; a zero Size removes the level at Price.
type Change struct {
	Side  string
	Price float64
	Size  float64
}

// Store holds the cached book per token id. It is not safe for concurrent
// use; the stream client is its single writer and reader.
type Store struct {
	books map[string]*Book
}

// NewStore creates an empty level store.
func NewStore() *Store {
	return &Store{books: make(map[string]*Book)}
}

// ApplySnapshot replaces the cached book for snap.TokenID wholesale. Invalid
// levels are discarded and both sides are normalized to best-price-first
// order. A zero AsOf is stamped with the local receive time.
func (s *Store) ApplySnapshot(snap Book) *Book {
	b := snap
	b.Bids = normalize(b.Bids, true)
	b.Asks = normalize(b.Asks, false)
	if b.AsOf.IsZero() {
		b.AsOf = time.Now().UTC()
	}
	s.books[b.TokenID] = &b
	return &b
}

// ApplyChanges patches the cached book for tokenID. Changes for an unknown
// token are dropped (ok is false). For each change, BUY maps to bids and SELL
// to asks; size zero removes the level at that price, otherwise the level is
// replaced or appended. The affected sides are re-sorted after the batch and
// the book is restamped with ts.
func (s *Store) ApplyChanges(tokenID string, changes []Change, ts time.Time) (*Book, bool) {
	b, ok := s.books[tokenID]
	if !ok {
		return nil, false
	}

	bidsTouched, asksTouched := false, false
	for _, ch := range changes {
		switch ch.Side {
		case "BUY":
			b.Bids = applyChange(b.Bids, ch)
			bidsTouched = true
		case "SELL":
			b.Asks = applyChange(b.Asks, ch)
			asksTouched = true
		}
	}

	if bidsTouched {
		sortLevels(b.Bids, true)
	}
	if asksTouched {
		sortLevels(b.Asks, false)
	}
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	b.AsOf = ts
	return b, true
}

// Get returns the cached book for tokenID.
func (s *Store) Get(tokenID string) (*Book, bool) {
	b, ok := s.books[tokenID]
	return b, ok
}

// Evict drops the cached books for the given tokens.
func (s *Store) Evict(tokenIDs []string) {
	for _, id := range tokenIDs {
		delete(s.books, id)
	}
}

// Len returns the number of cached books.
func (s *Store) Len() int {
	return len(s.books)
}

// Rows converts the book into its two persistable sides.
func (b *Book) Rows() []domain.OrderBook {
	base := domain.OrderBook{
		TokenID:      b.TokenID,
		ConditionID:  b.ConditionID,
		TickSize:     b.TickSize,
		MinOrderSize: b.MinOrderSize,
		NegRisk:      b.NegRisk,
		AsOf:         b.AsOf,
		Hash:         b.Hash,
	}
	bid, ask := base, base
	bid.Side = domain.BookSideBid
	bid.Levels = append([]domain.PriceLevel(nil), b.Bids...)
	ask.Side = domain.BookSideAsk
	ask.Levels = append([]domain.PriceLevel(nil), b.Asks...)
	return []domain.OrderBook{bid, ask}
}

func applyChange(levels []domain.PriceLevel, ch Change) []domain.PriceLevel {
	if ch.Price <= 0 {
		return levels
	}
	for i, lvl := range levels {
		if lvl.Price == ch.Price {
			if ch.Size <= 0 {
				return append(levels[:i], levels[i+1:]...)
			}
			levels[i].Size = ch.Size
			return levels
		}
	}
	if ch.Size <= 0 {
		// Removing a level that is not present is a no-op.
		return levels
	}
	return append(levels, domain.PriceLevel{Price: ch.Price, Size: ch.Size})
}

func normalize(levels []domain.PriceLevel, descending bool) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(levels))
	for _, lvl := range levels {
		if lvl.Price <= 0 || lvl.Size <= 0 {
			continue
		}
		out = append(out, lvl)
	}
	sortLevels(out, descending)
	return out
}

func sortLevels(levels []domain.PriceLevel, descending bool) {
	sort.Slice(levels, func(i, j int) bool {
		if descending {
			return levels[i].Price > levels[j].Price
		}
		return levels[i].Price < levels[j].Price
	})
}
