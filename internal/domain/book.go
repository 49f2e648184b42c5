package domain

import "time"

// BookSide identifies one side of an orderbook.
type BookSide string

const (
	BookSideBid BookSide = "BID"
	BookSideAsk BookSide = "ASK"
)

// PriceLevel is a single price+size entry in an orderbook. Both fields are
// strictly positive; non-positive entries are discarded on ingest.
type PriceLevel struct {
	Price float64
	Size  float64
}

// OrderBook is the persisted view of one side of a token's book, keyed by
// (token id, side). Bids are ordered descending by price, asks ascending, so
// Levels[0] is always the best price. Only the stream client mutates books;
// everything downstream reads them from the durable store.
type OrderBook struct {
	TokenID      string
	Side         BookSide
	ConditionID  string
	Levels       []PriceLevel
	TickSize     float64
	MinOrderSize float64
	NegRisk      bool
	AsOf         time.Time
	Hash         string
}

// BestPrice returns the top-of-book price, or 0 if the side is empty.
func (b OrderBook) BestPrice() float64 {
	if len(b.Levels) == 0 {
		return 0
	}
	return b.Levels[0].Price
}

// Depth returns the total size across all levels.
func (b OrderBook) Depth() float64 {
	var total float64
	for _, lvl := range b.Levels {
		total += lvl.Size
	}
	return total
}
