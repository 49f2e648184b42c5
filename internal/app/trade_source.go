package app

import (
	"context"
	"time"

	"github.com/cwyatt/polywatch/internal/domain"
	"github.com/cwyatt/polywatch/internal/platform/polymarket"
)

// tradeSource adapts the data-API client to the classifier's paging
// interface, baking in the configured server-side filters.
type tradeSource struct {
	client      *polymarket.DataClient
	takerOnly   bool
	minNotional float64
}

func (s tradeSource) Trades(ctx context.Context, limit, offset int) ([]domain.Trade, error) {
	return s.client.GetTrades(ctx, polymarket.TradeQuery{
		Limit:          limit,
		Offset:         offset,
		TakerOnly:      s.takerOnly,
		MinNotionalUSD: s.minNotional,
	})
}

func timeNow() time.Time {
	return time.Now().UTC()
}
