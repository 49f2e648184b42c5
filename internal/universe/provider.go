// Package universe resolves the set of outcome tokens the feed tracks.
package universe

import (
	"context"
	"fmt"

	"github.com/cwyatt/polywatch/internal/domain"
)

// Provider derives the flat token-id list from the tracked market rows. The
// selection itself (liquidity and volume thresholds, tracking caps) happens
// upstream where the market rows are written; this side only consumes them.
type Provider struct {
	markets domain.MarketStore
	// maxMarkets bounds one listing; zero means the store default.
	maxMarkets int
}

// NewProvider creates a Provider over the market store.
func NewProvider(markets domain.MarketStore, maxMarkets int) *Provider {
	return &Provider{markets: markets, maxMarkets: maxMarkets}
}

// TokenIDs returns the token ids of every tracked binary market, yes and no
// sides both, deduplicated, in listing order. Markets that do not resolve to
// a binary token pair are skipped.
func (p *Provider) TokenIDs(ctx context.Context) ([]string, error) {
	markets, err := p.markets.ListTracked(ctx, p.maxMarkets)
	if err != nil {
		return nil, fmt.Errorf("universe: list markets: %w", err)
	}

	seen := make(map[string]struct{}, len(markets)*2)
	tokens := make([]string, 0, len(markets)*2)
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		tokens = append(tokens, id)
	}

	for _, m := range markets {
		yes, no, ok := m.BinaryTokens()
		if !ok {
			continue
		}
		add(yes)
		add(no)
	}
	return tokens, nil
}
