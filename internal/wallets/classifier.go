package wallets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwyatt/polywatch/internal/domain"
)

// TradeSource supplies one page of recent trades, newest first.
type TradeSource interface {
	Trades(ctx context.Context, limit, offset int) ([]domain.Trade, error)
}

// LiquidityProbe reports current liquidity for a market. ok is false when no
// figure is known.
type LiquidityProbe interface {
	MarketLiquidity(ctx context.Context, conditionID string) (liquidity float64, ok bool, err error)
}

// Config holds the classifier's windows and fetch bounds.
type Config struct {
	// NewWalletWindow is how long after first sighting a wallet counts as new.
	NewWalletWindow time.Duration
	// DormantWindow is the gap after which a returning wallet counts as
	// reactivated.
	DormantWindow time.Duration
	// TrackAfterTrade extends wallet tracking after each large trade.
	// Zero disables tracking extension.
	TrackAfterTrade time.Duration
	// SafetyWindow is re-fetched behind the latest stored trade to absorb
	// late-arriving records.
	SafetyWindow time.Duration
	// InitialLookback bounds the first fetch on an empty store.
	InitialLookback time.Duration
	// LowLiquidityThreshold marks markets below this figure as thin.
	LowLiquidityThreshold float64
	// LargeTradeUSDThreshold is recorded in payloads; the source already
	// filters server-side.
	LargeTradeUSDThreshold float64
	PageLimit              int
	MaxPages               int
}

func (c *Config) applyDefaults() {
	if c.PageLimit <= 0 {
		c.PageLimit = 500
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 10
	}
	if c.InitialLookback <= 0 {
		c.InitialLookback = 6 * time.Hour
	}
}

// Classifier pulls trade pages until it reaches already-seen ground, stores
// each new trade, and classifies it against the wallet's history.
type Classifier struct {
	cfg       Config
	source    TradeSource
	liquidity LiquidityProbe // optional
	trades    domain.TradeStore
	wallets   domain.WalletStore
	signals   domain.SignalStore
	logger    *slog.Logger
	now       func() time.Time
}

// NewClassifier creates the classifier. liquidity may be nil, in which case
// no trade gets the thin-market severity bump.
func NewClassifier(
	cfg Config,
	source TradeSource,
	liquidity LiquidityProbe,
	trades domain.TradeStore,
	wallets domain.WalletStore,
	signals domain.SignalStore,
	logger *slog.Logger,
) *Classifier {
	cfg.applyDefaults()
	return &Classifier{
		cfg:       cfg,
		source:    source,
		liquidity: liquidity,
		trades:    trades,
		wallets:   wallets,
		signals:   signals,
		logger:    logger.With(slog.String("component", "wallets")),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run performs one ingestion sweep and returns the number of trades newly
// stored. Pagination stops at the stop timestamp (latest stored trade minus
// the safety window), on a short page, or at the page cap.
func (c *Classifier) Run(ctx context.Context) (int, error) {
	now := c.now()

	stopTS, err := c.stopTimestamp(ctx, now)
	if err != nil {
		return 0, err
	}

	cache := make(map[string]domain.Wallet)
	inserted := 0
	offset := 0
	for page := 0; page < c.cfg.MaxPages; page++ {
		trades, err := c.source.Trades(ctx, c.cfg.PageLimit, offset)
		if err != nil {
			return inserted, fmt.Errorf("wallets: fetch trades page %d: %w", page, err)
		}
		if len(trades) == 0 {
			break
		}

		stopReached := false
		for _, trade := range trades {
			if trade.TradeTS.Before(stopTS) {
				stopReached = true
				break
			}
			fresh, err := c.ingest(ctx, trade, cache, now)
			if err != nil {
				c.logger.Error("trade ingest failed",
					slog.String("trade_pk", trade.TradePK),
					slog.String("error", err.Error()),
				)
				continue
			}
			if fresh {
				inserted++
			}
		}

		if stopReached || len(trades) < c.cfg.PageLimit {
			break
		}
		offset += c.cfg.PageLimit
	}

	if inserted > 0 {
		c.logger.Info("trades ingested", slog.Int("inserted", inserted))
	}
	return inserted, nil
}

func (c *Classifier) stopTimestamp(ctx context.Context, now time.Time) (time.Time, error) {
	latest, err := c.trades.LatestTradeTS(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return now.Add(-c.cfg.InitialLookback), nil
		}
		return time.Time{}, fmt.Errorf("wallets: latest trade ts: %w", err)
	}
	if latest.IsZero() {
		return now.Add(-c.cfg.InitialLookback), nil
	}
	return latest.Add(-c.cfg.SafetyWindow), nil
}

// ingest stores one trade and, only when the row is new, updates the wallet
// and emits the matching signal events.
func (c *Classifier) ingest(ctx context.Context, trade domain.Trade, cache map[string]domain.Wallet, now time.Time) (bool, error) {
	trade.Wallet = NormalizeAddress(trade.Wallet)
	trade.TradePK = trade.DedupeKey()

	fresh, err := c.trades.InsertIgnore(ctx, trade)
	if err != nil {
		return false, fmt.Errorf("insert trade: %w", err)
	}
	if !fresh {
		return false, nil
	}

	wallet, wasDormant, hadWallet, err := c.touchWallet(ctx, trade, cache, now)
	if err != nil {
		return true, err
	}

	lowLiquidity, liquidity, err := c.probeLiquidity(ctx, trade.ConditionID)
	if err != nil {
		return true, err
	}

	isNew := hadWallet && IsNewWallet(wallet, trade.TradeTS, c.cfg.NewWalletWindow)
	severity := SeverityForTrade(trade.NotionalUSD, isNew, lowLiquidity)
	payload := c.buildPayload(trade, wallet, hadWallet, liquidity)

	if err := c.emit(ctx, domain.SignalLargeTakerTrade, trade, payload, severity, now); err != nil {
		return true, err
	}
	if isNew {
		if err := c.emit(ctx, domain.SignalLargeNewWalletTrade, trade, payload, severity, now); err != nil {
			return true, err
		}
	}
	if wasDormant {
		if err := c.emit(ctx, domain.SignalDormantReactivation, trade, payload, severity, now); err != nil {
			return true, err
		}
	}
	return true, nil
}

// touchWallet creates or updates the wallet row for the trade. Dormancy is
// evaluated against the prior LastSeenAt, before it is advanced.
func (c *Classifier) touchWallet(ctx context.Context, trade domain.Trade, cache map[string]domain.Wallet, now time.Time) (wallet domain.Wallet, wasDormant, hadWallet bool, err error) {
	if trade.Wallet == "" {
		return domain.Wallet{}, false, false, nil
	}

	var trackUntil *time.Time
	if c.cfg.TrackAfterTrade > 0 {
		t := now.Add(c.cfg.TrackAfterTrade)
		trackUntil = &t
	}

	existing, cached := cache[trade.Wallet]
	if !cached {
		existing, err = c.wallets.Get(ctx, trade.Wallet)
		switch {
		case err == nil:
			cached = true
		case errors.Is(err, domain.ErrNotFound):
		default:
			return domain.Wallet{}, false, false, fmt.Errorf("load wallet: %w", err)
		}
	}

	if !cached {
		ts := trade.TradeTS
		wallet = domain.Wallet{
			Address:             trade.Wallet,
			FirstSeenAt:         now,
			LastSeenAt:          now,
			FirstTradeTS:        &ts,
			TrackedUntil:        trackUntil,
			LifetimeNotionalUSD: trade.NotionalUSD,
		}
	} else {
		wasDormant = IsDormant(existing, trade.TradeTS, c.cfg.DormantWindow)
		wallet = existing
		wallet.LastSeenAt = now
		wallet.LifetimeNotionalUSD += trade.NotionalUSD
		if trackUntil != nil && (wallet.TrackedUntil == nil || wallet.TrackedUntil.Before(*trackUntil)) {
			wallet.TrackedUntil = trackUntil
		}
	}

	if err := c.wallets.Upsert(ctx, wallet); err != nil {
		return domain.Wallet{}, false, false, fmt.Errorf("upsert wallet: %w", err)
	}
	cache[trade.Wallet] = wallet
	return wallet, wasDormant, true, nil
}

func (c *Classifier) probeLiquidity(ctx context.Context, conditionID string) (low bool, liquidity *float64, err error) {
	if c.liquidity == nil || conditionID == "" {
		return false, nil, nil
	}
	value, ok, err := c.liquidity.MarketLiquidity(ctx, conditionID)
	if err != nil {
		return false, nil, fmt.Errorf("probe liquidity: %w", err)
	}
	if !ok {
		return false, nil, nil
	}
	return value < c.cfg.LowLiquidityThreshold, &value, nil
}

func (c *Classifier) buildPayload(trade domain.Trade, wallet domain.Wallet, hadWallet bool, liquidity *float64) map[string]any {
	payload := map[string]any{
		"wallet":       trade.Wallet,
		"trade_ts":     trade.TradeTS.UTC().Format(time.RFC3339Nano),
		"condition_id": trade.ConditionID,
		"token_id":     trade.TokenID,
		"side":         string(trade.Side),
		"size_shares":  trade.Size,
		"price":        trade.Price,
		"notional_usd": trade.NotionalUSD,
		"market_slug":  trade.MarketSlug,
		"market_title": trade.MarketTitle,
		"event_slug":   trade.EventSlug,
		"outcome":      trade.Outcome,
		"tx_hash":      trade.TxHash,
		"config_snapshot": map[string]any{
			"large_trade_usd_threshold": c.cfg.LargeTradeUSDThreshold,
			"new_wallet_window_days":    c.cfg.NewWalletWindow.Hours() / 24,
			"dormant_window_days":       c.cfg.DormantWindow.Hours() / 24,
		},
	}
	if hadWallet {
		payload["wallet_first_seen_at"] = wallet.FirstSeenAt.UTC().Format(time.RFC3339Nano)
		payload["wallet_age_days"] = int(wallet.LastSeenAt.Sub(wallet.FirstSeenAt).Hours() / 24)
	}
	if liquidity != nil {
		payload["market_liquidity"] = *liquidity
	}
	return payload
}

func (c *Classifier) emit(ctx context.Context, typ domain.SignalType, trade domain.Trade, payload map[string]any, severity int, now time.Time) error {
	_, err := c.signals.Insert(ctx, domain.SignalEvent{
		Type:        typ,
		DedupeKey:   fmt.Sprintf("%s:%s", typ, trade.TradePK),
		CreatedAt:   now,
		Severity:    severity,
		Wallet:      trade.Wallet,
		ConditionID: trade.ConditionID,
		Payload:     payload,
	})
	if err != nil {
		return fmt.Errorf("emit %s: %w", typ, err)
	}
	return nil
}
