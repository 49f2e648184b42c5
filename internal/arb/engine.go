package arb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cwyatt/polywatch/internal/domain"
)

// Config holds the detector's thresholds.
type Config struct {
	// EdgeMin is the minimum fee-adjusted edge, as a fraction of the $1
	// payout, that a candidate quantity must strictly exceed.
	EdgeMin float64
	// MinExecutableShares is the smallest quantity worth signalling on.
	MinExecutableShares float64
	// MaxShares caps the quantities evaluated.
	MaxShares float64
	// MaxBookAge rejects book sides older than this.
	MaxBookAge time.Duration
	// MarketCooldown suppresses repeat signals for a condition after any
	// buy-both signal was stored for it.
	MarketCooldown time.Duration
	// TakerFeeBps is the taker fee in basis points applied to the combined
	// cost.
	TakerFeeBps float64
	// MarketLimit bounds how many tracked markets one sweep evaluates.
	MarketLimit int
}

// Engine evaluates every tracked market against the stored ask ladders and
// stores a signal event per detected opportunity.
type Engine struct {
	cfg     Config
	markets domain.MarketStore
	books   domain.BookStore
	signals domain.SignalStore
	logger  *slog.Logger
	now     func() time.Time
}

// NewEngine creates the detector.
func NewEngine(cfg Config, markets domain.MarketStore, books domain.BookStore, signals domain.SignalStore, logger *slog.Logger) *Engine {
	if cfg.MarketLimit <= 0 {
		cfg.MarketLimit = 1000
	}
	return &Engine{
		cfg:     cfg,
		markets: markets,
		books:   books,
		signals: signals,
		logger:  logger.With(slog.String("component", "arb")),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Sweep evaluates all tracked markets once and returns how many signals were
// stored. Per-market failures are logged and skipped; only listing markets
// can fail the sweep.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	now := e.now()

	markets, err := e.markets.ListTracked(ctx, e.cfg.MarketLimit)
	if err != nil {
		return 0, fmt.Errorf("arb: list markets: %w", err)
	}

	stored := 0
	for _, market := range markets {
		if ctx.Err() != nil {
			return stored, ctx.Err()
		}
		inserted, err := e.evaluate(ctx, market, now)
		if err != nil {
			e.logger.Error("market evaluation failed",
				slog.String("condition_id", market.ConditionID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if inserted {
			stored++
		}
	}
	return stored, nil
}

func (e *Engine) evaluate(ctx context.Context, market domain.Market, now time.Time) (bool, error) {
	yesToken, noToken, ok := market.BinaryTokens()
	if !ok {
		return false, nil
	}

	yesBook, err := e.loadFresh(ctx, yesToken, now)
	if err != nil || yesBook == nil {
		return false, err
	}
	noBook, err := e.loadFresh(ctx, noToken, now)
	if err != nil || noBook == nil {
		return false, err
	}

	asksYes := normalizeLevels(yesBook.Levels)
	asksNo := normalizeLevels(noBook.Levels)
	if len(asksYes) == 0 || len(asksNo) == 0 {
		return false, nil
	}

	res := Compute(asksYes, asksNo, e.cfg.MinExecutableShares, e.cfg.MaxShares, e.cfg.EdgeMin, e.cfg.TakerFeeBps)
	if res.QMax < e.cfg.MinExecutableShares || res.QMax == 0 {
		return false, nil
	}

	// One signal per market per cooldown window, regardless of how the edge
	// moves within it.
	recent, err := e.signals.ExistsRecent(ctx, domain.SignalArbBuyBoth, market.ConditionID, now.Add(-e.cfg.MarketCooldown))
	if err != nil {
		return false, fmt.Errorf("cooldown check: %w", err)
	}
	if recent {
		return false, nil
	}

	event := e.buildEvent(market, yesToken, noToken, yesBook, noBook, asksYes, asksNo, res, now)
	inserted, err := e.signals.Insert(ctx, event)
	if err != nil {
		return false, fmt.Errorf("insert signal: %w", err)
	}
	if inserted {
		e.logger.Info("buy-both edge detected",
			slog.String("condition_id", market.ConditionID),
			slog.Float64("edge", res.EdgeAtQMax),
			slog.Float64("q_max", res.QMax),
			slog.Int("severity", event.Severity),
		)
	}
	return inserted, nil
}

// loadFresh returns the ask side for the token, or nil when it is missing
// or stale.
func (e *Engine) loadFresh(ctx context.Context, tokenID string, now time.Time) (*domain.OrderBook, error) {
	b, err := e.books.Get(ctx, tokenID, domain.BookSideAsk)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load book %s: %w", tokenID, err)
	}
	if !b.AsOf.IsZero() && now.Sub(b.AsOf) > e.cfg.MaxBookAge {
		return nil, nil
	}
	return &b, nil
}

func (e *Engine) buildEvent(
	market domain.Market,
	yesToken, noToken string,
	yesBook, noBook *domain.OrderBook,
	asksYes, asksNo []domain.PriceLevel,
	res Result,
	now time.Time,
) domain.SignalEvent {
	bestYes := asksYes[0].Price
	bestNo := asksNo[0].Price

	payload := map[string]any{
		"condition_id":          market.ConditionID,
		"yes_token_id":          yesToken,
		"no_token_id":           noToken,
		"neg_risk":              market.NegRisk,
		"as_of_yes":             formatTime(yesBook.AsOf),
		"as_of_no":              formatTime(noBook.AsOf),
		"best_ask_yes":          formatNum(bestYes),
		"best_ask_no":           formatNum(bestNo),
		"top_of_book_sum":       formatNum(bestYes + bestNo),
		"edge_min":              e.cfg.EdgeMin,
		"min_executable_shares": e.cfg.MinExecutableShares,
		"q_max":                 formatNum(res.QMax),
		"edge_at_q_max":         formatNum(res.EdgeAtQMax),
		"avg_ask_yes_at_q_max":  formatNum(res.AvgYesAtQMax),
		"avg_ask_no_at_q_max":   formatNum(res.AvgNoAtQMax),
		"asks_yes_levels":       encodeLevels(fillLevels(asksYes, res.QMax)),
		"asks_no_levels":        encodeLevels(fillLevels(asksNo, res.QMax)),
		"config_snapshot": map[string]any{
			"arb_edge_min":              e.cfg.EdgeMin,
			"arb_min_executable_shares": e.cfg.MinExecutableShares,
			"arb_max_shares":            e.cfg.MaxShares,
			"arb_max_book_age_seconds":  e.cfg.MaxBookAge.Seconds(),
			"taker_fee_bps":             e.cfg.TakerFeeBps,
		},
	}
	if res.EdgeAtMinQSet {
		payload["edge_at_min_q"] = formatNum(res.EdgeAtMinQ)
	} else {
		payload["edge_at_min_q"] = nil
	}

	return domain.SignalEvent{
		Type:        domain.SignalArbBuyBoth,
		DedupeKey:   fmt.Sprintf("%s:%s:%.4f:%.2f", domain.SignalArbBuyBoth, market.ConditionID, res.EdgeAtQMax, res.QMax),
		CreatedAt:   now,
		Severity:    severity(res.EdgeAtQMax, res.QMax),
		ConditionID: market.ConditionID,
		Payload:     payload,
	}
}

// severity tiers a detection by edge size and executable quantity.
func severity(edge, qMax float64) int {
	switch {
	case edge >= 0.015 && qMax >= 500:
		return 4
	case edge >= 0.01 && qMax >= 100:
		return 3
	default:
		return 2
	}
}

// normalizeLevels drops levels with non-positive price or size.
func normalizeLevels(levels []domain.PriceLevel) []domain.PriceLevel {
	out := levels[:0:0]
	for _, lvl := range levels {
		if lvl.Price > 0 && lvl.Size > 0 {
			out = append(out, lvl)
		}
	}
	return out
}

func encodeLevels(levels []domain.PriceLevel) []map[string]any {
	out := make([]map[string]any, 0, len(levels))
	for _, lvl := range levels {
		out = append(out, map[string]any{
			"price": formatNum(lvl.Price),
			"size":  formatNum(lvl.Size),
		})
	}
	return out
}

func formatNum(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
