// Package wallets ingests large taker trades, maintains per-address trading
// history, and emits the trade-driven signal events: every large trade, large
// trades by fresh wallets, and reactivations of dormant wallets.
package wallets

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cwyatt/polywatch/internal/domain"
)

// IsNewWallet reports whether a trade at tradeTS falls inside the wallet's
// new-wallet window measured from first sighting.
func IsNewWallet(w domain.Wallet, tradeTS time.Time, window time.Duration) bool {
	return !tradeTS.After(w.FirstSeenAt.Add(window))
}

// IsDormant reports whether a trade at tradeTS arrives a full dormancy
// window after the wallet was last seen. Callers must check this before
// advancing LastSeenAt.
func IsDormant(w domain.Wallet, tradeTS time.Time, window time.Duration) bool {
	if w.LastSeenAt.IsZero() {
		return false
	}
	return !tradeTS.Before(w.LastSeenAt.Add(window))
}

// SeverityForTrade tiers a trade by notional, with bumps for a fresh wallet
// and a thin market, clamped to the scale's top.
func SeverityForTrade(notionalUSD float64, isNew, lowLiquidity bool) int {
	var severity int
	switch {
	case notionalUSD >= 1_000_000:
		severity = 5
	case notionalUSD >= 250_000:
		severity = 4
	case notionalUSD >= 50_000:
		severity = 3
	default:
		severity = 2
	}
	if isNew {
		severity++
	}
	if lowLiquidity {
		severity++
	}
	if severity > 5 {
		severity = 5
	}
	return severity
}

// NormalizeAddress canonicalizes a wallet address to its checksummed hex
// form. Non-hex identifiers pass through unchanged.
func NormalizeAddress(addr string) string {
	if common.IsHexAddress(addr) {
		return common.HexToAddress(addr).Hex()
	}
	return addr
}
