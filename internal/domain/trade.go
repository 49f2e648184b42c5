package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// TradeSide is the taker direction of a trade.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "BUY"
	TradeSideSell TradeSide = "SELL"
)

// Trade is one large taker fill as reported by the trade feed. TradePK is the
// dedupe key and primary key; inserting the same trade twice is a no-op.
type Trade struct {
	TradePK     string
	TxHash      string
	Wallet      string
	ConditionID string
	TokenID     string
	Side        TradeSide
	Price       float64
	Size        float64
	NotionalUSD float64
	TradeTS     time.Time

	// Display metadata carried through to signal payloads.
	MarketSlug  string
	MarketTitle string
	EventSlug   string
	Outcome     string
}

// DedupeKey derives the stable identity of a trade record. Records carrying a
// transaction hash dedupe on it directly; records without one dedupe on a
// digest of the identifying tuple, so the same record always maps to the same
// key and any differing field yields a different key.
func (t Trade) DedupeKey() string {
	if t.TxHash != "" {
		return "tx:" + t.TxHash
	}
	parts := []string{
		t.Wallet,
		t.ConditionID,
		t.TokenID,
		string(t.Side),
		strconv.FormatInt(t.TradeTS.UTC().Unix(), 10),
		strconv.FormatFloat(t.Size, 'f', -1, 64),
		strconv.FormatFloat(t.Price, 'f', -1, 64),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return "hash:" + hex.EncodeToString(sum[:])
}
