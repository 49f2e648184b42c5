package domain

import (
	"strconv"
	"time"
)

// SignalType classifies a signal event.
type SignalType string

const (
	SignalLargeTakerTrade     SignalType = "LARGE_TAKER_TRADE"
	SignalLargeNewWalletTrade SignalType = "LARGE_NEW_WALLET_TRADE"
	SignalDormantReactivation SignalType = "DORMANT_WALLET_REACTIVATION"
	SignalArbBuyBoth          SignalType = "ARB_BUY_BOTH"
)

// SignalEvent is an immutable record of one detected condition. Insertion is
// idempotent on DedupeKey: a duplicate key is a silent no-op, guaranteeing
// at most one logical signal per real-world event.
type SignalEvent struct {
	ID          int64
	Type        SignalType
	DedupeKey   string
	CreatedAt   time.Time
	Severity    int // 1..5
	Wallet      string
	ConditionID string
	Payload     map[string]any
}

// PayloadNumber reads a payload value as a float64, accepting the numeric
// and numeric-string encodings that survive a JSON round trip. ok is false
// for missing or non-numeric values.
func (s SignalEvent) PayloadNumber(key string) (float64, bool) {
	return payloadNumber(s.Payload, key)
}

func payloadNumber(payload map[string]any, key string) (float64, bool) {
	v, ok := payload[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
