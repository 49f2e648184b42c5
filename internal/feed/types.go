package feed

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/cwyatt/polywatch/internal/book"
	"github.com/cwyatt/polywatch/internal/domain"
)

const (
	eventTypeBook        = "book"
	eventTypePriceChange = "price_change"

	// keepaliveFrame is the bare liveness token the feed expects.
	keepaliveFrame = "PING"
)

// subscribeCommand is the outbound subscription payload. The initial batch
// uses Type "market"; incremental membership changes use Operation
// "subscribe" or "unsubscribe" instead.
type subscribeCommand struct {
	AssetIDs  []string `json:"assets_ids"`
	Type      string   `json:"type,omitempty"`
	Operation string   `json:"operation,omitempty"`
}

// flexFloat unmarshals from a JSON number or numeric string; the feed sends
// tick_size and min_order_size either way.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		// Tolerate junk; the field just stays zero.
		return nil
	}
	*f = flexFloat(n)
	return nil
}

// wsLevel is a single bid/ask level as sent on the wire.
type wsLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// bookMessage is a full orderbook snapshot event. Some feed versions send
// buys/sells instead of bids/asks.
type bookMessage struct {
	EventType    string    `json:"event_type"`
	AssetID      string    `json:"asset_id"`
	Market       string    `json:"market"`
	Bids         []wsLevel `json:"bids"`
	Asks         []wsLevel `json:"asks"`
	Buys         []wsLevel `json:"buys"`
	Sells        []wsLevel `json:"sells"`
	Timestamp    string    `json:"timestamp"`
	TickSize     flexFloat `json:"tick_size"`
	MinOrderSize flexFloat `json:"min_order_size"`
	NegRisk      bool      `json:"neg_risk"`
	Hash         string    `json:"hash"`
}

// priceChangeMessage is an incremental price-change event carrying a list of
// level updates, possibly spanning multiple tokens.
type priceChangeMessage struct {
	EventType    string       `json:"event_type"`
	Market       string       `json:"market"`
	Timestamp    string       `json:"timestamp"`
	PriceChanges []wsChange   `json:"price_changes"`
	Changes      []wsChange   `json:"changes"`
}

// wsChange is one level update inside a price_change event.
type wsChange struct {
	AssetID string `json:"asset_id"`
	Side    string `json:"side"` // "BUY" or "SELL"
	Price   string `json:"price"`
	Size    string `json:"size"`
}

// parseEvents splits a raw frame into typed events. The feed delivers both
// bare objects and arrays of objects; anything unparseable yields nil,
// matching the drop-silently contract for public-feed noise.
func parseEvents(data []byte) []json.RawMessage {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "PONG" {
		return nil
	}
	if trimmed[0] == '[' {
		var msgs []json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &msgs); err != nil {
			return nil
		}
		return msgs
	}
	if trimmed[0] != '{' {
		return nil
	}
	return []json.RawMessage{json.RawMessage(trimmed)}
}

// eventType probes the envelope without committing to a message shape.
func eventType(raw json.RawMessage) string {
	var env struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return ""
	}
	return env.EventType
}

// toBook converts a snapshot message into live book state. Level entries that
// fail to parse are skipped; the level store discards non-positive ones.
func (m *bookMessage) toBook() book.Book {
	bids := m.Bids
	if len(bids) == 0 {
		bids = m.Buys
	}
	asks := m.Asks
	if len(asks) == 0 {
		asks = m.Sells
	}
	b := book.Book{
		TokenID:      m.AssetID,
		ConditionID:  m.Market,
		TickSize:     float64(m.TickSize),
		MinOrderSize: float64(m.MinOrderSize),
		NegRisk:      m.NegRisk,
		AsOf:         parseFeedTime(m.Timestamp),
		Hash:         m.Hash,
	}
	for _, lvl := range bids {
		if p, s, ok := parseLevel(lvl); ok {
			b.Bids = append(b.Bids, domain.PriceLevel{Price: p, Size: s})
		}
	}
	for _, lvl := range asks {
		if p, s, ok := parseLevel(lvl); ok {
			b.Asks = append(b.Asks, domain.PriceLevel{Price: p, Size: s})
		}
	}
	return b
}

// changesByToken groups the event's level updates by token id, preserving
// per-token order.
func (m *priceChangeMessage) changesByToken() map[string][]book.Change {
	raw := m.PriceChanges
	if len(raw) == 0 {
		raw = m.Changes
	}
	grouped := make(map[string][]book.Change)
	for _, ch := range raw {
		if ch.AssetID == "" {
			continue
		}
		price, err := strconv.ParseFloat(ch.Price, 64)
		if err != nil {
			continue
		}
		size, err := strconv.ParseFloat(ch.Size, 64)
		if err != nil {
			continue
		}
		grouped[ch.AssetID] = append(grouped[ch.AssetID], book.Change{
			Side:  ch.Side,
			Price: price,
			Size:  size,
		})
	}
	return grouped
}

func parseLevel(lvl wsLevel) (price, size float64, ok bool) {
	price, err := strconv.ParseFloat(lvl.Price, 64)
	if err != nil {
		return 0, 0, false
	}
	size, err = strconv.ParseFloat(lvl.Size, 64)
	if err != nil {
		return 0, 0, false
	}
	return price, size, true
}

// parseFeedTime accepts unix milliseconds, unix seconds, or RFC 3339.
// A zero time is returned for anything else; the level store stamps those
// with the local receive time.
func parseFeedTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n >= 1_000_000_000_000 {
			return time.UnixMilli(n).UTC()
		}
		return time.Unix(n, 0).UTC()
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}
