package feed

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseEvents(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		{"single object", `{"event_type":"book"}`, 1},
		{"array", `[{"event_type":"book"},{"event_type":"price_change"}]`, 2},
		{"empty array", `[]`, 0},
		{"pong frame", `PONG`, 0},
		{"garbage", `not json`, 0},
		{"empty", ``, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseEvents([]byte(tt.in))
			if len(got) != tt.want {
				t.Fatalf("parseEvents(%q) = %d events, want %d", tt.in, len(got), tt.want)
			}
		})
	}
}

func TestBookMessageToBook(t *testing.T) {
	raw := []byte(`{
		"event_type": "book",
		"asset_id": "tok-1",
		"market": "cond-1",
		"bids": [{"price":"0.45","size":"100"},{"price":"0.44","size":"50"}],
		"asks": [{"price":"0.55","size":"200"}],
		"timestamp": "1700000000000",
		"tick_size": "0.01",
		"min_order_size": 5,
		"neg_risk": true,
		"hash": "abc"
	}`)

	evs := parseEvents(raw)
	if len(evs) != 1 || eventType(evs[0]) != eventTypeBook {
		t.Fatalf("expected one book event")
	}

	var msg bookMessage
	if err := json.Unmarshal(evs[0], &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	b := msg.toBook()

	if b.TokenID != "tok-1" || b.ConditionID != "cond-1" {
		t.Fatalf("ids: got %q/%q", b.TokenID, b.ConditionID)
	}
	if len(b.Bids) != 2 || len(b.Asks) != 1 {
		t.Fatalf("levels: %d bids, %d asks", len(b.Bids), len(b.Asks))
	}
	if b.Bids[0].Price != 0.45 || b.Bids[0].Size != 100 {
		t.Fatalf("bid[0] = %+v", b.Bids[0])
	}
	if b.TickSize != 0.01 || b.MinOrderSize != 5 {
		t.Fatalf("tick/min = %v/%v", b.TickSize, b.MinOrderSize)
	}
	if !b.NegRisk || b.Hash != "abc" {
		t.Fatalf("neg_risk/hash = %v/%q", b.NegRisk, b.Hash)
	}
	want := time.UnixMilli(1700000000000).UTC()
	if !b.AsOf.Equal(want) {
		t.Fatalf("as_of = %v, want %v", b.AsOf, want)
	}
}

func TestBookMessageSideAliases(t *testing.T) {
	raw := []byte(`{
		"event_type": "book",
		"asset_id": "tok-2",
		"buys": [{"price":"0.30","size":"10"}],
		"sells": [{"price":"0.70","size":"10"}]
	}`)
	var msg bookMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	b := msg.toBook()
	if len(b.Bids) != 1 || len(b.Asks) != 1 {
		t.Fatalf("aliases not honored: %d bids, %d asks", len(b.Bids), len(b.Asks))
	}
}

func TestPriceChangeChangesByToken(t *testing.T) {
	raw := []byte(`{
		"event_type": "price_change",
		"market": "cond-1",
		"timestamp": "1700000000",
		"price_changes": [
			{"asset_id":"tok-1","side":"BUY","price":"0.40","size":"25"},
			{"asset_id":"tok-1","side":"SELL","price":"0.60","size":"0"},
			{"asset_id":"tok-2","side":"BUY","price":"0.10","size":"5"}
		]
	}`)
	var msg priceChangeMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	byToken := msg.changesByToken()
	if len(byToken) != 2 {
		t.Fatalf("expected 2 tokens, got %d", len(byToken))
	}
	if got := len(byToken["tok-1"]); got != 2 {
		t.Fatalf("tok-1 changes = %d, want 2", got)
	}
	ch := byToken["tok-1"][1]
	if ch.Side != "SELL" || ch.Price != 0.60 || ch.Size != 0 {
		t.Fatalf("tok-1 change[1] = %+v", ch)
	}
}

func TestParseFeedTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"1700000000000", time.UnixMilli(1700000000000).UTC()},
		{"1700000000", time.Unix(1700000000, 0).UTC()},
		{"2024-05-01T12:00:00Z", time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		{"", time.Time{}},
		{"nonsense", time.Time{}},
	}
	for _, tt := range tests {
		if got := parseFeedTime(tt.in); !got.Equal(tt.want) {
			t.Errorf("parseFeedTime(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestChunk(t *testing.T) {
	got := chunk([]string{"a", "b", "c", "d", "e"}, 2)
	if len(got) != 3 || len(got[0]) != 2 || len(got[2]) != 1 {
		t.Fatalf("chunk = %v", got)
	}
	if chunk(nil, 2) != nil {
		t.Fatalf("chunk(nil) should be nil")
	}
}
