package alerts

import (
	"testing"
	"time"

	"github.com/cwyatt/polywatch/internal/domain"
)

func intPtr(v int) *int         { return &v }
func f64Ptr(v float64) *float64 { return &v }

func arbSignal(severity int, payload map[string]any) domain.SignalEvent {
	return domain.SignalEvent{
		ID:          7,
		Type:        domain.SignalArbBuyBoth,
		Severity:    severity,
		ConditionID: "cond-1",
		Payload:     payload,
	}
}

func TestNotificationKey(t *testing.T) {
	tests := []struct {
		name   string
		signal domain.SignalEvent
		want   string
	}{
		{
			"wallet wins",
			domain.SignalEvent{Type: domain.SignalLargeTakerTrade, Wallet: "0xabc", ConditionID: "cond-1", ID: 9},
			"LARGE_TAKER_TRADE:0xabc",
		},
		{
			"condition fallback",
			domain.SignalEvent{Type: domain.SignalArbBuyBoth, ConditionID: "cond-1", ID: 9},
			"ARB_BUY_BOTH:cond-1",
		},
		{
			"id fallback",
			domain.SignalEvent{Type: domain.SignalArbBuyBoth, ID: 9},
			"ARB_BUY_BOTH:9",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NotificationKey(tt.signal); got != tt.want {
				t.Fatalf("NotificationKey = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRuleMatchesEmptyWhen(t *testing.T) {
	rule := domain.AlertRule{Channels: []domain.Channel{domain.ChannelLog}}
	if !RuleMatches(rule, arbSignal(3, nil), time.Now()) {
		t.Fatalf("rule without predicates must match everything")
	}
}

func TestPredicates(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) // hour 12
	signal := arbSignal(3, map[string]any{
		"edge_at_q_max": "0.02",
		"neg_risk":      false,
		"outcome":       "Yes",
	})

	tests := []struct {
		name string
		pred domain.Predicate
		want bool
	}{
		{
			"signal type in",
			domain.Predicate{Kind: domain.PredSignalTypeIn, Types: []domain.SignalType{domain.SignalArbBuyBoth}},
			true,
		},
		{
			"signal type not in",
			domain.Predicate{Kind: domain.PredSignalTypeIn, Types: []domain.SignalType{domain.SignalLargeTakerTrade}},
			false,
		},
		{
			"severity in range",
			domain.Predicate{Kind: domain.PredSeverityRange, MinSeverity: intPtr(2), MaxSeverity: intPtr(4)},
			true,
		},
		{
			"severity below min",
			domain.Predicate{Kind: domain.PredSeverityRange, MinSeverity: intPtr(4)},
			false,
		},
		{
			"severity above max",
			domain.Predicate{Kind: domain.PredSeverityRange, MaxSeverity: intPtr(2)},
			false,
		},
		{
			"payload numeric passes on string encoding",
			domain.Predicate{Kind: domain.PredPayloadNumeric, Key: "edge_at_q_max", Min: f64Ptr(0.01)},
			true,
		},
		{
			"payload numeric below min",
			domain.Predicate{Kind: domain.PredPayloadNumeric, Key: "edge_at_q_max", Min: f64Ptr(0.05)},
			false,
		},
		{
			"payload numeric missing key",
			domain.Predicate{Kind: domain.PredPayloadNumeric, Key: "absent", Min: f64Ptr(0)},
			false,
		},
		{
			"payload equals",
			domain.Predicate{Kind: domain.PredPayloadEquals, Key: "neg_risk", Value: false},
			true,
		},
		{
			"payload equals mismatch",
			domain.Predicate{Kind: domain.PredPayloadEquals, Key: "neg_risk", Value: true},
			false,
		},
		{
			"payload any",
			domain.Predicate{Kind: domain.PredPayloadAny, Key: "outcome", Values: []any{"Yes", "No"}},
			true,
		},
		{
			"payload any miss",
			domain.Predicate{Kind: domain.PredPayloadAny, Key: "outcome", Values: []any{"Maybe"}},
			false,
		},
		{
			"payload not any",
			domain.Predicate{Kind: domain.PredPayloadNotAny, Key: "outcome", Values: []any{"Maybe"}},
			true,
		},
		{
			"payload not any hit",
			domain.Predicate{Kind: domain.PredPayloadNotAny, Key: "outcome", Values: []any{"Yes"}},
			false,
		},
		{
			"outside quiet hours",
			domain.Predicate{Kind: domain.PredQuietHours, StartHour: 22, EndHour: 6},
			true,
		},
		{
			"inside quiet hours",
			domain.Predicate{Kind: domain.PredQuietHours, StartHour: 9, EndHour: 17},
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := domain.AlertRule{When: []domain.Predicate{tt.pred}}
			if got := RuleMatches(rule, signal, now); got != tt.want {
				t.Fatalf("match = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInQuietHours(t *testing.T) {
	at := func(hour int) time.Time {
		return time.Date(2024, 5, 1, hour, 30, 0, 0, time.UTC)
	}
	tests := []struct {
		hour, start, end int
		want             bool
	}{
		{12, 9, 17, true},
		{8, 9, 17, false},
		{17, 9, 17, false}, // end is exclusive
		{23, 22, 6, true},  // wrap-around, evening side
		{3, 22, 6, true},   // wrap-around, morning side
		{12, 22, 6, false},
		{5, 5, 5, false}, // start == end is never quiet
	}
	for _, tt := range tests {
		if got := inQuietHours(at(tt.hour), tt.start, tt.end); got != tt.want {
			t.Errorf("inQuietHours(hour=%d, %d..%d) = %v, want %v",
				tt.hour, tt.start, tt.end, got, tt.want)
		}
	}
}

func TestFormatMessage(t *testing.T) {
	arb := arbSignal(3, map[string]any{"edge_at_q_max": "0.0213", "q_max": "150"})
	if got := FormatMessage(arb); got != "[SEV3] Arb buy-both 2.13% edge @ 150 shares" {
		t.Fatalf("arb message = %q", got)
	}

	tradeSignal := domain.SignalEvent{
		Type:     domain.SignalLargeTakerTrade,
		Severity: 4,
		Payload:  map[string]any{"notional_usd": 60000.0, "market_title": "Example market"},
	}
	if got := FormatMessage(tradeSignal); got != "[SEV4] Trade $60000 Example market" {
		t.Fatalf("trade message = %q", got)
	}
}
