// Package alerts routes stored signal events to notification channels:
// rule matching, ack and cooldown suppression, delivery, and the append-only
// audit log.
package alerts

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/cwyatt/polywatch/internal/domain"
)

// NotificationKey groups signals for ack and cooldown purposes: per wallet
// when the signal has one, else per market, else per event.
func NotificationKey(signal domain.SignalEvent) string {
	if signal.Wallet != "" {
		return fmt.Sprintf("%s:%s", signal.Type, signal.Wallet)
	}
	if signal.ConditionID != "" {
		return fmt.Sprintf("%s:%s", signal.Type, signal.ConditionID)
	}
	return fmt.Sprintf("%s:%d", signal.Type, signal.ID)
}

// RuleMatches reports whether every predicate of the rule holds for the
// signal at the given time. A rule with no predicates matches everything.
func RuleMatches(rule domain.AlertRule, signal domain.SignalEvent, now time.Time) bool {
	for _, p := range rule.When {
		if !predicateHolds(p, signal, now) {
			return false
		}
	}
	return true
}

func predicateHolds(p domain.Predicate, signal domain.SignalEvent, now time.Time) bool {
	switch p.Kind {
	case domain.PredSignalTypeIn:
		for _, t := range p.Types {
			if signal.Type == t {
				return true
			}
		}
		return false

	case domain.PredSeverityRange:
		if p.MinSeverity != nil && signal.Severity < *p.MinSeverity {
			return false
		}
		if p.MaxSeverity != nil && signal.Severity > *p.MaxSeverity {
			return false
		}
		return true

	case domain.PredPayloadNumeric:
		value, ok := signal.PayloadNumber(p.Key)
		if !ok {
			return false
		}
		if p.Min != nil && value < *p.Min {
			return false
		}
		if p.Max != nil && value > *p.Max {
			return false
		}
		return true

	case domain.PredPayloadEquals:
		return payloadEqual(signal.Payload[p.Key], p.Value)

	case domain.PredPayloadAny:
		for _, candidate := range p.Values {
			if payloadEqual(signal.Payload[p.Key], candidate) {
				return true
			}
		}
		return false

	case domain.PredPayloadNotAny:
		for _, candidate := range p.Values {
			if payloadEqual(signal.Payload[p.Key], candidate) {
				return false
			}
		}
		return true

	case domain.PredQuietHours:
		// Inside the quiet window the rule does not match.
		return !inQuietHours(now, p.StartHour, p.EndHour)

	default:
		return false
	}
}

// payloadEqual compares a payload value against a rule constant. Numeric
// values compare numerically regardless of their JSON encoding; everything
// else compares structurally.
func payloadEqual(got, want any) bool {
	gotNum, gotOK := asNumber(got)
	wantNum, wantOK := asNumber(want)
	if gotOK && wantOK {
		return gotNum == wantNum
	}
	return reflect.DeepEqual(got, want)
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// inQuietHours reports whether the hour of now falls in [start, end), with
// wrap-around past midnight when start > end. start == end is an empty
// window.
func inQuietHours(now time.Time, startHour, endHour int) bool {
	hour := now.Hour()
	if startHour == endHour {
		return false
	}
	if startHour < endHour {
		return hour >= startHour && hour < endHour
	}
	return hour >= startHour || hour < endHour
}
