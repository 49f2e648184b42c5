package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Channel is one notification transport. The set is closed; unknown names
// fail rule validation rather than being carried as opaque strings.
type Channel string

const (
	ChannelLog      Channel = "log"
	ChannelSlack    Channel = "slack"
	ChannelDiscord  Channel = "discord"
	ChannelTelegram Channel = "telegram"
)

// ParseChannel validates a channel name.
func ParseChannel(name string) (Channel, error) {
	switch Channel(name) {
	case ChannelLog, ChannelSlack, ChannelDiscord, ChannelTelegram:
		return Channel(name), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedChannel, name)
	}
}

// AlertStatus is the terminal disposition of one dispatch attempt.
type AlertStatus string

const (
	AlertSent       AlertStatus = "SENT"
	AlertFailed     AlertStatus = "FAILED"
	AlertSuppressed AlertStatus = "SUPPRESSED"
)

// PredicateKind tags one variant of the rule predicate tree.
type PredicateKind string

const (
	PredSignalTypeIn   PredicateKind = "signal_type_in"
	PredSeverityRange  PredicateKind = "severity_range"
	PredPayloadNumeric PredicateKind = "payload_numeric"
	PredPayloadEquals  PredicateKind = "payload_equals"
	PredPayloadAny     PredicateKind = "payload_any"
	PredPayloadNotAny  PredicateKind = "payload_not_any"
	PredQuietHours     PredicateKind = "quiet_hours"
)

// Predicate is one tagged-variant condition in a rule's match tree. A rule
// matches a signal when every predicate holds. Which fields are meaningful
// depends on Kind; Validate rejects malformed combinations at authoring time.
type Predicate struct {
	Kind PredicateKind `json:"kind"`

	// signal_type_in
	Types []SignalType `json:"types,omitempty"`

	// severity_range: inclusive bounds, nil means unbounded.
	MinSeverity *int `json:"min_severity,omitempty"`
	MaxSeverity *int `json:"max_severity,omitempty"`

	// payload_numeric / payload_equals / payload_any / payload_not_any
	Key    string   `json:"key,omitempty"`
	Min    *float64 `json:"min,omitempty"`
	Max    *float64 `json:"max,omitempty"`
	Value  any      `json:"value,omitempty"`
	Values []any    `json:"values,omitempty"`

	// quiet_hours: local hour range [start, end); wraps past midnight when
	// start > end. start == end means the window is empty.
	StartHour int `json:"start_hour,omitempty"`
	EndHour   int `json:"end_hour,omitempty"`
}

// Validate checks that the predicate is well formed for its kind.
func (p Predicate) Validate() error {
	switch p.Kind {
	case PredSignalTypeIn:
		if len(p.Types) == 0 {
			return fmt.Errorf("%w: signal_type_in requires types", ErrInvalidRule)
		}
	case PredSeverityRange:
		if p.MinSeverity == nil && p.MaxSeverity == nil {
			return fmt.Errorf("%w: severity_range requires a bound", ErrInvalidRule)
		}
	case PredPayloadNumeric:
		if p.Key == "" || (p.Min == nil && p.Max == nil) {
			return fmt.Errorf("%w: payload_numeric requires key and a bound", ErrInvalidRule)
		}
	case PredPayloadEquals:
		if p.Key == "" {
			return fmt.Errorf("%w: payload_equals requires key", ErrInvalidRule)
		}
	case PredPayloadAny, PredPayloadNotAny:
		if p.Key == "" || len(p.Values) == 0 {
			return fmt.Errorf("%w: %s requires key and values", ErrInvalidRule, p.Kind)
		}
	case PredQuietHours:
		if p.StartHour < 0 || p.StartHour > 23 || p.EndHour < 0 || p.EndHour > 23 {
			return fmt.Errorf("%w: quiet_hours hours must be 0..23", ErrInvalidRule)
		}
	default:
		return fmt.Errorf("%w: unknown predicate kind %q", ErrInvalidRule, p.Kind)
	}
	return nil
}

// AlertRule routes matching signals to a channel list. Rules are evaluated in
// ascending priority order and the first match wins; a signal matching no
// rule is not delivered.
type AlertRule struct {
	ID              int64
	Name            string
	Priority        int
	Enabled         bool
	When            []Predicate
	Channels        []Channel
	CooldownSeconds *int
	UpdatedAt       time.Time
}

// Validate checks the rule's predicates and channels.
func (r AlertRule) Validate() error {
	if len(r.Channels) == 0 {
		return fmt.Errorf("%w: rule %q has no channels", ErrInvalidRule, r.Name)
	}
	for _, ch := range r.Channels {
		if _, err := ParseChannel(string(ch)); err != nil {
			return fmt.Errorf("rule %q: %w", r.Name, err)
		}
	}
	for _, p := range r.When {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("rule %q: %w", r.Name, err)
		}
	}
	return nil
}

// ruleDoc is the JSON shape AlertRule predicates and actions are stored as.
type ruleDoc struct {
	When    []Predicate `json:"when"`
	Actions struct {
		Channels        []string `json:"channels"`
		CooldownSeconds *int     `json:"cooldown_seconds,omitempty"`
	} `json:"actions"`
}

// EncodeRuleDoc serializes a rule's predicates and actions for storage.
func (r AlertRule) EncodeRuleDoc() ([]byte, error) {
	var doc ruleDoc
	doc.When = r.When
	for _, ch := range r.Channels {
		doc.Actions.Channels = append(doc.Actions.Channels, string(ch))
	}
	doc.Actions.CooldownSeconds = r.CooldownSeconds
	return json.Marshal(doc)
}

// DecodeRuleDoc populates a rule's predicates and actions from storage and
// validates the result.
func (r *AlertRule) DecodeRuleDoc(data []byte) error {
	var doc ruleDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	r.When = doc.When
	r.Channels = r.Channels[:0]
	for _, name := range doc.Actions.Channels {
		ch, err := ParseChannel(name)
		if err != nil {
			return fmt.Errorf("rule %q: %w", r.Name, err)
		}
		r.Channels = append(r.Channels, ch)
	}
	r.CooldownSeconds = doc.Actions.CooldownSeconds
	return r.Validate()
}

// AlertAck suppresses every signal mapping to a notification key until the
// ack expires.
type AlertAck struct {
	NotificationKey string
	AckedUntil      time.Time
	Note            string
}

// AlertLog is one append-only dispatch audit row. Every processed signal
// produces at least one row: SENT or FAILED per attempted channel, or a
// single SUPPRESSED marker.
type AlertLog struct {
	ID              int64
	SignalEventID   int64
	Channel         string
	NotificationKey string
	SentAt          time.Time
	Status          AlertStatus
	Severity        int
	Error           string
}
