package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwyatt/polywatch/internal/domain"
)

// suppressedChannel marks audit rows with no delivery attempt.
const suppressedChannel = "dedupe"

// Config holds the dispatcher's policy knobs.
type Config struct {
	// Enabled gates the whole dispatcher; a disabled dispatcher processes
	// nothing.
	Enabled bool
	// RulesEnabled switches between rule-based routing and the default
	// channel list.
	RulesEnabled bool
	// AckEnabled switches ack suppression.
	AckEnabled bool
	// MinSeverity drops signals below this severity without an audit row.
	MinSeverity int
	// DefaultChannels receive signals when rules are disabled or a rule
	// names no channels.
	DefaultChannels []domain.Channel
	// DefaultCooldown suppresses repeats per notification key unless a rule
	// overrides it.
	DefaultCooldown time.Duration
	// BatchLimit bounds how many signals one sweep processes.
	BatchLimit int
}

// Dispatcher processes every stored signal that has no audit row yet and
// guarantees each processed signal ends with at least one terminal row:
// SENT or FAILED per attempted channel, or a single SUPPRESSED marker.
type Dispatcher struct {
	cfg     Config
	signals domain.SignalStore
	alerts  domain.AlertStore
	senders map[domain.Channel]Sender
	logger  *slog.Logger
	now     func() time.Time
}

// NewDispatcher creates the dispatcher. senders maps each deliverable
// channel to its transport; channels without a sender fail delivery with
// ErrUnsupportedChannel.
func NewDispatcher(cfg Config, signals domain.SignalStore, alerts domain.AlertStore, senders map[domain.Channel]Sender, logger *slog.Logger) *Dispatcher {
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 500
	}
	return &Dispatcher{
		cfg:     cfg,
		signals: signals,
		alerts:  alerts,
		senders: senders,
		logger:  logger.With(slog.String("component", "dispatcher")),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Run performs one dispatch sweep and returns the number of successful
// channel deliveries. Per-signal failures are logged and the sweep moves on.
func (d *Dispatcher) Run(ctx context.Context) (int, error) {
	if !d.cfg.Enabled || len(d.cfg.DefaultChannels) == 0 {
		return 0, nil
	}
	now := d.now()

	var rules []domain.AlertRule
	if d.cfg.RulesEnabled {
		var err error
		rules, err = d.alerts.ListEnabledRules(ctx)
		if err != nil {
			return 0, fmt.Errorf("alerts: list rules: %w", err)
		}
	}

	pending, err := d.signals.ListUndispatched(ctx, d.cfg.BatchLimit)
	if err != nil {
		return 0, fmt.Errorf("alerts: list undispatched: %w", err)
	}

	sent := 0
	for _, signal := range pending {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		n, err := d.dispatch(ctx, signal, rules, now)
		if err != nil {
			d.logger.Error("signal dispatch failed",
				slog.Int64("signal_id", signal.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		sent += n
	}
	return sent, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, signal domain.SignalEvent, rules []domain.AlertRule, now time.Time) (int, error) {
	// Below the floor the signal is dropped without a row; it will not be
	// retried and sweeps stay cheap.
	if signal.Severity < d.cfg.MinSeverity {
		return 0, nil
	}

	key := NotificationKey(signal)

	if d.cfg.AckEnabled {
		acked, err := d.alerts.IsAcked(ctx, key, now)
		if err != nil {
			return 0, fmt.Errorf("ack check: %w", err)
		}
		if acked {
			return 0, d.suppress(ctx, signal, key, "acked", now)
		}
	}

	channels := d.cfg.DefaultChannels
	cooldown := d.cfg.DefaultCooldown
	// Rules act as an allow-list only when at least one enabled rule
	// exists; an empty list falls through to the default channels.
	if d.cfg.RulesEnabled && len(rules) > 0 {
		rule, matched := firstMatch(rules, signal, now)
		if !matched {
			// Rules act as an allow-list: no match, no delivery, no row.
			return 0, nil
		}
		if len(rule.Channels) > 0 {
			channels = rule.Channels
		}
		if rule.CooldownSeconds != nil {
			cooldown = time.Duration(*rule.CooldownSeconds) * time.Second
		}
	}

	suppressed, err := d.inCooldown(ctx, signal, key, cooldown, now)
	if err != nil {
		return 0, err
	}
	if suppressed {
		return 0, d.suppress(ctx, signal, key, "", now)
	}

	sent := 0
	for _, channel := range channels {
		status := domain.AlertSent
		errText := ""
		if err := d.deliver(ctx, channel, signal); err != nil {
			status = domain.AlertFailed
			errText = err.Error()
			d.logger.Warn("channel delivery failed",
				slog.String("channel", string(channel)),
				slog.Int64("signal_id", signal.ID),
				slog.String("error", err.Error()),
			)
		} else {
			sent++
		}
		if err := d.appendLog(ctx, signal, string(channel), key, status, errText, now); err != nil {
			return sent, err
		}
	}
	return sent, nil
}

// firstMatch returns the lowest-priority enabled rule matching the signal.
// The rule list is already sorted ascending by priority.
func firstMatch(rules []domain.AlertRule, signal domain.SignalEvent, now time.Time) (domain.AlertRule, bool) {
	for _, rule := range rules {
		if RuleMatches(rule, signal, now) {
			return rule, true
		}
	}
	return domain.AlertRule{}, false
}

// inCooldown reports whether the latest audit row for the key lands inside
// the cooldown window with a severity at or above the signal's. A strictly
// more severe signal breaks the cooldown.
func (d *Dispatcher) inCooldown(ctx context.Context, signal domain.SignalEvent, key string, cooldown time.Duration, now time.Time) (bool, error) {
	latest, err := d.alerts.LatestLog(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("latest log: %w", err)
	}
	if latest.SentAt.Before(now.Add(-cooldown)) {
		return false, nil
	}
	return latest.Severity >= signal.Severity, nil
}

func (d *Dispatcher) deliver(ctx context.Context, channel domain.Channel, signal domain.SignalEvent) error {
	sender, ok := d.senders[channel]
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnsupportedChannel, channel)
	}
	return sender.Send(ctx, signal)
}

func (d *Dispatcher) suppress(ctx context.Context, signal domain.SignalEvent, key, reason string, now time.Time) error {
	return d.appendLog(ctx, signal, suppressedChannel, key, domain.AlertSuppressed, reason, now)
}

func (d *Dispatcher) appendLog(ctx context.Context, signal domain.SignalEvent, channel, key string, status domain.AlertStatus, errText string, now time.Time) error {
	err := d.alerts.AppendLog(ctx, domain.AlertLog{
		SignalEventID:   signal.ID,
		Channel:         channel,
		NotificationKey: key,
		SentAt:          now,
		Status:          status,
		Severity:        signal.Severity,
		Error:           errText,
	})
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}
