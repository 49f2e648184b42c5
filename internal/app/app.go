// Package app provides the top-level application lifecycle for the market
// watcher. It wires together stores, the order-book feed, the detection and
// classification jobs, and the alert dispatcher, and runs them until the
// context is cancelled.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/cwyatt/polywatch/internal/alerts"
	"github.com/cwyatt/polywatch/internal/arb"
	"github.com/cwyatt/polywatch/internal/config"
	"github.com/cwyatt/polywatch/internal/domain"
	"github.com/cwyatt/polywatch/internal/feed"
	"github.com/cwyatt/polywatch/internal/jobs"
	"github.com/cwyatt/polywatch/internal/universe"
	"github.com/cwyatt/polywatch/internal/wallets"
)

// App is the root application object. It owns the configuration, logger,
// and a list of cleanup functions that are called in reverse order on
// shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, starts the feed
// and job goroutines, and blocks until the context is cancelled. On return
// it runs all registered cleanup functions.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting watcher",
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	return a.runLoops(ctx, deps)
}

// runLoops starts the order-book feed and the periodic jobs and blocks
// until the first fatal error or context cancellation.
func (a *App) runLoops(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	// Order-book feed.
	provider := universe.NewProvider(deps.MarketStore, a.cfg.Arb.MarketLimit)
	feedClient := feed.NewClient(feed.Config{
		URLs:               []string{feedURL(a.cfg.Polymarket.WSHost)},
		SubscribeChunkSize: a.cfg.Feed.SubscribeChunkSize,
		KeepaliveInterval:  a.cfg.Feed.KeepaliveInterval.Duration,
		RefreshInterval:    a.cfg.Feed.RefreshInterval.Duration,
		ReadTimeout:        a.cfg.Feed.ReadTimeout.Duration,
		BackoffBase:        a.cfg.Feed.BackoffBase.Duration,
		BackoffMax:         a.cfg.Feed.BackoffMax.Duration,
	}, provider, deps.BookStore, a.logger)
	g.Go(func() error { return feedClient.Run(ctx) })

	runner := jobs.NewRunner(deps.JobStore, deps.LockManager, a.logger)

	// Buy-both sweep.
	engine := arb.NewEngine(arb.Config{
		EdgeMin:             a.cfg.Arb.EdgeMin,
		MinExecutableShares: a.cfg.Arb.MinExecutableShares,
		MaxShares:           a.cfg.Arb.MaxShares,
		MaxBookAge:          a.cfg.Arb.MaxBookAge.Duration,
		MarketCooldown:      a.cfg.Arb.MarketCooldown.Duration,
		TakerFeeBps:         a.cfg.Arb.TakerFeeBps,
		MarketLimit:         a.cfg.Arb.MarketLimit,
	}, deps.MarketStore, deps.BookStore, deps.SignalStore, a.logger)
	g.Go(func() error {
		return runner.Run(ctx, jobs.Job{
			Name:     "arb_sweep",
			Interval: a.cfg.Arb.SweepInterval.Duration,
			Run: func(ctx context.Context) error {
				_, err := engine.Sweep(ctx)
				return err
			},
		})
	})

	// Trade ingestion and wallet classification.
	classifier := wallets.NewClassifier(wallets.Config{
		NewWalletWindow:        a.cfg.Trades.NewWalletWindow.Duration,
		DormantWindow:          a.cfg.Trades.DormantWindow.Duration,
		TrackAfterTrade:        a.cfg.Trades.TrackAfterTrade.Duration,
		SafetyWindow:           a.cfg.Trades.SafetyWindow.Duration,
		InitialLookback:        a.cfg.Trades.InitialLookback.Duration,
		LowLiquidityThreshold:  a.cfg.Trades.LowLiquidityUSD,
		LargeTradeUSDThreshold: a.cfg.Trades.LargeTradeUSD,
		PageLimit:              a.cfg.Trades.PageLimit,
		MaxPages:               a.cfg.Trades.MaxPages,
	}, tradeSource{
		client:      deps.DataClient,
		takerOnly:   a.cfg.Trades.TakerOnly,
		minNotional: a.cfg.Trades.MinNotionalUSD,
	}, nil, deps.TradeStore, deps.WalletStore, deps.SignalStore, a.logger)
	g.Go(func() error {
		return runner.Run(ctx, jobs.Job{
			Name:      "trade_classify",
			Interval:  a.cfg.Trades.PollInterval.Duration,
			Singleton: true,
			Run: func(ctx context.Context) error {
				_, err := classifier.Run(ctx)
				return err
			},
		})
	})

	// Alert dispatch.
	dispatcher := alerts.NewDispatcher(alerts.Config{
		Enabled:         a.cfg.Alerts.Enabled,
		RulesEnabled:    a.cfg.Alerts.RulesEnabled,
		AckEnabled:      a.cfg.Alerts.AckEnabled,
		MinSeverity:     a.cfg.Alerts.MinSeverity,
		DefaultChannels: parseChannels(a.cfg.Alerts.DefaultChannels),
		DefaultCooldown: a.cfg.Alerts.DedupWindow.Duration,
		BatchLimit:      a.cfg.Alerts.BatchLimit,
	}, deps.SignalStore, deps.AlertStore, a.buildSenders(), a.logger)
	g.Go(func() error {
		return runner.Run(ctx, jobs.Job{
			Name:      "alert_dispatch",
			Interval:  a.cfg.Alerts.DispatchInterval.Duration,
			Singleton: true,
			Run: func(ctx context.Context) error {
				_, err := dispatcher.Run(ctx)
				return err
			},
		})
	})

	// Cold-storage archive.
	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		retention := a.cfg.Archive.RetentionDays
		archiver := deps.Archiver
		g.Go(func() error {
			return runner.Run(ctx, jobs.Job{
				Name:      "archive",
				Interval:  a.cfg.Archive.Interval.Duration,
				Singleton: true,
				Run: func(ctx context.Context) error {
					cutoff := timeNow().AddDate(0, 0, -retention)
					if _, err := archiver.ArchiveSignals(ctx, cutoff); err != nil {
						return err
					}
					_, err := archiver.ArchiveAlertLog(ctx, cutoff)
					return err
				},
			})
		})
	}

	return g.Wait()
}

// Close tears down all resources in reverse registration order. It is safe
// to call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down watcher")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// buildSenders maps every channel to its transport. Unconfigured webhook
// senders stay registered; they fail delivery with a typed error so the
// audit trail records the misconfiguration.
func (a *App) buildSenders() map[domain.Channel]alerts.Sender {
	return map[domain.Channel]alerts.Sender{
		domain.ChannelLog:      alerts.NewLogSender(a.logger),
		domain.ChannelSlack:    alerts.NewSlackSender(a.cfg.Alerts.SlackWebhookURL),
		domain.ChannelDiscord:  alerts.NewDiscordSender(a.cfg.Alerts.DiscordWebhookURL),
		domain.ChannelTelegram: alerts.NewTelegramSender(a.cfg.Alerts.TelegramToken, a.cfg.Alerts.TelegramChatID),
	}
}

// parseChannels converts validated channel names to the typed form. Unknown
// names were already rejected by Config.Validate and are skipped here.
func parseChannels(names []string) []domain.Channel {
	out := make([]domain.Channel, 0, len(names))
	for _, name := range names {
		ch, err := domain.ParseChannel(name)
		if err != nil {
			continue
		}
		out = append(out, ch)
	}
	return out
}

// feedURL appends the market channel path unless the host already carries a
// path component.
func feedURL(wsHost string) string {
	host := strings.TrimRight(wsHost, "/")
	if strings.Contains(strings.TrimPrefix(strings.TrimPrefix(host, "wss://"), "ws://"), "/") {
		return host
	}
	return host + "/ws/market"
}
