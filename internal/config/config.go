// Package config defines the top-level configuration for the market watcher
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/cwyatt/polywatch/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by POLYWATCH_* environment
// variables.
type Config struct {
	Polymarket PolymarketConfig `toml:"polymarket"`
	Database   DatabaseConfig   `toml:"database"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Feed       FeedConfig       `toml:"feed"`
	Arb        ArbConfig        `toml:"arb"`
	Trades     TradesConfig     `toml:"trades"`
	Alerts     AlertsConfig     `toml:"alerts"`
	Archive    ArchiveConfig    `toml:"archive"`
	LogLevel   string           `toml:"log_level"`
}

// PolymarketConfig holds Polymarket API endpoints.
type PolymarketConfig struct {
	WSHost   string `toml:"ws_host"`
	DataHost string `toml:"data_host"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. Redis is optional; when
// disabled, batch jobs run without cross-process locking.
type RedisConfig struct {
	Enabled  bool   `toml:"enabled"`
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	PoolSize int    `toml:"pool_size"`
}

// S3Config holds S3-compatible object storage parameters for the archive
// job. Optional; when disabled, nothing is archived.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// FeedConfig holds order-book websocket feed parameters.
type FeedConfig struct {
	SubscribeChunkSize int      `toml:"subscribe_chunk_size"`
	KeepaliveInterval  duration `toml:"keepalive_interval"`
	RefreshInterval    duration `toml:"refresh_interval"`
	ReadTimeout        duration `toml:"read_timeout"`
	BackoffBase        duration `toml:"backoff_base"`
	BackoffMax         duration `toml:"backoff_max"`
}

// ArbConfig holds buy-both arbitrage detection parameters.
type ArbConfig struct {
	EdgeMin             float64  `toml:"edge_min"`
	MinExecutableShares float64  `toml:"min_executable_shares"`
	MaxShares           float64  `toml:"max_shares"`
	MaxBookAge          duration `toml:"max_book_age"`
	MarketCooldown      duration `toml:"market_cooldown"`
	TakerFeeBps         float64  `toml:"taker_fee_bps"`
	SweepInterval       duration `toml:"sweep_interval"`
	MarketLimit         int      `toml:"market_limit"`
}

// TradesConfig holds trade polling and wallet classification parameters.
type TradesConfig struct {
	PollInterval    duration `toml:"poll_interval"`
	PageLimit       int      `toml:"page_limit"`
	MaxPages        int      `toml:"max_pages"`
	TakerOnly       bool     `toml:"taker_only"`
	MinNotionalUSD  float64  `toml:"min_notional_usd"`
	LargeTradeUSD   float64  `toml:"large_trade_usd"`
	NewWalletWindow duration `toml:"new_wallet_window"`
	DormantWindow   duration `toml:"dormant_window"`
	TrackAfterTrade duration `toml:"track_after_trade"`
	SafetyWindow    duration `toml:"safety_window"`
	InitialLookback duration `toml:"initial_lookback"`
	LowLiquidityUSD float64  `toml:"low_liquidity_usd"`
}

// AlertsConfig holds alert dispatch parameters and channel credentials.
type AlertsConfig struct {
	Enabled           bool     `toml:"enabled"`
	RulesEnabled      bool     `toml:"rules_enabled"`
	AckEnabled        bool     `toml:"ack_enabled"`
	MinSeverity       int      `toml:"min_severity"`
	DefaultChannels   []string `toml:"default_channels"`
	DedupWindow       duration `toml:"dedup_window"`
	DispatchInterval  duration `toml:"dispatch_interval"`
	BatchLimit        int      `toml:"batch_limit"`
	SlackWebhookURL   string   `toml:"slack_webhook_url"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
}

// ArchiveConfig holds cold-storage archival parameters.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			WSHost:   "wss://ws-subscriptions-clob.polymarket.com",
			DataHost: "https://data-api.polymarket.com",
		},
		Database: DatabaseConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "polywatch",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			DB:       0,
			PoolSize: 20,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "polywatch-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Feed: FeedConfig{
			SubscribeChunkSize: 100,
			KeepaliveInterval:  duration{10 * time.Second},
			RefreshInterval:    duration{5 * time.Minute},
			ReadTimeout:        duration{30 * time.Second},
			BackoffBase:        duration{time.Second},
			BackoffMax:         duration{30 * time.Second},
		},
		Arb: ArbConfig{
			EdgeMin:             0.01,
			MinExecutableShares: 50,
			MaxShares:           5000,
			MaxBookAge:          duration{10 * time.Second},
			MarketCooldown:      duration{60 * time.Second},
			TakerFeeBps:         0,
			SweepInterval:       duration{10 * time.Second},
			MarketLimit:         1000,
		},
		Trades: TradesConfig{
			PollInterval:    duration{30 * time.Second},
			PageLimit:       500,
			MaxPages:        10,
			TakerOnly:       true,
			MinNotionalUSD:  1000,
			LargeTradeUSD:   10000,
			NewWalletWindow: duration{14 * 24 * time.Hour},
			DormantWindow:   duration{30 * 24 * time.Hour},
			TrackAfterTrade: duration{30 * 24 * time.Hour},
			SafetyWindow:    duration{2 * time.Minute},
			InitialLookback: duration{6 * time.Hour},
			LowLiquidityUSD: 10000,
		},
		Alerts: AlertsConfig{
			Enabled:          true,
			RulesEnabled:     false,
			AckEnabled:       true,
			MinSeverity:      2,
			DefaultChannels:  []string{"log"},
			DedupWindow:      duration{10 * time.Minute},
			DispatchInterval: duration{5 * time.Second},
			BatchLimit:       500,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Polymarket endpoints
	if c.Polymarket.WSHost == "" {
		errs = append(errs, "polymarket: ws_host must not be empty")
	}
	if c.Polymarket.DataHost == "" {
		errs = append(errs, "polymarket: data_host must not be empty")
	}

	// Database
	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 {
		errs = append(errs, "database: pool_min_conns must be >= 0")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when enabled")
		}
	}

	// Feed
	if c.Feed.SubscribeChunkSize < 1 {
		errs = append(errs, "feed: subscribe_chunk_size must be >= 1")
	}
	if c.Feed.KeepaliveInterval.Duration <= 0 {
		errs = append(errs, "feed: keepalive_interval must be positive")
	}
	if c.Feed.ReadTimeout.Duration <= c.Feed.KeepaliveInterval.Duration {
		errs = append(errs, "feed: read_timeout must exceed keepalive_interval")
	}

	// Arb
	if c.Arb.EdgeMin <= 0 || c.Arb.EdgeMin >= 1 {
		errs = append(errs, fmt.Sprintf("arb: edge_min must be in (0, 1), got %g", c.Arb.EdgeMin))
	}
	if c.Arb.MinExecutableShares <= 0 {
		errs = append(errs, "arb: min_executable_shares must be > 0")
	}
	if c.Arb.MaxShares < c.Arb.MinExecutableShares {
		errs = append(errs, "arb: max_shares must be >= min_executable_shares")
	}
	if c.Arb.MaxBookAge.Duration <= 0 {
		errs = append(errs, "arb: max_book_age must be positive")
	}
	if c.Arb.TakerFeeBps < 0 {
		errs = append(errs, "arb: taker_fee_bps must be >= 0")
	}
	if c.Arb.SweepInterval.Duration <= 0 {
		errs = append(errs, "arb: sweep_interval must be positive")
	}

	// Trades
	if c.Trades.PollInterval.Duration <= 0 {
		errs = append(errs, "trades: poll_interval must be positive")
	}
	if c.Trades.PageLimit < 1 {
		errs = append(errs, "trades: page_limit must be >= 1")
	}
	if c.Trades.MaxPages < 1 {
		errs = append(errs, "trades: max_pages must be >= 1")
	}
	if c.Trades.LargeTradeUSD <= 0 {
		errs = append(errs, "trades: large_trade_usd must be > 0")
	}
	if c.Trades.NewWalletWindow.Duration <= 0 {
		errs = append(errs, "trades: new_wallet_window must be positive")
	}
	if c.Trades.DormantWindow.Duration <= 0 {
		errs = append(errs, "trades: dormant_window must be positive")
	}

	// Alerts
	if c.Alerts.Enabled {
		if c.Alerts.MinSeverity < 1 || c.Alerts.MinSeverity > 5 {
			errs = append(errs, fmt.Sprintf("alerts: min_severity must be 1-5, got %d", c.Alerts.MinSeverity))
		}
		if len(c.Alerts.DefaultChannels) == 0 {
			errs = append(errs, "alerts: default_channels must not be empty when enabled")
		}
		for _, ch := range c.Alerts.DefaultChannels {
			if _, err := domain.ParseChannel(ch); err != nil {
				errs = append(errs, fmt.Sprintf("alerts: unknown default channel %q", ch))
			}
		}
		if c.Alerts.DedupWindow.Duration < 0 {
			errs = append(errs, "alerts: dedup_window must be >= 0")
		}
		if c.Alerts.DispatchInterval.Duration <= 0 {
			errs = append(errs, "alerts: dispatch_interval must be positive")
		}
	}

	// Archive
	if c.Archive.Enabled {
		if !c.S3.Enabled {
			errs = append(errs, "archive: requires s3.enabled = true")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be positive")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
