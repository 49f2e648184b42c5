package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies POLYWATCH_* environment variable overrides, and
// returns the final Config. If path is empty, only defaults and the
// environment are used. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known POLYWATCH_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Polymarket ──
	setStr(&cfg.Polymarket.WSHost, "POLYWATCH_POLYMARKET_WS_HOST")
	setStr(&cfg.Polymarket.DataHost, "POLYWATCH_POLYMARKET_DATA_HOST")

	// ── Database ──
	setStr(&cfg.Database.DSN, "POLYWATCH_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "POLYWATCH_DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "POLYWATCH_DATABASE_HOST")
	setInt(&cfg.Database.Port, "POLYWATCH_DATABASE_PORT")
	setStr(&cfg.Database.Database, "POLYWATCH_DATABASE_NAME")
	setStr(&cfg.Database.User, "POLYWATCH_DATABASE_USER")
	setStr(&cfg.Database.Password, "POLYWATCH_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "POLYWATCH_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "POLYWATCH_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "POLYWATCH_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "POLYWATCH_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "POLYWATCH_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "POLYWATCH_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYWATCH_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYWATCH_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POLYWATCH_REDIS_POOL_SIZE")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "POLYWATCH_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "POLYWATCH_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POLYWATCH_S3_REGION")
	setStr(&cfg.S3.Bucket, "POLYWATCH_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "POLYWATCH_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POLYWATCH_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "POLYWATCH_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "POLYWATCH_S3_FORCE_PATH_STYLE")

	// ── Feed ──
	setInt(&cfg.Feed.SubscribeChunkSize, "POLYWATCH_FEED_SUBSCRIBE_CHUNK_SIZE")
	setDuration(&cfg.Feed.KeepaliveInterval, "POLYWATCH_FEED_KEEPALIVE_INTERVAL")
	setDuration(&cfg.Feed.RefreshInterval, "POLYWATCH_FEED_REFRESH_INTERVAL")
	setDuration(&cfg.Feed.ReadTimeout, "POLYWATCH_FEED_READ_TIMEOUT")
	setDuration(&cfg.Feed.BackoffBase, "POLYWATCH_FEED_BACKOFF_BASE")
	setDuration(&cfg.Feed.BackoffMax, "POLYWATCH_FEED_BACKOFF_MAX")

	// ── Arb ──
	setFloat64(&cfg.Arb.EdgeMin, "POLYWATCH_ARB_EDGE_MIN")
	setFloat64(&cfg.Arb.MinExecutableShares, "POLYWATCH_ARB_MIN_EXECUTABLE_SHARES")
	setFloat64(&cfg.Arb.MaxShares, "POLYWATCH_ARB_MAX_SHARES")
	setDuration(&cfg.Arb.MaxBookAge, "POLYWATCH_ARB_MAX_BOOK_AGE")
	setDuration(&cfg.Arb.MarketCooldown, "POLYWATCH_ARB_MARKET_COOLDOWN")
	setFloat64(&cfg.Arb.TakerFeeBps, "POLYWATCH_ARB_TAKER_FEE_BPS")
	setDuration(&cfg.Arb.SweepInterval, "POLYWATCH_ARB_SWEEP_INTERVAL")
	setInt(&cfg.Arb.MarketLimit, "POLYWATCH_ARB_MARKET_LIMIT")

	// ── Trades ──
	setDuration(&cfg.Trades.PollInterval, "POLYWATCH_TRADES_POLL_INTERVAL")
	setInt(&cfg.Trades.PageLimit, "POLYWATCH_TRADES_PAGE_LIMIT")
	setInt(&cfg.Trades.MaxPages, "POLYWATCH_TRADES_MAX_PAGES")
	setBool(&cfg.Trades.TakerOnly, "POLYWATCH_TRADES_TAKER_ONLY")
	setFloat64(&cfg.Trades.MinNotionalUSD, "POLYWATCH_TRADES_MIN_NOTIONAL_USD")
	setFloat64(&cfg.Trades.LargeTradeUSD, "POLYWATCH_TRADES_LARGE_TRADE_USD")
	setDuration(&cfg.Trades.NewWalletWindow, "POLYWATCH_TRADES_NEW_WALLET_WINDOW")
	setDuration(&cfg.Trades.DormantWindow, "POLYWATCH_TRADES_DORMANT_WINDOW")
	setDuration(&cfg.Trades.TrackAfterTrade, "POLYWATCH_TRADES_TRACK_AFTER_TRADE")
	setDuration(&cfg.Trades.SafetyWindow, "POLYWATCH_TRADES_SAFETY_WINDOW")
	setDuration(&cfg.Trades.InitialLookback, "POLYWATCH_TRADES_INITIAL_LOOKBACK")
	setFloat64(&cfg.Trades.LowLiquidityUSD, "POLYWATCH_TRADES_LOW_LIQUIDITY_USD")

	// ── Alerts ──
	setBool(&cfg.Alerts.Enabled, "POLYWATCH_ALERTS_ENABLED")
	setBool(&cfg.Alerts.RulesEnabled, "POLYWATCH_ALERTS_RULES_ENABLED")
	setBool(&cfg.Alerts.AckEnabled, "POLYWATCH_ALERTS_ACK_ENABLED")
	setInt(&cfg.Alerts.MinSeverity, "POLYWATCH_ALERTS_MIN_SEVERITY")
	setStringSlice(&cfg.Alerts.DefaultChannels, "POLYWATCH_ALERTS_DEFAULT_CHANNELS")
	setDuration(&cfg.Alerts.DedupWindow, "POLYWATCH_ALERTS_DEDUP_WINDOW")
	setDuration(&cfg.Alerts.DispatchInterval, "POLYWATCH_ALERTS_DISPATCH_INTERVAL")
	setInt(&cfg.Alerts.BatchLimit, "POLYWATCH_ALERTS_BATCH_LIMIT")
	setStr(&cfg.Alerts.SlackWebhookURL, "POLYWATCH_ALERTS_SLACK_WEBHOOK_URL")
	setStr(&cfg.Alerts.DiscordWebhookURL, "POLYWATCH_ALERTS_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Alerts.TelegramToken, "POLYWATCH_ALERTS_TELEGRAM_TOKEN")
	setStr(&cfg.Alerts.TelegramChatID, "POLYWATCH_ALERTS_TELEGRAM_CHAT_ID")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "POLYWATCH_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "POLYWATCH_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "POLYWATCH_ARCHIVE_INTERVAL")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "POLYWATCH_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
