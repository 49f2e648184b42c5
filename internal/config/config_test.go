package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Defaults() should validate: %v", err)
	}
}

func TestValidateCatchesBadValues(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "loud"
	cfg.Arb.EdgeMin = 1.5
	cfg.Alerts.DefaultChannels = []string{"pager"}
	cfg.Archive.Enabled = true // without s3.enabled

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"log_level", "edge_min", "pager", "s3.enabled"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing mention of %s", err, want)
		}
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
log_level = "debug"

[arb]
edge_min = 0.02
market_cooldown = "2m"

[alerts]
default_channels = ["log", "slack"]
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("log_level = %q, want debug", cfg.LogLevel)
	}
	if cfg.Arb.EdgeMin != 0.02 {
		t.Errorf("edge_min = %g, want 0.02", cfg.Arb.EdgeMin)
	}
	if cfg.Arb.MarketCooldown.Duration != 2*time.Minute {
		t.Errorf("market_cooldown = %s, want 2m", cfg.Arb.MarketCooldown.Duration)
	}
	// Untouched sections keep their defaults.
	if cfg.Arb.MaxShares != 5000 {
		t.Errorf("max_shares = %g, want default 5000", cfg.Arb.MaxShares)
	}
	if got := cfg.Alerts.DefaultChannels; len(got) != 2 || got[1] != "slack" {
		t.Errorf("default_channels = %v, want [log slack]", got)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("POLYWATCH_DATABASE_DSN", "postgres://watch:secret@db:5432/polywatch")
	t.Setenv("POLYWATCH_ARB_EDGE_MIN", "0.015")
	t.Setenv("POLYWATCH_TRADES_POLL_INTERVAL", "45s")
	t.Setenv("POLYWATCH_ALERTS_DEFAULT_CHANNELS", "log, telegram")
	t.Setenv("POLYWATCH_REDIS_ENABLED", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Database.DSN != "postgres://watch:secret@db:5432/polywatch" {
		t.Errorf("dsn not overridden: %q", cfg.Database.DSN)
	}
	if cfg.Arb.EdgeMin != 0.015 {
		t.Errorf("edge_min = %g, want 0.015", cfg.Arb.EdgeMin)
	}
	if cfg.Trades.PollInterval.Duration != 45*time.Second {
		t.Errorf("poll_interval = %s, want 45s", cfg.Trades.PollInterval.Duration)
	}
	if got := cfg.Alerts.DefaultChannels; len(got) != 2 || got[0] != "log" || got[1] != "telegram" {
		t.Errorf("default_channels = %v, want [log telegram]", got)
	}
	if !cfg.Redis.Enabled {
		t.Error("redis.enabled not overridden")
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Database.Password = "hunter2"
	cfg.Alerts.SlackWebhookURL = "https://hooks.slack.com/services/T/B/x"
	cfg.S3.SecretKey = "sk"

	red := RedactedConfig(&cfg)

	if red.Database.Password != "***" || red.Alerts.SlackWebhookURL != "***" || red.S3.SecretKey != "***" {
		t.Error("secrets not redacted")
	}
	if cfg.Database.Password != "hunter2" {
		t.Error("original mutated")
	}
	// Empty secrets stay empty rather than becoming "***".
	if red.Redis.Password != "" {
		t.Errorf("empty password redacted to %q", red.Redis.Password)
	}
}
