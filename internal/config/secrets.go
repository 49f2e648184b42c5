package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields
// replaced by the redaction placeholder "***". Use this when logging or
// printing the active configuration so secrets are never accidentally
// exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	redact(&out.Database.DSN)
	redact(&out.Database.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Alerts.SlackWebhookURL)
	redact(&out.Alerts.DiscordWebhookURL)
	redact(&out.Alerts.TelegramToken)

	// Copy slices so callers cannot mutate the original through the
	// redacted copy.
	if cfg.Alerts.DefaultChannels != nil {
		out.Alerts.DefaultChannels = make([]string, len(cfg.Alerts.DefaultChannels))
		copy(out.Alerts.DefaultChannels, cfg.Alerts.DefaultChannels)
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
