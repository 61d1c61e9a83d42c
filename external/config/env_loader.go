package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/foxseedlab/modbot/internal/config"
)

type envConfig struct {
	Env                    string        `env:"ENV" envDefault:"production"`
	DiscordToken           string        `env:"DISCORD_TOKEN,required"`
	OwnerID                string        `env:"OWNER_ID"`
	LogChannelID           string        `env:"LOG_CHANNEL_ID"`
	ErrorChannelID         string        `env:"ERROR_CHANNEL_ID"`
	BanAppealsGuildID      string        `env:"BAN_APPEALS_GUILD_ID"`
	ModLogBotID            string        `env:"MODLOG_BOT_ID"`
	RelayExemptPrefixes    []string      `env:"RELAY_EXEMPT_PREFIXES" envSeparator:" " envDefault:"_ ; . , > & t! t@ $ ! ?"`
	SessionCooldown        time.Duration `env:"SESSION_COOLDOWN" envDefault:"30s"`
	GuildSelectTimeout     time.Duration `env:"GUILD_SELECT_TIMEOUT" envDefault:"60s"`
	ReportKindTimeout      time.Duration `env:"REPORT_KIND_TIMEOUT" envDefault:"180s"`
	ModLogCaptureTimeout   time.Duration `env:"MODLOG_CAPTURE_TIMEOUT" envDefault:"5s"`
	SnapshotBackend        string        `env:"SNAPSHOT_BACKEND" envDefault:"file"`
	SnapshotPath           string        `env:"SNAPSHOT_PATH" envDefault:"modbot.json"`
	SnapshotKeep           int           `env:"SNAPSHOT_KEEP" envDefault:"4"`
	SnapshotInterval       time.Duration `env:"SNAPSHOT_INTERVAL" envDefault:"1m"`
	DatabaseURL            string        `env:"DATABASE_URL"`
	RedisURL               string        `env:"REDIS_URL"`
	IncidentWebhookURL     string        `env:"INCIDENT_WEBHOOK_URL"`
	EntryGateRequiredRoles string        `env:"ENTRY_GATE_REQUIRED_ROLES"`
}

func Load() (*internalconfig.Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}
	gateRoles, err := internalconfig.ParseEntryGateRoles(raw.EntryGateRequiredRoles)
	if err != nil {
		return nil, err
	}

	cfg := &internalconfig.Config{
		Env:                    raw.Env,
		DiscordToken:           raw.DiscordToken,
		OwnerID:                raw.OwnerID,
		LogChannelID:           raw.LogChannelID,
		ErrorChannelID:         raw.ErrorChannelID,
		BanAppealsGuildID:      raw.BanAppealsGuildID,
		ModLogBotID:            raw.ModLogBotID,
		RelayExemptPrefixes:    raw.RelayExemptPrefixes,
		SessionCooldown:        raw.SessionCooldown,
		GuildSelectTimeout:     raw.GuildSelectTimeout,
		ReportKindTimeout:      raw.ReportKindTimeout,
		ModLogCaptureTimeout:   raw.ModLogCaptureTimeout,
		SnapshotBackend:        raw.SnapshotBackend,
		SnapshotPath:           raw.SnapshotPath,
		SnapshotKeep:           raw.SnapshotKeep,
		SnapshotInterval:       raw.SnapshotInterval,
		DatabaseURL:            raw.DatabaseURL,
		RedisURL:               raw.RedisURL,
		IncidentWebhookURL:     raw.IncidentWebhookURL,
		EntryGateRequiredRoles: gateRoles,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
