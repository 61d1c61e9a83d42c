package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	SnapshotBackendFile     = "file"
	SnapshotBackendPostgres = "postgres"
	SnapshotBackendRedis    = "redis"
)

type Config struct {
	Env                  string
	DiscordToken         string
	OwnerID              string
	LogChannelID         string
	ErrorChannelID       string
	BanAppealsGuildID    string
	ModLogBotID          string
	RelayExemptPrefixes  []string
	SessionCooldown      time.Duration
	GuildSelectTimeout   time.Duration
	ReportKindTimeout    time.Duration
	ModLogCaptureTimeout time.Duration
	SnapshotBackend      string
	SnapshotPath         string
	SnapshotKeep         int
	SnapshotInterval     time.Duration
	DatabaseURL          string
	RedisURL             string
	IncidentWebhookURL   string
	// EntryGateRequiredRoles maps a guild id to the role ids a member needs
	// (any one of them) before a report can be opened there.
	EntryGateRequiredRoles map[string][]string
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	if c.SessionCooldown < 0 {
		return fmt.Errorf("SESSION_COOLDOWN must not be negative, got %s", c.SessionCooldown)
	}
	if c.GuildSelectTimeout <= 0 {
		return fmt.Errorf("GUILD_SELECT_TIMEOUT must be positive, got %s", c.GuildSelectTimeout)
	}
	if c.ReportKindTimeout <= 0 {
		return fmt.Errorf("REPORT_KIND_TIMEOUT must be positive, got %s", c.ReportKindTimeout)
	}
	if c.ModLogCaptureTimeout < time.Second || c.ModLogCaptureTimeout > 10*time.Second {
		return fmt.Errorf("MODLOG_CAPTURE_TIMEOUT must be between 1s and 10s, got %s", c.ModLogCaptureTimeout)
	}
	if c.SnapshotKeep <= 0 {
		return fmt.Errorf("SNAPSHOT_KEEP must be positive, got %d", c.SnapshotKeep)
	}
	if c.SnapshotInterval <= 0 {
		return fmt.Errorf("SNAPSHOT_INTERVAL must be positive, got %s", c.SnapshotInterval)
	}
	switch c.SnapshotBackend {
	case SnapshotBackendFile:
		if c.SnapshotPath == "" {
			return fmt.Errorf("SNAPSHOT_PATH is required when SNAPSHOT_BACKEND=file")
		}
	case SnapshotBackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when SNAPSHOT_BACKEND=postgres")
		}
	case SnapshotBackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when SNAPSHOT_BACKEND=redis")
		}
	default:
		return fmt.Errorf("SNAPSHOT_BACKEND must be one of file, postgres, redis, got %q", c.SnapshotBackend)
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "DISCORD_TOKEN", value: c.DiscordToken},
		{name: "SNAPSHOT_BACKEND", value: c.SnapshotBackend},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ParseEntryGateRoles parses "guild:role1|role2,guild2:role3".
func ParseEntryGateRoles(raw string) (map[string][]string, error) {
	out := make(map[string][]string)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return out, nil
	}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		guildID, roles, ok := strings.Cut(entry, ":")
		guildID = strings.TrimSpace(guildID)
		if !ok || guildID == "" {
			return nil, fmt.Errorf("ENTRY_GATE_REQUIRED_ROLES entry %q must be guild:role", entry)
		}
		for _, role := range strings.Split(roles, "|") {
			role = strings.TrimSpace(role)
			if role == "" {
				continue
			}
			out[guildID] = append(out[guildID], role)
		}
		if len(out[guildID]) == 0 {
			return nil, fmt.Errorf("ENTRY_GATE_REQUIRED_ROLES entry %q lists no roles", entry)
		}
	}
	return out, nil
}
