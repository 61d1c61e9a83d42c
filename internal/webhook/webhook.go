package webhook

import (
	"context"
	"time"
)

// Incident is the developer-facing record of an unexpected failure.
type Incident struct {
	ID         string    `json:"id"`
	Event      string    `json:"event"`
	GuildID    string    `json:"guild_id,omitempty"`
	ChannelID  string    `json:"channel_id,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	Error      string    `json:"error"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Sender interface {
	SendIncident(ctx context.Context, incident Incident) error
}
