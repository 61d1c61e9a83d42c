package incident

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/foxseedlab/modbot/internal/discord"
	"github.com/foxseedlab/modbot/internal/webhook"
	"github.com/google/uuid"
)

const (
	incidentColor   = 0xe74c3c
	deliveryTimeout = 10 * time.Second
	maxErrorRunes   = 3900
)

// Scope identifies where an incident happened. Empty fields are omitted.
type Scope struct {
	GuildID   string
	ChannelID string
	UserID    string
}

type Reporter struct {
	dc        discord.Client
	wh        webhook.Sender
	channelID string
	now       func() time.Time
}

func NewReporter(dc discord.Client, wh webhook.Sender, channelID string) *Reporter {
	return &Reporter{dc: dc, wh: wh, channelID: channelID, now: time.Now}
}

// Report logs err and forwards it to the error channel and the incident
// webhook. It returns the incident id.
func (r *Reporter) Report(ctx context.Context, event string, scope Scope, err error) string {
	inc := webhook.Incident{
		ID:         uuid.NewString(),
		Event:      event,
		GuildID:    scope.GuildID,
		ChannelID:  scope.ChannelID,
		UserID:     scope.UserID,
		Error:      err.Error(),
		OccurredAt: r.now().UTC(),
	}
	slog.Error("incident", "incident_id", inc.ID, "event", event, "guild_id", scope.GuildID, "channel_id", scope.ChannelID, "user_id", scope.UserID, "error", err)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
	defer cancel()
	if r.channelID != "" {
		if _, sendErr := r.dc.SendMessage(r.channelID, discord.OutgoingMessage{Embeds: []discord.Embed{incidentEmbed(inc)}}); sendErr != nil {
			slog.Warn("failed to post incident to error channel", "incident_id", inc.ID, "channel_id", r.channelID, "error", sendErr)
		}
	}
	if r.wh != nil {
		if whErr := r.wh.SendIncident(ctx, inc); whErr != nil {
			slog.Warn("failed to deliver incident webhook", "incident_id", inc.ID, "error", whErr)
		}
	}
	return inc.ID
}

func incidentEmbed(inc webhook.Incident) discord.Embed {
	msg := []rune(inc.Error)
	if len(msg) > maxErrorRunes {
		msg = append(msg[:maxErrorRunes], '…')
	}
	e := discord.Embed{
		Title:       fmt.Sprintf("Error in %s", inc.Event),
		Description: "```\n" + string(msg) + "\n```",
		Color:       incidentColor,
		Footer:      inc.ID,
	}
	for _, f := range []struct{ name, value string }{
		{"Guild", inc.GuildID},
		{"Channel", inc.ChannelID},
		{"User", inc.UserID},
	} {
		if f.value != "" {
			e.Fields = append(e.Fields, discord.EmbedField{Name: f.name, Value: f.value, Inline: true})
		}
	}
	return e
}
