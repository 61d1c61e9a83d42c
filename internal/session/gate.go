package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/foxseedlab/modbot/internal/discord"
	"github.com/foxseedlab/modbot/internal/locale"
)

// EntryGate may veto a session before its thread is created. A veto is a
// policy decision; the gate informs the user itself.
type EntryGate interface {
	Allow(ctx context.Context, req GateRequest) (bool, error)
}

type GateRequest struct {
	User          discord.User
	GuildID       string
	GuildName     string
	MetaChannelID string
	DMChannelID   string
	Lang          string
	// Seed is the user's first message text, empty for button entries.
	Seed string
}

func (m *Manager) gateRequest(req openRequest, metaID string) GateRequest {
	gr := GateRequest{
		User:          req.User,
		GuildID:       req.GuildID,
		GuildName:     req.GuildID,
		MetaChannelID: metaID,
		DMChannelID:   req.DMChannelID,
		Lang:          m.lang(req.User.ID),
	}
	if g, err := m.discord.Guild(req.GuildID); err == nil {
		gr.GuildName = g.Name
	}
	if req.Seed != nil {
		gr.Seed = req.Seed.Content
	}
	return gr
}

// RoleGate turns away members that hold none of the roles configured for
// their guild. Guilds without configured roles are open to everyone.
type RoleGate struct {
	discord  discord.Client
	required map[string][]string
}

func NewRoleGate(dc discord.Client, required map[string][]string) *RoleGate {
	return &RoleGate{discord: dc, required: required}
}

func (g *RoleGate) Allow(ctx context.Context, req GateRequest) (bool, error) {
	roles := g.required[req.GuildID]
	if len(roles) == 0 {
		return true, nil
	}
	member, err := g.discord.Member(req.GuildID, req.User.ID)
	if errors.Is(err, discord.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up member %s: %w", req.User.ID, err)
	}
	if member.HasAnyRole(roles...) {
		return true, nil
	}

	notice := locale.Sprintf(req.Lang, locale.MsgOnboardingRequired, req.GuildName)
	if _, err := g.discord.SendMessage(req.DMChannelID, discord.OutgoingMessage{Content: notice}); err != nil {
		slog.Warn("failed to send onboarding notice", "user_id", req.User.ID, "error", err)
	}
	staff := discord.OutgoingMessage{
		Content: req.User.Mention(),
		Embeds: []discord.Embed{{
			Description: fmt.Sprintf(messageGateDeniedFormat, req.User.Mention(), req.Seed),
			Color:       colorDenied,
		}},
	}
	if _, err := g.discord.SendMessage(req.MetaChannelID, staff); err != nil {
		slog.Warn("failed to post gate notice", "channel_id", req.MetaChannelID, "error", err)
	}
	return false, nil
}
