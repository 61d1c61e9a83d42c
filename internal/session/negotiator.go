package session

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/foxseedlab/modbot/internal/discord"
	"github.com/foxseedlab/modbot/internal/locale"
	"github.com/sourcegraph/conc/panics"
)

type OutcomeKind int

const (
	OutcomeCancelled OutcomeKind = iota
	OutcomeSelected
	OutcomeBlocked
)

type NegotiationOutcome struct {
	Kind       OutcomeKind
	GuildID    string
	ReportKind ReportKind
}

var cancelled = NegotiationOutcome{Kind: OutcomeCancelled}

const (
	customIDStart        = "modbot:start"
	customIDAppealPrefix = "modbot:appeal:"
)

// startEntry negotiates a new session for a user who sent msg in a DM
// and opens it with msg as the first relayed message.
func (m *Manager) startEntry(ctx context.Context, msg discord.Message) error {
	user := msg.Author
	if !m.store.BeginNegotiation(user.ID) {
		return nil
	}
	defer m.store.EndNegotiation(user.ID)

	var outcome NegotiationOutcome
	var err error
	if recovered := panics.Try(func() { outcome, err = m.negotiate(ctx, user, msg.ChannelID) }); recovered != nil {
		err = recovered.AsError()
	}
	if err != nil {
		m.notify(msg.ChannelID, messageSetupFailed)
		return fmt.Errorf("failed to negotiate entry for user %s: %w", user.ID, err)
	}

	switch outcome.Kind {
	case OutcomeBlocked:
		slog.Info("blocked user tried to open a report", "user_id", user.ID, "guild_id", outcome.GuildID)
		m.notify(msg.ChannelID, messageBlocked)
	case OutcomeSelected:
		seed := msg
		return m.openSession(ctx, openRequest{
			User:        user,
			DMChannelID: msg.ChannelID,
			GuildID:     outcome.GuildID,
			Secondary:   outcome.ReportKind == ReportKindSecondary,
			Seed:        &seed,
		})
	}
	return nil
}

func (m *Manager) negotiate(ctx context.Context, user discord.User, dmID string) (NegotiationOutcome, error) {
	if m.cooldownNotice(user.ID, dmID) {
		return cancelled, nil
	}
	guild, ok, err := m.selectGuild(ctx, user, dmID)
	if err != nil || !ok {
		return cancelled, err
	}
	return m.confirmGuild(ctx, user, dmID, guild)
}

// cooldownNotice tells the user to wait when they closed a session too
// recently and reports whether they did.
func (m *Manager) cooldownNotice(userID, dmID string) bool {
	remaining := m.store.CooldownRemaining(userID, m.now(), m.cfg.SessionCooldown)
	if remaining <= 0 {
		return false
	}
	slog.Info("entry rejected by cooldown", "user_id", userID, "remaining", remaining)
	m.notify(dmID, cooldownMessage(int(math.Ceil(remaining.Seconds()))))
	return true
}

func (m *Manager) selectGuild(ctx context.Context, user discord.User, dmID string) (discord.Guild, bool, error) {
	shared, err := m.discord.SharedGuilds(user.ID)
	if err != nil {
		return discord.Guild{}, false, fmt.Errorf("failed to list shared guilds: %w", err)
	}
	guilds := make([]discord.Guild, 0, len(shared))
	for _, g := range shared {
		if m.cfg.BanAppealsGuildID != "" && g.ID == m.cfg.BanAppealsGuildID {
			continue
		}
		guilds = append(guilds, g)
	}

	switch len(guilds) {
	case 0:
		m.notify(dmID, messageNoSharedGuild)
		return discord.Guild{}, false, nil
	case 1:
		if !m.onboarded(guilds[0].ID) {
			m.notify(dmID, messageSingleNotSetup)
			return discord.Guild{}, false, nil
		}
		return guilds[0], true, nil
	}

	res, err := m.guildPrompt(ctx, user, dmID, guilds)
	if err != nil || res.Status != PromptSelected {
		return discord.Guild{}, false, err
	}
	if !m.onboarded(res.Value.ID) {
		m.notify(dmID, messageSelectedNotSetup)
		return discord.Guild{}, false, nil
	}
	return res.Value, true, nil
}

func (m *Manager) onboarded(guildID string) bool {
	cfg, ok := m.store.Guild(guildID)
	return ok && cfg.CanOpenSessions()
}

func (m *Manager) confirmGuild(ctx context.Context, user discord.User, dmID string, guild discord.Guild) (NegotiationOutcome, error) {
	if m.store.IsBlocked(guild.ID, user.ID) {
		return NegotiationOutcome{Kind: OutcomeBlocked, GuildID: guild.ID}, nil
	}
	res, err := m.reportKindPrompt(ctx, user, dmID, guild.Name)
	if err != nil || res.Status != PromptSelected {
		return cancelled, err
	}
	return NegotiationOutcome{Kind: OutcomeSelected, GuildID: guild.ID, ReportKind: res.Value}, nil
}

func (m *Manager) handleComponent(ctx context.Context, ev discord.InteractionEvent) error {
	switch {
	case ev.CustomID == customIDStart:
		if ev.GuildID == "" {
			return nil
		}
		return m.startFromButton(ctx, ev, ev.GuildID, false)
	case strings.HasPrefix(ev.CustomID, customIDAppealPrefix):
		return m.startFromButton(ctx, ev, strings.TrimPrefix(ev.CustomID, customIDAppealPrefix), true)
	}
	return nil
}

// startFromButton opens a session for the guild named by a persistent
// button, without a seed message. Ban appeals skip the report type prompt.
func (m *Manager) startFromButton(ctx context.Context, ev discord.InteractionEvent, guildID string, appeal bool) error {
	user := ev.User
	lang := m.lang(user.ID)
	checkDMs := discord.InteractionResponse{
		Content:   locale.Sprintf(lang, locale.MsgCheckDirectMessages, "<@"+m.botUserID+">"),
		Ephemeral: true,
	}
	if !m.store.BeginNegotiation(user.ID) {
		return m.respond(ev, checkDMs)
	}
	defer m.store.EndNegotiation(user.ID)

	dmID, err := m.discord.EnsureDMChannel(user.ID)
	if err != nil {
		slog.Info("failed to open dm for button entry", "user_id", user.ID, "error", err)
		return m.respond(ev, discord.InteractionResponse{Content: messageBlocked, Ephemeral: true})
	}
	if err := m.respond(ev, checkDMs); err != nil {
		return err
	}

	var outcome NegotiationOutcome
	if recovered := panics.Try(func() { outcome, err = m.negotiateButton(ctx, user, dmID, guildID, appeal) }); recovered != nil {
		err = recovered.AsError()
	}
	if err != nil {
		m.notify(dmID, messageSetupFailed)
		return fmt.Errorf("failed to negotiate button entry for user %s: %w", user.ID, err)
	}

	switch outcome.Kind {
	case OutcomeBlocked:
		slog.Info("blocked user tried to open a report", "user_id", user.ID, "guild_id", guildID)
		m.notify(dmID, messageBlocked)
	case OutcomeSelected:
		return m.openSession(ctx, openRequest{
			User:        user,
			DMChannelID: dmID,
			GuildID:     guildID,
			Secondary:   outcome.ReportKind == ReportKindSecondary,
			BanAppeal:   appeal,
		})
	}
	return nil
}

func (m *Manager) negotiateButton(ctx context.Context, user discord.User, dmID, guildID string, appeal bool) (NegotiationOutcome, error) {
	if m.cooldownNotice(user.ID, dmID) {
		return cancelled, nil
	}
	if !m.onboarded(guildID) {
		m.notify(dmID, messageSelectedNotSetup)
		return cancelled, nil
	}
	if appeal {
		if m.store.IsBlocked(guildID, user.ID) {
			return NegotiationOutcome{Kind: OutcomeBlocked, GuildID: guildID}, nil
		}
		return NegotiationOutcome{Kind: OutcomeSelected, GuildID: guildID}, nil
	}
	guild, err := m.discord.Guild(guildID)
	if err != nil {
		return cancelled, fmt.Errorf("failed to look up guild %s: %w", guildID, err)
	}
	return m.confirmGuild(ctx, user, dmID, guild)
}

func (m *Manager) respond(ev discord.InteractionEvent, resp discord.InteractionResponse) error {
	if ev.Respond == nil {
		return nil
	}
	if err := ev.Respond(resp); err != nil {
		return fmt.Errorf("failed to respond to interaction: %w", err)
	}
	return nil
}
