package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/foxseedlab/modbot/internal/discord"
	"github.com/foxseedlab/modbot/internal/store"
)

const (
	commandSetup        = "setup"
	commandSetupForum   = "setup-forum"
	commandSetModRole   = "setmodrole"
	commandClear        = "clear"
	commandSend         = "send"
	commandReveal       = "reveal"
	commandBlock        = "block"
	commandReportButton = "report-button"
	commandAppealButton = "appeal-button"
)

const (
	replyGuildOnly    = "You can only use this in a guild."
	replyNoPermission = "You lack permissions to do that."
	replyAdminOnly    = "Only server administrators can change the mod role."
	replyModRoleFirst = "Please configure the mod role first using `/setmodrole`."
	replyPrimaryFirst = "Please set up the main report room first by running `/setup` without options."
	replySetupFormat  = "I've set the %s as this channel. Now if someone messages me I'll deliver their messages here.\n\n" +
		"If you'd like to pin the following message, it's some instructions on helpful commands for the bot"
	replyNotForum         = "The `forum` option must be a forum channel."
	replyNotMetaThread    = "The `meta_thread` option must be a post inside that forum."
	replyForumSetFormat   = "I've set %s as the report forum. I'll post info messages in %s."
	replyModRoleCleared   = "Removed mod role setting for this server"
	replyModRoleSetFormat = "Set the mod role to <@&%s> (%s)"
	replyClearedFormat    = "I've cleared the guild report state (%d sessions)."
	replyInvalidID        = "Invalid ID"
	replySendForbidden    = "I can't send messages to that user."
	replySentFormat       = "Message from the mods of %s: %s"
	replySent             = "Sent ✅"
	replyNotThread        = "This command only works in an open report thread."
	replyRevealOn         = "In future messages for this report session, your names will be revealed to the reporter. " +
		"Run `/reveal` again to make your names anonymous again. When this report ends, the setting will be reset " +
		"and in the next report you will be anonymous again."
	replyRevealOff = "You are now once again anonymous. If you sent any messages since the last time someone " +
		"inputted the command, the reporter will have been shown your username."
	replyBlockedFormat   = "%s can no longer open reports in this server. Run `/block` again to undo."
	replyUnblockedFormat = "%s can open reports in this server again."
	replyButtonCreated   = "I've created the message"

	reportButtonText = "Click the button to start a report or support ticket with the staff.\n" +
		"Haz clic en el botón para iniciar un reporte o un ticket de soporte con el staff."
	reportButtonLabel = "Start report or support ticket"
	appealButtonText  = "If you were banned and want to appeal, click the button below to talk with the staff."
	appealButtonLabel = "Start ban appeal"

	commandInstructions = "・`end` or `close` - Finish the current report.\n" +
		"・`finish` - Finish the current report and mark it as resolved.\n" +
		"・`/setup` - Setup the main report room (or to reset it completely if there's a bug).\n" +
		"・`/setup secondary:True` - Setup or reset a secondary report room for general questions about the server. " +
		"If not setup, those questions will still come to this channel.\n" +
		"・`/clear` - Clear stuck report sessions for this server.\n" +
		"・`/send <id> <message>` - Sends a message to a user or channel.\n" +
		"・`/reveal` - Run this during a report session to reveal moderator names for future messages. " +
		"Run it again to return to anonymity.\n" +
		"・`/block <user>` - Block or unblock a user from opening reports."
)

var forumTags = []discord.ForumTag{
	{Name: "Complete", Emoji: markerResolved},
	{Name: "Open", Emoji: markerOpen},
	{Name: "Closed (Unresolved)", Emoji: markerUnresolved},
	{Name: "Ban Appeal", Emoji: markerBanAppeal},
}

// SlashCommandDefinitions lists the admin commands registered on startup.
func SlashCommandDefinitions() []discord.SlashCommandDefinition {
	return []discord.SlashCommandDefinition{
		{
			Name:        commandSetup,
			Description: "Set this channel as the report room",
			Options: []discord.SlashCommandOption{
				{Name: "secondary", Description: "Set the secondary room for server questions", Kind: discord.OptionBoolean},
			},
			AdminOnly: true,
		},
		{
			Name:        commandSetupForum,
			Description: "Use a forum channel as the report room",
			Options: []discord.SlashCommandOption{
				{Name: "forum", Description: "Forum channel for reports", Kind: discord.OptionChannel, Required: true},
				{Name: "meta_thread", Description: "Post in the forum for info messages", Kind: discord.OptionChannel, Required: true},
			},
			AdminOnly: true,
		},
		{
			Name:        commandSetModRole,
			Description: "Set or clear the moderator role",
			Options: []discord.SlashCommandOption{
				{Name: "role", Description: "Moderator role; leave empty to clear", Kind: discord.OptionRole},
			},
			AdminOnly: true,
		},
		{Name: commandClear, Description: "Clear stuck report sessions", AdminOnly: true},
		{
			Name:        commandSend,
			Description: "Send a message to a user or channel as the mods",
			Options: []discord.SlashCommandOption{
				{Name: "id", Description: "User or channel id", Kind: discord.OptionString, Required: true},
				{Name: "message", Description: "Message text", Kind: discord.OptionString, Required: true},
			},
			AdminOnly: true,
		},
		{Name: commandReveal, Description: "Toggle revealing moderator names in this report", AdminOnly: true},
		{
			Name:        commandBlock,
			Description: "Block or unblock a user from opening reports",
			Options: []discord.SlashCommandOption{
				{Name: "user", Description: "User to block or unblock", Kind: discord.OptionUser, Required: true},
			},
			AdminOnly: true,
		},
		{Name: commandReportButton, Description: "Post a button that starts a report", AdminOnly: true},
		{
			Name:        commandAppealButton,
			Description: "Post a button that starts a ban appeal",
			Options: []discord.SlashCommandOption{
				{Name: "guild_id", Description: "Guild the appeals go to", Kind: discord.OptionString, Required: true},
			},
			AdminOnly: true,
		},
	}
}

func (m *Manager) handleCommand(ctx context.Context, ev discord.InteractionEvent) error {
	if ev.GuildID == "" {
		return m.reply(ev, replyGuildOnly, true)
	}
	cfg, _ := m.store.Guild(ev.GuildID)
	isMod := cfg.ModeratorRoleID != "" && slices.Contains(ev.RoleIDs, cfg.ModeratorRoleID)
	if !ev.IsAdmin && !isMod {
		slog.Info("command rejected", "command", ev.CommandName, "user_id", ev.User.ID, "guild_id", ev.GuildID)
		return m.reply(ev, replyNoPermission, true)
	}
	if ev.CommandName == commandSetModRole {
		if !ev.IsAdmin {
			return m.reply(ev, replyAdminOnly, true)
		}
		return m.setModRole(ctx, ev)
	}
	if !cfg.AcceptsAdminCommands() {
		return m.reply(ev, replyModRoleFirst, true)
	}

	switch ev.CommandName {
	case commandSetup:
		return m.setup(ctx, ev)
	case commandSetupForum:
		return m.setupForum(ctx, ev)
	case commandClear:
		n := m.store.ClearGuildSessions(ev.GuildID)
		m.saveSnapshot(ctx)
		return m.reply(ev, fmt.Sprintf(replyClearedFormat, n), false)
	case commandSend:
		return m.sendAsMods(ev)
	case commandReveal:
		revealed, ok := m.store.ToggleReveal(ev.ChannelID)
		if !ok {
			return m.reply(ev, replyNotThread, true)
		}
		if revealed {
			return m.reply(ev, replyRevealOn, false)
		}
		return m.reply(ev, replyRevealOff, false)
	case commandBlock:
		userID := ev.Option("user")
		blocked := m.store.ToggleBlock(ev.GuildID, userID)
		m.saveSnapshot(ctx)
		format := replyUnblockedFormat
		if blocked {
			format = replyBlockedFormat
		}
		return m.reply(ev, fmt.Sprintf(format, "<@"+userID+">"), false)
	case commandReportButton:
		return m.postButton(ev, reportButtonText, discord.Button{CustomID: customIDStart, Label: reportButtonLabel})
	case commandAppealButton:
		gid := strings.TrimSpace(ev.Option("guild_id"))
		return m.postButton(ev, appealButtonText, discord.Button{CustomID: customIDAppealPrefix + gid, Label: appealButtonLabel})
	}
	return nil
}

func (m *Manager) setup(ctx context.Context, ev discord.InteractionEvent) error {
	room := "report channel"
	if ev.Option("secondary") == "true" {
		if _, err := m.store.SetSecondaryChannel(ev.GuildID, ev.ChannelID); err != nil {
			if errors.Is(err, store.ErrGuildNotConfigured) || errors.Is(err, store.ErrNoPrimaryChannel) {
				return m.reply(ev, replyPrimaryFirst, true)
			}
			return err
		}
		room = "secondary report channel"
	} else {
		m.store.SetPrimaryChannel(ev.GuildID, ev.ChannelID)
	}
	slog.Info("report room configured", "guild_id", ev.GuildID, "channel_id", ev.ChannelID, "room", room)
	m.saveSnapshot(ctx)
	if err := m.reply(ev, fmt.Sprintf(replySetupFormat, room), false); err != nil {
		return err
	}
	m.notify(ev.ChannelID, commandInstructions)
	return nil
}

func (m *Manager) setupForum(ctx context.Context, ev discord.InteractionEvent) error {
	forum, err := m.discord.Channel(ev.Option("forum"))
	if err != nil || forum.Kind != discord.ChannelKindForum {
		return m.reply(ev, replyNotForum, true)
	}
	meta, err := m.discord.Channel(ev.Option("meta_thread"))
	if err != nil || meta.ParentID != forum.ID {
		return m.reply(ev, replyNotMetaThread, true)
	}
	if err := m.discord.EnsureForumTags(forum.ID, forumTags); err != nil {
		return fmt.Errorf("failed to create forum tags in %s: %w", forum.ID, err)
	}
	m.store.SetForumChannel(ev.GuildID, forum.ID, meta.ID)
	slog.Info("report forum configured", "guild_id", ev.GuildID, "channel_id", forum.ID, "meta_thread_id", meta.ID)
	m.saveSnapshot(ctx)
	return m.reply(ev, fmt.Sprintf(replyForumSetFormat, discord.ChannelMention(forum.ID), discord.ChannelMention(meta.ID)), false)
}

func (m *Manager) setModRole(ctx context.Context, ev discord.InteractionEvent) error {
	roleID := ev.Option("role")
	m.store.SetModeratorRole(ev.GuildID, roleID)
	m.saveSnapshot(ctx)
	if roleID == "" {
		return m.reply(ev, replyModRoleCleared, false)
	}
	return m.reply(ev, fmt.Sprintf(replyModRoleSetFormat, roleID, roleID), false)
}

// sendAsMods posts a message to a channel id, or to a user's DM when the id
// is not a channel.
func (m *Manager) sendAsMods(ev discord.InteractionEvent) error {
	id := strings.TrimSpace(ev.Option("id"))
	guildName := ev.GuildID
	if g, err := m.discord.Guild(ev.GuildID); err == nil {
		guildName = g.Name
	}
	target := id
	if _, err := m.discord.Channel(id); err != nil {
		if _, err := m.discord.User(id); err != nil {
			return m.reply(ev, replyInvalidID, true)
		}
		dmID, err := m.discord.EnsureDMChannel(id)
		if err != nil {
			return m.reply(ev, replySendForbidden, true)
		}
		target = dmID
	}
	if _, err := m.send(target, fmt.Sprintf(replySentFormat, guildName, ev.Option("message"))); err != nil {
		if errors.Is(err, discord.ErrForbidden) {
			return m.reply(ev, replySendForbidden, true)
		}
		return fmt.Errorf("failed to send mod message to %s: %w", id, err)
	}
	return m.reply(ev, replySent, true)
}

func (m *Manager) postButton(ev discord.InteractionEvent, text string, button discord.Button) error {
	button.Style = discord.ButtonPrimary
	_, err := m.discord.SendMessage(ev.ChannelID, discord.OutgoingMessage{
		Embeds:  []discord.Embed{{Description: text, Color: colorButton}},
		Buttons: []discord.Button{button},
	})
	if err != nil {
		return fmt.Errorf("failed to post button in %s: %w", ev.ChannelID, err)
	}
	return m.reply(ev, replyButtonCreated, true)
}

func (m *Manager) reply(ev discord.InteractionEvent, content string, ephemeral bool) error {
	return m.respond(ev, discord.InteractionResponse{Content: content, Ephemeral: ephemeral})
}
