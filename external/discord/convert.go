package discord

import (
	"fmt"
	"slices"

	"github.com/bwmarrin/discordgo"
	discordpkg "github.com/foxseedlab/modbot/internal/discord"
)

func toUser(u *discordgo.User) discordpkg.User {
	if u == nil {
		return discordpkg.User{}
	}
	return discordpkg.User{ID: u.ID, Username: u.Username, GlobalName: u.GlobalName, Bot: u.Bot}
}

func toMember(guildID string, m *discordgo.Member) discordpkg.Member {
	return discordpkg.Member{GuildID: guildID, User: toUser(m.User), RoleIDs: slices.Clone(m.Roles)}
}

func toGuild(g *discordgo.Guild) discordpkg.Guild {
	count := g.MemberCount
	if count == 0 {
		count = g.ApproximateMemberCount
	}
	return discordpkg.Guild{ID: g.ID, Name: g.Name, MemberCount: count, ChannelCount: len(g.Channels)}
}

func toChannel(ch *discordgo.Channel) discordpkg.Channel {
	out := discordpkg.Channel{
		ID:          ch.ID,
		GuildID:     ch.GuildID,
		ParentID:    ch.ParentID,
		Name:        ch.Name,
		AppliedTags: slices.Clone(ch.AppliedTags),
	}
	switch {
	case ch.IsThread():
		out.Kind = discordpkg.ChannelKindThread
	case ch.Type == discordgo.ChannelTypeGuildForum:
		out.Kind = discordpkg.ChannelKindForum
	case ch.Type == discordgo.ChannelTypeDM:
		out.Kind = discordpkg.ChannelKindDM
	case ch.Type == discordgo.ChannelTypeGuildText || ch.Type == discordgo.ChannelTypeGuildNews:
		out.Kind = discordpkg.ChannelKindText
	default:
		out.Kind = discordpkg.ChannelKindOther
	}
	if ch.ThreadMetadata != nil {
		out.Archived = ch.ThreadMetadata.Archived
	}
	for _, t := range ch.AvailableTags {
		out.AvailableTags = append(out.AvailableTags, discordpkg.ForumTag{ID: t.ID, Name: t.Name, Emoji: t.EmojiName})
	}
	return out
}

func toMessage(m *discordgo.Message) discordpkg.Message {
	out := discordpkg.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Author:    toUser(m.Author),
		Content:   m.Content,
	}
	for _, e := range m.Embeds {
		if e != nil {
			out.Embeds = append(out.Embeds, toEmbed(e))
		}
	}
	for _, a := range m.Attachments {
		if a != nil {
			out.Attachments = append(out.Attachments, discordpkg.Attachment{Filename: a.Filename, URL: a.URL})
		}
	}
	return out
}

func toEmbed(e *discordgo.MessageEmbed) discordpkg.Embed {
	out := discordpkg.Embed{Title: e.Title, Description: e.Description, URL: e.URL, Color: e.Color}
	if e.Author != nil {
		out.AuthorName = e.Author.Name
	}
	if e.Footer != nil {
		out.Footer = e.Footer.Text
	}
	if e.Image != nil {
		out.ImageURL = e.Image.URL
	}
	for _, f := range e.Fields {
		if f != nil {
			out.Fields = append(out.Fields, discordpkg.EmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
		}
	}
	return out
}

func toMessageEmbeds(embeds []discordpkg.Embed) []*discordgo.MessageEmbed {
	if len(embeds) == 0 {
		return nil
	}
	out := make([]*discordgo.MessageEmbed, 0, len(embeds))
	for _, e := range embeds {
		me := &discordgo.MessageEmbed{Title: e.Title, Description: e.Description, URL: e.URL, Color: e.Color}
		if e.AuthorName != "" {
			me.Author = &discordgo.MessageEmbedAuthor{Name: e.AuthorName}
		}
		if e.Footer != "" {
			me.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
		}
		if e.ImageURL != "" {
			me.Image = &discordgo.MessageEmbedImage{URL: e.ImageURL}
		}
		for _, f := range e.Fields {
			me.Fields = append(me.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
		}
		out = append(out, me)
	}
	return out
}

func toComponents(buttons []discordpkg.Button) []discordgo.MessageComponent {
	if len(buttons) == 0 {
		return nil
	}
	rows := make([]discordgo.MessageComponent, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: b.Label, Style: toButtonStyle(b.Style), CustomID: b.CustomID},
		}})
	}
	return rows
}

func toButtonStyle(s discordpkg.ButtonStyle) discordgo.ButtonStyle {
	switch s {
	case discordpkg.ButtonSecondary:
		return discordgo.SecondaryButton
	case discordpkg.ButtonDanger:
		return discordgo.DangerButton
	default:
		return discordgo.PrimaryButton
	}
}

func toPermissions(bits int64) discordpkg.Permissions {
	has := func(p int64) bool {
		return bits&discordgo.PermissionAdministrator != 0 || bits&p == p
	}
	return discordpkg.Permissions{
		SendMessages:        has(discordgo.PermissionSendMessages),
		CreatePublicThreads: has(discordgo.PermissionCreatePublicThreads),
		ViewChannel:         has(discordgo.PermissionViewChannel),
	}
}

func toApplicationCommand(def discordpkg.SlashCommandDefinition) *discordgo.ApplicationCommand {
	contexts := []discordgo.InteractionContextType{discordgo.InteractionContextGuild}
	cmd := &discordgo.ApplicationCommand{
		Name:        def.Name,
		Description: def.Description,
		Contexts:    &contexts,
	}
	if def.AdminOnly {
		perm := int64(discordgo.PermissionManageGuild)
		cmd.DefaultMemberPermissions = &perm
	}
	for _, opt := range def.Options {
		cmd.Options = append(cmd.Options, &discordgo.ApplicationCommandOption{
			Type:        toOptionType(opt.Kind),
			Name:        opt.Name,
			Description: opt.Description,
			Required:    opt.Required,
		})
	}
	return cmd
}

func toOptionType(k discordpkg.SlashCommandOptionKind) discordgo.ApplicationCommandOptionType {
	switch k {
	case discordpkg.OptionUser:
		return discordgo.ApplicationCommandOptionUser
	case discordpkg.OptionRole:
		return discordgo.ApplicationCommandOptionRole
	case discordpkg.OptionChannel:
		return discordgo.ApplicationCommandOptionChannel
	case discordpkg.OptionBoolean:
		return discordgo.ApplicationCommandOptionBoolean
	default:
		return discordgo.ApplicationCommandOptionString
	}
}

func toInteractionEvent(s *discordgo.Session, i *discordgo.Interaction) (discordpkg.InteractionEvent, bool) {
	event := discordpkg.InteractionEvent{
		ID:        i.ID,
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
		Locale:    string(i.Locale),
	}
	switch {
	case i.Member != nil && i.Member.User != nil:
		event.User = toUser(i.Member.User)
		event.RoleIDs = slices.Clone(i.Member.Roles)
		event.IsAdmin = i.Member.Permissions&discordgo.PermissionAdministrator != 0
	case i.User != nil:
		event.User = toUser(i.User)
	default:
		return event, false
	}

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		event.Kind = discordpkg.InteractionCommand
		event.CommandName = data.Name
		event.Options = make(map[string]string, len(data.Options))
		for _, opt := range data.Options {
			if opt != nil {
				event.Options[opt.Name] = fmt.Sprint(opt.Value)
			}
		}
	case discordgo.InteractionMessageComponent:
		event.Kind = discordpkg.InteractionComponent
		event.CustomID = i.MessageComponentData().CustomID
	default:
		return event, false
	}

	event.Respond = func(r discordpkg.InteractionResponse) error {
		resp := &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{Content: r.Content},
		}
		if r.Update {
			resp.Type = discordgo.InteractionResponseUpdateMessage
			resp.Data.Components = []discordgo.MessageComponent{}
		}
		if r.Ephemeral {
			resp.Data.Flags = discordgo.MessageFlagsEphemeral
		}
		return classify(s.InteractionRespond(i, resp))
	}
	return event, true
}

func tagIDsByEmoji(tags []discordgo.ForumTag, emojis []string) []string {
	ids := make([]string, 0, len(emojis))
	for _, t := range tags {
		if t.ID != "" && slices.Contains(emojis, t.EmojiName) {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
