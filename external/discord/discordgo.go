package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	discordpkg "github.com/foxseedlab/modbot/internal/discord"
)

const threadAutoArchiveMinutes = 10080

type Client struct {
	session   *discordgo.Session
	token     string
	botUserID string

	waiters *waiterRegistry

	// selfArchived holds thread ids this client archived itself, until the
	// matching thread update arrives.
	selfArchived sync.Map
	readyGuilds  sync.Map
}

func NewClient(token string) discordpkg.Client {
	return &Client{
		token:   token,
		waiters: newWaiterRegistry(),
	}
}

func (c *Client) Connect(ctx context.Context) error {
	_ = ctx
	s, err := discordgo.New("Bot " + c.token)
	if err != nil {
		return err
	}
	c.session = s
	s.Identify.Intents = discordgo.MakeIntent(
		discordgo.IntentsGuilds |
			discordgo.IntentsGuildMembers |
			discordgo.IntentsGuildMessages |
			discordgo.IntentsDirectMessages |
			discordgo.IntentsDirectMessageTyping |
			discordgo.IntentsMessageContent,
	)
	s.AddHandler(c.onReady)
	s.AddHandler(c.onMessageForWaiters)
	if err := s.Open(); err != nil {
		return err
	}
	userID, err := c.GetBotUserID()
	if err != nil {
		return err
	}
	c.botUserID = userID
	return nil
}

func (c *Client) Close() error {
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}

func (c *Client) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (c *Client) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	if r == nil {
		return
	}
	for _, g := range r.Guilds {
		if g != nil {
			c.readyGuilds.Store(g.ID, struct{}{})
		}
	}
	slog.Info("discord ready", "guilds", len(r.Guilds))
}

func (c *Client) onMessageForWaiters(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil || m.Author == nil {
		return
	}
	c.waiters.offerMessage(toMessage(m.Message))
}

func (c *Client) RegisterMessageHandler(handler func(discordpkg.Message)) {
	c.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m == nil || m.Message == nil || m.Author == nil {
			return
		}
		handler(toMessage(m.Message))
	})
}

func (c *Client) RegisterThreadUpdateHandler(handler func(discordpkg.ThreadUpdateEvent)) {
	c.session.AddHandler(func(s *discordgo.Session, tu *discordgo.ThreadUpdate) {
		if tu == nil || tu.Channel == nil {
			return
		}
		event := discordpkg.ThreadUpdateEvent{
			ThreadID: tu.ID,
			GuildID:  tu.GuildID,
			ParentID: tu.ParentID,
		}
		if tu.ThreadMetadata != nil {
			event.Archived = tu.ThreadMetadata.Archived
		}
		if tu.BeforeUpdate != nil && tu.BeforeUpdate.ThreadMetadata != nil {
			event.WasArchived = tu.BeforeUpdate.ThreadMetadata.Archived
		}
		if event.Archived {
			_, event.ArchivedBySelf = c.selfArchived.LoadAndDelete(tu.ID)
		}
		handler(event)
	})
}

func (c *Client) RegisterInteractionHandler(handler func(discordpkg.InteractionEvent)) {
	c.session.AddHandler(func(s *discordgo.Session, ic *discordgo.InteractionCreate) {
		if ic == nil || ic.Interaction == nil {
			return
		}
		event, ok := toInteractionEvent(s, ic.Interaction)
		if !ok {
			return
		}
		if event.Kind == discordpkg.InteractionComponent && c.waiters.offerComponent(event) {
			return
		}
		slog.Debug("interaction received", "guild_id", event.GuildID, "channel_id", event.ChannelID, "command", event.CommandName, "custom_id", event.CustomID, "user_id", event.User.ID)
		handler(event)
	})
}

func (c *Client) RegisterTypingHandler(handler func(discordpkg.TypingEvent)) {
	c.session.AddHandler(func(s *discordgo.Session, ts *discordgo.TypingStart) {
		if ts == nil || ts.UserID == "" {
			return
		}
		handler(discordpkg.TypingEvent{UserID: ts.UserID, ChannelID: ts.ChannelID, GuildID: ts.GuildID})
	})
}

// RegisterGuildJoinHandler reports guilds joined after startup. Guild
// creates for guilds listed in the ready payload are ignored.
func (c *Client) RegisterGuildJoinHandler(handler func(discordpkg.Guild)) {
	c.session.AddHandler(func(s *discordgo.Session, gc *discordgo.GuildCreate) {
		if gc == nil || gc.Guild == nil {
			return
		}
		if _, known := c.readyGuilds.LoadOrStore(gc.ID, struct{}{}); known {
			return
		}
		handler(toGuild(gc.Guild))
	})
}

func (c *Client) UpsertSlashCommands(defs []discordpkg.SlashCommandDefinition) error {
	appID := c.applicationID()
	if appID == "" {
		return fmt.Errorf("discord application id is not available")
	}
	cmds := make([]*discordgo.ApplicationCommand, 0, len(defs))
	for _, def := range defs {
		if def.Name == "" {
			continue
		}
		cmds = append(cmds, toApplicationCommand(def))
	}
	_, err := c.session.ApplicationCommandBulkOverwrite(appID, "", cmds)
	return classify(err)
}

func (c *Client) EnsureDMChannel(userID string) (string, error) {
	ch, err := c.session.UserChannelCreate(userID)
	if err != nil {
		return "", classify(err)
	}
	return ch.ID, nil
}

func (c *Client) SendMessage(channelID string, msg discordpkg.OutgoingMessage) (string, error) {
	data := &discordgo.MessageSend{
		Content:    msg.Content,
		Embeds:     toMessageEmbeds(msg.Embeds),
		Components: toComponents(msg.Buttons),
	}
	if msg.ReplyTo != "" {
		data.Reference = &discordgo.MessageReference{MessageID: msg.ReplyTo, ChannelID: channelID}
	}
	sent, err := c.session.ChannelMessageSendComplex(channelID, data)
	if err != nil {
		return "", classify(err)
	}
	return sent.ID, nil
}

func (c *Client) EditMessage(channelID, messageID string, msg discordpkg.OutgoingMessage) error {
	edit := discordgo.NewMessageEdit(channelID, messageID).SetContent(msg.Content)
	if len(msg.Embeds) > 0 {
		edit.SetEmbeds(toMessageEmbeds(msg.Embeds))
	}
	if len(msg.Buttons) > 0 || msg.ClearButtons {
		components := toComponents(msg.Buttons)
		if components == nil {
			components = []discordgo.MessageComponent{}
		}
		edit.Components = &components
	}
	_, err := c.session.ChannelMessageEditComplex(edit)
	return classify(err)
}

func (c *Client) DeleteMessage(channelID, messageID string) error {
	return classify(c.session.ChannelMessageDelete(channelID, messageID))
}

func (c *Client) TriggerTyping(channelID string) error {
	return classify(c.session.ChannelTyping(channelID))
}

func (c *Client) AddReaction(channelID, messageID, emoji string) error {
	return classify(c.session.MessageReactionAdd(channelID, messageID, emoji))
}

func (c *Client) RemoveOwnReaction(channelID, messageID, emoji string) error {
	return classify(c.session.MessageReactionRemove(channelID, messageID, emoji, "@me"))
}

func (c *Client) CreateThreadFromMessage(channelID, messageID, name string) (discordpkg.Channel, error) {
	th, err := c.session.MessageThreadStartComplex(channelID, messageID, &discordgo.ThreadStart{
		Name:                truncateRunes(name, 100),
		AutoArchiveDuration: threadAutoArchiveMinutes,
	})
	if err != nil {
		return discordpkg.Channel{}, classify(err)
	}
	return toChannel(th), nil
}

func (c *Client) CreateForumPost(forumID, name string, msg discordpkg.OutgoingMessage, tagEmojis []string) (discordpkg.Channel, error) {
	forum := c.resolveChannel(forumID)
	if forum == nil {
		return discordpkg.Channel{}, discordpkg.ErrNotFound
	}
	th, err := c.session.ForumThreadStartComplex(forumID, &discordgo.ThreadStart{
		Name:                truncateRunes(name, 100),
		AutoArchiveDuration: threadAutoArchiveMinutes,
		AppliedTags:         tagIDsByEmoji(forum.AvailableTags, tagEmojis),
	}, &discordgo.MessageSend{
		Content:    msg.Content,
		Embeds:     toMessageEmbeds(msg.Embeds),
		Components: toComponents(msg.Buttons),
	})
	if err != nil {
		return discordpkg.Channel{}, classify(err)
	}
	return toChannel(th), nil
}

func (c *Client) ArchiveThread(threadID string) error {
	archived := true
	c.selfArchived.Store(threadID, struct{}{})
	_, err := c.session.ChannelEdit(threadID, &discordgo.ChannelEdit{Archived: &archived})
	if err != nil {
		c.selfArchived.Delete(threadID)
		return classify(err)
	}
	return nil
}

func (c *Client) EditThreadTags(threadID string, add, remove []string) error {
	th := c.resolveChannel(threadID)
	if th == nil {
		return discordpkg.ErrNotFound
	}
	forum := c.resolveChannel(th.ParentID)
	if forum == nil || forum.Type != discordgo.ChannelTypeGuildForum {
		return nil
	}
	addIDs := tagIDsByEmoji(forum.AvailableTags, add)
	removeIDs := tagIDsByEmoji(forum.AvailableTags, remove)

	applied := make([]string, 0, len(th.AppliedTags)+len(addIDs))
	for _, id := range th.AppliedTags {
		if !slices.Contains(removeIDs, id) {
			applied = append(applied, id)
		}
	}
	for _, id := range addIDs {
		if !slices.Contains(applied, id) {
			applied = append(applied, id)
		}
	}
	_, err := c.session.ChannelEdit(threadID, &discordgo.ChannelEdit{AppliedTags: &applied})
	return classify(err)
}

func (c *Client) EnsureForumTags(forumID string, tags []discordpkg.ForumTag) error {
	forum := c.resolveChannel(forumID)
	if forum == nil {
		return discordpkg.ErrNotFound
	}
	available := slices.Clone(forum.AvailableTags)
	changed := false
	for _, want := range tags {
		if len(tagIDsByEmoji(available, []string{want.Emoji})) > 0 {
			continue
		}
		available = append(available, discordgo.ForumTag{Name: want.Name, EmojiName: want.Emoji})
		changed = true
	}
	if !changed {
		return nil
	}
	_, err := c.session.ChannelEdit(forumID, &discordgo.ChannelEdit{AvailableTags: &available})
	return classify(err)
}

func (c *Client) Channel(channelID string) (discordpkg.Channel, error) {
	if c.session.State != nil {
		ch, err := c.session.State.Channel(channelID)
		if err == nil && ch != nil {
			return toChannel(ch), nil
		}
	}
	ch, err := c.session.Channel(channelID)
	if err != nil {
		return discordpkg.Channel{}, classify(err)
	}
	return toChannel(ch), nil
}

func (c *Client) User(userID string) (discordpkg.User, error) {
	u, err := c.session.User(userID)
	if err != nil {
		return discordpkg.User{}, classify(err)
	}
	return toUser(u), nil
}

func (c *Client) Member(guildID, userID string) (discordpkg.Member, error) {
	if c.session.State != nil {
		m, err := c.session.State.Member(guildID, userID)
		if err == nil && m != nil {
			return toMember(guildID, m), nil
		}
	}
	m, err := c.session.GuildMember(guildID, userID)
	if err != nil {
		return discordpkg.Member{}, classify(err)
	}
	return toMember(guildID, m), nil
}

func (c *Client) Guild(guildID string) (discordpkg.Guild, error) {
	if c.session.State != nil {
		g, err := c.session.State.Guild(guildID)
		if err == nil && g != nil && g.Name != "" {
			return toGuild(g), nil
		}
	}
	g, err := c.session.Guild(guildID)
	if err != nil {
		return discordpkg.Guild{}, classify(err)
	}
	return toGuild(g), nil
}

// SharedGuilds checks membership in every guild the bot is in. Guilds
// where the member lookup fails for another reason than not found are
// skipped with a warning.
func (c *Client) SharedGuilds(userID string) ([]discordpkg.Guild, error) {
	if c.session.State == nil {
		return nil, nil
	}
	c.session.State.RLock()
	guilds := slices.Clone(c.session.State.Guilds)
	c.session.State.RUnlock()

	shared := make([]discordpkg.Guild, 0)
	for _, g := range guilds {
		if g == nil {
			continue
		}
		if _, err := c.Member(g.ID, userID); err != nil {
			if !errors.Is(err, discordpkg.ErrNotFound) {
				slog.Warn("failed to check guild membership", "guild_id", g.ID, "user_id", userID, "error", err)
			}
			continue
		}
		shared = append(shared, toGuild(g))
	}
	slices.SortFunc(shared, func(a, b discordpkg.Guild) int {
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	return shared, nil
}

func (c *Client) BotPermissions(channelID string) (discordpkg.Permissions, error) {
	return c.MemberPermissions(channelID, c.botUserID)
}

func (c *Client) MemberPermissions(channelID, userID string) (discordpkg.Permissions, error) {
	if c.session.State != nil {
		bits, err := c.session.State.UserChannelPermissions(userID, channelID)
		if err == nil {
			return toPermissions(bits), nil
		}
	}
	bits, err := c.session.UserChannelPermissions(userID, channelID)
	if err != nil {
		return discordpkg.Permissions{}, classify(err)
	}
	return toPermissions(bits), nil
}

func (c *Client) WaitForMessage(ctx context.Context, match func(discordpkg.Message) bool) (discordpkg.Message, error) {
	return c.waiters.waitMessage(ctx, match)
}

func (c *Client) WaitForComponent(ctx context.Context, match func(discordpkg.InteractionEvent) bool) (discordpkg.InteractionEvent, error) {
	return c.waiters.waitComponent(ctx, match)
}

func (c *Client) GetBotUserID() (string, error) {
	if c.botUserID != "" {
		return c.botUserID, nil
	}
	if c.session == nil {
		return "", fmt.Errorf("discord session is not initialized")
	}
	if c.session.State != nil && c.session.State.User != nil && c.session.State.User.ID != "" {
		c.botUserID = c.session.State.User.ID
		return c.botUserID, nil
	}
	u, err := c.session.User("@me")
	if err != nil {
		return "", err
	}
	c.botUserID = u.ID
	return c.botUserID, nil
}

func (c *Client) resolveChannel(channelID string) *discordgo.Channel {
	if c.session == nil || channelID == "" {
		return nil
	}
	if c.session.State != nil {
		channel, err := c.session.State.Channel(channelID)
		if err == nil && channel != nil {
			return channel
		}
	}
	channel, err := c.session.Channel(channelID)
	if err != nil || channel == nil {
		return nil
	}
	return channel
}

func (c *Client) applicationID() string {
	if c.session == nil || c.session.State == nil {
		return ""
	}
	if c.session.State.Application != nil && c.session.State.Application.ID != "" {
		return c.session.State.Application.ID
	}
	if c.session.State.User != nil {
		return c.session.State.User.ID
	}
	return ""
}

// classify maps REST status codes onto the transport sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) || restErr.Response == nil {
		return err
	}
	switch restErr.Response.StatusCode {
	case http.StatusForbidden:
		return fmt.Errorf("%w: %v", discordpkg.ErrForbidden, err)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %v", discordpkg.ErrNotFound, err)
	default:
		return err
	}
}
