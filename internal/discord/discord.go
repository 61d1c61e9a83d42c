package discord

import (
	"context"
	"errors"
	"fmt"
)

// MessageLimit is the maximum number of characters in one chat message.
const MessageLimit = 2000

var (
	// ErrForbidden means the platform refused the call, e.g. the recipient
	// blocked the bot or the bot lost access to the channel.
	ErrForbidden = errors.New("discord: forbidden")
	ErrNotFound  = errors.New("discord: not found")
)

type ChannelKind int

const (
	ChannelKindOther ChannelKind = iota
	ChannelKindText
	ChannelKindDM
	ChannelKindThread
	ChannelKindForum
)

type ForumTag struct {
	ID    string
	Name  string
	Emoji string
}

type Channel struct {
	ID            string
	GuildID       string
	ParentID      string
	Name          string
	Kind          ChannelKind
	Archived      bool
	AvailableTags []ForumTag
	AppliedTags   []string
}

type User struct {
	ID         string
	Username   string
	GlobalName string
	Bot        bool
}

func (u User) Mention() string {
	return "<@" + u.ID + ">"
}

func (u User) DisplayName() string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	if u.Username != "" {
		return u.Username
	}
	return u.ID
}

type Member struct {
	GuildID string
	User    User
	RoleIDs []string
}

func (m Member) HasAnyRole(roleIDs ...string) bool {
	for _, have := range m.RoleIDs {
		for _, want := range roleIDs {
			if have == want {
				return true
			}
		}
	}
	return false
}

type Guild struct {
	ID           string
	Name         string
	MemberCount  int
	ChannelCount int
}

type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

type Embed struct {
	Title       string
	Description string
	URL         string
	Color       int
	AuthorName  string
	Footer      string
	ImageURL    string
	Fields      []EmbedField
}

type Attachment struct {
	Filename string
	URL      string
}

type ButtonStyle int

const (
	ButtonPrimary ButtonStyle = iota
	ButtonSecondary
	ButtonDanger
)

type Button struct {
	CustomID string
	Label    string
	Style    ButtonStyle
}

type OutgoingMessage struct {
	Content string
	Embeds  []Embed
	// Buttons are laid out one per row.
	Buttons []Button
	// ReplyTo is a message id in the same channel.
	ReplyTo string
	// ClearButtons strips existing buttons when editing.
	ClearButtons bool
}

type Message struct {
	ID          string
	ChannelID   string
	GuildID     string
	Author      User
	Content     string
	Embeds      []Embed
	Attachments []Attachment
}

// IsDirect reports whether the message was sent in a DM.
func (m Message) IsDirect() bool {
	return m.GuildID == ""
}

type ThreadUpdateEvent struct {
	ThreadID    string
	GuildID     string
	ParentID    string
	WasArchived bool
	Archived    bool
	// ArchivedBySelf is set when the archive was requested by this bot.
	ArchivedBySelf bool
}

type TypingEvent struct {
	UserID    string
	ChannelID string
	GuildID   string
}

type InteractionKind int

const (
	InteractionCommand InteractionKind = iota
	InteractionComponent
)

type InteractionResponse struct {
	Content   string
	Ephemeral bool
	// Update replaces the message the component was attached to and
	// removes its buttons.
	Update bool
}

type InteractionEvent struct {
	ID          string
	Kind        InteractionKind
	GuildID     string
	ChannelID   string
	User        User
	Locale      string
	IsAdmin     bool
	RoleIDs     []string
	CommandName string
	// Options holds command option values; user, role and channel
	// options are reported by id.
	Options  map[string]string
	CustomID string
	Respond  func(InteractionResponse) error
}

func (e InteractionEvent) Option(name string) string {
	if e.Options == nil {
		return ""
	}
	return e.Options[name]
}

type SlashCommandOptionKind int

const (
	OptionString SlashCommandOptionKind = iota
	OptionUser
	OptionRole
	OptionChannel
	OptionBoolean
)

type SlashCommandOption struct {
	Name        string
	Description string
	Kind        SlashCommandOptionKind
	Required    bool
}

type SlashCommandDefinition struct {
	Name        string
	Description string
	Options     []SlashCommandOption
	// AdminOnly hides the command from members without Manage Server by default.
	AdminOnly bool
}

type Permissions struct {
	SendMessages        bool
	CreatePublicThreads bool
	ViewChannel         bool
}

type Client interface {
	Connect(ctx context.Context) error
	Close() error
	Run(ctx context.Context) error
	GetBotUserID() (string, error)

	RegisterMessageHandler(handler func(Message))
	RegisterThreadUpdateHandler(handler func(ThreadUpdateEvent))
	RegisterInteractionHandler(handler func(InteractionEvent))
	RegisterTypingHandler(handler func(TypingEvent))
	RegisterGuildJoinHandler(handler func(Guild))
	UpsertSlashCommands(defs []SlashCommandDefinition) error

	EnsureDMChannel(userID string) (string, error)
	SendMessage(channelID string, msg OutgoingMessage) (string, error)
	EditMessage(channelID, messageID string, msg OutgoingMessage) error
	DeleteMessage(channelID, messageID string) error
	TriggerTyping(channelID string) error
	AddReaction(channelID, messageID, emoji string) error
	RemoveOwnReaction(channelID, messageID, emoji string) error

	CreateThreadFromMessage(channelID, messageID, name string) (Channel, error)
	CreateForumPost(forumID, name string, msg OutgoingMessage, tagEmojis []string) (Channel, error)
	ArchiveThread(threadID string) error
	// EditThreadTags adds and removes forum tags on a thread, by emoji.
	EditThreadTags(threadID string, add, remove []string) error
	// EnsureForumTags creates any missing tag on a forum channel.
	EnsureForumTags(forumID string, tags []ForumTag) error

	Channel(channelID string) (Channel, error)
	User(userID string) (User, error)
	Member(guildID, userID string) (Member, error)
	Guild(guildID string) (Guild, error)
	// SharedGuilds lists the guilds the user is a member of, sorted by name.
	SharedGuilds(userID string) ([]Guild, error)
	BotPermissions(channelID string) (Permissions, error)
	MemberPermissions(channelID, userID string) (Permissions, error)

	WaitForMessage(ctx context.Context, match func(Message) bool) (Message, error)
	WaitForComponent(ctx context.Context, match func(InteractionEvent) bool) (InteractionEvent, error)
}

// ChannelMention formats a channel id as a clickable mention.
func ChannelMention(channelID string) string {
	return fmt.Sprintf("<#%s>", channelID)
}
