package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/foxseedlab/modbot/internal/config"
	"github.com/foxseedlab/modbot/internal/discord"
	"github.com/foxseedlab/modbot/internal/incident"
	"github.com/foxseedlab/modbot/internal/locale"
	"github.com/foxseedlab/modbot/internal/store"
	"github.com/sourcegraph/conc/panics"
)

type IncidentReporter interface {
	Report(ctx context.Context, event string, scope incident.Scope, err error) string
}

type SnapshotSaver interface {
	SaveNow(ctx context.Context) error
}

// Manager routes inbound platform events through session resolution,
// entry negotiation and the session lifecycle.
type Manager struct {
	cfg       *config.Config
	store     *store.Store
	discord   discord.Client
	incidents IncidentReporter
	snapshots SnapshotSaver
	gate      EntryGate

	now       func() time.Time
	botUserID string
	promptSeq atomic.Uint64
}

func NewManager(cfg *config.Config, st *store.Store, dc discord.Client, incidents IncidentReporter, snapshots SnapshotSaver, gate EntryGate) *Manager {
	return &Manager{
		cfg:       cfg,
		store:     st,
		discord:   dc,
		incidents: incidents,
		snapshots: snapshots,
		gate:      gate,
		now:       time.Now,
	}
}

func (m *Manager) SetBotUserID(botUserID string) {
	m.botUserID = botUserID
}

func (m *Manager) HandleMessage(msg discord.Message) {
	if msg.Author.ID == "" || msg.Author.ID == m.botUserID {
		return
	}
	scope := incident.Scope{GuildID: msg.GuildID, ChannelID: msg.ChannelID, UserID: msg.Author.ID}
	m.guard("message", scope, func(ctx context.Context) error {
		return m.routeMessage(ctx, msg)
	})
}

func (m *Manager) routeMessage(ctx context.Context, msg discord.Message) error {
	res := m.resolve(msg)
	switch res.Kind {
	case ResolvedSession:
		return m.relay(ctx, res.Context, msg)
	case ResolvedSetupInProgress:
		if !isSelectionReply(msg.Content) {
			m.react(msg.ChannelID, msg.ID, markerInvalid)
		}
	case ResolvedNewEntry:
		return m.startEntry(ctx, msg)
	case ResolvedOrphanClose:
		if res.Resolved {
			m.react(msg.ChannelID, msg.ID, markerResolved)
		} else {
			m.react(msg.ChannelID, msg.ID, markerUnresolved)
		}
		m.closeThread(res.Thread, res.Resolved)
	}
	return nil
}

func (m *Manager) HandleThreadUpdate(event discord.ThreadUpdateEvent) {
	if !event.Archived || event.WasArchived || event.ArchivedBySelf {
		return
	}
	scope := incident.Scope{GuildID: event.GuildID, ChannelID: event.ThreadID}
	m.guard("thread_update", scope, func(ctx context.Context) error {
		sess, ok := m.store.SessionByThread(event.ThreadID)
		if !ok {
			return nil
		}
		slog.Info("session thread archived externally", "thread_id", event.ThreadID, "user_id", sess.UserID)
		m.closeSession(ctx, m.staffContext(sess), closeOptions{})
		return nil
	})
}

// HandleTyping mirrors a session user's typing indicator into the staff
// thread.
func (m *Manager) HandleTyping(event discord.TypingEvent) {
	if event.GuildID != "" {
		return
	}
	sess, ok := m.store.SessionByUser(event.UserID)
	if !ok {
		return
	}
	if err := m.discord.TriggerTyping(sess.ThreadID); err != nil {
		if isGone(err) {
			slog.Info("purging session with unreachable thread", "user_id", sess.UserID, "thread_id", sess.ThreadID)
			m.purgeSession(sess)
			return
		}
		slog.Debug("failed to relay typing", "thread_id", sess.ThreadID, "error", err)
	}
}

func (m *Manager) HandleInteraction(event discord.InteractionEvent) {
	if event.Locale != "" {
		m.store.SetLocale(event.User.ID, locale.Normalize(event.Locale))
	}
	scope := incident.Scope{GuildID: event.GuildID, ChannelID: event.ChannelID, UserID: event.User.ID}
	m.guard("interaction", scope, func(ctx context.Context) error {
		switch event.Kind {
		case discord.InteractionCommand:
			return m.handleCommand(ctx, event)
		case discord.InteractionComponent:
			return m.handleComponent(ctx, event)
		}
		return nil
	})
}

// HandleGuildJoin tells the owner about a newly joined guild.
func (m *Manager) HandleGuildJoin(g discord.Guild) {
	slog.Info("joined guild", "guild_id", g.ID, "members", g.MemberCount)
	if m.cfg.OwnerID == "" {
		return
	}
	dmID, err := m.discord.EnsureDMChannel(m.cfg.OwnerID)
	if err != nil {
		slog.Warn("failed to open owner dm", "error", err)
		return
	}
	embed := discord.Embed{
		Title:       g.Name,
		Description: messageGuildJoinedText,
		Color:       colorSuccess,
		Fields: []discord.EmbedField{
			{Name: "ID", Value: g.ID, Inline: true},
			{Name: "Members", Value: fmt.Sprint(g.MemberCount), Inline: true},
			{Name: "Channels", Value: fmt.Sprint(g.ChannelCount), Inline: true},
		},
	}
	if _, err := m.discord.SendMessage(dmID, discord.OutgoingMessage{Embeds: []discord.Embed{embed}}); err != nil {
		slog.Warn("failed to notify owner about guild join", "guild_id", g.ID, "error", err)
	}
}

func (m *Manager) AnnounceReady() {
	if m.cfg.LogChannelID == "" {
		return
	}
	content := fmt.Sprintf("%s (%d open sessions)", messageBotLoaded, len(m.store.Sessions()))
	if _, err := m.discord.SendMessage(m.cfg.LogChannelID, discord.OutgoingMessage{Content: content}); err != nil {
		slog.Warn("failed to post ready notice", "channel_id", m.cfg.LogChannelID, "error", err)
	}
}

// guard runs fn, turning a panic into an error and reporting any error as
// an incident.
func (m *Manager) guard(event string, scope incident.Scope, fn func(ctx context.Context) error) {
	ctx := context.Background()
	var err error
	if recovered := panics.Try(func() { err = fn(ctx) }); recovered != nil {
		err = recovered.AsError()
	}
	if err != nil && m.incidents != nil {
		m.incidents.Report(ctx, event, scope, err)
	}
}

func (m *Manager) lang(userID string) string {
	return m.store.Locale(userID)
}

func (m *Manager) send(channelID, content string) (string, error) {
	return m.discord.SendMessage(channelID, discord.OutgoingMessage{Content: content})
}

// notify sends content and only logs a failure.
func (m *Manager) notify(channelID, content string) {
	if channelID == "" {
		return
	}
	if _, err := m.send(channelID, content); err != nil {
		slog.Warn("failed to send notice", "channel_id", channelID, "error", err)
	}
}

func (m *Manager) react(channelID, messageID, emoji string) {
	if err := m.discord.AddReaction(channelID, messageID, emoji); err != nil {
		slog.Debug("failed to add reaction", "channel_id", channelID, "message_id", messageID, "emoji", emoji, "error", err)
	}
}

func (m *Manager) saveSnapshot(ctx context.Context) {
	if m.snapshots == nil {
		return
	}
	if err := m.snapshots.SaveNow(ctx); err != nil {
		slog.Warn("failed to save snapshot", "error", err)
	}
}

func (m *Manager) purgeSession(sess store.Session) {
	if cur, ok := m.store.SessionByUser(sess.UserID); ok && cur.ThreadID == sess.ThreadID {
		m.store.DiscardSession(sess.UserID)
	}
}

// isGone reports whether err means the target no longer exists or is
// out of reach for the bot.
func isGone(err error) bool {
	return errors.Is(err, discord.ErrNotFound) || errors.Is(err, discord.ErrForbidden)
}
