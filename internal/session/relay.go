package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/foxseedlab/modbot/internal/discord"
)

type closeOptions struct {
	resolved bool
	isError  bool
}

func (m *Manager) relay(ctx context.Context, sc *SessionContext, msg discord.Message) error {
	fromStaff := sc.Source.IsStaffThread()
	if fromStaff && m.hasExemptPrefix(msg.Content) {
		m.react(msg.ChannelID, msg.ID, markerMuted)
		return nil
	}
	if msg.Author.Bot {
		m.react(msg.ChannelID, msg.ID, markerMuted)
		return nil
	}

	switch parseKeyword(msg.Content) {
	case keywordDone:
		m.react(msg.ChannelID, msg.ID, markerMuted)
		if _, err := m.discord.SendMessage(msg.ChannelID, discord.OutgoingMessage{Content: messageDoneRetired, ReplyTo: msg.ID}); err != nil {
			slog.Warn("failed to reply to retired keyword", "channel_id", msg.ChannelID, "error", err)
		}
		return nil
	case keywordEnd:
		m.closeSession(ctx, *sc, closeOptions{})
		return nil
	case keywordFinish:
		m.closeSession(ctx, *sc, closeOptions{resolved: fromStaff})
		return nil
	}

	prefix := userPrefix(msg.Author.Mention())
	if fromStaff {
		label, _ := m.store.NoteModerator(sc.Session.ThreadID, msg.Author.ID)
		reveal := sc.Session.RevealIdentity
		if sess, ok := m.store.SessionByThread(sc.Session.ThreadID); ok {
			reveal = sess.RevealIdentity
		}
		prefix = moderatorPrefix(label, reveal, msg.Author.Mention())
	}

	if err := m.forward(sc.Destination.ChannelID(), prefix, msg); err != nil {
		if isGone(err) {
			slog.Info("relay recipient unreachable", "thread_id", sc.Session.ThreadID, "user_id", sc.Session.UserID, "error", err)
			notice := messageStaffUnreachable
			if fromStaff {
				notice = messageUserUnreachable
			}
			m.notify(sc.Source.ChannelID(), notice)
			m.closeSession(ctx, *sc, closeOptions{})
			return nil
		}
		m.closeSession(ctx, *sc, closeOptions{isError: true})
		return fmt.Errorf("failed to relay message %s: %w", msg.ID, err)
	}
	m.react(msg.ChannelID, msg.ID, markerDelivered)
	return nil
}

// forward sends the message body to channelID, followed by attachment
// links and embeds. Only a failure to deliver the body, or an unreachable
// destination, is returned.
func (m *Manager) forward(channelID, prefix string, msg discord.Message) error {
	if msg.Content != "" {
		for _, chunk := range splitMessage(prefix, msg.Content) {
			if _, err := m.send(channelID, chunk); err != nil {
				return err
			}
		}
	}
	for _, a := range msg.Attachments {
		if _, err := m.send(channelID, relayPrefix+a.URL); err != nil {
			if isGone(err) {
				return err
			}
			slog.Warn("failed to relay attachment", "channel_id", channelID, "filename", a.Filename, "error", err)
		}
	}
	if len(msg.Embeds) > 0 {
		if _, err := m.discord.SendMessage(channelID, discord.OutgoingMessage{Embeds: msg.Embeds}); err != nil {
			if isGone(err) {
				return err
			}
			slog.Warn("failed to relay embeds", "channel_id", channelID, "error", err)
		}
	}
	return nil
}

func (m *Manager) hasExemptPrefix(content string) bool {
	for _, p := range m.cfg.RelayExemptPrefixes {
		if p != "" && strings.HasPrefix(content, p) {
			return true
		}
	}
	return false
}

// splitMessage renders prefix+body as chat messages within the platform
// limit. The first message is filled to the limit; the rest of the body
// follows in continuation messages.
func splitMessage(prefix, body string) []string {
	prefixRunes := []rune(prefix)
	bodyRunes := []rune(body)
	room := discord.MessageLimit - len(prefixRunes)
	if room <= 0 || len(bodyRunes) <= room {
		return []string{prefix + body}
	}
	chunks := []string{prefix + string(bodyRunes[:room])}
	rest := bodyRunes[room:]
	step := discord.MessageLimit - len([]rune(continuationPrefix))
	for len(rest) > 0 {
		n := min(step, len(rest))
		chunks = append(chunks, continuationPrefix+string(rest[:n]))
		rest = rest[n:]
	}
	return chunks
}

// closeSession ends the session bound to sc. A session that is already
// gone makes this a no-op.
func (m *Manager) closeSession(ctx context.Context, sc SessionContext, opts closeOptions) {
	sess, ok := m.store.CloseThreadSession(sc.Session.ThreadID, m.now())
	if !ok {
		return
	}
	slog.Info("session closed",
		"user_id", sess.UserID,
		"guild_id", sess.GuildID,
		"thread_id", sess.ThreadID,
		"resolved", opts.resolved,
		"error", opts.isError,
	)
	for _, surface := range []Surface{sc.Source, sc.Destination} {
		if opts.isError {
			m.notify(surface.ChannelID(), messageCloseError)
			continue
		}
		m.notify(surface.ChannelID(), closedNotice(surface.IsStaffThread()))
	}
	m.closeThread(sess.ThreadID, opts.resolved)
	m.saveSnapshot(ctx)
}

// closeThread swaps the thread's open marker for a resolved or unresolved
// one and archives it when resolved.
func (m *Manager) closeThread(threadID string, resolved bool) {
	thread, err := m.discord.Channel(threadID)
	if err != nil {
		slog.Warn("failed to look up thread to close", "thread_id", threadID, "error", err)
		return
	}
	parent, err := m.discord.Channel(thread.ParentID)
	if err != nil {
		slog.Warn("failed to look up thread parent", "thread_id", threadID, "parent_id", thread.ParentID, "error", err)
	} else {
		switch parent.Kind {
		case discord.ChannelKindText:
			// Threads started from a message share its id.
			if err := m.discord.RemoveOwnReaction(parent.ID, threadID, markerOpen); err != nil {
				slog.Debug("failed to remove open marker", "thread_id", threadID, "error", err)
			}
			if resolved {
				m.react(parent.ID, threadID, markerResolved)
			}
		case discord.ChannelKindForum:
			add, remove := []string{markerUnresolved}, []string{markerOpen}
			if resolved {
				add, remove = []string{markerResolved}, []string{markerOpen, markerUnresolved}
			}
			if err := m.discord.EditThreadTags(threadID, add, remove); err != nil {
				slog.Warn("failed to update thread tags", "thread_id", threadID, "error", err)
			}
		}
	}
	if resolved {
		if err := m.discord.ArchiveThread(threadID); err != nil {
			slog.Warn("failed to archive thread", "thread_id", threadID, "error", err)
		}
	}
}
