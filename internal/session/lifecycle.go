package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/foxseedlab/modbot/internal/discord"
	"github.com/foxseedlab/modbot/internal/locale"
	"github.com/foxseedlab/modbot/internal/store"
	"github.com/sourcegraph/conc/panics"
)

type openRequest struct {
	User        discord.User
	DMChannelID string
	GuildID     string
	Secondary   bool
	// Seed is the user's first message; nil when the session starts from
	// a button.
	Seed      *discord.Message
	BanAppeal bool
}

// openSession creates the staff thread for req and registers the session.
// Policy rejections are reported to the user and return nil.
func (m *Manager) openSession(ctx context.Context, req openRequest) error {
	if m.store.State(req.User.ID) == store.StateInSession {
		return nil
	}
	cfg, ok := m.store.Guild(req.GuildID)
	if !ok || !cfg.CanOpenSessions() {
		m.notify(req.DMChannelID, notSetupMessage(reasonNoContainer))
		return nil
	}
	containerID := cfg.Container(req.Secondary)
	container, err := m.discord.Channel(containerID)
	if err != nil {
		if isGone(err) {
			m.notify(req.DMChannelID, notSetupMessage(reasonNoContainer))
			return nil
		}
		return m.failBeforeThread(req, "", fmt.Errorf("failed to look up report container %s: %w", containerID, err))
	}

	metaID := container.ID
	if container.Kind == discord.ChannelKindForum {
		if cfg.MetaChannelID == "" {
			m.notify(req.DMChannelID, notSetupMessage(reasonNoMetaID))
			return nil
		}
		if _, err := m.discord.Channel(cfg.MetaChannelID); err != nil {
			m.notify(req.DMChannelID, notSetupMessage(reasonNoMetaThread))
			return nil
		}
		metaID = cfg.MetaChannelID
	}

	perms, err := m.discord.BotPermissions(container.ID)
	if err != nil {
		return m.failBeforeThread(req, metaID, fmt.Errorf("failed to read bot permissions in %s: %w", container.ID, err))
	}
	if !perms.SendMessages || !perms.CreatePublicThreads {
		slog.Info("missing permissions in report container", "guild_id", req.GuildID, "channel_id", container.ID)
		m.notify(metaID, fmt.Sprintf(messagePermissionFormat, req.User.Mention()))
		m.notify(req.DMChannelID, notSetupMessage(reasonNoPermission))
		return nil
	}

	if !req.BanAppeal && m.gate != nil {
		allowed, err := m.gate.Allow(ctx, m.gateRequest(req, metaID))
		if err != nil {
			return m.failBeforeThread(req, metaID, fmt.Errorf("entry gate failed: %w", err))
		}
		if !allowed {
			slog.Info("entry gate denied session", "user_id", req.User.ID, "guild_id", req.GuildID)
			return nil
		}
	}

	if err := m.discord.TriggerTyping(req.DMChannelID); err != nil {
		slog.Debug("failed to trigger typing", "channel_id", req.DMChannelID, "error", err)
	}

	thread, err := m.createThread(container, req)
	if errors.Is(err, discord.ErrForbidden) {
		m.notify(req.DMChannelID, messageContainerLocked)
		return nil
	}
	if err != nil {
		return m.failBeforeThread(req, metaID, fmt.Errorf("failed to create report thread: %w", err))
	}

	capture := m.captureModLog(ctx, thread.ID)
	if _, err := m.send(thread.ID, instructionsText(m.cfg.RelayExemptPrefixes)); err != nil {
		return m.failOpen(req, thread.ID, err)
	}
	if capture != nil {
		if captured := <-capture; captured != nil {
			m.repostModLog(thread.ID, *captured)
		}
	}
	if _, err := m.send(thread.ID, separatorText()); err != nil {
		return m.failOpen(req, thread.ID, err)
	}

	if err := m.store.OpenSession(store.Session{UserID: req.User.ID, GuildID: req.GuildID, ThreadID: thread.ID}); err != nil {
		return m.failOpen(req, thread.ID, err)
	}

	if req.Seed != nil {
		if err := m.forward(thread.ID, userPrefix(req.User.Mention()), *req.Seed); err != nil {
			return m.failOpen(req, thread.ID, err)
		}
		m.react(req.Seed.ChannelID, req.Seed.ID, markerDelivered)
	} else if _, err := m.send(thread.ID, messageNoSeed); err != nil {
		return m.failOpen(req, thread.ID, err)
	}

	key := locale.MsgConnected
	switch {
	case req.BanAppeal:
		key = locale.MsgConnectedAppeal
	case req.Seed == nil:
		key = locale.MsgConnectedWaiting
	}
	confirmation := discord.Embed{Description: locale.Sprintf(m.lang(req.User.ID), key), Color: colorSuccess}
	if _, err := m.discord.SendMessage(req.DMChannelID, discord.OutgoingMessage{Embeds: []discord.Embed{confirmation}}); err != nil {
		return m.failOpen(req, thread.ID, err)
	}

	slog.Info("session opened",
		"user_id", req.User.ID,
		"guild_id", req.GuildID,
		"thread_id", thread.ID,
		"ban_appeal", req.BanAppeal,
	)
	m.saveSnapshot(ctx)
	return nil
}

func (m *Manager) createThread(container discord.Channel, req openRequest) (discord.Channel, error) {
	entry := m.entryText(container.ID, req)
	name := fmt.Sprintf(messageThreadNameFormat, threadUserName(req.User), m.now().Format("2006-01-02"))
	if container.Kind == discord.ChannelKindForum {
		tags := []string{markerOpen}
		if req.BanAppeal {
			tags = append(tags, markerBanAppeal)
		}
		return m.discord.CreateForumPost(container.ID, name, discord.OutgoingMessage{Content: entry}, tags)
	}

	entryID, err := m.send(container.ID, entry)
	if err != nil {
		return discord.Channel{}, err
	}
	thread, err := m.discord.CreateThreadFromMessage(container.ID, entryID, name)
	if err != nil {
		return discord.Channel{}, err
	}
	m.react(container.ID, entryID, markerOpen)
	return thread, nil
}

func (m *Manager) entryText(containerID string, req openRequest) string {
	text := fmt.Sprintf(messageEntryFormat, req.User.Mention())
	if perms, err := m.discord.MemberPermissions(containerID, req.User.ID); err == nil && perms.ViewChannel {
		text = strings.Replace(text, "@here", messageEntryStaffTest, 1)
	}
	if req.BanAppeal {
		tagged := fmt.Sprintf("%s (%s, %s)", req.User.Mention(), threadUserName(req.User), req.User.ID)
		text = messageBanAppealBanner + strings.Replace(text, req.User.Mention(), tagged, 1)
	}
	return text
}

func threadUserName(u discord.User) string {
	if u.Username != "" {
		return u.Username
	}
	return u.DisplayName()
}

// captureModLog waits in the background for the moderation log bot to post
// in the new thread. The channel yields nil when nothing arrived in time.
func (m *Manager) captureModLog(ctx context.Context, threadID string) <-chan *discord.Message {
	if m.cfg.ModLogBotID == "" {
		return nil
	}
	out := make(chan *discord.Message, 1)
	go func() {
		var captured *discord.Message
		recovered := panics.Try(func() {
			waitCtx, cancel := context.WithTimeout(ctx, m.cfg.ModLogCaptureTimeout)
			defer cancel()
			msg, err := m.discord.WaitForMessage(waitCtx, func(msg discord.Message) bool {
				return msg.ChannelID == threadID && msg.Author.ID == m.cfg.ModLogBotID && len(msg.Embeds) > 0
			})
			if err == nil {
				captured = &msg
			}
		})
		if recovered != nil {
			slog.Warn("modlog capture panicked", "thread_id", threadID, "error", recovered.AsError())
		}
		out <- captured
	}()
	return out
}

func (m *Manager) repostModLog(threadID string, captured discord.Message) {
	if err := m.discord.DeleteMessage(threadID, captured.ID); err != nil {
		slog.Debug("failed to delete captured modlog", "thread_id", threadID, "error", err)
		return
	}
	repost := discord.OutgoingMessage{Content: captured.Content, Embeds: captured.Embeds[:1]}
	if _, err := m.discord.SendMessage(threadID, repost); err != nil {
		slog.Warn("failed to repost modlog", "thread_id", threadID, "error", err)
	}
}

// failBeforeThread reports an open that failed before any thread existed.
// metaID is empty when the staff surface is not known yet.
func (m *Manager) failBeforeThread(req openRequest, metaID string, cause error) error {
	m.notify(req.DMChannelID, messageOpenFailed)
	m.notify(metaID, fmt.Sprintf(messageOpenFailedStaffFormat, req.User.Mention()))
	return fmt.Errorf("failed to open session for user %s in guild %s: %w", req.User.ID, req.GuildID, cause)
}

// failOpen undoes a partially opened session and tells both sides. The
// thread is left marked closed-unresolved.
func (m *Manager) failOpen(req openRequest, threadID string, cause error) error {
	if sess, ok := m.store.SessionByUser(req.User.ID); ok && sess.ThreadID == threadID {
		m.store.DiscardSession(req.User.ID)
	}
	if req.Seed != nil {
		if err := m.discord.RemoveOwnReaction(req.Seed.ChannelID, req.Seed.ID, markerDelivered); err != nil {
			slog.Debug("failed to withdraw delivery marker", "message_id", req.Seed.ID, "error", err)
		}
	}
	m.closeThread(threadID, false)
	m.notify(threadID, messageCloseError)
	m.notify(req.DMChannelID, messageCloseError)
	return fmt.Errorf("failed to open session for user %s in guild %s: %w", req.User.ID, req.GuildID, cause)
}
