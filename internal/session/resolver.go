package session

import (
	"log/slog"
	"strings"

	"github.com/foxseedlab/modbot/internal/discord"
	"github.com/foxseedlab/modbot/internal/store"
)

type ResolutionKind int

const (
	ResolvedNone ResolutionKind = iota
	ResolvedSession
	ResolvedSetupInProgress
	ResolvedNewEntry
	ResolvedOrphanClose
)

// Surface is one end of a session: the user's DM or the staff thread.
type Surface interface {
	ChannelID() string
	IsStaffThread() bool
}

type DirectMessageSurface struct {
	UserID      string
	DMChannelID string
}

func (s DirectMessageSurface) ChannelID() string   { return s.DMChannelID }
func (s DirectMessageSurface) IsStaffThread() bool { return false }

type StaffThreadSurface struct {
	GuildID  string
	ThreadID string
}

func (s StaffThreadSurface) ChannelID() string   { return s.ThreadID }
func (s StaffThreadSurface) IsStaffThread() bool { return true }

// SessionContext pairs a session with the surface a message came from and
// the surface it is relayed to.
type SessionContext struct {
	Session     store.Session
	Source      Surface
	Destination Surface
}

func (sc SessionContext) userSurface() Surface {
	if sc.Source.IsStaffThread() {
		return sc.Destination
	}
	return sc.Source
}

func (sc SessionContext) staffSurface() Surface {
	if sc.Source.IsStaffThread() {
		return sc.Source
	}
	return sc.Destination
}

type Resolution struct {
	Kind    ResolutionKind
	Context *SessionContext
	// Thread and Resolved describe an orphan close.
	Thread   string
	Resolved bool
}

type closeKeyword int

const (
	keywordNone closeKeyword = iota
	keywordEnd
	keywordFinish
	keywordDone
)

func parseKeyword(content string) closeKeyword {
	switch strings.ToLower(strings.TrimSpace(content)) {
	case "end", "close":
		return keywordEnd
	case "finish":
		return keywordFinish
	case "done":
		return keywordDone
	}
	return keywordNone
}

func (m *Manager) resolve(msg discord.Message) Resolution {
	if msg.IsDirect() {
		return m.resolveDirect(msg)
	}
	return m.resolveGuild(msg)
}

func (m *Manager) resolveDirect(msg discord.Message) Resolution {
	if msg.Author.Bot {
		return Resolution{Kind: ResolvedNone}
	}
	userID := msg.Author.ID
	switch m.store.State(userID) {
	case store.StateInSession:
		sess, ok := m.store.SessionByUser(userID)
		if !ok {
			break
		}
		thread, err := m.discord.Channel(sess.ThreadID)
		switch {
		case err == nil && !thread.Archived:
			return Resolution{Kind: ResolvedSession, Context: &SessionContext{
				Session:     sess,
				Source:      DirectMessageSurface{UserID: userID, DMChannelID: msg.ChannelID},
				Destination: StaffThreadSurface{GuildID: sess.GuildID, ThreadID: sess.ThreadID},
			}}
		case err == nil || isGone(err):
			slog.Info("purging session with stale thread", "user_id", userID, "thread_id", sess.ThreadID)
			m.purgeSession(sess)
		default:
			slog.Warn("failed to look up session thread", "thread_id", sess.ThreadID, "error", err)
			return Resolution{Kind: ResolvedNone}
		}
	case store.StateNegotiating:
		return Resolution{Kind: ResolvedSetupInProgress}
	}
	return Resolution{Kind: ResolvedNewEntry}
}

func (m *Manager) resolveGuild(msg discord.Message) Resolution {
	if sess, ok := m.store.SessionByThread(msg.ChannelID); ok {
		dmID, err := m.discord.EnsureDMChannel(sess.UserID)
		if err != nil {
			slog.Info("purging session with unreachable user", "user_id", sess.UserID, "thread_id", sess.ThreadID, "error", err)
			m.purgeSession(sess)
			return Resolution{Kind: ResolvedNone}
		}
		return Resolution{Kind: ResolvedSession, Context: &SessionContext{
			Session:     sess,
			Source:      StaffThreadSurface{GuildID: sess.GuildID, ThreadID: sess.ThreadID},
			Destination: DirectMessageSurface{UserID: sess.UserID, DMChannelID: dmID},
		}}
	}

	if msg.Author.Bot {
		return Resolution{Kind: ResolvedNone}
	}
	kw := parseKeyword(msg.Content)
	if kw != keywordEnd && kw != keywordFinish {
		return Resolution{Kind: ResolvedNone}
	}
	cfg, ok := m.store.Guild(msg.GuildID)
	if !ok {
		return Resolution{Kind: ResolvedNone}
	}
	ch, err := m.discord.Channel(msg.ChannelID)
	if err != nil || ch.Kind != discord.ChannelKindThread || !cfg.IsContainer(ch.ParentID) {
		return Resolution{Kind: ResolvedNone}
	}
	return Resolution{Kind: ResolvedOrphanClose, Thread: ch.ID, Resolved: kw == keywordFinish}
}

// staffContext builds a context for a close that starts on the staff side
// without a message, such as an external archive. The DM surface is left
// empty when it cannot be opened.
func (m *Manager) staffContext(sess store.Session) SessionContext {
	dmID, err := m.discord.EnsureDMChannel(sess.UserID)
	if err != nil {
		slog.Warn("failed to open dm for session user", "user_id", sess.UserID, "error", err)
	}
	return SessionContext{
		Session:     sess,
		Source:      StaffThreadSurface{GuildID: sess.GuildID, ThreadID: sess.ThreadID},
		Destination: DirectMessageSurface{UserID: sess.UserID, DMChannelID: dmID},
	}
}

func isSelectionReply(content string) bool {
	content = strings.TrimSpace(content)
	if strings.EqualFold(content, "cancel") {
		return true
	}
	if content == "" {
		return false
	}
	for _, r := range content {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
