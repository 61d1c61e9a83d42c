package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/foxseedlab/modbot/internal/config"
	"github.com/foxseedlab/modbot/internal/discord"
	"github.com/foxseedlab/modbot/internal/incident"
	"github.com/foxseedlab/modbot/internal/store"
)

type sentMessage struct {
	ChannelID string
	ID        string
	Msg       discord.OutgoingMessage
}

type reaction struct {
	ChannelID string
	MessageID string
	Emoji     string
}

type tagEdit struct {
	ThreadID string
	Add      []string
	Remove   []string
}

type mockDiscordClient struct {
	mu     sync.Mutex
	nextID int

	channels    map[string]discord.Channel
	users       map[string]discord.User
	members     map[string]discord.Member
	guilds      []discord.Guild
	botPerms    discord.Permissions
	memberPerms discord.Permissions
	sendErrs    map[string]error
	panicShared bool

	sent      []sentMessage
	edited    []sentMessage
	deleted   []string
	reactions []reaction
	removed   []reaction
	archived  []string
	tagEdits  []tagEdit
	typing    []string
	threads   []discord.Channel
	responses []discord.InteractionResponse

	replies         []discord.Message
	presses         []discord.InteractionEvent
	onThreadCreated func(discord.Channel)
}

var _ discord.Client = (*mockDiscordClient)(nil)

func newMockDiscordClient() *mockDiscordClient {
	return &mockDiscordClient{
		channels: make(map[string]discord.Channel),
		users:    make(map[string]discord.User),
		members:  make(map[string]discord.Member),
		sendErrs: make(map[string]error),
		botPerms: discord.Permissions{SendMessages: true, CreatePublicThreads: true, ViewChannel: true},
	}
}

func (m *mockDiscordClient) id() string {
	m.nextID++
	return fmt.Sprintf("m%d", m.nextID)
}

func (m *mockDiscordClient) Connect(_ context.Context) error { return nil }
func (m *mockDiscordClient) Close() error                    { return nil }
func (m *mockDiscordClient) Run(_ context.Context) error     { return nil }
func (m *mockDiscordClient) GetBotUserID() (string, error)   { return "bot-1", nil }

func (m *mockDiscordClient) RegisterMessageHandler(_ func(discord.Message))                {}
func (m *mockDiscordClient) RegisterThreadUpdateHandler(_ func(discord.ThreadUpdateEvent)) {}
func (m *mockDiscordClient) RegisterInteractionHandler(_ func(discord.InteractionEvent))   {}
func (m *mockDiscordClient) RegisterTypingHandler(_ func(discord.TypingEvent))             {}
func (m *mockDiscordClient) RegisterGuildJoinHandler(_ func(discord.Guild))                {}
func (m *mockDiscordClient) UpsertSlashCommands(_ []discord.SlashCommandDefinition) error  { return nil }
func (m *mockDiscordClient) EnsureForumTags(_ string, _ []discord.ForumTag) error          { return nil }
func (m *mockDiscordClient) EnsureDMChannel(userID string) (string, error)                 { return "dm-" + userID, nil }
func (m *mockDiscordClient) MemberPermissions(_, _ string) (discord.Permissions, error)    { return m.memberPerms, nil }
func (m *mockDiscordClient) BotPermissions(_ string) (discord.Permissions, error)          { return m.botPerms, nil }
func (m *mockDiscordClient) CreateThreadFromMessage(channelID, messageID, name string) (discord.Channel, error) {
	m.mu.Lock()
	parent := m.channels[channelID]
	thread := discord.Channel{ID: messageID, GuildID: parent.GuildID, ParentID: channelID, Name: name, Kind: discord.ChannelKindThread}
	m.channels[thread.ID] = thread
	m.threads = append(m.threads, thread)
	hook := m.onThreadCreated
	m.mu.Unlock()
	if hook != nil {
		hook(thread)
	}
	return thread, nil
}

func (m *mockDiscordClient) CreateForumPost(forumID, name string, msg discord.OutgoingMessage, tags []string) (discord.Channel, error) {
	m.mu.Lock()
	parent := m.channels[forumID]
	thread := discord.Channel{ID: "post-" + m.id(), GuildID: parent.GuildID, ParentID: forumID, Name: name, Kind: discord.ChannelKindThread, AppliedTags: tags}
	m.channels[thread.ID] = thread
	m.threads = append(m.threads, thread)
	m.sent = append(m.sent, sentMessage{ChannelID: thread.ID, ID: thread.ID, Msg: msg})
	hook := m.onThreadCreated
	m.mu.Unlock()
	if hook != nil {
		hook(thread)
	}
	return thread, nil
}

func (m *mockDiscordClient) SendMessage(channelID string, msg discord.OutgoingMessage) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.sendErrs[channelID]; err != nil {
		return "", err
	}
	id := m.id()
	m.sent = append(m.sent, sentMessage{ChannelID: channelID, ID: id, Msg: msg})
	return id, nil
}

func (m *mockDiscordClient) EditMessage(channelID, messageID string, msg discord.OutgoingMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edited = append(m.edited, sentMessage{ChannelID: channelID, ID: messageID, Msg: msg})
	return nil
}

func (m *mockDiscordClient) DeleteMessage(_, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, messageID)
	return nil
}

func (m *mockDiscordClient) TriggerTyping(channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !strings.HasPrefix(channelID, "dm-") {
		if _, ok := m.channels[channelID]; !ok {
			return discord.ErrNotFound
		}
	}
	m.typing = append(m.typing, channelID)
	return nil
}

func (m *mockDiscordClient) AddReaction(channelID, messageID, emoji string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reactions = append(m.reactions, reaction{ChannelID: channelID, MessageID: messageID, Emoji: emoji})
	return nil
}

func (m *mockDiscordClient) RemoveOwnReaction(channelID, messageID, emoji string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, reaction{ChannelID: channelID, MessageID: messageID, Emoji: emoji})
	return nil
}

func (m *mockDiscordClient) ArchiveThread(threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.archived = append(m.archived, threadID)
	if ch, ok := m.channels[threadID]; ok {
		ch.Archived = true
		m.channels[threadID] = ch
	}
	return nil
}

func (m *mockDiscordClient) EditThreadTags(threadID string, add, remove []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tagEdits = append(m.tagEdits, tagEdit{ThreadID: threadID, Add: add, Remove: remove})
	return nil
}

func (m *mockDiscordClient) Channel(channelID string) (discord.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[channelID]
	if !ok {
		return discord.Channel{}, discord.ErrNotFound
	}
	return ch, nil
}

func (m *mockDiscordClient) User(userID string) (discord.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return discord.User{}, discord.ErrNotFound
	}
	return u, nil
}

func (m *mockDiscordClient) Member(guildID, userID string) (discord.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	member, ok := m.members[guildID+"/"+userID]
	if !ok {
		return discord.Member{}, discord.ErrNotFound
	}
	return member, nil
}

func (m *mockDiscordClient) Guild(guildID string) (discord.Guild, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.guilds {
		if g.ID == guildID {
			return g, nil
		}
	}
	return discord.Guild{}, discord.ErrNotFound
}

func (m *mockDiscordClient) SharedGuilds(_ string) ([]discord.Guild, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panicShared {
		panic("shared guild lookup exploded")
	}
	return append([]discord.Guild(nil), m.guilds...), nil
}

func (m *mockDiscordClient) WaitForMessage(ctx context.Context, match func(discord.Message) bool) (discord.Message, error) {
	for {
		m.mu.Lock()
		for i, msg := range m.replies {
			if match(msg) {
				m.replies = append(m.replies[:i], m.replies[i+1:]...)
				m.mu.Unlock()
				return msg, nil
			}
		}
		m.mu.Unlock()
		select {
		case <-ctx.Done():
			return discord.Message{}, ctx.Err()
		case <-time.After(2 * time.Millisecond):
		}
	}
}

// WaitForComponent presses a queued button. A queued press carries only the
// choice suffix; it is resolved against the most recent buttons sent.
func (m *mockDiscordClient) WaitForComponent(ctx context.Context, match func(discord.InteractionEvent) bool) (discord.InteractionEvent, error) {
	for {
		m.mu.Lock()
		if len(m.presses) > 0 {
			press := m.presses[0]
			if customID, ok := m.lastButtonWithSuffixLocked(press.CustomID); ok {
				press.CustomID = customID
				press.Respond = func(r discord.InteractionResponse) error {
					m.mu.Lock()
					defer m.mu.Unlock()
					m.responses = append(m.responses, r)
					return nil
				}
				if match(press) {
					m.presses = m.presses[1:]
					m.mu.Unlock()
					return press, nil
				}
			}
		}
		m.mu.Unlock()
		select {
		case <-ctx.Done():
			return discord.InteractionEvent{}, ctx.Err()
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func (m *mockDiscordClient) lastButtonWithSuffixLocked(suffix string) (string, bool) {
	for i := len(m.sent) - 1; i >= 0; i-- {
		for _, b := range m.sent[i].Msg.Buttons {
			if strings.HasSuffix(b.CustomID, ":"+suffix) {
				return b.CustomID, true
			}
		}
	}
	return "", false
}

func (m *mockDiscordClient) failSends(channelID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErrs[channelID] = err
}

func (m *mockDiscordClient) queueReply(msg discord.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, msg)
}

func (m *mockDiscordClient) queuePress(userID, choice string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.presses = append(m.presses, discord.InteractionEvent{
		Kind:     discord.InteractionComponent,
		User:     discord.User{ID: userID},
		CustomID: choice,
	})
}

func (m *mockDiscordClient) contentsTo(channelID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, s := range m.sent {
		if s.ChannelID == channelID {
			out = append(out, s.Msg.Content)
		}
	}
	return out
}

func (m *mockDiscordClient) embedsTo(channelID string) []discord.Embed {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []discord.Embed
	for _, s := range m.sent {
		if s.ChannelID == channelID {
			out = append(out, s.Msg.Embeds...)
		}
	}
	return out
}

func (m *mockDiscordClient) buttonPrompts(channelID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sent {
		if s.ChannelID == channelID && len(s.Msg.Buttons) > 0 {
			n++
		}
	}
	return n
}

func (m *mockDiscordClient) hasReaction(channelID, messageID, emoji string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reactions {
		if r == (reaction{ChannelID: channelID, MessageID: messageID, Emoji: emoji}) {
			return true
		}
	}
	return false
}

func (m *mockDiscordClient) threadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.threads)
}

type recordingIncidents struct {
	mu     sync.Mutex
	events []string
	errs   []error
}

func (r *recordingIncidents) Report(_ context.Context, event string, _ incident.Scope, err error) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	r.errs = append(r.errs, err)
	return "incident-1"
}

func (r *recordingIncidents) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	manager   *Manager
	store     *store.Store
	dc        *mockDiscordClient
	incidents *recordingIncidents
	clock     *fakeClock
	cfg       *config.Config
}

func newTestConfig() *config.Config {
	return &config.Config{
		Env:                    "test",
		RelayExemptPrefixes:    []string{"_", ";", "!"},
		SessionCooldown:        30 * time.Second,
		GuildSelectTimeout:     100 * time.Millisecond,
		ReportKindTimeout:      100 * time.Millisecond,
		ModLogCaptureTimeout:   time.Second,
		EntryGateRequiredRoles: map[string][]string{},
	}
}

func newTestManager(cfg *config.Config, st *store.Store, dc *mockDiscordClient) (*Manager, *recordingIncidents, *fakeClock) {
	incidents := &recordingIncidents{}
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	m := NewManager(cfg, st, dc, incidents, nil, NewRoleGate(dc, cfg.EntryGateRequiredRoles))
	m.now = clock.Now
	m.SetBotUserID("bot-1")
	return m, incidents, clock
}

// newTestEnv sets up one onboarded guild "guild-1" with a text report
// room "reports-1".
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := newTestConfig()
	st := store.New()
	dc := newMockDiscordClient()
	addGuild(st, dc, "guild-1", "Alpha", "reports-1")
	m, incidents, clock := newTestManager(cfg, st, dc)
	return &testEnv{manager: m, store: st, dc: dc, incidents: incidents, clock: clock, cfg: cfg}
}

func addGuild(st *store.Store, dc *mockDiscordClient, guildID, name, reportsID string) {
	st.SetModeratorRole(guildID, "role-mod")
	st.SetPrimaryChannel(guildID, reportsID)
	dc.guilds = append(dc.guilds, discord.Guild{ID: guildID, Name: name})
	dc.channels[reportsID] = discord.Channel{ID: reportsID, GuildID: guildID, Kind: discord.ChannelKindText, Name: "reports"}
}

// openTestSession registers a live session for user-1 bound to thread-1.
func (e *testEnv) openTestSession(t *testing.T) {
	t.Helper()
	e.dc.channels["thread-1"] = discord.Channel{ID: "thread-1", GuildID: "guild-1", ParentID: "reports-1", Kind: discord.ChannelKindThread}
	if err := e.store.OpenSession(store.Session{UserID: "user-1", GuildID: "guild-1", ThreadID: "thread-1"}); err != nil {
		t.Fatalf("failed to open session: %v", err)
	}
}

func dm(id, userID, content string) discord.Message {
	return discord.Message{ID: id, ChannelID: "dm-" + userID, Author: discord.User{ID: userID, Username: userID}, Content: content}
}

func staffMessage(id, threadID, authorID, content string) discord.Message {
	return discord.Message{ID: id, ChannelID: threadID, GuildID: "guild-1", Author: discord.User{ID: authorID, Username: authorID}, Content: content}
}

func contains(items []string, want string) bool {
	for _, s := range items {
		if s == want {
			return true
		}
	}
	return false
}

func TestHandleMessage_SingleOnboardedGuildSkipsGuildPrompt(t *testing.T) {
	e := newTestEnv(t)
	e.dc.queuePress("user-1", kindReport)

	e.manager.HandleMessage(dm("seed-1", "user-1", "help"))

	for _, c := range e.dc.contentsTo("dm-user-1") {
		if strings.HasPrefix(c, "Hello, thank you for messaging me") {
			t.Fatalf("expected no guild prompt, got %q", c)
		}
	}
	if got := e.dc.buttonPrompts("dm-user-1"); got != 1 {
		t.Fatalf("expected report type buttons once, got %d", got)
	}
	sess, ok := e.store.SessionByUser("user-1")
	if !ok {
		t.Fatal("expected a session to be opened")
	}
	if sess.GuildID != "guild-1" {
		t.Fatalf("unexpected guild: %s", sess.GuildID)
	}
	if !contains(e.dc.contentsTo(sess.ThreadID), ">>> <@user-1>: help") {
		t.Fatalf("expected seed relayed to thread, got %v", e.dc.contentsTo(sess.ThreadID))
	}
	if !e.dc.hasReaction("reports-1", sess.ThreadID, markerOpen) {
		t.Fatal("expected open marker on the entry message")
	}
	if !e.dc.hasReaction("dm-user-1", "seed-1", markerDelivered) {
		t.Fatal("expected delivery marker on the seed")
	}
	if e.store.State("user-1") != store.StateInSession {
		t.Fatalf("unexpected state: %s", e.store.State("user-1"))
	}
	if e.incidents.count() != 0 {
		t.Fatalf("unexpected incidents: %v", e.incidents.errs)
	}
}

func TestHandleMessage_BlockedUserGetsGenericMessage(t *testing.T) {
	e := newTestEnv(t)
	e.store.ToggleBlock("guild-1", "user-1")

	e.manager.HandleMessage(dm("seed-1", "user-1", "help"))

	if _, ok := e.store.SessionByUser("user-1"); ok {
		t.Fatal("expected no session for a blocked user")
	}
	if !contains(e.dc.contentsTo("dm-user-1"), messageBlocked) {
		t.Fatalf("expected blocked message, got %v", e.dc.contentsTo("dm-user-1"))
	}
	if e.dc.buttonPrompts("dm-user-1") != 0 {
		t.Fatal("expected no report type prompt for a blocked user")
	}
	if e.dc.threadCount() != 0 {
		t.Fatal("expected no thread to be created")
	}
	if e.store.State("user-1") != store.StateIdle {
		t.Fatalf("expected marker released, got %s", e.store.State("user-1"))
	}
}

func TestHandleMessage_MultipleGuildsNumericSelection(t *testing.T) {
	e := newTestEnv(t)
	addGuild(e.store, e.dc, "guild-2", "Beta", "reports-2")
	e.dc.queueReply(dm("reply-1", "user-1", "2"))
	e.dc.queuePress("user-1", kindServer)

	e.manager.HandleMessage(dm("seed-1", "user-1", "help"))

	sess, ok := e.store.SessionByUser("user-1")
	if !ok {
		t.Fatal("expected a session to be opened")
	}
	if sess.GuildID != "guild-2" {
		t.Fatalf("expected guild-2, got %s", sess.GuildID)
	}
	thread, _ := e.dc.Channel(sess.ThreadID)
	if thread.ParentID != "reports-2" {
		t.Fatalf("expected secondary to fall back to the primary room, got %s", thread.ParentID)
	}
}

func TestHandleMessage_MultipleGuildsInvalidReplyCancels(t *testing.T) {
	e := newTestEnv(t)
	addGuild(e.store, e.dc, "guild-2", "Beta", "reports-2")
	e.dc.queueReply(dm("reply-1", "user-1", "7"))

	e.manager.HandleMessage(dm("seed-1", "user-1", "help"))

	if _, ok := e.store.SessionByUser("user-1"); ok {
		t.Fatal("expected no session after an out of range reply")
	}
	if !contains(e.dc.contentsTo("dm-user-1"), messageGuildSelectBad) {
		t.Fatalf("expected retry message, got %v", e.dc.contentsTo("dm-user-1"))
	}
	if e.store.State("user-1") != store.StateIdle {
		t.Fatalf("expected marker released, got %s", e.store.State("user-1"))
	}
}

func TestHandleMessage_GuildPromptTimeoutReleasesMarker(t *testing.T) {
	e := newTestEnv(t)
	addGuild(e.store, e.dc, "guild-2", "Beta", "reports-2")

	e.manager.HandleMessage(dm("seed-1", "user-1", "help"))

	if !contains(e.dc.contentsTo("dm-user-1"), messageGuildSelectExpiry) {
		t.Fatalf("expected expiry message, got %v", e.dc.contentsTo("dm-user-1"))
	}
	if e.store.State("user-1") != store.StateIdle {
		t.Fatalf("expected marker released, got %s", e.store.State("user-1"))
	}
	if len(e.dc.deleted) != 1 {
		t.Fatalf("expected the prompt to be deleted, got %v", e.dc.deleted)
	}
}

func TestHandleMessage_ReportKindTimeoutReleasesMarker(t *testing.T) {
	e := newTestEnv(t)

	e.manager.HandleMessage(dm("seed-1", "user-1", "help"))

	if e.store.State("user-1") != store.StateIdle {
		t.Fatalf("expected marker released, got %s", e.store.State("user-1"))
	}
	if len(e.dc.edited) != 1 || !e.dc.edited[0].Msg.ClearButtons {
		t.Fatalf("expected the prompt to be expired, got %+v", e.dc.edited)
	}
	if e.dc.threadCount() != 0 {
		t.Fatal("expected no thread after a timeout")
	}
}

func TestHandleMessage_CancelButtonCancels(t *testing.T) {
	e := newTestEnv(t)
	e.dc.queuePress("user-1", kindCancel)

	e.manager.HandleMessage(dm("seed-1", "user-1", "help"))

	if _, ok := e.store.SessionByUser("user-1"); ok {
		t.Fatal("expected no session after cancel")
	}
	if len(e.dc.responses) != 1 || e.dc.responses[0].Content != "Canceling report" || !e.dc.responses[0].Update {
		t.Fatalf("unexpected responses: %+v", e.dc.responses)
	}
}

func TestHandleMessage_PanicReleasesMarkerAndReports(t *testing.T) {
	e := newTestEnv(t)
	e.dc.panicShared = true

	e.manager.HandleMessage(dm("seed-1", "user-1", "help"))

	if e.store.State("user-1") != store.StateIdle {
		t.Fatalf("expected marker released, got %s", e.store.State("user-1"))
	}
	if !contains(e.dc.contentsTo("dm-user-1"), messageSetupFailed) {
		t.Fatalf("expected setup failure notice, got %v", e.dc.contentsTo("dm-user-1"))
	}
	if e.incidents.count() != 1 {
		t.Fatalf("expected one incident, got %d", e.incidents.count())
	}
	if !strings.Contains(e.incidents.errs[0].Error(), "shared guild lookup exploded") {
		t.Fatalf("unexpected incident error: %v", e.incidents.errs[0])
	}
}

func TestHandleMessage_SetupInProgressMarksNonNumericReplies(t *testing.T) {
	e := newTestEnv(t)
	if !e.store.BeginNegotiation("user-1") {
		t.Fatal("expected to begin negotiation")
	}

	e.manager.HandleMessage(dm("msg-1", "user-1", "hello?"))
	e.manager.HandleMessage(dm("msg-2", "user-1", "2"))

	if !e.dc.hasReaction("dm-user-1", "msg-1", markerInvalid) {
		t.Fatal("expected invalid marker on a non-numeric reply")
	}
	if e.dc.hasReaction("dm-user-1", "msg-2", markerInvalid) {
		t.Fatal("expected no marker on a numeric reply")
	}
}

func TestRelay_ModeratorLabelsAreStable(t *testing.T) {
	e := newTestEnv(t)
	e.openTestSession(t)

	e.manager.HandleMessage(staffMessage("s1", "thread-1", "mod-a", "first"))
	e.manager.HandleMessage(staffMessage("s2", "thread-1", "mod-b", "second"))
	e.manager.HandleMessage(staffMessage("s3", "thread-1", "mod-a", "third"))

	want := []string{
		">>> **Moderator 1:** first",
		">>> **Moderator 2:** second",
		">>> **Moderator 1:** third",
	}
	got := e.dc.contentsTo("dm-user-1")
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected relayed messages: %v", got)
	}
	if !e.dc.hasReaction("thread-1", "s3", markerDelivered) {
		t.Fatal("expected delivery marker")
	}
}

func TestRelay_RevealAppendsMention(t *testing.T) {
	e := newTestEnv(t)
	e.openTestSession(t)
	e.store.ToggleReveal("thread-1")

	e.manager.HandleMessage(staffMessage("s1", "thread-1", "mod-a", "hello"))

	if got := e.dc.contentsTo("dm-user-1"); len(got) != 1 || got[0] != ">>> **Moderator 1 (<@mod-a>):** hello" {
		t.Fatalf("unexpected relayed messages: %v", got)
	}
}

func TestRelay_MutesExemptPrefixesAndBots(t *testing.T) {
	e := newTestEnv(t)
	e.openTestSession(t)

	e.manager.HandleMessage(staffMessage("s1", "thread-1", "mod-a", "_what should we do"))
	bot := staffMessage("s2", "thread-1", "other-bot", "beep")
	bot.Author.Bot = true
	e.manager.HandleMessage(bot)

	if got := e.dc.contentsTo("dm-user-1"); len(got) != 0 {
		t.Fatalf("expected nothing relayed, got %v", got)
	}
	if !e.dc.hasReaction("thread-1", "s1", markerMuted) || !e.dc.hasReaction("thread-1", "s2", markerMuted) {
		t.Fatal("expected muted markers")
	}
}

func TestRelay_SplitsLongMessages(t *testing.T) {
	e := newTestEnv(t)
	e.openTestSession(t)
	body := strings.Repeat("a", 1000) + strings.Repeat("b", 1500)

	e.manager.HandleMessage(dm("d1", "user-1", body))

	got := e.dc.contentsTo("thread-1")
	if len(got) != 2 {
		t.Fatalf("expected two sends, got %d", len(got))
	}
	if n := len([]rune(got[0])); n != discord.MessageLimit {
		t.Fatalf("expected first chunk of %d runes, got %d", discord.MessageLimit, n)
	}
	prefix := ">>> <@user-1>: "
	if !strings.HasPrefix(got[0], prefix) || !strings.HasPrefix(got[1], continuationPrefix) {
		t.Fatalf("unexpected prefixes: %q / %q", got[0][:20], got[1][:20])
	}
	rebuilt := strings.TrimPrefix(got[0], prefix) + strings.TrimPrefix(got[1], continuationPrefix)
	if rebuilt != body {
		t.Fatal("expected the body to survive the split unchanged")
	}
}

func TestRelay_DoneIsRejected(t *testing.T) {
	e := newTestEnv(t)
	e.openTestSession(t)

	e.manager.HandleMessage(staffMessage("s1", "thread-1", "mod-a", "Done"))

	if _, ok := e.store.SessionByUser("user-1"); !ok {
		t.Fatal("expected session to stay open")
	}
	if !contains(e.dc.contentsTo("thread-1"), messageDoneRetired) {
		t.Fatalf("expected explanation, got %v", e.dc.contentsTo("thread-1"))
	}
}

func TestRelay_FinishFromStaffResolvesAndArchives(t *testing.T) {
	e := newTestEnv(t)
	e.openTestSession(t)

	e.manager.HandleMessage(staffMessage("s1", "thread-1", "mod-a", "finish"))

	if _, ok := e.store.SessionByUser("user-1"); ok {
		t.Fatal("expected session to be closed")
	}
	if !contains(e.dc.archived, "thread-1") {
		t.Fatal("expected thread to be archived")
	}
	if !e.dc.hasReaction("reports-1", "thread-1", markerResolved) {
		t.Fatal("expected resolved marker on the entry message")
	}
	if !contains(e.dc.contentsTo("thread-1"), closedNotice(true)) {
		t.Fatalf("expected staff close notice, got %v", e.dc.contentsTo("thread-1"))
	}
	if !contains(e.dc.contentsTo("dm-user-1"), closedNotice(false)) {
		t.Fatalf("expected user close notice, got %v", e.dc.contentsTo("dm-user-1"))
	}
}

func TestRelay_FinishFromUserDoesNotResolve(t *testing.T) {
	e := newTestEnv(t)
	e.openTestSession(t)

	e.manager.HandleMessage(dm("d1", "user-1", "FINISH"))

	if _, ok := e.store.SessionByUser("user-1"); ok {
		t.Fatal("expected session to be closed")
	}
	if len(e.dc.archived) != 0 {
		t.Fatalf("expected no archive, got %v", e.dc.archived)
	}
	if e.dc.hasReaction("reports-1", "thread-1", markerResolved) {
		t.Fatal("expected no resolved marker")
	}
}

func TestRelay_FinishInForumUpdatesTags(t *testing.T) {
	e := newTestEnv(t)
	e.dc.channels["forum-1"] = discord.Channel{ID: "forum-1", GuildID: "guild-1", Kind: discord.ChannelKindForum}
	e.dc.channels["post-1"] = discord.Channel{ID: "post-1", GuildID: "guild-1", ParentID: "forum-1", Kind: discord.ChannelKindThread}
	if err := e.store.OpenSession(store.Session{UserID: "user-1", GuildID: "guild-1", ThreadID: "post-1"}); err != nil {
		t.Fatalf("failed to open session: %v", err)
	}

	e.manager.HandleMessage(staffMessage("s1", "post-1", "mod-a", "finish"))

	if len(e.dc.tagEdits) != 1 {
		t.Fatalf("expected one tag edit, got %+v", e.dc.tagEdits)
	}
	edit := e.dc.tagEdits[0]
	if edit.ThreadID != "post-1" || !contains(edit.Add, markerResolved) || !contains(edit.Remove, markerOpen) || !contains(edit.Remove, markerUnresolved) {
		t.Fatalf("unexpected tag edit: %+v", edit)
	}
}

func TestClose_IsIdempotentAcrossExternalArchive(t *testing.T) {
	e := newTestEnv(t)
	e.openTestSession(t)

	e.manager.HandleMessage(staffMessage("s1", "thread-1", "mod-a", "end"))
	e.manager.HandleThreadUpdate(discord.ThreadUpdateEvent{ThreadID: "thread-1", GuildID: "guild-1", Archived: true})
	e.manager.closeSession(context.Background(), e.manager.staffContext(store.Session{UserID: "user-1", GuildID: "guild-1", ThreadID: "thread-1"}), closeOptions{})

	notices := 0
	for _, c := range e.dc.contentsTo("dm-user-1") {
		if c == closedNotice(false) {
			notices++
		}
	}
	if notices != 1 {
		t.Fatalf("expected one close notice, got %d", notices)
	}
	if e.incidents.count() != 0 {
		t.Fatalf("unexpected incidents: %v", e.incidents.errs)
	}
}

func TestHandleThreadUpdate_ExternalArchiveClosesSession(t *testing.T) {
	e := newTestEnv(t)
	e.openTestSession(t)

	e.manager.HandleThreadUpdate(discord.ThreadUpdateEvent{ThreadID: "thread-1", GuildID: "guild-1", Archived: true, ArchivedBySelf: true})
	if _, ok := e.store.SessionByUser("user-1"); !ok {
		t.Fatal("expected self archive to be ignored")
	}

	e.manager.HandleThreadUpdate(discord.ThreadUpdateEvent{ThreadID: "thread-1", GuildID: "guild-1", Archived: true})
	if _, ok := e.store.SessionByUser("user-1"); ok {
		t.Fatal("expected external archive to close the session")
	}
	if len(e.dc.archived) != 0 {
		t.Fatal("expected no archive from an unresolved close")
	}
}

func TestCooldown_RejectsAtFiveSecondsAcceptsAtThirtyOne(t *testing.T) {
	e := newTestEnv(t)
	e.openTestSession(t)
	e.manager.HandleMessage(dm("d1", "user-1", "close"))

	e.clock.Advance(5 * time.Second)
	e.manager.HandleMessage(dm("d2", "user-1", "one more thing"))
	if !contains(e.dc.contentsTo("dm-user-1"), cooldownMessage(25)) {
		t.Fatalf("expected cooldown notice, got %v", e.dc.contentsTo("dm-user-1"))
	}
	if _, ok := e.store.SessionByUser("user-1"); ok {
		t.Fatal("expected no session during cooldown")
	}
	if e.store.State("user-1") != store.StateIdle {
		t.Fatalf("expected marker released, got %s", e.store.State("user-1"))
	}

	e.clock.Advance(26 * time.Second)
	e.dc.queuePress("user-1", kindReport)
	e.manager.HandleMessage(dm("d3", "user-1", "one more thing"))
	if _, ok := e.store.SessionByUser("user-1"); !ok {
		t.Fatal("expected a session after the cooldown")
	}
}

func TestRelay_UnreachableUserClosesSession(t *testing.T) {
	e := newTestEnv(t)
	e.openTestSession(t)
	e.dc.sendErrs["dm-user-1"] = discord.ErrForbidden

	e.manager.HandleMessage(staffMessage("s1", "thread-1", "mod-a", "hello"))

	if _, ok := e.store.SessionByUser("user-1"); ok {
		t.Fatal("expected session to be closed")
	}
	if !contains(e.dc.contentsTo("thread-1"), messageUserUnreachable) {
		t.Fatalf("expected unreachable notice, got %v", e.dc.contentsTo("thread-1"))
	}
	if e.incidents.count() != 0 {
		t.Fatalf("expected no incident for an unreachable user, got %v", e.incidents.errs)
	}
}

func TestResolve_OrphanThreadFinish(t *testing.T) {
	e := newTestEnv(t)
	e.dc.channels["thread-9"] = discord.Channel{ID: "thread-9", GuildID: "guild-1", ParentID: "reports-1", Kind: discord.ChannelKindThread}

	e.manager.HandleMessage(staffMessage("s1", "thread-9", "mod-a", "finish"))

	if !e.dc.hasReaction("thread-9", "s1", markerResolved) {
		t.Fatal("expected acknowledgement on the keyword")
	}
	if !e.dc.hasReaction("reports-1", "thread-9", markerResolved) {
		t.Fatal("expected resolved marker on the entry message")
	}
	if !contains(e.dc.archived, "thread-9") {
		t.Fatal("expected orphan thread to be archived")
	}
}

func TestResolve_UnrelatedChannelIsIgnored(t *testing.T) {
	e := newTestEnv(t)
	e.dc.channels["general"] = discord.Channel{ID: "general", GuildID: "guild-1", Kind: discord.ChannelKindText}

	e.manager.HandleMessage(staffMessage("s1", "general", "someone", "finish"))

	if len(e.dc.reactions) != 0 || len(e.dc.archived) != 0 {
		t.Fatalf("expected no action, got reactions %v archived %v", e.dc.reactions, e.dc.archived)
	}
}

func TestResolve_StaleThreadIsPurgedAndEntryRestarts(t *testing.T) {
	e := newTestEnv(t)
	if err := e.store.OpenSession(store.Session{UserID: "user-1", GuildID: "guild-1", ThreadID: "thread-gone"}); err != nil {
		t.Fatalf("failed to open session: %v", err)
	}
	e.dc.queuePress("user-1", kindReport)

	e.manager.HandleMessage(dm("d1", "user-1", "hello again"))

	sess, ok := e.store.SessionByUser("user-1")
	if !ok {
		t.Fatal("expected a fresh session")
	}
	if sess.ThreadID == "thread-gone" {
		t.Fatal("expected the stale session to be replaced")
	}
}

func TestHandleTyping_RelaysAndPurgesStaleThread(t *testing.T) {
	e := newTestEnv(t)
	e.openTestSession(t)

	e.manager.HandleTyping(discord.TypingEvent{UserID: "user-1", ChannelID: "dm-user-1"})
	if !contains(e.dc.typing, "thread-1") {
		t.Fatalf("expected typing in thread, got %v", e.dc.typing)
	}

	delete(e.dc.channels, "thread-1")
	e.manager.HandleTyping(discord.TypingEvent{UserID: "user-1", ChannelID: "dm-user-1"})
	if _, ok := e.store.SessionByUser("user-1"); ok {
		t.Fatal("expected the session to be purged")
	}
}

func TestOpen_MissingPermissionsWarnsStaffAndUser(t *testing.T) {
	e := newTestEnv(t)
	e.dc.botPerms.CreatePublicThreads = false
	e.dc.queuePress("user-1", kindReport)

	e.manager.HandleMessage(dm("seed-1", "user-1", "help"))

	if _, ok := e.store.SessionByUser("user-1"); ok {
		t.Fatal("expected no session")
	}
	if !contains(e.dc.contentsTo("reports-1"), fmt.Sprintf(messagePermissionFormat, "<@user-1>")) {
		t.Fatalf("expected staff warning, got %v", e.dc.contentsTo("reports-1"))
	}
	if !contains(e.dc.contentsTo("dm-user-1"), notSetupMessage(reasonNoPermission)) {
		t.Fatalf("expected user notice, got %v", e.dc.contentsTo("dm-user-1"))
	}
}

func TestOpen_RoleGateDeniesMembersWithoutRole(t *testing.T) {
	cfg := newTestConfig()
	cfg.EntryGateRequiredRoles = map[string][]string{"guild-1": {"role-member"}}
	st := store.New()
	dc := newMockDiscordClient()
	addGuild(st, dc, "guild-1", "Alpha", "reports-1")
	dc.members["guild-1/user-1"] = discord.Member{GuildID: "guild-1", User: discord.User{ID: "user-1"}}
	m, _, _ := newTestManager(cfg, st, dc)
	dc.queuePress("user-1", kindReport)

	m.HandleMessage(dm("seed-1", "user-1", "I need a role"))

	if _, ok := st.SessionByUser("user-1"); ok {
		t.Fatal("expected the gate to veto the session")
	}
	if dc.threadCount() != 0 {
		t.Fatal("expected no thread")
	}
	if !contains(dc.contentsTo("dm-user-1"), "Before you can contact the staff of Alpha, please finish getting started there: you need one of the server's member roles first.") {
		t.Fatalf("expected onboarding notice, got %v", dc.contentsTo("dm-user-1"))
	}
	embeds := dc.embedsTo("reports-1")
	if len(embeds) != 1 || embeds[0].Color != colorDenied || !strings.Contains(embeds[0].Description, "I need a role") {
		t.Fatalf("unexpected staff notice: %+v", embeds)
	}
}

func TestOpen_CapturesAndRepostsModLog(t *testing.T) {
	e := newTestEnv(t)
	e.cfg.ModLogBotID = "modlog-bot"
	e.dc.onThreadCreated = func(thread discord.Channel) {
		e.dc.queueReply(discord.Message{
			ID:        "log-1",
			ChannelID: thread.ID,
			GuildID:   "guild-1",
			Author:    discord.User{ID: "modlog-bot", Bot: true},
			Content:   "modlog for user-1",
			Embeds:    []discord.Embed{{Title: "Warnings"}, {Title: "Extra"}},
		})
	}
	e.dc.queuePress("user-1", kindReport)

	e.manager.HandleMessage(dm("seed-1", "user-1", "help"))

	sess, ok := e.store.SessionByUser("user-1")
	if !ok {
		t.Fatal("expected a session")
	}
	if !contains(e.dc.deleted, "log-1") {
		t.Fatalf("expected captured log to be deleted, got %v", e.dc.deleted)
	}
	got := e.dc.contentsTo(sess.ThreadID)
	if !contains(got, "modlog for user-1") {
		t.Fatalf("expected repost, got %v", got)
	}
	if embeds := e.dc.embedsTo(sess.ThreadID); len(embeds) != 1 || embeds[0].Title != "Warnings" {
		t.Fatalf("expected only the first embed reposted, got %+v", embeds)
	}
}

func TestOpen_ThreadCreationFailureNotifiesUser(t *testing.T) {
	e := newTestEnv(t)
	e.dc.failSends("reports-1", errors.New("discord 500"))
	e.dc.queuePress("user-1", kindReport)

	e.manager.HandleMessage(dm("seed-1", "user-1", "help"))

	if !contains(e.dc.contentsTo("dm-user-1"), messageOpenFailed) {
		t.Fatalf("expected failure notice, got %v", e.dc.contentsTo("dm-user-1"))
	}
	if _, ok := e.store.SessionByUser("user-1"); ok {
		t.Fatal("expected no session")
	}
	if e.store.State("user-1") != store.StateIdle {
		t.Fatalf("expected marker released, got %s", e.store.State("user-1"))
	}
	if e.incidents.count() != 1 {
		t.Fatalf("expected one incident, got %d", e.incidents.count())
	}
	if e.dc.hasReaction("dm-user-1", "seed-1", markerDelivered) {
		t.Fatal("expected the seed not to be marked delivered")
	}
}

func TestOpen_GateErrorNotifiesUserAndStaff(t *testing.T) {
	cfg := newTestConfig()
	cfg.EntryGateRequiredRoles = map[string][]string{"guild-1": {"role-member"}}
	st := store.New()
	dc := newMockDiscordClient()
	addGuild(st, dc, "guild-1", "Alpha", "reports-1")
	m, incidents, _ := newTestManager(cfg, st, dc)
	m.gate = failingGate{err: errors.New("member lookup timed out")}
	dc.queuePress("user-1", kindReport)

	m.HandleMessage(dm("seed-1", "user-1", "help"))

	if !contains(dc.contentsTo("dm-user-1"), messageOpenFailed) {
		t.Fatalf("expected failure notice, got %v", dc.contentsTo("dm-user-1"))
	}
	if !contains(dc.contentsTo("reports-1"), fmt.Sprintf(messageOpenFailedStaffFormat, "<@user-1>")) {
		t.Fatalf("expected staff notice, got %v", dc.contentsTo("reports-1"))
	}
	if dc.threadCount() != 0 {
		t.Fatal("expected no thread")
	}
	if incidents.count() != 1 {
		t.Fatalf("expected one incident, got %d", incidents.count())
	}
}

func TestOpen_FailureAfterThreadRollsBack(t *testing.T) {
	e := newTestEnv(t)
	e.dc.onThreadCreated = func(discord.Channel) {
		e.dc.failSends("dm-user-1", discord.ErrForbidden)
	}
	e.dc.queuePress("user-1", kindReport)

	e.manager.HandleMessage(dm("seed-1", "user-1", "help"))

	if _, ok := e.store.SessionByUser("user-1"); ok {
		t.Fatal("expected the partial session to be discarded")
	}
	if e.store.State("user-1") != store.StateIdle {
		t.Fatalf("expected idle state, got %s", e.store.State("user-1"))
	}
	if e.dc.threadCount() != 1 {
		t.Fatalf("expected one thread, got %d", e.dc.threadCount())
	}
	threadID := e.dc.threads[0].ID
	got := e.dc.contentsTo(threadID)
	if len(got) == 0 || got[len(got)-1] != messageCloseError {
		t.Fatalf("expected close error notice last in thread, got %v", got)
	}
	if e.incidents.count() != 1 {
		t.Fatalf("expected one incident, got %d", e.incidents.count())
	}
	if !slicesContainsReaction(e.dc.removed, reaction{ChannelID: "reports-1", MessageID: threadID, Emoji: markerOpen}) {
		t.Fatalf("expected open marker removed, got %v", e.dc.removed)
	}
	if !slicesContainsReaction(e.dc.removed, reaction{ChannelID: "dm-user-1", MessageID: "seed-1", Emoji: markerDelivered}) {
		t.Fatalf("expected delivery marker withdrawn, got %v", e.dc.removed)
	}
}

type failingGate struct {
	err error
}

func (g failingGate) Allow(_ context.Context, _ GateRequest) (bool, error) {
	return false, g.err
}

func slicesContainsReaction(items []reaction, want reaction) bool {
	for _, r := range items {
		if r == want {
			return true
		}
	}
	return false
}

func TestOpen_AtMostOneSessionUnderConcurrentEntries(t *testing.T) {
	e := newTestEnv(t)
	for i := 0; i < 5; i++ {
		e.dc.queuePress("user-1", kindReport)
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e.manager.HandleMessage(dm(fmt.Sprintf("seed-%d", i), "user-1", "help"))
		}(i)
	}
	wg.Wait()

	if n := e.dc.threadCount(); n != 1 {
		t.Fatalf("expected one thread, got %d", n)
	}
	if len(e.store.Sessions()) != 1 {
		t.Fatalf("expected one session, got %d", len(e.store.Sessions()))
	}
}

func TestOpen_ReportButtonStartsWithoutSeed(t *testing.T) {
	e := newTestEnv(t)
	e.dc.queuePress("user-1", kindAccount)
	var responses []discord.InteractionResponse

	e.manager.HandleInteraction(discord.InteractionEvent{
		Kind:     discord.InteractionComponent,
		GuildID:  "guild-1",
		User:     discord.User{ID: "user-1", Username: "user-1"},
		Locale:   "es-ES",
		CustomID: customIDStart,
		Respond: func(r discord.InteractionResponse) error {
			responses = append(responses, r)
			return nil
		},
	})

	sess, ok := e.store.SessionByUser("user-1")
	if !ok {
		t.Fatal("expected a session")
	}
	if !contains(e.dc.contentsTo(sess.ThreadID), messageNoSeed) {
		t.Fatalf("expected placeholder, got %v", e.dc.contentsTo(sess.ThreadID))
	}
	if len(responses) != 1 || !responses[0].Ephemeral {
		t.Fatalf("expected an ephemeral pointer to DMs, got %+v", responses)
	}
	if e.store.Locale("user-1") != "es" {
		t.Fatalf("expected locale to be recorded, got %q", e.store.Locale("user-1"))
	}
}

func TestOpen_BanAppealSkipsPromptAndTags(t *testing.T) {
	e := newTestEnv(t)
	e.dc.channels["forum-1"] = discord.Channel{ID: "forum-1", GuildID: "guild-1", Kind: discord.ChannelKindForum}
	e.dc.channels["meta-1"] = discord.Channel{ID: "meta-1", GuildID: "guild-1", ParentID: "forum-1", Kind: discord.ChannelKindThread}
	e.store.SetForumChannel("guild-1", "forum-1", "meta-1")

	e.manager.HandleInteraction(discord.InteractionEvent{
		Kind:     discord.InteractionComponent,
		GuildID:  "appeals",
		User:     discord.User{ID: "user-1", Username: "alice"},
		CustomID: customIDAppealPrefix + "guild-1",
	})

	if e.dc.buttonPrompts("dm-user-1") != 0 {
		t.Fatal("expected no report type prompt for an appeal")
	}
	if len(e.dc.threads) != 1 {
		t.Fatalf("expected one forum post, got %d", len(e.dc.threads))
	}
	post := e.dc.threads[0]
	if !contains(post.AppliedTags, markerOpen) || !contains(post.AppliedTags, markerBanAppeal) {
		t.Fatalf("unexpected tags: %v", post.AppliedTags)
	}
	entry := e.dc.contentsTo(post.ID)[0]
	if !strings.HasPrefix(entry, messageBanAppealBanner) || !strings.Contains(entry, "<@user-1> (alice, user-1)") {
		t.Fatalf("unexpected entry text: %q", entry)
	}
}

func TestHandleCommand_SetModRoleRequiresAdmin(t *testing.T) {
	e := newTestEnv(t)
	var got string
	respond := func(r discord.InteractionResponse) error { got = r.Content; return nil }

	e.manager.HandleInteraction(discord.InteractionEvent{
		Kind: discord.InteractionCommand, GuildID: "guild-1", User: discord.User{ID: "mod-a"},
		RoleIDs: []string{"role-mod"}, CommandName: commandSetModRole, Options: map[string]string{"role": "role-x"},
		Respond: respond,
	})
	if got != replyAdminOnly {
		t.Fatalf("unexpected response: %q", got)
	}

	e.manager.HandleInteraction(discord.InteractionEvent{
		Kind: discord.InteractionCommand, GuildID: "guild-1", User: discord.User{ID: "admin"},
		IsAdmin: true, CommandName: commandSetModRole, Options: map[string]string{"role": "role-x"},
		Respond: respond,
	})
	cfg, _ := e.store.Guild("guild-1")
	if cfg.ModeratorRoleID != "role-x" {
		t.Fatalf("expected mod role to change, got %q", cfg.ModeratorRoleID)
	}
}

func TestHandleCommand_SetupRequiresModRole(t *testing.T) {
	e := newTestEnv(t)
	var got string
	respond := func(r discord.InteractionResponse) error { got = r.Content; return nil }

	e.manager.HandleInteraction(discord.InteractionEvent{
		Kind: discord.InteractionCommand, GuildID: "guild-2", ChannelID: "room-2", User: discord.User{ID: "admin"},
		IsAdmin: true, CommandName: commandSetup, Respond: respond,
	})
	if got != replyModRoleFirst {
		t.Fatalf("unexpected response: %q", got)
	}

	e.manager.HandleInteraction(discord.InteractionEvent{
		Kind: discord.InteractionCommand, GuildID: "guild-1", ChannelID: "room-3", User: discord.User{ID: "member"},
		CommandName: commandSetup, Respond: respond,
	})
	if got != replyNoPermission {
		t.Fatalf("unexpected response: %q", got)
	}

	e.manager.HandleInteraction(discord.InteractionEvent{
		Kind: discord.InteractionCommand, GuildID: "guild-1", ChannelID: "room-3", User: discord.User{ID: "mod-a"},
		RoleIDs: []string{"role-mod"}, CommandName: commandSetup, Options: map[string]string{"secondary": "true"},
		Respond: respond,
	})
	cfg, _ := e.store.Guild("guild-1")
	if cfg.SecondaryChannelID != "room-3" || cfg.PrimaryChannelID != "reports-1" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if !contains(e.dc.contentsTo("room-3"), commandInstructions) {
		t.Fatal("expected instructions to be posted")
	}
}

func TestHandleCommand_RevealAndBlockToggle(t *testing.T) {
	e := newTestEnv(t)
	e.openTestSession(t)
	var got []string
	respond := func(r discord.InteractionResponse) error { got = append(got, r.Content); return nil }
	command := func(name, channelID string, opts map[string]string) {
		e.manager.HandleInteraction(discord.InteractionEvent{
			Kind: discord.InteractionCommand, GuildID: "guild-1", ChannelID: channelID, User: discord.User{ID: "mod-a"},
			RoleIDs: []string{"role-mod"}, CommandName: name, Options: opts, Respond: respond,
		})
	}

	command(commandReveal, "thread-1", nil)
	command(commandReveal, "thread-1", nil)
	command(commandReveal, "reports-1", nil)
	command(commandBlock, "reports-1", map[string]string{"user": "user-9"})

	want := []string{replyRevealOn, replyRevealOff, replyNotThread, fmt.Sprintf(replyBlockedFormat, "<@user-9>")}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected responses: %v", got)
	}
	if !e.store.IsBlocked("guild-1", "user-9") {
		t.Fatal("expected user-9 to be blocked")
	}
}

func TestHandleCommand_SendToUser(t *testing.T) {
	e := newTestEnv(t)
	e.dc.users["user-5"] = discord.User{ID: "user-5"}

	e.manager.HandleInteraction(discord.InteractionEvent{
		Kind: discord.InteractionCommand, GuildID: "guild-1", User: discord.User{ID: "admin"}, IsAdmin: true,
		CommandName: commandSend, Options: map[string]string{"id": "user-5", "message": "please come to the report room"},
	})

	if !contains(e.dc.contentsTo("dm-user-5"), "Message from the mods of Alpha: please come to the report room") {
		t.Fatalf("unexpected sends: %v", e.dc.contentsTo("dm-user-5"))
	}
}

func TestAnnounceReady_PostsToLogChannel(t *testing.T) {
	e := newTestEnv(t)
	e.cfg.LogChannelID = "log-1"

	e.manager.AnnounceReady()

	if got := e.dc.contentsTo("log-1"); len(got) != 1 || !strings.HasPrefix(got[0], messageBotLoaded) {
		t.Fatalf("unexpected ready notice: %v", got)
	}
}

func TestSplitMessage(t *testing.T) {
	if got := splitMessage(">>> x: ", "short"); len(got) != 1 || got[0] != ">>> x: short" {
		t.Fatalf("unexpected split: %v", got)
	}

	body := strings.Repeat("é", 5000)
	chunks := splitMessage(">>> x: ", body)
	if len(chunks) != 3 {
		t.Fatalf("expected three chunks, got %d", len(chunks))
	}
	var rebuilt strings.Builder
	for i, c := range chunks {
		if n := len([]rune(c)); n > discord.MessageLimit {
			t.Fatalf("chunk %d has %d runes", i, n)
		}
		if i == 0 {
			rebuilt.WriteString(strings.TrimPrefix(c, ">>> x: "))
			continue
		}
		rebuilt.WriteString(strings.TrimPrefix(c, continuationPrefix))
	}
	if rebuilt.String() != body {
		t.Fatal("expected no characters lost or duplicated")
	}
}

func TestParseKeyword(t *testing.T) {
	cases := map[string]closeKeyword{
		"end":         keywordEnd,
		" Close ":     keywordEnd,
		"FINISH":      keywordFinish,
		"done":        keywordDone,
		"the end":     keywordNone,
		"finished it": keywordNone,
	}
	for in, want := range cases {
		if got := parseKeyword(in); got != want {
			t.Fatalf("parseKeyword(%q) = %d, want %d", in, got, want)
		}
	}
}
