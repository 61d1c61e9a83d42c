// Package store holds the bot's in-memory state: guild configuration,
// per-user report state, sessions, cooldowns, block lists and locales.
package store

import (
	"errors"
	"slices"
	"sort"
	"sync"
	"time"
)

var (
	ErrSessionExists      = errors.New("store: user already has an open session")
	ErrThreadInUse        = errors.New("store: thread already belongs to a session")
	ErrGuildNotConfigured = errors.New("store: guild has no configuration")
	ErrNoPrimaryChannel   = errors.New("store: guild has no primary channel")
)

type UserState int

const (
	StateIdle UserState = iota
	StateNegotiating
	StateInSession
)

func (s UserState) String() string {
	switch s {
	case StateNegotiating:
		return "negotiating"
	case StateInSession:
		return "in_session"
	default:
		return "idle"
	}
}

type GuildConfig struct {
	GuildID            string
	PrimaryChannelID   string
	SecondaryChannelID string
	MetaChannelID      string
	ModeratorRoleID    string
}

func (g GuildConfig) CanOpenSessions() bool {
	return g.PrimaryChannelID != ""
}

func (g GuildConfig) AcceptsAdminCommands() bool {
	return g.ModeratorRoleID != ""
}

// Container returns the channel new sessions are opened under. The
// secondary container falls back to the primary one when unset.
func (g GuildConfig) Container(secondary bool) string {
	if secondary && g.SecondaryChannelID != "" {
		return g.SecondaryChannelID
	}
	return g.PrimaryChannelID
}

func (g GuildConfig) IsContainer(channelID string) bool {
	if channelID == "" {
		return false
	}
	return channelID == g.PrimaryChannelID || channelID == g.SecondaryChannelID
}

type Session struct {
	UserID         string
	GuildID        string
	ThreadID       string
	ModeratorIDs   []string
	RevealIdentity bool
}

// ModeratorLabel returns the 1-based position of the moderator in
// first-spoken order, or 0 when they have not spoken yet.
func (s Session) ModeratorLabel(moderatorID string) int {
	return slices.Index(s.ModeratorIDs, moderatorID) + 1
}

func (s Session) clone() Session {
	s.ModeratorIDs = slices.Clone(s.ModeratorIDs)
	return s
}

// Data is a plain copy of everything the store holds, used for snapshots.
type Data struct {
	Prefixes    map[string]string
	Negotiating []string
	Sessions    []Session
	Guilds      []GuildConfig
	Locales     map[string]string
	Blocked     map[string][]string
}

type Store struct {
	mu        sync.Mutex
	states    map[string]UserState
	sessions  map[string]*Session
	threads   map[string]string
	guilds    map[string]*GuildConfig
	cooldowns map[string]time.Time
	blocked   map[string]map[string]struct{}
	locales   map[string]string
	prefixes  map[string]string
	version   uint64
}

func New() *Store {
	return &Store{
		states:    make(map[string]UserState),
		sessions:  make(map[string]*Session),
		threads:   make(map[string]string),
		guilds:    make(map[string]*GuildConfig),
		cooldowns: make(map[string]time.Time),
		blocked:   make(map[string]map[string]struct{}),
		locales:   make(map[string]string),
		prefixes:  make(map[string]string),
	}
}

// Version increases on every mutation that should reach a snapshot.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

func (s *Store) State(userID string) UserState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[userID]
}

// BeginNegotiation marks the user as negotiating. It returns false when
// the user is not idle.
func (s *Store) BeginNegotiation(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.states[userID] != StateIdle {
		return false
	}
	s.states[userID] = StateNegotiating
	s.version++
	return true
}

// EndNegotiation releases the negotiating marker. A user that moved on to
// a session is left untouched.
func (s *Store) EndNegotiation(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.states[userID] != StateNegotiating {
		return
	}
	delete(s.states, userID)
	s.version++
}

func (s *Store) OpenSession(sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.states[sess.UserID] == StateInSession {
		return ErrSessionExists
	}
	if _, taken := s.threads[sess.ThreadID]; taken {
		return ErrThreadInUse
	}
	sess.ModeratorIDs = nil
	sess.RevealIdentity = false
	s.sessions[sess.UserID] = &sess
	s.threads[sess.ThreadID] = sess.UserID
	s.states[sess.UserID] = StateInSession
	s.version++
	return nil
}

func (s *Store) SessionByUser(userID string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return Session{}, false
	}
	return sess.clone(), true
}

func (s *Store) SessionByThread(threadID string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.threads[threadID]
	if !ok {
		return Session{}, false
	}
	return s.sessions[userID].clone(), true
}

func (s *Store) Sessions() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// CloseSession removes the user's session and records the cooldown start.
// The second call for the same user reports false and changes nothing.
func (s *Store) CloseSession(userID string, at time.Time) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.removeLocked(userID)
	if !ok {
		return Session{}, false
	}
	s.cooldowns[userID] = at
	return sess, true
}

// CloseThreadSession closes the session bound to threadID, leaving any
// newer session of the same user alone.
func (s *Store) CloseThreadSession(threadID string, at time.Time) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.threads[threadID]
	if !ok {
		return Session{}, false
	}
	sess, _ := s.removeLocked(userID)
	s.cooldowns[userID] = at
	return sess, true
}

// DiscardSession removes a session without starting a cooldown. It is
// used for stale sessions and for sessions whose opening failed.
func (s *Store) DiscardSession(userID string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(userID)
}

func (s *Store) removeLocked(userID string) (Session, bool) {
	sess, ok := s.sessions[userID]
	if !ok {
		return Session{}, false
	}
	delete(s.sessions, userID)
	delete(s.threads, sess.ThreadID)
	delete(s.states, userID)
	s.version++
	return sess.clone(), true
}

// NoteModerator records the moderator as a participant of the session
// bound to threadID and returns their stable 1-based label.
func (s *Store) NoteModerator(threadID, moderatorID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.threads[threadID]
	if !ok {
		return 0, false
	}
	sess := s.sessions[userID]
	if idx := slices.Index(sess.ModeratorIDs, moderatorID); idx >= 0 {
		return idx + 1, true
	}
	sess.ModeratorIDs = append(sess.ModeratorIDs, moderatorID)
	s.version++
	return len(sess.ModeratorIDs), true
}

// ToggleReveal flips identity reveal for the session bound to threadID and
// returns the new value.
func (s *Store) ToggleReveal(threadID string) (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.threads[threadID]
	if !ok {
		return false, false
	}
	sess := s.sessions[userID]
	sess.RevealIdentity = !sess.RevealIdentity
	s.version++
	return sess.RevealIdentity, true
}

// CooldownRemaining returns how long the user still has to wait before a
// new session may start, or zero.
func (s *Store) CooldownRemaining(userID string, now time.Time, window time.Duration) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.cooldowns[userID]
	if !ok {
		return 0
	}
	if remaining := window - now.Sub(last); remaining > 0 {
		return remaining
	}
	return 0
}

func (s *Store) Guild(guildID string) (GuildConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.guilds[guildID]
	if !ok {
		return GuildConfig{}, false
	}
	return *g, true
}

// SetPrimaryChannel resets the guild's destination to channelID, clearing
// secondary and forum settings while keeping the moderator role.
func (s *Store) SetPrimaryChannel(guildID, channelID string) GuildConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.guildLocked(guildID)
	*g = GuildConfig{GuildID: guildID, PrimaryChannelID: channelID, ModeratorRoleID: g.ModeratorRoleID}
	s.version++
	return *g
}

func (s *Store) SetSecondaryChannel(guildID, channelID string) (GuildConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.guilds[guildID]
	if !ok {
		return GuildConfig{}, ErrGuildNotConfigured
	}
	if g.PrimaryChannelID == "" {
		return GuildConfig{}, ErrNoPrimaryChannel
	}
	g.SecondaryChannelID = channelID
	s.version++
	return *g, nil
}

// SetForumChannel makes a forum the primary destination, with metaThreadID
// as the post used for guild-side notices.
func (s *Store) SetForumChannel(guildID, forumID, metaThreadID string) GuildConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.guildLocked(guildID)
	g.PrimaryChannelID = forumID
	g.MetaChannelID = metaThreadID
	s.version++
	return *g
}

// SetModeratorRole sets the role; an empty roleID clears it.
func (s *Store) SetModeratorRole(guildID, roleID string) GuildConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.guildLocked(guildID)
	g.ModeratorRoleID = roleID
	s.version++
	return *g
}

func (s *Store) guildLocked(guildID string) *GuildConfig {
	g, ok := s.guilds[guildID]
	if !ok {
		g = &GuildConfig{GuildID: guildID}
		s.guilds[guildID] = g
	}
	return g
}

// ClearGuildSessions drops every session bound to the guild and returns
// how many were removed. Guild configuration is kept.
func (s *Store) ClearGuildSessions(guildID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for userID, sess := range s.sessions {
		if sess.GuildID == guildID {
			ids = append(ids, userID)
		}
	}
	for _, userID := range ids {
		s.removeLocked(userID)
	}
	return len(ids)
}

func (s *Store) IsBlocked(guildID, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blocked[guildID][userID]
	return ok
}

// ToggleBlock flips the user's block status in the guild and returns
// whether the user is now blocked.
func (s *Store) ToggleBlock(guildID, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version++
	users, ok := s.blocked[guildID]
	if !ok {
		users = make(map[string]struct{})
		s.blocked[guildID] = users
	}
	if _, ok := users[userID]; ok {
		delete(users, userID)
		if len(users) == 0 {
			delete(s.blocked, guildID)
		}
		return false
	}
	users[userID] = struct{}{}
	return true
}

func (s *Store) SetLocale(userID, tag string) {
	if tag == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locales[userID] == tag {
		return
	}
	s.locales[userID] = tag
	s.version++
}

// Locale returns the recorded tag or an empty string.
func (s *Store) Locale(userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locales[userID]
}

func (s *Store) Snapshot() Data {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := Data{
		Prefixes: make(map[string]string, len(s.prefixes)),
		Locales:  make(map[string]string, len(s.locales)),
		Blocked:  make(map[string][]string, len(s.blocked)),
	}
	for k, v := range s.prefixes {
		d.Prefixes[k] = v
	}
	for k, v := range s.locales {
		d.Locales[k] = v
	}
	for userID, state := range s.states {
		if state == StateNegotiating {
			d.Negotiating = append(d.Negotiating, userID)
		}
	}
	sort.Strings(d.Negotiating)
	for _, sess := range s.sessions {
		d.Sessions = append(d.Sessions, sess.clone())
	}
	sort.Slice(d.Sessions, func(i, j int) bool { return d.Sessions[i].UserID < d.Sessions[j].UserID })
	for _, g := range s.guilds {
		d.Guilds = append(d.Guilds, *g)
	}
	sort.Slice(d.Guilds, func(i, j int) bool { return d.Guilds[i].GuildID < d.Guilds[j].GuildID })
	for guildID, users := range s.blocked {
		list := make([]string, 0, len(users))
		for userID := range users {
			list = append(list, userID)
		}
		sort.Strings(list)
		d.Blocked[guildID] = list
	}
	return d
}

// Restore replaces the store contents with d. Negotiation markers are not
// restored: no prompt survives a restart.
func (s *Store) Restore(d Data) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = make(map[string]UserState)
	s.sessions = make(map[string]*Session)
	s.threads = make(map[string]string)
	s.guilds = make(map[string]*GuildConfig)
	s.blocked = make(map[string]map[string]struct{})
	s.locales = make(map[string]string)
	s.prefixes = make(map[string]string)

	for k, v := range d.Prefixes {
		s.prefixes[k] = v
	}
	for k, v := range d.Locales {
		s.locales[k] = v
	}
	for _, g := range d.Guilds {
		s.guilds[g.GuildID] = &g
	}
	for _, sess := range d.Sessions {
		if sess.UserID == "" || sess.ThreadID == "" {
			continue
		}
		if _, taken := s.threads[sess.ThreadID]; taken {
			continue
		}
		c := sess.clone()
		s.sessions[sess.UserID] = &c
		s.threads[sess.ThreadID] = sess.UserID
		s.states[sess.UserID] = StateInSession
	}
	for guildID, users := range d.Blocked {
		set := make(map[string]struct{}, len(users))
		for _, userID := range users {
			set[userID] = struct{}{}
		}
		if len(set) > 0 {
			s.blocked[guildID] = set
		}
	}
	s.version++
}
