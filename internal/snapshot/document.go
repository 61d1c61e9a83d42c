// Package snapshot converts store state to and from the persisted JSON
// document and saves it periodically through a Backend.
package snapshot

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/foxseedlab/modbot/internal/store"
)

// ID is a platform snowflake. It decodes from either a JSON number or a
// JSON string and encodes as a number when it is numeric.
type ID string

func (id ID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	if _, err := strconv.ParseUint(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return []byte(strconv.Quote(string(id))), nil
}

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*id = ""
	case len(b) > 0 && b[0] == '"':
		s, err := strconv.Unquote(string(b))
		if err != nil {
			return fmt.Errorf("invalid id %s: %w", b, err)
		}
		*id = ID(s)
	default:
		if _, err := strconv.ParseUint(string(b), 10, 64); err != nil {
			return fmt.Errorf("invalid id %s: %w", b, err)
		}
		*id = ID(b)
	}
	return nil
}

type Report struct {
	UserID       ID   `json:"user_id"`
	ThreadID     ID   `json:"thread_id"`
	GuildID      ID   `json:"guild_id"`
	Mods         []ID `json:"mods"`
	NotAnonymous bool `json:"not_anonymous"`
}

type GuildEntry struct {
	Channel          ID `json:"channel,omitempty"`
	SecondaryChannel ID `json:"secondary_channel,omitempty"`
	MetaChannel      ID `json:"meta_channel,omitempty"`
	ModRole          ID `json:"mod_role"`
}

type Document struct {
	Prefix            map[string]string     `json:"prefix"`
	SettingUp         []ID                  `json:"settingup"`
	Reports           map[string]Report     `json:"reports"`
	Guilds            map[string]GuildEntry `json:"guilds"`
	UserLocalizations map[string]string     `json:"user_localizations"`
	BlockedUsers      map[string][]ID       `json:"blocked_users"`
}

func FromData(d store.Data) Document {
	doc := Document{
		Prefix:            make(map[string]string, len(d.Prefixes)),
		SettingUp:         make([]ID, 0, len(d.Negotiating)),
		Reports:           make(map[string]Report, len(d.Sessions)),
		Guilds:            make(map[string]GuildEntry, len(d.Guilds)),
		UserLocalizations: make(map[string]string, len(d.Locales)),
		BlockedUsers:      make(map[string][]ID, len(d.Blocked)),
	}
	for k, v := range d.Prefixes {
		doc.Prefix[k] = v
	}
	for _, userID := range d.Negotiating {
		doc.SettingUp = append(doc.SettingUp, ID(userID))
	}
	for _, s := range d.Sessions {
		mods := make([]ID, 0, len(s.ModeratorIDs))
		for _, m := range s.ModeratorIDs {
			mods = append(mods, ID(m))
		}
		doc.Reports[s.UserID] = Report{
			UserID:       ID(s.UserID),
			ThreadID:     ID(s.ThreadID),
			GuildID:      ID(s.GuildID),
			Mods:         mods,
			NotAnonymous: s.RevealIdentity,
		}
	}
	for _, g := range d.Guilds {
		doc.Guilds[g.GuildID] = GuildEntry{
			Channel:          ID(g.PrimaryChannelID),
			SecondaryChannel: ID(g.SecondaryChannelID),
			MetaChannel:      ID(g.MetaChannelID),
			ModRole:          ID(g.ModeratorRoleID),
		}
	}
	for k, v := range d.Locales {
		doc.UserLocalizations[k] = v
	}
	for guildID, users := range d.Blocked {
		ids := make([]ID, 0, len(users))
		for _, u := range users {
			ids = append(ids, ID(u))
		}
		doc.BlockedUsers[guildID] = ids
	}
	return doc
}

func (doc Document) Data() store.Data {
	d := store.Data{
		Prefixes: make(map[string]string, len(doc.Prefix)),
		Locales:  make(map[string]string, len(doc.UserLocalizations)),
		Blocked:  make(map[string][]string, len(doc.BlockedUsers)),
	}
	for k, v := range doc.Prefix {
		d.Prefixes[k] = v
	}
	for _, id := range doc.SettingUp {
		d.Negotiating = append(d.Negotiating, string(id))
	}
	for key, r := range doc.Reports {
		userID := string(r.UserID)
		if userID == "" {
			userID = key
		}
		mods := make([]string, 0, len(r.Mods))
		for _, m := range r.Mods {
			mods = append(mods, string(m))
		}
		d.Sessions = append(d.Sessions, store.Session{
			UserID:         userID,
			GuildID:        string(r.GuildID),
			ThreadID:       string(r.ThreadID),
			ModeratorIDs:   mods,
			RevealIdentity: r.NotAnonymous,
		})
	}
	for guildID, g := range doc.Guilds {
		d.Guilds = append(d.Guilds, store.GuildConfig{
			GuildID:            guildID,
			PrimaryChannelID:   string(g.Channel),
			SecondaryChannelID: string(g.SecondaryChannel),
			MetaChannelID:      string(g.MetaChannel),
			ModeratorRoleID:    string(g.ModRole),
		})
	}
	for k, v := range doc.UserLocalizations {
		d.Locales[k] = v
	}
	for guildID, users := range doc.BlockedUsers {
		ids := make([]string, 0, len(users))
		for _, u := range users {
			ids = append(ids, string(u))
		}
		d.Blocked[guildID] = ids
	}
	return d
}
