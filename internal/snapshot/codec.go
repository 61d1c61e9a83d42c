package snapshot

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// legacyDocument is the schema used before sessions were keyed per user:
// one "current user" per guild and the mod role kept in a separate map.
type legacyDocument struct {
	Prefix  map[string]string `json:"prefix"`
	InSetup []ID              `json:"insetup"`
	Guilds  map[string]struct {
		Channel ID `json:"channel"`
	} `json:"guilds"`
	ModRole map[string]ID `json:"modrole"`
}

// IsLegacy reports whether raw uses the pre-session schema.
func IsLegacy(raw []byte) bool {
	node, err := sonic.Get(raw, "inreportroom")
	return err == nil && node.Exists()
}

// Decode parses a snapshot of any known schema revision. Legacy documents
// are migrated: guild channels and mod roles are kept, in-flight reports
// of the old model are dropped.
func Decode(raw []byte) (Document, error) {
	if IsLegacy(raw) {
		return decodeLegacy(raw)
	}
	var doc Document
	if err := sonic.Unmarshal(raw, &doc); err != nil {
		return Document{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	doc.normalize()
	return doc, nil
}

func decodeLegacy(raw []byte) (Document, error) {
	var old legacyDocument
	if err := sonic.Unmarshal(raw, &old); err != nil {
		return Document{}, fmt.Errorf("failed to decode legacy snapshot: %w", err)
	}
	doc := Document{
		Prefix:    old.Prefix,
		SettingUp: old.InSetup,
		Guilds:    make(map[string]GuildEntry, len(old.Guilds)),
	}
	for guildID, g := range old.Guilds {
		doc.Guilds[guildID] = GuildEntry{
			Channel: g.Channel,
			ModRole: old.ModRole[guildID],
		}
	}
	doc.normalize()
	return doc, nil
}

func (doc *Document) normalize() {
	if doc.Prefix == nil {
		doc.Prefix = map[string]string{}
	}
	if doc.SettingUp == nil {
		doc.SettingUp = []ID{}
	}
	if doc.Reports == nil {
		doc.Reports = map[string]Report{}
	}
	if doc.Guilds == nil {
		doc.Guilds = map[string]GuildEntry{}
	}
	if doc.UserLocalizations == nil {
		doc.UserLocalizations = map[string]string{}
	}
	if doc.BlockedUsers == nil {
		doc.BlockedUsers = map[string][]ID{}
	}
}

func Encode(doc Document) ([]byte, error) {
	doc.normalize()
	b, err := sonic.ConfigStd.MarshalIndent(doc, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return b, nil
}
