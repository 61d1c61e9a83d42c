package snapshot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/foxseedlab/modbot/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const currentDocument = `{
    "prefix": {"111": ";"},
    "settingup": [222],
    "reports": {
        "333": {"user_id": 333, "thread_id": 444, "guild_id": 111, "mods": [555, 666], "not_anonymous": true}
    },
    "guilds": {
        "111": {"channel": 777, "secondary_channel": 778, "mod_role": 888}
    },
    "user_localizations": {"333": "ja"},
    "blocked_users": {"111": [999]}
}`

func TestDecode_CurrentSchema(t *testing.T) {
	doc, err := Decode([]byte(currentDocument))
	require.NoError(t, err)

	r := doc.Reports["333"]
	assert.Equal(t, ID("444"), r.ThreadID)
	assert.Equal(t, []ID{"555", "666"}, r.Mods)
	assert.True(t, r.NotAnonymous)
	assert.Equal(t, ID("888"), doc.Guilds["111"].ModRole)
	assert.Equal(t, []ID{"999"}, doc.BlockedUsers["111"])

	d := doc.Data()
	require.Len(t, d.Sessions, 1)
	assert.Equal(t, "333", d.Sessions[0].UserID)
	assert.Equal(t, []string{"555", "666"}, d.Sessions[0].ModeratorIDs)
	require.Len(t, d.Guilds, 1)
	assert.Equal(t, "778", d.Guilds[0].SecondaryChannelID)
}

func TestDecode_StringIDsAndNullRole(t *testing.T) {
	doc, err := Decode([]byte(`{"guilds": {"1": {"channel": "2", "mod_role": null}}}`))
	require.NoError(t, err)
	assert.Equal(t, ID("2"), doc.Guilds["1"].Channel)
	assert.Empty(t, doc.Guilds["1"].ModRole)
	assert.NotNil(t, doc.Reports)
	assert.NotNil(t, doc.BlockedUsers)
}

func TestDecode_LegacySchema(t *testing.T) {
	raw := `{
        "prefix": {},
        "insetup": [1],
        "pause": false,
        "inreportroom": {"10": 5},
        "waitinglist": {"10": []},
        "guilds": {"10": {"channel": 20}, "11": {"channel": 21}},
        "modrole": {"10": 30}
    }`
	require.True(t, IsLegacy([]byte(raw)))

	doc, err := Decode([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, ID("20"), doc.Guilds["10"].Channel)
	assert.Equal(t, ID("30"), doc.Guilds["10"].ModRole)
	assert.Empty(t, doc.Guilds["11"].ModRole)
	assert.Equal(t, []ID{"1"}, doc.SettingUp)
	assert.Empty(t, doc.Reports)
}

func TestEncode_WritesNumericIDs(t *testing.T) {
	doc := FromData(store.Data{
		Sessions: []store.Session{{UserID: "1", GuildID: "2", ThreadID: "3", ModeratorIDs: []string{"4"}}},
		Guilds:   []store.GuildConfig{{GuildID: "2", PrimaryChannelID: "5"}},
	})
	raw, err := Encode(doc)
	require.NoError(t, err)

	s := string(raw)
	assert.Contains(t, s, `"thread_id": 3`)
	assert.Contains(t, s, `"mod_role": null`)
	assert.NotContains(t, s, `"secondary_channel"`)
	assert.False(t, IsLegacy(raw))

	again, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, doc.Reports, again.Reports)
}

type memoryBackend struct {
	mu    sync.Mutex
	saved [][]byte
}

func (b *memoryBackend) Load(context.Context) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.saved) == 0 {
		return nil, ErrNoSnapshot
	}
	return b.saved[len(b.saved)-1], nil
}

func (b *memoryBackend) Save(_ context.Context, doc []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.saved = append(b.saved, doc)
	return nil
}

func (b *memoryBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.saved)
}

func TestPersister_RestoreWithoutSnapshot(t *testing.T) {
	p := NewPersister(&memoryBackend{}, store.New(), time.Minute)
	require.NoError(t, p.Restore(t.Context()))
}

func TestPersister_SavesOnlyWhenChanged(t *testing.T) {
	backend := &memoryBackend{}
	st := store.New()
	p := NewPersister(backend, st, time.Minute)

	require.NoError(t, p.save(t.Context(), false))
	assert.Equal(t, 0, backend.count())

	st.SetPrimaryChannel("g1", "c1")
	require.NoError(t, p.save(t.Context(), false))
	require.NoError(t, p.save(t.Context(), false))
	assert.Equal(t, 1, backend.count())

	require.NoError(t, p.SaveNow(t.Context()))
	assert.Equal(t, 2, backend.count())
}

func TestPersister_RoundTrip(t *testing.T) {
	backend := &memoryBackend{}
	st := store.New()
	st.SetModeratorRole("g1", "r1")
	st.SetPrimaryChannel("g1", "c1")
	require.NoError(t, st.OpenSession(store.Session{UserID: "u1", GuildID: "g1", ThreadID: "t1"}))
	require.NoError(t, NewPersister(backend, st, time.Minute).SaveNow(t.Context()))

	restored := store.New()
	require.NoError(t, NewPersister(backend, restored, time.Minute).Restore(t.Context()))
	sess, ok := restored.SessionByThread("t1")
	require.True(t, ok)
	assert.Equal(t, "u1", sess.UserID)
}

func TestPersister_RunSavesOnShutdown(t *testing.T) {
	backend := &memoryBackend{}
	st := store.New()
	p := NewPersister(backend, st, time.Hour)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	st.SetLocale("u1", "es")
	cancel()
	require.NoError(t, <-done)
	require.Equal(t, 1, backend.count())
	raw, _ := backend.Load(t.Context())
	assert.True(t, strings.Contains(string(raw), `"es"`))
}
