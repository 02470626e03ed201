package roles

import (
	"context"
	"errors"
	"testing"

	"kymera-bot/internal/storage"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePlatform struct {
	existing  map[string]bool
	lookupErr error
	history   []*discordgo.Message
	sent      []*discordgo.MessageEmbed
	reactions []string
	roles     []*discordgo.Role
	members   map[string]*discordgo.Member
	added     []string
	removed   []string
}

func (f *fakePlatform) ChannelMessage(_, messageID string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	if !f.existing[messageID] {
		return nil, &discordgo.RESTError{Message: &discordgo.APIErrorMessage{Code: discordgo.ErrCodeUnknownMessage, Message: "Unknown Message"}}
	}
	return &discordgo.Message{ID: messageID}, nil
}

func (f *fakePlatform) ChannelMessages(string, int, string, string, string, ...discordgo.RequestOption) ([]*discordgo.Message, error) {
	return f.history, nil
}

func (f *fakePlatform) ChannelMessageSendEmbed(_ string, embed *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.sent = append(f.sent, embed)
	return &discordgo.Message{ID: "new-role-msg"}, nil
}

func (f *fakePlatform) MessageReactionAdd(_, _, emoji string, _ ...discordgo.RequestOption) error {
	f.reactions = append(f.reactions, emoji)
	return nil
}

func (f *fakePlatform) GuildRoles(string, ...discordgo.RequestOption) ([]*discordgo.Role, error) {
	return f.roles, nil
}

func (f *fakePlatform) GuildMember(_, userID string, _ ...discordgo.RequestOption) (*discordgo.Member, error) {
	return f.members[userID], nil
}

func (f *fakePlatform) GuildMemberRoleAdd(_, userID, roleID string, _ ...discordgo.RequestOption) error {
	f.added = append(f.added, roleID)
	m := f.members[userID]
	m.Roles = append(m.Roles, roleID)
	return nil
}

func (f *fakePlatform) GuildMemberRoleRemove(_, userID, roleID string, _ ...discordgo.RequestOption) error {
	f.removed = append(f.removed, roleID)
	m := f.members[userID]
	kept := m.Roles[:0]
	for _, id := range m.Roles {
		if id != roleID {
			kept = append(kept, id)
		}
	}
	m.Roles = kept
	return nil
}

func newStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.New(storage.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.Migrate())
	return store
}

func newPlatform() *fakePlatform {
	return &fakePlatform{
		roles: []*discordgo.Role{
			{ID: "r-gamer", Name: "Gamer"},
			{ID: "r-alerts", Name: "Stream Alerts"},
			{ID: "r-night", Name: "Game Night"},
		},
		members: map[string]*discordgo.Member{"u1": {User: &discordgo.User{ID: "u1"}}},
	}
}

func TestEnsureCreatesMessage(t *testing.T) {
	platform := newPlatform()
	store := newStore(t)
	a := NewAssignor(platform, store, 0xDC143C, zap.NewNop())
	a.SetBotUserID("bot")

	id, err := a.Ensure(context.Background(), "g1", "c1")
	require.NoError(t, err)
	require.Equal(t, "new-role-msg", id)
	require.Len(t, platform.sent, 1)
	require.Equal(t, Title, platform.sent[0].Title)
	require.Equal(t, []string{"🎮", "🔔", "🎲"}, platform.reactions)

	ref, ok, err := store.GetRoleMessage(context.Background(), "g1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "new-role-msg", ref.MessageID)

	again, err := a.Ensure(context.Background(), "g1", "c1")
	require.NoError(t, err)
	require.Equal(t, id, again)
	require.Len(t, platform.sent, 1)
}

func TestEnsureReusesHistory(t *testing.T) {
	platform := newPlatform()
	platform.history = []*discordgo.Message{
		{ID: "other", Author: &discordgo.User{ID: "bot"}, Embeds: []*discordgo.MessageEmbed{{Title: "Welcome"}}},
		{ID: "spoof", Author: &discordgo.User{ID: "someone"}, Embeds: []*discordgo.MessageEmbed{{Title: Title}}},
		{ID: "existing", Author: &discordgo.User{ID: "bot"}, Embeds: []*discordgo.MessageEmbed{{Title: Title}}},
	}
	a := NewAssignor(platform, newStore(t), 0, zap.NewNop())
	a.SetBotUserID("bot")

	id, err := a.Ensure(context.Background(), "g1", "c1")
	require.NoError(t, err)
	require.Equal(t, "existing", id)
	require.Empty(t, platform.sent)
}

func TestEnsureUsesPersistedRef(t *testing.T) {
	platform := newPlatform()
	store := newStore(t)
	require.NoError(t, store.SetRoleMessage(context.Background(), storage.RoleMessage{GuildID: "g1", ChannelID: "c1", MessageID: "stored"}))
	platform.existing = map[string]bool{"stored": true}
	a := NewAssignor(platform, store, 0, zap.NewNop())

	id, err := a.Ensure(context.Background(), "g1", "c1")
	require.NoError(t, err)
	require.Equal(t, "stored", id)
	require.Empty(t, platform.sent)
}

func TestEnsureReplacesDeletedStoredMessage(t *testing.T) {
	platform := newPlatform()
	store := newStore(t)
	require.NoError(t, store.SetRoleMessage(context.Background(), storage.RoleMessage{GuildID: "g1", ChannelID: "c1", MessageID: "deleted-msg"}))
	a := NewAssignor(platform, store, 0, zap.NewNop())
	a.SetBotUserID("bot")

	id, err := a.Ensure(context.Background(), "g1", "c1")
	require.NoError(t, err)
	require.Equal(t, "new-role-msg", id)
	require.Len(t, platform.sent, 1)

	ref, ok, err := store.GetRoleMessage(context.Background(), "g1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "new-role-msg", ref.MessageID)
}

func TestEnsureKeepsStoredRefOnLookupFailure(t *testing.T) {
	platform := newPlatform()
	platform.lookupErr = errors.New("gateway timeout")
	store := newStore(t)
	require.NoError(t, store.SetRoleMessage(context.Background(), storage.RoleMessage{GuildID: "g1", ChannelID: "c1", MessageID: "stored"}))
	a := NewAssignor(platform, store, 0, zap.NewNop())

	id, err := a.Ensure(context.Background(), "g1", "c1")
	require.NoError(t, err)
	require.Equal(t, "stored", id)
	require.Empty(t, platform.sent)
}

func TestToggleGrantsAndRevokesExactlyOneRole(t *testing.T) {
	platform := newPlatform()
	a := NewAssignor(platform, nil, 0, zap.NewNop())
	a.SetBotUserID("bot")
	_, err := a.Ensure(context.Background(), "g1", "c1")
	require.NoError(t, err)

	reaction := Reaction{GuildID: "g1", ChannelID: "c1", MessageID: "new-role-msg", UserID: "u1", Emoji: "🎮"}
	require.NoError(t, a.HandleAdd(context.Background(), reaction))
	require.Equal(t, []string{"r-gamer"}, platform.added)
	require.Equal(t, []string{"r-gamer"}, platform.members["u1"].Roles)

	require.NoError(t, a.HandleRemove(context.Background(), reaction))
	require.NoError(t, a.HandleRemove(context.Background(), reaction))
	require.Equal(t, []string{"r-gamer"}, platform.removed)
	require.Empty(t, platform.members["u1"].Roles)
}

func TestToggleIgnoresNoise(t *testing.T) {
	platform := newPlatform()
	a := NewAssignor(platform, nil, 0, zap.NewNop())
	a.SetBotUserID("bot")
	_, err := a.Ensure(context.Background(), "g1", "c1")
	require.NoError(t, err)

	cases := []Reaction{
		{GuildID: "g1", MessageID: "new-role-msg", UserID: "u1", Emoji: "🎮", IsBot: true},
		{GuildID: "g1", MessageID: "new-role-msg", UserID: "bot", Emoji: "🎮"},
		{GuildID: "g1", MessageID: "somewhere-else", UserID: "u1", Emoji: "🎮"},
		{GuildID: "g2", MessageID: "new-role-msg", UserID: "u1", Emoji: "🎮"},
		{GuildID: "g1", MessageID: "new-role-msg", UserID: "u1", Emoji: "🍕"},
	}
	for _, r := range cases {
		require.NoError(t, a.HandleAdd(context.Background(), r))
	}
	require.Empty(t, platform.added)
}

func TestToggleMissingGuildRole(t *testing.T) {
	platform := newPlatform()
	platform.roles = platform.roles[:1]
	a := NewAssignor(platform, nil, 0, zap.NewNop())
	_, err := a.Ensure(context.Background(), "g1", "c1")
	require.NoError(t, err)

	require.NoError(t, a.HandleAdd(context.Background(), Reaction{GuildID: "g1", MessageID: "new-role-msg", UserID: "u1", Emoji: "🎲"}))
	require.Empty(t, platform.added)
}
