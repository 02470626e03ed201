package commands

import (
	"context"
	"errors"
	"testing"
	"time"

	"kymera-bot/internal/utils"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func message(content string) *discordgo.Message {
	return &discordgo.Message{ID: "m1", ChannelID: "c1", GuildID: "g1", Content: content, Author: &discordgo.User{ID: "u1"}}
}

type fixture struct {
	registry *Registry
	replies  []string
	ran      []string
	isMod    bool
}

func newFixture(limit int) *fixture {
	f := &fixture{}
	f.registry = NewRegistry("!", utils.NewRateLimiter(limit, time.Minute),
		func(context.Context, *Invocation) (bool, error) { return f.isMod, nil },
		func(_ *Invocation, content string) { f.replies = append(f.replies, content) },
		zap.NewNop(),
	)
	record := func(_ context.Context, inv *Invocation) error {
		f.ran = append(f.ran, inv.Name+":"+inv.Rest(0))
		return nil
	}
	f.registry.Register(&Command{Name: "ping", Usage: "ping", Handler: record})
	f.registry.Register(&Command{Name: "play", Aliases: []string{"p"}, Usage: "play <query|url>", MinArgs: 1, Handler: record})
	f.registry.Register(&Command{Name: "kick", Usage: "kick @user [reason]", Tier: TierModerator, MinArgs: 1, Handler: record})
	return f
}

func TestParse(t *testing.T) {
	name, args, ok := Parse("!", "!PLAY   never  gonna")
	require.True(t, ok)
	require.Equal(t, "play", name)
	require.Equal(t, []string{"never", "gonna"}, args)

	for _, content := range []string{"hello", "!", "!   ", "?ping"} {
		_, _, ok := Parse("!", content)
		require.False(t, ok, content)
	}
}

func TestDispatchAliasAndUnknown(t *testing.T) {
	f := newFixture(0)
	handled, err := f.registry.Dispatch(context.Background(), message("!p lofi beats"))
	require.NoError(t, err)
	require.True(t, handled)
	require.Equal(t, []string{"play:lofi beats"}, f.ran)

	handled, err = f.registry.Dispatch(context.Background(), message("!dance"))
	require.NoError(t, err)
	require.False(t, handled)
	require.Empty(t, f.replies)
}

func TestDispatchUsage(t *testing.T) {
	f := newFixture(0)
	handled, err := f.registry.Dispatch(context.Background(), message("!play"))
	require.NoError(t, err)
	require.True(t, handled)
	require.Empty(t, f.ran)
	require.Equal(t, []string{"Usage: !play <query|url>"}, f.replies)
}

func TestModeratorTierBlocksWithoutPermission(t *testing.T) {
	f := newFixture(0)
	handled, err := f.registry.Dispatch(context.Background(), message("!kick <@2> spam"))
	require.NoError(t, err)
	require.True(t, handled)
	require.Empty(t, f.ran)
	require.Len(t, f.replies, 1)

	f.isMod = true
	_, err = f.registry.Dispatch(context.Background(), message("!kick <@2> spam"))
	require.NoError(t, err)
	require.Equal(t, []string{"kick:<@2> spam"}, f.ran)
}

func TestDispatchIgnoresBots(t *testing.T) {
	f := newFixture(0)
	msg := message("!ping")
	msg.Author.Bot = true
	handled, _ := f.registry.Dispatch(context.Background(), msg)
	require.False(t, handled)
}

func TestDispatchRateLimit(t *testing.T) {
	f := newFixture(2)
	for i := 0; i < 3; i++ {
		_, err := f.registry.Dispatch(context.Background(), message("!ping"))
		require.NoError(t, err)
	}
	require.Len(t, f.ran, 2)
}

func TestDispatchReturnsHandlerError(t *testing.T) {
	f := newFixture(0)
	boom := errors.New("boom")
	f.registry.Register(&Command{Name: "fail", Handler: func(context.Context, *Invocation) error { return boom }})
	handled, err := f.registry.Dispatch(context.Background(), message("!fail"))
	require.True(t, handled)
	require.ErrorIs(t, err, boom)
}
