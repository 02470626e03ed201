package bot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"kymera-bot/internal/commands"
	"kymera-bot/internal/lookup"
	"kymera-bot/internal/moderation"
	"kymera-bot/internal/music"
	"kymera-bot/internal/stream"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func (b *Bot) handleHelp(_ context.Context, inv *commands.Invocation) error {
	b.replyEmbed(inv, helpEmbed(b.registry.Prefix(), b.registry.Commands(), b.cfg.EmbedColors.Brand))
	return nil
}

func (b *Bot) handlePing(_ context.Context, inv *commands.Invocation) error {
	latency := time.Since(inv.Message.Timestamp).Milliseconds()
	b.reply(inv, fmt.Sprintf("🏓 Pong! %dms", latency))
	return nil
}

func (b *Bot) handleDrop(ctx context.Context, inv *commands.Invocation) error {
	b.replyLookup(ctx, inv, "🔍 Drop info")
	return nil
}

func (b *Bot) handleWiki(ctx context.Context, inv *commands.Invocation) error {
	b.replyLookup(ctx, inv, "📚 Warframe Wiki")
	return nil
}

func (b *Bot) replyLookup(ctx context.Context, inv *commands.Invocation, heading string) {
	result := b.lookup.Lookup(ctx, inv.Rest(0))
	b.replyEmbed(inv, b.commandEmbed(heading+": "+result.Title, lookupDescription(result), b.cfg.EmbedColors.Brand, nil))
}

func lookupDescription(result lookup.Result) string {
	if !result.Found {
		return "No direct match, try the search page:\n" + result.URL
	}
	if result.Snippet == "" {
		return result.URL
	}
	return result.Snippet + "\n" + result.URL
}

func (b *Bot) handleLive(_ context.Context, inv *commands.Invocation) error {
	link := stream.ChannelURL(b.cfg.Twitch.Channel)
	if b.watcher != nil && b.watcher.State().IsLive {
		b.reply(inv, "🔴 Kymera is live right now: "+link)
		return nil
	}
	b.reply(inv, "🔴 Check if Kymera is live: "+link)
	return nil
}

func (b *Bot) handleRoles(_ context.Context, inv *commands.Invocation) error {
	messageID, ok := b.roles.MessageID(inv.Message.GuildID)
	if !ok {
		b.reply(inv, "Role selection isn't set up yet.")
		return nil
	}
	link := fmt.Sprintf("https://discord.com/channels/%s/%s/%s", inv.Message.GuildID, b.cfg.Channels.Roles, messageID)
	b.reply(inv, "🎭 Pick your roles here: "+link)
	return nil
}

func (b *Bot) handleStats(ctx context.Context, inv *commands.Invocation) error {
	snap, err := b.stats.Snapshot(ctx)
	if err != nil {
		return err
	}
	report, err := b.stats.Report(ctx, inv.Message.GuildID, time.Now().AddDate(0, 0, -7))
	if err != nil {
		return err
	}
	b.replyEmbed(inv, statsEmbed(snap, report, b.cfg.EmbedColors.Brand))
	return nil
}

func (b *Bot) handleServerInfo(_ context.Context, inv *commands.Invocation) error {
	guild, err := b.session.State.Guild(inv.Message.GuildID)
	if err != nil {
		guild, err = b.session.Guild(inv.Message.GuildID)
		if err != nil {
			return err
		}
	}
	b.replyEmbed(inv, serverInfoEmbed(guild, b.cfg.EmbedColors.Brand))
	return nil
}

func (b *Bot) handlePlay(ctx context.Context, inv *commands.Invocation) error {
	voiceChannelID := ""
	if vs, err := b.session.State.VoiceState(inv.Message.GuildID, inv.Message.Author.ID); err == nil && vs != nil {
		voiceChannelID = vs.ChannelID
	}
	song, position, err := b.music.Play(ctx, music.PlayRequest{
		GuildID:        inv.Message.GuildID,
		TextChannelID:  inv.Message.ChannelID,
		VoiceChannelID: voiceChannelID,
		Query:          inv.Rest(0),
		RequestedBy:    inv.Message.Author.Username,
	})
	switch {
	case errors.Is(err, music.ErrNotInVoice):
		b.reply(inv, "❌ You need to be in a voice channel to play music.")
	case errors.Is(err, music.ErrNoResults):
		b.reply(inv, "❌ No results found.")
	case errors.Is(err, music.ErrQueueFull):
		b.reply(inv, "❌ The queue is full.")
	case err != nil:
		b.logger.Warn("play failed", zap.String("guild_id", inv.Message.GuildID), zap.Error(err))
		b.reply(inv, "❌ Couldn't play that.")
	case position > 0:
		b.reply(inv, fmt.Sprintf("🎵 Added to queue: **%s** (position %d)", song.Title, position))
	}
	return nil
}

func (b *Bot) handleSkip(_ context.Context, inv *commands.Invocation) error {
	song, err := b.music.Skip(inv.Message.GuildID)
	if err != nil {
		b.reply(inv, "❌ Nothing is playing.")
		return nil
	}
	b.reply(inv, fmt.Sprintf("⏭️ Skipped **%s**", song.Title))
	return nil
}

func (b *Bot) handleStop(ctx context.Context, inv *commands.Invocation) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := b.music.Stop(ctx, inv.Message.GuildID); err != nil {
		if errors.Is(err, music.ErrNothingPlaying) {
			b.reply(inv, "❌ Nothing is playing.")
			return nil
		}
		return err
	}
	b.reply(inv, "⏹️ Stopped and cleared the queue.")
	return nil
}

func (b *Bot) handleQueue(_ context.Context, inv *commands.Invocation) error {
	b.replyEmbed(inv, queueEmbed(b.music.Queue(inv.Message.GuildID), b.cfg.EmbedColors.Brand))
	return nil
}

func (b *Bot) handleNowPlaying(_ context.Context, inv *commands.Invocation) error {
	song, ok := b.music.NowPlaying(inv.Message.GuildID)
	if !ok {
		b.reply(inv, "❌ Nothing is playing.")
		return nil
	}
	b.replyEmbed(inv, nowPlayingEmbed(song, b.cfg.EmbedColors.Brand))
	return nil
}

func (b *Bot) handleKick(ctx context.Context, inv *commands.Invocation) error {
	target, ok := mentionedTarget(inv)
	if !ok {
		return b.moderationFailed(inv, "kick", moderation.ErrMissingTarget)
	}
	if err := b.moderation.Kick(ctx, actorOf(inv.Message), target, inv.Rest(1)); err != nil {
		return b.moderationFailed(inv, "kick", err)
	}
	b.reply(inv, fmt.Sprintf("✅ %s has been kicked.", target.Tag))
	return nil
}

func (b *Bot) handleBan(ctx context.Context, inv *commands.Invocation) error {
	target, ok := mentionedTarget(inv)
	if !ok {
		return b.moderationFailed(inv, "ban", moderation.ErrMissingTarget)
	}
	if err := b.moderation.Ban(ctx, actorOf(inv.Message), target, inv.Rest(1)); err != nil {
		return b.moderationFailed(inv, "ban", err)
	}
	b.reply(inv, fmt.Sprintf("✅ %s has been banned.", target.Tag))
	return nil
}

func (b *Bot) handleUnban(ctx context.Context, inv *commands.Invocation) error {
	userID := inv.Args[0]
	if err := b.moderation.Unban(ctx, actorOf(inv.Message), userID); err != nil {
		return b.moderationFailed(inv, "unban", err)
	}
	b.reply(inv, fmt.Sprintf("✅ <@%s> has been unbanned.", userID))
	return nil
}

func (b *Bot) handleWarn(ctx context.Context, inv *commands.Invocation) error {
	target, ok := mentionedTarget(inv)
	if !ok {
		return b.moderationFailed(inv, "warn", moderation.ErrMissingTarget)
	}
	total, err := b.moderation.Warn(ctx, actorOf(inv.Message), target, inv.Rest(1))
	if err != nil {
		return b.moderationFailed(inv, "warn", err)
	}
	b.reply(inv, warnReply(target, total))
	return nil
}

func warnReply(target moderation.Target, total int) string {
	return fmt.Sprintf("⚠️ <@%s> has been warned. They now have %d warning(s).", target.ID, total)
}

func (b *Bot) handleWarnings(ctx context.Context, inv *commands.Invocation) error {
	target := moderation.Target{ID: inv.Message.Author.ID, Tag: inv.Message.Author.String()}
	if len(inv.Args) > 0 {
		mentioned, ok := mentionedTarget(inv)
		if !ok {
			return b.moderationFailed(inv, "list warnings for", moderation.ErrMissingTarget)
		}
		target = mentioned
	}
	warnings, err := b.moderation.Warnings(ctx, inv.Message.GuildID, target.ID)
	if err != nil {
		return err
	}
	b.replyEmbed(inv, warningsEmbed(target.Tag, warnings, b.cfg.EmbedColors.Warning))
	return nil
}

func (b *Bot) handleClearWarnings(ctx context.Context, inv *commands.Invocation) error {
	target, ok := mentionedTarget(inv)
	if !ok {
		return b.moderationFailed(inv, "clear warnings for", moderation.ErrMissingTarget)
	}
	removed, err := b.moderation.ClearWarnings(ctx, actorOf(inv.Message), target)
	if err != nil {
		return b.moderationFailed(inv, "clear warnings for", err)
	}
	b.reply(inv, fmt.Sprintf("✅ Cleared %d warning(s) for %s.", removed, target.Tag))
	return nil
}

func (b *Bot) handleMute(ctx context.Context, inv *commands.Invocation) error {
	target, ok := mentionedTarget(inv)
	if !ok {
		return b.moderationFailed(inv, "mute", moderation.ErrMissingTarget)
	}
	minutes, err := strconv.Atoi(inv.Args[1])
	if err != nil {
		return b.moderationFailed(inv, "mute", moderation.ErrInvalidDuration)
	}
	until, err := b.moderation.Mute(ctx, actorOf(inv.Message), target, minutes, inv.Rest(2))
	if err != nil {
		return b.moderationFailed(inv, "mute", err)
	}
	b.reply(inv, fmt.Sprintf("🔇 %s has been muted until <t:%d:t>.", target.Tag, until.Unix()))
	return nil
}

func (b *Bot) handleUnmute(ctx context.Context, inv *commands.Invocation) error {
	target, ok := mentionedTarget(inv)
	if !ok {
		return b.moderationFailed(inv, "unmute", moderation.ErrMissingTarget)
	}
	if err := b.moderation.Unmute(ctx, actorOf(inv.Message), target); err != nil {
		return b.moderationFailed(inv, "unmute", err)
	}
	b.reply(inv, fmt.Sprintf("🔊 %s has been unmuted.", target.Tag))
	return nil
}

func (b *Bot) handleClear(ctx context.Context, inv *commands.Invocation) error {
	count, err := strconv.Atoi(inv.Args[0])
	if err != nil {
		return b.moderationFailed(inv, "clear messages", moderation.ErrInvalidCount)
	}
	removed, err := b.moderation.Clear(ctx, actorOf(inv.Message), count)
	if err != nil {
		return b.moderationFailed(inv, "clear messages", err)
	}
	notice, err := b.session.ChannelMessageSend(inv.Message.ChannelID, fmt.Sprintf("🧹 Deleted %d message(s).", removed))
	if err == nil && notice != nil {
		time.AfterFunc(5*time.Second, func() {
			_ = b.session.ChannelMessageDelete(notice.ChannelID, notice.ID)
		})
	}
	return nil
}

// moderationFailed answers expected moderation errors and logs the rest.
func (b *Bot) moderationFailed(inv *commands.Invocation, action string, err error) error {
	b.reply(inv, moderationMessage(action, err))
	if isExpectedModerationError(err) {
		return nil
	}
	b.logger.Warn("moderation action failed", zap.String("action", action), zap.String("guild_id", inv.Message.GuildID), zap.Error(err))
	return nil
}

func moderationMessage(action string, err error) string {
	switch {
	case errors.Is(err, moderation.ErrMissingTarget):
		return "❌ Please mention a valid member."
	case errors.Is(err, moderation.ErrInvalidUserID):
		return "❌ Please provide a numeric user ID."
	case errors.Is(err, moderation.ErrNotActionable):
		return fmt.Sprintf("❌ I can't %s that member. Check my role position and permissions.", action)
	case errors.Is(err, moderation.ErrInvalidCount):
		return "❌ Please provide a number between 1 and 100."
	case errors.Is(err, moderation.ErrInvalidDuration):
		return fmt.Sprintf("❌ Please provide a duration in minutes (1-%d).", int(moderation.MaxMute/time.Minute))
	case errors.Is(err, moderation.ErrUnknownBan):
		return "❌ That user isn't banned."
	case errors.Is(err, moderation.ErrMessagesTooOld):
		return "❌ I can't bulk delete messages older than 14 days."
	default:
		return fmt.Sprintf("❌ Failed to %s: %v", action, err)
	}
}

func isExpectedModerationError(err error) bool {
	for _, expected := range []error{
		moderation.ErrMissingTarget,
		moderation.ErrInvalidUserID,
		moderation.ErrNotActionable,
		moderation.ErrInvalidCount,
		moderation.ErrInvalidDuration,
		moderation.ErrUnknownBan,
		moderation.ErrMessagesTooOld,
	} {
		if errors.Is(err, expected) {
			return true
		}
	}
	return false
}

var userMention = regexp.MustCompile(`^<@!?(\d+)>$`)

// mentionedTarget resolves the user mentioned as the first argument. The
// message's mention list is only used for the tag, since it is unordered and
// also carries the author of a replied-to message.
func mentionedTarget(inv *commands.Invocation) (moderation.Target, bool) {
	if inv == nil || inv.Message == nil || len(inv.Args) == 0 {
		return moderation.Target{}, false
	}
	match := userMention.FindStringSubmatch(inv.Args[0])
	if match == nil {
		return moderation.Target{}, false
	}
	for _, user := range inv.Message.Mentions {
		if user != nil && user.ID == match[1] {
			return moderation.Target{ID: user.ID, Tag: user.String()}, true
		}
	}
	return moderation.Target{}, false
}

func actorOf(msg *discordgo.Message) moderation.Actor {
	actor := moderation.Actor{GuildID: msg.GuildID, ChannelID: msg.ChannelID, MessageID: msg.ID}
	if msg.Author != nil {
		actor.UserID = msg.Author.ID
		actor.Tag = msg.Author.String()
	}
	return actor
}
