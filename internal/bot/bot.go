package bot

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"kymera-bot/internal/commands"
	"kymera-bot/internal/config"
	"kymera-bot/internal/lookup"
	"kymera-bot/internal/moderation"
	"kymera-bot/internal/modules/audit"
	"kymera-bot/internal/music"
	"kymera-bot/internal/roles"
	"kymera-bot/internal/stats"
	"kymera-bot/internal/storage"
	"kymera-bot/internal/stream"
	"kymera-bot/internal/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type Bot struct {
	cfg        config.Config
	logger     *zap.Logger
	store      *storage.Store
	audit      *audit.Logger
	stats      *stats.Service
	session    *discordgo.Session
	registry   *commands.Registry
	limiter    *utils.RateLimiter
	moderation *moderation.Executor
	roles      *roles.Assignor
	music      *music.Manager
	lookup     *lookup.Client
	watcher    *stream.Watcher
	readyOnce  sync.Once
	stopPrune  chan struct{}
}

func New(cfg config.Config, logger *zap.Logger, store *storage.Store, auditLogger *audit.Logger, statsService *stats.Service) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsGuildVoiceStates

	b := &Bot{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		audit:     auditLogger,
		stats:     statsService,
		session:   session,
		stopPrune: make(chan struct{}),
	}

	b.moderation = moderation.NewExecutor(session, store, auditLogger, statsService, logger)
	b.roles = roles.NewAssignor(session, store, cfg.EmbedColors.Brand, logger)
	b.lookup = lookup.New(cfg.Wiki.BaseURL, logger)

	resolver, err := music.NewYouTubeResolver(context.Background(), cfg.Music.YouTubeAPIKey, cfg.Music.YTDLPPath, logger)
	if err != nil {
		return nil, err
	}
	b.music = music.NewManager(resolver, music.NewDCATransport(session, cfg.Music.Bitrate), statsService, cfg.Music.MaxQueue, logger)
	b.music.SetNotifier(b.announceNowPlaying)

	if cfg.TwitchEnabled() {
		fetcher := stream.NewTwitchClient(context.Background(), stream.TwitchConfig{
			ClientID:     cfg.Twitch.ClientID,
			ClientSecret: cfg.Twitch.ClientSecret,
			TokenURL:     cfg.Twitch.TokenURL,
			APIBaseURL:   cfg.Twitch.APIBaseURL,
		})
		announcer := &liveAnnouncer{sender: session, channelID: cfg.Channels.Announcement, color: cfg.EmbedColors.Twitch}
		interval := time.Duration(cfg.Twitch.PollSeconds) * time.Second
		b.watcher = stream.NewWatcher(cfg.Twitch.Channel, interval, fetcher, announcer, statsService, logger)
	}

	b.limiter = utils.NewRateLimiter(cfg.RateLimit.Commands, time.Duration(cfg.RateLimit.WindowSeconds)*time.Second)
	b.registry = commands.NewRegistry(cfg.CommandPrefix, b.limiter, b.isModerator, b.reply, logger)
	b.registerCommands()

	if b.audit != nil {
		b.audit.SetNotifier(b.notifyAudit)
	}

	return b, nil
}

func (b *Bot) Start() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onGuildMemberAdd)
	b.session.AddHandler(b.onMessageReactionAdd)
	b.session.AddHandler(b.onMessageReactionRemove)

	if err := b.session.Open(); err != nil {
		return err
	}
	go b.pruneLimiter()
	return nil
}

func (b *Bot) Close(ctx context.Context) {
	select {
	case <-b.stopPrune:
	default:
		close(b.stopPrune)
	}
	if b.watcher != nil {
		b.watcher.Stop(ctx)
	}
	b.music.Shutdown(ctx)
	if b.session != nil {
		_ = b.session.Close()
	}
}

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	defer b.recoverEvent("ready")

	b.logger.Info("discord ready", zap.String("user", event.User.String()), zap.Int("guilds", len(event.Guilds)))
	if err := session.UpdateGameStatus(0, b.cfg.Presence); err != nil {
		b.logger.Warn("set presence failed", zap.Error(err))
	}
	b.moderation.SetBotUserID(event.User.ID)
	b.roles.SetBotUserID(event.User.ID)

	b.readyOnce.Do(func() {
		ctx := context.Background()
		b.ensureRoleMessage(ctx)
		if err := b.store.CleanupAuditLogs(ctx, b.cfg.RetentionDays); err != nil {
			b.logger.Warn("audit retention cleanup failed", zap.Error(err))
		}
		if b.watcher == nil {
			b.logger.Warn("twitch alerts disabled, no valid client id")
			return
		}
		if err := b.watcher.Start(); err != nil {
			b.logger.Error("twitch alerts failed to start", zap.Error(err))
		}
	})
}

func (b *Bot) ensureRoleMessage(ctx context.Context) {
	channelID := b.cfg.Channels.Roles
	if channelID == "" {
		b.logger.Warn("reaction roles disabled, no channel configured")
		return
	}
	channel, err := b.session.Channel(channelID)
	if err != nil {
		b.logger.Warn("reaction role channel lookup failed", zap.String("channel_id", channelID), zap.Error(err))
		return
	}
	messageID, err := b.roles.Ensure(ctx, channel.GuildID, channelID)
	if err != nil {
		b.logger.Warn("reaction role message setup failed", zap.Error(err))
		return
	}
	b.logger.Info("reaction roles active", zap.String("guild_id", channel.GuildID), zap.String("message_id", messageID))
}

func (b *Bot) onMessageCreate(session *discordgo.Session, msg *discordgo.MessageCreate) {
	defer b.recoverEvent("message_create")

	if msg.Author == nil || msg.Author.Bot {
		return
	}
	if msg.GuildID == "" {
		return
	}

	ctx := context.Background()
	b.stats.Increment(ctx, stats.Messages)

	handled, err := b.registry.Dispatch(ctx, msg.Message)
	if !handled {
		return
	}
	b.stats.Increment(ctx, stats.Commands)
	if err != nil {
		b.logger.Error("command failed", zap.String("content", msg.Content), zap.String("user_id", msg.Author.ID), zap.Error(err))
		_, _ = session.ChannelMessageSendReply(msg.ChannelID, "❌ Something went wrong running that command.", msg.Reference())
	}
}

func (b *Bot) onGuildMemberAdd(session *discordgo.Session, event *discordgo.GuildMemberAdd) {
	defer b.recoverEvent("guild_member_add")

	if event.Member == nil {
		return
	}
	ctx := context.Background()
	b.stats.Increment(ctx, stats.Joins)

	channelID := b.cfg.Channels.Welcome
	if channelID == "" {
		return
	}
	embed := welcomeEmbed(event.Member, b.cfg.Twitch.Channel, b.cfg.EmbedColors.Brand)
	if _, err := session.ChannelMessageSendEmbed(channelID, embed); err != nil {
		b.logger.Warn("welcome message failed", zap.String("guild_id", event.GuildID), zap.Error(err))
	}
}

func (b *Bot) onMessageReactionAdd(_ *discordgo.Session, event *discordgo.MessageReactionAdd) {
	defer b.recoverEvent("message_reaction_add")

	if event.MessageReaction == nil {
		return
	}
	isBot := event.Member != nil && event.Member.User != nil && event.Member.User.Bot
	if err := b.roles.HandleAdd(context.Background(), reactionFrom(event.MessageReaction, isBot)); err != nil {
		b.logger.Warn("reaction role grant failed", zap.String("user_id", event.UserID), zap.Error(err))
	}
}

func (b *Bot) onMessageReactionRemove(_ *discordgo.Session, event *discordgo.MessageReactionRemove) {
	defer b.recoverEvent("message_reaction_remove")

	if event.MessageReaction == nil {
		return
	}
	if err := b.roles.HandleRemove(context.Background(), reactionFrom(event.MessageReaction, false)); err != nil {
		b.logger.Warn("reaction role revoke failed", zap.String("user_id", event.UserID), zap.Error(err))
	}
}

func reactionFrom(r *discordgo.MessageReaction, isBot bool) roles.Reaction {
	return roles.Reaction{
		GuildID:   r.GuildID,
		ChannelID: r.ChannelID,
		MessageID: r.MessageID,
		UserID:    r.UserID,
		Emoji:     r.Emoji.Name,
		IsBot:     isBot,
	}
}

func (b *Bot) isModerator(_ context.Context, inv *commands.Invocation) (bool, error) {
	perms, err := b.session.UserChannelPermissions(inv.Message.Author.ID, inv.Message.ChannelID)
	if err != nil {
		return false, err
	}
	return moderation.HasModPermission(perms), nil
}

func (b *Bot) reply(inv *commands.Invocation, content string) {
	_, _ = b.session.ChannelMessageSendReply(inv.Message.ChannelID, content, inv.Message.Reference())
}

func (b *Bot) replyEmbed(inv *commands.Invocation, embed *discordgo.MessageEmbed) {
	_, _ = b.session.ChannelMessageSendComplex(inv.Message.ChannelID, &discordgo.MessageSend{
		Embeds:    []*discordgo.MessageEmbed{embed},
		Reference: inv.Message.Reference(),
	})
}

func (b *Bot) notifyAudit(_ context.Context, entry audit.Entry) {
	channelID := b.cfg.Channels.ModLog
	if channelID == "" {
		return
	}
	color := b.cfg.EmbedColors.Action
	if entry.Action == audit.ActionBan || entry.Action == audit.ActionKick {
		color = b.cfg.EmbedColors.Warning
	}
	_, _ = b.session.ChannelMessageSendEmbed(channelID, auditEmbed(entry, color))
}

func (b *Bot) announceNowPlaying(_ string, textChannelID string, song music.Song) {
	if textChannelID == "" {
		return
	}
	_, _ = b.session.ChannelMessageSendEmbed(textChannelID, nowPlayingEmbed(song, b.cfg.EmbedColors.Brand))
}

func (b *Bot) pruneLimiter() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-b.stopPrune:
			return
		case now := <-ticker.C:
			b.limiter.Prune(now)
		}
	}
}

// recoverEvent keeps a panicking handler from taking the process down.
func (b *Bot) recoverEvent(event string) {
	if r := recover(); r != nil {
		b.logger.Error("event handler panic",
			zap.String("event", event),
			zap.Error(panicError(r)),
			zap.ByteString("stack", debug.Stack()),
		)
	}
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return errors.New(fmt.Sprint(r))
}

// liveAnnouncer posts stream announcements to the announcement channel.
type liveAnnouncer struct {
	sender    messageSender
	channelID string
	color     int
}

type messageSender interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

func (a *liveAnnouncer) Announce(_ context.Context, ann stream.Announcement) error {
	if a.channelID == "" {
		return errors.New("announcement channel not configured")
	}
	_, err := a.sender.ChannelMessageSendComplex(a.channelID, &discordgo.MessageSend{
		Content: "@here",
		Embeds:  []*discordgo.MessageEmbed{liveEmbed(ann, a.color)},
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeEveryone},
		},
	})
	return err
}
