package moderation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"kymera-bot/internal/modules/audit"
	"kymera-bot/internal/stats"
	"kymera-bot/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	MaxClear        = 100
	bulkDeleteLimit = 14 * 24 * time.Hour
	MaxMute         = 28 * 24 * time.Hour
)

var (
	ErrNotActionable   = errors.New("target cannot be actioned by the bot")
	ErrMissingTarget   = errors.New("no valid target")
	ErrInvalidCount    = errors.New("count must be between 1 and 100")
	ErrInvalidDuration = errors.New("duration must be a positive number of minutes")
	ErrUnknownBan      = errors.New("user is not banned")
	ErrInvalidUserID   = errors.New("not a numeric user id")
	ErrMessagesTooOld  = errors.New("messages older than 14 days cannot be bulk deleted")
)

var snowflake = regexp.MustCompile(`^\d{15,21}$`)

// Platform is the slice of *discordgo.Session the executor drives.
type Platform interface {
	Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildMemberDeleteWithReason(guildID, userID, reason string, options ...discordgo.RequestOption) error
	GuildBanCreateWithReason(guildID, userID, reason string, days int, options ...discordgo.RequestOption) error
	GuildBanDelete(guildID, userID string, options ...discordgo.RequestOption) error
	GuildMemberTimeout(guildID string, userID string, until *time.Time, options ...discordgo.RequestOption) error
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	ChannelMessagesBulkDelete(channelID string, messages []string, options ...discordgo.RequestOption) error
}

type Counter interface {
	Increment(ctx context.Context, name string)
}

// Actor is the moderator issuing a command and where it was issued.
type Actor struct {
	GuildID   string
	ChannelID string
	MessageID string
	UserID    string
	Tag       string
}

type Target struct {
	ID  string
	Tag string
}

type Executor struct {
	platform Platform
	store    *storage.Store
	audit    *audit.Logger
	counter  Counter
	logger   *zap.Logger
	botID    string
	now      func() time.Time
}

func NewExecutor(platform Platform, store *storage.Store, auditLogger *audit.Logger, counter Counter, logger *zap.Logger) *Executor {
	return &Executor{
		platform: platform,
		store:    store,
		audit:    auditLogger,
		counter:  counter,
		logger:   logger,
		now:      time.Now,
	}
}

// SetBotUserID is called once the gateway session knows its own user.
func (e *Executor) SetBotUserID(id string) {
	e.botID = id
}

func (e *Executor) Kick(ctx context.Context, actor Actor, target Target, reason string) error {
	if err := e.ensureActionable(actor.GuildID, target, discordgo.PermissionKickMembers); err != nil {
		return err
	}
	if err := e.platform.GuildMemberDeleteWithReason(actor.GuildID, target.ID, auditReason(actor, reason)); err != nil {
		return fmt.Errorf("kick %s: %w", target.ID, err)
	}
	e.count(ctx, stats.Kicks)
	e.record(ctx, audit.ActionKick, actor, target, reason)
	return nil
}

func (e *Executor) Ban(ctx context.Context, actor Actor, target Target, reason string) error {
	if err := e.ensureActionable(actor.GuildID, target, discordgo.PermissionBanMembers); err != nil {
		return err
	}
	if err := e.platform.GuildBanCreateWithReason(actor.GuildID, target.ID, auditReason(actor, reason), 0); err != nil {
		return fmt.Errorf("ban %s: %w", target.ID, err)
	}
	e.count(ctx, stats.Bans)
	e.record(ctx, audit.ActionBan, actor, target, reason)
	return nil
}

func (e *Executor) Unban(ctx context.Context, actor Actor, userID string) error {
	if !snowflake.MatchString(userID) {
		return ErrInvalidUserID
	}
	if err := e.platform.GuildBanDelete(actor.GuildID, userID); err != nil {
		var restErr *discordgo.RESTError
		if errors.As(err, &restErr) && restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeUnknownBan {
			return ErrUnknownBan
		}
		return fmt.Errorf("unban %s: %w", userID, err)
	}
	e.record(ctx, audit.ActionUnban, actor, Target{ID: userID, Tag: userID}, "")
	return nil
}

// Warn appends a warning and returns the member's new warning total.
func (e *Executor) Warn(ctx context.Context, actor Actor, target Target, reason string) (int, error) {
	if target.ID == "" {
		return 0, ErrMissingTarget
	}
	if reason == "" {
		reason = audit.DefaultReason
	}
	total, err := e.store.AddWarning(ctx, storage.WarningRecord{
		GuildID:      actor.GuildID,
		UserID:       target.ID,
		Reason:       reason,
		ModeratorID:  actor.UserID,
		ModeratorTag: actor.Tag,
		IssuedAt:     e.now(),
	})
	if err != nil {
		return 0, fmt.Errorf("warn %s: %w", target.ID, err)
	}
	e.count(ctx, stats.Warns)
	e.record(ctx, audit.ActionWarn, actor, target, reason)
	return total, nil
}

// Warnings lists a member's warnings oldest first.
func (e *Executor) Warnings(ctx context.Context, guildID, userID string) ([]storage.WarningRecord, error) {
	return e.store.ListWarnings(ctx, guildID, userID)
}

func (e *Executor) ClearWarnings(ctx context.Context, actor Actor, target Target) (int, error) {
	if target.ID == "" {
		return 0, ErrMissingTarget
	}
	removed, err := e.store.ClearWarnings(ctx, actor.GuildID, target.ID)
	if err != nil {
		return 0, fmt.Errorf("clear warnings %s: %w", target.ID, err)
	}
	e.record(ctx, audit.ActionClearWarnings, actor, target, fmt.Sprintf("%d warning(s) removed", removed))
	return removed, nil
}

// Mute times the target out for the given number of minutes and returns the expiry.
func (e *Executor) Mute(ctx context.Context, actor Actor, target Target, minutes int, reason string) (time.Time, error) {
	duration := time.Duration(minutes) * time.Minute
	if minutes <= 0 || duration > MaxMute {
		return time.Time{}, ErrInvalidDuration
	}
	if err := e.ensureActionable(actor.GuildID, target, discordgo.PermissionModerateMembers); err != nil {
		return time.Time{}, err
	}
	until := e.now().Add(duration)
	if err := e.platform.GuildMemberTimeout(actor.GuildID, target.ID, &until); err != nil {
		return time.Time{}, fmt.Errorf("mute %s: %w", target.ID, err)
	}
	e.record(ctx, audit.ActionMute, actor, target, fmt.Sprintf("%s (%d min)", reasonOrDefault(reason), minutes))
	return until, nil
}

func (e *Executor) Unmute(ctx context.Context, actor Actor, target Target) error {
	if target.ID == "" {
		return ErrMissingTarget
	}
	if err := e.platform.GuildMemberTimeout(actor.GuildID, target.ID, nil); err != nil {
		return fmt.Errorf("unmute %s: %w", target.ID, err)
	}
	e.record(ctx, audit.ActionUnmute, actor, target, "")
	return nil
}

// Clear removes the invoking command message and the count messages before it.
// It returns how many preceding messages were removed.
func (e *Executor) Clear(ctx context.Context, actor Actor, count int) (int, error) {
	if count < 1 || count > MaxClear {
		return 0, ErrInvalidCount
	}
	messages, err := e.platform.ChannelMessages(actor.ChannelID, count, actor.MessageID, "", "")
	if err != nil {
		return 0, fmt.Errorf("fetch messages: %w", err)
	}
	cutoff := e.now().Add(-bulkDeleteLimit)
	ids := make([]string, 0, len(messages))
	for _, message := range messages {
		if message.Timestamp.Before(cutoff) {
			return 0, ErrMessagesTooOld
		}
		ids = append(ids, message.ID)
	}

	if len(ids) > 0 {
		if err := e.platform.ChannelMessagesBulkDelete(actor.ChannelID, ids); err != nil {
			return 0, fmt.Errorf("bulk delete: %w", err)
		}
	}
	// The command message goes last so a failure reply can still reference it.
	if actor.MessageID != "" {
		if err := e.platform.ChannelMessageDelete(actor.ChannelID, actor.MessageID); err != nil {
			e.logger.Warn("delete command message failed", zap.String("channel_id", actor.ChannelID), zap.Error(err))
		}
	}
	e.record(ctx, audit.ActionClear, actor, Target{ID: actor.ChannelID, Tag: "#" + actor.ChannelID}, fmt.Sprintf("%d message(s)", len(ids)))
	return len(ids), nil
}

func (e *Executor) ensureActionable(guildID string, target Target, required int64) error {
	if target.ID == "" {
		return ErrMissingTarget
	}
	guild, err := e.platform.Guild(guildID)
	if err != nil {
		return fmt.Errorf("load guild: %w", err)
	}
	targetMember, err := e.platform.GuildMember(guildID, target.ID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMissingTarget, err)
	}
	botMember, err := e.platform.GuildMember(guildID, e.botID)
	if err != nil {
		return fmt.Errorf("load bot member: %w", err)
	}
	if !Actionable(guild, botMember, targetMember, required) {
		return ErrNotActionable
	}
	return nil
}

func (e *Executor) record(ctx context.Context, action string, actor Actor, target Target, reason string) {
	if e.audit == nil {
		return
	}
	e.audit.Log(ctx, audit.Entry{
		Action:       action,
		GuildID:      actor.GuildID,
		TargetID:     target.ID,
		TargetTag:    target.Tag,
		ModeratorID:  actor.UserID,
		ModeratorTag: actor.Tag,
		Reason:       reason,
		At:           e.now(),
	})
}

func reasonOrDefault(reason string) string {
	if reason == "" {
		return audit.DefaultReason
	}
	return reason
}

// auditReason is the text shown in the guild's own audit log.
func auditReason(actor Actor, reason string) string {
	return fmt.Sprintf("%s | by %s", reasonOrDefault(reason), actor.Tag)
}

func (e *Executor) count(ctx context.Context, name string) {
	if e.counter != nil {
		e.counter.Increment(ctx, name)
	}
}
