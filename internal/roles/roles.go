package roles

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"kymera-bot/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	Title       = "Choose Your Roles"
	historySize = 10
)

type Mapping struct {
	Emoji       string
	Role        string
	Description string
}

// Table is the fixed emoji to role mapping shown on the role message.
var Table = []Mapping{
	{Emoji: "🎮", Role: "Gamer", Description: "Gaming chat and squad calls"},
	{Emoji: "🔔", Role: "Stream Alerts", Description: "Pings when Kymera goes live"},
	{Emoji: "🎲", Role: "Game Night", Description: "Community game night invites"},
}

func RoleFor(emoji string) (string, bool) {
	for _, m := range Table {
		if m.Emoji == emoji {
			return m.Role, true
		}
	}
	return "", false
}

// Platform is the slice of *discordgo.Session the assignor needs.
type Platform interface {
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
}

// Reaction is a reaction event on some message.
type Reaction struct {
	GuildID   string
	ChannelID string
	MessageID string
	UserID    string
	Emoji     string
	IsBot     bool
}

type Assignor struct {
	platform Platform
	store    *storage.Store
	logger   *zap.Logger
	color    int
	botID    string

	mu     sync.RWMutex
	active map[string]string
}

func NewAssignor(platform Platform, store *storage.Store, color int, logger *zap.Logger) *Assignor {
	return &Assignor{
		platform: platform,
		store:    store,
		logger:   logger,
		color:    color,
		active:   make(map[string]string),
	}
}

func (a *Assignor) SetBotUserID(id string) {
	a.botID = id
}

// MessageID returns the active role message for the guild, if any.
func (a *Assignor) MessageID(guildID string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	id, ok := a.active[guildID]
	return id, ok
}

// Ensure makes the guild's role message active, reusing an existing one when
// it can be found.
func (a *Assignor) Ensure(ctx context.Context, guildID, channelID string) (string, error) {
	if id, ok := a.MessageID(guildID); ok {
		return id, nil
	}
	if channelID == "" {
		return "", fmt.Errorf("ensure role message: no channel configured")
	}

	if a.store != nil {
		ref, ok, err := a.store.GetRoleMessage(ctx, guildID)
		if err != nil {
			a.logger.Warn("load role message failed", zap.String("guild_id", guildID), zap.Error(err))
		} else if ok && ref.ChannelID == channelID {
			exists, err := a.messageExists(channelID, ref.MessageID)
			if err != nil {
				a.logger.Warn("verify role message failed, keeping stored ref", zap.String("message_id", ref.MessageID), zap.Error(err))
			}
			if exists || err != nil {
				a.activate(ctx, guildID, channelID, ref.MessageID, false)
				return ref.MessageID, nil
			}
			a.logger.Info("stored role message is gone", zap.String("guild_id", guildID), zap.String("message_id", ref.MessageID))
		}
	}

	recent, err := a.platform.ChannelMessages(channelID, historySize, "", "", "")
	if err != nil {
		return "", fmt.Errorf("ensure role message: %w", err)
	}
	for _, message := range recent {
		if a.isRoleMessage(message) {
			a.activate(ctx, guildID, channelID, message.ID, true)
			return message.ID, nil
		}
	}

	message, err := a.platform.ChannelMessageSendEmbed(channelID, a.embed())
	if err != nil {
		return "", fmt.Errorf("ensure role message: %w", err)
	}
	for _, m := range Table {
		if err := a.platform.MessageReactionAdd(channelID, message.ID, m.Emoji); err != nil {
			a.logger.Warn("add role reaction failed", zap.String("emoji", m.Emoji), zap.Error(err))
		}
	}
	a.activate(ctx, guildID, channelID, message.ID, true)
	a.logger.Info("role message created", zap.String("guild_id", guildID), zap.String("message_id", message.ID))
	return message.ID, nil
}

func (a *Assignor) HandleAdd(_ context.Context, r Reaction) error {
	return a.toggle(r, true)
}

func (a *Assignor) HandleRemove(_ context.Context, r Reaction) error {
	return a.toggle(r, false)
}

func (a *Assignor) toggle(r Reaction, grant bool) error {
	if r.IsBot || (a.botID != "" && r.UserID == a.botID) {
		return nil
	}
	active, ok := a.MessageID(r.GuildID)
	if !ok || active != r.MessageID {
		return nil
	}
	roleName, ok := RoleFor(r.Emoji)
	if !ok {
		return nil
	}

	guildRoles, err := a.platform.GuildRoles(r.GuildID)
	if err != nil {
		return fmt.Errorf("load roles: %w", err)
	}
	var roleID string
	for _, role := range guildRoles {
		if role.Name == roleName {
			roleID = role.ID
			break
		}
	}
	if roleID == "" {
		return nil
	}

	member, err := a.platform.GuildMember(r.GuildID, r.UserID)
	if err != nil {
		return fmt.Errorf("load member: %w", err)
	}
	has := false
	for _, id := range member.Roles {
		if id == roleID {
			has = true
			break
		}
	}

	switch {
	case grant && !has:
		if err := a.platform.GuildMemberRoleAdd(r.GuildID, r.UserID, roleID); err != nil {
			return fmt.Errorf("grant %s: %w", roleName, err)
		}
	case !grant && has:
		if err := a.platform.GuildMemberRoleRemove(r.GuildID, r.UserID, roleID); err != nil {
			return fmt.Errorf("revoke %s: %w", roleName, err)
		}
	}
	return nil
}

func (a *Assignor) activate(ctx context.Context, guildID, channelID, messageID string, persist bool) {
	a.mu.Lock()
	a.active[guildID] = messageID
	a.mu.Unlock()
	if !persist || a.store == nil {
		return
	}
	if err := a.store.SetRoleMessage(ctx, storage.RoleMessage{GuildID: guildID, ChannelID: channelID, MessageID: messageID}); err != nil {
		a.logger.Warn("persist role message failed", zap.String("guild_id", guildID), zap.Error(err))
	}
}

// messageExists reports false only when the platform says the message is gone.
func (a *Assignor) messageExists(channelID, messageID string) (bool, error) {
	_, err := a.platform.ChannelMessage(channelID, messageID)
	if err == nil {
		return true, nil
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) {
		if restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeUnknownMessage {
			return false, nil
		}
		if restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound {
			return false, nil
		}
	}
	return false, err
}

func (a *Assignor) isRoleMessage(message *discordgo.Message) bool {
	if message == nil || message.Author == nil {
		return false
	}
	if a.botID != "" && message.Author.ID != a.botID {
		return false
	}
	if a.botID == "" && !message.Author.Bot {
		return false
	}
	for _, embed := range message.Embeds {
		if embed != nil && embed.Title == Title {
			return true
		}
	}
	return false
}

func (a *Assignor) embed() *discordgo.MessageEmbed {
	var lines []string
	for _, m := range Table {
		lines = append(lines, fmt.Sprintf("%s **%s** - %s", m.Emoji, m.Role, m.Description))
	}
	return &discordgo.MessageEmbed{
		Title:       Title,
		Description: "React below to pick your roles. Remove the reaction to drop the role.\n\n" + strings.Join(lines, "\n"),
		Color:       a.color,
	}
}
