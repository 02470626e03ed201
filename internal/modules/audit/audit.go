package audit

import (
	"context"
	"time"

	"kymera-bot/internal/storage"

	"go.uber.org/zap"
)

const (
	ActionKick          = "kick"
	ActionBan           = "ban"
	ActionUnban         = "unban"
	ActionWarn          = "warn"
	ActionClearWarnings = "clearwarnings"
	ActionMute          = "mute"
	ActionUnmute        = "unmute"
	ActionClear         = "clear"
)

const DefaultReason = "No reason provided"

type Entry struct {
	Action       string
	GuildID      string
	TargetID     string
	TargetTag    string
	ModeratorID  string
	ModeratorTag string
	Reason       string
	At           time.Time
}

// Notifier receives every recorded entry, typically to post it in a mod-log channel.
type Notifier func(context.Context, Entry)

type Logger struct {
	store  *storage.Store
	logger *zap.Logger
	notify Notifier
	now    func() time.Time
}

func NewLogger(store *storage.Store, logger *zap.Logger) *Logger {
	return &Logger{store: store, logger: logger, now: time.Now}
}

func (l *Logger) SetNotifier(notify Notifier) {
	l.notify = notify
}

// Log records a moderation action. Persistence and delivery failures are
// logged and otherwise ignored.
func (l *Logger) Log(ctx context.Context, entry Entry) {
	if entry.Reason == "" {
		entry.Reason = DefaultReason
	}
	if entry.At.IsZero() {
		entry.At = l.now()
	}
	if l.store != nil {
		if err := l.store.AddAuditLog(ctx, storage.AuditLog{
			GuildID:      entry.GuildID,
			Action:       entry.Action,
			TargetID:     entry.TargetID,
			TargetTag:    entry.TargetTag,
			ModeratorID:  entry.ModeratorID,
			ModeratorTag: entry.ModeratorTag,
			Reason:       entry.Reason,
			CreatedAt:    entry.At,
		}); err != nil {
			l.logger.Warn("audit persist failed", zap.Error(err))
		}
	}
	if l.notify != nil {
		l.notify(ctx, entry)
	}
	l.logger.Info("audit",
		zap.String("action", entry.Action),
		zap.String("guild_id", entry.GuildID),
		zap.String("target_id", entry.TargetID),
		zap.String("moderator_id", entry.ModeratorID),
		zap.String("reason", entry.Reason),
	)
}
