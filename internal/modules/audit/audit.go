// Package audit records engine decisions to the audit-log store, mirrors
// them to the process logger, and optionally fans them out to a notifier
// (e.g. an alert channel poster).
package audit

import (
	"context"
	"time"

	"github.com/ZeppelinBot/Zeppelin-sub001/internal/storage"

	"go.uber.org/zap"
)

const (
	LevelInfo = "INFO"
	LevelWarn = "WARN"
)

type Logger struct {
	store  *storage.Store
	logger *zap.Logger
	notify func(context.Context, storage.AuditLog)
}

func NewLogger(store *storage.Store, logger *zap.Logger) *Logger {
	return &Logger{store: store, logger: logger}
}

func (l *Logger) SetNotifier(notify func(context.Context, storage.AuditLog)) {
	l.notify = notify
}

// LogMatch records a rule match before its actions run.
func (l *Logger) LogMatch(ctx context.Context, guildID, userID, ruleName, summary string) {
	l.log(ctx, LevelInfo, guildID, userID, ruleName, "match", summary)
}

// LogAction records one successfully dispatched action.
func (l *Logger) LogAction(ctx context.Context, guildID, userID, ruleName, action, details string) {
	l.log(ctx, LevelWarn, guildID, userID, ruleName, action, details)
}

// LogSuppressed records an event auto-handled under grace suppression.
func (l *Logger) LogSuppressed(ctx context.Context, guildID, userID, ruleName, details string) {
	l.log(ctx, LevelInfo, guildID, userID, ruleName, "suppressed", details)
}

func (l *Logger) log(ctx context.Context, level, guildID, userID, ruleName, event, details string) {
	entry := storage.AuditLog{
		GuildID:   guildID,
		UserID:    userID,
		Level:     level,
		RuleName:  ruleName,
		Event:     event,
		Details:   details,
		CreatedAt: time.Now(),
	}
	if l.store != nil {
		if err := l.store.AddAuditLog(ctx, entry); err != nil {
			l.logger.Warn("audit write failed", zap.Error(err))
		}
	}
	if l.notify != nil {
		l.notify(ctx, entry)
	}
	l.logger.Info("audit",
		zap.String("level", level),
		zap.String("guild_id", guildID),
		zap.String("user_id", userID),
		zap.String("rule", ruleName),
		zap.String("event", event),
		zap.String("details", details))
}
