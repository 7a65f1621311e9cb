// Package discord adapts the automod engine's outbound interfaces to the
// discordgo session and the case store.
package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/ZeppelinBot/Zeppelin-sub001/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Executor issues moderation actions over the Discord REST API and records
// a case for every warn/mute/kick/ban it performs.
type Executor struct {
	session *discordgo.Session
	store   *storage.Store
	logger  *zap.Logger
}

func NewExecutor(session *discordgo.Session, store *storage.Store, logger *zap.Logger) *Executor {
	return &Executor{session: session, store: store, logger: logger}
}

func (e *Executor) DeleteMessages(ctx context.Context, guildID, channelID string, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	if len(messageIDs) == 1 {
		return e.session.ChannelMessageDelete(channelID, messageIDs[0])
	}
	return e.session.ChannelMessagesBulkDelete(channelID, messageIDs)
}

func (e *Executor) WarnUser(ctx context.Context, guildID, userID, reason, ruleName string) error {
	if _, err := e.addCase(ctx, guildID, userID, storage.CaseWarn, reason, ruleName, 0); err != nil {
		return err
	}
	// Best effort: the warning case stands even when the DM is closed.
	if channel, err := e.session.UserChannelCreate(userID); err == nil {
		text := fmt.Sprintf("You have been warned: %s", reason)
		if _, err := e.session.ChannelMessageSend(channel.ID, text); err != nil {
			e.logger.Debug("warn DM failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return nil
}

func (e *Executor) MuteUser(ctx context.Context, guildID, userID string, duration time.Duration, reason, ruleName string) error {
	var until *time.Time
	if duration > 0 {
		t := time.Now().Add(duration)
		until = &t
	}
	if err := e.session.GuildMemberTimeout(guildID, userID, until); err != nil {
		return err
	}
	_, err := e.addCase(ctx, guildID, userID, storage.CaseMute, reason, ruleName, duration)
	return err
}

func (e *Executor) KickUser(ctx context.Context, guildID, userID, reason, ruleName string) error {
	if err := e.session.GuildMemberDeleteWithReason(guildID, userID, reason); err != nil {
		return err
	}
	_, err := e.addCase(ctx, guildID, userID, storage.CaseKick, reason, ruleName, 0)
	return err
}

func (e *Executor) BanUser(ctx context.Context, guildID, userID, reason, ruleName string) error {
	if err := e.session.GuildBanCreateWithReason(guildID, userID, reason, 0); err != nil {
		return err
	}
	_, err := e.addCase(ctx, guildID, userID, storage.CaseBan, reason, ruleName, 0)
	return err
}

func (e *Executor) PostAlert(ctx context.Context, guildID, channelID, text string) error {
	_, err := e.session.ChannelMessageSend(channelID, text)
	return err
}

func (e *Executor) addCase(ctx context.Context, guildID, userID, caseType, reason, ruleName string, duration time.Duration) (int64, error) {
	id, err := e.store.AddCase(ctx, storage.Case{
		GuildID:   guildID,
		UserID:    userID,
		Type:      caseType,
		Reason:    reason,
		RuleName:  ruleName,
		Duration:  duration,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return 0, fmt.Errorf("record %s case: %w", caseType, err)
	}
	return id, nil
}
