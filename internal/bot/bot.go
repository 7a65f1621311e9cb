// Package bot wires the discordgo gateway to the automod engine manager:
// it converts gateway payloads to engine events, loads a guild's rules when
// the guild becomes available, and tears its engine down when it goes away.
package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/ZeppelinBot/Zeppelin-sub001/internal/automod"
	"github.com/ZeppelinBot/Zeppelin-sub001/internal/config"
	"github.com/ZeppelinBot/Zeppelin-sub001/internal/discord"
	"github.com/ZeppelinBot/Zeppelin-sub001/internal/modules/audit"
	"github.com/ZeppelinBot/Zeppelin-sub001/internal/rules"
	"github.com/ZeppelinBot/Zeppelin-sub001/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type Bot struct {
	cfg     config.Config
	logger  *zap.Logger
	session *discordgo.Session
	manager *automod.Manager
	ruleDoc *rules.Document
}

func New(cfg config.Config, logger *zap.Logger, store *storage.Store, ruleDoc *rules.Document) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentMessageContent

	auditLogger := audit.NewLogger(store, logger)
	executor := discord.NewExecutor(session, store, logger)
	if cfg.AuditChannel != "" {
		channelID := cfg.AuditChannel
		auditLogger.SetNotifier(func(ctx context.Context, entry storage.AuditLog) {
			text := fmt.Sprintf("[%s] %s rule=%s user=<@%s> %s", entry.Level, entry.Event, entry.RuleName, entry.UserID, entry.Details)
			if err := executor.PostAlert(ctx, entry.GuildID, channelID, text); err != nil {
				logger.Debug("audit notify failed", zap.Error(err))
			}
		})
	}
	resolver := discord.NewCachedResolver(discord.NewResolver(session))
	taskTimeout := time.Duration(cfg.Engine.TaskTimeoutSeconds) * time.Second
	manager := automod.NewManager(resolver, executor, auditLogger, logger, taskTimeout)
	if cfg.Engine.GCIntervalSeconds > 0 {
		manager.SetGCInterval(time.Duration(cfg.Engine.GCIntervalSeconds) * time.Second)
	}

	b := &Bot{
		cfg:     cfg,
		logger:  logger,
		session: session,
		manager: manager,
		ruleDoc: ruleDoc,
	}

	session.AddHandler(b.onGuildCreate)
	session.AddHandler(b.onGuildDelete)
	session.AddHandler(b.onMessageCreate)
	session.AddHandler(b.onMessageUpdate)
	session.AddHandler(b.onGuildMemberUpdate)
	session.AddHandler(b.onVoiceStateUpdate)

	return b, nil
}

func (b *Bot) Start() error {
	return b.session.Open()
}

func (b *Bot) Close(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.manager.Close()
		_ = b.session.Close()
	}()
	select {
	case <-done:
	case <-ctx.Done():
		b.logger.Warn("shutdown deadline reached before drain finished")
	}
}

// Manager exposes the engine manager for tests.
func (b *Bot) Manager() *automod.Manager { return b.manager }

func (b *Bot) onGuildCreate(_ *discordgo.Session, g *discordgo.GuildCreate) {
	list := b.ruleDoc.ForGuild(g.ID)
	b.manager.Load(g.ID, list)
}

func (b *Bot) onGuildDelete(_ *discordgo.Session, g *discordgo.GuildDelete) {
	if g.Unavailable {
		// Outage, not removal; keep state so ordering survives the blip.
		return
	}
	b.manager.Unload(g.ID)
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if !moderatableMessage(s, m.Message) {
		return
	}
	ev := eventFromMessage(m.Message, automod.EventMessageCreated)
	b.manager.Handle(ev)
}

func (b *Bot) onMessageUpdate(s *discordgo.Session, m *discordgo.MessageUpdate) {
	if !moderatableMessage(s, m.Message) {
		return
	}
	ev := eventFromMessage(m.Message, automod.EventMessageUpdated)
	b.manager.Handle(ev)
}

func (b *Bot) onGuildMemberUpdate(s *discordgo.Session, m *discordgo.GuildMemberUpdate) {
	if m.User == nil || m.GuildID == "" {
		return
	}
	if s.State != nil && s.State.User != nil && m.User.ID == s.State.User.ID {
		return
	}
	b.manager.Handle(&automod.Event{
		Type:      automod.EventMemberProfileChanged,
		GuildID:   m.GuildID,
		AuthorID:  m.User.ID,
		Username:  userTag(m.User),
		Nickname:  m.Nick,
		Timestamp: time.Now(),
	})
}

func (b *Bot) onVoiceStateUpdate(_ *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	if v.GuildID == "" {
		return
	}
	ev := &automod.Event{
		Type:        automod.EventVoiceChannelMoved,
		GuildID:     v.GuildID,
		AuthorID:    v.UserID,
		ToChannelID: v.ChannelID,
		Timestamp:   time.Now(),
	}
	if v.BeforeUpdate != nil {
		ev.FromChannelID = v.BeforeUpdate.ChannelID
	}
	if ev.FromChannelID == ev.ToChannelID {
		return
	}
	b.manager.Handle(ev)
}

func moderatableMessage(s *discordgo.Session, m *discordgo.Message) bool {
	if m == nil || m.Author == nil || m.GuildID == "" {
		return false
	}
	if m.Author.Bot || m.WebhookID != "" {
		return false
	}
	if s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
		return false
	}
	return true
}
