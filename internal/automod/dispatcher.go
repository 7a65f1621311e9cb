package automod

import (
	"context"
	"strings"
	"time"

	"github.com/ZeppelinBot/Zeppelin-sub001/internal/modules/audit"
	"github.com/ZeppelinBot/Zeppelin-sub001/internal/rules"

	"go.uber.org/zap"
)

// Executor performs moderation actions against the chat platform and the
// case store. Every call may fail with a transport or permission error; the
// dispatcher logs and moves on.
type Executor interface {
	DeleteMessages(ctx context.Context, guildID, channelID string, messageIDs []string) error
	WarnUser(ctx context.Context, guildID, userID, reason, ruleName string) error
	MuteUser(ctx context.Context, guildID, userID string, duration time.Duration, reason, ruleName string) error
	KickUser(ctx context.Context, guildID, userID, reason, ruleName string) error
	BanUser(ctx context.Context, guildID, userID, reason, ruleName string) error
	PostAlert(ctx context.Context, guildID, channelID, text string) error
}

// Dispatcher applies a matched rule's actions in fixed order: clean, warn,
// mute, kick, ban, alert. Actions are independent; one failing does not stop
// the rest.
type Dispatcher struct {
	exec   Executor
	audit  *audit.Logger
	logger *zap.Logger
}

func NewDispatcher(exec Executor, auditLogger *audit.Logger, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{exec: exec, audit: auditLogger, logger: logger}
}

func (d *Dispatcher) Apply(ctx context.Context, ev *Event, rule *rules.Rule, match *Match) {
	actions := rule.Actions

	if actions.Clean {
		d.clean(ctx, ev, rule, match.Refs)
	}
	if actions.Warn != nil {
		if err := d.exec.WarnUser(ctx, ev.GuildID, ev.AuthorID, actions.Warn.Reason, rule.Name); err != nil {
			d.logger.Warn("warn action failed", zap.String("rule", rule.Name), zap.String("user_id", ev.AuthorID), zap.Error(err))
		} else {
			d.audit.LogAction(ctx, ev.GuildID, ev.AuthorID, rule.Name, "warn", actions.Warn.Reason)
		}
	}
	if actions.Mute != nil {
		if err := d.exec.MuteUser(ctx, ev.GuildID, ev.AuthorID, actions.Mute.Duration.Std(), actions.Mute.Reason, rule.Name); err != nil {
			d.logger.Warn("mute action failed", zap.String("rule", rule.Name), zap.String("user_id", ev.AuthorID), zap.Error(err))
		} else {
			d.audit.LogAction(ctx, ev.GuildID, ev.AuthorID, rule.Name, "mute", actions.Mute.Reason)
		}
	}
	if actions.Kick != nil {
		if err := d.exec.KickUser(ctx, ev.GuildID, ev.AuthorID, actions.Kick.Reason, rule.Name); err != nil {
			d.logger.Warn("kick action failed", zap.String("rule", rule.Name), zap.String("user_id", ev.AuthorID), zap.Error(err))
		} else {
			d.audit.LogAction(ctx, ev.GuildID, ev.AuthorID, rule.Name, "kick", actions.Kick.Reason)
		}
	}
	if actions.Ban != nil {
		if err := d.exec.BanUser(ctx, ev.GuildID, ev.AuthorID, actions.Ban.Reason, rule.Name); err != nil {
			d.logger.Warn("ban action failed", zap.String("rule", rule.Name), zap.String("user_id", ev.AuthorID), zap.Error(err))
		} else {
			d.audit.LogAction(ctx, ev.GuildID, ev.AuthorID, rule.Name, "ban", actions.Ban.Reason)
		}
	}
	if actions.Alert != nil {
		text := renderAlert(actions.Alert.Text, ev, rule, match)
		if err := d.exec.PostAlert(ctx, ev.GuildID, actions.Alert.Channel, text); err != nil {
			d.logger.Warn("alert action failed", zap.String("rule", rule.Name), zap.String("channel_id", actions.Alert.Channel), zap.Error(err))
		}
	}
}

// CleanEcho deletes a single message that arrived while its scope was under
// grace suppression, without running the full action pipeline.
func (d *Dispatcher) CleanEcho(ctx context.Context, ev *Event, rule *rules.Rule) {
	ref := ev.Ref()
	if ref.MessageID == "" {
		return
	}
	d.clean(ctx, ev, rule, []EventRef{ref})
}

// clean groups refs by channel and issues one delete call per channel.
func (d *Dispatcher) clean(ctx context.Context, ev *Event, rule *rules.Rule, refs []EventRef) {
	if len(refs) == 0 {
		return
	}

	byChannel := make(map[string][]string)
	order := make([]string, 0, 1)
	for _, ref := range refs {
		if _, ok := byChannel[ref.ChannelID]; !ok {
			order = append(order, ref.ChannelID)
		}
		byChannel[ref.ChannelID] = append(byChannel[ref.ChannelID], ref.MessageID)
	}

	for _, channelID := range order {
		ids := dedupeStrings(byChannel[channelID])
		if err := d.exec.DeleteMessages(ctx, ev.GuildID, channelID, ids); err != nil {
			d.logger.Warn("clean action failed",
				zap.String("rule", rule.Name),
				zap.String("channel_id", channelID),
				zap.Int("messages", len(ids)),
				zap.Error(err))
		}
	}
}

// renderAlert fills the alert template. Supported placeholders: {user},
// {channel}, {rule}, {matchSummary}.
func renderAlert(text string, ev *Event, rule *rules.Rule, match *Match) string {
	if text == "" {
		text = "Automod rule {rule} matched for {user}: {matchSummary}"
	}
	replacer := strings.NewReplacer(
		"{user}", "<@"+ev.AuthorID+">",
		"{channel}", "<#"+ev.ChannelID+">",
		"{rule}", rule.Name,
		"{matchSummary}", match.Summary,
	)
	return replacer.Replace(text)
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
