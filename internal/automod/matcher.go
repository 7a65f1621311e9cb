package automod

import (
	"context"
	"fmt"
	"time"

	"github.com/ZeppelinBot/Zeppelin-sub001/internal/rules"
	"github.com/ZeppelinBot/Zeppelin-sub001/internal/utils"

	"go.uber.org/zap"
)

// Scope names the part of an event a content trigger matched against.
type Scope int

const (
	ScopeMessage Scope = iota
	ScopeEmbed
	ScopeUsername
	ScopeNickname
)

func (s Scope) String() string {
	switch s {
	case ScopeMessage:
		return "message"
	case ScopeEmbed:
		return "embed"
	case ScopeUsername:
		return "username"
	case ScopeNickname:
		return "nickname"
	default:
		return "unknown"
	}
}

type MatchType int

const (
	MatchContent MatchType = iota
	MatchRate
)

// Match is the result of a rule matching one event. Content matches carry
// the scope and matched text; rate matches carry the exceeded kind and the
// scope key the window was counted under. Refs always point at the concrete
// messages the dispatcher may clean.
type Match struct {
	Type MatchType

	Scope Scope
	Text  string

	Kind       CountableKind
	ScopeKey   string
	PerChannel bool
	Within     time.Duration

	Refs    []EventRef
	Summary string
}

// ResolvedInvite is the subset of an invite lookup the matcher needs.
type ResolvedInvite struct {
	Code    string
	GuildID string
	GroupDM bool
}

// InviteResolver looks up an invite code, typically over the network with a
// short-lived cache in front.
type InviteResolver interface {
	Resolve(ctx context.Context, code string) (*ResolvedInvite, error)
}

// Matcher evaluates one rule against one event. It is side-effect-free
// except for invite resolution, which goes through the injected resolver.
type Matcher struct {
	ledger   *Ledger
	resolver InviteResolver
	clock    Clock
	logger   *zap.Logger
}

func NewMatcher(ledger *Ledger, resolver InviteResolver, logger *zap.Logger) *Matcher {
	return &Matcher{
		ledger:   ledger,
		resolver: resolver,
		clock:    realClock{},
		logger:   logger,
	}
}

func (m *Matcher) WithClock(clock Clock) {
	m.clock = clock
}

// Match returns the rule's first matching trigger result, or nil. Triggers
// are tried in a fixed kind order regardless of their position in the rule:
// words, regex, invites, links, then the rate kinds.
func (m *Matcher) Match(ctx context.Context, ev *Event, rule *rules.Rule) *Match {
	for i := range rule.Triggers {
		if t := rule.Triggers[i].MatchWords; t != nil {
			if result := m.matchWords(ev, t); result != nil {
				return result
			}
		}
	}
	for i := range rule.Triggers {
		if t := rule.Triggers[i].MatchRegex; t != nil {
			if result := m.matchRegex(ev, t); result != nil {
				return result
			}
		}
	}
	for i := range rule.Triggers {
		if t := rule.Triggers[i].MatchInvites; t != nil {
			if result := m.matchInvites(ctx, ev, t); result != nil {
				return result
			}
		}
	}
	for i := range rule.Triggers {
		if t := rule.Triggers[i].MatchLinks; t != nil {
			if result := m.matchLinks(ev, t); result != nil {
				return result
			}
		}
	}
	for kind := CountableKind(0); kind < kindCount; kind++ {
		for i := range rule.Triggers {
			rate := rule.Triggers[i].RateTriggers()[kind]
			if rate == nil {
				continue
			}
			if result := m.matchRate(ev, kind, rate); result != nil {
				return result
			}
		}
	}
	return nil
}

// scopeTexts returns the event texts enabled by scopes, in the fixed scope
// order: message, embed, username, nickname. Empty texts are skipped.
func scopeTexts(ev *Event, scopes rules.Scopes) []scopedText {
	var out []scopedText
	if scopes.Messages && ev.Content != "" {
		out = append(out, scopedText{scope: ScopeMessage, text: ev.Content})
	}
	if scopes.Embeds && ev.EmbedText != "" {
		out = append(out, scopedText{scope: ScopeEmbed, text: ev.EmbedText})
	}
	if scopes.Usernames && ev.Username != "" {
		out = append(out, scopedText{scope: ScopeUsername, text: ev.Username})
	}
	if scopes.Nicknames && ev.Nickname != "" {
		out = append(out, scopedText{scope: ScopeNickname, text: ev.Nickname})
	}
	return out
}

type scopedText struct {
	scope Scope
	text  string
}

func (m *Matcher) matchWords(ev *Event, t *rules.WordsTrigger) *Match {
	for _, st := range scopeTexts(ev, t.Scopes) {
		if word, ok := t.Match(st.text); ok {
			return m.contentMatch(ev, st.scope, word, fmt.Sprintf("word %q in %s", word, st.scope))
		}
	}
	return nil
}

func (m *Matcher) matchRegex(ev *Event, t *rules.RegexTrigger) *Match {
	for _, st := range scopeTexts(ev, t.Scopes) {
		if fragment, ok := t.Match(st.text); ok {
			return m.contentMatch(ev, st.scope, fragment, fmt.Sprintf("pattern matched %q in %s", fragment, st.scope))
		}
	}
	return nil
}

// matchInvites is fail-closed: a code that cannot be resolved counts as a
// match, since deleted or expired invites are indistinguishable from hostile
// ones.
func (m *Matcher) matchInvites(ctx context.Context, ev *Event, t *rules.InvitesTrigger) *Match {
	for _, st := range scopeTexts(ev, t.Scopes) {
		for _, code := range utils.ExtractInviteCodes(st.text) {
			if containsString(t.ExcludeCodes, code) {
				continue
			}
			if containsString(t.IncludeCodes, code) {
				return m.contentMatch(ev, st.scope, code, fmt.Sprintf("listed invite code %s in %s", code, st.scope))
			}

			invite, err := m.resolver.Resolve(ctx, code)
			if err != nil {
				m.logger.Warn("invite resolution failed, treating as match",
					zap.String("code", code), zap.Error(err))
				return m.contentMatch(ev, st.scope, code, fmt.Sprintf("unresolvable invite %s in %s", code, st.scope))
			}

			if invite.GroupDM {
				if !t.AllowGroupDMInvites {
					return m.contentMatch(ev, st.scope, code, fmt.Sprintf("group DM invite %s in %s", code, st.scope))
				}
				continue
			}
			if containsString(t.ExcludeGuilds, invite.GuildID) {
				continue
			}
			if len(t.IncludeGuilds) > 0 {
				if containsString(t.IncludeGuilds, invite.GuildID) {
					return m.contentMatch(ev, st.scope, code, fmt.Sprintf("invite %s to listed guild in %s", code, st.scope))
				}
				continue
			}
			return m.contentMatch(ev, st.scope, code, fmt.Sprintf("invite %s in %s", code, st.scope))
		}
	}
	return nil
}

// matchLinks is fail-open, asymmetric with invites: a host on neither list
// never matches, even when only exclude_domains is configured.
func (m *Matcher) matchLinks(ev *Event, t *rules.LinksTrigger) *Match {
	for _, st := range scopeTexts(ev, t.Scopes) {
		for _, raw := range utils.ExtractURLs(st.text) {
			host, err := utils.NormalizeHost(raw)
			if err != nil || host == "" {
				continue
			}
			if utils.DomainMatch(host, t.ExcludeDomains, t.IncludeSubdomains) {
				continue
			}
			if utils.DomainMatch(host, t.IncludeDomains, t.IncludeSubdomains) {
				return m.contentMatch(ev, st.scope, raw, fmt.Sprintf("link to %s in %s", host, st.scope))
			}
		}
	}
	return nil
}

// matchRate fires only when the windowed sum strictly exceeds the amount, so
// amount 5 means the sixth event matches. Only created messages are rate
// candidates: edits and profile events never record countables, so they must
// not re-fire a window they did not contribute to.
func (m *Matcher) matchRate(ev *Event, kind CountableKind, t *rules.RateTrigger) *Match {
	if ev.Type != EventMessageCreated {
		return nil
	}
	if ev.AuthorID == "" {
		return nil
	}

	scopeKey := GlobalScopeKey(ev.AuthorID)
	if t.PerChannel {
		if ev.ChannelID == "" {
			return nil
		}
		scopeKey = ChannelScopeKey(ev.ChannelID, ev.AuthorID)
	}

	since := m.clock.Now().Add(-t.Within.Std())
	sum := m.ledger.Sum(kind, scopeKey, since)
	if sum <= t.Amount {
		return nil
	}

	var refs []EventRef
	for _, entry := range m.ledger.Query(kind, scopeKey, since) {
		if entry.Ref.MessageID != "" {
			refs = append(refs, entry.Ref)
		}
	}

	return &Match{
		Type:       MatchRate,
		Kind:       kind,
		ScopeKey:   scopeKey,
		PerChannel: t.PerChannel,
		Within:     t.Within.Std(),
		Refs:       refs,
		Summary:    fmt.Sprintf("%s rate exceeded: %d over %s (limit %d)", kind, sum, t.Within.Std(), t.Amount),
	}
}

func (m *Matcher) contentMatch(ev *Event, scope Scope, text, summary string) *Match {
	match := &Match{
		Type:    MatchContent,
		Scope:   scope,
		Text:    text,
		Summary: summary,
	}
	if ref := ev.Ref(); ref.MessageID != "" {
		match.Refs = []EventRef{ref}
	}
	return match
}

func containsString(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
