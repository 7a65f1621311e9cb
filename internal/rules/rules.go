// Package rules defines the automod rule schema and its validation.
// Rule documents are loaded from yaml, validated once, and handed to the
// engine read-only; invalid documents never reach the engine.
package rules

import (
	"fmt"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MaxWindow caps a rate trigger's window; longer windows are rejected
	// so ledger retention stays bounded.
	MaxWindow = 10 * time.Minute
	// MaxMuteDuration caps mute actions from automod rules.
	MaxMuteDuration = 28 * 24 * time.Hour
)

// Duration wraps time.Duration so rule documents can say "10s" or "5m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Scopes selects which parts of an event's text a content trigger tests.
type Scopes struct {
	Messages  bool `yaml:"messages"`
	Embeds    bool `yaml:"embeds"`
	Usernames bool `yaml:"usernames"`
	Nicknames bool `yaml:"nicknames"`
}

func (s Scopes) Any() bool {
	return s.Messages || s.Embeds || s.Usernames || s.Nicknames
}

// DefaultScopes tests the message body only.
func DefaultScopes() Scopes { return Scopes{Messages: true} }

type WordsTrigger struct {
	Words         []string `yaml:"words"`
	CaseSensitive bool     `yaml:"case_sensitive"`
	OnlyFullWords bool     `yaml:"only_full_words"`
	Scopes        Scopes   `yaml:"scopes"`

	patterns []*regexp.Regexp
}

// Match returns the first configured word found in text.
func (t *WordsTrigger) Match(text string) (string, bool) {
	for i, pattern := range t.patterns {
		if pattern.MatchString(text) {
			return t.Words[i], true
		}
	}
	return "", false
}

func (t *WordsTrigger) compile() error {
	t.patterns = make([]*regexp.Regexp, 0, len(t.Words))
	for _, word := range t.Words {
		expr := regexp.QuoteMeta(word)
		if t.OnlyFullWords {
			expr = `\b` + expr + `\b`
		}
		if !t.CaseSensitive {
			expr = `(?i)` + expr
		}
		pattern, err := regexp.Compile(expr)
		if err != nil {
			return fmt.Errorf("word %q: %w", word, err)
		}
		t.patterns = append(t.patterns, pattern)
	}
	return nil
}

type RegexTrigger struct {
	Patterns      []string `yaml:"patterns"`
	CaseSensitive bool     `yaml:"case_sensitive"`
	Scopes        Scopes   `yaml:"scopes"`

	compiled []*regexp.Regexp
}

// Match returns the matched fragment of text for the first matching pattern.
// Patterns are RE2, compiled and validated at load time; there is no
// backtracking engine to protect against at match time.
func (t *RegexTrigger) Match(text string) (string, bool) {
	for _, pattern := range t.compiled {
		if loc := pattern.FindStringIndex(text); loc != nil {
			return text[loc[0]:loc[1]], true
		}
	}
	return "", false
}

func (t *RegexTrigger) compile() error {
	t.compiled = make([]*regexp.Regexp, 0, len(t.Patterns))
	for _, raw := range t.Patterns {
		expr := raw
		if !t.CaseSensitive {
			expr = `(?i)` + expr
		}
		pattern, err := regexp.Compile(expr)
		if err != nil {
			return fmt.Errorf("pattern %q: %w", raw, err)
		}
		t.compiled = append(t.compiled, pattern)
	}
	return nil
}

type InvitesTrigger struct {
	IncludeGuilds       []string `yaml:"include_guilds"`
	ExcludeGuilds       []string `yaml:"exclude_guilds"`
	IncludeCodes        []string `yaml:"include_codes"`
	ExcludeCodes        []string `yaml:"exclude_codes"`
	AllowGroupDMInvites bool     `yaml:"allow_group_dm_invites"`
	Scopes              Scopes   `yaml:"scopes"`
}

type LinksTrigger struct {
	IncludeDomains    []string `yaml:"include_domains"`
	ExcludeDomains    []string `yaml:"exclude_domains"`
	IncludeSubdomains bool     `yaml:"include_subdomains"`
	Scopes            Scopes   `yaml:"scopes"`
}

type RateTrigger struct {
	Amount     uint     `yaml:"amount"`
	Within     Duration `yaml:"within"`
	PerChannel bool     `yaml:"per_channel"`
}

// Trigger holds exactly one trigger kind; validation rejects anything else.
type Trigger struct {
	MatchWords   *WordsTrigger   `yaml:"match_words,omitempty"`
	MatchRegex   *RegexTrigger   `yaml:"match_regex,omitempty"`
	MatchInvites *InvitesTrigger `yaml:"match_invites,omitempty"`
	MatchLinks   *LinksTrigger   `yaml:"match_links,omitempty"`

	MaxMessages    *RateTrigger `yaml:"max_messages,omitempty"`
	MaxMentions    *RateTrigger `yaml:"max_mentions,omitempty"`
	MaxLinks       *RateTrigger `yaml:"max_links,omitempty"`
	MaxAttachments *RateTrigger `yaml:"max_attachments,omitempty"`
	MaxEmojis      *RateTrigger `yaml:"max_emojis,omitempty"`
	MaxLines       *RateTrigger `yaml:"max_lines,omitempty"`
	MaxCharacters  *RateTrigger `yaml:"max_characters,omitempty"`
}

func (t *Trigger) kinds() int {
	count := 0
	if t.MatchWords != nil {
		count++
	}
	if t.MatchRegex != nil {
		count++
	}
	if t.MatchInvites != nil {
		count++
	}
	if t.MatchLinks != nil {
		count++
	}
	for _, rate := range t.RateTriggers() {
		if rate != nil {
			count++
		}
	}
	return count
}

// RateTriggers returns the trigger's rate cases indexed by rate kind order:
// messages, mentions, links, attachments, emojis, lines, characters.
func (t *Trigger) RateTriggers() [7]*RateTrigger {
	return [7]*RateTrigger{
		t.MaxMessages, t.MaxMentions, t.MaxLinks, t.MaxAttachments,
		t.MaxEmojis, t.MaxLines, t.MaxCharacters,
	}
}

type WarnAction struct {
	Reason string `yaml:"reason"`
}

type MuteAction struct {
	Duration Duration `yaml:"duration"`
	Reason   string   `yaml:"reason"`
}

type KickAction struct {
	Reason string `yaml:"reason"`
}

type BanAction struct {
	Reason string `yaml:"reason"`
}

type AlertAction struct {
	Channel string `yaml:"channel"`
	Text    string `yaml:"text"`
}

type Actions struct {
	Clean bool         `yaml:"clean"`
	Warn  *WarnAction  `yaml:"warn,omitempty"`
	Mute  *MuteAction  `yaml:"mute,omitempty"`
	Kick  *KickAction  `yaml:"kick,omitempty"`
	Ban   *BanAction   `yaml:"ban,omitempty"`
	Alert *AlertAction `yaml:"alert,omitempty"`
}

func (a Actions) Any() bool {
	return a.Clean || a.Warn != nil || a.Mute != nil || a.Kick != nil || a.Ban != nil || a.Alert != nil
}

type Rule struct {
	Name     string    `yaml:"name"`
	Enabled  *bool     `yaml:"enabled,omitempty"`
	Triggers []Trigger `yaml:"triggers"`
	Actions  Actions   `yaml:"actions"`
}

func (r *Rule) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// MaxWindow returns the longest rate-trigger window the rule uses.
func (r *Rule) MaxWindow() time.Duration {
	var max time.Duration
	for i := range r.Triggers {
		for _, rate := range r.Triggers[i].RateTriggers() {
			if rate != nil && rate.Within.Std() > max {
				max = rate.Within.Std()
			}
		}
	}
	return max
}

func (r *Rule) validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule without a name")
	}
	if len(r.Triggers) == 0 {
		return fmt.Errorf("rule %q has no triggers", r.Name)
	}
	if !r.Actions.Any() {
		return fmt.Errorf("rule %q has no actions", r.Name)
	}
	if r.Actions.Alert != nil && r.Actions.Alert.Channel == "" {
		return fmt.Errorf("rule %q: alert action requires a channel", r.Name)
	}
	if r.Actions.Mute != nil && r.Actions.Mute.Duration.Std() > MaxMuteDuration {
		return fmt.Errorf("rule %q: mute duration exceeds %s", r.Name, MaxMuteDuration)
	}

	for i := range r.Triggers {
		trigger := &r.Triggers[i]
		if trigger.kinds() != 1 {
			return fmt.Errorf("rule %q trigger %d: exactly one trigger kind required", r.Name, i)
		}
		if trigger.MatchWords != nil {
			if len(trigger.MatchWords.Words) == 0 {
				return fmt.Errorf("rule %q trigger %d: match_words needs words", r.Name, i)
			}
			applyDefaultScopes(&trigger.MatchWords.Scopes)
			if err := trigger.MatchWords.compile(); err != nil {
				return fmt.Errorf("rule %q trigger %d: %w", r.Name, i, err)
			}
		}
		if trigger.MatchRegex != nil {
			if len(trigger.MatchRegex.Patterns) == 0 {
				return fmt.Errorf("rule %q trigger %d: match_regex needs patterns", r.Name, i)
			}
			applyDefaultScopes(&trigger.MatchRegex.Scopes)
			if err := trigger.MatchRegex.compile(); err != nil {
				return fmt.Errorf("rule %q trigger %d: %w", r.Name, i, err)
			}
		}
		if trigger.MatchInvites != nil {
			applyDefaultScopes(&trigger.MatchInvites.Scopes)
		}
		if trigger.MatchLinks != nil {
			applyDefaultScopes(&trigger.MatchLinks.Scopes)
		}
		for _, rate := range trigger.RateTriggers() {
			if rate == nil {
				continue
			}
			if rate.Amount == 0 {
				return fmt.Errorf("rule %q trigger %d: rate amount must be positive", r.Name, i)
			}
			if rate.Within.Std() <= 0 {
				return fmt.Errorf("rule %q trigger %d: rate window must be positive", r.Name, i)
			}
			if rate.Within.Std() > MaxWindow {
				return fmt.Errorf("rule %q trigger %d: rate window exceeds %s", r.Name, i, MaxWindow)
			}
		}
	}
	return nil
}

func applyDefaultScopes(s *Scopes) {
	if !s.Any() {
		*s = DefaultScopes()
	}
}
