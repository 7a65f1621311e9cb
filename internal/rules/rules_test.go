package rules

import (
	"strings"
	"testing"
	"time"
)

const sampleDoc = `
default:
  - name: no-slurs
    triggers:
      - match_words:
          words: ["badword"]
          only_full_words: true
    actions:
      clean: true
      warn:
        reason: "watch your language"
  - name: message-spam
    triggers:
      - max_messages:
          amount: 5
          within: 10s
          per_channel: true
    actions:
      clean: true
      mute:
        duration: 10m
guilds:
  "200":
    - name: invite-block
      triggers:
        - match_invites:
            allow_group_dm_invites: false
      actions:
        clean: true
`

func TestParseDocument(t *testing.T) {
	doc, err := Parse([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doc.Default) != 2 {
		t.Fatalf("expected 2 default rules, got %d", len(doc.Default))
	}

	list := doc.ForGuild("200")
	if len(list) != 1 || list[0].Name != "invite-block" {
		t.Fatalf("guild override not applied: %+v", list)
	}
	if got := doc.ForGuild("999"); len(got) != 2 {
		t.Fatalf("expected default list for unknown guild, got %d rules", len(got))
	}

	rate := doc.Default[1].Triggers[0].MaxMessages
	if rate == nil || rate.Amount != 5 || rate.Within.Std() != 10*time.Second || !rate.PerChannel {
		t.Fatalf("rate trigger parsed wrong: %+v", rate)
	}
}

func TestWordsTriggerMatch(t *testing.T) {
	doc, err := Parse([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	words := doc.Default[0].Triggers[0].MatchWords

	if _, ok := words.Match("that is a BADWORD here"); !ok {
		t.Fatalf("case-insensitive full word should match")
	}
	if _, ok := words.Match("notbadwordish"); ok {
		t.Fatalf("embedded word should not match with only_full_words")
	}
}

func TestRegexValidationRejectsBadPattern(t *testing.T) {
	bad := `
default:
  - name: broken
    triggers:
      - match_regex:
          patterns: ["[unclosed"]
    actions:
      clean: true
`
	if _, err := Parse([]byte(bad)); err == nil {
		t.Fatalf("expected error for invalid regex")
	}
}

func TestValidationRejectsOversizedWindow(t *testing.T) {
	bad := `
default:
  - name: slow
    triggers:
      - max_messages:
          amount: 5
          within: 1h
    actions:
      clean: true
`
	_, err := Parse([]byte(bad))
	if err == nil || !strings.Contains(err.Error(), "window exceeds") {
		t.Fatalf("expected window cap error, got %v", err)
	}
}

func TestValidationRejectsMultiKindTrigger(t *testing.T) {
	bad := `
default:
  - name: confused
    triggers:
      - match_words:
          words: ["x"]
        max_messages:
          amount: 5
          within: 10s
    actions:
      clean: true
`
	if _, err := Parse([]byte(bad)); err == nil {
		t.Fatalf("expected error for trigger with two kinds")
	}
}

func TestDefaultScopesApplied(t *testing.T) {
	doc, err := Parse([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	scopes := doc.Default[0].Triggers[0].MatchWords.Scopes
	if !scopes.Messages || scopes.Embeds || scopes.Usernames || scopes.Nicknames {
		t.Fatalf("expected message-only default scopes, got %+v", scopes)
	}
}

func TestRuleMaxWindow(t *testing.T) {
	doc, err := Parse([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := doc.Default[1].MaxWindow(); got != 10*time.Second {
		t.Fatalf("expected 10s max window, got %s", got)
	}
	if got := doc.Default[0].MaxWindow(); got != 0 {
		t.Fatalf("expected no window for content-only rule, got %s", got)
	}
}
