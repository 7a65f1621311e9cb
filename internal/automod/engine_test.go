package automod

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ZeppelinBot/Zeppelin-sub001/internal/modules/audit"
	"github.com/ZeppelinBot/Zeppelin-sub001/internal/rules"

	"go.uber.org/zap"
)

func newTestEngine(t *testing.T, doc string, exec Executor) (*Engine, *fakeClock) {
	t.Helper()
	parsed, err := rules.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse rules: %v", err)
	}
	engine := NewEngine("g1", parsed.Default, &fakeResolver{}, exec, audit.NewLogger(nil, zap.NewNop()), zap.NewNop())
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	engine.WithClock(clock)
	return engine, clock
}

// The spec's end-to-end scenario: four messages in one channel trip a
// per-channel max_messages rule; the whole window is cleaned and one mute
// case is created; an echo inside the grace window is deleted without a
// second mute.
func TestEngineEndToEndRateScenario(t *testing.T) {
	doc := `
default:
  - name: flood
    triggers:
      - max_messages:
          amount: 3
          within: 5s
          per_channel: true
    actions:
      clean: true
      mute:
        duration: 10m
`
	exec := &fakeExec{}
	engine, clock := newTestEngine(t, doc, exec)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		engine.Process(ctx, messageEvent(fmt.Sprintf("m%d", i), "c1", "u1", "spam"))
		clock.Advance(500 * time.Millisecond)
	}

	clean, ok := exec.find("clean")
	if !ok {
		t.Fatalf("expected a clean call")
	}
	if len(clean.messages) != 4 {
		t.Fatalf("message 4 should clean the whole window, got %v", clean.messages)
	}
	if got := exec.count("mute"); got != 1 {
		t.Fatalf("expected exactly one mute, got %d", got)
	}

	// Echo one second later, still inside the grace window: deleted, but no
	// second mute and no window-wide clean.
	clock.Advance(time.Second)
	engine.Process(ctx, messageEvent("m5", "c1", "u1", "spam again"))

	if got := exec.count("mute"); got != 1 {
		t.Fatalf("grace window must suppress a second mute, got %d", got)
	}
	if got := exec.count("clean"); got != 2 {
		t.Fatalf("echo should be cleaned once, got %d clean calls", got)
	}
	last := exec.calls[len(exec.calls)-1]
	if len(last.messages) != 1 || last.messages[0] != "m5" {
		t.Fatalf("echo clean should target only the new message, got %v", last.messages)
	}
}

func TestEngineFirstMatchWins(t *testing.T) {
	doc := `
default:
  - name: rule-a
    triggers:
      - match_words:
          words: ["overlap"]
    actions:
      warn:
        reason: "a"
  - name: rule-b
    triggers:
      - match_regex:
          patterns: ["overlap"]
    actions:
      ban:
        reason: "b"
`
	exec := &fakeExec{}
	engine, _ := newTestEngine(t, doc, exec)

	engine.Process(context.Background(), messageEvent("m1", "c1", "u1", "this has overlap in it"))

	if got := exec.count("warn"); got != 1 {
		t.Fatalf("rule-a should fire, got %d warns", got)
	}
	if got := exec.count("ban"); got != 0 {
		t.Fatalf("rule-b must not fire after rule-a matched, got %d bans", got)
	}
}

func TestEngineDisabledRuleSkipped(t *testing.T) {
	doc := `
default:
  - name: off
    enabled: false
    triggers:
      - match_words:
          words: ["target"]
    actions:
      warn:
        reason: "w"
`
	exec := &fakeExec{}
	engine, _ := newTestEngine(t, doc, exec)

	engine.Process(context.Background(), messageEvent("m1", "c1", "u1", "target"))
	if got := exec.count("warn"); got != 0 {
		t.Fatalf("disabled rule must not fire, got %d warns", got)
	}
}

// Ledger writes happen before rule iteration, so a later rule's rate window
// still counts an event that matched an earlier content rule.
func TestEngineLedgerWrittenBeforeRules(t *testing.T) {
	doc := `
default:
  - name: words
    triggers:
      - match_words:
          words: ["noise"]
    actions:
      warn:
        reason: "w"
`
	exec := &fakeExec{}
	engine, clock := newTestEngine(t, doc, exec)

	engine.Process(context.Background(), messageEvent("m1", "c1", "u1", "noise"))

	since := clock.Now().Add(-time.Minute)
	if sum := engine.Ledger().Sum(KindMessage, "u1", since); sum != 1 {
		t.Fatalf("countables must be recorded even when a content rule matches, sum = %d", sum)
	}
}

func TestEngineEditsDoNotCount(t *testing.T) {
	doc := `
default:
  - name: flood
    triggers:
      - max_messages:
          amount: 2
          within: 10s
    actions:
      clean: true
`
	exec := &fakeExec{}
	engine, clock := newTestEngine(t, doc, exec)
	ctx := context.Background()

	engine.Process(ctx, messageEvent("m1", "c1", "u1", "a"))
	for i := 0; i < 5; i++ {
		edit := messageEvent("m1", "c1", "u1", "a (edited)")
		edit.Type = EventMessageUpdated
		engine.Process(ctx, edit)
	}

	since := clock.Now().Add(-time.Minute)
	if sum := engine.Ledger().Sum(KindMessage, "u1", since); sum != 1 {
		t.Fatalf("edits must not add to rate windows, sum = %d", sum)
	}
	if got := exec.count("clean"); got != 0 {
		t.Fatalf("edits alone must not trip a rate rule, got %d cleans", got)
	}
}

func TestEngineEditAfterGraceExpiryDoesNotRefire(t *testing.T) {
	doc := `
default:
  - name: flood
    triggers:
      - max_messages:
          amount: 1
          within: 10m
    actions:
      clean: true
      mute:
        duration: 10m
`
	exec := &fakeExec{}
	engine, clock := newTestEngine(t, doc, exec)
	ctx := context.Background()

	engine.Process(ctx, messageEvent("m1", "c1", "u1", "spam"))
	engine.Process(ctx, messageEvent("m2", "c1", "u1", "spam"))
	if got := exec.count("mute"); got != 1 {
		t.Fatalf("expected one mute from the flood, got %d", got)
	}

	// Grace is capped at five minutes but the window outlives it here: an
	// edit landing in that gap is a content re-check, not a rate candidate.
	clock.Advance(MaxGracePeriod + time.Second)
	edit := messageEvent("m2", "c1", "u1", "spam (edited)")
	edit.Type = EventMessageUpdated
	engine.Process(ctx, edit)

	if got := exec.count("mute"); got != 1 {
		t.Fatalf("an edit must not re-fire a rate pipeline, got %d mutes", got)
	}
	if got := exec.count("clean"); got != 1 {
		t.Fatalf("an edit must not re-run clean, got %d clean calls", got)
	}
}

func TestEngineGCKeepsWindowSemantics(t *testing.T) {
	doc := `
default:
  - name: flood
    triggers:
      - max_messages:
          amount: 5
          within: 10s
    actions:
      clean: true
`
	exec := &fakeExec{}
	engine, clock := newTestEngine(t, doc, exec)

	engine.Process(context.Background(), messageEvent("m1", "c1", "u1", "a"))
	engine.GC(clock.Now().Add(10 * time.Minute))

	if got := engine.Ledger().Len(); got != 0 {
		t.Fatalf("GC should drop aged entries, got %d", got)
	}
}
