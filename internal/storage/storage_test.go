package storage

import (
	"context"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func TestAddAndListCases(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	id, err := store.AddCase(ctx, Case{
		GuildID:   "g1",
		UserID:    "u1",
		Type:      CaseMute,
		Reason:    "message flood",
		RuleName:  "flood",
		Duration:  10 * time.Minute,
		CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("add case: %v", err)
	}
	if id == 0 {
		t.Fatalf("expected generated case id")
	}
	if _, err := store.AddCase(ctx, Case{GuildID: "g1", UserID: "u2", Type: CaseWarn, RuleName: "words", CreatedAt: now}); err != nil {
		t.Fatalf("add second case: %v", err)
	}

	cases, err := store.ListCases(ctx, "g1", "u1", 0)
	if err != nil {
		t.Fatalf("list cases: %v", err)
	}
	if len(cases) != 1 {
		t.Fatalf("expected 1 case for u1, got %d", len(cases))
	}
	c := cases[0]
	if c.ID != id || c.Type != CaseMute || c.RuleName != "flood" || c.Duration != 10*time.Minute {
		t.Fatalf("case round-trip wrong: %+v", c)
	}

	all, err := store.ListCases(ctx, "g1", "", 0)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 cases, got %d", len(all))
	}
}

func TestAuditLogsRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	entry := AuditLog{
		GuildID:   "g1",
		UserID:    "u1",
		Level:     "WARN",
		RuleName:  "flood",
		Event:     "mute",
		Details:   "message rate exceeded",
		CreatedAt: now,
	}
	if err := store.AddAuditLog(ctx, entry); err != nil {
		t.Fatalf("add audit log: %v", err)
	}

	logs, err := store.ListAuditLogs(ctx, "g1", now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 log, got %d", len(logs))
	}
	if logs[0].RuleName != "flood" || logs[0].Event != "mute" {
		t.Fatalf("log round-trip wrong: %+v", logs[0])
	}

	logs, err = store.ListAuditLogs(ctx, "g1", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("list after cutoff: %v", err)
	}
	if len(logs) != 0 {
		t.Fatalf("expected no logs after cutoff, got %d", len(logs))
	}
}

func TestCleanupBefore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	old := time.Now().AddDate(0, 0, -60)
	recent := time.Now()

	if _, err := store.AddCase(ctx, Case{GuildID: "g1", UserID: "u1", Type: CaseWarn, CreatedAt: old}); err != nil {
		t.Fatalf("add old case: %v", err)
	}
	if _, err := store.AddCase(ctx, Case{GuildID: "g1", UserID: "u1", Type: CaseWarn, CreatedAt: recent}); err != nil {
		t.Fatalf("add recent case: %v", err)
	}
	if err := store.AddAuditLog(ctx, AuditLog{GuildID: "g1", Level: "INFO", Event: "match", CreatedAt: old}); err != nil {
		t.Fatalf("add old log: %v", err)
	}

	if err := store.CleanupBefore(ctx, time.Now().AddDate(0, 0, -30)); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	cases, err := store.ListCases(ctx, "g1", "", 0)
	if err != nil {
		t.Fatalf("list cases: %v", err)
	}
	if len(cases) != 1 {
		t.Fatalf("expected only the recent case, got %d", len(cases))
	}
	logs, err := store.ListAuditLogs(ctx, "g1", old.Add(-time.Hour))
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(logs) != 0 {
		t.Fatalf("expected old logs removed, got %d", len(logs))
	}
}
