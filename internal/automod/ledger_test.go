package automod

import (
	"testing"
	"time"
)

func TestLedgerRecordsBothScopes(t *testing.T) {
	ledger := NewLedger(DefaultRetention)
	now := time.Now()
	ref := EventRef{ChannelID: "c1", MessageID: "m1"}

	ledger.Record(KindMessage, "u1", "c1:u1", now, 1, ref)

	if sum := ledger.Sum(KindMessage, "u1", now.Add(-time.Second)); sum != 1 {
		t.Fatalf("global scope sum = %d, want 1", sum)
	}
	if sum := ledger.Sum(KindMessage, "c1:u1", now.Add(-time.Second)); sum != 1 {
		t.Fatalf("channel scope sum = %d, want 1", sum)
	}
	if sum := ledger.Sum(KindMessage, "c2:u1", now.Add(-time.Second)); sum != 0 {
		t.Fatalf("other channel sum = %d, want 0", sum)
	}
}

func TestLedgerWindowEviction(t *testing.T) {
	ledger := NewLedger(DefaultRetention)
	start := time.Now()

	ledger.Record(KindMessage, "u1", "c1:u1", start, 1, EventRef{ChannelID: "c1", MessageID: "m1"})
	ledger.Record(KindMessage, "u1", "c1:u1", start.Add(5*time.Second), 1, EventRef{ChannelID: "c1", MessageID: "m2"})

	// A 10s window queried at t=11s must not see the event at t=0.
	since := start.Add(11 * time.Second).Add(-10 * time.Second)
	if sum := ledger.Sum(KindMessage, "u1", since); sum != 1 {
		t.Fatalf("windowed sum = %d, want 1", sum)
	}
	entries := ledger.Query(KindMessage, "u1", since)
	if len(entries) != 1 || entries[0].Ref.MessageID != "m2" {
		t.Fatalf("unexpected window entries: %+v", entries)
	}
}

func TestLedgerQueryInsertionOrder(t *testing.T) {
	ledger := NewLedger(DefaultRetention)
	start := time.Now()
	for i, id := range []string{"m1", "m2", "m3"} {
		ledger.Record(KindLink, "u1", "c1:u1", start.Add(time.Duration(i)*time.Second), 2, EventRef{ChannelID: "c1", MessageID: id})
	}

	entries := ledger.Query(KindLink, "u1", start)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, id := range []string{"m1", "m2", "m3"} {
		if entries[i].Ref.MessageID != id {
			t.Fatalf("entry %d = %s, want %s", i, entries[i].Ref.MessageID, id)
		}
	}
	if sum := ledger.Sum(KindLink, "u1", start); sum != 6 {
		t.Fatalf("sum = %d, want 6", sum)
	}
}

func TestLedgerGarbageCollect(t *testing.T) {
	ledger := NewLedger(DefaultRetention)
	start := time.Now()

	ledger.Record(KindMessage, "u1", "c1:u1", start, 1, EventRef{})
	ledger.Record(KindMessage, "u2", "c1:u2", start.Add(4*time.Minute), 1, EventRef{})
	if got := ledger.Len(); got != 4 {
		t.Fatalf("expected 4 entries before GC, got %d", got)
	}

	ledger.GarbageCollect(start.Add(6 * time.Minute))
	if got := ledger.Len(); got != 2 {
		t.Fatalf("expected 2 entries after GC, got %d", got)
	}
	if sum := ledger.Sum(KindMessage, "u2", start); sum != 1 {
		t.Fatalf("surviving entry lost: sum = %d", sum)
	}
	if sum := ledger.Sum(KindMessage, "u1", start.Add(-time.Hour)); sum != 0 {
		t.Fatalf("collected entry still visible: sum = %d", sum)
	}
}

func TestLedgerRetentionFloor(t *testing.T) {
	ledger := NewLedger(time.Second)
	start := time.Now()
	ledger.Record(KindMessage, "u1", "c1:u1", start, 1, EventRef{})

	// Retention is floored at DefaultRetention even when rules only need a
	// short window.
	ledger.GarbageCollect(start.Add(2 * time.Minute))
	if got := ledger.Len(); got != 2 {
		t.Fatalf("expected entries to survive a 2m sweep, got %d", got)
	}
}
