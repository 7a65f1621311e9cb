package automod

import (
	"sync"
	"time"
)

// LedgerEntry is one countable fact recorded for a scope key.
type LedgerEntry struct {
	Kind     CountableKind
	ScopeKey string
	At       time.Time
	Count    uint
	Ref      EventRef
}

type ledgerKey struct {
	kind CountableKind
	key  string
}

// Ledger is the append-only record of recent countable events for one guild,
// indexed by (kind, scopeKey) so window queries scan only that scope's
// entries. Writes happen on the guild's serializing queue; the mutex exists
// because the GC sweep runs on its own timer.
type Ledger struct {
	mu        sync.Mutex
	entries   map[ledgerKey][]LedgerEntry
	retention time.Duration
}

// DefaultRetention is the GC ceiling when no rule needs a longer window.
const DefaultRetention = 5 * time.Minute

func NewLedger(retention time.Duration) *Ledger {
	if retention < DefaultRetention {
		retention = DefaultRetention
	}
	return &Ledger{
		entries:   make(map[ledgerKey][]LedgerEntry),
		retention: retention,
	}
}

// Record appends a global-scoped and a channel-scoped entry for the fact, so
// either scoping can be queried later without reprocessing.
func (l *Ledger) Record(kind CountableKind, globalKey, channelKey string, at time.Time, count uint, ref EventRef) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, scopeKey := range [2]string{globalKey, channelKey} {
		k := ledgerKey{kind: kind, key: scopeKey}
		l.entries[k] = append(l.entries[k], LedgerEntry{
			Kind:     kind,
			ScopeKey: scopeKey,
			At:       at,
			Count:    count,
			Ref:      ref,
		})
	}
}

// Query returns the scope's entries with At >= since, in insertion order.
func (l *Ledger) Query(kind CountableKind, scopeKey string, since time.Time) []LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := l.entries[ledgerKey{kind: kind, key: scopeKey}]
	var out []LedgerEntry
	for _, entry := range entries {
		if entry.At.Before(since) {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// Sum aggregates Count over the same filter as Query.
func (l *Ledger) Sum(kind CountableKind, scopeKey string, since time.Time) uint {
	l.mu.Lock()
	defer l.mu.Unlock()

	var total uint
	for _, entry := range l.entries[ledgerKey{kind: kind, key: scopeKey}] {
		if entry.At.Before(since) {
			continue
		}
		total += entry.Count
	}
	return total
}

// GarbageCollect drops entries older than the retention ceiling. Entries are
// appended in time order, so each scope trims a prefix.
func (l *Ledger) GarbageCollect(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.retention)
	for key, entries := range l.entries {
		idx := 0
		for _, entry := range entries {
			if entry.At.After(cutoff) {
				break
			}
			idx++
		}
		if idx == len(entries) {
			delete(l.entries, key)
			continue
		}
		if idx > 0 {
			l.entries[key] = entries[idx:]
		}
	}
}

// Len reports the total number of live entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	total := 0
	for _, entries := range l.entries {
		total += len(entries)
	}
	return total
}
