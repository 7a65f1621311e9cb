package automod

import (
	"sync"
	"time"
)

// MaxGracePeriod caps suppression so a misconfigured window cannot lock a
// scope out of the action pipeline for long.
const MaxGracePeriod = 5 * time.Minute

type graceKey struct {
	key  string
	kind CountableKind
}

// GraceTracker suppresses re-firing of an already-matched rate trigger while
// its action propagates. At most one live entry exists per (key, kind);
// suppressing again refreshes the expiry.
type GraceTracker struct {
	mu      sync.Mutex
	expires map[graceKey]time.Time
}

func NewGraceTracker() *GraceTracker {
	return &GraceTracker{expires: make(map[graceKey]time.Time)}
}

func (g *GraceTracker) IsSuppressed(key string, kind CountableKind, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	k := graceKey{key: key, kind: kind}
	expires, ok := g.expires[k]
	if !ok {
		return false
	}
	if !expires.After(now) {
		delete(g.expires, k)
		return false
	}
	return true
}

func (g *GraceTracker) Suppress(key string, kind CountableKind, now time.Time, duration time.Duration) {
	if duration > MaxGracePeriod {
		duration = MaxGracePeriod
	}
	if duration <= 0 {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.expires[graceKey{key: key, kind: kind}] = now.Add(duration)
}

func (g *GraceTracker) Sweep(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for k, expires := range g.expires {
		if !expires.After(now) {
			delete(g.expires, k)
		}
	}
}
