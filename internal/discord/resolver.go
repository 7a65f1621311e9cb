package discord

import (
	"context"
	"sync"
	"time"

	"github.com/ZeppelinBot/Zeppelin-sub001/internal/automod"

	"github.com/bwmarrin/discordgo"
)

// InviteCacheTTL bounds how long a resolution result (success or failure)
// is reused, so the matcher does not issue one lookup per message.
const InviteCacheTTL = 10 * time.Minute

// Resolver looks up invite codes over the Discord REST API.
type Resolver struct {
	session *discordgo.Session
}

func NewResolver(session *discordgo.Session) *Resolver {
	return &Resolver{session: session}
}

func (r *Resolver) Resolve(ctx context.Context, code string) (*automod.ResolvedInvite, error) {
	invite, err := r.session.Invite(code)
	if err != nil {
		return nil, err
	}

	resolved := &automod.ResolvedInvite{Code: code}
	if invite.Guild != nil {
		resolved.GuildID = invite.Guild.ID
	} else {
		resolved.GroupDM = true
	}
	return resolved, nil
}

type cacheEntry struct {
	invite  *automod.ResolvedInvite
	err     error
	expires time.Time
}

// CachedResolver memoizes another resolver's results for InviteCacheTTL.
// Failures are cached too: a code that just failed to resolve will fail the
// same way for every message in the burst.
type CachedResolver struct {
	inner automod.InviteResolver
	clock func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

func NewCachedResolver(inner automod.InviteResolver) *CachedResolver {
	return &CachedResolver{
		inner:   inner,
		clock:   time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func (c *CachedResolver) Resolve(ctx context.Context, code string) (*automod.ResolvedInvite, error) {
	now := c.clock()

	c.mu.Lock()
	entry, ok := c.entries[code]
	c.mu.Unlock()
	if ok && entry.expires.After(now) {
		return entry.invite, entry.err
	}

	invite, err := c.inner.Resolve(ctx, code)

	c.mu.Lock()
	c.entries[code] = cacheEntry{invite: invite, err: err, expires: now.Add(InviteCacheTTL)}
	// Opportunistic sweep so the cache does not grow with dead codes.
	for key, e := range c.entries {
		if !e.expires.After(now) {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()

	return invite, err
}
