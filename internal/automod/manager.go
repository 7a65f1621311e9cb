package automod

import (
	"context"
	"sync"
	"time"

	"github.com/ZeppelinBot/Zeppelin-sub001/internal/modules/audit"
	"github.com/ZeppelinBot/Zeppelin-sub001/internal/queue"
	"github.com/ZeppelinBot/Zeppelin-sub001/internal/rules"

	"go.uber.org/zap"
)

// DefaultGCInterval is how often each guild's ledger and grace tracker are
// swept.
const DefaultGCInterval = time.Minute

// Manager owns the per-guild engines and queues: it creates them when a
// guild loads, routes events onto the guild's queue, and tears everything
// down (GC timer included) on unload. Guilds are fully independent; only
// ordering within one guild is guaranteed.
type Manager struct {
	resolver    InviteResolver
	exec        Executor
	audit       *audit.Logger
	logger      *zap.Logger
	taskTimeout time.Duration
	gcInterval  time.Duration

	mu     sync.Mutex
	guilds map[string]*tenant
}

type tenant struct {
	engine *Engine
	queue  *queue.Queue
	stopGC chan struct{}
}

func NewManager(resolver InviteResolver, exec Executor, auditLogger *audit.Logger, logger *zap.Logger, taskTimeout time.Duration) *Manager {
	return &Manager{
		resolver:    resolver,
		exec:        exec,
		audit:       auditLogger,
		logger:      logger,
		taskTimeout: taskTimeout,
		gcInterval:  DefaultGCInterval,
		guilds:      make(map[string]*tenant),
	}
}

// SetGCInterval overrides the sweep interval (useful for tests).
func (m *Manager) SetGCInterval(d time.Duration) {
	m.gcInterval = d
}

// Load creates the guild's engine and queue. Loading an already-loaded guild
// replaces its state wholesale (config reload semantics): the old queue is
// drained-and-dropped and a fresh engine starts with empty ledgers.
func (m *Manager) Load(guildID string, ruleList []rules.Rule) {
	engine := NewEngine(guildID, ruleList, m.resolver, m.exec, m.audit, m.logger)
	t := &tenant{
		engine: engine,
		queue:  queue.New("automod:"+guildID, m.taskTimeout, m.logger),
		stopGC: make(chan struct{}),
	}
	go m.runGC(t)

	m.mu.Lock()
	old := m.guilds[guildID]
	m.guilds[guildID] = t
	m.mu.Unlock()

	if old != nil {
		m.teardown(old)
	}
	m.logger.Info("guild automod loaded",
		zap.String("guild_id", guildID),
		zap.Int("rules", len(ruleList)))
}

// Unload removes the guild and cancels its timers. Pending events are
// dropped; an event mid-evaluation finishes.
func (m *Manager) Unload(guildID string) {
	m.mu.Lock()
	t := m.guilds[guildID]
	delete(m.guilds, guildID)
	m.mu.Unlock()

	if t == nil {
		return
	}
	m.teardown(t)
	m.logger.Info("guild automod unloaded", zap.String("guild_id", guildID))
}

// Handle enqueues an event for its guild. Events for unloaded guilds are
// dropped. The returned handle closes when evaluation finishes or times out;
// ok is false when the event was not accepted.
func (m *Manager) Handle(ev *Event) (<-chan struct{}, bool) {
	m.mu.Lock()
	t := m.guilds[ev.GuildID]
	m.mu.Unlock()

	if t == nil {
		return nil, false
	}
	return t.queue.Enqueue(func(ctx context.Context) {
		t.engine.Process(ctx, ev)
	})
}

// Engine returns the guild's engine, nil when not loaded. For tests and
// introspection.
func (m *Manager) Engine(guildID string) *Engine {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t := m.guilds[guildID]; t != nil {
		return t.engine
	}
	return nil
}

// Close unloads every guild.
func (m *Manager) Close() {
	m.mu.Lock()
	guilds := m.guilds
	m.guilds = make(map[string]*tenant)
	m.mu.Unlock()

	for guildID, t := range guilds {
		m.teardown(t)
		m.logger.Info("guild automod unloaded", zap.String("guild_id", guildID))
	}
}

func (m *Manager) teardown(t *tenant) {
	close(t.stopGC)
	t.queue.Close()
}

func (m *Manager) runGC(t *tenant) {
	ticker := time.NewTicker(m.gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopGC:
			return
		case now := <-ticker.C:
			t.engine.GC(now)
		}
	}
}
