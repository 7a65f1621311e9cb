package automod

import (
	"context"
	"time"

	"github.com/ZeppelinBot/Zeppelin-sub001/internal/modules/audit"
	"github.com/ZeppelinBot/Zeppelin-sub001/internal/rules"

	"go.uber.org/zap"
)

// Engine runs the evaluation pass for one guild. All calls to Process happen
// on the guild's serializing queue; only the GC timer touches the ledger and
// grace tracker from outside.
type Engine struct {
	guildID    string
	rules      []rules.Rule
	ledger     *Ledger
	grace      *GraceTracker
	matcher    *Matcher
	dispatcher *Dispatcher
	audit      *audit.Logger
	clock      Clock
	logger     *zap.Logger
}

func NewEngine(guildID string, ruleList []rules.Rule, resolver InviteResolver, exec Executor, auditLogger *audit.Logger, logger *zap.Logger) *Engine {
	retention := DefaultRetention
	for i := range ruleList {
		if w := ruleList[i].MaxWindow(); w > retention {
			retention = w
		}
	}

	ledger := NewLedger(retention)
	engine := &Engine{
		guildID:    guildID,
		rules:      ruleList,
		ledger:     ledger,
		grace:      NewGraceTracker(),
		matcher:    NewMatcher(ledger, resolver, logger),
		dispatcher: NewDispatcher(exec, auditLogger, logger),
		audit:      auditLogger,
		clock:      realClock{},
		logger:     logger,
	}
	return engine
}

func (e *Engine) WithClock(clock Clock) {
	e.clock = clock
	e.matcher.WithClock(clock)
}

// Process evaluates one event: countable facts are recorded first,
// unconditionally, so every rule's rate windows see this event; then rules
// run in configured order and the first match fires the action pipeline.
func (e *Engine) Process(ctx context.Context, ev *Event) {
	now := e.clock.Now()
	e.recordCountables(ev, now)

	for i := range e.rules {
		rule := &e.rules[i]
		if !rule.IsEnabled() {
			continue
		}

		match := e.matcher.Match(ctx, ev, rule)
		if match == nil {
			continue
		}

		if match.Type == MatchRate && e.grace.IsSuppressed(match.ScopeKey, match.Kind, now) {
			// The trigger already fired for this scope; auto-handle the
			// echo without re-running the pipeline.
			if rule.Actions.Clean {
				e.dispatcher.CleanEcho(ctx, ev, rule)
			}
			e.audit.LogSuppressed(ctx, e.guildID, ev.AuthorID, rule.Name, match.Summary)
			return
		}

		e.audit.LogMatch(ctx, e.guildID, ev.AuthorID, rule.Name, match.Summary)
		e.dispatcher.Apply(ctx, ev, rule, match)

		if match.Type == MatchRate {
			e.grace.Suppress(match.ScopeKey, match.Kind, now, match.Within)
		}
		return
	}
}

func (e *Engine) recordCountables(ev *Event, now time.Time) {
	counts := ev.Countables()
	if len(counts) == 0 {
		return
	}

	globalKey := GlobalScopeKey(ev.AuthorID)
	channelKey := ChannelScopeKey(ev.ChannelID, ev.AuthorID)
	ref := ev.Ref()
	for kind := CountableKind(0); kind < kindCount; kind++ {
		if count, ok := counts[kind]; ok {
			e.ledger.Record(kind, globalKey, channelKey, now, count, ref)
		}
	}
}

// GC sweeps the ledger and grace tracker. Called from the manager's periodic
// timer, concurrently with Process.
func (e *Engine) GC(now time.Time) {
	e.ledger.GarbageCollect(now)
	e.grace.Sweep(now)
}

// Ledger exposes the guild's ledger for tests.
func (e *Engine) Ledger() *Ledger { return e.ledger }
