// Package gate implements per-actor admission control for inbound bot events.
// Every actor-originated event passes through Admit before any handler work:
// events arriving faster than a per-kind minimum interval are softly rejected,
// a rolling 60-second ceiling limits total throughput, and repeated ceiling
// violations escalate through warnings into a temporary suspension.
//
// Gate state is held entirely in memory. A process restart unbans everyone,
// which is an accepted trade-off: the gate is a liveness safeguard, not an
// audit trail.
package gate

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"mangabot/internal/models"
)

// window is the span of the rolling per-minute ceiling.
const window = time.Minute

// Kind tags the two event classes that carry separate minimum intervals.
type Kind int

const (
	KindMessage Kind = iota
	KindCallback

	kindCount
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindCallback:
		return "callback"
	default:
		return "unknown"
	}
}

// ParseKind converts a wire name into a Kind.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "message":
		return KindMessage, true
	case "callback":
		return KindCallback, true
	default:
		return 0, false
	}
}

// Verdict classifies an admission decision.
type Verdict int

const (
	VerdictAllow Verdict = iota
	VerdictIntervalRejected
	VerdictRateLimited
	VerdictSuspended
)

// String returns the wire name of the verdict.
func (v Verdict) String() string {
	switch v {
	case VerdictAllow:
		return "allow"
	case VerdictIntervalRejected:
		return "interval_rejected"
	case VerdictRateLimited:
		return "rate_limited"
	case VerdictSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// Decision is the outcome of one admission check. RetryAfter is how long the
// caller should wait before reconsidering events from this actor; it is zero
// when the event is allowed.
type Decision struct {
	Verdict    Verdict
	RetryAfter time.Duration
}

// Allowed reports whether the event may proceed to handler logic.
func (d Decision) Allowed() bool {
	return d.Verdict == VerdictAllow
}

// Admitter is the admission contract. Implementations must be safe for
// concurrent use and total: every call returns a Decision, never an error.
type Admitter interface {
	Admit(actorID int64, kind Kind) Decision
}

// actorState tracks one actor. All fields are guarded by mu. The invariant
// maintained by decide is that warnings is always zero while suspendedUntil
// is set: entering suspension resets the warning count, and an expired
// suspension clears both together.
type actorState struct {
	mu   sync.Mutex
	gone bool // set under the registry lock when pruned; holders must re-fetch

	lastByKind     [kindCount]time.Time
	window         []time.Time
	warnings       int
	suspendedUntil time.Time
	lastSeen       time.Time
}

// Gate is an in-memory admission controller keyed by actor. A background
// goroutine periodically prunes actors that have been idle longer than the
// configured grace period; suspended actors are never pruned.
type Gate struct {
	cfg models.GateConfig
	clk clock.Clock

	mu     sync.Mutex
	actors map[int64]*actorState
	done   chan struct{}
	closed bool
}

// Option configures optional Gate behavior.
type Option func(*Gate)

// WithClock substitutes the time source, used by tests to drive the gate
// with a mock clock.
func WithClock(clk clock.Clock) Option {
	return func(g *Gate) {
		g.clk = clk
	}
}

// New creates a gate with the given configuration and starts the background
// pruning goroutine. Callers must Close the gate to stop it.
func New(cfg models.GateConfig, opts ...Option) *Gate {
	g := &Gate{
		cfg:    cfg,
		clk:    clock.New(),
		actors: make(map[int64]*actorState),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	go g.pruneLoop()
	return g
}

// Admit runs the admission check for one event. Steps 1-4 (suspension,
// interval, ceiling, record) execute atomically per actor; different actors
// never block each other beyond the brief registry lookup.
func (g *Gate) Admit(actorID int64, kind Kind) Decision {
	now := g.clk.Now()
	for {
		st := g.lookup(actorID)
		st.mu.Lock()
		if st.gone {
			// Lost a race with the pruner; the registry entry was dropped
			// after we fetched it. Fetch a fresh one.
			st.mu.Unlock()
			continue
		}
		d := g.decide(st, kind, now)
		st.mu.Unlock()
		return d
	}
}

// ActorCount returns the number of tracked actors.
func (g *Gate) ActorCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.actors)
}

// Close stops the background pruning goroutine. Safe to call more than once.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.closed {
		g.closed = true
		close(g.done)
	}
}

// lookup returns the state for an actor, registering it on first sight.
func (g *Gate) lookup(actorID int64) *actorState {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.actors[actorID]
	if !ok {
		st = &actorState{}
		g.actors[actorID] = st
	}
	return st
}

// interval returns the minimum spacing for an event kind.
func (g *Gate) interval(kind Kind) time.Duration {
	if kind == KindCallback {
		return g.cfg.CallbackInterval
	}
	return g.cfg.MessageInterval
}

// decide evaluates one event against the actor's state. Caller holds st.mu.
func (g *Gate) decide(st *actorState, kind Kind, now time.Time) Decision {
	st.lastSeen = now

	// An active suspension rejects everything without further accounting.
	// An expired one clears on the actor's next event.
	if !st.suspendedUntil.IsZero() {
		if now.Before(st.suspendedUntil) {
			return Decision{Verdict: VerdictSuspended, RetryAfter: st.suspendedUntil.Sub(now)}
		}
		st.suspendedUntil = time.Time{}
		st.warnings = 0
	}

	// Soft per-event throttle, checked before the rolling ceiling so a rapid
	// double-send cannot also count against the window or raise a warning.
	if min := g.interval(kind); min > 0 {
		if last := st.lastByKind[kind]; !last.IsZero() {
			if elapsed := now.Sub(last); elapsed < min {
				return Decision{Verdict: VerdictIntervalRejected, RetryAfter: min - elapsed}
			}
		}
	}

	// Rolling ceiling: admitted events in the trailing window, oldest first.
	cutoff := now.Add(-window)
	st.window = trimBefore(st.window, cutoff)
	if len(st.window) >= g.cfg.MaxPerMinute {
		st.warnings++
		if st.warnings >= g.cfg.WarnThreshold {
			st.suspendedUntil = now.Add(g.cfg.BanDuration)
			st.warnings = 0
			return Decision{Verdict: VerdictSuspended, RetryAfter: g.cfg.BanDuration}
		}
		oldest := st.window[0]
		return Decision{Verdict: VerdictRateLimited, RetryAfter: oldest.Add(window).Sub(now)}
	}

	st.window = append(st.window, now)
	st.lastByKind[kind] = now
	return Decision{Verdict: VerdictAllow}
}

// trimBefore drops timestamps at or before the cutoff. The slice is ordered,
// so this is a prefix cut.
func trimBefore(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0], ts[i:]...)
}

// pruneLoop periodically evicts idle actors until Close is called.
func (g *Gate) pruneLoop() {
	ticker := g.clk.Ticker(g.cfg.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-g.done:
			return
		case <-ticker.C:
			g.prune()
		}
	}
}

// prune removes actors idle longer than the grace period. Actors under an
// active suspension are kept regardless of idleness so that a ban cannot be
// shed by going quiet.
func (g *Gate) prune() {
	now := g.clk.Now()
	cutoff := now.Add(-g.cfg.IdleGrace)

	g.mu.Lock()
	defer g.mu.Unlock()
	for id, st := range g.actors {
		st.mu.Lock()
		idle := st.lastSeen.Before(cutoff)
		suspended := now.Before(st.suspendedUntil)
		if idle && !suspended {
			st.gone = true
			delete(g.actors, id)
		}
		st.mu.Unlock()
	}
}
