// Package engine owns the live state of the odds comparison core: event
// groups keyed by canonical identity, the best-price view derived from them,
// the active opportunity set, and the bounded history of closed
// opportunities. A single Run loop applies every mutation, so per-identity
// ordering needs no further coordination; readers copy state out under a
// read lock.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/surebetbot/internal/arbitrage"
	"github.com/alanyoungcy/surebetbot/internal/domain"
	"github.com/alanyoungcy/surebetbot/internal/resolve"
	"github.com/google/uuid"
)

const (
	DefaultMinProfitPercent = 0.5
	DefaultOpportunityTTL   = 30 * time.Minute
	DefaultMaxHistory       = 1000
	DefaultStalenessWindow  = 15 * time.Minute
	DefaultSweepInterval    = 30 * time.Second
	DefaultQueueSize        = 512
	DefaultRateWindow       = 1000
	DefaultIdentityTTL      = 24 * time.Hour

	updateBuffer = 256
)

// Config carries the engine's tunables. Zero values fall back to the
// defaults above.
type Config struct {
	// MinProfitPercent is the profit floor an opportunity must clear.
	MinProfitPercent float64
	// OpportunityTTL is how long an opportunity stays active without a
	// confirming recomputation.
	OpportunityTTL time.Duration
	// MaxHistory caps the closed-opportunity ring.
	MaxHistory int
	// StalenessWindow bounds how long a quote may go unrefreshed before the
	// sweep evicts it.
	StalenessWindow time.Duration
	// SweepInterval is the period of the staleness/expiry sweep.
	SweepInterval time.Duration
	// QueueSize is the ingress buffer between Submit and the run loop.
	QueueSize int
	// RateWindow is how many recent receipt times are kept for the
	// quotes-per-minute figure.
	RateWindow int
	// IdentityTTL is how long an unseen team or event identity is kept in
	// the resolver registry. Must exceed StalenessWindow so live quotes
	// never lose their identity.
	IdentityTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.MinProfitPercent <= 0 {
		c.MinProfitPercent = DefaultMinProfitPercent
	}
	if c.OpportunityTTL <= 0 {
		c.OpportunityTTL = DefaultOpportunityTTL
	}
	if c.MaxHistory <= 0 {
		c.MaxHistory = DefaultMaxHistory
	}
	if c.StalenessWindow <= 0 {
		c.StalenessWindow = DefaultStalenessWindow
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.RateWindow <= 0 {
		c.RateWindow = DefaultRateWindow
	}
	if c.IdentityTTL <= c.StalenessWindow {
		c.IdentityTTL = DefaultIdentityTTL
	}
	return c
}

// Engine is the odds comparison core. Construct with New, start the run
// loop with Run, feed it through Submit, and read state through the copy-out
// accessors. Lifecycle transitions stream on Updates.
type Engine struct {
	cfg      Config
	resolver *resolve.Resolver
	logger   *slog.Logger

	mu      sync.RWMutex
	groups  *groupStore
	active  map[domain.EventKey]*domain.Opportunity
	history *historyRing
	stats   *statsTracker

	ingress chan domain.PriceQuote
	updates chan domain.EngineEvent
	done    chan struct{}
	stop    sync.Once
}

// New creates an Engine around the given resolver. The resolver must not be
// shared with other goroutines; the engine serializes all access to it.
func New(cfg Config, resolver *resolve.Resolver, logger *slog.Logger) *Engine {
	cfg = cfg.withDefaults()
	now := time.Now().UTC()
	return &Engine{
		cfg:      cfg,
		resolver: resolver,
		logger:   logger.With(slog.String("component", "engine")),
		groups:   newGroupStore(),
		active:   make(map[domain.EventKey]*domain.Opportunity),
		history:  newHistoryRing(cfg.MaxHistory),
		stats:    newStatsTracker(now, cfg.RateWindow),
		ingress:  make(chan domain.PriceQuote, cfg.QueueSize),
		updates:  make(chan domain.EngineEvent, updateBuffer),
		done:     make(chan struct{}),
	}
}

// Updates returns the lifecycle event stream. The channel is closed once the
// run loop has drained after shutdown; the engine never blocks on it, events
// are dropped when the consumer falls behind.
func (e *Engine) Updates() <-chan domain.EngineEvent { return e.updates }

// Submit validates a quote and queues it for processing. A validation
// failure is returned to the caller immediately; an accepted quote is
// processed asynchronously by the run loop.
func (e *Engine) Submit(ctx context.Context, q domain.PriceQuote) error {
	now := time.Now().UTC()
	if q.ObservedAt.IsZero() {
		q.ObservedAt = now
	}
	if err := q.Validate(now); err != nil {
		e.mu.Lock()
		e.stats.recordRejected(q.Source)
		e.mu.Unlock()
		return fmt.Errorf("engine: submit: %w", err)
	}

	select {
	case <-e.done:
		return domain.ErrShutdown
	default:
	}

	select {
	case e.ingress <- q:
		return nil
	case <-e.done:
		return domain.ErrShutdown
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run is the engine's main loop. It processes quotes and periodic sweeps
// until the context is cancelled, then drains the queue, runs a final sweep,
// and closes the update stream.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine started",
		slog.Float64("min_profit_pct", e.cfg.MinProfitPercent),
		slog.Duration("opportunity_ttl", e.cfg.OpportunityTTL),
		slog.Duration("staleness_window", e.cfg.StalenessWindow),
		slog.Int("max_history", e.cfg.MaxHistory),
	)
	defer e.logger.Info("engine stopped")

	sweep := time.NewTicker(e.cfg.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return ctx.Err()

		case q := <-e.ingress:
			e.process(q, time.Now().UTC())

		case <-sweep.C:
			e.sweep(time.Now().UTC())
		}
	}
}

// shutdown stops intake, drains queued quotes, runs one last sweep so
// expiries land in history, and closes the update stream.
func (e *Engine) shutdown() {
	e.stop.Do(func() { close(e.done) })
	for {
		select {
		case q := <-e.ingress:
			e.process(q, time.Now().UTC())
		default:
			e.sweep(time.Now().UTC())
			close(e.updates)
			return
		}
	}
}

// process runs one quote through resolution, group insertion, and
// re-evaluation. now is explicit so tests drive the clock.
func (e *Engine) process(q domain.PriceQuote, now time.Time) {
	log := e.logger.With(
		slog.String("source", q.Source),
		slog.String("source_event_id", q.SourceEventID),
	)

	e.mu.Lock()

	// 1. Canonical identity.
	res, err := e.resolver.Resolve(q.OutcomeA, q.OutcomeB, now)
	if err != nil {
		e.stats.recordRejected(q.Source)
		e.mu.Unlock()
		log.Warn("quote rejected at resolution", slog.String("error", err.Error()))
		return
	}

	// 2. Insert, replacing this source's previous record for the identity.
	ins := e.groups.insert(res, q, now)
	e.stats.recordQuote(q.Source, now)

	var evs []domain.EngineEvent

	// 3. A reused source event id pulled a record out of another group;
	// that group's book has to be re-read too.
	if ins.movedFrom != nil {
		evs = append(evs, e.reprice(*ins.movedFrom, now)...)
	}

	// 4. Recompute this identity's best view and opportunity state.
	evs = append(evs, e.reprice(res.Key, now)...)

	drift := false
	if ins.relabeled && ins.prev != nil {
		drift = !pairSimilar(e.resolver, *ins.prev, q)
	}
	e.mu.Unlock()

	e.emit(evs...)

	if res.NewEvent {
		log.Info("new event registered",
			slog.String("event_key", string(res.Key)),
			slog.String("side_a", res.SideA),
			slog.String("side_b", res.SideB),
		)
	}
	if res.Fuzzy {
		log.Debug("fuzzy identity match",
			slog.String("event_key", string(res.Key)),
			slog.Float64("score", res.Score),
		)
	}
	if ins.relabeled {
		// Same source, same identity, new source event id. Routine when a
		// feed re-keys an event, suspect when the labels changed too.
		msg := "source re-keyed event"
		if drift {
			log.Warn(msg,
				slog.String("event_key", string(res.Key)),
				slog.String("prev_source_event_id", ins.prev.SourceEventID),
				slog.Bool("label_drift", true),
			)
		} else {
			log.Debug(msg,
				slog.String("event_key", string(res.Key)),
				slog.String("prev_source_event_id", ins.prev.SourceEventID),
			)
		}
	}
}

// pairSimilar reports whether two quotes' label pairs agree under the
// secondary similarity check, in either orientation.
func pairSimilar(r *resolve.Resolver, a, b domain.PriceQuote) bool {
	if r.Similar(a.OutcomeA, b.OutcomeA) && r.Similar(a.OutcomeB, b.OutcomeB) {
		return true
	}
	return r.Similar(a.OutcomeA, b.OutcomeB) && r.Similar(a.OutcomeB, b.OutcomeA)
}

// reprice recomputes one identity's best view and reconciles its active
// opportunity. Caller holds the write lock.
func (e *Engine) reprice(key domain.EventKey, now time.Time) []domain.EngineEvent {
	best, ok := e.groups.best(key)
	if !ok {
		evs := e.clearActive(key, domain.CloseReasonInvalidated, now)
		return append(evs, domain.EngineEvent{Type: domain.EventPricesRemoved, Key: key, At: now})
	}

	evs := []domain.EngineEvent{{Type: domain.EventPricesUpdated, Key: key, At: now, Best: &best}}

	cand, found := arbitrage.Evaluate(best, e.cfg.MinProfitPercent)
	cur, activeExists := e.active[key]
	if !found {
		if activeExists {
			evs = append(evs, e.clearActive(key, domain.CloseReasonInvalidated, now)...)
		}
		return evs
	}

	if activeExists {
		if cur.SameLegs(domain.Opportunity{Legs: cand.Legs}) {
			cur.UpdatedAt = now
			cur.ExpiresAt = now.Add(e.cfg.OpportunityTTL)
			cp := cloneOpportunity(*cur)
			return append(evs, domain.EngineEvent{
				Type: domain.EventOpportunityRefreshed, Key: key, At: now, Opportunity: &cp,
			})
		}

		// Legs changed: the old book is closed to history and a fresh
		// opportunity takes its place in the same transition.
		entry := e.close(cur, domain.CloseReasonSuperseded, now)
		opp := e.open(key, best, cand, now)
		cp := cloneOpportunity(opp)
		return append(evs, domain.EngineEvent{
			Type: domain.EventOpportunitySuperseded, Key: key, At: now, History: &entry, Opportunity: &cp,
		})
	}

	opp := e.open(key, best, cand, now)
	cp := cloneOpportunity(opp)
	return append(evs, domain.EngineEvent{
		Type: domain.EventOpportunityCreated, Key: key, At: now, Opportunity: &cp,
	})
}

// open creates and registers a new active opportunity from an evaluated
// candidate. Caller holds the write lock.
func (e *Engine) open(key domain.EventKey, best domain.BestPrices, cand arbitrage.Candidate, now time.Time) domain.Opportunity {
	legs := make([]domain.OpportunityLeg, len(cand.Legs))
	copy(legs, cand.Legs)
	opp := domain.Opportunity{
		ID:            uuid.New().String(),
		EventKey:      key,
		SideA:         best.SideA,
		SideB:         best.SideB,
		Legs:          legs,
		SumInverse:    cand.SumInverse,
		ProfitPercent: cand.ProfitPercent,
		Payout:        cand.Payout,
		CreatedAt:     now,
		UpdatedAt:     now,
		ExpiresAt:     now.Add(e.cfg.OpportunityTTL),
	}
	e.active[key] = &opp
	e.stats.recordFound()
	return opp
}

// close moves an active opportunity into history. Caller holds the write
// lock.
func (e *Engine) close(o *domain.Opportunity, reason domain.CloseReason, now time.Time) domain.HistoryEntry {
	delete(e.active, o.EventKey)
	entry := domain.HistoryEntry{
		Opportunity: cloneOpportunity(*o),
		ClosedAt:    now,
		Reason:      reason,
	}
	e.history.push(entry)
	return entry
}

// clearActive closes the identity's active opportunity, when one exists,
// and returns the matching lifecycle event. Caller holds the write lock.
func (e *Engine) clearActive(key domain.EventKey, reason domain.CloseReason, now time.Time) []domain.EngineEvent {
	cur, ok := e.active[key]
	if !ok {
		return nil
	}
	entry := e.close(cur, reason, now)

	typ := domain.EventOpportunityInvalidated
	if reason == domain.CloseReasonExpired {
		typ = domain.EventOpportunityExpired
	}
	return []domain.EngineEvent{{Type: typ, Key: key, At: now, History: &entry}}
}

// sweep evicts stale quotes, expires overdue opportunities, and prunes idle
// identities. now is explicit so tests drive the clock.
func (e *Engine) sweep(now time.Time) {
	e.mu.Lock()

	var evs []domain.EngineEvent

	// 1. Evict quotes unrefreshed past the staleness window and reconcile
	// every identity that lost a record.
	touched, evicted := e.groups.evictStale(now.Add(-e.cfg.StalenessWindow))
	for _, key := range touched {
		evs = append(evs, e.reprice(key, now)...)
	}

	// 2. Expire active opportunities past their TTL.
	var overdue []domain.EventKey
	for key, opp := range e.active {
		if opp.Expired(now) {
			overdue = append(overdue, key)
		}
	}
	sort.Slice(overdue, func(i, j int) bool { return overdue[i] < overdue[j] })
	for _, key := range overdue {
		evs = append(evs, e.clearActive(key, domain.CloseReasonExpired, now)...)
	}

	// 3. Prune identities unseen past the identity TTL. IdentityTTL exceeds
	// StalenessWindow, so anything pruned has no live quotes.
	teams, events := e.resolver.Prune(now.Add(-e.cfg.IdentityTTL))

	e.mu.Unlock()

	e.emit(evs...)

	if evicted > 0 || len(overdue) > 0 || teams > 0 || events > 0 {
		e.logger.Debug("sweep completed",
			slog.Int("quotes_evicted", evicted),
			slog.Int("opportunities_expired", len(overdue)),
			slog.Int("teams_pruned", teams),
			slog.Int("events_pruned", events),
		)
	}
}

// emit forwards lifecycle events without ever blocking the run loop.
func (e *Engine) emit(evs ...domain.EngineEvent) {
	for _, ev := range evs {
		select {
		case e.updates <- ev:
		default:
			e.logger.Warn("update stream full, event dropped",
				slog.String("type", string(ev.Type)),
				slog.String("event_key", string(ev.Key)),
			)
		}
	}
}

// ActiveOpportunities returns the active set ordered most profitable first.
func (e *Engine) ActiveOpportunities() []domain.Opportunity {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]domain.Opportunity, 0, len(e.active))
	for _, o := range e.active {
		out = append(out, cloneOpportunity(*o))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProfitPercent != out[j].ProfitPercent {
			return out[i].ProfitPercent > out[j].ProfitPercent
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// History returns up to limit closed opportunities, newest first. limit <= 0
// returns everything retained.
func (e *Engine) History(limit int) []domain.HistoryEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.history.recent(limit)
}

// Stats reports counters and derived figures for the status surface.
func (e *Engine) Stats() domain.EngineStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats.snapshot(
		time.Now().UTC(),
		e.groups.len(),
		e.resolver.KnownTeams(),
		e.resolver.FuzzyMatches(),
		len(e.active),
		e.history.len(),
	)
}

// Events lists every live event group, most recently updated first.
func (e *Engine) Events() []domain.EventSummary {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.groups.summaries()
}

// Event returns one group's detail view including its live quotes.
func (e *Engine) Event(key domain.EventKey) (domain.EventSummary, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	sum, ok := e.groups.summary(key, true)
	if !ok {
		return domain.EventSummary{}, fmt.Errorf("engine: event %s: %w", key, domain.ErrNotFound)
	}
	return sum, nil
}

func cloneOpportunity(o domain.Opportunity) domain.Opportunity {
	legs := make([]domain.OpportunityLeg, len(o.Legs))
	copy(legs, o.Legs)
	o.Legs = legs
	return o
}
