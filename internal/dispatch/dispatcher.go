// Package dispatch fans engine lifecycle events out to the side-effect
// surfaces: the durable history store, the audit log, Redis channels and
// streams, the best-price mirror, and operator notifications. Every sink is
// optional, every sink failure is logged and contained, and nothing here
// feeds back into the engine.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/surebetbot/internal/domain"
)

// Pub/sub channels mirrored to websocket clients by the hub.
const (
	ChannelOpportunity = "ch:opportunity"
	ChannelPrices      = "ch:prices"
	ChannelHistory     = "ch:history"
	ChannelStats       = "ch:stats"
)

const (
	DefaultOpportunityStream = "stream:opportunities"
	DefaultNotifyDedupTTL    = 10 * time.Minute
	DefaultStatsInterval     = 15 * time.Second

	cleanupInterval = 30 * time.Second
	drainTimeout    = 5 * time.Second
)

// Notifier delivers operator alerts. Implemented by notify.Notifier.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// StatsSource supplies the periodic stats broadcast. Implemented by the
// engine.
type StatsSource interface {
	Stats() domain.EngineStats
}

// Config carries the dispatcher's tunables. Zero values fall back to the
// defaults above.
type Config struct {
	// NotifyDedupTTL is the window within which repeat alerts for one event
	// key are suppressed.
	NotifyDedupTTL time.Duration
	// StatsInterval is the period of the stats broadcast.
	StatsInterval time.Duration
	// OpportunityStream is the durable Redis stream for detected books.
	OpportunityStream string
}

func (c Config) withDefaults() Config {
	if c.NotifyDedupTTL <= 0 {
		c.NotifyDedupTTL = DefaultNotifyDedupTTL
	}
	if c.StatsInterval <= 0 {
		c.StatsInterval = DefaultStatsInterval
	}
	if c.OpportunityStream == "" {
		c.OpportunityStream = DefaultOpportunityStream
	}
	return c
}

// Dispatcher reads engine events from a channel and applies them to each
// wired sink. Sinks left unset are skipped.
type Dispatcher struct {
	events <-chan domain.EngineEvent
	cfg    Config
	logger *slog.Logger

	history  domain.HistoryStore
	audit    domain.AuditStore
	bus      domain.SignalBus
	best     domain.BestPriceCache
	notifier Notifier
	stats    StatsSource

	dedup *Dedup
}

// New creates a Dispatcher reading from events. Wire sinks with the Set
// methods before calling Run.
func New(events <-chan domain.EngineEvent, cfg Config, logger *slog.Logger) *Dispatcher {
	cfg = cfg.withDefaults()
	return &Dispatcher{
		events: events,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "dispatcher")),
		dedup:  NewDedup(cfg.NotifyDedupTTL),
	}
}

// SetPersistence wires the durable history archive and the audit log.
func (d *Dispatcher) SetPersistence(history domain.HistoryStore, audit domain.AuditStore) {
	d.history = history
	d.audit = audit
}

// SetBus wires the pub/sub and stream fan-out.
func (d *Dispatcher) SetBus(bus domain.SignalBus) { d.bus = bus }

// SetBestMirror wires the external best-price mirror.
func (d *Dispatcher) SetBestMirror(best domain.BestPriceCache) { d.best = best }

// SetNotifier wires operator alerting.
func (d *Dispatcher) SetNotifier(n Notifier) { d.notifier = n }

// SetStatsSource enables the periodic stats broadcast.
func (d *Dispatcher) SetStatsSource(s StatsSource) { d.stats = s }

// Run consumes events until the context is cancelled or the engine closes
// the stream. On cancellation it keeps reading until the stream closes, so
// the engine's own shutdown drain is fully flushed.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("dispatcher started")
	defer d.logger.Info("dispatcher stopped")

	statsTick := time.NewTicker(d.cfg.StatsInterval)
	defer statsTick.Stop()
	cleanupTick := time.NewTicker(cleanupInterval)
	defer cleanupTick.Stop()

	for {
		select {
		case <-ctx.Done():
			d.drain()
			return ctx.Err()

		case ev, ok := <-d.events:
			if !ok {
				return nil
			}
			d.handle(ctx, ev)

		case <-statsTick.C:
			d.publishStats(ctx)

		case <-cleanupTick.C:
			d.dedup.Cleanup()
		}
	}
}

// drain keeps handling events until the engine closes the stream, bounded
// so shutdown cannot hang on a stuck sink.
func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	for {
		select {
		case ev, ok := <-d.events:
			if !ok {
				return
			}
			d.handle(ctx, ev)
		case <-ctx.Done():
			d.logger.Warn("drain timed out with events pending")
			return
		}
	}
}

// handle applies one event to every wired sink.
func (d *Dispatcher) handle(ctx context.Context, ev domain.EngineEvent) {
	switch ev.Type {
	case domain.EventOpportunityCreated:
		d.publish(ctx, ChannelOpportunity, ev)
		d.stream(ctx, ev)
		d.notify(ctx, ev)

	case domain.EventOpportunityRefreshed:
		d.publish(ctx, ChannelOpportunity, ev)

	case domain.EventOpportunitySuperseded:
		// Carries both the closed book and its replacement.
		d.record(ctx, ev)
		d.publish(ctx, ChannelOpportunity, ev)
		d.stream(ctx, ev)
		d.notify(ctx, ev)

	case domain.EventOpportunityExpired, domain.EventOpportunityInvalidated:
		d.record(ctx, ev)
		d.publish(ctx, ChannelOpportunity, ev)

	case domain.EventPricesUpdated:
		if d.best != nil && ev.Best != nil {
			if err := d.best.SetBest(ctx, *ev.Best); err != nil {
				d.logger.Warn("best-price mirror write failed",
					slog.String("event_key", string(ev.Key)),
					slog.String("error", err.Error()),
				)
			}
		}
		d.publish(ctx, ChannelPrices, ev)

	case domain.EventPricesRemoved:
		if d.best != nil {
			if err := d.best.Invalidate(ctx, ev.Key); err != nil {
				d.logger.Warn("best-price mirror invalidate failed",
					slog.String("event_key", string(ev.Key)),
					slog.String("error", err.Error()),
				)
			}
		}
		d.publish(ctx, ChannelPrices, ev)
	}
}

// record archives a closed opportunity: durable insert, audit row, and the
// history channel.
func (d *Dispatcher) record(ctx context.Context, ev domain.EngineEvent) {
	if ev.History == nil {
		return
	}
	entry := *ev.History

	if d.history != nil {
		if err := d.history.Insert(ctx, entry); err != nil {
			d.logger.Error("history insert failed",
				slog.String("opportunity_id", entry.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if d.audit != nil {
		detail := map[string]any{
			"opportunityId": entry.ID,
			"eventKey":      string(entry.EventKey),
			"reason":        string(entry.Reason),
			"profitPercent": entry.ProfitPercent,
		}
		if err := d.audit.Log(ctx, string(ev.Type), detail); err != nil {
			d.logger.Warn("audit log failed", slog.String("error", err.Error()))
		}
	}

	d.publishJSON(ctx, ChannelHistory, entry)
}

// publish sends the full event envelope on a pub/sub channel.
func (d *Dispatcher) publish(ctx context.Context, channel string, ev domain.EngineEvent) {
	d.publishJSON(ctx, channel, ev)
}

func (d *Dispatcher) publishJSON(ctx context.Context, channel string, v any) {
	if d.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		d.logger.Error("payload marshal failed", slog.String("channel", channel), slog.String("error", err.Error()))
		return
	}
	if err := d.bus.Publish(ctx, channel, payload); err != nil {
		d.logger.Warn("publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

// stream appends the event to the durable opportunity stream.
func (d *Dispatcher) stream(ctx context.Context, ev domain.EngineEvent) {
	if d.bus == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		d.logger.Error("payload marshal failed", slog.String("error", err.Error()))
		return
	}
	if err := d.bus.StreamAppend(ctx, d.cfg.OpportunityStream, payload); err != nil {
		d.logger.Warn("stream append failed",
			slog.String("stream", d.cfg.OpportunityStream),
			slog.String("error", err.Error()),
		)
	}
}

// notify sends an operator alert for a fresh book, suppressing repeats for
// the same event key inside the dedup window.
func (d *Dispatcher) notify(ctx context.Context, ev domain.EngineEvent) {
	if d.notifier == nil || ev.Opportunity == nil {
		return
	}
	if d.dedup.IsDuplicate(string(ev.Key)) {
		d.logger.Debug("notification suppressed",
			slog.String("event_key", string(ev.Key)),
		)
		return
	}

	opp := ev.Opportunity
	title := fmt.Sprintf("Arbitrage %.2f%%: %s vs %s", opp.ProfitPercent, opp.SideA, opp.SideB)
	if err := d.notifier.Notify(ctx, string(ev.Type), title, formatLegs(opp)); err != nil {
		d.logger.Warn("notification failed", slog.String("error", err.Error()))
	}
}

func formatLegs(opp *domain.Opportunity) string {
	var b strings.Builder
	for _, leg := range opp.Legs {
		fmt.Fprintf(&b, "%s: %s @ %.2f, stake %.1f%%\n", leg.Outcome, leg.Source, leg.Price, leg.Stake*100)
	}
	fmt.Fprintf(&b, "payout %.4f per unit, expires %s", opp.Payout, opp.ExpiresAt.UTC().Format(time.RFC3339))
	return b.String()
}

// publishStats broadcasts an engine stats snapshot.
func (d *Dispatcher) publishStats(ctx context.Context) {
	if d.stats == nil || d.bus == nil {
		return
	}
	d.publishJSON(ctx, ChannelStats, d.stats.Stats())
}
