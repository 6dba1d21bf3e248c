package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/surebetbot/internal/dispatch"
	"github.com/alanyoungcy/surebetbot/internal/engine"
	"github.com/alanyoungcy/surebetbot/internal/feed"
	"github.com/alanyoungcy/surebetbot/internal/resolve"
	"github.com/alanyoungcy/surebetbot/internal/server"
	"github.com/alanyoungcy/surebetbot/internal/server/handler"
	"github.com/alanyoungcy/surebetbot/internal/server/middleware"
	"github.com/alanyoungcy/surebetbot/internal/server/ws"
	"github.com/alanyoungcy/surebetbot/internal/service"
)

// AllMode runs the full deployment: detection engine, dispatcher fan-out,
// HTTP/WS API, stream ingest, and the snapshot and archival schedulers.
func (a *App) AllMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting all mode")

	g, ctx := errgroup.WithContext(ctx)

	eng, err := a.buildEngine()
	if err != nil {
		return fmt.Errorf("all mode: %w", err)
	}
	disp := a.buildDispatcher(eng, deps)

	snapSvc := service.NewSnapshotService(eng, deps.BlobWriter, deps.BlobReader, service.SnapshotConfig{
		Interval:         a.cfg.Snapshot.Interval.Duration,
		LocalPath:        a.cfg.Snapshot.LocalPath,
		S3Prefix:         a.cfg.Snapshot.S3Prefix,
		ExportOnShutdown: a.cfg.Snapshot.ExportOnShutdown,
	}, a.logger)

	// Restore must run before the engine loop starts; afterwards state is
	// owned by the loop and only Submit/ImportHistory may touch it.
	if snap, ok, err := snapSvc.RestoreLatest(ctx); err != nil {
		a.logger.WarnContext(ctx, "snapshot restore failed, starting empty",
			slog.String("error", err.Error()),
		)
	} else if ok {
		quotes, dropped := eng.Restore(snap)
		a.logger.InfoContext(ctx, "state restored from snapshot",
			slog.Int("quotes", quotes),
			slog.Int("dropped", dropped),
			slog.Time("saved_at", snap.SavedAt),
		)
	}

	// The shutdown flush must capture the drained engine, so the snapshot
	// service lives on its own context, released once the run loop returns.
	snapCtx, cancelSnap := context.WithCancel(context.Background())
	g.Go(func() error {
		defer cancelSnap()
		return eng.Run(ctx)
	})
	g.Go(func() error {
		return disp.Run(ctx)
	})
	g.Go(func() error {
		return snapSvc.Run(snapCtx)
	})

	if a.cfg.Ingest.ConsumerEnabled {
		consumer := feed.NewStreamConsumer(deps.SignalBus, eng, a.cfg.Ingest.Stream, a.logger)
		g.Go(func() error {
			return consumer.Run(ctx)
		})
	}

	if deps.Archiver != nil {
		archSvc := service.NewArchiveService(deps.Archiver, deps.HistoryStore, deps.LockManager, service.ArchiveConfig{
			Interval:      a.cfg.Snapshot.ArchiveInterval.Duration,
			RetentionDays: a.cfg.Snapshot.ArchiveRetentionDays,
		}, a.logger)
		g.Go(func() error {
			return archSvc.Run(ctx)
		})
	}

	if a.cfg.Server.Enabled {
		a.startServer(ctx, g, deps, eng)
	}

	return g.Wait()
}

// EngineMode runs the detection core and dispatcher without the API surface
// or schedulers. Ingress is the Redis stream consumer when enabled; with the
// consumer off the engine idles, which is the embedding/testing flavor.
func (a *App) EngineMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting engine mode")

	g, ctx := errgroup.WithContext(ctx)

	eng, err := a.buildEngine()
	if err != nil {
		return fmt.Errorf("engine mode: %w", err)
	}
	disp := a.buildDispatcher(eng, deps)

	g.Go(func() error {
		return eng.Run(ctx)
	})
	g.Go(func() error {
		return disp.Run(ctx)
	})

	if a.cfg.Ingest.ConsumerEnabled {
		consumer := feed.NewStreamConsumer(deps.SignalBus, eng, a.cfg.Ingest.Stream, a.logger)
		g.Go(func() error {
			return consumer.Run(ctx)
		})
	}

	return g.Wait()
}

// ArchiveMode performs a single archival pass and exits: history rows older
// than the retention cutoff are uploaded to the bucket and deleted from
// Postgres. Validation guarantees both stores are enabled in this mode.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	if deps.Archiver == nil {
		return fmt.Errorf("archive mode: requires postgres and s3 to be enabled")
	}

	a.logger.InfoContext(ctx, "starting archive mode",
		slog.Int("retention_days", a.cfg.Snapshot.ArchiveRetentionDays),
	)

	archSvc := service.NewArchiveService(deps.Archiver, deps.HistoryStore, deps.LockManager, service.ArchiveConfig{
		RetentionDays: a.cfg.Snapshot.ArchiveRetentionDays,
	}, a.logger)

	if err := archSvc.RunOnce(ctx); err != nil {
		return fmt.Errorf("archive mode: %w", err)
	}
	return nil
}

// buildEngine constructs the name resolver and the detection engine from
// configuration.
func (a *App) buildEngine() (*engine.Engine, error) {
	aliases := resolve.DefaultAliases()
	if a.cfg.Matching.AliasFile != "" {
		loaded, err := resolve.LoadAliases(a.cfg.Matching.AliasFile)
		if err != nil {
			return nil, fmt.Errorf("build engine: aliases: %w", err)
		}
		aliases = loaded
	}

	resolver := resolve.New(resolve.Config{
		MatchRatio:       float64(a.cfg.Matching.TeamNameMatchRatio),
		AmbiguityMargin:  a.cfg.Matching.AmbiguityMargin,
		SimilarThreshold: a.cfg.Matching.SimilarStringsThreshold,
	}, aliases, a.logger)

	return engine.New(engine.Config{
		MinProfitPercent: a.cfg.Engine.MinProfitThreshold,
		OpportunityTTL:   a.cfg.Engine.OpportunityTTL.Duration,
		MaxHistory:       a.cfg.Engine.MaxHistoryEntries,
		StalenessWindow:  a.cfg.Engine.StalenessWindow.Duration,
		SweepInterval:    a.cfg.Engine.SweepInterval.Duration,
		QueueSize:        a.cfg.Engine.QueueSize,
		RateWindow:       a.cfg.Engine.RateWindow,
		IdentityTTL:      a.cfg.Matching.IdentityTTL.Duration,
	}, resolver, a.logger), nil
}

// buildDispatcher wires every available sink onto the engine's event stream.
// Sinks whose backing dependency is absent stay unset and are skipped.
func (a *App) buildDispatcher(eng *engine.Engine, deps *Dependencies) *dispatch.Dispatcher {
	disp := dispatch.New(eng.Updates(), dispatch.Config{}, a.logger)
	disp.SetPersistence(deps.HistoryStore, deps.AuditStore)
	disp.SetBus(deps.SignalBus)
	disp.SetBestMirror(deps.BestPrices)
	disp.SetNotifier(deps.Notifier)
	disp.SetStatsSource(eng)
	return disp
}

// startServer adds the HTTP server and, when enabled, the WebSocket hub to
// the errgroup. The server is shut down gracefully on context cancellation.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, eng *engine.Engine) {
	var hub *ws.Hub
	if a.cfg.Server.WSEnabled {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:      a.cfg.Mode,
			StartedAt: time.Now().UTC(),
		})
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	handlers := server.Handlers{
		Health:        handler.NewHealthHandler(a.logger),
		Quotes:        handler.NewQuoteHandler(eng, a.logger),
		Opportunities: handler.NewOpportunityHandler(eng, a.logger),
		History:       handler.NewHistoryHandler(eng, a.logger),
		Stats:         handler.NewStatsHandler(eng, a.logger),
		Events:        handler.NewEventHandler(eng, a.logger),
		Snapshot:      handler.NewSnapshotHandler(eng, a.logger),
	}

	// A nil *RequestSigner must stay a nil interface so the middleware can
	// tell signing is disabled.
	var verifier middleware.RequestVerifier
	if deps.Signer != nil {
		verifier = deps.Signer
	}

	srv := server.NewServer(server.Config{
		Addr:         a.cfg.Server.Addr,
		CORSOrigins:  a.cfg.Server.CORSOrigins,
		APIKey:       a.cfg.Server.ApiKey,
		RateLimitRPS: a.cfg.Server.RateLimitRPS,
	}, handlers, hub, verifier, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
