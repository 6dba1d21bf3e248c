package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/surebetbot/internal/domain"
)

// archiveLockKey serializes archival across instances sharing one database.
// The lock manager prefixes it with its own namespace.
const archiveLockKey = "archive:history"

// HistoryPruner deletes archived rows from the primary store. Implemented by
// the Postgres history store.
type HistoryPruner interface {
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ArchiveConfig controls the history archival schedule.
type ArchiveConfig struct {
	Interval      time.Duration // how often a pass runs; 0 disables the loop
	RetentionDays int           // rows closed earlier than this are moved to cold storage
	LockTTL       time.Duration // distributed lock lifetime, defaults to 5m
}

// ArchiveService moves old closed opportunities from Postgres to object
// storage on a schedule. Each pass uploads the batch first and deletes rows
// only after the upload succeeded, so a failed pass leaves the primary store
// intact. A Redis lock keeps concurrent instances from archiving the same
// rows twice.
type ArchiveService struct {
	archiver domain.Archiver
	history  HistoryPruner
	locks    domain.LockManager // optional; single-instance deployments run unlocked
	cfg      ArchiveConfig
	logger   *slog.Logger
}

// NewArchiveService creates an ArchiveService. locks may be nil.
func NewArchiveService(archiver domain.Archiver, history HistoryPruner, locks domain.LockManager, cfg ArchiveConfig, logger *slog.Logger) *ArchiveService {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 30
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	return &ArchiveService{
		archiver: archiver,
		history:  history,
		locks:    locks,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "archive_service")),
	}
}

// Run executes archival passes on the configured interval until the context
// is cancelled. Call in a goroutine.
func (a *ArchiveService) Run(ctx context.Context) error {
	if a.cfg.Interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	a.logger.Info("archive service started",
		slog.Duration("interval", a.cfg.Interval),
		slog.Int("retention_days", a.cfg.RetentionDays),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.RunOnce(ctx); err != nil {
				a.logger.ErrorContext(ctx, "archival pass failed", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce performs a single archival pass: everything closed before the
// retention cutoff is uploaded, then removed from the primary store. It is
// the entry point for the one-shot archive mode. A pass that finds another
// instance holding the lock, or nothing to archive, is a quiet no-op.
func (a *ArchiveService) RunOnce(ctx context.Context) error {
	if a.locks != nil {
		unlock, err := a.locks.Acquire(ctx, archiveLockKey, a.cfg.LockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				a.logger.DebugContext(ctx, "archival lock held elsewhere, skipping pass")
				return nil
			}
			return err
		}
		defer unlock()
	}

	before := time.Now().UTC().AddDate(0, 0, -a.cfg.RetentionDays)

	archived, err := a.archiver.ArchiveHistory(ctx, before)
	if err != nil {
		return err
	}
	if archived == 0 {
		a.logger.DebugContext(ctx, "nothing to archive", slog.Time("before", before))
		return nil
	}

	deleted, err := a.history.DeleteBefore(ctx, before)
	if err != nil {
		// The batch is already in cold storage; the rows will be retried and
		// re-uploaded idempotently on the next pass.
		return err
	}

	a.logger.InfoContext(ctx, "history archived",
		slog.Int64("archived", archived),
		slog.Int64("deleted", deleted),
		slog.Time("before", before),
	)
	return nil
}
