package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alanyoungcy/surebetbot/internal/domain"
)

// latestSnapshotName is the stable object name a restore looks for.
const latestSnapshotName = "latest.json"

// exportTimeout bounds the shutdown flush so teardown cannot hang on a slow
// object store.
const exportTimeout = 10 * time.Second

// SnapshotSource exports restorable engine state. Implemented by the engine.
type SnapshotSource interface {
	Snapshot() domain.Snapshot
}

// SnapshotConfig controls the periodic state export.
type SnapshotConfig struct {
	Interval         time.Duration // 0 disables the periodic export
	LocalPath        string        // local directory; empty disables local export
	S3Prefix         string        // object key prefix for S3 exports
	ExportOnShutdown bool
}

// SnapshotService periodically exports engine state so a restart can resume
// from recent quotes instead of an empty book. Exports go to a local
// directory, an object store, or both; a shutdown flush writes one final
// export after the engine has drained.
type SnapshotService struct {
	source SnapshotSource
	writer domain.BlobWriter // optional
	reader domain.BlobReader // optional, used by RestoreLatest
	cfg    SnapshotConfig
	logger *slog.Logger
}

// NewSnapshotService creates a SnapshotService. writer and reader may be nil,
// disabling the object-store side.
func NewSnapshotService(source SnapshotSource, writer domain.BlobWriter, reader domain.BlobReader, cfg SnapshotConfig, logger *slog.Logger) *SnapshotService {
	return &SnapshotService{
		source: source,
		writer: writer,
		reader: reader,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "snapshot_service")),
	}
}

// Run exports on the configured interval until the context is cancelled,
// then performs the shutdown flush if configured. With no interval and no
// shutdown flush there is nothing to do and Run returns immediately.
func (s *SnapshotService) Run(ctx context.Context) error {
	if s.cfg.Interval <= 0 && !s.cfg.ExportOnShutdown {
		return nil
	}

	var tick <-chan time.Time
	if s.cfg.Interval > 0 {
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	s.logger.Info("snapshot service started",
		slog.Duration("interval", s.cfg.Interval),
		slog.Bool("export_on_shutdown", s.cfg.ExportOnShutdown),
	)

	for {
		select {
		case <-ctx.Done():
			if s.cfg.ExportOnShutdown {
				// The parent context is gone; the flush gets its own deadline.
				flushCtx, cancel := context.WithTimeout(context.Background(), exportTimeout)
				if err := s.Export(flushCtx); err != nil {
					s.logger.Error("shutdown snapshot export failed", slog.String("error", err.Error()))
				}
				cancel()
			}
			return ctx.Err()

		case <-tick:
			if err := s.Export(ctx); err != nil {
				s.logger.ErrorContext(ctx, "snapshot export failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Export captures the current engine state and writes it to every configured
// destination. Local writes are atomic (temp file + rename); S3 gets a
// timestamped object plus a stable latest.json.
func (s *SnapshotService) Export(ctx context.Context) error {
	snap := s.source.Snapshot()
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("service: snapshot marshal: %w", err)
	}

	var errs []string

	if s.cfg.LocalPath != "" {
		if err := writeLocalSnapshot(s.cfg.LocalPath, data); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if s.writer != nil {
		stamped := s.objectKey(snap.SavedAt.Format("20060102-150405") + ".json")
		if err := s.writer.Put(ctx, stamped, bytes.NewReader(data), "application/json"); err != nil {
			errs = append(errs, fmt.Sprintf("s3 %s: %v", stamped, err))
		}
		latest := s.objectKey(latestSnapshotName)
		if err := s.writer.Put(ctx, latest, bytes.NewReader(data), "application/json"); err != nil {
			errs = append(errs, fmt.Sprintf("s3 %s: %v", latest, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("service: snapshot export: %s", strings.Join(errs, "; "))
	}

	s.logger.DebugContext(ctx, "snapshot exported",
		slog.Int("quotes", len(snap.Quotes)),
		slog.Int("history", len(snap.History)),
		slog.Int("bytes", len(data)),
	)
	return nil
}

// RestoreLatest loads the most recent export, preferring the local file over
// the object store. ok is false when no snapshot exists anywhere; that is a
// normal first boot, not an error.
func (s *SnapshotService) RestoreLatest(ctx context.Context) (snap domain.Snapshot, ok bool, err error) {
	if s.cfg.LocalPath != "" {
		data, readErr := os.ReadFile(filepath.Join(s.cfg.LocalPath, latestSnapshotName))
		switch {
		case readErr == nil:
			if err := json.Unmarshal(data, &snap); err != nil {
				return domain.Snapshot{}, false, fmt.Errorf("service: local snapshot decode: %w", err)
			}
			return snap, true, nil
		case !os.IsNotExist(readErr):
			return domain.Snapshot{}, false, fmt.Errorf("service: local snapshot read: %w", readErr)
		}
	}

	if s.reader != nil {
		rc, getErr := s.reader.Get(ctx, s.objectKey(latestSnapshotName))
		if getErr != nil {
			if errors.Is(getErr, domain.ErrNotFound) {
				return domain.Snapshot{}, false, nil
			}
			return domain.Snapshot{}, false, fmt.Errorf("service: s3 snapshot get: %w", getErr)
		}
		defer rc.Close()

		data, readErr := io.ReadAll(rc)
		if readErr != nil {
			return domain.Snapshot{}, false, fmt.Errorf("service: s3 snapshot read: %w", readErr)
		}
		if err := json.Unmarshal(data, &snap); err != nil {
			return domain.Snapshot{}, false, fmt.Errorf("service: s3 snapshot decode: %w", err)
		}
		return snap, true, nil
	}

	return domain.Snapshot{}, false, nil
}

// objectKey joins the configured prefix with a snapshot object name.
func (s *SnapshotService) objectKey(name string) string {
	prefix := strings.Trim(s.cfg.S3Prefix, "/")
	if prefix == "" {
		prefix = "snapshots"
	}
	return prefix + "/" + name
}

// writeLocalSnapshot writes the export atomically so a crash mid-write never
// leaves a truncated latest.json behind.
func writeLocalSnapshot(dir string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("local %s: %w", dir, err)
	}
	tmp := filepath.Join(dir, latestSnapshotName+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("local %s: %w", tmp, err)
	}
	final := filepath.Join(dir, latestSnapshotName)
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("local %s: %w", final, err)
	}
	return nil
}
