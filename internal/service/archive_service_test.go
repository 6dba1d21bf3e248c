package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/surebetbot/internal/domain"
)

type fakeArchiver struct {
	count   int64
	err     error
	befores []time.Time
}

func (f *fakeArchiver) ArchiveHistory(_ context.Context, before time.Time) (int64, error) {
	f.befores = append(f.befores, before)
	return f.count, f.err
}

type fakePruner struct {
	deleted int64
	err     error
	befores []time.Time
}

func (f *fakePruner) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	f.befores = append(f.befores, before)
	return f.deleted, f.err
}

type fakeLocks struct {
	err      error
	acquired int
	released int
}

func (f *fakeLocks) Acquire(_ context.Context, _ string, _ time.Duration) (func(), error) {
	if f.err != nil {
		return nil, f.err
	}
	f.acquired++
	return func() { f.released++ }, nil
}

func TestRunOncePassArchivesThenDeletes(t *testing.T) {
	arch := &fakeArchiver{count: 7}
	pruner := &fakePruner{deleted: 7}
	locks := &fakeLocks{}

	svc := NewArchiveService(arch, pruner, locks,
		ArchiveConfig{RetentionDays: 30}, slog.New(slog.DiscardHandler))

	if err := svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if len(arch.befores) != 1 || len(pruner.befores) != 1 {
		t.Fatalf("archive calls = %d, delete calls = %d", len(arch.befores), len(pruner.befores))
	}
	if !arch.befores[0].Equal(pruner.befores[0]) {
		t.Errorf("archive cutoff %v != delete cutoff %v", arch.befores[0], pruner.befores[0])
	}
	wantCutoff := time.Now().UTC().AddDate(0, 0, -30)
	if diff := arch.befores[0].Sub(wantCutoff); diff < -time.Minute || diff > time.Minute {
		t.Errorf("cutoff %v not ~30 days back", arch.befores[0])
	}
	if locks.acquired != 1 || locks.released != 1 {
		t.Errorf("lock acquired=%d released=%d, want 1/1", locks.acquired, locks.released)
	}
}

func TestRunOnceEmptyBatchSkipsDelete(t *testing.T) {
	arch := &fakeArchiver{count: 0}
	pruner := &fakePruner{}

	svc := NewArchiveService(arch, pruner, nil,
		ArchiveConfig{RetentionDays: 30}, slog.New(slog.DiscardHandler))

	if err := svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(pruner.befores) != 0 {
		t.Error("DeleteBefore called for an empty archive batch")
	}
}

func TestRunOnceLockHeldElsewhereIsNoOp(t *testing.T) {
	arch := &fakeArchiver{count: 5}
	locks := &fakeLocks{err: domain.ErrLockHeld}

	svc := NewArchiveService(arch, &fakePruner{}, locks,
		ArchiveConfig{RetentionDays: 30}, slog.New(slog.DiscardHandler))

	if err := svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce with held lock: %v", err)
	}
	if len(arch.befores) != 0 {
		t.Error("archival ran despite the lock being held elsewhere")
	}
}

func TestRunOnceArchiveFailureLeavesRowsIntact(t *testing.T) {
	arch := &fakeArchiver{err: errors.New("s3: upload failed")}
	pruner := &fakePruner{}

	svc := NewArchiveService(arch, pruner, nil,
		ArchiveConfig{RetentionDays: 30}, slog.New(slog.DiscardHandler))

	if err := svc.RunOnce(context.Background()); err == nil {
		t.Fatal("want error when the upload fails")
	}
	if len(pruner.befores) != 0 {
		t.Error("rows deleted even though the upload failed")
	}
}

func TestNewArchiveServiceDefaults(t *testing.T) {
	svc := NewArchiveService(&fakeArchiver{}, &fakePruner{}, nil,
		ArchiveConfig{}, slog.New(slog.DiscardHandler))

	if svc.cfg.RetentionDays != 30 {
		t.Errorf("RetentionDays = %d, want 30", svc.cfg.RetentionDays)
	}
	if svc.cfg.LockTTL != 5*time.Minute {
		t.Errorf("LockTTL = %v, want 5m", svc.cfg.LockTTL)
	}
}
