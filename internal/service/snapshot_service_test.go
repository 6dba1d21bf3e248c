package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/surebetbot/internal/domain"
)

type fixedSource struct {
	snap domain.Snapshot
}

func (s *fixedSource) Snapshot() domain.Snapshot { return s.snap }

type memBlobStore struct {
	objects map[string][]byte
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{objects: make(map[string][]byte)}
}

func (m *memBlobStore) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[path] = b
	return nil
}

func (m *memBlobStore) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return m.Put(ctx, path, data, "")
}

func (m *memBlobStore) Get(_ context.Context, path string) (io.ReadCloser, error) {
	b, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(string(b))), nil
}

func (m *memBlobStore) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var infos []domain.BlobInfo
	for path := range m.objects {
		if strings.HasPrefix(path, prefix) {
			infos = append(infos, domain.BlobInfo{Path: path})
		}
	}
	return infos, nil
}

func (m *memBlobStore) Exists(_ context.Context, path string) (bool, error) {
	_, ok := m.objects[path]
	return ok, nil
}

func testSnapshot() domain.Snapshot {
	return domain.Snapshot{
		SavedAt: time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC),
		Quotes: []domain.PriceQuote{{
			Source:        "alpha",
			SourceEventID: "ev-1",
			OutcomeA:      "Arsenal",
			OutcomeB:      "Chelsea",
			PriceA:        2.10,
			PriceB:        2.20,
			ObservedAt:    time.Date(2026, 8, 23, 9, 59, 0, 0, time.UTC),
		}},
		History: []domain.HistoryEntry{{
			Opportunity: domain.Opportunity{ID: "opp-1"},
			Reason:      domain.CloseReasonExpired,
		}},
	}
}

func TestExportWritesLocalFileAtomically(t *testing.T) {
	dir := t.TempDir()
	svc := NewSnapshotService(
		&fixedSource{snap: testSnapshot()},
		nil, nil,
		SnapshotConfig{LocalPath: dir},
		slog.New(slog.DiscardHandler),
	)

	if err := svc.Export(context.Background()); err != nil {
		t.Fatalf("Export: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "latest.json"))
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if len(snap.Quotes) != 1 || snap.Quotes[0].Source != "alpha" {
		t.Errorf("exported quotes = %+v", snap.Quotes)
	}
	if _, err := os.Stat(filepath.Join(dir, "latest.json.tmp")); !os.IsNotExist(err) {
		t.Error("temp file left behind after rename")
	}
}

func TestExportWritesTimestampedAndLatestObjects(t *testing.T) {
	store := newMemBlobStore()
	svc := NewSnapshotService(
		&fixedSource{snap: testSnapshot()},
		store, store,
		SnapshotConfig{S3Prefix: "snapshots"},
		slog.New(slog.DiscardHandler),
	)

	if err := svc.Export(context.Background()); err != nil {
		t.Fatalf("Export: %v", err)
	}

	if _, ok := store.objects["snapshots/latest.json"]; !ok {
		t.Errorf("missing stable latest object, have %v", keys(store.objects))
	}
	if _, ok := store.objects["snapshots/20260823-100000.json"]; !ok {
		t.Errorf("missing timestamped object, have %v", keys(store.objects))
	}
}

func keys(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestRestoreLatestPrefersLocalFile(t *testing.T) {
	dir := t.TempDir()
	store := newMemBlobStore()

	local := testSnapshot()
	local.Quotes[0].Source = "local"
	localData, _ := json.Marshal(local)
	if err := os.WriteFile(filepath.Join(dir, "latest.json"), localData, 0o644); err != nil {
		t.Fatal(err)
	}

	remote := testSnapshot()
	remote.Quotes[0].Source = "remote"
	remoteData, _ := json.Marshal(remote)
	store.objects["snapshots/latest.json"] = remoteData

	svc := NewSnapshotService(
		&fixedSource{},
		store, store,
		SnapshotConfig{LocalPath: dir, S3Prefix: "snapshots"},
		slog.New(slog.DiscardHandler),
	)

	snap, ok, err := svc.RestoreLatest(context.Background())
	if err != nil || !ok {
		t.Fatalf("RestoreLatest: ok=%v err=%v", ok, err)
	}
	if snap.Quotes[0].Source != "local" {
		t.Errorf("restored from %q, want the local file", snap.Quotes[0].Source)
	}
}

func TestRestoreLatestFallsBackToObjectStore(t *testing.T) {
	store := newMemBlobStore()
	remoteData, _ := json.Marshal(testSnapshot())
	store.objects["snapshots/latest.json"] = remoteData

	svc := NewSnapshotService(
		&fixedSource{},
		store, store,
		SnapshotConfig{LocalPath: t.TempDir(), S3Prefix: "snapshots"},
		slog.New(slog.DiscardHandler),
	)

	snap, ok, err := svc.RestoreLatest(context.Background())
	if err != nil || !ok {
		t.Fatalf("RestoreLatest: ok=%v err=%v", ok, err)
	}
	if len(snap.Quotes) != 1 {
		t.Errorf("restored snapshot = %+v", snap)
	}
}

func TestRestoreLatestFirstBoot(t *testing.T) {
	svc := NewSnapshotService(
		&fixedSource{},
		nil, newMemBlobStore(),
		SnapshotConfig{LocalPath: t.TempDir(), S3Prefix: "snapshots"},
		slog.New(slog.DiscardHandler),
	)

	_, ok, err := svc.RestoreLatest(context.Background())
	if err != nil {
		t.Fatalf("RestoreLatest on empty state: %v", err)
	}
	if ok {
		t.Error("ok = true with no snapshot anywhere")
	}
}

func TestRunFlushesOnShutdown(t *testing.T) {
	dir := t.TempDir()
	svc := NewSnapshotService(
		&fixedSource{snap: testSnapshot()},
		nil, nil,
		SnapshotConfig{LocalPath: dir, ExportOnShutdown: true},
		slog.New(slog.DiscardHandler),
	)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Run(ctx) }()

	cancel()
	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if _, err := os.Stat(filepath.Join(dir, "latest.json")); err != nil {
		t.Errorf("shutdown flush missing: %v", err)
	}
}

func TestRunNoWorkConfiguredReturnsImmediately(t *testing.T) {
	svc := NewSnapshotService(&fixedSource{}, nil, nil, SnapshotConfig{}, slog.New(slog.DiscardHandler))

	done := make(chan error, 1)
	go func() { done <- svc.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run blocked with nothing configured")
	}
}
