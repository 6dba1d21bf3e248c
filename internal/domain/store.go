package domain

import (
	"context"
	"time"
)

// HistoryStore persists closed opportunities for offline analysis. The
// in-memory history ring stays authoritative for the API; the store is a
// durable archive behind it.
type HistoryStore interface {
	Insert(ctx context.Context, entry HistoryEntry) error
	ListRecent(ctx context.Context, limit int) ([]HistoryEntry, error)
	ListBefore(ctx context.Context, before time.Time) ([]HistoryEntry, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, limit int) ([]AuditEntry, error)
}
