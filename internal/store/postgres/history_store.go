package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/surebetbot/internal/domain"
)

// HistoryStore implements domain.HistoryStore using PostgreSQL. It is the
// durable archive behind the engine's in-memory history ring.
type HistoryStore struct {
	pool *pgxpool.Pool
}

// NewHistoryStore creates a new HistoryStore backed by the given connection
// pool.
func NewHistoryStore(pool *pgxpool.Pool) *HistoryStore {
	return &HistoryStore{pool: pool}
}

const historySelectCols = `id, event_key, side_a, side_b, legs,
	sum_inverse, profit_percent, payout,
	created_at, updated_at, expires_at, closed_at, reason`

// Insert stores a closed opportunity. The opportunity id is the primary key,
// so a replayed close event after a reconnect does not produce a second row.
func (s *HistoryStore) Insert(ctx context.Context, entry domain.HistoryEntry) error {
	legsJSON, err := json.Marshal(entry.Legs)
	if err != nil {
		return fmt.Errorf("postgres: marshal legs for %s: %w", entry.ID, err)
	}

	const query = `
		INSERT INTO opportunity_history (
			id, event_key, side_a, side_b, legs,
			sum_inverse, profit_percent, payout,
			created_at, updated_at, expires_at, closed_at, reason
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10, $11, $12, $13
		)
		ON CONFLICT (id) DO NOTHING`

	_, err = s.pool.Exec(ctx, query,
		entry.ID, string(entry.EventKey), entry.SideA, entry.SideB, legsJSON,
		entry.SumInverse, entry.ProfitPercent, entry.Payout,
		entry.CreatedAt, entry.UpdatedAt, entry.ExpiresAt, entry.ClosedAt, string(entry.Reason),
	)
	if err != nil {
		return fmt.Errorf("postgres: insert history entry %s: %w", entry.ID, err)
	}
	return nil
}

// ListRecent returns the most recently closed opportunities, newest first.
func (s *HistoryStore) ListRecent(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	query := `SELECT ` + historySelectCols + ` FROM opportunity_history ORDER BY closed_at DESC`
	args := []any{}

	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent history: %w", err)
	}
	defer rows.Close()

	return scanHistoryRows(rows)
}

// ListBefore returns every entry closed strictly before the cutoff, oldest
// first, in the order the archiver writes them out.
func (s *HistoryStore) ListBefore(ctx context.Context, before time.Time) ([]domain.HistoryEntry, error) {
	query := `SELECT ` + historySelectCols + ` FROM opportunity_history WHERE closed_at < $1 ORDER BY closed_at ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list history before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	return scanHistoryRows(rows)
}

// DeleteBefore removes every entry closed strictly before the cutoff and
// returns how many rows were deleted.
func (s *HistoryStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM opportunity_history WHERE closed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete history before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

// scanHistoryRows drains a result set of historySelectCols rows.
func scanHistoryRows(rows pgx.Rows) ([]domain.HistoryEntry, error) {
	var entries []domain.HistoryEntry
	for rows.Next() {
		var (
			e        domain.HistoryEntry
			key      string
			reason   string
			legsJSON []byte
		)
		if err := rows.Scan(
			&e.ID, &key, &e.SideA, &e.SideB, &legsJSON,
			&e.SumInverse, &e.ProfitPercent, &e.Payout,
			&e.CreatedAt, &e.UpdatedAt, &e.ExpiresAt, &e.ClosedAt, &reason,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan history entry: %w", err)
		}
		e.EventKey = domain.EventKey(key)
		e.Reason = domain.CloseReason(reason)
		if err := json.Unmarshal(legsJSON, &e.Legs); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal legs for %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: history rows: %w", err)
	}
	return entries, nil
}

// Compile-time interface check.
var _ domain.HistoryStore = (*HistoryStore)(nil)
