package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Pablo69latrick/teda-clone-sub002/internal/domain"
)

// ActivityStore implements domain.ActivityStore using PostgreSQL.
type ActivityStore struct {
	pool *pgxpool.Pool
}

// NewActivityStore creates a new ActivityStore backed by the given connection pool.
func NewActivityStore(pool *pgxpool.Pool) *ActivityStore {
	return &ActivityStore{pool: pool}
}

// Insert appends one activity record. The detail map is stored as JSONB.
func (s *ActivityStore) Insert(ctx context.Context, rec domain.ActivityRecord) error {
	detailJSON, err := json.Marshal(rec.Detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal activity detail: %w", err)
	}

	const query = `
		INSERT INTO activity (id, account_id, event, message, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err = s.pool.Exec(ctx, query,
		rec.ID, rec.AccountID, rec.Event, rec.Message, detailJSON, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert activity %s: %w", rec.Event, err)
	}
	return nil
}

// ListBefore returns activity records created strictly before the cutoff,
// oldest first.
func (s *ActivityStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ActivityRecord, error) {
	const query = `
		SELECT id, account_id, event, message, detail, created_at
		FROM activity WHERE created_at < $1 ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list activity: %w", err)
	}
	defer rows.Close()

	var records []domain.ActivityRecord
	for rows.Next() {
		var rec domain.ActivityRecord
		var detailJSON []byte

		if err := rows.Scan(&rec.ID, &rec.AccountID, &rec.Event, &rec.Message, &detailJSON, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan activity record: %w", err)
		}
		if detailJSON != nil {
			if err := json.Unmarshal(detailJSON, &rec.Detail); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal activity detail: %w", err)
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list activity rows: %w", err)
	}
	return records, nil
}

// Compile-time interface check.
var _ domain.ActivityStore = (*ActivityStore)(nil)
