package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Pablo69latrick/teda-clone-sub002/internal/domain"
)

// EquityStore implements domain.EquityStore using PostgreSQL.
type EquityStore struct {
	pool *pgxpool.Pool
}

// NewEquityStore creates a new EquityStore backed by the given connection pool.
func NewEquityStore(pool *pgxpool.Pool) *EquityStore {
	return &EquityStore{pool: pool}
}

// Insert appends one equity sample.
func (s *EquityStore) Insert(ctx context.Context, pt domain.EquityPoint) error {
	const query = `
		INSERT INTO equity_points (id, account_id, available_margin, realized_pnl, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := s.pool.Exec(ctx, query,
		pt.ID, pt.AccountID, pt.AvailableMargin, pt.RealizedPnL, pt.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert equity point for account %s: %w", pt.AccountID, err)
	}
	return nil
}

// ListBefore returns equity samples created strictly before the cutoff,
// oldest first.
func (s *EquityStore) ListBefore(ctx context.Context, before time.Time) ([]domain.EquityPoint, error) {
	const query = `
		SELECT id, account_id, available_margin, realized_pnl, created_at
		FROM equity_points WHERE created_at < $1 ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list equity points: %w", err)
	}
	defer rows.Close()

	var points []domain.EquityPoint
	for rows.Next() {
		var pt domain.EquityPoint
		if err := rows.Scan(&pt.ID, &pt.AccountID, &pt.AvailableMargin, &pt.RealizedPnL, &pt.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan equity point: %w", err)
		}
		points = append(points, pt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list equity points rows: %w", err)
	}
	return points, nil
}

// Compile-time interface check.
var _ domain.EquityStore = (*EquityStore)(nil)
