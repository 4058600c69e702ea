package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Pablo69latrick/teda-clone-sub002/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, account_id, symbol, direction, quantity, leverage,
	entry_price, isolated_margin, trade_fees, status, opened_at,
	exit_price, exit_at, realized_pnl, close_reason, total_fees`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var direction, status string
	var closeReason *string

	err := row.Scan(
		&p.ID, &p.AccountID, &p.Symbol, &direction, &p.Quantity, &p.Leverage,
		&p.EntryPrice, &p.IsolatedMargin, &p.TradeFees, &status, &p.OpenedAt,
		&p.ExitPrice, &p.ExitAt, &p.RealizedPnL, &closeReason, &p.TotalFees,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Direction = domain.Direction(direction)
	p.Status = domain.PositionStatus(status)
	if closeReason != nil {
		reason := domain.CloseReason(*closeReason)
		p.CloseReason = &reason
	}
	return p, nil
}

// ListOpen returns every open position across all accounts, oldest first.
func (s *PositionStore) ListOpen(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE status = 'open'
		 ORDER BY opened_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan open position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// GetByID retrieves a single position by its ID.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE id = $1`, id)

	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// CloseOpen atomically claims an open position and writes its close-only
// fields. The status predicate makes the claim a compare-and-swap: zero rows
// affected means the position was already closed (or never existed) and is
// reported as an unclaimed no-op, not an error.
func (s *PositionStore) CloseOpen(ctx context.Context, id string, pc domain.PositionClose) (bool, error) {
	const query = `
		UPDATE positions SET
			status       = 'closed',
			exit_price   = $2,
			exit_at      = $3,
			realized_pnl = $4,
			total_fees   = $5,
			close_reason = $6,
			updated_at   = NOW()
		WHERE id = $1 AND status = 'open'`

	tag, err := s.pool.Exec(ctx, query,
		id, pc.ExitPrice, pc.ExitAt, pc.RealizedPnL, pc.TotalFees, string(pc.Reason),
	)
	if err != nil {
		return false, fmt.Errorf("postgres: close position %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)
