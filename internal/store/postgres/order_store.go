package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Pablo69latrick/teda-clone-sub002/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// ListPendingForOpenPositions returns every pending stop/limit order whose
// owning position is still open, oldest first.
func (s *OrderStore) ListPendingForOpenPositions(ctx context.Context) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT o.id, o.position_id, o.order_type, o.price, o.status, o.created_at
		FROM orders o
		JOIN positions p ON p.id = o.position_id
		WHERE o.status = 'pending' AND p.status = 'open'
		ORDER BY o.created_at ASC, o.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pending orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var o domain.Order
		var orderType, status string
		if err := rows.Scan(&o.ID, &o.PositionID, &orderType, &o.Price, &status, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan pending order: %w", err)
		}
		o.Type = domain.OrderType(orderType)
		o.Status = domain.OrderStatus(status)
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// Fill atomically transitions a pending order to filled. Zero rows affected
// means the order already left pending state.
func (s *OrderStore) Fill(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE orders SET status = 'filled', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return false, fmt.Errorf("postgres: fill order %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// CancelPendingForPosition cancels every still-pending order linked to the
// position and returns how many rows were cancelled.
func (s *OrderStore) CancelPendingForPosition(ctx context.Context, positionID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE orders SET status = 'cancelled', updated_at = NOW()
		WHERE position_id = $1 AND status = 'pending'`, positionID)
	if err != nil {
		return 0, fmt.Errorf("postgres: cancel pending orders for %s: %w", positionID, err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.OrderStore = (*OrderStore)(nil)
