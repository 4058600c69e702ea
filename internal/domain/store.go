package domain

import (
	"context"
	"time"
)

// PositionStore persists positions. The engine only ever transitions a
// position from open to closed.
type PositionStore interface {
	// ListOpen returns every open position across all accounts, in a stable
	// order (oldest first).
	ListOpen(ctx context.Context) ([]Position, error)
	GetByID(ctx context.Context, id string) (Position, error)
	// CloseOpen atomically claims an open position and writes its close-only
	// fields. It reports false when the position was not open, which callers
	// must treat as "someone else already closed it" rather than an error.
	CloseOpen(ctx context.Context, id string, close PositionClose) (bool, error)
}

// OrderStore persists the conditional stop/limit legs linked to positions.
type OrderStore interface {
	// ListPendingForOpenPositions returns every pending order whose position
	// is still open, in a stable order.
	ListPendingForOpenPositions(ctx context.Context) ([]Order, error)
	// Fill atomically transitions a pending order to filled, reporting false
	// when the order was no longer pending.
	Fill(ctx context.Context, id string) (bool, error)
	// CancelPendingForPosition cancels every still-pending order linked to
	// the position and returns how many were cancelled.
	CancelPendingForPosition(ctx context.Context, positionID string) (int64, error)
}

// AccountStore persists trading accounts. The engine mutates balances only
// through ApplyClose and status only through MarkBreached.
type AccountStore interface {
	GetByID(ctx context.Context, id string) (Account, error)
	GetByIDs(ctx context.Context, ids []string) ([]Account, error)
	// ApplyClose applies the balance delta of one position close and returns
	// the updated account. The margin-required floor at zero is enforced here.
	ApplyClose(ctx context.Context, id string, delta AccountCloseDelta) (Account, error)
	// MarkBreached transitions the account to its terminal breached state and
	// deactivates it, reporting false when the account was already breached.
	MarkBreached(ctx context.Context, id string) (bool, error)
}

// ActivityStore persists append-only audit records.
type ActivityStore interface {
	Insert(ctx context.Context, rec ActivityRecord) error
	// ListBefore returns records created strictly before the cutoff, for
	// archival.
	ListBefore(ctx context.Context, before time.Time) ([]ActivityRecord, error)
}

// EquityStore persists append-only equity samples.
type EquityStore interface {
	Insert(ctx context.Context, pt EquityPoint) error
	ListBefore(ctx context.Context, before time.Time) ([]EquityPoint, error)
}
