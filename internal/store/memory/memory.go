// Package memory implements the domain store ports with mutex-guarded maps,
// preserving the conditional-update semantics of the PostgreSQL adapters:
// claiming an already-closed position, filling a non-pending order, or
// re-breaching an account all report false instead of erroring. It backs the
// sim mode and the engine tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Pablo69latrick/teda-clone-sub002/internal/domain"
)

// Store owns all in-memory state. The per-entity port implementations are
// views over one shared mutex so cross-entity updates observe each other.
type Store struct {
	mu        sync.Mutex
	positions map[string]domain.Position
	posOrder  []string
	orders    map[string]domain.Order
	ordOrder  []string
	accounts  map[string]domain.Account
	activity  []domain.ActivityRecord
	equity    []domain.EquityPoint
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		positions: make(map[string]domain.Position),
		orders:    make(map[string]domain.Order),
		accounts:  make(map[string]domain.Account),
	}
}

// Positions returns the position port view.
func (s *Store) Positions() *PositionStore { return &PositionStore{s: s} }

// Orders returns the order port view.
func (s *Store) Orders() *OrderStore { return &OrderStore{s: s} }

// Accounts returns the account port view.
func (s *Store) Accounts() *AccountStore { return &AccountStore{s: s} }

// Activity returns the activity port view.
func (s *Store) Activity() *ActivityStore { return &ActivityStore{s: s} }

// Equity returns the equity port view.
func (s *Store) Equity() *EquityStore { return &EquityStore{s: s} }

// PutPosition inserts or replaces a position, preserving first-seen order.
func (s *Store) PutPosition(p domain.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.positions[p.ID]; !seen {
		s.posOrder = append(s.posOrder, p.ID)
	}
	s.positions[p.ID] = p
}

// PutOrder inserts or replaces an order, preserving first-seen order.
func (s *Store) PutOrder(o domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.orders[o.ID]; !seen {
		s.ordOrder = append(s.ordOrder, o.ID)
	}
	s.orders[o.ID] = o
}

// PutAccount inserts or replaces an account.
func (s *Store) PutAccount(a domain.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = a
}

// ActivityRecords returns a copy of all activity written so far.
func (s *Store) ActivityRecords() []domain.ActivityRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ActivityRecord, len(s.activity))
	copy(out, s.activity)
	return out
}

// EquityPoints returns a copy of all equity samples written so far.
func (s *Store) EquityPoints() []domain.EquityPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.EquityPoint, len(s.equity))
	copy(out, s.equity)
	return out
}

// PositionStore implements domain.PositionStore.
type PositionStore struct {
	s *Store
}

func (ps *PositionStore) ListOpen(_ context.Context) ([]domain.Position, error) {
	ps.s.mu.Lock()
	defer ps.s.mu.Unlock()
	var out []domain.Position
	for _, id := range ps.s.posOrder {
		if p := ps.s.positions[id]; p.Status == domain.PositionStatusOpen {
			out = append(out, p)
		}
	}
	return out, nil
}

func (ps *PositionStore) GetByID(_ context.Context, id string) (domain.Position, error) {
	ps.s.mu.Lock()
	defer ps.s.mu.Unlock()
	p, ok := ps.s.positions[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return p, nil
}

func (ps *PositionStore) CloseOpen(_ context.Context, id string, pc domain.PositionClose) (bool, error) {
	ps.s.mu.Lock()
	defer ps.s.mu.Unlock()
	p, ok := ps.s.positions[id]
	if !ok || p.Status != domain.PositionStatusOpen {
		return false, nil
	}
	exitPrice := pc.ExitPrice
	exitAt := pc.ExitAt
	realized := pc.RealizedPnL
	totalFees := pc.TotalFees
	reason := pc.Reason
	p.Status = domain.PositionStatusClosed
	p.ExitPrice = &exitPrice
	p.ExitAt = &exitAt
	p.RealizedPnL = &realized
	p.TotalFees = &totalFees
	p.CloseReason = &reason
	ps.s.positions[id] = p
	return true, nil
}

// OrderStore implements domain.OrderStore.
type OrderStore struct {
	s *Store
}

func (os *OrderStore) ListPendingForOpenPositions(_ context.Context) ([]domain.Order, error) {
	os.s.mu.Lock()
	defer os.s.mu.Unlock()
	var out []domain.Order
	for _, id := range os.s.ordOrder {
		o := os.s.orders[id]
		if o.Status != domain.OrderStatusPending {
			continue
		}
		if p, ok := os.s.positions[o.PositionID]; !ok || p.Status != domain.PositionStatusOpen {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (os *OrderStore) Fill(_ context.Context, id string) (bool, error) {
	os.s.mu.Lock()
	defer os.s.mu.Unlock()
	o, ok := os.s.orders[id]
	if !ok || o.Status != domain.OrderStatusPending {
		return false, nil
	}
	o.Status = domain.OrderStatusFilled
	os.s.orders[id] = o
	return true, nil
}

func (os *OrderStore) CancelPendingForPosition(_ context.Context, positionID string) (int64, error) {
	os.s.mu.Lock()
	defer os.s.mu.Unlock()
	var n int64
	for id, o := range os.s.orders {
		if o.PositionID == positionID && o.Status == domain.OrderStatusPending {
			o.Status = domain.OrderStatusCancelled
			os.s.orders[id] = o
			n++
		}
	}
	return n, nil
}

// AccountStore implements domain.AccountStore.
type AccountStore struct {
	s *Store
}

func (as *AccountStore) GetByID(_ context.Context, id string) (domain.Account, error) {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()
	a, ok := as.s.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return a, nil
}

func (as *AccountStore) GetByIDs(_ context.Context, ids []string) ([]domain.Account, error) {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()
	out := make([]domain.Account, 0, len(ids))
	for _, id := range ids {
		if a, ok := as.s.accounts[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (as *AccountStore) ApplyClose(_ context.Context, id string, delta domain.AccountCloseDelta) (domain.Account, error) {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()
	a, ok := as.s.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	a.AvailableMargin = a.AvailableMargin.Add(delta.MarginRelease).Add(delta.RealizedPnL).Sub(delta.CloseFee)
	a.TotalMarginRequired = decimal.Max(decimal.Zero, a.TotalMarginRequired.Sub(delta.MarginRelease))
	a.RealizedPnL = a.RealizedPnL.Add(delta.RealizedPnL)
	a.TotalPnL = a.TotalPnL.Add(delta.RealizedPnL)
	a.NetWorth = a.NetWorth.Add(delta.RealizedPnL).Sub(delta.CloseFee)
	as.s.accounts[id] = a
	return a, nil
}

func (as *AccountStore) MarkBreached(_ context.Context, id string) (bool, error) {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()
	a, ok := as.s.accounts[id]
	if !ok || a.Status == domain.AccountStatusBreached {
		return false, nil
	}
	a.Status = domain.AccountStatusBreached
	a.IsActive = false
	as.s.accounts[id] = a
	return true, nil
}

// ActivityStore implements domain.ActivityStore.
type ActivityStore struct {
	s *Store
}

func (at *ActivityStore) Insert(_ context.Context, rec domain.ActivityRecord) error {
	at.s.mu.Lock()
	defer at.s.mu.Unlock()
	at.s.activity = append(at.s.activity, rec)
	return nil
}

func (at *ActivityStore) ListBefore(_ context.Context, before time.Time) ([]domain.ActivityRecord, error) {
	at.s.mu.Lock()
	defer at.s.mu.Unlock()
	var out []domain.ActivityRecord
	for _, rec := range at.s.activity {
		if rec.CreatedAt.Before(before) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// EquityStore implements domain.EquityStore.
type EquityStore struct {
	s *Store
}

func (eq *EquityStore) Insert(_ context.Context, pt domain.EquityPoint) error {
	eq.s.mu.Lock()
	defer eq.s.mu.Unlock()
	eq.s.equity = append(eq.s.equity, pt)
	return nil
}

func (eq *EquityStore) ListBefore(_ context.Context, before time.Time) ([]domain.EquityPoint, error) {
	eq.s.mu.Lock()
	defer eq.s.mu.Unlock()
	var out []domain.EquityPoint
	for _, pt := range eq.s.equity {
		if pt.CreatedAt.Before(before) {
			out = append(out, pt)
		}
	}
	return out, nil
}

// Compile-time interface checks.
var (
	_ domain.PositionStore = (*PositionStore)(nil)
	_ domain.OrderStore    = (*OrderStore)(nil)
	_ domain.AccountStore  = (*AccountStore)(nil)
	_ domain.ActivityStore = (*ActivityStore)(nil)
	_ domain.EquityStore   = (*EquityStore)(nil)
)
