package risk

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Pablo69latrick/teda-clone-sub002/internal/domain"
	"github.com/Pablo69latrick/teda-clone-sub002/internal/store/memory"
)

// fixture wires an Engine to in-memory stores with a controllable clock.
type fixture struct {
	store *memory.Store
	eng   *Engine
	now   time.Time
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	st := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := NewEngine(Deps{
		Positions: st.Positions(),
		Orders:    st.Orders(),
		Accounts:  st.Accounts(),
		Activity:  st.Activity(),
		Equity:    st.Equity(),
	}, cfg, logger)

	f := &fixture{
		store: st,
		eng:   eng,
		now:   time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC),
	}
	eng.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func tick(symbol, bid, ask string) domain.Tick {
	return domain.Tick{
		Symbol: symbol,
		Bid:    d(bid),
		Ask:    d(ask),
		Last:   d(bid),
		At:     time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC),
	}
}

func openPosition(id, accountID, symbol string, dir domain.Direction, qty, entry string, leverage int64) domain.Position {
	quantity := d(qty)
	entryPrice := d(entry)
	return domain.Position{
		ID:             id,
		AccountID:      accountID,
		Symbol:         symbol,
		Direction:      dir,
		Quantity:       quantity,
		Leverage:       leverage,
		EntryPrice:     entryPrice,
		IsolatedMargin: entryPrice.Mul(quantity),
		TradeFees:      decimal.Zero,
		Status:         domain.PositionStatusOpen,
		OpenedAt:       time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC),
	}
}

func pendingOrder(id, positionID string, typ domain.OrderType, price string) domain.Order {
	return domain.Order{
		ID:         id,
		PositionID: positionID,
		Type:       typ,
		Price:      d(price),
		Status:     domain.OrderStatusPending,
		CreatedAt:  time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC),
	}
}

func activeAccount(id, balance string) domain.Account {
	b := d(balance)
	return domain.Account{
		ID:              id,
		AvailableMargin: b,
		NetWorth:        b,
		StartingBalance: b,
		DayStartBalance: b,
		DayStartEquity:  b,
		DayStartDate:    time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC),
		Status:          domain.AccountStatusActive,
		IsActive:        true,
	}
}

func mustGetPosition(t *testing.T, st *memory.Store, id string) domain.Position {
	t.Helper()
	p, err := st.Positions().GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get position %s: %v", id, err)
	}
	return p
}

func mustGetAccount(t *testing.T, st *memory.Store, id string) domain.Account {
	t.Helper()
	a, err := st.Accounts().GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get account %s: %v", id, err)
	}
	return a
}

func TestEvaluateThrottleDropsRapidTicks(t *testing.T) {
	f := newFixture(t, Config{MinInterval: 2 * time.Second})
	f.store.PutAccount(activeAccount("acct-1", "100000"))

	pos := openPosition("pos-1", "acct-1", "BTCUSD", domain.DirectionLong, "0.01", "67971.44", 10)
	f.store.PutPosition(pos)
	f.store.PutOrder(pendingOrder("ord-1", "pos-1", domain.OrderTypeStop, "66000"))

	prices := map[string]domain.Tick{"BTCUSD": tick("BTCUSD", "65990", "66010")}

	// First pass is admitted and fills the stop.
	if err := f.eng.Evaluate(context.Background(), prices); err != nil {
		t.Fatalf("first evaluate: %v", err)
	}
	if got := mustGetPosition(t, f.store, "pos-1").Status; got != domain.PositionStatusClosed {
		t.Fatalf("position status after first pass = %s, want closed", got)
	}

	// Re-open an identical setup; a tick 500ms later must be dropped.
	f.store.PutPosition(openPosition("pos-2", "acct-1", "BTCUSD", domain.DirectionLong, "0.01", "67971.44", 10))
	f.store.PutOrder(pendingOrder("ord-2", "pos-2", domain.OrderTypeStop, "66000"))

	f.advance(500 * time.Millisecond)
	if err := f.eng.Evaluate(context.Background(), prices); err != nil {
		t.Fatalf("throttled evaluate: %v", err)
	}
	if got := mustGetPosition(t, f.store, "pos-2").Status; got != domain.PositionStatusOpen {
		t.Fatalf("throttled pass closed a position, status = %s", got)
	}

	// After the interval elapses the next tick is admitted again.
	f.advance(2 * time.Second)
	if err := f.eng.Evaluate(context.Background(), prices); err != nil {
		t.Fatalf("third evaluate: %v", err)
	}
	if got := mustGetPosition(t, f.store, "pos-2").Status; got != domain.PositionStatusClosed {
		t.Fatalf("position status after admitted pass = %s, want closed", got)
	}
}

func TestEvaluateSettlesBreachedLeftoversAsLiquidations(t *testing.T) {
	f := newFixture(t, Config{})

	acct := activeAccount("acct-1", "1000")
	acct.Status = domain.AccountStatusBreached
	acct.IsActive = false
	acct.NetWorth = d("10")
	acct.TotalMarginRequired = d("500")
	f.store.PutAccount(acct)
	f.store.PutPosition(openPosition("pos-1", "acct-1", "ETHUSD", domain.DirectionLong, "1", "3200", 5))
	// The leg is triggerable at this quote; on a breached account it must
	// never fill.
	f.store.PutOrder(pendingOrder("ord-1", "pos-1", domain.OrderTypeStop, "3100"))

	prices := map[string]domain.Tick{"ETHUSD": tick("ETHUSD", "3000", "3001")}
	if err := f.eng.Evaluate(context.Background(), prices); err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	got := mustGetPosition(t, f.store, "pos-1")
	if got.Status != domain.PositionStatusClosed {
		t.Fatalf("leftover position status = %s, want closed by the sweep", got.Status)
	}
	if got.CloseReason == nil || *got.CloseReason != domain.CloseReasonLiquidation {
		t.Fatalf("close reason = %v, want liquidation, not a leg fill", got.CloseReason)
	}
	pending, _ := f.store.Orders().ListPendingForOpenPositions(context.Background())
	if len(pending) != 0 {
		t.Fatalf("pending orders = %d, want the leg cancelled", len(pending))
	}
	// One close record; no margin call, stop-out, or second breach record.
	records := f.store.ActivityRecords()
	if len(records) != 1 || records[0].Event != domain.EventPositionClosed {
		t.Fatalf("activity = %+v, want exactly one close record", records)
	}
	if got := mustGetAccount(t, f.store, "acct-1"); !got.Breached() || got.IsActive {
		t.Fatalf("account = %+v, want still breached and inactive", got)
	}
}

// stubLocks always reports the pass lock as held elsewhere.
type stubLocks struct{}

func (stubLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}

func TestEvaluateSkipsPassWhenLockHeld(t *testing.T) {
	f := newFixture(t, Config{PassLockTTL: 10 * time.Second})
	f.eng.locks = stubLocks{}

	f.store.PutAccount(activeAccount("acct-1", "100000"))
	f.store.PutPosition(openPosition("pos-1", "acct-1", "BTCUSD", domain.DirectionLong, "0.01", "67971.44", 10))
	f.store.PutOrder(pendingOrder("ord-1", "pos-1", domain.OrderTypeStop, "66000"))

	prices := map[string]domain.Tick{"BTCUSD": tick("BTCUSD", "65990", "66010")}
	if err := f.eng.Evaluate(context.Background(), prices); err != nil {
		t.Fatalf("evaluate with held lock: %v", err)
	}
	if got := mustGetPosition(t, f.store, "pos-1").Status; got != domain.PositionStatusOpen {
		t.Fatalf("pass ran despite held lock, status = %s", got)
	}
}

func TestEvaluateReChecksMarginAfterOrderFills(t *testing.T) {
	// A stop fill shrinks the open set; the margin check must run against the
	// re-derived list, not the pre-match snapshot.
	f := newFixture(t, Config{})

	acct := activeAccount("acct-1", "10000")
	acct.TotalMarginRequired = d("800")
	acct.AvailableMargin = d("9200")
	f.store.PutAccount(acct)

	closing := openPosition("pos-1", "acct-1", "BTCUSD", domain.DirectionLong, "0.01", "68000", 10)
	closing.IsolatedMargin = d("680")
	f.store.PutPosition(closing)
	f.store.PutOrder(pendingOrder("ord-1", "pos-1", domain.OrderTypeStop, "67000"))

	surviving := openPosition("pos-2", "acct-1", "ETHUSD", domain.DirectionLong, "1", "3200", 5)
	surviving.IsolatedMargin = d("120")
	f.store.PutPosition(surviving)

	prices := map[string]domain.Tick{
		"BTCUSD": tick("BTCUSD", "66900", "66910"),
		"ETHUSD": tick("ETHUSD", "3210", "3211"),
	}
	if err := f.eng.Evaluate(context.Background(), prices); err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	if got := mustGetPosition(t, f.store, "pos-1").Status; got != domain.PositionStatusClosed {
		t.Fatalf("stop did not fill, status = %s", got)
	}
	if got := mustGetPosition(t, f.store, "pos-2").Status; got != domain.PositionStatusOpen {
		t.Fatalf("healthy position was closed, status = %s", got)
	}
	// Margin released by the fill keeps the account well above every level.
	if got := mustGetAccount(t, f.store, "acct-1").Status; got != domain.AccountStatusActive {
		t.Fatalf("account status = %s, want active", got)
	}
}

func TestUnrealizedPnLSkipsUnquotedSymbols(t *testing.T) {
	positions := []domain.Position{
		openPosition("pos-1", "acct-1", "BTCUSD", domain.DirectionLong, "0.01", "68000", 10),
		openPosition("pos-2", "acct-1", "NOQUOTE", domain.DirectionShort, "1", "50", 2),
	}
	prices := map[string]domain.Tick{"BTCUSD": tick("BTCUSD", "67000", "67010")}

	// Only the quoted long contributes: (67000-68000)*0.01*10 = -100.
	got := unrealizedPnL(positions, prices)
	if !got.Equal(d("-100")) {
		t.Fatalf("unrealizedPnL = %s, want -100", got)
	}
}
