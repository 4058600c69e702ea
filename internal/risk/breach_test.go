package risk

import (
	"context"
	"testing"
	"time"

	"github.com/Pablo69latrick/teda-clone-sub002/internal/domain"
)

func drawdownConfig() Config {
	return Config{
		FeeRate:          d("0.0007"),
		MaxDrawdownPct:   d("0.10"),
		DailyDrawdownPct: d("0.05"),
	}
}

func TestCheckDrawdownMaxBreachClosesEverything(t *testing.T) {
	f := newFixture(t, drawdownConfig())
	acct := activeAccount("acct-1", "10000")
	f.store.PutAccount(acct)

	posA := openPosition("pos-a", "acct-1", "AAAUSD", domain.DirectionLong, "1", "100", 1)
	posB := openPosition("pos-b", "acct-1", "BBBUSD", domain.DirectionShort, "1", "200", 1)
	f.store.PutPosition(posA)
	f.store.PutPosition(posB)
	open := []domain.Position{posA, posB}
	prices := map[string]domain.Tick{
		"AAAUSD": tick("AAAUSD", "90", "91"),
		"BBBUSD": tick("BBBUSD", "210", "211"),
	}

	// Equity exactly 10% below the starting balance trips the limit.
	if err := f.eng.checkDrawdown(context.Background(), acct, open, prices, d("9000")); err != nil {
		t.Fatalf("checkDrawdown: %v", err)
	}

	got := mustGetAccount(t, f.store, "acct-1")
	if !got.Breached() {
		t.Fatalf("account status = %s, want breached", got.Status)
	}
	if got.IsActive {
		t.Fatal("breached account must be deactivated")
	}
	for _, id := range []string{"pos-a", "pos-b"} {
		p := mustGetPosition(t, f.store, id)
		if p.Status != domain.PositionStatusClosed {
			t.Fatalf("%s status = %s, want closed", id, p.Status)
		}
		if p.CloseReason == nil || *p.CloseReason != domain.CloseReasonLiquidation {
			t.Fatalf("%s close reason = %v, want liquidation", id, p.CloseReason)
		}
	}

	// Two close records plus the breach record itself.
	records := f.store.ActivityRecords()
	if len(records) != 3 {
		t.Fatalf("activity records = %d, want 3", len(records))
	}
	var breaches int
	for _, rec := range records {
		if rec.Event == domain.EventAccountBreached {
			breaches++
		}
	}
	if breaches != 1 {
		t.Fatalf("breach records = %d, want 1", breaches)
	}

	// The terminal transition was claimed; a repeat pass does nothing more.
	if err := f.eng.checkDrawdown(context.Background(), acct, nil, prices, d("9000")); err != nil {
		t.Fatalf("second checkDrawdown: %v", err)
	}
	if n := len(f.store.ActivityRecords()); n != 3 {
		t.Fatalf("activity records after repeat = %d, want still 3", n)
	}
}

func TestCheckDrawdownDailyFloorUsesLargerBaseline(t *testing.T) {
	f := newFixture(t, drawdownConfig())
	acct := activeAccount("acct-1", "10000")
	acct.DayStartEquity = d("10500")
	f.store.PutAccount(acct)

	// Floor = max(10000, 10500) * 0.95 = 9975. Equity at the floor breaches,
	// while staying well clear of the 10% maximum drawdown limit.
	if err := f.eng.checkDrawdown(context.Background(), acct, nil, nil, d("9975")); err != nil {
		t.Fatalf("checkDrawdown: %v", err)
	}
	if got := mustGetAccount(t, f.store, "acct-1"); !got.Breached() {
		t.Fatalf("account status = %s, want breached at the daily floor", got.Status)
	}
}

func TestCheckDrawdownSkipsStaleDailyBaseline(t *testing.T) {
	f := newFixture(t, drawdownConfig())
	acct := activeAccount("acct-1", "10000")
	acct.DayStartDate = time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	f.store.PutAccount(acct)

	// 9400 is below yesterday's floor but the baseline has not rolled to
	// today, so only the maximum drawdown limit applies, and 6% is within it.
	if err := f.eng.checkDrawdown(context.Background(), acct, nil, nil, d("9400")); err != nil {
		t.Fatalf("checkDrawdown: %v", err)
	}
	if got := mustGetAccount(t, f.store, "acct-1"); got.Breached() {
		t.Fatal("stale daily baseline must not be evaluated")
	}
}

func TestBreachedLeftoverSettlesAtNextQuoteWithoutFillingLegs(t *testing.T) {
	f := newFixture(t, drawdownConfig())
	acct := activeAccount("acct-1", "10000")
	f.store.PutAccount(acct)

	pos := openPosition("pos-1", "acct-1", "NOQUOTE", domain.DirectionLong, "1", "100", 1)
	f.store.PutPosition(pos)
	f.store.PutOrder(pendingOrder("ord-1", "pos-1", domain.OrderTypeStop, "95"))

	// Breach with the symbol unquoted: the position survives the close-all
	// and its stop leg stays pending.
	if err := f.eng.checkDrawdown(context.Background(), acct, []domain.Position{pos}, nil, d("8500")); err != nil {
		t.Fatalf("checkDrawdown: %v", err)
	}
	if got := mustGetPosition(t, f.store, "pos-1").Status; got != domain.PositionStatusOpen {
		t.Fatalf("status after breach = %s, want open while unquoted", got)
	}

	// The next pass sees a quote that would also trigger the stop. The
	// leftover must settle as a liquidation; the leg must never fill.
	prices := map[string]domain.Tick{"NOQUOTE": tick("NOQUOTE", "90", "91")}
	if err := f.eng.Evaluate(context.Background(), prices); err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	got := mustGetPosition(t, f.store, "pos-1")
	if got.Status != domain.PositionStatusClosed {
		t.Fatalf("leftover status = %s, want closed", got.Status)
	}
	if got.CloseReason == nil || *got.CloseReason != domain.CloseReasonLiquidation {
		t.Fatalf("close reason = %v, want liquidation", got.CloseReason)
	}
	if got.ExitPrice == nil || !got.ExitPrice.Equal(d("90")) {
		t.Fatalf("exit price = %v, want the bid 90", got.ExitPrice)
	}
	pending, _ := f.store.Orders().ListPendingForOpenPositions(context.Background())
	if len(pending) != 0 {
		t.Fatalf("pending orders = %d, want the leg cancelled", len(pending))
	}
}

func TestCheckDrawdownLeavesUnquotedPositionsOpen(t *testing.T) {
	f := newFixture(t, drawdownConfig())
	acct := activeAccount("acct-1", "10000")
	f.store.PutAccount(acct)

	quoted := openPosition("pos-q", "acct-1", "AAAUSD", domain.DirectionLong, "1", "100", 1)
	unquoted := openPosition("pos-u", "acct-1", "NOQUOTE", domain.DirectionLong, "1", "100", 1)
	f.store.PutPosition(quoted)
	f.store.PutPosition(unquoted)
	prices := map[string]domain.Tick{"AAAUSD": tick("AAAUSD", "90", "91")}

	if err := f.eng.checkDrawdown(context.Background(), acct, []domain.Position{quoted, unquoted}, prices, d("8500")); err != nil {
		t.Fatalf("checkDrawdown: %v", err)
	}

	if got := mustGetAccount(t, f.store, "acct-1"); !got.Breached() {
		t.Fatalf("account status = %s, want breached", got.Status)
	}
	if got := mustGetPosition(t, f.store, "pos-q").Status; got != domain.PositionStatusClosed {
		t.Fatalf("quoted position status = %s, want closed", got)
	}
	if got := mustGetPosition(t, f.store, "pos-u").Status; got != domain.PositionStatusOpen {
		t.Fatalf("unquoted position status = %s, want left open", got)
	}
}
