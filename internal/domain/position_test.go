package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestPnLAtScalesWithLeverage(t *testing.T) {
	long := Position{Direction: DirectionLong, Quantity: dec("0.01"), Leverage: 10, EntryPrice: dec("67971.44")}
	if got := long.PnLAt(dec("65990")); !got.Equal(dec("-198.144")) {
		t.Fatalf("long pnl = %s, want -198.144", got)
	}

	short := Position{Direction: DirectionShort, Quantity: dec("2"), Leverage: 5, EntryPrice: dec("3300")}
	if got := short.PnLAt(dec("3200")); !got.Equal(dec("1000")) {
		t.Fatalf("short pnl = %s, want 1000", got)
	}
}

func TestExitPriceFromUsesOpposingSide(t *testing.T) {
	quote := Tick{Symbol: "BTCUSD", Bid: dec("65990"), Ask: dec("66010"), Last: dec("66000")}

	long := Position{Direction: DirectionLong}
	if got := long.ExitPriceFrom(quote); !got.Equal(quote.Bid) {
		t.Fatalf("long exit = %s, want the bid", got)
	}
	short := Position{Direction: DirectionShort}
	if got := short.ExitPriceFrom(quote); !got.Equal(quote.Ask) {
		t.Fatalf("short exit = %s, want the ask", got)
	}
}

func TestOrderTriggered(t *testing.T) {
	cases := []struct {
		name string
		typ  OrderType
		dir  Direction
		lvl  string
		exit string
		want bool
	}{
		{"long stop hit at level", OrderTypeStop, DirectionLong, "66000", "66000", true},
		{"long stop hit below", OrderTypeStop, DirectionLong, "66000", "65990", true},
		{"long stop above level", OrderTypeStop, DirectionLong, "66000", "66001", false},
		{"short stop hit above", OrderTypeStop, DirectionShort, "70000", "70010", true},
		{"short stop below level", OrderTypeStop, DirectionShort, "70000", "69999", false},
		{"long limit hit at level", OrderTypeLimit, DirectionLong, "70000", "70000", true},
		{"long limit below level", OrderTypeLimit, DirectionLong, "70000", "69999", false},
		{"short limit hit below", OrderTypeLimit, DirectionShort, "66000", "65990", true},
		{"short limit above level", OrderTypeLimit, DirectionShort, "66000", "66001", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ord := Order{Type: tc.typ, Price: dec(tc.lvl)}
			if got := ord.Triggered(tc.dir, dec(tc.exit)); got != tc.want {
				t.Fatalf("Triggered(%s, %s) = %v, want %v", tc.dir, tc.exit, got, tc.want)
			}
		})
	}
}

func TestDayRolledTo(t *testing.T) {
	noon := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

	fresh := Account{DayStartDate: time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC)}
	if !fresh.DayRolledTo(noon) {
		t.Fatal("same UTC day must count as rolled")
	}

	// A baseline stamped late yesterday in a +2h zone is still yesterday in UTC.
	offset := time.FixedZone("plus2", 2*60*60)
	stale := Account{DayStartDate: time.Date(2026, 8, 26, 1, 30, 0, 0, offset)}
	if stale.DayRolledTo(noon) {
		t.Fatal("baseline from the previous UTC day must not count")
	}

	never := Account{}
	if never.DayRolledTo(noon) {
		t.Fatal("zero baseline must not count")
	}
}
