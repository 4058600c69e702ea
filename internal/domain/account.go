package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountStatus tracks the lifecycle of a trading account. Breached is
// terminal: a breached account is excluded from every later risk pass.
type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "active"
	AccountStatusBreached AccountStatus = "breached"
)

// Account holds the balances and drawdown baselines of one trading account.
// TotalMarginRequired is the sum of isolated margin over the account's open
// positions and is floored at zero on release.
type Account struct {
	ID                  string
	AvailableMargin     decimal.Decimal
	TotalMarginRequired decimal.Decimal
	NetWorth            decimal.Decimal
	TotalPnL            decimal.Decimal
	RealizedPnL         decimal.Decimal
	StartingBalance     decimal.Decimal
	DayStartBalance     decimal.Decimal
	DayStartEquity      decimal.Decimal
	DayStartDate        time.Time // date component only; zero when never rolled
	Status              AccountStatus
	IsActive            bool
}

// Breached reports whether the account has reached its terminal state.
func (a Account) Breached() bool {
	return a.Status == AccountStatusBreached
}

// DayRolledTo reports whether the account's daily drawdown baseline belongs
// to the same calendar day (UTC) as now. A stale baseline means the day has
// not rolled yet and the daily limit is not evaluated.
func (a Account) DayRolledTo(now time.Time) bool {
	if a.DayStartDate.IsZero() {
		return false
	}
	y1, m1, d1 := a.DayStartDate.UTC().Date()
	y2, m2, d2 := now.UTC().Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// AccountCloseDelta is the balance adjustment produced by closing one
// position. Applied atomically by the account store:
//
//	available_margin      += MarginRelease + RealizedPnL - CloseFee
//	total_margin_required  = max(0, total_margin_required - MarginRelease)
//	realized_pnl          += RealizedPnL
//	total_pnl             += RealizedPnL
//	net_worth             += RealizedPnL - CloseFee
type AccountCloseDelta struct {
	MarginRelease decimal.Decimal // the position's isolated margin
	RealizedPnL   decimal.Decimal
	CloseFee      decimal.Decimal
}
