package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Activity event names written by the risk engine.
const (
	EventPositionClosed  = "position_closed"
	EventMarginCall      = "margin_call"
	EventStopOut         = "stop_out"
	EventAccountBreached = "account_breached"
)

// ActivityRecord is one append-only audit entry for an account. Records are
// written once per close or breach event and never mutated.
type ActivityRecord struct {
	ID        string         `json:"id"`
	AccountID string         `json:"account_id"`
	Event     string         `json:"event"`
	Message   string         `json:"message"` // human-readable description of the trigger
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// EquityPoint is one append-only sample of an account's balances, written
// after each position close.
type EquityPoint struct {
	ID              string          `json:"id"`
	AccountID       string          `json:"account_id"`
	AvailableMargin decimal.Decimal `json:"available_margin"` // post-close available margin
	RealizedPnL     decimal.Decimal `json:"realized_pnl"`     // account lifetime realized P&L
	CreatedAt       time.Time       `json:"created_at"`
}
