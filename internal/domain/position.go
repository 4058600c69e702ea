package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction indicates which side of the market a position is on.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// PositionStatus tracks whether a position is open or closed. Closed is
// terminal: the close-only fields are written exactly once, together.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// CloseReason records what triggered a position close.
type CloseReason string

const (
	CloseReasonManual      CloseReason = "manual"
	CloseReasonStopLoss    CloseReason = "sl"
	CloseReasonTakeProfit  CloseReason = "tp"
	CloseReasonLiquidation CloseReason = "liquidation"
)

// Position represents an open or historical leveraged position.
type Position struct {
	ID             string
	AccountID      string
	Symbol         string
	Direction      Direction
	Quantity       decimal.Decimal // positive
	Leverage       int64           // positive
	EntryPrice     decimal.Decimal
	IsolatedMargin decimal.Decimal // collateral set aside for this position
	TradeFees      decimal.Decimal // fees accrued before close
	Status         PositionStatus
	OpenedAt       time.Time

	// Set together, once, when the position closes.
	ExitPrice   *decimal.Decimal
	ExitAt      *time.Time
	RealizedPnL *decimal.Decimal
	CloseReason *CloseReason
	TotalFees   *decimal.Decimal
}

// PnLAt returns the P&L this position would realize if closed at exitPrice:
// directional price difference times quantity times leverage.
func (p Position) PnLAt(exitPrice decimal.Decimal) decimal.Decimal {
	diff := exitPrice.Sub(p.EntryPrice)
	if p.Direction == DirectionShort {
		diff = p.EntryPrice.Sub(exitPrice)
	}
	return diff.Mul(p.Quantity).Mul(decimal.NewFromInt(p.Leverage))
}

// ExitPriceFrom returns the side of the spread a close would execute at:
// longs sell into the bid, shorts buy back at the ask. The mid price is
// never used for exits.
func (p Position) ExitPriceFrom(t Tick) decimal.Decimal {
	if p.Direction == DirectionShort {
		return t.Ask
	}
	return t.Bid
}

// PositionClose carries the close-only fields written when a position is
// claimed by the closer.
type PositionClose struct {
	ExitPrice   decimal.Decimal
	ExitAt      time.Time
	RealizedPnL decimal.Decimal
	TotalFees   decimal.Decimal
	Reason      CloseReason
}
