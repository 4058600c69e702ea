package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderType distinguishes the two conditional close legs a position may
// carry: a stop order is the stop-loss, a limit order is the take-profit.
type OrderType string

const (
	OrderTypeStop  OrderType = "stop"
	OrderTypeLimit OrderType = "limit"
)

// OrderStatus tracks the order lifecycle. A pending order transitions to
// filled or cancelled exactly once.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order is a conditional close order linked to an open position. A position
// conceptually carries at most one active stop and one active limit leg.
type Order struct {
	ID         string
	PositionID string
	Type       OrderType
	Price      decimal.Decimal // stop price for stop orders, limit price for limit orders
	Status     OrderStatus
	CreatedAt  time.Time
}

// Triggered reports whether a close executing at exitPrice crosses this
// order's level for a position on the given side. Stops trigger when the
// exit has moved against the position, limits when it has moved in favor.
func (o Order) Triggered(dir Direction, exitPrice decimal.Decimal) bool {
	switch o.Type {
	case OrderTypeStop:
		if dir == DirectionLong {
			return exitPrice.LessThanOrEqual(o.Price)
		}
		return exitPrice.GreaterThanOrEqual(o.Price)
	case OrderTypeLimit:
		if dir == DirectionLong {
			return exitPrice.GreaterThanOrEqual(o.Price)
		}
		return exitPrice.LessThanOrEqual(o.Price)
	}
	return false
}

// CloseReason maps the order type to the close reason recorded on the
// position it triggers.
func (o Order) CloseReason() CloseReason {
	if o.Type == OrderTypeLimit {
		return CloseReasonTakeProfit
	}
	return CloseReasonStopLoss
}
