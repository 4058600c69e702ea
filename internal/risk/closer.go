package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Pablo69latrick/teda-clone-sub002/internal/domain"
)

// ClosePosition settles one position at exitPrice. It is the single shared
// path for stop/limit fills, stop-out liquidation, and breach liquidation.
//
// The conditional CloseOpen update is the double-close guard: it claims the
// row exactly once, so a duplicate or concurrent trigger for the same
// position, in the same tick or a later one, returns without effect instead
// of settling twice.
func (e *Engine) ClosePosition(ctx context.Context, pos domain.Position, exitPrice decimal.Decimal, reason domain.CloseReason) error {
	realized := pos.PnLAt(exitPrice)
	// The fee applies to the leveraged exit notional.
	closeFee := exitPrice.Mul(pos.Quantity).Mul(decimal.NewFromInt(pos.Leverage)).Mul(e.cfg.FeeRate)
	now := e.now()

	claimed, err := e.positions.CloseOpen(ctx, pos.ID, domain.PositionClose{
		ExitPrice:   exitPrice,
		ExitAt:      now,
		RealizedPnL: realized,
		TotalFees:   pos.TradeFees.Add(closeFee),
		Reason:      reason,
	})
	if err != nil {
		return fmt.Errorf("close position %s: %w", pos.ID, err)
	}
	if !claimed {
		return nil
	}

	// The remaining leg orders of a closed position can never fill.
	if _, err := e.orders.CancelPendingForPosition(ctx, pos.ID); err != nil {
		return fmt.Errorf("cancel pending orders for %s: %w", pos.ID, err)
	}

	acct, err := e.accounts.ApplyClose(ctx, pos.AccountID, domain.AccountCloseDelta{
		MarginRelease: pos.IsolatedMargin,
		RealizedPnL:   realized,
		CloseFee:      closeFee,
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// No account row to settle against; the position close stands.
			e.logger.WarnContext(ctx, "close settled without account",
				slog.String("position_id", pos.ID),
				slog.String("account_id", pos.AccountID),
			)
			return nil
		}
		return fmt.Errorf("apply close to account %s: %w", pos.AccountID, err)
	}

	rec := domain.ActivityRecord{
		ID:        uuid.New().String(),
		AccountID: pos.AccountID,
		Event:     domain.EventPositionClosed,
		Message: fmt.Sprintf("closed %s %s %s at %s (%s): pnl %s, fee %s",
			pos.Direction, pos.Quantity, pos.Symbol, exitPrice, reason,
			realized.StringFixed(4), closeFee.StringFixed(4)),
		Detail: map[string]any{
			"position_id":  pos.ID,
			"symbol":       pos.Symbol,
			"direction":    string(pos.Direction),
			"quantity":     pos.Quantity.String(),
			"exit_price":   exitPrice.String(),
			"realized_pnl": realized.String(),
			"close_fee":    closeFee.String(),
			"close_reason": string(reason),
		},
		CreatedAt: now,
	}
	if err := e.activity.Insert(ctx, rec); err != nil {
		return fmt.Errorf("insert close activity for %s: %w", pos.ID, err)
	}

	if err := e.equity.Insert(ctx, domain.EquityPoint{
		ID:              uuid.New().String(),
		AccountID:       pos.AccountID,
		AvailableMargin: acct.AvailableMargin,
		RealizedPnL:     acct.RealizedPnL,
		CreatedAt:       now,
	}); err != nil {
		return fmt.Errorf("insert equity point for %s: %w", pos.AccountID, err)
	}

	e.publish(ctx, map[string]any{
		"event":        domain.EventPositionClosed,
		"position_id":  pos.ID,
		"account_id":   pos.AccountID,
		"symbol":       pos.Symbol,
		"exit_price":   exitPrice.String(),
		"realized_pnl": realized.String(),
		"close_reason": string(reason),
	})

	e.logger.InfoContext(ctx, "position closed",
		slog.String("position_id", pos.ID),
		slog.String("account_id", pos.AccountID),
		slog.String("symbol", pos.Symbol),
		slog.String("exit_price", exitPrice.String()),
		slog.String("realized_pnl", realized.StringFixed(4)),
		slog.String("close_reason", string(reason)),
	)
	return nil
}
