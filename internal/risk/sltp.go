package risk

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Pablo69latrick/teda-clone-sub002/internal/domain"
)

// matchConditionalOrders scans every pending stop/limit order linked to an
// open position and closes the position when the realistic exit price, the
// opposing side of the spread, crosses the order's level. Symbols with no
// quote are skipped silently, as are positions of breached accounts: those
// are settled by the breach sweep, never through their legs. Each fill is
// claimed with a conditional update, and the closer's own claim prevents a
// position from settling twice even if both its legs were triggerable in
// the same tick.
func (e *Engine) matchConditionalOrders(ctx context.Context, prices map[string]domain.Tick, breached map[string]bool) error {
	pending, err := e.orders.ListPendingForOpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("list pending orders: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	open, err := e.positions.ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("list open positions: %w", err)
	}
	posByID := make(map[string]domain.Position, len(open))
	for _, pos := range open {
		posByID[pos.ID] = pos
	}

	closed := make(map[string]bool)
	for _, ord := range pending {
		pos, ok := posByID[ord.PositionID]
		if !ok || closed[pos.ID] || breached[pos.AccountID] {
			continue
		}
		tick, ok := prices[pos.Symbol]
		if !ok {
			continue
		}

		exitPrice := pos.ExitPriceFrom(tick)
		if !ord.Triggered(pos.Direction, exitPrice) {
			continue
		}

		filled, err := e.orders.Fill(ctx, ord.ID)
		if err != nil {
			return fmt.Errorf("fill order %s: %w", ord.ID, err)
		}
		if !filled {
			// The order left pending state since it was listed.
			continue
		}

		reason := ord.CloseReason()
		e.logger.InfoContext(ctx, "conditional order triggered",
			slog.String("order_id", ord.ID),
			slog.String("position_id", pos.ID),
			slog.String("symbol", pos.Symbol),
			slog.String("reason", string(reason)),
			slog.String("level", ord.Price.String()),
			slog.String("exit_price", exitPrice.String()),
		)

		if err := e.ClosePosition(ctx, pos, exitPrice, reason); err != nil {
			return err
		}
		closed[pos.ID] = true
	}
	return nil
}
