package risk

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/Pablo69latrick/teda-clone-sub002/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// checkMargin computes the account's margin level and enforces the two
// thresholds: a margin call (notification only) at MarginCallLevel and a
// stop-out at StopOutLevel, which force-closes the single worst position.
// It reports whether a stop-out fired, in which case the caller must stop
// processing this account for the current tick: delevering is iterative, one
// position per pass.
func (e *Engine) checkMargin(ctx context.Context, acct domain.Account, open []domain.Position, prices map[string]domain.Tick, equity decimal.Decimal) (bool, error) {
	if !acct.TotalMarginRequired.IsPositive() {
		return false, nil
	}
	level := equity.Div(acct.TotalMarginRequired).Mul(hundred)
	if level.GreaterThan(e.cfg.MarginCallLevel) {
		return false, nil
	}

	if level.GreaterThan(e.cfg.StopOutLevel) {
		e.logger.WarnContext(ctx, "margin call",
			slog.String("account_id", acct.ID),
			slog.String("margin_level", level.StringFixed(2)),
			slog.String("equity", equity.StringFixed(2)),
		)
		e.alert(ctx, domain.EventMarginCall, "Margin call",
			fmt.Sprintf("account %s margin level %s%% (equity $%s, margin required $%s)",
				acct.ID, level.StringFixed(2), equity.StringFixed(2), acct.TotalMarginRequired.StringFixed(2)))
		return false, nil
	}

	worst, worstPnL, exitPrice, ok := worstPosition(open, prices)
	if !ok {
		// Nothing quoted to liquidate; the next tick retries.
		return false, nil
	}

	e.logger.WarnContext(ctx, "stop-out",
		slog.String("account_id", acct.ID),
		slog.String("margin_level", level.StringFixed(2)),
		slog.String("position_id", worst.ID),
		slog.String("symbol", worst.Symbol),
		slog.String("unrealized_pnl", worstPnL.StringFixed(4)),
	)
	e.alert(ctx, domain.EventStopOut, "Stop-out",
		fmt.Sprintf("account %s margin level %s%%: liquidating %s %s %s (unrealized %s)",
			acct.ID, level.StringFixed(2), worst.Direction, worst.Quantity, worst.Symbol, worstPnL.StringFixed(2)))

	if err := e.ClosePosition(ctx, worst, exitPrice, domain.CloseReasonLiquidation); err != nil {
		return false, err
	}
	return true, nil
}

// worstPosition returns the quoted open position with the most negative
// unrealized P&L, its P&L, and its exit price. Ties keep the earliest
// position in fetch order. ok is false when no position has a quote.
func worstPosition(open []domain.Position, prices map[string]domain.Tick) (worst domain.Position, worstPnL, exitPrice decimal.Decimal, ok bool) {
	for _, pos := range open {
		tick, quoted := prices[pos.Symbol]
		if !quoted {
			continue
		}
		exit := pos.ExitPriceFrom(tick)
		pnl := pos.PnLAt(exit)
		if !ok || pnl.LessThan(worstPnL) {
			worst, worstPnL, exitPrice, ok = pos, pnl, exit, true
		}
	}
	return worst, worstPnL, exitPrice, ok
}
