package risk

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Pablo69latrick/teda-clone-sub002/internal/domain"
)

var one = decimal.NewFromInt(1)

// checkDrawdown enforces the two equity drawdown limits. The maximum
// drawdown is measured against the starting balance; the daily drawdown
// against the larger of the day-start balance and day-start equity, and only
// when the daily baseline belongs to the current day; a stale baseline is
// not evaluated. A breach is terminal: every open position is force-closed
// and the account is deactivated.
func (e *Engine) checkDrawdown(ctx context.Context, acct domain.Account, open []domain.Position, prices map[string]domain.Tick, equity decimal.Decimal) error {
	message, detail, breached := e.breachTrigger(acct, equity)
	if !breached {
		return nil
	}

	// Claim the terminal transition first so concurrent passes cannot both
	// run the close-all sequence.
	claimed, err := e.accounts.MarkBreached(ctx, acct.ID)
	if err != nil {
		return fmt.Errorf("mark account %s breached: %w", acct.ID, err)
	}
	if !claimed {
		return nil
	}

	e.logger.WarnContext(ctx, "account breached",
		slog.String("account_id", acct.ID),
		slog.String("equity", equity.StringFixed(2)),
		slog.String("trigger", message),
	)

	for _, pos := range open {
		tick, ok := prices[pos.Symbol]
		if !ok {
			e.logger.WarnContext(ctx, "breached account position has no quote, left open",
				slog.String("account_id", acct.ID),
				slog.String("position_id", pos.ID),
				slog.String("symbol", pos.Symbol),
			)
			continue
		}
		if err := e.ClosePosition(ctx, pos, pos.ExitPriceFrom(tick), domain.CloseReasonLiquidation); err != nil {
			return err
		}
	}

	rec := domain.ActivityRecord{
		ID:        uuid.New().String(),
		AccountID: acct.ID,
		Event:     domain.EventAccountBreached,
		Message:   message,
		Detail:    detail,
		CreatedAt: e.now(),
	}
	if err := e.activity.Insert(ctx, rec); err != nil {
		return fmt.Errorf("insert breach activity for %s: %w", acct.ID, err)
	}

	e.publish(ctx, map[string]any{
		"event":      domain.EventAccountBreached,
		"account_id": acct.ID,
		"equity":     equity.String(),
		"message":    message,
	})
	e.alert(ctx, domain.EventAccountBreached, "Account breached",
		fmt.Sprintf("account %s: %s", acct.ID, message))
	return nil
}

// closeBreachedRemainders finishes the close-all of breached accounts. A
// breach leaves unquoted positions open, and a repository failure can abort
// the close-all midway after the terminal claim; either way the leftovers
// are settled at their next quote, always as liquidations, never through
// their leg orders.
func (e *Engine) closeBreachedRemainders(ctx context.Context, open []domain.Position, breached map[string]bool, prices map[string]domain.Tick) error {
	if len(breached) == 0 {
		return nil
	}
	for _, pos := range open {
		if !breached[pos.AccountID] {
			continue
		}
		tick, ok := prices[pos.Symbol]
		if !ok {
			continue
		}
		e.logger.InfoContext(ctx, "settling leftover position of breached account",
			slog.String("account_id", pos.AccountID),
			slog.String("position_id", pos.ID),
			slog.String("symbol", pos.Symbol),
		)
		if err := e.ClosePosition(ctx, pos, pos.ExitPriceFrom(tick), domain.CloseReasonLiquidation); err != nil {
			return err
		}
	}
	return nil
}

// breachTrigger evaluates both drawdown limits and, when one is hit, builds
// the human-readable audit message naming the exact percentage and dollar
// equity value.
func (e *Engine) breachTrigger(acct domain.Account, equity decimal.Decimal) (string, map[string]any, bool) {
	if acct.StartingBalance.IsPositive() {
		drawdown := acct.StartingBalance.Sub(equity).Div(acct.StartingBalance)
		if drawdown.GreaterThanOrEqual(e.cfg.MaxDrawdownPct) {
			msg := fmt.Sprintf("maximum drawdown breached: equity $%s is %s%% below starting balance $%s (limit %s%%)",
				equity.StringFixed(2),
				drawdown.Mul(hundred).StringFixed(2),
				acct.StartingBalance.StringFixed(2),
				e.cfg.MaxDrawdownPct.Mul(hundred).StringFixed(2))
			return msg, map[string]any{
				"trigger":      "max_drawdown",
				"equity":       equity.String(),
				"drawdown_pct": drawdown.String(),
			}, true
		}
	}

	if acct.DayRolledTo(e.now()) {
		base := decimal.Max(acct.DayStartBalance, acct.DayStartEquity)
		floor := base.Mul(one.Sub(e.cfg.DailyDrawdownPct))
		if equity.LessThanOrEqual(floor) {
			msg := fmt.Sprintf("daily drawdown breached: equity $%s fell to the daily floor $%s (%s%% below day baseline $%s)",
				equity.StringFixed(2),
				floor.StringFixed(2),
				e.cfg.DailyDrawdownPct.Mul(hundred).StringFixed(2),
				base.StringFixed(2))
			return msg, map[string]any{
				"trigger":     "daily_drawdown",
				"equity":      equity.String(),
				"daily_floor": floor.String(),
			}, true
		}
	}

	return "", nil, false
}
