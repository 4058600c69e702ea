// Package risk implements the position risk engine: the periodic pass that
// enforces stop-loss/take-profit execution, margin-call and stop-out
// liquidation, and drawdown account breach over every open leveraged
// position. All three enforcement paths funnel through one shared,
// idempotent position closer.
package risk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/Pablo69latrick/teda-clone-sub002/internal/domain"
)

// passLockKey is the distributed lock claimed for the duration of one
// evaluation pass when a lock manager is configured.
const passLockKey = "risk:evaluate"

// EventChannel is the bus channel the engine publishes its events to.
const EventChannel = "risk"

// Notifier delivers operator alerts. *notify.Notifier satisfies it.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config holds the engine's thresholds and pass timing.
type Config struct {
	// MinInterval bounds how often a full evaluation pass runs regardless of
	// tick frequency. Rejected ticks are dropped, not queued.
	MinInterval time.Duration
	// FeeRate is the close fee as a fraction of exit notional.
	FeeRate decimal.Decimal
	// MarginCallLevel is the margin level (percent) at or below which a
	// margin call is raised. Notification only, no state mutation.
	MarginCallLevel decimal.Decimal
	// StopOutLevel is the margin level (percent) at or below which the worst
	// position is force-closed.
	StopOutLevel decimal.Decimal
	// MaxDrawdownPct is the fraction of starting balance that, once lost,
	// breaches the account.
	MaxDrawdownPct decimal.Decimal
	// DailyDrawdownPct is the fraction below the daily baseline at which the
	// account breaches. Evaluated only when the daily baseline is current.
	DailyDrawdownPct decimal.Decimal
	// PassLockTTL enables a distributed pass lock when positive, so engines
	// sharing one database skip a pass instead of racing it.
	PassLockTTL time.Duration
	// AccountConcurrency bounds how many accounts are evaluated in parallel
	// within one pass. The closer's conditional update keeps this safe.
	AccountConcurrency int
}

// DefaultConfig returns the reference thresholds.
func DefaultConfig() Config {
	return Config{
		MinInterval:        2 * time.Second,
		FeeRate:            decimal.NewFromFloat(0.0007),
		MarginCallLevel:    decimal.NewFromInt(100),
		StopOutLevel:       decimal.NewFromInt(50),
		MaxDrawdownPct:     decimal.NewFromFloat(0.10),
		DailyDrawdownPct:   decimal.NewFromFloat(0.05),
		AccountConcurrency: 1,
	}
}

// withDefaults fills zero-valued fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MinInterval <= 0 {
		c.MinInterval = def.MinInterval
	}
	if c.FeeRate.IsZero() {
		c.FeeRate = def.FeeRate
	}
	if c.MarginCallLevel.IsZero() {
		c.MarginCallLevel = def.MarginCallLevel
	}
	if c.StopOutLevel.IsZero() {
		c.StopOutLevel = def.StopOutLevel
	}
	if c.MaxDrawdownPct.IsZero() {
		c.MaxDrawdownPct = def.MaxDrawdownPct
	}
	if c.DailyDrawdownPct.IsZero() {
		c.DailyDrawdownPct = def.DailyDrawdownPct
	}
	if c.AccountConcurrency < 1 {
		c.AccountConcurrency = def.AccountConcurrency
	}
	return c
}

// Deps bundles the ports the engine operates through. The stores are
// required; Bus, Locks, and Notifier may be nil.
type Deps struct {
	Positions domain.PositionStore
	Orders    domain.OrderStore
	Accounts  domain.AccountStore
	Activity  domain.ActivityStore
	Equity    domain.EquityStore
	Bus       domain.SignalBus
	Locks     domain.LockManager
	Notifier  Notifier
}

// Engine evaluates all open positions against the latest prices. It is
// invoked synchronously by the tick feeder and holds no state between passes
// beyond the throttle timestamp; every pass re-derives from persisted truth.
type Engine struct {
	cfg       Config
	positions domain.PositionStore
	orders    domain.OrderStore
	accounts  domain.AccountStore
	activity  domain.ActivityStore
	equity    domain.EquityStore
	bus       domain.SignalBus
	locks     domain.LockManager
	notifier  Notifier
	logger    *slog.Logger
	now       func() time.Time
	gate      *throttle
}

// NewEngine creates an Engine. Zero-valued Config fields fall back to the
// reference defaults.
func NewEngine(deps Deps, cfg Config, logger *slog.Logger) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		cfg:       cfg,
		positions: deps.Positions,
		orders:    deps.Orders,
		accounts:  deps.Accounts,
		activity:  deps.Activity,
		equity:    deps.Equity,
		bus:       deps.Bus,
		locks:     deps.Locks,
		notifier:  deps.Notifier,
		logger:    logger.With(slog.String("component", "risk_engine")),
		now:       time.Now,
		gate:      newThrottle(cfg.MinInterval),
	}
}

// Evaluate runs one risk pass over the given symbol quotes. The throttle
// admits at most one pass per MinInterval; rejected invocations return nil
// immediately. Within an admitted pass, leftover positions of breached
// accounts are settled first, then stop/limit orders are matched, then the
// open set is re-derived and margin and drawdown checks run per account.
// Any repository failure abandons the remainder of the pass; the
// next admitted tick re-derives all state.
func (e *Engine) Evaluate(ctx context.Context, prices map[string]domain.Tick) error {
	if !e.gate.admit(e.now()) {
		return nil
	}

	if e.locks != nil && e.cfg.PassLockTTL > 0 {
		unlock, err := e.locks.Acquire(ctx, passLockKey, e.cfg.PassLockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				e.logger.DebugContext(ctx, "pass lock held elsewhere, skipping tick")
				return nil
			}
			return fmt.Errorf("risk: acquire pass lock: %w", err)
		}
		defer unlock()
	}

	open, err := e.positions.ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("risk: list open positions: %w", err)
	}
	if len(open) == 0 {
		return nil
	}

	accounts, err := e.accounts.GetByIDs(ctx, accountIDs(open))
	if err != nil {
		return fmt.Errorf("risk: fetch accounts: %w", err)
	}
	breached := make(map[string]bool)
	for _, acct := range accounts {
		if acct.Breached() {
			breached[acct.ID] = true
		}
	}

	// A breach leaves unquoted positions open, and an aborted close-all can
	// leave quoted ones. Settle the leftovers before the matcher runs so no
	// leg order of a breached account ever fills.
	if err := e.closeBreachedRemainders(ctx, open, breached, prices); err != nil {
		return err
	}

	if err := e.matchConditionalOrders(ctx, prices, breached); err != nil {
		return fmt.Errorf("risk: match stop/limit orders: %w", err)
	}

	// The sweep and the matcher may have closed positions; re-derive the
	// open set so the margin and drawdown checks never operate on a stale
	// list.
	open, err = e.positions.ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("risk: list open positions: %w", err)
	}
	if len(open) == 0 {
		return nil
	}

	byAccount := make(map[string][]domain.Position)
	for _, pos := range open {
		byAccount[pos.AccountID] = append(byAccount[pos.AccountID], pos)
	}

	// Re-fetch so the margin check sees balances updated by the fills.
	accounts, err = e.accounts.GetByIDs(ctx, accountIDs(open))
	if err != nil {
		return fmt.Errorf("risk: fetch accounts: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.AccountConcurrency)
	for _, acct := range accounts {
		if acct.Breached() || !acct.IsActive {
			continue
		}
		acct := acct
		g.Go(func() error {
			return e.evaluateAccount(gctx, acct, byAccount[acct.ID], prices)
		})
	}
	return g.Wait()
}

// accountIDs returns the distinct account IDs over the positions, in
// first-seen order.
func accountIDs(open []domain.Position) []string {
	seen := make(map[string]bool, len(open))
	ids := make([]string, 0, len(open))
	for _, pos := range open {
		if !seen[pos.AccountID] {
			seen[pos.AccountID] = true
			ids = append(ids, pos.AccountID)
		}
	}
	return ids
}

// evaluateAccount runs the margin monitor and then the breach enforcer for
// one account. A stop-out ends processing of the account for this tick: one
// closure may not cure the shortfall, and the next tick re-evaluates the
// remainder against fresh state.
func (e *Engine) evaluateAccount(ctx context.Context, acct domain.Account, open []domain.Position, prices map[string]domain.Tick) error {
	equity := acct.NetWorth.Add(unrealizedPnL(open, prices))

	stoppedOut, err := e.checkMargin(ctx, acct, open, prices, equity)
	if err != nil {
		return err
	}
	if stoppedOut {
		return nil
	}
	return e.checkDrawdown(ctx, acct, open, prices, equity)
}

// unrealizedPnL sums each open position's P&L at its exit side of the
// spread. Positions whose symbol has no quote contribute nothing.
func unrealizedPnL(open []domain.Position, prices map[string]domain.Tick) decimal.Decimal {
	total := decimal.Zero
	for _, pos := range open {
		tick, ok := prices[pos.Symbol]
		if !ok {
			continue
		}
		total = total.Add(pos.PnLAt(pos.ExitPriceFrom(tick)))
	}
	return total
}

// publish emits an engine event on the bus; failures are logged, never
// escalated, since events are advisory.
func (e *Engine) publish(ctx context.Context, payload map[string]any) {
	if e.bus == nil {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := e.bus.Publish(ctx, EventChannel, b); err != nil {
		e.logger.WarnContext(ctx, "publish event failed",
			slog.String("error", err.Error()),
		)
	}
}

// alert delivers an operator notification; failures are logged only.
func (e *Engine) alert(ctx context.Context, event, title, message string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, event, title, message); err != nil {
		e.logger.WarnContext(ctx, "notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
