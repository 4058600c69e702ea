package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/Pablo69latrick/teda-clone-sub002/internal/domain"
	"github.com/Pablo69latrick/teda-clone-sub002/internal/feed"
	"github.com/Pablo69latrick/teda-clone-sub002/internal/risk"
	"github.com/Pablo69latrick/teda-clone-sub002/internal/store/memory"
)

// RunMode is the production mode: ticks arrive over the Redis signal bus,
// state lives in PostgreSQL, and optional periodic archival exports old audit
// rows to object storage.
func (a *App) RunMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "run mode starting")

	engine := risk.NewEngine(risk.Deps{
		Positions: deps.Positions,
		Orders:    deps.Orders,
		Accounts:  deps.Accounts,
		Activity:  deps.Activity,
		Equity:    deps.Equity,
		Bus:       deps.SignalBus,
		Locks:     deps.LockManager,
		Notifier:  deps.Notifier,
	}, riskConfig(a.cfg.Risk), a.logger)

	feeder := feed.NewTickFeeder(deps.SignalBus, deps.TickCache, engine, a.logger)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return feeder.Run(ctx)
	})

	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		g.Go(func() error {
			return a.runArchiveLoop(ctx, deps.Archiver)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runArchiveLoop periodically exports audit rows older than the retention
// window to object storage.
func (a *App) runArchiveLoop(ctx context.Context, archiver domain.Archiver) error {
	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.archiveOnce(ctx, archiver); err != nil {
				a.logger.ErrorContext(ctx, "archive pass failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// archiveOnce exports all audit rows older than the retention window.
func (a *App) archiveOnce(ctx context.Context, archiver domain.Archiver) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.Archive.RetentionDays)

	activityCount, err := archiver.ArchiveActivity(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive activity: %w", err)
	}
	equityCount, err := archiver.ArchiveEquity(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive equity: %w", err)
	}

	a.logger.InfoContext(ctx, "archive pass complete",
		slog.Time("cutoff", cutoff),
		slog.Int64("activity_records", activityCount),
		slog.Int64("equity_points", equityCount),
	)
	return nil
}

// ArchiveMode runs a single archival export and exits.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "archive mode starting")
	if deps.Archiver == nil {
		return fmt.Errorf("app: archive mode requires postgres and s3")
	}
	return a.archiveOnce(ctx, deps.Archiver)
}

// SimMode runs the engine against in-memory stores and a synthetic
// random-walk price feed. Useful for demos and for exercising the
// enforcement paths without external services.
func (a *App) SimMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "sim mode starting",
		slog.Any("symbols", a.cfg.Sim.Symbols),
	)

	store := memory.New()
	seedSimData(store, a.cfg.Sim.Symbols)

	engine := risk.NewEngine(risk.Deps{
		Positions: store.Positions(),
		Orders:    store.Orders(),
		Accounts:  store.Accounts(),
		Activity:  store.Activity(),
		Equity:    store.Equity(),
		Notifier:  deps.Notifier,
	}, riskConfig(a.cfg.Risk), a.logger)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	// Per-symbol random walk around each seed mid price.
	mids := make(map[string]decimal.Decimal, len(a.cfg.Sim.Symbols))
	for i, sym := range a.cfg.Sim.Symbols {
		mids[sym] = simSeedPrice(i)
	}

	spread := decimal.NewFromFloat(a.cfg.Sim.SpreadBps / 10000)
	volatility := a.cfg.Sim.VolatilityBps / 10000

	ticker := time.NewTicker(a.cfg.Sim.TickInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logSimSummary(store)
			return nil
		case <-ticker.C:
			now := time.Now().UTC()
			prices := make(map[string]domain.Tick, len(mids))
			for sym, mid := range mids {
				step := decimal.NewFromFloat(1 + (rng.Float64()*2-1)*volatility)
				mid = mid.Mul(step)
				mids[sym] = mid

				half := mid.Mul(spread)
				prices[sym] = domain.Tick{
					Symbol: sym,
					Bid:    mid.Sub(half),
					Ask:    mid.Add(half),
					Last:   mid,
					At:     now,
				}
			}
			if err := engine.Evaluate(ctx, prices); err != nil {
				a.logger.ErrorContext(ctx, "evaluation pass failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// logSimSummary reports what the engine did during the simulation.
func (a *App) logSimSummary(store *memory.Store) {
	records := store.ActivityRecords()
	byEvent := make(map[string]int)
	for _, rec := range records {
		byEvent[rec.Event]++
	}
	a.logger.Info("sim finished",
		slog.Int("activity_records", len(records)),
		slog.Int("positions_closed", byEvent[domain.EventPositionClosed]),
		slog.Int("stop_outs", byEvent[domain.EventStopOut]),
		slog.Int("breaches", byEvent[domain.EventAccountBreached]),
	)
}

// simSeedPrice returns a deterministic starting mid price for the i-th
// symbol so runs are comparable.
func simSeedPrice(i int) decimal.Decimal {
	base := []int64{68000, 3200, 150, 95}
	if i < len(base) {
		return decimal.NewFromInt(base[i])
	}
	return decimal.NewFromInt(100 * int64(i+1))
}

// seedSimData populates the memory store with one demo account per symbol
// pair: a long and a short position, each with stop and limit legs close to
// the seed price so the matcher and the monitors all get exercised.
func seedSimData(store *memory.Store, symbols []string) {
	now := time.Now().UTC()

	acct := domain.Account{
		ID:                  uuid.New().String(),
		AvailableMargin:     decimal.NewFromInt(60000),
		TotalMarginRequired: decimal.Zero,
		NetWorth:            decimal.NewFromInt(100000),
		StartingBalance:     decimal.NewFromInt(100000),
		DayStartBalance:     decimal.NewFromInt(100000),
		DayStartEquity:      decimal.NewFromInt(100000),
		DayStartDate:        now,
		Status:              domain.AccountStatusActive,
		IsActive:            true,
	}

	totalMargin := decimal.Zero
	for i, sym := range symbols {
		entry := simSeedPrice(i)
		qty := decimal.NewFromFloat(0.5)
		const leverage int64 = 10
		margin := entry.Mul(qty).Div(decimal.NewFromInt(leverage))

		for _, dir := range []domain.Direction{domain.DirectionLong, domain.DirectionShort} {
			pos := domain.Position{
				ID:             uuid.New().String(),
				AccountID:      acct.ID,
				Symbol:         sym,
				Direction:      dir,
				Quantity:       qty,
				Leverage:       leverage,
				EntryPrice:     entry,
				IsolatedMargin: margin,
				TradeFees:      entry.Mul(qty).Mul(decimal.NewFromInt(leverage)).Mul(decimal.NewFromFloat(0.0007)),
				Status:         domain.PositionStatusOpen,
				OpenedAt:       now,
			}
			store.PutPosition(pos)
			totalMargin = totalMargin.Add(margin)

			// Stop 2% against, limit 3% in favor.
			stopPct := decimal.NewFromFloat(0.02)
			limitPct := decimal.NewFromFloat(0.03)
			stopPrice := entry.Mul(decimal.NewFromInt(1).Sub(stopPct))
			limitPrice := entry.Mul(decimal.NewFromInt(1).Add(limitPct))
			if dir == domain.DirectionShort {
				stopPrice = entry.Mul(decimal.NewFromInt(1).Add(stopPct))
				limitPrice = entry.Mul(decimal.NewFromInt(1).Sub(limitPct))
			}

			store.PutOrder(domain.Order{
				ID:         uuid.New().String(),
				PositionID: pos.ID,
				Type:       domain.OrderTypeStop,
				Price:      stopPrice,
				Status:     domain.OrderStatusPending,
				CreatedAt:  now,
			})
			store.PutOrder(domain.Order{
				ID:         uuid.New().String(),
				PositionID: pos.ID,
				Type:       domain.OrderTypeLimit,
				Price:      limitPrice,
				Status:     domain.OrderStatusPending,
				CreatedAt:  now,
			})
		}
	}

	acct.TotalMarginRequired = totalMargin
	acct.AvailableMargin = acct.NetWorth.Sub(totalMargin)
	store.PutAccount(acct)
}
