// Package feed connects the upstream quote stream to the risk engine.
package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/Pablo69latrick/teda-clone-sub002/internal/domain"
)

// TickChannel is the Redis Pub/Sub channel the upstream price source
// publishes normalized quotes to.
const TickChannel = "ticks"

// Evaluator runs one risk pass over the latest quotes. *risk.Engine
// satisfies it.
type Evaluator interface {
	Evaluate(ctx context.Context, prices map[string]domain.Tick) error
}

// TickFeeder subscribes to the tick channel, keeps the latest quote per
// symbol, and drives a risk evaluation pass for every incoming tick. The
// engine's own throttle decides which passes actually run.
type TickFeeder struct {
	bus    domain.SignalBus
	cache  domain.TickCache
	engine Evaluator
	logger *slog.Logger

	latest map[string]domain.Tick
}

// NewTickFeeder creates a TickFeeder.
func NewTickFeeder(bus domain.SignalBus, cache domain.TickCache, engine Evaluator, logger *slog.Logger) *TickFeeder {
	return &TickFeeder{
		bus:    bus,
		cache:  cache,
		engine: engine,
		logger: logger.With(slog.String("component", "tick_feeder")),
		latest: make(map[string]domain.Tick),
	}
}

// Run subscribes to the tick channel and processes messages until the
// context is cancelled.
func (f *TickFeeder) Run(ctx context.Context) error {
	ch, err := f.bus.Subscribe(ctx, TickChannel)
	if err != nil {
		return err
	}
	f.logger.Info("tick feeder started")
	defer f.logger.Info("tick feeder stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			if err := f.handleMessage(ctx, data); err != nil {
				// Only malformed payloads surface here; engine errors are
				// logged at error level inside handleMessage.
				f.logger.Debug("tick feeder dropped malformed payload",
					slog.String("error", err.Error()),
					slog.Int("payload_len", len(data)),
				)
			}
		}
	}
}

func (f *TickFeeder) handleMessage(ctx context.Context, data []byte) error {
	var t domain.Tick
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	t.Symbol = strings.TrimSpace(t.Symbol)
	if t.Symbol == "" {
		return nil
	}
	if t.At.IsZero() {
		t.At = time.Now().UTC()
	}

	f.latest[t.Symbol] = t

	if err := f.cache.SetTick(ctx, t); err != nil {
		f.logger.Warn("tick cache update failed",
			slog.String("symbol", t.Symbol),
			slog.String("error", err.Error()),
		)
	}

	prices := make(map[string]domain.Tick, len(f.latest))
	for sym, tick := range f.latest {
		prices[sym] = tick
	}
	if err := f.engine.Evaluate(ctx, prices); err != nil {
		// An aborted pass means positions went unevaluated on this tick;
		// that must be visible at the default log level.
		f.logger.ErrorContext(ctx, "risk evaluation pass failed",
			slog.String("symbol", t.Symbol),
			slog.String("error", err.Error()),
		)
	}
	return nil
}
