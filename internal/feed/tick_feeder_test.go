package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Pablo69latrick/teda-clone-sub002/internal/domain"
	"github.com/Pablo69latrick/teda-clone-sub002/internal/risk"
	"github.com/Pablo69latrick/teda-clone-sub002/internal/store/memory"
)

type fakeBus struct {
	ch chan []byte
}

func (b *fakeBus) Publish(_ context.Context, _ string, _ []byte) error { return nil }

func (b *fakeBus) Subscribe(_ context.Context, _ string) (<-chan []byte, error) {
	return b.ch, nil
}

type fakeCache struct {
	ticks map[string]domain.Tick
}

func (c *fakeCache) SetTick(_ context.Context, t domain.Tick) error {
	c.ticks[t.Symbol] = t
	return nil
}

func (c *fakeCache) GetTick(_ context.Context, symbol string) (domain.Tick, error) {
	t, ok := c.ticks[symbol]
	if !ok {
		return domain.Tick{}, domain.ErrNotFound
	}
	return t, nil
}

func (c *fakeCache) GetTicks(_ context.Context, symbols []string) (map[string]domain.Tick, error) {
	out := make(map[string]domain.Tick)
	for _, s := range symbols {
		if t, ok := c.ticks[s]; ok {
			out[s] = t
		}
	}
	return out, nil
}

func newFeederUnderTest(t *testing.T) (*TickFeeder, *fakeCache, *memory.Store) {
	t.Helper()
	st := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := risk.NewEngine(risk.Deps{
		Positions: st.Positions(),
		Orders:    st.Orders(),
		Accounts:  st.Accounts(),
		Activity:  st.Activity(),
		Equity:    st.Equity(),
	}, risk.Config{MinInterval: time.Nanosecond}, logger)
	cache := &fakeCache{ticks: make(map[string]domain.Tick)}
	return NewTickFeeder(&fakeBus{}, cache, eng, logger), cache, st
}

func TestHandleMessageCachesAndEvaluates(t *testing.T) {
	feeder, cache, st := newFeederUnderTest(t)

	st.PutAccount(domain.Account{
		ID: "acct-1", NetWorth: decimal.RequireFromString("10000"),
		AvailableMargin: decimal.RequireFromString("10000"),
		StartingBalance: decimal.RequireFromString("10000"),
		Status:          domain.AccountStatusActive, IsActive: true,
	})
	st.PutPosition(domain.Position{
		ID: "pos-1", AccountID: "acct-1", Symbol: "BTCUSD",
		Direction: domain.DirectionLong,
		Quantity:  decimal.RequireFromString("0.01"), Leverage: 10,
		EntryPrice:     decimal.RequireFromString("67971.44"),
		IsolatedMargin: decimal.RequireFromString("679.7144"),
		Status:         domain.PositionStatusOpen,
	})
	st.PutOrder(domain.Order{
		ID: "ord-1", PositionID: "pos-1", Type: domain.OrderTypeStop,
		Price: decimal.RequireFromString("66000"), Status: domain.OrderStatusPending,
	})

	msg := []byte(`{"symbol":" BTCUSD ","bid":"65990","ask":"66010","last":"66000"}`)
	if err := feeder.handleMessage(context.Background(), msg); err != nil {
		t.Fatalf("handle message: %v", err)
	}

	cached, err := cache.GetTick(context.Background(), "BTCUSD")
	if err != nil {
		t.Fatalf("tick not cached: %v", err)
	}
	if cached.At.IsZero() {
		t.Fatal("missing timestamp must be defaulted")
	}

	p, err := st.Positions().GetByID(context.Background(), "pos-1")
	if err != nil {
		t.Fatalf("get position: %v", err)
	}
	if p.Status != domain.PositionStatusClosed {
		t.Fatalf("position status = %s, want closed by the stop fill", p.Status)
	}
}

func TestHandleMessageRejectsMalformedPayloads(t *testing.T) {
	feeder, cache, _ := newFeederUnderTest(t)

	if err := feeder.handleMessage(context.Background(), []byte("{not json")); err == nil {
		t.Fatal("expected an unmarshal error")
	}
	// A blank symbol is dropped without error and without caching.
	if err := feeder.handleMessage(context.Background(), []byte(`{"symbol":"  ","bid":"1","ask":"1","last":"1"}`)); err != nil {
		t.Fatalf("blank symbol: %v", err)
	}
	if len(cache.ticks) != 0 {
		t.Fatalf("cache = %v, want empty", cache.ticks)
	}
}

func TestHandleMessageAccumulatesLatestQuotes(t *testing.T) {
	feeder, _, _ := newFeederUnderTest(t)
	ctx := context.Background()

	payloads := []string{
		`{"symbol":"BTCUSD","bid":"67000","ask":"67010","last":"67005"}`,
		`{"symbol":"ETHUSD","bid":"3200","ask":"3201","last":"3200"}`,
		`{"symbol":"BTCUSD","bid":"67100","ask":"67110","last":"67105"}`,
	}
	for _, p := range payloads {
		if err := feeder.handleMessage(ctx, []byte(p)); err != nil {
			t.Fatalf("handle %s: %v", p, err)
		}
	}

	if len(feeder.latest) != 2 {
		t.Fatalf("latest symbols = %d, want 2", len(feeder.latest))
	}
	if got := feeder.latest["BTCUSD"].Bid; !got.Equal(decimal.RequireFromString("67100")) {
		t.Fatalf("BTCUSD bid = %s, want the newest 67100", got)
	}
}

type failingEvaluator struct {
	err error
}

func (e *failingEvaluator) Evaluate(_ context.Context, _ map[string]domain.Tick) error {
	return e.err
}

// capturingHandler records every slog record it receives.
type capturingHandler struct {
	records *[]slog.Record
}

func (h capturingHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }
func (h capturingHandler) Handle(_ context.Context, r slog.Record) error {
	*h.records = append(*h.records, r)
	return nil
}
func (h capturingHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h capturingHandler) WithGroup(_ string) slog.Handler      { return h }

func TestHandleMessageLogsEvaluationFailuresAtErrorLevel(t *testing.T) {
	var records []slog.Record
	logger := slog.New(capturingHandler{records: &records})
	cache := &fakeCache{ticks: make(map[string]domain.Tick)}
	eng := &failingEvaluator{err: errors.New("list open positions: connection refused")}
	feeder := NewTickFeeder(&fakeBus{}, cache, eng, logger)

	msg := []byte(`{"symbol":"BTCUSD","bid":"67000","ask":"67010","last":"67005"}`)
	if err := feeder.handleMessage(context.Background(), msg); err != nil {
		t.Fatalf("engine failures must not bubble up as payload errors: %v", err)
	}

	var found bool
	for _, r := range records {
		if r.Level == slog.LevelError {
			found = true
			if !strings.Contains(r.Message, "risk evaluation pass failed") {
				t.Fatalf("error record message = %q", r.Message)
			}
		}
	}
	if !found {
		t.Fatal("aborted evaluation pass must produce an error-level record")
	}
}
