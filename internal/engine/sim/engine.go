// Package sim is a minimal netting matching engine used as the replay
// collaborator in tests and local runs. Child order slices fill
// immediately at the last trade price; positions follow the netting model,
// flipping direction without an explicit close and snapshotting each
// superseded cycle.
package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/engine"
)

// FillListener observes fills as they happen, in event-time order.
type FillListener func(ctx context.Context, fill *domain.FillEvent)

// Engine is the simulated netting engine.
type Engine struct {
	mu sync.Mutex

	commissionRate decimal.Decimal // fraction of notional per fill
	currency       string
	nowNs          func() int64

	lastPrice map[string]decimal.Decimal
	positions map[string]*book // keyed by instrument_id
	balance   map[string]decimal.Decimal
	parents   map[string]parentRegistration

	orders     []*domain.OrderEvent
	fills      []*domain.FillEvent
	rejections []*domain.RejectionEvent

	onFill FillListener
	seq    int
}

// book is the netting position state for one instrument plus its history.
type book struct {
	pos         *domain.Position
	cycleIndex  int
	peak        decimal.Decimal // largest absolute quantity in the open cycle
	snapshots   []*domain.PositionSnapshot
	commissions map[string]decimal.Decimal
}

// New creates a sim engine. commissionRate is charged on every fill's
// notional in the given currency. nowNs supplies event timestamps; in a
// backtest it is the virtual clock's NowNs.
func New(commissionRate decimal.Decimal, currency string, nowNs func() int64) *Engine {
	return &Engine{
		commissionRate: commissionRate,
		currency:       currency,
		nowNs:          nowNs,
		lastPrice:      make(map[string]decimal.Decimal),
		positions:      make(map[string]*book),
		balance:        make(map[string]decimal.Decimal),
		parents:        make(map[string]parentRegistration),
	}
}

// Compile-time interface checks.
var (
	_ engine.Engine      = (*Engine)(nil)
	_ engine.BalanceView = (*Engine)(nil)
)

// SetFillListener registers a callback invoked synchronously on each fill.
func (e *Engine) SetFillListener(fn FillListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onFill = fn
}

// MarkPrice records a trade print, updating the last known price.
func (e *Engine) MarkPrice(instrumentID string, price decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastPrice[instrumentID] = price
}

// SubmitSlice accepts a child order slice, records the order event, and
// fills it at the last trade price. Slices arriving before any market
// data are rejected.
func (e *Engine) SubmitSlice(ctx context.Context, slice *domain.ChildOrderSlice) error {
	return e.submit(ctx, slice.ParentID, sliceOrderID(slice), slice.Quantity, slice.ScheduledAtNs)
}

// Submit places a plain (unsliced) order for side/quantity resolution the
// caller already did; used by tests that bypass the scheduler.
func (e *Engine) Submit(ctx context.Context, order *domain.ParentOrder) error {
	return e.submit(ctx, order.OrderID, order.OrderID, order.TotalQuantity, e.nowNs())
}

func (e *Engine) submit(ctx context.Context, parentID, orderID string, qty decimal.Decimal, ts int64) error {
	e.mu.Lock()

	side, instrumentID, ok := e.resolveParent(parentID)
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("no side registered for parent %s", parentID)
	}

	e.orders = append(e.orders, &domain.OrderEvent{
		OrderID:      orderID,
		ParentID:     parentID,
		InstrumentID: instrumentID,
		Side:         side,
		Quantity:     qty,
		TsEventNs:    ts,
	})

	price, haveMarket := e.lastPrice[instrumentID]
	if !haveMarket {
		e.rejections = append(e.rejections, &domain.RejectionEvent{
			OrderID:      orderID,
			InstrumentID: instrumentID,
			Reason:       "no market data",
			TsEventNs:    ts,
		})
		e.mu.Unlock()
		return nil
	}

	fill := e.fill(instrumentID, orderID, side, price, qty, ts)
	onFill := e.onFill
	e.mu.Unlock()

	if onFill != nil {
		onFill(ctx, fill)
	}
	return nil
}

// parentRegistration maps a parent order id to its side and instrument.
// Child slices carry neither, so callers register the parent before its
// slices arrive.
type parentRegistration struct {
	Side         domain.Side
	InstrumentID string
}

// RegisterParent declares the side and instrument for a parent order id.
func (e *Engine) RegisterParent(parent *domain.ParentOrder) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.parents[parent.OrderID] = parentRegistration{Side: parent.Side, InstrumentID: parent.InstrumentID}
}

func (e *Engine) resolveParent(parentID string) (domain.Side, string, bool) {
	reg, ok := e.parents[parentID]
	if !ok {
		return "", "", false
	}
	return reg.Side, reg.InstrumentID, true
}
