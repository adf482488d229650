package sim

import (
	"context"
	"errors"
	"sort"

	"github.com/shopspring/decimal"

	"backtest-lab/internal/domain"
)

// ErrNoPrice is returned when no trade has printed for the instrument.
var ErrNoPrice = errors.New("no last price for instrument")

// Positions returns every position object ever created for the instrument,
// open or flat.
func (e *Engine) Positions(_ context.Context, instrumentID string) ([]*domain.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.positions[instrumentID]
	if !ok {
		return nil, nil
	}
	cp := *b.pos
	return []*domain.Position{&cp}, nil
}

// PositionSnapshots returns the terminal states of superseded cycles for
// the position id, oldest first.
func (e *Engine) PositionSnapshots(_ context.Context, positionID string) ([]*domain.PositionSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var result []*domain.PositionSnapshot
	for _, b := range e.positions {
		if b.pos.PositionID != positionID {
			continue
		}
		for _, snap := range b.snapshots {
			cp := *snap
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CycleIndex < result[j].CycleIndex })
	return result, nil
}

// Commissions returns the position's commission ledger, one value per
// currency, sorted by currency for determinism.
func (e *Engine) Commissions(_ context.Context, positionID string) ([]domain.Money, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, b := range e.positions {
		if b.pos.PositionID != positionID {
			continue
		}
		result := make([]domain.Money, 0, len(b.commissions))
		for currency, amount := range b.commissions {
			result = append(result, domain.Money{Currency: currency, Amount: amount})
		}
		sort.Slice(result, func(i, j int) bool { return result[i].Currency < result[j].Currency })
		return result, nil
	}
	return nil, nil
}

// LastPrice returns the latest trade price for the instrument.
func (e *Engine) LastPrice(_ context.Context, instrumentID string) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	price, ok := e.lastPrice[instrumentID]
	if !ok {
		return decimal.Decimal{}, ErrNoPrice
	}
	return price, nil
}

// BalanceChanges returns the net balance change per currency since start.
func (e *Engine) BalanceChanges(_ context.Context) ([]domain.Money, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	result := make([]domain.Money, 0, len(e.balance))
	for currency, amount := range e.balance {
		result = append(result, domain.Money{Currency: currency, Amount: amount})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Currency < result[j].Currency })
	return result, nil
}

// OrderEvents returns recorded order events in arrival order.
func (e *Engine) OrderEvents() []*domain.OrderEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*domain.OrderEvent(nil), e.orders...)
}

// FillEvents returns recorded fill events in arrival order.
func (e *Engine) FillEvents() []*domain.FillEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*domain.FillEvent(nil), e.fills...)
}

// RejectionEvents returns recorded rejection events in arrival order.
func (e *Engine) RejectionEvents() []*domain.RejectionEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*domain.RejectionEvent(nil), e.rejections...)
}
