package sim

import (
	"fmt"

	"github.com/shopspring/decimal"

	"backtest-lab/internal/domain"
)

func sliceOrderID(slice *domain.ChildOrderSlice) string {
	return fmt.Sprintf("%s-%d", slice.ParentID, slice.SliceIndex)
}

// fill executes qty at price against the instrument's netting position,
// records commission and fill event, and updates the balance ledger.
// Caller holds e.mu.
func (e *Engine) fill(instrumentID, orderID string, side domain.Side, price, qty decimal.Decimal, ts int64) *domain.FillEvent {
	b := e.positions[instrumentID]
	if b == nil {
		b = &book{
			pos: &domain.Position{
				PositionID:   instrumentID + "-NET",
				InstrumentID: instrumentID,
				Side:         domain.PositionFlat,
			},
			commissions: make(map[string]decimal.Decimal),
		}
		e.positions[instrumentID] = b
	}

	commission := price.Mul(qty).Mul(e.commissionRate)
	b.commissions[e.currency] = b.commissions[e.currency].Add(commission)
	e.balance[e.currency] = e.balance[e.currency].Sub(commission)

	e.applyToPosition(b, side, price, qty, ts)

	e.seq++
	fill := &domain.FillEvent{
		FillID:       fmt.Sprintf("F-%06d", e.seq),
		OrderID:      orderID,
		PositionID:   b.pos.PositionID,
		InstrumentID: instrumentID,
		Side:         side,
		Price:        price,
		Quantity:     qty,
		Commission:   domain.CommissionEntry{Currency: e.currency, Amount: commission},
		TsEventNs:    ts,
	}
	e.fills = append(e.fills, fill)
	return fill
}

// applyToPosition updates the netting position with one fill. Reducing
// past zero flips the direction: the superseded cycle is snapshotted and
// a fresh cycle opens at the fill price, all without an explicit close.
func (e *Engine) applyToPosition(b *book, side domain.Side, price, qty decimal.Decimal, ts int64) {
	pos := b.pos

	signed := qty
	if side == domain.SideSell {
		signed = qty.Neg()
	}
	current := pos.Quantity
	if pos.Side == domain.PositionShort {
		current = current.Neg()
	}
	next := current.Add(signed)

	switch {
	case pos.Side == domain.PositionFlat:
		pos.Side = sideOf(next)
		pos.Quantity = next.Abs()
		pos.AvgOpenPrice = price
		pos.OpenedAtNs = ts

	case sameDirection(current, signed):
		// Adding to the position: volume-weighted average open price.
		notional := pos.AvgOpenPrice.Mul(current.Abs()).Add(price.Mul(qty))
		pos.Quantity = next.Abs()
		pos.AvgOpenPrice = notional.Div(pos.Quantity)

	default:
		closed := decimal.Min(current.Abs(), qty)
		realized := price.Sub(pos.AvgOpenPrice).Mul(closed)
		if pos.Side == domain.PositionShort {
			realized = realized.Neg()
		}
		pos.RealizedPnL = pos.RealizedPnL.Add(realized)
		e.balance[e.currency] = e.balance[e.currency].Add(realized)

		switch {
		case next.IsZero():
			e.closeCycle(b, ts, false)
		case sameDirection(next, signed) && !sameDirection(next, current):
			// Flip: the old cycle ends implicitly, a new one opens.
			e.closeCycle(b, ts, true)
			pos.Side = sideOf(next)
			pos.Quantity = next.Abs()
			pos.AvgOpenPrice = price
			pos.OpenedAtNs = ts
		default:
			pos.Quantity = next.Abs()
		}
	}

	if pos.Quantity.GreaterThan(b.peak) {
		b.peak = pos.Quantity
	}
}

// closeCycle snapshots the terminal state of the current cycle and resets
// the live position to flat. Snapshots are append-only and never mutated.
func (e *Engine) closeCycle(b *book, ts int64, flip bool) {
	pos := b.pos
	b.snapshots = append(b.snapshots, &domain.PositionSnapshot{
		PositionID:   pos.PositionID,
		CycleIndex:   b.cycleIndex,
		InstrumentID: pos.InstrumentID,
		Side:         pos.Side,
		PeakQuantity: b.peak,
		RealizedPnL:  pos.RealizedPnL,
		OpenedAtNs:   pos.OpenedAtNs,
		ClosedAtNs:   ts,
		FlipClosed:   flip,
	})
	b.cycleIndex++
	b.peak = decimal.Zero

	pos.Side = domain.PositionFlat
	pos.Quantity = decimal.Zero
	pos.AvgOpenPrice = decimal.Zero
	pos.RealizedPnL = decimal.Zero
	pos.OpenedAtNs = 0
}

func sideOf(signedQty decimal.Decimal) domain.PositionSide {
	switch {
	case signedQty.IsPositive():
		return domain.PositionLong
	case signedQty.IsNegative():
		return domain.PositionShort
	default:
		return domain.PositionFlat
	}
}

func sameDirection(a, b decimal.Decimal) bool {
	return a.Sign() != 0 && a.Sign() == b.Sign()
}
