package domain

import "github.com/shopspring/decimal"

// PositionSide is the direction of net exposure.
type PositionSide string

// Position side constants.
const (
	PositionFlat  PositionSide = "FLAT"
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
)

// Position is the live net position for one instrument under a netting
// order-management model. At most one exists per instrument; its direction
// can flip without an explicit close, which silently starts a new cycle.
type Position struct {
	PositionID   string
	InstrumentID string
	Side         PositionSide
	Quantity     decimal.Decimal // absolute net quantity
	AvgOpenPrice decimal.Decimal
	RealizedPnL  decimal.Decimal // realized within the current cycle only
	OpenedAtNs   int64
}

// PositionSnapshot is the immutable terminal state of one position cycle.
// Snapshots are retained after a cycle is superseded by a flip and are the
// source of truth for historical realized PnL.
type PositionSnapshot struct {
	PositionID   string
	CycleIndex   int
	InstrumentID string
	Side         PositionSide
	PeakQuantity decimal.Decimal
	RealizedPnL  decimal.Decimal
	OpenedAtNs   int64
	ClosedAtNs   int64
	FlipClosed   bool // closed by a direction flip rather than going flat
}

// Money is an amount in a single currency.
type Money struct {
	Currency string
	Amount   decimal.Decimal
}

// CommissionEntry is a non-negative commission attributed to a position
// or a fill.
type CommissionEntry struct {
	Currency string
	Amount   decimal.Decimal
}
