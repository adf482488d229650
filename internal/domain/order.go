package domain

import "github.com/shopspring/decimal"

// Side is the direction of an order.
type Side string

// Order side constants.
const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// AlgoKind selects the execution algorithm used to work a parent order.
type AlgoKind string

// Execution algorithm constants.
const (
	AlgoNone    AlgoKind = "NONE"
	AlgoTwap    AlgoKind = "TWAP"
	AlgoVwap    AlgoKind = "VWAP"
	AlgoIceberg AlgoKind = "ICEBERG"
)

// AlgoParams carries per-algorithm tuning for a parent order.
// Fields are interpreted by the algorithm named in ParentOrder.Algo:
// Twap/Vwap read HorizonSecs and IntervalSecs, Vwap additionally reads
// VolumeProfile, Iceberg reads VisibleFraction.
type AlgoParams struct {
	HorizonSecs     int64
	IntervalSecs    int64
	VolumeProfile   []float64 // fractional weights; empty means uniform
	VisibleFraction decimal.Decimal
}

// ParentState is the lifecycle state of a parent order inside the scheduler.
type ParentState string

// Parent order lifecycle states.
const (
	ParentPending       ParentState = "PENDING"
	ParentSlicing       ParentState = "SLICING"
	ParentAwaitingFills ParentState = "AWAITING_FILLS"
	ParentCompleted     ParentState = "COMPLETED"
	ParentCancelled     ParentState = "CANCELLED"
)

// ParentOrder is an order to be worked over time by the execution scheduler.
// The strategy layer creates it; the scheduler owns it until fully sliced.
type ParentOrder struct {
	OrderID       string
	InstrumentID  string
	Side          Side
	TotalQuantity decimal.Decimal
	Algo          AlgoKind
	Params        AlgoParams
}

// ChildOrderSlice is one timed sub-order cut from a parent order.
// The quantities of all slices for a parent sum exactly to the parent's
// total quantity; the last slice absorbs any rounding remainder.
type ChildOrderSlice struct {
	ParentID      string
	SliceIndex    int
	Quantity      decimal.Decimal
	ScheduledAtNs int64
}
