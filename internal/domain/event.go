package domain

import "github.com/shopspring/decimal"

// OrderEvent records an order reaching the matching engine.
type OrderEvent struct {
	OrderID      string
	ParentID     string // empty for orders not produced by a slicer
	InstrumentID string
	Side         Side
	Quantity     decimal.Decimal
	TsEventNs    int64
}

// FillEvent records a (partial) execution of an order.
type FillEvent struct {
	FillID       string
	OrderID      string
	PositionID   string
	InstrumentID string
	Side         Side
	Price        decimal.Decimal
	Quantity     decimal.Decimal
	Commission   CommissionEntry
	TsEventNs    int64
}

// RejectionEvent records an order the matching engine refused.
type RejectionEvent struct {
	OrderID      string
	InstrumentID string
	Reason       string
	TsEventNs    int64
}
