package domain

import "github.com/shopspring/decimal"

// CommissionSource labels which path produced the commission figures in a
// RunSummary. Lower entries are lower confidence; the algebraic fallback is
// a reconciliation of last resort and must be surfaced as such.
type CommissionSource string

// Commission source constants, highest confidence first.
const (
	CommissionFromLedger      CommissionSource = "POSITION_LEDGER"
	CommissionFromFillsReport CommissionSource = "FILLS_REPORT"
	CommissionFromBalanceGap  CommissionSource = "BALANCE_RESIDUAL"
)

// CycleStats are trade statistics derived from the position-cycle stream.
// One cycle may span many fills, so these are not fill-count statistics.
type CycleStats struct {
	CycleCount  int
	WinCount    int
	LossCount   int
	WinRate     float64
	MaxDrawdown decimal.Decimal // worst peak-to-trough of cumulative realized PnL
}

// RunSummary is the aggregate financial output of one backtest run.
// Created once at run end, immutable afterwards.
type RunSummary struct {
	RunID        string
	InstrumentID string
	StartNs      int64
	EndNs        int64

	OrderCount     int
	FillCount      int
	RejectionCount int

	RealizedPnL             decimal.Decimal
	UnrealizedPnL           decimal.Decimal
	UnrealizedBeforeClosing decimal.Decimal // unrealized PnL prior to any forced close
	PositionsRealizedAtEnd  bool

	Commissions      []Money
	CommissionSource CommissionSource

	Stats CycleStats
}
