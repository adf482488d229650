package reporting

import "time"

// Report represents the rendered view of one backtest run.
type Report struct {
	// Metadata
	GeneratedAt time.Time

	// Run Summary
	Summary SummarySection

	// Commissions (one row per currency)
	Commissions []CommissionRow

	// Cycle Statistics
	Cycles CycleSection

	// Timeline (sorted by ts_event_ns, tie order preserved)
	Timeline []TimelineRow
}

// SummarySection contains run identity and aggregate PnL.
type SummarySection struct {
	RunID        string
	InstrumentID string
	StartNs      int64
	EndNs        int64

	OrderCount     int
	FillCount      int
	RejectionCount int

	RealizedPnL             string
	UnrealizedPnL           string
	UnrealizedBeforeClosing string
	PositionsRealizedAtEnd  bool
	CommissionSource        string
}

// CommissionRow is one currency's total commission.
type CommissionRow struct {
	Currency string
	Amount   string
}

// CycleSection contains position-cycle statistics.
type CycleSection struct {
	CycleCount  int
	WinCount    int
	LossCount   int
	WinRate     float64
	MaxDrawdown string
}

// TimelineRow represents one event in the merged timeline table.
type TimelineRow struct {
	TsEventNs int64
	Type      string
	OrderID   string
	Side      string
	Price     string // empty for orders and rejections
	Quantity  string // empty for rejections
	Detail    string // rejection reason, empty otherwise
}
