package reporting

import (
	"time"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/timeline"
)

// Generator produces reports from run output.
type Generator struct {
	now func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator() *Generator {
	return &Generator{
		now: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds a complete report from a run summary and its timeline.
func (g *Generator) Generate(summary *domain.RunSummary, tl *timeline.Timeline) *Report {
	r := &Report{
		GeneratedAt: g.now(),
		Summary: SummarySection{
			RunID:                   summary.RunID,
			InstrumentID:            summary.InstrumentID,
			StartNs:                 summary.StartNs,
			EndNs:                   summary.EndNs,
			OrderCount:              summary.OrderCount,
			FillCount:               summary.FillCount,
			RejectionCount:          summary.RejectionCount,
			RealizedPnL:             summary.RealizedPnL.String(),
			UnrealizedPnL:           summary.UnrealizedPnL.String(),
			UnrealizedBeforeClosing: summary.UnrealizedBeforeClosing.String(),
			PositionsRealizedAtEnd:  summary.PositionsRealizedAtEnd,
			CommissionSource:        string(summary.CommissionSource),
		},
		Cycles: CycleSection{
			CycleCount:  summary.Stats.CycleCount,
			WinCount:    summary.Stats.WinCount,
			LossCount:   summary.Stats.LossCount,
			WinRate:     summary.Stats.WinRate,
			MaxDrawdown: summary.Stats.MaxDrawdown.String(),
		},
	}

	for _, c := range summary.Commissions {
		r.Commissions = append(r.Commissions, CommissionRow{
			Currency: c.Currency,
			Amount:   c.Amount.String(),
		})
	}

	if tl != nil {
		r.Timeline = make([]TimelineRow, 0, tl.Len())
		for _, e := range tl.All() {
			r.Timeline = append(r.Timeline, timelineRow(e))
		}
	}

	return r
}

func timelineRow(e *timeline.Entry) TimelineRow {
	row := TimelineRow{
		TsEventNs: e.TsEventNs,
		Type:      string(e.Type),
	}
	switch e.Type {
	case timeline.EntryOrder:
		row.OrderID = e.Order.OrderID
		row.Side = string(e.Order.Side)
		row.Quantity = e.Order.Quantity.String()
	case timeline.EntryFill:
		row.OrderID = e.Fill.OrderID
		row.Side = string(e.Fill.Side)
		row.Price = e.Fill.Price.String()
		row.Quantity = e.Fill.Quantity.String()
	case timeline.EntryRejection:
		row.OrderID = e.Rejection.OrderID
		row.Detail = e.Rejection.Reason
	}
	return row
}
