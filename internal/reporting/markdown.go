package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Backtest Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Run: %s | Instrument: %s\n\n", r.Summary.RunID, r.Summary.InstrumentID))

	// Run Summary
	sb.WriteString("## Run Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Window Start (ns) | %d |\n", r.Summary.StartNs))
	sb.WriteString(fmt.Sprintf("| Window End (ns) | %d |\n", r.Summary.EndNs))
	sb.WriteString(fmt.Sprintf("| Orders | %d |\n", r.Summary.OrderCount))
	sb.WriteString(fmt.Sprintf("| Fills | %d |\n", r.Summary.FillCount))
	sb.WriteString(fmt.Sprintf("| Rejections | %d |\n", r.Summary.RejectionCount))
	sb.WriteString(fmt.Sprintf("| Realized PnL | %s |\n", r.Summary.RealizedPnL))
	sb.WriteString(fmt.Sprintf("| Unrealized PnL | %s |\n", r.Summary.UnrealizedPnL))
	if r.Summary.PositionsRealizedAtEnd {
		sb.WriteString(fmt.Sprintf("| Unrealized Before Closing | %s |\n", r.Summary.UnrealizedBeforeClosing))
		sb.WriteString("| Positions Realized At End | yes |\n")
	}
	sb.WriteString(fmt.Sprintf("| Commission Source | %s |\n", r.Summary.CommissionSource))
	sb.WriteString("\n")

	// Commissions
	sb.WriteString("## Commissions\n\n")
	if len(r.Commissions) > 0 {
		sb.WriteString("| Currency | Amount |\n")
		sb.WriteString("|----------|--------|\n")
		for _, c := range r.Commissions {
			sb.WriteString(fmt.Sprintf("| %s | %s |\n", c.Currency, c.Amount))
		}
		sb.WriteString("\n")
	} else {
		sb.WriteString("No commissions recorded.\n\n")
	}

	// Cycle Statistics
	sb.WriteString("## Cycle Statistics\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Cycles | %d |\n", r.Cycles.CycleCount))
	sb.WriteString(fmt.Sprintf("| Wins | %d |\n", r.Cycles.WinCount))
	sb.WriteString(fmt.Sprintf("| Losses | %d |\n", r.Cycles.LossCount))
	sb.WriteString(fmt.Sprintf("| Win Rate | %.4f |\n", r.Cycles.WinRate))
	sb.WriteString(fmt.Sprintf("| Max Drawdown | %s |\n", r.Cycles.MaxDrawdown))
	sb.WriteString("\n")

	// Timeline
	sb.WriteString("## Timeline\n\n")
	if len(r.Timeline) > 0 {
		sb.WriteString("| Ts (ns) | Type | Order | Side | Price | Quantity | Detail |\n")
		sb.WriteString("|---------|------|-------|------|-------|----------|--------|\n")
		for _, row := range r.Timeline {
			sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s | %s | %s |\n",
				row.TsEventNs, row.Type, row.OrderID, row.Side, row.Price, row.Quantity, row.Detail))
		}
		sb.WriteString("\n")
	} else {
		sb.WriteString("No events recorded.\n\n")
	}

	return sb.String()
}
