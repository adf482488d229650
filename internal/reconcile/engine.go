// Package reconcile computes the financial summary of a run from the
// replay engine's accounting queries and the assembled timeline.
//
// The netting trap this package exists for: a position that flips
// direction never emits a discrete close, so the live position object only
// carries the current cycle's realized PnL. Summing open positions alone
// undercounts; the correct aggregate is the union of every open position's
// realized PnL and every retained snapshot's realized PnL.
package reconcile

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/engine"
	"backtest-lab/internal/observability"
	"backtest-lab/internal/timeline"
)

// Config controls one reconciliation pass.
type Config struct {
	RunID        string
	InstrumentID string
	StartNs      int64
	EndNs        int64

	// RealizeAtEnd folds open positions into realized PnL as forced
	// closing fills at the last price.
	RealizeAtEnd bool

	// SkipBalanceCheck disables the balance-vs-PnL invariant check.
	SkipBalanceCheck bool

	// BalanceTolerance is the permitted absolute gap per currency in the
	// invariant check. Zero means exact.
	BalanceTolerance decimal.Decimal
}

// Engine reconciles positions, snapshots, and commissions into a RunSummary.
type Engine struct {
	view     engine.AccountingView
	balances engine.BalanceView // optional; nil disables tier-3 fallback and the invariant check
	metrics  *observability.Metrics
}

// New creates a reconciliation engine. balances may be nil when the
// collaborator exposes no balance view.
func New(view engine.AccountingView, balances engine.BalanceView, metrics *observability.Metrics) *Engine {
	return &Engine{view: view, balances: balances, metrics: metrics}
}

// Summarize computes the run's financial summary. tl supplies event counts
// and the fills-report commission fallback; it must already cover the run
// window.
func (e *Engine) Summarize(ctx context.Context, cfg Config, tl *timeline.Timeline) (*domain.RunSummary, error) {
	positions, snapshots, err := e.loadAccounting(ctx, cfg.InstrumentID)
	if err != nil {
		return nil, err
	}

	// Realized PnL: open cycles plus every superseded cycle's snapshot.
	realized := decimal.Zero
	for _, p := range positions {
		realized = realized.Add(p.RealizedPnL)
	}
	for _, s := range snapshots {
		realized = realized.Add(s.RealizedPnL)
	}

	unrealized, err := e.unrealizedPnL(ctx, positions)
	if err != nil {
		return nil, err
	}

	summary := &domain.RunSummary{
		RunID:                   cfg.RunID,
		InstrumentID:            cfg.InstrumentID,
		StartNs:                 cfg.StartNs,
		EndNs:                   cfg.EndNs,
		RealizedPnL:             realized,
		UnrealizedPnL:           unrealized,
		UnrealizedBeforeClosing: unrealized,
	}

	if cfg.RealizeAtEnd {
		summary.RealizedPnL = summary.RealizedPnL.Add(unrealized)
		summary.UnrealizedPnL = decimal.Zero
		summary.PositionsRealizedAtEnd = true
	}

	commissions, source, err := e.aggregateCommissions(ctx, cfg, positions, tl, realized, unrealized)
	if err != nil {
		return nil, err
	}
	summary.Commissions = commissions
	summary.CommissionSource = source
	if e.metrics != nil {
		e.metrics.CommissionFallbacks.WithLabelValues(string(source)).Inc()
	}

	if !cfg.SkipBalanceCheck && source != domain.CommissionFromBalanceGap {
		if err := e.checkBalanceInvariant(ctx, realized, commissions, cfg.BalanceTolerance); err != nil {
			return nil, err
		}
	}

	summary.Stats = computeCycleStats(positions, snapshots)

	if tl != nil {
		for _, entry := range tl.All() {
			switch entry.Type {
			case timeline.EntryOrder:
				summary.OrderCount++
			case timeline.EntryFill:
				summary.FillCount++
			case timeline.EntryRejection:
				summary.RejectionCount++
			}
		}
	}

	if e.metrics != nil {
		e.metrics.SummariesProduced.Inc()
	}
	return summary, nil
}

// loadAccounting queries positions and their snapshot history. Only when
// both surfaces fail is the run unaccountable.
func (e *Engine) loadAccounting(ctx context.Context, instrumentID string) ([]*domain.Position, []*domain.PositionSnapshot, error) {
	positions, posErr := e.view.Positions(ctx, instrumentID)
	if posErr != nil {
		// Snapshots are keyed by position id; without positions there is
		// nothing left to query.
		return nil, nil, fmt.Errorf("%w: positions query failed: %v", ErrAccountingUnavailable, posErr)
	}

	var snapshots []*domain.PositionSnapshot
	var snapErr error
	for _, p := range positions {
		snaps, err := e.view.PositionSnapshots(ctx, p.PositionID)
		if err != nil {
			snapErr = err
			continue
		}
		snapshots = append(snapshots, snaps...)
	}
	if snapErr != nil && len(snapshots) == 0 && allFlat(positions) {
		return nil, nil, fmt.Errorf("%w: snapshot query failed: %v", ErrAccountingUnavailable, snapErr)
	}

	return positions, snapshots, nil
}

// unrealizedPnL marks open positions to the latest trade price.
func (e *Engine) unrealizedPnL(ctx context.Context, positions []*domain.Position) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, p := range positions {
		if p.Side == domain.PositionFlat || p.Quantity.IsZero() {
			continue
		}
		last, err := e.view.LastPrice(ctx, p.InstrumentID)
		if err != nil {
			return decimal.Zero, fmt.Errorf("last price for %s: %w", p.InstrumentID, err)
		}
		pnl := last.Sub(p.AvgOpenPrice).Mul(p.Quantity)
		if p.Side == domain.PositionShort {
			pnl = pnl.Neg()
		}
		total = total.Add(pnl)
	}
	return total, nil
}

func allFlat(positions []*domain.Position) bool {
	for _, p := range positions {
		if p.Side != domain.PositionFlat {
			return false
		}
	}
	return true
}
