package reconcile

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/timeline"
)

// aggregateCommissions resolves commissions through the fallback chain:
//
//  1. each position's own commission ledger (authoritative),
//  2. the fills report's commission column,
//  3. the algebraic residual (realized + unrealized) - balance change.
//
// The chosen source is returned so the caller can label tier 2 and tier 3
// results as lower confidence rather than presenting them as equals.
func (e *Engine) aggregateCommissions(
	ctx context.Context,
	cfg Config,
	positions []*domain.Position,
	tl *timeline.Timeline,
	realized, unrealized decimal.Decimal,
) ([]domain.Money, domain.CommissionSource, error) {
	// Tier 1: position commission ledgers.
	byCurrency := make(map[string]decimal.Decimal)
	ledgerOK := true
	for _, p := range positions {
		entries, err := e.view.Commissions(ctx, p.PositionID)
		if err != nil {
			ledgerOK = false
			break
		}
		for _, m := range entries {
			byCurrency[m.Currency] = byCurrency[m.Currency].Add(m.Amount)
		}
	}
	if ledgerOK && len(byCurrency) > 0 {
		return flatten(byCurrency), domain.CommissionFromLedger, nil
	}

	// Tier 2: fills report.
	if tl != nil {
		byCurrency = make(map[string]decimal.Decimal)
		found := false
		for _, entry := range tl.All() {
			if entry.Type != timeline.EntryFill {
				continue
			}
			c := entry.Fill.Commission
			if c.Currency == "" {
				continue
			}
			byCurrency[c.Currency] = byCurrency[c.Currency].Add(c.Amount)
			found = true
		}
		if found {
			return flatten(byCurrency), domain.CommissionFromFillsReport, nil
		}
	}

	// Tier 3: algebraic residual against observed balance changes. This
	// is a reconciliation of last resort; the formula silently absorbs
	// any unrelated balance movement, so its result is only a floor-level
	// estimate and is labeled as such.
	if e.balances != nil {
		changes, err := e.balances.BalanceChanges(ctx)
		if err == nil && len(changes) > 0 {
			byCurrency = make(map[string]decimal.Decimal)
			for _, m := range changes {
				residual := realized.Add(unrealized).Sub(m.Amount)
				if residual.IsNegative() {
					residual = decimal.Zero
				}
				byCurrency[m.Currency] = residual
			}
			return flatten(byCurrency), domain.CommissionFromBalanceGap, nil
		}
	}

	// Nothing usable: no trades happened, or every path is dark. An empty
	// ledger with no fills is a legitimate zero-commission run.
	return nil, domain.CommissionFromLedger, nil
}

// checkBalanceInvariant verifies observed balance change equals realized
// PnL minus commissions within tolerance, per currency. Failures surface
// as errors; this gap has been observed to be material in the wild and
// must never be silently accepted.
func (e *Engine) checkBalanceInvariant(ctx context.Context, realized decimal.Decimal, commissions []domain.Money, tolerance decimal.Decimal) error {
	if e.balances == nil {
		return nil
	}
	changes, err := e.balances.BalanceChanges(ctx)
	if err != nil || len(changes) == 0 {
		// No balance surface, nothing to check against.
		return nil
	}

	commissionFor := make(map[string]decimal.Decimal, len(commissions))
	for _, m := range commissions {
		commissionFor[m.Currency] = m.Amount
	}

	for _, change := range changes {
		expected := realized.Sub(commissionFor[change.Currency])
		gap := change.Amount.Sub(expected).Abs()
		if gap.GreaterThan(tolerance) {
			return &BalanceMismatchError{
				Currency:      change.Currency,
				BalanceChange: change.Amount,
				Expected:      expected,
				Tolerance:     tolerance,
			}
		}
	}
	return nil
}

func flatten(byCurrency map[string]decimal.Decimal) []domain.Money {
	result := make([]domain.Money, 0, len(byCurrency))
	for currency, amount := range byCurrency {
		if amount.IsNegative() {
			amount = decimal.Zero
		}
		result = append(result, domain.Money{Currency: currency, Amount: amount})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Currency < result[j].Currency })
	return result
}
