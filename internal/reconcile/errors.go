package reconcile

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrAccountingUnavailable is returned when neither current positions nor
// position snapshots are queryable. It is fatal: a summary with silently
// zero PnL is worse than an explicit failure.
var ErrAccountingUnavailable = errors.New("accounting unavailable")

// BalanceMismatchError reports that the observed balance change disagrees
// with realized PnL minus commissions beyond tolerance. The root cause of
// such gaps (unrealized timing vs. commission double counting) cannot be
// distinguished here, so the mismatch fails loudly instead of being
// absorbed into either figure.
type BalanceMismatchError struct {
	Currency      string
	BalanceChange decimal.Decimal
	Expected      decimal.Decimal // realized - commissions
	Tolerance     decimal.Decimal
}

// Error renders the mismatch.
func (e *BalanceMismatchError) Error() string {
	return fmt.Sprintf("balance invariant violated for %s: observed change %s, realized-commissions %s, tolerance %s",
		e.Currency, e.BalanceChange, e.Expected, e.Tolerance)
}
