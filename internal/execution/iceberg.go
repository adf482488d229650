package execution

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// icebergState tracks the hidden remainder of an iceberg parent. There is
// no time-based schedule: each fill of the visible slice immediately
// re-exposes the next one from the remainder.
type icebergState struct {
	remaining       decimal.Decimal
	visibleFraction decimal.Decimal
	sizePrecision   int32
}

func newIcebergState(total, visibleFraction decimal.Decimal, sizePrecision int32) (*icebergState, error) {
	if !total.IsPositive() {
		return nil, fmt.Errorf("%w: total quantity %s", ErrInvalidParams, total)
	}
	one := decimal.NewFromInt(1)
	if !visibleFraction.IsPositive() || visibleFraction.GreaterThan(one) {
		return nil, fmt.Errorf("%w: visible fraction %s outside (0, 1]", ErrInvalidParams, visibleFraction)
	}
	return &icebergState{
		remaining:       total,
		visibleFraction: visibleFraction,
		sizePrecision:   sizePrecision,
	}, nil
}

// nextVisible returns the next slice quantity to expose, or zero when the
// parent is exhausted. A truncation that would expose nothing while
// quantity remains exposes the whole remainder instead, so the order can
// always finish.
func (s *icebergState) nextVisible() decimal.Decimal {
	if !s.remaining.IsPositive() {
		return decimal.Zero
	}

	visible := s.remaining.Mul(s.visibleFraction).Truncate(s.sizePrecision)
	if !visible.IsPositive() || visible.GreaterThan(s.remaining) {
		visible = s.remaining
	}
	return visible
}

// applyFill reduces the remainder by the filled quantity.
func (s *icebergState) applyFill(qty decimal.Decimal) {
	s.remaining = s.remaining.Sub(qty)
	if s.remaining.IsNegative() {
		s.remaining = decimal.Zero
	}
}

// exhausted reports whether nothing is left to expose.
func (s *icebergState) exhausted() bool {
	return !s.remaining.IsPositive()
}
