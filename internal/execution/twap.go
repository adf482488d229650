package execution

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// sliceSpec is one planned slice: a quantity to expose at an offset from
// the schedule start.
type sliceSpec struct {
	quantity decimal.Decimal
	offsetNs int64
}

// planTwap splits the total into max(1, floor(horizon/interval)) equal
// slices spaced interval apart. Each slice is truncated to the instrument's
// size precision; the last slice absorbs the rounding remainder so the sum
// equals total exactly.
func planTwap(total decimal.Decimal, sizePrecision int32, horizonSecs, intervalSecs int64) ([]sliceSpec, error) {
	if !total.IsPositive() {
		return nil, fmt.Errorf("%w: total quantity %s", ErrInvalidParams, total)
	}
	if horizonSecs <= 0 || intervalSecs <= 0 {
		return nil, fmt.Errorf("%w: horizon=%ds interval=%ds", ErrInvalidParams, horizonSecs, intervalSecs)
	}

	n := horizonSecs / intervalSecs
	if n < 1 {
		n = 1
	}

	return planWeighted(total, sizePrecision, uniformWeights(int(n)), intervalSecs)
}

// planWeighted distributes total across len(weights) slices in proportion
// to the weights, spaced intervalSecs apart starting at offset zero.
func planWeighted(total decimal.Decimal, sizePrecision int32, weights []float64, intervalSecs int64) ([]sliceSpec, error) {
	n := len(weights)
	if n == 0 {
		return nil, fmt.Errorf("%w: empty weight profile", ErrInvalidParams)
	}

	var sum float64
	for _, w := range weights {
		if w < 0 {
			return nil, fmt.Errorf("%w: negative weight %f", ErrInvalidParams, w)
		}
		sum += w
	}
	if sum <= 0 {
		return nil, fmt.Errorf("%w: weight profile sums to zero", ErrInvalidParams)
	}

	specs := make([]sliceSpec, 0, n)
	allocated := decimal.Zero
	for i := 0; i < n; i++ {
		var qty decimal.Decimal
		if i == n-1 {
			// The last slice takes whatever remains: quantity is
			// conserved exactly, never dropped to rounding.
			qty = total.Sub(allocated)
		} else {
			frac := decimal.NewFromFloat(weights[i] / sum)
			qty = total.Mul(frac).Truncate(sizePrecision)
		}
		allocated = allocated.Add(qty)
		specs = append(specs, sliceSpec{
			quantity: qty,
			offsetNs: int64(i) * intervalSecs * nanosPerSec,
		})
	}

	if !allocated.Equal(total) {
		return nil, fmt.Errorf("%w: planned %s, parent total %s", ErrSliceQuantityOverflow, allocated, total)
	}
	return specs, nil
}

func uniformWeights(n int) []float64 {
	weights := make([]float64, n)
	for i := range weights {
		weights[i] = 1
	}
	return weights
}

const nanosPerSec = int64(1_000_000_000)
