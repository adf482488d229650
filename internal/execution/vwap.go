package execution

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// planVwap slices like Twap but draws slice weights from a volume profile.
// An empty profile degrades to uniform weights, which makes the plan
// identical to Twap; this fallback is intentional, not a silent bug.
//
// When the profile length differs from the slice count, each slice takes
// the weight of the profile bucket its position maps onto.
func planVwap(total decimal.Decimal, sizePrecision int32, horizonSecs, intervalSecs int64, profile []float64) ([]sliceSpec, error) {
	if !total.IsPositive() {
		return nil, fmt.Errorf("%w: total quantity %s", ErrInvalidParams, total)
	}
	if horizonSecs <= 0 || intervalSecs <= 0 {
		return nil, fmt.Errorf("%w: horizon=%ds interval=%ds", ErrInvalidParams, horizonSecs, intervalSecs)
	}

	if len(profile) == 0 {
		return planTwap(total, sizePrecision, horizonSecs, intervalSecs)
	}

	n := horizonSecs / intervalSecs
	if n < 1 {
		n = 1
	}

	return planWeighted(total, sizePrecision, resampleProfile(profile, int(n)), intervalSecs)
}

// resampleProfile maps a profile of arbitrary length onto n slices.
func resampleProfile(profile []float64, n int) []float64 {
	if len(profile) == n {
		return profile
	}
	weights := make([]float64, n)
	for i := 0; i < n; i++ {
		weights[i] = profile[i*len(profile)/n]
	}
	return weights
}
