package domain

// Instrument describes one tradeable instrument registered in the catalog.
// One registration record exists per instrument; registration is idempotent.
type Instrument struct {
	InstrumentID   string // canonical id, e.g. "BTCUSDT.BINANCE"
	Symbol         string // venue-local symbol
	Venue          string
	PricePrecision int32 // decimal places for prices
	SizePrecision  int32 // decimal places for quantities
	RegisteredAtNs int64
}

// TimeRange is a half-open [StartNs, EndNs) window in nanoseconds.
type TimeRange struct {
	StartNs int64
	EndNs   int64
}

// Contains reports whether ts falls inside the range.
func (r TimeRange) Contains(ts int64) bool {
	return ts >= r.StartNs && ts < r.EndNs
}
