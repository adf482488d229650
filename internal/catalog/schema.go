package catalog

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/rawsource"
)

// TickSchema recognizes one raw trade layout. Bind inspects the header and,
// when the layout matches, returns a mapper with column indexes resolved.
type TickSchema interface {
	// Name identifies the layout for error messages.
	Name() string

	// Bind returns a mapper for the header, or false if the layout does
	// not match.
	Bind(header []string) (TickMapper, bool)
}

// TickMapper converts one raw row into a canonical tick.
type TickMapper interface {
	Map(instrumentID string, row rawsource.Row) (*domain.CanonicalTick, error)
}

// tickSchemas is the ordered matcher registry. First match wins.
var tickSchemas = []TickSchema{
	nativeTickSchema{},
	exchangeTickSchema{},
	aggTradeTickSchema{},
}

// DetectTickSchema finds the first registered layout matching the header.
// Returns false when no layout matches.
func DetectTickSchema(header []string) (string, TickMapper, bool) {
	for _, s := range tickSchemas {
		if mapper, ok := s.Bind(header); ok {
			return s.Name(), mapper, true
		}
	}
	return "", nil, false
}

// columnIndex builds a case-insensitive name -> position lookup.
func columnIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return idx
}

func hasColumns(idx map[string]int, names ...string) bool {
	for _, n := range names {
		if _, ok := idx[n]; !ok {
			return false
		}
	}
	return true
}

func rowField(row rawsource.Row, i int) (string, error) {
	if i >= len(row) {
		return "", fmt.Errorf("row has %d columns, need index %d", len(row), i)
	}
	return strings.TrimSpace(row[i]), nil
}

// mapAggressor normalizes the side encodings seen across sources.
func mapAggressor(raw string) (domain.AggressorSide, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "BUY", "B", "BUYER", "BID":
		return domain.AggressorBuy, nil
	case "SELL", "S", "SELLER", "ASK":
		return domain.AggressorSell, nil
	default:
		return "", fmt.Errorf("unknown side encoding %q", raw)
	}
}

// buildTick validates canonical invariants before constructing a tick.
func buildTick(instrumentID string, tsEvent, tsInit int64, price, size decimal.Decimal, side domain.AggressorSide, tradeID string) (*domain.CanonicalTick, error) {
	if tsEvent > tsInit {
		return nil, fmt.Errorf("ts_event_ns %d after ts_init_ns %d", tsEvent, tsInit)
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("non-positive price %s", price)
	}
	if !size.IsPositive() {
		return nil, fmt.Errorf("non-positive size %s", size)
	}
	if tradeID == "" {
		return nil, fmt.Errorf("empty trade_id")
	}

	return &domain.CanonicalTick{
		InstrumentID: instrumentID,
		TsEventNs:    tsEvent,
		TsInitNs:     tsInit,
		Price:        price,
		Size:         size,
		Aggressor:    side,
		TradeID:      tradeID,
	}, nil
}

func parseDecimalField(name, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse %s %q: %w", name, raw, err)
	}
	return d, nil
}

func parseIntField(name, raw string) (int64, error) {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", name, raw, err)
	}
	return v, nil
}
