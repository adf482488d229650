package catalog

import (
	"fmt"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/rawsource"
)

// nativeTickSchema is the layout whose columns already carry canonical
// field names and nanosecond timestamps.
type nativeTickSchema struct{}

func (nativeTickSchema) Name() string { return "native" }

func (nativeTickSchema) Bind(header []string) (TickMapper, bool) {
	idx := columnIndex(header)
	if !hasColumns(idx, "ts_event_ns", "ts_init_ns", "price", "size", "aggressor_side", "trade_id") {
		return nil, false
	}
	return &nativeTickMapper{
		tsEvent: idx["ts_event_ns"],
		tsInit:  idx["ts_init_ns"],
		price:   idx["price"],
		size:    idx["size"],
		side:    idx["aggressor_side"],
		tradeID: idx["trade_id"],
	}, true
}

type nativeTickMapper struct {
	tsEvent, tsInit, price, size, side, tradeID int
}

func (m *nativeTickMapper) Map(instrumentID string, row rawsource.Row) (*domain.CanonicalTick, error) {
	fields, err := extract(row, m.tsEvent, m.tsInit, m.price, m.size, m.side, m.tradeID)
	if err != nil {
		return nil, err
	}

	tsEvent, err := parseIntField("ts_event_ns", fields[0])
	if err != nil {
		return nil, err
	}
	tsInit, err := parseIntField("ts_init_ns", fields[1])
	if err != nil {
		return nil, err
	}
	price, err := parseDecimalField("price", fields[2])
	if err != nil {
		return nil, err
	}
	size, err := parseDecimalField("size", fields[3])
	if err != nil {
		return nil, err
	}
	side, err := mapAggressor(fields[4])
	if err != nil {
		return nil, err
	}

	return buildTick(instrumentID, tsEvent, tsInit, price, size, side, fields[5])
}

// exchangeTickSchema is the common exchange download layout: microsecond
// timestamps, lowercase side encoding, "amount" for size.
type exchangeTickSchema struct{}

func (exchangeTickSchema) Name() string { return "exchange" }

func (exchangeTickSchema) Bind(header []string) (TickMapper, bool) {
	idx := columnIndex(header)
	if !hasColumns(idx, "timestamp", "local_timestamp", "id", "side", "price", "amount") {
		return nil, false
	}
	return &exchangeTickMapper{
		ts:      idx["timestamp"],
		localTs: idx["local_timestamp"],
		id:      idx["id"],
		side:    idx["side"],
		price:   idx["price"],
		amount:  idx["amount"],
	}, true
}

type exchangeTickMapper struct {
	ts, localTs, id, side, price, amount int
}

func (m *exchangeTickMapper) Map(instrumentID string, row rawsource.Row) (*domain.CanonicalTick, error) {
	fields, err := extract(row, m.ts, m.localTs, m.id, m.side, m.price, m.amount)
	if err != nil {
		return nil, err
	}

	tsUs, err := parseIntField("timestamp", fields[0])
	if err != nil {
		return nil, err
	}
	localUs, err := parseIntField("local_timestamp", fields[1])
	if err != nil {
		return nil, err
	}
	side, err := mapAggressor(fields[3])
	if err != nil {
		return nil, err
	}
	price, err := parseDecimalField("price", fields[4])
	if err != nil {
		return nil, err
	}
	size, err := parseDecimalField("amount", fields[5])
	if err != nil {
		return nil, err
	}

	return buildTick(instrumentID, microsToNanos(tsUs), microsToNanos(localUs), price, size, side, fields[2])
}

// aggTradeTickSchema is the aggregated-trades download layout: millisecond
// timestamps and a boolean buyer-maker flag instead of a side column.
type aggTradeTickSchema struct{}

func (aggTradeTickSchema) Name() string { return "agg_trade" }

func (aggTradeTickSchema) Bind(header []string) (TickMapper, bool) {
	idx := columnIndex(header)
	if !hasColumns(idx, "agg_trade_id", "price", "quantity", "transact_time", "is_buyer_maker") {
		return nil, false
	}
	return &aggTradeTickMapper{
		id:         idx["agg_trade_id"],
		price:      idx["price"],
		quantity:   idx["quantity"],
		transactMs: idx["transact_time"],
		buyerMaker: idx["is_buyer_maker"],
	}, true
}

type aggTradeTickMapper struct {
	id, price, quantity, transactMs, buyerMaker int
}

func (m *aggTradeTickMapper) Map(instrumentID string, row rawsource.Row) (*domain.CanonicalTick, error) {
	fields, err := extract(row, m.id, m.price, m.quantity, m.transactMs, m.buyerMaker)
	if err != nil {
		return nil, err
	}

	price, err := parseDecimalField("price", fields[1])
	if err != nil {
		return nil, err
	}
	size, err := parseDecimalField("quantity", fields[2])
	if err != nil {
		return nil, err
	}
	tsMs, err := parseIntField("transact_time", fields[3])
	if err != nil {
		return nil, err
	}

	// The buyer being the maker means the aggressor sold.
	var side domain.AggressorSide
	switch fields[4] {
	case "true", "True", "TRUE", "1":
		side = domain.AggressorSell
	case "false", "False", "FALSE", "0":
		side = domain.AggressorBuy
	default:
		return nil, fmt.Errorf("unknown is_buyer_maker value %q", fields[4])
	}

	ns := millisToNanos(tsMs)
	return buildTick(instrumentID, ns, ns, price, size, side, fields[0])
}

func microsToNanos(us int64) int64 { return us * 1_000 }
func millisToNanos(ms int64) int64 { return ms * 1_000_000 }

func extract(row rawsource.Row, indexes ...int) ([]string, error) {
	fields := make([]string, len(indexes))
	for i, idx := range indexes {
		f, err := rowField(row, idx)
		if err != nil {
			return nil, err
		}
		fields[i] = f
	}
	return fields, nil
}
