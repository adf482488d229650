package catalog

import (
	"fmt"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/rawsource"
)

// BookSchema recognizes one raw book snapshot layout.
type BookSchema interface {
	Name() string
	Bind(header []string) (BookMapper, bool)
}

// BookMapper converts one raw row into a canonical book snapshot.
type BookMapper interface {
	Map(instrumentID string, row rawsource.Row) (*domain.CanonicalBookSnapshot, error)
}

// bookSchemas is the ordered matcher registry. First match wins.
var bookSchemas = []BookSchema{
	nativeBookSchema{},
	exchangeBookSchema{},
}

// DetectBookSchema finds the first registered book layout matching the header.
func DetectBookSchema(header []string) (string, BookMapper, bool) {
	for _, s := range bookSchemas {
		if mapper, ok := s.Bind(header); ok {
			return s.Name(), mapper, true
		}
	}
	return "", nil, false
}

// levelColumns holds resolved column indexes for one depth level per side.
type levelColumns struct {
	bidPrice, bidSize, askPrice, askSize int
}

// nativeBookSchema uses canonical names with nanosecond timestamps:
// ts_event_ns, ts_init_ns, bid_price_0, bid_size_0, ask_price_0, ask_size_0, ...
type nativeBookSchema struct{}

func (nativeBookSchema) Name() string { return "native_book" }

func (nativeBookSchema) Bind(header []string) (BookMapper, bool) {
	idx := columnIndex(header)
	if !hasColumns(idx, "ts_event_ns", "ts_init_ns", "bid_price_0", "bid_size_0", "ask_price_0", "ask_size_0") {
		return nil, false
	}

	var levels []levelColumns
	for depth := 0; ; depth++ {
		bp, ok1 := idx[fmt.Sprintf("bid_price_%d", depth)]
		bs, ok2 := idx[fmt.Sprintf("bid_size_%d", depth)]
		ap, ok3 := idx[fmt.Sprintf("ask_price_%d", depth)]
		as, ok4 := idx[fmt.Sprintf("ask_size_%d", depth)]
		if !ok1 || !ok2 || !ok3 || !ok4 {
			break
		}
		levels = append(levels, levelColumns{bp, bs, ap, as})
	}

	return &bookMapper{
		tsEvent:  idx["ts_event_ns"],
		tsInit:   idx["ts_init_ns"],
		levels:   levels,
		tsToNano: func(ts int64) int64 { return ts },
	}, true
}

// exchangeBookSchema uses the common download layout with microsecond
// timestamps: timestamp, local_timestamp, bids[0].price, bids[0].amount,
// asks[0].price, asks[0].amount, ...
type exchangeBookSchema struct{}

func (exchangeBookSchema) Name() string { return "exchange_book" }

func (exchangeBookSchema) Bind(header []string) (BookMapper, bool) {
	idx := columnIndex(header)
	if !hasColumns(idx, "timestamp", "local_timestamp", "bids[0].price", "bids[0].amount", "asks[0].price", "asks[0].amount") {
		return nil, false
	}

	var levels []levelColumns
	for depth := 0; ; depth++ {
		bp, ok1 := idx[fmt.Sprintf("bids[%d].price", depth)]
		bs, ok2 := idx[fmt.Sprintf("bids[%d].amount", depth)]
		ap, ok3 := idx[fmt.Sprintf("asks[%d].price", depth)]
		as, ok4 := idx[fmt.Sprintf("asks[%d].amount", depth)]
		if !ok1 || !ok2 || !ok3 || !ok4 {
			break
		}
		levels = append(levels, levelColumns{bp, bs, ap, as})
	}

	return &bookMapper{
		tsEvent:  idx["timestamp"],
		tsInit:   idx["local_timestamp"],
		levels:   levels,
		tsToNano: microsToNanos,
	}, true
}

type bookMapper struct {
	tsEvent, tsInit int
	levels          []levelColumns
	tsToNano        func(int64) int64
}

func (m *bookMapper) Map(instrumentID string, row rawsource.Row) (*domain.CanonicalBookSnapshot, error) {
	rawEvent, err := rowField(row, m.tsEvent)
	if err != nil {
		return nil, err
	}
	rawInit, err := rowField(row, m.tsInit)
	if err != nil {
		return nil, err
	}

	tsEvent, err := parseIntField("event timestamp", rawEvent)
	if err != nil {
		return nil, err
	}
	tsInit, err := parseIntField("init timestamp", rawInit)
	if err != nil {
		return nil, err
	}
	tsEvent = m.tsToNano(tsEvent)
	tsInit = m.tsToNano(tsInit)
	if tsEvent > tsInit {
		return nil, fmt.Errorf("ts_event_ns %d after ts_init_ns %d", tsEvent, tsInit)
	}

	snap := &domain.CanonicalBookSnapshot{
		InstrumentID: instrumentID,
		TsEventNs:    tsEvent,
		TsInitNs:     tsInit,
	}

	for _, lc := range m.levels {
		bid, ok, err := m.level(row, lc.bidPrice, lc.bidSize)
		if err != nil {
			return nil, err
		}
		if ok {
			snap.Bids = append(snap.Bids, bid)
		}
		ask, ok, err := m.level(row, lc.askPrice, lc.askSize)
		if err != nil {
			return nil, err
		}
		if ok {
			snap.Asks = append(snap.Asks, ask)
		}
	}

	if len(snap.Bids) == 0 && len(snap.Asks) == 0 {
		return nil, fmt.Errorf("snapshot has no levels")
	}
	return snap, nil
}

// level parses one (price, size) pair. Empty cells mean the level is absent
// at this depth; both cells must be empty together.
func (m *bookMapper) level(row rawsource.Row, priceIdx, sizeIdx int) (domain.CanonicalBookLevel, bool, error) {
	rawPrice, err := rowField(row, priceIdx)
	if err != nil {
		return domain.CanonicalBookLevel{}, false, err
	}
	rawSize, err := rowField(row, sizeIdx)
	if err != nil {
		return domain.CanonicalBookLevel{}, false, err
	}

	if rawPrice == "" && rawSize == "" {
		return domain.CanonicalBookLevel{}, false, nil
	}
	if rawPrice == "" || rawSize == "" {
		return domain.CanonicalBookLevel{}, false, fmt.Errorf("half-empty book level")
	}

	price, err := parseDecimalField("level price", rawPrice)
	if err != nil {
		return domain.CanonicalBookLevel{}, false, err
	}
	size, err := parseDecimalField("level size", rawSize)
	if err != nil {
		return domain.CanonicalBookLevel{}, false, err
	}
	return domain.CanonicalBookLevel{Price: price, Size: size}, true, nil
}
