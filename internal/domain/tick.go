package domain

import "github.com/shopspring/decimal"

// RecordType identifies the kind of canonical market data record.
type RecordType string

// Record type constants.
const (
	RecordTypeTrade RecordType = "trade"
	RecordTypeBook  RecordType = "book"
)

// AggressorSide identifies which side initiated a trade.
type AggressorSide string

// Aggressor side constants.
const (
	AggressorBuy  AggressorSide = "BUY"
	AggressorSell AggressorSide = "SELL"
)

// CanonicalTick is the schema-normalized representation of one trade.
// Invariant: TsEventNs <= TsInitNs; ticks within a partition are ordered
// by TsEventNs ascending.
type CanonicalTick struct {
	InstrumentID string
	TsEventNs    int64 // when the trade happened at the venue (ns)
	TsInitNs     int64 // when the record entered the system (ns)
	Price        decimal.Decimal
	Size         decimal.Decimal
	Aggressor    AggressorSide
	TradeID      string
}

// CanonicalBookLevel is one price level on one side of the book.
type CanonicalBookLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// CanonicalBookSnapshot is a depth-N view of both sides of the book
// at a single timestamp. Mirrors the tick timestamp invariants.
type CanonicalBookSnapshot struct {
	InstrumentID string
	TsEventNs    int64
	TsInitNs     int64
	Bids         []CanonicalBookLevel // best bid first
	Asks         []CanonicalBookLevel // best ask first
}
