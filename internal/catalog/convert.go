// Package catalog normalizes heterogeneous raw market data into canonical
// records and maintains the partitioned catalog cache. Conversion is
// all-or-nothing per (instrument, record type): if any record of the
// requested type already exists, the whole conversion is a no-op, and a
// malformed row aborts the file before anything is written.
package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"sort"
	"time"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/idhash"
	"backtest-lab/internal/observability"
	"backtest-lab/internal/rawsource"
	"backtest-lab/internal/storage"
)

const (
	// DefaultBatchSize bounds how many canonical records one store write
	// carries.
	DefaultBatchSize = 10_000

	// DefaultBucketNs is the coarse partition bucket width (one day).
	DefaultBucketNs = int64(24 * time.Hour)
)

// Converter ingests raw sources and writes canonical records to the catalog.
type Converter struct {
	instruments storage.InstrumentStore
	ticks       storage.TickStore
	books       storage.BookStore
	manifest    storage.PartitionManifestStore

	batchSize int
	bucketNs  int64
	locks     *keyedLocks
	metrics   *observability.Metrics
	now       func() int64
}

// Option configures a Converter.
type Option func(*Converter)

// WithBatchSize overrides the write batch size.
func WithBatchSize(n int) Option {
	return func(c *Converter) { c.batchSize = n }
}

// WithBucketWidth overrides the coarse partition bucket width.
func WithBucketWidth(ns int64) Option {
	return func(c *Converter) { c.bucketNs = ns }
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Converter) { c.metrics = m }
}

// WithClock overrides the wall clock used for created_at stamps.
func WithClock(now func() int64) Option {
	return func(c *Converter) { c.now = now }
}

// NewConverter creates a converter over the given stores.
func NewConverter(
	instruments storage.InstrumentStore,
	ticks storage.TickStore,
	books storage.BookStore,
	manifest storage.PartitionManifestStore,
	opts ...Option,
) *Converter {
	c := &Converter{
		instruments: instruments,
		ticks:       ticks,
		books:       books,
		manifest:    manifest,
		batchSize:   DefaultBatchSize,
		bucketNs:    DefaultBucketNs,
		locks:       newKeyedLocks(),
		now:         func() int64 { return time.Now().UnixNano() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Result describes the outcome of one conversion.
type Result struct {
	Skipped     bool // catalog already covered the key; nothing was written
	SchemaName  string
	RecordCount int64
	SortedInput bool // source violated the order invariant and was sorted
	Partitions  []*domain.CatalogPartition
}

// ConvertTicks converts a raw trade source into canonical ticks for the
// instrument. Returns a skipped Result when the catalog already holds any
// trade record for the instrument.
func (c *Converter) ConvertTicks(ctx context.Context, src rawsource.Source, inst *domain.Instrument) (*Result, error) {
	release := c.locks.acquire(lockKey(inst.InstrumentID, domain.RecordTypeTrade))
	defer release()

	skip, err := c.alreadyCovered(ctx, inst.InstrumentID, domain.RecordTypeTrade)
	if err != nil {
		return nil, err
	}
	if skip {
		c.countSkip()
		return &Result{Skipped: true}, nil
	}

	schemaName, mapper, ok := DetectTickSchema(src.Header())
	if !ok {
		return nil, c.fail(&ConvertError{
			Kind:         ErrSchemaUnrecognized,
			InstrumentID: inst.InstrumentID,
			RecordType:   domain.RecordTypeTrade,
			Source:       src.Name(),
			Detail:       fmt.Sprintf("header %v matches no known trade layout", src.Header()),
		})
	}

	// The whole file must parse before anything is written: the abort
	// policy forbids partial catalogs, so canonical records accumulate
	// in memory while raw rows are streamed and discarded.
	records, sorted, err := c.readTicks(ctx, src, mapper, inst.InstrumentID)
	if err != nil {
		return nil, err
	}
	if !sorted {
		c.countSortFallback()
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].TsEventNs < records[j].TsEventNs
		})
	}

	if err := c.registerInstrument(ctx, inst); err != nil {
		return nil, err
	}

	partitions, err := c.writeTicks(ctx, inst.InstrumentID, records)
	if err != nil {
		return nil, err
	}
	resolved, err := c.recordPartitions(ctx, inst.InstrumentID, domain.RecordTypeTrade, src.Name(), partitions)
	if err != nil {
		return nil, err
	}
	if resolved {
		c.countSkip()
		return &Result{Skipped: true}, nil
	}

	c.countRecords(domain.RecordTypeTrade, int64(len(records)))
	return &Result{
		SchemaName:  schemaName,
		RecordCount: int64(len(records)),
		SortedInput: !sorted,
		Partitions:  partitions,
	}, nil
}

// ConvertBook converts a raw book snapshot source for the instrument.
func (c *Converter) ConvertBook(ctx context.Context, src rawsource.Source, inst *domain.Instrument) (*Result, error) {
	release := c.locks.acquire(lockKey(inst.InstrumentID, domain.RecordTypeBook))
	defer release()

	skip, err := c.alreadyCoveredBook(ctx, inst.InstrumentID)
	if err != nil {
		return nil, err
	}
	if skip {
		c.countSkip()
		return &Result{Skipped: true}, nil
	}

	schemaName, mapper, ok := DetectBookSchema(src.Header())
	if !ok {
		return nil, c.fail(&ConvertError{
			Kind:         ErrSchemaUnrecognized,
			InstrumentID: inst.InstrumentID,
			RecordType:   domain.RecordTypeBook,
			Source:       src.Name(),
			Detail:       fmt.Sprintf("header %v matches no known book layout", src.Header()),
		})
	}

	snaps, sorted, err := c.readBook(ctx, src, mapper, inst.InstrumentID)
	if err != nil {
		return nil, err
	}
	if !sorted {
		c.countSortFallback()
		sort.SliceStable(snaps, func(i, j int) bool {
			return snaps[i].TsEventNs < snaps[j].TsEventNs
		})
	}

	if err := c.registerInstrument(ctx, inst); err != nil {
		return nil, err
	}

	partitions, err := c.writeBook(ctx, inst.InstrumentID, snaps)
	if err != nil {
		return nil, err
	}
	resolved, err := c.recordPartitions(ctx, inst.InstrumentID, domain.RecordTypeBook, src.Name(), partitions)
	if err != nil {
		return nil, err
	}
	if resolved {
		c.countSkip()
		return &Result{Skipped: true}, nil
	}

	c.countRecords(domain.RecordTypeBook, int64(len(snaps)))
	return &Result{
		SchemaName:  schemaName,
		RecordCount: int64(len(snaps)),
		SortedInput: !sorted,
		Partitions:  partitions,
	}, nil
}

// alreadyCovered consults both the manifest and the tick store so that a
// manifest lost out-of-band still cannot cause duplicate records.
func (c *Converter) alreadyCovered(ctx context.Context, instrumentID string, rt domain.RecordType) (bool, error) {
	covered, err := c.manifest.HasAny(ctx, instrumentID, rt)
	if err != nil {
		return false, fmt.Errorf("query manifest: %w", err)
	}
	if covered {
		return true, nil
	}
	has, err := c.ticks.HasAny(ctx, instrumentID)
	if err != nil {
		return false, fmt.Errorf("query tick store: %w", err)
	}
	return has, nil
}

func (c *Converter) alreadyCoveredBook(ctx context.Context, instrumentID string) (bool, error) {
	covered, err := c.manifest.HasAny(ctx, instrumentID, domain.RecordTypeBook)
	if err != nil {
		return false, fmt.Errorf("query manifest: %w", err)
	}
	if covered {
		return true, nil
	}
	has, err := c.books.HasAny(ctx, instrumentID)
	if err != nil {
		return false, fmt.Errorf("query book store: %w", err)
	}
	return has, nil
}

func (c *Converter) readTicks(ctx context.Context, src rawsource.Source, mapper TickMapper, instrumentID string) ([]*domain.CanonicalTick, bool, error) {
	var records []*domain.CanonicalTick
	sorted := true
	var lastTs int64

	for rowNum := 1; ; rowNum++ {
		row, err := src.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, c.fail(&ConvertError{
				Kind:         ErrSourceUnavailable,
				InstrumentID: instrumentID,
				RecordType:   domain.RecordTypeTrade,
				Source:       src.Name(),
				Row:          rowNum,
				Detail:       err.Error(),
			})
		}

		tick, err := mapper.Map(instrumentID, row)
		if err != nil {
			return nil, false, c.fail(&ConvertError{
				Kind:         ErrMalformedRecord,
				InstrumentID: instrumentID,
				RecordType:   domain.RecordTypeTrade,
				Source:       src.Name(),
				Row:          rowNum,
				Detail:       err.Error(),
			})
		}

		if tick.TsEventNs < lastTs {
			sorted = false
		}
		lastTs = tick.TsEventNs
		records = append(records, tick)
	}
	return records, sorted, nil
}

func (c *Converter) readBook(ctx context.Context, src rawsource.Source, mapper BookMapper, instrumentID string) ([]*domain.CanonicalBookSnapshot, bool, error) {
	var snaps []*domain.CanonicalBookSnapshot
	sorted := true
	var lastTs int64

	for rowNum := 1; ; rowNum++ {
		row, err := src.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, c.fail(&ConvertError{
				Kind:         ErrSourceUnavailable,
				InstrumentID: instrumentID,
				RecordType:   domain.RecordTypeBook,
				Source:       src.Name(),
				Row:          rowNum,
				Detail:       err.Error(),
			})
		}

		snap, err := mapper.Map(instrumentID, row)
		if err != nil {
			return nil, false, c.fail(&ConvertError{
				Kind:         ErrMalformedRecord,
				InstrumentID: instrumentID,
				RecordType:   domain.RecordTypeBook,
				Source:       src.Name(),
				Row:          rowNum,
				Detail:       err.Error(),
			})
		}

		if snap.TsEventNs < lastTs {
			sorted = false
		}
		lastTs = snap.TsEventNs
		snaps = append(snaps, snap)
	}
	return snaps, sorted, nil
}

// writeTicks flushes records in bounded batches and builds one partition
// per coarse time bucket, with a per-partition checksum over the record
// stream in write order.
func (c *Converter) writeTicks(ctx context.Context, instrumentID string, records []*domain.CanonicalTick) ([]*domain.CatalogPartition, error) {
	var partitions []*domain.CatalogPartition
	var current *domain.CatalogPartition
	var digest hash.Hash

	flushPartition := func() {
		if current != nil {
			current.Checksum = hex.EncodeToString(digest.Sum(nil))
			partitions = append(partitions, current)
		}
	}

	for start := 0; start < len(records); start += c.batchSize {
		end := start + c.batchSize
		if end > len(records) {
			end = len(records)
		}
		if err := c.ticks.InsertBatch(ctx, records[start:end]); err != nil {
			return nil, fmt.Errorf("write tick batch: %w", err)
		}
		c.countBatch()

		for _, t := range records[start:end] {
			bucket := bucketStart(t.TsEventNs, c.bucketNs)
			if current == nil || current.BucketStart != bucket {
				flushPartition()
				current = c.newPartition(instrumentID, domain.RecordTypeTrade, bucket)
				digest = sha256.New()
			}
			current.RecordCount++
			fmt.Fprintf(digest, "%s|%d|%d|%s|%s|%s\n",
				t.TradeID, t.TsEventNs, t.TsInitNs, t.Price, t.Size, t.Aggressor)
		}
	}
	flushPartition()
	return partitions, nil
}

func (c *Converter) writeBook(ctx context.Context, instrumentID string, snaps []*domain.CanonicalBookSnapshot) ([]*domain.CatalogPartition, error) {
	var partitions []*domain.CatalogPartition
	var current *domain.CatalogPartition
	var digest hash.Hash

	flushPartition := func() {
		if current != nil {
			current.Checksum = hex.EncodeToString(digest.Sum(nil))
			partitions = append(partitions, current)
		}
	}

	for start := 0; start < len(snaps); start += c.batchSize {
		end := start + c.batchSize
		if end > len(snaps) {
			end = len(snaps)
		}
		if err := c.books.InsertBatch(ctx, snaps[start:end]); err != nil {
			return nil, fmt.Errorf("write book batch: %w", err)
		}
		c.countBatch()

		for _, s := range snaps[start:end] {
			bucket := bucketStart(s.TsEventNs, c.bucketNs)
			if current == nil || current.BucketStart != bucket {
				flushPartition()
				current = c.newPartition(instrumentID, domain.RecordTypeBook, bucket)
				digest = sha256.New()
			}
			current.RecordCount++
			fmt.Fprintf(digest, "%d|%d|%d|%d\n", s.TsEventNs, s.TsInitNs, len(s.Bids), len(s.Asks))
			for _, l := range s.Bids {
				fmt.Fprintf(digest, "b%s|%s\n", l.Price, l.Size)
			}
			for _, l := range s.Asks {
				fmt.Fprintf(digest, "a%s|%s\n", l.Price, l.Size)
			}
		}
	}
	flushPartition()
	return partitions, nil
}

func (c *Converter) newPartition(instrumentID string, rt domain.RecordType, bucket int64) *domain.CatalogPartition {
	return &domain.CatalogPartition{
		PartitionID:  idhash.PartitionID(instrumentID, string(rt), bucket),
		InstrumentID: instrumentID,
		RecordType:   rt,
		BucketStart:  bucket,
		BucketEnd:    bucket + c.bucketNs,
		CreatedAtNs:  c.now(),
	}
}

// recordPartitions writes manifest entries. A duplicate here means another
// writer created the same partition between our cache check and now; the
// per-key lock makes that impossible in-process, so it has to be a
// cross-process writer. The manifest is consulted once more: if the other
// writer's partitions now cover the key, the conflict resolves to a skip
// (returned as true); a manifest that still shows no coverage is
// inconsistent and surfaces as a cache write conflict.
func (c *Converter) recordPartitions(ctx context.Context, instrumentID string, rt domain.RecordType, source string, partitions []*domain.CatalogPartition) (bool, error) {
	for _, p := range partitions {
		err := c.manifest.Record(ctx, p)
		if errors.Is(err, storage.ErrDuplicateKey) {
			covered, coverErr := c.manifest.HasAny(ctx, instrumentID, rt)
			if coverErr == nil && covered {
				return true, nil
			}
			return false, c.fail(&ConvertError{
				Kind:         ErrCacheWriteConflict,
				InstrumentID: instrumentID,
				RecordType:   rt,
				Source:       source,
				Detail:       fmt.Sprintf("partition %s already recorded by a concurrent writer", p.PartitionID),
			})
		}
		if err != nil {
			return false, fmt.Errorf("record partition: %w", err)
		}
	}
	return false, nil
}

func (c *Converter) registerInstrument(ctx context.Context, inst *domain.Instrument) error {
	reg := *inst
	if reg.RegisteredAtNs == 0 {
		reg.RegisteredAtNs = c.now()
	}
	err := c.instruments.Register(ctx, &reg)
	if errors.Is(err, storage.ErrDuplicateKey) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("register instrument: %w", err)
	}
	return nil
}

func (c *Converter) fail(e *ConvertError) error {
	if c.metrics != nil {
		c.metrics.ConversionErrors.WithLabelValues(e.Kind.Error()).Inc()
	}
	return e
}

func (c *Converter) countSkip() {
	if c.metrics != nil {
		c.metrics.ConversionsSkipped.Inc()
	}
}

func (c *Converter) countSortFallback() {
	if c.metrics != nil {
		c.metrics.SortFallbacks.Inc()
	}
}

func (c *Converter) countBatch() {
	if c.metrics != nil {
		c.metrics.BatchesWritten.Inc()
	}
}

func (c *Converter) countRecords(rt domain.RecordType, n int64) {
	if c.metrics != nil {
		c.metrics.RecordsConverted.WithLabelValues(string(rt)).Add(float64(n))
	}
}

func bucketStart(ts, width int64) int64 {
	return ts - (ts % width)
}

func lockKey(instrumentID string, rt domain.RecordType) string {
	return instrumentID + "|" + string(rt)
}
