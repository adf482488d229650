// Package backtest orchestrates one run: ensure cached canonical data,
// work the parent order through the scheduler against the virtual clock,
// replay fills through the sim engine, assemble the timeline, and
// reconcile the financial summary.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"backtest-lab/internal/catalog"
	"backtest-lab/internal/domain"
	"backtest-lab/internal/engine/sim"
	"backtest-lab/internal/execution"
	"backtest-lab/internal/idhash"
	"backtest-lab/internal/observability"
	"backtest-lab/internal/rawsource"
	"backtest-lab/internal/reconcile"
	"backtest-lab/internal/storage"
	"backtest-lab/internal/timeline"
)

// SnapshotMode selects which record types a run requires.
type SnapshotMode string

// Snapshot mode constants.
const (
	SnapshotTrades SnapshotMode = "trades"
	SnapshotBook   SnapshotMode = "book"
	SnapshotBoth   SnapshotMode = "both"
)

// ErrNoMarketData is returned when the requested window holds no ticks.
var ErrNoMarketData = errors.New("no market data in requested window")

// RunConfig describes one backtest run.
type RunConfig struct {
	Instrument   *domain.Instrument
	Window       domain.TimeRange
	Mode         SnapshotMode
	Parent       *domain.ParentOrder
	RawTrades    rawsource.Source // optional; converted when the catalog lacks trades
	RawBook      rawsource.Source // optional; converted when the catalog lacks book data
	Commission   decimal.Decimal  // fraction of notional per fill
	Currency     string
	RealizeAtEnd bool
}

// Runner executes backtest runs.
type Runner struct {
	converter *catalog.Converter
	ticks     storage.TickStore
	books     storage.BookStore
	metrics   *observability.Metrics
}

// NewRunner creates a backtest runner.
func NewRunner(converter *catalog.Converter, ticks storage.TickStore, books storage.BookStore, metrics *observability.Metrics) *Runner {
	return &Runner{converter: converter, ticks: ticks, books: books, metrics: metrics}
}

// Run executes one backtest and returns the summary plus the assembled
// timeline for pagination by the caller.
func (r *Runner) Run(ctx context.Context, cfg RunConfig) (*domain.RunSummary, *timeline.Timeline, error) {
	started := time.Now()

	if cfg.Parent == nil {
		return nil, nil, fmt.Errorf("run config missing parent order")
	}
	if cfg.Parent.OrderID == "" {
		cfg.Parent.OrderID = uuid.NewString()
	}
	if cfg.Mode == "" {
		cfg.Mode = SnapshotTrades
	}

	if err := r.ensureData(ctx, cfg); err != nil {
		return nil, nil, err
	}

	ticks, err := r.ticks.GetByTimeRange(ctx, cfg.Instrument.InstrumentID, cfg.Window.StartNs, cfg.Window.EndNs)
	if err != nil {
		return nil, nil, fmt.Errorf("load ticks: %w", err)
	}
	if len(ticks) == 0 {
		return nil, nil, fmt.Errorf("%w: %s [%d, %d)", ErrNoMarketData, cfg.Instrument.InstrumentID, cfg.Window.StartNs, cfg.Window.EndNs)
	}

	clock := execution.NewVirtualClock(cfg.Window.StartNs)
	eng := sim.New(cfg.Commission, cfg.Currency, clock.NowNs)
	sched := execution.NewScheduler(clock, eng, r.metrics)
	parentID := cfg.Parent.OrderID
	var fillErr error
	eng.SetFillListener(func(ctx context.Context, fill *domain.FillEvent) {
		// A terminal parent can still receive the fill that completed it.
		err := sched.OnFill(ctx, parentID, fill.Quantity)
		if err != nil && !errors.Is(err, execution.ErrParentTerminal) && fillErr == nil {
			fillErr = err
		}
	})

	// Prime the last price so slices due at window start can fill.
	eng.MarkPrice(ticks[0].InstrumentID, ticks[0].Price)

	eng.RegisterParent(cfg.Parent)
	if err := sched.Submit(ctx, cfg.Parent, cfg.Instrument.SizePrecision); err != nil {
		return nil, nil, fmt.Errorf("submit parent order: %w", err)
	}

	// Replay: advance the clock to each tick, firing due slices, then
	// mark the print. Trailing alarms flush at window end.
	for _, t := range ticks {
		clock.AdvanceTo(t.TsEventNs)
		eng.MarkPrice(t.InstrumentID, t.Price)
	}
	clock.AdvanceTo(cfg.Window.EndNs)
	if fillErr != nil {
		return nil, nil, fmt.Errorf("fill notification: %w", fillErr)
	}

	tl := timeline.Assemble(eng.OrderEvents(), eng.FillEvents(), eng.RejectionEvents())

	runID := idhash.RunID(cfg.Instrument.InstrumentID, cfg.Window.StartNs, cfg.Window.EndNs, cfg.Parent.OrderID)
	summary, err := reconcile.New(eng, eng, r.metrics).Summarize(ctx, reconcile.Config{
		RunID:        runID,
		InstrumentID: cfg.Instrument.InstrumentID,
		StartNs:      cfg.Window.StartNs,
		EndNs:        cfg.Window.EndNs,
		RealizeAtEnd: cfg.RealizeAtEnd,
	}, tl)
	if err != nil {
		return nil, nil, err
	}

	if r.metrics != nil {
		r.metrics.RunDuration.Observe(time.Since(started).Seconds())
	}
	return summary, tl, nil
}

// ensureData converts raw sources for any record type the mode requires
// that the catalog does not already cover. Conversion is a no-op when the
// catalog already holds the type.
func (r *Runner) ensureData(ctx context.Context, cfg RunConfig) error {
	if cfg.Mode == SnapshotTrades || cfg.Mode == SnapshotBoth {
		if cfg.RawTrades != nil {
			if _, err := r.converter.ConvertTicks(ctx, cfg.RawTrades, cfg.Instrument); err != nil {
				return err
			}
		}
	}
	if cfg.Mode == SnapshotBook || cfg.Mode == SnapshotBoth {
		if cfg.RawBook != nil {
			if _, err := r.converter.ConvertBook(ctx, cfg.RawBook, cfg.Instrument); err != nil {
				return err
			}
		}
	}
	return nil
}
