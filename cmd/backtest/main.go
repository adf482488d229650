package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"backtest-lab/internal/backtest"
	"backtest-lab/internal/catalog"
	"backtest-lab/internal/domain"
	"backtest-lab/internal/observability"
	"backtest-lab/internal/rawsource"
	"backtest-lab/internal/storage"
	chstore "backtest-lab/internal/storage/clickhouse"
	"backtest-lab/internal/storage/memory"
	"backtest-lab/internal/storage/migrations"
	pgstore "backtest-lab/internal/storage/postgres"
)

func main() {
	// Parse flags
	instrumentID := flag.String("instrument-id", "", "Canonical instrument id (required)")
	pricePrecision := flag.Int("price-precision", 2, "Decimal places for prices")
	sizePrecision := flag.Int("size-precision", 8, "Decimal places for quantities")
	fromTime := flag.String("from-time", "", "Window start (RFC3339, required)")
	toTime := flag.String("to-time", "", "Window end, exclusive (RFC3339, required)")

	// Parent order
	side := flag.String("side", "BUY", "Order side: BUY or SELL")
	quantity := flag.String("quantity", "", "Total parent quantity (required)")
	algo := flag.String("algo", "TWAP", "Execution algorithm: NONE, TWAP, VWAP, ICEBERG")
	horizonSecs := flag.Int64("horizon-secs", 60, "Execution horizon in seconds")
	intervalSecs := flag.Int64("interval-secs", 5, "Slice interval in seconds")
	profile := flag.String("volume-profile", "", "Comma-separated fractional weights for VWAP")
	visibleFraction := flag.String("visible-fraction", "0.1", "Visible fraction for ICEBERG, in (0, 1]")

	// Costs
	commission := flag.String("commission", "0.001", "Commission as a fraction of notional per fill")
	currency := flag.String("currency", "USDT", "Commission and PnL currency")
	realizeAtEnd := flag.Bool("realize-at-end", false, "Fold unrealized PnL into realized at window end")

	// Data
	tradesCSV := flag.String("trades-csv", "", "Raw trades CSV to convert when the catalog lacks the instrument")

	// Storage
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage")

	// Output
	outputJSON := flag.Bool("json", false, "Output as JSON")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stderr, "[backtest] ", log.LstdFlags)

	// Validate required flags
	if *instrumentID == "" {
		logger.Fatal("--instrument-id is required")
	}
	if *quantity == "" {
		logger.Fatal("--quantity is required")
	}
	window, err := parseWindow(*fromTime, *toTime)
	if err != nil {
		logger.Fatalf("Invalid window: %v", err)
	}
	parent, err := buildParent(*instrumentID, *side, *quantity, *algo,
		*horizonSecs, *intervalSecs, *profile, *visibleFraction)
	if err != nil {
		logger.Fatalf("Invalid parent order: %v", err)
	}
	commissionRate, err := decimal.NewFromString(*commission)
	if err != nil || commissionRate.IsNegative() {
		logger.Fatalf("Invalid commission: %s", *commission)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	// Create stores
	var instrumentStore storage.InstrumentStore = memory.NewInstrumentStore()
	var tickStore storage.TickStore = memory.NewTickStore()
	var bookStore storage.BookStore = memory.NewBookStore()
	var manifestStore storage.PartitionManifestStore = memory.NewManifestStore()

	if !*useMemory {
		if *postgresDSN == "" {
			logger.Fatal("--postgres-dsn is required when not using --use-memory (instruments and partition manifest)")
		}
		if *clickhouseDSN == "" {
			logger.Fatal("--clickhouse-dsn is required when not using --use-memory (ticks and book snapshots)")
		}

		pool, err := pgstore.NewPool(ctx, *postgresDSN)
		if err != nil {
			logger.Fatalf("connect to postgres: %v", err)
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			logger.Fatalf("run postgres migrations: %v", err)
		}

		conn, err := migrations.RunClickhouseMigrations(ctx, *clickhouseDSN)
		if err != nil {
			logger.Fatalf("run clickhouse migrations: %v", err)
		}
		defer conn.Close()

		instrumentStore = pgstore.NewInstrumentStore(pool)
		manifestStore = pgstore.NewManifestStore(pool)
		tickStore = chstore.NewTickStore(conn)
		bookStore = chstore.NewBookStore(conn)
	}

	metrics := observability.NewMetrics("backtest")
	converter := catalog.NewConverter(instrumentStore, tickStore, bookStore, manifestStore,
		catalog.WithMetrics(metrics))
	runner := backtest.NewRunner(converter, tickStore, bookStore, metrics)

	cfg := backtest.RunConfig{
		Instrument: &domain.Instrument{
			InstrumentID:   *instrumentID,
			Symbol:         strings.SplitN(*instrumentID, ".", 2)[0],
			PricePrecision: int32(*pricePrecision),
			SizePrecision:  int32(*sizePrecision),
			RegisteredAtNs: time.Now().UnixNano(),
		},
		Window:       window,
		Mode:         backtest.SnapshotTrades,
		Parent:       parent,
		Commission:   commissionRate,
		Currency:     *currency,
		RealizeAtEnd: *realizeAtEnd,
	}
	if *tradesCSV != "" {
		src, err := rawsource.OpenCSVFile(*tradesCSV)
		if err != nil {
			logger.Fatalf("open trades csv: %v", err)
		}
		cfg.RawTrades = src
	}

	logger.Printf("Running backtest: instrument=%s algo=%s quantity=%s window=[%d, %d)",
		*instrumentID, parent.Algo, parent.TotalQuantity, window.StartNs, window.EndNs)

	summary, _, err := runner.Run(ctx, cfg)
	if err != nil {
		logger.Fatalf("backtest failed: %v", err)
	}

	// Output result
	if *outputJSON {
		output, _ := json.MarshalIndent(summary, "", "  ")
		fmt.Println(string(output))
	} else {
		printSummary(summary)
	}
}

// parseWindow converts RFC3339 bounds into a half-open nanosecond range.
func parseWindow(fromTime, toTime string) (domain.TimeRange, error) {
	if fromTime == "" || toTime == "" {
		return domain.TimeRange{}, fmt.Errorf("--from-time and --to-time are required")
	}
	from, err := time.Parse(time.RFC3339, fromTime)
	if err != nil {
		return domain.TimeRange{}, fmt.Errorf("parse from-time: %w", err)
	}
	to, err := time.Parse(time.RFC3339, toTime)
	if err != nil {
		return domain.TimeRange{}, fmt.Errorf("parse to-time: %w", err)
	}
	if !to.After(from) {
		return domain.TimeRange{}, fmt.Errorf("to-time must be after from-time")
	}
	return domain.TimeRange{StartNs: from.UnixNano(), EndNs: to.UnixNano()}, nil
}

// buildParent creates a ParentOrder from CLI flags.
func buildParent(instrumentID, side, quantity, algo string,
	horizonSecs, intervalSecs int64, profile, visibleFraction string) (*domain.ParentOrder, error) {

	qty, err := decimal.NewFromString(quantity)
	if err != nil || !qty.IsPositive() {
		return nil, fmt.Errorf("quantity must be a positive decimal, got %q", quantity)
	}

	side = strings.ToUpper(side)
	if side != string(domain.SideBuy) && side != string(domain.SideSell) {
		return nil, fmt.Errorf("side must be BUY or SELL, got %q", side)
	}

	algo = strings.ToUpper(algo)
	parent := &domain.ParentOrder{
		InstrumentID:  instrumentID,
		Side:          domain.Side(side),
		TotalQuantity: qty,
		Params: domain.AlgoParams{
			HorizonSecs:  horizonSecs,
			IntervalSecs: intervalSecs,
		},
	}

	switch algo {
	case string(domain.AlgoNone):
		parent.Algo = domain.AlgoNone
	case string(domain.AlgoTwap):
		parent.Algo = domain.AlgoTwap
	case string(domain.AlgoVwap):
		parent.Algo = domain.AlgoVwap
		weights, err := parseProfile(profile)
		if err != nil {
			return nil, err
		}
		parent.Params.VolumeProfile = weights
	case string(domain.AlgoIceberg):
		parent.Algo = domain.AlgoIceberg
		vf, err := decimal.NewFromString(visibleFraction)
		if err != nil {
			return nil, fmt.Errorf("parse visible-fraction: %w", err)
		}
		parent.Params.VisibleFraction = vf
	default:
		return nil, fmt.Errorf("algo must be NONE, TWAP, VWAP, or ICEBERG, got %q", algo)
	}

	return parent, nil
}

// parseProfile parses comma-separated fractional weights.
func parseProfile(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	weights := make([]float64, 0, len(parts))
	for _, p := range parts {
		w, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("parse volume-profile entry %q: %w", p, err)
		}
		weights = append(weights, w)
	}
	return weights, nil
}

// printSummary prints a human-readable run summary.
func printSummary(s *domain.RunSummary) {
	fmt.Printf("Run:                 %s\n", s.RunID)
	fmt.Printf("Instrument:          %s\n", s.InstrumentID)
	fmt.Printf("Window:              [%d, %d)\n", s.StartNs, s.EndNs)
	fmt.Printf("Orders:              %d\n", s.OrderCount)
	fmt.Printf("Fills:               %d\n", s.FillCount)
	fmt.Printf("Rejections:          %d\n", s.RejectionCount)
	fmt.Printf("Realized PnL:        %s\n", s.RealizedPnL)
	fmt.Printf("Unrealized PnL:      %s\n", s.UnrealizedPnL)
	if s.PositionsRealizedAtEnd {
		fmt.Printf("Unrealized (before): %s\n", s.UnrealizedBeforeClosing)
	}
	fmt.Printf("Commission source:   %s\n", s.CommissionSource)
	for _, c := range s.Commissions {
		fmt.Printf("Commission:          %s %s\n", c.Amount, c.Currency)
	}
	fmt.Printf("Cycles:              %d (wins=%d losses=%d win_rate=%.4f)\n",
		s.Stats.CycleCount, s.Stats.WinCount, s.Stats.LossCount, s.Stats.WinRate)
	fmt.Printf("Max drawdown:        %s\n", s.Stats.MaxDrawdown)
}
