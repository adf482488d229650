package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"backtest-lab/internal/backtest"
	"backtest-lab/internal/catalog"
	"backtest-lab/internal/domain"
	"backtest-lab/internal/observability"
	"backtest-lab/internal/rawsource"
	"backtest-lab/internal/reporting"
	"backtest-lab/internal/storage"
	chstore "backtest-lab/internal/storage/clickhouse"
	"backtest-lab/internal/storage/memory"
	"backtest-lab/internal/storage/migrations"
	pgstore "backtest-lab/internal/storage/postgres"
)

func main() {
	// Parse flags
	outputDir := flag.String("output-dir", "docs", "Output directory for generated files")
	instrumentID := flag.String("instrument-id", "", "Canonical instrument id (required)")
	pricePrecision := flag.Int("price-precision", 2, "Decimal places for prices")
	sizePrecision := flag.Int("size-precision", 8, "Decimal places for quantities")
	fromTime := flag.String("from-time", "", "Window start (RFC3339, required)")
	toTime := flag.String("to-time", "", "Window end, exclusive (RFC3339, required)")

	side := flag.String("side", "BUY", "Order side: BUY or SELL")
	quantity := flag.String("quantity", "", "Total parent quantity (required)")
	algo := flag.String("algo", "TWAP", "Execution algorithm: NONE, TWAP, VWAP, ICEBERG")
	horizonSecs := flag.Int64("horizon-secs", 60, "Execution horizon in seconds")
	intervalSecs := flag.Int64("interval-secs", 5, "Slice interval in seconds")
	visibleFraction := flag.String("visible-fraction", "0.1", "Visible fraction for ICEBERG, in (0, 1]")

	commission := flag.String("commission", "0.001", "Commission as a fraction of notional per fill")
	currency := flag.String("currency", "USDT", "Commission and PnL currency")
	realizeAtEnd := flag.Bool("realize-at-end", false, "Fold unrealized PnL into realized at window end")

	tradesCSV := flag.String("trades-csv", "", "Raw trades CSV to convert when the catalog lacks the instrument")

	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage")

	flag.Parse()

	logger := log.New(os.Stderr, "[report] ", log.LstdFlags)

	if *instrumentID == "" {
		logger.Fatal("--instrument-id is required")
	}
	if *quantity == "" {
		logger.Fatal("--quantity is required")
	}
	if *fromTime == "" || *toTime == "" {
		logger.Fatal("--from-time and --to-time are required")
	}

	from, err := time.Parse(time.RFC3339, *fromTime)
	if err != nil {
		logger.Fatalf("parse from-time: %v", err)
	}
	to, err := time.Parse(time.RFC3339, *toTime)
	if err != nil {
		logger.Fatalf("parse to-time: %v", err)
	}
	qty, err := decimal.NewFromString(*quantity)
	if err != nil || !qty.IsPositive() {
		logger.Fatalf("quantity must be a positive decimal, got %q", *quantity)
	}
	commissionRate, err := decimal.NewFromString(*commission)
	if err != nil || commissionRate.IsNegative() {
		logger.Fatalf("Invalid commission: %s", *commission)
	}
	vf, err := decimal.NewFromString(*visibleFraction)
	if err != nil {
		logger.Fatalf("parse visible-fraction: %v", err)
	}

	ctx := context.Background()

	// Create stores
	var instrumentStore storage.InstrumentStore = memory.NewInstrumentStore()
	var tickStore storage.TickStore = memory.NewTickStore()
	var bookStore storage.BookStore = memory.NewBookStore()
	var manifestStore storage.PartitionManifestStore = memory.NewManifestStore()

	if !*useMemory {
		if *postgresDSN == "" || *clickhouseDSN == "" {
			fmt.Fprintln(os.Stderr, "Error: --postgres-dsn and --clickhouse-dsn are required when not using --use-memory")
			os.Exit(1)
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

	metrics := observability.NewMetrics("report")
	converter := catalog.NewConverter(instrumentStore, tickStore, bookStore, manifestStore,
		catalog.WithMetrics(metrics))
	runner := backtest.NewRunner(converter, tickStore, bookStore, metrics)

	parent := &domain.ParentOrder{
		InstrumentID:  *instrumentID,
		Side:          domain.Side(strings.ToUpper(*side)),
		TotalQuantity: qty,
		Algo:          domain.AlgoKind(strings.ToUpper(*algo)),
		Params: domain.AlgoParams{
			HorizonSecs:     *horizonSecs,
			IntervalSecs:    *intervalSecs,
			VisibleFraction: vf,
		},
	}

	cfg := backtest.RunConfig{
		Instrument: &domain.Instrument{
			InstrumentID:   *instrumentID,
			Symbol:         strings.SplitN(*instrumentID, ".", 2)[0],
			PricePrecision: int32(*pricePrecision),
			SizePrecision:  int32(*sizePrecision),
			RegisteredAtNs: time.Now().UnixNano(),
		},
		Window:       domain.TimeRange{StartNs: from.UnixNano(), EndNs: to.UnixNano()},
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

	summary, tl, err := runner.Run(ctx, cfg)
	if err != nil {
		logger.Fatalf("backtest failed: %v", err)
	}

	report := reporting.NewGenerator().Generate(summary, tl)

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		logger.Fatalf("create output dir: %v", err)
	}

	mdPath := filepath.Join(*outputDir, "report.md")
	if err := os.WriteFile(mdPath, []byte(reporting.RenderMarkdown(report)), 0o644); err != nil {
		logger.Fatalf("write markdown report: %v", err)
	}

	csvPath := filepath.Join(*outputDir, "timeline.csv")
	if err := os.WriteFile(csvPath, []byte(reporting.RenderCSV(report.Timeline)), 0o644); err != nil {
		logger.Fatalf("write timeline csv: %v", err)
	}

	fmt.Println("Backtest report generated successfully:")
	fmt.Printf("  %s\n", mdPath)
	fmt.Printf("  %s\n", csvPath)
}
