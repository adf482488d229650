package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

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
	instrumentID := flag.String("instrument-id", "", "Canonical instrument id, e.g. BTCUSDT.BINANCE (required)")
	symbol := flag.String("symbol", "", "Venue-local symbol (defaults to instrument id prefix)")
	venue := flag.String("venue", "", "Venue name (defaults to instrument id suffix)")
	pricePrecision := flag.Int("price-precision", 2, "Decimal places for prices")
	sizePrecision := flag.Int("size-precision", 8, "Decimal places for quantities")

	tradesCSV := flag.String("trades-csv", "", "CSV file with raw trades")
	bookCSV := flag.String("book-csv", "", "CSV file with raw book snapshots")
	wsURL := flag.String("ws-url", "", "WebSocket endpoint streaming raw trades")
	wsMaxRows := flag.Int("ws-max-rows", 100000, "Maximum rows to capture from the WebSocket feed")

	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of databases")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP address (empty to disable)")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[ingest] ", log.LstdFlags|log.Lshortfile)

	if *instrumentID == "" {
		logger.Fatal("--instrument-id is required")
	}
	if *tradesCSV == "" && *bookCSV == "" && *wsURL == "" {
		logger.Fatal("No source specified. Use --trades-csv, --book-csv, or --ws-url")
	}

	metrics := observability.NewMetrics("ingest")

	// Start metrics server if enabled
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
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

	inst := buildInstrument(*instrumentID, *symbol, *venue, int32(*pricePrecision), int32(*sizePrecision))

	if err := run(ctx, logger, inst, *tradesCSV, *bookCSV, *wsURL, *wsMaxRows,
		*postgresDSN, *clickhouseDSN, *useMemory, metrics); err != nil && err != context.Canceled {
		logger.Fatalf("Error: %v", err)
	}

	logger.Println("Ingestion complete")
}

// buildInstrument fills symbol and venue defaults from a dotted instrument id.
func buildInstrument(instrumentID, symbol, venue string, pricePrec, sizePrec int32) *domain.Instrument {
	if symbol == "" || venue == "" {
		parts := strings.SplitN(instrumentID, ".", 2)
		if symbol == "" {
			symbol = parts[0]
		}
		if venue == "" && len(parts) == 2 {
			venue = parts[1]
		}
	}
	return &domain.Instrument{
		InstrumentID:   instrumentID,
		Symbol:         symbol,
		Venue:          venue,
		PricePrecision: pricePrec,
		SizePrecision:  sizePrec,
		RegisteredAtNs: time.Now().UnixNano(),
	}
}

func run(ctx context.Context, logger *log.Logger, inst *domain.Instrument,
	tradesCSV, bookCSV, wsURL string, wsMaxRows int,
	postgresDSN, clickhouseDSN string, useMemory bool, metrics *observability.Metrics) error {

	// Create stores (use interfaces)
	var instrumentStore storage.InstrumentStore = memory.NewInstrumentStore()
	var tickStore storage.TickStore = memory.NewTickStore()
	var bookStore storage.BookStore = memory.NewBookStore()
	var manifestStore storage.PartitionManifestStore = memory.NewManifestStore()

	if !useMemory {
		if postgresDSN == "" {
			return fmt.Errorf("--postgres-dsn is required (use --use-memory for in-memory storage)")
		}
		if clickhouseDSN == "" {
			return fmt.Errorf("--clickhouse-dsn is required (use --use-memory for in-memory storage)")
		}

		pool, err := pgstore.NewPool(ctx, postgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fmt.Errorf("run postgres migrations: %w", err)
		}

		conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			return fmt.Errorf("run clickhouse migrations: %w", err)
		}
		defer conn.Close()

		instrumentStore = pgstore.NewInstrumentStore(pool)
		manifestStore = pgstore.NewManifestStore(pool)
		tickStore = chstore.NewTickStore(conn)
		bookStore = chstore.NewBookStore(conn)
	}

	converter := catalog.NewConverter(instrumentStore, tickStore, bookStore, manifestStore,
		catalog.WithMetrics(metrics))

	if tradesCSV != "" {
		src, err := rawsource.OpenCSVFile(tradesCSV)
		if err != nil {
			return fmt.Errorf("open trades csv: %w", err)
		}
		if err := convertTicks(ctx, logger, converter, src, inst); err != nil {
			return err
		}
	}

	if bookCSV != "" {
		src, err := rawsource.OpenCSVFile(bookCSV)
		if err != nil {
			return fmt.Errorf("open book csv: %w", err)
		}
		res, err := converter.ConvertBook(ctx, src, inst)
		if err != nil {
			return fmt.Errorf("convert book: %w", err)
		}
		logConversion(logger, "book", res)
	}

	if wsURL != "" {
		src, err := rawsource.DialWS(ctx, wsURL, wsMaxRows)
		if err != nil {
			return fmt.Errorf("dial websocket: %w", err)
		}
		if err := convertTicks(ctx, logger, converter, src, inst); err != nil {
			return err
		}
	}

	return nil
}

func convertTicks(ctx context.Context, logger *log.Logger, converter *catalog.Converter,
	src rawsource.Source, inst *domain.Instrument) error {
	res, err := converter.ConvertTicks(ctx, src, inst)
	if err != nil {
		return fmt.Errorf("convert trades from %s: %w", src.Name(), err)
	}
	logConversion(logger, "trades", res)
	return nil
}

func logConversion(logger *log.Logger, kind string, res *catalog.Result) {
	if res.Skipped {
		logger.Printf("Skipped %s conversion: catalog already covered", kind)
		return
	}
	logger.Printf("Converted %s: schema=%s records=%d partitions=%d sorted_input=%v",
		kind, res.SchemaName, res.RecordCount, len(res.Partitions), res.SortedInput)
}
