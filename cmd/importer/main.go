package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"recipe_importer/internal/config"
	"recipe_importer/internal/domain"
	"recipe_importer/internal/progress"
	"recipe_importer/internal/publisher"
	"recipe_importer/internal/service"
	"recipe_importer/internal/storage/postgres"
)

const (
	exitOK          = 0
	exitFatal       = 1
	exitUsage       = 2
	exitInterrupted = 130
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `usage:
  importer import [-config path] [-source tasty|static] [-mode pilot|full] [-max N] [-tag T] [-retry-failed] [-reset]
  importer backfill-slugs [-config path] [-max N] [-retry-failed]`)
}

func run(args []string, out io.Writer) int {
	if len(args) == 0 {
		usage(os.Stderr)
		return exitUsage
	}

	switch args[0] {
	case "import":
		return runImport(args[1:], out)
	case "backfill-slugs":
		return runBackfill(args[1:], out)
	case "-h", "-help", "--help", "help":
		usage(out)
		return exitOK
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
		usage(os.Stderr)
		return exitUsage
	}
}

type importFlags struct {
	configPath  string
	source      string
	mode        string
	maxItems    int
	tag         string
	retryFailed bool
	reset       bool
	set         map[string]bool
}

func parseImportFlags(args []string) (*importFlags, error) {
	f := &importFlags{set: make(map[string]bool)}

	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", "config.yaml", "path to config file")
	fs.StringVar(&f.source, "source", "", "source to import from (tasty, static)")
	fs.StringVar(&f.mode, "mode", "", "run mode: pilot (small fixed count) or full")
	fs.IntVar(&f.maxItems, "max", 0, "maximum number of items to discover, overrides the mode")
	fs.StringVar(&f.tag, "tag", "", "source-side tag filter")
	fs.BoolVar(&f.retryFailed, "retry-failed", false, "attempt previously failed items again")
	fs.BoolVar(&f.reset, "reset", false, "start over when the previous run completed")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })

	return f, nil
}

// apply lets explicitly passed flags win over the config file.
func (f *importFlags) apply(cfg *config.ImportConfig) {
	if f.set["source"] {
		cfg.Source = f.source
	}
	if f.set["mode"] {
		cfg.Mode = f.mode
	}
	if f.set["max"] {
		cfg.MaxItems = f.maxItems
	}
	if f.set["tag"] {
		cfg.Tag = f.tag
	}
	if f.set["retry-failed"] {
		cfg.RetryFailed = f.retryFailed
	}
	if f.set["reset"] {
		cfg.ResetOnComplete = f.reset
	}
}

func runImport(args []string, out io.Writer) int {
	flags, err := parseImportFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	logger := setupLogger("info")

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return exitFatal
	}
	flags.apply(&cfg.Import)

	logger = setupLogger(cfg.LogLevel)

	if err := cfg.ValidateImport(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return exitFatal
	}

	ctx, stop := signalContext(logger)
	defer stop()

	db, err := connectDatabase(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return exitFatal
	}
	defer db.Close()

	source, err := buildSource(cfg, logger)
	if err != nil {
		logger.Error("failed to build source", "error", err)
		return exitFatal
	}

	store, err := openCheckpointStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open checkpoint store", "error", err)
		return exitFatal
	}

	tracker := progress.NewTracker(store, logger, progress.Options{
		ResetOnComplete: cfg.Import.ResetOnComplete,
		RetryFailed:     cfg.Import.RetryFailed,
	})
	defer tracker.Cleanup()

	var pub service.Publisher
	if cfg.RabbitMQ.Enabled {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			return exitFatal
		}
		defer rabbitMQ.Close()
		pub = rabbitMQ
	}

	importService := service.NewImportService(
		source,
		postgres.NewRecipeStore(db),
		postgres.NewTagStore(db),
		postgres.NewTransactionManager(db),
		pub,
		tracker,
		logger,
		cfg.Import,
	)

	stats, err := importService.Run(ctx)
	if err != nil {
		logger.Error("import aborted", "error", err)
		return exitFatal
	}

	printImportSummary(out, stats, tracker.Checkpoint())

	if stats.Interrupted {
		return exitInterrupted
	}
	return exitOK
}

type backfillFlags struct {
	configPath  string
	maxItems    int
	retryFailed bool
	set         map[string]bool
}

func parseBackfillFlags(args []string) (*backfillFlags, error) {
	f := &backfillFlags{set: make(map[string]bool)}

	fs := flag.NewFlagSet("backfill-slugs", flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", "config.yaml", "path to config file")
	fs.IntVar(&f.maxItems, "max", 0, "maximum number of recipes to update (0 means all)")
	fs.BoolVar(&f.retryFailed, "retry-failed", false, "attempt recipes that failed in earlier runs again")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })

	return f, nil
}

func (f *backfillFlags) apply(cfg *config.BackfillConfig) {
	if f.set["max"] {
		cfg.MaxItems = f.maxItems
	}
	if f.set["retry-failed"] {
		cfg.RetryFailed = f.retryFailed
	}
}

func runBackfill(args []string, out io.Writer) int {
	flags, err := parseBackfillFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	logger := setupLogger("info")

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return exitFatal
	}
	flags.apply(&cfg.Backfill)

	logger = setupLogger(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return exitFatal
	}

	ctx, stop := signalContext(logger)
	defer stop()

	db, err := connectDatabase(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return exitFatal
	}
	defer db.Close()

	store, err := openCheckpointStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open checkpoint store", "error", err)
		return exitFatal
	}

	tracker := progress.NewTracker(store, logger, progress.Options{RetryFailed: cfg.Backfill.RetryFailed})
	defer tracker.Cleanup()

	backfill := service.NewSlugBackfillService(postgres.NewRecipeStore(db), tracker, logger, cfg.Backfill)

	stats, err := backfill.Run(ctx)
	if err != nil {
		logger.Error("slug backfill aborted", "error", err)
		return exitFatal
	}

	fmt.Fprintf(out, "slug backfill: candidates=%d updated=%d renamed=%d failed=%d deferred=%d duration=%s\n",
		stats.Candidates, stats.Updated, stats.Renamed, stats.Failed, stats.Deferred, stats.Duration.Round(time.Millisecond))

	if ctx.Err() != nil {
		return exitInterrupted
	}
	return exitOK
}

// signalContext is canceled on SIGINT or SIGTERM. The loop then stops
// between items and the deferred cleanup still runs.
func signalContext(logger *slog.Logger) (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

func connectDatabase(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
	if err != nil {
		return nil, err
	}

	if cfg.Migrate {
		if err := postgres.Migrate(db); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("database migrations applied")
	}

	logger.Info("connected to database", "host", cfg.Host, "dbname", cfg.DBName)
	return db, nil
}

func printImportSummary(w io.Writer, stats *domain.ImportStats, cp *domain.Checkpoint) {
	fmt.Fprintf(w, "import summary (%s)\n", stats.SourceName)
	fmt.Fprintf(w, "  discovered:        %d\n", stats.Discovered)
	fmt.Fprintf(w, "  imported:          %d\n", stats.Imported)
	fmt.Fprintf(w, "  skipped:           %d\n", stats.Skipped)
	fmt.Fprintf(w, "  failed:            %d\n", stats.Failed)
	fmt.Fprintf(w, "  already processed: %d\n", stats.AlreadyProcessed)
	fmt.Fprintf(w, "  success rate:      %.1f%%\n", stats.SuccessRate())
	fmt.Fprintf(w, "  checkpoint:        %s (imported/skipped/failed/total: %d/%d/%d/%d)\n",
		cp.RunID, cp.ImportedCount, cp.SkippedCount, cp.FailedCount, cp.Total)
	if stats.Published > 0 || stats.PublishErrors > 0 {
		fmt.Fprintf(w, "  published:         %d (%d errors)\n", stats.Published, stats.PublishErrors)
	}
	if stats.PartialDiscovery {
		fmt.Fprintln(w, "  warning: discovery stopped early; run again to pick up the rest")
	}
	if stats.Degraded {
		fmt.Fprintln(w, "  warning: checkpoint could not be saved; progress of this run was kept in memory only")
	}
	if stats.Interrupted {
		fmt.Fprintln(w, "  interrupted: run again to resume")
	}
	fmt.Fprintf(w, "  duration:          %s\n", stats.Duration.Round(time.Millisecond))
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stderr, opts)
	return slog.New(handler)
}
