package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	internalnats "github.com/wehubfusion/Procrustes/internal/nats"
	"github.com/wehubfusion/Procrustes/internal/tracing"
	"github.com/wehubfusion/Procrustes/pkg/csvout"
	"github.com/wehubfusion/Procrustes/pkg/loader"
	"github.com/wehubfusion/Procrustes/pkg/pipeline"
	"github.com/wehubfusion/Procrustes/pkg/report"
	"github.com/wehubfusion/Procrustes/pkg/storage"
	"github.com/wehubfusion/Procrustes/pkg/transform"
)

var (
	// Global flags
	verbose   bool
	sentryDSN string

	// convert/run flags
	inputPath      string
	outputPath     string
	batchSize      int
	maxCellLen     int
	quoteMode      string
	maxDepth       int
	transformsPath string

	// load/run flags
	dsn   string
	table string

	// run flags
	archiveConn      string
	archiveContainer string
	natsURL          string
	natsSubject      string
	otlpEndpoint     string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "procrustes",
	Short: "Convert nested credit record JSON into fixed-width segment CSV",
	Long: `Procrustes flattens nested credit record documents into a fixed
59-column CSV layout, seven segment rows per record, and optionally
archives the output to blob storage and bulk loads it into Postgres.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Missing .env is fine; environment variables still apply.
		_ = godotenv.Load()

		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if sentryDSN == "" {
			sentryDSN = os.Getenv("SENTRY_DSN")
		}
		if sentryDSN != "" {
			if err := sentry.Init(sentry.ClientOptions{Dsn: sentryDSN}); err != nil {
				logger.Warn("Sentry init failed", zap.Error(err))
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if sentryDSN != "" {
			sentry.Flush(2 * time.Second)
		}
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert a JSON document to segment CSV",
	Long: `Reads {"Records": [...]} from the input file and writes seven CSV
rows per record, one per segment, to the output file.`,
	RunE: runConvert,
}

var loadCmd = &cobra.Command{
	Use:   "load <csv-file>",
	Short: "Bulk load a segment CSV into Postgres",
	Long:  `Streams an existing CSV file into the target table using COPY.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runLoad,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Convert, archive, load and report in one run",
	Long: `Executes the full pipeline: convert the input document, then
archive the CSV to blob storage, load it into Postgres and publish run
events to NATS. Each downstream stage runs only when configured.`,
	RunE: runPipeline,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&sentryDSN, "sentry-dsn", "", "Sentry DSN for error reporting (or SENTRY_DSN)")

	for _, cmd := range []*cobra.Command{convertCmd, runCmd} {
		cmd.Flags().StringVarP(&inputPath, "input", "i", "", "input JSON document (required)")
		cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output CSV file (required)")
		cmd.Flags().IntVar(&batchSize, "batch-size", csvout.DefaultBatchSize, "envelopes per write batch")
		cmd.Flags().IntVar(&maxCellLen, "max-cell", csvout.DefaultMaxCellLen, "maximum characters per cell")
		cmd.Flags().StringVar(&quoteMode, "quote", "all", "CSV quoting: all or minimal")
		cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "maximum nesting depth (0 for default)")
		cmd.Flags().StringVar(&transformsPath, "transforms", "", "JSON file with field transform rules")
		_ = cmd.MarkFlagRequired("input")
		_ = cmd.MarkFlagRequired("output")
	}

	for _, cmd := range []*cobra.Command{loadCmd, runCmd} {
		cmd.Flags().StringVar(&dsn, "dsn", "", "Postgres connection string (or DATABASE_URL)")
		cmd.Flags().StringVar(&table, "table", "", "target table, optionally schema-qualified")
	}

	runCmd.Flags().StringVar(&archiveConn, "archive-connection", "", "Azure storage connection string (or AZURE_STORAGE_CONNECTION_STRING)")
	runCmd.Flags().StringVar(&archiveContainer, "archive-container", "artifacts", "blob container for archived output")
	runCmd.Flags().StringVar(&natsURL, "nats-url", "", "NATS server URL for run events (or NATS_URL)")
	runCmd.Flags().StringVar(&natsSubject, "nats-subject", "procrustes.runs", "subject prefix for run events")
	runCmd.Flags().StringVar(&otlpEndpoint, "otlp-endpoint", "", "OTLP HTTP endpoint for traces (or OTLP_ENDPOINT)")

	rootCmd.AddCommand(convertCmd, loadCmd, runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func loadTransformRules() ([]transform.Rule, error) {
	if transformsPath == "" {
		return nil, nil
	}
	data, err := os.ReadFile(transformsPath)
	if err != nil {
		return nil, fmt.Errorf("read transforms: %w", err)
	}
	var rules []transform.Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parse transforms: %w", err)
	}
	return rules, nil
}

func parseQuoteMode() (csvout.QuoteMode, error) {
	switch quoteMode {
	case "all":
		return csvout.QuoteAll, nil
	case "minimal":
		return csvout.QuoteMinimal, nil
	default:
		return csvout.QuoteAll, fmt.Errorf("unknown quote mode %q", quoteMode)
	}
}

func captureFatal(err error) {
	if sentryDSN != "" {
		sentry.CaptureException(err)
	}
}

func runConvert(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := buildPipelineConfig()
	if err != nil {
		return err
	}

	p, err := pipeline.New(cfg)
	if err != nil {
		return err
	}

	result, err := p.Run(ctx)
	if err != nil {
		captureFatal(err)
		return err
	}

	fmt.Printf("Converted %d envelopes into %d rows (%d issues) -> %s\n",
		result.Summary.EnvelopesRead, result.Summary.RowsWritten, result.Summary.Issues, outputPath)
	return nil
}

func runLoad(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	l, err := buildLoader()
	if err != nil {
		return err
	}
	if l == nil {
		return fmt.Errorf("--dsn (or DATABASE_URL) and --table are required")
	}

	rows, err := l.Load(ctx, args[0])
	if err != nil {
		captureFatal(err)
		return err
	}

	fmt.Printf("Loaded %d rows into %s\n", rows, table)
	return nil
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	if otlpEndpoint == "" {
		otlpEndpoint = os.Getenv("OTLP_ENDPOINT")
	}
	if otlpEndpoint != "" {
		tcfg := tracing.DefaultConfig("procrustes")
		tcfg.OTLPEndpoint = otlpEndpoint
		shutdown, err := tracing.Setup(ctx, tcfg, logger)
		if err != nil {
			return err
		}
		defer func() { _ = tracing.Shutdown(shutdown, logger) }()
	}

	cfg, err := buildPipelineConfig()
	if err != nil {
		return err
	}

	if cfg.Loader, err = buildLoader(); err != nil {
		return err
	}

	if archiveConn == "" {
		archiveConn = os.Getenv("AZURE_STORAGE_CONNECTION_STRING")
	}
	if archiveConn != "" {
		cfg.Archive, err = storage.NewArchiveClient(archiveConn, archiveContainer, logger)
		if err != nil {
			return err
		}
	}

	if natsURL == "" {
		natsURL = os.Getenv("NATS_URL")
	}
	if natsURL != "" {
		conn, err := internalnats.Connect(ctx, internalnats.DefaultConnectionConfig(natsURL), logger)
		if err != nil {
			return err
		}
		defer func() { _ = internalnats.Close(conn) }()

		js, err := conn.JetStream()
		if err != nil {
			return fmt.Errorf("jetstream context: %w", err)
		}
		cfg.Reporter, err = report.NewReporter(report.WrapJetStream(js), natsSubject, logger)
		if err != nil {
			return err
		}
	}

	p, err := pipeline.New(cfg)
	if err != nil {
		return err
	}

	result, err := p.Run(ctx)
	if err != nil {
		captureFatal(err)
		return err
	}

	fmt.Printf("Run %s: %d envelopes, %d rows, %d issues", result.RunID,
		result.Summary.EnvelopesRead, result.Summary.RowsWritten, result.Summary.Issues)
	if cfg.Loader != nil {
		fmt.Printf(", %d rows loaded", result.RowsLoaded)
	}
	if result.ArchiveURL != "" {
		fmt.Printf(", archived to %s", result.ArchiveURL)
	}
	fmt.Println()
	return nil
}

func buildPipelineConfig() (pipeline.Config, error) {
	rules, err := loadTransformRules()
	if err != nil {
		return pipeline.Config{}, err
	}
	qm, err := parseQuoteMode()
	if err != nil {
		return pipeline.Config{}, err
	}
	return pipeline.Config{
		InputPath:      inputPath,
		OutputPath:     outputPath,
		BatchSize:      batchSize,
		MaxCellLen:     maxCellLen,
		QuoteMode:      qm,
		MaxDepth:       maxDepth,
		TransformRules: rules,
		Logger:         logger,
	}, nil
}

func buildLoader() (*loader.Loader, error) {
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" || table == "" {
		return nil, nil
	}
	return loader.NewLoader(loader.Config{DSN: dsn, Table: table}, logger)
}
