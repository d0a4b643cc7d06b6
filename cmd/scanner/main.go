package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"swapScope/internal/chain"
	"swapScope/internal/config"
	"swapScope/internal/dex"
	"swapScope/internal/explorer"
	"swapScope/internal/indexer"
	"swapScope/internal/metrics"
	"swapScope/internal/storage"
	"swapScope/internal/storage/postgres"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "scanner",
		Short:        "Uniswap V2 swap scanner",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Scan Swap events and write enriched transactions to CSV",
		RunE:  runScanner,
	}

	addRangeFlags(runCmd)
	runCmd.Flags().String("rpc", "", "JSON-RPC URL")
	runCmd.Flags().Int("concurrency", 10, "transactions enriched in parallel per batch")
	runCmd.Flags().Duration("batch-pause", 500*time.Millisecond, "pause between batches")
	runCmd.Flags().Duration("rate-limit-pause", time.Second, "pause before retrying a throttled or failed call")
	runCmd.Flags().Duration("range-failure-pause", 3*time.Second, "pause before retrying a failed log query")
	runCmd.Flags().Uint64("range-shrink", 10000, "blocks removed from a window after a failed log query")
	runCmd.Flags().Int("progress-every", 6, "log progress every N batches")
	runCmd.Flags().Int("max-attempts", 5, "attempts per transaction before it is skipped")
	runCmd.Flags().Int("max-rate-limit-retries", 10, "retries of a throttled pair call")
	runCmd.Flags().Int("max-range-attempts", 20, "log query attempts per window before it is skipped")
	runCmd.Flags().Int("rps", 0, "RPC requests per second, 0 means unlimited")
	runCmd.Flags().String("out-dir", "./data", "output directory")
	runCmd.Flags().Bool("checkpoint-enabled", true, "resume from and save checkpoints")
	runCmd.Flags().Bool("resolve-timestamps", false, "fetch block timestamps instead of writing 0")
	runCmd.Flags().String("pg-dsn", "", "optional Postgres DSN for a deduplicated copy of the output")
	runCmd.Flags().String("metrics-addr", "", "address for /metrics and /health, empty disables")

	root.AddCommand(runCmd)

	blocksCmd := &cobra.Command{
		Use:   "blocks",
		Short: "Resolve the date range to blocks and print the scan windows",
		RunE:  runBlocks,
	}

	addRangeFlags(blocksCmd)

	root.AddCommand(blocksCmd)

	return root
}

func addRangeFlags(cmd *cobra.Command) {
	cmd.Flags().String("explorer-url", "https://api.arbiscan.io/api", "Etherscan-compatible API URL")
	cmd.Flags().String("explorer-key", "", "explorer API key")
	cmd.Flags().String("start-date", "", "first day to scan (YYYY-MM-DD, UTC)")
	cmd.Flags().String("end-date", "", "last day to scan (YYYY-MM-DD, UTC, inclusive)")
	cmd.Flags().Uint64("from-block", 0, "start block, overrides start-date (0 means unset)")
	cmd.Flags().Uint64("to-block", 0, "end block, overrides end-date (0 means unset)")
	cmd.Flags().Uint64("window-size", 200000, "blocks per scan window")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func runScanner(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsServer := metrics.NewServer(cfg.MetricsAddr, logger)
	metricsServer.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("metrics server stop", zap.Error(err))
		}
	}()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL, cfg.RPS)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	decoder, err := dex.NewDecoder()
	if err != nil {
		return err
	}
	swapTopic, ok := decoder.Topic(dex.EventSwap)
	if !ok {
		return fmt.Errorf("event %s missing from pair abi", dex.EventSwap)
	}

	csvSink, err := storage.OpenCSVSink(cfg.CSVPath())
	if err != nil {
		return err
	}
	var sink storage.Sink = csvSink

	var checkpoint indexer.CheckpointStore
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			_ = csvSink.Close()
			return fmt.Errorf("connect postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			_ = csvSink.Close()
			return err
		}
		sink = storage.NewMultiSink(csvSink, store)
		if cfg.CheckpointEnabled {
			checkpoint = &indexer.DBCheckpointStore{Store: store, Name: cfg.RunName()}
		}
	} else if cfg.CheckpointEnabled {
		checkpoint = indexer.NewFileCheckpointStore(cfg.CheckpointPath())
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Error("close sink", zap.Error(err))
		}
	}()

	skips := storage.NewSkipLog(cfg.SkipLogPath())

	enricher := indexer.NewEnricher(indexer.EnricherConfig{
		RateLimitPause:      cfg.RateLimitPause,
		MaxAttempts:         cfg.MaxAttempts,
		MaxRateLimitRetries: cfg.MaxRateLimitRetries,
		ResolveTimestamps:   cfg.ResolveTimestamps,
	}, chainClient, decoder, dex.NewPairReader(chainClient, dex.NewPairMetaCache()), chainClient, logger)

	scanner := indexer.NewScanner(indexer.ScanConfig{
		Topic:             swapTopic,
		Concurrency:       cfg.Concurrency,
		BatchPause:        cfg.BatchPause,
		RangeFailurePause: cfg.RangeFailurePause,
		RangeShrink:       cfg.RangeShrink,
		MaxRangeAttempts:  cfg.MaxRangeAttempts,
		ProgressEvery:     cfg.ProgressEvery,
	}, chainClient, enricher, sink, skips, logger)

	resolver := explorer.NewClient(cfg.ExplorerURL, cfg.ExplorerKey, nil, logger)
	runner := indexer.NewRunner(runConfig(cfg), resolver, scanner, checkpoint, skips, logger)

	logger.Info("scanner start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("start_date", cfg.StartDate),
		zap.String("end_date", cfg.EndDate),
		zap.Uint64("window_size", cfg.WindowSize),
		zap.Int("concurrency", cfg.Concurrency),
		zap.String("out", csvSink.Path()),
		zap.String("skipped", skips.Path()),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.Bool("postgres", cfg.PGDSN != ""),
	)

	summary, err := runner.Run(ctx)
	logger.Info("scanner done",
		zap.Uint64("from", summary.From),
		zap.Uint64("to", summary.To),
		zap.Uint64("last_block", summary.LastBlock),
		zap.Int("windows", summary.Windows),
		zap.Int("logs", summary.Logs),
		zap.Int("written", summary.Written),
		zap.Int("skipped_txs", summary.SkippedTxs),
		zap.Int("skipped_ranges", summary.SkippedRanges),
		zap.Bool("already_scanned", summary.AlreadyScanned),
	)
	return err
}

func runBlocks(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := cfg.ValidateRange(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resolver := explorer.NewClient(cfg.ExplorerURL, cfg.ExplorerKey, nil, logger)
	from, to, err := indexer.NewRunner(runConfig(cfg), resolver, nil, nil, nil, logger).ResolveRange(ctx)
	if err != nil {
		return err
	}

	windows, err := indexer.SplitRange(from, to, cfg.WindowSize)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "from %d to %d (%d windows)\n", from, to, len(windows))
	for _, w := range windows {
		fmt.Fprintf(out, "%d\t%d\t%d\n", w.ID, w.From, w.To)
	}
	return nil
}

func runConfig(cfg config.Config) indexer.RunConfig {
	return indexer.RunConfig{
		StartDate:  cfg.StartDate,
		EndDate:    cfg.EndDate,
		FromBlock:  cfg.FromBlock,
		ToBlock:    cfg.ToBlock,
		WindowSize: cfg.WindowSize,
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
