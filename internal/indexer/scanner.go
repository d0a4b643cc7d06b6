package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"swapScope/internal/metrics"
	"swapScope/internal/model"
	"swapScope/internal/storage"
)

// ErrRangeExhausted is returned when a window's log query keeps failing after every shrink.
var ErrRangeExhausted = errors.New("log query attempts exhausted")

// LogFetcher queries event logs by topic0.
type LogFetcher interface {
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, topic0 []common.Hash) ([]types.Log, error)
}

// TxEnricher resolves a transaction into a swap record; nil means "not a usable swap".
type TxEnricher interface {
	Enrich(ctx context.Context, hash common.Hash) (*model.SwapRecord, error)
}

// SkipRecorder keeps track of data the scanner gave up on.
type SkipRecorder interface {
	Append(records []model.SkipRecord) error
}

// ScanConfig holds the pacing and retry settings of the range scanner.
type ScanConfig struct {
	Topic             common.Hash
	Concurrency       int
	BatchPause        time.Duration
	RangeFailurePause time.Duration
	RangeShrink       uint64
	MaxRangeAttempts  int
	ProgressEvery     int
}

// ScanResult summarises one scanned window.
type ScanResult struct {
	LastBlock    uint64
	Logs         int
	Transactions int
	Batches      int
	Written      int
	Skipped      int
}

// Scanner fetches Swap logs for a window and enriches their transactions in bounded batches.
type Scanner struct {
	cfg      ScanConfig
	logs     LogFetcher
	enricher TxEnricher
	sink     storage.Sink
	skips    SkipRecorder
	logger   *zap.Logger
}

// NewScanner builds a Scanner. skips may be nil.
func NewScanner(cfg ScanConfig, logs LogFetcher, enricher TxEnricher, sink storage.Sink, skips SkipRecorder, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = 1
	}
	return &Scanner{
		cfg:      cfg,
		logs:     logs,
		enricher: enricher,
		sink:     sink,
		skips:    skips,
		logger:   logger,
	}
}

// Scan processes one window and returns the last block it covered.
// LastBlock may be below window.To when the log query only succeeded on a narrowed range.
// On ErrRangeExhausted, LastBlock is the narrowest end attempted.
func (s *Scanner) Scan(ctx context.Context, window ScanWindow) (ScanResult, error) {
	if window.To < window.From {
		return ScanResult{}, fmt.Errorf("window %d: to block %d before from block %d", window.ID, window.To, window.From)
	}

	logs, to, err := s.fetchLogs(ctx, window)
	result := ScanResult{LastBlock: to, Logs: len(logs)}
	if err != nil {
		return result, err
	}
	metrics.LogsFetched(len(logs))

	hashes := uniqueTxHashes(logs)
	result.Transactions = len(hashes)

	s.logger.Info("scan window",
		zap.Int("window", window.ID),
		zap.Uint64("from", window.From),
		zap.Uint64("to", to),
		zap.Int("logs", len(logs)),
		zap.Int("transactions", len(hashes)),
	)

	for start := 0; start < len(hashes); start += s.cfg.Concurrency {
		end := min(start+s.cfg.Concurrency, len(hashes))

		written, skipped, err := s.processBatch(ctx, window.ID, hashes[start:end])
		if err != nil {
			return result, err
		}
		result.Batches++
		result.Written += written
		result.Skipped += skipped

		if result.Batches%s.cfg.ProgressEvery == 0 {
			s.logger.Info("scan progress",
				zap.Int("window", window.ID),
				zap.Int("checked", end),
				zap.Int("total", len(hashes)),
				zap.String("progress", fmt.Sprintf("%.2f%%", float64(end)/float64(len(hashes))*100)),
			)
		}

		if end < len(hashes) {
			if err := pause(ctx, s.cfg.BatchPause); err != nil {
				return result, err
			}
		}
	}

	return result, nil
}

// fetchLogs queries [From, To], shrinking To after every failure.
func (s *Scanner) fetchLogs(ctx context.Context, window ScanWindow) ([]types.Log, uint64, error) {
	to := window.To
	var logs []types.Log
	var lastErr error

	err := withRetry(ctx, s.cfg.MaxRangeAttempts, s.cfg.RangeFailurePause, nil, func(ctx context.Context, attempt int) error {
		if attempt > 0 {
			to = shrinkTo(window.From, to, s.cfg.RangeShrink)
			metrics.RangeRetry()
			s.logger.Info("retry narrowed range", zap.Int("window", window.ID), zap.Uint64("from", window.From), zap.Uint64("to", to))
		}

		var err error
		logs, err = s.logs.FilterLogs(ctx, window.From, to, []common.Hash{s.cfg.Topic})
		if err != nil {
			lastErr = err
			s.logger.Warn("filter logs failed", zap.Int("window", window.ID), zap.Uint64("from", window.From), zap.Uint64("to", to), zap.Error(err))
		}
		return err
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, to, ctxErr
		}
		return nil, to, fmt.Errorf("%w: window %d [%d, %d]: %w", ErrRangeExhausted, window.ID, window.From, to, lastErr)
	}
	return logs, to, nil
}

// processBatch enriches hashes concurrently and writes the valid records in one sink call.
// Only context cancellation is returned as an error; everything else becomes skip records.
func (s *Scanner) processBatch(ctx context.Context, windowID int, hashes []common.Hash) (int, int, error) {
	records := make([]*model.SwapRecord, len(hashes))
	errs := make([]error, len(hashes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, hash := range hashes {
		i, hash := i, hash
		g.Go(func() error {
			record, err := s.enricher.Enrich(gctx, hash)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				errs[i] = err
				return nil
			}
			records[i] = record
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	var skipped []model.SkipRecord
	valid := make([]model.SwapRecord, 0, len(hashes))
	validHashes := make([]common.Hash, 0, len(hashes))
	for i, hash := range hashes {
		if errs[i] != nil {
			skipped = append(skipped, txSkip(windowID, hash, errs[i]))
			continue
		}
		if records[i] != nil && records[i].Valid() {
			valid = append(valid, *records[i])
			validHashes = append(validHashes, hash)
		}
	}

	written := 0
	if len(valid) > 0 {
		if err := s.sink.WriteSwaps(ctx, valid); err != nil {
			s.logger.Error("write batch failed", zap.Int("window", windowID), zap.Int("records", len(valid)), zap.Error(err))
			for _, hash := range validHashes {
				skipped = append(skipped, txSkip(windowID, hash, fmt.Errorf("write: %w", err)))
			}
		} else {
			written = len(valid)
			metrics.RecordsWritten(written)
		}
	}

	s.recordSkips(skipped)
	return written, len(skipped), nil
}

func (s *Scanner) recordSkips(records []model.SkipRecord) {
	if len(records) == 0 {
		return
	}
	metrics.Skipped(model.SkipKindTx, len(records))
	for _, rec := range records {
		s.logger.Warn("transaction skipped", zap.Int("window", rec.WindowID), zap.String("tx", rec.TxHash), zap.String("reason", rec.Reason))
	}
	if s.skips == nil {
		return
	}
	if err := s.skips.Append(records); err != nil {
		s.logger.Error("record skipped transactions", zap.Int("count", len(records)), zap.Error(err))
	}
}

func txSkip(windowID int, hash common.Hash, err error) model.SkipRecord {
	return model.SkipRecord{
		Kind:     model.SkipKindTx,
		WindowID: windowID,
		TxHash:   hash.Hex(),
		Reason:   err.Error(),
		At:       time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// shrinkTo narrows to by shrink blocks without going below from.
func shrinkTo(from, to, shrink uint64) uint64 {
	if to <= from || to-from <= shrink {
		return from
	}
	return to - shrink
}

// uniqueTxHashes returns the transaction hashes of logs in first-seen order.
func uniqueTxHashes(logs []types.Log) []common.Hash {
	seen := make(map[common.Hash]struct{}, len(logs))
	hashes := make([]common.Hash, 0, len(logs))
	for _, lg := range logs {
		if _, ok := seen[lg.TxHash]; ok {
			continue
		}
		seen[lg.TxHash] = struct{}{}
		hashes = append(hashes, lg.TxHash)
	}
	return hashes
}
