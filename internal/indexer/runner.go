package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"swapScope/internal/metrics"
	"swapScope/internal/model"
)

// BlockResolver maps a unix timestamp to the closest block at or before it.
type BlockResolver interface {
	BlockNumberByTime(ctx context.Context, timestamp int64) (uint64, bool)
}

// WindowScanner scans a single window.
type WindowScanner interface {
	Scan(ctx context.Context, window ScanWindow) (ScanResult, error)
}

// RunConfig holds runtime settings for the orchestrator.
type RunConfig struct {
	StartDate  string
	EndDate    string
	FromBlock  uint64
	ToBlock    uint64
	WindowSize uint64
}

// RunSummary totals a completed run.
type RunSummary struct {
	From           uint64
	To             uint64
	Windows        int
	Logs           int
	Written        int
	SkippedTxs     int
	SkippedRanges  int
	LastBlock      uint64
	AlreadyScanned bool
}

// Runner resolves the block span and drives the scanner window by window.
type Runner struct {
	cfg        RunConfig
	resolver   BlockResolver
	scanner    WindowScanner
	checkpoint CheckpointStore
	skips      SkipRecorder
	logger     *zap.Logger
}

// NewRunner builds a Runner. checkpoint and skips may be nil.
func NewRunner(cfg RunConfig, resolver BlockResolver, scanner WindowScanner, checkpoint CheckpointStore, skips SkipRecorder, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		resolver:   resolver,
		scanner:    scanner,
		checkpoint: checkpoint,
		skips:      skips,
		logger:     logger,
	}
}

// ResolveRange returns the inclusive block span to scan.
// An explicit from/to block replaces the matching date lookup; 0 means unset,
// so each end is resolved on its own and genesis cannot be requested explicitly.
func (r *Runner) ResolveRange(ctx context.Context) (uint64, uint64, error) {
	from, to := r.cfg.FromBlock, r.cfg.ToBlock
	if from == 0 && to == 0 {
		if _, _, err := DayBounds(r.cfg.StartDate, r.cfg.EndDate); err != nil {
			return 0, 0, err
		}
	}
	if from == 0 {
		ts, err := DayStart(r.cfg.StartDate)
		if err != nil {
			return 0, 0, fmt.Errorf("start: %w", err)
		}
		if from, err = r.lookup(ctx, ts, r.cfg.StartDate); err != nil {
			return 0, 0, err
		}
	}
	if to == 0 {
		ts, err := DayEnd(r.cfg.EndDate)
		if err != nil {
			return 0, 0, fmt.Errorf("end: %w", err)
		}
		if to, err = r.lookup(ctx, ts, r.cfg.EndDate); err != nil {
			return 0, 0, err
		}
	}
	if to < from {
		return 0, 0, fmt.Errorf("end block %d is before start block %d", to, from)
	}
	return from, to, nil
}

func (r *Runner) lookup(ctx context.Context, ts int64, date string) (uint64, error) {
	if r.resolver == nil {
		return 0, fmt.Errorf("block resolver is nil")
	}
	block, ok := r.resolver.BlockNumberByTime(ctx, ts)
	if !ok {
		return 0, fmt.Errorf("resolve block for %s", date)
	}
	return block, nil
}

// Run scans every window in the resolved span sequentially.
func (r *Runner) Run(ctx context.Context) (RunSummary, error) {
	if r.scanner == nil {
		return RunSummary{}, fmt.Errorf("scanner is nil")
	}
	if r.cfg.WindowSize == 0 {
		return RunSummary{}, fmt.Errorf("window size must be greater than zero")
	}

	from, end, err := r.ResolveRange(ctx)
	if err != nil {
		return RunSummary{}, err
	}
	origin := from
	summary := RunSummary{From: from, To: end}
	r.logger.Info("scan range", zap.Uint64("from", from), zap.Uint64("to", end))

	if r.checkpoint != nil {
		last, ok, err := r.checkpoint.Load(ctx)
		if err != nil {
			return summary, err
		}
		if ok && last >= from {
			from = last + 1
			r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", last), zap.Uint64("from", from))
		}
	}

	if from > end {
		r.logger.Info("nothing to scan", zap.Uint64("from", from), zap.Uint64("to", end))
		summary.AlreadyScanned = true
		return summary, nil
	}

	for id := 0; from <= end; id++ {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		window := NextWindow(id, origin, from, end, r.cfg.WindowSize)
		started := time.Now()
		result, err := r.scanner.Scan(ctx, window)
		if err != nil {
			if !errors.Is(err, ErrRangeExhausted) {
				return summary, fmt.Errorf("scan window %d: %w", window.ID, err)
			}
			r.skipRange(window, result.LastBlock, err)
			summary.SkippedRanges++
		}

		summary.Windows++
		summary.Logs += result.Logs
		summary.Written += result.Written
		summary.SkippedTxs += result.Skipped
		summary.LastBlock = result.LastBlock

		if r.checkpoint != nil {
			if err := r.checkpoint.Save(ctx, result.LastBlock); err != nil {
				return summary, err
			}
		}
		metrics.LastProcessedBlock(result.LastBlock)

		r.logger.Info("window complete",
			zap.Int("window", window.ID),
			zap.Uint64("from", window.From),
			zap.Uint64("to", result.LastBlock),
			zap.Int("written", result.Written),
			zap.Int("skipped", result.Skipped),
			zap.Duration("elapsed", time.Since(started)),
		)

		if result.LastBlock == end {
			break
		}
		from = result.LastBlock + 1
	}

	return summary, nil
}

func (r *Runner) skipRange(window ScanWindow, to uint64, cause error) {
	rec := model.SkipRecord{
		Kind:     model.SkipKindRange,
		WindowID: window.ID,
		From:     window.From,
		To:       to,
		Reason:   cause.Error(),
		At:       time.Now().UTC().Format(time.RFC3339Nano),
	}
	metrics.Skipped(model.SkipKindRange, 1)
	r.logger.Error("range skipped", zap.Int("window", window.ID), zap.Uint64("from", rec.From), zap.Uint64("to", rec.To), zap.Error(cause))

	if r.skips == nil {
		return
	}
	if err := r.skips.Append([]model.SkipRecord{rec}); err != nil {
		r.logger.Error("record skipped range", zap.Error(err))
	}
}
