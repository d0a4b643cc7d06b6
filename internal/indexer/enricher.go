package indexer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"swapScope/internal/chain"
	"swapScope/internal/dex"
	"swapScope/internal/model"
)

// placeholderTimestamp is written when block timestamps are not resolved.
const placeholderTimestamp = "0"

var errRateLimitExhausted = errors.New("pair call still rate limited")

// ReceiptFetcher loads transaction receipts. A nil receipt means unknown to the node.
type ReceiptFetcher interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// PairTokenReader reads the token pair behind a pool.
type PairTokenReader interface {
	PairTokens(ctx context.Context, pool common.Address) (model.PairMeta, error)
}

// TimestampReader resolves block timestamps.
type TimestampReader interface {
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}

// EnricherConfig holds retry settings for transaction enrichment.
type EnricherConfig struct {
	RateLimitPause      time.Duration
	MaxAttempts         int
	MaxRateLimitRetries int
	ResolveTimestamps   bool
}

// Enricher turns a transaction hash into a SwapRecord.
type Enricher struct {
	cfg        EnricherConfig
	receipts   ReceiptFetcher
	decoder    *dex.Decoder
	pairs      PairTokenReader
	timestamps TimestampReader
	logger     *zap.Logger
}

// NewEnricher builds an Enricher. timestamps may be nil when ResolveTimestamps is off.
func NewEnricher(cfg EnricherConfig, receipts ReceiptFetcher, decoder *dex.Decoder, pairs PairTokenReader, timestamps TimestampReader, logger *zap.Logger) *Enricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{
		cfg:        cfg,
		receipts:   receipts,
		decoder:    decoder,
		pairs:      pairs,
		timestamps: timestamps,
		logger:     logger,
	}
}

// Enrich returns the swap record for hash, or nil when the transaction is not a usable swap:
// missing or reverted receipt, no Swap log, undecodable logs, or a pool that does not answer
// token0/token1. Errors are returned only once retries are exhausted.
func (e *Enricher) Enrich(ctx context.Context, hash common.Hash) (*model.SwapRecord, error) {
	var record *model.SwapRecord
	retryable := func(err error) bool { return !errors.Is(err, errRateLimitExhausted) }

	err := withRetry(ctx, e.cfg.MaxAttempts, e.cfg.RateLimitPause, retryable, func(ctx context.Context, attempt int) error {
		var err error
		record, err = e.enrichOnce(ctx, hash)
		if err != nil && ctx.Err() == nil {
			e.logger.Warn("enrich failed", zap.String("tx", hash.Hex()), zap.Int("attempt", attempt+1), zap.Error(err))
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("enrich %s: %w", hash.Hex(), err)
	}
	return record, nil
}

func (e *Enricher) enrichOnce(ctx context.Context, hash common.Hash) (*model.SwapRecord, error) {
	receipt, err := e.receipts.TransactionReceipt(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("receipt: %w", err)
	}
	if receipt == nil || receipt.Status != types.ReceiptStatusSuccessful {
		return nil, nil
	}

	decoded, err := e.decoder.DecodeLogs(receipt.Logs)
	if err != nil {
		e.logger.Debug("decode receipt logs", zap.String("tx", hash.Hex()), zap.Error(err))
		return nil, nil
	}
	swap, ok := dex.FirstEvent(decoded, dex.EventSwap)
	if !ok {
		return nil, nil
	}

	pair, err := e.pairTokens(ctx, swap.Address)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, errRateLimitExhausted) {
			return nil, err
		}
		e.logger.Debug("pair tokens unavailable", zap.String("tx", hash.Hex()), zap.String("pool", swap.Address.Hex()), zap.Error(err))
		return nil, nil
	}

	var block uint64
	if receipt.BlockNumber != nil {
		block = receipt.BlockNumber.Uint64()
	}

	timestamp := placeholderTimestamp
	if e.cfg.ResolveTimestamps && e.timestamps != nil {
		ts, err := e.timestamps.BlockTimestamp(ctx, block)
		if err != nil {
			return nil, fmt.Errorf("block timestamp %d: %w", block, err)
		}
		timestamp = strconv.FormatUint(ts, 10)
	}

	record := &model.SwapRecord{
		TxHash:    hash.Hex(),
		TxIndex:   uint64(receipt.TransactionIndex),
		Block:     block,
		GasUsed:   receipt.GasUsed,
		Timestamp: timestamp,
		Pool:      pair.Pool,
		Token0:    pair.Token0,
		Token1:    pair.Token1,
	}
	if !record.Valid() {
		return nil, nil
	}
	return record, nil
}

// pairTokens retries only while the provider keeps throttling.
func (e *Enricher) pairTokens(ctx context.Context, pool common.Address) (model.PairMeta, error) {
	var meta model.PairMeta
	err := withRetry(ctx, e.cfg.MaxRateLimitRetries+1, e.cfg.RateLimitPause, chain.IsRateLimited, func(ctx context.Context, _ int) error {
		var err error
		meta, err = e.pairs.PairTokens(ctx, pool)
		return err
	})
	if err != nil && chain.IsRateLimited(err) {
		return model.PairMeta{}, fmt.Errorf("%w: %w", errRateLimitExhausted, err)
	}
	return meta, err
}
