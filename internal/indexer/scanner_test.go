package indexer

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"swapScope/internal/model"
)

type blockRange struct {
	from, to uint64
}

type fakeLogs struct {
	mu       sync.Mutex
	logs     []types.Log
	failures int
	calls    []blockRange
}

func (f *fakeLogs) FilterLogs(_ context.Context, from, to uint64, _ []common.Hash) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, blockRange{from: from, to: to})
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("query returned more than 10000 results")
	}
	return f.logs, nil
}

type fakeEnricher struct {
	fail     map[common.Hash]bool
	inFlight atomic.Int32
	peak     atomic.Int32
	calls    atomic.Int32
}

func (f *fakeEnricher) Enrich(_ context.Context, hash common.Hash) (*model.SwapRecord, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(time.Millisecond)

	if f.fail[hash] {
		return nil, errors.New("receipt unavailable")
	}
	return &model.SwapRecord{
		TxHash:    hash.Hex(),
		Timestamp: "0",
		Pool:      testPool.Hex(),
		Token0:    testToken0.Hex(),
		Token1:    testToken1.Hex(),
	}, nil
}

func txHash(i int) common.Hash {
	return common.BigToHash(big.NewInt(int64(i)))
}

func logsForTxs(n int) []types.Log {
	logs := make([]types.Log, 0, n)
	for i := 0; i < n; i++ {
		logs = append(logs, types.Log{TxHash: txHash(i + 1), BlockNumber: uint64(100 + i)})
	}
	return logs
}

func testScanConfig() ScanConfig {
	return ScanConfig{
		Concurrency:      10,
		RangeShrink:      10000,
		MaxRangeAttempts: 3,
		ProgressEvery:    6,
	}
}

func TestScanBatchesTransactions(t *testing.T) {
	logs := &fakeLogs{logs: logsForTxs(23)}
	enricher := &fakeEnricher{}
	sink := &memorySink{}

	s := NewScanner(testScanConfig(), logs, enricher, sink, nil, nil)
	result, err := s.Scan(context.Background(), ScanWindow{ID: 0, From: 100, To: 300100})
	require.NoError(t, err)

	require.Equal(t, uint64(300100), result.LastBlock)
	require.Equal(t, 23, result.Logs)
	require.Equal(t, 23, result.Transactions)
	require.Equal(t, 3, result.Batches)
	require.Equal(t, 23, result.Written)
	require.Zero(t, result.Skipped)

	require.Len(t, sink.batches, 3)
	require.Len(t, sink.batches[0], 10)
	require.Len(t, sink.batches[1], 10)
	require.Len(t, sink.batches[2], 3)
	require.Equal(t, txHash(1).Hex(), sink.batches[0][0].TxHash)
	require.Equal(t, txHash(23).Hex(), sink.batches[2][2].TxHash)
	require.LessOrEqual(t, enricher.peak.Load(), int32(10))
}

func TestScanLogsProgressEveryNBatches(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	s := NewScanner(testScanConfig(), &fakeLogs{logs: logsForTxs(130)}, &fakeEnricher{}, &memorySink{}, nil, zap.New(core))
	result, err := s.Scan(context.Background(), ScanWindow{From: 1, To: 10})
	require.NoError(t, err)
	require.Equal(t, 13, result.Batches)

	progress := logs.FilterMessage("scan progress").All()
	require.Len(t, progress, 2)
	require.EqualValues(t, 60, progress[0].ContextMap()["checked"])
	require.EqualValues(t, 120, progress[1].ContextMap()["checked"])
	require.EqualValues(t, 130, progress[1].ContextMap()["total"])
	require.Equal(t, "92.31%", progress[1].ContextMap()["progress"])
}

func TestScanNoProgressBeforeNBatches(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	s := NewScanner(testScanConfig(), &fakeLogs{logs: logsForTxs(23)}, &fakeEnricher{}, &memorySink{}, nil, zap.New(core))
	_, err := s.Scan(context.Background(), ScanWindow{From: 1, To: 10})
	require.NoError(t, err)
	require.Zero(t, logs.FilterMessage("scan progress").Len())
}

func TestScanRespectsConcurrencyCap(t *testing.T) {
	cfg := testScanConfig()
	cfg.Concurrency = 4
	enricher := &fakeEnricher{}

	s := NewScanner(cfg, &fakeLogs{logs: logsForTxs(17)}, enricher, &memorySink{}, nil, nil)
	result, err := s.Scan(context.Background(), ScanWindow{From: 1, To: 10})
	require.NoError(t, err)
	require.Equal(t, 5, result.Batches)
	require.Equal(t, int32(17), enricher.calls.Load())
	require.LessOrEqual(t, enricher.peak.Load(), int32(4))
}

func TestScanDeduplicatesTransactions(t *testing.T) {
	logs := logsForTxs(3)
	logs = append(logs, logs[0], logs[2])
	enricher := &fakeEnricher{}
	sink := &memorySink{}

	s := NewScanner(testScanConfig(), &fakeLogs{logs: logs}, enricher, sink, nil, nil)
	result, err := s.Scan(context.Background(), ScanWindow{From: 1, To: 10})
	require.NoError(t, err)
	require.Equal(t, 5, result.Logs)
	require.Equal(t, 3, result.Transactions)
	require.Equal(t, 3, sink.rows())
	require.Equal(t, int32(3), enricher.calls.Load())
}

func TestScanNarrowsRangeAfterFailure(t *testing.T) {
	logs := &fakeLogs{logs: logsForTxs(2), failures: 1}
	sink := &memorySink{}

	s := NewScanner(testScanConfig(), logs, &fakeEnricher{}, sink, nil, nil)
	result, err := s.Scan(context.Background(), ScanWindow{ID: 0, From: 100, To: 300100})
	require.NoError(t, err)

	require.Equal(t, []blockRange{{100, 300100}, {100, 290100}}, logs.calls)
	require.Equal(t, uint64(290100), result.LastBlock)
	require.Equal(t, 2, sink.rows())
}

func TestScanRangeExhausted(t *testing.T) {
	logs := &fakeLogs{failures: 10}
	sink := &memorySink{}

	s := NewScanner(testScanConfig(), logs, &fakeEnricher{}, sink, nil, nil)
	result, err := s.Scan(context.Background(), ScanWindow{ID: 2, From: 100, To: 300100})
	require.ErrorIs(t, err, ErrRangeExhausted)

	require.Equal(t, []blockRange{{100, 300100}, {100, 290100}, {100, 280100}}, logs.calls)
	require.Equal(t, uint64(280100), result.LastBlock)
	require.Zero(t, sink.rows())
}

func TestScanShrinkStopsAtWindowStart(t *testing.T) {
	logs := &fakeLogs{failures: 10}

	s := NewScanner(testScanConfig(), logs, &fakeEnricher{}, &memorySink{}, nil, nil)
	result, err := s.Scan(context.Background(), ScanWindow{From: 100, To: 15000})
	require.ErrorIs(t, err, ErrRangeExhausted)
	require.Equal(t, []blockRange{{100, 15000}, {100, 5000}, {100, 100}}, logs.calls)
	require.Equal(t, uint64(100), result.LastBlock)
}

func TestScanRecordsFailedTransactions(t *testing.T) {
	txs := logsForTxs(5)
	enricher := &fakeEnricher{fail: map[common.Hash]bool{txs[1].TxHash: true, txs[3].TxHash: true}}
	sink := &memorySink{}
	skips := &memorySkips{}

	s := NewScanner(testScanConfig(), &fakeLogs{logs: txs}, enricher, sink, skips, nil)
	result, err := s.Scan(context.Background(), ScanWindow{ID: 7, From: 1, To: 10})
	require.NoError(t, err)

	require.Equal(t, 3, result.Written)
	require.Equal(t, 2, result.Skipped)
	require.Equal(t, 3, sink.rows())
	require.Len(t, skips.records, 2)
	for i, rec := range skips.records {
		require.Equal(t, model.SkipKindTx, rec.Kind)
		require.Equal(t, 7, rec.WindowID)
		require.Equal(t, txs[1+2*i].TxHash.Hex(), rec.TxHash)
		require.Contains(t, rec.Reason, "receipt unavailable")
	}
}

func TestScanRecordsSinkFailure(t *testing.T) {
	cfg := testScanConfig()
	cfg.Concurrency = 2
	sink := &memorySink{failNext: 1}
	skips := &memorySkips{}

	s := NewScanner(cfg, &fakeLogs{logs: logsForTxs(4)}, &fakeEnricher{}, sink, skips, nil)
	result, err := s.Scan(context.Background(), ScanWindow{From: 1, To: 10})
	require.NoError(t, err)

	require.Equal(t, 2, result.Written)
	require.Equal(t, 2, result.Skipped)
	require.Len(t, sink.batches, 1)
	require.Len(t, skips.records, 2)
	require.Contains(t, skips.records[0].Reason, "disk full")
}

func TestScanSkipsEmptyWindow(t *testing.T) {
	sink := &memorySink{}
	s := NewScanner(testScanConfig(), &fakeLogs{}, &fakeEnricher{}, sink, nil, nil)
	result, err := s.Scan(context.Background(), ScanWindow{From: 1, To: 10})
	require.NoError(t, err)
	require.Equal(t, uint64(10), result.LastBlock)
	require.Zero(t, result.Batches)
	require.Empty(t, sink.batches)
}

func TestScanStopsOnCancel(t *testing.T) {
	cfg := testScanConfig()
	cfg.Concurrency = 1
	cfg.BatchPause = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	sink := &memorySink{}
	s := NewScanner(cfg, &fakeLogs{logs: logsForTxs(3)}, &fakeEnricher{}, sink, nil, nil)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := s.Scan(ctx, ScanWindow{From: 1, To: 10})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, sink.rows())
}

func TestShrinkTo(t *testing.T) {
	require.Equal(t, uint64(290100), shrinkTo(100, 300100, 10000))
	require.Equal(t, uint64(100), shrinkTo(100, 5000, 10000))
	require.Equal(t, uint64(100), shrinkTo(100, 10100, 10000))
	require.Equal(t, uint64(100), shrinkTo(100, 100, 10000))
}
