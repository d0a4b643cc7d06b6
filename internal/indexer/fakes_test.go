package indexer

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"swapScope/internal/chain"
	"swapScope/internal/dex"
	"swapScope/internal/model"
)

var (
	testPool   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testToken0 = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testToken1 = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func rateLimitedErr() error {
	return &chain.UpstreamError{Op: "eth_call", Err: errors.New("429 Too Many Requests"), RateLimited: true}
}

type fakeReceipts struct {
	mu       sync.Mutex
	receipts map[common.Hash]*types.Receipt
	errs     map[common.Hash][]error
	calls    map[common.Hash]int
}

func newFakeReceipts() *fakeReceipts {
	return &fakeReceipts{
		receipts: make(map[common.Hash]*types.Receipt),
		errs:     make(map[common.Hash][]error),
		calls:    make(map[common.Hash]int),
	}
}

func (f *fakeReceipts) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[hash]++
	if queue := f.errs[hash]; len(queue) > 0 {
		f.errs[hash] = queue[1:]
		if queue[0] != nil {
			return nil, queue[0]
		}
	}
	return f.receipts[hash], nil
}

func (f *fakeReceipts) callCount(hash common.Hash) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[hash]
}

type fakePairs struct {
	mu    sync.Mutex
	pairs map[common.Address]model.PairMeta
	errs  []error
	calls []common.Address
}

func newFakePairs() *fakePairs {
	return &fakePairs{pairs: map[common.Address]model.PairMeta{
		testPool: {Pool: testPool.Hex(), Token0: testToken0.Hex(), Token1: testToken1.Hex()},
	}}
}

func (f *fakePairs) PairTokens(_ context.Context, pool common.Address) (model.PairMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, pool)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return model.PairMeta{}, err
		}
	}
	meta, ok := f.pairs[pool]
	if !ok {
		return model.PairMeta{}, errors.New("execution reverted")
	}
	return meta, nil
}

type fakeTimestamps struct {
	times map[uint64]uint64
}

func (f *fakeTimestamps) BlockTimestamp(_ context.Context, number uint64) (uint64, error) {
	ts, ok := f.times[number]
	if !ok {
		return 0, errors.New("header not found")
	}
	return ts, nil
}

type memorySink struct {
	mu       sync.Mutex
	batches  [][]model.SwapRecord
	failNext int
}

func (m *memorySink) WriteSwaps(_ context.Context, records []model.SwapRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext > 0 {
		m.failNext--
		return errors.New("disk full")
	}
	batch := make([]model.SwapRecord, len(records))
	copy(batch, records)
	m.batches = append(m.batches, batch)
	return nil
}

func (m *memorySink) Close() error { return nil }

func (m *memorySink) rows() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

type memorySkips struct {
	mu      sync.Mutex
	records []model.SkipRecord
}

func (m *memorySkips) Append(records []model.SkipRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, records...)
	return nil
}

func swapLog(t *testing.T, pool common.Address, index uint) *types.Log {
	t.Helper()

	pairABI, err := dex.V2PairABI()
	require.NoError(t, err)

	event := pairABI.Events["Swap"]
	data, err := event.Inputs.NonIndexed().Pack(big.NewInt(1000), big.NewInt(0), big.NewInt(0), big.NewInt(1990))
	require.NoError(t, err)

	sender := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	to := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	return &types.Log{
		Address: pool,
		Topics:  []common.Hash{event.ID, common.BytesToHash(sender.Bytes()), common.BytesToHash(to.Bytes())},
		Data:    data,
		Index:   index,
	}
}

func syncLog(t *testing.T, pool common.Address, index uint) *types.Log {
	t.Helper()

	pairABI, err := dex.V2PairABI()
	require.NoError(t, err)

	event := pairABI.Events["Sync"]
	data, err := event.Inputs.NonIndexed().Pack(big.NewInt(5000), big.NewInt(7000))
	require.NoError(t, err)

	return &types.Log{Address: pool, Topics: []common.Hash{event.ID}, Data: data, Index: index}
}

func swapReceipt(t *testing.T, pool common.Address, block int64) *types.Receipt {
	t.Helper()
	return &types.Receipt{
		Status:           types.ReceiptStatusSuccessful,
		BlockNumber:      big.NewInt(block),
		TransactionIndex: 4,
		GasUsed:          150000,
		Logs:             []*types.Log{syncLog(t, pool, 0), swapLog(t, pool, 1)},
	}
}

func newTestDecoder(t *testing.T) *dex.Decoder {
	t.Helper()
	decoder, err := dex.NewDecoder()
	require.NoError(t, err)
	return decoder
}
