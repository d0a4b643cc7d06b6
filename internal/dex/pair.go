package dex

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"swapScope/internal/model"
)

// ContractCaller executes read-only contract calls.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// PairMetaCache caches pair metadata by pool address.
type PairMetaCache struct {
	mu   sync.RWMutex
	data map[common.Address]model.PairMeta
}

func NewPairMetaCache() *PairMetaCache {
	return &PairMetaCache{data: make(map[common.Address]model.PairMeta)}
}

func (c *PairMetaCache) Get(address common.Address) (model.PairMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *PairMetaCache) Set(address common.Address, meta model.PairMeta) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}

// PairReader reads token0/token1 from pair contracts.
type PairReader struct {
	caller ContractCaller
	cache  *PairMetaCache
}

// NewPairReader builds a reader. A nil cache disables caching.
func NewPairReader(caller ContractCaller, cache *PairMetaCache) *PairReader {
	return &PairReader{caller: caller, cache: cache}
}

// PairTokens loads the two tokens of the pair at pool.
// Upstream errors are wrapped with %w so callers can classify them.
func (r *PairReader) PairTokens(ctx context.Context, pool common.Address) (model.PairMeta, error) {
	if r.cache != nil {
		if meta, ok := r.cache.Get(pool); ok {
			return meta, nil
		}
	}
	if r.caller == nil {
		return model.PairMeta{}, fmt.Errorf("contract caller is nil")
	}

	pairABI, err := V2PairABI()
	if err != nil {
		return model.PairMeta{}, fmt.Errorf("parse pair abi: %w", err)
	}

	token0, err := r.callAddress(ctx, pool, pairABI, "token0")
	if err != nil {
		return model.PairMeta{}, err
	}
	token1, err := r.callAddress(ctx, pool, pairABI, "token1")
	if err != nil {
		return model.PairMeta{}, err
	}

	meta := model.PairMeta{
		Pool:   pool.Hex(),
		Token0: token0.Hex(),
		Token1: token1.Hex(),
	}
	if r.cache != nil {
		r.cache.Set(pool, meta)
	}
	return meta, nil
}

func (r *PairReader) callAddress(ctx context.Context, pool common.Address, pairABI abi.ABI, method string) (common.Address, error) {
	data, err := pairABI.Pack(method)
	if err != nil {
		return common.Address{}, fmt.Errorf("pack %s: %w", method, err)
	}
	resp, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &pool, Data: data}, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := pairABI.Unpack(method, resp)
	if err != nil {
		return common.Address{}, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return common.Address{}, fmt.Errorf("%s: empty result", method)
	}
	return asAddress(values[0])
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}
