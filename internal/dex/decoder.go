package dex

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// DecodedLog is a receipt log recognised by the event catalog.
type DecodedLog struct {
	EventName string
	Address   common.Address
	LogIndex  uint
}

// Decoder names receipt logs using the pair contract's event catalog.
type Decoder struct {
	events map[common.Hash]abi.Event
}

// NewDecoder builds a decoder over the Uniswap V2 pair events.
func NewDecoder() (*Decoder, error) {
	pairABI, err := V2PairABI()
	if err != nil {
		return nil, fmt.Errorf("parse pair abi: %w", err)
	}

	events := make(map[common.Hash]abi.Event, len(pairABI.Events))
	for _, event := range pairABI.Events {
		events[event.ID] = event
	}
	return &Decoder{events: events}, nil
}

// Topic returns the topic0 hash of a catalog event.
func (d *Decoder) Topic(name string) (common.Hash, bool) {
	for id, event := range d.events {
		if event.RawName == name {
			return id, true
		}
	}
	return common.Hash{}, false
}

// DecodeLogs decodes every catalog log in a receipt, in log order.
// Logs outside the catalog are ignored. A malformed catalog log fails the whole receipt.
func (d *Decoder) DecodeLogs(logs []*types.Log) ([]DecodedLog, error) {
	decoded := make([]DecodedLog, 0, len(logs))
	for _, lg := range logs {
		if lg == nil {
			continue
		}
		if len(lg.Topics) == 0 {
			return nil, fmt.Errorf("log %d: missing topics", lg.Index)
		}
		event, ok := d.events[lg.Topics[0]]
		if !ok {
			continue
		}
		if err := checkLog(event, lg); err != nil {
			return nil, fmt.Errorf("log %d %s: %w", lg.Index, event.RawName, err)
		}
		decoded = append(decoded, DecodedLog{
			EventName: event.RawName,
			Address:   lg.Address,
			LogIndex:  lg.Index,
		})
	}
	return decoded, nil
}

// FirstEvent returns the first decoded log with the given event name.
func FirstEvent(decoded []DecodedLog, name string) (DecodedLog, bool) {
	for _, lg := range decoded {
		if lg.EventName == name {
			return lg, true
		}
	}
	return DecodedLog{}, false
}

func checkLog(event abi.Event, lg *types.Log) error {
	indexed := 0
	for _, input := range event.Inputs {
		if input.Indexed {
			indexed++
		}
	}
	if len(lg.Topics) != indexed+1 {
		return fmt.Errorf("expected %d topics, got %d", indexed+1, len(lg.Topics))
	}
	if _, err := event.Inputs.NonIndexed().Unpack(lg.Data); err != nil {
		return fmt.Errorf("unpack data: %w", err)
	}
	return nil
}
