package model

import "strconv"

// SwapRecord is a Swap transaction enriched with its pair tokens.
type SwapRecord struct {
	TxHash    string `json:"tx_hash"`
	TxIndex   uint64 `json:"tx_index"`
	Block     uint64 `json:"block"`
	GasUsed   uint64 `json:"gas_used"`
	Timestamp string `json:"timestamp"`
	Pool      string `json:"pool"`
	Token0    string `json:"token0"`
	Token1    string `json:"token1"`
}

// SwapCSVHeader lists the output columns in file order.
var SwapCSVHeader = []string{
	"TX Hash",
	"TX Index",
	"Block Number",
	"Gas Used",
	"Timestamp",
	"Pool address",
	"Token 0",
	"Token 1",
}

// Valid reports whether every field needed for output is populated.
func (r SwapRecord) Valid() bool {
	return r.TxHash != "" && r.Timestamp != "" && r.Pool != "" && r.Token0 != "" && r.Token1 != ""
}

// CSVRow renders the record in SwapCSVHeader order.
func (r SwapRecord) CSVRow() []string {
	return []string{
		r.TxHash,
		strconv.FormatUint(r.TxIndex, 10),
		strconv.FormatUint(r.Block, 10),
		strconv.FormatUint(r.GasUsed, 10),
		r.Timestamp,
		r.Pool,
		r.Token0,
		r.Token1,
	}
}
