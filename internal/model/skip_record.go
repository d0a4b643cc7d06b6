package model

const (
	SkipKindRange = "range"
	SkipKindTx    = "tx"
)

// SkipRecord marks data the scanner gave up on, so it can be backfilled later.
type SkipRecord struct {
	Kind     string `json:"kind"`
	WindowID int    `json:"window_id"`
	From     uint64 `json:"from_block,omitempty"`
	To       uint64 `json:"to_block,omitempty"`
	TxHash   string `json:"tx_hash,omitempty"`
	Reason   string `json:"reason"`
	At       string `json:"at"`
}
