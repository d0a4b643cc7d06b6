package model

// PairMeta holds the pool address and its two constituent tokens.
type PairMeta struct {
	Pool   string `json:"pool"`
	Token0 string `json:"token0"`
	Token1 string `json:"token1"`
}
