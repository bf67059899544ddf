package model

// PoolMeta is the JSON and storage representation of a pair snapshot.
type PoolMeta struct {
	ChainID     uint64 `json:"chain_id"`
	Address     string `json:"address"`
	Token0      string `json:"token0"`
	Token1      string `json:"token1"`
	Symbol      string `json:"symbol"`
	Reserve0    string `json:"reserve0"`
	Reserve1    string `json:"reserve1"`
	TotalSupply string `json:"total_supply,omitempty"`
	FeeBps      uint32 `json:"fee_bps"`
}

// MetaOf flattens a pair into PoolMeta.
func MetaOf(p Pair) PoolMeta {
	return PoolMeta{
		ChainID:  p.Token0.ChainID,
		Address:  p.Address.Hex(),
		Token0:   p.Token0.Address.Hex(),
		Token1:   p.Token1.Address.Hex(),
		Symbol:   p.Symbol(),
		Reserve0: copyInt(p.Reserve0).String(),
		Reserve1: copyInt(p.Reserve1).String(),
		FeeBps:   p.Fee(),
	}
}
