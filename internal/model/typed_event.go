package model

// ReceiptEvent is a decoded log from a zapkit transaction receipt.
type ReceiptEvent struct {
	ChainID     uint64      `json:"chain_id"`
	BlockNumber uint64      `json:"block_number"`
	TxHash      string      `json:"tx_hash"`
	LogIndex    uint64      `json:"log_index"`
	Address     string      `json:"address"`
	EventName   string      `json:"event_name"`
	Decoded     interface{} `json:"decoded"`
}
