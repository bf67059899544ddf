package model

import "time"

// ZapRecord is one journal line describing a state transition of a zap or
// stake cycle.
type ZapRecord struct {
	SessionID  uint64    `json:"session_id"`
	Generation uint64    `json:"generation"`
	Operation  string    `json:"operation"`
	ChainID    uint64    `json:"chain_id"`
	Account    string    `json:"account"`
	Pool       string    `json:"pool"`
	Token      string    `json:"token"`
	Amount     string    `json:"amount"`
	MinimumOut string    `json:"minimum_out,omitempty"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	TxHash     string    `json:"tx_hash,omitempty"`
	Summary    string    `json:"summary,omitempty"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}
