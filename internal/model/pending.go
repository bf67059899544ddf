package model

import "time"

// Pending transaction states.
const (
	TxPending   = "pending"
	TxConfirmed = "confirmed"
	TxReverted  = "reverted"
	TxFailed    = "failed"
)

// PendingTx is a broadcast transaction kept until its outcome is known, so
// it can be reported after the session that sent it is gone.
type PendingTx struct {
	Hash      string    `json:"hash"`
	ChainID   uint64    `json:"chain_id"`
	SessionID uint64    `json:"session_id"`
	Operation string    `json:"operation"`
	Summary   string    `json:"summary"`
	Status    string    `json:"status"`
	SentAt    time.Time `json:"sent_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
