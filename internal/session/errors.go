package session

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"zapkit/internal/amm"
	"zapkit/internal/permit"
)

var (
	ErrInvalidAmount       = errors.New("enter an amount")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrNoPool              = errors.New("select a pool")
	ErrNoCurrency          = errors.New("select a token")
	ErrPriceImpactTooHigh  = errors.New("price impact too high")
	ErrBusy                = errors.New("a transaction is in flight")
	ErrSuperseded          = errors.New("superseded by a reset")
	ErrAllowanceLagging    = errors.New("approval mined but allowance not yet visible")

	ErrNoRoute       = amm.ErrNoRoute
	ErrEmptyReserves = amm.ErrEmptyReserves
)

// SignerError is a rejection reported by the wallet.
type SignerError = permit.SignerError

// RevertError reports a transaction that was mined with a failure status.
type RevertError struct {
	TxHash common.Hash
	Reason string
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("transaction %s reverted", e.TxHash.Hex())
	}
	return fmt.Sprintf("transaction %s reverted: %s", e.TxHash.Hex(), e.Reason)
}

// transitionError wraps ErrInvalidTransition with the state and action.
func transitionError(action string, from State) error {
	return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, action, from)
}
