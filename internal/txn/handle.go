package txn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Handle is a broadcast transaction whose confirmation can be awaited.
type Handle interface {
	Hash() common.Hash
	// Wait blocks until the transaction is mined. A mined but reverted
	// transaction is not an error; inspect the receipt status.
	Wait(ctx context.Context) (*types.Receipt, error)
}

const pollInterval = time.Second

type sentTx struct {
	backend Backend
	tx      *types.Transaction
	summary string
}

func (s *sentTx) Hash() common.Hash {
	return s.tx.Hash()
}

func (s *sentTx) Wait(ctx context.Context) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, s.backend, s.tx)
	if err != nil {
		return nil, fmt.Errorf("wait for %s: %w", s.tx.Hash().Hex(), err)
	}
	return receipt, nil
}

// Summary returns the description attached when the transaction was sent.
func Summary(h Handle) string {
	if s, ok := h.(*sentTx); ok {
		return s.summary
	}
	return ""
}

// Attach returns a handle for a transaction broadcast earlier, for example
// one recovered from the pending store.
func Attach(backend Backend, hash common.Hash) Handle {
	return &hashHandle{backend: backend, hash: hash}
}

type hashHandle struct {
	backend Backend
	hash    common.Hash
}

func (h *hashHandle) Hash() common.Hash {
	return h.hash
}

func (h *hashHandle) Wait(ctx context.Context) (*types.Receipt, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		receipt, err := h.backend.TransactionReceipt(ctx, h.hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("receipt %s: %w", h.hash.Hex(), err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
