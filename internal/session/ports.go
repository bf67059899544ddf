package session

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"zapkit/internal/model"
	"zapkit/internal/permit"
	"zapkit/internal/txn"
)

// ChainReader reads the balances and allowances a cycle depends on.
type ChainReader interface {
	Allowance(ctx context.Context, token model.Token, owner, spender common.Address) (*big.Int, error)
	BalanceOf(ctx context.Context, token model.Token, owner common.Address) (*big.Int, error)
	NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error)
}

// PoolReader is the chain surface the orchestrator needs on top of
// ChainReader. *dex.Reader satisfies it.
type PoolReader interface {
	ChainReader
	Token(ctx context.Context, address common.Address) (model.Token, error)
	Pair(ctx context.Context, address common.Address) (model.Pair, error)
	TotalSupply(ctx context.Context, token common.Address) (*big.Int, error)
	CandidatePairs(ctx context.Context, factory common.Address, tokens []model.Token) ([]model.Pair, error)
	StakingPool(ctx context.Context, chef, lp common.Address) (*big.Int, error)
}

// Approver sends on-chain approvals.
type Approver interface {
	Approve(ctx context.Context, token model.Token, spender common.Address, amount *big.Int) (txn.Handle, error)
}

// Sender broadcasts contract calls.
type Sender interface {
	Send(ctx context.Context, call txn.Call) (txn.Handle, error)
}

// PermitSigner gathers off-chain approvals.
type PermitSigner interface {
	SignPermit(ctx context.Context, token, spender common.Address, value, deadline *big.Int) (permit.Signature, error)
}

// Recorder journals state transitions.
type Recorder interface {
	Record(ctx context.Context, record model.ZapRecord) error
}

// PendingStore keeps broadcast transactions until they settle.
type PendingStore interface {
	Put(tx model.PendingTx) error
	Resolve(hash string, status string) error
}
