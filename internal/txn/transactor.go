// Package txn signs and broadcasts transactions with a local key and hands
// back handles whose confirmation can be awaited.
package txn

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"zapkit/internal/dex"
	"zapkit/internal/model"
)

// ErrNativeApproval is returned when asked to approve the native currency.
var ErrNativeApproval = errors.New("native currency cannot be approved")

// Backend is the chain surface a Transactor needs. *chain.Client satisfies it.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

// Call is a contract call to sign and send.
type Call struct {
	To    common.Address
	Value *big.Int
	Data  []byte
	// Summary is a human readable description kept with the pending record.
	Summary string
}

// Transactor signs legacy EIP-155 transactions with a private key.
type Transactor struct {
	backend Backend
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
	logger  *zap.Logger

	// GasBufferPercent is added on top of every gas estimate.
	GasBufferPercent uint64
}

// NewTransactor parses a hex private key (with or without 0x).
func NewTransactor(backend Backend, hexKey string, chainID *big.Int, logger *zap.Logger) (*Transactor, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewTransactorFromKey(backend, key, chainID, logger), nil
}

// NewTransactorFromKey wraps an already parsed key.
func NewTransactorFromKey(backend Backend, key *ecdsa.PrivateKey, chainID *big.Int, logger *zap.Logger) *Transactor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transactor{
		backend:          backend,
		key:              key,
		from:             crypto.PubkeyToAddress(key.PublicKey),
		chainID:          new(big.Int).Set(chainID),
		logger:           logger,
		GasBufferPercent: 20,
	}
}

// From returns the account transactions are sent from.
func (t *Transactor) From() common.Address {
	return t.from
}

// Key returns the signing key, used for off-chain permit signatures.
func (t *Transactor) Key() *ecdsa.PrivateKey {
	return t.key
}

// ChainID returns the EIP-155 chain id.
func (t *Transactor) ChainID() *big.Int {
	return new(big.Int).Set(t.chainID)
}

// Estimate returns the gas limit for call, including the buffer.
func (t *Transactor) Estimate(ctx context.Context, call Call) (uint64, error) {
	to := call.To
	gas, err := t.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  t.from,
		To:    &to,
		Value: call.Value,
		Data:  call.Data,
	})
	if err != nil {
		return 0, err
	}
	return gas * (100 + t.GasBufferPercent) / 100, nil
}

// Send estimates, signs and broadcasts call.
func (t *Transactor) Send(ctx context.Context, call Call) (Handle, error) {
	gasLimit, err := t.Estimate(ctx, call)
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}
	return t.sendWithGas(ctx, call, gasLimit)
}

func (t *Transactor) sendWithGas(ctx context.Context, call Call, gasLimit uint64) (Handle, error) {
	nonce, err := t.backend.PendingNonceAt(ctx, t.from)
	if err != nil {
		return nil, fmt.Errorf("get nonce: %w", err)
	}
	gasPrice, err := t.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get gas price: %w", err)
	}

	value := call.Value
	if value == nil {
		value = new(big.Int)
	}
	tx := types.NewTransaction(nonce, call.To, value, gasLimit, gasPrice, call.Data)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(t.chainID), t.key)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	if err := t.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send transaction: %w", err)
	}

	t.logger.Info("transaction sent",
		zap.String("hash", signed.Hash().Hex()),
		zap.String("to", call.To.Hex()),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas", gasLimit),
		zap.String("summary", call.Summary),
	)
	return &sentTx{backend: t.backend, tx: signed, summary: call.Summary}, nil
}

// Approve grants spender an unlimited allowance on token. When the unlimited
// approval cannot be estimated (some tokens reject it), it approves exactly
// amount instead.
func (t *Transactor) Approve(ctx context.Context, token model.Token, spender common.Address, amount *big.Int) (Handle, error) {
	if token.Native {
		return nil, ErrNativeApproval
	}
	summary := "Approve " + token.Display()

	data, err := dex.PackApprove(spender, abi.MaxUint256)
	if err != nil {
		return nil, err
	}
	call := Call{To: token.Address, Data: data, Summary: summary}
	gas, err := t.Estimate(ctx, call)
	if err == nil {
		return t.sendWithGas(ctx, call, gas)
	}

	t.logger.Warn("unlimited approval not estimable, approving exact amount",
		zap.String("token", token.Address.Hex()),
		zap.Error(err),
	)
	if amount == nil {
		return nil, fmt.Errorf("estimate approve: %w", err)
	}
	data, err = dex.PackApprove(spender, amount)
	if err != nil {
		return nil, err
	}
	return t.Send(ctx, Call{To: token.Address, Data: data, Summary: summary})
}
