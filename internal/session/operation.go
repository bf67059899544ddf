package session

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"zapkit/internal/amm"
	"zapkit/internal/dex"
	"zapkit/internal/model"
	"zapkit/internal/permit"
	"zapkit/internal/txn"
)

// DefaultDeadline is how long sent swaps and permits stay valid.
const DefaultDeadline = 20 * time.Minute

// Operation is the transaction a Machine gets approved and submitted.
type Operation interface {
	Name() string
	// Token is the asset the spender needs an allowance on.
	Token() model.Token
	Spender() common.Address
	Amount() *big.Int
	SupportsPermit() bool
	// Submit sends the operation. sig is the permit gathered for it, or nil
	// when an on-chain allowance covers the amount.
	Submit(ctx context.Context, sig *permit.Signature) (txn.Handle, error)
	// Settle reads the pool-token balance after a successful submission.
	Settle(ctx context.Context, receipt *types.Receipt) (*big.Int, error)
	Summary() string
	// Record describes the operation for the journal.
	Record() model.ZapRecord
}

// ZapOperation deposits a single asset through the zapper. Everything it
// sends comes from the quote it was built with.
type ZapOperation struct {
	chain    model.Chain
	quote    *amm.ZapQuote
	owner    common.Address
	sender   Sender
	reader   ChainReader
	decoder  *dex.ReceiptDecoder
	now      func() time.Time
	deadline time.Duration
}

// NewZapOperation builds the zap of quote for owner on chain. now dates the
// router swap deadline; nil means time.Now.
func NewZapOperation(chain model.Chain, quote *amm.ZapQuote, owner common.Address, sender Sender, reader ChainReader, now func() time.Time) *ZapOperation {
	decoder, _ := dex.NewReceiptDecoder(chain.ID)
	if now == nil {
		now = time.Now
	}
	return &ZapOperation{
		chain:    chain,
		quote:    quote,
		owner:    owner,
		sender:   sender,
		reader:   reader,
		decoder:  decoder,
		now:      now,
		deadline: DefaultDeadline,
	}
}

func (z *ZapOperation) Name() string { return "zap" }

func (z *ZapOperation) Token() model.Token { return z.quote.Input.Token }

func (z *ZapOperation) Spender() common.Address { return z.chain.Zapper }

func (z *ZapOperation) Amount() *big.Int { return z.quote.Input.Raw }

func (z *ZapOperation) SupportsPermit() bool { return false }

// Quote returns the quote the operation sends.
func (z *ZapOperation) Quote() *amm.ZapQuote { return z.quote }

func (z *ZapOperation) Summary() string {
	return "Deposit " + z.quote.Pair.Symbol()
}

// Call assembles the zapIn transaction.
func (z *ZapOperation) Call() (txn.Call, error) {
	q := z.quote
	call := dex.ZapInCall{
		Pair:          q.Pair.Address,
		Amount:        new(big.Int).Set(q.Input.Raw),
		MinPoolTokens: new(big.Int).Set(q.MinimumOut),
	}
	var value *big.Int
	if q.Input.Token.Native {
		value = new(big.Int).Set(q.Input.Raw)
	} else {
		call.FromToken = q.Input.Token.Address
	}

	switch q.Target {
	case amm.TargetWrappedNative:
		call.SwapTarget = z.chain.WrappedNative
	case amm.TargetPair:
		call.SwapTarget = q.Pair.Address
	default:
		call.SwapTarget = z.chain.Router
		path := make([]common.Address, len(q.Trade.Route.Path))
		for i, token := range q.Trade.Route.Path {
			path[i] = token.Address
		}
		deadline := big.NewInt(z.now().Add(z.deadline).Unix())
		swapData, err := dex.PackSwapData(q.Trade.InputAmount.Raw, q.Trade.MinimumAmountOut(q.Slippage), path, z.chain.Zapper, deadline)
		if err != nil {
			return txn.Call{}, err
		}
		call.SwapData = swapData
	}

	data, err := dex.PackZapIn(call)
	if err != nil {
		return txn.Call{}, err
	}
	return txn.Call{To: z.chain.Zapper, Value: value, Data: data, Summary: z.Summary()}, nil
}

func (z *ZapOperation) Submit(ctx context.Context, _ *permit.Signature) (txn.Handle, error) {
	call, err := z.Call()
	if err != nil {
		return nil, err
	}
	return z.sender.Send(ctx, call)
}

// Settle re-reads the wallet pool-token balance. The minted amount decoded
// from the receipt is used when the read fails.
func (z *ZapOperation) Settle(ctx context.Context, receipt *types.Receipt) (*big.Int, error) {
	balance, err := z.reader.BalanceOf(ctx, z.quote.Pair.LiquidityToken(), z.owner)
	if err == nil {
		return balance, nil
	}
	if z.decoder != nil && receipt != nil {
		if minted := z.decoder.MintedTo(receipt, z.quote.Pair.Address, z.owner); minted.Sign() > 0 {
			return minted, nil
		}
	}
	return nil, fmt.Errorf("read pool token balance: %w", err)
}

func (z *ZapOperation) Record() model.ZapRecord {
	return model.ZapRecord{
		Operation:  z.Name(),
		ChainID:    z.chain.ID,
		Account:    z.owner.Hex(),
		Pool:       z.quote.Pair.Address.Hex(),
		Token:      z.quote.Input.Token.ID(),
		Amount:     z.quote.Input.Raw.String(),
		MinimumOut: z.quote.MinimumOut.String(),
		Summary:    z.Summary(),
	}
}

// StakeOperation deposits pool tokens into the staking contract, with a
// permit when one was gathered.
type StakeOperation struct {
	chain  model.Chain
	pair   model.Pair
	pid    *big.Int
	amount *big.Int
	owner  common.Address
	sender Sender
	reader ChainReader
}

// NewStakeOperation stakes amount of pair's pool token in pool pid.
func NewStakeOperation(chain model.Chain, pair model.Pair, pid, amount *big.Int, owner common.Address, sender Sender, reader ChainReader) *StakeOperation {
	return &StakeOperation{
		chain:  chain,
		pair:   pair,
		pid:    new(big.Int).Set(pid),
		amount: new(big.Int).Set(amount),
		owner:  owner,
		sender: sender,
		reader: reader,
	}
}

func (s *StakeOperation) Name() string { return "stake" }

func (s *StakeOperation) Token() model.Token { return s.pair.LiquidityToken() }

func (s *StakeOperation) Spender() common.Address { return s.chain.Chef }

func (s *StakeOperation) Amount() *big.Int { return s.amount }

func (s *StakeOperation) SupportsPermit() bool { return true }

func (s *StakeOperation) Summary() string {
	return "Deposit " + s.pair.Symbol()
}

func (s *StakeOperation) Submit(ctx context.Context, sig *permit.Signature) (txn.Handle, error) {
	var (
		data []byte
		err  error
	)
	if sig != nil {
		data, err = dex.PackDepositWithPermit(s.pid, s.amount, sig.Deadline, sig.V, sig.R, sig.S)
	} else {
		data, err = dex.PackDeposit(s.pid, s.amount)
	}
	if err != nil {
		return nil, err
	}
	return s.sender.Send(ctx, txn.Call{To: s.chain.Chef, Data: data, Summary: s.Summary()})
}

func (s *StakeOperation) Settle(ctx context.Context, _ *types.Receipt) (*big.Int, error) {
	balance, err := s.reader.BalanceOf(ctx, s.pair.LiquidityToken(), s.owner)
	if err != nil {
		return nil, fmt.Errorf("read pool token balance: %w", err)
	}
	return balance, nil
}

func (s *StakeOperation) Record() model.ZapRecord {
	return model.ZapRecord{
		Operation: s.Name(),
		ChainID:   s.chain.ID,
		Account:   s.owner.Hex(),
		Pool:      s.pair.Address.Hex(),
		Token:     s.pair.Address.Hex(),
		Amount:    s.amount.String(),
		Summary:   s.Summary(),
	}
}
