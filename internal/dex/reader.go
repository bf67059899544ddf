package dex

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"zapkit/internal/chain"
	"zapkit/internal/model"
)

// ErrPoolNotStaked is returned when the staking contract has no pool for a pair.
var ErrPoolNotStaked = errors.New("pair is not registered with the staking contract")

// Reader reads balances, allowances and pair state over eth_call. Read
// failures are retried with exponential backoff.
type Reader struct {
	client  *chain.Client
	chainID uint64
	tokens  *metaCache[model.Token]
	pairs   *metaCache[model.Pair]
	logger  *zap.Logger

	maxRetries int
	backoff    time.Duration
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithRetry sets the retry budget for read calls.
func WithRetry(maxRetries int, backoff time.Duration) ReaderOption {
	return func(r *Reader) {
		r.maxRetries = maxRetries
		r.backoff = backoff
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) ReaderOption {
	return func(r *Reader) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithTokens seeds the token cache, typically from configured token lists.
func WithTokens(tokens ...model.Token) ReaderOption {
	return func(r *Reader) {
		for _, token := range tokens {
			if !token.Native {
				r.tokens.put(token.Address, token)
			}
		}
	}
}

func NewReader(client *chain.Client, chainID uint64, opts ...ReaderOption) *Reader {
	r := &Reader{
		client:     client,
		chainID:    chainID,
		tokens:     newMetaCache[model.Token](),
		pairs:      newMetaCache[model.Pair](),
		logger:     zap.NewNop(),
		maxRetries: 2,
		backoff:    200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ChainID returns the chain the reader is bound to.
func (r *Reader) ChainID() uint64 {
	return r.chainID
}

func (r *Reader) call(ctx context.Context, to common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	var values []interface{}
	err := chain.WithRetry(ctx, r.maxRetries, r.backoff, func(ctx context.Context) error {
		var err error
		values, err = callMethod(ctx, r.client, to, parsed, method, args...)
		if err != nil {
			r.logger.Debug("read failed", zap.String("to", to.Hex()), zap.String("method", method), zap.Error(err))
		}
		return err
	})
	return values, err
}

func (r *Reader) callUint(ctx context.Context, to common.Address, parsed abi.ABI, method string, args ...interface{}) (*big.Int, error) {
	values, err := r.call(ctx, to, parsed, method, args...)
	if err != nil {
		return nil, err
	}
	value, err := asBigInt(values[0])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return value, nil
}

// Token returns metadata for an ERC20 token, loading it once.
func (r *Reader) Token(ctx context.Context, address common.Address) (model.Token, error) {
	if token, ok := r.tokens.get(address); ok {
		return token, nil
	}
	var token model.Token
	err := chain.WithRetry(ctx, r.maxRetries, r.backoff, func(ctx context.Context) error {
		var err error
		token, err = r.loadToken(ctx, address)
		return err
	})
	if err != nil {
		return model.Token{}, fmt.Errorf("token %s: %w", address.Hex(), err)
	}
	r.tokens.put(address, token)
	return token, nil
}

// Allowance returns how much spender may move of owner's token. Native
// currency needs no approval and reports the maximum.
func (r *Reader) Allowance(ctx context.Context, token model.Token, owner, spender common.Address) (*big.Int, error) {
	if token.Native {
		return new(big.Int).Set(abi.MaxUint256), nil
	}
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, err
	}
	return r.callUint(ctx, token.Address, parsed, "allowance", owner, spender)
}

// BalanceOf returns owner's balance of token, native or ERC20.
func (r *Reader) BalanceOf(ctx context.Context, token model.Token, owner common.Address) (*big.Int, error) {
	if token.Native {
		return r.NativeBalance(ctx, owner)
	}
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, err
	}
	return r.callUint(ctx, token.Address, parsed, "balanceOf", owner)
}

// NativeBalance returns owner's native currency balance.
func (r *Reader) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	var balance *big.Int
	err := chain.WithRetry(ctx, r.maxRetries, r.backoff, func(ctx context.Context) error {
		var err error
		balance, err = r.client.BalanceAt(ctx, owner, nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("native balance: %w", err)
	}
	return balance, nil
}

// TotalSupply returns the total supply of an ERC20 or pool token.
func (r *Reader) TotalSupply(ctx context.Context, token common.Address) (*big.Int, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, err
	}
	return r.callUint(ctx, token, parsed, "totalSupply")
}

// PermitNonce returns the EIP-2612 nonce of owner on token.
func (r *Reader) PermitNonce(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, err
	}
	return r.callUint(ctx, token, parsed, "nonces", owner)
}

// TokenName returns the on-chain name used in a token's EIP-712 domain.
func (r *Reader) TokenName(ctx context.Context, token common.Address) (string, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return "", err
	}
	values, err := r.call(ctx, token, parsed, "name")
	if err != nil {
		return "", err
	}
	name, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("name: unsupported type %T", values[0])
	}
	return name, nil
}

// Pair returns a pair with fresh reserves. Token metadata is cached.
func (r *Reader) Pair(ctx context.Context, address common.Address) (model.Pair, error) {
	parsed, err := PairABI()
	if err != nil {
		return model.Pair{}, fmt.Errorf("parse pair abi: %w", err)
	}

	pair, ok := r.pairs.get(address)
	if !ok {
		pair, err = r.pairTokens(ctx, parsed, address)
		if err != nil {
			return model.Pair{}, err
		}
		putPair(r.pairs, pair)
	}

	values, err := r.call(ctx, address, parsed, "getReserves")
	if err != nil {
		return model.Pair{}, err
	}
	if len(values) < 2 {
		return model.Pair{}, fmt.Errorf("getReserves: got %d values", len(values))
	}
	if pair.Reserve0, err = asBigInt(values[0]); err != nil {
		return model.Pair{}, fmt.Errorf("reserve0: %w", err)
	}
	if pair.Reserve1, err = asBigInt(values[1]); err != nil {
		return model.Pair{}, fmt.Errorf("reserve1: %w", err)
	}
	return pair, nil
}

func (r *Reader) pairTokens(ctx context.Context, parsed abi.ABI, address common.Address) (model.Pair, error) {
	pair := model.Pair{Address: address, FeeBps: model.DefaultFeeBps}
	for i, method := range []string{"token0", "token1"} {
		values, err := r.call(ctx, address, parsed, method)
		if err != nil {
			return model.Pair{}, err
		}
		tokenAddress, err := asAddress(values[0])
		if err != nil {
			return model.Pair{}, fmt.Errorf("%s: %w", method, err)
		}
		token, err := r.Token(ctx, tokenAddress)
		if err != nil {
			r.logger.Warn("token metadata fetch failed", zap.String("token", tokenAddress.Hex()), zap.Error(err))
			token = model.Token{ChainID: r.chainID, Address: tokenAddress, Decimals: 18}
		}
		if i == 0 {
			pair.Token0 = token
		} else {
			pair.Token1 = token
		}
	}
	return pair, nil
}

// PairFor looks up the pair of a and b on factory. ok is false when the
// factory has no such pair.
func (r *Reader) PairFor(ctx context.Context, factory, a, b common.Address) (common.Address, bool, error) {
	parsed, err := FactoryABI()
	if err != nil {
		return common.Address{}, false, err
	}
	values, err := r.call(ctx, factory, parsed, "getPair", a, b)
	if err != nil {
		return common.Address{}, false, err
	}
	pair, err := asAddress(values[0])
	if err != nil {
		return common.Address{}, false, fmt.Errorf("getPair: %w", err)
	}
	return pair, pair != (common.Address{}), nil
}

// StakingPool finds the staking pool id holding lp on chef.
func (r *Reader) StakingPool(ctx context.Context, chef, lp common.Address) (*big.Int, error) {
	parsed, err := ChefABI()
	if err != nil {
		return nil, err
	}
	length, err := r.callUint(ctx, chef, parsed, "poolLength")
	if err != nil {
		return nil, err
	}
	for pid := int64(0); pid < length.Int64(); pid++ {
		values, err := r.call(ctx, chef, parsed, "lpToken", big.NewInt(pid))
		if err != nil {
			return nil, err
		}
		if token, err := asAddress(values[0]); err == nil && token == lp {
			return big.NewInt(pid), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrPoolNotStaked, lp.Hex())
}

// StakedBalance returns the pool tokens user has deposited in pool pid.
func (r *Reader) StakedBalance(ctx context.Context, chef common.Address, pid *big.Int, user common.Address) (*big.Int, error) {
	parsed, err := ChefABI()
	if err != nil {
		return nil, err
	}
	return r.callUint(ctx, chef, parsed, "userInfo", pid, user)
}

// CandidatePairs returns every pair factory holds between two of tokens,
// with fresh reserves. Duplicate tokens and missing pairs are skipped.
func (r *Reader) CandidatePairs(ctx context.Context, factory common.Address, tokens []model.Token) ([]model.Pair, error) {
	seen := make(map[common.Address]bool)
	unique := make([]model.Token, 0, len(tokens))
	for _, token := range tokens {
		if token.Native || seen[token.Address] {
			continue
		}
		seen[token.Address] = true
		unique = append(unique, token)
	}

	pairs := make([]model.Pair, 0)
	found := make(map[common.Address]bool)
	for i := 0; i < len(unique); i++ {
		for j := i + 1; j < len(unique); j++ {
			address, ok, err := r.PairFor(ctx, factory, unique[i].Address, unique[j].Address)
			if err != nil {
				return nil, fmt.Errorf("getPair %s/%s: %w", unique[i].Display(), unique[j].Display(), err)
			}
			if !ok || found[address] {
				continue
			}
			found[address] = true
			pair, err := r.Pair(ctx, address)
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, pair)
		}
	}
	r.logger.Debug("candidate pairs loaded", zap.Int("tokens", len(unique)), zap.Int("pairs", len(pairs)))
	return pairs, nil
}
