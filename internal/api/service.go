package api

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"zapkit/internal/amm"
	"zapkit/internal/dex"
	"zapkit/internal/model"
)

// ErrUnknownCurrency is returned when a currency id is neither the native
// symbol nor a token address.
var ErrUnknownCurrency = errors.New("unknown currency")

// Reader is the chain state the service needs. *dex.Reader satisfies it.
type Reader interface {
	Token(ctx context.Context, address common.Address) (model.Token, error)
	Pair(ctx context.Context, address common.Address) (model.Pair, error)
	TotalSupply(ctx context.Context, token common.Address) (*big.Int, error)
	BalanceOf(ctx context.Context, token model.Token, owner common.Address) (*big.Int, error)
	CandidatePairs(ctx context.Context, factory common.Address, tokens []model.Token) ([]model.Pair, error)
	StakingPool(ctx context.Context, chef, lp common.Address) (*big.Int, error)
	StakedBalance(ctx context.Context, chef common.Address, pid *big.Int, user common.Address) (*big.Int, error)
}

// Service prices zaps and values positions on one chain.
type Service struct {
	chain    model.Chain
	reader   Reader
	bases    []model.Token
	maxHops  int
	slippage amm.Slippage
	logger   *zap.Logger
}

// ServiceConfig tunes quoting. Zero values take the zap defaults.
type ServiceConfig struct {
	Bases    []model.Token
	MaxHops  int
	Slippage amm.Slippage
	Logger   *zap.Logger
}

// NewService builds a service for chain.
func NewService(chain model.Chain, reader Reader, cfg ServiceConfig) *Service {
	if cfg.MaxHops <= 0 {
		cfg.MaxHops = amm.DefaultMaxHops
	}
	if cfg.Slippage == 0 {
		cfg.Slippage = amm.DefaultZapSlippage
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Service{
		chain:    chain,
		reader:   reader,
		bases:    cfg.Bases,
		maxHops:  cfg.MaxHops,
		slippage: cfg.Slippage,
		logger:   cfg.Logger.With(zap.Uint64("chain_id", chain.ID)),
	}
}

// Chain returns the chain the service reads.
func (s *Service) Chain() model.Chain {
	return s.chain
}

// Quote prices a zap of amount of currency into pool. A zero slippage uses
// the service default.
func (s *Service) Quote(ctx context.Context, pool common.Address, currency, amount string, slippage amm.Slippage) (*amm.ZapQuote, *big.Int, error) {
	if slippage == 0 {
		slippage = s.slippage
	}
	pair, err := s.reader.Pair(ctx, pool)
	if err != nil {
		return nil, nil, fmt.Errorf("load pair: %w", err)
	}
	supply, err := s.reader.TotalSupply(ctx, pool)
	if err != nil {
		return nil, nil, fmt.Errorf("load total supply: %w", err)
	}
	token, err := s.resolveCurrency(ctx, currency)
	if err != nil {
		return nil, nil, err
	}
	input, err := model.ParseAmount(token, amount)
	if err != nil {
		return nil, nil, err
	}

	req := amm.ZapRequest{
		Pair:        pair,
		TotalSupply: supply,
		Input:       input,
		Wrapped:     s.chain.Wrapped(),
		MaxHops:     s.maxHops,
		Slippage:    slippage,
	}
	routed := token
	if routed.Native {
		routed = req.Wrapped
	}
	if !pair.Involves(routed) {
		tokens := append([]model.Token{routed, pair.Token0, pair.Token1, req.Wrapped}, s.bases...)
		req.Pairs, err = s.reader.CandidatePairs(ctx, s.chain.Factory, tokens)
		if err != nil {
			return nil, nil, fmt.Errorf("load routing pairs: %w", err)
		}
	}

	quote, err := amm.QuoteZap(req)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Debug("quote computed",
		zap.String("pool", pool.Hex()),
		zap.String("input", input.Exact()),
		zap.String("liquidity", quote.Liquidity.Exact()),
		zap.Stringer("severity", quote.Severity),
	)
	return quote, supply, nil
}

// Position values account's wallet and staked pool tokens in pool.
func (s *Service) Position(ctx context.Context, pool, account common.Address) (amm.Position, error) {
	pair, err := s.reader.Pair(ctx, pool)
	if err != nil {
		return amm.Position{}, fmt.Errorf("load pair: %w", err)
	}
	supply, err := s.reader.TotalSupply(ctx, pool)
	if err != nil {
		return amm.Position{}, fmt.Errorf("load total supply: %w", err)
	}
	wallet, err := s.reader.BalanceOf(ctx, pair.LiquidityToken(), account)
	if err != nil {
		return amm.Position{}, fmt.Errorf("load pool token balance: %w", err)
	}
	staked, err := s.staked(ctx, pool, account)
	if err != nil {
		return amm.Position{}, err
	}
	return amm.NewPosition(pair, supply, wallet, staked), nil
}

func (s *Service) staked(ctx context.Context, pool, account common.Address) (*big.Int, error) {
	if s.chain.Chef == (common.Address{}) {
		return nil, nil
	}
	pid, err := s.reader.StakingPool(ctx, s.chain.Chef, pool)
	if errors.Is(err, dex.ErrPoolNotStaked) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find staking pool: %w", err)
	}
	staked, err := s.reader.StakedBalance(ctx, s.chain.Chef, pid, account)
	if err != nil {
		return nil, fmt.Errorf("load staked balance: %w", err)
	}
	return staked, nil
}

func (s *Service) resolveCurrency(ctx context.Context, id string) (model.Token, error) {
	native := s.chain.Native()
	if model.IsNativeID(id, native.Symbol) {
		return native, nil
	}
	if !common.IsHexAddress(id) {
		return model.Token{}, fmt.Errorf("%w: %q", ErrUnknownCurrency, id)
	}
	token, err := s.reader.Token(ctx, common.HexToAddress(id))
	if err != nil {
		return model.Token{}, fmt.Errorf("load token: %w", err)
	}
	return token, nil
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}
