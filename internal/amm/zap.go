package amm

import (
	"fmt"
	"math/big"

	"zapkit/internal/model"
)

// SwapTarget is the contract the zapper hands the input to before depositing.
type SwapTarget int

const (
	// TargetWrappedNative wraps native input that is already one side of the pair.
	TargetWrappedNative SwapTarget = iota
	// TargetPair swaps underlying input directly in the pair.
	TargetPair
	// TargetRouter routes input through the router into one side of the pair.
	TargetRouter
)

func (t SwapTarget) String() string {
	switch t {
	case TargetWrappedNative:
		return "wrapped-native"
	case TargetPair:
		return "pair"
	default:
		return "router"
	}
}

// ZapRequest describes a single-asset deposit into Pair.
type ZapRequest struct {
	Pair        model.Pair
	TotalSupply *big.Int
	Input       model.Amount
	// Wrapped is the wrapped native token used in place of native input.
	Wrapped model.Token
	// Pairs are routing candidates used when Input is not a side of Pair.
	Pairs    []model.Pair
	MaxHops  int
	Slippage Slippage
}

// ZapQuote is everything the zap page shows and the zap call sends. The
// minimum output is computed once here and reused verbatim on submit.
type ZapQuote struct {
	Pair  model.Pair
	Input model.Amount
	// Trade is the routed swap into Intermediate, nil for underlying input.
	Trade        *Trade
	Intermediate model.Amount
	SwapIn       *big.Int
	Amount0      model.Amount
	Amount1      model.Amount
	Liquidity    model.Amount
	PoolShare    model.Percent
	PriceImpact  model.Percent
	Severity     Severity
	Slippage     Slippage
	MinimumOut   *big.Int
	Target       SwapTarget
}

// Underlying reports whether the input is one side of the pair.
func (q *ZapQuote) Underlying() bool {
	return q.Trade == nil
}

// MultiHop reports whether the routed trade passes through other tokens.
func (q *ZapQuote) MultiHop() bool {
	return q.Trade != nil && len(q.Trade.Route.Path) > 2
}

// QuoteZap prices a zap: route the input into one side of the pair, swap the
// optimal share of it to the other side, and mint liquidity with both.
func QuoteZap(req ZapRequest) (*ZapQuote, error) {
	if err := req.Slippage.Validate(); err != nil {
		return nil, err
	}
	if req.Input.IsZero() {
		return nil, ErrInsufficientInput
	}
	if req.TotalSupply == nil || req.TotalSupply.Sign() == 0 ||
		req.Pair.Reserve0 == nil || req.Pair.Reserve0.Sign() == 0 ||
		req.Pair.Reserve1 == nil || req.Pair.Reserve1.Sign() == 0 {
		return nil, ErrEmptyReserves
	}

	routed := req.Input
	if req.Input.Token.Native {
		routed = model.NewAmount(req.Wrapped, req.Input.Raw)
	}

	if req.Pair.Involves(routed.Token) {
		quote, err := depositQuote(req, routed)
		if err != nil {
			return nil, err
		}
		quote.Target = TargetPair
		if req.Input.Token.Native {
			quote.Target = TargetWrappedNative
		}
		return finish(req, quote), nil
	}

	candidates := make([]model.Pair, 0, len(req.Pairs))
	for _, pair := range req.Pairs {
		if pair.Address != req.Pair.Address {
			candidates = append(candidates, pair)
		}
	}

	var best *ZapQuote
	var lastErr error = ErrNoRoute
	for _, side := range []model.Token{req.Pair.Token0, req.Pair.Token1} {
		trade, err := BestTradeExactIn(candidates, routed, side, req.MaxHops)
		if err != nil {
			lastErr = err
			continue
		}
		quote, err := depositQuote(req, trade.OutputAmount)
		if err != nil {
			lastErr = err
			continue
		}
		quote.Trade = trade
		if best == nil || quote.Liquidity.Raw.Cmp(best.Liquidity.Raw) > 0 {
			best = quote
		}
	}
	if best == nil {
		return nil, fmt.Errorf("zap %s into %s: %w", req.Input.Token.Display(), req.Pair.Symbol(), lastErr)
	}
	best.Target = TargetRouter
	return finish(req, best), nil
}

// depositQuote splits intermediate between both sides of the pair and mints.
func depositQuote(req ZapRequest, intermediate model.Amount) (*ZapQuote, error) {
	pair := req.Pair
	side := intermediate.Token
	other := pair.Other(side)

	reserveIn, err := pair.ReserveOf(side)
	if err != nil {
		return nil, err
	}
	reserveOut, err := pair.ReserveOf(other)
	if err != nil {
		return nil, err
	}

	swapIn := SwapInAmount(reserveIn, intermediate.Raw, pair.Fee())
	if swapIn.Sign() == 0 {
		return nil, ErrInsufficientInput
	}
	swapOut, err := AmountOut(swapIn, reserveIn, reserveOut, pair.Fee())
	if err != nil {
		return nil, err
	}
	if swapOut.Sign() == 0 {
		return nil, ErrInsufficientInput
	}

	keep := new(big.Int).Sub(intermediate.Raw, swapIn)
	post := pair.WithReserves(side,
		new(big.Int).Add(reserveIn, swapIn),
		new(big.Int).Sub(reserveOut, swapOut),
	)
	amount0, amount1 := keep, swapOut
	if !pair.Token0.Equal(side) {
		amount0, amount1 = swapOut, keep
	}

	minted, err := LiquidityMinted(req.TotalSupply, post.Reserve0, post.Reserve1, amount0, amount1)
	if err != nil {
		return nil, err
	}

	internal, err := NewRoute([]model.Pair{pair}, side)
	if err != nil {
		return nil, err
	}
	swap, err := NewTradeExactIn(internal, model.NewAmount(side, swapIn))
	if err != nil {
		return nil, err
	}

	quote := &ZapQuote{
		Pair:         pair,
		Input:        model.NewAmount(req.Input.Token, req.Input.Raw),
		Intermediate: model.NewAmount(side, intermediate.Raw),
		SwapIn:       swapIn,
		Liquidity:    model.NewAmount(pair.LiquidityToken(), minted),
		Amount0:      model.NewAmount(pair.Token0, amount0),
		Amount1:      model.NewAmount(pair.Token1, amount1),
		PriceImpact:  PriceBreakdown(swap).PriceImpact,
	}
	return quote, nil
}

func finish(req ZapRequest, quote *ZapQuote) *ZapQuote {
	if quote.Trade != nil {
		routed := PriceBreakdown(quote.Trade).PriceImpact
		if quote.PriceImpact.Less(routed) {
			quote.PriceImpact = routed
		}
	}
	after := new(big.Int).Add(req.TotalSupply, quote.Liquidity.Raw)
	quote.PoolShare = model.NewPercent(quote.Liquidity.Raw, after)
	quote.Severity = WarningSeverity(&quote.PriceImpact)
	quote.Slippage = req.Slippage
	quote.MinimumOut = MinimumOutput(quote.Liquidity.Raw, req.Slippage)
	return quote
}
