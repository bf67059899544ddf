package amm

import (
	"fmt"
	"math/big"

	"zapkit/internal/model"
)

// Route is an ordered list of pairs connecting Input to Output.
type Route struct {
	Pairs  []model.Pair
	Path   []model.Token
	Input  model.Token
	Output model.Token
}

// NewRoute validates that pairs form a connected path starting at input.
func NewRoute(pairs []model.Pair, input model.Token) (Route, error) {
	if len(pairs) == 0 {
		return Route{}, ErrInvalidRoute
	}
	path := make([]model.Token, 0, len(pairs)+1)
	path = append(path, input)
	current := input
	for i, pair := range pairs {
		if !pair.Involves(current) {
			return Route{}, fmt.Errorf("%w: hop %d (%s) does not contain %s", ErrInvalidRoute, i, pair.Symbol(), current.Display())
		}
		current = pair.Other(current)
		path = append(path, current)
	}
	return Route{
		Pairs:  append([]model.Pair(nil), pairs...),
		Path:   path,
		Input:  input,
		Output: current,
	}, nil
}

// MidPrice returns the pre-trade price of Output in Input raw units.
func (r Route) MidPrice() (*big.Rat, error) {
	price := big.NewRat(1, 1)
	for i, pair := range r.Pairs {
		in, err := pair.ReserveOf(r.Path[i])
		if err != nil {
			return nil, err
		}
		out, err := pair.ReserveOf(r.Path[i+1])
		if err != nil {
			return nil, err
		}
		if in.Sign() == 0 || out.Sign() == 0 {
			return nil, ErrInsufficientLiquidity
		}
		price.Mul(price, new(big.Rat).SetFrac(out, in))
	}
	return price, nil
}

// Symbols renders the path as "A > B > C".
func (r Route) Symbols() string {
	text := ""
	for i, token := range r.Path {
		if i > 0 {
			text += " > "
		}
		text += token.Display()
	}
	return text
}

// Trade is an exact-input swap along a route.
type Trade struct {
	Route          Route
	InputAmount    model.Amount
	OutputAmount   model.Amount
	HopAmounts     []*big.Int
	ExecutionPrice *big.Rat
	PriceImpact    model.Percent
}

// NewTradeExactIn simulates swapping amountIn along route.
func NewTradeExactIn(route Route, amountIn model.Amount) (*Trade, error) {
	if !amountIn.Token.Equal(route.Input) {
		return nil, model.ErrTokenMismatch
	}
	if amountIn.IsZero() {
		return nil, ErrInsufficientInput
	}

	amounts := make([]*big.Int, 0, len(route.Pairs)+1)
	amounts = append(amounts, new(big.Int).Set(amountIn.Raw))
	current := amountIn.Raw
	for i, pair := range route.Pairs {
		reserveIn, err := pair.ReserveOf(route.Path[i])
		if err != nil {
			return nil, err
		}
		reserveOut, err := pair.ReserveOf(route.Path[i+1])
		if err != nil {
			return nil, err
		}
		out, err := AmountOut(current, reserveIn, reserveOut, pair.Fee())
		if err != nil {
			return nil, err
		}
		if out.Sign() == 0 {
			return nil, ErrInsufficientLiquidity
		}
		amounts = append(amounts, out)
		current = out
	}

	mid, err := route.MidPrice()
	if err != nil {
		return nil, err
	}
	impact := priceImpact(mid, amountIn.Raw, current)

	return &Trade{
		Route:          route,
		InputAmount:    model.NewAmount(route.Input, amountIn.Raw),
		OutputAmount:   model.NewAmount(route.Output, current),
		HopAmounts:     amounts,
		ExecutionPrice: new(big.Rat).SetFrac(current, amountIn.Raw),
		PriceImpact:    impact,
	}, nil
}

// MinimumAmountOut applies slippage to the trade output.
func (t *Trade) MinimumAmountOut(slippage Slippage) *big.Int {
	return MinimumOutput(t.OutputAmount.Raw, slippage)
}

// priceImpact is (quoted - out) / quoted where quoted converts in at mid.
func priceImpact(mid *big.Rat, in, out *big.Int) model.Percent {
	quoted := new(big.Rat).Mul(new(big.Rat).SetInt(in), mid)
	if quoted.Sign() == 0 {
		return model.PercentFromRat(nil)
	}
	diff := new(big.Rat).Sub(quoted, new(big.Rat).SetInt(out))
	return model.PercentFromRat(diff.Quo(diff, quoted))
}
