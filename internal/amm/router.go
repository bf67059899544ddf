package amm

import (
	"math/big"

	"zapkit/internal/model"
)

// DefaultMaxHops bounds route length when multihop is enabled.
const DefaultMaxHops = 3

// BestTradeExactIn searches pairs depth-first for the route from amountIn's
// token to tokenOut that yields the largest output, using at most maxHops
// pairs. Pairs with empty reserves are skipped.
func BestTradeExactIn(pairs []model.Pair, amountIn model.Amount, tokenOut model.Token, maxHops int) (*Trade, error) {
	if amountIn.IsZero() {
		return nil, ErrInsufficientInput
	}
	if maxHops <= 0 {
		maxHops = 1
	}
	if amountIn.Token.Equal(tokenOut) {
		return nil, ErrInvalidRoute
	}

	s := search{
		pairs:    pairs,
		tokenOut: tokenOut,
		maxHops:  maxHops,
		used:     make([]bool, len(pairs)),
	}
	s.walk(amountIn.Token, amountIn.Raw, nil)

	if s.best == nil {
		return nil, ErrNoRoute
	}
	route, err := NewRoute(s.best, amountIn.Token)
	if err != nil {
		return nil, err
	}
	return NewTradeExactIn(route, amountIn)
}

type search struct {
	pairs    []model.Pair
	tokenOut model.Token
	maxHops  int
	used     []bool

	best    []model.Pair
	bestOut *big.Int
}

func (s *search) walk(current model.Token, amount *big.Int, hops []model.Pair) {
	for i, pair := range s.pairs {
		if s.used[i] || !pair.Involves(current) {
			continue
		}
		next := pair.Other(current)
		reserveIn, _ := pair.ReserveOf(current)
		reserveOut, _ := pair.ReserveOf(next)
		out, err := AmountOut(amount, reserveIn, reserveOut, pair.Fee())
		if err != nil || out.Sign() == 0 {
			continue
		}

		path := append(append([]model.Pair(nil), hops...), pair)
		if next.Equal(s.tokenOut) {
			if s.bestOut == nil || out.Cmp(s.bestOut) > 0 {
				s.best = path
				s.bestOut = out
			}
			continue
		}
		if len(path) < s.maxHops {
			s.used[i] = true
			s.walk(next, out, path)
			s.used[i] = false
		}
	}
}
