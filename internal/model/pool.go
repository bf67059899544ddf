package model

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultFeeBps is the swap fee charged by constant-product pairs (0.3%).
const DefaultFeeBps uint32 = 30

// LiquidityDecimals is the decimals of every V2 liquidity token.
const LiquidityDecimals uint8 = 18

// Pair is a constant-product pool snapshot. Reserves are read from chain and
// never mutated in place.
type Pair struct {
	Address  common.Address `json:"address"`
	Token0   Token          `json:"token0"`
	Token1   Token          `json:"token1"`
	Reserve0 *big.Int       `json:"reserve0"`
	Reserve1 *big.Int       `json:"reserve1"`
	FeeBps   uint32         `json:"fee_bps"`
}

// LiquidityToken returns the pool token minted by this pair.
func (p Pair) LiquidityToken() Token {
	return Token{
		ChainID:  p.Token0.ChainID,
		Address:  p.Address,
		Decimals: LiquidityDecimals,
		Symbol:   p.Symbol() + " LP",
		Name:     p.Symbol() + " Liquidity",
	}
}

// Symbol returns "TOKEN0/TOKEN1".
func (p Pair) Symbol() string {
	return p.Token0.Display() + "/" + p.Token1.Display()
}

// Involves reports whether token is one side of the pair.
func (p Pair) Involves(token Token) bool {
	return p.Token0.Equal(token) || p.Token1.Equal(token)
}

// Other returns the opposite side of token.
func (p Pair) Other(token Token) Token {
	if p.Token0.Equal(token) {
		return p.Token1
	}
	return p.Token0
}

// ReserveOf returns a copy of the reserve held for token.
func (p Pair) ReserveOf(token Token) (*big.Int, error) {
	switch {
	case p.Token0.Equal(token):
		return copyInt(p.Reserve0), nil
	case p.Token1.Equal(token):
		return copyInt(p.Reserve1), nil
	default:
		return nil, fmt.Errorf("token %s not in pair %s", token.Display(), p.Address.Hex())
	}
}

// Fee returns the pair fee, defaulting to DefaultFeeBps.
func (p Pair) Fee() uint32 {
	if p.FeeBps == 0 {
		return DefaultFeeBps
	}
	return p.FeeBps
}

// WithReserves returns a copy of p with the reserve of token set to in and the
// other side to out.
func (p Pair) WithReserves(token Token, in, out *big.Int) Pair {
	next := p
	if p.Token0.Equal(token) {
		next.Reserve0, next.Reserve1 = copyInt(in), copyInt(out)
	} else {
		next.Reserve1, next.Reserve0 = copyInt(in), copyInt(out)
	}
	return next
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
