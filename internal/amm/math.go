// Package amm implements the constant-product arithmetic behind zap quotes:
// swap outputs, liquidity minting, pool shares, price impact and slippage.
package amm

import (
	"math/big"

	"zapkit/internal/model"
)

// MinimumLiquidity is locked forever on the first mint of a pair.
var MinimumLiquidity = big.NewInt(1_000)

var (
	bpsDenom = big.NewInt(10_000)
	two      = big.NewInt(2)
	four     = big.NewInt(4)
)

// GetAmountOut returns the output of swapping amountIn against the reserves,
// charging feeBps on the input. dst, t1 and t2 are reusable temporaries.
func GetAmountOut(dst, t1, t2 *big.Int, amountIn, reserveIn, reserveOut *big.Int, feeBps uint32) *big.Int {
	// t1 = amountIn * (10000 - fee)
	t1.Mul(amountIn, feeMultiplier(feeBps))
	// t2 = reserveIn * 10000 + t1
	t2.Mul(reserveIn, bpsDenom)
	t2.Add(t2, t1)
	// dst = t1 * reserveOut / t2
	dst.Mul(t1, reserveOut)
	return dst.Div(dst, t2)
}

// AmountOut is the allocating form of GetAmountOut. It returns
// ErrInsufficientLiquidity when either reserve is empty.
func AmountOut(amountIn, reserveIn, reserveOut *big.Int, feeBps uint32) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInsufficientInput
	}
	if reserveIn == nil || reserveOut == nil || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}
	var dst, t1, t2 big.Int
	out := GetAmountOut(&dst, &t1, &t2, amountIn, reserveIn, reserveOut, feeBps)
	return new(big.Int).Set(out), nil
}

// SwapInAmount returns how much of userIn to swap into the other side so that
// the remainder and the swap output deposit at the post-swap reserve ratio:
//
//	s = (sqrt(r^2 (D+n)^2 + 4 n D r a) - r (D+n)) / (2 n)
//
// where D = 10000 and n = 10000 - fee.
func SwapInAmount(reserveIn, userIn *big.Int, feeBps uint32) *big.Int {
	if reserveIn == nil || userIn == nil || reserveIn.Sign() <= 0 || userIn.Sign() <= 0 {
		return new(big.Int)
	}
	n := feeMultiplier(feeBps)
	sum := new(big.Int).Add(bpsDenom, n)

	// r^2 (D+n)^2
	left := new(big.Int).Mul(reserveIn, sum)
	left.Mul(left, left)
	// 4 n D r a
	right := new(big.Int).Mul(four, n)
	right.Mul(right, bpsDenom)
	right.Mul(right, reserveIn)
	right.Mul(right, userIn)

	root := left.Add(left, right)
	root.Sqrt(root)
	root.Sub(root, new(big.Int).Mul(reserveIn, sum))
	if root.Sign() <= 0 {
		return new(big.Int)
	}
	return root.Div(root, new(big.Int).Mul(two, n))
}

// LiquidityMinted returns the pool tokens minted for depositing amountA and
// amountB into reserves reserveA/reserveB with totalSupply outstanding. It
// follows the V2 pair: the smaller proportional side wins, and the first
// deposit mints sqrt(a*b) minus MinimumLiquidity.
func LiquidityMinted(totalSupply, reserveA, reserveB, amountA, amountB *big.Int) (*big.Int, error) {
	if amountA == nil || amountB == nil || amountA.Sign() <= 0 || amountB.Sign() <= 0 {
		return nil, ErrInsufficientInput
	}

	var liquidity *big.Int
	if totalSupply == nil || totalSupply.Sign() == 0 {
		liquidity = new(big.Int).Mul(amountA, amountB)
		liquidity.Sqrt(liquidity)
		liquidity.Sub(liquidity, MinimumLiquidity)
	} else {
		if reserveA == nil || reserveB == nil || reserveA.Sign() <= 0 || reserveB.Sign() <= 0 {
			return nil, ErrInsufficientLiquidity
		}
		fromA := new(big.Int).Mul(amountA, totalSupply)
		fromA.Div(fromA, reserveA)
		fromB := new(big.Int).Mul(amountB, totalSupply)
		fromB.Div(fromB, reserveB)
		liquidity = fromA
		if fromB.Cmp(fromA) < 0 {
			liquidity = fromB
		}
	}

	if liquidity.Sign() <= 0 {
		return nil, ErrInsufficientLiquidityMinted
	}
	return liquidity, nil
}

// LiquidityValue returns the reserves of token claimable by liquidity pool
// tokens out of totalSupply.
func LiquidityValue(pair model.Pair, token model.Token, totalSupply, liquidity *big.Int) (model.Amount, error) {
	if totalSupply == nil || totalSupply.Sign() <= 0 {
		return model.Amount{}, ErrInsufficientLiquidity
	}
	if liquidity == nil || liquidity.Cmp(totalSupply) > 0 {
		return model.Amount{}, ErrStaleSupply
	}
	reserve, err := pair.ReserveOf(token)
	if err != nil {
		return model.Amount{}, err
	}
	value := reserve.Mul(reserve, liquidity)
	value.Div(value, totalSupply)
	return model.NewAmount(token, value), nil
}

func feeMultiplier(feeBps uint32) *big.Int {
	if feeBps >= 10_000 {
		return new(big.Int)
	}
	return big.NewInt(int64(10_000 - feeBps))
}
