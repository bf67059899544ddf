package amm

import "errors"

var (
	ErrInsufficientInput           = errors.New("insufficient input amount")
	ErrInsufficientLiquidity       = errors.New("insufficient liquidity for this trade")
	ErrInsufficientLiquidityMinted = errors.New("insufficient liquidity minted")
	ErrStaleSupply                 = errors.New("liquidity exceeds total supply")
	ErrNoRoute                     = errors.New("no route found")
	ErrInvalidRoute                = errors.New("invalid route")
	ErrEmptyReserves               = errors.New("pool has empty reserves")
	ErrInvalidSlippage             = errors.New("slippage tolerance must be between 0 and 10000 bps")
)
