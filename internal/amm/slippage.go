package amm

import (
	"math/big"

	"zapkit/internal/model"
)

// Slippage is a tolerance in basis points.
type Slippage uint32

const (
	// DefaultZapSlippage is the tolerance used by the zap page (5%).
	DefaultZapSlippage Slippage = 500
	// DefaultSwapSlippage is the tolerance used for plain swaps (0.5%).
	DefaultSwapSlippage Slippage = 50

	maxSlippage Slippage = 10_000
)

// Validate rejects tolerances above 100%.
func (s Slippage) Validate() error {
	if s > maxSlippage {
		return ErrInvalidSlippage
	}
	return nil
}

// Percent returns the tolerance as a Percent.
func (s Slippage) Percent() model.Percent {
	return model.PercentFromBps(uint32(s))
}

func (s Slippage) String() string {
	return s.Percent().Fixed(2) + "%"
}

// MinimumOutput returns floor(estimate * (10000 - s) / 10000). Tolerances
// above 100% floor at zero.
func MinimumOutput(estimate *big.Int, s Slippage) *big.Int {
	if estimate == nil || estimate.Sign() <= 0 {
		return new(big.Int)
	}
	if s >= maxSlippage {
		return new(big.Int)
	}
	out := new(big.Int).Mul(estimate, big.NewInt(int64(maxSlippage-s)))
	return out.Quo(out, bpsDenom)
}
