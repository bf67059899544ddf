package amm

import (
	"math/big"

	"zapkit/internal/model"
)

// Severity is the warning level shown for a price impact.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityBlocking
)

var (
	impactLow      = big.NewRat(1, 100)
	impactMedium   = big.NewRat(3, 100)
	impactHigh     = big.NewRat(5, 100)
	impactBlocking = big.NewRat(15, 100)
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityBlocking:
		return "blocking"
	default:
		return "none"
	}
}

// Blocking reports whether execution must be refused.
func (s Severity) Blocking() bool {
	return s >= SeverityBlocking
}

// WarningSeverity classifies a price impact. A nil impact is SeverityNone.
func WarningSeverity(impact *model.Percent) Severity {
	if impact == nil {
		return SeverityNone
	}
	r := impact.Rat()
	switch {
	case r.Cmp(impactBlocking) >= 0:
		return SeverityBlocking
	case r.Cmp(impactHigh) >= 0:
		return SeverityHigh
	case r.Cmp(impactMedium) >= 0:
		return SeverityMedium
	case r.Cmp(impactLow) >= 0:
		return SeverityLow
	default:
		return SeverityNone
	}
}

// RealizedLPFeePercent returns 1 - prod(1 - fee) over the route's pairs.
func RealizedLPFeePercent(route Route) model.Percent {
	kept := big.NewRat(1, 1)
	for _, pair := range route.Pairs {
		kept.Mul(kept, big.NewRat(int64(10_000-pair.Fee()), 10_000))
	}
	return model.PercentFromRat(new(big.Rat).Sub(big.NewRat(1, 1), kept))
}

// Breakdown splits a trade's price impact into the part paid as LP fees and
// the part caused by moving the reserves.
type Breakdown struct {
	RealizedLPFee model.Amount
	PriceImpact   model.Percent
}

// PriceBreakdown returns the LP fee paid in input units and the price impact
// net of that fee.
func PriceBreakdown(trade *Trade) Breakdown {
	if trade == nil {
		return Breakdown{}
	}
	fee := RealizedLPFeePercent(trade.Route)
	paid := new(big.Rat).Mul(new(big.Rat).SetInt(trade.InputAmount.Raw), fee.Rat())
	feeRaw := new(big.Int).Quo(paid.Num(), paid.Denom())
	return Breakdown{
		RealizedLPFee: model.NewAmount(trade.InputAmount.Token, feeRaw),
		PriceImpact:   trade.PriceImpact.Sub(fee),
	}
}
