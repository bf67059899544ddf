package model

import (
	"math/big"
	"strings"
)

// Percent is an exact fraction rendered as a percentage.
type Percent struct {
	r *big.Rat
}

// NewPercent returns num/den. den must be non-zero.
func NewPercent(num, den *big.Int) Percent {
	return Percent{r: new(big.Rat).SetFrac(num, den)}
}

// PercentFromBps converts basis points into a Percent.
func PercentFromBps(bps uint32) Percent {
	return Percent{r: big.NewRat(int64(bps), 10_000)}
}

// PercentFromRat copies r.
func PercentFromRat(r *big.Rat) Percent {
	if r == nil {
		return Percent{r: new(big.Rat)}
	}
	return Percent{r: new(big.Rat).Set(r)}
}

// Rat returns a copy of the underlying fraction (1 == 100%).
func (p Percent) Rat() *big.Rat {
	if p.r == nil {
		return new(big.Rat)
	}
	return new(big.Rat).Set(p.r)
}

func (p Percent) Sub(other Percent) Percent {
	return Percent{r: new(big.Rat).Sub(p.Rat(), other.Rat())}
}

func (p Percent) Cmp(other Percent) int {
	return p.Rat().Cmp(other.Rat())
}

func (p Percent) Less(other Percent) bool {
	return p.Cmp(other) < 0
}

func (p Percent) Sign() int {
	return p.Rat().Sign()
}

// Fixed renders the percentage value (not the fraction) with places decimals.
func (p Percent) Fixed(places int) string {
	scaled := new(big.Rat).Mul(p.Rat(), big.NewRat(100, 1))
	return scaled.FloatString(places)
}

// Significant renders the percentage value trimmed to digits significant digits.
func (p Percent) Significant(digits int) string {
	return significant(p.Fixed(18), digits)
}

// Display renders a pool share the way position cards do: two decimals, with
// "<0.01" for dust.
func (p Percent) Display() string {
	text := p.Fixed(2)
	if text == "0.00" && p.Sign() > 0 {
		return "<0.01%"
	}
	return strings.TrimSpace(text) + "%"
}

func (p Percent) String() string {
	return p.Fixed(2) + "%"
}
