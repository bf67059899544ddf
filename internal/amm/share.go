package amm

import (
	"math/big"

	"zapkit/internal/model"
)

// PoolShare returns user/total. ok is false when either value is missing,
// total is zero, or total is below user: the two reads were observed out of
// order and any percentage would be wrong.
func PoolShare(user, total *big.Int) (model.Percent, bool) {
	if user == nil || total == nil || total.Sign() <= 0 || total.Cmp(user) < 0 {
		return model.Percent{}, false
	}
	return model.NewPercent(user, total), true
}

// Position is what a position card shows for one account in one pair.
type Position struct {
	Pair        model.Pair
	TotalSupply *big.Int
	Wallet      model.Amount
	Staked      model.Amount
	PoolTokens  model.Amount

	Share      model.Percent
	ShareKnown bool
	Pooled0    model.Amount
	Pooled1    model.Amount
	// PooledKnown is false when the reserves could not be valued.
	PooledKnown bool
}

// NewPosition values wallet plus staked pool tokens against the pair.
// Staked may be nil.
func NewPosition(pair model.Pair, totalSupply, wallet, staked *big.Int) Position {
	lp := pair.LiquidityToken()
	pos := Position{
		Pair:        pair,
		TotalSupply: copyOrZero(totalSupply),
		Wallet:      model.NewAmount(lp, wallet),
		Staked:      model.NewAmount(lp, staked),
	}
	held, _ := pos.Wallet.Add(pos.Staked)
	pos.PoolTokens = held

	pos.Share, pos.ShareKnown = PoolShare(held.Raw, totalSupply)
	if !pos.ShareKnown {
		return pos
	}

	amount0, err0 := LiquidityValue(pair, pair.Token0, totalSupply, held.Raw)
	amount1, err1 := LiquidityValue(pair, pair.Token1, totalSupply, held.Raw)
	if err0 == nil && err1 == nil {
		pos.Pooled0, pos.Pooled1, pos.PooledKnown = amount0, amount1, true
	}
	return pos
}

// ShareText renders the share for a position card, "-" when unknown.
func (p Position) ShareText() string {
	if !p.ShareKnown {
		return "-"
	}
	return p.Share.Display()
}

// Empty reports whether the account holds no pool tokens at all.
func (p Position) Empty() bool {
	return p.PoolTokens.IsZero()
}

func copyOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
