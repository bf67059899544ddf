package amm

import (
	"math/big"

	"zapkit/internal/model"
)

// MinNativeReserve is kept back from native balances to pay for gas (0.01).
var MinNativeReserve = new(big.Int).Exp(big.NewInt(10), big.NewInt(16), nil)

// MaxAmountSpend returns the largest amount of balance that can be spent.
// Native balances keep MinNativeReserve aside; tokens are spendable in full.
func MaxAmountSpend(balance model.Amount) model.Amount {
	if balance.Raw == nil {
		return model.NewAmount(balance.Token, nil)
	}
	if !balance.Token.Native {
		return model.NewAmount(balance.Token, balance.Raw)
	}
	if balance.Raw.Cmp(MinNativeReserve) <= 0 {
		return model.NewAmount(balance.Token, nil)
	}
	return model.NewAmount(balance.Token, new(big.Int).Sub(balance.Raw, MinNativeReserve))
}
