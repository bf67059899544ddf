package model

import "github.com/ethereum/go-ethereum/common"

// Chain describes a network the front-end can operate on together with the
// contracts zapkit talks to.
type Chain struct {
	ID            uint64         `json:"id"`
	Name          string         `json:"name"`
	Icon          string         `json:"icon,omitempty"`
	RPCURL        string         `json:"-"`
	NativeSymbol  string         `json:"native_symbol"`
	WrappedNative common.Address `json:"wrapped_native"`
	Factory       common.Address `json:"factory"`
	Router        common.Address `json:"router"`
	Zapper        common.Address `json:"zapper"`
	Chef          common.Address `json:"chef"`
	Explorer      string         `json:"explorer,omitempty"`
}

// Native returns the chain's native currency.
func (c Chain) Native() Token {
	symbol := c.NativeSymbol
	if symbol == "" {
		symbol = "ETH"
	}
	return NativeToken(c.ID, symbol)
}

// Wrapped returns the wrapped native token used for routing.
func (c Chain) Wrapped() Token {
	native := c.Native()
	return Token{
		ChainID:  c.ID,
		Address:  c.WrappedNative,
		Decimals: 18,
		Symbol:   "W" + native.Symbol,
		Name:     "Wrapped " + native.Symbol,
	}
}

// TxURL links a transaction on the chain explorer, if one is configured.
func (c Chain) TxURL(hash string) string {
	if c.Explorer == "" {
		return hash
	}
	return c.Explorer + "/tx/" + hash
}
