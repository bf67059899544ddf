package model

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Token identifies an ERC20 token or a chain's native currency.
type Token struct {
	ChainID  uint64         `json:"chain_id"`
	Address  common.Address `json:"address"`
	Decimals uint8          `json:"decimals"`
	Symbol   string         `json:"symbol"`
	Name     string         `json:"name"`
	Native   bool           `json:"native,omitempty"`
}

// NativeToken returns the native currency of a chain.
func NativeToken(chainID uint64, symbol string) Token {
	return Token{
		ChainID:  chainID,
		Decimals: 18,
		Symbol:   symbol,
		Name:     symbol,
		Native:   true,
	}
}

// Equal reports whether both tokens refer to the same asset.
func (t Token) Equal(other Token) bool {
	return t.ChainID == other.ChainID && t.Native == other.Native && t.Address == other.Address
}

// ID returns the identifier used in URLs and config: the native symbol or the
// checksummed address.
func (t Token) ID() string {
	if t.Native {
		return t.Symbol
	}
	return t.Address.Hex()
}

// Display returns the symbol, falling back to a shortened address.
func (t Token) Display() string {
	if t.Symbol != "" {
		return t.Symbol
	}
	hex := t.Address.Hex()
	return hex[:6] + "..." + hex[len(hex)-4:]
}

// IsNativeID reports whether id names the native currency of a chain.
func IsNativeID(id, nativeSymbol string) bool {
	return strings.EqualFold(strings.TrimSpace(id), nativeSymbol)
}
