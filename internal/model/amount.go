package model

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var (
	ErrTokenMismatch   = errors.New("amounts are denominated in different tokens")
	ErrEmptyAmount     = errors.New("amount is empty")
	ErrAmountFormat    = errors.New("invalid amount format")
	ErrAmountPrecision = errors.New("amount has more decimals than the token supports")
	ErrNegativeAmount  = errors.New("amount must not be negative")
)

// Amount is a raw integer quantity of a token.
type Amount struct {
	Token Token    `json:"token"`
	Raw   *big.Int `json:"raw"`
}

// NewAmount copies raw into a new Amount.
func NewAmount(token Token, raw *big.Int) Amount {
	value := new(big.Int)
	if raw != nil {
		value.Set(raw)
	}
	return Amount{Token: token, Raw: value}
}

// ParseAmount parses a human readable decimal string into raw token units.
func ParseAmount(token Token, input string) (Amount, error) {
	input = strings.TrimSpace(input)
	if input == "" || input == "." {
		return Amount{}, ErrEmptyAmount
	}
	if strings.HasPrefix(input, "-") {
		return Amount{}, ErrNegativeAmount
	}

	whole, frac, _ := strings.Cut(input, ".")
	if len(frac) > int(token.Decimals) {
		return Amount{}, ErrAmountPrecision
	}
	if !isDigits(whole) || !isDigits(frac) {
		return Amount{}, fmt.Errorf("%w: %q", ErrAmountFormat, input)
	}

	digits := whole + frac + strings.Repeat("0", int(token.Decimals)-len(frac))
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return NewAmount(token, new(big.Int)), nil
	}
	raw, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return Amount{}, fmt.Errorf("%w: %q", ErrAmountFormat, input)
	}
	return Amount{Token: token, Raw: raw}, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Add returns a+b. Both amounts must share a token.
func (a Amount) Add(b Amount) (Amount, error) {
	if !a.Token.Equal(b.Token) {
		return Amount{}, ErrTokenMismatch
	}
	return Amount{Token: a.Token, Raw: new(big.Int).Add(a.raw(), b.raw())}, nil
}

// Sub returns a-b. Both amounts must share a token.
func (a Amount) Sub(b Amount) (Amount, error) {
	if !a.Token.Equal(b.Token) {
		return Amount{}, ErrTokenMismatch
	}
	return Amount{Token: a.Token, Raw: new(big.Int).Sub(a.raw(), b.raw())}, nil
}

// Cmp compares two amounts of the same token.
func (a Amount) Cmp(b Amount) (int, error) {
	if !a.Token.Equal(b.Token) {
		return 0, ErrTokenMismatch
	}
	return a.raw().Cmp(b.raw()), nil
}

// IsZero reports whether the amount is nil or zero.
func (a Amount) IsZero() bool {
	return a.Raw == nil || a.Raw.Sign() == 0
}

func (a Amount) raw() *big.Int {
	if a.Raw == nil {
		return new(big.Int)
	}
	return a.Raw
}

// Exact renders the amount with the token's full decimal precision.
func (a Amount) Exact() string {
	return FormatUnits(a.Raw, a.Token.Decimals)
}

// Significant renders the amount keeping at most digits significant digits in
// the fractional part. Integer digits are never dropped. Truncates.
func (a Amount) Significant(digits int) string {
	return significant(FormatUnits(a.Raw, a.Token.Decimals), digits)
}

// Fixed renders the amount truncated to places decimals.
func (a Amount) Fixed(places int) string {
	text := FormatUnits(a.Raw, a.Token.Decimals)
	whole, frac, ok := strings.Cut(text, ".")
	if places <= 0 || !ok {
		return whole
	}
	if len(frac) < places {
		frac += strings.Repeat("0", places-len(frac))
	}
	return whole + "." + frac[:places]
}

func (a Amount) String() string {
	return a.Significant(6) + " " + a.Token.Display()
}

// FormatUnits renders value scaled down by decimals, trimming trailing zeros.
func FormatUnits(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	if decimals == 0 {
		return value.String()
	}
	sign := value.Sign()
	abs := new(big.Int).Abs(value)
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	rat := new(big.Rat).SetFrac(abs, denom)
	text := trimZeros(rat.FloatString(int(decimals)))
	if sign < 0 {
		return "-" + text
	}
	return text
}

func trimZeros(text string) string {
	if !strings.Contains(text, ".") {
		return text
	}
	text = strings.TrimRight(text, "0")
	return strings.TrimSuffix(text, ".")
}

func significant(text string, digits int) string {
	whole, frac, ok := strings.Cut(text, ".")
	if !ok || digits <= 0 {
		return whole
	}

	counted := len(strings.TrimLeft(strings.TrimPrefix(whole, "-"), "0"))
	if counted >= digits {
		return whole
	}

	var b strings.Builder
	for _, r := range frac {
		if counted >= digits {
			break
		}
		b.WriteRune(r)
		if counted > 0 || r != '0' {
			counted++
		}
	}
	return trimZeros(whole + "." + b.String())
}
