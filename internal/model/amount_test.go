package model

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var usdc = Token{ChainID: 1284, Address: common.HexToAddress("0x00000000000000000000000000000000000000aa"), Decimals: 6, Symbol: "USDC"}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"1", "1000000"},
		{"1.5", "1500000"},
		{"0.000001", "1"},
		{".25", "250000"},
		{"0", "0"},
		{"  42.000000 ", "42000000"},
	}
	for _, tc := range cases {
		got, err := ParseAmount(usdc, tc.input)
		if err != nil {
			t.Fatalf("ParseAmount(%q): %v", tc.input, err)
		}
		if got.Raw.String() != tc.want {
			t.Fatalf("ParseAmount(%q) = %s want %s", tc.input, got.Raw, tc.want)
		}
	}
}

func TestParseAmountErrors(t *testing.T) {
	if _, err := ParseAmount(usdc, ""); !errors.Is(err, ErrEmptyAmount) {
		t.Fatalf("expected ErrEmptyAmount, got %v", err)
	}
	if _, err := ParseAmount(usdc, "0.0000001"); !errors.Is(err, ErrAmountPrecision) {
		t.Fatalf("expected ErrAmountPrecision, got %v", err)
	}
	if _, err := ParseAmount(usdc, "-1"); !errors.Is(err, ErrNegativeAmount) {
		t.Fatalf("expected ErrNegativeAmount, got %v", err)
	}
	if _, err := ParseAmount(usdc, "1e6"); !errors.Is(err, ErrAmountFormat) {
		t.Fatalf("expected ErrAmountFormat, got %v", err)
	}
}

func TestAmountMixedTokens(t *testing.T) {
	other := usdc
	other.Address = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	a := NewAmount(usdc, big.NewInt(1))
	b := NewAmount(other, big.NewInt(1))
	if _, err := a.Add(b); !errors.Is(err, ErrTokenMismatch) {
		t.Fatalf("expected ErrTokenMismatch, got %v", err)
	}
	if _, err := a.Cmp(b); !errors.Is(err, ErrTokenMismatch) {
		t.Fatalf("expected ErrTokenMismatch, got %v", err)
	}
}

func TestAmountFormatting(t *testing.T) {
	a := NewAmount(usdc, big.NewInt(1_234_567_891))
	if got := a.Exact(); got != "1234.567891" {
		t.Fatalf("Exact = %s", got)
	}
	if got := a.Significant(6); got != "1234.56" {
		t.Fatalf("Significant = %s", got)
	}
	if got := a.Fixed(2); got != "1234.56" {
		t.Fatalf("Fixed = %s", got)
	}
	dust := NewAmount(usdc, big.NewInt(1_230))
	if got := dust.Significant(2); got != "0.0012" {
		t.Fatalf("Significant dust = %s", got)
	}
}

func TestPercentDisplay(t *testing.T) {
	if got := NewPercent(big.NewInt(1), big.NewInt(4)).Display(); got != "25.00%" {
		t.Fatalf("Display = %s", got)
	}
	if got := NewPercent(big.NewInt(1), big.NewInt(1_000_000)).Display(); got != "<0.01%" {
		t.Fatalf("Display dust = %s", got)
	}
	if got := PercentFromBps(500).Fixed(1); got != "5.0" {
		t.Fatalf("Fixed = %s", got)
	}
	if !PercentFromBps(100).Less(PercentFromBps(300)) || PercentFromBps(300).Less(PercentFromBps(300)) {
		t.Fatalf("Less ordering broken")
	}
}

func TestPairWithReserves(t *testing.T) {
	other := usdc
	other.Address = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	pair := Pair{Token0: usdc, Token1: other, Reserve0: big.NewInt(100), Reserve1: big.NewInt(400)}

	in, out := big.NewInt(150), big.NewInt(270)
	post := pair.WithReserves(other, in, out)
	if post.Reserve1.Int64() != 150 || post.Reserve0.Int64() != 270 {
		t.Fatalf("reserves = %s/%s, want 270/150", post.Reserve0, post.Reserve1)
	}
	in.SetInt64(1)
	if post.Reserve1.Int64() != 150 {
		t.Fatalf("WithReserves aliased its input")
	}
	if pair.Reserve0.Int64() != 100 || pair.Reserve1.Int64() != 400 {
		t.Fatalf("original pair mutated: %s/%s", pair.Reserve0, pair.Reserve1)
	}
}
