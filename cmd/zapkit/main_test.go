package main

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

func TestAccountFor(t *testing.T) {
	const hexKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		t.Fatalf("HexToECDSA: %v", err)
	}
	want := crypto.PubkeyToAddress(key.PublicKey)

	for _, input := range []string{hexKey, "0x" + hexKey} {
		got, err := accountFor("", input)
		if err != nil || got != want {
			t.Fatalf("accountFor(%q) = %s, %v", input, got.Hex(), err)
		}
	}
	if got, err := accountFor("0x0000000000000000000000000000000000001234", hexKey); err != nil || got.Hex() != "0x0000000000000000000000000000000000001234" {
		t.Fatalf("explicit account = %s, %v", got.Hex(), err)
	}
	if _, err := accountFor("", ""); err == nil {
		t.Fatalf("expected error without account or key")
	}
	if _, err := accountFor("0x12", ""); err == nil {
		t.Fatalf("expected invalid address error")
	}
}

func TestShortAddresses(t *testing.T) {
	if got := short("0x10ED43C718714eb63d5aA57B78B54704E256024E"); got != "0x10ED43...024E" {
		t.Fatalf("short = %q", got)
	}
	if got := short("0xabc"); got != "0xabc" {
		t.Fatalf("short of short value = %q", got)
	}
	if got := optional("0x0000000000000000000000000000000000000000"); got != "-" {
		t.Fatalf("optional zero = %q", got)
	}
}
