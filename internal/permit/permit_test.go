package permit

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

type fakeNonces struct {
	nonce *big.Int
	name  string
	err   error
}

func (f fakeNonces) PermitNonce(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	return f.nonce, f.err
}

func (f fakeNonces) TokenName(ctx context.Context, token common.Address) (string, error) {
	return f.name, f.err
}

var (
	lpToken = common.HexToAddress("0x0000000000000000000000000000000000000abc")
	chef    = common.HexToAddress("0x000000000000000000000000000000000000c4ef")
)

func TestSignRecoversOwner(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	owner := crypto.PubkeyToAddress(key.PublicKey)
	req := Request{
		ChainID:   big.NewInt(56),
		Token:     lpToken,
		TokenName: "Pancake LPs",
		Owner:     owner,
		Spender:   chef,
		Value:     big.NewInt(1_000),
		Nonce:     big.NewInt(0),
		Deadline:  big.NewInt(1_700_000_000),
	}

	sig, err := Sign(key, req)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if sig.V != 27 && sig.V != 28 {
		t.Fatalf("v = %d", sig.V)
	}
	got, err := Recover(req, sig)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if got != owner {
		t.Fatalf("recovered %s, want %s", got.Hex(), owner.Hex())
	}

	other := req
	other.Nonce = big.NewInt(1)
	if got, err := Recover(other, sig); err == nil && got == owner {
		t.Fatalf("signature valid for a different nonce")
	}
}

func TestDigestDependsOnDomain(t *testing.T) {
	req := Request{ChainID: big.NewInt(1), Token: lpToken, TokenName: "LP", Value: big.NewInt(1), Nonce: big.NewInt(0), Deadline: big.NewInt(1)}
	a, err := Digest(req)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	req.ChainID = big.NewInt(56)
	b, err := Digest(req)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if string(a) == string(b) {
		t.Fatalf("digest ignores chain id")
	}
}

func TestKeySignerConfirmAndErrors(t *testing.T) {
	key, _ := crypto.GenerateKey()
	ctx := context.Background()

	signer := NewKeySigner(key, big.NewInt(56), fakeNonces{nonce: big.NewInt(2), name: "LP"}, nil)
	sig, err := signer.SignPermit(ctx, lpToken, chef, big.NewInt(5), big.NewInt(99))
	if err != nil {
		t.Fatalf("SignPermit: %v", err)
	}
	if sig.Spender != chef || sig.Value.Int64() != 5 || sig.Deadline.Int64() != 99 {
		t.Fatalf("signature = %+v", sig)
	}

	declined := NewKeySigner(key, big.NewInt(56), fakeNonces{nonce: big.NewInt(2), name: "LP"}, func(context.Context, Request) error {
		return &SignerError{Code: CodeUserRejected, Reason: "declined"}
	})
	_, err = declined.SignPermit(ctx, lpToken, chef, big.NewInt(5), big.NewInt(99))
	if !IsCancellation(err) {
		t.Fatalf("decline err = %v, want cancellation", err)
	}

	broken := NewKeySigner(key, big.NewInt(56), fakeNonces{err: errors.New("execution reverted")}, nil)
	_, err = broken.SignPermit(ctx, lpToken, chef, big.NewInt(5), big.NewInt(99))
	var signerErr *SignerError
	if !errors.As(err, &signerErr) || IsCancellation(err) {
		t.Fatalf("unsupported err = %v", err)
	}
}

func TestCancellationCodes(t *testing.T) {
	for _, code := range []int{0, 1, CodeUserRejected} {
		if !IsCancellation(fmt.Errorf("wrapped: %w", &SignerError{Code: code})) {
			t.Fatalf("code %d not a cancellation", code)
		}
	}
	for _, code := range []int{2, 4100, CodeUnsupported, -32603} {
		if IsCancellation(&SignerError{Code: code}) {
			t.Fatalf("code %d treated as cancellation", code)
		}
	}
	if IsCancellation(errors.New("plain")) {
		t.Fatalf("plain error treated as cancellation")
	}
}
