// Package permit builds and signs EIP-2612 permit messages so a staking
// deposit can be authorized off chain instead of with an approve transaction.
package permit

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	// CodeUserRejected is the EIP-1193 "user rejected request" code.
	CodeUserRejected = 4001
	// CodeUnsupported is the EIP-1193 "unsupported method" code, used when
	// a token cannot produce a permit.
	CodeUnsupported = 4200
)

// SignerError is a rejection reported by a signer.
type SignerError struct {
	Code   int
	Reason string
}

func (e *SignerError) Error() string {
	return fmt.Sprintf("signer rejected request (code %d): %s", e.Code, e.Reason)
}

// Cancelled reports whether the user declined on purpose. Legacy wallets
// report cancellation with codes 0 and 1.
func (e *SignerError) Cancelled() bool {
	return e.Code == CodeUserRejected || e.Code == 0 || e.Code == 1
}

// IsCancellation reports whether err carries a user cancellation.
func IsCancellation(err error) bool {
	var signerErr *SignerError
	return errors.As(err, &signerErr) && signerErr.Cancelled()
}

// Request is the data of one permit.
type Request struct {
	ChainID   *big.Int
	Token     common.Address
	TokenName string
	Version   string
	Owner     common.Address
	Spender   common.Address
	Value     *big.Int
	Nonce     *big.Int
	Deadline  *big.Int
}

// Signature is a permit signature split the way depositWithPermit takes it.
type Signature struct {
	Owner    common.Address
	Spender  common.Address
	Value    *big.Int
	Deadline *big.Int
	V        uint8
	R        [32]byte
	S        [32]byte
}

// TypedData returns the EIP-712 payload of req.
func TypedData(req Request) apitypes.TypedData {
	version := req.Version
	if version == "" {
		version = "1"
	}
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Permit": {
				{Name: "owner", Type: "address"},
				{Name: "spender", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
				{Name: "deadline", Type: "uint256"},
			},
		},
		PrimaryType: "Permit",
		Domain: apitypes.TypedDataDomain{
			Name:              req.TokenName,
			Version:           version,
			ChainId:           hexOrDecimal(req.ChainID),
			VerifyingContract: req.Token.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"owner":    req.Owner.Hex(),
			"spender":  req.Spender.Hex(),
			"value":    hexOrDecimal(req.Value),
			"nonce":    hexOrDecimal(req.Nonce),
			"deadline": hexOrDecimal(req.Deadline),
		},
	}
}

func hexOrDecimal(v *big.Int) *math.HexOrDecimal256 {
	if v == nil {
		v = new(big.Int)
	}
	return (*math.HexOrDecimal256)(new(big.Int).Set(v))
}

// Digest returns the EIP-712 hash that gets signed.
func Digest(req Request) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(TypedData(req))
	if err != nil {
		return nil, fmt.Errorf("hash permit: %w", err)
	}
	return hash, nil
}

// Sign signs req with key.
func Sign(key *ecdsa.PrivateKey, req Request) (Signature, error) {
	digest, err := Digest(req)
	if err != nil {
		return Signature{}, err
	}
	sig, err := crypto.Sign(digest, key)
	if err != nil {
		return Signature{}, fmt.Errorf("sign permit: %w", err)
	}

	out := Signature{
		Owner:    req.Owner,
		Spender:  req.Spender,
		Value:    new(big.Int).Set(req.Value),
		Deadline: new(big.Int).Set(req.Deadline),
		V:        sig[64] + 27,
	}
	copy(out.R[:], sig[:32])
	copy(out.S[:], sig[32:64])
	return out, nil
}

// Recover returns the address that produced sig over req.
func Recover(req Request, sig Signature) (common.Address, error) {
	digest, err := Digest(req)
	if err != nil {
		return common.Address{}, err
	}
	raw := make([]byte, 65)
	copy(raw[:32], sig.R[:])
	copy(raw[32:64], sig.S[:])
	raw[64] = sig.V - 27
	pub, err := crypto.SigToPub(digest, raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover permit signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// NonceReader reads the on-chain parts of a permit domain and message.
type NonceReader interface {
	PermitNonce(ctx context.Context, token, owner common.Address) (*big.Int, error)
	TokenName(ctx context.Context, token common.Address) (string, error)
}

// Confirm asks the user to approve a permit. Returning a *SignerError
// rejects the request with that code.
type Confirm func(ctx context.Context, req Request) error

// KeySigner signs permits with a local key after reading nonce and domain
// name from chain.
type KeySigner struct {
	key     *ecdsa.PrivateKey
	owner   common.Address
	chainID *big.Int
	reader  NonceReader
	confirm Confirm
}

// NewKeySigner builds a signer. confirm may be nil to sign without asking.
func NewKeySigner(key *ecdsa.PrivateKey, chainID *big.Int, reader NonceReader, confirm Confirm) *KeySigner {
	return &KeySigner{
		key:     key,
		owner:   crypto.PubkeyToAddress(key.PublicKey),
		chainID: new(big.Int).Set(chainID),
		reader:  reader,
		confirm: confirm,
	}
}

// SignPermit authorizes spender to move value of token until deadline.
// Failures to read the permit domain are reported as a non-cancellation
// SignerError so callers fall back to an on-chain approval.
func (s *KeySigner) SignPermit(ctx context.Context, token, spender common.Address, value, deadline *big.Int) (Signature, error) {
	nonce, err := s.reader.PermitNonce(ctx, token, s.owner)
	if err != nil {
		return Signature{}, &SignerError{Code: CodeUnsupported, Reason: "read permit nonce: " + err.Error()}
	}
	name, err := s.reader.TokenName(ctx, token)
	if err != nil {
		return Signature{}, &SignerError{Code: CodeUnsupported, Reason: "read token name: " + err.Error()}
	}

	req := Request{
		ChainID:   s.chainID,
		Token:     token,
		TokenName: name,
		Owner:     s.owner,
		Spender:   spender,
		Value:     value,
		Nonce:     nonce,
		Deadline:  deadline,
	}
	if s.confirm != nil {
		if err := s.confirm(ctx, req); err != nil {
			return Signature{}, err
		}
	}
	return Sign(s.key, req)
}
