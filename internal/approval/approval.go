// Package approval derives the coarse approval state of a (token, spender)
// pair from an allowance read plus local knowledge of in-flight approvals.
package approval

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"zapkit/internal/model"
)

// State is the approval status shown to the user.
type State int

const (
	Unknown State = iota
	NotApproved
	Pending
	Approved
)

func (s State) String() string {
	switch s {
	case NotApproved:
		return "NOT_APPROVED"
	case Pending:
		return "PENDING"
	case Approved:
		return "APPROVED"
	default:
		return "UNKNOWN"
	}
}

// Record is an allowance observed on chain for (owner, spender, token).
type Record struct {
	Owner     common.Address
	Spender   common.Address
	Token     model.Token
	Allowance *big.Int
}

// Derive maps an allowance and the amount about to be spent to a State.
// A sufficient allowance wins over an in-flight approval.
func Derive(token model.Token, spender common.Address, allowance, amount *big.Int, pending bool) State {
	if amount == nil || spender == (common.Address{}) {
		return Unknown
	}
	if token.Native {
		return Approved
	}
	if allowance == nil {
		return Unknown
	}
	if allowance.Cmp(amount) >= 0 {
		return Approved
	}
	if pending {
		return Pending
	}
	return NotApproved
}

// Key identifies the approval a Tracker follows.
type Key struct {
	Token   common.Address
	Native  bool
	Spender common.Address
}

// KeyOf builds the tracker key for token and spender.
func KeyOf(token model.Token, spender common.Address) Key {
	return Key{Token: token.Address, Native: token.Native, Spender: spender}
}

// Tracker bridges the gap between sending an approval and the chain
// reflecting it. It holds the in-flight flag and a Submitted flag that stays
// set until the tracked (token, spender) changes.
type Tracker struct {
	mu        sync.Mutex
	key       Key
	pending   bool
	submitted bool
	txHash    common.Hash
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Reset switches the tracker to key. Flags are cleared only when the key
// actually changes.
func (t *Tracker) Reset(key Key) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.key == key {
		return
	}
	t.key = key
	t.pending = false
	t.submitted = false
	t.txHash = common.Hash{}
}

// Submitted records an approval transaction in flight and sets the
// session-scoped submitted flag.
func (t *Tracker) Submitted(hash common.Hash) {
	t.mu.Lock()
	t.pending = true
	t.submitted = true
	t.txHash = hash
	t.mu.Unlock()
}

// Settled clears the in-flight flag after the approval was mined, rejected
// or reverted. The submitted flag is kept.
func (t *Tracker) Settled() {
	t.mu.Lock()
	t.pending = false
	t.mu.Unlock()
}

// Pending reports whether an approval is in flight.
func (t *Tracker) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

// WasSubmitted reports whether an approval was sent for the current key.
func (t *Tracker) WasSubmitted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.submitted
}

// TxHash returns the hash of the last submitted approval.
func (t *Tracker) TxHash() common.Hash {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.txHash
}

// State derives the current state for token and spender.
func (t *Tracker) State(token model.Token, spender common.Address, allowance, amount *big.Int) State {
	return Derive(token, spender, allowance, amount, t.Pending())
}

// ShowApproveFlow reports whether the two-step approve/submit buttons are
// shown: the user has to approve, is approving, or approved in this session,
// and the input itself is valid.
func ShowApproveFlow(state State, submitted bool, inputErr error) bool {
	if inputErr != nil {
		return false
	}
	return state == NotApproved || state == Pending || (submitted && state == Approved)
}
