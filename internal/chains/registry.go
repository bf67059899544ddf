// Package chains keeps the set of configured chains and the user's choice
// among them.
package chains

import (
	"errors"
	"fmt"

	"zapkit/internal/model"
)

var (
	// ErrUnknownChain is returned for an ID that is not configured.
	ErrUnknownChain = errors.New("unknown chain")
	// ErrUnavailable is returned when a configured chain is not offered.
	ErrUnavailable = errors.New("chain not available")
	// ErrSameAsOther is returned when selecting the chain already chosen on
	// the other side of a pairing.
	ErrSameAsOther = errors.New("chain already selected on the other side")
)

// Registry is an ordered, read-only set of chains.
type Registry struct {
	chains []model.Chain
	byID   map[uint64]int
}

// NewRegistry indexes chains, keeping their order.
func NewRegistry(chains []model.Chain) (*Registry, error) {
	r := &Registry{
		chains: make([]model.Chain, 0, len(chains)),
		byID:   make(map[uint64]int, len(chains)),
	}
	for _, ch := range chains {
		if _, dup := r.byID[ch.ID]; dup {
			return nil, fmt.Errorf("duplicate chain %d", ch.ID)
		}
		r.byID[ch.ID] = len(r.chains)
		r.chains = append(r.chains, ch)
	}
	return r, nil
}

// All returns every chain in configuration order.
func (r *Registry) All() []model.Chain {
	out := make([]model.Chain, len(r.chains))
	copy(out, r.chains)
	return out
}

// Get returns the chain with id.
func (r *Registry) Get(id uint64) (model.Chain, error) {
	idx, ok := r.byID[id]
	if !ok {
		return model.Chain{}, fmt.Errorf("%w: %d", ErrUnknownChain, id)
	}
	return r.chains[idx], nil
}

// Available returns the chains whose IDs appear in ids, in registry order.
// An empty ids means every chain. Unknown IDs are ignored.
func (r *Registry) Available(ids []uint64) []model.Chain {
	if len(ids) == 0 {
		return r.All()
	}
	allowed := make(map[uint64]bool, len(ids))
	for _, id := range ids {
		allowed[id] = true
	}
	out := make([]model.Chain, 0, len(ids))
	for _, ch := range r.chains {
		if allowed[ch.ID] {
			out = append(out, ch)
		}
	}
	return out
}
