package chains

import (
	"fmt"
	"sync"

	"zapkit/internal/model"
)

// Selector tracks the selected chain out of an available subset. Other, when
// set, is the chain picked on the opposite side of a pairing and cannot be
// selected here.
type Selector struct {
	mu        sync.Mutex
	registry  *Registry
	available []uint64
	current   *model.Chain
	other     *model.Chain
	onSelect  func(model.Chain)
}

// NewSelector builds a selector over available (empty means all chains).
// onSelect may be nil.
func NewSelector(registry *Registry, available []uint64, onSelect func(model.Chain)) *Selector {
	return &Selector{
		registry:  registry,
		available: append([]uint64(nil), available...),
		onSelect:  onSelect,
	}
}

// Options lists the chains that can be selected.
func (s *Selector) Options() []model.Chain {
	s.mu.Lock()
	defer s.mu.Unlock()
	chains := s.registry.Available(s.available)
	if s.other == nil {
		return chains
	}
	out := chains[:0]
	for _, ch := range chains {
		if ch.ID != s.other.ID {
			out = append(out, ch)
		}
	}
	return out
}

// Select makes id the current chain and notifies onSelect.
func (s *Selector) Select(id uint64) (model.Chain, error) {
	ch, err := s.registry.Get(id)
	if err != nil {
		return model.Chain{}, err
	}

	s.mu.Lock()
	if !s.offered(id) {
		s.mu.Unlock()
		return model.Chain{}, fmt.Errorf("%w: %s", ErrUnavailable, ch.Name)
	}
	if s.other != nil && s.other.ID == id {
		s.mu.Unlock()
		return model.Chain{}, fmt.Errorf("%w: %s", ErrSameAsOther, ch.Name)
	}
	s.current = &ch
	onSelect := s.onSelect
	s.mu.Unlock()

	if onSelect != nil {
		onSelect(ch)
	}
	return ch, nil
}

// SetOther records the chain chosen on the opposite side. A nil chain clears it.
func (s *Selector) SetOther(other *model.Chain) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if other == nil {
		s.other = nil
		return
	}
	cp := *other
	s.other = &cp
}

// Current returns the selected chain.
func (s *Selector) Current() (model.Chain, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return model.Chain{}, false
	}
	return *s.current, true
}

func (s *Selector) offered(id uint64) bool {
	if len(s.available) == 0 {
		return true
	}
	for _, allowed := range s.available {
		if allowed == id {
			return true
		}
	}
	return false
}
