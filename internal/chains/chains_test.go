package chains

import (
	"errors"
	"testing"

	"zapkit/internal/model"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry([]model.Chain{
		{ID: 1, Name: "Ethereum"},
		{ID: 56, Name: "BNB Chain"},
		{ID: 137, Name: "Polygon"},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return r
}

func ids(chains []model.Chain) []uint64 {
	out := make([]uint64, 0, len(chains))
	for _, ch := range chains {
		out = append(out, ch.ID)
	}
	return out
}

func equalIDs(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRegistryAvailableKeepsOrder(t *testing.T) {
	r := testRegistry(t)
	if got := ids(r.Available([]uint64{137, 1, 999})); !equalIDs(got, []uint64{1, 137}) {
		t.Fatalf("Available = %v", got)
	}
	if got := ids(r.Available(nil)); !equalIDs(got, []uint64{1, 56, 137}) {
		t.Fatalf("Available(nil) = %v", got)
	}
	if _, err := r.Get(10); !errors.Is(err, ErrUnknownChain) {
		t.Fatalf("Get unknown err = %v", err)
	}
	if _, err := NewRegistry([]model.Chain{{ID: 1}, {ID: 1}}); err == nil {
		t.Fatalf("expected duplicate error")
	}
}

func TestSelectorExcludesOtherChain(t *testing.T) {
	r := testRegistry(t)
	var selected []uint64
	s := NewSelector(r, []uint64{1, 56}, func(ch model.Chain) { selected = append(selected, ch.ID) })

	other, _ := r.Get(1)
	s.SetOther(&other)
	if got := ids(s.Options()); !equalIDs(got, []uint64{56}) {
		t.Fatalf("Options = %v", got)
	}
	if _, err := s.Select(1); !errors.Is(err, ErrSameAsOther) {
		t.Fatalf("select other err = %v", err)
	}
	if _, err := s.Select(137); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("select unavailable err = %v", err)
	}
	if _, ok := s.Current(); ok {
		t.Fatalf("current set after failed selects")
	}

	ch, err := s.Select(56)
	if err != nil || ch.Name != "BNB Chain" {
		t.Fatalf("Select = %+v, %v", ch, err)
	}
	if cur, ok := s.Current(); !ok || cur.ID != 56 {
		t.Fatalf("Current = %+v, %v", cur, ok)
	}
	if !equalIDs(selected, []uint64{56}) {
		t.Fatalf("onSelect calls = %v", selected)
	}

	s.SetOther(nil)
	if got := ids(s.Options()); !equalIDs(got, []uint64{1, 56}) {
		t.Fatalf("Options after clearing other = %v", got)
	}
}
