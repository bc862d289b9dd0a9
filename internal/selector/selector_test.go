package selector

import (
	"testing"

	"github.com/nulpointcorp/llm-gateway/internal/config"
	"github.com/nulpointcorp/llm-gateway/internal/resolver"
)

func candidate(id int64, weight int) resolver.Candidate {
	return resolver.Candidate{
		Provider:      &config.Provider{ID: id, Weight: weight},
		ProviderModel: "m",
	}
}

// TestPickSingleCandidateAlwaysWins verifies a single candidate is always
// returned regardless of its weight.
func TestPickSingleCandidateAlwaysWins(t *testing.T) {
	w := New()
	cands := []resolver.Candidate{candidate(1, 5)}

	for i := 0; i < 20; i++ {
		got, err := w.Pick(cands, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Provider.ID != 1 {
			t.Fatalf("expected candidate 1, got %d", got.Provider.ID)
		}
	}
}

// TestPickZeroWeightMeansDefaultOne verifies a Provider.Weight of 0 is
// treated as "unset" (default weight 1), not "never select" — that
// distinction only applies when a candidate is explicitly excluded.
func TestPickZeroWeightMeansDefaultOne(t *testing.T) {
	w := New()
	cands := []resolver.Candidate{candidate(1, 0)}

	got, err := w.Pick(cands, nil)
	if err != nil {
		t.Fatalf("expected zero weight to default to 1, got error: %v", err)
	}
	if got.Provider.ID != 1 {
		t.Fatalf("expected candidate 1, got %d", got.Provider.ID)
	}
}

// TestPickExcludesGivenProviders verifies an excluded candidate is never
// returned as long as at least one non-excluded candidate remains.
func TestPickExcludesGivenProviders(t *testing.T) {
	w := New()
	cands := []resolver.Candidate{candidate(1, 1), candidate(2, 1)}
	excluded := map[int64]bool{1: true}

	for i := 0; i < 30; i++ {
		got, err := w.Pick(cands, excluded)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Provider.ID != 2 {
			t.Fatalf("expected only candidate 2 to be picked, got %d", got.Provider.ID)
		}
	}
}

// TestPickAllExcludedReturnsNoProvider verifies excluding every candidate
// yields gwerr.NoProvider rather than an arbitrary pick.
func TestPickAllExcludedReturnsNoProvider(t *testing.T) {
	w := New()
	cands := []resolver.Candidate{candidate(1, 1), candidate(2, 3)}
	excluded := map[int64]bool{1: true, 2: true}

	if _, err := w.Pick(cands, excluded); err == nil {
		t.Fatal("expected error when every candidate is excluded")
	}
}

// TestPickEmptyCandidatesReturnsNoProvider verifies an empty input list is
// handled the same way as "all excluded" rather than panicking.
func TestPickEmptyCandidatesReturnsNoProvider(t *testing.T) {
	w := New()
	if _, err := w.Pick(nil, nil); err == nil {
		t.Fatal("expected error for empty candidate list")
	}
}

// TestPickRespectsWeightDistribution verifies that, over many draws, a
// heavily-weighted candidate is picked far more often than a
// lightly-weighted one — a coarse statistical check, not an exact one.
func TestPickRespectsWeightDistribution(t *testing.T) {
	w := New()
	cands := []resolver.Candidate{candidate(1, 99), candidate(2, 1)}

	counts := map[int64]int{}
	const draws = 2000
	for i := 0; i < draws; i++ {
		got, err := w.Pick(cands, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		counts[got.Provider.ID]++
	}

	if counts[1] < counts[2] {
		t.Fatalf("expected heavily-weighted candidate 1 to dominate, got counts %v", counts)
	}
	if counts[2] == 0 {
		t.Fatal("expected lightly-weighted candidate to be picked at least once in 2000 draws")
	}
}

// TestPickOnlyReturnsKnownCandidates verifies every value Pick returns
// across many draws is one of the inputs, never a zero-value Candidate.
func TestPickOnlyReturnsKnownCandidates(t *testing.T) {
	w := New()
	cands := []resolver.Candidate{candidate(1, 1), candidate(2, 1), candidate(3, 1)}
	valid := map[int64]bool{1: true, 2: true, 3: true}

	for i := 0; i < 50; i++ {
		got, err := w.Pick(cands, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Provider == nil || !valid[got.Provider.ID] {
			t.Fatalf("unexpected candidate returned: %+v", got)
		}
	}
}
