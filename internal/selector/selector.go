// Package selector implements the weighted provider selector (C4): a
// stateless, uniform-random draw over a candidate list's weights, walked
// in deterministic snapshot order.
package selector

import (
	"math/rand/v2"

	"github.com/nulpointcorp/llm-gateway/internal/gwerr"
	"github.com/nulpointcorp/llm-gateway/internal/resolver"
)

// Weighted selects one candidate per call. It holds no state between
// calls — no round-robin cursor — so concurrent requests never interfere
// with each other (spec §4.4: "Selection is stateless").
type Weighted struct{}

func New() *Weighted {
	return &Weighted{}
}

// Pick draws one candidate from candidates, excluding any whose
// Provider.ID is in excluded. Default weight is 1 when a provider
// declares none: a zero Weight field counts as "none declared", since the
// config snapshot has no separate has-weight bit, so only exclusion keeps
// a candidate out of the draw.
func (w *Weighted) Pick(candidates []resolver.Candidate, excluded map[int64]bool) (resolver.Candidate, error) {
	total := 0
	weights := make([]int, len(candidates))
	for i, c := range candidates {
		if excluded != nil && excluded[c.Provider.ID] {
			weights[i] = 0
			continue
		}
		wt := c.Provider.Weight
		if wt == 0 {
			wt = 1
		}
		weights[i] = wt
		total += wt
	}
	if total == 0 {
		return resolver.Candidate{}, gwerr.New(gwerr.NoProvider, "no enabled provider available for this model")
	}

	r := rand.IntN(total)
	running := 0
	for i, c := range candidates {
		running += weights[i]
		if r < running {
			return c, nil
		}
	}
	// Unreachable given total > 0 and the loop invariant above, but keep a
	// defined fallback rather than a panic on a future refactor mistake.
	return candidates[len(candidates)-1], nil
}
