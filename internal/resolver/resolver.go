// Package resolver implements the model resolver (C3): prefix
// normalization and provider candidate lookup against the current config
// snapshot.
package resolver

import (
	"strings"

	"github.com/nulpointcorp/llm-gateway/internal/config"
	"github.com/nulpointcorp/llm-gateway/internal/gwerr"
)

// Resolver strips a configured provider suffix and finds the providers
// that can serve a client model name.
type Resolver struct {
	// ProviderSuffix, e.g. "Proxy", makes the resolver strip a leading
	// "Proxy/" from client model names before lookup. Empty disables it.
	ProviderSuffix string
}

func New(providerSuffix string) *Resolver {
	return &Resolver{ProviderSuffix: providerSuffix}
}

// Candidate is one resolved provider for a request: the provider itself,
// plus the provider-facing model name this request should carry.
type Candidate struct {
	Provider      *config.Provider
	ProviderModel string
}

// Normalize strips the configured provider prefix, if present. An
// unrelated prefix passes through unchanged.
func (r *Resolver) Normalize(clientModel string) string {
	if r.ProviderSuffix == "" {
		return clientModel
	}
	prefix := r.ProviderSuffix + "/"
	if strings.HasPrefix(clientModel, prefix) {
		return strings.TrimPrefix(clientModel, prefix)
	}
	return clientModel
}

// Resolve returns the ordered candidate list for a normalized client model.
// An empty result (unknown_model) is reported as an error so callers don't
// need a separate len-zero check.
func (r *Resolver) Resolve(snap *config.Snapshot, clientModel string) ([]Candidate, error) {
	normalized := r.Normalize(clientModel)
	providers := snap.CandidatesFor(normalized)
	if len(providers) == 0 {
		return nil, gwerr.New(gwerr.UnknownModel, "no provider advertises model "+clientModel)
	}

	out := make([]Candidate, 0, len(providers))
	for _, p := range providers {
		mapped, ok := p.ResolveModel(normalized)
		if !ok {
			continue
		}
		out = append(out, Candidate{Provider: p, ProviderModel: mapped})
	}
	if len(out) == 0 {
		return nil, gwerr.New(gwerr.UnknownModel, "no provider advertises model "+clientModel)
	}
	return out, nil
}
