package config

import (
	"sync/atomic"
	"time"
)

// ProviderType identifies which backend implementation a Provider row
// dispatches to. Mirrors the backend packages under internal/providers.
type ProviderType string

const (
	ProviderOpenAI     ProviderType = "openai"
	ProviderAnthropic  ProviderType = "anthropic"
	ProviderGemini     ProviderType = "gemini"
	ProviderVertexAI   ProviderType = "vertexai"
	ProviderMistral    ProviderType = "mistral"
	ProviderAzure      ProviderType = "azure"
	ProviderBedrock    ProviderType = "bedrock"
	ProviderCompatible ProviderType = "openai_compatible"
)

// ModelMapping maps a client-facing model name to the name this Provider
// expects on its own wire. An entry whose ClientModel is "*" matches any
// model not matched by a more specific entry (C3 candidate scan).
type ModelMapping struct {
	ClientModel   string
	ProviderModel string
}

// Provider is one upstream backend row in the config snapshot (spec §3).
// Providers are immutable once part of a published Snapshot; a config
// reload publishes a new Snapshot with new Provider values rather than
// mutating these in place.
type Provider struct {
	ID      int64
	Key     string // human-readable identifier, e.g. "openai-primary"
	Type    ProviderType
	APIBase string
	APIKey  string

	ModelMapping []ModelMapping

	IsEnabled bool

	// ProviderParams carries backend-specific settings that don't fit the
	// common fields above: GCP project/location for vertexai, Azure
	// deployment/API version, AWS region/session token for bedrock.
	ProviderParams map[string]string

	// CustomHeaders is the custom_headers part of provider_params (spec §3):
	// a set of fixed headers attached to every outbound call this Provider
	// makes (e.g. an org-routing or gateway-identifying header some
	// OpenAI-compatible backend requires). Kept as its own field rather than
	// folded into ProviderParams so header names can never collide with the
	// single-valued keys (project, location, api_version, ...) that map
	// already uses.
	CustomHeaders map[string]string

	// Weight is this provider's share of the weighted draw (C4) among the
	// candidates a given model resolves to. Zero counts as the default
	// weight of 1.
	Weight int
}

// ResolveModel returns the provider-facing model name for a client model,
// and whether any mapping (specific or wildcard) matched.
func (p *Provider) ResolveModel(clientModel string) (string, bool) {
	wildcard := ""
	haveWildcard := false
	for _, m := range p.ModelMapping {
		if m.ClientModel == clientModel {
			return m.ProviderModel, true
		}
		if m.ClientModel == "*" {
			wildcard = m.ProviderModel
			haveWildcard = true
		}
	}
	if haveWildcard {
		if wildcard == "*" {
			return clientModel, true
		}
		return wildcard, true
	}
	return "", false
}

// RateLimit describes a credential's token bucket parameters (C9). Spec §3
// and §4.9 define rate_limit as requests/second; RequestsPerSecond is that
// value verbatim, not a per-minute figure divided down.
type RateLimit struct {
	RequestsPerSecond int
	Burst             int
}

// Credential is one API-key row a client can authenticate with (spec §3).
type Credential struct {
	ID       int64
	Name     string
	HashedKey string // sha256 hex of the raw bearer token, never the raw key
	Preview   string // last 4 chars, for logging/admin display only

	// AllowedModels is the set of client-facing model names this credential
	// may request. A literal "*" entry allows every model (Open Question
	// (b): "*" wins over any other entries).
	AllowedModels []string

	RateLimit *RateLimit // nil means unlimited

	IsEnabled bool
}

// Allows reports whether this credential may request the given client
// model name.
func (c *Credential) Allows(clientModel string) bool {
	for _, m := range c.AllowedModels {
		if m == "*" {
			return true
		}
	}
	for _, m := range c.AllowedModels {
		if m == clientModel {
			return true
		}
	}
	return false
}

// Snapshot is the immutable, atomically-swapped view every request reads
// from (I1, I6, §9). A Snapshot and everything reachable from it is never
// mutated after Publish; a reload builds an entirely new Snapshot.
type Snapshot struct {
	Version   int64
	Timestamp time.Time

	Providers   []*Provider
	Credentials []*Credential

	// credentialByHash indexes Credentials by HashedKey for O(1) auth
	// lookups (C2).
	credentialByHash map[string]*Credential

	// modelIndex indexes enabled Providers by every client model name they
	// can serve, in Providers' original (deterministic) order, for C3/C4.
	modelIndex map[string][]*Provider
}

// CredentialByHash looks up a credential by its sha256 hex digest.
func (s *Snapshot) CredentialByHash(hash string) (*Credential, bool) {
	c, ok := s.credentialByHash[hash]
	return c, ok
}

// CandidatesFor returns the enabled providers that can serve clientModel,
// through an exact mapping entry or a "*" wildcard entry, in
// deterministic snapshot order, for C3 (existence check) and C4
// (weighted draw input).
func (s *Snapshot) CandidatesFor(clientModel string) []*Provider {
	if len(s.modelIndex["*"]) == 0 {
		return s.modelIndex[clientModel]
	}
	var out []*Provider
	for _, p := range s.Providers {
		if !p.IsEnabled {
			continue
		}
		if _, ok := p.ResolveModel(clientModel); ok {
			out = append(out, p)
		}
	}
	return out
}

// NewSnapshot builds a Snapshot from provider/credential rows, computing
// the lookup indexes once so every request avoids doing it per-call.
func NewSnapshot(version int64, ts time.Time, providers []*Provider, credentials []*Credential) *Snapshot {
	s := &Snapshot{
		Version:          version,
		Timestamp:        ts,
		Providers:        providers,
		Credentials:      credentials,
		credentialByHash: make(map[string]*Credential, len(credentials)),
		modelIndex:       make(map[string][]*Provider),
	}
	for _, c := range credentials {
		if c.HashedKey != "" {
			s.credentialByHash[c.HashedKey] = c
		}
	}
	for _, p := range providers {
		if !p.IsEnabled {
			continue
		}
		seen := make(map[string]bool, len(p.ModelMapping))
		for _, m := range p.ModelMapping {
			if seen[m.ClientModel] {
				continue
			}
			seen[m.ClientModel] = true
			s.modelIndex[m.ClientModel] = append(s.modelIndex[m.ClientModel], p)
		}
	}
	return s
}

// Store holds the currently-published Snapshot behind an atomic pointer so
// every request reads a consistent, never-torn view (I1, §5: "in-flight
// requests keep using the snapshot they started with").
type Store struct {
	current atomic.Pointer[Snapshot]
}

// NewStore returns a Store already published with initial.
func NewStore(initial *Snapshot) *Store {
	st := &Store{}
	st.current.Store(initial)
	return st
}

// Current returns the snapshot in effect right now. Safe for concurrent use
// with Publish; the returned pointer is stable for the caller's lifetime
// even if a concurrent Publish swaps in a new one.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Publish atomically swaps in a new Snapshot and returns its version. This
// is the function the out-of-scope admin CRUD API would call; nothing in
// this repo calls it outside tests (startup publishes its first snapshot
// through NewStore).
func (s *Store) Publish(snap *Snapshot) int64 {
	s.current.Store(snap)
	return snap.Version
}
