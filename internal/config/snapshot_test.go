package config

import (
	"testing"
	"time"
)

// TestProviderResolveModelExactMatchWinsOverWildcard verifies a specific
// mapping entry is preferred over a "*" wildcard present in the same list.
func TestProviderResolveModelExactMatchWinsOverWildcard(t *testing.T) {
	p := &Provider{ModelMapping: []ModelMapping{
		{ClientModel: "*", ProviderModel: "*"},
		{ClientModel: "gpt-4o", ProviderModel: "gpt-4o-2024-08-06"},
	}}

	got, ok := p.ResolveModel("gpt-4o")
	if !ok || got != "gpt-4o-2024-08-06" {
		t.Fatalf("expected exact mapping to win, got %q, %v", got, ok)
	}
}

func TestProviderResolveModelWildcardPassesClientModelThrough(t *testing.T) {
	p := &Provider{ModelMapping: []ModelMapping{{ClientModel: "*", ProviderModel: "*"}}}

	got, ok := p.ResolveModel("some-custom-model")
	if !ok || got != "some-custom-model" {
		t.Fatalf("expected wildcard passthrough, got %q, %v", got, ok)
	}
}

func TestProviderResolveModelWildcardRemapsToFixedName(t *testing.T) {
	p := &Provider{ModelMapping: []ModelMapping{{ClientModel: "*", ProviderModel: "default-model"}}}

	got, ok := p.ResolveModel("anything")
	if !ok || got != "default-model" {
		t.Fatalf("expected wildcard remap, got %q, %v", got, ok)
	}
}

func TestProviderResolveModelNoMappingMatchesIsNotFound(t *testing.T) {
	p := &Provider{ModelMapping: []ModelMapping{{ClientModel: "gpt-4o", ProviderModel: "gpt-4o-2024-08-06"}}}

	if _, ok := p.ResolveModel("claude-3-5-sonnet"); ok {
		t.Fatal("expected no match")
	}
}

// TestCredentialAllowsWildcardEntryAllowsAnything verifies Open Question (b):
// a literal "*" AllowedModels entry wins over every other entry.
func TestCredentialAllowsWildcardEntryAllowsAnything(t *testing.T) {
	c := &Credential{AllowedModels: []string{"*"}}
	if !c.Allows("anything-at-all") {
		t.Fatal("expected wildcard to allow any model")
	}
}

func TestCredentialAllowsExactMatch(t *testing.T) {
	c := &Credential{AllowedModels: []string{"gpt-4o", "claude-3-5-sonnet"}}
	if !c.Allows("gpt-4o") {
		t.Fatal("expected exact match to be allowed")
	}
}

func TestCredentialAllowsUnlistedModelIsDenied(t *testing.T) {
	c := &Credential{AllowedModels: []string{"gpt-4o"}}
	if c.Allows("claude-3-5-sonnet") {
		t.Fatal("expected unlisted model to be denied")
	}
}

func TestNewSnapshotIndexesCredentialsByHash(t *testing.T) {
	cred := &Credential{ID: 1, HashedKey: "abc123"}
	snap := NewSnapshot(1, time.Now(), nil, []*Credential{cred})

	got, ok := snap.CredentialByHash("abc123")
	if !ok || got.ID != 1 {
		t.Fatalf("expected credential lookup to succeed, got %+v, %v", got, ok)
	}
	if _, ok := snap.CredentialByHash("nope"); ok {
		t.Fatal("expected unknown hash to miss")
	}
}

func TestNewSnapshotExcludesDisabledProvidersFromModelIndex(t *testing.T) {
	enabled := &Provider{ID: 1, IsEnabled: true, ModelMapping: []ModelMapping{{ClientModel: "gpt-4o", ProviderModel: "gpt-4o"}}}
	disabled := &Provider{ID: 2, IsEnabled: false, ModelMapping: []ModelMapping{{ClientModel: "gpt-4o", ProviderModel: "gpt-4o"}}}
	snap := NewSnapshot(1, time.Now(), []*Provider{enabled, disabled}, nil)

	got := snap.CandidatesFor("gpt-4o")
	if len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("expected only the enabled provider, got %+v", got)
	}
}

func TestNewSnapshotDeduplicatesRepeatedModelMappingEntries(t *testing.T) {
	p := &Provider{ID: 1, IsEnabled: true, ModelMapping: []ModelMapping{
		{ClientModel: "gpt-4o", ProviderModel: "gpt-4o"},
		{ClientModel: "gpt-4o", ProviderModel: "gpt-4o-2024-08-06"},
	}}
	snap := NewSnapshot(1, time.Now(), []*Provider{p}, nil)

	got := snap.CandidatesFor("gpt-4o")
	if len(got) != 1 {
		t.Fatalf("expected provider listed once despite two mapping entries, got %d", len(got))
	}
}

func TestNewSnapshotPreservesProviderOrderInModelIndex(t *testing.T) {
	p1 := &Provider{ID: 1, IsEnabled: true, ModelMapping: []ModelMapping{{ClientModel: "gpt-4o", ProviderModel: "gpt-4o"}}}
	p2 := &Provider{ID: 2, IsEnabled: true, ModelMapping: []ModelMapping{{ClientModel: "gpt-4o", ProviderModel: "gpt-4o"}}}
	snap := NewSnapshot(1, time.Now(), []*Provider{p1, p2}, nil)

	got := snap.CandidatesFor("gpt-4o")
	if len(got) != 2 || got[0].ID != 1 || got[1].ID != 2 {
		t.Fatalf("expected deterministic snapshot order, got %+v", got)
	}
}

// TestStorePublishSwapsCurrentSnapshot verifies Store.Current reflects the
// most recent Publish call.
func TestStorePublishSwapsCurrentSnapshot(t *testing.T) {
	first := NewSnapshot(1, time.Now(), nil, nil)
	st := NewStore(first)
	if st.Current().Version != 1 {
		t.Fatalf("expected initial version 1, got %d", st.Current().Version)
	}

	second := NewSnapshot(2, time.Now(), nil, nil)
	if v := st.Publish(second); v != 2 {
		t.Fatalf("expected Publish to return 2, got %d", v)
	}
	if st.Current().Version != 2 {
		t.Fatalf("expected current version 2, got %d", st.Current().Version)
	}
}

// TestStoreCurrentSnapshotStableAcrossConcurrentPublish verifies a snapshot
// pointer already returned by Current is never mutated by a later Publish
// (I1/I6: in-flight requests keep using the snapshot they started with).
func TestStoreCurrentSnapshotStableAcrossConcurrentPublish(t *testing.T) {
	first := NewSnapshot(1, time.Now(), nil, nil)
	st := NewStore(first)

	held := st.Current()
	st.Publish(NewSnapshot(2, time.Now(), nil, nil))

	if held.Version != 1 {
		t.Fatalf("expected previously-held snapshot to stay version 1, got %d", held.Version)
	}
}
