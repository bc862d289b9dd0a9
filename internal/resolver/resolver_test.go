package resolver

import (
	"testing"
	"time"

	"github.com/nulpointcorp/llm-gateway/internal/config"
)

func provider(id int64, key string, enabled bool, mappings ...config.ModelMapping) *config.Provider {
	return &config.Provider{
		ID:           id,
		Key:          key,
		IsEnabled:    enabled,
		ModelMapping: mappings,
		Weight:       1,
	}
}

// TestNormalizeStripsConfiguredPrefix verifies a leading "Suffix/" is
// stripped when ProviderSuffix is set.
func TestNormalizeStripsConfiguredPrefix(t *testing.T) {
	r := New("Proxy")

	got := r.Normalize("Proxy/gpt-4o")
	if got != "gpt-4o" {
		t.Fatalf("expected prefix stripped, got %q", got)
	}
}

// TestNormalizeLeavesUnrelatedPrefixAlone verifies a model name that
// doesn't carry the configured prefix passes through unchanged.
func TestNormalizeLeavesUnrelatedPrefixAlone(t *testing.T) {
	r := New("Proxy")

	got := r.Normalize("azure-gpt-4o")
	if got != "azure-gpt-4o" {
		t.Fatalf("expected unrelated prefix untouched, got %q", got)
	}
}

// TestNormalizeNoSuffixConfiguredIsNoop verifies an empty ProviderSuffix
// disables stripping entirely.
func TestNormalizeNoSuffixConfiguredIsNoop(t *testing.T) {
	r := New("")

	got := r.Normalize("Proxy/gpt-4o")
	if got != "Proxy/gpt-4o" {
		t.Fatalf("expected no-op normalize, got %q", got)
	}
}

// TestNormalizeIsIdempotent verifies calling Normalize twice on an
// already-normalized model is safe — core.go and Resolve both call it.
func TestNormalizeIsIdempotent(t *testing.T) {
	r := New("Proxy")

	once := r.Normalize("Proxy/gpt-4o")
	twice := r.Normalize(once)
	if once != twice {
		t.Fatalf("expected idempotent normalize, got %q then %q", once, twice)
	}
}

// TestResolveReturnsCandidatesInSnapshotOrder verifies Resolve returns one
// Candidate per enabled provider advertising the model, in the snapshot's
// deterministic order, each carrying its own provider-facing model name.
func TestResolveReturnsCandidatesInSnapshotOrder(t *testing.T) {
	p1 := provider(1, "openai-primary", true, config.ModelMapping{ClientModel: "gpt-4o", ProviderModel: "gpt-4o"})
	p2 := provider(2, "azure-primary", true, config.ModelMapping{ClientModel: "gpt-4o", ProviderModel: "azure-gpt-4o-deployment"})
	snap := config.NewSnapshot(1, time.Now(), []*config.Provider{p1, p2}, nil)

	r := New("")
	cands, err := r.Resolve(snap, "gpt-4o")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cands) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(cands))
	}
	if cands[0].Provider.ID != 1 || cands[0].ProviderModel != "gpt-4o" {
		t.Fatalf("unexpected first candidate: %+v", cands[0])
	}
	if cands[1].Provider.ID != 2 || cands[1].ProviderModel != "azure-gpt-4o-deployment" {
		t.Fatalf("unexpected second candidate: %+v", cands[1])
	}
}

// TestResolveAppliesWildcardMapping verifies a "*" ModelMapping entry
// matches any client model not matched more specifically, passing the
// client model straight through when the wildcard's ProviderModel is also
// "*".
func TestResolveAppliesWildcardMapping(t *testing.T) {
	p := provider(1, "compat-primary", true, config.ModelMapping{ClientModel: "*", ProviderModel: "*"})
	snap := config.NewSnapshot(1, time.Now(), []*config.Provider{p}, nil)

	r := New("")
	cands, err := r.Resolve(snap, "some-unlisted-model")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cands) != 1 || cands[0].ProviderModel != "some-unlisted-model" {
		t.Fatalf("expected wildcard passthrough, got %+v", cands)
	}
}

// TestResolveUnknownModelErrors verifies an unadvertised model yields
// gwerr.UnknownModel rather than an empty, silently-successful result.
func TestResolveUnknownModelErrors(t *testing.T) {
	snap := config.NewSnapshot(1, time.Now(), nil, nil)

	r := New("")
	if _, err := r.Resolve(snap, "gpt-4o"); err == nil {
		t.Fatal("expected error for unknown model")
	}
}

// TestResolveSkipsDisabledProviders verifies a disabled provider's
// mappings never surface as a candidate even if it advertises the model.
func TestResolveSkipsDisabledProviders(t *testing.T) {
	p := provider(1, "disabled", false, config.ModelMapping{ClientModel: "gpt-4o", ProviderModel: "gpt-4o"})
	snap := config.NewSnapshot(1, time.Now(), []*config.Provider{p}, nil)

	r := New("")
	if _, err := r.Resolve(snap, "gpt-4o"); err == nil {
		t.Fatal("expected unknown_model error, disabled provider should not count")
	}
}

// TestResolveNormalizesBeforeLookup verifies Resolve strips the configured
// prefix before indexing into the snapshot, so a client sending the
// prefixed name still resolves.
func TestResolveNormalizesBeforeLookup(t *testing.T) {
	p := provider(1, "openai-primary", true, config.ModelMapping{ClientModel: "gpt-4o", ProviderModel: "gpt-4o"})
	snap := config.NewSnapshot(1, time.Now(), []*config.Provider{p}, nil)

	r := New("Proxy")
	cands, err := r.Resolve(snap, "Proxy/gpt-4o")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cands) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(cands))
	}
}
