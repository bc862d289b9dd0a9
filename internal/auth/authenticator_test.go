package auth

import (
	"testing"
	"time"

	"github.com/nulpointcorp/llm-gateway/internal/config"
	"github.com/nulpointcorp/llm-gateway/internal/gwerr"
)

func snapshotWithCredential(c *config.Credential) *config.Snapshot {
	return config.NewSnapshot(1, time.Now(), nil, []*config.Credential{c})
}

func TestParseBearerToken(t *testing.T) {
	cases := []struct {
		name   string
		header string
		want   string
	}{
		{"well formed", "Bearer sk-abc123", "sk-abc123"},
		{"case insensitive scheme", "bearer sk-abc123", "sk-abc123"},
		{"extra whitespace trimmed", "  Bearer   sk-abc123  ", "sk-abc123"},
		{"missing scheme", "sk-abc123", ""},
		{"empty header", "", ""},
		{"wrong scheme", "Basic sk-abc123", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ParseBearerToken(tc.header); got != tc.want {
				t.Fatalf("ParseBearerToken(%q) = %q, want %q", tc.header, got, tc.want)
			}
		})
	}
}

func TestHashTokenIsDeterministicAndDistinct(t *testing.T) {
	a := HashToken("sk-one")
	b := HashToken("sk-one")
	c := HashToken("sk-two")

	if a != b {
		t.Fatal("expected HashToken to be deterministic for the same input")
	}
	if a == c {
		t.Fatal("expected distinct tokens to hash differently")
	}
}

func TestAuthenticateMissingHeaderIsUnauthorized(t *testing.T) {
	a := New(nil)
	snap := snapshotWithCredential(&config.Credential{})

	_, err := a.Authenticate(snap, "")
	assertKind(t, err, gwerr.Unauthorized)
}

func TestAuthenticateUnknownTokenIsUnauthorized(t *testing.T) {
	a := New(nil)
	cred := &config.Credential{ID: 1, HashedKey: HashToken("sk-real"), IsEnabled: true}
	snap := snapshotWithCredential(cred)

	_, err := a.Authenticate(snap, "Bearer sk-wrong")
	assertKind(t, err, gwerr.Unauthorized)
}

func TestAuthenticateValidTokenReturnsCredential(t *testing.T) {
	a := New(nil)
	cred := &config.Credential{ID: 1, HashedKey: HashToken("sk-real"), IsEnabled: true}
	snap := snapshotWithCredential(cred)

	got, err := a.Authenticate(snap, "Bearer sk-real")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != 1 {
		t.Fatalf("expected credential 1, got %d", got.ID)
	}
}

func TestAuthenticateDisabledCredentialIsForbidden(t *testing.T) {
	a := New(nil)
	cred := &config.Credential{ID: 1, HashedKey: HashToken("sk-real"), IsEnabled: false}
	snap := snapshotWithCredential(cred)

	_, err := a.Authenticate(snap, "Bearer sk-real")
	assertKind(t, err, gwerr.Forbidden)
}

func TestAuthorizeModelWildcardAllowsAnything(t *testing.T) {
	cred := &config.Credential{AllowedModels: []string{"*"}}
	if err := AuthorizeModel(cred, "anything-goes"); err != nil {
		t.Fatalf("expected wildcard to allow, got %v", err)
	}
}

func TestAuthorizeModelExactMatchAllowed(t *testing.T) {
	cred := &config.Credential{AllowedModels: []string{"gpt-4o", "claude-3-5-sonnet"}}
	if err := AuthorizeModel(cred, "gpt-4o"); err != nil {
		t.Fatalf("expected exact match to allow, got %v", err)
	}
}

func TestAuthorizeModelUnlistedIsForbidden(t *testing.T) {
	cred := &config.Credential{AllowedModels: []string{"gpt-4o"}}
	err := AuthorizeModel(cred, "claude-3-5-sonnet")
	assertKind(t, err, gwerr.ForbiddenModel)
}

func assertKind(t *testing.T, err error, want gwerr.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error of kind %v, got nil", want)
	}
	gerr, ok := err.(*gwerr.Error)
	if !ok {
		t.Fatalf("expected *gwerr.Error, got %T (%v)", err, err)
	}
	if gerr.Kind != want {
		t.Fatalf("expected kind %v, got %v", want, gerr.Kind)
	}
}
