// Package auth implements the credential authenticator (C2): bearer token
// extraction, constant-time hash lookup against the current config
// snapshot, and the allowed_models check.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/nulpointcorp/llm-gateway/internal/config"
	"github.com/nulpointcorp/llm-gateway/internal/gwerr"
)

// Result is what a successful Authenticate call hands back to the caller
// for use by the rest of the pipeline (rate limiting, logging).
type Result struct {
	Credential *config.Credential
}

// Authenticator validates the Authorization header against whichever
// Snapshot is current at call time (I1: every request is authenticated
// against one consistent snapshot for its whole lifetime).
type Authenticator struct {
	store *config.Store
}

func New(store *config.Store) *Authenticator {
	return &Authenticator{store: store}
}

// Authenticate extracts the bearer token from rawHeader, hashes it, and
// looks it up in snap. It does not itself read the snapshot from the
// store — callers resolve Current() once per request and pass it through
// so every later pipeline stage (C3, C4, C9) sees the exact same snapshot.
func (a *Authenticator) Authenticate(snap *config.Snapshot, rawHeader string) (*config.Credential, error) {
	token := ParseBearerToken(rawHeader)
	if token == "" {
		return nil, gwerr.New(gwerr.Unauthorized, "missing or malformed Authorization header")
	}

	hash := HashToken(token)

	cred, ok := snap.CredentialByHash(hash)
	if !ok || !constantTimeHashEqual(cred, hash) {
		return nil, gwerr.New(gwerr.Unauthorized, "invalid API key")
	}
	if !cred.IsEnabled {
		return nil, gwerr.New(gwerr.Forbidden, "credential is disabled")
	}
	return cred, nil
}

// AuthorizeModel checks the allowed_models rule for a resolved client
// model name (Open Question (b): a literal "*" entry wins over any other
// entries, already implemented by Credential.Allows).
func AuthorizeModel(cred *config.Credential, clientModel string) error {
	if !cred.Allows(clientModel) {
		return gwerr.New(gwerr.ForbiddenModel, "credential is not permitted to use model "+clientModel)
	}
	return nil
}

// HashToken returns the sha256 hex digest used as the snapshot's
// credential lookup key. Never log or persist the raw token itself.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ParseBearerToken extracts the token from a raw "Authorization: Bearer
// <token>" header value.
func ParseBearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// constantTimeHashEqual re-checks the looked-up credential's hash against
// the computed hash in constant time. The map lookup above is on the hash
// itself (never the raw key) so this doesn't defend against a timing
// attack the map lookup doesn't already close; it's kept as the explicit
// comparison point so a future lookup strategy change can't silently drop it.
func constantTimeHashEqual(cred *config.Credential, hash string) bool {
	return subtle.ConstantTimeCompare([]byte(cred.HashedKey), []byte(hash)) == 1
}
