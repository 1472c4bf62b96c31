// Package auth provides capability tokens for the wikiexplorer HTTP API.
//
// Tokens are loaded from a TOML file at startup. Each token grants a set of
// operations (search, links, random) and may expire. The file stores only
// hashes of the raw tokens.
//
// TOML format:
//
//	[tokens]
//	"sha256-abc123..." = { operations = ["search"], expires = 2027-01-01T00:00:00Z }
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Operations guarded by tokens.
const (
	OpSearch = "search"
	OpLinks  = "links"
	OpRandom = "random"
)

// Token is a single token's grant.
type Token struct {
	Operations []string  `toml:"operations"`
	Expires    time.Time `toml:"expires,omitempty"`
}

type tokensFile struct {
	Tokens map[string]Token `toml:"tokens"`
}

// TokenStore holds loaded tokens and checks requests against them.
type TokenStore struct {
	tokens map[string]Token
	now    func() time.Time
}

// Sentinel errors for authorization results.
var (
	ErrNoToken      = errors.New("no auth token provided")
	ErrInvalidToken = errors.New("invalid auth token")
	ErrExpired      = errors.New("auth token expired")
	ErrNotPermitted = errors.New("insufficient permissions")
)

// LoadTokens reads a TOML tokens file.
func LoadTokens(path string) (*TokenStore, error) {
	var tf tokensFile
	if _, err := toml.DecodeFile(path, &tf); err != nil {
		return nil, fmt.Errorf("load tokens file %q: %w", path, err)
	}
	return NewTokenStore(tf.Tokens), nil
}

// NewTokenStore creates a TokenStore from tokens keyed by HashToken.
func NewTokenStore(tokens map[string]Token) *TokenStore {
	if tokens == nil {
		tokens = make(map[string]Token)
	}
	return &TokenStore{tokens: tokens, now: time.Now}
}

// HashToken returns the SHA-256 hash of a raw token as "sha256-<hex>".
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return "sha256-" + hex.EncodeToString(h[:])
}

// Generate returns a new random raw token.
func Generate() (string, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(secret), nil
}

// Entry renders the TOML line granting operations to the hash of raw.
func Entry(raw string, operations []string, expires time.Time) string {
	quoted := make([]string, len(operations))
	for i, op := range operations {
		quoted[i] = fmt.Sprintf("%q", op)
	}
	entry := fmt.Sprintf("%q = { operations = [%s]", HashToken(raw), strings.Join(quoted, ", "))
	if !expires.IsZero() {
		entry += ", expires = " + expires.UTC().Format(time.RFC3339)
	}
	return entry + " }\n"
}

// Authorize checks whether the raw token may perform operation.
func (ts *TokenStore) Authorize(token, operation string) error {
	if token == "" {
		return ErrNoToken
	}
	t, ok := ts.tokens[HashToken(token)]
	if !ok {
		return ErrInvalidToken
	}
	if !t.Expires.IsZero() && !ts.now().Before(t.Expires) {
		return ErrExpired
	}
	if !slices.Contains(t.Operations, operation) {
		return ErrNotPermitted
	}
	return nil
}

// Require returns middleware that admits only requests whose token grants
// operation. The token is read from "Authorization: Bearer", or from the
// token query parameter for clients such as EventSource that cannot set
// headers.
func (ts *TokenStore) Require(operation string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := ts.Authorize(tokenFrom(r), operation)
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, ErrNotPermitted):
				http.Error(w, err.Error(), http.StatusForbidden)
			default:
				w.Header().Set("WWW-Authenticate", `Bearer realm="wikiexplorer"`)
				http.Error(w, err.Error(), http.StatusUnauthorized)
			}
		})
	}
}

func tokenFrom(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	return r.URL.Query().Get("token")
}
