// Package auth implements the bearer-token watch from spec.md §4.9:
// discover and cache an OIDC issuer's JWKS, validate incoming tokens
// against it, and extract a role-based capability set. Grounded on
// lazydocker's HTTP client usage (pkg/commands/os.go's retry/backoff
// style) for the JWKS fetch, and on golang-jwt/jwt/v5's keyfunc pattern for
// kid-based key selection; no JWKS client library appears anywhere in the
// example corpus, so the fetch/cache is hand-rolled over net/http
// (justified in DESIGN.md).
package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/flecserr"
)

// requiredAudience is the audience every accepted token must include
// (spec.md §4.9 "audience … must include `account`").
const requiredAudience = "account"

// allowedAlgs is the fixed set of JWT algorithms a JWK's "alg" may map to
// (spec.md §4.9 "maps the JWK algorithm to a JWT algorithm from a fixed
// allowed set").
var allowedAlgs = map[string]bool{
	"RS256": true,
	"RS384": true,
	"RS512": true,
}

// jwk is the subset of RFC 7517 fields the watch needs to reconstruct an
// RSA public key.
type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

// Claims is the subset of the validated token's claims the watch exposes.
type Claims struct {
	jwt.RegisteredClaims
	RealmAccess struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
	ResourceAccess map[string]struct {
		Roles []string `json:"roles"`
	} `json:"resource_access"`
}

// Watch discovers, caches, and validates against an OIDC issuer's JWKS.
type Watch struct {
	issuerURL string
	jwksURL   string
	client    *http.Client
	log       *logrus.Entry
	ttl       time.Duration

	mu       sync.Mutex
	keys     map[string]*rsa.PublicKey
	keyAlgs  map[string]string
	fetchedAt time.Time
}

// NewWatch builds a Watch against issuerURL, discovering its JWKS endpoint
// lazily on first validation. ttl bounds how long a fetched key set is
// trusted before a fresh fetch is required.
func NewWatch(issuerURL string, ttl time.Duration, log *logrus.Entry) *Watch {
	return &Watch{
		issuerURL: issuerURL,
		client:    &http.Client{Timeout: 10 * time.Second},
		log:       log,
		ttl:       ttl,
		keys:      make(map[string]*rsa.PublicKey),
		keyAlgs:   make(map[string]string),
	}
}

// discoveryDoc is the subset of the OIDC discovery document the watch needs.
type discoveryDoc struct {
	JWKSURI string `json:"jwks_uri"`
}

// discoverJWKSURL fetches issuer/.well-known/openid-configuration once and
// caches the jwks_uri it names (spec.md §4.9 "Discovers the issuer's JWKS
// URL once").
func (w *Watch) discoverJWKSURL(ctx context.Context) (string, error) {
	w.mu.Lock()
	if w.jwksURL != "" {
		defer w.mu.Unlock()
		return w.jwksURL, nil
	}
	w.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.issuerURL+"/.well-known/openid-configuration", nil)
	if err != nil {
		return "", err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("discovery endpoint returned %d", resp.StatusCode)
	}

	var doc discoveryDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", err
	}

	w.mu.Lock()
	w.jwksURL = doc.JWKSURI
	w.mu.Unlock()
	return doc.JWKSURI, nil
}

// refreshKeys fetches and parses the JWKS, replacing the cached key set.
func (w *Watch) refreshKeys(ctx context.Context) error {
	jwksURL, err := w.discoverJWKSURL(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURL, nil)
	if err != nil {
		return err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks endpoint returned %d", resp.StatusCode)
	}

	var set jwkSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return err
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	algs := make(map[string]string, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" {
			continue
		}
		pub, err := rsaPublicKeyFromJWK(k)
		if err != nil {
			w.log.WithError(err).WithField("kid", k.Kid).Warn("skipping malformed JWK")
			continue
		}
		keys[k.Kid] = pub
		algs[k.Kid] = k.Alg
	}

	w.mu.Lock()
	w.keys = keys
	w.keyAlgs = algs
	w.fetchedAt = time.Now()
	w.mu.Unlock()
	return nil
}

func rsaPublicKeyFromJWK(k jwk) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}

func (w *Watch) stale() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fetchedAt.IsZero() || time.Since(w.fetchedAt) > w.ttl
}

func (w *Watch) lookupKey(kid string) (*rsa.PublicKey, string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	key, ok := w.keys[kid]
	return key, w.keyAlgs[kid], ok
}

// Validate parses and validates a bearer token, returning the role set it
// grants on success (spec.md §4.9). An unknown kid triggers exactly one
// JWKS refetch before failing.
func (w *Watch) Validate(ctx context.Context, tokenString string) (map[string]bool, error) {
	if w.stale() {
		if err := w.refreshKeys(ctx); err != nil {
			return nil, flecserr.Because(flecserr.KindRuntimeFailure, "refresh jwks", err)
		}
	}

	refetched := false
	var claims Claims
	parse := func() (*jwt.Token, error) {
		return jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
			kid, _ := t.Header["kid"].(string)
			key, alg, ok := w.lookupKey(kid)
			if !ok {
				return nil, fmt.Errorf("unknown key id %q", kid)
			}
			if !allowedAlgs[alg] {
				return nil, fmt.Errorf("key %q uses disallowed algorithm %q", kid, alg)
			}
			return key, nil
		}, jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}))
	}

	token, err := parse()
	if err != nil && !refetched {
		refetched = true
		if rerr := w.refreshKeys(ctx); rerr == nil {
			token, err = parse()
		}
	}
	if err != nil {
		return nil, flecserr.Because(flecserr.KindMalformedRequest, "validate bearer token", err)
	}
	if !token.Valid {
		return nil, flecserr.New(flecserr.KindMalformedRequest, "bearer token failed validation")
	}

	audiences, err := claims.GetAudience()
	if err != nil || !containsString(audiences, requiredAudience) {
		return nil, flecserr.New(flecserr.KindMalformedRequest, "bearer token audience does not include \"account\"")
	}
	if w.issuerURL != "" {
		issuer, err := claims.GetIssuer()
		if err != nil || issuer != w.issuerURL {
			return nil, flecserr.New(flecserr.KindMalformedRequest, "bearer token issuer mismatch")
		}
	}

	roles := make(map[string]bool)
	for _, r := range claims.RealmAccess.Roles {
		roles[r] = true
	}
	if account, ok := claims.ResourceAccess["account"]; ok {
		for _, r := range account.Roles {
			roles[r] = true
		}
	}
	return roles, nil
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
