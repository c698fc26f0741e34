/**
 * @description
 * This file contains custom middleware for the HTTP router. The authentication
 * middleware validates Keycloak-issued JWTs against the realm's JWKS endpoint,
 * extracts the caller's identity and realm roles into a typed principal, and
 * stores it on the request context. A role-guard middleware builds on that to
 * protect the admin surface.
 *
 * @dependencies
 * - context, net/http, strings: Standard Go libraries.
 * - crypto/rsa, encoding/base64, math/big: RSA public key reconstruction from JWKS.
 * - github.com/golang-jwt/jwt/v5: Token parsing and validation.
 * - internal/domain: The Principal type carried through the context.
 */

package api

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/microbank/transfer-service/internal/domain"
)

// principalContextKey is a custom type for the context key to avoid collisions.
type principalContextKey string

const principalKey principalContextKey = "principal"

// jwksCache holds fetched realm keys for a short period so every request does
// not round-trip to the identity provider.
type jwksCache struct {
	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
	ttl       time.Duration
}

var realmKeys = &jwksCache{keys: map[string]*rsa.PublicKey{}, ttl: 5 * time.Minute}

// KeycloakAuthMiddleware creates a middleware that validates JWT tokens issued
// by the Keycloak realm behind jwksURL. Audience and issuer checks are applied
// when the expected values are non-empty.
func KeycloakAuthMiddleware(jwksURL, expectedIssuer, expectedAudience string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeUnauthorized(w, "Authorization header required")
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				writeUnauthorized(w, "Invalid Authorization header format")
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				kid, ok := token.Header["kid"].(string)
				if !ok {
					return nil, fmt.Errorf("kid not found in token header")
				}
				publicKey, err := realmKeys.get(jwksURL, kid)
				if err != nil {
					return nil, fmt.Errorf("failed to get public key: %w", err)
				}
				return publicKey, nil
			})
			if err != nil || !token.Valid {
				writeUnauthorized(w, "Invalid token")
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				writeUnauthorized(w, "Invalid token claims")
				return
			}

			if expectedIssuer != "" {
				if iss, ok := claims["iss"].(string); !ok || iss != expectedIssuer {
					writeUnauthorized(w, "Invalid issuer")
					return
				}
			}
			if expectedAudience != "" && !hasAudience(claims, expectedAudience) {
				writeUnauthorized(w, "Invalid audience")
				return
			}

			subject, ok := claims["sub"].(string)
			if !ok || subject == "" {
				writeUnauthorized(w, "Subject not found in token")
				return
			}

			principal := domain.Principal{
				KeycloakID: subject,
				Roles:      realmRoles(claims),
				RawToken:   tokenString,
			}
			if email, ok := claims["email"].(string); ok {
				principal.Email = email
			}

			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireRole guards a route subtree behind a realm role. It assumes the
// authentication middleware already ran.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := GetPrincipal(r.Context())
			if !ok {
				writeUnauthorized(w, "Not authenticated")
				return
			}
			if !principal.HasRole(role) {
				writeJSONError(w, http.StatusForbidden, "Insufficient privileges")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ContextWithPrincipal stores the authenticated principal on the context.
func ContextWithPrincipal(ctx context.Context, principal domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey, principal)
}

// GetPrincipal retrieves the authenticated principal from the request context.
func GetPrincipal(ctx context.Context) (domain.Principal, bool) {
	principal, ok := ctx.Value(principalKey).(domain.Principal)
	return principal, ok
}

// realmRoles extracts Keycloak realm roles from the realm_access claim.
func realmRoles(claims jwt.MapClaims) []string {
	realmAccess, ok := claims["realm_access"].(map[string]interface{})
	if !ok {
		return nil
	}
	rawRoles, ok := realmAccess["roles"].([]interface{})
	if !ok {
		return nil
	}
	roles := make([]string, 0, len(rawRoles))
	for _, raw := range rawRoles {
		if role, ok := raw.(string); ok {
			roles = append(roles, role)
		}
	}
	return roles
}

// hasAudience handles both the string and array forms of the aud claim.
func hasAudience(claims jwt.MapClaims, expected string) bool {
	switch aud := claims["aud"].(type) {
	case string:
		return aud == expected
	case []interface{}:
		for _, raw := range aud {
			if s, ok := raw.(string); ok && s == expected {
				return true
			}
		}
	}
	return false
}

func (c *jwksCache) get(jwksURL, kid string) (*rsa.PublicKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if key, ok := c.keys[kid]; ok && time.Since(c.fetchedAt) < c.ttl {
		return key, nil
	}

	if err := c.refreshLocked(jwksURL); err != nil {
		return nil, err
	}
	key, ok := c.keys[kid]
	if !ok {
		return nil, fmt.Errorf("key with kid %s not found", kid)
	}
	return key, nil
}

func (c *jwksCache) refreshLocked(jwksURL string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(jwksURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var jwks struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			Use string `json:"use"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return err
	}

	keys := make(map[string]*rsa.PublicKey, len(jwks.Keys))
	for _, key := range jwks.Keys {
		if key.Kty != "RSA" {
			continue
		}
		pub, err := parseRSAPublicKey(key.N, key.E)
		if err != nil {
			continue
		}
		keys[key.Kid] = pub
	}
	c.keys = keys
	c.fetchedAt = time.Now()
	return nil
}

// parseRSAPublicKey parses an RSA public key from base64url modulus and exponent.
func parseRSAPublicKey(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	var exp uint64
	for _, b := range eb {
		exp = (exp << 8) | uint64(b)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nb),
		E: int(exp),
	}, nil
}
