// Package auth implements the authentication precedence from spec.md
// §4.6.2: service token first, then application bearer token, then
// session user - plus the pluggable AuthenticationStrategy contract a
// core can swap in an OIDC/SSO adapter behind.
//
// Grounded on the teacher's JWT manager (auth/jwt.go): same
// algorithm-substitution defense (explicit signing-method check before
// trusting claims) and same claims-struct-embeds-RegisteredClaims
// shape, switched from the teacher's HS256 user session tokens to
// RS256 for service-to-service tokens (spec.md §6: "service tokens are
// RS256, 5-minute TTL, verified via the host's own JWKS").
package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/corehost/platform/internal/apierr"
)

// ServiceClaims identifies which plugin a service token was minted for.
type ServiceClaims struct {
	PluginID string `json:"plugin_id"`
	jwt.RegisteredClaims
}

// ServiceTokenIssuer signs and verifies short-lived RS256 tokens
// plugins use to call each other's HTTP routes as the platform itself
// rather than as any particular user (spec.md §4.6.2).
type ServiceTokenIssuer struct {
	key *rsa.PrivateKey
	ttl time.Duration
}

func NewServiceTokenIssuer(ttl time.Duration) (*ServiceTokenIssuer, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("generate service token key: %w", err))
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ServiceTokenIssuer{key: key, ttl: ttl}, nil
}

// Issue mints a service token scoped to pluginID.
func (i *ServiceTokenIssuer) Issue(pluginID string) (string, error) {
	now := time.Now()
	claims := ServiceClaims{
		PluginID: pluginID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "corehost-platform",
			Subject:   pluginID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "platform-1"
	signed, err := token.SignedString(i.key)
	if err != nil {
		return "", apierr.Internal(fmt.Errorf("sign service token: %w", err))
	}
	return signed, nil
}

// Verify validates a service token and returns its claims.
//
// The signing-method check here mirrors the teacher's algorithm-
// substitution defense (auth/jwt.go): a token claiming "none" or HMAC
// must never be trusted just because the key callback returned
// something - the callback rejects any token whose alg is not RS256
// before handing back the *rsa.PublicKey.
func (i *ServiceTokenIssuer) Verify(tokenString string) (*ServiceClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ServiceClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodRS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &i.key.PublicKey, nil
	})
	if err != nil {
		return nil, apierr.Unauthorized("invalid service token")
	}
	claims, ok := token.Claims.(*ServiceClaims)
	if !ok || !token.Valid {
		return nil, apierr.Unauthorized("invalid service token")
	}
	return claims, nil
}

// jwksKey is one entry of the JWKS document's "keys" array.
type jwksKey struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKS returns the public key set other instances need to verify
// service tokens this instance issued, exposed at
// /.well-known/jwks.json (spec.md §4.6.2, SPEC_FULL.md §4).
func (i *ServiceTokenIssuer) JWKS() map[string]interface{} {
	pub := i.key.PublicKey
	nBytes := pub.N.Bytes()
	eBytes := big.NewInt(int64(pub.E)).Bytes()

	key := jwksKey{
		Kty: "RSA",
		Use: "sig",
		Kid: "platform-1",
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(nBytes),
		E:   base64.RawURLEncoding.EncodeToString(eBytes),
	}
	return map[string]interface{}{"keys": []jwksKey{key}}
}

// PublicKeyDER returns the DER-encoded public key, for instances that
// need to cross-verify another instance's tokens out of band rather
// than through JWKS.
func (i *ServiceTokenIssuer) PublicKeyDER() ([]byte, error) {
	return x509.MarshalPKIXPublicKey(&i.key.PublicKey)
}
