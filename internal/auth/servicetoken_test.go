package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceTokenRoundTrip(t *testing.T) {
	issuer, err := NewServiceTokenIssuer(5 * time.Minute)
	require.NoError(t, err)

	token, err := issuer.Issue("billing")
	require.NoError(t, err)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "billing", claims.PluginID)
}

func TestServiceTokenRejectsForeignKey(t *testing.T) {
	issuerA, err := NewServiceTokenIssuer(time.Minute)
	require.NoError(t, err)
	issuerB, err := NewServiceTokenIssuer(time.Minute)
	require.NoError(t, err)

	token, err := issuerA.Issue("billing")
	require.NoError(t, err)

	_, err = issuerB.Verify(token)
	assert.Error(t, err)
}

func TestJWKSExposesPublicKey(t *testing.T) {
	issuer, err := NewServiceTokenIssuer(time.Minute)
	require.NoError(t, err)

	jwks := issuer.JWKS()
	keys, ok := jwks["keys"].([]jwksKey)
	require.True(t, ok)
	require.Len(t, keys, 1)
	assert.Equal(t, "RSA", keys[0].Kty)
}
