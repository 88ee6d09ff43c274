package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/viralforge/storefront-identity/internal/domain"
	"github.com/viralforge/storefront-identity/internal/ports"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)
	hash, err := h.Hash("SecurePass123!")
	require.NoError(t, err)
	require.NotEqual(t, "SecurePass123!", hash)

	require.NoError(t, h.Compare(hash, "SecurePass123!"))
	require.ErrorIs(t, h.Compare(hash, "wrong"), domain.ErrInvalidCredentials)
}

func TestJWTRoundTrip(t *testing.T) {
	signer, err := NewEphemeralJWTSigner("k1", "storefront-identity")
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	raw, err := signer.Sign(ports.TokenClaims{
		SubjectID:   "u1",
		Email:       "u1@example.com",
		DisplayName: "Ada",
		TokenID:     "t1",
		IssuedAt:    now,
		ExpiresAt:   now.Add(time.Hour),
	})
	require.NoError(t, err)

	claims, err := signer.ParseAndValidate(raw)
	require.NoError(t, err)
	require.Equal(t, "u1", claims.SubjectID)
	require.Equal(t, "u1@example.com", claims.Email)
	require.Equal(t, "Ada", claims.DisplayName)
	require.Equal(t, "t1", claims.TokenID)
	require.Equal(t, now.Add(time.Hour), claims.ExpiresAt)
}

func TestJWTRejectsExpiredAndForeignTokens(t *testing.T) {
	signer, err := NewEphemeralJWTSigner("k1", "storefront-identity")
	require.NoError(t, err)
	other, err := NewEphemeralJWTSigner("k2", "storefront-identity")
	require.NoError(t, err)

	past := time.Now().Add(-2 * time.Hour)
	expired, err := signer.Sign(ports.TokenClaims{SubjectID: "u1", IssuedAt: past, ExpiresAt: past.Add(time.Minute)})
	require.NoError(t, err)
	_, err = signer.ParseAndValidate(expired)
	require.ErrorIs(t, err, domain.ErrUnauthenticated)

	foreign, err := other.Sign(ports.TokenClaims{SubjectID: "u1", IssuedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	_, err = signer.ParseAndValidate(foreign)
	require.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, err = signer.ParseAndValidate("not-a-jwt")
	require.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestNewJWTSignerFromPEM(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	privPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}))
	pubPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))

	signer, err := NewJWTSigner("k1", "", privPEM, pubPEM)
	require.NoError(t, err)
	jwks := signer.PublicJWKs()
	require.Len(t, jwks, 1)
	require.Equal(t, "k1", jwks[0]["kid"])

	_, err = NewJWTSigner("", "", privPEM, pubPEM)
	require.Error(t, err)
	_, err = NewJWTSigner("k1", "", "garbage", pubPEM)
	require.Error(t, err)
}
