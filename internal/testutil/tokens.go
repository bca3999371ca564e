package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/mathchange/backend/internal/testutil/fixtures"
)

// SigningKey is an RSA keypair together with the PEM-encoded self-signed
// certificate that publishes its public half, in the format the identity
// provider serves from its key endpoint.
type SigningKey struct {
	// Key is the private key used to sign test tokens.
	Key *rsa.PrivateKey

	// CertPEM is a self-signed X.509 certificate for Key's public half,
	// PEM encoded.
	CertPEM string
}

// NewSigningKey generates a fresh RSA keypair and a self-signed
// certificate for it. Generation uses a 2048-bit modulus; smaller keys are
// rejected by the JWT library's RS256 implementation.
func NewSigningKey(t testing.TB) *SigningKey {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err, "failed to generate RSA key")

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test-signing-key"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err, "failed to create self-signed certificate")

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	return &SigningKey{Key: key, CertPEM: string(certPEM)}
}

// TokenOption mutates the claims or header of a token built by
// [SignToken].
type TokenOption func(claims jwt.MapClaims, header map[string]any)

// WithExpiry overrides the token's exp claim.
func WithExpiry(exp time.Time) TokenOption {
	return func(claims jwt.MapClaims, _ map[string]any) {
		claims["exp"] = exp.Unix()
	}
}

// WithAudience overrides the token's aud claim.
func WithAudience(aud string) TokenOption {
	return func(claims jwt.MapClaims, _ map[string]any) {
		claims["aud"] = aud
	}
}

// WithoutClaim removes a claim from the token payload.
func WithoutClaim(name string) TokenOption {
	return func(claims jwt.MapClaims, _ map[string]any) {
		delete(claims, name)
	}
}

// WithClaim sets an arbitrary claim on the token payload.
func WithClaim(name string, value any) TokenOption {
	return func(claims jwt.MapClaims, _ map[string]any) {
		claims[name] = value
	}
}

// WithoutKeyID removes the kid header from the token.
func WithoutKeyID() TokenOption {
	return func(_ jwt.MapClaims, header map[string]any) {
		delete(header, "kid")
	}
}

// SignToken signs an RS256 token with the given key and kid, carrying the
// standard test identity claims plus any option overrides. Defaults: sub,
// email, and name from the fixtures package, aud from audience, exp one
// hour out.
func SignToken(t testing.TB, key *SigningKey, kid, audience string, opts ...TokenOption) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub":   fixtures.TestSubject,
		"email": fixtures.TestEmail,
		"name":  fixtures.TestDisplayName,
		"aud":   audience,
		"iat":   time.Now().Add(-time.Minute).Unix(),
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	for _, opt := range opts {
		opt(claims, token.Header)
	}

	signed, err := token.SignedString(key.Key)
	require.NoError(t, err, "failed to sign test token")
	return signed
}

// UnsignedToken builds an alg:none token with the given claims and kid,
// for exercising algorithm rejection.
func UnsignedToken(t testing.TB, kid, audience string) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub":   fixtures.TestSubject,
		"email": fixtures.TestEmail,
		"aud":   audience,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	token.Header["kid"] = kid

	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err, "failed to build unsigned test token")
	return signed
}
