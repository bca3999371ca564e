package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	mcerr "github.com/mathchange/backend/pkg/errors"
)

// tracerName is the OpenTelemetry instrumentation scope name for auth spans.
const tracerName = "github.com/mathchange/backend/pkg/auth"

// maxTokenSize is the maximum accepted size for a bearer token (8 KB).
// Tokens larger than this are rejected to prevent resource exhaustion.
const maxTokenSize = 8192

// signingAlgorithm is the asymmetric algorithm the identity provider
// declares for its ID tokens. jwt.WithValidMethods pins verification to
// this algorithm, which also rejects alg-confusion attempts (e.g. a token
// re-signed with HS256 using the public key as an HMAC secret).
const signingAlgorithm = "RS256"

// Verifier decides whether a bearer token is a currently valid assertion
// of identity from the trusted provider. Each verification call walks a
// fixed pipeline: parse the header, locate the signing key through the
// [KeyCache], check the signature, then check the audience and expiry
// claims.
//
// Verifier is safe for concurrent use by multiple goroutines.
type Verifier struct {
	keys     *KeyCache
	audience string
	tracer   trace.Tracer
}

// NewVerifier creates a Verifier that accepts tokens issued for the given
// audience (the relying application's identifier) and resolves signing
// keys through keys.
//
// Returns a validation error if keys is nil or audience is empty: an empty
// expected audience would accept tokens minted for any application.
func NewVerifier(keys *KeyCache, audience string) (*Verifier, error) {
	if keys == nil {
		return nil, mcerr.New(mcerr.CodeValidation, "auth: key cache must not be nil")
	}
	if audience == "" {
		return nil, mcerr.New(mcerr.CodeValidation, "auth: expected audience must not be empty")
	}
	return &Verifier{
		keys:     keys,
		audience: audience,
		tracer:   otel.Tracer(tracerName),
	}, nil
}

// Verify validates the given raw token and returns the [VerifiedClaims] it
// asserts.
//
// The method performs the following steps:
//  1. Parses the token header without verification to extract the kid
//  2. Looks the kid up in the cached KeySet; on a miss, forces one key
//     refresh and retries the lookup once (covers provider key rotation)
//  3. Verifies the RS256 signature against the located public key
//  4. Verifies the audience claim equals the configured audience and the
//     token has not expired (no clock-skew leeway)
//
// Every failure returns an AUTH_xxx-coded *[mcerr.Error]. Callers must not
// forward the specific code or message to clients; the HTTP layer collapses
// all of them to one generic 401 response.
func (v *Verifier) Verify(ctx context.Context, tokenStr string) (*VerifiedClaims, error) {
	ctx, span := v.tracer.Start(ctx, "auth.Verify")
	defer span.End()

	if tokenStr == "" {
		err := mcerr.New(mcerr.CodeAuthMalformedToken, "auth: token must not be empty")
		finishSpan(span, err)
		return nil, err
	}
	if len(tokenStr) > maxTokenSize {
		err := mcerr.New(mcerr.CodeAuthMalformedToken, "auth: token exceeds maximum size")
		finishSpan(span, err)
		return nil, err
	}

	// Parse without verification to inspect the header.
	parser := jwt.NewParser()
	unverified, _, err := parser.ParseUnverified(tokenStr, jwt.MapClaims{})
	if err != nil || unverified == nil {
		parseErr := mcerr.Wrap(err, mcerr.CodeAuthMalformedToken, "auth: token is malformed")
		finishSpan(span, parseErr)
		return nil, parseErr
	}

	// Reject alg:none before anything else.
	algStr, _ := unverified.Header["alg"].(string)
	if strings.EqualFold(algStr, "none") {
		err := mcerr.New(mcerr.CodeAuthMalformedToken, "auth: algorithm 'none' is not permitted")
		finishSpan(span, err)
		return nil, err
	}

	kid, _ := unverified.Header["kid"].(string)
	if kid == "" {
		err := mcerr.New(mcerr.CodeAuthMissingKeyID, "auth: token header missing key identifier")
		finishSpan(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("auth.kid", kid))

	// Locate the signing key, forcing one refresh on a miss so that a key
	// rotated in between cache refreshes is still found. The refresh is
	// triggered only by an unknown kid, never by signature failure.
	key, ok := v.keys.Keys(ctx)[kid]
	if !ok {
		span.SetAttributes(attribute.Bool("auth.key_refresh_forced", true))
		key, ok = v.keys.ForceRefresh(ctx)[kid]
	}
	if !ok {
		err := mcerr.Newf(mcerr.CodeAuthUnknownSigningKey, "auth: key %q not in provider key set", kid)
		finishSpan(span, err)
		return nil, err
	}

	token, err := jwt.Parse(tokenStr, func(*jwt.Token) (any, error) {
		return key, nil
	},
		jwt.WithValidMethods([]string{signingAlgorithm}),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		classified := classifyJWTError(err)
		finishSpan(span, classified)
		return nil, classified
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		err := mcerr.New(mcerr.CodeAuthMalformedToken, "auth: unable to extract token claims")
		finishSpan(span, err)
		return nil, err
	}

	claims := claimsFromPayload(mc)
	span.SetAttributes(attribute.String("auth.subject", claims.Subject))
	return claims, nil
}

// claimsFromPayload extracts the fields this service acts on from a
// verified token payload. The provider's claim shape is loose (optional
// display name, aud as string or list); the result is a well-defined
// record with explicit optional fields.
func claimsFromPayload(mc jwt.MapClaims) *VerifiedClaims {
	claims := &VerifiedClaims{}
	claims.Subject, _ = mc["sub"].(string)
	claims.Email, _ = mc["email"].(string)
	claims.DisplayName, _ = mc["name"].(string)

	if aud, err := mc.GetAudience(); err == nil && len(aud) > 0 {
		claims.Audience = aud[0]
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	return claims
}

// classifyJWTError converts a JWT library error to the corresponding
// AUTH_xxx-coded *mcerr.Error. Unrecognized verification errors fall back
// to the malformed-token code; the distinction only affects logs.
func classifyJWTError(err error) *mcerr.Error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return mcerr.Wrap(err, mcerr.CodeAuthTokenExpired, "auth: token has expired")
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return mcerr.Wrap(err, mcerr.CodeAuthAudienceMismatch, "auth: token audience does not match this application")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return mcerr.Wrap(err, mcerr.CodeAuthInvalidSignature, "auth: token signature is invalid")
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return mcerr.Wrap(err, mcerr.CodeAuthInvalidSignature, "auth: token is unverifiable")
	default:
		return mcerr.Wrap(err, mcerr.CodeAuthMalformedToken, "auth: token validation failed")
	}
}

// finishSpan records an error on the span if err is non-nil and sets the
// span status to Error.
func finishSpan(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
