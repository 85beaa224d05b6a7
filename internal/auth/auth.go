// Package auth verifies the bearer tokens sent by callers of the analysis
// endpoint. Tokens are HS256 JWTs as issued by the hosted auth service:
// sub carries the user id.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/marco-2806/OtimizaAds/internal/funnel"
)

// Caller is the authenticated identity behind a request.
type Caller struct {
	UserID string
	Email  string
	Role   string
}

// Verifier turns a raw token into a Caller. Every failure is a
// *funnel.AuthError.
type Verifier interface {
	Verify(ctx context.Context, token string) (Caller, error)
}

// Claims is the subset of the token payload the service reads.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwtlib.RegisteredClaims
}

// HMACVerifier checks HS256/384/512 signatures against a shared secret.
type HMACVerifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewHMACVerifier returns a verifier for secret. A non-empty issuer is
// enforced on the iss claim.
func NewHMACVerifier(secret, issuer string) (*HMACVerifier, error) {
	if secret == "" {
		return nil, errors.New("auth: empty JWT secret")
	}
	return &HMACVerifier{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

func (v *HMACVerifier) Verify(_ context.Context, token string) (Caller, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Caller{}, &funnel.AuthError{Message: "empty authorization token"}
	}

	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(v.issuer))
	}

	parsed, err := jwtlib.ParseWithClaims(token, &Claims{}, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return Caller{}, &funnel.AuthError{Message: "invalid token", Err: err}
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Caller{}, &funnel.AuthError{Message: "invalid token"}
	}
	if claims.Subject == "" {
		return Caller{}, &funnel.AuthError{Message: "user not authenticated"}
	}

	return Caller{UserID: claims.Subject, Email: claims.Email, Role: claims.Role}, nil
}

// ParseBearer extracts the token from an Authorization header value.
func ParseBearer(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", &funnel.AuthError{Message: "missing or invalid authorization header"}
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", &funnel.AuthError{Message: "empty authorization token"}
	}
	return token, nil
}
