// Package auth implements the credential gate shared by the HTTP API and the
// MCP endpoint. A Verifier decides whether presented credentials are
// acceptable; transports only extract credentials and react to the verdict,
// so the check can be exercised without a server.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strings"
	"time"
)

// ErrUnauthorized is returned (possibly wrapped) by every Verifier when the
// credentials are missing or do not match.
var ErrUnauthorized = errors.New("auth: unauthorized")

// Method names the credential scheme a principal was verified with.
const (
	MethodBasic  = "basic"
	MethodBearer = "bearer"
	MethodJWT    = "jwt"
)

// Credentials are whatever the client presented. Transports fill in either
// Username/Password (Basic) or Token (Bearer).
type Credentials struct {
	Username string
	Password string
	Token    string
}

// Principal identifies an authenticated caller.
type Principal struct {
	Subject string
	Method  string
	// Expires is zero for credentials that never expire.
	Expires time.Time
}

// Verifier checks credentials.
type Verifier interface {
	Verify(ctx context.Context, creds Credentials) (Principal, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, creds Credentials) (Principal, error)

// Verify calls f.
func (f VerifierFunc) Verify(ctx context.Context, creds Credentials) (Principal, error) {
	return f(ctx, creds)
}

// Basic accepts exactly one username/password pair.
func Basic(username, password string) Verifier {
	return VerifierFunc(func(_ context.Context, creds Credentials) (Principal, error) {
		// Evaluate both comparisons so timing does not reveal which one failed.
		userOK := equal(creds.Username, username)
		passOK := equal(creds.Password, password)
		if !userOK || !passOK || creds.Username == "" {
			return Principal{}, ErrUnauthorized
		}
		return Principal{Subject: username, Method: MethodBasic}, nil
	})
}

// StaticToken accepts exactly one bearer token and reports subject as the
// principal.
func StaticToken(token, subject string) Verifier {
	return VerifierFunc(func(_ context.Context, creds Credentials) (Principal, error) {
		if token == "" || !equal(creds.Token, token) {
			return Principal{}, ErrUnauthorized
		}
		return Principal{Subject: subject, Method: MethodBearer}, nil
	})
}

// Chain tries each verifier in order and returns the first success. A
// non-ErrUnauthorized failure stops the chain.
func Chain(verifiers ...Verifier) Verifier {
	return VerifierFunc(func(ctx context.Context, creds Credentials) (Principal, error) {
		for _, v := range verifiers {
			if v == nil {
				continue
			}
			p, err := v.Verify(ctx, creds)
			if err == nil {
				return p, nil
			}
			if !errors.Is(err, ErrUnauthorized) {
				return Principal{}, err
			}
		}
		return Principal{}, ErrUnauthorized
	})
}

// DefaultToken derives the fixed MCP bearer token from a username and
// password: base64("user:pass").
func DefaultToken(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}

// RedactToken keeps the first and last two characters of a token.
func RedactToken(token string) string {
	if len(token) <= 6 {
		return strings.Repeat("*", len(token))
	}
	return token[:2] + strings.Repeat("*", len(token)-4) + token[len(token)-2:]
}

func equal(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

type principalKey struct{}

// ContextWithPrincipal stores p on ctx.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal stored by the auth middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
