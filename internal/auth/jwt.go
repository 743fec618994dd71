package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	jwt "github.com/golang-jwt/jwt/v4"
)

// JWT accepts HS256 tokens signed with secret. When issuer is non-empty the
// iss claim must match. The principal subject is the sub claim.
func JWT(secret []byte, issuer string) (Verifier, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("auth: jwt secret required")
	}
	key := append([]byte(nil), secret...)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	return VerifierFunc(func(_ context.Context, creds Credentials) (Principal, error) {
		raw := strings.TrimSpace(creds.Token)
		if raw == "" {
			return Principal{}, ErrUnauthorized
		}
		claims := &jwt.RegisteredClaims{}
		token, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
			return key, nil
		})
		if err != nil || !token.Valid {
			return Principal{}, fmt.Errorf("%w: %v", ErrUnauthorized, jwtReason(err))
		}
		if issuer != "" && !claims.VerifyIssuer(issuer, true) {
			return Principal{}, fmt.Errorf("%w: unexpected issuer", ErrUnauthorized)
		}
		subject := strings.TrimSpace(claims.Subject)
		if subject == "" {
			return Principal{}, fmt.Errorf("%w: token has no subject", ErrUnauthorized)
		}
		p := Principal{Subject: subject, Method: MethodJWT}
		if claims.ExpiresAt != nil {
			p.Expires = claims.ExpiresAt.Time
		}
		return p, nil
	}), nil
}

func jwtReason(err error) string {
	var verr *jwt.ValidationError
	switch {
	case err == nil:
		return "invalid token"
	case errors.As(err, &verr) && verr.Errors&jwt.ValidationErrorExpired != 0:
		return "token expired"
	case errors.As(err, &verr) && verr.Errors&jwt.ValidationErrorSignatureInvalid != 0:
		return "signature invalid"
	default:
		return "malformed token"
	}
}
