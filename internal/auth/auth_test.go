package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
)

func TestBasic(t *testing.T) {
	v := Basic("admin", "admin")
	ctx := context.Background()
	p, err := v.Verify(ctx, Credentials{Username: "admin", Password: "admin"})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if p.Subject != "admin" || p.Method != MethodBasic {
		t.Fatalf("unexpected principal %+v", p)
	}
	for _, creds := range []Credentials{
		{},
		{Username: "admin"},
		{Username: "admin", Password: "wrong"},
		{Username: "root", Password: "admin"},
		{Username: "Admin", Password: "admin"},
	} {
		if _, err := v.Verify(ctx, creds); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected unauthorized for %+v, got %v", creds, err)
		}
	}
}

func TestDefaultToken(t *testing.T) {
	if got := DefaultToken("admin", "admin"); got != "YWRtaW46YWRtaW4=" {
		t.Fatalf("DefaultToken = %q", got)
	}
}

func TestStaticToken(t *testing.T) {
	v := StaticToken(DefaultToken("admin", "admin"), "admin")
	ctx := context.Background()
	if _, err := v.Verify(ctx, Credentials{Token: "YWRtaW46YWRtaW4="}); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if _, err := v.Verify(ctx, Credentials{Token: "YWRtaW46YWRtaW4"}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := StaticToken("", "x").Verify(ctx, Credentials{}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("empty token must never match, got %v", err)
	}
}

func signed(t *testing.T, secret string, claims jwt.RegisteredClaims, method jwt.SigningMethod) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return raw
}

func TestJWT(t *testing.T) {
	v, err := JWT([]byte("s3cret"), "stockd")
	if err != nil {
		t.Fatalf("JWT: %v", err)
	}
	ctx := context.Background()
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	good := signed(t, "s3cret", jwt.RegisteredClaims{Subject: "agent-1", Issuer: "stockd", ExpiresAt: jwt.NewNumericDate(exp)}, jwt.SigningMethodHS256)
	p, err := v.Verify(ctx, Credentials{Token: good})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if p.Subject != "agent-1" || p.Method != MethodJWT || !p.Expires.Equal(exp) {
		t.Fatalf("unexpected principal %+v", p)
	}

	cases := map[string]string{
		"wrong secret": signed(t, "other", jwt.RegisteredClaims{Subject: "a", Issuer: "stockd"}, jwt.SigningMethodHS256),
		"wrong issuer": signed(t, "s3cret", jwt.RegisteredClaims{Subject: "a", Issuer: "evil"}, jwt.SigningMethodHS256),
		"no subject":   signed(t, "s3cret", jwt.RegisteredClaims{Issuer: "stockd"}, jwt.SigningMethodHS256),
		"expired":      signed(t, "s3cret", jwt.RegisteredClaims{Subject: "a", Issuer: "stockd", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))}, jwt.SigningMethodHS256),
		"wrong alg":    signed(t, "s3cret", jwt.RegisteredClaims{Subject: "a", Issuer: "stockd"}, jwt.SigningMethodHS512),
		"garbage":      "not.a.jwt",
		"empty":        "",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := v.Verify(ctx, Credentials{Token: token}); !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("expected unauthorized, got %v", err)
			}
		})
	}
	if _, err := JWT(nil, ""); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestChain(t *testing.T) {
	boom := errors.New("backend down")
	v := Chain(
		StaticToken("a", "first"),
		nil,
		StaticToken("b", "second"),
	)
	ctx := context.Background()
	p, err := v.Verify(ctx, Credentials{Token: "b"})
	if err != nil || p.Subject != "second" {
		t.Fatalf("chain: %+v %v", p, err)
	}
	if _, err := v.Verify(ctx, Credentials{Token: "c"}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	failing := Chain(VerifierFunc(func(context.Context, Credentials) (Principal, error) {
		return Principal{}, boom
	}), StaticToken("a", "x"))
	if _, err := failing.Verify(ctx, Credentials{Token: "a"}); !errors.Is(err, boom) {
		t.Fatalf("expected hard failure to stop the chain, got %v", err)
	}
}

func TestRedactToken(t *testing.T) {
	if got := RedactToken("YWRtaW46YWRtaW4="); got != "YW************4=" {
		t.Fatalf("RedactToken = %q", got)
	}
	if got := RedactToken("abc"); got != "***" {
		t.Fatalf("RedactToken short = %q", got)
	}
}

func TestRequireBasic(t *testing.T) {
	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		p, ok := PrincipalFromContext(r.Context())
		if !ok || p.Subject != "admin" {
			t.Errorf("principal missing: %+v", p)
		}
		w.WriteHeader(http.StatusNoContent)
	})
	h := RequireBasic(Basic("admin", "admin"), "stockd")(next)

	cases := []struct {
		name   string
		setup  func(*http.Request)
		status int
	}{
		{name: "missing", setup: func(*http.Request) {}, status: http.StatusUnauthorized},
		{name: "wrong", setup: func(r *http.Request) { r.SetBasicAuth("admin", "nope") }, status: http.StatusUnauthorized},
		{name: "bearer", setup: func(r *http.Request) { r.Header.Set("Authorization", "Bearer YWRtaW46YWRtaW4=") }, status: http.StatusUnauthorized},
		{name: "ok", setup: func(r *http.Request) { r.SetBasicAuth("admin", "admin") }, status: http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/stocks", nil)
			tc.setup(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("status = %d want %d", rec.Code, tc.status)
			}
			if tc.status == http.StatusUnauthorized {
				if !strings.HasPrefix(rec.Header().Get("WWW-Authenticate"), `Basic realm="stockd"`) {
					t.Fatalf("missing challenge: %q", rec.Header().Get("WWW-Authenticate"))
				}
				if !strings.Contains(rec.Body.String(), `"error":"unauthorized"`) {
					t.Fatalf("unexpected body %s", rec.Body.String())
				}
			}
		})
	}
	if calls != 1 {
		t.Fatalf("next called %d times, want 1", calls)
	}
}
