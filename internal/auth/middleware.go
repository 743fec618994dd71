package auth

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"pkt.systems/pslog"

	"pkt.systems/stockd/api"
)

var failures metric.Int64Counter

func init() {
	var err error
	failures, err = otel.Meter("pkt.systems/stockd/auth").Int64Counter(
		"stockd.auth.failures",
		metric.WithDescription("Rejected credential checks by scheme"),
	)
	if err != nil {
		failures = nil
	}
}

// RecordFailure counts a rejected credential check.
func RecordFailure(r *http.Request, method string) {
	if failures == nil {
		return
	}
	failures.Add(r.Context(), 1, metric.WithAttributes(attribute.String("stockd.auth.method", method)))
}

// RequireBasic rejects requests whose Basic credentials v does not accept.
// Rejected requests get 401 with a WWW-Authenticate challenge and never
// reach next. Accepted requests carry the Principal in their context.
func RequireBasic(v Verifier, realm string) func(http.Handler) http.Handler {
	challenge := fmt.Sprintf("Basic realm=%q, charset=\"UTF-8\"", realm)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok {
				RecordFailure(r, MethodBasic)
				writeUnauthorized(w, challenge, "missing basic credentials")
				return
			}
			p, err := v.Verify(r.Context(), Credentials{Username: user, Password: pass})
			if err != nil {
				RecordFailure(r, MethodBasic)
				pslog.LoggerFromContext(r.Context()).Info("auth.basic.rejected", "user", user)
				writeUnauthorized(w, challenge, "incorrect username or password")
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, challenge, detail string) {
	w.Header().Set("WWW-Authenticate", challenge)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(api.ErrorResponse{ErrorCode: "unauthorized", Detail: detail})
}
