package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pkt.systems/stockd/api"
	"pkt.systems/stockd/internal/auth"
	"pkt.systems/stockd/internal/clock"
	"pkt.systems/stockd/internal/correlation"
	"pkt.systems/stockd/internal/storage/memory"
	"pkt.systems/stockd/internal/stocks"
)

type testEnv struct {
	server  *httptest.Server
	store   *stocks.Store
	backend *memory.Store
	clock   *clock.Manual
}

func newTestEnv(t *testing.T, mutate ...func(*Config)) testEnv {
	t.Helper()
	backend := memory.New()
	clk := clock.NewManual(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	store, err := stocks.Open(context.Background(), stocks.Config{Backend: backend, Clock: clk})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	cfg := Config{
		Store:    store,
		Verifier: auth.Basic("admin", "admin"),
		Version:  "v0.0.0-test",
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	h, err := New(cfg)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return testEnv{server: srv, store: store, backend: backend, clock: clk}
}

func (e testEnv) do(t *testing.T, method, path, body string, authed bool) *http.Response {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.server.URL+path, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.SetBasicAuth("admin", "admin")
	}
	resp, err := e.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s: status %d want %d: %s", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, want, body)
	}
}

func TestPublicEndpoints(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/", "", false)
	expectStatus(t, resp, http.StatusOK)
	info := decode[api.InfoResponse](t, resp)
	if info.Version != "v0.0.0-test" || info.Message == "" {
		t.Fatalf("unexpected info %+v", info)
	}

	for _, path := range []string{"/healthz", "/health"} {
		resp = env.do(t, http.MethodGet, path, "", false)
		expectStatus(t, resp, http.StatusOK)
		if health := decode[api.HealthResponse](t, resp); health.Status != "healthy" || health.Service != "stockd" {
			t.Fatalf("%s: unexpected %+v", path, health)
		}
	}

	resp = env.do(t, http.MethodGet, "/readyz", "", false)
	expectStatus(t, resp, http.StatusOK)
}

func TestReadyzReportsNotReady(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(c *Config) {
		c.Ready = func() error { return errors.New("draining") }
	})
	resp := env.do(t, http.MethodGet, "/readyz", "", false)
	expectStatus(t, resp, http.StatusServiceUnavailable)
	if e := decode[api.ErrorResponse](t, resp); e.ErrorCode != "not_ready" || e.Detail != "draining" {
		t.Fatalf("unexpected error body %+v", e)
	}
}

func TestProtectedRoutesRequireBasicAuth(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	routes := []struct{ method, path, body string }{
		{http.MethodGet, "/protected", ""},
		{http.MethodGet, "/stocks", ""},
		{http.MethodPost, "/stocks", `{"symbol":"IBM","name":"IBM","price":1}`},
		{http.MethodGet, "/stocks/some-id", ""},
		{http.MethodPut, "/stocks/some-id", `{"price":2}`},
		{http.MethodDelete, "/stocks/some-id", ""},
		{http.MethodGet, "/stocks/symbol/AAPL", ""},
		{http.MethodGet, "/stats", ""},
	}
	for _, rt := range routes {
		resp := env.do(t, rt.method, rt.path, rt.body, false)
		expectStatus(t, resp, http.StatusUnauthorized)
		if !strings.HasPrefix(resp.Header.Get("WWW-Authenticate"), "Basic ") {
			t.Fatalf("%s %s: missing Basic challenge", rt.method, rt.path)
		}
	}
	if env.store.Len() != 5 || env.backend.Saves() != 1 {
		t.Fatalf("unauthenticated requests changed the store: len=%d saves=%d", env.store.Len(), env.backend.Saves())
	}
}

func TestWrongCredentialsLeaveStoreUntouched(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	req, _ := http.NewRequest(http.MethodPost, env.server.URL+"/stocks",
		strings.NewReader(`{"symbol":"IBM","name":"IBM","price":1}`))
	req.SetBasicAuth("admin", "wrong")
	resp, err := env.server.Client().Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusUnauthorized)
	if e := decode[api.ErrorResponse](t, resp); e.ErrorCode != "unauthorized" {
		t.Fatalf("unexpected error body %+v", e)
	}
	if env.store.Len() != 5 {
		t.Fatalf("store changed: %d records", env.store.Len())
	}
}

func TestProtectedGreetsUser(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/protected", "", true)
	expectStatus(t, resp, http.StatusOK)
	msg := decode[api.MessageResponse](t, resp)
	if !strings.HasPrefix(msg.Message, "Welcome, admin!") {
		t.Fatalf("unexpected greeting %q", msg.Message)
	}
}

func TestStockLifecycle(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/stocks", "", true)
	expectStatus(t, resp, http.StatusOK)
	if list := decode[[]api.Stock](t, resp); len(list) != 5 || list[0].Symbol != "AAPL" {
		t.Fatalf("unexpected seed list %+v", list)
	}

	resp = env.do(t, http.MethodPost, "/stocks", `{"symbol":" amzn ","name":"Amazon.com Inc.","price":145.5,"volume":100}`, true)
	expectStatus(t, resp, http.StatusCreated)
	created := decode[api.Stock](t, resp)
	if created.Symbol != "AMZN" || created.ID == "" || created.MarketCap != 0 || created.Volume != 100 {
		t.Fatalf("unexpected created record %+v", created)
	}
	if loc := resp.Header.Get("Location"); loc != "/stocks/"+created.ID {
		t.Fatalf("unexpected Location %q", loc)
	}

	resp = env.do(t, http.MethodGet, "/stocks/symbol/amzn", "", true)
	expectStatus(t, resp, http.StatusOK)
	if got := decode[api.Stock](t, resp); got.ID != created.ID {
		t.Fatalf("symbol lookup returned %s want %s", got.ID, created.ID)
	}

	env.clock.Advance(time.Minute)
	resp = env.do(t, http.MethodPut, "/stocks/"+created.ID, `{"price":150.25}`, true)
	expectStatus(t, resp, http.StatusOK)
	updated := decode[api.Stock](t, resp)
	if updated.Price != 150.25 || updated.Name != "Amazon.com Inc." || !updated.UpdatedAt.After(created.UpdatedAt) {
		t.Fatalf("unexpected updated record %+v", updated)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("created_at changed: %v -> %v", created.CreatedAt, updated.CreatedAt)
	}

	resp = env.do(t, http.MethodDelete, "/stocks/"+created.ID, "", true)
	expectStatus(t, resp, http.StatusOK)
	del := decode[api.DeleteResponse](t, resp)
	if del.Deleted.ID != created.ID || !strings.Contains(del.Message, "AMZN") {
		t.Fatalf("unexpected delete response %+v", del)
	}

	resp = env.do(t, http.MethodGet, "/stocks/"+created.ID, "", true)
	expectStatus(t, resp, http.StatusNotFound)
	if e := decode[api.ErrorResponse](t, resp); e.ErrorCode != "not_found" {
		t.Fatalf("unexpected error %+v", e)
	}
	if env.store.Len() != 5 {
		t.Fatalf("expected 5 records after delete, got %d", env.store.Len())
	}
}

func TestCreateValidation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	cases := []struct {
		name   string
		body   string
		status int
		code   string
		field  string
	}{
		{"missing symbol", `{"name":"X","price":1}`, http.StatusBadRequest, "invalid_argument", "symbol"},
		{"missing name", `{"symbol":"X","price":1}`, http.StatusBadRequest, "invalid_argument", "name"},
		{"missing price", `{"symbol":"X","name":"X"}`, http.StatusBadRequest, "invalid_argument", "price"},
		{"negative price", `{"symbol":"X","name":"X","price":-1}`, http.StatusBadRequest, "invalid_argument", "price"},
		{"negative volume", `{"symbol":"X","name":"X","price":1,"volume":-5}`, http.StatusBadRequest, "invalid_argument", "volume"},
		{"unknown field", `{"symbol":"X","name":"X","price":1,"sector":"tech"}`, http.StatusBadRequest, "invalid_body", ""},
		{"malformed", `{"symbol":`, http.StatusBadRequest, "invalid_body", ""},
		{"empty", ``, http.StatusBadRequest, "invalid_body", ""},
		{"trailing value", `{"symbol":"X","name":"X","price":1}{}`, http.StatusBadRequest, "invalid_body", ""},
	}
	for _, tc := range cases {
		resp := env.do(t, http.MethodPost, "/stocks", tc.body, true)
		if resp.StatusCode != tc.status {
			t.Fatalf("%s: status %d want %d", tc.name, resp.StatusCode, tc.status)
		}
		e := decode[api.ErrorResponse](t, resp)
		if e.ErrorCode != tc.code || e.Field != tc.field {
			t.Fatalf("%s: unexpected error %+v", tc.name, e)
		}
	}
	if env.store.Len() != 5 {
		t.Fatalf("rejected creates changed the store: %d records", env.store.Len())
	}
}

func TestCreateRejectsOversizedBody(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(c *Config) { c.JSONMaxBytes = 64 })
	body := `{"symbol":"X","name":"` + strings.Repeat("n", 128) + `","price":1}`
	resp := env.do(t, http.MethodPost, "/stocks", body, true)
	expectStatus(t, resp, http.StatusRequestEntityTooLarge)
	if e := decode[api.ErrorResponse](t, resp); e.ErrorCode != "payload_too_large" {
		t.Fatalf("unexpected error %+v", e)
	}
}

func TestUpdateUnknownID(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPut, "/stocks/missing", `{"price":1}`, true)
	expectStatus(t, resp, http.StatusNotFound)
	resp = env.do(t, http.MethodDelete, "/stocks/missing", "", true)
	expectStatus(t, resp, http.StatusNotFound)
	resp = env.do(t, http.MethodGet, "/stocks/symbol/NOPE", "", true)
	expectStatus(t, resp, http.StatusNotFound)
}

func TestStatsEndpoint(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/stats", "", true)
	expectStatus(t, resp, http.StatusOK)
	stats := decode[api.StatsResponse](t, resp)
	if stats.Count != 5 || stats.HighestPrice != "NVDA" || stats.LowestPrice != "GOOGL" {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.AveragePrice != 363.24 {
		t.Fatalf("average price = %v want 363.24", stats.AveragePrice)
	}
}

func TestStatsEmptyCollectionOmitsExtremes(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	list, err := env.store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, rec := range list {
		if _, err := env.store.Delete(ctx, rec.ID); err != nil {
			t.Fatalf("delete: %v", err)
		}
	}
	resp := env.do(t, http.MethodGet, "/stats", "", true)
	expectStatus(t, resp, http.StatusOK)
	raw, _ := io.ReadAll(resp.Body)
	if bytes.Contains(raw, []byte("highest_price")) || bytes.Contains(raw, []byte("lowest_price")) {
		t.Fatalf("empty stats should omit extremes: %s", raw)
	}
}

func TestCorrelationHeader(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/healthz", nil)
	req.Header.Set(correlation.Header, "trace-me-42")
	resp, err := env.server.Client().Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get(correlation.Header); got != "trace-me-42" {
		t.Fatalf("correlation id not echoed: %q", got)
	}

	resp = env.do(t, http.MethodGet, "/healthz", "", false)
	if resp.Header.Get(correlation.Header) == "" {
		t.Fatal("expected generated correlation id")
	}
}

func TestUnknownRouteAndMethod(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/nope", "", true)
	expectStatus(t, resp, http.StatusNotFound)
	if e := decode[api.ErrorResponse](t, resp); e.ErrorCode != "not_found" {
		t.Fatalf("unexpected error %+v", e)
	}
	resp = env.do(t, http.MethodPatch, "/healthz", "", false)
	expectStatus(t, resp, http.StatusMethodNotAllowed)
}

func TestSwaggerRoutes(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/swagger/doc.json", "", false)
	expectStatus(t, resp, http.StatusOK)
	var doc map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		t.Fatalf("decode swagger doc: %v", err)
	}
	paths, _ := doc["paths"].(map[string]any)
	if _, ok := paths["/stocks/{id}"]; !ok {
		t.Fatalf("swagger doc missing /stocks/{id}: %v", paths)
	}
	resp = env.do(t, http.MethodGet, "/swagger/", "", false)
	expectStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("unexpected content type %q", ct)
	}
}

func TestTracingEnabledStillServes(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(c *Config) { c.EnableTracing = true })
	resp := env.do(t, http.MethodGet, "/stocks", "", true)
	expectStatus(t, resp, http.StatusOK)
}

func TestNewRequiresStoreAndVerifier(t *testing.T) {
	if _, err := New(Config{Verifier: auth.Basic("a", "b")}); err == nil {
		t.Fatal("expected error without store")
	}
	env := newTestEnv(t)
	if _, err := New(Config{Store: env.store}); err == nil {
		t.Fatal("expected error without verifier")
	}
}

func TestDecodeJSONBody(t *testing.T) {
	var dst struct{ A int }
	if err := decodeJSONBody(strings.NewReader(`{"A":1}`), &dst, jsonDecodeOptions{disallowUnknowns: true}); err != nil || dst.A != 1 {
		t.Fatalf("decode: %v %+v", err, dst)
	}
	if err := decodeJSONBody(strings.NewReader(`{"B":1}`), &dst, jsonDecodeOptions{disallowUnknowns: true}); err == nil {
		t.Fatal("expected unknown field error")
	}
	if err := decodeJSONBody(strings.NewReader(`{"B":1}`), &dst, jsonDecodeOptions{}); err != nil {
		t.Fatalf("lenient decode: %v", err)
	}
	if err := decodeJSONBody(strings.NewReader(`{"A":1} 2`), &dst, jsonDecodeOptions{}); err == nil {
		t.Fatal("expected trailing value error")
	}
}

func TestRouterSys(t *testing.T) {
	cases := map[string]string{
		"stocks.get_by_symbol": "api.http.router.stocks.get.by.symbol",
		"healthz":              "api.http.router.healthz",
		"":                     "api.http.router",
	}
	for in, want := range cases {
		if got := routerSys(in); got != want {
			t.Fatalf("routerSys(%q) = %q want %q", in, got, want)
		}
	}
}
