// Package httpapi serves the stock record store over HTTP. Every route is
// wrapped so that it runs with a request-scoped logger, a correlation ID and
// (optionally) an OpenTelemetry span, and so that handler errors are
// rendered as api.ErrorResponse.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pkt.systems/pslog"

	"pkt.systems/stockd/api"
	"pkt.systems/stockd/internal/auth"
	"pkt.systems/stockd/internal/correlation"
	"pkt.systems/stockd/internal/stocks"
	"pkt.systems/stockd/internal/svcfields"
)

// DefaultJSONMaxBytes bounds request bodies when Config.JSONMaxBytes is unset.
const DefaultJSONMaxBytes int64 = 1 << 20

// Config wires a Handler.
type Config struct {
	// Store is the shared record store. Required.
	Store *stocks.Store
	// Verifier checks Basic credentials on protected routes. Required.
	Verifier auth.Verifier
	// Realm is advertised in the WWW-Authenticate challenge.
	Realm string
	// Logger is the base logger. Defaults to a no-op logger.
	Logger pslog.Logger
	// JSONMaxBytes caps request bodies.
	JSONMaxBytes int64
	// EnableTracing wraps every route in an otelhttp span.
	EnableTracing bool
	// Ready reports readiness for /readyz. Nil means always ready.
	Ready func() error
	// ServiceName and Version are reported by GET /.
	ServiceName string
	Version     string
}

// Handler implements the stockd HTTP API.
type Handler struct {
	store        *stocks.Store
	verifier     auth.Verifier
	realm        string
	logger       pslog.Logger
	jsonMaxBytes int64
	tracing      bool
	tracer       trace.Tracer
	ready        func() error
	service      string
	version      string
}

// New constructs a Handler.
func New(cfg Config) (*Handler, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("httpapi: store required")
	}
	if cfg.Verifier == nil {
		return nil, fmt.Errorf("httpapi: credential verifier required")
	}
	if cfg.Logger == nil {
		cfg.Logger = pslog.NoopLogger()
	}
	if cfg.JSONMaxBytes <= 0 {
		cfg.JSONMaxBytes = DefaultJSONMaxBytes
	}
	if cfg.Realm == "" {
		cfg.Realm = "stockd"
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "stockd"
	}
	return &Handler{
		store:        cfg.Store,
		verifier:     cfg.Verifier,
		realm:        cfg.Realm,
		logger:       cfg.Logger,
		jsonMaxBytes: cfg.JSONMaxBytes,
		tracing:      cfg.EnableTracing,
		tracer:       otel.Tracer("pkt.systems/stockd/httpapi"),
		ready:        cfg.Ready,
		service:      cfg.ServiceName,
		version:      cfg.Version,
	}, nil
}

// Router returns a chi router with every route registered.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	h.Register(r)
	return r
}

// Register wires the public and Basic-protected routes onto r.
func (h *Handler) Register(r chi.Router) {
	r.Use(h.requestScope)
	r.NotFound(h.wrap("not_found", func(http.ResponseWriter, *http.Request) error {
		return httpError{Status: http.StatusNotFound, Code: "not_found", Detail: "no such route"}
	}).ServeHTTP)
	r.MethodNotAllowed(h.wrap("method_not_allowed", func(http.ResponseWriter, *http.Request) error {
		return httpError{Status: http.StatusMethodNotAllowed, Code: "method_not_allowed", Detail: "method not allowed on this route"}
	}).ServeHTTP)

	r.Method(http.MethodGet, "/", h.wrap("info", h.handleInfo))
	r.Method(http.MethodGet, "/healthz", h.wrap("healthz", h.handleHealth))
	r.Method(http.MethodGet, "/health", h.wrap("health", h.handleHealth))
	r.Method(http.MethodGet, "/readyz", h.wrap("readyz", h.handleReady))
	r.Method(http.MethodGet, "/swagger/doc.json", h.wrap("swagger.doc", h.handleSwaggerDoc))
	r.Method(http.MethodGet, "/swagger/", h.wrap("swagger.ui", h.handleSwaggerUI))

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireBasic(h.verifier, h.realm))
		r.Method(http.MethodGet, "/protected", h.wrap("protected", h.handleProtected))
		r.Method(http.MethodGet, "/stocks", h.wrap("stocks.list", h.handleList))
		r.Method(http.MethodPost, "/stocks", h.wrap("stocks.create", h.handleCreate))
		r.Method(http.MethodGet, "/stocks/symbol/{symbol}", h.wrap("stocks.get_by_symbol", h.handleGetBySymbol))
		r.Method(http.MethodGet, "/stocks/{id}", h.wrap("stocks.get", h.handleGet))
		r.Method(http.MethodPut, "/stocks/{id}", h.wrap("stocks.update", h.handleUpdate))
		r.Method(http.MethodDelete, "/stocks/{id}", h.wrap("stocks.delete", h.handleDelete))
		r.Method(http.MethodGet, "/stats", h.wrap("stats", h.handleStats))
	})
}

// requestScope attaches the correlation ID and a request logger before any
// middleware (including auth) runs.
func (h *Handler) requestScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cid := correlation.FromHeader(r.Header.Get(correlation.Header))
		w.Header().Set(correlation.Header, cid)
		logger := svcfields.WithTransport(h.logger, "http").With(
			svcfields.RequestIDKey, cid,
			"method", r.Method,
			"path", r.URL.Path,
		)
		ctx := correlation.WithID(r.Context(), cid)
		ctx = pslog.ContextWithLogger(ctx, logger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (h *Handler) wrap(operation string, fn handlerFunc) http.Handler {
	sys := routerSys(operation)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()
		logger := svcfields.WithSubsystem(pslog.LoggerFromContext(ctx), sys)
		span := trace.SpanFromContext(ctx)
		if h.tracing {
			ctx, span = h.tracer.Start(ctx, "stockd.http."+operation,
				trace.WithSpanKind(trace.SpanKindInternal),
				trace.WithAttributes(
					attribute.String("stockd.operation", operation),
					attribute.String("stockd.correlation_id", correlation.ID(ctx)),
				),
			)
			defer span.End()
		}
		if p, ok := auth.PrincipalFromContext(ctx); ok {
			logger = logger.With("principal", p.Subject)
		}
		ctx = pslog.ContextWithLogger(ctx, logger)
		r = r.WithContext(ctx)
		logger.Trace("http.request.start", "remote_addr", r.RemoteAddr)

		err := fn(w, r)
		if err == nil {
			logger.Trace("http.request.complete", "elapsed", time.Since(start))
			return
		}
		var httpErr httpError
		if errors.As(err, &httpErr) {
			span.SetAttributes(
				attribute.String("stockd.error_code", httpErr.Code),
				attribute.Int("stockd.error_status", httpErr.Status),
			)
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, "handler_error")
		}
		logger.Debug("http.request.error", "elapsed", time.Since(start), "error", err)
		h.handleError(ctx, w, err)
	})
	if !h.tracing {
		return handler
	}
	return otelhttp.NewHandler(handler, "stockd.http."+operation,
		otelhttp.WithMessageEvents(otelhttp.ReadEvents, otelhttp.WriteEvents))
}

type httpError struct {
	Status int
	Code   string
	Detail string
	Field  string
}

func (e httpError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Detail)
	}
	return e.Code
}

func (h *Handler) handleError(ctx context.Context, w http.ResponseWriter, err error) {
	logger := pslog.LoggerFromContext(ctx)
	var httpErr httpError
	if errors.As(err, &httpErr) {
		logger.Debug("http.request.failure",
			"status", httpErr.Status,
			"code", httpErr.Code,
			"detail", httpErr.Detail,
		)
		h.writeJSON(w, httpErr.Status, api.ErrorResponse{
			ErrorCode: httpErr.Code,
			Detail:    httpErr.Detail,
			Field:     httpErr.Field,
		})
		return
	}
	logger.Error("http.request.internal_error", "error", err)
	h.writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{
		ErrorCode: "internal_error",
		Detail:    "internal server error",
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
