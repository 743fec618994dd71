package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	mcpauth "github.com/modelcontextprotocol/go-sdk/auth"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"pkt.systems/pslog"

	"pkt.systems/stockd/internal/auth"
	"pkt.systems/stockd/internal/stocks"
	"pkt.systems/stockd/internal/svcfields"
)

// DefaultTokenLifetime is the expiry reported for bearer tokens that carry
// none of their own. It is re-evaluated on every request.
const DefaultTokenLifetime = time.Hour

// Config controls stockd MCP server runtime behavior.
type Config struct {
	MCPPath    string
	ServerName string
	Version    string
	// StoreURL is shown by stock://config. Callers must redact secrets.
	StoreURL string
	// ExampleCredentials and ExampleToken are echoed by /auth-info when set.
	ExampleCredentials string
	ExampleToken       string
}

// Server is the MCP service contract. The caller owns the listener.
type Server interface {
	Handler() http.Handler
}

// NewServerRequest wraps constructor inputs.
type NewServerRequest struct {
	Config   Config
	Store    *stocks.Store
	Verifier auth.Verifier
	Logger   pslog.Logger
}

type server struct {
	cfg          Config
	store        *stocks.Store
	verifier     auth.Verifier
	logger       pslog.Logger
	lifecycleLog pslog.Logger
	transportLog pslog.Logger
	toolLog      pslog.Logger
	resourceLog  pslog.Logger
	mcpHTTPPath  string
	handler      http.Handler
	now          func() time.Time
}

// NewServer constructs the stockd MCP service.
func NewServer(req NewServerRequest) (Server, error) {
	return newServer(req)
}

func newServer(req NewServerRequest) (*server, error) {
	cfg := req.Config
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if req.Store == nil {
		return nil, fmt.Errorf("mcp: store required")
	}
	if req.Verifier == nil {
		return nil, fmt.Errorf("mcp: token verifier required")
	}

	logger := req.Logger
	if logger == nil {
		logger = pslog.NewStructured(context.Background(), os.Stderr).With("app", "stockd")
	}
	logger = svcfields.WithTransport(logger, "mcp")

	s := &server{
		cfg:          cfg,
		store:        req.Store,
		verifier:     req.Verifier,
		logger:       logger,
		lifecycleLog: svcfields.WithSubsystem(logger, "server.lifecycle.mcp"),
		transportLog: svcfields.WithSubsystem(logger, "mcp.transport.http"),
		toolLog:      svcfields.WithSubsystem(logger, "mcp.tools"),
		resourceLog:  svcfields.WithSubsystem(logger, "mcp.resources"),
		mcpHTTPPath:  cfg.MCPPath,
		now:          func() time.Time { return time.Now().UTC() },
	}
	s.handler = s.buildMux()
	s.lifecycleLog.Debug("mcp.server.ready", "mcp_path", s.mcpHTTPPath, "server_name", cfg.ServerName)
	return s, nil
}

func (s *server) Handler() http.Handler { return s.handler }

func (s *server) newMCPServer() *mcpsdk.Server {
	srv := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    s.cfg.ServerName,
		Version: s.cfg.Version,
	}, &mcpsdk.ServerOptions{
		Instructions: defaultServerInstructions(s.cfg),
	})
	s.registerResources(srv)
	s.registerTools(srv)
	return srv
}

func (s *server) buildMux() *http.ServeMux {
	mcpSrv := s.newMCPServer()
	streamable := mcpsdk.NewStreamableHTTPHandler(func(_ *http.Request) *mcpsdk.Server {
		return mcpSrv
	}, nil)

	mcpHandler := mcpauth.RequireBearerToken(
		s.verifyToken,
		&mcpauth.RequireBearerTokenOptions{},
	)(streamable)

	mux := http.NewServeMux()
	mux.Handle(s.mcpHTTPPath, mcpHandler)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /auth-info", s.handleAuthInfo)
	return mux
}

// verifyToken adapts the shared credential gate to the go-sdk bearer
// middleware. The middleware rejects tokens without an expiry, so tokens
// that never expire report a rolling one.
func (s *server) verifyToken(ctx context.Context, token string, req *http.Request) (*mcpauth.TokenInfo, error) {
	p, err := s.verifier.Verify(ctx, auth.Credentials{Token: token})
	if err != nil {
		auth.RecordFailure(req, auth.MethodBearer)
		s.transportLog.Info("mcp.auth.rejected",
			"remote_addr", req.RemoteAddr,
			"token", auth.RedactToken(token),
		)
		return nil, fmt.Errorf("%w: %v", mcpauth.ErrInvalidToken, err)
	}
	expires := p.Expires
	if expires.IsZero() {
		expires = s.now().Add(DefaultTokenLifetime)
	}
	return &mcpauth.TokenInfo{
		Expiration: expires,
		Extra: map[string]any{
			"subject": p.Subject,
			"method":  p.Method,
		},
	}, nil
}

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

type authInfoResponse struct {
	Message            string `json:"message"`
	TokenFormat        string `json:"token_format"`
	ExampleCredentials string `json:"example_credentials,omitempty"`
	ExampleToken       string `json:"example_token,omitempty"`
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", Service: s.cfg.ServerName})
}

func (s *server) handleAuthInfo(w http.ResponseWriter, _ *http.Request) {
	resp := authInfoResponse{
		Message:            "Bearer Token Authentication Required",
		TokenFormat:        "Bearer <base64_encoded_credentials>",
		ExampleCredentials: s.cfg.ExampleCredentials,
	}
	if s.cfg.ExampleToken != "" {
		resp.ExampleToken = "Bearer " + s.cfg.ExampleToken
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ServerName) == "" {
		cfg.ServerName = "stockd-mcp"
	}
	if strings.TrimSpace(cfg.Version) == "" {
		cfg.Version = "dev"
	}
	cfg.MCPPath = cleanHTTPPath(cfg.MCPPath)
}

func validateConfig(cfg Config) error {
	switch cfg.MCPPath {
	case "/health", "/auth-info":
		return fmt.Errorf("mcp path %q collides with a built-in route", cfg.MCPPath)
	}
	return nil
}

func cleanHTTPPath(raw string) string {
	p := strings.TrimSpace(raw)
	if p == "" {
		return "/mcp"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}
