package stockd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"pkt.systems/pslog"

	"pkt.systems/stockd/internal/auth"
	"pkt.systems/stockd/internal/clock"
	"pkt.systems/stockd/internal/httpapi"
	"pkt.systems/stockd/internal/stocks"
	"pkt.systems/stockd/internal/storage"
	loggingbackend "pkt.systems/stockd/internal/storage/logging"
	"pkt.systems/stockd/internal/storage/retry"
	"pkt.systems/stockd/internal/svcfields"
	"pkt.systems/stockd/internal/version"
	"pkt.systems/stockd/mcp"
)

// Server runs the HTTP API and the MCP server over one shared record store.
type Server struct {
	cfg          Config
	logger       pslog.Logger
	backend      storage.Backend
	store        *stocks.Store
	api          *httpapi.Handler
	httpSrv      *http.Server
	mcpSrv       *http.Server
	listener     net.Listener
	mcpListener  net.Listener
	clock        clock.Clock
	telemetry    *telemetryBundle
	lastServeErr error

	mu          sync.Mutex
	shutdown    bool
	watchCancel context.CancelFunc
	watchDone   chan struct{}
	readyOnce   sync.Once
	readyCh     chan struct{}
}

// Option configures server instances.
type Option func(*options)

type options struct {
	Logger       pslog.Logger
	Backend      storage.Backend
	Clock        clock.Clock
	OTLPEndpoint string
	NewID        func() string
}

// WithLogger supplies a custom logger.
func WithLogger(l pslog.Logger) Option {
	return func(o *options) {
		o.Logger = l
	}
}

// WithBackend injects a pre-built snapshot backend (useful for tests). The
// server takes ownership and closes it on shutdown.
func WithBackend(b storage.Backend) Option {
	return func(o *options) {
		o.Backend = b
	}
}

// WithClock injects a custom clock implementation.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.Clock = c
	}
}

// WithOTLPEndpoint overrides the OTLP collector endpoint used for telemetry.
func WithOTLPEndpoint(endpoint string) Option {
	return func(o *options) {
		o.OTLPEndpoint = endpoint
	}
}

// WithIDGenerator overrides how new record identifiers are minted.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) {
		o.NewID = fn
	}
}

// NewServer constructs a stockd server according to cfg. The snapshot is
// loaded (or seeded) before NewServer returns.
// Example:
//
//	cfg := stockd.Config{Store: "mem://", Listen: ":8000", MCPListen: "127.0.0.1:8001"}
//	srv, err := stockd.NewServer(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	go srv.Start()
func NewServer(cfg Config, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := o.Logger
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	ctx := pslog.ContextWithLogger(context.Background(), logger)
	serviceVersion := version.Current()

	otlpEndpoint := cfg.OTLPEndpoint
	if o.OTLPEndpoint != "" {
		otlpEndpoint = o.OTLPEndpoint
	}
	telemetry, err := setupTelemetry(ctx, telemetrySettings{
		ServiceName:    DefaultServiceName,
		ServiceVersion: serviceVersion,
		OTLPEndpoint:   otlpEndpoint,
		MetricsListen:  cfg.MetricsListen,
		PprofListen:    cfg.PprofListen,
		RuntimeMetrics: cfg.EnableProfilingMetrics,
	}, svcfields.WithSubsystem(logger, "telemetry"))
	if err != nil {
		return nil, err
	}
	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(shutdownCtx)
	}

	backend := o.Backend
	if backend == nil {
		backend, err = openBackend(ctx, cfg)
		if err != nil {
			cleanup()
			return nil, err
		}
	}
	serverClock := o.Clock
	if serverClock == nil {
		serverClock = clock.Real{}
	}
	storageLogger := svcfields.WithSubsystem(logger, "storage")
	backend = loggingbackend.Wrap(backend, storageLogger, "storage.backend")
	backend = retry.Wrap(backend, svcfields.WithSubsystem(logger, "storage.retry"), serverClock, retry.Config{
		MaxAttempts: cfg.StorageRetryMaxAttempts,
		BaseDelay:   cfg.StorageRetryBaseDelay,
		MaxDelay:    cfg.StorageRetryMaxDelay,
		Multiplier:  cfg.StorageRetryMultiplier,
	})
	logger.Info("storage.backend.selected", "store", cfg.RedactedStore(), "backend", backend.Describe())

	store, err := stocks.Open(ctx, stocks.Config{
		Backend:       backend,
		Clock:         serverClock,
		Logger:        logger,
		NewID:         o.NewID,
		UniqueSymbols: cfg.UniqueSymbols,
	})
	if err != nil {
		_ = backend.Close()
		cleanup()
		return nil, err
	}
	fail := func(err error) (*Server, error) {
		_ = store.Close()
		_ = backend.Close()
		cleanup()
		return nil, err
	}

	srv := &Server{
		cfg:     cfg,
		logger:  svcfields.WithSubsystem(logger, "server.lifecycle"),
		backend: backend,
		store:   store,
		clock:   serverClock,
		readyCh: make(chan struct{}),
	}
	srv.telemetry = telemetry

	srv.api, err = httpapi.New(httpapi.Config{
		Store:         store,
		Verifier:      auth.Basic(cfg.Username, cfg.Password),
		Realm:         DefaultRealm,
		Logger:        logger,
		JSONMaxBytes:  cfg.JSONMaxBytes,
		EnableTracing: !cfg.DisableHTTPTracing,
		Ready:         srv.ready,
		ServiceName:   DefaultServiceName,
		Version:       serviceVersion,
	})
	if err != nil {
		return fail(err)
	}
	h2s := &http2.Server{MaxConcurrentStreams: uint32(cfg.HTTP2MaxConcurrentStreams)}
	srv.httpSrv = &http.Server{
		Addr:              cfg.Listen,
		Handler:           h2c.NewHandler(srv.api.Router(), h2s),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return context.Background()
		},
	}

	if !cfg.DisableMCP {
		verifier, err := mcpVerifier(cfg)
		if err != nil {
			return fail(err)
		}
		mcpCfg := mcp.Config{
			MCPPath:    cfg.MCPPath,
			ServerName: DefaultServiceName + "-mcp",
			Version:    serviceVersion,
			StoreURL:   cfg.RedactedStore(),
		}
		if cfg.ExposeTokenHint {
			mcpCfg.ExampleCredentials = cfg.Username + ":" + cfg.Password
			mcpCfg.ExampleToken = cfg.MCPToken()
		}
		mcpServer, err := mcp.NewServer(mcp.NewServerRequest{
			Config:   mcpCfg,
			Store:    store,
			Verifier: verifier,
			Logger:   logger,
		})
		if err != nil {
			return fail(err)
		}
		srv.mcpSrv = &http.Server{
			Addr:              cfg.MCPListen,
			Handler:           mcpServer.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}
	return srv, nil
}

// mcpVerifier accepts the static bearer token and, when a secret is
// configured, HS256 JWTs.
func mcpVerifier(cfg Config) (auth.Verifier, error) {
	static := auth.StaticToken(cfg.MCPToken(), cfg.Username)
	if cfg.JWTSecret == "" {
		return static, nil
	}
	jwtVerifier, err := auth.JWT([]byte(cfg.JWTSecret), cfg.JWTIssuer)
	if err != nil {
		return nil, err
	}
	return auth.Chain(static, jwtVerifier), nil
}

// Store exposes the shared record store, mainly for embedding and tests.
func (s *Server) Store() *stocks.Store {
	return s.store
}

// Handler returns the HTTP API handler so the API can be mounted inside an
// existing mux when embedding the server into another program.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// MCPHandler returns the MCP handler, or nil when MCP is disabled.
func (s *Server) MCPHandler() http.Handler {
	if s.mcpSrv == nil {
		return nil
	}
	return s.mcpSrv.Handler
}

// Start binds both listeners and serves until Shutdown. It returns the
// first fatal serve error.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen (%s): %w", s.cfg.Listen, err)
	}
	var mcpLn net.Listener
	if s.mcpSrv != nil {
		mcpLn, err = net.Listen("tcp", s.cfg.MCPListen)
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("mcp listen (%s): %w", s.cfg.MCPListen, err)
		}
	}
	s.mu.Lock()
	s.listener = ln
	s.mcpListener = mcpLn
	s.mu.Unlock()
	s.startWatcher()
	s.signalReady()
	s.logger.Info("listening", "address", ln.Addr().String(), "store", s.cfg.RedactedStore())

	errCh := make(chan error, 2)
	serving := 1
	go func() {
		errCh <- wrapServeErr("http serve", s.httpSrv.Serve(ln))
	}()
	if mcpLn != nil {
		serving++
		s.logger.Info("mcp.listening", "address", mcpLn.Addr().String(), "path", s.cfg.MCPPath)
		go func() {
			errCh <- wrapServeErr("mcp serve", s.mcpSrv.Serve(mcpLn))
		}()
	}
	var firstErr error
	for range serving {
		err := <-errCh
		if err != nil && firstErr == nil {
			firstErr = err
			s.recordServeErr(err)
			// One listener failing takes the other down with it.
			go func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
				defer cancel()
				_ = s.Shutdown(shutdownCtx)
			}()
		}
	}
	return firstErr
}

func wrapServeErr(op string, err error) error {
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// startWatcher reloads the store whenever a ChangeFeed backend reports an
// out-of-process rewrite.
func (s *Server) startWatcher() {
	if !s.cfg.WatchStore {
		return
	}
	feed, ok := s.backend.(storage.ChangeFeed)
	if !ok {
		s.logger.Warn("storage.watch.unsupported", "backend", s.backend.Describe())
		return
	}
	s.mu.Lock()
	if s.watchCancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.watchCancel = cancel
	s.watchDone = done
	s.mu.Unlock()

	logger := svcfields.WithSubsystem(s.logger, "storage.watch")
	ctx = pslog.ContextWithLogger(ctx, logger)
	go func() {
		defer close(done)
		logger.Info("storage.watch.start", "backend", s.backend.Describe())
		err := feed.Watch(ctx, func() {
			if err := s.store.Reload(ctx); err != nil {
				logger.Warn("storage.watch.reload_failed", "error", err)
				return
			}
			logger.Info("storage.watch.reloaded", "records", s.store.Len())
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("storage.watch.stopped", "error", err)
		}
	}()
}

func (s *Server) stopWatcher() {
	s.mu.Lock()
	cancel, done := s.watchCancel, s.watchDone
	s.watchCancel, s.watchDone = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// ready backs GET /readyz.
func (s *Server) ready() error {
	select {
	case <-s.readyCh:
	default:
		return errors.New("listeners not bound")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return errors.New("shutting down")
	}
	return nil
}

// Shutdown gracefully stops both listeners, closes the store and its
// backend, then flushes telemetry. It returns any fatal serve/shutdown
// error; the error is nil for clean shutdowns.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.shutdown = true
	s.mu.Unlock()

	var errs []error
	if err := s.httpSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if s.mcpSrv != nil {
		if err := s.mcpSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, fmt.Errorf("mcp shutdown: %w", err))
		}
	}
	s.stopWatcher()
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	if err := s.backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close backend: %w", err))
	}
	if s.telemetry != nil {
		telemetryCtx := ctx
		if telemetryCtx.Err() != nil {
			var cancel context.CancelFunc
			telemetryCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
		}
		if err := s.telemetry.Shutdown(telemetryCtx); err != nil {
			errs = append(errs, err)
		}
		s.telemetry = nil
	}
	s.logger.Info("server.stopped")
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return s.LastServeError()
}

// Close gracefully shuts the server down using a background context.
func (s *Server) Close() error {
	return s.Shutdown(context.Background())
}

func (s *Server) signalReady() {
	s.readyOnce.Do(func() {
		close(s.readyCh)
	})
}

// WaitUntilReady blocks until the listeners are bound or context ends.
func (s *Server) WaitUntilReady(ctx context.Context) error {
	select {
	case <-s.readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ListenerAddr returns the bound HTTP API address once available.
func (s *Server) ListenerAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// MCPListenerAddr returns the bound MCP address, or nil when MCP is disabled
// or not yet listening.
func (s *Server) MCPListenerAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mcpListener != nil {
		return s.mcpListener.Addr()
	}
	return nil
}

// MetricsAddr returns the bound Prometheus listener address, if any.
func (s *Server) MetricsAddr() string {
	return s.telemetry.listenerAddr("metrics")
}

func (s *Server) recordServeErr(err error) {
	s.mu.Lock()
	s.lastServeErr = err
	s.mu.Unlock()
}

// LastServeError returns the first fatal error reported by either listener.
func (s *Server) LastServeError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastServeErr
}

// StartServer starts a stockd server in a background goroutine and waits
// until it is ready to accept connections. It returns the running server
// alongside a stop function that gracefully shuts it down.
// Example:
//
//	cfg := stockd.Config{Store: "mem://", Listen: "127.0.0.1:0", MCPListen: "127.0.0.1:0"}
//	srv, stop, err := stockd.StartServer(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer stop(context.Background())
func StartServer(ctx context.Context, cfg Config, opts ...Option) (*Server, func(context.Context) error, error) {
	srv, err := NewServer(cfg, opts...)
	if err != nil {
		return nil, nil, err
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	waitCtx := ctx
	if waitCtx == nil {
		waitCtx = context.Background()
	}
	select {
	case <-srv.readyCh:
	case err := <-errCh:
		_ = srv.Close()
		if err == nil {
			err = errors.New("stockd: server exited before becoming ready")
		}
		return nil, nil, err
	case <-waitCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		<-errCh
		return nil, nil, waitCtx.Err()
	}
	var (
		stopOnce sync.Once
		stopErr  error
	)
	stop := func(shutdownCtx context.Context) error {
		stopOnce.Do(func() {
			if shutdownCtx == nil {
				shutdownCtx = context.Background()
			}
			if err := srv.Shutdown(shutdownCtx); err != nil {
				stopErr = err
				return
			}
			if err := <-errCh; err != nil {
				stopErr = err
			}
		})
		return stopErr
	}
	if ctx != nil {
		go func() {
			<-ctx.Done()
			_ = stop(context.Background())
		}()
	}
	return srv, stop, nil
}
