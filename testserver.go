package stockd

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"pkt.systems/pslog"
)

// TestServer wraps a running stockd.Server with convenient handles for tests.
type TestServer struct {
	Server  *Server
	BaseURL string
	// MCPURL is the full MCP endpoint URL, empty when MCP is disabled.
	MCPURL string
	Config Config

	stop func(context.Context) error
}

// TestServerOption adjusts the configuration or server options used by
// NewTestServer.
type TestServerOption func(*testServerOptions)

type testServerOptions struct {
	cfg        Config
	serverOpts []Option
	logLevel   string
}

// WithTestConfig mutates the test server configuration before start.
func WithTestConfig(fn func(*Config)) TestServerOption {
	return func(o *testServerOptions) {
		fn(&o.cfg)
	}
}

// WithTestServerOptions appends server options (backend, clock, ...).
func WithTestServerOptions(opts ...Option) TestServerOption {
	return func(o *testServerOptions) {
		o.serverOpts = append(o.serverOpts, opts...)
	}
}

// WithTestLogLevel routes server logs at level and above through t.Log.
func WithTestLogLevel(level string) TestServerOption {
	return func(o *testServerOptions) {
		o.logLevel = level
	}
}

// NewTestServer starts an in-memory server on loopback ports chosen by the
// kernel and stops it when the test ends.
func NewTestServer(t testing.TB, opts ...TestServerOption) *TestServer {
	t.Helper()
	o := testServerOptions{
		cfg: Config{
			Store:     "mem://",
			Listen:    "127.0.0.1:0",
			MCPListen: "127.0.0.1:0",
		},
	}
	for _, opt := range opts {
		opt(&o)
	}
	logger := NewTestingLogger(t, o.logLevel)
	serverOpts := append([]Option{WithLogger(logger)}, o.serverOpts...)

	ctxServer, cancel := context.WithCancel(context.Background())
	type startResult struct {
		srv  *Server
		stop func(context.Context) error
		err  error
	}
	resultCh := make(chan startResult, 1)
	go func() {
		srv, stop, err := StartServer(ctxServer, o.cfg, serverOpts...)
		resultCh <- startResult{srv: srv, stop: stop, err: err}
	}()
	var res startResult
	select {
	case res = <-resultCh:
	case <-time.After(10 * time.Second):
		cancel()
		t.Fatalf("start test server: timed out waiting for listeners")
	}
	if res.err != nil {
		cancel()
		t.Fatalf("start test server: %v", res.err)
	}
	srv, stop := res.srv, res.stop
	stopAndCancel := func(ctx context.Context) error {
		defer cancel()
		return stop(ctx)
	}
	ts := &TestServer{
		Server:  srv,
		BaseURL: "http://" + srv.ListenerAddr().String(),
		Config:  srv.cfg,
		stop:    stopAndCancel,
	}
	if addr := srv.MCPListenerAddr(); addr != nil {
		ts.MCPURL = "http://" + addr.String() + srv.cfg.MCPPath
	}
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := ts.Stop(stopCtx); err != nil {
			t.Errorf("stop test server: %v", err)
		}
	})
	return ts
}

// Stop shuts down the server using the provided context.
func (ts *TestServer) Stop(ctx context.Context) error {
	if ts == nil || ts.stop == nil {
		return nil
	}
	return ts.stop(ctx)
}

// URL returns the base URL clients should use to reach the HTTP API.
func (ts *TestServer) URL() string {
	if ts == nil {
		return ""
	}
	return ts.BaseURL
}

type testingWriter struct {
	t  testing.TB
	mu sync.Mutex
	// closed guards against writes after the associated test has finished.
	closed bool
}

func (w *testingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return len(p), nil
	}
	for _, line := range bytes.Split(p, []byte{'\n'}) {
		if len(line) == 0 {
			continue
		}
		func(entry string) {
			defer func() {
				if r := recover(); r != nil {
					if strings.Contains(fmt.Sprint(r), "Log in goroutine after") {
						return
					}
					panic(r)
				}
			}()
			w.t.Log(entry)
		}(string(line))
	}
	return len(p), nil
}

func (w *testingWriter) close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
}

// NewTestingLogger creates a pslog logger that writes through testing.TB.
// An empty or unknown level keeps only warnings and errors.
func NewTestingLogger(t testing.TB, level string) pslog.Logger {
	writer := &testingWriter{t: t}
	t.Cleanup(writer.close)
	logger := pslog.NewStructured(context.Background(), writer).With("app", "testserver")
	lvl, ok := pslog.ParseLevel(level)
	if !ok {
		lvl, _ = pslog.ParseLevel("warn")
	}
	return logger.LogLevel(lvl)
}
