// Package stockd exposes the Go APIs behind a small stock-information
// service. One record store keeps the collection in memory and rewrites a
// JSON snapshot after every mutation. The store is served two ways: a plain
// HTTP API behind Basic authentication and an MCP (Model Context Protocol)
// tool and resource server behind a bearer token.
//
// # Running a server
//
// The HTTP API listens on `Config.Listen` (default ":8000") and the MCP
// server on `Config.MCPListen` (default "127.0.0.1:8001", path "/mcp").
//
//	cfg := stockd.Config{
//	    Store:  "disk:///var/lib/stockd/stocks.txt",
//	    Listen: ":8000",
//	}
//	srv, err := stockd.NewServer(cfg)
//	if err != nil { log.Fatal(err) }
//	go func() {
//	    if err := srv.Start(); err != nil {
//	        log.Fatalf("stockd: %v", err)
//	    }
//	}()
//	defer func() {
//	    if err := srv.Shutdown(context.Background()); err != nil {
//	        log.Printf("stockd shutdown: %v", err)
//	    }
//	}()
//
// `StartServer` launches a server in a goroutine, waits until both listeners
// are bound and returns a stop function. Tests use it with "127.0.0.1:0"
// addresses and read the bound ports from `ListenerAddr` and
// `MCPListenerAddr`.
//
// # Authentication
//
// HTTP routes other than `/`, the health probes and the OpenAPI document
// require Basic credentials (`Config.Username`/`Config.Password`, default
// admin/admin). MCP requests carry `Authorization: Bearer <token>` where the
// token defaults to base64("username:password"). Setting `Config.JWTSecret`
// additionally accepts HS256 JWTs.
//
// # Storage backends
//
// Configure where the snapshot lives via `Config.Store`:
//
//   - `stocks.txt` or `disk:///var/lib/stockd/stocks.txt` – flat file (default)
//   - `mem://` – in-memory (tests and local experimentation)
//   - `s3://host:port/bucket/key` – MinIO or other S3-compatible stores (TLS on unless `?insecure=1`)
//   - `aws://bucket/key?region=eu-north-1` – AWS S3 (standard AWS credential sources)
//   - `azure://account/container/blob` – Azure Blob Storage (Shared Key or SAS auth)
//   - `redis://host:6379/0?key=stockd:snapshot` – a single Redis key
//
// Disk and Redis stores report rewrites made by other processes; with
// `Config.WatchStore` the server reloads the collection when that happens.
//
// # Observability
//
// `Config.OTLPEndpoint` exports traces over OTLP (gRPC by default, or
// http(s):// URLs), `Config.MetricsListen` serves Prometheus metrics and
// `Config.PprofListen` serves net/http/pprof.
package stockd
