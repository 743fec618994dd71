package stockd

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"pkt.systems/stockd/internal/auth"
)

const (
	// DefaultListen is the HTTP API bind address.
	DefaultListen = ":8000"
	// DefaultMCPListen is the MCP server bind address.
	DefaultMCPListen = "127.0.0.1:8001"
	// DefaultMCPPath is the MCP streamable HTTP endpoint path.
	DefaultMCPPath = "/mcp"
	// DefaultStore is the snapshot location used when none is configured: a
	// flat file in the working directory.
	DefaultStore = "stocks.txt"
	// DefaultUsername is the fixed HTTP Basic username.
	DefaultUsername = "admin"
	// DefaultPassword is the fixed HTTP Basic password.
	DefaultPassword = "admin"
	// DefaultRealm is announced in WWW-Authenticate challenges.
	DefaultRealm = "stockd"
	// DefaultJSONMaxBytes bounds incoming JSON request bodies.
	DefaultJSONMaxBytes = 1 << 20
	// DefaultMetricsListen is empty so metrics stay off unless configured.
	DefaultMetricsListen = ""
	// DefaultPprofListen is empty so pprof stays off unless configured.
	DefaultPprofListen = ""
	// DefaultShutdownTimeout caps graceful shutdown of both listeners.
	DefaultShutdownTimeout = 10 * time.Second
	// DefaultMaxConcurrentStreams sets HTTP/2 MaxConcurrentStreams when not explicitly configured.
	DefaultMaxConcurrentStreams = 250
	// DefaultStorageRetryMaxAttempts describes how many transient storage errors are retried.
	DefaultStorageRetryMaxAttempts = 4
	// DefaultStorageRetryBaseDelay configures the base delay between storage retries.
	DefaultStorageRetryBaseDelay = 100 * time.Millisecond
	// DefaultStorageRetryMaxDelay caps the exponential backoff between storage retries.
	DefaultStorageRetryMaxDelay = 2 * time.Second
	// DefaultStorageRetryMultiplier defines the exponential backoff ratio.
	DefaultStorageRetryMultiplier = 2.0
	// DefaultConfigFileName is the config file searched for when --config is omitted.
	DefaultConfigFileName = "config.yaml"
	// DefaultServiceName labels telemetry resources and API responses.
	DefaultServiceName = "stockd"
)

// Config captures the tunables for a stockd.Server instance.
type Config struct {
	// Listen is the HTTP API bind address (for example ":8000").
	Listen string
	// MCPListen is the MCP server bind address.
	MCPListen string
	// MCPPath is the MCP endpoint path on MCPListen.
	MCPPath string
	// DisableMCP runs the HTTP API only.
	DisableMCP bool
	// Store is the snapshot location: a bare path, disk://, mem://, s3://,
	// aws://, azure:// or redis:// URL.
	Store string
	// WatchStore reloads the collection when another process rewrites the
	// snapshot. Only disk and redis stores announce changes.
	WatchStore bool
	// UniqueSymbols rejects creates and updates that duplicate a symbol.
	UniqueSymbols bool

	// Username and Password form the HTTP Basic credential.
	Username string
	Password string
	// BearerToken is the MCP bearer token. Empty derives base64("user:pass").
	BearerToken string
	// JWTSecret additionally accepts HS256 bearer tokens signed with it.
	JWTSecret string
	// JWTIssuer restricts accepted JWTs to one issuer when set.
	JWTIssuer string
	// ExposeTokenHint includes the example credentials on /auth-info.
	ExposeTokenHint bool

	// JSONMaxBytes caps incoming JSON payload size.
	JSONMaxBytes int64
	// HTTP2MaxConcurrentStreams sets HTTP/2 MaxConcurrentStreams; 0 uses default.
	HTTP2MaxConcurrentStreams int
	// HTTP2MaxConcurrentStreamsSet reports whether HTTP2MaxConcurrentStreams was explicitly set.
	HTTP2MaxConcurrentStreamsSet bool
	// ShutdownTimeout caps graceful shutdown duration.
	ShutdownTimeout time.Duration

	// OTLPEndpoint enables OTLP trace export to the given collector endpoint.
	OTLPEndpoint string
	// DisableHTTPTracing disables OpenTelemetry spans for HTTP handlers.
	DisableHTTPTracing bool
	// MetricsListen is the Prometheus scrape address; empty disables metrics.
	MetricsListen string
	// PprofListen is the pprof endpoint bind address; empty disables pprof.
	PprofListen string
	// EnableProfilingMetrics exports Go runtime metrics on the metrics endpoint.
	EnableProfilingMetrics bool

	// StorageRetryMaxAttempts bounds retries of transient backend errors.
	StorageRetryMaxAttempts int
	// StorageRetryBaseDelay is the first backoff delay.
	StorageRetryBaseDelay time.Duration
	// StorageRetryMaxDelay caps the backoff delay.
	StorageRetryMaxDelay time.Duration
	// StorageRetryMultiplier grows the delay between attempts.
	StorageRetryMultiplier float64

	// S3AccessKeyID, S3SecretAccessKey and S3SessionToken authenticate s3:// stores.
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3SessionToken    string
	// AWSRegion is used for aws:// stores without a region query parameter.
	AWSRegion string
	// AzureAccount overrides the account in azure:// URLs.
	AzureAccount string
	// AzureAccountKey authenticates azure:// stores with a shared key.
	AzureAccountKey string
	// AzureEndpoint overrides the derived blob endpoint.
	AzureEndpoint string
	// AzureSASToken authenticates azure:// stores with a SAS token.
	AzureSASToken string
}

var supportedStoreSchemes = []string{"", "mem", "memory", "disk", "s3", "aws", "azure", "redis", "rediss"}

// Validate fills defaults and rejects inconsistent settings.
func (c *Config) Validate() error {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.MCPListen == "" {
		c.MCPListen = DefaultMCPListen
	}
	if c.MCPPath == "" {
		c.MCPPath = DefaultMCPPath
	}
	if !strings.HasPrefix(c.MCPPath, "/") {
		c.MCPPath = "/" + c.MCPPath
	}
	// Port 0 asks the kernel for a free port, so equal addresses do not collide.
	if !c.DisableMCP && c.MCPListen == c.Listen && !strings.HasSuffix(c.Listen, ":0") {
		return fmt.Errorf("config: mcp-listen must differ from listen")
	}
	c.Store = strings.TrimSpace(c.Store)
	if c.Store == "" {
		c.Store = DefaultStore
	}
	scheme, err := storeScheme(c.Store)
	if err != nil {
		return err
	}
	if !slices.Contains(supportedStoreSchemes, scheme) {
		return fmt.Errorf("config: store scheme %q not supported", scheme)
	}
	if c.Username == "" {
		c.Username = DefaultUsername
	}
	if c.Password == "" {
		c.Password = DefaultPassword
	}
	if strings.ContainsRune(c.Username, ':') {
		return fmt.Errorf("config: username must not contain ':'")
	}
	if c.JWTIssuer != "" && c.JWTSecret == "" {
		return fmt.Errorf("config: jwt issuer requires jwt secret")
	}
	if c.JSONMaxBytes == 0 {
		c.JSONMaxBytes = DefaultJSONMaxBytes
	} else if c.JSONMaxBytes < 0 {
		return fmt.Errorf("config: json max bytes must be >= 0")
	}
	if c.HTTP2MaxConcurrentStreams < 0 {
		return fmt.Errorf("config: http2 max concurrent streams must be >= 0")
	}
	if c.HTTP2MaxConcurrentStreams != 0 {
		c.HTTP2MaxConcurrentStreamsSet = true
	}
	if !c.HTTP2MaxConcurrentStreamsSet {
		c.HTTP2MaxConcurrentStreams = DefaultMaxConcurrentStreams
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	} else if c.ShutdownTimeout < 0 {
		return fmt.Errorf("config: shutdown timeout must be >= 0")
	}
	if c.EnableProfilingMetrics && strings.TrimSpace(c.MetricsListen) == "" {
		return fmt.Errorf("config: profiling metrics require metrics-listen")
	}
	if c.StorageRetryMaxAttempts <= 0 {
		c.StorageRetryMaxAttempts = DefaultStorageRetryMaxAttempts
	}
	if c.StorageRetryBaseDelay <= 0 {
		c.StorageRetryBaseDelay = DefaultStorageRetryBaseDelay
	}
	if c.StorageRetryMaxDelay <= 0 {
		c.StorageRetryMaxDelay = DefaultStorageRetryMaxDelay
	}
	if c.StorageRetryMaxDelay < c.StorageRetryBaseDelay {
		return fmt.Errorf("config: storage retry max delay must be >= base delay")
	}
	if c.StorageRetryMultiplier <= 0 {
		c.StorageRetryMultiplier = DefaultStorageRetryMultiplier
	} else if c.StorageRetryMultiplier < 1 {
		return fmt.Errorf("config: storage retry multiplier must be >= 1")
	}
	return nil
}

// MCPToken returns the bearer token MCP clients present.
func (c Config) MCPToken() string {
	if c.BearerToken != "" {
		return c.BearerToken
	}
	return auth.DefaultToken(c.Username, c.Password)
}

// RedactedStore returns Store with any userinfo password and credential
// query parameters masked, suitable for logs and the config resource.
func (c Config) RedactedStore() string {
	u, err := url.Parse(c.Store)
	if err != nil || u.Scheme == "" {
		return c.Store
	}
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
		}
	}
	query := u.Query()
	changed := false
	for _, key := range []string{"sas", "password", "secret"} {
		if query.Has(key) {
			query.Set(key, "xxxxx")
			changed = true
		}
	}
	if changed {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func storeScheme(store string) (string, error) {
	if !strings.Contains(store, "://") {
		return "", nil
	}
	u, err := url.Parse(store)
	if err != nil {
		return "", fmt.Errorf("config: parse store URL: %w", err)
	}
	return strings.ToLower(u.Scheme), nil
}

// DefaultConfigDir returns the default configuration directory ($HOME/.stockd).
func DefaultConfigDir() (string, error) {
	if override := strings.TrimSpace(os.Getenv("STOCKD_CONFIG_DIR")); override != "" {
		if filepath.IsAbs(override) {
			return override, nil
		}
		abs, err := filepath.Abs(override)
		if err != nil {
			return "", err
		}
		return abs, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".stockd"), nil
}
