package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"pkt.systems/pslog"
	"pkt.systems/stockd"
	"pkt.systems/stockd/internal/svcfields"
)

func submain(ctx context.Context) int {
	baseLogger := pslog.LoggerFromEnv(context.Background(),
		pslog.WithEnvPrefix("STOCKD_LOG_"),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.InfoLevel}),
		pslog.WithEnvWriter(os.Stderr),
	).With("app", "stockd")
	cmd := newRootCommand(baseLogger)
	rootInvocation := invocationTargetsRootCommand(cmd, os.Args[1:])
	ctx = withSignalCancel(ctx)
	if _, err := cmd.ExecuteContextC(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			if rootInvocation {
				svcfields.WithSubsystem(baseLogger, "cli.root").Error("command failed", "error", err)
			} else {
				fmt.Fprintf(os.Stderr, "%s\n", err)
			}
		}
		return 1
	}
	return 0
}

// invocationTargetsRootCommand reports whether args run the server itself
// rather than a subcommand. Server failures are logged; subcommand failures
// are printed plainly.
func invocationTargetsRootCommand(root *cobra.Command, args []string) bool {
	lookup := func(arg string) *pflag.Flag {
		if name, ok := strings.CutPrefix(arg, "--"); ok {
			if f := root.Flags().Lookup(name); f != nil {
				return f
			}
			return root.PersistentFlags().Lookup(name)
		}
		sh := strings.TrimPrefix(arg, "-")
		if len(sh) == 0 {
			return nil
		}
		last := sh[len(sh)-1:]
		if f := root.Flags().ShorthandLookup(last); f != nil {
			return f
		}
		return root.PersistentFlags().ShorthandLookup(last)
	}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--":
			return true
		case strings.HasPrefix(arg, "-") && arg != "-":
			if strings.Contains(arg, "=") {
				continue
			}
			flag := lookup(arg)
			if flag == nil {
				return !hasSubcommandToken(root, args[i+1:])
			}
			if flag.NoOptDefVal == "" {
				i++
			}
		default:
			return !isSubcommandToken(root, arg)
		}
	}
	return true
}

func hasSubcommandToken(root *cobra.Command, args []string) bool {
	for _, tok := range args {
		if isSubcommandToken(root, tok) {
			return true
		}
	}
	return false
}

func isSubcommandToken(root *cobra.Command, token string) bool {
	for _, sub := range root.Commands() {
		if token == sub.Name() || sub.HasAlias(token) {
			return true
		}
	}
	return false
}

func humanizeBytes(n int64) string {
	return strings.ReplaceAll(humanize.Bytes(uint64(n)), " ", "")
}

// loadEnvFile loads KEY=VALUE pairs into the process environment without
// overriding variables that are already set. A missing default .env file is
// not an error; a missing explicit one is.
func loadEnvFile(path string) (string, error) {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	expanded, err := expandPath(path)
	if err != nil {
		return "", fmt.Errorf("expand env file path %q: %w", path, err)
	}
	if _, err := os.Stat(expanded); err != nil {
		if os.IsNotExist(err) && !explicit {
			return "", nil
		}
		return "", fmt.Errorf("env file %q: %w", expanded, err)
	}
	if err := godotenv.Load(expanded); err != nil {
		return "", fmt.Errorf("load env file %q: %w", expanded, err)
	}
	return expanded, nil
}

func loadConfigFile() (string, error) {
	cfgPath := strings.TrimSpace(viper.GetString("config"))
	explicit := cfgPath != ""

	if cfgPath == "" {
		if dir, err := stockd.DefaultConfigDir(); err == nil {
			candidate := filepath.Join(dir, stockd.DefaultConfigFileName)
			if _, err := os.Stat(candidate); err == nil {
				cfgPath = candidate
			}
		}
	}
	if cfgPath == "" {
		return "", nil
	}

	expanded, err := expandPath(cfgPath)
	if err != nil {
		return "", fmt.Errorf("expand config path %q: %w", cfgPath, err)
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return "", nil
		}
		return "", fmt.Errorf("config file %q: %w", expanded, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("config file %q is a directory", expanded)
	}
	viper.SetConfigFile(expanded)
	if err := viper.ReadInConfig(); err != nil {
		return "", fmt.Errorf("read config file %q: %w", expanded, err)
	}
	return expanded, nil
}

func expandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if len(p) == 1 {
			p = home
		} else if p[1] == '/' || p[1] == '\\' {
			p = filepath.Join(home, p[2:])
		}
	}
	return filepath.Abs(p)
}

// prepareConfig loads .env and the YAML config file, then resolves the
// bound flags into cfg. Subcommands that need a store share it with serve.
func prepareConfig(cmd *cobra.Command, cfg *stockd.Config, logger pslog.Logger) error {
	envFile, err := loadEnvFile(strings.TrimSpace(viper.GetString("env-file")))
	if err != nil {
		return err
	}
	if envFile != "" {
		logger.Info("loaded env file", "path", envFile)
	}
	configFile, err := loadConfigFile()
	if err != nil {
		return err
	}
	if configFile != "" {
		logger.Info("loaded config file", "path", configFile)
	}
	if err := bindConfig(cfg); err != nil {
		return err
	}
	if f := cmd.Flags().Lookup("http2-max-concurrent-streams"); f != nil {
		cfg.HTTP2MaxConcurrentStreamsSet = f.Changed || viper.InConfig("http2-max-concurrent-streams") || envSet("STOCKD_HTTP2_MAX_CONCURRENT_STREAMS")
	}
	return nil
}

func envSet(key string) bool {
	_, ok := os.LookupEnv(key)
	return ok
}

func newRootCommand(baseLogger pslog.Logger) *cobra.Command {
	var cfg stockd.Config

	cmd := &cobra.Command{
		Use:           "stockd",
		Short:         "stockd serves a stock-information collection over an HTTP API and an MCP server",
		SilenceErrors: true,
		Example: `
  # Flat-file snapshot in the working directory (default: stocks.txt)
  stockd

  # Custom snapshot path, MCP on all interfaces
  stockd --store disk:///var/lib/stockd/stocks.txt --mcp-listen :8001

  # MinIO backend (TLS on by default; append ?insecure=1 for HTTP)
  STOCKD_STORE=s3://localhost:9000/stockd/stocks.json?insecure=1 STOCKD_S3_ACCESS_KEY_ID=minioadmin STOCKD_S3_SECRET_ACCESS_KEY=minioadmin stockd

  # Redis snapshot key, reload when another instance writes
  stockd --store redis://localhost:6379/0?key=stockd:snapshot --watch-store

  # In-memory storage (tests/dev only)
  stockd --store mem://
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := baseLogger
			cliLogger := svcfields.WithSubsystem(logger, "cli.root")
			ctx := cmd.Context()
			cmd.SilenceUsage = true
			svcfields.WithSubsystem(logger, "server.lifecycle.init").Info(
				"welcome to stockd",
				"pid", os.Getpid(),
				"uid", os.Getuid(),
				"gid", os.Getgid(),
			)
			if err := prepareConfig(cmd, &cfg, cliLogger); err != nil {
				return err
			}
			logLevel := strings.TrimSpace(viper.GetString("log-level"))
			if logLevel == "" {
				logLevel = "info"
			}
			if level, ok := pslog.ParseLevel(logLevel); ok {
				logger = logger.LogLevel(level)
				cliLogger = svcfields.WithSubsystem(logger, "cli.root")
			}

			server, err := stockd.NewServer(cfg, stockd.WithLogger(logger))
			if err != nil {
				return err
			}
			shutdown := func() error {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			}
			defer func() { _ = shutdown() }()
			go func() {
				<-ctx.Done()
				if err := shutdown(); err != nil {
					cliLogger.Error("shutdown failed", "error", err)
				}
			}()

			err = server.Start()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	persistentFlags := cmd.PersistentFlags()
	persistentFlags.StringP("config", "c", "", "path to YAML config file (defaults to $HOME/.stockd/"+stockd.DefaultConfigFileName+")")
	persistentFlags.String("env-file", "", "path to a .env file loaded before flags are resolved (defaults to ./.env when present)")
	persistentFlags.String("store", stockd.DefaultStore, "snapshot location (path, disk://, mem://, s3://, aws://, azure://, redis://)")
	persistentFlags.String("aws-region", "", "AWS region for aws:// stores")
	persistentFlags.String("azure-key", "", "Azure Storage account key (or use STOCKD_AZURE_ACCOUNT_KEY)")
	persistentFlags.String("azure-endpoint", "", "Azure Blob service endpoint (defaults to https://<account>.blob.core.windows.net)")
	persistentFlags.String("azure-sas-token", "", "Azure SAS token (optional alternative to account key)")
	persistentFlags.String("log-level", "info", "log level (trace|debug|info|warn|error)")

	flags := cmd.Flags()
	flags.StringP("listen", "l", stockd.DefaultListen, "HTTP API listen address")
	flags.String("mcp-listen", stockd.DefaultMCPListen, "MCP server listen address")
	flags.String("mcp-path", stockd.DefaultMCPPath, "MCP streamable HTTP endpoint path")
	flags.Bool("disable-mcp", false, "serve the HTTP API only")
	flags.Bool("watch-store", false, "reload the collection when another process rewrites the snapshot (disk and redis stores)")
	flags.Bool("unique-symbols", false, "reject creates and updates that duplicate an existing symbol")
	flags.String("username", stockd.DefaultUsername, "HTTP Basic username")
	flags.String("password", stockd.DefaultPassword, "HTTP Basic password")
	flags.String("bearer-token", "", "MCP bearer token (defaults to base64(username:password))")
	flags.String("jwt-secret", "", "additionally accept HS256 JWT bearer tokens signed with this secret")
	flags.String("jwt-issuer", "", "required issuer for accepted JWTs")
	flags.Bool("expose-token-hint", false, "include the example credentials and token on the MCP /auth-info endpoint")
	flags.String("json-max", humanizeBytes(stockd.DefaultJSONMaxBytes), "maximum JSON request body size")
	flags.Int("http2-max-concurrent-streams", stockd.DefaultMaxConcurrentStreams, "maximum concurrent HTTP/2 streams per connection (0 uses http2 default)")
	flags.Duration("shutdown-timeout", stockd.DefaultShutdownTimeout, "graceful shutdown timeout")
	flags.String("metrics-listen", stockd.DefaultMetricsListen, "metrics listen address (Prometheus scrape endpoint; empty disables)")
	flags.String("pprof-listen", stockd.DefaultPprofListen, "pprof listen address (debug/pprof endpoints; empty disables)")
	flags.Bool("enable-profiling-metrics", false, "enable Go runtime profiling metrics on the Prometheus endpoint")
	flags.String("otlp-endpoint", "", "OTLP collector endpoint (e.g. grpc://localhost:4317)")
	flags.Bool("disable-http-tracing", false, "disable OpenTelemetry spans for HTTP handlers")
	flags.Int("storage-retry-attempts", stockd.DefaultStorageRetryMaxAttempts, "maximum storage retry attempts")
	flags.Duration("storage-retry-base-delay", stockd.DefaultStorageRetryBaseDelay, "initial backoff for storage retries")
	flags.Duration("storage-retry-max-delay", stockd.DefaultStorageRetryMaxDelay, "maximum backoff delay for storage retries")
	flags.Float64("storage-retry-multiplier", stockd.DefaultStorageRetryMultiplier, "backoff multiplier for storage retries")

	viper.SetEnvPrefix("STOCKD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	names := []string{
		"config", "env-file", "store", "aws-region", "azure-key", "azure-endpoint", "azure-sas-token", "log-level",
		"listen", "mcp-listen", "mcp-path", "disable-mcp", "watch-store", "unique-symbols",
		"username", "password", "bearer-token", "jwt-secret", "jwt-issuer", "expose-token-hint",
		"json-max", "http2-max-concurrent-streams", "shutdown-timeout",
		"metrics-listen", "pprof-listen", "enable-profiling-metrics", "otlp-endpoint", "disable-http-tracing",
		"storage-retry-attempts", "storage-retry-base-delay", "storage-retry-max-delay", "storage-retry-multiplier",
	}
	for _, name := range names {
		mustBindFlag(cmd, name)
	}

	cmd.AddCommand(newVerifyCommand(svcfields.WithSubsystem(baseLogger, "cli.verify")))
	cmd.AddCommand(newConfigCommand())
	cmd.AddCommand(newTokenCommand())
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func mustBindFlag(cmd *cobra.Command, name string) {
	flag := cmd.Flags().Lookup(name)
	if flag == nil {
		flag = cmd.PersistentFlags().Lookup(name)
	}
	if flag == nil {
		panic(fmt.Sprintf("flag %q not found", name))
	}
	if err := viper.BindPFlag(name, flag); err != nil {
		panic(err)
	}
}

func bindConfig(cfg *stockd.Config) error {
	cfg.Listen = viper.GetString("listen")
	cfg.MCPListen = viper.GetString("mcp-listen")
	cfg.MCPPath = viper.GetString("mcp-path")
	cfg.DisableMCP = viper.GetBool("disable-mcp")
	cfg.Store = viper.GetString("store")
	cfg.WatchStore = viper.GetBool("watch-store")
	cfg.UniqueSymbols = viper.GetBool("unique-symbols")
	cfg.Username = viper.GetString("username")
	cfg.Password = viper.GetString("password")
	cfg.BearerToken = strings.TrimSpace(viper.GetString("bearer-token"))
	cfg.JWTSecret = viper.GetString("jwt-secret")
	cfg.JWTIssuer = strings.TrimSpace(viper.GetString("jwt-issuer"))
	cfg.ExposeTokenHint = viper.GetBool("expose-token-hint")
	if maxBytes := viper.GetString("json-max"); maxBytes != "" {
		size, err := humanize.ParseBytes(maxBytes)
		if err != nil {
			return fmt.Errorf("parse json-max: %w", err)
		}
		cfg.JSONMaxBytes = int64(size)
	}
	cfg.HTTP2MaxConcurrentStreams = viper.GetInt("http2-max-concurrent-streams")
	cfg.ShutdownTimeout = viper.GetDuration("shutdown-timeout")
	cfg.MetricsListen = viper.GetString("metrics-listen")
	cfg.PprofListen = viper.GetString("pprof-listen")
	cfg.EnableProfilingMetrics = viper.GetBool("enable-profiling-metrics")
	cfg.OTLPEndpoint = viper.GetString("otlp-endpoint")
	cfg.DisableHTTPTracing = viper.GetBool("disable-http-tracing")
	cfg.StorageRetryMaxAttempts = viper.GetInt("storage-retry-attempts")
	cfg.StorageRetryBaseDelay = viper.GetDuration("storage-retry-base-delay")
	cfg.StorageRetryMaxDelay = viper.GetDuration("storage-retry-max-delay")
	cfg.StorageRetryMultiplier = viper.GetFloat64("storage-retry-multiplier")
	cfg.AWSRegion = strings.TrimSpace(viper.GetString("aws-region"))
	cfg.AzureAccountKey = viper.GetString("azure-key")
	cfg.AzureEndpoint = viper.GetString("azure-endpoint")
	cfg.AzureSASToken = viper.GetString("azure-sas-token")
	return nil
}

func withSignalCancel(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx
}
