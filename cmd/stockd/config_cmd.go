package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"pkt.systems/stockd"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage stockd configuration files",
	}
	cmd.AddCommand(newConfigGenCommand())
	return cmd
}

func newConfigGenCommand() *cobra.Command {
	var outPath string
	var force bool
	var stdout bool
	defaultOutput := "$HOME/.stockd/" + stockd.DefaultConfigFileName
	if dir, err := stockd.DefaultConfigDir(); err == nil {
		defaultOutput = filepath.Join(dir, stockd.DefaultConfigFileName)
	}

	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate a default stockd configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if stdout && outPath != "" {
				return fmt.Errorf("--stdout and --out are mutually exclusive")
			}
			data, err := defaultConfigYAML()
			if err != nil {
				return err
			}
			if stdout {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			if outPath == "" {
				dir, err := stockd.DefaultConfigDir()
				if err != nil {
					return fmt.Errorf("resolve config dir: %w", err)
				}
				outPath = filepath.Join(dir, stockd.DefaultConfigFileName)
			}
			if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
				return fmt.Errorf("create config dir: %w", err)
			}
			if !force {
				if _, err := os.Stat(outPath); err == nil {
					return fmt.Errorf("config file %s already exists (use --force to overwrite)", outPath)
				} else if !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("stat config file: %w", err)
				}
			}
			if err := os.WriteFile(outPath, data, 0o600); err != nil {
				return fmt.Errorf("write config file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote default config to %s\n", outPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&outPath, "out", "", fmt.Sprintf("output path for generated config (defaults to %s)", defaultOutput))
	cmd.Flags().BoolVar(&force, "force", false, "overwrite the target file if it already exists")
	cmd.Flags().BoolVar(&stdout, "stdout", false, "print the config to stdout instead of writing a file")
	return cmd
}

// configDefaults mirrors the root command flags; keys match flag names so
// viper reads the file back without translation.
type configDefaults struct {
	Listen                    string  `yaml:"listen"`
	MCPListen                 string  `yaml:"mcp-listen"`
	MCPPath                   string  `yaml:"mcp-path"`
	DisableMCP                bool    `yaml:"disable-mcp"`
	Store                     string  `yaml:"store"`
	WatchStore                bool    `yaml:"watch-store"`
	UniqueSymbols             bool    `yaml:"unique-symbols"`
	Username                  string  `yaml:"username"`
	Password                  string  `yaml:"password"`
	BearerToken               string  `yaml:"bearer-token"`
	JWTSecret                 string  `yaml:"jwt-secret"`
	JWTIssuer                 string  `yaml:"jwt-issuer"`
	ExposeTokenHint           bool    `yaml:"expose-token-hint"`
	JSONMax                   string  `yaml:"json-max"`
	HTTP2MaxConcurrentStreams int     `yaml:"http2-max-concurrent-streams"`
	ShutdownTimeout           string  `yaml:"shutdown-timeout"`
	MetricsListen             string  `yaml:"metrics-listen"`
	PprofListen               string  `yaml:"pprof-listen"`
	EnableProfilingMetrics    bool    `yaml:"enable-profiling-metrics"`
	OTLPEndpoint              string  `yaml:"otlp-endpoint"`
	DisableHTTPTracing        bool    `yaml:"disable-http-tracing"`
	StorageRetryMaxAttempts   int     `yaml:"storage-retry-attempts"`
	StorageRetryBaseDelay     string  `yaml:"storage-retry-base-delay"`
	StorageRetryMaxDelay      string  `yaml:"storage-retry-max-delay"`
	StorageRetryMultiplier    float64 `yaml:"storage-retry-multiplier"`
	AWSRegion                 string  `yaml:"aws-region"`
	AzureEndpoint             string  `yaml:"azure-endpoint"`
	LogLevel                  string  `yaml:"log-level"`
}

func defaultConfigYAML(overrides ...func(*configDefaults)) ([]byte, error) {
	defaults := configDefaults{
		Listen:                    stockd.DefaultListen,
		MCPListen:                 stockd.DefaultMCPListen,
		MCPPath:                   stockd.DefaultMCPPath,
		Store:                     stockd.DefaultStore,
		Username:                  stockd.DefaultUsername,
		Password:                  stockd.DefaultPassword,
		JSONMax:                   humanizeBytes(stockd.DefaultJSONMaxBytes),
		HTTP2MaxConcurrentStreams: stockd.DefaultMaxConcurrentStreams,
		ShutdownTimeout:           stockd.DefaultShutdownTimeout.String(),
		MetricsListen:             stockd.DefaultMetricsListen,
		PprofListen:               stockd.DefaultPprofListen,
		StorageRetryMaxAttempts:   stockd.DefaultStorageRetryMaxAttempts,
		StorageRetryBaseDelay:     stockd.DefaultStorageRetryBaseDelay.String(),
		StorageRetryMaxDelay:      stockd.DefaultStorageRetryMaxDelay.String(),
		StorageRetryMultiplier:    stockd.DefaultStorageRetryMultiplier,
		LogLevel:                  "info",
	}
	for _, fn := range overrides {
		if fn != nil {
			fn(&defaults)
		}
	}
	out, err := yaml.Marshal(&defaults)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return out, nil
}
