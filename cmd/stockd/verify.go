package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/stockd"
	"pkt.systems/stockd/internal/diagnostics/storagecheck"
)

func newVerifyCommand(logger pslog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Run diagnostic checks",
	}
	cmd.AddCommand(newVerifyStoreCommand(logger))
	return cmd
}

func newVerifyStoreCommand(logger pslog.Logger) *cobra.Command {
	var write bool
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:          "store",
		Short:        "Verify that the configured snapshot store is reachable and well formed",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
# Verify the default flat file
stockd verify store

# Verify an S3-compatible service (MinIO) and prove write access
STOCKD_STORE=s3://localhost:9000/stockd/stocks.json?insecure=1 STOCKD_S3_ACCESS_KEY_ID=minio STOCKD_S3_SECRET_ACCESS_KEY=minio123 stockd verify store --write

# Verify AWS S3
STOCKD_STORE=aws://my-bucket/stocks.json STOCKD_AWS_REGION=us-west-2 stockd verify store
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg stockd.Config
			if err := prepareConfig(cmd, &cfg, logger); err != nil {
				return err
			}
			// Only the store matters here; the server's own listener checks
			// do not apply.
			cfg.DisableMCP = true
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx := pslog.ContextWithLogger(cmd.Context(), logger)
			backend, err := stockd.OpenBackend(ctx, cfg)
			if err != nil {
				return err
			}
			defer backend.Close()

			res := storagecheck.Verify(ctx, backend, storagecheck.Options{Write: write, Timeout: timeout})
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Store: %s\n", cfg.RedactedStore())
			fmt.Fprintf(out, "Backend: %s\n", res.Backend)
			if res.SnapshotMissing {
				fmt.Fprintln(out, "Snapshot: (none yet; the server seeds it on first start)")
			} else {
				fmt.Fprintf(out, "Snapshot: %d bytes\n", res.SnapshotBytes)
			}
			fmt.Fprintln(out)

			for _, check := range res.Checks {
				if check.Err == nil {
					fmt.Fprintf(out, "✔ %s\n", check.Name)
				} else {
					fmt.Fprintf(out, "✘ %s: %v\n", check.Name, check.Err)
				}
			}
			if res.Passed() {
				fmt.Fprintln(out, "Storage verification succeeded.")
				return nil
			}
			if res.RecommendedPolicy != "" {
				fmt.Fprintf(out, "\nRecommended AWS IAM policy:\n%s\n", res.RecommendedPolicy)
			}
			return fmt.Errorf("storage verification failed")
		},
	}
	cmd.Flags().BoolVar(&write, "write", false, "rewrite the existing snapshot unchanged to prove write access")
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "overall verification timeout")
	return cmd
}
