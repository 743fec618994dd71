// Package storagecheck exercises a configured snapshot backend the same way
// the server will, so misconfigured buckets or unwritable paths surface
// before the first request.
package storagecheck

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pkt.systems/stockd/internal/storage"
	"pkt.systems/stockd/internal/storage/aws"
)

// Result captures the outcome of backend verification.
type Result struct {
	Backend           string
	SnapshotBytes     int
	SnapshotMissing   bool
	Checks            []CheckResult
	RecommendedPolicy string
}

// Passed reports whether all checks succeeded.
func (r Result) Passed() bool {
	for _, check := range r.Checks {
		if check.Err != nil {
			return false
		}
	}
	return true
}

// CheckResult is the outcome of a single verification step.
type CheckResult struct {
	Name string
	Err  error
}

// Options tunes Verify.
type Options struct {
	// Write rewrites the current snapshot unchanged to prove write access.
	// It is skipped when no snapshot exists so verification never seeds.
	Write bool
	// Timeout bounds the whole run. Defaults to 15s.
	Timeout time.Duration
}

// Verify loads the snapshot from backend, checks that it is a JSON array and
// optionally writes it back.
func Verify(ctx context.Context, backend storage.Backend, opts Options) Result {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	result := Result{Backend: backend.Describe()}
	run := func(name string, fn func(context.Context) error) {
		result.Checks = append(result.Checks, CheckResult{Name: name, Err: fn(ctx)})
	}

	var snapshot []byte
	run("LoadSnapshot", func(ctx context.Context) error {
		data, err := backend.Load(ctx)
		if errors.Is(err, storage.ErrNotFound) {
			result.SnapshotMissing = true
			return nil
		}
		if err != nil {
			return err
		}
		snapshot = data
		result.SnapshotBytes = len(data)
		return nil
	})
	if !result.SnapshotMissing && snapshot != nil {
		run("SnapshotIsArray", func(context.Context) error {
			return checkArray(snapshot)
		})
		if opts.Write {
			run("WriteSnapshot", func(ctx context.Context) error {
				return backend.Save(ctx, snapshot)
			})
		}
	}
	if awsStore, ok := storage.Unwrap(backend).(*aws.Store); ok && !result.Passed() {
		cfg := awsStore.Config()
		result.RecommendedPolicy = BuildAWSPolicy(cfg.Bucket, cfg.Key)
	}
	return result
}

func checkArray(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return fmt.Errorf("snapshot is not a JSON array")
	}
	var records []json.RawMessage
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	return nil
}

// BuildAWSPolicy renders the least-privilege IAM policy for one snapshot
// object.
func BuildAWSPolicy(bucket, key string) string {
	policy := map[string]any{
		"Version": "2012-10-17",
		"Statement": []any{
			map[string]any{
				"Effect":   "Allow",
				"Action":   []string{"s3:ListBucket", "s3:GetBucketLocation"},
				"Resource": []string{fmt.Sprintf("arn:aws:s3:::%s", bucket)},
			},
			map[string]any{
				"Effect":   "Allow",
				"Action":   []string{"s3:GetObject", "s3:PutObject"},
				"Resource": []string{fmt.Sprintf("arn:aws:s3:::%s/%s", bucket, key)},
			},
		},
	}
	enc, _ := json.MarshalIndent(policy, "", "  ")
	return string(enc)
}
