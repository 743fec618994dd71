package s3

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"syscall"
	"testing"

	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
	minio "github.com/minio/minio-go/v7"

	"pkt.systems/stockd/internal/storage"
)

func TestS3SnapshotLifecycle(t *testing.T) {
	server, cfg := setupFakeS3(t)
	defer server.Close()

	store, err := New(cfg)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()
	if _, err := store.Load(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found before first save, got %v", err)
	}
	if err := store.Save(ctx, []byte(`[{"symbol":"AAPL"}]`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !strings.Contains(string(got), "AAPL") {
		t.Fatalf("unexpected snapshot %q", got)
	}
	if err := store.Save(ctx, []byte(`[]`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err = store.Load(ctx)
	if err != nil {
		t.Fatalf("load after overwrite: %v", err)
	}
	if string(got) != "[]" {
		t.Fatalf("expected overwritten snapshot, got %q", got)
	}
	if desc := store.Describe(); !strings.Contains(desc, "stockd-test/snapshots/stocks.json") {
		t.Fatalf("unexpected describe %q", desc)
	}
}

func TestEnsureBucketCreatesMissingBucket(t *testing.T) {
	server, cfg := setupFakeS3(t)
	defer server.Close()

	cfg.Bucket = "fresh-bucket"
	ctx := context.Background()
	strict, err := New(cfg)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := strict.EnsureBucket(ctx); err == nil {
		t.Fatal("expected missing bucket error without CreateBucket")
	}

	cfg.CreateBucket = true
	store, err := New(cfg)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		t.Fatalf("ensure bucket: %v", err)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		t.Fatalf("ensure bucket twice: %v", err)
	}
	if err := store.Save(ctx, []byte("[]")); err != nil {
		t.Fatalf("save into new bucket: %v", err)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(Config{Endpoint: "localhost:9000"}); err == nil {
		t.Fatal("expected error without bucket")
	}
}

func setupFakeS3(t *testing.T) (*httptest.Server, Config) {
	t.Helper()
	backend := s3mem.New()
	fs := gofakes3.New(backend)
	server := httptest.NewServer(fs.Server())
	bucket := "stockd-test"
	if err := backend.CreateBucket(bucket); err != nil {
		t.Fatalf("create bucket: %v", err)
	}
	endpoint := strings.TrimPrefix(server.URL, "http://")
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	cfg := Config{
		Endpoint:       endpoint,
		Region:         "us-east-1",
		Bucket:         bucket,
		Key:            "/snapshots/stocks.json",
		Insecure:       true,
		ForcePathStyle: true,
	}
	return server, cfg
}

type fakeTimeoutErr struct{}

func (fakeTimeoutErr) Error() string   { return "timeout" }
func (fakeTimeoutErr) Timeout() bool   { return true }
func (fakeTimeoutErr) Temporary() bool { return true }

func TestIsRetryableNetworkErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil", err: nil, expected: false},
		{name: "context deadline", err: context.DeadlineExceeded, expected: true},
		{name: "net timeout", err: fakeTimeoutErr{}, expected: true},
		{name: "dns temporary", err: &net.DNSError{IsTemporary: true}, expected: true},
		{name: "net op timeout", err: &net.OpError{Err: fakeTimeoutErr{}}, expected: true},
		{name: "connection reset", err: syscall.ECONNRESET, expected: true},
		{name: "io EOF", err: io.EOF, expected: true},
		{name: "server error", err: minio.ErrorResponse{StatusCode: http.StatusServiceUnavailable}, expected: true},
		{name: "forbidden", err: minio.ErrorResponse{StatusCode: http.StatusForbidden}, expected: false},
		{name: "non retryable", err: errors.New("boom"), expected: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := isRetryable(tc.err)
			if got != tc.expected {
				t.Fatalf("expected %v, got %v for %T", tc.expected, got, tc.err)
			}
		})
	}
}
