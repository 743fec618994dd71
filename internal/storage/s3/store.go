package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"pkt.systems/pslog"

	"pkt.systems/stockd/internal/storage"
)

// Config controls the behaviour of the S3 snapshot backend.
type Config struct {
	Endpoint       string
	Region         string
	Bucket         string
	Key            string
	Insecure       bool
	ForcePathStyle bool
	CreateBucket   bool
	CustomCreds    *credentials.Credentials
	Transport      http.RoundTripper
}

// DefaultKey is the object name used when Config.Key is empty.
const DefaultKey = "stocks.json"

// Store implements storage.Backend backed by one object in an
// S3-compatible bucket.
type Store struct {
	client *minio.Client
	cfg    Config
}

// New constructs a Store using the provided configuration.
func New(cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}
	cfg.Key = strings.Trim(cfg.Key, "/")
	if cfg.Key == "" {
		cfg.Key = DefaultKey
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		if cfg.Region != "" {
			endpoint = fmt.Sprintf("s3.%s.amazonaws.com", cfg.Region)
		} else {
			endpoint = "s3.amazonaws.com"
		}
	}
	if cfg.Transport == nil {
		cfg.Transport = defaultTransport()
	}
	var creds *credentials.Credentials
	if cfg.CustomCreds != nil {
		creds = cfg.CustomCreds
	} else {
		chain := []credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.EnvMinio{},
			&credentials.FileAWSCredentials{},
			&credentials.IAM{},
		}
		creds = credentials.NewChainCredentials(chain)
	}
	options := &minio.Options{
		Creds:     creds,
		Secure:    !cfg.Insecure,
		Region:    cfg.Region,
		Transport: cfg.Transport,
	}
	if cfg.ForcePathStyle {
		options.BucketLookup = minio.BucketLookupPath
	}
	client, err := minio.New(endpoint, options)
	if err != nil {
		return nil, fmt.Errorf("s3: create client: %w", err)
	}
	return &Store{client: client, cfg: cfg}, nil
}

func defaultTransport() http.RoundTripper {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return http.DefaultTransport
	}
	clone := base.Clone()
	if clone.IdleConnTimeout == 0 {
		clone.IdleConnTimeout = 90 * time.Second
	}
	if clone.TLSHandshakeTimeout == 0 {
		clone.TLSHandshakeTimeout = 10 * time.Second
	}
	return clone
}

// Close is a no-op; the minio client holds no resources that need release.
func (s *Store) Close() error { return nil }

// Client exposes the underlying minio client.
func (s *Store) Client() *minio.Client { return s.client }

// Config returns the effective configuration.
func (s *Store) Config() Config { return s.cfg }

// Describe identifies the backend without credentials.
func (s *Store) Describe() string {
	return fmt.Sprintf("s3://%s/%s/%s", s.client.EndpointURL().Host, s.cfg.Bucket, s.cfg.Key)
}

// EnsureBucket checks that the bucket exists, creating it when
// Config.CreateBucket is set.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return s.wrapError(err, "s3: bucket exists")
	}
	if exists {
		return nil
	}
	if !s.cfg.CreateBucket {
		return fmt.Errorf("s3: bucket %s does not exist", s.cfg.Bucket)
	}
	if err := s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "BucketAlreadyOwnedByYou" || resp.Code == "BucketAlreadyExists" {
			return nil
		}
		return s.wrapError(err, "s3: make bucket")
	}
	return nil
}

// Load downloads the snapshot object.
func (s *Store) Load(ctx context.Context) ([]byte, error) {
	logger := pslog.LoggerFromContext(ctx)
	logger.Trace("s3.load.begin", "bucket", s.cfg.Bucket, "object", s.cfg.Key)
	obj, err := s.client.GetObject(ctx, s.cfg.Bucket, s.cfg.Key, minio.GetObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, storage.ErrNotFound
		}
		logger.Debug("s3.load.get_error", "bucket", s.cfg.Bucket, "object", s.cfg.Key, "error", err)
		return nil, s.wrapError(err, "s3: get object")
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			logger.Debug("s3.load.not_found", "bucket", s.cfg.Bucket, "object", s.cfg.Key)
			return nil, storage.ErrNotFound
		}
		logger.Debug("s3.load.read_error", "bucket", s.cfg.Bucket, "object", s.cfg.Key, "error", err)
		return nil, s.wrapError(err, "s3: read object")
	}
	logger.Trace("s3.load.success", "bucket", s.cfg.Bucket, "object", s.cfg.Key, "bytes", len(data))
	return data, nil
}

// Save uploads data as the snapshot object.
func (s *Store) Save(ctx context.Context, data []byte) error {
	logger := pslog.LoggerFromContext(ctx)
	putOpts := minio.PutObjectOptions{ContentType: storage.ContentTypeJSON}
	info, err := s.client.PutObject(ctx, s.cfg.Bucket, s.cfg.Key, bytes.NewReader(data), int64(len(data)), putOpts)
	if err != nil {
		logger.Debug("s3.save.put_error", "bucket", s.cfg.Bucket, "object", s.cfg.Key, "error", err)
		return s.wrapError(err, "s3: put object")
	}
	logger.Trace("s3.save.success", "bucket", s.cfg.Bucket, "object", s.cfg.Key, "etag", stripETag(info.ETag), "bytes", info.Size)
	return nil
}

func stripETag(etag string) string {
	return strings.Trim(etag, "\"")
}

func isNotFound(err error) bool {
	errResp := minio.ErrorResponse{}
	if errors.As(err, &errResp) {
		return errResp.StatusCode == http.StatusNotFound || errResp.Code == "NoSuchKey"
	}
	return false
}

func (s *Store) wrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	retryable := isRetryable(err)
	if msg != "" {
		err = fmt.Errorf("%s: %w", msg, err)
	}
	if retryable {
		return storage.NewTransientError(err)
	}
	return err
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if isNetworkConnectionError(err) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true
		}
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsTemporary {
			return true
		}
	}
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode >= http.StatusInternalServerError {
		return true
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusRequestTimeout:
		return true
	}
	return false
}

func isNetworkConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNABORTED) || errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if isNetworkConnectionError(opErr.Err) {
			return true
		}
	}
	return false
}
