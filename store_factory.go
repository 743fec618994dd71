package stockd

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	minioCredentials "github.com/minio/minio-go/v7/pkg/credentials"

	"pkt.systems/stockd/internal/storage"
	"pkt.systems/stockd/internal/storage/aws"
	azurestore "pkt.systems/stockd/internal/storage/azure"
	"pkt.systems/stockd/internal/storage/disk"
	"pkt.systems/stockd/internal/storage/memory"
	redisstore "pkt.systems/stockd/internal/storage/redis"
	"pkt.systems/stockd/internal/storage/s3"
)

// CredentialSummary describes which credentials were selected for object storage.
type CredentialSummary struct {
	AccessKey string
	HasSecret bool
	Source    string
}

// OpenBackend builds the snapshot backend cfg.Store points at. It is
// exported for the verify command, which checks a store without serving.
func OpenBackend(ctx context.Context, cfg Config) (storage.Backend, error) {
	return openBackend(ctx, cfg)
}

func openBackend(ctx context.Context, cfg Config) (storage.Backend, error) {
	scheme, err := storeScheme(cfg.Store)
	if err != nil {
		return nil, err
	}
	switch scheme {
	case "memory", "mem":
		return memory.New(), nil
	case "", "disk":
		diskCfg, err := BuildDiskConfig(cfg)
		if err != nil {
			return nil, err
		}
		return disk.New(diskCfg)
	case "s3":
		s3cfg, _, err := BuildGenericS3Config(cfg)
		if err != nil {
			return nil, err
		}
		backend, err := s3.New(s3cfg)
		if err != nil {
			return nil, err
		}
		if err := ensureObjectStoreReady(ctx, backend); err != nil {
			_ = backend.Close()
			return nil, err
		}
		return backend, nil
	case "aws":
		awscfg, _, err := BuildAWSConfig(cfg)
		if err != nil {
			return nil, err
		}
		backend, err := aws.New(ctx, awscfg)
		if err != nil {
			return nil, err
		}
		if err := ensureObjectStoreReady(ctx, backend); err != nil {
			_ = backend.Close()
			return nil, err
		}
		return backend, nil
	case "azure":
		azureCfg, err := BuildAzureConfig(cfg)
		if err != nil {
			return nil, err
		}
		return azurestore.New(ctx, azureCfg)
	case "redis", "rediss":
		redisCfg, err := BuildRedisConfig(cfg)
		if err != nil {
			return nil, err
		}
		return redisstore.New(redisCfg)
	default:
		return nil, fmt.Errorf("store scheme %q not supported", scheme)
	}
}

// BuildDiskConfig accepts a bare path or a disk:// URL.
func BuildDiskConfig(cfg Config) (disk.Config, error) {
	if !strings.Contains(cfg.Store, "://") {
		path := strings.TrimSpace(cfg.Store)
		if path == "" {
			return disk.Config{}, fmt.Errorf("disk store path required")
		}
		return disk.Config{Path: filepath.Clean(path)}, nil
	}
	u, err := url.Parse(cfg.Store)
	if err != nil {
		return disk.Config{}, fmt.Errorf("parse store URL: %w", err)
	}
	if u.Scheme != "disk" {
		return disk.Config{}, fmt.Errorf("store scheme %q not supported", u.Scheme)
	}
	pathPart := strings.TrimSpace(u.Path)
	// disk://relative/stocks.txt keeps the host as the first path element.
	if host := strings.TrimSpace(u.Host); host != "" {
		pathPart = host + "/" + strings.TrimPrefix(pathPart, "/")
	}
	if pathPart == "" || strings.HasSuffix(pathPart, "/") {
		return disk.Config{}, fmt.Errorf("disk store file required (e.g. disk:///var/lib/stockd/stocks.txt)")
	}
	diskCfg := disk.Config{Path: filepath.Clean(pathPart)}
	if v := u.Query().Get("mode"); v != "" {
		mode, err := strconv.ParseUint(v, 8, 32)
		if err != nil {
			return disk.Config{}, fmt.Errorf("disk store mode %q: %w", v, err)
		}
		diskCfg.FileMode = os.FileMode(mode)
	}
	return diskCfg, nil
}

// BuildGenericS3Config parses s3://host[:port]/bucket[/key] URLs that target
// S3-compatible services (MinIO, etc.).
func BuildGenericS3Config(cfg Config) (s3.Config, CredentialSummary, error) {
	u, err := url.Parse(cfg.Store)
	if err != nil {
		return s3.Config{}, CredentialSummary{}, fmt.Errorf("parse store URL: %w", err)
	}
	if u.Scheme != "s3" {
		return s3.Config{}, CredentialSummary{}, fmt.Errorf("store scheme %q not supported", u.Scheme)
	}
	endpoint := strings.TrimSpace(u.Host)
	if endpoint == "" {
		return s3.Config{}, CredentialSummary{}, fmt.Errorf("s3 store missing host (expected s3://host[:port]/bucket[/key])")
	}
	bucket, key := splitBucketPath(u.Path)
	if bucket == "" {
		return s3.Config{}, CredentialSummary{}, fmt.Errorf("s3 store missing bucket (expected s3://host[:port]/bucket[/key])")
	}
	query := u.Query()
	secure := true
	if v := query.Get("tls"); v != "" {
		if ok, err := strconv.ParseBool(v); err == nil {
			secure = ok
		}
	}
	if v := query.Get("insecure"); v != "" {
		if ok, err := strconv.ParseBool(v); err == nil && ok {
			secure = false
		}
	}
	forcePath := false
	if v := query.Get("path-style"); v != "" {
		if ok, err := strconv.ParseBool(v); err == nil {
			forcePath = ok
		}
	}
	createBucket := false
	if v := query.Get("create-bucket"); v != "" {
		if ok, err := strconv.ParseBool(v); err == nil {
			createBucket = ok
		}
	}
	cred, summary, err := resolveGenericS3Credentials(cfg)
	if err != nil {
		return s3.Config{}, summary, err
	}
	return s3.Config{
		Endpoint:       endpoint,
		Region:         query.Get("region"),
		Bucket:         bucket,
		Key:            key,
		Insecure:       !secure,
		ForcePathStyle: forcePath,
		CreateBucket:   createBucket,
		CustomCreds:    cred,
	}, summary, nil
}

// BuildAWSConfig parses aws://bucket[/key] URLs that target AWS S3.
func BuildAWSConfig(cfg Config) (aws.Config, CredentialSummary, error) {
	u, err := url.Parse(cfg.Store)
	if err != nil {
		return aws.Config{}, CredentialSummary{}, fmt.Errorf("parse store URL: %w", err)
	}
	if u.Scheme != "aws" {
		return aws.Config{}, CredentialSummary{}, fmt.Errorf("store scheme %q not supported", u.Scheme)
	}
	bucket := strings.TrimSpace(u.Host)
	if bucket == "" {
		return aws.Config{}, CredentialSummary{}, fmt.Errorf("aws store missing bucket (expected aws://bucket[/key])")
	}
	key := strings.Trim(u.Path, "/")
	region := strings.TrimSpace(cfg.AWSRegion)
	query := u.Query()
	if v := strings.TrimSpace(query.Get("region")); v != "" {
		region = v
	}
	if region == "" {
		region = firstEnv("AWS_REGION", "AWS_DEFAULT_REGION")
	}
	if region == "" {
		return aws.Config{}, CredentialSummary{}, fmt.Errorf("aws store requires region (set --aws-region or STOCKD_AWS_REGION)")
	}
	insecure := false
	if v := query.Get("insecure"); v != "" {
		if ok, err := strconv.ParseBool(v); err == nil {
			insecure = ok
		}
	}
	forcePath := false
	if v := query.Get("path-style"); v != "" {
		if ok, err := strconv.ParseBool(v); err == nil {
			forcePath = ok
		}
	}
	return aws.Config{
		Endpoint:       strings.TrimSpace(query.Get("endpoint")),
		Region:         region,
		Bucket:         bucket,
		Key:            key,
		Insecure:       insecure,
		ForcePathStyle: forcePath,
	}, resolveAWSCredentials(), nil
}

func splitBucketPath(path string) (bucket, key string) {
	path = strings.Trim(path, "/")
	if path == "" {
		return "", ""
	}
	parts := strings.SplitN(path, "/", 2)
	bucket = strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		key = strings.Trim(parts[1], "/")
	}
	return bucket, key
}

func resolveGenericS3Credentials(cfg Config) (*minioCredentials.Credentials, CredentialSummary, error) {
	accessKey := strings.TrimSpace(cfg.S3AccessKeyID)
	secretKey := cfg.S3SecretAccessKey
	sessionToken := cfg.S3SessionToken
	source := "config"
	if accessKey == "" && secretKey == "" && sessionToken == "" {
		accessKey = strings.TrimSpace(os.Getenv("STOCKD_S3_ACCESS_KEY_ID"))
		secretKey = os.Getenv("STOCKD_S3_SECRET_ACCESS_KEY")
		sessionToken = os.Getenv("STOCKD_S3_SESSION_TOKEN")
		source = "env:STOCKD_S3_ACCESS_KEY_ID"
	}
	if accessKey == "" && secretKey == "" && sessionToken == "" {
		accessKey = strings.TrimSpace(os.Getenv("STOCKD_S3_ROOT_USER"))
		secretKey = os.Getenv("STOCKD_S3_ROOT_PASSWORD")
		source = "env:STOCKD_S3_ROOT_USER"
	}
	summary := CredentialSummary{AccessKey: accessKey, HasSecret: secretKey != "", Source: source}
	if accessKey == "" && secretKey == "" && sessionToken == "" {
		return minioCredentials.NewStaticV4("", "", ""), CredentialSummary{Source: "anonymous"}, nil
	}
	if accessKey == "" || secretKey == "" {
		return nil, summary, fmt.Errorf("s3 credentials incomplete (need access key and secret key)")
	}
	return minioCredentials.NewStaticV4(accessKey, secretKey, sessionToken), summary, nil
}

func resolveAWSCredentials() CredentialSummary {
	summary := CredentialSummary{}
	if access := strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID")); access != "" {
		summary.AccessKey = access
		summary.HasSecret = strings.TrimSpace(os.Getenv("AWS_SECRET_ACCESS_KEY")) != ""
		summary.Source = "env:AWS_ACCESS_KEY_ID"
	} else if profile := strings.TrimSpace(os.Getenv("AWS_PROFILE")); profile != "" {
		summary.Source = "profile:" + profile
	} else {
		summary.Source = "auto"
	}
	return summary
}

// ensureObjectStoreReady fails fast when the configured bucket is
// unreachable or missing, instead of seeding into the void on first write.
func ensureObjectStoreReady(ctx context.Context, backend storage.Backend) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	switch b := backend.(type) {
	case *s3.Store:
		if err := b.EnsureBucket(timeoutCtx); err != nil {
			return fmt.Errorf("object store connectivity check failed: %w", err)
		}
	case *aws.Store:
		exists, err := b.BucketExists(timeoutCtx)
		if err != nil {
			return fmt.Errorf("object store connectivity check failed: %w", err)
		}
		if !exists {
			return fmt.Errorf("object store bucket %s does not exist", b.Config().Bucket)
		}
	}
	return nil
}

// BuildAzureConfig parses azure://account/container[/blob] URLs.
func BuildAzureConfig(cfg Config) (azurestore.Config, error) {
	u, err := url.Parse(cfg.Store)
	if err != nil {
		return azurestore.Config{}, fmt.Errorf("parse store URL: %w", err)
	}
	if u.Scheme != "azure" {
		return azurestore.Config{}, fmt.Errorf("store scheme %q not supported", u.Scheme)
	}
	account := strings.TrimSpace(u.Host)
	if cfg.AzureAccount != "" {
		account = cfg.AzureAccount
	}
	if account == "" {
		account = firstEnv("AZURE_STORAGE_ACCOUNT", "AZURE_STORAGE_ACCOUNT_NAME", "AZURE_ACCOUNT_NAME")
	}
	if account == "" {
		return azurestore.Config{}, fmt.Errorf("azure: account name required (set azure://account/... or AZURE_STORAGE_ACCOUNT)")
	}
	container, blob := splitBucketPath(u.Path)
	if container == "" {
		return azurestore.Config{}, fmt.Errorf("azure store missing container (expected azure://account/container[/blob])")
	}
	query := u.Query()
	endpoint := strings.TrimSpace(cfg.AzureEndpoint)
	if v := strings.TrimSpace(query.Get("endpoint")); v != "" {
		endpoint = v
	}
	accountKey := strings.TrimSpace(cfg.AzureAccountKey)
	if accountKey == "" {
		accountKey = firstEnv("STOCKD_AZURE_ACCOUNT_KEY", "AZURE_STORAGE_ACCOUNT_KEY", "AZURE_ACCOUNT_KEY", "AZURE_STORAGE_KEY")
	}
	sas := strings.TrimSpace(cfg.AzureSASToken)
	if v := strings.TrimSpace(query.Get("sas")); v != "" {
		sas = v
	}
	if sas == "" {
		sas = firstEnv("STOCKD_AZURE_SAS_TOKEN", "AZURE_STORAGE_SAS_TOKEN", "AZURE_SAS_TOKEN")
	}
	return azurestore.Config{
		Account:    account,
		AccountKey: accountKey,
		Endpoint:   endpoint,
		SASToken:   sas,
		Container:  container,
		Blob:       blob,
	}, nil
}

// BuildRedisConfig parses redis:// and rediss:// URLs. The key query
// parameter names the snapshot key and is removed before go-redis sees the
// URL, since go-redis rejects unknown options.
func BuildRedisConfig(cfg Config) (redisstore.Config, error) {
	u, err := url.Parse(cfg.Store)
	if err != nil {
		return redisstore.Config{}, fmt.Errorf("parse store URL: %w", err)
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return redisstore.Config{}, fmt.Errorf("store scheme %q not supported", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return redisstore.Config{}, fmt.Errorf("redis store missing host (expected redis://host[:port][/db])")
	}
	query := u.Query()
	key := strings.TrimSpace(query.Get("key"))
	query.Del("key")
	u.RawQuery = query.Encode()
	return redisstore.Config{URL: u.String(), Key: key}, nil
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if name == "" {
			continue
		}
		if val := strings.TrimSpace(os.Getenv(name)); val != "" {
			return val
		}
	}
	return ""
}
