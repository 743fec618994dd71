package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"pkt.systems/pslog"

	"pkt.systems/stockd/internal/storage"
	"pkt.systems/stockd/internal/uuidv7"
)

// DefaultKey is the Redis key holding the snapshot when none is configured.
const DefaultKey = "stockd:snapshot"

// channelSuffix names the pub/sub channel that announces snapshot rewrites.
const channelSuffix = ":changed"

// Config controls the Redis snapshot backend.
type Config struct {
	// URL is a redis:// or rediss:// URL understood by go-redis.
	URL string
	// Key overrides DefaultKey.
	Key string
}

// Store implements storage.Backend on a single Redis string key.
type Store struct {
	client *goredis.Client
	key    string
	addr   string
	// origin tags change announcements so a store can skip its own.
	origin string
}

// New parses cfg.URL and connects lazily; the first command dials.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("redis: url is required")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	return NewWithClient(goredis.NewClient(opts), cfg.Key), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *goredis.Client, key string) *Store {
	key = strings.TrimSpace(key)
	if key == "" {
		key = DefaultKey
	}
	return &Store{
		client: client,
		key:    key,
		origin: uuidv7.NewString(),
		addr:   client.Options().Addr,
	}
}

// Client exposes the underlying go-redis client.
func (s *Store) Client() *goredis.Client { return s.client }

// Describe identifies the backend without credentials.
func (s *Store) Describe() string {
	return fmt.Sprintf("redis://%s/%d?key=%s", s.addr, s.client.Options().DB, s.key)
}

// Close closes the client connection pool.
func (s *Store) Close() error { return s.client.Close() }

// Load fetches the snapshot key.
func (s *Store) Load(ctx context.Context) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, wrapError(err, "redis: get snapshot")
	}
	pslog.LoggerFromContext(ctx).Trace("redis.load.success", "key", s.key, "bytes", len(data))
	return data, nil
}

// Save replaces the snapshot key and announces the rewrite so other
// processes sharing the key can reload.
func (s *Store) Save(ctx context.Context, data []byte) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key, data, 0)
	pipe.Publish(ctx, s.key+channelSuffix, s.origin)
	if _, err := pipe.Exec(ctx); err != nil {
		return wrapError(err, "redis: set snapshot")
	}
	pslog.LoggerFromContext(ctx).Trace("redis.save.success", "key", s.key, "bytes", len(data))
	return nil
}

// Watch subscribes to the change channel and calls fn for rewrites made by
// other Store instances.
func (s *Store) Watch(ctx context.Context, fn func()) error {
	if fn == nil {
		return fmt.Errorf("redis: watch callback required")
	}
	sub := s.client.Subscribe(ctx, s.key+channelSuffix)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return wrapError(err, "redis: subscribe")
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if msg.Payload == s.origin {
				continue
			}
			fn()
		}
	}
}

func wrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	transient := errors.Is(err, context.DeadlineExceeded)
	var netErr net.Error
	if errors.As(err, &netErr) {
		transient = true
	}
	err = fmt.Errorf("%s: %w", msg, err)
	if transient {
		return storage.NewTransientError(err)
	}
	return err
}
