package retry

import (
	"context"
	"time"

	"pkt.systems/pslog"

	"pkt.systems/stockd/internal/clock"
	"pkt.systems/stockd/internal/storage"
)

// Config controls retry behaviour.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// Wrap returns a backend that retries transient errors according to cfg.
func Wrap(inner storage.Backend, logger pslog.Logger, clk clock.Clock, cfg Config) storage.Backend {
	if inner == nil {
		return nil
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 50 * time.Millisecond
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2.0
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 2 * time.Second
	}
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	if clk == nil {
		clk = clock.Real{}
	}
	b := &backend{
		inner:  inner,
		logger: logger,
		clock:  clk,
		cfg:    cfg,
	}
	if feed, ok := inner.(storage.ChangeFeed); ok {
		return &watchingBackend{backend: b, feed: feed}
	}
	return b
}

type backend struct {
	inner  storage.Backend
	logger pslog.Logger
	clock  clock.Clock
	cfg    Config
}

// watchingBackend keeps the ChangeFeed of inner visible through the wrapper.
type watchingBackend struct {
	*backend
	feed storage.ChangeFeed
}

func (w *watchingBackend) Watch(ctx context.Context, fn func()) error {
	return w.feed.Watch(ctx, fn)
}

func (b *backend) Inner() storage.Backend { return b.inner }

func (b *backend) Load(ctx context.Context) ([]byte, error) {
	var data []byte
	err := b.withRetry(ctx, "load", func(ctx context.Context) error {
		var err error
		data, err = b.inner.Load(ctx)
		return err
	})
	return data, err
}

func (b *backend) Save(ctx context.Context, data []byte) error {
	return b.withRetry(ctx, "save", func(ctx context.Context) error {
		return b.inner.Save(ctx, data)
	})
}

func (b *backend) Describe() string {
	return b.inner.Describe()
}

func (b *backend) Close() error {
	return b.inner.Close()
}

func (b *backend) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	attempts := b.cfg.MaxAttempts
	delay := b.cfg.BaseDelay
	if attempts <= 1 {
		return fn(ctx)
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !storage.IsTransient(err) || attempt == attempts {
			return err
		}
		b.logger.Warn("storage transient error",
			"operation", op,
			"backend", b.inner.Describe(),
			"attempt", attempt,
			"max_attempts", attempts,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			b.clock.Sleep(delay)
			next := time.Duration(float64(delay) * b.cfg.Multiplier)
			if b.cfg.MaxDelay > 0 && next > b.cfg.MaxDelay {
				next = b.cfg.MaxDelay
			}
			delay = next
		}
	}
	return lastErr
}
