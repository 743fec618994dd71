package logging

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pkt.systems/pslog"

	"pkt.systems/stockd/internal/storage"
)

type backend struct {
	inner  storage.Backend
	logger pslog.Logger
	tracer trace.Tracer
	sys    string
}

type watchingBackend struct {
	*backend
	feed storage.ChangeFeed
}

// Wrap decorates inner with trace/debug logging and one span per call.
func Wrap(inner storage.Backend, logger pslog.Logger, sys string) storage.Backend {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	b := &backend{
		inner:  inner,
		logger: logger,
		tracer: otel.Tracer("pkt.systems/stockd/storage"),
		sys:    sys,
	}
	if feed, ok := inner.(storage.ChangeFeed); ok {
		return &watchingBackend{backend: b, feed: feed}
	}
	return b
}

func (b *backend) start(ctx context.Context, op string) (context.Context, trace.Span, pslog.Logger, func(string, error)) {
	begin := time.Now()
	ctx, span := b.tracer.Start(ctx, "stockd.storage."+op, trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(
		attribute.String("stockd.storage.operation", op),
		attribute.String("stockd.storage.backend", b.inner.Describe()),
		attribute.String("stockd.sys", b.sys),
	)
	logger := b.logger
	if ctxLogger := pslog.LoggerFromContext(ctx); ctxLogger != nil {
		logger = ctxLogger
	}
	ctx = pslog.ContextWithLogger(ctx, logger)
	return ctx, span, logger, func(result string, err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "storage_error")
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.AddEvent("stockd.storage.end", trace.WithAttributes(
			attribute.String("stockd.storage.result", result),
			attribute.Int64("stockd.storage.duration_ms", time.Since(begin).Milliseconds()),
		))
	}
}

func (b *backend) Inner() storage.Backend { return b.inner }

func (b *backend) Load(ctx context.Context) ([]byte, error) {
	ctx, span, logger, finish := b.start(ctx, "load")
	defer span.End()
	begin := time.Now()
	logger.Trace("storage.load.begin", "backend", b.inner.Describe())
	data, err := b.inner.Load(ctx)
	switch {
	case err == storage.ErrNotFound:
		finish("not_found", nil)
		logger.Debug("storage.load.not_found", "elapsed", time.Since(begin))
	case err != nil:
		finish("error", err)
		logger.Debug("storage.load.error", "error", err, "elapsed", time.Since(begin))
	default:
		span.SetAttributes(attribute.Int("stockd.storage.bytes", len(data)))
		finish("ok", nil)
		logger.Debug("storage.load.success", "bytes", len(data), "elapsed", time.Since(begin))
	}
	return data, err
}

func (b *backend) Save(ctx context.Context, data []byte) error {
	ctx, span, logger, finish := b.start(ctx, "save")
	defer span.End()
	begin := time.Now()
	span.SetAttributes(attribute.Int("stockd.storage.bytes", len(data)))
	logger.Trace("storage.save.begin", "backend", b.inner.Describe(), "bytes", len(data))
	if err := b.inner.Save(ctx, data); err != nil {
		finish("error", err)
		logger.Debug("storage.save.error", "error", err, "elapsed", time.Since(begin))
		return err
	}
	finish("ok", nil)
	logger.Debug("storage.save.success", "bytes", len(data), "elapsed", time.Since(begin))
	return nil
}

func (b *backend) Describe() string { return b.inner.Describe() }

func (b *backend) Close() error {
	err := b.inner.Close()
	if err != nil {
		b.logger.Warn("storage.close.error", "error", err)
	}
	return err
}

func (w *watchingBackend) Watch(ctx context.Context, fn func()) error {
	logger := w.logger
	logger.Info("storage.watch.begin", "backend", w.inner.Describe())
	err := w.feed.Watch(ctx, func() {
		logger.Info("storage.watch.changed", "backend", w.inner.Describe())
		fn()
	})
	if err != nil {
		logger.Warn("storage.watch.error", "error", err)
	}
	return err
}
